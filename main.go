package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/yourusername/rentpay/config"
	"github.com/yourusername/rentpay/logger"
	"gorm.io/gorm"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:          "rentpay",
		Short:        "Rent, deposit and water billing with M-Pesa collection",
		Version:      Version,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(chargesCmd())
	rootCmd.AddCommand(remindersCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration, builds the logger and opens (and migrates)
// the database.
func bootstrap() (*config.Config, zerolog.Logger, *gorm.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("failed to load config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	db, err := config.InitDB(cfg)
	if err != nil {
		return nil, log, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return cfg, log, db, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			a, err := newApp(cfg, db, log)
			if err != nil {
				return err
			}
			defer a.Close()
			a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			if !cfg.LogPretty {
				gin.SetMode(gin.ReleaseMode)
			}
			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           setupRouter(a),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("port", cfg.Port).Str("version", Version).Msg("Starting rentpay API server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// InitDB migrates on open.
			_, log, _, err := bootstrap()
			if err != nil {
				return err
			}
			log.Info().Msg("Database schema is up to date")
			return nil
		},
	}
}

func chargesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charges",
		Short: "Manage ledger entries",
	}

	var month, year int
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Create the rent entries of every active lease for a period",
		Long: `Create the rent entry of every active lease for the given period, and the
deposit entry of leases that do not have one yet. Running it twice is harmless.

Examples:
  rentpay charges generate
  rentpay charges generate --month 3 --year 2026`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			a := newLedgerApp(cfg, db, log)
			defer a.Close()

			if month == 0 && year == 0 {
				month, year = a.ledger.CurrentPeriod()
			}
			res, err := a.ledger.GeneratePeriodCharges(cmd.Context(), month, year)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d/%d: %d rent entries created, %d already present, %d deposits created\n",
				res.Month, res.Year, res.RentCreated, res.RentExisting, res.DepositsCreated)
			return nil
		},
	}
	generate.Flags().IntVar(&month, "month", 0, "billing month (1-12), defaults to the current month")
	generate.Flags().IntVar(&year, "year", 0, "billing year, defaults to the current year")
	cmd.AddCommand(generate)
	return cmd
}

func remindersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Reminder notifications",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Send every reminder and overdue notice that is due now",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			a := newLedgerApp(cfg, db, log)
			defer a.Close()

			res, err := a.ledger.CheckReminders(cmd.Context())
			if res != nil {
				for kind, n := range res.Sent {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", kind, n)
				}
			}
			return err
		},
	})
	return cmd
}
