package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/yourusername/rentpay/errs"
	"github.com/yourusername/rentpay/models"
	"github.com/yourusername/rentpay/mpesa"
	"gopkg.in/yaml.v3"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Config struct {
	Port             string
	DatabaseURL      string
	JWTSecret        string
	JWTRefreshSecret string

	LogLevel  string
	LogPretty bool

	MpesaBaseURL     string
	MpesaCallbackURL string
	MpesaTimeout     time.Duration
	BillersFile      string

	RedisURL             string
	RabbitMQURL          string
	NotificationExchange string

	RentDueDay        int
	ReminderDay       int
	OverdueNoticeDays int
}

func LoadConfig() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Port:             getEnvOrDefault("PORT", "8080"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		JWTRefreshSecret: os.Getenv("JWT_REFRESH_SECRET"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogPretty: getEnvBool("LOG_PRETTY", false),

		MpesaBaseURL:     getEnvOrDefault("MPESA_BASE_URL", mpesa.SandboxBaseURL),
		MpesaCallbackURL: os.Getenv("MPESA_CALLBACK_URL"),
		MpesaTimeout:     time.Duration(getEnvInt("MPESA_TIMEOUT_SECONDS", 30)) * time.Second,
		BillersFile:      getEnvOrDefault("MPESA_BILLERS_FILE", "billers.yaml"),

		RedisURL:             os.Getenv("REDIS_URL"),
		RabbitMQURL:          os.Getenv("RABBITMQ_URL"),
		NotificationExchange: getEnvOrDefault("NOTIFICATION_EXCHANGE", "rentpay.notifications"),

		RentDueDay:        getEnvInt("RENT_DUE_DAY", 5),
		ReminderDay:       getEnvInt("REMINDER_DAY", 5),
		OverdueNoticeDays: getEnvInt("OVERDUE_NOTICE_DAYS", 3),
	}

	if cfg.RentDueDay < 1 || cfg.RentDueDay > 31 {
		return nil, errs.New(errs.KindConfiguration, "RENT_DUE_DAY must be between 1 and 31")
	}
	if cfg.ReminderDay < 1 || cfg.ReminderDay > 31 {
		return nil, errs.New(errs.KindConfiguration, "REMINDER_DAY must be between 1 and 31")
	}
	if cfg.OverdueNoticeDays < 0 {
		return nil, errs.New(errs.KindConfiguration, "OVERDUE_NOTICE_DAYS must not be negative")
	}
	return cfg, nil
}

// ReminderPolicy is the notification schedule the ledgers are checked against.
func (c *Config) ReminderPolicy() models.ReminderPolicy {
	return models.ReminderPolicy{ReminderDay: c.ReminderDay, OverdueAfterDays: c.OverdueNoticeDays}
}

type billersFile struct {
	Billers []mpesa.Biller `yaml:"billers"`
}

// LoadBillers reads biller identities from a YAML file. ${VAR} references are
// expanded from the environment so secrets can stay out of the file.
func LoadBillers(path string) ([]mpesa.Biller, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "config.LoadBillers", fmt.Errorf("reading %s: %w", path, err))
	}
	return ParseBillers([]byte(os.ExpandEnv(string(raw))))
}

func ParseBillers(raw []byte) ([]mpesa.Biller, error) {
	var f billersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, errs.Wrap(errs.KindConfiguration, "config.ParseBillers", err)
	}
	if len(f.Billers) == 0 {
		return nil, errs.New(errs.KindConfiguration, "no billers configured")
	}
	return f.Billers, nil
}

// NewBillerRouter loads and validates the configured biller identities.
func NewBillerRouter(cfg *Config) (*mpesa.Router, error) {
	billers, err := LoadBillers(cfg.BillersFile)
	if err != nil {
		return nil, err
	}
	return mpesa.NewRouter(billers)
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, errs.New(errs.KindConfiguration, "DATABASE_URL is required")
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return defaultValue
	}
	return b
}
