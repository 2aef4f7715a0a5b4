package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/yourusername/rentpay/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sink delivers notification requests to a store or a broker.
type Sink interface {
	Send(ctx context.Context, reqs []Request) error
}

// DBSink writes requests to the notifications table.
type DBSink struct {
	db *gorm.DB
}

func NewDBSink(db *gorm.DB) *DBSink {
	return &DBSink{db: db}
}

func (s *DBSink) Send(ctx context.Context, reqs []Request) error {
	if len(reqs) == 0 {
		return nil
	}
	rows := make([]models.Notification, 0, len(reqs))
	for _, r := range reqs {
		rows = append(rows, models.Notification{
			RecipientID: r.RecipientID,
			Kind:        r.Kind,
			Title:       r.Title,
			Message:     r.Message,
			Metadata:    datatypes.JSONMap(r.Metadata),
		})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return fmt.Errorf("failed to store notifications: %w", err)
	}
	return nil
}

// MultiSink sends to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Send(ctx context.Context, reqs []Request) error {
	var errList []error
	for _, s := range m {
		if err := s.Send(ctx, reqs); err != nil {
			errList = append(errList, err)
		}
	}
	return errors.Join(errList...)
}

// Dispatcher is the fire-and-forget front of a Sink: failures are logged and
// never reach the caller, whose state change has already committed.
type Dispatcher struct {
	sink   Sink
	logger zerolog.Logger
}

func NewDispatcher(sink Sink, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{sink: sink, logger: logger.With().Str("component", "notify").Logger()}
}

// Notify builds the requests for ev and sends them. It returns how many were built.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) int {
	reqs := Build(ev)
	if len(reqs) == 0 {
		return 0
	}
	if err := d.sink.Send(ctx, reqs); err != nil {
		d.logger.Error().Err(err).Str("kind", string(ev.Kind)).Int("count", len(reqs)).Msg("Failed to deliver notifications")
	}
	return len(reqs)
}
