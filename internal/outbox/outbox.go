// Package outbox relays stored domain events to NATS. The cursor lives in
// event_relay_offsets, so a restarted relay resumes where it stopped.
// Delivery is at-least-once: a crash between publish and commit republishes
// the batch.
package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"casanexus/internal/eventstore"
	"casanexus/internal/postgres"
)

// Publisher delivers one event to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, event eventstore.Event) error
}

// Config tunes a Relay.
type Config struct {
	Name           string   // cursor key in event_relay_offsets
	SubjectPrefix  string
	AggregateTypes []string // events of other aggregates are skipped; empty relays all
	PollInterval   time.Duration
	BatchSize      int
}

// Relay polls the events table and publishes new events in id order.
type Relay struct {
	db     *sql.DB
	events *eventstore.EventStore
	pub    Publisher
	cfg    Config
	logger *slog.Logger
}

// NewRelay creates a Relay.
func NewRelay(db *sql.DB, events *eventstore.EventStore, pub Publisher, cfg Config, logger *slog.Logger) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{db: db, events: events, pub: pub, cfg: cfg, logger: logger.With("relay", cfg.Name)}
}

// Subject returns "<prefix>.<aggregate_type>.<event_type>".
func Subject(prefix string, event eventstore.Event) string {
	return fmt.Sprintf("%s.%s.%s", prefix, event.AggregateType, event.EventType)
}

// Run drains batches every poll interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped")
			return nil
		case <-ticker.C:
			for {
				n, err := r.Drain(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					r.logger.Error("outbox drain failed", "error", err)
					break
				}
				if n < r.cfg.BatchSize {
					break
				}
			}
		}
	}
}

// Drain publishes at most one batch and advances the cursor. It returns the
// number of events read from the store, published or skipped.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	var read int
	err := postgres.InTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		// row lock serializes relays sharing a name
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO event_relay_offsets (relay, last_id) VALUES ($1, 0)
			ON CONFLICT (relay) DO NOTHING
		`, r.cfg.Name); err != nil {
			return fmt.Errorf("init offset: %w", err)
		}

		var lastID int64
		if err := tx.QueryRowContext(ctx, `
			SELECT last_id FROM event_relay_offsets WHERE relay = $1 FOR UPDATE
		`, r.cfg.Name).Scan(&lastID); err != nil {
			return fmt.Errorf("load offset: %w", err)
		}

		batch, err := r.events.Stream(ctx, tx, lastID, r.cfg.BatchSize)
		if err != nil {
			return err
		}
		read = len(batch)
		if read == 0 {
			return nil
		}

		for _, event := range batch {
			if len(r.cfg.AggregateTypes) > 0 && !slices.Contains(r.cfg.AggregateTypes, event.AggregateType) {
				continue
			}
			subject := Subject(r.cfg.SubjectPrefix, event)
			if err := r.pub.Publish(ctx, subject, event); err != nil {
				return fmt.Errorf("publish event %d: %w", event.ID, err)
			}
			r.logger.Debug("event published", "event_id", event.ID, "subject", subject)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE event_relay_offsets SET last_id = $2, updated_at = NOW() WHERE relay = $1
		`, r.cfg.Name, batch[len(batch)-1].ID); err != nil {
			return fmt.Errorf("save offset: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return read, nil
}
