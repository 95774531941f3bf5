// Package eventstore appends domain events to the events table inside the
// caller's transaction, so a state change and its event commit together.
package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"casanexus/internal/logger"
	"casanexus/internal/postgres"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
)

// Event is a stored domain event with its metadata.
type Event struct {
	ID            int64           `json:"id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	EventType     string          `json:"event_type"`
	EventData     json.RawMessage `json:"event_data"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
}

// EventStore writes and reads the events table.
type EventStore struct {
	tracer trace.Tracer
}

// New creates an EventStore.
func New() *EventStore {
	return &EventStore{tracer: otel.Tracer("casanexus/eventstore")}
}

// Record marshals payload and appends it as the next event of the aggregate.
// The request id from ctx, if any, is stored as metadata.
//
// q should be a transaction: the aggregate's advisory lock is held until it
// ends, so concurrent writers of one aggregate take turns reading the version.
func (es *EventStore) Record(ctx context.Context, q postgres.DBTX, aggregateID uuid.UUID, aggregateType, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", eventType, err)
	}

	// The two-key form keeps these locks apart from single-key listing locks.
	if _, err := q.ExecContext(ctx,
		`SELECT pg_advisory_xact_lock(hashtext('events'), hashtext($1))`, aggregateID.String()); err != nil {
		return fmt.Errorf("lock aggregate %s: %w", aggregateID, err)
	}

	current, err := es.CurrentVersion(ctx, q, aggregateID)
	if err != nil {
		return err
	}

	var metadata map[string]any
	if id := logger.RequestID(ctx); id != "" {
		metadata = map[string]any{"request_id": id}
	}

	return es.Append(ctx, q, aggregateID, aggregateType, current, []Event{{
		EventType: eventType,
		EventData: data,
		Metadata:  metadata,
	}})
}

// Append appends events with optimistic concurrency control: the aggregate
// must currently be at expectedVersion.
func (es *EventStore) Append(ctx context.Context, q postgres.DBTX, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []Event) error {
	ctx, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	current, err := es.CurrentVersion(ctx, q, aggregateID)
	if err != nil {
		return err
	}
	if current != expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", current),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	for i, event := range events {
		version := expectedVersion + i + 1

		var metadataJSON []byte
		if event.Metadata != nil {
			if metadataJSON, err = json.Marshal(event.Metadata); err != nil {
				return fmt.Errorf("marshal metadata: %w", err)
			}
		}

		var eventID int64
		err = q.QueryRowContext(ctx, `
			INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id
		`, aggregateID, aggregateType, event.EventType, []byte(event.EventData), metadataJSON, version, time.Now().UTC()).Scan(&eventID)
		if err != nil {
			// unique (aggregate_id, version) lost a race
			if postgres.HasCode(err, postgres.CodeUniqueViolation) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("insert event %d: %w", i, err)
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", eventID),
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	return nil
}

// CurrentVersion returns the latest version for an aggregate, 0 if none.
func (es *EventStore) CurrentVersion(ctx context.Context, q postgres.DBTX, aggregateID uuid.UUID) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("query version: %w", err)
	}
	return version, nil
}

// Stream returns up to batchSize events with id greater than fromID, in id order.
func (es *EventStore) Stream(ctx context.Context, q postgres.DBTX, fromID int64, batchSize int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.stream",
		trace.WithAttributes(
			attribute.Int64("from.id", fromID),
			attribute.Int("batch.size", batchSize),
		),
	)
	defer span.End()

	rows, err := q.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at
		FROM events
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, fromID, batchSize)
	if err != nil {
		return nil, fmt.Errorf("query event stream: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			event        Event
			data         []byte
			metadataJSON []byte
		)
		if err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&data,
			&metadataJSON,
			&event.Version,
			&event.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.EventData = json.RawMessage(data)

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of event %d: %w", event.ID, err)
			}
		}

		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	span.SetAttributes(attribute.Int("events.streamed", len(events)))
	return events, nil
}
