package eventstore_test

import (
	"context"
	"encoding/json"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casanexus/internal/eventstore"
	"casanexus/internal/logger"
	"casanexus/internal/postgres"
	"casanexus/internal/postgres/pgtest"
)

type testEvent struct {
	Message string `json:"message"`
}

func TestRecordAndStream(t *testing.T) {
	db := pgtest.Open(t)
	store := eventstore.New()
	ctx := logger.WithRequestID(context.Background(), "req-1")

	aggregateID := uuid.New()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Record(ctx, db, aggregateID, "listing", "ListingSaved", testEvent{Message: fmt.Sprint(i)}))
	}

	version, err := store.CurrentVersion(ctx, db, aggregateID)
	require.NoError(t, err)
	assert.Equal(t, 3, version)

	events, err := store.Stream(ctx, db, 0, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Version)
	assert.Equal(t, "req-1", events[0].Metadata["request_id"])

	var payload testEvent
	require.NoError(t, json.Unmarshal(events[1].EventData, &payload))
	assert.Equal(t, "1", payload.Message)

	rest, err := store.Stream(ctx, db, events[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, 3, rest[0].Version)
}

func TestAppend_VersionMismatch(t *testing.T) {
	db := pgtest.Open(t)
	store := eventstore.New()
	ctx := context.Background()

	aggregateID := uuid.New()
	events := []eventstore.Event{{EventType: "ReservationAdmitted", EventData: json.RawMessage(`{}`)}}

	require.NoError(t, store.Append(ctx, db, aggregateID, "reservation", 0, events))
	err := store.Append(ctx, db, aggregateID, "reservation", 0, events)
	assert.ErrorIs(t, err, eventstore.ErrConcurrencyConflict)

	assert.ErrorIs(t, store.Append(ctx, db, aggregateID, "reservation", -1, events), eventstore.ErrInvalidVersion)
}

func TestRecord_ConcurrentWritersOfOneAggregate(t *testing.T) {
	db := pgtest.Open(t)
	store := eventstore.New()
	ctx := context.Background()

	const writers = 8
	aggregateID := uuid.New()

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- postgres.InTx(ctx, db, nil, func(tx *sql.Tx) error {
				return store.Record(ctx, tx, aggregateID, "listing", "ListingSaved", testEvent{Message: fmt.Sprint(i)})
			})
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	version, err := store.CurrentVersion(ctx, db, aggregateID)
	require.NoError(t, err)
	assert.Equal(t, writers, version)
}

func BenchmarkRecord(b *testing.B) {
	db := pgtest.Open(b)
	store := eventstore.New()
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := store.Record(ctx, db, uuid.New(), "bench", "BenchEvent", testEvent{Message: "x"}); err != nil {
			b.Fatalf("Record failed: %v", err)
		}
	}
}
