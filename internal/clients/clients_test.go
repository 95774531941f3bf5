package clients

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casanexus/internal/listing"
	"casanexus/internal/postal"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListingClient_Get(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/listings/"+id.String() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"`+id.String()+`","name":"Casa Azul","capacity":4,"price":100}`)
	}))
	defer srv.Close()

	c := NewListingClient(srv.URL, time.Second)

	l, err := c.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Casa Azul", l.Name)
	assert.Equal(t, 4, l.Capacity)

	_, err = c.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, listing.ErrNotFound)
}

func TestListingClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = io.WriteString(w, `{"id":"`+id.String()+`","capacity":2}`)
	}))
	defer srv.Close()

	l, err := NewListingClient(srv.URL, time.Second).Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, l.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func viaCEP(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		switch r.URL.Path {
		case "/ws/01001000/json/":
			_, _ = io.WriteString(w, `{"cep":"01001-000","logradouro":"Praça da Sé","complemento":"lado ímpar","bairro":"Sé","localidade":"São Paulo","uf":"SP"}`)
		case "/ws/99999999/json/":
			_, _ = io.WriteString(w, `{"erro": true}`)
		case "/ws/88888888/json/":
			_, _ = io.WriteString(w, `{"erro": "true"}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPostalClient_Lookup(t *testing.T) {
	var calls atomic.Int32
	c := NewPostalClient(viaCEP(t, &calls).URL, time.Second)
	ctx := context.Background()

	addr, err := c.Lookup(ctx, "01001-000")
	require.NoError(t, err)
	assert.Equal(t, postal.Address{PostalCode: "01001000", Street: "Praça da Sé", District: "Sé", City: "São Paulo", State: "SP"}, *addr)

	_, err = c.Lookup(ctx, "99999999")
	assert.ErrorIs(t, err, postal.ErrNotFound)

	_, err = c.Lookup(ctx, "88888888")
	assert.ErrorIs(t, err, postal.ErrNotFound)

	_, err = c.Lookup(ctx, "12345678")
	require.Error(t, err)
	assert.NotErrorIs(t, err, postal.ErrNotFound)

	before := calls.Load()
	_, err = c.Lookup(ctx, "123")
	assert.ErrorIs(t, err, postal.ErrNotFound)
	assert.Equal(t, before, calls.Load(), "malformed codes must not reach the network")
}

type stubLookup struct {
	calls atomic.Int32
	err   error
}

func (s *stubLookup) Lookup(_ context.Context, code string) (*postal.Address, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return &postal.Address{PostalCode: code, Street: "Rua A", District: "Centro", City: "Recife", State: "PE"}, nil
}

func TestBreakerLookup_OpensOnFailures(t *testing.T) {
	stub := &stubLookup{err: errors.New("connection reset")}
	b := NewBreakerLookup(stub, 2, time.Minute, discardLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := b.Lookup(ctx, "01001000")
		require.Error(t, err)
	}

	_, err := b.Lookup(ctx, "01001000")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), stub.calls.Load())
}

func TestBreakerLookup_NotFoundDoesNotTrip(t *testing.T) {
	stub := &stubLookup{err: postal.ErrNotFound}
	b := NewBreakerLookup(stub, 1, time.Minute, discardLogger())

	for i := 0; i < 3; i++ {
		_, err := b.Lookup(context.Background(), "01001000")
		assert.ErrorIs(t, err, postal.ErrNotFound)
	}
	assert.Equal(t, int32(3), stub.calls.Load())
}

func TestCachedLookup(t *testing.T) {
	stub := &stubLookup{}
	c, err := NewCachedLookup(stub, 1<<20, time.Hour)
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	first, err := c.Lookup(ctx, "50030-230")
	require.NoError(t, err)
	second, err := c.Lookup(ctx, "50030230")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), stub.calls.Load())

	stub.err = postal.ErrNotFound
	_, err = c.Lookup(ctx, "11111111")
	assert.ErrorIs(t, err, postal.ErrNotFound)
	_, err = c.Lookup(ctx, "11111111")
	assert.ErrorIs(t, err, postal.ErrNotFound)
	assert.Equal(t, int32(3), stub.calls.Load(), "misses are not cached")
}
