package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nats-io/nats.go"

	"casanexus/internal/eventstore"
)

// NATSPublisher publishes events as JSON on a core NATS connection.
type NATSPublisher struct {
	nc *nats.Conn
}

// ConnectNATS dials url and names the connection after the service.
func ConnectNATS(url, name string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{nc: nc}, nil
}

// Publish sends the event and waits for the server to acknowledge the flush.
// The Nats-Msg-Id header carries the event id so consumers can drop repeats.
func (p *NATSPublisher) Publish(ctx context.Context, subject string, event eventstore.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, strconv.FormatInt(event.ID, 10))

	if err := p.nc.PublishMsg(msg); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return p.nc.FlushWithContext(ctx)
}

// Close drains the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
