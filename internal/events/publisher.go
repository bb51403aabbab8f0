package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mrprince0421/microsservi-os/internal/telemetry"
)

// SequenceSource hands out a gap-free, per-partition sequence number.
type SequenceSource interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

type Publisher struct {
	transport Transport
	seq       SequenceSource
	producer  string
	now       func() time.Time
}

type PublisherOptions struct {
	Producer string
	Now      func() time.Time
}

func NewPublisher(t Transport, seq SequenceSource, opts PublisherOptions) *Publisher {
	producer := opts.Producer
	if producer == "" {
		producer = "sales-service"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Publisher{transport: t, seq: seq, producer: producer, now: now}
}

func (p *Publisher) PublishSaleRecorded(ctx context.Context, meta EventMeta, payload SaleRecordedPayload) error {
	seq, err := p.seq.NextSequence(ctx, meta.PartitionKey)
	if err != nil {
		return fmt.Errorf("reserve sequence: %w", err)
	}

	ev := newSaleRecordedEvent(meta, seq, p.producer, payload, p.now().UTC())
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal SaleRecorded envelope: %w", err)
	}

	return p.transport.Send(ctx, SaleRecordedRoutingKey, meta.PartitionKey, body, telemetry.InjectMap(ctx))
}

func (p *Publisher) Close() error {
	return p.transport.Close()
}

// Nop discards every event. It is used when no broker is configured.
type Nop struct{}

func (Nop) PublishSaleRecorded(context.Context, EventMeta, SaleRecordedPayload) error { return nil }

func (Nop) Close() error { return nil }
