// Package outbox relays committed audit rows from the PostgreSQL outbox to
// Kafka.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"crvs/pkg/platform/audit/store/postgres"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

// Store is the outbox surface the relay needs.
type Store interface {
	RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error
	FetchUnpublished(ctx context.Context, limit int) ([]postgres.Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Producer publishes records synchronously. *kgo.Client satisfies it.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Relay polls the outbox and publishes each row keyed by its registration
// record id, so a record's audit trail stays ordered within one partition.
type Relay struct {
	store     Store
	producer  Producer
	topic     string
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func NewRelay(store Store, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		store:     store,
		producer:  producer,
		topic:     topic,
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run polls until ctx is cancelled. Publish failures are logged and retried
// on the next tick; rows stay unpublished until Kafka acknowledges them.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		if _, err := r.PublishBatch(ctx); err != nil && ctx.Err() == nil {
			r.logger.WarnContext(ctx, "outbox publish failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// PublishBatch publishes one batch and returns the number of rows delivered.
func (r *Relay) PublishBatch(ctx context.Context) (int, error) {
	var published int
	err := r.store.RunInTx(ctx, func(txCtx context.Context) error {
		entries, err := r.store.FetchUnpublished(txCtx, r.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		records := make([]*kgo.Record, len(entries))
		ids := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			records[i] = &kgo.Record{
				Topic: r.topic,
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_type", Value: []byte(e.EventType)},
					{Key: "outbox_id", Value: []byte(e.ID.String())},
				},
			}
			ids[i] = e.ID
		}
		if err := r.producer.ProduceSync(txCtx, records...).FirstErr(); err != nil {
			return fmt.Errorf("produce outbox records: %w", err)
		}
		if err := r.store.MarkPublished(txCtx, ids); err != nil {
			return err
		}
		published = len(entries)
		return nil
	})
	return published, err
}

// EnsureTopic creates topic when it does not exist.
func EnsureTopic(ctx context.Context, client *kgo.Client, topic string, partitions int32, replication int16) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}
