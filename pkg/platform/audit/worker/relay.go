package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"formhub/pkg/platform/audit/store/postgres"
)

const (
	defaultInterval  = 2 * time.Second
	defaultBatchSize = 200
)

// Relay drains the audit outbox into a Kafka topic. Kafka is the durable
// audit log; the outbox only bridges the transactional gap.
type Relay struct {
	store    *postgres.Store
	client   *kgo.Client
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithInterval sets the outbox polling interval.
func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

// WithBatchSize caps how many rows one polling pass publishes.
func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

// NewRelay connects to the Kafka cluster and builds a relay for the topic.
func NewRelay(store *postgres.Store, seeds []string, topic string, logger *slog.Logger, opts ...Option) (*Relay, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(seeds...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect kafka: %w", err)
	}
	r := &Relay{
		store:    store,
		client:   client,
		topic:    topic,
		interval: defaultInterval,
		batch:    defaultBatchSize,
		logger:   logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

// EnsureTopic creates the audit topic if the cluster does not have it yet.
func (r *Relay) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(r.client)
	_, err := adm.CreateTopic(ctx, partitions, replication, nil, r.topic)
	if err != nil && !errors.Is(err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", r.topic, err)
	}
	return nil
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.publishBatch(ctx); err != nil {
				r.logger.Error("audit relay pass failed", "error", err)
			}
		}
	}
}

// Close flushes buffered records and releases the Kafka client.
func (r *Relay) Close() {
	r.client.Close()
}

type wireEvent struct {
	ID          string         `json:"id"`
	Action      string         `json:"action"`
	ActorID     string         `json:"actorId,omitempty"`
	SubjectType string         `json:"subjectType"`
	SubjectID   string         `json:"subjectId"`
	Detail      map[string]any `json:"detail,omitempty"`
	OccurredAt  time.Time      `json:"occurredAt"`
}

func (r *Relay) publishBatch(ctx context.Context) error {
	rows, err := r.store.FetchUnpublished(ctx, r.batch)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}

	records := make([]*kgo.Record, 0, len(rows))
	for _, row := range rows {
		wire := wireEvent{
			ID:          row.Event.ID.String(),
			Action:      string(row.Event.Action),
			SubjectType: string(row.Event.SubjectType),
			SubjectID:   row.Event.SubjectID.String(),
			Detail:      row.Event.Detail,
			OccurredAt:  row.Event.OccurredAt,
		}
		if row.Event.ActorID != nil {
			wire.ActorID = row.Event.ActorID.String()
		}
		payload, err := json.Marshal(wire)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		records = append(records, &kgo.Record{
			Topic: r.topic,
			Key:   []byte(wire.SubjectID),
			Value: payload,
		})
	}

	results := r.client.ProduceSync(ctx, records...)
	if err := results.FirstErr(); err != nil {
		return fmt.Errorf("produce audit batch: %w", err)
	}

	rowIDs := make([]int64, len(rows))
	for i, row := range rows {
		rowIDs[i] = row.RowID
	}
	if err := r.store.MarkPublished(ctx, rowIDs, time.Now()); err != nil {
		return err
	}
	r.logger.Debug("audit relay published batch", "count", len(rows))
	return nil
}
