// Package forwarder publishes critical action records to Kafka for
// downstream security tooling. The forwarder is optional; ingestion works
// identically without it.
package forwarder

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

	"caretrail/internal/audit"
	"caretrail/internal/platform/metrics"
)

// Forwarder publishes critical records as JSON, fire-and-forget. It
// implements audit.CriticalSink; publish failures are logged and counted,
// never surfaced to the write path.
type Forwarder struct {
	client  *kgo.Client
	topic   string
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// payload is the JSON structure published per critical record.
type payload struct {
	ID               string `json:"id"`
	ActionType       string `json:"actionType"`
	Severity         string `json:"severity"`
	Description      string `json:"description"`
	ActorID          int64  `json:"actorId"`
	ActorRole        string `json:"actorRole"`
	ActorDisplayName string `json:"actorDisplayName"`
	Target           string `json:"target,omitempty"`
	SourceIP         string `json:"sourceIp,omitempty"`
	RequestID        string `json:"requestId,omitempty"`
	Timestamp        string `json:"timestamp"`
}

// New connects to the given brokers and ensures the topic exists. Returns
// (nil, nil) when no brokers are configured, mirroring the optional Redis
// client.
func New(ctx context.Context, brokers []string, topic string, logger *slog.Logger, m *metrics.Metrics) (*Forwarder, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := ensureTopic(ctx, client, topic); err != nil {
		// Brokers with auto-creation enabled will still accept produces.
		logger.Warn("could not ensure critical topic", "topic", topic, "error", err)
	}

	return &Forwarder{client: client, topic: topic, logger: logger, metrics: m}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client, topic string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	admin := kadm.NewClient(client)
	responses, err := admin.CreateTopics(ctx, 1, 1, nil, topic)
	if err != nil {
		return err
	}
	for _, response := range responses {
		if response.Err != nil && !errors.Is(response.Err, kerr.TopicAlreadyExists) {
			return response.Err
		}
	}
	return nil
}

// newPayload maps a classified record onto the published wire shape.
func newPayload(record *audit.ActionRecord, class audit.Classification) payload {
	return payload{
		ID:               record.ID.String(),
		ActionType:       record.ActionType,
		Severity:         string(class.Severity),
		Description:      record.Description,
		ActorID:          record.ActorID,
		ActorRole:        string(record.ActorRole),
		ActorDisplayName: record.ActorDisplayName,
		Target:           record.TargetLabel(),
		SourceIP:         record.SourceIP,
		RequestID:        record.RequestID,
		Timestamp:        record.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

// NotifyCritical publishes a classified critical record.
func (f *Forwarder) NotifyCritical(ctx context.Context, record audit.ActionRecord, class audit.Classification) {
	if !class.Critical {
		return
	}

	value, err := json.Marshal(newPayload(&record, class))
	if err != nil {
		f.logger.Error("failed to encode critical record", "record_id", record.ID, "error", err)
		return
	}

	f.client.Produce(ctx, &kgo.Record{
		Topic: f.topic,
		Key:   []byte(record.ActionType),
		Value: value,
	}, func(_ *kgo.Record, err error) {
		if err != nil {
			f.logger.Error("failed to publish critical record",
				"record_id", record.ID,
				"topic", f.topic,
				"error", err,
			)
			if f.metrics != nil {
				f.metrics.ForwarderFailures.Inc()
			}
			return
		}
		if f.metrics != nil {
			f.metrics.ForwarderPublished.Inc()
		}
	})
}

// Close flushes buffered records and releases the client.
func (f *Forwarder) Close() {
	if f == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = f.client.Flush(ctx)
	f.client.Close()
}
