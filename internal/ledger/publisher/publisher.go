// Package publisher streams committed ledger records to Kafka so downstream
// compliance consumers (SIEM, regulatory reporting) can follow the chain
// without read access to the primary store. The chain itself is the source of
// truth; a publish failure never un-commits a record.
package publisher

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"riftgate/internal/ledger"
)

// DefaultTopic is the compliance stream topic.
const DefaultTopic = "riftgate.audit.records"

// Publisher implements ledger.Sink over a franz-go client.
type Publisher struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithTopic overrides the stream topic.
func WithTopic(topic string) Option {
	return func(p *Publisher) {
		if topic != "" {
			p.topic = topic
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) { p.logger = logger }
}

// New connects a publisher to the given brokers.
func New(brokers []string, opts ...Option) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	p := &Publisher{client: client, topic: DefaultTopic}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// wirePayload is the JSON published per record. Hashes are hex so consumers
// can re-verify the chain without binary handling.
type wirePayload struct {
	Sequence        uint64  `json:"sequence"`
	Timestamp       string  `json:"timestamp"`
	Type            string  `json:"type"`
	RequestID       string  `json:"request_id"`
	ProfileID       string  `json:"profile_id,omitempty"`
	Stage           string  `json:"stage,omitempty"`
	Decision        string  `json:"decision,omitempty"`
	Reason          string  `json:"reason,omitempty"`
	SnapshotVersion uint64  `json:"snapshot_version"`
	Score           float64 `json:"score"`
	PrevHash        string  `json:"prev_hash"`
	Hash            string  `json:"hash"`
	Signature       string  `json:"signature"`
}

// Publish sends one committed record. Keyed by request ID so all records of
// one attempt land in the same partition, in order.
func (p *Publisher) Publish(ctx context.Context, rec ledger.Record) error {
	krec, err := toKafkaRecord(p.topic, rec)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, krec).FirstErr(); err != nil {
		return fmt.Errorf("produce ledger record %d: %w", rec.Sequence, err)
	}
	if p.logger != nil {
		p.logger.DebugContext(ctx, "ledger record streamed",
			"sequence", rec.Sequence,
			"topic", p.topic,
		)
	}
	return nil
}

// Close flushes and releases the client.
func (p *Publisher) Close() {
	p.client.Close()
}

func toKafkaRecord(topic string, rec ledger.Record) (*kgo.Record, error) {
	payload := wirePayload{
		Sequence:        rec.Sequence,
		Timestamp:       rec.Timestamp.Format("2006-01-02T15:04:05.999999999Z07:00"),
		Type:            string(rec.Event.Type),
		RequestID:       rec.Event.RequestID,
		ProfileID:       rec.Event.ProfileID,
		Stage:           rec.Event.Stage,
		Decision:        rec.Event.Decision,
		Reason:          rec.Event.Reason,
		SnapshotVersion: rec.Snapshot.Version,
		Score:           rec.Snapshot.Score,
		PrevHash:        hex.EncodeToString(rec.PrevHash),
		Hash:            hex.EncodeToString(rec.Hash),
		Signature:       hex.EncodeToString(rec.Signature),
	}
	value, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal stream payload: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(rec.Event.RequestID),
		Value: value,
	}, nil
}
