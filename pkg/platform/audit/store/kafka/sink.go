// Package kafka publishes audit events to a Kafka topic. Each event becomes
// one record keyed by the event ID with a JSON value.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "casegate/pkg/platform/audit"
)

// DefaultTopic receives intake audit events when no topic is configured.
const DefaultTopic = "casegate.audit.intake"

// Sink implements audit.Store by producing to Kafka synchronously.
type Sink struct {
	client *kgo.Client
	topic  string
}

// New connects a producer to brokers. The client is lazy; call Ping to verify
// connectivity.
func New(brokers []string, topic string, opts ...kgo.Opt) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.ProducerLinger(5 * time.Millisecond),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

// payload is the wire shape of an audit event.
type payload struct {
	ID          string `json:"ID"`
	Timestamp   string `json:"Timestamp"`
	Action      string `json:"Action"`
	Fingerprint string `json:"Fingerprint,omitempty"`
	CrisisID    int64  `json:"CrisisID,omitempty"`
	Tag         string `json:"Tag,omitempty"`
	Reason      string `json:"Reason,omitempty"`
	RequestID   string `json:"RequestID,omitempty"`
}

// Append produces the event and waits for the broker acknowledgement.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	value, err := Encode(event)
	if err != nil {
		return err
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.ID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "action", Value: []byte(event.Action)},
		},
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Ping checks that at least one broker is reachable.
func (s *Sink) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *Sink) Close() {
	s.client.Close()
}

// Encode renders an event as the JSON record value.
func Encode(event audit.Event) ([]byte, error) {
	b, err := json.Marshal(payload{
		ID:          event.ID.String(),
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339Nano),
		Action:      string(event.Action),
		Fingerprint: event.Fingerprint,
		CrisisID:    event.CrisisID,
		Tag:         event.Tag,
		Reason:      event.Reason,
		RequestID:   event.RequestID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal audit payload: %w", err)
	}
	return b, nil
}

// Decode parses a record value produced by Encode.
func Decode(value []byte) (audit.Event, error) {
	var p payload
	if err := json.Unmarshal(value, &p); err != nil {
		return audit.Event{}, fmt.Errorf("unmarshal audit payload: %w", err)
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse audit event id: %w", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, p.Timestamp)
	if err != nil {
		return audit.Event{}, fmt.Errorf("parse audit timestamp: %w", err)
	}
	return audit.Event{
		ID:          id,
		Timestamp:   ts,
		Action:      audit.Action(p.Action),
		Fingerprint: p.Fingerprint,
		CrisisID:    p.CrisisID,
		Tag:         p.Tag,
		Reason:      p.Reason,
		RequestID:   p.RequestID,
	}, nil
}
