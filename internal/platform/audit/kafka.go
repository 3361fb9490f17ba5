package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaStore streams audit events to a Kafka topic so downstream
// consumers (SIEM, compliance) get them off the request path. Records
// are keyed by identity to preserve per-identity ordering.
type KafkaStore struct {
	client *kgo.Client
	topic  string
}

// NewKafkaStore connects to the given brokers (comma-separated).
func NewKafkaStore(brokers, topic string) (*KafkaStore, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaStore{client: client, topic: topic}, nil
}

func (s *KafkaStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.Identity),
		Value: payload,
	}
	// Fire-and-forget: audit must not block or fail the admission path.
	s.client.Produce(ctx, record, nil)
	return nil
}

func (s *KafkaStore) Close() {
	s.client.Close()
}
