package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher writes each event to the topic named after its type,
// optionally prefixed (e.g. "prod." + "sponsorship.reserved").
type KafkaPublisher struct {
	client *kgo.Client
	prefix string
}

func NewKafkaPublisher(brokers []string, clientID, topicPrefix string) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ClientID(clientID),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaPublisher{client: client, prefix: topicPrefix}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev ReservationEvent) error {
	record, err := p.record(ev)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", record.Topic, err)
	}
	return nil
}

func (p *KafkaPublisher) record(ev ReservationEvent) (*kgo.Record, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	return &kgo.Record{
		Topic: p.prefix + ev.EventType,
		Key:   []byte(ev.Key()),
		Value: b,
	}, nil
}

func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}
