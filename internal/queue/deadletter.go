package queue

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// DeadLetterPublisher parks permanently failed requests on a shared
// failures topic, keyed so per-request errors can be filtered out.
type DeadLetterPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewDeadLetterPublisher(brokers []string, topic string) (*DeadLetterPublisher, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create dead letter producer: %w", err)
	}
	return &DeadLetterPublisher{producer: producer, topic: topic}, nil
}

func (p *DeadLetterPublisher) Publish(ctx context.Context, key string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(body),
	})
	if err != nil {
		return fmt.Errorf("publish dead letter %s: %w", key, err)
	}
	return nil
}

func (p *DeadLetterPublisher) Close() error {
	return p.producer.Close()
}
