package sink

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// KafkaSink publishes each batch to a per-request topic so downstream
// consumers can subscribe to exactly the request they submitted.
type KafkaSink struct {
	producer sarama.SyncProducer
}

func NewKafkaSink(brokers []string) (*KafkaSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return &KafkaSink{producer: producer}, nil
}

func (s *KafkaSink) Flush(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, _, err := s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: b.RequestID,
		Key:   sarama.StringEncoder(b.Key()),
		Value: sarama.ByteEncoder(b.Data),
	})
	if err != nil {
		return fmt.Errorf("publish batch %s: %w", b.Key(), err)
	}
	return nil
}

func (s *KafkaSink) Close() error {
	return s.producer.Close()
}
