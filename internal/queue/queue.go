// Package queue consumes transform requests from Kafka and drives the
// job executor, acknowledging each message exactly once after the job
// settles (success or dead-letter).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/IBM/sarama"
	"github.com/go-playground/validator/v10"

	"github.com/withObsrvr/transform-worker/internal/logging"
	"github.com/withObsrvr/transform-worker/internal/worker"
)

var validate = validator.New()

// Executor settles a single transform request end to end.
type Executor interface {
	Execute(ctx context.Context, req worker.Request) worker.Outcome
}

type Config struct {
	Brokers   []string
	Topic     string
	GroupID   string
	Version   string
	StartFrom string
}

// Consumer is a single-member consumer group reading transform requests.
// Each claim processes one message at a time; the broker-side prefetch of
// one in-flight job mirrors the channel QoS the service expects.
type Consumer struct {
	cfg   Config
	group sarama.ConsumerGroup
	exec  Executor
	log   *slog.Logger
}

func NewConsumer(cfg Config, exec Executor) (*Consumer, error) {
	sc := sarama.NewConfig()
	if cfg.Version != "" {
		ver, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("parse kafka version %q: %w", cfg.Version, err)
		}
		sc.Version = ver
	}
	sc.Consumer.Return.Errors = true
	switch cfg.StartFrom {
	case "newest":
		sc.Consumer.Offsets.Initial = sarama.OffsetNewest
	default:
		sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}
	return &Consumer{
		cfg:   cfg,
		group: group,
		exec:  exec,
		log:   logging.Component("queue"),
	}, nil
}

// Run blocks consuming the request topic until ctx is canceled. Consume
// returns on every rebalance, so it is re-entered in a loop.
func (c *Consumer) Run(ctx context.Context) error {
	handler := &groupHandler{exec: c.exec, log: c.log}

	for {
		if err := c.group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			return fmt.Errorf("consume %s: %w", c.cfg.Topic, err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

type groupHandler struct {
	exec Executor
	log  *slog.Logger
}

func (*groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (*groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-sess.Context().Done():
			return sess.Context().Err()

		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			req, err := decodeRequest(msg.Value)
			if err != nil {
				// A message we cannot decode is not ours to settle:
				// leave the offset unmarked so the operator sees it
				// again after a restart, and keep consuming.
				h.log.Error("undecodable transform request",
					"topic", msg.Topic,
					"partition", msg.Partition,
					"offset", msg.Offset,
					"error", err)
				continue
			}

			out := h.exec.Execute(sess.Context(), req)
			if sess.Context().Err() != nil {
				// Shutdown raced the job: do not mark, the next
				// member re-delivers and the job re-runs.
				return sess.Context().Err()
			}

			h.log.Info("request settled",
				"request_id", req.RequestID,
				"file_id", req.FileID,
				"status", string(out.Status),
				"attempts", out.Attempts)

			sess.MarkMessage(msg, "")
			sess.Commit()
		}
	}
}

func decodeRequest(value []byte) (worker.Request, error) {
	var req worker.Request
	if err := json.Unmarshal(value, &req); err != nil {
		return worker.Request{}, fmt.Errorf("unmarshal request: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		return worker.Request{}, fmt.Errorf("validate request: %w", err)
	}
	return req, nil
}
