package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/dmflow/auth-service/internal/infra/config"
)

// ErrProducerClosed is returned by Send after Close.
var ErrProducerClosed = errors.New("kafka: producer closed")

// Producer wraps Sarama AsyncProducer and reports per-message acknowledgements to Send callers.
type Producer struct {
	producer sarama.AsyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
	done     chan struct{}
}

// NewProducer initializes the Kafka async producer and its acknowledgement loop.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0

	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Flush.Frequency = 50 * time.Millisecond
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	p := newProducer(producer, cfg, logger)

	logger.Info("kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return p, nil
}

func newProducer(producer sarama.AsyncProducer, cfg config.KafkaSettings, logger *zap.Logger) *Producer {
	p := &Producer{
		producer: producer,
		logger:   logger,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	go p.handleResults()
	return p
}

// handleResults routes success and error notifications back to the waiting Send call.
func (p *Producer) handleResults() {
	for {
		select {
		case msg, ok := <-p.producer.Successes():
			if !ok {
				return
			}
			acknowledge(msg, nil)
		case perr, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			if perr == nil {
				continue
			}
			p.logger.Error("kafka producer error",
				zap.Error(perr.Err),
				zap.String("topic", perr.Msg.Topic),
			)
			acknowledge(perr.Msg, perr.Err)
		case <-p.done:
			return
		}
	}
}

func acknowledge(msg *sarama.ProducerMessage, err error) {
	if msg == nil {
		return
	}
	if ack, ok := msg.Metadata.(chan error); ok {
		ack <- err
	}
}

// Send enqueues msg and blocks until the broker acknowledges it, the producer fails it,
// or ctx ends.
func (p *Producer) Send(ctx context.Context, msg *sarama.ProducerMessage) error {
	ack := make(chan error, 1)
	msg.Metadata = ack

	select {
	case p.producer.Input() <- msg:
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrProducerClosed
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return ErrProducerClosed
	}
}

// Close gracefully closes the producer and waits for pending messages
func (p *Producer) Close() error {
	p.logger.Info("closing kafka producer")
	close(p.done)

	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName returns the full topic name with prefix
func (p *Producer) TopicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}

	prefix := fmt.Sprintf("%s.", p.cfg.TopicPrefix)
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}

	return fmt.Sprintf("%s%s", prefix, eventType)
}
