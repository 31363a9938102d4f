package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dmflow/auth-service/internal/core/domain"
	"github.com/dmflow/auth-service/internal/core/port"
	"github.com/dmflow/auth-service/internal/infra/config"
	"github.com/dmflow/auth-service/internal/infra/logger"
)

const (
	schemaVersion = "1.0"

	// EventOTPRequested asks an out-of-process mailer to deliver a one-time code.
	EventOTPRequested = "auth.otp.requested"
)

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type otpRequestedPayload struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

type messageSender interface {
	Send(ctx context.Context, msg *sarama.ProducerMessage) error
	TopicName(eventType string) string
}

// OTPDeliveryPublisher implements port.EmailSender by publishing delivery requests to Kafka.
// Messages are keyed by recipient so requests for one mailbox stay ordered.
type OTPDeliveryPublisher struct {
	producer messageSender
	logger   *zap.Logger
	appCfg   config.AppSettings
	now      func() time.Time
}

var _ port.EmailSender = (*OTPDeliveryPublisher)(nil)

// NewOTPDeliveryPublisher constructs a Kafka-backed email sender.
func NewOTPDeliveryPublisher(producer *Producer, appCfg config.AppSettings, log *zap.Logger) *OTPDeliveryPublisher {
	return &OTPDeliveryPublisher{producer: producer, appCfg: appCfg, logger: log, now: time.Now}
}

// SendOTP publishes an auth.otp.requested event and waits for the broker acknowledgement.
func (p *OTPDeliveryPublisher) SendOTP(ctx context.Context, to, code, recipientName string) error {
	issuedAt := p.now().UTC()

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if requestID := logger.RequestIDFromContext(ctx); requestID != "" {
		metadata["request_id"] = requestID
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	envelope := eventEnvelope{
		EventID:   uuid.NewString(),
		EventType: EventOTPRequested,
		Timestamp: issuedAt,
		Version:   schemaVersion,
		Payload: otpRequestedPayload{
			Email:     to,
			Name:      recipientName,
			Code:      code,
			ExpiresAt: issuedAt.Add(domain.ChallengeTTL),
		},
		Metadata: metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(EventOTPRequested),
		Key:   sarama.StringEncoder(to),
		Value: sarama.ByteEncoder(bytes),
	}

	if err := p.producer.Send(ctx, message); err != nil {
		return fmt.Errorf("publish %s: %w", EventOTPRequested, err)
	}

	p.logger.Debug("otp delivery requested",
		zap.String("event_id", envelope.EventID),
		zap.String("email", logger.MaskEmail(to)),
	)
	return nil
}
