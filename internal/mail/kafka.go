package mail

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

const (
	kindVerification  = "verification"
	kindResetPassword = "reset_password"
)

// envelope wraps a mail job with its kind so one topic serves both mails.
type envelope struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// KafkaProducer implements Producer using segmentio/kafka-go.
type KafkaProducer struct {
	writer *kafka.Writer
	log    zerolog.Logger
}

// NewKafkaProducer creates a Kafka producer that writes mail jobs to the given
// topic. Returns nil when brokers or topic are unset, and the nil producer is
// safe to use: mail sending silently becomes a no-op. Call Close when
// shutting down.
func NewKafkaProducer(brokers []string, topic string, log zerolog.Logger) *KafkaProducer {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaProducer{writer: writer, log: log}
}

// SendVerification publishes a verification mail job keyed by recipient.
func (p *KafkaProducer) SendVerification(ctx context.Context, m *VerificationMail) error {
	if p == nil || p.writer == nil || m == nil {
		return nil
	}
	return p.emit(ctx, m.Email, envelope{Kind: kindVerification, Payload: m})
}

// SendResetPassword publishes a reset password mail job keyed by recipient.
func (p *KafkaProducer) SendResetPassword(ctx context.Context, m *ResetPasswordMail) error {
	if p == nil || p.writer == nil || m == nil {
		return nil
	}
	return p.emit(ctx, m.Email, envelope{Kind: kindResetPassword, Payload: m})
}

// emit serializes the envelope as JSON and writes it to the Kafka topic.
// Uses the request context with a short timeout so slow Kafka does not block callers indefinitely.
func (p *KafkaProducer) emit(ctx context.Context, key string, env envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
	})
	if err != nil {
		p.log.Error().Err(err).Str("kind", env.Kind).Msg("mail job publish failed")
		return err
	}
	return nil
}

// Close closes the Kafka writer. Safe to call multiple times.
func (p *KafkaProducer) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
