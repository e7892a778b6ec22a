package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/models"
	"github.com/akylbek/taskmarket/escrow-orchestrator/internal/telemetry"
)

const PaymentStateTopic = "payment.state.changed"

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer MessageWriter
}

func NewKafkaPublisher(brokers string) (*KafkaPublisher, error) {
	var addrs []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("kafka publisher requires at least one broker")
	}
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        PaymentStateTopic,
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}), nil
}

func NewKafkaPublisherWithWriter(writer MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

// PublishPaymentEvent writes the event keyed by payment id so one payment's events stay ordered.
func (p *KafkaPublisher) PublishPaymentEvent(ctx context.Context, event models.PaymentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.PaymentID),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher only logs events. Used when no broker is configured.
type LogPublisher struct{}

func (LogPublisher) PublishPaymentEvent(_ context.Context, event models.PaymentEvent) error {
	telemetry.Logger.Info("Payment event",
		zap.String("payment_id", event.PaymentID),
		zap.String("status", string(event.Status)),
		zap.String("previous_status", string(event.PreviousStatus)),
	)
	return nil
}
