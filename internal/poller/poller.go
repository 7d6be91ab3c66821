package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/events"
	"github.com/fjod/storefront/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Reader is the subset of *kafka.Reader the poller needs.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Confirmer finalizes an order once the provider reports it paid.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, orderID string) error
}

// PaymentEvent is the payload published on the payment events topic.
type PaymentEvent struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

var ErrMalformedEvent = errors.New("malformed payment event")

const notificationTTL = 3 * time.Second

// PaymentPoller consumes payment events and reconciles pending orders.
type PaymentPoller struct {
	reader    Reader
	confirmer Confirmer
	bus       *events.Bus
	logger    *zap.Logger
}

func NewPaymentPoller(reader Reader, confirmer Confirmer, bus *events.Bus, logger *zap.Logger) *PaymentPoller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentPoller{reader: reader, confirmer: confirmer, bus: bus, logger: logger}
}

// NewKafkaReader builds a consumer-group reader for topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
}

// Run blocks until ctx is cancelled.
func (p *PaymentPoller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		p.next(ctx)
	}
}

func (p *PaymentPoller) Close() {
	if err := p.reader.Close(); err != nil {
		p.logger.Error("error closing reader", zap.Error(err))
	}
}

func (p *PaymentPoller) next(ctx context.Context) {
	m, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("error reading message", zap.Error(err))
		}
		return
	}

	if err := p.Handle(ctx, m.Value); err != nil {
		p.logger.Warn("payment event not applied",
			zap.String("topic", m.Topic),
			zap.Int64("offset", m.Offset),
			zap.Error(err))
	}

	if err := p.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		p.logger.Error("failed to commit message", zap.Error(err))
	}
}

// Handle applies one payment event. Unknown orders and statuses are not
// errors for the stream: they belong to another storefront instance.
func (p *PaymentPoller) Handle(ctx context.Context, value []byte) error {
	var ev PaymentEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	ev.OrderID = strings.TrimSpace(ev.OrderID)
	if ev.OrderID == "" {
		return fmt.Errorf("%w: missing order_id", ErrMalformedEvent)
	}

	switch strings.ToLower(strings.TrimSpace(ev.Status)) {
	case "paid", "success", "succeeded", "completed":
		err := p.confirmer.ConfirmPayment(ctx, ev.OrderID)
		if errors.Is(err, orders.ErrOrderNotFound) {
			p.logger.Debug("payment for unknown order", zap.String("order_id", ev.OrderID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("confirm %s: %w", ev.OrderID, err)
		}
		p.logger.Info("payment confirmed", zap.String("order_id", ev.OrderID))
	case "failed", "cancelled", "canceled":
		p.logger.Info("payment failed", zap.String("order_id", ev.OrderID), zap.String("status", ev.Status))
		p.bus.Emit(events.Notification{
			Level:   events.LevelError,
			Message: fmt.Sprintf("❌ Le paiement de la commande %s a échoué", ev.OrderID),
			TTL:     notificationTTL,
		})
	default:
		p.logger.Debug("ignoring payment status", zap.String("order_id", ev.OrderID), zap.String("status", ev.Status))
	}
	return nil
}
