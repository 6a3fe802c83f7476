// Package poller clears carts when checkout-completed events arrive on Kafka.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	minRetryDelay = 100 * time.Millisecond
	maxRetryDelay = 5 * time.Second
)

// MessageReader is the subset of *kafka.Reader the poller needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type CartClearer interface {
	ClearCart(ctx context.Context, userID string) (*domain.CartView, error)
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

func NewKafkaReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MaxBytes: 10e6, // 10MB
	})
}

// checkoutEvent is the part of a checkout-outbox record the cart cares about.
type checkoutEvent struct {
	CheckoutID string `json:"checkout_id"`
	UserID     string `json:"user_id"`
}

var errMalformed = errors.New("malformed checkout event")

type Poller struct {
	carts  CartClearer
	reader MessageReader
	log    *zap.Logger
}

func NewPoller(carts CartClearer, reader MessageReader, log *zap.Logger) *Poller {
	return &Poller{
		carts:  carts,
		reader: reader,
		log:    log.With(zap.String("component", "checkout-poller")),
	}
}

// Run consumes until ctx is done. A message is committed once its cart is
// cleared or it is found to be malformed; clearing is retried while the
// cart store is failing.
func (p *Poller) Run(ctx context.Context) {
	for {
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Error("error reading message", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		if err := p.handleWithRetry(ctx, m); err != nil {
			// only ctx cancellation ends up here; the message is redelivered
			return
		}

		if err := p.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			p.log.Error("error committing message",
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", zap.Error(err))
	}
}

func (p *Poller) handleWithRetry(ctx context.Context, m kafka.Message) error {
	delay := minRetryDelay
	for {
		err := p.handle(ctx, m)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errMalformed):
			p.log.Warn("skipping message",
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		}

		p.log.Error("failed to clear cart, retrying",
			zap.Int64("offset", m.Offset),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		if !sleep(ctx, delay) {
			return ctx.Err()
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	event, err := parseEvent(m.Value)
	if err != nil {
		return err
	}

	if _, err := p.carts.ClearCart(ctx, event.UserID); err != nil {
		return fmt.Errorf("clear cart of %s: %w", event.UserID, err)
	}

	p.log.Info("cart cleared after checkout",
		zap.String("user_id", event.UserID),
		zap.String("checkout_id", event.CheckoutID))
	return nil
}

func parseEvent(value []byte) (checkoutEvent, error) {
	var event checkoutEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return checkoutEvent{}, fmt.Errorf("%w: %v", errMalformed, err)
	}
	event.UserID = strings.TrimSpace(event.UserID)
	if event.UserID == "" {
		return checkoutEvent{}, fmt.Errorf("%w: missing user_id", errMalformed)
	}
	return event, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
