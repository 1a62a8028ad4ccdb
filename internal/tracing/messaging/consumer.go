package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/italoag/wallet-sub007/internal/tracing/tracer"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Handler processes one consumed envelope. The trace context extracted from
// the envelope is active in ctx.
type Handler func(ctx context.Context, env Envelope) error

// Consumer reads event envelopes from the broker, restores trace context and
// runs the handler inside a CONSUMER span. The span is always finished, also
// when the handler fails or panics, so delivery retries never leak spans.
type Consumer struct {
	reader     *kafka.Reader
	propagator *EnvelopePropagator
	tracer     *tracer.Tracer
	handler    Handler
	logger     *zap.Logger
}

func NewConsumer(
	brokers []string,
	topic string,
	groupID string,
	propagator *EnvelopePropagator,
	tr *tracer.Tracer,
	handler Handler,
	logger *zap.Logger,
) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		Topic:       topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    10e3,
		MaxBytes:    10e6,
		MaxWait:     time.Second,
	})
	return &Consumer{
		reader:     r,
		propagator: propagator,
		tracer:     tr,
		handler:    handler,
		logger:     logger,
	}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	defer c.reader.Close()
	c.logger.Info("Starting consumer", zap.String("topic", c.reader.Config().Topic))

	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("Consumer context cancelled, shutting down")
				return ctx.Err()
			}
			c.logger.Error("Failed to read message", zap.Error(err))
			continue
		}
		c.process(ctx, EnvelopeFromMessage(msg))
	}
}

func (c *Consumer) process(ctx context.Context, env Envelope) {
	sctx, span := c.propagator.Extract(ctx, env)
	defer func() {
		if r := recover(); r != nil {
			c.tracer.MarkError(span, fmt.Errorf("panic while handling envelope: %v", r))
			c.logger.Error("Recovered from panic in envelope handler",
				zap.String("event_id", env.ID), zap.Any("panic", r))
		}
		c.tracer.Finish(span)
	}()

	if err := c.handler(sctx, env); err != nil {
		c.tracer.MarkError(span, err)
		c.logger.Error("Envelope handler failed",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err),
		)
	}
}
