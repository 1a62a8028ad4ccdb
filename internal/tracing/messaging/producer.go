package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/italoag/wallet-sub007/internal/tracing/flags"
	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"github.com/italoag/wallet-sub007/internal/tracing/tracer"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer publishes event envelopes to the broker with trace context
// injected, wrapping each publish in a PRODUCER span.
type Producer struct {
	writer     *kafka.Writer
	propagator *EnvelopePropagator
	tracer     *tracer.Tracer
	logger     *zap.Logger
}

func NewProducer(
	brokers []string,
	topic string,
	propagator *EnvelopePropagator,
	tr *tracer.Tracer,
	logger *zap.Logger,
) *Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Producer{
		writer:     w,
		propagator: propagator,
		tracer:     tr,
		logger:     logger,
	}
}

// Publish sends one envelope. The producer span is finished before return;
// publish failures are surfaced to the caller and on the span, but tracing
// itself never blocks delivery.
func (p *Producer) Publish(ctx context.Context, env Envelope) error {
	sctx, span := p.tracer.StartSpan(ctx, "publish:"+env.Type, model.SpanKindProducer, flags.Messaging)
	defer p.tracer.Finish(span)
	p.tracer.Tag(span, "messaging.destination", p.writer.Topic)
	p.tracer.Tag(span, "messaging.event_id", env.ID)

	enriched := p.propagator.Inject(sctx, env)
	msg, err := enriched.Message()
	if err != nil {
		p.tracer.MarkError(span, err)
		return fmt.Errorf("failed to serialize envelope %s: %w", env.ID, err)
	}
	if err := p.writer.WriteMessages(sctx, msg); err != nil {
		p.tracer.MarkError(span, err)
		return fmt.Errorf("failed to publish envelope %s: %w", env.ID, err)
	}
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
