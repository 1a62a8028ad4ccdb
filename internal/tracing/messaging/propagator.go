package messaging

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/italoag/wallet-sub007/internal/tracing/flags"
	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"github.com/italoag/wallet-sub007/internal/tracing/tracer"
	"go.uber.org/zap"
)

// Envelope extension attribute names. These are wire-visible and must match
// the W3C Trace Context v00 format exactly for interoperability.
const (
	ExtensionTraceparent   = "traceparent"
	ExtensionSendTimestamp = "sendtimestamp"

	w3cVersion     = "00"
	flagSampled    = "01"
	flagNotSampled = "00"
)

// EnvelopePropagator makes producer and consumer spans part of one trace
// across an at-least-once broker by carrying W3C trace context in envelope
// extension attributes.
type EnvelopePropagator struct {
	tracer *tracer.Tracer
	logger *zap.Logger
	now    func() time.Time
}

func NewEnvelopePropagator(tr *tracer.Tracer, logger *zap.Logger) *EnvelopePropagator {
	return &EnvelopePropagator{
		tracer: tr,
		logger: logger,
		now:    time.Now,
	}
}

// Inject returns a copy of the envelope enriched with the current trace
// context as a traceparent extension plus a millisecond send timestamp for
// consumer lag measurement. With no active span the envelope is returned
// unchanged: continuity breaks, delivery does not.
func (p *EnvelopePropagator) Inject(ctx context.Context, env Envelope) Envelope {
	span := tracer.SpanFromContext(ctx)
	if span == nil {
		p.logger.Warn("No active span when injecting trace context, envelope sent without it",
			zap.String("event_type", env.Type))
		return env
	}
	spanCtx := span.Context()
	sampledFlag := flagNotSampled
	if spanCtx.Sampled {
		sampledFlag = flagSampled
	}
	out := env.Clone()
	out.Extensions[ExtensionTraceparent] = fmt.Sprintf(
		"%s-%s-%s-%s", w3cVersion, spanCtx.TraceID, spanCtx.SpanID, sampledFlag)
	out.Extensions[ExtensionSendTimestamp] = strconv.FormatInt(p.now().UnixMilli(), 10)

	p.logger.Debug("Injected trace context into envelope",
		zap.String("event_type", env.Type),
		zap.String("trace_id", spanCtx.TraceID),
		zap.String("span_id", spanCtx.SpanID),
	)
	return out
}

// Extract parses the traceparent extension and starts a CONSUMER span linked
// to the producer span. Missing or malformed context degrades to a new root
// span: extraction never aborts message processing. The caller owns the
// returned span and must finish it, error-tagged, even when handling fails.
func (p *EnvelopePropagator) Extract(ctx context.Context, env Envelope) (context.Context, *model.Span) {
	name := "consume:" + env.Type

	raw, ok := env.Extension(ExtensionTraceparent)
	if !ok {
		p.logger.Info("No traceparent in envelope, starting new root trace",
			zap.String("event_type", env.Type), zap.String("event_id", env.ID))
		return p.tracer.StartSpanWithRemoteParent(ctx, name, model.SpanKindConsumer, flags.Messaging, model.TraceContext{})
	}

	remote, reason := parseTraceparent(raw)
	switch reason {
	case parseOK:
		sctx, span := p.tracer.StartSpanWithRemoteParent(ctx, name, model.SpanKindConsumer, flags.Messaging, remote)
		p.attachConsumerLag(span, env)
		return sctx, span
	case parseMalformed, parseUnsupportedVersion:
		p.logger.Warn("Malformed traceparent in envelope, starting new root trace",
			zap.String("event_type", env.Type),
			zap.String("event_id", env.ID),
			zap.String("traceparent", raw),
			zap.String("reason", string(reason)),
		)
	default:
		p.logger.Error("Failed to extract trace context from envelope, starting new root trace",
			zap.String("event_type", env.Type),
			zap.String("event_id", env.ID),
			zap.String("traceparent", raw),
			zap.String("reason", string(reason)),
		)
	}
	return p.tracer.StartSpanWithRemoteParent(ctx, name, model.SpanKindConsumer, flags.Messaging, model.TraceContext{})
}

// attachConsumerLag records receive-minus-send delay in milliseconds.
// Skipped silently when the timestamp is absent or unparsable.
func (p *EnvelopePropagator) attachConsumerLag(span *model.Span, env Envelope) {
	if span == nil {
		return
	}
	raw, ok := env.Extension(ExtensionSendTimestamp)
	if !ok {
		return
	}
	sent, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return
	}
	lag := p.now().UnixMilli() - sent
	span.SetAttribute("messaging.consumer_lag_ms", strconv.FormatInt(lag, 10))
}

type parseReason string

const (
	parseOK                 parseReason = "ok"
	parseMalformed          parseReason = "malformed"
	parseUnsupportedVersion parseReason = "unsupported_version"
	parseBadIdentifiers     parseReason = "bad_identifiers"
)

// parseTraceparent validates the W3C v00 wire format:
// 00-{32 hex trace id}-{16 hex span id}-{01|00}.
func parseTraceparent(raw string) (model.TraceContext, parseReason) {
	parts := strings.Split(raw, "-")
	if len(parts) != 4 {
		return model.TraceContext{}, parseMalformed
	}
	if parts[0] != w3cVersion {
		return model.TraceContext{}, parseUnsupportedVersion
	}
	traceID, spanID, fl := parts[1], parts[2], parts[3]
	if len(traceID) != 32 || len(spanID) != 16 || len(fl) != 2 {
		return model.TraceContext{}, parseBadIdentifiers
	}
	if _, err := hex.DecodeString(traceID); err != nil {
		return model.TraceContext{}, parseBadIdentifiers
	}
	if _, err := hex.DecodeString(spanID); err != nil {
		return model.TraceContext{}, parseBadIdentifiers
	}
	return model.TraceContext{
		TraceID: traceID,
		SpanID:  spanID,
		Sampled: fl == flagSampled,
	}, parseOK
}
