package tracer

import (
	"time"

	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"go.uber.org/zap"
)

// StartReaper launches the unclosed-span reaper and returns a stop function.
// Spans whose owning operation is abandoned without a Finish (a dead worker,
// a cancelled reactive chain) are finalized and discarded once idle past the
// tracer's timeout, bounding memory. Reaped spans never reach the sampler.
func (t *Tracer) StartReaper() func() {
	interval := t.idleTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				t.reap(t.now())
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

func (t *Tracer) reap(now time.Time) {
	var stale []*model.Span
	t.mu.Lock()
	for span := range t.open {
		if now.Sub(span.LastActivity()) > t.idleTimeout {
			delete(t.open, span)
			stale = append(stale, span)
		}
	}
	t.mu.Unlock()

	for _, span := range stale {
		idle := now.Sub(span.LastActivity())
		span.SetAttribute("span.abandoned", "true")
		span.Finish(now)
		t.logger.Warn("Reaped abandoned span",
			zap.String("trace_id", span.TraceID),
			zap.String("span_id", span.SpanID),
			zap.String("name", span.Name),
			zap.Duration("idle", idle),
		)
	}
}
