package sampling

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"go.uber.org/zap"
)

const bufferShards = 64

// TraceGroup is the set of spans collected for one trace, handed to the
// sampler once the trace completed or its window expired.
type TraceGroup struct {
	TraceID   string
	Spans     []*model.Span
	FirstSeen time.Time
	Complete  bool
}

type traceEntry struct {
	firstSeen time.Time
	complete  bool
	spans     []*model.Span
}

type bufferShard struct {
	mu     sync.Mutex
	traces map[string]*traceEntry
}

// TraceBuffer groups finished spans by trace id until a decision can be made
// about the whole trace. The sharded maps are the authoritative store, so a
// span handed to Append is never lost before the decision pass; the ristretto
// cache shadows them for cost accounting only and evicts whole traces when
// the buffer exceeds its span bound. Sharding by trace id keeps concurrently
// finishing spans of different traces off each other's lock.
type TraceBuffer struct {
	cache  *ristretto.Cache
	logger *zap.Logger

	shards [bufferShards]bufferShard

	spanCount atomic.Int64
	evictions atomic.Int64
}

func NewTraceBuffer(maxSpans int64, logger *zap.Logger) (*TraceBuffer, error) {
	b := &TraceBuffer{logger: logger}
	for i := range b.shards {
		b.shards[i].traces = make(map[string]*traceEntry)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxSpans * 10,
		MaxCost:     maxSpans,
		BufferItems: 64,
		OnEvict:     b.onEvict,
	})
	if err != nil {
		return nil, err
	}
	b.cache = cache
	return b, nil
}

func (b *TraceBuffer) shard(traceID string) *bufferShard {
	h := fnv.New32a()
	h.Write([]byte(traceID))
	return &b.shards[h.Sum32()%bufferShards]
}

// Append adds a finished span to its trace group. A root span (no parent)
// marks the trace complete so the next decision pass can evaluate it without
// waiting for the window to expire.
func (b *TraceBuffer) Append(span *model.Span, now time.Time) {
	shard := b.shard(span.TraceID)
	shard.mu.Lock()
	entry, known := shard.traces[span.TraceID]
	if !known {
		entry = &traceEntry{firstSeen: now}
		shard.traces[span.TraceID] = entry
	}
	entry.spans = append(entry.spans, span)
	if span.ParentSpanID == "" {
		entry.complete = true
	}
	cost := int64(len(entry.spans))
	shard.mu.Unlock()

	b.spanCount.Add(1)
	// The cache only mirrors the shard entry for cost accounting. A rejected
	// Set means the trace escapes the cost bound but stays bounded by the
	// decision window, so the return value carries no information we act on.
	b.cache.Set(span.TraceID, span.TraceID, cost)
}

// onEvict drops the trace ristretto chose to evict under memory pressure.
// Traces already drained are no longer in their shard and are not counted.
func (b *TraceBuffer) onEvict(item *ristretto.Item) {
	traceID, ok := item.Value.(string)
	if !ok {
		return
	}
	shard := b.shard(traceID)
	shard.mu.Lock()
	entry, known := shard.traces[traceID]
	if known {
		delete(shard.traces, traceID)
	}
	shard.mu.Unlock()
	if !known {
		return
	}
	b.spanCount.Add(-int64(len(entry.spans)))
	b.evictions.Add(1)
	b.logger.Warn("Trace evicted from buffer before decision",
		zap.String("trace_id", traceID),
		zap.Int("spans", len(entry.spans)),
	)
}

// Drain removes and returns every trace group that is either complete or
// older than the window.
func (b *TraceBuffer) Drain(now time.Time, window time.Duration) []TraceGroup {
	var groups []TraceGroup
	for i := range b.shards {
		shard := &b.shards[i]
		shard.mu.Lock()
		for traceID, entry := range shard.traces {
			if entry.complete || now.Sub(entry.firstSeen) >= window {
				delete(shard.traces, traceID)
				groups = append(groups, TraceGroup{
					TraceID:   traceID,
					Spans:     entry.spans,
					FirstSeen: entry.firstSeen,
					Complete:  entry.complete,
				})
			}
		}
		shard.mu.Unlock()
	}
	for _, group := range groups {
		b.spanCount.Add(-int64(len(group.Spans)))
		b.cache.Del(group.TraceID)
	}
	return groups
}

// Len reports the number of traces currently awaiting a decision.
func (b *TraceBuffer) Len() int {
	total := 0
	for i := range b.shards {
		shard := &b.shards[i]
		shard.mu.Lock()
		total += len(shard.traces)
		shard.mu.Unlock()
	}
	return total
}

// SpanCount reports the number of spans currently buffered.
func (b *TraceBuffer) SpanCount() int64 {
	return b.spanCount.Load()
}

func (b *TraceBuffer) Evictions() int64 {
	return b.evictions.Load()
}

// Wait blocks until pending cache writes are applied.
func (b *TraceBuffer) Wait() {
	b.cache.Wait()
}

func (b *TraceBuffer) Close() {
	b.cache.Close()
}
