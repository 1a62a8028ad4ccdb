package export

import (
	"context"

	"github.com/italoag/wallet-sub007/internal/tracing/model"
)

// SpanExporter delivers a batch of completed, sampled, scrubbed spans to one
// backend. Implementations must respect ctx deadlines: the export path is
// bounded so it can never stall the instrumented application.
type SpanExporter interface {
	// Export delivers the spans or returns an error describing why not.
	Export(ctx context.Context, spans []*model.Span) error
	// Name identifies the backend in logs and metrics.
	Name() string
}
