package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/italoag/wallet-sub007/internal/tracing/model"
	"go.uber.org/zap"
)

const spanIndexMapping = `{
  "mappings": {
    "properties": {
      "trace_id":       { "type": "keyword" },
      "span_id":        { "type": "keyword" },
      "parent_span_id": { "type": "keyword" },
      "name":           { "type": "keyword" },
      "kind":           { "type": "keyword" },
      "status":         { "type": "keyword" },
      "error_type":     { "type": "keyword" },
      "start_time":     { "type": "date_nanos" },
      "end_time":       { "type": "date_nanos" },
      "attributes":     { "type": "object", "dynamic": true }
    }
  }
}`

// ElasticsearchBackend bulk-indexes spans into a local cluster. It serves as
// the fallback backend, keeping spans queryable while the primary collector
// is unavailable.
type ElasticsearchBackend struct {
	name   string
	es     *elasticsearch.Client
	index  string
	logger *zap.Logger
}

func NewElasticsearchBackend(name string, es *elasticsearch.Client, index string, logger *zap.Logger) *ElasticsearchBackend {
	return &ElasticsearchBackend{
		name:   name,
		es:     es,
		index:  index,
		logger: logger,
	}
}

func (b *ElasticsearchBackend) Name() string {
	return b.name
}

// EnsureIndex creates the span index with its mapping if it does not exist.
func (b *ElasticsearchBackend) EnsureIndex(ctx context.Context) error {
	exists, err := b.es.Indices.Exists([]string{b.index}, b.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index %s: %w", b.index, err)
	}
	defer exists.Body.Close()
	if exists.StatusCode == 200 {
		return nil
	}

	res, err := b.es.Indices.Create(
		b.index,
		b.es.Indices.Create.WithBody(strings.NewReader(spanIndexMapping)),
		b.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index %s: %w", b.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("index creation error for %s: %s", b.index, res.String())
	}
	b.logger.Info("Created span index", zap.String("index", b.index))
	return nil
}

func (b *ElasticsearchBackend) Export(ctx context.Context, spans []*model.Span) error {
	var buf bytes.Buffer
	for _, span := range spans {
		meta := map[string]interface{}{
			"index": map[string]interface{}{
				"_id": span.TraceID + ":" + span.SpanID,
			},
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("error marshaling bulk meta: %w", err)
		}
		buf.Write(metaJSON)
		buf.WriteByte('\n')

		docJSON, err := json.Marshal(span)
		if err != nil {
			return fmt.Errorf("error marshaling span document: %w", err)
		}
		buf.Write(docJSON)
		buf.WriteByte('\n')
	}

	res, err := b.es.Bulk(
		bytes.NewReader(buf.Bytes()),
		b.es.Bulk.WithIndex(b.index),
		b.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to bulk index spans: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("bulk index error: %s", res.String())
	}
	return nil
}
