package health

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/italoag/wallet-sub007/internal/tracing/export"
	"github.com/italoag/wallet-sub007/internal/tracing/flags"
	"github.com/italoag/wallet-sub007/internal/tracing/metrics"
	"github.com/italoag/wallet-sub007/internal/tracing/sampling"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func CreateRouter(
	exporter *export.ResilientExporter,
	sampler *sampling.Sampler,
	flagStore *flags.Store,
	m *metrics.TracingMetrics,
	logger *zap.Logger,
) http.Handler {
	r := mux.NewRouter()

	r.Handle(
		"/health", StatusHandler(
			exporter,
			sampler,
			flagStore,
			logger,
		),
	).Methods("GET")

	r.Handle(
		"/flags", FlagsHandler(
			flagStore,
			logger,
		),
	).Methods("PUT")

	r.Handle(
		"/metrics", promhttp.HandlerFor(
			m.Registry(),
			promhttp.HandlerOpts{},
		),
	).Methods("GET")

	return r
}
