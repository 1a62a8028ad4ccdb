package health

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/italoag/wallet-sub007/internal/tracing/export"
	"github.com/italoag/wallet-sub007/internal/tracing/flags"
	"github.com/italoag/wallet-sub007/internal/tracing/sampling"
	"go.uber.org/zap"
)

// StatusDTO is the document served on /health: exporter circuit state and
// per-backend counts, sampler counters and the active feature-flag set.
type StatusDTO struct {
	Exporter export.Health          `json:"exporter"`
	Sampler  sampling.SamplerCounts `json:"sampler"`
	Features flags.Flags            `json:"features"`
}

// StatusHandler reports the pipeline's current health for external
// monitoring.
func StatusHandler(
	exporter *export.ResilientExporter,
	sampler *sampling.Sampler,
	flagStore *flags.Store,
	logger *zap.Logger,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res := StatusDTO{
			Exporter: exporter.Health(),
			Sampler:  sampler.Counts(),
			Features: flagStore.Snapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(res); err != nil {
			logger.Error("Error encountered when encoding health response", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}

// FlagsHandler replaces the active feature-flag set. The request body is the
// full flag document; the swap is atomic so readers never observe a partial
// update.
func FlagsHandler(flagStore *flags.Store, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		next := flagStore.Snapshot()
		err := json.NewDecoder(r.Body).Decode(&next)
		defer func(body io.ReadCloser) {
			if err := body.Close(); err != nil {
				logger.Error("Error encountered when closing request body", zap.Error(err))
			}
		}(r.Body)
		if err != nil {
			logger.Error("Error encountered when decoding flag payload", zap.Error(err))
			http.Error(w, "Invalid request payload", http.StatusBadRequest)
			return
		}
		flagStore.Refresh(next)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(flagStore.Snapshot()); err != nil {
			logger.Error("Error encountered when encoding flag response", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
