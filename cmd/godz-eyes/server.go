package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Godz-Eyes/godz-eyes-bot/internal/metrics"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/pipeline"
	"github.com/Godz-Eyes/godz-eyes-bot/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultRecentAlerts = 20
	maxRecentAlerts     = 200
)

type healthSource interface {
	Chain() string
	Health() *pipeline.PollerHealth
}

// newStatusHandler serves /healthz, /status, /alerts and /metrics. history
// may be nil, in which case /alerts answers 404.
func newStatusHandler(pipelines []healthSource, history store.AlertHistory, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		for _, p := range pipelines {
			if p.Health().Status() == pipeline.HealthStatusUnhealthy {
				http.Error(w, "unhealthy: "+p.Chain(), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		snaps := make([]pipeline.HealthSnapshot, 0, len(pipelines))
		for _, p := range pipelines {
			snaps = append(snaps, p.Health().Snapshot())
		}
		writeJSON(w, snaps, logger)
	})

	mux.HandleFunc("/alerts", func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			http.Error(w, "alert history disabled", http.StatusNotFound)
			return
		}
		limit := defaultRecentAlerts
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = min(n, maxRecentAlerts)
		}
		recs, err := history.Recent(r.Context(), limit)
		if err != nil {
			logger.Warn("failed to read alert history", "error", err)
			http.Error(w, "alert history unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, recs, logger)
	})

	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to write json response", "error", err)
	}
}

func runHealthServer(ctx context.Context, port int, handler http.Handler, logger *slog.Logger) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}

type dbStatsProvider interface {
	Stats() sql.DBStats
}

type dbPoolStatsGauges struct {
	open  *prometheus.GaugeVec
	inUse *prometheus.GaugeVec
	idle  *prometheus.GaugeVec
}

func collectDBPoolStats(db dbStatsProvider, chain string, gauges dbPoolStatsGauges) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("db pool stats collection panicked: %v", r)
		}
	}()
	if db == nil {
		return fmt.Errorf("db stats provider is nil")
	}

	stats := db.Stats()
	gauges.open.WithLabelValues(chain).Set(float64(stats.OpenConnections))
	gauges.inUse.WithLabelValues(chain).Set(float64(stats.InUse))
	gauges.idle.WithLabelValues(chain).Set(float64(stats.Idle))
	return nil
}

func startDBPoolStatsPump(ctx context.Context, db dbStatsProvider, chain string, interval time.Duration, logger *slog.Logger) {
	if db == nil || interval <= 0 {
		return
	}

	gauges := dbPoolStatsGauges{
		open:  metrics.DBPoolOpen,
		inUse: metrics.DBPoolInUse,
		idle:  metrics.DBPoolIdle,
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		if err := collectDBPoolStats(db, chain, gauges); err != nil {
			logger.Warn("failed to collect initial db pool stats", "error", err)
		}

		for {
			select {
			case <-ctx.Done():
				logger.Info("db pool stats sampler stopped", "cause", "context_done")
				return
			case <-ticker.C:
				if err := collectDBPoolStats(db, chain, gauges); err != nil {
					logger.Warn("failed to collect db pool stats", "error", err)
				}
			}
		}
	}()
}
