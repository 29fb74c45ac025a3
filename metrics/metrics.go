// Package metrics holds the client's prometheus collectors.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mmo_client"

var (
	// ReceivedMessages counts inbound frames by action ("malformed" / "unknown" for rejects).
	ReceivedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "received_messages_total",
		Help:      "Inbound server frames by action.",
	}, []string{"action"})

	ReceivedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "received_bytes_total",
		Help:      "Bytes received from the server.",
	})

	SentCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sent_commands_total",
		Help:      "Commands written to the socket by action.",
	}, []string{"action"})

	DroppedCommands = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dropped_commands_total",
		Help:      "Commands dropped because the connection was not open.",
	}, []string{"action"})

	ConnectAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connect_attempts_total",
		Help:      "Dial attempts, including reconnections.",
	})

	ConnectionState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connection_state",
		Help:      "1 for the current connection state, 0 otherwise.",
	}, []string{"state"})

	DrawPasses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "draw_passes_total",
		Help:      "Frames on which the world was redrawn.",
	})

	SkippedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "skipped_frames_total",
		Help:      "Frames skipped because nothing changed.",
	})

	CulledPlayers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "culled_players_total",
		Help:      "Players skipped by visibility culling.",
	})

	FrameLoads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "frame_loads_total",
		Help:      "Avatar frame decode results.",
	}, []string{"result"})
)

// SetConnectionState marks state as the only active connection state.
func SetConnectionState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

// Serve exposes /metrics on addr until ctx is cancelled. An empty addr disables it.
func Serve(ctx context.Context, addr string, logger *slog.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Starting metrics HTTP server", "address", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Metrics server failed", "error", err)
	}
}
