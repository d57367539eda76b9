package editor

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hazyhaar/vedit/kit"
)

var (
	sessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vedit",
		Name:      "sessions_active",
		Help:      "Open editing sessions.",
	})
	commitsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vedit",
		Name:      "commits_total",
		Help:      "Documents committed to session history, by operation.",
	}, []string{"op"})
	rejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vedit",
		Name:      "rejected_total",
		Help:      "Operations rejected without a commit, by operation and reason.",
	}, []string{"op", "reason"})
	historyMovesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vedit",
		Name:      "history_moves_total",
		Help:      "Undo and redo calls that moved the cursor.",
	}, []string{"direction"})
	exportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vedit",
		Name:      "exports_total",
		Help:      "Exports served, by format.",
	}, []string{"format"})
	toolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vedit",
		Name:      "tool_calls_total",
		Help:      "MCP tool calls, by tool and outcome.",
	}, []string{"tool", "status"})
	documentBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vedit",
		Name:      "document_bytes",
		Help:      "Size of committed documents.",
		Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
	})
)

// instrumentTool counts calls of one MCP tool by outcome.
func instrumentTool(name string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			resp, err := next(ctx, req)
			status := "ok"
			if err != nil {
				status = "error"
			}
			toolCallsTotal.WithLabelValues(name, status).Inc()
			return resp, err
		}
	}
}
