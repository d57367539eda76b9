// Package trace registers a "sqlite-trace" database/sql driver that wraps
// modernc.org/sqlite and reports every Exec and Query through slog and a
// Prometheus histogram. Open a database with dbopen.WithDriver(DriverName)
// to trace it; statements are correlated with the session and request IDs
// carried by the context (see kit).
package trace

import (
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	sqlite "modernc.org/sqlite"
)

// DriverName is the name the tracing driver is registered under.
const DriverName = "sqlite-trace"

// SlowThreshold is the duration above which statements log at Warn.
var SlowThreshold = 100 * time.Millisecond

var queryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "vedit_sql_duration_seconds",
	Help:    "Duration of SQL statements on traced databases.",
	Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
}, []string{"op", "status"})

func init() {
	sql.Register(DriverName, &Driver{Driver: &sqlite.Driver{}})
}
