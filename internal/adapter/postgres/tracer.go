package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/streamcave/overlay-api/internal/adapter/metrics"
)

// QueryTracer records per-query latency and failures.
type QueryTracer struct {
	metrics *metrics.DBMetrics
}

var _ pgx.QueryTracer = (*QueryTracer)(nil)

func NewQueryTracer(m *metrics.DBMetrics) *QueryTracer {
	return &QueryTracer{metrics: m}
}

type traceKey struct{}

type traceStart struct {
	at   time.Time
	name string
}

func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, traceKey{}, traceStart{at: time.Now(), name: queryName(data.SQL)})
}

func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(traceKey{}).(traceStart)
	if !ok {
		return
	}
	t.metrics.QueryDuration.WithLabelValues(start.name).Observe(time.Since(start.at).Seconds())
	if data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows) {
		t.metrics.Errors.WithLabelValues(start.name).Inc()
	}
}

// queryName reads a leading "-- name: X" comment, falling back to the
// lower-cased SQL verb so label cardinality stays bounded.
func queryName(sql string) string {
	sql = strings.TrimSpace(sql)
	if rest, ok := strings.CutPrefix(sql, "-- name:"); ok {
		if name, _, _ := strings.Cut(strings.TrimSpace(rest), "\n"); name != "" {
			return strings.TrimSpace(name)
		}
	}
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	verb := strings.ToLower(fields[0])
	if len(verb) > 20 {
		verb = verb[:20]
	}
	return verb
}
