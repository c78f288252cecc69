package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pscheid92/waterwatch/internal/metrics"
)

// MetricsTracer implements pgx.QueryTracer to collect database metrics.
type MetricsTracer struct{}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

type queryContextKey struct{}

type queryContext struct {
	startTime time.Time
	queryName string
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryContextKey{}, queryContext{
		startTime: time.Now(),
		queryName: queryName(data.SQL),
	})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	qctx, ok := ctx.Value(queryContextKey{}).(queryContext)
	if !ok {
		return
	}

	metrics.DBQueryDuration.WithLabelValues(qctx.queryName).Observe(time.Since(qctx.startTime).Seconds())
	if data.Err != nil && data.Err != pgx.ErrNoRows {
		metrics.DBErrorsTotal.WithLabelValues(qctx.queryName).Inc()
	}
}

const namePrefix = "-- name: "

// queryName returns the label from a leading "-- name: X" comment. Unnamed
// statements fall back to their first keyword to keep cardinality bounded.
func queryName(sql string) string {
	sql = strings.TrimSpace(sql)
	if rest, ok := strings.CutPrefix(sql, namePrefix); ok {
		name, _, _ := strings.Cut(rest, "\n")
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}

	keyword, _, _ := strings.Cut(sql, " ")
	keyword, _, _ = strings.Cut(keyword, "\n")
	if keyword == "" {
		return "unknown"
	}
	return strings.ToUpper(keyword)
}
