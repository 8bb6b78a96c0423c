package db

import (
	"cmp"
	"context"
	"database/sql"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/fr0stylo/integrationgw/internal/db/queries"
	"github.com/fr0stylo/integrationgw/internal/observability"
)

const (
	latencyWindow    = 512
	unnamedQueryName = "unknown"
)

// QueryLatency summarizes the most recent samples of one named query.
type QueryLatency struct {
	Name  string        `json:"name"`
	Count int           `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	Max   time.Duration `json:"max"`
}

// latencyRing keeps a bounded window of samples per query name.
type latencyRing struct {
	mu      sync.Mutex
	windows map[string][]time.Duration
}

func newLatencyRing() *latencyRing {
	return &latencyRing{windows: make(map[string][]time.Duration)}
}

func (r *latencyRing) record(name string, took time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	window := append(r.windows[name], took)
	if overflow := len(window) - latencyWindow; overflow > 0 {
		window = slices.Delete(window, 0, overflow)
	}
	r.windows[name] = window
}

// summary orders queries slowest p95 first.
func (r *latencyRing) summary() []QueryLatency {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]QueryLatency, 0, len(r.windows))
	for name, window := range r.windows {
		if len(window) == 0 {
			continue
		}
		sorted := slices.Clone(window)
		slices.Sort(sorted)
		last := len(sorted) - 1
		out = append(out, QueryLatency{
			Name:  name,
			Count: len(sorted),
			P50:   sorted[last/2],
			P95:   sorted[last*95/100],
			Max:   sorted[last],
		})
	}
	slices.SortFunc(out, func(a, b QueryLatency) int {
		if c := cmp.Compare(b.P95, a.P95); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// tracedDBTX wraps the generated query executor with a span and a latency
// sample per call, keyed by the sqlc "-- name:" annotation.
type tracedDBTX struct {
	next queries.DBTX
	ring *latencyRing
}

func newTracedDBTX(next queries.DBTX, ring *latencyRing) queries.DBTX {
	if ring == nil {
		return next
	}
	return &tracedDBTX{next: next, ring: ring}
}

func measure[T any](ctx context.Context, d *tracedDBTX, query, op string, call func(context.Context) (T, error)) (T, error) {
	name := annotatedName(query)
	ctx, span := observability.StartDBSpan(ctx, name, op)
	defer span.End()

	started := time.Now()
	out, err := call(ctx)
	d.ring.record(name, time.Since(started))
	if err != nil {
		span.RecordError(err)
	}
	return out, err
}

func (d *tracedDBTX) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return measure(ctx, d, query, "exec", func(ctx context.Context) (sql.Result, error) {
		return d.next.ExecContext(ctx, query, args...)
	})
}

func (d *tracedDBTX) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return measure(ctx, d, query, "prepare", func(ctx context.Context) (*sql.Stmt, error) {
		return d.next.PrepareContext(ctx, query)
	})
}

func (d *tracedDBTX) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return measure(ctx, d, query, "query", func(ctx context.Context) (*sql.Rows, error) {
		return d.next.QueryContext(ctx, query, args...)
	})
}

func (d *tracedDBTX) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	row, _ := measure(ctx, d, query, "query_row", func(ctx context.Context) (*sql.Row, error) {
		return d.next.QueryRowContext(ctx, query, args...), nil
	})
	return row
}

// annotatedName extracts Name from a leading "-- name: Name :one" line.
func annotatedName(query string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(query), "\n")
	fields := strings.Fields(first)
	if len(fields) < 3 || fields[0] != "--" || fields[1] != "name:" {
		return unnamedQueryName
	}
	return fields[2]
}
