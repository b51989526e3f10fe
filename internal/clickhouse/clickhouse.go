package clickhouse

import (
	"context"

	clickhouse_go "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/flexprice/invoicer/internal/config"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/sentry"
	sentrygo "github.com/getsentry/sentry-go"
)

// ClickHouseStore holds the connection to the raw usage database
type ClickHouseStore struct {
	conn   driver.Conn
	sentry *sentry.Service
}

func NewClickHouseStore(config *config.Configuration, sentryService *sentry.Service) (*ClickHouseStore, error) {
	conn, err := clickhouse_go.Open(config.ClickHouse.GetClientOptions())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to initialise clickhouse client").
			Mark(ierr.ErrDatabase)
	}

	return NewStoreFromConn(conn, sentryService), nil
}

// NewStoreFromConn wraps an open connection
func NewStoreFromConn(conn driver.Conn, sentryService *sentry.Service) *ClickHouseStore {
	return &ClickHouseStore{conn: conn, sentry: sentryService}
}

// GetConn returns a connection that traces every query in Sentry
func (s *ClickHouseStore) GetConn() driver.Conn {
	return &tracedConn{Conn: s.conn, sentry: s.sentry}
}

func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}

// tracedConn opens a span around the data carrying calls and delegates the
// rest to the embedded connection.
type tracedConn struct {
	driver.Conn
	sentry *sentry.Service
}

func (tc *tracedConn) span(ctx context.Context, operation, query string, args int) (*sentrygo.Span, context.Context) {
	return tc.sentry.StartClickHouseSpan(ctx, operation, map[string]interface{}{
		"query":      truncateQuery(query),
		"args_count": args,
	})
}

func finish(span *sentrygo.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.Status = sentrygo.SpanStatusInternalError
		span.SetData("error", err.Error())
	}
	span.Finish()
}

func (tc *tracedConn) Select(ctx context.Context, dest any, query string, args ...any) error {
	span, ctx := tc.span(ctx, "clickhouse.select", query, len(args))
	err := tc.Conn.Select(ctx, dest, query, args...)
	finish(span, err)
	return err
}

func (tc *tracedConn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	span, ctx := tc.span(ctx, "clickhouse.query", query, len(args))
	rows, err := tc.Conn.Query(ctx, query, args...)
	finish(span, err)
	return rows, err
}

func (tc *tracedConn) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	span, ctx := tc.span(ctx, "clickhouse.query_row", query, len(args))
	row := tc.Conn.QueryRow(ctx, query, args...)
	finish(span, row.Err())
	return row
}

func (tc *tracedConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	span, ctx := tc.span(ctx, "clickhouse.prepare_batch", query, 0)
	batch, err := tc.Conn.PrepareBatch(ctx, query, opts...)
	finish(span, err)
	return batch, err
}

func (tc *tracedConn) Exec(ctx context.Context, query string, args ...any) error {
	span, ctx := tc.span(ctx, "clickhouse.exec", query, len(args))
	err := tc.Conn.Exec(ctx, query, args...)
	finish(span, err)
	return err
}

// Truncate query to avoid sending too much data to Sentry
func truncateQuery(query string) string {
	const maxQueryLength = 1000
	if len(query) > maxQueryLength {
		return query[:maxQueryLength] + "..."
	}
	return query
}
