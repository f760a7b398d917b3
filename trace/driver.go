package trace

import (
	"context"
	"database/sql/driver"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/feedpilot/kit"
)

// Driver wraps another driver and traces the statements run on its
// connections. Statements go through Prepare, so every Exec and Query is
// seen once.
type Driver struct {
	driver.Driver
}

// Open opens a traced connection.
func (d *Driver) Open(name string) (driver.Conn, error) {
	c, err := d.Driver.Open(name)
	if err != nil {
		return nil, err
	}
	return &conn{Conn: c}, nil
}

type conn struct {
	driver.Conn
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	var (
		st  driver.Stmt
		err error
	)
	if pc, ok := c.Conn.(driver.ConnPrepareContext); ok {
		st, err = pc.PrepareContext(ctx, query)
	} else {
		st, err = c.Conn.Prepare(query)
	}
	if err != nil {
		record(ctx, query, "Prepare", 0, err)
		return nil, err
	}
	return &stmt{Stmt: st, query: query}, nil
}

func (c *conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if bt, ok := c.Conn.(driver.ConnBeginTx); ok {
		return bt.BeginTx(ctx, opts)
	}
	return c.Conn.Begin()
}

type stmt struct {
	driver.Stmt
	query string
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	start := time.Now()
	var (
		res driver.Result
		err error
	)
	if ec, ok := s.Stmt.(driver.StmtExecContext); ok {
		res, err = ec.ExecContext(ctx, args)
	} else {
		res, err = s.Stmt.Exec(values(args))
	}
	record(ctx, s.query, "Exec", time.Since(start), err)
	return res, err
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	start := time.Now()
	var (
		rows driver.Rows
		err  error
	)
	if qc, ok := s.Stmt.(driver.StmtQueryContext); ok {
		rows, err = qc.QueryContext(ctx, args)
	} else {
		rows, err = s.Stmt.Query(values(args))
	}
	record(ctx, s.query, "Query", time.Since(start), err)
	return rows, err
}

func record(ctx context.Context, query, op string, d time.Duration, err error) {
	log, threshold := settings()

	// The settings watcher polls every few hundred milliseconds.
	if err == nil && d < threshold && isPoll(query) {
		return
	}

	level := slog.LevelDebug
	switch {
	case err != nil:
		level = slog.LevelError
	case d >= threshold:
		level = slog.LevelWarn
	}
	if !log.Enabled(ctx, level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("op", op),
		slog.String("query", compact(query)),
		slog.Duration("duration", d),
	}
	if id := kit.GetEngineID(ctx); id != "" {
		attrs = append(attrs, slog.String("engine", id))
	}
	if id := kit.GetPassID(ctx); id != "" {
		attrs = append(attrs, slog.String("pass", id))
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	log.LogAttrs(ctx, level, "trace: sql", attrs...)
}

func isPoll(query string) bool {
	q := strings.TrimSpace(query)
	return strings.HasPrefix(q, "PRAGMA ") || strings.HasPrefix(q, "SELECT COALESCE(MAX(updated_at)")
}

// compact folds the whitespace of multi-line statements.
func compact(query string) string {
	return strings.Join(strings.Fields(query), " ")
}

func values(named []driver.NamedValue) []driver.Value {
	out := make([]driver.Value, len(named))
	for i, nv := range named {
		out[i] = nv.Value
	}
	return out
}
