package sqldriver

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"io"

	"github.com/kasuganosora/orientsql/pkg/orientdb"
)

// ---------------------------------------------------------------------------
// database/sql/driver implementation over the OrientDB REST adapter
//
//   Driver    → registered as "orientdb", parses the DSN
//   connector → opens one orientdb.Connection per pooled conn
//   conn      → QueryerContext / ExecerContext dispatching to the Connection
//   rows      → wraps a materialized orientdb.ResultSet
//   result    → RowsAffected and LastInsertId (the same number for DML)
//   noopTx    → OrientDB over REST has no transactions
//
// Usage:
//   db, err := sql.Open("orientdb", "orientdb://root:pw@localhost:2480/demo")
// ---------------------------------------------------------------------------

// DriverName is the name the driver registers under.
const DriverName = "orientdb"

func init() {
	sql.Register(DriverName, &Driver{})
}

// Driver implements driver.Driver and driver.DriverContext.
type Driver struct{}

// Open opens a new connection. database/sql prefers OpenConnector.
func (d *Driver) Open(dsn string) (driver.Conn, error) {
	c, err := d.OpenConnector(dsn)
	if err != nil {
		return nil, err
	}
	return c.Connect(context.Background())
}

// OpenConnector parses the DSN once for the whole pool.
func (d *Driver) OpenConnector(dsn string) (driver.Connector, error) {
	cfg, err := ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	return &connector{cfg: cfg, driver: d}, nil
}

// NewConnector creates a connector from an explicit config. Options are passed
// to every orientdb.Open call, e.g. orientdb.WithCommandHook for metrics.
func NewConnector(cfg orientdb.Config, opts ...orientdb.Option) driver.Connector {
	return &connector{cfg: cfg, opts: opts, driver: &Driver{}}
}

// OpenDB is a convenience wrapper around sql.OpenDB(NewConnector(cfg, opts...)).
func OpenDB(cfg orientdb.Config, opts ...orientdb.Option) *sql.DB {
	return sql.OpenDB(NewConnector(cfg, opts...))
}

type connector struct {
	cfg    orientdb.Config
	opts   []orientdb.Option
	driver *Driver
}

func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	oc, err := orientdb.Open(ctx, c.cfg, c.opts...)
	if err != nil {
		if orientdb.IsErrorCode(err, orientdb.ErrCodeIO) {
			return nil, fmt.Errorf("%w: %v", driver.ErrBadConn, err)
		}
		return nil, err
	}
	return &conn{oc: oc}, nil
}

func (c *connector) Driver() driver.Driver {
	return c.driver
}

// conn implements driver.Conn, QueryerContext, ExecerContext, ConnPrepareContext,
// ConnBeginTx and Pinger.
type conn struct {
	oc *orientdb.Connection
}

// Connection exposes the underlying adapter connection, for use with sql.Conn.Raw.
func (c *conn) Connection() *orientdb.Connection {
	return c.oc
}

func (c *conn) Prepare(query string) (driver.Stmt, error) {
	return c.PrepareContext(context.Background(), query)
}

func (c *conn) PrepareContext(_ context.Context, query string) (driver.Stmt, error) {
	st, err := c.oc.Prepare(query)
	if err != nil {
		return nil, err
	}
	return &stmt{conn: c, st: st}, nil
}

func (c *conn) Close() error {
	return c.oc.Close()
}

func (c *conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx accepts any options; the returned transaction does nothing.
func (c *conn) BeginTx(_ context.Context, _ driver.TxOptions) (driver.Tx, error) {
	if err := c.oc.Begin(); err != nil {
		return nil, err
	}
	return &noopTx{oc: c.oc}, nil
}

func (c *conn) Ping(ctx context.Context) error {
	return c.oc.Ping(ctx)
}

func (c *conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	st, err := c.oc.Prepare(query)
	if err != nil {
		return nil, err
	}
	return queryStatement(ctx, st, args)
}

func (c *conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	st, err := c.oc.Prepare(query)
	if err != nil {
		return nil, err
	}
	return execStatement(ctx, c.oc, st, args)
}

// ---------------------------------------------------------------------------
// stmt
// ---------------------------------------------------------------------------

type stmt struct {
	conn *conn
	st   *orientdb.Statement
}

func (s *stmt) Close() error {
	s.st.CloseCursor()
	return nil
}

func (s *stmt) NumInput() int { return s.st.NumInput() }

func (s *stmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.ExecContext(context.Background(), valuesToNamed(args))
}

func (s *stmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.QueryContext(context.Background(), valuesToNamed(args))
}

func (s *stmt) ExecContext(ctx context.Context, args []driver.NamedValue) (driver.Result, error) {
	return execStatement(ctx, s.conn.oc, s.st, args)
}

func (s *stmt) QueryContext(ctx context.Context, args []driver.NamedValue) (driver.Rows, error) {
	return queryStatement(ctx, s.st, args)
}

func queryStatement(ctx context.Context, st *orientdb.Statement, args []driver.NamedValue) (driver.Rows, error) {
	iargs, err := namedValuesToArgs(args)
	if err != nil {
		return nil, err
	}
	if err := st.Execute(ctx, iargs...); err != nil {
		return nil, err
	}
	rs := st.Result()
	return &rows{columns: rs.Columns(), data: rs.Rows()}, nil
}

func execStatement(ctx context.Context, oc *orientdb.Connection, st *orientdb.Statement, args []driver.NamedValue) (driver.Result, error) {
	iargs, err := namedValuesToArgs(args)
	if err != nil {
		return nil, err
	}
	if err := st.Execute(ctx, iargs...); err != nil {
		return nil, err
	}
	res := &result{affected: st.RowCount()}
	if st.Result().IsMutation() {
		res.insertID = oc.LastInsertID()
	}
	return res, nil
}

// ---------------------------------------------------------------------------
// rows
// ---------------------------------------------------------------------------

type rows struct {
	columns []string
	data    [][]interface{}
	index   int
}

func (r *rows) Columns() []string { return r.columns }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
	if r.index >= len(r.data) {
		return io.EOF
	}
	row := r.data[r.index]
	for i := range dest {
		if i < len(row) {
			dest[i] = toDriverValue(row[i])
		}
	}
	r.index++
	return nil
}

// ---------------------------------------------------------------------------
// result / tx
// ---------------------------------------------------------------------------

type result struct {
	affected int64
	insertID int64
}

func (r *result) LastInsertId() (int64, error) { return r.insertID, nil }
func (r *result) RowsAffected() (int64, error) { return r.affected, nil }

type noopTx struct {
	oc *orientdb.Connection
}

func (t *noopTx) Commit() error   { return t.oc.Commit() }
func (t *noopTx) Rollback() error { return t.oc.Rollback() }

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func namedValuesToArgs(named []driver.NamedValue) ([]interface{}, error) {
	args := make([]interface{}, len(named))
	for i, nv := range named {
		if nv.Name != "" {
			return nil, orientdb.NewError(orientdb.ErrCodeNotSupported,
				fmt.Sprintf("named parameter %q is not supported, use ?", nv.Name), nil)
		}
		args[i] = nv.Value
	}
	return args, nil
}

func valuesToNamed(vals []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(vals))
	for i, v := range vals {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

// toDriverValue converts a hydrated JSON value to a driver.Value. Nested
// documents and lists are re-encoded as JSON text.
func toDriverValue(v interface{}) driver.Value {
	switch val := v.(type) {
	case nil, int64, float64, bool, string:
		return val
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return b
	default:
		return fmt.Sprintf("%v", val)
	}
}
