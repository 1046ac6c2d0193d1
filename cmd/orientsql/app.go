package main

import (
	"context"
	"fmt"
	"io"

	"github.com/jmoiron/sqlx"
	"github.com/kasuganosora/orientsql/pkg/config"
	"github.com/kasuganosora/orientsql/pkg/export"
	"github.com/kasuganosora/orientsql/pkg/monitor"
	"github.com/kasuganosora/orientsql/pkg/orientdb"
	"github.com/kasuganosora/orientsql/pkg/sqldriver"
)

// app 各子命令共享的连接、日志和监控
type app struct {
	cfg     *config.Config
	logger  orientdb.Logger
	monitor *monitor.Monitor
	db      *sqlx.DB
	out     io.Writer
}

func newApp(cfg *config.Config, out io.Writer) *app {
	logger := cfg.NewLogger()
	mon := monitor.New(cfg.Monitor.SlowQuery.Threshold, cfg.Monitor.SlowQuery.MaxEntries, logger)
	sqlDB := sqldriver.OpenDB(cfg.OrientDB, orientdb.WithLogger(logger), orientdb.WithCommandHook(mon.Hook()))
	return &app{
		cfg:     cfg,
		logger:  logger,
		monitor: mon,
		db:      sqlx.NewDb(sqlDB, sqldriver.DriverName),
		out:     out,
	}
}

func (a *app) options() []orientdb.Option {
	return []orientdb.Option{orientdb.WithLogger(a.logger), orientdb.WithCommandHook(a.monitor.Hook())}
}

func (a *app) Close() error {
	return a.db.Close()
}

// run 执行一条命令并输出结果，写命令输出影响行数
func (a *app) run(ctx context.Context, sql string, args ...interface{}) error {
	route := orientdb.Classify(sql)
	if route.IsBatch() {
		res, err := a.db.ExecContext(ctx, sql, args...)
		if err != nil {
			return err
		}
		if route == orientdb.RouteDDL {
			fmt.Fprintln(a.out, "OK")
			return nil
		}
		n, _ := res.RowsAffected()
		fmt.Fprintf(a.out, "Affected rows: %d\n", n)
		return nil
	}

	rows, err := a.db.QueryxContext(ctx, sql, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	var data [][]interface{}
	for rows.Next() {
		row, err := rows.SliceScan()
		if err != nil {
			return err
		}
		data = append(data, row)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	renderTable(a.out, cols, data)
	return nil
}

// exportTo 执行查询并把结果写到文件
func (a *app) exportTo(ctx context.Context, path, sql string, args ...interface{}) (int, error) {
	conn, err := orientdb.Open(ctx, a.cfg.OrientDB, a.options()...)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	stmt, err := conn.Query(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	rs := stmt.Result()

	var delim rune = ','
	if r := []rune(a.cfg.Export.Delimiter); len(r) == 1 {
		delim = r[0]
	}
	err = export.ToFile(path, rs, export.Options{SheetName: a.cfg.Export.SheetName, Delimiter: delim})
	return rs.Len(), err
}
