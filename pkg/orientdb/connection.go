package orientdb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"
)

// Option Connection 选项
type Option func(*options)

type options struct {
	logger Logger
	client *http.Client
	hook   CommandHook
}

// WithLogger 设置日志
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient 使用自定义 HTTP 客户端
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) {
		o.client = client
	}
}

// WithCommandHook 每次 REST 调用后回调 hook
func WithCommandHook(hook CommandHook) Option {
	return func(o *options) {
		o.hook = hook
	}
}

// Connection 一个数据库会话，独占一个 Transport
type Connection struct {
	cfg          Config
	transport    *Transport
	logger       Logger
	lastInsertID atomic.Int64
	closed       atomic.Bool
}

// Open 校验配置并完成握手。握手失败时不返回 Connection
func Open(ctx context.Context, cfg Config, opts ...Option) (*Connection, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = NewNoOpLogger()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.ApplyDefaults()

	t := newTransport(&cfg, o.client, o.logger, o.hook)
	if err := t.Handshake(ctx); err != nil {
		t.CloseIdleConnections()
		o.logger.Error("orientdb handshake with %s/%s failed: %v", cfg.Address(), cfg.Database, err)
		return nil, err
	}
	o.logger.Info("orientdb connected to %s/%s", cfg.Address(), cfg.Database)

	return &Connection{
		cfg:       cfg,
		transport: t,
		logger:    o.logger,
	}, nil
}

// Config 返回连接使用的配置（已填充默认值）
func (c *Connection) Config() Config {
	return c.cfg
}

func (c *Connection) checkOpen() error {
	if c.closed.Load() {
		return NewError(ErrCodeClosed, "connection is closed", ErrClosed)
	}
	return nil
}

// Prepare 创建 Statement，query 可以是 table~sentinel 形式
func (c *Connection) Prepare(query string) (*Statement, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	return newStatement(c, query), nil
}

// Query 创建并执行 Statement
func (c *Connection) Query(ctx context.Context, query string, args ...interface{}) (*Statement, error) {
	stmt, err := c.Prepare(query)
	if err != nil {
		return nil, err
	}
	if err := stmt.Execute(ctx, args...); err != nil {
		return nil, err
	}
	return stmt, nil
}

// Exec 直接以 batch 命令发送 sql，返回解码后的响应体
func (c *Connection) Exec(ctx context.Context, sql string) (interface{}, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}
	body, err := c.transport.InvokeBatch(ctx, sql)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, WrapError(err, ErrCodeProtocol, "failed to decode batch response")
	}
	return out, nil
}

// LastInsertID 最近一次 INSERT/UPDATE/DELETE 返回的数字
func (c *Connection) LastInsertID() int64 {
	return c.lastInsertID.Load()
}

// Begin 不提供事务语义，只记录日志
func (c *Connection) Begin() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.logger.Debug("orientdb begin (no-op)")
	return nil
}

// Commit 空操作
func (c *Connection) Commit() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.logger.Debug("orientdb commit (no-op)")
	return nil
}

// Rollback 空操作，之前的写命令不会被撤销
func (c *Connection) Rollback() error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	c.logger.Debug("orientdb rollback (no-op)")
	return nil
}

// Ping 重新握手
func (c *Connection) Ping(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	return c.transport.Handshake(ctx)
}

// Close 关闭连接，之后的调用返回 ErrCodeClosed
func (c *Connection) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.transport.CloseIdleConnections()
	c.logger.Info("orientdb connection to %s/%s closed", c.cfg.Address(), c.cfg.Database)
	return nil
}

// Quote 把值转换为 SQL 字面量。数字原样输出，其余按字符串转义后加单引号
func (c *Connection) Quote(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return quoteString(val)
	case []byte:
		return quoteString(string(val))
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	default:
		return quoteString(fmt.Sprint(v))
	}
}

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	"\x1a", `\Z`,
	`'`, `''`,
)

func quoteString(s string) string {
	return "'" + quoteReplacer.Replace(s) + "'"
}

// run 按路径执行改写后的命令
func (c *Connection) run(ctx context.Context, route RouteKind, command, table string) (*ResultSet, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	switch route {
	case RouteListTables:
		return c.listTables(ctx)
	case RouteListColumns:
		return c.listColumns(ctx, table)
	case RouteListIndexes:
		return c.listIndexes(ctx, table)
	case RouteListForeignKeys:
		return newRowBuilder().build(), nil
	case RouteDDL:
		body, err := c.transport.InvokeBatch(ctx, command)
		if err != nil {
			return nil, err
		}
		if !json.Valid(body) {
			return nil, protocolError("ddl response is not valid JSON", body)
		}
		return newRowBuilder().build(), nil
	case RouteMutation:
		body, err := c.transport.InvokeBatch(ctx, command)
		if err != nil {
			return nil, err
		}
		n, err := decodeCount(body)
		if err != nil {
			return nil, err
		}
		c.lastInsertID.Store(n)
		rs := newRowBuilder().build()
		rs.affected = n
		rs.mutation = true
		return rs, nil
	default:
		body, err := c.transport.Invoke(ctx, ActionQuery, c.querySuffix(command))
		if err != nil {
			return nil, err
		}
		return hydrate(body, command)
	}
}

// querySuffix /sql/{sql}[/{limit}]
func (c *Connection) querySuffix(command string) string {
	suffix := "/sql/" + rawURLEncode(command)
	if c.cfg.QueryLimit != 0 {
		suffix += "/" + strconv.Itoa(c.cfg.QueryLimit)
	}
	return suffix
}
