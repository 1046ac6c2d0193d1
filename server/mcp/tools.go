package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/kasuganosora/orientsql/pkg/monitor"
	"github.com/kasuganosora/orientsql/pkg/orientdb"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	cacheKindTables  = "tables"
	cacheKindColumns = "columns"
	cacheKindIndexes = "indexes"
)

// ToolDeps holds shared dependencies for MCP tool handlers
type ToolDeps struct {
	DB       *sqlx.DB
	Database string
	MaxRows  int
	Cache    *monitor.MetadataCache
	Monitor  *monitor.Monitor
	Logger   orientdb.Logger
}

// table is a materialized result rendered as tab separated text
type table struct {
	columns   []string
	rows      [][]interface{}
	truncated bool
}

func (t *table) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(t.columns, "\t"))
	sb.WriteString("\n")
	for _, row := range t.rows {
		vals := make([]string, len(row))
		for i, v := range row {
			vals[i] = formatValue(v)
		}
		sb.WriteString(strings.Join(vals, "\t"))
		sb.WriteString("\n")
	}
	if t.truncated {
		fmt.Fprintf(&sb, "\n(truncated at %d rows)", len(t.rows))
	} else {
		fmt.Fprintf(&sb, "\n(%d rows)", len(t.rows))
	}
	return sb.String()
}

// HandleQuery executes one SQL command. Writes and DDL go through Exec,
// everything else through Query.
func (d *ToolDeps) HandleQuery(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sql := request.GetString("sql", "")
	if strings.TrimSpace(sql) == "" {
		return mcp.NewToolResultError("sql parameter is required"), nil
	}
	args, err := toolArgs(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	start := time.Now()
	// 改写不会改变首个关键字，按原始文本分类与驱动按改写后文本分类结果一致
	route := orientdb.Classify(sql)

	if route.IsBatch() {
		res, err := d.DB.ExecContext(ctx, sql, args...)
		if err != nil {
			d.logToolCall("query", start, err)
			return mcp.NewToolResultError(fmt.Sprintf("execute failed: %v", err)), nil
		}
		if route == orientdb.RouteDDL && d.Cache != nil {
			d.Cache.InvalidateDatabase(d.Database)
		}
		affected, _ := res.RowsAffected()
		d.logToolCall("query", start, nil)
		if route == orientdb.RouteDDL {
			return mcp.NewToolResultText("OK"), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Affected rows: %d", affected)), nil
	}

	tbl, err := d.query(ctx, sql, args...)
	if err != nil {
		d.logToolCall("query", start, err)
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	d.logToolCall("query", start, nil)
	return mcp.NewToolResultText(tbl.String()), nil
}

// HandleListTables lists the classes of the database
func (d *ToolDeps) HandleListTables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	tbl, err := d.metadata(ctx, cacheKindTables, "", orientdb.SentinelListTables)
	if err != nil {
		d.logToolCall("list_tables", start, err)
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tables: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Tables in %s:\n", d.Database)
	for _, row := range tbl.rows {
		if len(row) > 0 {
			fmt.Fprintf(&sb, "- %s\n", formatValue(row[0]))
		}
	}
	d.logToolCall("list_tables", start, nil)
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleDescribeTable returns the properties of a class
func (d *ToolDeps) HandleDescribeTable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return d.handleTableMetadata(ctx, request, "describe_table", cacheKindColumns, orientdb.SentinelListTableColumns)
}

// HandleListIndexes returns the indexes of a class in SHOW INDEX layout
func (d *ToolDeps) HandleListIndexes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return d.handleTableMetadata(ctx, request, "list_indexes", cacheKindIndexes, orientdb.SentinelListTableIndexes)
}

// HandleStats returns command metrics and the slow command log as JSON
func (d *ToolDeps) HandleStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if d.Monitor == nil {
		return mcp.NewToolResultError("monitoring is disabled"), nil
	}
	payload := map[string]interface{}{
		"metrics": d.Monitor.Metrics.GetSnapshot(),
		"slow":    d.Monitor.Slow.GetAll(),
	}
	if d.Cache != nil {
		payload["cache"] = d.Cache.GetStats()
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (d *ToolDeps) handleTableMetadata(ctx context.Context, request mcp.CallToolRequest, tool, kind, sentinel string) (*mcp.CallToolResult, error) {
	name := strings.TrimSpace(request.GetString("table", ""))
	if name == "" {
		return mcp.NewToolResultError("table parameter is required"), nil
	}

	start := time.Now()
	tbl, err := d.metadata(ctx, kind, name, orientdb.ComposeSentinel(name, sentinel))
	if err != nil {
		d.logToolCall(tool, start, err)
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", tool, err)), nil
	}
	d.logToolCall(tool, start, nil)
	return mcp.NewToolResultText(fmt.Sprintf("Table: %s.%s\n\n%s", d.Database, name, tbl)), nil
}

// metadata runs a sentinel query through the cache
func (d *ToolDeps) metadata(ctx context.Context, kind, name, sentinel string) (*table, error) {
	key := monitor.MetadataKey(d.Database, kind, name)
	if d.Cache != nil {
		if v, ok := d.Cache.Get(key); ok {
			return v.(*table), nil
		}
	}
	tbl, err := d.query(ctx, sentinel)
	if err != nil {
		return nil, err
	}
	if d.Cache != nil {
		d.Cache.Set(key, tbl)
	}
	return tbl, nil
}

func (d *ToolDeps) query(ctx context.Context, sql string, args ...interface{}) (*table, error) {
	rows, err := d.DB.QueryxContext(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	tbl := &table{columns: cols}
	for rows.Next() {
		if d.MaxRows > 0 && len(tbl.rows) >= d.MaxRows {
			tbl.truncated = true
			break
		}
		row, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		tbl.rows = append(tbl.rows, row)
	}
	return tbl, rows.Err()
}

func (d *ToolDeps) logToolCall(tool string, start time.Time, err error) {
	if d.Logger == nil {
		return
	}
	if err != nil {
		d.Logger.Warn("[MCP] %s failed after %s: %v", tool, time.Since(start), err)
		return
	}
	d.Logger.Debug("[MCP] %s ok (%s)", tool, time.Since(start))
}

// toolArgs reads the optional positional "args" array
func toolArgs(request mcp.CallToolRequest) ([]interface{}, error) {
	raw, ok := request.GetArguments()["args"]
	if !ok || raw == nil {
		return nil, nil
	}
	args, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("args must be an array")
	}
	out := make([]interface{}, len(args))
	for i, a := range args {
		// JSON 数字都是 float64，整数还原为 int64
		if f, ok := a.(float64); ok && f == float64(int64(f)) {
			out[i] = int64(f)
			continue
		}
		out[i] = a
	}
	return out, nil
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
