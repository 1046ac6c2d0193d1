package orientdb

import (
	"strings"
)

// 元数据哨兵查询，与 schema 内省方约定的固定字符串
const (
	SentinelListTables           = "getListTablesSQL"
	SentinelListTableColumns     = "getListTableColumnsSQL"
	SentinelListTableIndexes     = "getListTableIndexesSQL"
	SentinelListTableForeignKeys = "getListTableForeignKeysSQL"
)

// CompositeSeparator table~sentinel 组合形式的分隔符
const CompositeSeparator = "~"

// RouteKind 一条命令的执行路径
type RouteKind int

const (
	RouteQuery RouteKind = iota
	RouteListTables
	RouteListColumns
	RouteListIndexes
	RouteListForeignKeys
	RouteDDL
	RouteMutation
)

// String 返回路径名
func (k RouteKind) String() string {
	switch k {
	case RouteQuery:
		return "query"
	case RouteListTables:
		return "list_tables"
	case RouteListColumns:
		return "list_columns"
	case RouteListIndexes:
		return "list_indexes"
	case RouteListForeignKeys:
		return "list_foreign_keys"
	case RouteDDL:
		return "ddl"
	case RouteMutation:
		return "mutation"
	default:
		return "unknown"
	}
}

// IsBatch 是否通过 batch 接口执行
func (k RouteKind) IsBatch() bool {
	return k == RouteDDL || k == RouteMutation
}

// IsMetadata 是否为元数据捷径
func (k RouteKind) IsMetadata() bool {
	return k >= RouteListTables && k <= RouteListForeignKeys
}

var batchKeywords = map[string]RouteKind{
	"CREATE": RouteDDL,
	"ALTER":  RouteDDL,
	"DROP":   RouteDDL,
	"INSERT": RouteMutation,
	"UPDATE": RouteMutation,
	"DELETE": RouteMutation,
}

// IsSentinel 判断是否为四个元数据哨兵之一
func IsSentinel(s string) bool {
	switch s {
	case SentinelListTables, SentinelListTableColumns, SentinelListTableIndexes, SentinelListTableForeignKeys:
		return true
	}
	return false
}

// ComposeSentinel 生成 table~sentinel 组合查询
func ComposeSentinel(table, sentinel string) string {
	if table == "" {
		return sentinel
	}
	return table + CompositeSeparator + sentinel
}

// parseComposite 拆分 table~sentinel。~ 后不是哨兵时原样返回
func parseComposite(query string) (table, sql string) {
	head, tail, found := strings.Cut(query, CompositeSeparator)
	if !found || !IsSentinel(strings.TrimSpace(tail)) {
		return "", query
	}
	return strings.TrimSpace(head), strings.TrimSpace(tail)
}

// classify 根据改写后的 SQL 和表名提示选择执行路径
func classify(sql, table string) RouteKind {
	switch strings.TrimSpace(sql) {
	case SentinelListTables:
		return RouteListTables
	case SentinelListTableForeignKeys:
		return RouteListForeignKeys
	case SentinelListTableColumns:
		if table != "" {
			return RouteListColumns
		}
	case SentinelListTableIndexes:
		if table != "" {
			return RouteListIndexes
		}
	}

	fields := strings.Fields(sql)
	if len(fields) < 2 {
		return RouteQuery
	}
	if kind, ok := batchKeywords[strings.ToUpper(fields[0])]; ok {
		return kind
	}
	return RouteQuery
}

// Classify 返回一条未改写命令的执行路径，接受 table~sentinel 形式
func Classify(query string) RouteKind {
	table, sql := parseComposite(query)
	return classify(sql, table)
}
