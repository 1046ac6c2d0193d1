package orientdb

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// Statement 一条查询模板及其参数绑定和结果缓冲。
// Statement 不是并发安全的。
type Statement struct {
	conn   *Connection
	query  string
	table  string
	binder *binder
	mode   FetchMode

	command string
	route   RouteKind
	result  *ResultSet
	cursor  int
}

func newStatement(conn *Connection, query string) *Statement {
	table, sql := parseComposite(query)
	return &Statement{
		conn:   conn,
		query:  sql,
		table:  table,
		binder: newBinder(strings.Count(sql, "?")),
		mode:   FetchBoth,
	}
}

// Query 查询文本（已去掉表名提示）
func (s *Statement) Query() string {
	return s.query
}

// Table table~sentinel 形式中的表名提示
func (s *Statement) Table() string {
	return s.table
}

// NumInput 占位符数量
func (s *Statement) NumInput() int {
	return s.binder.count
}

// Command 最近一次执行时发送的命令文本
func (s *Statement) Command() string {
	return s.command
}

// Route 最近一次执行的路径
func (s *Statement) Route() RouteKind {
	return s.route
}

// BindParam 绑定 Cell，执行时才读取其中的值
func (s *Statement) BindParam(pos int, cell *Cell, typ ...ParamType) error {
	t, err := resolveType(typ)
	if err != nil {
		return err
	}
	return s.binder.bindCell(pos, cell, t)
}

// BindValue 绑定值的快照
func (s *Statement) BindValue(pos int, v Value, typ ...ParamType) error {
	t, err := resolveType(typ)
	if err != nil {
		return err
	}
	return s.binder.bindCell(pos, NewCell(v), t)
}

// BindAll 按运行时类型推断并依次绑定 values，任何一个失败则不做任何绑定
func (s *Statement) BindAll(values []interface{}) error {
	staged := make(map[int]binding, len(values))
	for i, raw := range values {
		pos := i + 1
		if err := s.binder.checkPosition(pos); err != nil {
			return err
		}
		v, t := InferValue(raw)
		staged[pos] = binding{typ: t, cell: NewCell(v)}
	}
	for pos, bd := range staged {
		s.binder.bindings[pos] = bd
	}
	return nil
}

// Execute 执行语句。传入 values 时等价于先 BindAll(values)。
// 执行失败时结果缓冲为空。
func (s *Statement) Execute(ctx context.Context, values ...interface{}) error {
	s.result = nil
	s.cursor = 0
	s.command = ""

	if len(values) > 0 {
		if err := s.BindAll(values); err != nil {
			return err
		}
	}
	params, err := s.binder.resolve()
	if err != nil {
		return err
	}
	command, err := rewrite(s.query, params)
	if err != nil {
		return err
	}

	route := classify(command, s.table)
	result, err := s.conn.run(ctx, route, command, s.table)
	if err != nil {
		return err
	}
	s.command = command
	s.route = route
	s.result = result
	return nil
}

// Result 最近一次执行的结果，未执行或执行失败时为 nil
func (s *Statement) Result() *ResultSet {
	return s.result
}

// SetFetchMode 设置默认取值方式
func (s *Statement) SetFetchMode(mode FetchMode) error {
	if !mode.valid() {
		return NewError(ErrCodeInvalidParam, fmt.Sprintf("unknown fetch mode %s", mode), nil)
	}
	if mode == FetchDefault {
		mode = FetchBoth
	}
	s.mode = mode
	return nil
}

func (s *Statement) resolveMode(mode FetchMode) (FetchMode, error) {
	if !mode.valid() {
		return 0, NewError(ErrCodeInvalidParam, fmt.Sprintf("unknown fetch mode %s", mode), nil)
	}
	if mode == FetchDefault {
		return s.mode, nil
	}
	return mode, nil
}

// Fetch 取下一行，没有更多行时返回 false
func (s *Statement) Fetch(mode FetchMode) (*Record, bool, error) {
	m, err := s.resolveMode(mode)
	if err != nil {
		return nil, false, err
	}
	if s.cursor >= s.result.Len() {
		return nil, false, nil
	}
	rec := s.result.record(s.cursor, m)
	s.cursor++
	return rec, true, nil
}

// FetchAll 返回所有行，不移动游标
func (s *Statement) FetchAll(mode FetchMode) ([]*Record, error) {
	m, err := s.resolveMode(mode)
	if err != nil {
		return nil, err
	}
	records := make([]*Record, s.result.Len())
	for i := range records {
		records[i] = s.result.record(i, m)
	}
	return records, nil
}

// FetchColumn 取下一行第 i 列的值，没有更多行或列越界时返回 false
func (s *Statement) FetchColumn(i int) (interface{}, bool) {
	if s.cursor >= s.result.Len() {
		return nil, false
	}
	row := s.result.rows[s.cursor]
	if i < 0 || i >= len(row) {
		return nil, false
	}
	s.cursor++
	return row[i], true
}

// RowCount 写命令返回影响行数，否则返回结果行数
func (s *Statement) RowCount() int64 {
	if s.result.IsMutation() {
		return s.result.AffectedRows()
	}
	return int64(s.result.Len())
}

// ColumnCount 结果列数
func (s *Statement) ColumnCount() int {
	return len(s.result.Columns())
}

// CloseCursor 清空结果、游标和参数绑定，保留查询和连接
func (s *Statement) CloseCursor() {
	s.result = nil
	s.cursor = 0
	s.command = ""
	s.binder.reset()
}

// All 遍历所有已物化的行
func (s *Statement) All() iter.Seq2[int, *Record] {
	return func(yield func(int, *Record) bool) {
		rs := s.result
		for i := 0; i < rs.Len(); i++ {
			if !yield(i, rs.record(i, s.mode)) {
				return
			}
		}
	}
}
