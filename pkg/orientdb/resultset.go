package orientdb

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"
)

// FetchMode 行的取值方式
type FetchMode int

const (
	// FetchDefault 使用语句的默认模式
	FetchDefault FetchMode = iota
	// FetchNum 只按位置取值
	FetchNum
	// FetchAssoc 只按列名取值
	FetchAssoc
	// FetchBoth 位置和列名都可用
	FetchBoth
)

// String 返回模式名
func (m FetchMode) String() string {
	switch m {
	case FetchDefault:
		return "default"
	case FetchNum:
		return "num"
	case FetchAssoc:
		return "assoc"
	case FetchBoth:
		return "both"
	default:
		return fmt.Sprintf("FetchMode(%d)", int(m))
	}
}

func (m FetchMode) valid() bool {
	return m >= FetchDefault && m <= FetchBoth
}

// ScalarColumn 结果数组元素不是对象时使用的列名
const ScalarColumn = "value"

// Record 一行结果，可按位置或列名访问
type Record struct {
	columns []string
	index   map[string]int
	values  []interface{}
	mode    FetchMode
}

// Columns 列名
func (r *Record) Columns() []string {
	return r.columns
}

// Mode 行的取值方式
func (r *Record) Mode() FetchMode {
	return r.mode
}

// Values 按列顺序返回值，FetchAssoc 下为 nil
func (r *Record) Values() []interface{} {
	if r.mode == FetchAssoc {
		return nil
	}
	return r.values
}

// Map 返回列名到值的映射，FetchNum 下为 nil
func (r *Record) Map() map[string]interface{} {
	if r.mode == FetchNum {
		return nil
	}
	m := make(map[string]interface{}, len(r.columns))
	for i, col := range r.columns {
		m[col] = r.values[i]
	}
	return m
}

// Get 按列名取值
func (r *Record) Get(name string) (interface{}, bool) {
	if r.mode == FetchNum {
		return nil, false
	}
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// At 按位置取值
func (r *Record) At(i int) (interface{}, bool) {
	if r.mode == FetchAssoc || i < 0 || i >= len(r.values) {
		return nil, false
	}
	return r.values[i], true
}

// ResultSet 物化后的结果，所有行的列集合相同
type ResultSet struct {
	columns  []string
	index    map[string]int
	rows     [][]interface{}
	affected int64
	mutation bool
}

// Columns 列名
func (rs *ResultSet) Columns() []string {
	if rs == nil {
		return nil
	}
	return rs.columns
}

// Len 行数
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rows)
}

// Rows 所有行，每行长度等于列数
func (rs *ResultSet) Rows() [][]interface{} {
	if rs == nil {
		return nil
	}
	return rs.rows
}

// Record 返回第 i 行
func (rs *ResultSet) Record(i int) *Record {
	return rs.record(i, FetchBoth)
}

func (rs *ResultSet) record(i int, mode FetchMode) *Record {
	if rs == nil || i < 0 || i >= len(rs.rows) {
		return nil
	}
	return &Record{columns: rs.columns, index: rs.index, values: rs.rows[i], mode: mode}
}

// AffectedRows batch 写命令返回的影响行数
func (rs *ResultSet) AffectedRows() int64 {
	if rs == nil {
		return 0
	}
	return rs.affected
}

// IsMutation 结果是否来自 INSERT/UPDATE/DELETE
func (rs *ResultSet) IsMutation() bool {
	return rs != nil && rs.mutation
}

// rowBuilder 逐行收集文档并补齐缺失的列
type rowBuilder struct {
	columns []string
	index   map[string]int
	rows    [][]interface{}
}

func newRowBuilder(columns ...string) *rowBuilder {
	b := &rowBuilder{index: make(map[string]int)}
	for _, c := range columns {
		b.addColumn(c)
	}
	return b
}

func (b *rowBuilder) addColumn(name string) int {
	if i, ok := b.index[name]; ok {
		return i
	}
	b.index[name] = len(b.columns)
	b.columns = append(b.columns, name)
	return len(b.columns) - 1
}

// add 追加一行，keys 与 vals 一一对应
func (b *rowBuilder) add(keys []string, vals []interface{}) {
	row := make([]interface{}, len(b.columns), len(b.columns)+len(keys))
	for k, key := range keys {
		i := b.addColumn(key)
		for len(row) <= i {
			row = append(row, nil)
		}
		row[i] = vals[k]
	}
	b.rows = append(b.rows, row)
}

func (b *rowBuilder) build() *ResultSet {
	for i, row := range b.rows {
		for len(row) < len(b.columns) {
			row = append(row, nil)
		}
		b.rows[i] = row
	}
	return &ResultSet{columns: b.columns, index: b.index, rows: b.rows}
}

// document 一个按键顺序解码的 JSON 对象
type document struct {
	keys []string
	vals []interface{}
}

func (d *document) get(key string) (interface{}, bool) {
	for i, k := range d.keys {
		if k == key {
			return d.vals[i], true
		}
	}
	return nil, false
}

func (d *document) getString(key string) string {
	v, _ := d.get(key)
	s, _ := v.(string)
	return s
}

// decodeDocument 按键顺序解码对象
func decodeDocument(data []byte) (*document, error) {
	doc := &document{}
	// ObjectEach 传入的 key 已经反转义
	err := jsonparser.ObjectEach(data, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		v, err := decodeValue(value, dt)
		if err != nil {
			return err
		}
		doc.keys = append(doc.keys, string(key))
		doc.vals = append(doc.vals, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// decodeValue 整数 -> int64，其他数字 -> float64，嵌套结构 -> map/slice
func decodeValue(value []byte, dt jsonparser.ValueType) (interface{}, error) {
	switch dt {
	case jsonparser.String:
		return jsonparser.ParseString(value)
	case jsonparser.Number:
		if i, err := strconv.ParseInt(string(value), 10, 64); err == nil {
			return i, nil
		}
		return jsonparser.ParseFloat(value)
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(value)
	case jsonparser.Null:
		return nil, nil
	case jsonparser.Object, jsonparser.Array:
		var v interface{}
		if err := json.Unmarshal(value, &v); err != nil {
			return nil, err
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected json value %q", value)
	}
}

// eachDocument 遍历 JSON 数组，标量元素包装成只有 value 列的文档
func eachDocument(array []byte, fn func(*document) error) error {
	var innerErr error
	_, err := jsonparser.ArrayEach(array, func(value []byte, dt jsonparser.ValueType, _ int, err error) {
		if innerErr != nil {
			return
		}
		if err != nil {
			innerErr = err
			return
		}
		var doc *document
		if dt == jsonparser.Object {
			doc, innerErr = decodeDocument(value)
			if innerErr != nil {
				return
			}
		} else {
			v, err := decodeValue(value, dt)
			if err != nil {
				innerErr = err
				return
			}
			doc = &document{keys: []string{ScalarColumn}, vals: []interface{}{v}}
		}
		innerErr = fn(doc)
	})
	if innerErr != nil {
		return innerErr
	}
	return err
}

// arrayField 取出对象中的数组字段，字段缺失时 found 为 false
func arrayField(body []byte, key string) (array []byte, found bool, err error) {
	_, dt, _, err := jsonparser.Get(body)
	if err != nil || dt != jsonparser.Object {
		return nil, false, protocolError("response is not a JSON object", body)
	}
	value, dt, _, err := jsonparser.Get(body, key)
	if dt == jsonparser.NotExist {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, protocolError(fmt.Sprintf("malformed %q field", key), body)
	}
	if dt != jsonparser.Array {
		return nil, false, protocolError(fmt.Sprintf("%q is not an array", key), body)
	}
	return value, true, nil
}

// hydrate 把 query 响应的 result 数组转换为 ResultSet
//
// 列顺序：第一行的键，SELECT 投影中缺失的列名，之后各行首次出现的键。
func hydrate(body []byte, sql string) (*ResultSet, error) {
	array, found, err := arrayField(body, "result")
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, protocolError(`response has no "result" array`, body)
	}

	projected := projectedColumns(sql)
	b := newRowBuilder()
	first := true
	err = eachDocument(array, func(doc *document) error {
		b.add(doc.keys, doc.vals)
		if first {
			first = false
			for _, col := range projected {
				b.addColumn(col)
			}
		}
		return nil
	})
	if err != nil {
		return nil, WrapError(err, ErrCodeProtocol, "failed to decode result rows")
	}
	if first {
		for _, col := range projected {
			b.addColumn(col)
		}
	}
	return b.build(), nil
}

// decodeCount batch 写命令的响应必须是一个 JSON 数字
func decodeCount(body []byte) (int64, error) {
	value, dt, _, err := jsonparser.Get(body)
	if err != nil || dt != jsonparser.Number {
		return 0, protocolError("mutation response is not a number", body)
	}
	if n, err := strconv.ParseInt(string(value), 10, 64); err == nil {
		return n, nil
	}
	f, err := jsonparser.ParseFloat(value)
	if err != nil {
		return 0, protocolError("mutation response is not a number", body)
	}
	return int64(f), nil
}
