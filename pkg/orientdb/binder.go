package orientdb

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"
)

// ParamType 绑定参数的类型标记，决定参数如何内联到 SQL 中
type ParamType uint8

const (
	ParamString ParamType = iota
	ParamInteger
	ParamBoolean
	ParamNull
	ParamLOB
)

// LOBThreshold 超过该字符数的字符串按大文本绑定
const LOBThreshold = 128

// String 返回类型名
func (t ParamType) String() string {
	switch t {
	case ParamString:
		return "string"
	case ParamInteger:
		return "integer"
	case ParamBoolean:
		return "boolean"
	case ParamNull:
		return "null"
	case ParamLOB:
		return "lob"
	default:
		return fmt.Sprintf("ParamType(%d)", uint8(t))
	}
}

func (t ParamType) valid() bool {
	return t <= ParamLOB
}

type valueKind uint8

const (
	kindNull valueKind = iota
	kindString
	kindInt
	kindFloat
	kindBool
)

// Value 绑定值。零值为 NULL
type Value struct {
	kind valueKind
	s    string
	i    int64
	f    float64
	b    bool
}

func StringValue(s string) Value { return Value{kind: kindString, s: s} }
func IntValue(i int64) Value     { return Value{kind: kindInt, i: i} }
func FloatValue(f float64) Value { return Value{kind: kindFloat, f: f} }
func BoolValue(b bool) Value     { return Value{kind: kindBool, b: b} }
func NullValue() Value           { return Value{} }
func (v Value) IsNull() bool     { return v.kind == kindNull }

// Text 返回值的文本形式，NULL 返回空串
func (v Value) Text() string {
	switch v.kind {
	case kindString:
		return v.s
	case kindInt:
		return strconv.FormatInt(v.i, 10)
	case kindFloat:
		return strconv.FormatFloat(v.f, 'f', -1, 64)
	case kindBool:
		if v.b {
			return "1"
		}
		return "0"
	default:
		return ""
	}
}

// Interface 返回对应的 Go 值
func (v Value) Interface() interface{} {
	switch v.kind {
	case kindString:
		return v.s
	case kindInt:
		return v.i
	case kindFloat:
		return v.f
	case kindBool:
		return v.b
	default:
		return nil
	}
}

func (v Value) String() string {
	if v.kind == kindNull {
		return "NULL"
	}
	return v.Text()
}

// truthy 按布尔语义解释值
func (v Value) truthy() bool {
	switch v.kind {
	case kindBool:
		return v.b
	case kindInt:
		return v.i != 0
	case kindFloat:
		return v.f != 0
	case kindString:
		b, err := strconv.ParseBool(v.s)
		if err == nil {
			return b
		}
		return v.s != "" && v.s != "0"
	default:
		return false
	}
}

// Cell 延迟读取的绑定槽，BindParam 绑定的是 Cell 本身，执行时才读取其中的值
type Cell struct {
	mu sync.RWMutex
	v  Value
}

// NewCell 创建 Cell
func NewCell(v Value) *Cell {
	return &Cell{v: v}
}

// Set 更新 Cell 中的值
func (c *Cell) Set(v Value) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

// Load 读取当前值
func (c *Cell) Load() Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.v
}

// binding 某个位置上的绑定
type binding struct {
	typ  ParamType
	cell *Cell
}

// boundParam 执行时从 binding 读取出的最终值
type boundParam struct {
	typ   ParamType
	value Value
}

// binder 位置参数表，位置从 1 开始
type binder struct {
	count    int
	bindings map[int]binding
}

func newBinder(count int) *binder {
	return &binder{
		count:    count,
		bindings: make(map[int]binding, count),
	}
}

func resolveType(typ []ParamType) (ParamType, error) {
	if len(typ) == 0 {
		return ParamString, nil
	}
	if len(typ) > 1 {
		return 0, NewError(ErrCodeInvalidParam, "at most one parameter type may be given", nil)
	}
	if !typ[0].valid() {
		return 0, bindingError("unknown type %s", typ[0])
	}
	return typ[0], nil
}

func (b *binder) checkPosition(pos int) error {
	if pos < 1 || pos > b.count {
		return NewError(ErrCodeBinding, fmt.Sprintf("position %d out of range [1, %d]", pos, b.count), nil)
	}
	return nil
}

func (b *binder) bindCell(pos int, cell *Cell, typ ParamType) error {
	if err := b.checkPosition(pos); err != nil {
		return err
	}
	if cell == nil {
		return NewError(ErrCodeBinding, fmt.Sprintf("nil cell bound at position %d", pos), nil)
	}
	b.bindings[pos] = binding{typ: typ, cell: cell}
	return nil
}

func (b *binder) reset() {
	b.bindings = make(map[int]binding, b.count)
}

func (b *binder) empty() bool {
	return len(b.bindings) == 0
}

// resolve 读取所有绑定，要求每个占位符都已绑定
func (b *binder) resolve() ([]boundParam, error) {
	if b.count == 0 || b.empty() {
		if b.count > 0 {
			return nil, NewError(ErrCodeBinding, fmt.Sprintf("statement expects %d parameters, none bound", b.count), nil)
		}
		return nil, nil
	}

	params := make([]boundParam, b.count)
	for pos := 1; pos <= b.count; pos++ {
		bd, ok := b.bindings[pos]
		if !ok {
			return nil, NewError(ErrCodeBinding, fmt.Sprintf("parameter %d is not bound", pos), nil)
		}
		params[pos-1] = boundParam{typ: bd.typ, value: bd.cell.Load()}
	}
	return params, nil
}

// InferValue 根据 Go 值的运行时类型一次性推断绑定值与类型
//
//	bool           -> boolean
//	整数           -> integer
//	string/[]byte/浮点，超过 128 个字符 -> lob，否则 -> string
//	time.Time      -> string (2006-01-02 15:04:05)
//	其他（含 nil） -> null
func InferValue(v interface{}) (Value, ParamType) {
	switch val := v.(type) {
	case nil:
		return NullValue(), ParamNull
	case Value:
		return val, inferFromValue(val)
	case bool:
		return BoolValue(val), ParamBoolean
	case string:
		return StringValue(val), textType(val)
	case []byte:
		s := string(val)
		return StringValue(s), textType(s)
	case float32:
		s := strconv.FormatFloat(float64(val), 'f', -1, 32)
		return StringValue(s), textType(s)
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		return StringValue(s), textType(s)
	case time.Time:
		return StringValue(val.Format("2006-01-02 15:04:05")), ParamString
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IntValue(rv.Int()), ParamInteger
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			// 超出 int64 的无符号数保留十进制文本
			return StringValue(strconv.FormatUint(u, 10)), ParamInteger
		}
		return IntValue(int64(u)), ParamInteger
	case reflect.Pointer:
		if rv.IsNil() {
			return NullValue(), ParamNull
		}
		return InferValue(rv.Elem().Interface())
	default:
		return NullValue(), ParamNull
	}
}

func inferFromValue(v Value) ParamType {
	switch v.kind {
	case kindBool:
		return ParamBoolean
	case kindInt:
		return ParamInteger
	case kindString, kindFloat:
		return textType(v.Text())
	default:
		return ParamNull
	}
}

func textType(s string) ParamType {
	if utf8.RuneCountInString(s) > LOBThreshold {
		return ParamLOB
	}
	return ParamString
}
