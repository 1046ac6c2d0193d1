package orientdb

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEliminateAlias(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{
			name: "alias with qualifier in where",
			sql:  "SELECT name FROM Users u WHERE u.id = ?",
			want: "SELECT name FROM Users WHERE id = ?",
		},
		{
			name: "AS keyword",
			sql:  "SELECT u.name, u.email FROM Users AS u ORDER BY u.name",
			want: "SELECT name, email FROM Users ORDER BY name",
		},
		{
			name: "lower case as",
			sql:  "SELECT t.x FROM T as t",
			want: "SELECT x FROM T",
		},
		{
			name: "no alias before where",
			sql:  "SELECT name FROM Users WHERE id = 1",
			want: "SELECT name FROM Users WHERE id = 1",
		},
		{
			name: "no alias at end",
			sql:  "SELECT name FROM Users",
			want: "SELECT name FROM Users",
		},
		{
			name: "no alias before limit",
			sql:  "SELECT name FROM Users LIMIT 10",
			want: "SELECT name FROM Users LIMIT 10",
		},
		{
			name: "qualifier only stripped at identifier boundary",
			sql:  "SELECT u.name, menu.id FROM Users u",
			want: "SELECT name, menu.id FROM Users",
		},
		{
			name: "whitespace preserved",
			sql:  "SELECT  name\nFROM Users u\n WHERE u.id=1",
			want: "SELECT  name\nFROM Users\n WHERE id=1",
		},
		{
			name: "qualifier inside function call",
			sql:  "SELECT count(u.id) AS n FROM Users u",
			want: "SELECT count(id) AS n FROM Users",
		},
		{
			name: "no FROM",
			sql:  "SELECT sysdate()",
			want: "SELECT sysdate()",
		},
		{
			// 只处理第一个表，JOIN 的第二个别名保留
			name: "join keeps second alias",
			sql:  "SELECT a.x FROM A a JOIN B b ON a.id = b.aid",
			want: "SELECT x FROM A JOIN B b ON id = b.aid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, eliminateAlias(tt.sql))
		})
	}
}

func TestEliminateAlias_NoQualifierLeft(t *testing.T) {
	for _, alias := range []string{"u", "usr", "t1", "x_y"} {
		for _, table := range []string{"Users", "Orders", "V"} {
			sql := fmt.Sprintf("SELECT %[1]s.a, %[1]s.b FROM %[2]s %[1]s WHERE %[1]s.a = 1 ORDER BY %[1]s.b", alias, table)
			got := eliminateAlias(sql)
			assert.NotContains(t, got, alias+".", sql)
			assert.Contains(t, got, "FROM "+table+" WHERE", sql)
		}
	}
}

func TestTranslatePagination(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{"offset becomes comma", "SELECT * FROM T LIMIT 10 OFFSET 20", "SELECT * FROM T LIMIT 10,20"},
		{"limit 0 removed", "SELECT * FROM T LIMIT 0", "SELECT * FROM T"},
		{"offset 0 removed", "SELECT * FROM T LIMIT 10 OFFSET 0", "SELECT * FROM T LIMIT 10"},
		{"limit 100 kept", "SELECT * FROM T LIMIT 100", "SELECT * FROM T LIMIT 100"},
		{"nothing to do", "SELECT * FROM T WHERE a = 1", "SELECT * FROM T WHERE a = 1"},
		// LIMIT 0 与非零 OFFSET 同时出现时结果不可用
		{"limit 0 with offset", "SELECT * FROM T LIMIT 0 OFFSET 5", "SELECT * FROM T,5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translatePagination(tt.sql)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "LIMIT 0")
			assert.NotContains(t, got, "OFFSET 0")
		})
	}
}

func TestTranslatePagination_OffsetFollowsLimit(t *testing.T) {
	for _, n := range []int{1, 7, 20, 1000} {
		got := translatePagination(fmt.Sprintf("SELECT * FROM T LIMIT 25 OFFSET %d", n))
		assert.True(t, strings.HasSuffix(got, fmt.Sprintf("LIMIT 25,%d", n)), got)
	}
}

func TestSubstituteParams(t *testing.T) {
	tests := []struct {
		name   string
		sql    string
		params []boundParam
		want   string
	}{
		{
			name:   "integer raw",
			sql:    "SELECT * FROM T WHERE id = ?",
			params: []boundParam{{ParamInteger, IntValue(5)}},
			want:   "SELECT * FROM T WHERE id = 5",
		},
		{
			name:   "integer from string text",
			sql:    "SELECT * FROM T WHERE id = ?",
			params: []boundParam{{ParamInteger, StringValue(" 42 ")}},
			want:   "SELECT * FROM T WHERE id = 42",
		},
		{
			name:   "string quoted",
			sql:    "SELECT * FROM T WHERE name = ?",
			params: []boundParam{{ParamString, StringValue("O'Brien")}},
			want:   "SELECT * FROM T WHERE name = 'O''Brien'",
		},
		{
			name:   "backslash doubled before quotes",
			sql:    "INSERT INTO T (p) VALUES (?)",
			params: []boundParam{{ParamString, StringValue(`a\'b`)}},
			want:   `INSERT INTO T (p) VALUES ('a\\''b')`,
		},
		{
			name:   "integer value bound as string is quoted",
			sql:    "SELECT * FROM T WHERE code = ?",
			params: []boundParam{{ParamString, IntValue(7)}},
			want:   "SELECT * FROM T WHERE code = '7'",
		},
		{
			name:   "boolean",
			sql:    "SELECT * FROM T WHERE a = ? AND b = ?",
			params: []boundParam{{ParamBoolean, BoolValue(true)}, {ParamBoolean, IntValue(0)}},
			want:   "SELECT * FROM T WHERE a = true AND b = false",
		},
		{
			name:   "null tag and null value",
			sql:    "UPDATE T SET a = ?, b = ?",
			params: []boundParam{{ParamNull, StringValue("ignored")}, {ParamString, NullValue()}},
			want:   "UPDATE T SET a = NULL, b = NULL",
		},
		{
			name:   "lob quoted",
			sql:    "INSERT INTO T (body) VALUES (?)",
			params: []boundParam{{ParamLOB, StringValue(strings.Repeat("x", 130))}},
			want:   "INSERT INTO T (body) VALUES ('" + strings.Repeat("x", 130) + "')",
		},
		{
			name: "no params trims",
			sql:  "  SELECT * FROM T \n",
			want: "SELECT * FROM T",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := substituteParams(tt.sql, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubstituteParams_Errors(t *testing.T) {
	_, err := substituteParams("SELECT * FROM T WHERE id = ?", []boundParam{{ParamInteger, StringValue("1 OR 1=1")}})
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeBinding))

	_, err = substituteParams("SELECT * FROM T WHERE a = ? AND b = ?", []boundParam{{ParamString, StringValue("x")}})
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeBinding))

	_, err = substituteParams("SELECT * FROM T WHERE a = ?", []boundParam{{ParamType(42), StringValue("x")}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownParamType)
}

func TestSubstituteParams_IntegerTagRequiresDigits(t *testing.T) {
	for _, text := range []string{"Infinity", "NaN", "1.5", "0x1p3", "1e3", "-", "", "+inf"} {
		t.Run(text, func(t *testing.T) {
			_, err := substituteParams("SELECT * FROM T WHERE id = ?", []boundParam{{ParamInteger, StringValue(text)}})
			require.Error(t, err)
			assert.True(t, IsErrorCode(err, ErrCodeBinding))
		})
	}

	got, err := substituteParams("SELECT * FROM T WHERE a = ? AND b = ?",
		[]boundParam{{ParamInteger, StringValue("-12")}, {ParamInteger, StringValue("+3")}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM T WHERE a = -12 AND b = +3", got)
}

func TestRewriteSQL_UnsignedKeepsValue(t *testing.T) {
	got, err := RewriteSQL("DELETE FROM T WHERE id = ?", uint64(math.MaxUint64))
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM T WHERE id = 18446744073709551615", got)
}

func TestSubstituteParams_NoBareQuote(t *testing.T) {
	values := []string{"O'Brien", "''", "it's a 'test'", `\'`, `'; DROP CLASS Users; --`}
	for _, v := range values {
		got, err := substituteParams("SELECT * FROM T WHERE a = ?", []boundParam{{ParamString, StringValue(v)}})
		require.NoError(t, err)
		lit := strings.TrimPrefix(got, "SELECT * FROM T WHERE a = ")
		require.True(t, strings.HasPrefix(lit, "'") && strings.HasSuffix(lit, "'"), lit)
		inner := lit[1 : len(lit)-1]
		assert.Equal(t, 0, strings.Count(strings.ReplaceAll(inner, "''", ""), "'"), lit)
	}
}

func TestRewrite(t *testing.T) {
	got, err := rewrite("SELECT name FROM Users u WHERE u.id = ?", []boundParam{{ParamInteger, IntValue(5)}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM Users WHERE id = 5", got)

	got, err = rewrite("SELECT u.name FROM Users u WHERE u.age > ? LIMIT 10 OFFSET 30", []boundParam{{ParamInteger, IntValue(18)}})
	require.NoError(t, err)
	assert.Equal(t, "SELECT name FROM Users WHERE age > 18 LIMIT 10,30", got)

	// 非 SELECT 语句只做参数替换
	got, err = rewrite("UPDATE Users u SET u.name = ? LIMIT 0", []boundParam{{ParamString, StringValue("a")}})
	require.NoError(t, err)
	assert.Equal(t, "UPDATE Users u SET u.name = 'a' LIMIT 0", got)

	// 小写 select 不做别名和分页改写
	got, err = rewrite("select u.x from T u LIMIT 0", nil)
	require.NoError(t, err)
	assert.Equal(t, "select u.x from T u LIMIT 0", got)
}

func TestRewriteSQL(t *testing.T) {
	got, err := RewriteSQL("SELECT * FROM T WHERE a = ? AND b = ? AND c = ? AND d = ?", 7, true, nil, "x")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM T WHERE a = 7 AND b = true AND c = NULL AND d = 'x'", got)

	// 字符串字面量中的 ? 也会被当作占位符
	got, err = RewriteSQL("SELECT * FROM T WHERE a = '?' AND b = ?", "x", 1)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM T WHERE a = ''x'' AND b = 1", got)
}

func TestProjectedColumns(t *testing.T) {
	tests := []struct {
		sql  string
		want []string
	}{
		{"SELECT name, email FROM Users", []string{"name", "email"}},
		{"SELECT DISTINCT name FROM Users", []string{"name"}},
		{"SELECT count(*) AS total, name FROM T", []string{"total", "name"}},
		{"SELECT `name` FROM T", []string{"name"}},
		{"SELECT * FROM T", nil},
		{"SELECT 1", nil},
		{"UPDATE T SET a = 1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			assert.Equal(t, tt.want, projectedColumns(tt.sql))
		})
	}
}

func TestQuoteLiteral(t *testing.T) {
	assert.Equal(t, "'O''Brien'", QuoteLiteral("O'Brien"))
	assert.Equal(t, `'C:\\tmp'`, QuoteLiteral(`C:\tmp`))
	assert.Equal(t, "''", QuoteLiteral(""))
}
