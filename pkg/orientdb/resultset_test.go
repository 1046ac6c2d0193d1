package orientdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHydrate_KeyOrderAndTypes(t *testing.T) {
	body := `{"result":[{"@rid":"#12:0","name":"Alice","age":30,"score":9.5,"active":true,"tags":["a","b"],"meta":{"k":1},"nick":null}]}`

	rs, err := hydrate([]byte(body), "SELECT * FROM Users")
	require.NoError(t, err)
	require.Equal(t, 1, rs.Len())
	assert.Equal(t, []string{"@rid", "name", "age", "score", "active", "tags", "meta", "nick"}, rs.Columns())

	rec := rs.Record(0)
	assert.Equal(t, []interface{}{
		"#12:0", "Alice", int64(30), 9.5, true,
		[]interface{}{"a", "b"}, map[string]interface{}{"k": float64(1)}, nil,
	}, rec.Values())
}

func TestHydrate_SparseBackfill(t *testing.T) {
	body := `{"result":[{"a":1},{"b":2},{"a":3,"c":"x"}]}`

	rs, err := hydrate([]byte(body), "SELECT a, b, c FROM T")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, rs.Columns())
	assert.Equal(t, [][]interface{}{
		{int64(1), nil, nil},
		{nil, int64(2), nil},
		{int64(3), nil, "x"},
	}, rs.Rows())

	for _, row := range rs.Rows() {
		assert.Len(t, row, len(rs.Columns()))
	}
}

func TestHydrate_ProjectionAfterFirstRow(t *testing.T) {
	body := `{"result":[{"name":"a"},{"name":"b","extra":true}]}`

	rs, err := hydrate([]byte(body), "SELECT name, email FROM Users")
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "email", "extra"}, rs.Columns())

	email, ok := rs.Record(1).Get("email")
	assert.True(t, ok)
	assert.Nil(t, email)
}

func TestHydrate_EmptyResultKeepsProjection(t *testing.T) {
	rs, err := hydrate([]byte(`{"result":[]}`), "SELECT name, email FROM Users")
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
	assert.Equal(t, []string{"name", "email"}, rs.Columns())
}

func TestHydrate_ScalarElements(t *testing.T) {
	rs, err := hydrate([]byte(`{"result":[1,"two",null]}`), "SELECT expand(x) FROM T")
	require.NoError(t, err)
	assert.Equal(t, []string{ScalarColumn}, rs.Columns())
	assert.Equal(t, [][]interface{}{{int64(1)}, {"two"}, {nil}}, rs.Rows())
}

func TestHydrate_Unescape(t *testing.T) {
	rs, err := hydrate([]byte(`{"result":[{"q\"k":"line\nbreak é"}]}`), "SELECT * FROM T")
	require.NoError(t, err)
	assert.Equal(t, []string{`q"k`}, rs.Columns())
	assert.Equal(t, "line\nbreak é", rs.Rows()[0][0])
}

func TestHydrate_ProtocolErrors(t *testing.T) {
	bodies := []string{
		`[1,2]`,
		`42`,
		`{"rows":[]}`,
		`{"result":{"a":1}}`,
		`not json`,
	}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			rs, err := hydrate([]byte(body), "SELECT * FROM T")
			require.Error(t, err)
			assert.Nil(t, rs)
			assert.True(t, IsErrorCode(err, ErrCodeProtocol), err.Error())
		})
	}
}

func TestDecodeCount(t *testing.T) {
	n, err := decodeCount([]byte("3"))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = decodeCount([]byte(" 0\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	n, err = decodeCount([]byte("2.0"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, body := range []string{`{"result":[]}`, `[1]`, `"3"`, ``} {
		_, err := decodeCount([]byte(body))
		require.Error(t, err, body)
		assert.True(t, IsErrorCode(err, ErrCodeProtocol))
	}
}

func TestRecord_Modes(t *testing.T) {
	b := newRowBuilder()
	b.add([]string{"id", "name"}, []interface{}{int64(1), "a"})
	rs := b.build()

	both := rs.record(0, FetchBoth)
	v, ok := both.At(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	v, ok = both.Get("id")
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)
	assert.Equal(t, map[string]interface{}{"id": int64(1), "name": "a"}, both.Map())

	num := rs.record(0, FetchNum)
	assert.Nil(t, num.Map())
	_, ok = num.Get("id")
	assert.False(t, ok)
	assert.Equal(t, []interface{}{int64(1), "a"}, num.Values())

	assoc := rs.record(0, FetchAssoc)
	assert.Nil(t, assoc.Values())
	_, ok = assoc.At(0)
	assert.False(t, ok)
	assert.Equal(t, "a", assoc.Map()["name"])

	_, ok = both.At(5)
	assert.False(t, ok)
	assert.Nil(t, rs.Record(1))
}

func TestResultSet_Nil(t *testing.T) {
	var rs *ResultSet
	assert.Equal(t, 0, rs.Len())
	assert.Nil(t, rs.Columns())
	assert.Nil(t, rs.Rows())
	assert.Nil(t, rs.Record(0))
	assert.Equal(t, int64(0), rs.AffectedRows())
	assert.False(t, rs.IsMutation())
}
