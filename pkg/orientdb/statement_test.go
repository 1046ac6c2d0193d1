package orientdb

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/kasuganosora/orientsql/pkg/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeRows = `{"result":[{"id":1,"name":"a"},{"id":2,"name":"b"},{"id":3,"name":"c","extra":"x"}]}`

func newRowsConnection(t *testing.T) (*Connection, *testutils.OrientDBTestHelper) {
	h := testutils.NewOrientDBTestHelper(t)
	h.SetQueryHandler(func(cmd string) (int, string) {
		if strings.Contains(cmd, "broken") {
			return http.StatusInternalServerError, `{"errors":[{"content":"boom"}]}`
		}
		return http.StatusOK, threeRows
	})
	return openTestConnection(t, h), h
}

func TestStatement_BindParamIsLate(t *testing.T) {
	conn, h := newRowsConnection(t)

	stmt, err := conn.Prepare("SELECT * FROM T WHERE a = ? AND b = ?")
	require.NoError(t, err)
	assert.Equal(t, 2, stmt.NumInput())

	late := NewCell(StringValue("before"))
	snapshot := NewCell(StringValue("before"))
	require.NoError(t, stmt.BindParam(1, late))
	require.NoError(t, stmt.BindValue(2, snapshot.Load()))

	late.Set(StringValue("after"))
	snapshot.Set(StringValue("after"))

	require.NoError(t, stmt.Execute(context.Background()))
	req, _ := h.LastRequest()
	assert.Equal(t, "SELECT * FROM T WHERE a = 'after' AND b = 'before'", req.Command)
}

func TestStatement_BindErrors(t *testing.T) {
	conn, _ := newRowsConnection(t)
	stmt, err := conn.Prepare("SELECT * FROM T WHERE a = ?")
	require.NoError(t, err)

	err = stmt.BindValue(2, IntValue(1))
	assert.True(t, IsErrorCode(err, ErrCodeBinding))
	err = stmt.BindValue(1, IntValue(1), ParamType(77))
	assert.ErrorIs(t, err, ErrUnknownParamType)
	err = stmt.BindParam(1, nil)
	assert.True(t, IsErrorCode(err, ErrCodeBinding))

	err = stmt.Execute(context.Background())
	assert.True(t, IsErrorCode(err, ErrCodeBinding), "unbound placeholder")

	err = stmt.Execute(context.Background(), 1, 2)
	assert.True(t, IsErrorCode(err, ErrCodeBinding), "too many values")
	assert.True(t, stmt.binder.empty(), "failed BindAll binds nothing")
}

func TestStatement_IntegerBindingRejectsText(t *testing.T) {
	conn, h := newRowsConnection(t)
	h.Reset()

	stmt, err := conn.Prepare("SELECT * FROM T WHERE id = ?")
	require.NoError(t, err)
	require.NoError(t, stmt.BindValue(1, StringValue("1; DELETE FROM T"), ParamInteger))

	err = stmt.Execute(context.Background())
	assert.True(t, IsErrorCode(err, ErrCodeBinding))
	assert.Empty(t, h.Requests())
}

func TestStatement_ExecuteWithValues(t *testing.T) {
	conn, h := newRowsConnection(t)

	stmt, err := conn.Prepare("SELECT * FROM T WHERE a = ? AND b = ? AND c = ?")
	require.NoError(t, err)
	require.NoError(t, stmt.Execute(context.Background(), 10, false, "x"))

	req, _ := h.LastRequest()
	assert.Equal(t, "SELECT * FROM T WHERE a = 10 AND b = false AND c = 'x'", req.Command)
}

func TestStatement_Fetch(t *testing.T) {
	conn, _ := newRowsConnection(t)
	stmt, err := conn.Query(context.Background(), "SELECT id, name FROM T")
	require.NoError(t, err)

	assert.Equal(t, int64(3), stmt.RowCount())
	assert.Equal(t, 3, stmt.ColumnCount())

	rec, ok, err := stmt.Fetch(FetchAssoc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"id": int64(1), "name": "a", "extra": nil}, rec.Map())

	all, err := stmt.FetchAll(FetchNum)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []interface{}{int64(3), "c", "x"}, all[2].Values())

	v, ok := stmt.FetchColumn(1)
	assert.True(t, ok)
	assert.Equal(t, "b", v, "FetchAll does not move the cursor")

	_, ok = stmt.FetchColumn(9)
	assert.False(t, ok)

	rec, ok, err = stmt.Fetch(FetchDefault)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, FetchBoth, rec.Mode())

	_, ok, err = stmt.Fetch(FetchBoth)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok = stmt.FetchColumn(0)
	assert.False(t, ok)
}

func TestStatement_FetchMode(t *testing.T) {
	conn, _ := newRowsConnection(t)
	stmt, err := conn.Query(context.Background(), "SELECT FROM T")
	require.NoError(t, err)

	require.NoError(t, stmt.SetFetchMode(FetchNum))
	rec, ok, err := stmt.Fetch(FetchDefault)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, FetchNum, rec.Mode())

	err = stmt.SetFetchMode(FetchMode(12))
	assert.True(t, IsErrorCode(err, ErrCodeInvalidParam))
	_, _, err = stmt.Fetch(FetchMode(-1))
	assert.True(t, IsErrorCode(err, ErrCodeInvalidParam))
	_, err = stmt.FetchAll(FetchMode(5))
	assert.True(t, IsErrorCode(err, ErrCodeInvalidParam))
}

func TestStatement_All(t *testing.T) {
	conn, _ := newRowsConnection(t)
	stmt, err := conn.Query(context.Background(), "SELECT FROM T")
	require.NoError(t, err)

	var names []interface{}
	for i, rec := range stmt.All() {
		v, _ := rec.Get("name")
		names = append(names, v)
		if i == 1 {
			break
		}
	}
	assert.Equal(t, []interface{}{"a", "b"}, names)
}

func TestStatement_FailedExecuteClearsBuffer(t *testing.T) {
	conn, _ := newRowsConnection(t)
	stmt, err := conn.Prepare("SELECT FROM ?")
	require.NoError(t, err)

	require.NoError(t, stmt.Execute(context.Background(), "T"))
	assert.Equal(t, int64(3), stmt.RowCount())

	err = stmt.Execute(context.Background(), "broken")
	require.Error(t, err)
	assert.True(t, IsErrorCode(err, ErrCodeTransport))
	assert.Nil(t, stmt.Result())
	assert.Equal(t, int64(0), stmt.RowCount())
	assert.Equal(t, 0, stmt.ColumnCount())
	assert.Empty(t, stmt.Command())

	_, ok, err := stmt.Fetch(FetchBoth)
	require.NoError(t, err)
	assert.False(t, ok)
	all, err := stmt.FetchAll(FetchBoth)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStatement_CloseCursor(t *testing.T) {
	conn, h := newRowsConnection(t)
	stmt, err := conn.Prepare("SELECT FROM T WHERE a = ?")
	require.NoError(t, err)
	require.NoError(t, stmt.Execute(context.Background(), 1))
	_, _, _ = stmt.Fetch(FetchBoth)

	stmt.CloseCursor()
	assert.Nil(t, stmt.Result())
	assert.Equal(t, 0, stmt.ColumnCount())
	assert.Equal(t, "SELECT FROM T WHERE a = ?", stmt.Query())

	err = stmt.Execute(context.Background())
	assert.True(t, IsErrorCode(err, ErrCodeBinding), "bindings are cleared")

	require.NoError(t, stmt.Execute(context.Background(), 2))
	rec, ok, err := stmt.Fetch(FetchBoth)
	require.NoError(t, err)
	require.True(t, ok)
	v, _ := rec.Get("id")
	assert.Equal(t, int64(1), v, "cursor restarts")

	req, _ := h.LastRequest()
	assert.Equal(t, "SELECT FROM T WHERE a = 2", req.Command)
}
