package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/kasuganosora/orientsql/pkg/config"
	"github.com/kasuganosora/orientsql/pkg/monitor"
	"github.com/kasuganosora/orientsql/pkg/orientdb"
	"github.com/kasuganosora/orientsql/pkg/sqldriver"
	"github.com/kasuganosora/orientsql/pkg/testutils"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDeps(t *testing.T) (*ToolDeps, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return &ToolDeps{
		DB:       sqlx.NewDb(db, "sqlmock"),
		Database: "demo",
		MaxRows:  100,
		Cache:    monitor.NewMetadataCache(10, time.Minute),
	}, mock
}

func makeCallToolRequest(args map[string]interface{}) mcp.CallToolRequest {
	var arguments interface{}
	if args != nil {
		arguments = map[string]any(args)
	}
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: arguments,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestHandleQuery_Select(t *testing.T) {
	deps, mock := setupMockDeps(t)
	mock.ExpectQuery("SELECT name, age FROM Users WHERE age > ?").
		WithArgs(int64(18)).
		WillReturnRows(sqlmock.NewRows([]string{"name", "age"}).
			AddRow("Alice", int64(30)).
			AddRow("Bob", nil))

	result, err := deps.HandleQuery(context.Background(), makeCallToolRequest(map[string]interface{}{
		"sql":  "SELECT name, age FROM Users WHERE age > ?",
		"args": []interface{}{float64(18)},
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "name\tage\nAlice\t30\nBob\tNULL\n\n(2 rows)", resultText(t, result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleQuery_Truncated(t *testing.T) {
	deps, mock := setupMockDeps(t)
	deps.MaxRows = 1
	mock.ExpectQuery("SELECT FROM V").
		WillReturnRows(sqlmock.NewRows([]string{"a"}).AddRow(int64(1)).AddRow(int64(2)))

	result, err := deps.HandleQuery(context.Background(), makeCallToolRequest(map[string]interface{}{"sql": "SELECT FROM V"}))
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n\n(truncated at 1 rows)", resultText(t, result))
}

func TestHandleQuery_Mutation(t *testing.T) {
	deps, mock := setupMockDeps(t)
	mock.ExpectExec("UPDATE Users SET active = true").WillReturnResult(sqlmock.NewResult(3, 3))

	result, err := deps.HandleQuery(context.Background(), makeCallToolRequest(map[string]interface{}{
		"sql": "UPDATE Users SET active = true",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Affected rows: 3", resultText(t, result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleQuery_DDLInvalidatesCache(t *testing.T) {
	deps, mock := setupMockDeps(t)
	mock.ExpectQuery(orientdb.SentinelListTables).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Users"))
	mock.ExpectExec("create class Orders").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(orientdb.SentinelListTables).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Users").AddRow("Orders"))

	ctx := context.Background()
	_, err := deps.HandleListTables(ctx, makeCallToolRequest(nil))
	require.NoError(t, err)
	// 第二次命中缓存，不再查询
	result, err := deps.HandleListTables(ctx, makeCallToolRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "Tables in demo:\n- Users\n", resultText(t, result))

	result, err = deps.HandleQuery(ctx, makeCallToolRequest(map[string]interface{}{"sql": "create class Orders"}))
	require.NoError(t, err)
	assert.Equal(t, "OK", resultText(t, result))

	result, err = deps.HandleListTables(ctx, makeCallToolRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, "Tables in demo:\n- Users\n- Orders\n", resultText(t, result))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleQuery_Errors(t *testing.T) {
	deps, mock := setupMockDeps(t)

	result, err := deps.HandleQuery(context.Background(), makeCallToolRequest(map[string]interface{}{"sql": "  "}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = deps.HandleQuery(context.Background(), makeCallToolRequest(map[string]interface{}{"sql": "SELECT 1", "args": "x"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "args must be an array")

	mock.ExpectQuery("SELECT FROM Missing").WillReturnError(errors.New("class not found"))
	result, err = deps.HandleQuery(context.Background(), makeCallToolRequest(map[string]interface{}{"sql": "SELECT FROM Missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "query failed: class not found")
}

func TestHandleDescribeTable(t *testing.T) {
	deps, mock := setupMockDeps(t)
	mock.ExpectQuery("Users~" + orientdb.SentinelListTableColumns).
		WillReturnRows(sqlmock.NewRows([]string{"name", "type"}).
			AddRow("email", "STRING").
			AddRow("@rid", "integer"))

	result, err := deps.HandleDescribeTable(context.Background(), makeCallToolRequest(map[string]interface{}{"table": "Users"}))
	require.NoError(t, err)
	assert.Equal(t, "Table: demo.Users\n\nname\ttype\nemail\tSTRING\n@rid\tinteger\n\n(2 rows)", resultText(t, result))

	result, err = deps.HandleDescribeTable(context.Background(), makeCallToolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleStats(t *testing.T) {
	deps, _ := setupMockDeps(t)
	result, err := deps.HandleStats(context.Background(), makeCallToolRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	deps.Monitor = monitor.New(time.Second, 10, nil)
	deps.Monitor.Observe(orientdb.CommandEvent{Action: orientdb.ActionQuery, Duration: time.Millisecond})
	result, err = deps.HandleStats(context.Background(), makeCallToolRequest(nil))
	require.NoError(t, err)

	var payload struct {
		Metrics monitor.CommandMetrics `json:"metrics"`
		Cache   monitor.CacheStats     `json:"cache"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, result)), &payload))
	assert.Equal(t, int64(1), payload.Metrics.CommandCount)
	assert.Equal(t, int64(1), payload.Metrics.ActionCount[orientdb.ActionQuery])
}

func TestServer_ListTools(t *testing.T) {
	deps, _ := setupMockDeps(t)
	deps.Monitor = monitor.New(time.Second, 10, nil)
	cfg := config.DefaultConfig().MCP

	srv := NewServer(deps, cfg).MCPServer()
	resp := srv.HandleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	b, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{"query", "list_tables", "describe_table", "list_indexes", "server_stats"} {
		assert.Contains(t, string(b), `"name":"`+name+`"`)
	}
}

// 通过真实驱动访问模拟的 OrientDB 服务
func TestTools_OverDriver(t *testing.T) {
	h := testutils.NewOrientDBTestHelper(t)
	h.AddClass("Users", testutils.Property{Name: "email", Type: "STRING"})
	h.AddIndex("Users.email", "UNIQUE")
	h.SetQueryHandler(func(string) (int, string) {
		return http.StatusOK, `{"result":[{"email":"a@b.com"}]}`
	})

	db, err := sqlx.Open(sqldriver.DriverName, h.DSN())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	deps := &ToolDeps{DB: db, Database: h.Database, MaxRows: 10}
	ctx := context.Background()

	result, err := deps.HandleListIndexes(ctx, makeCallToolRequest(map[string]interface{}{"table": "Users"}))
	require.NoError(t, err)
	text := resultText(t, result)
	assert.Contains(t, text, "Users\t0\tPRIMARY\t1\t@rid")
	assert.Contains(t, text, "Users\t0\temail\t1\temail")
	assert.Contains(t, text, "(2 rows)")

	result, err = deps.HandleQuery(ctx, makeCallToolRequest(map[string]interface{}{
		"sql":  "SELECT u.email FROM Users u WHERE u.email = ?",
		"args": []interface{}{"a@b.com"},
	}))
	require.NoError(t, err)
	assert.Equal(t, "email\na@b.com\n\n(1 rows)", resultText(t, result))
	assert.Contains(t, h.Commands(), "SELECT email FROM Users WHERE email = 'a@b.com'")
}
