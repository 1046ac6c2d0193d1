package testutils

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

const (
	DefaultDatabase = "demo"
	DefaultUser     = "root"
	DefaultPassword = "secret"

	indexManagerSQL = "select flatten(indexes) from metadata:indexmanager"
)

// Property 类的一个属性
type Property struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Mandatory bool   `json:"mandatory"`
	NotNull   bool   `json:"notNull"`
}

// Class 一个 OrientDB 类
type Class struct {
	Name       string     `json:"name"`
	SuperClass string     `json:"superClass,omitempty"`
	Properties []Property `json:"properties"`
}

// Index 索引管理器中的一个索引
type Index struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// RecordedRequest 服务端收到的一次请求
type RecordedRequest struct {
	Method    string
	Action    string
	Database  string
	Suffix    string
	Command   string
	Limit     string
	RequestID string
	UserAgent string
	Body      []byte
}

// Handler 自定义命令处理，返回状态码和响应体
type Handler func(command string) (int, string)

// OrientDBTestHelper 模拟 OrientDB REST 接口的测试服务器
// 可选地把 query 和 batch 命令交给内存 sqlite 执行
type OrientDBTestHelper struct {
	Server   *httptest.Server
	Database string
	User     string
	Password string

	mu            sync.Mutex
	requests      []RecordedRequest
	classes       []Class
	indexes       []Index
	connectStatus int
	queryHandler  Handler
	batchHandler  Handler
	db            *sql.DB
}

// NewOrientDBTestHelper 启动测试服务器，测试结束时自动关闭
func NewOrientDBTestHelper(t *testing.T) *OrientDBTestHelper {
	h := &OrientDBTestHelper{
		Database:      DefaultDatabase,
		User:          DefaultUser,
		Password:      DefaultPassword,
		connectStatus: http.StatusNoContent,
	}
	h.Server = httptest.NewServer(http.HandlerFunc(h.serveHTTP))
	t.Cleanup(func() {
		h.Server.Close()
		if h.db != nil {
			h.db.Close()
		}
	})
	return h
}

// WithSQLite 使用内存 sqlite 执行 query 和 batch 命令
func (h *OrientDBTestHelper) WithSQLite(t *testing.T) *OrientDBTestHelper {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err, "Failed to open sqlite")
	// :memory: 数据库只在单个连接内可见
	db.SetMaxOpenConns(1)
	h.mu.Lock()
	h.db = db
	h.mu.Unlock()
	return h
}

// SQLite 返回后端 sqlite 连接，没有启用时为 nil
func (h *OrientDBTestHelper) SQLite() *sql.DB {
	return h.db
}

// Host 服务器地址
func (h *OrientDBTestHelper) Host() string {
	u, _ := url.Parse(h.Server.URL)
	return u.Hostname()
}

// Port 服务器端口
func (h *OrientDBTestHelper) Port() int {
	u, _ := url.Parse(h.Server.URL)
	p, _ := strconv.Atoi(u.Port())
	return p
}

// DSN 返回指向测试服务器的 orientdb:// DSN
func (h *OrientDBTestHelper) DSN() string {
	return fmt.Sprintf("orientdb://%s:%s@%s:%d/%s", h.User, h.Password, h.Host(), h.Port(), h.Database)
}

// AddClass 注册一个类
func (h *OrientDBTestHelper) AddClass(name string, props ...Property) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if props == nil {
		props = []Property{}
	}
	h.classes = append(h.classes, Class{Name: name, Properties: props})
}

// AddIndex 注册一个索引，name 形如 Class.field
func (h *OrientDBTestHelper) AddIndex(name, typ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.indexes = append(h.indexes, Index{Name: name, Type: typ})
}

// SetConnectStatus 设置握手返回的状态码
func (h *OrientDBTestHelper) SetConnectStatus(status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connectStatus = status
}

// SetQueryHandler 自定义 query 命令的响应
func (h *OrientDBTestHelper) SetQueryHandler(fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.queryHandler = fn
}

// SetBatchHandler 自定义 batch 命令的响应
func (h *OrientDBTestHelper) SetBatchHandler(fn Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batchHandler = fn
}

// Requests 返回收到的所有请求
func (h *OrientDBTestHelper) Requests() []RecordedRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]RecordedRequest, len(h.requests))
	copy(out, h.requests)
	return out
}

// LastRequest 返回最后一个请求
func (h *OrientDBTestHelper) LastRequest() (RecordedRequest, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return RecordedRequest{}, false
	}
	return h.requests[len(h.requests)-1], true
}

// Commands 返回所有 query 和 batch 请求中的命令文本
func (h *OrientDBTestHelper) Commands() []string {
	var cmds []string
	for _, r := range h.Requests() {
		if r.Command != "" {
			cmds = append(cmds, r.Command)
		}
	}
	return cmds
}

// Reset 清空请求记录
func (h *OrientDBTestHelper) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = nil
}

func (h *OrientDBTestHelper) serveHTTP(w http.ResponseWriter, r *http.Request) {
	// SQL 中可能含有编码后的 /，按原始路径拆分
	parts := strings.Split(strings.TrimPrefix(r.URL.EscapedPath(), "/"), "/")
	rec := RecordedRequest{
		Method:    r.Method,
		Action:    parts[0],
		RequestID: r.Header.Get("X-Request-Id"),
		UserAgent: r.Header.Get("User-Agent"),
	}
	if len(parts) > 1 {
		rec.Database, _ = url.PathUnescape(parts[1])
	}
	if len(parts) > 2 {
		rec.Suffix = "/" + strings.Join(parts[2:], "/")
	}
	if r.Body != nil {
		rec.Body, _ = io.ReadAll(r.Body)
	}

	switch rec.Action {
	case "query":
		if len(parts) > 3 {
			rec.Command, _ = url.PathUnescape(parts[3])
		}
		if len(parts) > 4 {
			rec.Limit = parts[4]
		}
	case "batch":
		rec.Command = batchCommand(rec.Body)
	}

	h.mu.Lock()
	h.requests = append(h.requests, rec)
	h.mu.Unlock()

	user, pass, ok := r.BasicAuth()
	if !ok || user != h.User || pass != h.Password {
		writeJSON(w, http.StatusUnauthorized, `{"errors":[{"code":401,"reason":401,"content":"401 Unauthorized."}]}`)
		return
	}
	if rec.Database != h.Database {
		writeJSON(w, http.StatusUnauthorized, fmt.Sprintf(`{"errors":[{"code":401,"content":"database %q not found"}]}`, rec.Database))
		return
	}

	switch rec.Action {
	case "connect":
		h.mu.Lock()
		status := h.connectStatus
		h.mu.Unlock()
		w.WriteHeader(status)
	case "database":
		h.serveDatabase(w)
	case "class":
		name := ""
		if len(parts) > 2 {
			name, _ = url.PathUnescape(parts[2])
		}
		h.serveClass(w, name)
	case "query":
		h.serveQuery(w, rec.Command)
	case "batch":
		h.serveBatch(w, rec.Command)
	default:
		writeJSON(w, http.StatusNotFound, `{"errors":[{"code":404,"content":"unknown action"}]}`)
	}
}

func batchCommand(body []byte) string {
	var env struct {
		Operations []struct {
			Command string `json:"command"`
		} `json:"operations"`
	}
	if err := json.Unmarshal(body, &env); err != nil || len(env.Operations) == 0 {
		return ""
	}
	return env.Operations[0].Command
}

func (h *OrientDBTestHelper) serveDatabase(w http.ResponseWriter) {
	h.mu.Lock()
	payload := map[string]interface{}{
		"server":  map[string]string{"version": "3.2.0"},
		"classes": h.classes,
	}
	h.mu.Unlock()
	body, _ := json.Marshal(payload)
	writeJSON(w, http.StatusOK, string(body))
}

func (h *OrientDBTestHelper) serveClass(w http.ResponseWriter, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.classes {
		if c.Name == name {
			body, _ := json.Marshal(c)
			writeJSON(w, http.StatusOK, string(body))
			return
		}
	}
	writeJSON(w, http.StatusNotFound, fmt.Sprintf(`{"errors":[{"code":404,"content":"class %q not found"}]}`, name))
}

func (h *OrientDBTestHelper) serveQuery(w http.ResponseWriter, command string) {
	h.mu.Lock()
	handler, db, indexes := h.queryHandler, h.db, h.indexes
	h.mu.Unlock()

	if command == indexManagerSQL {
		body, _ := json.Marshal(map[string]interface{}{"result": indexes})
		writeJSON(w, http.StatusOK, string(body))
		return
	}
	if handler != nil {
		status, body := handler(command)
		writeJSON(w, status, body)
		return
	}
	if db != nil {
		body, err := queryRows(db, command)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody(err))
			return
		}
		writeJSON(w, http.StatusOK, body)
		return
	}
	writeJSON(w, http.StatusOK, `{"result":[]}`)
}

func (h *OrientDBTestHelper) serveBatch(w http.ResponseWriter, command string) {
	h.mu.Lock()
	handler, db := h.batchHandler, h.db
	h.mu.Unlock()

	if handler != nil {
		status, body := handler(command)
		writeJSON(w, status, body)
		return
	}
	if ok, err := h.applySchema(db, command); ok {
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorBody(err))
			return
		}
		writeJSON(w, http.StatusOK, `{"result":[]}`)
		return
	}
	if db == nil {
		writeJSON(w, http.StatusOK, `{"result":[]}`)
		return
	}

	res, err := db.Exec(command)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody(err))
		return
	}
	verb, _, _ := strings.Cut(strings.TrimSpace(command), " ")
	switch strings.ToUpper(verb) {
	case "INSERT", "UPDATE", "DELETE":
		n, _ := res.RowsAffected()
		writeJSON(w, http.StatusOK, strconv.FormatInt(n, 10))
	default:
		writeJSON(w, http.StatusOK, `{"result":[]}`)
	}
}

// applySchema 模拟 CREATE/DROP CLASS、PROPERTY、INDEX，更新类目录，
// 启用 sqlite 时同步建表和增删列。不是这几种命令时返回 false
func (h *OrientDBTestHelper) applySchema(db *sql.DB, command string) (bool, error) {
	f := strings.Fields(command)
	if len(f) < 3 {
		return false, nil
	}
	verb, kind := strings.ToUpper(f[0]), strings.ToUpper(f[1])
	if (verb != "CREATE" && verb != "DROP") || (kind != "CLASS" && kind != "PROPERTY" && kind != "INDEX") {
		return false, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	class, field, _ := strings.Cut(f[2], ".")
	pos := -1
	for i, c := range h.classes {
		if strings.EqualFold(c.Name, class) {
			pos = i
		}
	}

	switch verb + " " + kind {
	case "CREATE CLASS":
		if pos >= 0 {
			return true, fmt.Errorf("class %s already exists", class)
		}
		h.classes = append(h.classes, Class{Name: class, Properties: []Property{}})
	case "DROP CLASS":
		if pos < 0 {
			return true, fmt.Errorf("class %s not found", class)
		}
		h.classes = append(h.classes[:pos], h.classes[pos+1:]...)
		if db != nil {
			if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %q", class)); err != nil {
				return true, err
			}
		}
	case "CREATE PROPERTY":
		if pos < 0 || field == "" || len(f) < 4 {
			return true, fmt.Errorf("invalid property %s", f[2])
		}
		typ := strings.ToUpper(f[3])
		if db != nil {
			ddl := fmt.Sprintf("ALTER TABLE %q ADD COLUMN %q %s", class, field, sqliteAffinity(typ))
			if len(h.classes[pos].Properties) == 0 {
				ddl = fmt.Sprintf("CREATE TABLE %q (%q %s)", class, field, sqliteAffinity(typ))
			}
			if _, err := db.Exec(ddl); err != nil {
				return true, err
			}
		}
		notNull := strings.Contains(strings.ToUpper(command), "NOTNULL TRUE")
		h.classes[pos].Properties = append(h.classes[pos].Properties, Property{Name: field, Type: typ, NotNull: notNull})
	case "DROP PROPERTY":
		if pos < 0 {
			return true, fmt.Errorf("class %s not found", class)
		}
		props := h.classes[pos].Properties[:0]
		for _, p := range h.classes[pos].Properties {
			if p.Name != field {
				props = append(props, p)
			}
		}
		h.classes[pos].Properties = props
		if db != nil {
			if _, err := db.Exec(fmt.Sprintf("ALTER TABLE %q DROP COLUMN %q", class, field)); err != nil {
				return true, err
			}
		}
	case "CREATE INDEX":
		typ := "NOTUNIQUE"
		if len(f) > 3 {
			typ = strings.ToUpper(f[3])
		}
		h.indexes = append(h.indexes, Index{Name: f[2], Type: typ})
	case "DROP INDEX":
		idx := h.indexes[:0]
		for _, ix := range h.indexes {
			if ix.Name != f[2] {
				idx = append(idx, ix)
			}
		}
		h.indexes = idx
	}
	return true, nil
}

func sqliteAffinity(orientType string) string {
	switch orientType {
	case "SHORT", "INTEGER", "LONG", "BOOLEAN":
		return "INTEGER"
	case "FLOAT", "DOUBLE":
		return "REAL"
	case "BINARY":
		return "BLOB"
	default:
		return "TEXT"
	}
}

// queryRows 执行查询，按列顺序生成 {"result":[...]}
func queryRows(db *sql.DB, command string) (string, error) {
	rows, err := db.Query(command)
	if err != nil {
		return "", err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"result":[`)
	first := true
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return "", err
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		buf.WriteByte('{')
		for i, col := range cols {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, _ := json.Marshal(col)
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			val, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	buf.WriteString(`]}`)
	return buf.String(), nil
}

func errorBody(err error) string {
	msg, _ := json.Marshal(err.Error())
	return fmt.Sprintf(`{"errors":[{"code":500,"content":%s}]}`, msg)
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
