package orientdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// REST action 名称
const (
	ActionConnect  = "connect"
	ActionDatabase = "database"
	ActionClass    = "class"
	ActionQuery    = "query"
	ActionBatch    = "batch"
)

// HeaderRequestID 每个请求携带的请求 ID 头
const HeaderRequestID = "X-Request-Id"

// CommandEvent 一次 REST 调用的记录
type CommandEvent struct {
	RequestID  string
	Method     string
	Action     string
	Command    string
	StatusCode int
	Duration   time.Duration
	Err        error
}

// CommandHook 每次 REST 调用结束后回调
type CommandHook func(CommandEvent)

// batchEnvelope 写命令封装，非事务、单操作
type batchEnvelope struct {
	Transaction bool             `json:"transaction"`
	Operations  []batchOperation `json:"operations"`
}

type batchOperation struct {
	Type     string `json:"type"`
	Language string `json:"language"`
	Command  string `json:"command"`
}

func newBatchEnvelope(command string) batchEnvelope {
	return batchEnvelope{
		Transaction: false,
		Operations: []batchOperation{{
			Type:     "cmd",
			Language: "sql",
			Command:  command,
		}},
	}
}

// Transport 持有唯一的 HTTP 客户端，对同一个数据库发起 REST 调用。
// 调用按顺序串行执行。
type Transport struct {
	client *http.Client
	cfg    *Config
	sem    *semaphore.Weighted
	logger Logger
	hook   CommandHook
}

func newTransport(cfg *Config, client *http.Client, logger Logger, hook CommandHook) *Transport {
	if client == nil {
		client = &http.Client{Timeout: cfg.GetTimeout()}
	}
	if logger == nil {
		logger = NewNoOpLogger()
	}
	return &Transport{
		client: client,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(1),
		logger: logger,
		hook:   hook,
	}
}

// URL 构建 /{action}/{db}{suffix}
func (t *Transport) URL(action, suffix string) (string, error) {
	if action == "" {
		return "", configError("cannot build url", ErrMissingAction)
	}
	return t.cfg.Address() + "/" + action + "/" + url.PathEscape(t.cfg.Database) + suffix, nil
}

// Handshake 发送 GET /connect/{db}，期望 204
func (t *Transport) Handshake(ctx context.Context) error {
	u, err := t.URL(ActionConnect, "")
	if err != nil {
		return err
	}
	_, err = t.do(ctx, http.MethodGet, ActionConnect, u, nil, "", http.StatusNoContent)
	return err
}

// Invoke 发送 GET /{action}/{db}{suffix}，返回原始响应体
func (t *Transport) Invoke(ctx context.Context, action, suffix string) ([]byte, error) {
	u, err := t.URL(action, suffix)
	if err != nil {
		return nil, err
	}
	return t.do(ctx, http.MethodGet, action, u, nil, suffix, http.StatusOK)
}

// InvokeBatch 以 batch 封装 POST 一条 SQL 命令
func (t *Transport) InvokeBatch(ctx context.Context, command string) ([]byte, error) {
	u, err := t.URL(ActionBatch, "")
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(newBatchEnvelope(command)); err != nil {
		return nil, NewError(ErrCodeProtocol, "failed to encode batch envelope", err)
	}
	return t.do(ctx, http.MethodPost, ActionBatch, u, bytes.TrimRight(buf.Bytes(), "\n"), command, http.StatusOK)
}

// CloseIdleConnections 释放空闲的底层连接
func (t *Transport) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}

func (t *Transport) do(ctx context.Context, method, action, rawURL string, body []byte, command string, expect int) ([]byte, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, NewError(ErrCodeIO, "transport busy", err)
	}
	defer t.sem.Release(1)

	requestID := uuid.New().String()
	start := time.Now()
	event := CommandEvent{
		RequestID: requestID,
		Method:    method,
		Action:    action,
		Command:   command,
	}

	respBody, status, err := t.roundTrip(ctx, method, rawURL, body, requestID, expect)
	event.StatusCode = status
	event.Duration = time.Since(start)
	event.Err = err

	if err != nil {
		t.logger.Warn("orientdb %s %s [%s] failed after %s: %v", method, action, requestID, event.Duration, err)
	} else {
		t.logger.Debug("orientdb %s %s [%s] -> %d (%s)", method, action, requestID, status, event.Duration)
	}
	if t.hook != nil {
		t.hook(event)
	}
	return respBody, err
}

func (t *Transport) roundTrip(ctx context.Context, method, rawURL string, body []byte, requestID string, expect int) ([]byte, int, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, 0, configError("failed to create request", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.cfg.UserAgent)
	req.Header.Set(HeaderRequestID, requestID)
	req.SetBasicAuth(t.cfg.User, t.cfg.Password)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, 0, NewError(ErrCodeIO, fmt.Sprintf("%s %s", method, redactURL(rawURL)), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, NewError(ErrCodeIO, "failed to read response body", err)
	}

	if resp.StatusCode != expect {
		return respBody, resp.StatusCode, NewError(ErrCodeTransport, "unexpected status", &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			URL:        redactURL(rawURL),
			Body:       string(respBody),
		})
	}

	if expect == http.StatusOK && len(bytes.TrimSpace(respBody)) == 0 {
		return nil, resp.StatusCode, NewError(ErrCodeIO, fmt.Sprintf("%s %s", method, redactURL(rawURL)), ErrEmptyResponse)
	}
	return respBody, resp.StatusCode, nil
}

// rawURLEncode 按 RFC 3986 编码，空格编码为 %20
func rawURLEncode(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// redactURL 去掉 URL 中可能存在的凭据
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.User == nil {
		return rawURL
	}
	return u.Redacted()
}
