package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/kasuganosora/orientsql/pkg/orientdb"
)

// Monitor 把 Connection 的命令事件汇总到指标和慢命令日志
type Monitor struct {
	Metrics *MetricsCollector
	Slow    *SlowCommandAnalyzer
	logger  orientdb.Logger
}

// New 创建监控器，logger 为 nil 时不输出慢命令日志
func New(threshold time.Duration, maxEntries int, logger orientdb.Logger) *Monitor {
	if logger == nil {
		logger = orientdb.NewNoOpLogger()
	}
	return &Monitor{
		Metrics: NewMetricsCollector(),
		Slow:    NewSlowCommandAnalyzer(threshold, maxEntries),
		logger:  logger,
	}
}

// Hook 返回传给 orientdb.WithCommandHook 的回调
func (m *Monitor) Hook() orientdb.CommandHook {
	return m.Observe
}

// Observe 记录一次命令事件
func (m *Monitor) Observe(e orientdb.CommandEvent) {
	m.Metrics.RecordCommand(e.Duration, e.Err == nil, e.Action)
	if e.Err != nil {
		m.Metrics.RecordError(ErrorType(e.Err))
	}

	if !m.Slow.IsSlow(e.Duration) {
		return
	}
	entry := SlowCommandLog{
		RequestID:  e.RequestID,
		Action:     e.Action,
		Command:    e.Command,
		Duration:   e.Duration,
		StatusCode: e.StatusCode,
	}
	if e.Err != nil {
		entry.Error = e.Err.Error()
	}
	if m.Slow.Record(entry) > 0 {
		m.Metrics.RecordSlowCommand()
		m.logger.Warn("slow orientdb command [%s] %s %s (%s)", e.RequestID, e.Action, e.Command, e.Duration)
	}
}

// ErrorType 错误分类：HTTP 错误按状态码，其余按错误码
func ErrorType(err error) string {
	var httpErr *orientdb.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("http_%d", httpErr.StatusCode)
	}
	if code := orientdb.GetErrorCode(err); code != "" {
		return string(code)
	}
	return "unknown"
}
