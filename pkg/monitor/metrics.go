package monitor

import (
	"maps"
	"sync"
	"time"
)

// MetricsCollector 命令指标收集器
type MetricsCollector struct {
	mu             sync.RWMutex
	commandCount   int64
	commandSuccess int64
	commandError   int64
	totalDuration  time.Duration
	slowCount      int64
	errorCount     map[string]int64
	actionCount    map[string]int64
	startTime      time.Time
}

// NewMetricsCollector 创建指标收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		errorCount:  make(map[string]int64),
		actionCount: make(map[string]int64),
		startTime:   time.Now(),
	}
}

// RecordCommand 记录一次 REST 调用
func (m *MetricsCollector) RecordCommand(duration time.Duration, success bool, action string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commandCount++
	m.totalDuration += duration

	if success {
		m.commandSuccess++
	} else {
		m.commandError++
	}

	if action != "" {
		m.actionCount[action]++
	}
}

// RecordError 按错误类型计数，不影响命令总数
func (m *MetricsCollector) RecordError(errType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[errType]++
}

// RecordSlowCommand 记录慢命令
func (m *MetricsCollector) RecordSlowCommand() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slowCount++
}

// GetCommandCount 获取命令总数
func (m *MetricsCollector) GetCommandCount() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commandCount
}

// GetSuccessRate 获取成功率
func (m *MetricsCollector) GetSuccessRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.commandCount == 0 {
		return 0
	}
	return float64(m.commandSuccess) / float64(m.commandCount) * 100
}

// GetAvgDuration 获取平均耗时
func (m *MetricsCollector) GetAvgDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.commandCount == 0 {
		return 0
	}
	return m.totalDuration / time.Duration(m.commandCount)
}

// GetErrorCount 获取某类错误的次数
func (m *MetricsCollector) GetErrorCount(errType string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.errorCount[errType]
}

// GetActionCount 获取某个接口的调用次数
func (m *MetricsCollector) GetActionCount(action string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.actionCount[action]
}

// Reset 重置所有指标
func (m *MetricsCollector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.commandCount = 0
	m.commandSuccess = 0
	m.commandError = 0
	m.totalDuration = 0
	m.slowCount = 0
	m.errorCount = make(map[string]int64)
	m.actionCount = make(map[string]int64)
	m.startTime = time.Now()
}

// CommandMetrics 指标快照
type CommandMetrics struct {
	CommandCount   int64            `json:"command_count"`
	CommandSuccess int64            `json:"command_success"`
	CommandError   int64            `json:"command_error"`
	SuccessRate    float64          `json:"success_rate"`
	AvgDuration    time.Duration    `json:"avg_duration"`
	SlowCount      int64            `json:"slow_count"`
	ErrorCount     map[string]int64 `json:"error_count"`
	ActionCount    map[string]int64 `json:"action_count"`
	Uptime         time.Duration    `json:"uptime"`
}

// GetSnapshot 获取指标快照
func (m *MetricsCollector) GetSnapshot() *CommandMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var successRate float64
	var avgDuration time.Duration
	if m.commandCount > 0 {
		successRate = float64(m.commandSuccess) / float64(m.commandCount) * 100
		avgDuration = m.totalDuration / time.Duration(m.commandCount)
	}

	return &CommandMetrics{
		CommandCount:   m.commandCount,
		CommandSuccess: m.commandSuccess,
		CommandError:   m.commandError,
		SuccessRate:    successRate,
		AvgDuration:    avgDuration,
		SlowCount:      m.slowCount,
		ErrorCount:     maps.Clone(m.errorCount),
		ActionCount:    maps.Clone(m.actionCount),
		Uptime:         time.Since(m.startTime),
	}
}
