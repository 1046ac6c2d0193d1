package monitor

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// SlowCommandLog 慢命令日志项
type SlowCommandLog struct {
	ID         int64         `json:"id"`
	RequestID  string        `json:"request_id"`
	Action     string        `json:"action"`
	Command    string        `json:"command"`
	Duration   time.Duration `json:"duration"`
	Timestamp  time.Time     `json:"timestamp"`
	StatusCode int           `json:"status_code"`
	Error      string        `json:"error,omitempty"`
}

// SlowCommandAnalyzer 保留最近 maxEntries 条超过阈值的命令
type SlowCommandAnalyzer struct {
	mu         sync.RWMutex
	entries    []*SlowCommandLog
	threshold  time.Duration
	maxEntries int
	nextID     int64
}

// NewSlowCommandAnalyzer 创建慢命令分析器
func NewSlowCommandAnalyzer(threshold time.Duration, maxEntries int) *SlowCommandAnalyzer {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &SlowCommandAnalyzer{
		entries:    make([]*SlowCommandLog, 0, maxEntries),
		threshold:  threshold,
		maxEntries: maxEntries,
		nextID:     1,
	}
}

// IsSlow 检查耗时是否达到阈值
func (s *SlowCommandAnalyzer) IsSlow(duration time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return duration >= s.threshold
}

// Record 记录慢命令，未达到阈值时返回 0
func (s *SlowCommandAnalyzer) Record(entry SlowCommandLog) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.Duration < s.threshold {
		return 0
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	entry.ID = s.nextID
	s.nextID++

	s.entries = append(s.entries, &entry)
	// 超出最大条目数时移除最旧的记录
	if len(s.entries) > s.maxEntries {
		s.entries = s.entries[1:]
	}
	return entry.ID
}

// GetAll 获取所有慢命令，按记录顺序
func (s *SlowCommandAnalyzer) GetAll() []*SlowCommandLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*SlowCommandLog, len(s.entries))
	copy(result, s.entries)
	return result
}

// GetByAction 获取指定接口的慢命令
func (s *SlowCommandAnalyzer) GetByAction(action string) []*SlowCommandLog {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*SlowCommandLog{}
	for _, log := range s.entries {
		if log.Action == action {
			result = append(result, log)
		}
	}
	return result
}

// Count 获取慢命令数量
func (s *SlowCommandAnalyzer) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear 清空所有慢命令
func (s *SlowCommandAnalyzer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]*SlowCommandLog, 0, s.maxEntries)
	s.nextID = 1
}

// SetThreshold 设置阈值
func (s *SlowCommandAnalyzer) SetThreshold(threshold time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threshold = threshold
}

// GetThreshold 获取阈值
func (s *SlowCommandAnalyzer) GetThreshold() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.threshold
}

// SlowCommandAnalysis 慢命令分析结果
type SlowCommandAnalysis struct {
	TotalCommands int
	AvgDuration   time.Duration
	MaxDuration   time.Duration
	MinDuration   time.Duration
	ErrorCount    int
	ActionStats   map[string]*ActionStats
}

// ActionStats 单个接口的慢命令统计
type ActionStats struct {
	Action        string
	Count         int
	TotalDuration time.Duration
	MaxDuration   time.Duration
	AvgDuration   time.Duration
}

// Analyze 汇总慢命令
func (s *SlowCommandAnalyzer) Analyze() *SlowCommandAnalysis {
	s.mu.RLock()
	defer s.mu.RUnlock()

	analysis := &SlowCommandAnalysis{ActionStats: make(map[string]*ActionStats)}
	if len(s.entries) == 0 {
		return analysis
	}

	analysis.TotalCommands = len(s.entries)
	analysis.MaxDuration = s.entries[0].Duration
	analysis.MinDuration = s.entries[0].Duration

	var total time.Duration
	for _, log := range s.entries {
		total += log.Duration
		analysis.MaxDuration = max(analysis.MaxDuration, log.Duration)
		analysis.MinDuration = min(analysis.MinDuration, log.Duration)
		if log.Error != "" {
			analysis.ErrorCount++
		}

		stats, ok := analysis.ActionStats[log.Action]
		if !ok {
			stats = &ActionStats{Action: log.Action}
			analysis.ActionStats[log.Action] = stats
		}
		stats.Count++
		stats.TotalDuration += log.Duration
		stats.MaxDuration = max(stats.MaxDuration, log.Duration)
	}

	analysis.AvgDuration = total / time.Duration(len(s.entries))
	for _, stats := range analysis.ActionStats {
		stats.AvgDuration = stats.TotalDuration / time.Duration(stats.Count)
	}
	return analysis
}

// GetRecommendations 根据慢命令给出建议，结果顺序固定
func (s *SlowCommandAnalyzer) GetRecommendations() []string {
	analysis := s.Analyze()
	recommendations := []string{}

	if analysis.TotalCommands > 100 {
		recommendations = append(recommendations, fmt.Sprintf("慢命令数量过多(%d)，建议检查查询和索引", analysis.TotalCommands))
	}

	if analysis.AvgDuration > time.Second {
		recommendations = append(recommendations, fmt.Sprintf("平均耗时较长(%v)，建议添加索引或配置 query_limit", analysis.AvgDuration))
	}

	if analysis.TotalCommands > 0 {
		errorRate := float64(analysis.ErrorCount) / float64(analysis.TotalCommands)
		if errorRate > 0.1 {
			recommendations = append(recommendations, fmt.Sprintf("慢命令错误率过高(%.2f%%)，建议检查服务端日志", errorRate*100))
		}
	}

	actions := make([]string, 0, len(analysis.ActionStats))
	for action := range analysis.ActionStats {
		actions = append(actions, action)
	}
	sort.Strings(actions)
	for _, action := range actions {
		if stats := analysis.ActionStats[action]; stats.Count > 10 {
			recommendations = append(recommendations, fmt.Sprintf("接口 %s 有 %d 条慢命令", action, stats.Count))
		}
	}

	return recommendations
}
