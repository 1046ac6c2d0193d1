package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kasuganosora/orientsql/pkg/orientdb"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath 指定配置文件路径的环境变量
const EnvConfigPath = "ORIENTSQL_CONFIG"

// Config 应用程序配置
type Config struct {
	OrientDB orientdb.Config `json:"orientdb" yaml:"orientdb"`
	Log      LogConfig       `json:"log" yaml:"log"`
	Monitor  MonitorConfig   `json:"monitor" yaml:"monitor"`
	MCP      MCPConfig       `json:"mcp" yaml:"mcp"`
	Export   ExportConfig    `json:"export" yaml:"export"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// MonitorConfig 监控配置
type MonitorConfig struct {
	SlowQuery SlowQueryConfig `json:"slow_query" yaml:"slow_query"`
}

// SlowQueryConfig 慢命令配置
type SlowQueryConfig struct {
	Threshold  time.Duration `json:"threshold" yaml:"threshold"`
	MaxEntries int           `json:"max_entries" yaml:"max_entries"`
}

// MCPConfig MCP 服务配置
type MCPConfig struct {
	Name      string `json:"name" yaml:"name"`
	Version   string `json:"version" yaml:"version"`
	MaxRows   int    `json:"max_rows" yaml:"max_rows"`
	Transport string `json:"transport" yaml:"transport"` // stdio or http
	Addr      string `json:"addr" yaml:"addr"`

	// 元数据工具结果缓存
	CacheSize int           `json:"cache_size" yaml:"cache_size"`
	CacheTTL  time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// ExportConfig 导出配置
type ExportConfig struct {
	SheetName string `json:"sheet_name" yaml:"sheet_name"`
	Delimiter string `json:"delimiter" yaml:"delimiter"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{
		OrientDB: orientdb.Config{
			Database: "demo",
			User:     "root",
		},
		Log: LogConfig{
			Level: "info",
		},
		Monitor: MonitorConfig{
			SlowQuery: SlowQueryConfig{
				Threshold:  1 * time.Second,
				MaxEntries: 1000,
			},
		},
		MCP: MCPConfig{
			Name:      "orientsql",
			Version:   "1.0.0",
			MaxRows:   500,
			Transport: "stdio",
			Addr:      "127.0.0.1:8090",
			CacheSize: 100,
			CacheTTL:  time.Minute,
		},
		Export: ExportConfig{
			SheetName: "Sheet1",
			Delimiter: ",",
		},
	}
	cfg.OrientDB.ApplyDefaults()
	return cfg
}

// LoadConfig 从文件加载配置，.yaml/.yml 按 YAML 解析，其余按 JSON
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("配置文件不存在: %s", configPath)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	config.OrientDB.ApplyDefaults()

	if err := validateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfigOrDefault 尝试从环境变量和常见位置加载配置文件
func LoadConfigOrDefault() *Config {
	possiblePaths := []string{
		"orientsql.yaml",
		"orientsql.json",
		"./config/orientsql.yaml",
		"./config/orientsql.json",
		"/etc/orientsql/config.yaml",
	}

	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		if config, err := LoadConfig(envPath); err == nil {
			return config
		}
	}

	for _, path := range possiblePaths {
		if absPath, err := filepath.Abs(path); err == nil {
			if config, err := LoadConfig(absPath); err == nil {
				return config
			}
		}
	}

	return DefaultConfig()
}

// validateConfig 验证配置
func validateConfig(config *Config) error {
	if err := config.OrientDB.Validate(); err != nil {
		return err
	}

	if config.OrientDB.Port < 1 || config.OrientDB.Port > 65535 {
		return fmt.Errorf("无效的端口号: %d", config.OrientDB.Port)
	}

	if config.OrientDB.TimeoutMs < 0 {
		return fmt.Errorf("超时时间不能为负数")
	}

	if config.Monitor.SlowQuery.MaxEntries < 1 {
		return fmt.Errorf("慢命令最大条目数必须大于0")
	}

	if config.MCP.MaxRows < 1 {
		return fmt.Errorf("MCP 最大返回行数必须大于0")
	}

	if config.MCP.CacheSize < 1 {
		return fmt.Errorf("MCP 缓存大小必须大于0")
	}

	switch config.MCP.Transport {
	case "stdio", "http":
	default:
		return fmt.Errorf("无效的 MCP 传输方式: %s", config.MCP.Transport)
	}

	if len([]rune(config.Export.Delimiter)) != 1 {
		return fmt.Errorf("导出分隔符必须是单个字符")
	}

	return nil
}

// NewLogger 按 log.level 创建写到 stderr 的日志器，stdout 留给查询结果
func (c *Config) NewLogger() orientdb.Logger {
	return orientdb.NewDefaultLoggerWithOutput(orientdb.ParseLogLevel(c.Log.Level), os.Stderr)
}
