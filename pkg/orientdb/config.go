package orientdb

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultHost      = "localhost"
	DefaultPort      = 2480
	DefaultScheme    = "http"
	DefaultTimeoutMs = 30000
	DefaultUserAgent = "orientsql/1.0"
)

// Config OrientDB REST 连接配置
type Config struct {
	Scheme   string `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Host     string `json:"host,omitempty" yaml:"host,omitempty"`
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Database string `json:"database" yaml:"database"`
	User     string `json:"user,omitempty" yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`

	// 单次 HTTP 请求超时，<=0 时使用默认值
	TimeoutMs int    `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`

	// 追加到 query 命令 URL 末尾的结果条数上限。0 表示不追加（服务端默认），-1 表示不限
	QueryLimit int `json:"query_limit,omitempty" yaml:"query_limit,omitempty"`
}

// ApplyDefaults 填充默认值
func (c *Config) ApplyDefaults() {
	if c.Scheme == "" {
		c.Scheme = DefaultScheme
	}
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port <= 0 {
		c.Port = DefaultPort
	}
	if c.TimeoutMs <= 0 {
		c.TimeoutMs = DefaultTimeoutMs
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database) == "" {
		return configError("invalid config", ErrMissingDatabase)
	}
	if c.Scheme != "" && c.Scheme != "http" && c.Scheme != "https" {
		return configError(fmt.Sprintf("unsupported scheme %q", c.Scheme), nil)
	}
	if c.QueryLimit < -1 {
		return configError(fmt.Sprintf("invalid query limit %d", c.QueryLimit), nil)
	}
	return nil
}

// Address 返回服务端根地址，例如 http://localhost:2480
func (c *Config) Address() string {
	scheme := c.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	return scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// GetTimeout 获取超时时间
func (c *Config) GetTimeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
