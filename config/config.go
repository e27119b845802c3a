// Package config 提供统一的配置管理
//
// 主 Config 结构体嵌入所有子配置，支持从 JSON 文件加载，
// 并允许环境变量覆盖个别字段（编排层通过环境变量传入监听端口）。
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Server.Port = 8888
//
//	// 从文件加载并应用环境变量覆盖
//	cfg, err := config.LoadFile("/etc/rendezvous/config.json")
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
)

// EnvPort 编排层传入监听端口的环境变量
const EnvPort = "RENDEZVOUS_PORT"

// Config 是 Rendezvous 服务的完整配置结构
type Config struct {
	// Server 服务进程配置
	Server ServerConfig `json:"server"`

	// Rendezvous 协议核心配置
	Rendezvous RendezvousConfig `json:"rendezvous"`

	// Storage 持久化配置
	Storage StorageConfig `json:"storage"`

	// Log 日志配置
	Log LogConfig `json:"log"`
}

// ServerConfig 服务进程配置
type ServerConfig struct {
	// ListenAddr 监听地址
	ListenAddr string `json:"listen_addr"`

	// Port 监听端口
	Port int `json:"port"`

	// AnnounceAddrs 对外公布的地址（IP 或域名），用于拼接可分享的
	// /ip4 和 /dns4 连接地址；为空时只打印监听地址
	AnnounceAddrs []string `json:"announce_addrs"`

	// MetricsAddr 指标与健康检查的 HTTP 监听地址；为空时禁用
	MetricsAddr string `json:"metrics_addr"`

	// IdleTimeout 协议流空闲超时
	IdleTimeout Duration `json:"idle_timeout"`

	// StatsInterval 周期性统计日志间隔；0 表示禁用
	StatsInterval Duration `json:"stats_interval"`
}

// RendezvousConfig 协议核心配置
type RendezvousConfig struct {
	// MinTTL 注册最小有效期
	MinTTL Duration `json:"min_ttl"`

	// MaxTTL 注册最大有效期
	MaxTTL Duration `json:"max_ttl"`

	// DefaultTTL 请求未携带 TTL 时的默认有效期
	DefaultTTL Duration `json:"default_ttl"`

	// CleanupInterval 过期清理间隔
	CleanupInterval Duration `json:"cleanup_interval"`

	// MaxRegistrations 全局最大注册数
	MaxRegistrations int `json:"max_registrations"`

	// MaxNamespaces 最大命名空间数
	MaxNamespaces int `json:"max_namespaces"`

	// MaxRegistrationsPerNamespace 单命名空间最大注册数
	MaxRegistrationsPerNamespace int `json:"max_registrations_per_namespace"`

	// MaxRegistrationsPerPeer 单节点最大注册数
	MaxRegistrationsPerPeer int `json:"max_registrations_per_peer"`

	// DefaultDiscoverLimit 发现请求的默认返回数量
	DefaultDiscoverLimit int `json:"default_discover_limit"`

	// MaxDiscoverLimit 发现请求的服务端上限
	MaxDiscoverLimit int `json:"max_discover_limit"`
}

// StorageConfig 持久化配置
type StorageConfig struct {
	// Enabled 是否持久化注册信息
	Enabled bool `json:"enabled"`

	// Path 数据目录
	Path string `json:"path"`

	// SyncWrites 每次写入落盘
	SyncWrites bool `json:"sync_writes"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别: debug/info/warn/error
	Level string `json:"level"`

	// Format 输出格式: text/json
	Format string `json:"format"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:    "0.0.0.0",
			Port:          8888,
			MetricsAddr:   ":9090",
			IdleTimeout:   Duration(2 * time.Minute),
			StatsInterval: Duration(1 * time.Minute),
		},
		Rendezvous: RendezvousConfig{
			MinTTL:                       Duration(2 * time.Minute),
			MaxTTL:                       Duration(72 * time.Hour),
			DefaultTTL:                   Duration(2 * time.Hour),
			CleanupInterval:              Duration(30 * time.Second),
			MaxRegistrations:             100000,
			MaxNamespaces:                1000,
			MaxRegistrationsPerNamespace: 50000,
			MaxRegistrationsPerPeer:      100,
			DefaultDiscoverLimit:         100,
			MaxDiscoverLimit:             1000,
		},
		Storage: StorageConfig{
			Enabled: false,
			Path:    "data/rendezvous",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// FromJSON 从 JSON 数据解析配置
//
// 未出现的字段保持默认值。
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从文件加载配置并应用环境变量覆盖
//
// path 为空时直接使用默认配置（仍应用环境变量覆盖）。
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		cfg, err = FromJSON(data)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv 应用环境变量覆盖
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvPort, v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// ToJSON 序列化为 JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate 验证配置
//
// 汇总所有校验错误一次性返回。
func (c *Config) Validate() error {
	var errs error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = multierr.Append(errs, fmt.Errorf("server: invalid port %d", c.Server.Port))
	}
	if c.Server.IdleTimeout <= 0 {
		errs = multierr.Append(errs, errors.New("server: idle timeout must be positive"))
	}

	r := &c.Rendezvous
	if r.MinTTL <= 0 {
		errs = multierr.Append(errs, errors.New("rendezvous: min TTL must be positive"))
	}
	if r.MaxTTL < r.MinTTL {
		errs = multierr.Append(errs, errors.New("rendezvous: max TTL must not be less than min TTL"))
	}
	if r.DefaultTTL < r.MinTTL || r.DefaultTTL > r.MaxTTL {
		errs = multierr.Append(errs, errors.New("rendezvous: default TTL must be within [min TTL, max TTL]"))
	}
	if r.CleanupInterval <= 0 {
		errs = multierr.Append(errs, errors.New("rendezvous: cleanup interval must be positive"))
	}
	if r.MaxRegistrations <= 0 || r.MaxNamespaces <= 0 ||
		r.MaxRegistrationsPerNamespace <= 0 || r.MaxRegistrationsPerPeer <= 0 {
		errs = multierr.Append(errs, errors.New("rendezvous: quotas must be positive"))
	}
	if r.DefaultDiscoverLimit <= 0 || r.MaxDiscoverLimit <= 0 {
		errs = multierr.Append(errs, errors.New("rendezvous: discover limits must be positive"))
	}

	if c.Storage.Enabled && c.Storage.Path == "" {
		errs = multierr.Append(errs, errors.New("storage: path required when enabled"))
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log: invalid level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = multierr.Append(errs, fmt.Errorf("log: invalid format %q", c.Log.Format))
	}

	return errs
}
