package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

// TestConfig_Defaults 测试默认配置有效
func TestConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8888, cfg.Server.Port)
	assert.Equal(t, 2*time.Minute, cfg.Rendezvous.MinTTL.Duration())
	assert.Equal(t, 72*time.Hour, cfg.Rendezvous.MaxTTL.Duration())
	assert.False(t, cfg.Storage.Enabled)
}

// TestConfig_FromJSON 测试 JSON 解析与默认值保留
func TestConfig_FromJSON(t *testing.T) {
	data := []byte(`{
		"server": {"port": 9999},
		"rendezvous": {"min_ttl": "5m", "cleanup_interval": "10s"},
		"log": {"level": "debug"}
	}`)

	cfg, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 5*time.Minute, cfg.Rendezvous.MinTTL.Duration())
	assert.Equal(t, 10*time.Second, cfg.Rendezvous.CleanupInterval.Duration())
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未出现的字段保持默认值
	assert.Equal(t, "0.0.0.0", cfg.Server.ListenAddr)
	assert.Equal(t, 72*time.Hour, cfg.Rendezvous.MaxTTL.Duration())
	assert.Equal(t, 100, cfg.Rendezvous.DefaultDiscoverLimit)
}

// TestConfig_FromJSONInvalid 测试非法 JSON
func TestConfig_FromJSONInvalid(t *testing.T) {
	_, err := FromJSON([]byte(`{not json`))
	assert.Error(t, err)

	_, err = FromJSON([]byte(`{"rendezvous": {"min_ttl": "not-a-duration"}}`))
	assert.Error(t, err)
}

// TestConfig_JSONRoundTrip 测试序列化往返
func TestConfig_JSONRoundTrip(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.Port = 7777
	cfg.Rendezvous.DefaultTTL = Duration(3 * time.Hour)

	data, err := cfg.ToJSON()
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	restored, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, cfg, restored)
}

// TestConfig_LoadFile 测试从文件加载
func TestConfig_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server": {"port": 6666}}`), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.Port)

	// 空路径返回默认配置
	cfg, err = LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 8888, cfg.Server.Port)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// TestConfig_ApplyEnv 测试环境变量覆盖端口
func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv(EnvPort, "12345")

	cfg := NewConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, 12345, cfg.Server.Port)

	t.Setenv(EnvPort, "not-a-port")
	assert.Error(t, cfg.ApplyEnv())
}

// TestConfig_Validate 测试校验错误聚合
func TestConfig_Validate(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.Port = -1
	cfg.Rendezvous.MinTTL = 0
	cfg.Log.Level = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	assert.GreaterOrEqual(t, len(multierr.Errors(err)), 3)
}

// TestConfig_ValidateTTLOrder 测试 TTL 区间校验
func TestConfig_ValidateTTLOrder(t *testing.T) {
	cfg := NewConfig()
	cfg.Rendezvous.MinTTL = Duration(10 * time.Hour)
	cfg.Rendezvous.MaxTTL = Duration(1 * time.Hour)
	assert.Error(t, cfg.Validate())

	cfg = NewConfig()
	cfg.Rendezvous.DefaultTTL = Duration(100 * time.Hour)
	assert.Error(t, cfg.Validate())
}

// TestConfig_ValidateStorage 测试持久化配置校验
func TestConfig_ValidateStorage(t *testing.T) {
	cfg := NewConfig()
	cfg.Storage.Enabled = true
	cfg.Storage.Path = ""
	assert.Error(t, cfg.Validate())

	cfg.Storage.Path = "/var/lib/rendezvous"
	assert.NoError(t, cfg.Validate())
}
