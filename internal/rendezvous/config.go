package rendezvous

import (
	"errors"
	"time"

	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ============================================================================
//                              Store 配置
// ============================================================================

// StoreConfig 存储配置
type StoreConfig struct {
	// MaxRegistrations 最大注册总数
	MaxRegistrations int

	// MaxNamespaces 最大命名空间数
	MaxNamespaces int

	// MaxRegistrationsPerNamespace 每个命名空间最大注册数
	MaxRegistrationsPerNamespace int

	// MaxRegistrationsPerPeer 每个节点最大注册数（跨命名空间累计）
	MaxRegistrationsPerPeer int

	// MinTTL 最小 TTL（请求值低于此值时抬升）
	MinTTL time.Duration

	// MaxTTL 最大 TTL（请求值高于此值时裁剪）
	MaxTTL time.Duration

	// DefaultTTL 默认 TTL（请求未携带 TTL 时使用）
	DefaultTTL time.Duration

	// MaxDiscoverLimit 单次枚举的服务端上限
	MaxDiscoverLimit int
}

// DefaultStoreConfig 默认存储配置
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxRegistrations:             100000,
		MaxNamespaces:                1000,
		MaxRegistrationsPerNamespace: 50000,
		MaxRegistrationsPerPeer:      100,
		MinTTL:                       2 * time.Minute,
		MaxTTL:                       72 * time.Hour,
		DefaultTTL:                   2 * time.Hour,
		MaxDiscoverLimit:             1000,
	}
}

// Validate 验证配置
func (c *StoreConfig) Validate() error {
	if c.MaxRegistrations <= 0 {
		return errors.New("max registrations must be positive")
	}
	if c.MaxNamespaces <= 0 {
		return errors.New("max namespaces must be positive")
	}
	if c.MaxRegistrationsPerNamespace <= 0 {
		return errors.New("max registrations per namespace must be positive")
	}
	if c.MaxRegistrationsPerPeer <= 0 {
		return errors.New("max registrations per peer must be positive")
	}
	if c.MinTTL <= 0 {
		return errors.New("min TTL must be positive")
	}
	if c.MaxTTL < c.MinTTL {
		return errors.New("max TTL must not be less than min TTL")
	}
	if c.DefaultTTL < c.MinTTL || c.DefaultTTL > c.MaxTTL {
		return errors.New("default TTL must be within [min TTL, max TTL]")
	}
	if c.MaxDiscoverLimit <= 0 {
		return errors.New("max discover limit must be positive")
	}
	return nil
}

// ============================================================================
//                              Point 配置
// ============================================================================

// PointConfig Rendezvous Point 配置
type PointConfig struct {
	// Store 存储配置
	Store StoreConfig

	// CleanupInterval 过期清理间隔
	CleanupInterval time.Duration

	// IdleTimeout 流空闲超时
	//
	// 一条流在此时间内未发送请求即被服务端关闭（资源回收，
	// 对端不视为协议错误）。注册的生命周期与连接无关，不受影响。
	IdleTimeout time.Duration

	// DefaultDiscoverLimit 默认发现限制（请求未携带 limit 时使用）
	DefaultDiscoverLimit int
}

// DefaultPointConfig 默认配置
func DefaultPointConfig() PointConfig {
	return PointConfig{
		Store:                DefaultStoreConfig(),
		CleanupInterval:      30 * time.Second,
		IdleTimeout:          2 * time.Minute,
		DefaultDiscoverLimit: 100,
	}
}

// Validate 验证配置
func (c *PointConfig) Validate() error {
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if c.CleanupInterval <= 0 {
		return errors.New("cleanup interval must be positive")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}
	if c.DefaultDiscoverLimit <= 0 {
		return errors.New("default discover limit must be positive")
	}
	return nil
}

// ============================================================================
//                              Discoverer 配置
// ============================================================================

// DiscovererConfig Rendezvous 发现器（客户端）配置
type DiscovererConfig struct {
	// Points 已知的 Rendezvous 点
	Points []types.PeerID

	// DefaultTTL 默认注册 TTL
	DefaultTTL time.Duration

	// RenewalInterval 续约间隔（通常是 TTL/2）
	RenewalInterval time.Duration

	// DiscoverTimeout 发现超时
	DiscoverTimeout time.Duration

	// RegisterTimeout 注册超时
	RegisterTimeout time.Duration
}

// DefaultDiscovererConfig 默认配置
func DefaultDiscovererConfig() DiscovererConfig {
	return DiscovererConfig{
		Points:          nil,
		DefaultTTL:      2 * time.Hour,
		RenewalInterval: 1 * time.Hour,
		DiscoverTimeout: 30 * time.Second,
		RegisterTimeout: 30 * time.Second,
	}
}

// Validate 验证配置
func (c *DiscovererConfig) Validate() error {
	if c.DefaultTTL <= 0 {
		return errors.New("default TTL must be positive")
	}
	if c.RenewalInterval <= 0 {
		return errors.New("renewal interval must be positive")
	}
	if c.RenewalInterval >= c.DefaultTTL {
		return errors.New("renewal interval must be less than default TTL")
	}
	if c.DiscoverTimeout <= 0 {
		return errors.New("discover timeout must be positive")
	}
	if c.RegisterTimeout <= 0 {
		return errors.New("register timeout must be positive")
	}
	return nil
}
