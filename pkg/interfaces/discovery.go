// Package interfaces 定义公共接口
//
// 本文件定义 Discovery 接口与通用选项。
package interfaces

import (
	"context"
	"strings"
	"time"

	"github.com/dep2p/go-rendezvous/pkg/types"
)

// Discovery 组合服务广告和节点发现能力
type Discovery interface {
	// FindPeers 发现命名空间内的节点（异步）
	FindPeers(ctx context.Context, ns string, opts ...DiscoveryOption) (<-chan types.PeerInfo, error)

	// Advertise 在命名空间广告本节点，返回实际有效期
	Advertise(ctx context.Context, ns string, opts ...DiscoveryOption) (time.Duration, error)
}

// DiscoveryOptions 发现选项
type DiscoveryOptions struct {
	// Limit 返回数量限制
	Limit int

	// TTL 广告有效期
	TTL time.Duration
}

// DiscoveryOption 发现选项设置函数
type DiscoveryOption func(*DiscoveryOptions)

// WithLimit 设置返回数量限制
func WithLimit(limit int) DiscoveryOption {
	return func(o *DiscoveryOptions) {
		o.Limit = limit
	}
}

// WithTTL 设置广告有效期
func WithTTL(ttl time.Duration) DiscoveryOption {
	return func(o *DiscoveryOptions) {
		o.TTL = ttl
	}
}

// NormalizeNamespace 规范化命名空间
//
// 目前仅去除首尾空白；命名空间对服务端是应用层选择的分组键，
// 服务端不强加层级结构。
func NormalizeNamespace(ns string) string {
	return strings.TrimSpace(ns)
}
