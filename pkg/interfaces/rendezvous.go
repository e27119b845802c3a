// Package interfaces 定义公共接口
//
// 本文件定义 Rendezvous 接口，对应 internal/rendezvous/ 实现。
package interfaces

import (
	"context"
	"time"

	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// RendezvousService 接口（客户端）
// ════════════════════════════════════════════════════════════════════════════

// RendezvousService 定义 Rendezvous 客户端接口
//
// Rendezvous 通过命名空间实现轻量级节点发现：
// 节点在中心化的 Rendezvous Point 注册自己，并查询同命名空间内的其他节点。
//
// 使用示例:
//
//	discoverer := rendezvous.NewDiscoverer(host, config)
//	discoverer.Start(ctx)
//	defer discoverer.Stop(ctx)
//
//	// 注册到命名空间
//	discoverer.Register(ctx, "maker-discovery", 2*time.Hour)
//
//	// 发现节点
//	peers, _ := discoverer.Discover(ctx, "maker-discovery", 10)
type RendezvousService interface {
	Discovery

	// Register 在命名空间注册本节点
	//
	// 参数:
	//   - ns: 命名空间
	//   - ttl: 请求的注册有效期（服务端会裁剪到其配置范围）
	Register(ctx context.Context, ns string, ttl time.Duration) error

	// Unregister 取消命名空间注册
	Unregister(ctx context.Context, ns string) error

	// Discover 同步发现节点
	//
	// 参数:
	//   - ns: 命名空间
	//   - limit: 返回数量限制
	Discover(ctx context.Context, ns string, limit int) ([]types.PeerInfo, error)
}

// ════════════════════════════════════════════════════════════════════════════
// RendezvousPoint 接口（服务端）
// ════════════════════════════════════════════════════════════════════════════

// RendezvousPoint 定义 Rendezvous Point 服务端接口
//
// Rendezvous Point 是协议的服务端，负责：
// - 存储节点注册信息
// - 处理发现请求
// - 过期清理
type RendezvousPoint interface {
	// Start 启动 Rendezvous Point 服务
	Start(ctx context.Context) error

	// Stop 停止 Rendezvous Point 服务
	Stop() error

	// Stats 返回 Point 统计信息
	Stats() RendezvousPointStats
}

// RendezvousPointStats Rendezvous Point 统计信息
type RendezvousPointStats struct {
	// TotalRegistrations 当前注册数
	TotalRegistrations int

	// TotalNamespaces 当前命名空间数
	TotalNamespaces int

	// RegistersReceived 收到的注册请求数
	RegistersReceived uint64

	// UnregistersReceived 收到的取消注册请求数
	UnregistersReceived uint64

	// DiscoversReceived 收到的发现请求数
	DiscoversReceived uint64

	// RegistrationsExpired 已过期回收的注册数
	RegistrationsExpired uint64
}
