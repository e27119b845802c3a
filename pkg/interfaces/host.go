// Package interfaces 定义公共接口
//
// 本文件定义 Host 接口，提供核心主机功能。
package interfaces

import (
	"context"
	"time"
)

// Host 定义传输层主机接口
//
// Host 是本服务与底层网络栈之间的门面，负责协议注册和流处理。
// 服务端只依赖 SetStreamHandler/RemoveStreamHandler；
// 客户端额外依赖 Connect/NewStream。
type Host interface {
	// ID 返回主机的 PeerID
	ID() string

	// Addrs 返回主机监听的地址列表（multiaddr 格式字符串）
	Addrs() []string

	// Connect 连接到指定节点
	Connect(ctx context.Context, peerID string, addrs []string) error

	// SetStreamHandler 为指定协议设置流处理器
	SetStreamHandler(protocolID string, handler StreamHandler)

	// RemoveStreamHandler 移除指定协议的流处理器
	RemoveStreamHandler(protocolID string)

	// NewStream 创建到指定节点的新流
	NewStream(ctx context.Context, peerID string, protocolIDs ...string) (Stream, error)

	// Close 关闭主机
	Close() error
}

// StreamHandler 定义流处理函数类型
type StreamHandler func(Stream)

// Stream 定义双向流接口
//
// RemotePeer 返回传输层认证后的对端身份；
// 本服务信任该值（身份认证是传输层的职责）。
type Stream interface {
	// Read 从流中读取数据
	Read(p []byte) (n int, err error)

	// Write 向流中写入数据
	Write(p []byte) (n int, err error)

	// Close 关闭流
	Close() error

	// Reset 重置流（异常关闭）
	Reset() error

	// SetDeadline 设置读写超时
	//
	// 超时后，Read 和 Write 会返回错误。
	// 传入零值 time.Time{} 表示不超时。
	SetDeadline(t time.Time) error

	// SetReadDeadline 设置读超时
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline 设置写超时
	SetWriteDeadline(t time.Time) error

	// Protocol 返回流使用的协议 ID
	Protocol() string

	// RemotePeer 返回对端节点 ID
	RemotePeer() string
}
