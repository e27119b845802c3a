// Package interfaces 定义 Rendezvous 服务的公共接口
//
// # 分层约定
//
//	pkg/types       - 纯值类型（最底层）
//	pkg/interfaces  - 公共接口（依赖 types）
//	internal/...    - 实现（依赖 types + interfaces）
//
// # 外部协作者
//
// Host/Stream 是本服务消费的传输层门面：由外部网络栈提供入站流、
// 认证后的对端身份和流生命周期。本服务信任该层上报的身份，
// 自身不做任何密码学校验。
package interfaces
