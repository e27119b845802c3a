// Package types 定义 Rendezvous 服务的基础类型
//
// 这是整个模块的最底层包，不依赖任何其他内部包。
// 所有类型都是纯值类型，用于在各组件间传递数据。
//
// # 类型清单
//
//   - PeerID    - 节点唯一标识（由外部身份系统提供，Base58 编码展示）
//   - Multiaddr - 统一地址类型（值对象）
//   - PeerInfo  - 节点信息（ID + 地址列表）
//
// # 设计约束
//
// PeerID 对本服务是不透明的：服务信任传输层上报的身份，
// 不做任何密码学校验（身份认证属于外部网络栈的职责）。
package types
