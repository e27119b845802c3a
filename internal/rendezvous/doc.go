// Package rendezvous 实现 Rendezvous 协议的服务端与客户端
//
// Rendezvous 协议通过中心化的汇合点实现命名空间级的节点发现：
// 节点在某个命名空间注册自己的地址信息（REGISTER），其他节点
// 查询该命名空间内的活跃节点（DISCOVER），注册到期自动失效，
// 也可以主动注销（UNREGISTER）。
//
// # 组成
//
//   - Store: 注册存储，按命名空间分片，维护插入序索引与配额
//   - Sweeper: 过期清理器，周期性回收到期注册
//   - Point: 服务端，处理入站协议流
//   - Discoverer: 客户端，注册、发现与自动续约
//
// # 发现分页
//
// DISCOVER 响应携带不透明 cookie，携带该 cookie 的后续请求从
// 上次位置继续。cookie 含校验和与命名空间代纪，伪造或过期的
// cookie 返回 E_INVALID_COOKIE，调用方以空 cookie 重新开始。
//
// # 使用示例（服务端）
//
//	point, err := rendezvous.NewPoint(host, rendezvous.DefaultPointConfig())
//	if err != nil {
//	    return err
//	}
//	point.Start(ctx)
//	defer point.Stop()
//
// # 使用示例（客户端）
//
//	discoverer, err := rendezvous.NewDiscoverer(host, cfg)
//	if err != nil {
//	    return err
//	}
//	discoverer.Register(ctx, "maker-discovery", 2*time.Hour)
//	peers, err := discoverer.Discover(ctx, "maker-discovery", 10)
package rendezvous
