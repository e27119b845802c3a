package rendezvous

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dep2p/go-rendezvous/pkg/interfaces"
	"github.com/dep2p/go-rendezvous/pkg/lib/log"
	pb "github.com/dep2p/go-rendezvous/pkg/lib/proto/rendezvous"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

var pointLog = log.Logger("rendezvous-point")

// ============================================================================
//                              Rendezvous Point
// ============================================================================

// Point Rendezvous Point 服务端
//
// 每条入站流由独立的处理循环驱动：等待请求、分派到存储、写回响应，
// 一条流可以承载多轮请求/响应。流关闭不影响已存储的注册，
// 注册生命周期与连接无关。
type Point struct {
	host    interfaces.Host
	cfg     PointConfig
	store   *Store
	sweeper *Sweeper
	clk     clock.Clock

	// ownStore 表示存储由本 Point 创建并负责关闭
	ownStore bool

	registersReceived   atomic.Uint64
	unregistersReceived atomic.Uint64
	discoversReceived   atomic.Uint64

	mu      sync.Mutex
	started bool
}

// 确保 Point 实现 RendezvousPoint 接口
var _ interfaces.RendezvousPoint = (*Point)(nil)

// PointOption Point 选项
type PointOption func(*Point)

// WithPointStore 使用外部创建的存储（例如带持久化后端的存储）
func WithPointStore(store *Store) PointOption {
	return func(p *Point) { p.store = store }
}

// WithPointClock 使用指定时钟（测试用）
func WithPointClock(clk clock.Clock) PointOption {
	return func(p *Point) { p.clk = clk }
}

// NewPoint 创建 Rendezvous Point
func NewPoint(host interfaces.Host, cfg PointConfig, opts ...PointOption) (*Point, error) {
	if host == nil {
		return nil, ErrNilHost
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Point{
		host: host,
		cfg:  cfg,
		clk:  clock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil {
		store, err := NewStore(cfg.Store, WithClock(p.clk))
		if err != nil {
			return nil, err
		}
		p.store = store
		p.ownStore = true
	}
	p.sweeper = NewSweeper(p.store, cfg.CleanupInterval, WithSweeperClock(p.clk))
	return p, nil
}

// Store 返回底层存储（健康检查等只读用途）
func (p *Point) Store() *Store {
	return p.store
}

// Start 启动服务
func (p *Point) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	if err := p.sweeper.Start(); err != nil {
		return err
	}
	p.host.SetStreamHandler(ProtocolID, p.handleStream)
	p.started = true
	pointLog.Info("Rendezvous Point 已启动",
		"protocol", ProtocolID,
		"host", log.TruncateID(p.host.ID(), 12))
	return nil
}

// Stop 停止服务
func (p *Point) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return ErrNotStarted
	}
	p.host.RemoveStreamHandler(ProtocolID)
	if err := p.sweeper.Stop(); err != nil {
		return err
	}
	if p.ownStore {
		if err := p.store.Close(); err != nil {
			return err
		}
	}
	p.started = false
	pointLog.Info("Rendezvous Point 已停止")
	return nil
}

// Stats 返回统计信息
func (p *Point) Stats() interfaces.RendezvousPointStats {
	return interfaces.RendezvousPointStats{
		TotalRegistrations:   p.store.Count(),
		TotalNamespaces:      p.store.NamespaceCount(),
		RegistersReceived:    p.registersReceived.Load(),
		UnregistersReceived:  p.unregistersReceived.Load(),
		DiscoversReceived:    p.discoversReceived.Load(),
		RegistrationsExpired: p.sweeper.Removed(),
	}
}

// ----------------------------------------------------------------------------
// 流处理
// ----------------------------------------------------------------------------

// handleStream 单条流的请求/响应循环
//
// 读取超时（空闲流）与对端关闭都静默退出；无法解码的帧属于协议
// 错误，直接重置流，不发送响应。存储层错误转换为结构化错误响应，
// 流保持可用。
func (p *Point) handleStream(s interfaces.Stream) {
	defer s.Close()
	metricActiveStreams.Inc()
	defer metricActiveStreams.Dec()

	remote := s.RemotePeer()
	for {
		_ = s.SetReadDeadline(p.clk.Now().Add(p.cfg.IdleTimeout))
		msg, err := ReadMessage(s)
		if err != nil {
			if errors.Is(err, ErrInvalidMessage) || errors.Is(err, ErrMessageTooLarge) {
				pointLog.Debug("消息无法解码，终止流",
					"peer", log.TruncateID(remote, 12),
					"error", err)
				_ = s.Reset()
			}
			return
		}
		_ = s.SetReadDeadline(time.Time{})

		var resp *pb.Message
		switch msg.Type {
		case pb.Message_REGISTER:
			resp = p.handleRegister(remote, msg.Register)
		case pb.Message_UNREGISTER:
			resp = p.handleUnregister(remote, msg.Unregister)
		case pb.Message_DISCOVER:
			resp = p.handleDiscover(msg.Discover)
		default:
			pointLog.Debug("意外的消息类型，终止流",
				"peer", log.TruncateID(remote, 12),
				"type", msg.Type)
			_ = s.Reset()
			return
		}

		_ = s.SetWriteDeadline(p.clk.Now().Add(p.cfg.IdleTimeout))
		if err := WriteMessage(s, resp); err != nil {
			pointLog.Debug("写入响应失败",
				"peer", log.TruncateID(remote, 12),
				"error", err)
			return
		}
		_ = s.SetWriteDeadline(time.Time{})
	}
}

// handleRegister 处理注册请求
func (p *Point) handleRegister(remote string, req *pb.Message_Register) *pb.Message {
	p.registersReceived.Add(1)
	metricRegistersTotal.Inc()

	if req == nil || req.Peer == nil {
		return p.registerError(ErrInternalError, "missing register payload")
	}

	peer, err := types.PeerInfoFromBytes(req.Peer.Id, req.Peer.Addrs)
	if err != nil {
		return p.registerError(ErrInvalidPeer, err.Error())
	}
	if dropped := len(req.Peer.Addrs) - len(peer.Addrs); dropped > 0 {
		metricDroppedAddrsTotal.Add(float64(dropped))
		pointLog.Debug("忽略无法解析的上报地址",
			"namespace", req.Ns,
			"peer", peer.ID.ShortString(),
			"dropped", dropped)
	}
	// 只允许为传输层上报的对端身份注册
	if remote != "" && peer.ID.String() != remote {
		return p.registerError(ErrNotAuthorized, "peer id does not match stream peer")
	}

	// 线上 TTL 为无符号秒数，先压到上限再换算成 Duration，
	// 避免超大值在 int64 纳秒上溢出
	ttlSeconds := req.Ttl
	if maxSeconds := uint64(p.cfg.Store.MaxTTL / time.Second); ttlSeconds > maxSeconds {
		ttlSeconds = maxSeconds
	}

	ttl, err := p.store.Register(req.Ns, peer, time.Duration(ttlSeconds)*time.Second)
	if err != nil {
		return p.registerError(err, err.Error())
	}

	p.syncGauges()
	pointLog.Debug("注册成功",
		"namespace", req.Ns,
		"peer", peer.ID.ShortString(),
		"ttl", ttl)
	return newRegisterResponse(uint64(ttl / time.Second))
}

func (p *Point) registerError(err error, text string) *pb.Message {
	status := errToStatus(err)
	metricErrorsTotal.WithLabelValues(status.String()).Inc()
	return newRegisterErrorResponse(status, text)
}

// handleUnregister 处理注销请求
//
// 注销是幂等的，键不存在同样确认成功。
func (p *Point) handleUnregister(remote string, req *pb.Message_Unregister) *pb.Message {
	p.unregistersReceived.Add(1)
	metricUnregistersTotal.Inc()

	if req == nil {
		status := errToStatus(ErrInternalError)
		metricErrorsTotal.WithLabelValues(status.String()).Inc()
		return &pb.Message{
			Type: pb.Message_UNREGISTER_RESPONSE,
			UnregisterResponse: &pb.Message_UnregisterResponse{
				Status:     status,
				StatusText: "missing unregister payload",
			},
		}
	}

	// 请求未携带身份时使用传输层上报的对端身份
	peer := types.PeerID(req.Id)
	if peer.IsEmpty() {
		peer = types.PeerID(remote)
	}
	if remote != "" && peer.String() != remote {
		status := errToStatus(ErrNotAuthorized)
		metricErrorsTotal.WithLabelValues(status.String()).Inc()
		return &pb.Message{
			Type: pb.Message_UNREGISTER_RESPONSE,
			UnregisterResponse: &pb.Message_UnregisterResponse{
				Status:     status,
				StatusText: "peer id does not match stream peer",
			},
		}
	}

	if err := p.store.Unregister(req.Ns, peer); err != nil && !errors.Is(err, ErrNotFound) {
		pointLog.Debug("注销失败",
			"namespace", req.Ns,
			"peer", peer.ShortString(),
			"error", err)
	}

	p.syncGauges()
	return newUnregisterResponse()
}

// handleDiscover 处理发现请求
func (p *Point) handleDiscover(req *pb.Message_Discover) *pb.Message {
	p.discoversReceived.Add(1)
	metricDiscoversTotal.Inc()

	if req == nil {
		return p.discoverError(ErrInternalError, "missing discover payload")
	}

	limit := int(req.Limit)
	if limit <= 0 {
		limit = p.cfg.DefaultDiscoverLimit
	}

	regs, cookie, err := p.store.Enumerate(req.Ns, req.Cookie, limit)
	if err != nil {
		return p.discoverError(err, err.Error())
	}
	return newDiscoverResponse(regs, cookie)
}

func (p *Point) discoverError(err error, text string) *pb.Message {
	status := errToStatus(err)
	metricErrorsTotal.WithLabelValues(status.String()).Inc()
	return newDiscoverErrorResponse(status, text)
}

// syncGauges 刷新注册量与命名空间量的瞬时指标
func (p *Point) syncGauges() {
	metricRegistrations.Set(float64(p.store.Count()))
	metricNamespaces.Set(float64(p.store.NamespaceCount()))
}
