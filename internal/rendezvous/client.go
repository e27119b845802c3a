package rendezvous

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dep2p/go-rendezvous/pkg/interfaces"
	"github.com/dep2p/go-rendezvous/pkg/lib/log"
	pb "github.com/dep2p/go-rendezvous/pkg/lib/proto/rendezvous"
	"github.com/dep2p/go-rendezvous/pkg/types"
	"go.uber.org/multierr"
)

var clientLog = log.Logger("rendezvous-client")

// ============================================================================
//                              发现器（客户端）
// ============================================================================

// pointFailureCooldown 点失败后的冷却时间
const pointFailureCooldown = 1 * time.Minute

// pointState 单个 Rendezvous 点的健康状态
type pointState struct {
	id           types.PeerID
	failures     int
	backoffUntil time.Time
}

// Discoverer Rendezvous 协议客户端
//
// 向已知的 Rendezvous 点注册本节点并发现同命名空间的其他节点。
// 启动后对已注册的命名空间按 RenewalInterval 自动续约；
// 请求失败的点进入冷却期，后续请求优先选择健康的点。
type Discoverer struct {
	host interfaces.Host
	cfg  DiscovererConfig
	clk  clock.Clock

	mu         sync.Mutex
	started    bool
	cancel     context.CancelFunc
	done       chan struct{}
	points     []*pointState
	registered map[string]time.Duration
}

// 确保 Discoverer 实现 RendezvousService 接口
var _ interfaces.RendezvousService = (*Discoverer)(nil)

// DiscovererOption 发现器选项
type DiscovererOption func(*Discoverer)

// WithDiscovererClock 使用指定时钟（测试用）
func WithDiscovererClock(clk clock.Clock) DiscovererOption {
	return func(d *Discoverer) { d.clk = clk }
}

// NewDiscoverer 创建发现器
func NewDiscoverer(host interfaces.Host, cfg DiscovererConfig, opts ...DiscovererOption) (*Discoverer, error) {
	if host == nil {
		return nil, ErrNilHost
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Discoverer{
		host:       host,
		cfg:        cfg,
		clk:        clock.New(),
		registered: make(map[string]time.Duration),
	}
	for _, opt := range opts {
		opt(d)
	}
	for _, id := range cfg.Points {
		d.points = append(d.points, &pointState{id: id})
	}
	return d, nil
}

// AddPoint 添加一个 Rendezvous 点
func (d *Discoverer) AddPoint(id types.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ps := range d.points {
		if ps.id == id {
			return
		}
	}
	d.points = append(d.points, &pointState{id: id})
}

// Start 启动续约循环
func (d *Discoverer) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.done = make(chan struct{})
	d.started = true
	go d.renewalLoop(runCtx)
	return nil
}

// Stop 停止续约循环
func (d *Discoverer) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started {
		return ErrNotStarted
	}
	d.cancel()
	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	d.started = false
	return nil
}

// ----------------------------------------------------------------------------
// 注册与注销
// ----------------------------------------------------------------------------

// Register 在命名空间注册本节点
//
// ttl 为零时使用 DefaultTTL；服务端可能裁剪请求值，以响应中的
// 实际有效期为准。注册成功后纳入自动续约。
func (d *Discoverer) Register(ctx context.Context, ns string, ttl time.Duration) error {
	ns = interfaces.NormalizeNamespace(ns)
	if ttl == 0 {
		ttl = d.cfg.DefaultTTL
	}
	_, err := d.registerOnce(ctx, ns, ttl)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.registered[ns] = ttl
	d.mu.Unlock()
	return nil
}

// Advertise 实现 Discovery 接口
func (d *Discoverer) Advertise(ctx context.Context, ns string, opts ...interfaces.DiscoveryOption) (time.Duration, error) {
	var options interfaces.DiscoveryOptions
	for _, opt := range opts {
		opt(&options)
	}
	ttl := options.TTL
	if ttl == 0 {
		ttl = d.cfg.DefaultTTL
	}

	ns = interfaces.NormalizeNamespace(ns)
	effective, err := d.registerOnce(ctx, ns, ttl)
	if err != nil {
		return 0, err
	}

	d.mu.Lock()
	d.registered[ns] = ttl
	d.mu.Unlock()
	return effective, nil
}

// registerOnce 执行一次注册交换，返回服务端裁剪后的有效期
func (d *Discoverer) registerOnce(ctx context.Context, ns string, ttl time.Duration) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.RegisterTimeout)
	defer cancel()

	self := types.PeerInfo{
		ID: types.PeerID(d.host.ID()),
	}
	for _, addr := range d.host.Addrs() {
		if ma, err := types.ParseMultiaddr(addr); err == nil {
			self.Addrs = append(self.Addrs, ma)
		}
	}

	msg := newRegisterMessage(ns, self, uint64(ttl/time.Second))
	resp, err := d.exchange(ctx, msg)
	if err != nil {
		return 0, err
	}
	if resp.Type != pb.Message_REGISTER_RESPONSE || resp.RegisterResponse == nil {
		return 0, ErrInvalidMessage
	}
	if err := statusToErr(resp.RegisterResponse.Status, resp.RegisterResponse.StatusText); err != nil {
		return 0, err
	}
	return time.Duration(resp.RegisterResponse.Ttl) * time.Second, nil
}

// Unregister 取消命名空间注册
func (d *Discoverer) Unregister(ctx context.Context, ns string) error {
	ns = interfaces.NormalizeNamespace(ns)

	d.mu.Lock()
	delete(d.registered, ns)
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.RegisterTimeout)
	defer cancel()

	msg := newUnregisterMessage(ns, types.PeerID(d.host.ID()))
	resp, err := d.exchange(ctx, msg)
	if err != nil {
		return err
	}
	if resp.Type != pb.Message_UNREGISTER_RESPONSE || resp.UnregisterResponse == nil {
		return ErrInvalidMessage
	}
	return statusToErr(resp.UnregisterResponse.Status, resp.UnregisterResponse.StatusText)
}

// ----------------------------------------------------------------------------
// 发现
// ----------------------------------------------------------------------------

// Discover 同步发现命名空间内的节点
func (d *Discoverer) Discover(ctx context.Context, ns string, limit int) ([]types.PeerInfo, error) {
	peers, _, err := d.discoverPage(ctx, ns, nil, limit)
	return peers, err
}

// DiscoverAll 沿游标链拉取命名空间内的全部节点
func (d *Discoverer) DiscoverAll(ctx context.Context, ns string) ([]types.PeerInfo, error) {
	var (
		all    []types.PeerInfo
		cookie []byte
	)
	for {
		peers, next, err := d.discoverPage(ctx, ns, cookie, 0)
		if err != nil {
			return all, err
		}
		all = append(all, peers...)
		if len(next) == 0 {
			return all, nil
		}
		cookie = next
	}
}

// FindPeers 实现 Discovery 接口，异步返回发现的节点
func (d *Discoverer) FindPeers(ctx context.Context, ns string, opts ...interfaces.DiscoveryOption) (<-chan types.PeerInfo, error) {
	var options interfaces.DiscoveryOptions
	for _, opt := range opts {
		opt(&options)
	}

	out := make(chan types.PeerInfo)
	go func() {
		defer close(out)
		var cookie []byte
		remaining := options.Limit
		for {
			peers, next, err := d.discoverPage(ctx, ns, cookie, remaining)
			if err != nil {
				clientLog.Debug("发现失败", "namespace", ns, "error", err)
				return
			}
			for _, peer := range peers {
				select {
				case out <- peer:
				case <-ctx.Done():
					return
				}
			}
			if options.Limit > 0 {
				remaining -= len(peers)
				if remaining <= 0 {
					return
				}
			}
			if len(next) == 0 {
				return
			}
			cookie = next
		}
	}()
	return out, nil
}

// discoverPage 执行一次发现交换，返回一页结果与后续游标
func (d *Discoverer) discoverPage(ctx context.Context, ns string, cookie []byte, limit int) ([]types.PeerInfo, []byte, error) {
	ns = interfaces.NormalizeNamespace(ns)

	ctx, cancel := context.WithTimeout(ctx, d.cfg.DiscoverTimeout)
	defer cancel()

	msg := newDiscoverMessage(ns, uint64(limit), cookie)
	resp, err := d.exchange(ctx, msg)
	if err != nil {
		return nil, nil, err
	}
	if resp.Type != pb.Message_DISCOVER_RESPONSE || resp.DiscoverResponse == nil {
		return nil, nil, ErrInvalidMessage
	}
	dr := resp.DiscoverResponse
	if err := statusToErr(dr.Status, dr.StatusText); err != nil {
		return nil, nil, err
	}

	peers := make([]types.PeerInfo, 0, len(dr.Registrations))
	for _, reg := range dr.Registrations {
		if reg.Peer == nil {
			continue
		}
		peer, err := types.PeerInfoFromBytes(reg.Peer.Id, reg.Peer.Addrs)
		if err != nil {
			continue
		}
		peers = append(peers, peer)
	}
	return peers, dr.Cookie, nil
}

// ----------------------------------------------------------------------------
// 点选择与请求交换
// ----------------------------------------------------------------------------

// exchange 向选中的 Rendezvous 点发送一条请求并读取响应
//
// 当前点失败时记录失败并依次尝试其余健康的点。
func (d *Discoverer) exchange(ctx context.Context, msg *pb.Message) (*pb.Message, error) {
	candidates := d.healthyPoints()
	if len(candidates) == 0 {
		return nil, ErrNoPoints
	}

	var lastErr error
	for _, ps := range candidates {
		resp, err := d.exchangeWith(ctx, ps.id, msg)
		if err == nil {
			d.markSuccess(ps.id)
			return resp, nil
		}
		d.markFailure(ps.id)
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, multierr.Append(ErrAllPointsFailed, lastErr)
}

func (d *Discoverer) exchangeWith(ctx context.Context, point types.PeerID, msg *pb.Message) (*pb.Message, error) {
	stream, err := d.host.NewStream(ctx, point.String(), ProtocolID)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
	}
	if err := WriteMessage(stream, msg); err != nil {
		_ = stream.Reset()
		return nil, err
	}
	resp, err := ReadMessage(stream)
	if err != nil {
		_ = stream.Reset()
		return nil, err
	}
	return resp, nil
}

// healthyPoints 返回未处于冷却期的点；全部冷却时退化为全部返回
func (d *Discoverer) healthyPoints() []*pointState {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clk.Now()
	healthy := make([]*pointState, 0, len(d.points))
	for _, ps := range d.points {
		if now.After(ps.backoffUntil) {
			healthy = append(healthy, ps)
		}
	}
	if len(healthy) == 0 {
		healthy = append(healthy, d.points...)
	}
	return healthy
}

func (d *Discoverer) markSuccess(id types.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ps := range d.points {
		if ps.id == id {
			ps.failures = 0
			ps.backoffUntil = time.Time{}
			return
		}
	}
}

func (d *Discoverer) markFailure(id types.PeerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ps := range d.points {
		if ps.id == id {
			ps.failures++
			ps.backoffUntil = d.clk.Now().Add(pointFailureCooldown)
			return
		}
	}
}

// ----------------------------------------------------------------------------
// 续约
// ----------------------------------------------------------------------------

// renewalLoop 周期性为已注册的命名空间续约
func (d *Discoverer) renewalLoop(ctx context.Context) {
	defer close(d.done)

	ticker := d.clk.Ticker(d.cfg.RenewalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.renewAll(ctx)
		}
	}
}

func (d *Discoverer) renewAll(ctx context.Context) {
	d.mu.Lock()
	pending := make(map[string]time.Duration, len(d.registered))
	for ns, ttl := range d.registered {
		pending[ns] = ttl
	}
	d.mu.Unlock()

	for ns, ttl := range pending {
		if _, err := d.registerOnce(ctx, ns, ttl); err != nil {
			clientLog.Warn("续约失败", "namespace", ns, "error", err)
			continue
		}
		clientLog.Debug("续约成功", "namespace", ns, "ttl", ttl)
	}
}
