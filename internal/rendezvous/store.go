package rendezvous

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dep2p/go-rendezvous/pkg/lib/log"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

var storeLog = log.Logger("rendezvous-store")

// ============================================================================
//                              注册记录
// ============================================================================

// Registration 注册记录
type Registration struct {
	// Namespace 命名空间
	Namespace string

	// Peer 节点信息（标识与自报地址，地址顺序保持原样）
	Peer types.PeerInfo

	// RegisteredAt 注册或最近一次续约的时间
	RegisteredAt time.Time

	// TTL 裁剪后的生存时间
	TTL time.Duration

	// ExpiresAt 过期时间（RegisteredAt + TTL）
	ExpiresAt time.Time
}

// Expired 判断记录在给定时刻是否已过期
func (r *Registration) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// ============================================================================
//                              注册存储
// ============================================================================

// Store 注册存储
//
// 按命名空间分片，每个分片独立加锁，不同命名空间的操作互不阻塞。
// 同一 (命名空间, 节点) 键的变更互斥，读操作可与变更并发进行，
// 枚举提供快照级一致性（见 Enumerate）。
//
// 锁序: Store.mu -> nsShard.mu -> Store.qmu，任何路径不得反向持有。
// 持久化写入由 nsShard.pmu 串行化：在分片锁内获取、释放分片锁后
// 持有到后端写完成，落盘顺序与内存生效顺序一致，分片锁内不做 I/O。
type Store struct {
	cfg   StoreConfig
	clk   clock.Clock
	codec *cookieCodec

	// mu 保护 shards 与 nextGen
	mu      sync.RWMutex
	shards  map[string]*nsShard
	nextGen uint64

	// qmu 保护全局与单节点配额计数
	qmu     sync.Mutex
	total   int
	perPeer map[types.PeerID]int

	backend Backend
	faulty  atomic.Bool
	closed  atomic.Bool
}

// StoreOption 存储选项
type StoreOption func(*Store)

// WithClock 使用指定时钟（测试用）
func WithClock(clk clock.Clock) StoreOption {
	return func(s *Store) { s.clk = clk }
}

// WithBackend 启用持久化后端
//
// 所有变更在内存生效后直写后端；创建时从后端恢复未过期的注册。
func WithBackend(b Backend) StoreOption {
	return func(s *Store) { s.backend = b }
}

// NewStore 创建注册存储
func NewStore(cfg StoreConfig, opts ...StoreOption) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	codec, err := newCookieCodec()
	if err != nil {
		return nil, err
	}
	s := &Store{
		cfg:     cfg,
		clk:     clock.New(),
		codec:   codec,
		shards:  make(map[string]*nsShard),
		perPeer: make(map[types.PeerID]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.backend != nil {
		if err := s.restore(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ----------------------------------------------------------------------------
// 写路径
// ----------------------------------------------------------------------------

// Register 注册或续约
//
// 请求的 TTL 被裁剪到 [MinTTL, MaxTTL]，未携带时使用 DefaultTTL；
// 返回实际生效的 TTL。同键重复注册为原子覆盖，保持枚举位置不变。
func (s *Store) Register(ns string, peer types.PeerInfo, requestedTTL time.Duration) (time.Duration, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}
	if err := s.validateNamespace(ns); err != nil {
		return 0, err
	}
	if peer.ID.IsEmpty() {
		return 0, ErrInvalidPeer
	}
	if requestedTTL < 0 {
		return 0, ErrInvalidTTL
	}

	ttl := s.clampTTL(requestedTTL)
	now := s.clk.Now()
	reg := Registration{
		Namespace:    ns,
		Peer:         peer,
		RegisteredAt: now,
		TTL:          ttl,
		ExpiresAt:    now.Add(ttl),
	}

	for {
		sh, err := s.getOrCreateShard(ns)
		if err != nil {
			return 0, err
		}
		sh.mu.Lock()
		if sh.dead {
			// 分片在获取引用与加锁之间被回收，重取
			sh.mu.Unlock()
			continue
		}
		err = s.upsertLocked(sh, reg)
		if err != nil {
			sh.mu.Unlock()
			return 0, err
		}
		if s.backend == nil {
			sh.mu.Unlock()
			break
		}
		// 在释放分片锁之前占住落盘顺序，使同键竞争的后端写入
		// 与内存生效顺序一致
		sh.pmu.Lock()
		sh.mu.Unlock()
		s.persistPut(reg)
		sh.pmu.Unlock()
		break
	}
	return ttl, nil
}

// upsertLocked 在持有分片锁的前提下写入记录
//
// 新键先通过配额检查再占位；已有键原地覆盖，序号不变。
func (s *Store) upsertLocked(sh *nsShard, reg Registration) error {
	entry, exists := sh.regs[reg.Peer.ID]
	if exists {
		entry.reg = reg
		return nil
	}

	if len(sh.regs) >= s.cfg.MaxRegistrationsPerNamespace {
		return ErrMaxRegistrationsPerNamespaceExceeded
	}

	s.qmu.Lock()
	if s.total >= s.cfg.MaxRegistrations {
		s.qmu.Unlock()
		return ErrMaxRegistrationsExceeded
	}
	if s.perPeer[reg.Peer.ID] >= s.cfg.MaxRegistrationsPerPeer {
		s.qmu.Unlock()
		return ErrMaxRegistrationsPerPeerExceeded
	}
	s.total++
	s.perPeer[reg.Peer.ID]++
	s.qmu.Unlock()

	seq := sh.nextSeq
	sh.nextSeq++
	sh.regs[reg.Peer.ID] = &regEntry{seq: seq, reg: reg}
	sh.order = append(sh.order, orderEntry{seq: seq, peer: reg.Peer.ID})
	return nil
}

// Unregister 注销
//
// 幂等操作，键不存在时同样返回成功。
func (s *Store) Unregister(ns string, peer types.PeerID) error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	if peer.IsEmpty() {
		return ErrInvalidPeer
	}

	sh := s.getShard(ns)
	if sh == nil {
		return nil
	}

	sh.mu.Lock()
	if sh.dead {
		sh.mu.Unlock()
		return nil
	}
	_, exists := sh.regs[peer]
	if exists {
		s.dropLocked(sh, peer)
	}
	empty := len(sh.regs) == 0
	persist := exists && s.backend != nil
	if persist {
		sh.pmu.Lock()
	}
	sh.mu.Unlock()

	if persist {
		s.persistDelete(ns, peer)
		sh.pmu.Unlock()
	}
	if empty {
		s.maybeRetireShard(ns, sh)
	}
	return nil
}

// dropLocked 在持有分片锁的前提下移除记录并归还配额
//
// order 中的槽位保留为陈旧项，由枚举跳过，待压实时回收。
func (s *Store) dropLocked(sh *nsShard, peer types.PeerID) {
	delete(sh.regs, peer)
	sh.deadSlots++

	s.qmu.Lock()
	s.total--
	if s.perPeer[peer] <= 1 {
		delete(s.perPeer, peer)
	} else {
		s.perPeer[peer]--
	}
	s.qmu.Unlock()

	sh.maybeCompact()
}

// RemoveExpired 移除所有已过期的记录
//
// 由清理器周期性调用；逐分片短临界区处理，不阻塞其他命名空间。
// 返回移除的数量。
func (s *Store) RemoveExpired(now time.Time) int {
	if s.closed.Load() {
		return 0
	}

	s.mu.RLock()
	shards := make([]*nsShard, 0, len(s.shards))
	for _, sh := range s.shards {
		shards = append(shards, sh)
	}
	s.mu.RUnlock()

	removed := 0
	for _, sh := range shards {
		var expired []types.PeerID
		sh.mu.Lock()
		if sh.dead {
			sh.mu.Unlock()
			continue
		}
		for peer, entry := range sh.regs {
			if entry.reg.Expired(now) {
				expired = append(expired, peer)
			}
		}
		for _, peer := range expired {
			s.dropLocked(sh, peer)
		}
		empty := len(sh.regs) == 0
		ns := sh.ns
		persist := len(expired) > 0 && s.backend != nil
		if persist {
			sh.pmu.Lock()
		}
		sh.mu.Unlock()

		if persist {
			for _, peer := range expired {
				s.persistDelete(ns, peer)
			}
			sh.pmu.Unlock()
		}
		if empty {
			s.maybeRetireShard(ns, sh)
		}
		removed += len(expired)
	}
	return removed
}

// ----------------------------------------------------------------------------
// 读路径
// ----------------------------------------------------------------------------

// Lookup 查询单条注册
//
// 已过期的记录视为不存在，返回 ErrNotFound。
func (s *Store) Lookup(ns string, peer types.PeerID) (Registration, error) {
	if s.closed.Load() {
		return Registration{}, ErrStoreClosed
	}

	sh := s.getShard(ns)
	if sh == nil {
		return Registration{}, ErrNotFound
	}

	now := s.clk.Now()
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	entry, exists := sh.regs[peer]
	if !exists || entry.reg.Expired(now) {
		return Registration{}, ErrNotFound
	}
	return entry.reg, nil
}

// Enumerate 分页枚举命名空间内的注册
//
// cookie 为空表示从头开始；当还有后续结果时返回非空 nextCookie，
// 结果耗尽时 nextCookie 为空。同一游标链内顺序稳定，已返回的记录
// 不会重复出现；链开始后新增的记录是否出现在后续页不作保证。
// 游标指向的快照代纪已失效（命名空间被清空重建）或校验失败时
// 返回 ErrInvalidCookie，调用方应以空 cookie 重新开始。
func (s *Store) Enumerate(ns string, cookie []byte, limit int) ([]Registration, []byte, error) {
	if s.closed.Load() {
		return nil, nil, ErrStoreClosed
	}
	if err := s.validateNamespace(ns); err != nil {
		return nil, nil, err
	}
	if limit <= 0 || limit > s.cfg.MaxDiscoverLimit {
		limit = s.cfg.MaxDiscoverLimit
	}

	sh := s.getShard(ns)
	if sh == nil {
		if len(cookie) > 0 {
			if _, _, err := s.codec.Decode(ns, cookie); err != nil {
				return nil, nil, err
			}
			// 游标合法但快照已整体消失
			return nil, nil, ErrInvalidCookie
		}
		return nil, nil, nil
	}

	var lastSeq uint64
	if len(cookie) > 0 {
		gen, seq, err := s.codec.Decode(ns, cookie)
		if err != nil {
			return nil, nil, err
		}
		if gen != sh.gen {
			return nil, nil, ErrInvalidCookie
		}
		lastSeq = seq + 1
	}

	now := s.clk.Now()
	sh.mu.RLock()
	regs, nextSeq, more := sh.enumerateLocked(lastSeq, limit, now)
	sh.mu.RUnlock()

	var nextCookie []byte
	if more {
		nextCookie = s.codec.Encode(ns, sh.gen, nextSeq)
	}
	return regs, nextCookie, nil
}

// ----------------------------------------------------------------------------
// 统计与生命周期
// ----------------------------------------------------------------------------

// Count 当前活跃注册总数（含尚未清理的过期项）
func (s *Store) Count() int {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.total
}

// NamespaceCount 当前命名空间数
func (s *Store) NamespaceCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.shards)
}

// Healthy 持久化后端是否处于健康状态
//
// 后端写入失败后返回 false，供健康检查上报以便编排层重启服务。
func (s *Store) Healthy() bool {
	return !s.faulty.Load()
}

// Close 关闭存储
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.backend != nil {
		return s.backend.Close()
	}
	return nil
}

// ----------------------------------------------------------------------------
// 内部辅助
// ----------------------------------------------------------------------------

func (s *Store) validateNamespace(ns string) error {
	if ns == "" || len(ns) > maxNamespaceLength {
		return ErrInvalidNamespace
	}
	return nil
}

// maxNamespaceLength 命名空间最大字节数
const maxNamespaceLength = 255

func (s *Store) clampTTL(requested time.Duration) time.Duration {
	switch {
	case requested == 0:
		return s.cfg.DefaultTTL
	case requested < s.cfg.MinTTL:
		return s.cfg.MinTTL
	case requested > s.cfg.MaxTTL:
		return s.cfg.MaxTTL
	default:
		return requested
	}
}

func (s *Store) getShard(ns string) *nsShard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shards[ns]
}

func (s *Store) getOrCreateShard(ns string) (*nsShard, error) {
	s.mu.RLock()
	sh := s.shards[ns]
	s.mu.RUnlock()
	if sh != nil {
		return sh, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sh = s.shards[ns]; sh != nil {
		return sh, nil
	}
	if len(s.shards) >= s.cfg.MaxNamespaces {
		return nil, ErrMaxNamespacesExceeded
	}
	s.nextGen++
	sh = newNsShard(ns, s.nextGen)
	s.shards[ns] = sh
	return sh, nil
}

// maybeRetireShard 回收已清空的分片
//
// 回收使该命名空间进入新的代纪，指向旧代纪的游标随之失效。
func (s *Store) maybeRetireShard(ns string, sh *nsShard) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shards[ns] != sh {
		return
	}
	sh.mu.Lock()
	if len(sh.regs) == 0 {
		sh.dead = true
		delete(s.shards, ns)
	}
	sh.mu.Unlock()
}

// restore 从持久化后端恢复未过期的注册
func (s *Store) restore() error {
	regs, err := s.backend.Load()
	if err != nil {
		return err
	}
	now := s.clk.Now()
	restored := 0
	for _, reg := range regs {
		if reg.Expired(now) {
			s.persistDelete(reg.Namespace, reg.Peer.ID)
			continue
		}
		sh, err := s.getOrCreateShard(reg.Namespace)
		if err != nil {
			storeLog.Warn("恢复注册失败",
				"namespace", reg.Namespace,
				"peer", reg.Peer.ID.ShortString(),
				"error", err)
			continue
		}
		sh.mu.Lock()
		err = s.upsertLocked(sh, reg)
		sh.mu.Unlock()
		if err != nil {
			storeLog.Warn("恢复注册失败",
				"namespace", reg.Namespace,
				"peer", reg.Peer.ID.ShortString(),
				"error", err)
			continue
		}
		restored++
	}
	if restored > 0 {
		storeLog.Info("已从持久化后端恢复注册", "count", restored)
	}
	return nil
}

func (s *Store) persistPut(reg Registration) {
	if s.backend == nil {
		return
	}
	if err := s.backend.Put(reg); err != nil {
		s.faulty.Store(true)
		storeLog.Error("持久化写入失败",
			"namespace", reg.Namespace,
			"peer", reg.Peer.ID.ShortString(),
			"error", err)
	}
}

func (s *Store) persistDelete(ns string, peer types.PeerID) {
	if s.backend == nil {
		return
	}
	if err := s.backend.Delete(ns, peer); err != nil {
		s.faulty.Store(true)
		storeLog.Error("持久化删除失败",
			"namespace", ns,
			"peer", peer.ShortString(),
			"error", err)
	}
}
