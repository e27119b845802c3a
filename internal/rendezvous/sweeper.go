package rendezvous

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dep2p/go-rendezvous/pkg/lib/log"
)

var sweeperLog = log.Logger("rendezvous-sweeper")

// ============================================================================
//                              过期清理器
// ============================================================================

// Sweeper 过期清理器
//
// 按固定间隔回收已过期的注册，与请求流量无关。清理逐分片
// 执行短临界区操作，不会长时间阻塞并发的注册与发现请求。
// 过期可见性不依赖清理器：读路径对过期记录做惰性过滤，
// 清理器只负责内存回收。
type Sweeper struct {
	store    *Store
	interval time.Duration
	clk      clock.Clock

	removed atomic.Uint64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SweeperOption 清理器选项
type SweeperOption func(*Sweeper)

// WithSweeperClock 使用指定时钟（测试用）
func WithSweeperClock(clk clock.Clock) SweeperOption {
	return func(s *Sweeper) { s.clk = clk }
}

// NewSweeper 创建过期清理器
func NewSweeper(store *Store, interval time.Duration, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:    store,
		interval: interval,
		clk:      clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start 启动清理循环
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx)
	return nil
}

// Stop 停止清理循环并等待其退出
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return ErrNotStarted
	}
	s.cancel()
	<-s.done
	s.cancel = nil
	s.done = nil
	return nil
}

// Removed 累计移除的过期注册数
func (s *Sweeper) Removed() uint64 {
	return s.removed.Load()
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.done)

	ticker := s.clk.Ticker(s.interval)
	defer ticker.Stop()

	sweeperLog.Debug("清理循环已启动", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			sweeperLog.Debug("清理循环已停止")
			return
		case now := <-ticker.C:
			if n := s.store.RemoveExpired(now); n > 0 {
				s.removed.Add(uint64(n))
				metricExpiredTotal.Add(float64(n))
				sweeperLog.Debug("已回收过期注册", "count", n)
			}
		}
	}
}
