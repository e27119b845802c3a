package rendezvous

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSweeper_StartStop 测试启停
func TestSweeper_StartStop(t *testing.T) {
	store, _ := newTestStore(t)
	sweeper := NewSweeper(store, 30*time.Second)

	require.NoError(t, sweeper.Start())
	assert.ErrorIs(t, sweeper.Start(), ErrAlreadyStarted)

	require.NoError(t, sweeper.Stop())
	assert.ErrorIs(t, sweeper.Stop(), ErrNotStarted)

	// 可以重新启动
	require.NoError(t, sweeper.Start())
	require.NoError(t, sweeper.Stop())
}

// TestSweeper_ReclaimsExpired 测试周期回收
//
// 存储与清理器共用一个模拟时钟，推进时钟触发 tick 并越过过期点。
func TestSweeper_ReclaimsExpired(t *testing.T) {
	mock := clock.NewMock()
	cfg := DefaultStoreConfig()
	store, err := NewStore(cfg, WithClock(mock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	sweeper := NewSweeper(store, 30*time.Second, WithSweeperClock(mock))

	_, err = store.Register("ns1", testPeer("peer-a"), 2*time.Minute)
	require.NoError(t, err)
	_, err = store.Register("ns1", testPeer("peer-b"), 1*time.Hour)
	require.NoError(t, err)

	require.NoError(t, sweeper.Start())
	defer func() { require.NoError(t, sweeper.Stop()) }()

	// 未过期时的 tick 不回收
	mock.Add(30 * time.Second)
	assert.Equal(t, 2, store.Count())
	assert.Equal(t, uint64(0), sweeper.Removed())

	// 越过 peer-a 的过期点，后续 tick 回收
	mock.Add(2 * time.Minute)
	assert.Eventually(t, func() bool {
		return sweeper.Removed() == 1
	}, 1*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, store.Count())
}
