package rendezvous

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-rendezvous/internal/storage/kv"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// newMemBackend 创建内存模式的 BadgerDB 后端
func newMemBackend(t *testing.T) Backend {
	t.Helper()

	kvStore, err := kv.Open(kv.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })
	return NewKVBackend(kvStore)
}

// TestPersist_RestoreAcrossRestart 测试重启后恢复注册
func TestPersist_RestoreAcrossRestart(t *testing.T) {
	backend := newMemBackend(t)
	cfg := DefaultStoreConfig()

	store1, err := NewStore(cfg, WithBackend(backend))
	require.NoError(t, err)

	_, err = store1.Register("ns1", testPeer("peer-a"), 1*time.Hour)
	require.NoError(t, err)
	_, err = store1.Register("ns2", testPeer("peer-b"), 1*time.Hour)
	require.NoError(t, err)
	require.NoError(t, store1.Unregister("ns2", "peer-b"))

	// 模拟进程重启：以同一后端重建存储
	store2, err := NewStore(cfg, WithBackend(backend))
	require.NoError(t, err)

	reg, err := store2.Lookup("ns1", "peer-a")
	require.NoError(t, err)
	assert.Equal(t, "ns1", reg.Namespace)
	assert.Equal(t, reg.Peer.AddrsToStrings(), testPeer("peer-a").AddrsToStrings())

	// 注销过的记录不恢复
	_, err = store2.Lookup("ns2", "peer-b")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, store2.Count())
}

// TestPersist_ExpiredDroppedOnRestore 测试恢复时丢弃过期记录
func TestPersist_ExpiredDroppedOnRestore(t *testing.T) {
	backend := newMemBackend(t)
	cfg := DefaultStoreConfig()

	mock := clock.NewMock()
	store1, err := NewStore(cfg, WithBackend(backend), WithClock(mock))
	require.NoError(t, err)

	_, err = store1.Register("ns1", testPeer("peer-a"), 2*time.Minute)
	require.NoError(t, err)
	_, err = store1.Register("ns1", testPeer("peer-b"), 1*time.Hour)
	require.NoError(t, err)

	// 重启发生在 peer-a 过期之后
	mock.Add(10 * time.Minute)
	store2, err := NewStore(cfg, WithBackend(backend), WithClock(mock))
	require.NoError(t, err)

	_, err = store2.Lookup("ns1", "peer-a")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store2.Lookup("ns1", "peer-b")
	assert.NoError(t, err)
	assert.Equal(t, 1, store2.Count())
}

// memBackend 记录每个键最终状态的内存后端
type memBackend struct {
	mu   sync.Mutex
	last map[string]Registration
}

func newRecordingBackend() *memBackend {
	return &memBackend{last: make(map[string]Registration)}
}

func (b *memBackend) Put(reg Registration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last[string(regKey(reg.Namespace, reg.Peer.ID))] = reg
	return nil
}

func (b *memBackend) Delete(ns string, peer types.PeerID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.last, string(regKey(ns, peer)))
	return nil
}

func (b *memBackend) Load() ([]Registration, error) { return nil, nil }
func (b *memBackend) Close() error                  { return nil }

func (b *memBackend) lastPut(ns string, peer types.PeerID) (Registration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	reg, ok := b.last[string(regKey(ns, peer))]
	return reg, ok
}

// TestPersist_ConcurrentReRegisterOrder 测试同键竞争下后端终态与内存一致
func TestPersist_ConcurrentReRegisterOrder(t *testing.T) {
	backend := newRecordingBackend()
	store, err := NewStore(DefaultStoreConfig(), WithBackend(backend))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			peer := types.PeerInfo{
				ID: "peer-a",
				Addrs: []types.Multiaddr{
					types.MustParseMultiaddr(fmt.Sprintf("/ip4/10.0.0.%d/tcp/4001", i+1)),
				},
			}
			_, err := store.Register("ns1", peer, 1*time.Hour)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// 后端看到的最后一次写入必须对应内存中的存活记录
	reg, err := store.Lookup("ns1", "peer-a")
	require.NoError(t, err)
	persisted, ok := backend.lastPut("ns1", "peer-a")
	require.True(t, ok)
	assert.Equal(t, reg.Peer.AddrsToStrings(), persisted.Peer.AddrsToStrings())
}

// TestPersist_KeyEncoding 测试键编码无前缀歧义
func TestPersist_KeyEncoding(t *testing.T) {
	keyA := regKey("ns", "1peer")
	keyB := regKey("ns1", "peer")
	assert.NotEqual(t, keyA, keyB)
}
