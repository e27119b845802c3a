package rendezvous

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-rendezvous/pkg/interfaces"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// newTestDiscoverer 创建接入 mock 网络的发现器
func newTestDiscoverer(t *testing.T, network *mockNetwork, id string) *Discoverer {
	t.Helper()

	host := network.addHost(id)
	cfg := DefaultDiscovererConfig()
	cfg.Points = []types.PeerID{"point-1"}
	discoverer, err := NewDiscoverer(host, cfg)
	require.NoError(t, err)
	return discoverer
}

// TestDiscoverer_RegisterDiscover 测试客户端注册与发现
func TestDiscoverer_RegisterDiscover(t *testing.T) {
	_, network := newTestPoint(t)
	ctx := context.Background()

	alice := newTestDiscoverer(t, network, "alice")
	bob := newTestDiscoverer(t, network, "bob")

	require.NoError(t, alice.Register(ctx, "maker-discovery", 1*time.Hour))
	require.NoError(t, bob.Register(ctx, "maker-discovery", 1*time.Hour))

	peers, err := alice.Discover(ctx, "maker-discovery", 10)
	require.NoError(t, err)
	require.Len(t, peers, 2)

	ids := []types.PeerID{peers[0].ID, peers[1].ID}
	assert.Contains(t, ids, types.PeerID("alice"))
	assert.Contains(t, ids, types.PeerID("bob"))
}

// TestDiscoverer_Advertise 测试广告返回裁剪后的有效期
func TestDiscoverer_Advertise(t *testing.T) {
	_, network := newTestPoint(t)
	ctx := context.Background()

	alice := newTestDiscoverer(t, network, "alice")

	// 请求低于服务端下限，返回抬升后的值
	ttl, err := alice.Advertise(ctx, "ns1", interfaces.WithTTL(1*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, ttl)
}

// TestDiscoverer_Unregister 测试客户端注销
func TestDiscoverer_Unregister(t *testing.T) {
	_, network := newTestPoint(t)
	ctx := context.Background()

	alice := newTestDiscoverer(t, network, "alice")
	require.NoError(t, alice.Register(ctx, "ns1", 1*time.Hour))
	require.NoError(t, alice.Unregister(ctx, "ns1"))

	peers, err := alice.Discover(ctx, "ns1", 10)
	require.NoError(t, err)
	assert.Empty(t, peers)

	// 再次注销仍然成功
	require.NoError(t, alice.Unregister(ctx, "ns1"))
}

// TestDiscoverer_DiscoverAll 测试游标链全量拉取
func TestDiscoverer_DiscoverAll(t *testing.T) {
	point, network := newTestPoint(t)
	ctx := context.Background()

	// 直接向存储写入多条注册
	for i := 0; i < 250; i++ {
		_, err := point.Store().Register("big-ns", testPeer(fmt.Sprintf("peer-%03d", i)), 1*time.Hour)
		require.NoError(t, err)
	}

	alice := newTestDiscoverer(t, network, "alice")
	peers, err := alice.DiscoverAll(ctx, "big-ns")
	require.NoError(t, err)
	assert.Len(t, peers, 250)
}

// TestDiscoverer_FindPeers 测试异步发现
func TestDiscoverer_FindPeers(t *testing.T) {
	point, network := newTestPoint(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := point.Store().Register("ns1", testPeer(fmt.Sprintf("peer-%d", i)), 1*time.Hour)
		require.NoError(t, err)
	}

	alice := newTestDiscoverer(t, network, "alice")
	ch, err := alice.FindPeers(ctx, "ns1", interfaces.WithLimit(3))
	require.NoError(t, err)

	var got []types.PeerInfo
	for peer := range ch {
		got = append(got, peer)
	}
	assert.Len(t, got, 3)
}

// TestDiscoverer_NoPoints 测试无可用点
func TestDiscoverer_NoPoints(t *testing.T) {
	network := newMockNetwork()
	host := network.addHost("alice")

	cfg := DefaultDiscovererConfig()
	discoverer, err := NewDiscoverer(host, cfg)
	require.NoError(t, err)

	err = discoverer.Register(context.Background(), "ns1", 1*time.Hour)
	assert.ErrorIs(t, err, ErrNoPoints)
}

// TestDiscoverer_AllPointsFailed 测试所有点失败
func TestDiscoverer_AllPointsFailed(t *testing.T) {
	network := newMockNetwork()
	host := network.addHost("alice")

	cfg := DefaultDiscovererConfig()
	cfg.Points = []types.PeerID{"no-such-point"}
	discoverer, err := NewDiscoverer(host, cfg)
	require.NoError(t, err)

	err = discoverer.Register(context.Background(), "ns1", 1*time.Hour)
	assert.ErrorIs(t, err, ErrAllPointsFailed)
}

// TestDiscoverer_StartStop 测试启停
func TestDiscoverer_StartStop(t *testing.T) {
	_, network := newTestPoint(t)
	ctx := context.Background()

	alice := newTestDiscoverer(t, network, "alice")
	require.NoError(t, alice.Start(ctx))
	assert.ErrorIs(t, alice.Start(ctx), ErrAlreadyStarted)

	require.NoError(t, alice.Stop(ctx))
	assert.ErrorIs(t, alice.Stop(ctx), ErrNotStarted)
}
