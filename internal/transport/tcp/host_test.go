package tcp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-rendezvous/pkg/interfaces"
)

const testProtocol = "/echo/1.0.0"

// newTestHost 创建监听环回随机端口的测试主机
func newTestHost(t *testing.T, id string) *Host {
	t.Helper()

	h, err := New(id, "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

// connectHosts 让 client 记录 server 的地址
func connectHosts(t *testing.T, client, server *Host) {
	t.Helper()
	require.NoError(t, client.Connect(context.Background(), server.ID(), server.Addrs()))
}

// TestHost_StreamRoundTrip 测试流的建立与数据往返
func TestHost_StreamRoundTrip(t *testing.T) {
	server := newTestHost(t, "server-peer")
	client := newTestHost(t, "client-peer")

	remoteCh := make(chan string, 1)
	server.SetStreamHandler(testProtocol, func(s interfaces.Stream) {
		defer s.Close()
		remoteCh <- s.RemotePeer()

		buf := make([]byte, 5)
		if _, err := io.ReadFull(s, buf); err != nil {
			return
		}
		_, _ = s.Write(buf)
	})

	connectHosts(t, client, server)

	s, err := client.NewStream(context.Background(), server.ID(), testProtocol)
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, testProtocol, s.Protocol())
	assert.Equal(t, "server-peer", s.RemotePeer())

	_, err = s.Write([]byte("hello"))
	require.NoError(t, err)

	buf := make([]byte, 5)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	// 服务端看到客户端上报的身份
	select {
	case remote := <-remoteCh:
		assert.Equal(t, "client-peer", remote)
	case <-time.After(5 * time.Second):
		t.Fatal("handler not invoked")
	}
}

// TestHost_UnknownProtocol 测试未注册协议被拒绝
func TestHost_UnknownProtocol(t *testing.T) {
	server := newTestHost(t, "server-peer")
	client := newTestHost(t, "client-peer")
	connectHosts(t, client, server)

	_, err := client.NewStream(context.Background(), server.ID(), "/nope/1.0.0")
	assert.ErrorIs(t, err, ErrNoProtocol)
}

// TestHost_RemovedHandler 测试移除处理器后新流被拒绝
func TestHost_RemovedHandler(t *testing.T) {
	server := newTestHost(t, "server-peer")
	client := newTestHost(t, "client-peer")

	server.SetStreamHandler(testProtocol, func(s interfaces.Stream) { _ = s.Close() })
	connectHosts(t, client, server)

	s, err := client.NewStream(context.Background(), server.ID(), testProtocol)
	require.NoError(t, err)
	_ = s.Close()

	server.RemoveStreamHandler(testProtocol)
	_, err = client.NewStream(context.Background(), server.ID(), testProtocol)
	assert.ErrorIs(t, err, ErrNoProtocol)
}

// TestHost_UnknownPeer 测试向未记录地址的节点发起流
func TestHost_UnknownPeer(t *testing.T) {
	client := newTestHost(t, "client-peer")

	_, err := client.NewStream(context.Background(), "stranger", testProtocol)
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

// TestHost_ConnectValidation 测试 Connect 的参数校验
func TestHost_ConnectValidation(t *testing.T) {
	client := newTestHost(t, "client-peer")

	err := client.Connect(context.Background(), "peer", nil)
	assert.ErrorIs(t, err, ErrUnknownPeer)
}

// TestHost_Addrs 测试地址上报为 multiaddr 格式
func TestHost_Addrs(t *testing.T) {
	h := newTestHost(t, "peer")

	addrs := h.Addrs()
	require.Len(t, addrs, 1)
	assert.Contains(t, addrs[0], "/ip4/127.0.0.1/tcp/")
	assert.NotEmpty(t, h.ListenAddr())
	assert.Equal(t, "peer", h.ID())
}

// TestHost_CloseUnblocksIdleHandlers 测试关闭不被空闲流上阻塞的处理器拖住
func TestHost_CloseUnblocksIdleHandlers(t *testing.T) {
	server := newTestHost(t, "server-peer")
	client := newTestHost(t, "client-peer")

	entered := make(chan struct{})
	server.SetStreamHandler(testProtocol, func(s interfaces.Stream) {
		close(entered)
		// 对端不发送任何数据，读取阻塞到连接被关闭
		buf := make([]byte, 1)
		_, _ = s.Read(buf)
	})
	connectHosts(t, client, server)

	s, err := client.NewStream(context.Background(), server.ID(), testProtocol)
	require.NoError(t, err)
	defer s.Close()

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not invoked")
	}

	done := make(chan error, 1)
	go func() { done <- server.Close() }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("close blocked on idle handler")
	}
}

// TestHost_Closed 测试关闭后的操作
func TestHost_Closed(t *testing.T) {
	server := newTestHost(t, "server-peer")
	client := newTestHost(t, "client-peer")
	connectHosts(t, client, server)

	require.NoError(t, client.Close())

	_, err := client.NewStream(context.Background(), server.ID(), testProtocol)
	assert.ErrorIs(t, err, ErrHostClosed)
	assert.ErrorIs(t, client.Connect(context.Background(), "x", []string{"addr"}), ErrHostClosed)

	// 重复关闭无副作用
	assert.NoError(t, client.Close())
}
