// Package tcp 提供纯 TCP 的 Host 适配器
//
// 本包是协议层消费的传输门面的最小实现：一条 TCP 连接承载一条
// 协议流，连接建立后双方交换一次握手帧（协议 ID 与各自的节点
// 标识）。节点身份由对端自行上报，不做密码学验证（身份认证是
// 完整网络栈的职责，此适配器面向编排环境内的直连部署）。
package tcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dep2p/go-rendezvous/pkg/interfaces"
	"github.com/dep2p/go-rendezvous/pkg/lib/log"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

var logger = log.Logger("transport-tcp")

var (
	// ErrHostClosed 主机已关闭
	ErrHostClosed = errors.New("tcp host closed")

	// ErrUnknownPeer 未知节点（未记录任何地址）
	ErrUnknownPeer = errors.New("unknown peer: no addresses")

	// ErrNoProtocol 对端不支持请求的协议
	ErrNoProtocol = errors.New("peer does not support requested protocol")

	// ErrHandshakeFailed 握手失败
	ErrHandshakeFailed = errors.New("handshake failed")
)

// 握手帧与控制字节
const (
	// maxHandshakeFrame 握手帧的最大长度
	maxHandshakeFrame = 1024

	// handshakeTimeout 握手超时
	handshakeTimeout = 10 * time.Second

	// 握手应答
	handshakeAccept = 0x00
	handshakeReject = 0x01
)

// ============================================================================
//                              Host
// ============================================================================

// Host 纯 TCP 主机
//
// 一条连接即一条流。入站连接读取握手（协议 ID + 对端上报的身份），
// 命中已注册的处理器则应答接受并移交流。
type Host struct {
	id         string
	listenAddr string

	ln     net.Listener
	closed atomic.Bool
	wg     sync.WaitGroup

	mu       sync.RWMutex
	handlers map[string]interfaces.StreamHandler
	peers    map[string][]string
	conns    map[net.Conn]struct{}
}

// 确保 Host 实现 interfaces.Host
var _ interfaces.Host = (*Host)(nil)

// New 创建并启动 TCP 主机
//
// listenAddr 形如 "0.0.0.0:8888"；id 是本节点对外上报的身份。
func New(id string, listenAddr string) (*Host, error) {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, err
	}

	h := &Host{
		id:         id,
		listenAddr: ln.Addr().String(),
		ln:         ln,
		handlers:   make(map[string]interfaces.StreamHandler),
		peers:      make(map[string][]string),
		conns:      make(map[net.Conn]struct{}),
	}
	h.wg.Add(1)
	go h.acceptLoop()
	return h, nil
}

// ID 返回本节点身份
func (h *Host) ID() string {
	return h.id
}

// Addrs 返回监听地址（multiaddr 格式）
func (h *Host) Addrs() []string {
	ma, err := types.FromHostPort(h.listenAddr)
	if err != nil {
		return nil
	}
	return []string{ma.String()}
}

// ListenAddr 返回实际监听的 host:port（端口 0 时为分配后的端口）
func (h *Host) ListenAddr() string {
	return h.listenAddr
}

// Connect 记录节点的地址，后续 NewStream 使用
func (h *Host) Connect(ctx context.Context, peerID string, addrs []string) error {
	if h.closed.Load() {
		return ErrHostClosed
	}
	if len(addrs) == 0 {
		return ErrUnknownPeer
	}
	h.mu.Lock()
	h.peers[peerID] = append([]string(nil), addrs...)
	h.mu.Unlock()
	return nil
}

// SetStreamHandler 注册协议处理器
func (h *Host) SetStreamHandler(protocolID string, handler interfaces.StreamHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[protocolID] = handler
}

// RemoveStreamHandler 移除协议处理器
func (h *Host) RemoveStreamHandler(protocolID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.handlers, protocolID)
}

// NewStream 向指定节点发起一条协议流
//
// 依次尝试 Connect 记录的各个地址，任一成功即返回。
func (h *Host) NewStream(ctx context.Context, peerID string, protocolIDs ...string) (interfaces.Stream, error) {
	if h.closed.Load() {
		return nil, ErrHostClosed
	}
	if len(protocolIDs) == 0 {
		return nil, ErrNoProtocol
	}

	h.mu.RLock()
	addrs := h.peers[peerID]
	h.mu.RUnlock()
	if len(addrs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPeer, log.TruncateID(peerID, 12))
	}

	var lastErr error
	for _, addr := range addrs {
		stream, err := h.dial(ctx, addr, protocolIDs[0])
		if err == nil {
			return stream, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (h *Host) dial(ctx context.Context, addr string, protocolID string) (interfaces.Stream, error) {
	dialAddr := addr
	if ma, err := types.ParseMultiaddr(addr); err == nil {
		dialAddr, err = ma.TCPDialAddr()
		if err != nil {
			return nil, err
		}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", dialAddr)
	if err != nil {
		return nil, err
	}

	if err := h.clientHandshake(conn, protocolID); err != nil {
		_ = conn.Close()
		return nil, err
	}
	remote, err := readFrame(conn)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	_ = conn.SetDeadline(time.Time{})

	return &stream{conn: conn, protocol: protocolID, remote: string(remote)}, nil
}

// clientHandshake 发送协议 ID 与本端身份，等待接受应答
func (h *Host) clientHandshake(conn net.Conn, protocolID string) error {
	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))

	if err := writeFrame(conn, []byte(protocolID)); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if err := writeFrame(conn, []byte(h.id)); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}

	var status [1]byte
	if _, err := io.ReadFull(conn, status[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	if status[0] != handshakeAccept {
		return ErrNoProtocol
	}
	return nil
}

// Close 关闭主机并等待所有处理协程退出
//
// 除监听器外同时关闭所有已接受的连接，空闲流上阻塞的处理器
// 立即返回，关闭不受空闲超时牵制。
func (h *Host) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := h.ln.Close()

	h.mu.Lock()
	for conn := range h.conns {
		_ = conn.Close()
	}
	h.mu.Unlock()

	h.wg.Wait()
	return err
}

// ----------------------------------------------------------------------------
// 入站处理
// ----------------------------------------------------------------------------

func (h *Host) acceptLoop() {
	defer h.wg.Done()

	for {
		conn, err := h.ln.Accept()
		if err != nil {
			if h.closed.Load() {
				return
			}
			logger.Warn("接受连接失败", "error", err)
			continue
		}

		// 登记与 closed 判断在同一临界区内，避免关闭时漏掉
		// 恰好刚被接受的连接
		h.mu.Lock()
		if h.closed.Load() {
			h.mu.Unlock()
			_ = conn.Close()
			return
		}
		h.conns[conn] = struct{}{}
		h.mu.Unlock()

		h.wg.Add(1)
		go h.handleConn(conn)
	}
}

// handleConn 处理一条入站连接的握手并移交协议处理器
func (h *Host) handleConn(conn net.Conn) {
	defer h.wg.Done()
	defer func() {
		h.mu.Lock()
		delete(h.conns, conn)
		h.mu.Unlock()
	}()

	_ = conn.SetDeadline(time.Now().Add(handshakeTimeout))

	protocolID, err := readFrame(conn)
	if err != nil {
		_ = conn.Close()
		return
	}
	remote, err := readFrame(conn)
	if err != nil {
		_ = conn.Close()
		return
	}

	h.mu.RLock()
	handler := h.handlers[string(protocolID)]
	h.mu.RUnlock()

	if handler == nil {
		_, _ = conn.Write([]byte{handshakeReject})
		_ = conn.Close()
		return
	}
	if _, err := conn.Write([]byte{handshakeAccept}); err != nil {
		_ = conn.Close()
		return
	}
	if err := writeFrame(conn, []byte(h.id)); err != nil {
		_ = conn.Close()
		return
	}
	_ = conn.SetDeadline(time.Time{})

	handler(&stream{
		conn:     conn,
		protocol: string(protocolID),
		remote:   string(remote),
	})
}

// ----------------------------------------------------------------------------
// 握手帧
// ----------------------------------------------------------------------------

// 帧格式: 2 字节大端长度 + 内容。

func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxHandshakeFrame {
		return ErrHandshakeFailed
	}
	buf := make([]byte, 2+len(data))
	binary.BigEndian.PutUint16(buf[:2], uint16(len(data)))
	copy(buf[2:], data)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	frameLen := binary.BigEndian.Uint16(lenBuf[:])
	if frameLen > maxHandshakeFrame {
		return nil, ErrHandshakeFailed
	}
	data := make([]byte, frameLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}
