package types

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ============================================================================
//                              Multiaddr - 统一地址类型
// ============================================================================

// Multiaddr 统一地址类型（值对象）
//
// Multiaddr 是本模块内部唯一的地址表示形式。
// 注册记录中的地址由节点自行上报，服务端保持原样存储和返回，
// 仅在边界处做基本格式校验。
//
// 约束：
//   - String() 必须始终返回 canonical multiaddr（以 "/" 开头）
//
// 格式示例：
//   - /ip4/192.168.1.1/tcp/4001
//   - /ip6/::1/tcp/4001
//   - /dns4/example.com/tcp/4001
//   - /ip4/1.2.3.4/tcp/4001/p2p/QmNodeID
type Multiaddr string

// Multiaddr 错误定义
var (
	// ErrInvalidMultiaddr 无效的 multiaddr 格式
	ErrInvalidMultiaddr = errors.New("invalid multiaddr format")

	// ErrEmptyMultiaddr 空 multiaddr
	ErrEmptyMultiaddr = errors.New("empty multiaddr")

	// ErrNotMultiaddrFormat 不是 multiaddr 格式（不以 / 开头）
	ErrNotMultiaddrFormat = errors.New("not multiaddr format: must start with /")
)

// ============================================================================
//                              解析/构建
// ============================================================================

// ParseMultiaddr 解析并规范化 multiaddr
//
// 仅接受 multiaddr 格式输入（以 "/" 开头）。
// host:port 格式应在 CLI 边界层使用 FromHostPort 转换后再进入 core。
//
// 示例：
//   - "/ip4/1.2.3.4/tcp/4001" → Multiaddr
//   - "/dns4/example.com/tcp/4001/p2p/QmNode" → Multiaddr
//   - "1.2.3.4:4001" → error（不是 multiaddr 格式）
func ParseMultiaddr(s string) (Multiaddr, error) {
	if s == "" {
		return "", ErrEmptyMultiaddr
	}

	s = strings.TrimSpace(s)

	// 必须以 / 开头
	if !strings.HasPrefix(s, "/") {
		return "", ErrNotMultiaddrFormat
	}

	// 基本格式校验：检查是否包含有效的协议组件
	parts := strings.Split(s, "/")
	if len(parts) < 3 {
		return "", ErrInvalidMultiaddr
	}

	// 验证第一个组件是有效的网络类型
	firstComponent := parts[1]
	switch firstComponent {
	case "ip4", "ip6", "dns4", "dns6", "dnsaddr", "p2p":
		// 有效的起始组件
	default:
		return "", fmt.Errorf("%w: unknown protocol %q", ErrInvalidMultiaddr, firstComponent)
	}

	return Multiaddr(s), nil
}

// MustParseMultiaddr 解析 multiaddr，失败时 panic
//
// 仅用于常量初始化或测试代码，生产代码应使用 ParseMultiaddr。
func MustParseMultiaddr(s string) Multiaddr {
	ma, err := ParseMultiaddr(s)
	if err != nil {
		panic(err)
	}
	return ma
}

// FromHostPort 从 host:port 构建 TCP multiaddr
//
// 示例：
//   - "1.2.3.4:4001" → /ip4/1.2.3.4/tcp/4001
//   - "[::1]:4001" → /ip6/::1/tcp/4001
//   - "example.com:4001" → /dns4/example.com/tcp/4001
func FromHostPort(hostport string) (Multiaddr, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMultiaddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return "", fmt.Errorf("%w: invalid port %q", ErrInvalidMultiaddr, portStr)
	}

	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		return Multiaddr(fmt.Sprintf("/dns4/%s/tcp/%d", host, port)), nil
	case ip.To4() != nil:
		return Multiaddr(fmt.Sprintf("/ip4/%s/tcp/%d", host, port)), nil
	default:
		return Multiaddr(fmt.Sprintf("/ip6/%s/tcp/%d", host, port)), nil
	}
}

// ============================================================================
//                              访问方法
// ============================================================================

// String 返回 canonical multiaddr 字符串
func (m Multiaddr) String() string {
	return string(m)
}

// IsEmpty 检查是否为空
func (m Multiaddr) IsEmpty() bool {
	return m == ""
}

// WithPeerID 追加 /p2p/<id> 后缀（已存在时原样返回）
func (m Multiaddr) WithPeerID(id PeerID) Multiaddr {
	if strings.Contains(string(m), "/p2p/") {
		return m
	}
	return Multiaddr(string(m) + "/p2p/" + id.String())
}

// Bytes 返回地址的字节表示
func (m Multiaddr) Bytes() []byte {
	return []byte(m)
}

// TCPDialAddr 提取可供 net.Dial 使用的 host:port
//
// 仅支持 ip4/ip6/dns4/dns6 + tcp 形式的地址，其余返回错误。
func (m Multiaddr) TCPDialAddr() (string, error) {
	parts := strings.Split(string(m), "/")
	if len(parts) < 5 || parts[0] != "" {
		return "", fmt.Errorf("%w: %s", ErrInvalidMultiaddr, m)
	}
	switch parts[1] {
	case "ip4", "ip6", "dns4", "dns6":
	default:
		return "", fmt.Errorf("%w: not a dialable address: %s", ErrInvalidMultiaddr, m)
	}
	if parts[3] != "tcp" {
		return "", fmt.Errorf("%w: not a tcp address: %s", ErrInvalidMultiaddr, m)
	}
	return net.JoinHostPort(parts[2], parts[4]), nil
}
