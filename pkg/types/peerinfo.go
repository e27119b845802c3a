package types

// ============================================================================
//                              PeerInfo - 节点信息
// ============================================================================

// PeerInfo 节点信息
// 用于发现服务返回的节点信息
type PeerInfo struct {
	// ID 节点 ID
	ID PeerID

	// Addrs 地址列表（Multiaddr 格式，保持节点上报顺序）
	Addrs []Multiaddr
}

// HasAddrs 检查是否有地址
func (pi PeerInfo) HasAddrs() bool {
	return len(pi.Addrs) > 0
}

// AddrsToStrings 返回地址的字符串切片
func (pi PeerInfo) AddrsToStrings() []string {
	strs := make([]string, len(pi.Addrs))
	for i, ma := range pi.Addrs {
		strs[i] = ma.String()
	}
	return strs
}

// AddrsToBytes 返回地址的字节切片列表（用于协议编码）
func (pi PeerInfo) AddrsToBytes() [][]byte {
	bs := make([][]byte, len(pi.Addrs))
	for i, ma := range pi.Addrs {
		bs[i] = ma.Bytes()
	}
	return bs
}

// NewPeerInfo 创建 PeerInfo
func NewPeerInfo(id PeerID, addrs []Multiaddr) PeerInfo {
	return PeerInfo{
		ID:    id,
		Addrs: addrs,
	}
}

// PeerInfoFromBytes 从协议字节构建 PeerInfo
//
// 无法解析的地址被忽略（地址对服务端是自描述数据，不因个别
// 地址损坏而拒绝整个注册）。
func PeerInfoFromBytes(id []byte, addrs [][]byte) (PeerInfo, error) {
	peerID, err := PeerIDFromBytes(id)
	if err != nil {
		return PeerInfo{}, err
	}

	mas := make([]Multiaddr, 0, len(addrs))
	for _, raw := range addrs {
		ma, err := ParseMultiaddr(string(raw))
		if err != nil {
			continue
		}
		mas = append(mas, ma)
	}

	return PeerInfo{ID: peerID, Addrs: mas}, nil
}
