package types

import (
	"crypto/rand"
	"errors"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
//
// 内容由外部身份系统决定，本服务将其作为不透明字节序列处理。
// 注册表以 (namespace, PeerID) 为键，因此 PeerID 必须可比较。
//
// 外部表示格式：
//   - String(): 原始字符串（通常已是 Base58 编码）
//   - ShortString(): 前 8 个字符（日志简短标识）
type PeerID string

// ErrEmptyPeerID 空节点 ID
var ErrEmptyPeerID = errors.New("empty peer ID")

// String 返回 PeerID 的字符串表示
func (id PeerID) String() string {
	return string(id)
}

// ShortString 返回 PeerID 的短字符串表示
//
// 格式：前 8 个字符，用于日志中的简短标识。
func (id PeerID) ShortString() string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes 返回 PeerID 的字节切片
func (id PeerID) Bytes() []byte {
	return []byte(id)
}

// IsEmpty 检查 PeerID 是否为空
func (id PeerID) IsEmpty() bool {
	return id == ""
}

// PeerIDFromBytes 从字节切片创建 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) == 0 {
		return "", ErrEmptyPeerID
	}
	return PeerID(b), nil
}

// RandomPeerID 生成随机 PeerID（32 字节随机数的 Base58 编码）
//
// 用于本地服务身份的初始生成，不涉及密钥派生。
func RandomPeerID() (PeerID, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return PeerID(Base58Encode(b[:])), nil
}
