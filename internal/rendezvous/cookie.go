package rendezvous

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

// ============================================================================
//                              枚举游标
// ============================================================================

// cookie 令牌布局（对调用方不透明）:
//
//	[0]     版本号 (cookieVersion)
//	[1:9]   命名空间代纪 (big-endian uint64)
//	[9:17]  已返回的最大序号 (big-endian uint64)
//	[17:25] 校验和 (big-endian uint64)
//
// 校验和以存储实例级随机种子计算，覆盖前 17 字节与命名空间字符串，
// 伪造或跨实例、跨命名空间的游标会被校验拒绝而不会导致越界读取。
const (
	cookieVersion = 0x01
	cookieLen     = 25
)

// cookieCodec 游标编解码器
//
// 种子在存储实例创建时随机生成，实例重启后旧游标全部失效。
type cookieCodec struct {
	seed uint32
}

// newCookieCodec 创建游标编解码器
func newCookieCodec() (*cookieCodec, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, err
	}
	return &cookieCodec{seed: binary.BigEndian.Uint32(buf[:])}, nil
}

// Encode 编码游标
func (c *cookieCodec) Encode(ns string, gen, lastSeq uint64) []byte {
	buf := make([]byte, cookieLen)
	buf[0] = cookieVersion
	binary.BigEndian.PutUint64(buf[1:9], gen)
	binary.BigEndian.PutUint64(buf[9:17], lastSeq)
	binary.BigEndian.PutUint64(buf[17:25], c.sum(buf[:17], ns))
	return buf
}

// Decode 解码并校验游标
//
// 返回游标携带的代纪与最大序号；游标格式错误或校验失败时
// 返回 ErrInvalidCookie。
func (c *cookieCodec) Decode(ns string, cookie []byte) (gen, lastSeq uint64, err error) {
	if len(cookie) != cookieLen || cookie[0] != cookieVersion {
		return 0, 0, ErrInvalidCookie
	}
	want := binary.BigEndian.Uint64(cookie[17:25])
	if c.sum(cookie[:17], ns) != want {
		return 0, 0, ErrInvalidCookie
	}
	gen = binary.BigEndian.Uint64(cookie[1:9])
	lastSeq = binary.BigEndian.Uint64(cookie[9:17])
	return gen, lastSeq, nil
}

func (c *cookieCodec) sum(prefix []byte, ns string) uint64 {
	data := make([]byte, 0, len(prefix)+len(ns))
	data = append(data, prefix...)
	data = append(data, ns...)
	return murmur3.Sum64WithSeed(data, c.seed)
}
