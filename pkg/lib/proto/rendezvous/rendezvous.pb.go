// Package rendezvous 包含 Rendezvous 协议的 protobuf 定义
//
// 实现 libp2p rendezvous 规范的消息结构。
// 使用 protobuf wire format 手工编解码（与 noise payload 的处理方式一致），
// 字段号与 rendezvous.proto 保持兼容，未知字段静默跳过（向前兼容）。
package rendezvous

import (
	"errors"
	"fmt"
)

// ErrInvalidMessage 表示无效的消息数据
var ErrInvalidMessage = errors.New("invalid rendezvous message data")

// ============================================================================
//                              枚举定义
// ============================================================================

// Message_MessageType 消息类型
type Message_MessageType int32

const (
	Message_REGISTER          Message_MessageType = 0
	Message_REGISTER_RESPONSE Message_MessageType = 1
	Message_UNREGISTER        Message_MessageType = 2
	Message_DISCOVER          Message_MessageType = 3
	Message_DISCOVER_RESPONSE Message_MessageType = 4
	// UNREGISTER_RESPONSE 确认注销；注销是幂等操作，状态恒为 OK
	Message_UNREGISTER_RESPONSE Message_MessageType = 5
)

// String 返回消息类型名称
func (t Message_MessageType) String() string {
	switch t {
	case Message_REGISTER:
		return "REGISTER"
	case Message_REGISTER_RESPONSE:
		return "REGISTER_RESPONSE"
	case Message_UNREGISTER:
		return "UNREGISTER"
	case Message_DISCOVER:
		return "DISCOVER"
	case Message_DISCOVER_RESPONSE:
		return "DISCOVER_RESPONSE"
	case Message_UNREGISTER_RESPONSE:
		return "UNREGISTER_RESPONSE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(t))
	}
}

// Message_ResponseStatus 响应状态码
type Message_ResponseStatus int32

const (
	Message_OK                  Message_ResponseStatus = 0
	Message_E_INVALID_NAMESPACE Message_ResponseStatus = 100
	Message_E_INVALID_PEER      Message_ResponseStatus = 101
	Message_E_INVALID_TTL       Message_ResponseStatus = 102
	Message_E_INVALID_COOKIE    Message_ResponseStatus = 103
	Message_E_NOT_AUTHORIZED    Message_ResponseStatus = 200
	Message_E_INTERNAL_ERROR    Message_ResponseStatus = 300
	Message_E_UNAVAILABLE       Message_ResponseStatus = 400
)

// String 返回状态码名称
func (s Message_ResponseStatus) String() string {
	switch s {
	case Message_OK:
		return "OK"
	case Message_E_INVALID_NAMESPACE:
		return "E_INVALID_NAMESPACE"
	case Message_E_INVALID_PEER:
		return "E_INVALID_PEER"
	case Message_E_INVALID_TTL:
		return "E_INVALID_TTL"
	case Message_E_INVALID_COOKIE:
		return "E_INVALID_COOKIE"
	case Message_E_NOT_AUTHORIZED:
		return "E_NOT_AUTHORIZED"
	case Message_E_INTERNAL_ERROR:
		return "E_INTERNAL_ERROR"
	case Message_E_UNAVAILABLE:
		return "E_UNAVAILABLE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(s))
	}
}

// ============================================================================
//                              消息结构
// ============================================================================

// Message Rendezvous 协议消息（顶层信封）
//
// 字段号：
//   - type=1 (varint)
//   - register=2, registerResponse=3, unregister=4, discover=5,
//     discoverResponse=6, unregisterResponse=7 (length-delimited 子消息)
type Message struct {
	Type               Message_MessageType
	Register           *Message_Register
	RegisterResponse   *Message_RegisterResponse
	Unregister         *Message_Unregister
	Discover           *Message_Discover
	DiscoverResponse   *Message_DiscoverResponse
	UnregisterResponse *Message_UnregisterResponse
}

// Message_Peer 节点信息（id=1, addrs=2 repeated）
//
// 地址是节点自行上报的不透明字节串，服务端保持原样存储和返回。
type Message_Peer struct {
	Id    []byte
	Addrs [][]byte
}

// Message_Register 注册请求/注册记录（ns=1, peer=2, ttl=3 秒）
type Message_Register struct {
	Ns   string
	Peer *Message_Peer
	Ttl  uint64
}

// Message_RegisterResponse 注册响应（status=1, statusText=2, ttl=3 秒）
//
// ttl 是服务端裁剪后的实际有效期。
type Message_RegisterResponse struct {
	Status     Message_ResponseStatus
	StatusText string
	Ttl        uint64
}

// Message_Unregister 取消注册请求（ns=1, id=2）
type Message_Unregister struct {
	Ns string
	Id []byte
}

// Message_UnregisterResponse 取消注册响应（status=1, statusText=2）
type Message_UnregisterResponse struct {
	Status     Message_ResponseStatus
	StatusText string
}

// Message_Discover 发现请求（ns=1, limit=2, cookie=3）
type Message_Discover struct {
	Ns     string
	Limit  uint64
	Cookie []byte
}

// Message_DiscoverResponse 发现响应
// （registrations=1 repeated, cookie=2, status=3, statusText=4）
//
// cookie 缺失表示枚举已结束。
type Message_DiscoverResponse struct {
	Registrations []*Message_Register
	Cookie        []byte
	Status        Message_ResponseStatus
	StatusText    string
}

// ============================================================================
//                              序列化
// ============================================================================

// Marshal 序列化顶层消息
func (m *Message) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = appendVarintField(buf, 1, uint64(m.Type))

	if m.Register != nil {
		sub, err := m.Register.Marshal()
		if err != nil {
			return nil, err
		}
		buf = appendBytesField(buf, 2, sub)
	}
	if m.RegisterResponse != nil {
		buf = appendBytesField(buf, 3, m.RegisterResponse.marshal())
	}
	if m.Unregister != nil {
		buf = appendBytesField(buf, 4, m.Unregister.marshal())
	}
	if m.Discover != nil {
		buf = appendBytesField(buf, 5, m.Discover.marshal())
	}
	if m.DiscoverResponse != nil {
		sub, err := m.DiscoverResponse.marshal()
		if err != nil {
			return nil, err
		}
		buf = appendBytesField(buf, 6, sub)
	}
	if m.UnregisterResponse != nil {
		buf = appendBytesField(buf, 7, m.UnregisterResponse.marshal())
	}

	return buf, nil
}

// Marshal 序列化注册记录
func (r *Message_Register) Marshal() ([]byte, error) {
	buf := make([]byte, 0, 32+len(r.Ns))
	if r.Ns != "" {
		buf = appendBytesField(buf, 1, []byte(r.Ns))
	}
	if r.Peer != nil {
		buf = appendBytesField(buf, 2, r.Peer.marshal())
	}
	if r.Ttl != 0 {
		buf = appendVarintField(buf, 3, r.Ttl)
	}
	return buf, nil
}

func (p *Message_Peer) marshal() []byte {
	buf := make([]byte, 0, 16+len(p.Id))
	if len(p.Id) > 0 {
		buf = appendBytesField(buf, 1, p.Id)
	}
	for _, addr := range p.Addrs {
		buf = appendBytesField(buf, 2, addr)
	}
	return buf
}

func (r *Message_RegisterResponse) marshal() []byte {
	buf := make([]byte, 0, 16+len(r.StatusText))
	if r.Status != 0 {
		buf = appendVarintField(buf, 1, uint64(r.Status))
	}
	if r.StatusText != "" {
		buf = appendBytesField(buf, 2, []byte(r.StatusText))
	}
	if r.Ttl != 0 {
		buf = appendVarintField(buf, 3, r.Ttl)
	}
	return buf
}

func (u *Message_UnregisterResponse) marshal() []byte {
	buf := make([]byte, 0, 8+len(u.StatusText))
	if u.Status != 0 {
		buf = appendVarintField(buf, 1, uint64(u.Status))
	}
	if u.StatusText != "" {
		buf = appendBytesField(buf, 2, []byte(u.StatusText))
	}
	return buf
}

func (u *Message_Unregister) marshal() []byte {
	buf := make([]byte, 0, 8+len(u.Ns)+len(u.Id))
	if u.Ns != "" {
		buf = appendBytesField(buf, 1, []byte(u.Ns))
	}
	if len(u.Id) > 0 {
		buf = appendBytesField(buf, 2, u.Id)
	}
	return buf
}

func (d *Message_Discover) marshal() []byte {
	buf := make([]byte, 0, 8+len(d.Ns)+len(d.Cookie))
	if d.Ns != "" {
		buf = appendBytesField(buf, 1, []byte(d.Ns))
	}
	if d.Limit != 0 {
		buf = appendVarintField(buf, 2, d.Limit)
	}
	if len(d.Cookie) > 0 {
		buf = appendBytesField(buf, 3, d.Cookie)
	}
	return buf
}

func (d *Message_DiscoverResponse) marshal() ([]byte, error) {
	buf := make([]byte, 0, 64)
	for _, reg := range d.Registrations {
		sub, err := reg.Marshal()
		if err != nil {
			return nil, err
		}
		buf = appendBytesField(buf, 1, sub)
	}
	if len(d.Cookie) > 0 {
		buf = appendBytesField(buf, 2, d.Cookie)
	}
	if d.Status != 0 {
		buf = appendVarintField(buf, 3, uint64(d.Status))
	}
	if d.StatusText != "" {
		buf = appendBytesField(buf, 4, []byte(d.StatusText))
	}
	return buf, nil
}

// ============================================================================
//                              反序列化
// ============================================================================

// Unmarshal 反序列化顶层消息
func (m *Message) Unmarshal(data []byte) error {
	return walkFields(data, func(fieldNum int, wireType int, varint uint64, raw []byte) error {
		switch fieldNum {
		case 1:
			if wireType != wireVarint {
				return ErrInvalidMessage
			}
			m.Type = Message_MessageType(varint)
		case 2:
			m.Register = &Message_Register{}
			return m.Register.Unmarshal(raw)
		case 3:
			m.RegisterResponse = &Message_RegisterResponse{}
			return m.RegisterResponse.unmarshal(raw)
		case 4:
			m.Unregister = &Message_Unregister{}
			return m.Unregister.unmarshal(raw)
		case 5:
			m.Discover = &Message_Discover{}
			return m.Discover.unmarshal(raw)
		case 6:
			m.DiscoverResponse = &Message_DiscoverResponse{}
			return m.DiscoverResponse.unmarshal(raw)
		case 7:
			m.UnregisterResponse = &Message_UnregisterResponse{}
			return m.UnregisterResponse.unmarshal(raw)
		}
		return nil
	})
}

// Unmarshal 反序列化注册记录
func (r *Message_Register) Unmarshal(data []byte) error {
	return walkFields(data, func(fieldNum int, wireType int, varint uint64, raw []byte) error {
		switch fieldNum {
		case 1:
			r.Ns = string(raw)
		case 2:
			r.Peer = &Message_Peer{}
			return r.Peer.unmarshal(raw)
		case 3:
			r.Ttl = varint
		}
		return nil
	})
}

func (p *Message_Peer) unmarshal(data []byte) error {
	return walkFields(data, func(fieldNum int, wireType int, varint uint64, raw []byte) error {
		switch fieldNum {
		case 1:
			p.Id = append([]byte(nil), raw...)
		case 2:
			p.Addrs = append(p.Addrs, append([]byte(nil), raw...))
		}
		return nil
	})
}

func (r *Message_RegisterResponse) unmarshal(data []byte) error {
	return walkFields(data, func(fieldNum int, wireType int, varint uint64, raw []byte) error {
		switch fieldNum {
		case 1:
			r.Status = Message_ResponseStatus(varint)
		case 2:
			r.StatusText = string(raw)
		case 3:
			r.Ttl = varint
		}
		return nil
	})
}

func (u *Message_Unregister) unmarshal(data []byte) error {
	return walkFields(data, func(fieldNum int, wireType int, varint uint64, raw []byte) error {
		switch fieldNum {
		case 1:
			u.Ns = string(raw)
		case 2:
			u.Id = append([]byte(nil), raw...)
		}
		return nil
	})
}

func (u *Message_UnregisterResponse) unmarshal(data []byte) error {
	return walkFields(data, func(fieldNum int, wireType int, varint uint64, raw []byte) error {
		switch fieldNum {
		case 1:
			u.Status = Message_ResponseStatus(varint)
		case 2:
			u.StatusText = string(raw)
		}
		return nil
	})
}

func (d *Message_Discover) unmarshal(data []byte) error {
	return walkFields(data, func(fieldNum int, wireType int, varint uint64, raw []byte) error {
		switch fieldNum {
		case 1:
			d.Ns = string(raw)
		case 2:
			d.Limit = varint
		case 3:
			d.Cookie = append([]byte(nil), raw...)
		}
		return nil
	})
}

func (d *Message_DiscoverResponse) unmarshal(data []byte) error {
	return walkFields(data, func(fieldNum int, wireType int, varint uint64, raw []byte) error {
		switch fieldNum {
		case 1:
			reg := &Message_Register{}
			if err := reg.Unmarshal(raw); err != nil {
				return err
			}
			d.Registrations = append(d.Registrations, reg)
		case 2:
			d.Cookie = append([]byte(nil), raw...)
		case 3:
			d.Status = Message_ResponseStatus(varint)
		case 4:
			d.StatusText = string(raw)
		}
		return nil
	})
}

// ============================================================================
//                              wire format 工具
// ============================================================================

// wire type 常量
const (
	wireVarint  = 0
	wireFixed64 = 1
	wireBytes   = 2
	wireFixed32 = 5
)

// fieldFn 处理单个字段
//
// wireVarint 字段通过 varint 传值，wireBytes 字段通过 raw 传值。
type fieldFn func(fieldNum int, wireType int, varint uint64, raw []byte) error

// walkFields 遍历消息中的所有字段
//
// 未知字段按 wire type 跳过（向前兼容）；无法跳过的 wire type 视为损坏。
func walkFields(data []byte, fn fieldFn) error {
	for len(data) > 0 {
		tag, n := consumeVarint(data)
		if n < 0 {
			return ErrInvalidMessage
		}
		data = data[n:]

		fieldNum := int(tag >> 3)
		wireType := int(tag & 0x07)
		if fieldNum == 0 {
			return ErrInvalidMessage
		}

		switch wireType {
		case wireVarint:
			v, n := consumeVarint(data)
			if n < 0 {
				return ErrInvalidMessage
			}
			data = data[n:]
			if err := fn(fieldNum, wireType, v, nil); err != nil {
				return err
			}

		case wireBytes:
			length, n := consumeVarint(data)
			if n < 0 {
				return ErrInvalidMessage
			}
			data = data[n:]
			if length > uint64(len(data)) {
				return ErrInvalidMessage
			}
			if err := fn(fieldNum, wireType, 0, data[:length]); err != nil {
				return err
			}
			data = data[length:]

		case wireFixed64:
			if len(data) < 8 {
				return ErrInvalidMessage
			}
			data = data[8:]

		case wireFixed32:
			if len(data) < 4 {
				return ErrInvalidMessage
			}
			data = data[4:]

		default:
			return ErrInvalidMessage
		}
	}

	return nil
}

// appendVarintField 追加 varint 字段
func appendVarintField(buf []byte, fieldNum int, v uint64) []byte {
	buf = appendVarint(buf, uint64(fieldNum)<<3|wireVarint)
	return appendVarint(buf, v)
}

// appendBytesField 追加 length-delimited 字段
func appendBytesField(buf []byte, fieldNum int, data []byte) []byte {
	buf = appendVarint(buf, uint64(fieldNum)<<3|wireBytes)
	buf = appendVarint(buf, uint64(len(data)))
	return append(buf, data...)
}

// appendVarint 追加 varint 编码
func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// consumeVarint 消费 varint 编码，返回值和消费的字节数
func consumeVarint(data []byte) (uint64, int) {
	var v uint64
	for i := 0; i < len(data) && i < 10; i++ {
		b := data[i]
		v |= uint64(b&0x7f) << (7 * i)
		if b < 0x80 {
			return v, i + 1
		}
	}
	return 0, -1
}
