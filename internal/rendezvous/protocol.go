package rendezvous

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	pb "github.com/dep2p/go-rendezvous/pkg/lib/proto/rendezvous"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ============================================================================
//                              协议常量
// ============================================================================

const (
	// ProtocolID Rendezvous 协议标识
	ProtocolID = "/rendezvous/1.0.0"

	// maxMessageSize 单条消息的最大字节数
	maxMessageSize = 1 << 20
)

// ============================================================================
//                              消息收发
// ============================================================================

// 帧格式: 4 字节大端长度前缀 + protobuf 消息体。

// ReadMessage 从流中读取一条完整消息
func ReadMessage(r io.Reader) (*pb.Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}

	msgLen := binary.BigEndian.Uint32(lenBuf[:])
	if msgLen > maxMessageSize {
		return nil, ErrMessageTooLarge
	}

	data := make([]byte, msgLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}

	var msg pb.Message
	if err := msg.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return &msg, nil
}

// WriteMessage 向流中写入一条完整消息
func WriteMessage(w io.Writer, msg *pb.Message) error {
	data, err := msg.Marshal()
	if err != nil {
		return err
	}
	if len(data) > maxMessageSize {
		return ErrMessageTooLarge
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(data)))
	copy(buf[4:], data)

	_, err = w.Write(buf)
	return err
}

// ============================================================================
//                              消息构造
// ============================================================================

func newRegisterMessage(ns string, peer types.PeerInfo, ttlSeconds uint64) *pb.Message {
	return &pb.Message{
		Type: pb.Message_REGISTER,
		Register: &pb.Message_Register{
			Ns: ns,
			Peer: &pb.Message_Peer{
				Id:    peer.ID.Bytes(),
				Addrs: peer.AddrsToBytes(),
			},
			Ttl: ttlSeconds,
		},
	}
}

func newRegisterResponse(ttlSeconds uint64) *pb.Message {
	return &pb.Message{
		Type: pb.Message_REGISTER_RESPONSE,
		RegisterResponse: &pb.Message_RegisterResponse{
			Status: pb.Message_OK,
			Ttl:    ttlSeconds,
		},
	}
}

func newRegisterErrorResponse(status pb.Message_ResponseStatus, text string) *pb.Message {
	return &pb.Message{
		Type: pb.Message_REGISTER_RESPONSE,
		RegisterResponse: &pb.Message_RegisterResponse{
			Status:     status,
			StatusText: text,
		},
	}
}

func newUnregisterMessage(ns string, peer types.PeerID) *pb.Message {
	return &pb.Message{
		Type: pb.Message_UNREGISTER,
		Unregister: &pb.Message_Unregister{
			Ns: ns,
			Id: peer.Bytes(),
		},
	}
}

func newUnregisterResponse() *pb.Message {
	return &pb.Message{
		Type: pb.Message_UNREGISTER_RESPONSE,
		UnregisterResponse: &pb.Message_UnregisterResponse{
			Status: pb.Message_OK,
		},
	}
}

func newDiscoverMessage(ns string, limit uint64, cookie []byte) *pb.Message {
	return &pb.Message{
		Type: pb.Message_DISCOVER,
		Discover: &pb.Message_Discover{
			Ns:     ns,
			Limit:  limit,
			Cookie: cookie,
		},
	}
}

func newDiscoverResponse(regs []Registration, cookie []byte) *pb.Message {
	pbRegs := make([]*pb.Message_Register, 0, len(regs))
	for _, reg := range regs {
		pbRegs = append(pbRegs, &pb.Message_Register{
			Ns: reg.Namespace,
			Peer: &pb.Message_Peer{
				Id:    reg.Peer.ID.Bytes(),
				Addrs: reg.Peer.AddrsToBytes(),
			},
			Ttl: uint64(reg.TTL.Seconds()),
		})
	}
	return &pb.Message{
		Type: pb.Message_DISCOVER_RESPONSE,
		DiscoverResponse: &pb.Message_DiscoverResponse{
			Registrations: pbRegs,
			Cookie:        cookie,
			Status:        pb.Message_OK,
		},
	}
}

func newDiscoverErrorResponse(status pb.Message_ResponseStatus, text string) *pb.Message {
	return &pb.Message{
		Type: pb.Message_DISCOVER_RESPONSE,
		DiscoverResponse: &pb.Message_DiscoverResponse{
			Status:     status,
			StatusText: text,
		},
	}
}

// ============================================================================
//                              状态码映射
// ============================================================================

// errToStatus 将存储层错误映射为响应状态码
func errToStatus(err error) pb.Message_ResponseStatus {
	switch {
	case err == nil:
		return pb.Message_OK
	case errors.Is(err, ErrInvalidNamespace):
		return pb.Message_E_INVALID_NAMESPACE
	case errors.Is(err, ErrInvalidPeer):
		return pb.Message_E_INVALID_PEER
	case errors.Is(err, ErrInvalidTTL):
		return pb.Message_E_INVALID_TTL
	case errors.Is(err, ErrInvalidCookie):
		return pb.Message_E_INVALID_COOKIE
	case errors.Is(err, ErrNotAuthorized):
		return pb.Message_E_NOT_AUTHORIZED
	case IsQuotaError(err), errors.Is(err, ErrStoreClosed):
		return pb.Message_E_UNAVAILABLE
	default:
		return pb.Message_E_INTERNAL_ERROR
	}
}

// statusToErr 将响应状态码还原为错误（客户端）
func statusToErr(status pb.Message_ResponseStatus, text string) error {
	switch status {
	case pb.Message_OK:
		return nil
	case pb.Message_E_INVALID_NAMESPACE:
		return ErrInvalidNamespace
	case pb.Message_E_INVALID_PEER:
		return ErrInvalidPeer
	case pb.Message_E_INVALID_TTL:
		return ErrInvalidTTL
	case pb.Message_E_INVALID_COOKIE:
		return ErrInvalidCookie
	case pb.Message_E_NOT_AUTHORIZED:
		return ErrNotAuthorized
	case pb.Message_E_UNAVAILABLE:
		return ErrUnavailable
	default:
		if text != "" {
			return fmt.Errorf("%w: %s", ErrInternalError, text)
		}
		return ErrInternalError
	}
}
