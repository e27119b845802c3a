package rendezvous_test

import (
	"bytes"
	"testing"

	"github.com/dep2p/go-rendezvous/pkg/lib/proto/rendezvous"
)

func TestMessage_Register(t *testing.T) {
	msg := &rendezvous.Message{
		Type: rendezvous.Message_REGISTER,
		Register: &rendezvous.Message_Register{
			Ns: "test-namespace",
			Peer: &rendezvous.Message_Peer{
				Id:    []byte("peer-1"),
				Addrs: [][]byte{[]byte("/ip4/1.2.3.4/tcp/4001"), []byte("/dns4/example.com/tcp/443")},
			},
			Ttl: 3600,
		},
	}

	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded rendezvous.Message
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if decoded.Type != rendezvous.Message_REGISTER {
		t.Errorf("Type = %v, want REGISTER", decoded.Type)
	}
	if decoded.Register == nil {
		t.Fatal("Register is nil")
	}
	if decoded.Register.Ns != "test-namespace" {
		t.Errorf("Ns = %q", decoded.Register.Ns)
	}
	if decoded.Register.Ttl != 3600 {
		t.Errorf("Ttl = %d, want 3600", decoded.Register.Ttl)
	}
	if decoded.Register.Peer == nil || !bytes.Equal(decoded.Register.Peer.Id, []byte("peer-1")) {
		t.Errorf("Peer = %+v", decoded.Register.Peer)
	}
	// 地址顺序保持上报顺序
	if len(decoded.Register.Peer.Addrs) != 2 ||
		!bytes.Equal(decoded.Register.Peer.Addrs[0], []byte("/ip4/1.2.3.4/tcp/4001")) {
		t.Errorf("Addrs = %v", decoded.Register.Peer.Addrs)
	}
}

func TestMessage_DiscoverResponse(t *testing.T) {
	msg := &rendezvous.Message{
		Type: rendezvous.Message_DISCOVER_RESPONSE,
		DiscoverResponse: &rendezvous.Message_DiscoverResponse{
			Registrations: []*rendezvous.Message_Register{
				{Ns: "ns1", Peer: &rendezvous.Message_Peer{Id: []byte("A")}, Ttl: 120},
				{Ns: "ns1", Peer: &rendezvous.Message_Peer{Id: []byte("B")}, Ttl: 240},
			},
			Cookie: []byte("pagination-cookie"),
			Status: rendezvous.Message_OK,
		},
	}

	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded rendezvous.Message
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	resp := decoded.DiscoverResponse
	if resp == nil {
		t.Fatal("DiscoverResponse is nil")
	}
	if len(resp.Registrations) != 2 {
		t.Fatalf("len(Registrations) = %d, want 2", len(resp.Registrations))
	}
	if !bytes.Equal(resp.Registrations[1].Peer.Id, []byte("B")) {
		t.Errorf("Registrations[1].Peer.Id = %q", resp.Registrations[1].Peer.Id)
	}
	if !bytes.Equal(resp.Cookie, []byte("pagination-cookie")) {
		t.Errorf("Cookie = %q", resp.Cookie)
	}
}

func TestMessage_ErrorStatus(t *testing.T) {
	msg := &rendezvous.Message{
		Type: rendezvous.Message_REGISTER_RESPONSE,
		RegisterResponse: &rendezvous.Message_RegisterResponse{
			Status:     rendezvous.Message_E_INVALID_NAMESPACE,
			StatusText: "namespace too long",
		},
	}

	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded rendezvous.Message
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.RegisterResponse.Status != rendezvous.Message_E_INVALID_NAMESPACE {
		t.Errorf("Status = %v", decoded.RegisterResponse.Status)
	}
	if decoded.RegisterResponse.StatusText != "namespace too long" {
		t.Errorf("StatusText = %q", decoded.RegisterResponse.StatusText)
	}
}

func TestMessage_UnknownFieldsSkipped(t *testing.T) {
	msg := &rendezvous.Message{Type: rendezvous.Message_UNREGISTER,
		Unregister: &rendezvous.Message_Unregister{Ns: "ns1", Id: []byte("A")}}
	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	// 追加未知字段：field 15 varint + field 14 bytes
	data = append(data, 0x78, 0x07)
	data = append(data, 0x72, 0x03, 'x', 'y', 'z')

	var decoded rendezvous.Message
	if err := decoded.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal with unknown fields failed: %v", err)
	}
	if decoded.Unregister == nil || decoded.Unregister.Ns != "ns1" {
		t.Errorf("Unregister = %+v", decoded.Unregister)
	}
}

func TestMessage_Truncated(t *testing.T) {
	msg := &rendezvous.Message{
		Type:     rendezvous.Message_DISCOVER,
		Discover: &rendezvous.Message_Discover{Ns: "ns1", Limit: 10, Cookie: []byte("cookie")},
	}
	data, err := msg.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var decoded rendezvous.Message
	if err := decoded.Unmarshal(data[:len(data)-3]); err == nil {
		t.Error("expected error for truncated message")
	}
}
