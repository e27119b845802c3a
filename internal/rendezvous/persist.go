package rendezvous

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dep2p/go-rendezvous/internal/storage/kv"
	"github.com/dep2p/go-rendezvous/pkg/types"
)

// ============================================================================
//                              持久化后端
// ============================================================================

// Backend 注册持久化后端
//
// 存储在内存变更生效后直写后端；进程重启时通过 Load 恢复。
// 后端实现无需做过期判断，过期记录在恢复时被丢弃。
type Backend interface {
	// Put 写入一条注册记录
	Put(reg Registration) error

	// Delete 删除一条注册记录
	Delete(ns string, peer types.PeerID) error

	// Load 加载全部注册记录
	Load() ([]Registration, error)

	// Close 关闭后端
	Close() error
}

// ----------------------------------------------------------------------------
// BadgerDB 后端
// ----------------------------------------------------------------------------

// regKeyPrefix 注册记录的键空间前缀
const regKeyPrefix = "r/"

// persistedRegistration 落盘的注册记录
type persistedRegistration struct {
	Namespace    string   `json:"namespace"`
	PeerID       string   `json:"peer_id"`
	Addrs        []string `json:"addrs"`
	RegisteredAt int64    `json:"registered_at"`
	TTLSeconds   int64    `json:"ttl_seconds"`
}

// kvBackend 基于 internal/storage/kv 的持久化后端
type kvBackend struct {
	store *kv.Store
}

// NewKVBackend 创建 BadgerDB 持久化后端
func NewKVBackend(store *kv.Store) Backend {
	return &kvBackend{store: store}
}

// regKey 生成注册记录的存储键
//
// 命名空间以 NUL 结尾，避免前缀歧义（命名空间本身不含 NUL，
// 协议层已限制为合法字符串）。
func regKey(ns string, peer types.PeerID) []byte {
	key := make([]byte, 0, len(regKeyPrefix)+len(ns)+1+len(peer))
	key = append(key, regKeyPrefix...)
	key = append(key, ns...)
	key = append(key, 0)
	key = append(key, peer.String()...)
	return key
}

func (b *kvBackend) Put(reg Registration) error {
	record := persistedRegistration{
		Namespace:    reg.Namespace,
		PeerID:       reg.Peer.ID.String(),
		Addrs:        reg.Peer.AddrsToStrings(),
		RegisteredAt: reg.RegisteredAt.Unix(),
		TTLSeconds:   int64(reg.TTL / time.Second),
	}
	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}
	return b.store.Put(regKey(reg.Namespace, reg.Peer.ID), data)
}

func (b *kvBackend) Delete(ns string, peer types.PeerID) error {
	return b.store.Delete(regKey(ns, peer))
}

func (b *kvBackend) Load() ([]Registration, error) {
	var regs []Registration
	err := b.store.PrefixScan([]byte(regKeyPrefix), func(key, value []byte) error {
		var record persistedRegistration
		if err := json.Unmarshal(value, &record); err != nil {
			return fmt.Errorf("corrupt registration record %q: %w", key, err)
		}

		addrs := make([]types.Multiaddr, 0, len(record.Addrs))
		for _, raw := range record.Addrs {
			ma, err := types.ParseMultiaddr(raw)
			if err != nil {
				continue
			}
			addrs = append(addrs, ma)
		}

		registeredAt := time.Unix(record.RegisteredAt, 0)
		ttl := time.Duration(record.TTLSeconds) * time.Second
		regs = append(regs, Registration{
			Namespace: record.Namespace,
			Peer: types.PeerInfo{
				ID:    types.PeerID(record.PeerID),
				Addrs: addrs,
			},
			RegisteredAt: registeredAt,
			TTL:          ttl,
			ExpiresAt:    registeredAt.Add(ttl),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return regs, nil
}

func (b *kvBackend) Close() error {
	return b.store.Close()
}
