// Package kv 提供基于 BadgerDB 的轻量键值存储
//
// 服务的注册持久化使用本包：按前缀组织键空间，值为 JSON 编码的
// 记录。存储打开后可安全并发读写，后台按固定间隔执行值日志
// 垃圾回收。
package kv

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

var (
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("kv store closed")

	// ErrNotFound 键不存在
	ErrNotFound = errors.New("key not found")

	// ErrEmptyKey 键为空
	ErrEmptyKey = errors.New("empty key")
)

// ============================================================================
//                              配置
// ============================================================================

// Config 存储配置
type Config struct {
	// Path 数据目录；InMemory 为 true 时忽略
	Path string

	// InMemory 使用纯内存模式（测试用）
	InMemory bool

	// SyncWrites 每次写入落盘
	SyncWrites bool

	// GCInterval 值日志垃圾回收间隔；0 表示禁用
	GCInterval time.Duration

	// GCDiscardRatio 触发回收的可丢弃比例
	GCDiscardRatio float64
}

// DefaultConfig 默认配置
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     false,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// ============================================================================
//                              存储
// ============================================================================

// Store BadgerDB 键值存储
type Store struct {
	db     *badger.DB
	cfg    Config
	closed atomic.Bool

	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// Open 打开键值存储
func Open(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, cfg: cfg}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ctx, cancel := context.WithCancel(context.Background())
		s.gcCancel = cancel
		s.startGC(ctx)
	}
	return s, nil
}

// startGC 启动值日志垃圾回收循环
func (s *Store) startGC(ctx context.Context) {
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()

		ticker := time.NewTicker(s.cfg.GCInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// 反复回收直到没有可回收的日志文件
				for s.db.RunValueLogGC(s.cfg.GCDiscardRatio) == nil {
				}
			}
		}
	}()
}

// Put 写入键值对
func (s *Store) Put(key, value []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Get 读取键值；键不存在时返回 ErrNotFound
func (s *Store) Get(key []byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Delete 删除键；键不存在不报错
func (s *Store) Delete(key []byte) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
}

// PrefixScan 遍历指定前缀下的所有键值对
//
// fn 返回错误时中止遍历并透传该错误。回调收到的切片为副本，
// 可在回调之外继续持有。
func (s *Store) PrefixScan(prefix []byte, fn func(key, value []byte) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		iterOpts.Prefix = prefix

		it := txn.NewIterator(iterOpts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(key, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close 关闭存储
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.gcCancel != nil {
		s.gcCancel()
		s.gcWg.Wait()
	}
	return s.db.Close()
}
