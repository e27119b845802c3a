package kv

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore 创建内存模式的测试存储
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// TestStore_PutGet 测试基本读写
func TestStore_PutGet(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put([]byte("k1"), []byte("v1")))

	value, err := s.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)

	// 覆盖写入
	require.NoError(t, s.Put([]byte("k1"), []byte("v2")))
	value, err = s.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), value)
}

// TestStore_GetMissing 测试读取不存在的键
func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get([]byte("missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestStore_EmptyKey 测试空键
func TestStore_EmptyKey(t *testing.T) {
	s := newTestStore(t)

	assert.ErrorIs(t, s.Put(nil, []byte("v")), ErrEmptyKey)
	_, err := s.Get(nil)
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.ErrorIs(t, s.Delete(nil), ErrEmptyKey)
}

// TestStore_Delete 测试删除
func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, s.Delete([]byte("k1")))

	_, err := s.Get([]byte("k1"))
	assert.ErrorIs(t, err, ErrNotFound)

	// 删除不存在的键不报错
	assert.NoError(t, s.Delete([]byte("k1")))
}

// TestStore_PrefixScan 测试前缀遍历
func TestStore_PrefixScan(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("r/item-%d", i)
		require.NoError(t, s.Put([]byte(key), []byte(fmt.Sprintf("v%d", i))))
	}
	require.NoError(t, s.Put([]byte("other/key"), []byte("x")))

	seen := make(map[string]string)
	err := s.PrefixScan([]byte("r/"), func(key, value []byte) error {
		seen[string(key)] = string(value)
		return nil
	})
	require.NoError(t, err)

	assert.Len(t, seen, 5)
	assert.Equal(t, "v3", seen["r/item-3"])
	assert.NotContains(t, seen, "other/key")
}

// TestStore_PrefixScanAbort 测试回调报错中止遍历
func TestStore_PrefixScanAbort(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put([]byte(fmt.Sprintf("r/%d", i)), []byte("v")))
	}

	sentinel := errors.New("stop")
	var visited int
	err := s.PrefixScan([]byte("r/"), func(key, value []byte) error {
		visited++
		if visited == 2 {
			return sentinel
		}
		return nil
	})
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, 2, visited)
}

// TestStore_Closed 测试关闭后的操作
func TestStore_Closed(t *testing.T) {
	s, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.Put([]byte("k"), []byte("v")), ErrClosed)
	_, err = s.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Delete([]byte("k")), ErrClosed)
	assert.ErrorIs(t, s.PrefixScan([]byte("r/"), func(k, v []byte) error { return nil }), ErrClosed)

	// 重复关闭无副作用
	assert.NoError(t, s.Close())
}

// TestStore_OnDisk 测试磁盘模式重开后数据仍在
func TestStore_OnDisk(t *testing.T) {
	dir := t.TempDir()

	cfg := DefaultConfig(dir)
	cfg.GCInterval = 0

	s1, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, s1.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, s1.Close())

	s2, err := Open(cfg)
	require.NoError(t, err)
	defer s2.Close()

	value, err := s2.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), value)
}
