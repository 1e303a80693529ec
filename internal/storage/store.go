// internal/storage/store.go
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// 偏好存储使用的逻辑键
const (
	KeyGeneralPresets   = "direktiva_presets"
	KeyCharacterPresets = "direktiva_character_presets"
	KeyPersonas         = "direktiva_ai_personas"
	KeyScriptHistory    = "scriptHistory"
)

// ErrKeyNotFound 键不存在
var ErrKeyNotFound = errors.New("键不存在")

// KVStore 偏好存储端口：按键整体读写 JSON 值
type KVStore interface {
	// Get 键不存在时返回 ErrKeyNotFound
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 整体替换键对应的值
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// GetJSON 读取并解码；found 为 false 表示键不存在
func GetJSON(ctx context.Context, s KVStore, key string, v any) (found bool, err error) {
	data, err := s.Get(ctx, key)
	if errors.Is(err, ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("解析 %s 失败: %w", key, err)
	}
	return true, nil
}

// SetJSON 编码后整体写入
func SetJSON(ctx context.Context, s KVStore, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("序列化 %s 失败: %w", key, err)
	}
	return s.Set(ctx, key, data)
}

// KeyLocks 进程内按键加锁，保证读-改-写不交错
type KeyLocks struct {
	locks sync.Map // key -> *sync.Mutex
}

// Lock 加锁并返回解锁函数
func (k *KeyLocks) Lock(key string) func() {
	value, _ := k.locks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
