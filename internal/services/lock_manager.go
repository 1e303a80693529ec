// internal/services/lock_manager.go
package services

import (
	"sort"
	"sync"
	"time"
)

// 长任务种类
const (
	LockStoryboard = "storyboard"
	LockVideo      = "video"
)

// LockManager 登记进行中的长任务，同一脚本同一种任务同时只能有一个
type LockManager struct {
	mu   sync.Mutex
	held map[string]*LockInfo
}

// LockInfo 一个被占用的任务槽
type LockInfo struct {
	Kind       string    `json:"kind"`
	ScriptID   string    `json:"script_id"`
	AcquiredAt time.Time `json:"acquired_at"`
}

func NewLockManager() *LockManager {
	return &LockManager{held: make(map[string]*LockInfo)}
}

func lockKey(kind, scriptID string) string {
	return kind + ":" + scriptID
}

// TryAcquire 不阻塞；已被占用时 ok 为 false。release 可重复调用
func (lm *LockManager) TryAcquire(kind, scriptID string) (release func(), ok bool) {
	key := lockKey(kind, scriptID)

	lm.mu.Lock()
	defer lm.mu.Unlock()

	if _, exists := lm.held[key]; exists {
		return nil, false
	}
	info := &LockInfo{Kind: kind, ScriptID: scriptID, AcquiredAt: time.Now()}
	lm.held[key] = info

	var once sync.Once
	return func() {
		once.Do(func() {
			lm.mu.Lock()
			defer lm.mu.Unlock()
			if lm.held[key] == info {
				delete(lm.held, key)
			}
		})
	}, true
}

// IsHeld 查询某脚本的任务是否进行中
func (lm *LockManager) IsHeld(kind, scriptID string) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	_, exists := lm.held[lockKey(kind, scriptID)]
	return exists
}

// Active 当前进行中的任务，按开始时间排序
func (lm *LockManager) Active() []LockInfo {
	lm.mu.Lock()
	active := make([]LockInfo, 0, len(lm.held))
	for _, info := range lm.held {
		active = append(active, *info)
	}
	lm.mu.Unlock()

	sort.Slice(active, func(i, j int) bool {
		return active[i].AcquiredAt.Before(active[j].AcquiredAt)
	})
	return active
}
