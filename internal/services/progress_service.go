// internal/services/progress_service.go
package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/Direktiva/internal/models"
)

// 任务状态
const (
	TaskRunning   = "running"
	TaskCompleted = "completed"
	TaskFailed    = "failed"
)

// ProgressUpdate 表示一次进度更新；分镜任务会带上画面 ID 与帧状态
type ProgressUpdate struct {
	Progress int                `json:"progress"` // 0-100
	Message  string             `json:"message"`
	Status   string             `json:"status"`
	IdeaID   string             `json:"idea_id,omitempty"`
	Frame    models.FrameStatus `json:"frame,omitempty"`
	Scene    int                `json:"scene,omitempty"`
}

// ProgressTracker 跟踪一个长任务（分镜生成、视频生成）
type ProgressTracker struct {
	TaskID      string
	Progress    int
	Message     string
	Status      string
	StartTime   time.Time
	UpdateTime  time.Time
	Subscribers map[chan ProgressUpdate]bool
	Done        chan struct{}
	mutex       sync.Mutex
	finished    bool
}

// ProgressService 管理所有进度跟踪器
type ProgressService struct {
	trackers map[string]*ProgressTracker
	mutex    sync.RWMutex
}

func NewProgressService() *ProgressService {
	return &ProgressService{
		trackers: make(map[string]*ProgressTracker),
	}
}

// StoryboardTaskID 分镜任务的跟踪 ID
func StoryboardTaskID(scriptID string) string { return "storyboard:" + scriptID }

// VideoTaskID 视频任务的跟踪 ID
func VideoTaskID(scriptID string) string { return "video:" + scriptID }

// CreateTracker 同一任务仍在运行时返回现有跟踪器，已结束则开始新一轮
func (s *ProgressService) CreateTracker(taskID string) *ProgressTracker {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if tracker, exists := s.trackers[taskID]; exists && !tracker.isFinished() {
		return tracker
	}

	now := time.Now()
	tracker := &ProgressTracker{
		TaskID:      taskID,
		Message:     "任务初始化中...",
		Status:      TaskRunning,
		StartTime:   now,
		UpdateTime:  now,
		Subscribers: make(map[chan ProgressUpdate]bool),
		Done:        make(chan struct{}),
	}
	s.trackers[taskID] = tracker
	return tracker
}

func (s *ProgressService) GetTracker(taskID string) (*ProgressTracker, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	tracker, exists := s.trackers[taskID]
	return tracker, exists
}

func (t *ProgressTracker) isFinished() bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.finished
}

// broadcast 调用方持有锁；通道满时跳过
func (t *ProgressTracker) broadcast(update ProgressUpdate) {
	for subscriber := range t.Subscribers {
		select {
		case subscriber <- update:
		default:
		}
	}
}

func (t *ProgressTracker) snapshot() ProgressUpdate {
	return ProgressUpdate{Progress: t.Progress, Message: t.Message, Status: t.Status}
}

// Snapshot 当前状态
func (t *ProgressTracker) Snapshot() ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.snapshot()
}

// IsTerminal 任务是否已完成或失败
func (u ProgressUpdate) IsTerminal() bool {
	return u.Status == TaskCompleted || u.Status == TaskFailed
}

// UpdateProgress 进度只增不减
func (t *ProgressTracker) UpdateProgress(progress int, message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.finished {
		return
	}

	if progress > t.Progress {
		t.Progress = progress
	}
	if message != "" {
		t.Message = message
	}
	t.UpdateTime = time.Now()
	t.broadcast(t.snapshot())
}

// UpdateFrame 广播单个画面的状态变化；done/total 用于计算进度
func (t *ProgressTracker) UpdateFrame(ideaID string, status models.FrameStatus, done, total int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.finished {
		return
	}

	if total > 0 {
		if p := done * 100 / total; p > t.Progress && p < 100 {
			t.Progress = p
		}
	}
	t.Message = fmt.Sprintf("画面 %s: %s", ideaID, status)
	t.UpdateTime = time.Now()

	update := t.snapshot()
	update.IdeaID = ideaID
	update.Frame = status
	t.broadcast(update)
}

// UpdateScene 视频任务按场景报告进度，scene 从 1 开始
func (t *ProgressTracker) UpdateScene(scene, total int) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.finished {
		return
	}

	if total > 0 {
		if p := (scene - 1) * 100 / total; p > t.Progress {
			t.Progress = p
		}
	}
	t.Message = fmt.Sprintf("正在生成第 %d/%d 个场景", scene, total)
	t.UpdateTime = time.Now()

	update := t.snapshot()
	update.Scene = scene
	t.broadcast(update)
}

// Complete 标记任务完成，重复调用无效
func (t *ProgressTracker) Complete(message string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.finished {
		return
	}

	t.Progress = 100
	if message != "" {
		t.Message = message
	} else {
		t.Message = "任务已完成"
	}
	t.Status = TaskCompleted
	t.UpdateTime = time.Now()
	t.broadcast(t.snapshot())

	t.finished = true
	close(t.Done)
}

// Fail 标记任务失败，重复调用无效
func (t *ProgressTracker) Fail(errorMsg string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	if t.finished {
		return
	}

	t.Message = fmt.Sprintf("任务失败: %s", errorMsg)
	t.Status = TaskFailed
	t.UpdateTime = time.Now()
	t.broadcast(t.snapshot())

	t.finished = true
	close(t.Done)
}

// Subscribe 订阅进度更新，立即收到当前状态
func (t *ProgressTracker) Subscribe() chan ProgressUpdate {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	subscriber := make(chan ProgressUpdate, 32)
	t.Subscribers[subscriber] = true
	subscriber <- t.snapshot()
	return subscriber
}

func (t *ProgressTracker) Unsubscribe(subscriber chan ProgressUpdate) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.Subscribers[subscriber] {
		delete(t.Subscribers, subscriber)
		close(subscriber)
	}
}

// CleanupCompletedTasks 清理结束超过 maxAge 的任务
func (s *ProgressService) CleanupCompletedTasks(maxAge time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	for id, tracker := range s.trackers {
		tracker.mutex.Lock()
		stale := tracker.finished && now.Sub(tracker.UpdateTime) > maxAge
		tracker.mutex.Unlock()

		if stale {
			delete(s.trackers, id)
		}
	}
}
