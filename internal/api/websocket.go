// internal/api/websocket.go
package api

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/Direktiva/internal/services"
	"github.com/Corphon/Direktiva/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsPongWait     = 60 * time.Second
	wsTrackerPoll  = 500 * time.Millisecond
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection 定义 WebSocket 连接的接口
type WebSocketConnection interface {
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// ProgressStreamer 把进度跟踪器的更新推送给 WebSocket 客户端
type ProgressStreamer struct {
	progress *services.ProgressService
	active   int64
	streams  sync.Map // taskID -> *int64
	logger   *utils.Logger
}

func NewProgressStreamer(progress *services.ProgressService) *ProgressStreamer {
	return &ProgressStreamer{progress: progress, logger: utils.GetLogger()}
}

// StoryboardWebSocket /ws/storyboard/:id
func (s *ProgressStreamer) StoryboardWebSocket(c *gin.Context) {
	s.serve(c, services.StoryboardTaskID(c.Param("id")))
}

// VideoWebSocket /ws/video/:id
func (s *ProgressStreamer) VideoWebSocket(c *gin.Context) {
	s.serve(c, services.VideoTaskID(c.Param("id")))
}

func (s *ProgressStreamer) serve(c *gin.Context, taskID string) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("⚠️ WebSocket 升级失败", map[string]interface{}{"task": taskID, "error": err.Error()})
		return
	}
	s.Stream(conn, taskID)
}

// Stream 在任务结束或客户端断开前持续推送。任务尚未开始时先等待跟踪器出现。
func (s *ProgressStreamer) Stream(conn WebSocketConnection, taskID string) {
	defer conn.Close()

	atomic.AddInt64(&s.active, 1)
	defer atomic.AddInt64(&s.active, -1)
	counter, _ := s.streams.LoadOrStore(taskID, new(int64))
	atomic.AddInt64(counter.(*int64), 1)
	defer atomic.AddInt64(counter.(*int64), -1)

	clientGone := make(chan struct{})
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(v interface{}) bool {
		conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(v) == nil
	}

	if !write(gin.H{"type": "connected", "task_id": taskID}) {
		return
	}

	tracker, ok := s.waitForTracker(taskID, clientGone)
	if !ok {
		return
	}

	updates := tracker.Subscribe()
	defer tracker.Unsubscribe(updates)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if !write(gin.H{"type": "progress", "task_id": taskID, "update": update}) {
				return
			}
			if update.IsTerminal() {
				closeNormally(conn, update.Status)
				return
			}
		case <-tracker.Done:
			// 订阅通道满时终态可能被丢弃，这里补发
			final := finalUpdates(updates, tracker)
			for _, update := range final {
				if !write(gin.H{"type": "progress", "task_id": taskID, "update": update}) {
					return
				}
			}
			closeNormally(conn, final[len(final)-1].Status)
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

func closeNormally(conn WebSocketConnection, reason string) {
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason),
		time.Now().Add(wsWriteWait))
}

// finalUpdates 任务结束后取出通道中剩余的更新，保证以终态结尾
func finalUpdates(updates <-chan services.ProgressUpdate, tracker *services.ProgressTracker) []services.ProgressUpdate {
	var out []services.ProgressUpdate
	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return append(out, tracker.Snapshot())
			}
			out = append(out, update)
			if update.IsTerminal() {
				return out
			}
		default:
			return append(out, tracker.Snapshot())
		}
	}
}

func (s *ProgressStreamer) waitForTracker(taskID string, clientGone <-chan struct{}) (*services.ProgressTracker, bool) {
	if tracker, ok := s.progress.GetTracker(taskID); ok {
		return tracker, true
	}
	poll := time.NewTicker(wsTrackerPoll)
	defer poll.Stop()
	for {
		select {
		case <-clientGone:
			return nil, false
		case <-poll.C:
			if tracker, ok := s.progress.GetTracker(taskID); ok {
				return tracker, true
			}
		}
	}
}

// GetStatus 当前连接数，按任务分组
func (s *ProgressStreamer) GetStatus() map[string]interface{} {
	byTask := make(map[string]int64)
	s.streams.Range(func(key, value interface{}) bool {
		if n := atomic.LoadInt64(value.(*int64)); n > 0 {
			byTask[key.(string)] = n
		}
		return true
	})
	return map[string]interface{}{
		"active_connections": atomic.LoadInt64(&s.active),
		"tasks":              byTask,
		"timestamp":          time.Now().Format(time.RFC3339),
	}
}
