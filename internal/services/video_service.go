// internal/services/video_service.go
package services

import (
	"context"
	"fmt"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/utils"
)

// VideoService 把完整的分镜逐场景转成视频片段
type VideoService struct {
	backend  Backend
	progress *ProgressService
	logger   *utils.Logger
	locks    *LockManager
}

func NewVideoService(backend Backend, progress *ProgressService) *VideoService {
	return &VideoService{
		backend:  backend,
		progress: progress,
		logger:   utils.GetLogger(),
		locks:    NewLockManager(),
	}
}

func (s *VideoService) WithLocks(lm *LockManager) *VideoService {
	if lm != nil {
		s.locks = lm
	}
	return s
}

// GenerateFromStoryboard 要求每个画面都已有完成的分镜图。按画面顺序逐个生成，
// 任一场景失败即返回带场景编号的错误；全部成功后通过 onUpdate 一次性交付。
func (s *VideoService) GenerateFromStoryboard(ctx context.Context, script *models.Script, onUpdate func([]string) error) ([]string, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}
	ideas := script.AllVisualIdeas()
	if len(ideas) == 0 {
		return nil, apperrors.NewValidationError("脚本没有任何画面", nil)
	}

	frames := make([]*models.ImageData, len(ideas))
	missing := 0
	for i, idea := range ideas {
		img, ok := script.Storyboard.Done(idea.ID)
		if !ok {
			missing++
			continue
		}
		frames[i] = img
	}
	if missing > 0 {
		return nil, apperrors.NewValidationError(
			fmt.Sprintf("Storyboard is not fully generated (%d/%d missing). Please generate all storyboard images first.", missing, len(ideas)), nil)
	}

	release, ok := s.locks.TryAcquire(LockVideo, script.ID)
	if !ok {
		return nil, apperrors.NewConflictError(fmt.Sprintf("脚本 %s 的视频正在生成", script.ID), nil)
	}
	defer release()

	aspect := ""
	if in, err := script.Snapshot(); err == nil {
		aspect = in.AspectRatio
	}

	var tracker *ProgressTracker
	if s.progress != nil {
		tracker = s.progress.CreateTracker(VideoTaskID(script.ID))
	}
	fail := func(err error) error {
		if tracker != nil {
			tracker.Fail(err.Error())
		}
		return err
	}

	clips := make([]string, 0, len(ideas))
	for i, idea := range ideas {
		scene := i + 1
		if tracker != nil {
			tracker.UpdateScene(scene, len(ideas))
		}
		s.logger.Info("🎞️ 生成视频场景", map[string]interface{}{
			"script_id": script.ID,
			"scene":     scene,
			"total":     len(ideas),
		})

		uri, err := s.backend.GenerateVideoClip(ctx, *frames[i], idea.VideoPrompt, aspect)
		if err != nil {
			if apperrors.IsQuotaExceededError(err) {
				return nil, fail(apperrors.NewQuotaExceededError(fmt.Sprintf("第 %d 个场景生成时配额已用尽", scene), err))
			}
			return nil, fail(apperrors.NewSceneGenerationError(scene, err))
		}
		clips = append(clips, uri)
	}

	if tracker != nil {
		tracker.Complete(fmt.Sprintf("已生成 %d 个视频片段", len(clips)))
	}
	if onUpdate != nil {
		if err := onUpdate(append([]string(nil), clips...)); err != nil {
			return clips, err
		}
	}
	return clips, nil
}
