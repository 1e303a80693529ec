// internal/services/storyboard_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/utils"
	"golang.org/x/sync/errgroup"
)

// StoryboardService 分镜编排：先生成锚点图，其余画面都以锚点图为角色参考
type StoryboardService struct {
	backend     Backend
	progress    *ProgressService
	concurrency int
	metrics     *utils.GenerationMetrics
	logger      *utils.Logger
	locks       *LockManager
}

func NewStoryboardService(backend Backend, progress *ProgressService, concurrency int) *StoryboardService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &StoryboardService{
		backend:     backend,
		progress:    progress,
		concurrency: concurrency,
		metrics:     utils.NewGenerationMetrics(nil),
		logger:      utils.GetLogger(),
		locks:       NewLockManager(),
	}
}

// WithLocks 与其他长任务共用同一个任务登记表
func (s *StoryboardService) WithLocks(lm *LockManager) *StoryboardService {
	if lm != nil {
		s.locks = lm
	}
	return s
}

// mentionsProduct 提示词包含产品名（忽略大小写）时才附带产品参考图
func mentionsProduct(prompt, productName string) bool {
	name := strings.ToLower(strings.TrimSpace(productName))
	return name != "" && strings.Contains(strings.ToLower(prompt), name)
}

type storyboardRun struct {
	mu      sync.Mutex
	board   models.Storyboard
	tracker *ProgressTracker
	total   int
	settled int
}

func (r *storyboardRun) set(id string, frame models.StoryboardFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.board[id] = frame
	if frame.Status != models.FrameLoading {
		r.settled++
	}
	if r.tracker != nil {
		r.tracker.UpdateFrame(id, frame.Status, r.settled, r.total)
	}
}

// Assemble 为脚本生成分镜。输入脚本不会被修改；结果通过 onUpdate 一次性交给调用方。
// 锚点取开场的第一个画面，开场没有画面时所有画面独立生成。
// 锚点失败时立即中止，返回 AnchorGenerationError，其余画面保持原状；
// 其余画面的失败只影响自身。
func (s *StoryboardService) Assemble(ctx context.Context, script *models.Script, onUpdate func(models.Storyboard) error) (models.Storyboard, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}
	release, ok := s.locks.TryAcquire(LockStoryboard, script.ID)
	if !ok {
		return nil, apperrors.NewConflictError(fmt.Sprintf("脚本 %s 的分镜正在生成", script.ID), nil)
	}
	defer release()

	input, err := script.Snapshot()
	if err != nil {
		s.logger.Warn("⚠️ 无法读取输入快照，分镜将不附带产品参考图", map[string]interface{}{
			"script_id": script.ID,
			"error":     err.Error(),
		})
	}
	var productRef *models.ImageData
	if p := input.PrimaryProductImage(); p != nil {
		if img, err := models.ImageFromProduct(*p); err == nil {
			productRef = &img
		}
	}
	productFor := func(idea models.VisualIdea) *models.ImageData {
		if productRef != nil && mentionsProduct(idea.ImagePrompt, input.ProductName) {
			return productRef
		}
		return nil
	}

	prior := script.Storyboard.Clone()
	if prior == nil {
		prior = models.Storyboard{}
	}
	ideas := script.AllVisualIdeas()
	if len(ideas) == 0 {
		return prior, nil
	}

	run := &storyboardRun{board: prior.Clone()}
	if s.progress != nil {
		run.tracker = s.progress.CreateTracker(StoryboardTaskID(script.ID))
	}

	pending := make(map[string]bool)
	for _, idea := range ideas {
		if run.board.CanStart(idea.ID) {
			pending[idea.ID] = true
			run.total++
		}
	}
	for _, idea := range ideas {
		if pending[idea.ID] {
			run.set(idea.ID, models.StoryboardFrame{Status: models.FrameLoading})
		}
	}

	// 1. 锚点：开场的第一个画面。开场没有画面时跳过，其余画面不带角色参考
	var anchorImage *models.ImageData
	anchorID := ""
	if len(script.Hook.VisualIdeas) > 0 {
		anchor := script.Hook.VisualIdeas[0]
		anchorID = anchor.ID
		outcome, err := s.generateAnchor(ctx, script, anchor, input.AspectRatio, productFor(anchor), run, prior, pending, onUpdate)
		if err != nil {
			return outcome.board, err
		}
		anchorImage = outcome.image
	}

	// 2. 其余画面并发生成，彼此独立
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, idea := range ideas {
		if idea.ID == anchorID || !pending[idea.ID] {
			continue
		}
		idea := idea
		g.Go(func() error {
			img, err := s.backend.GenerateImageFromPrompt(ctx, idea.ImagePrompt, input.AspectRatio, productFor(idea), anchorImage)
			if err != nil {
				s.metrics.RecordFrame(string(models.FrameError))
				s.logger.Warn("⚠️ 分镜画面生成失败", map[string]interface{}{
					"script_id": script.ID,
					"idea_id":   idea.ID,
					"error":     err.Error(),
				})
				run.set(idea.ID, models.StoryboardFrame{Status: models.FrameError, Error: err.Error()})
				return nil
			}
			s.metrics.RecordFrame(string(models.FrameDone))
			run.set(idea.ID, models.StoryboardFrame{Status: models.FrameDone, Image: img})
			return nil
		})
	}
	g.Wait()

	result := run.board.Clone()
	failed := 0
	for _, idea := range ideas {
		if result[idea.ID].Status == models.FrameError {
			failed++
		}
	}
	if run.tracker != nil {
		run.tracker.Complete(fmt.Sprintf("分镜完成：%d 个画面，%d 个失败", len(ideas), failed))
	}
	s.logger.Info("🖼️ 分镜生成完成", map[string]interface{}{
		"script_id": script.ID,
		"ideas":     len(ideas),
		"failed":    failed,
	})

	if onUpdate != nil {
		if err := onUpdate(result.Clone()); err != nil {
			return result, err
		}
	}
	return result, nil
}

type anchorOutcome struct {
	image *models.ImageData
	board models.Storyboard
}

// generateAnchor 锚点已完成时直接复用；失败时返回带锚点错误的原分镜
func (s *StoryboardService) generateAnchor(ctx context.Context, script *models.Script, anchor models.VisualIdea, aspect string, productRef *models.ImageData, run *storyboardRun, prior models.Storyboard, pending map[string]bool, onUpdate func(models.Storyboard) error) (anchorOutcome, error) {
	if img, ok := run.board.Done(anchor.ID); ok {
		return anchorOutcome{image: img}, nil
	}
	if !pending[anchor.ID] {
		if run.tracker != nil {
			run.tracker.Fail("锚点画面正在生成中")
		}
		return anchorOutcome{board: prior}, apperrors.NewConflictError("锚点画面正在生成中", nil)
	}

	img, err := s.backend.GenerateImageFromPrompt(ctx, anchor.ImagePrompt, aspect, productRef, nil)
	if err != nil {
		s.metrics.RecordFrame(string(models.FrameError))
		result := prior.Clone()
		result[anchor.ID] = models.StoryboardFrame{Status: models.FrameError, Error: err.Error()}
		if run.tracker != nil {
			run.tracker.UpdateFrame(anchor.ID, models.FrameError, 0, run.total)
			run.tracker.Fail("锚点图生成失败")
		}
		s.logger.Error("❌ 锚点图生成失败，分镜中止", map[string]interface{}{
			"script_id": script.ID,
			"idea_id":   anchor.ID,
			"error":     err.Error(),
		})
		if onUpdate != nil {
			if uerr := onUpdate(result.Clone()); uerr != nil {
				return anchorOutcome{board: result}, uerr
			}
		}
		return anchorOutcome{board: result}, apperrors.NewAnchorGenerationError("锚点图生成失败，无法保证角色一致性", err)
	}
	s.metrics.RecordFrame(string(models.FrameDone))
	run.set(anchor.ID, models.StoryboardFrame{Status: models.FrameDone, Image: img})
	return anchorOutcome{image: img}, nil
}

// Reset 移除单个画面的状态，使已完成的画面可以重新生成
func (s *StoryboardService) Reset(board models.Storyboard, ideaID string) models.Storyboard {
	out := board.Clone()
	if out == nil {
		out = models.Storyboard{}
	}
	delete(out, ideaID)
	return out
}
