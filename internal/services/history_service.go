// internal/services/history_service.go
package services

import (
	"context"
	"fmt"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/storage"
	"github.com/Corphon/Direktiva/internal/utils"
)

// HistoryService 脚本历史，新脚本在前。历史为空时写入一份示例脚本。
type HistoryService struct {
	store  storage.KVStore
	locks  storage.KeyLocks
	logger *utils.Logger
}

func NewHistoryService(store storage.KVStore) *HistoryService {
	return &HistoryService{
		store:  store,
		logger: utils.GetLogger(),
	}
}

// loadLocked 调用方持有锁
func (s *HistoryService) loadLocked(ctx context.Context) ([]models.Script, error) {
	var history []models.Script
	found, err := storage.GetJSON(ctx, s.store, storage.KeyScriptHistory, &history)
	if err != nil {
		return nil, apperrors.WrapError(err, "读取脚本历史失败", apperrors.ErrorTypeError)
	}
	if !found || len(history) == 0 {
		history = []models.Script{models.NewExampleScript()}
		if err := storage.SetJSON(ctx, s.store, storage.KeyScriptHistory, history); err != nil {
			return nil, apperrors.WrapError(err, "写入示例脚本失败", apperrors.ErrorTypeError)
		}
		s.logger.Info("📚 历史为空，已写入示例脚本", nil)
	}
	return history, nil
}

func (s *HistoryService) List(ctx context.Context) ([]models.Script, error) {
	unlock := s.locks.Lock(storage.KeyScriptHistory)
	defer unlock()
	return s.loadLocked(ctx)
}

func (s *HistoryService) Get(ctx context.Context, id string) (*models.Script, error) {
	history, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range history {
		if history[i].ID == id {
			return &history[i], nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("脚本 %s 不存在", id), nil)
}

// Add 新生成的脚本插入到最前面
func (s *HistoryService) Add(ctx context.Context, scripts ...models.Script) error {
	if len(scripts) == 0 {
		return nil
	}
	unlock := s.locks.Lock(storage.KeyScriptHistory)
	defer unlock()

	history, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	next := make([]models.Script, 0, len(scripts)+len(history))
	next = append(next, scripts...)
	next = append(next, history...)
	return storage.SetJSON(ctx, s.store, storage.KeyScriptHistory, next)
}

// Modify 在副本上执行 fn，fn 返回错误时历史不变
func (s *HistoryService) Modify(ctx context.Context, id string, fn func(*models.Script) error) (*models.Script, error) {
	unlock := s.locks.Lock(storage.KeyScriptHistory)
	defer unlock()

	history, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	for i := range history {
		if history[i].ID != id {
			continue
		}
		updated := history[i].Clone()
		if err := fn(updated); err != nil {
			return nil, err
		}
		updated.ID = id
		updated.InputSnapshot = history[i].InputSnapshot
		history[i] = *updated
		if err := storage.SetJSON(ctx, s.store, storage.KeyScriptHistory, history); err != nil {
			return nil, apperrors.WrapError(err, "保存脚本历史失败", apperrors.ErrorTypeError)
		}
		return updated.Clone(), nil
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("脚本 %s 不存在", id), nil)
}

// Update 整体替换同 ID 的脚本，输入快照保持原值
func (s *HistoryService) Update(ctx context.Context, script *models.Script) (*models.Script, error) {
	return s.Modify(ctx, script.ID, func(current *models.Script) error {
		*current = *script.Clone()
		return nil
	})
}

func (s *HistoryService) AttachStoryboard(ctx context.Context, id string, board models.Storyboard) (*models.Script, error) {
	return s.Modify(ctx, id, func(current *models.Script) error {
		current.Storyboard = board.Clone()
		return nil
	})
}

func (s *HistoryService) AttachClips(ctx context.Context, id string, clips []string) (*models.Script, error) {
	return s.Modify(ctx, id, func(current *models.Script) error {
		current.GeneratedVideoClips = append([]string(nil), clips...)
		return nil
	})
}

func (s *HistoryService) AttachAssets(ctx context.Context, id string, assets *models.MarketingAssets) (*models.Script, error) {
	if assets == nil {
		return nil, apperrors.NewValidationError("营销素材不能为空", nil)
	}
	return s.Modify(ctx, id, func(current *models.Script) error {
		a := *assets
		current.Assets = &a
		return nil
	})
}

func (s *HistoryService) Delete(ctx context.Context, id string) error {
	unlock := s.locks.Lock(storage.KeyScriptHistory)
	defer unlock()

	history, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	kept := make([]models.Script, 0, len(history))
	for _, sc := range history {
		if sc.ID != id {
			kept = append(kept, sc)
		}
	}
	if len(kept) == len(history) {
		return apperrors.NewNotFoundError(fmt.Sprintf("脚本 %s 不存在", id), nil)
	}
	return storage.SetJSON(ctx, s.store, storage.KeyScriptHistory, kept)
}
