// internal/services/preset_service.go
package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/storage"
	"github.com/Corphon/Direktiva/internal/utils"
	"github.com/google/uuid"
)

// PresetService 通用预设与角色预设。名称在各自列表内唯一，
// 同名保存必须显式确认覆盖，否则存储保持不变。
type PresetService struct {
	store  storage.KVStore
	locks  storage.KeyLocks
	logger *utils.Logger
}

func NewPresetService(store storage.KVStore) *PresetService {
	return &PresetService{
		store:  store,
		logger: utils.GetLogger(),
	}
}

func loadList[T any](ctx context.Context, store storage.KVStore, key string) ([]T, error) {
	var items []T
	if _, err := storage.GetJSON(ctx, store, key, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// upsertByName 同名且未确认覆盖时返回 ConflictError，不写入
func upsertByName[T any](ctx context.Context, s *PresetService, key, name string, overwrite bool,
	nameOf func(T) string, build func(existing *T) T) (*T, error) {

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.NewValidationError("预设名称不能为空", nil)
	}

	unlock := s.locks.Lock(key)
	defer unlock()

	items, err := loadList[T](ctx, s.store, key)
	if err != nil {
		return nil, apperrors.WrapError(err, "读取预设失败", apperrors.ErrorTypeError)
	}

	idx := -1
	for i, item := range items {
		if strings.EqualFold(strings.TrimSpace(nameOf(item)), name) {
			idx = i
			break
		}
	}

	var saved T
	if idx >= 0 {
		if !overwrite {
			return nil, apperrors.NewConflictError(fmt.Sprintf("预设 %q 已存在，需要确认覆盖", name), nil)
		}
		saved = build(&items[idx])
		items[idx] = saved
	} else {
		saved = build(nil)
		items = append(items, saved)
	}

	if err := storage.SetJSON(ctx, s.store, key, items); err != nil {
		return nil, apperrors.WrapError(err, "保存预设失败", apperrors.ErrorTypeError)
	}
	s.logger.Info("💾 预设已保存", map[string]interface{}{
		"key":       key,
		"name":      name,
		"overwrite": idx >= 0,
	})
	return &saved, nil
}

func deleteByID[T any](ctx context.Context, s *PresetService, key, id string, idOf func(T) string) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	items, err := loadList[T](ctx, s.store, key)
	if err != nil {
		return apperrors.WrapError(err, "读取预设失败", apperrors.ErrorTypeError)
	}
	kept := items[:0]
	for _, item := range items {
		if idOf(item) != id {
			kept = append(kept, item)
		}
	}
	if len(kept) == len(items) {
		return apperrors.NewNotFoundError(fmt.Sprintf("预设 %s 不存在", id), nil)
	}
	return storage.SetJSON(ctx, s.store, key, kept)
}

func (s *PresetService) ListGeneralPresets(ctx context.Context) ([]models.GeneralPreset, error) {
	return loadList[models.GeneralPreset](ctx, s.store, storage.KeyGeneralPresets)
}

// SaveGeneralPreset 覆盖时保留原 ID
func (s *PresetService) SaveGeneralPreset(ctx context.Context, name string, settings models.PresetSettings, overwrite bool) (*models.GeneralPreset, error) {
	return upsertByName(ctx, s, storage.KeyGeneralPresets, name, overwrite,
		func(p models.GeneralPreset) string { return p.Name },
		func(existing *models.GeneralPreset) models.GeneralPreset {
			id := uuid.NewString()
			if existing != nil {
				id = existing.ID
			}
			return models.GeneralPreset{ID: id, Name: strings.TrimSpace(name), Settings: settings}
		})
}

func (s *PresetService) DeleteGeneralPreset(ctx context.Context, id string) error {
	return deleteByID(ctx, s, storage.KeyGeneralPresets, id, func(p models.GeneralPreset) string { return p.ID })
}

func (s *PresetService) ListCharacterPresets(ctx context.Context) ([]models.CharacterPreset, error) {
	return loadList[models.CharacterPreset](ctx, s.store, storage.KeyCharacterPresets)
}

func (s *PresetService) SaveCharacterPreset(ctx context.Context, name string, character models.CharacterDetails, overwrite bool) (*models.CharacterPreset, error) {
	return upsertByName(ctx, s, storage.KeyCharacterPresets, name, overwrite,
		func(p models.CharacterPreset) string { return p.Name },
		func(existing *models.CharacterPreset) models.CharacterPreset {
			id := uuid.NewString()
			if existing != nil {
				id = existing.ID
			}
			return models.CharacterPreset{ID: id, Name: strings.TrimSpace(name), Character: character}
		})
}

func (s *PresetService) DeleteCharacterPreset(ctx context.Context, id string) error {
	return deleteByID(ctx, s, storage.KeyCharacterPresets, id, func(p models.CharacterPreset) string { return p.ID })
}
