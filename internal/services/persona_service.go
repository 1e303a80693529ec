// internal/services/persona_service.go
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

// PersonaService AI 人设。内置 default 人设始终存在，不可修改或删除。
type PersonaService struct {
	store  storage.KVStore
	locks  storage.KeyLocks
	logger *utils.Logger
}

func NewPersonaService(store storage.KVStore) *PersonaService {
	return &PersonaService{
		store:  store,
		logger: utils.GetLogger(),
	}
}

func (s *PersonaService) loadCustom(ctx context.Context) ([]models.AIPersona, error) {
	personas, err := loadList[models.AIPersona](ctx, s.store, storage.KeyPersonas)
	if err != nil {
		return nil, apperrors.WrapError(err, "读取人设失败", apperrors.ErrorTypeError)
	}
	custom := personas[:0]
	for _, p := range personas {
		if p.ID != models.DefaultPersonaID {
			custom = append(custom, p)
		}
	}
	return custom, nil
}

// List default 人设总在第一位
func (s *PersonaService) List(ctx context.Context) ([]models.AIPersona, error) {
	custom, err := s.loadCustom(ctx)
	if err != nil {
		return nil, err
	}
	return append([]models.AIPersona{models.DefaultPersona}, custom...), nil
}

func (s *PersonaService) Get(ctx context.Context, id string) (*models.AIPersona, error) {
	if id == "" || id == models.DefaultPersonaID {
		p := models.DefaultPersona
		return &p, nil
	}
	custom, err := s.loadCustom(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range custom {
		if p.ID == id {
			p := p
			return &p, nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("人设 %s 不存在", id), nil)
}

// Resolve 找不到时回落到 default 人设
func (s *PersonaService) Resolve(ctx context.Context, id string) models.AIPersona {
	p, err := s.Get(ctx, id)
	if err != nil {
		s.logger.Warn("⚠️ 人设不可用，使用默认人设", map[string]interface{}{"persona_id": id, "error": err.Error()})
		return models.DefaultPersona
	}
	return *p
}

// Save ID 为空时新建，否则更新同 ID 的人设
func (s *PersonaService) Save(ctx context.Context, persona models.AIPersona) (*models.AIPersona, error) {
	if persona.ID == models.DefaultPersonaID {
		return nil, apperrors.NewValidationError("内置人设不可修改", nil)
	}
	persona.Name = strings.TrimSpace(persona.Name)
	if persona.Name == "" || strings.TrimSpace(persona.SystemInstruction) == "" {
		return nil, apperrors.NewValidationError("人设名称和系统指令不能为空", nil)
	}

	unlock := s.locks.Lock(storage.KeyPersonas)
	defer unlock()

	custom, err := s.loadCustom(ctx)
	if err != nil {
		return nil, err
	}

	if persona.ID == "" {
		persona.ID = uuid.NewString()
		custom = append(custom, persona)
	} else {
		found := false
		for i := range custom {
			if custom[i].ID == persona.ID {
				custom[i] = persona
				found = true
				break
			}
		}
		if !found {
			custom = append(custom, persona)
		}
	}

	if err := storage.SetJSON(ctx, s.store, storage.KeyPersonas, custom); err != nil {
		return nil, apperrors.WrapError(err, "保存人设失败", apperrors.ErrorTypeError)
	}
	return &persona, nil
}

func (s *PersonaService) Delete(ctx context.Context, id string) error {
	if id == models.DefaultPersonaID {
		return apperrors.NewValidationError("内置人设不可删除", nil)
	}

	unlock := s.locks.Lock(storage.KeyPersonas)
	defer unlock()

	custom, err := s.loadCustom(ctx)
	if err != nil {
		return err
	}
	kept := make([]models.AIPersona, 0, len(custom))
	for _, p := range custom {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(custom) {
		return apperrors.NewNotFoundError(fmt.Sprintf("人设 %s 不存在", id), nil)
	}
	return storage.SetJSON(ctx, s.store, storage.KeyPersonas, kept)
}
