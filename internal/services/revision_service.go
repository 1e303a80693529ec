// internal/services/revision_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/utils"
	"github.com/google/uuid"
)

// candidateTTL 未处理的修改候选保留时长
const candidateTTL = time.Hour

// RevisionCandidate 一次修改的结果，在 Apply 之前与原脚本并存
type RevisionCandidate struct {
	ID          string            `json:"id"`
	ScriptID    string            `json:"scriptId"`
	Parts       []models.PartName `json:"parts"`
	Instruction string            `json:"instruction"`
	Language    models.Language   `json:"language"`
	Script      *models.Script    `json:"script"`
	CreatedAt   time.Time         `json:"createdAt"`

	original *models.Script
	persona  models.AIPersona
}

func (c *RevisionCandidate) clone() *RevisionCandidate {
	out := *c
	out.Parts = append([]models.PartName(nil), c.Parts...)
	out.Script = c.Script.Clone()
	return &out
}

// RevisionService 修改编排：生成候选 → 对比 → 应用 / 重新生成 / 放弃
type RevisionService struct {
	backend    Backend
	mutex      sync.RWMutex
	candidates map[string]*RevisionCandidate
	logger     *utils.Logger
}

func NewRevisionService(backend Backend) *RevisionService {
	return &RevisionService{
		backend:    backend,
		candidates: make(map[string]*RevisionCandidate),
		logger:     utils.GetLogger(),
	}
}

func partSet(parts []models.PartName) map[models.PartName]bool {
	named := make(map[models.PartName]bool, len(parts))
	for _, p := range parts {
		named[p] = true
	}
	return named
}

// normalizeParts 校验并去重，保持 hook/content/cta 顺序
func normalizeParts(parts []models.PartName) ([]models.PartName, error) {
	named := make(map[models.PartName]bool, len(parts))
	for _, p := range parts {
		if _, err := models.ParsePartName(string(p)); err != nil {
			return nil, apperrors.NewValidationError(err.Error(), err)
		}
		named[p] = true
	}
	if len(named) == 0 {
		return nil, apperrors.NewValidationError("至少需要指定一个修改部分", nil)
	}
	out := make([]models.PartName, 0, len(named))
	for _, p := range models.AllParts {
		if named[p] {
			out = append(out, p)
		}
	}
	return out, nil
}

// scopeRevision 以原脚本深拷贝为底，只采用 revised 中被点名的部分以及标题、评分。
// ID、输入快照、生成时间、营销素材、视频片段保持原样；分镜只保留画面仍存在且图片提示未变的条目。
func scopeRevision(original, revised *models.Script, parts []models.PartName) *models.Script {
	out := original.Clone()
	named := partSet(parts)

	if named[models.PartHook] {
		out.Hook = revised.Hook.Clone()
	}
	if named[models.PartContent] {
		out.Content = make([]models.ScriptPart, len(revised.Content))
		for i, p := range revised.Content {
			out.Content[i] = p.Clone()
		}
	}
	if named[models.PartCTA] {
		out.CTA = revised.CTA.Clone()
	}
	if revised.Title != "" {
		out.Title = revised.Title
	}
	out.Score = revised.Score
	out.IsBestOption = revised.IsBestOption

	if original.Storyboard != nil {
		prompts := make(map[string]string)
		for _, idea := range original.AllVisualIdeas() {
			prompts[idea.ID] = idea.ImagePrompt
		}
		kept := models.Storyboard{}
		for _, idea := range out.AllVisualIdeas() {
			if frame, ok := original.Storyboard[idea.ID]; ok && prompts[idea.ID] == idea.ImagePrompt {
				kept[idea.ID] = frame
			}
		}
		out.Storyboard = kept
	}
	return out
}

// Revise 生成修改候选，原脚本不变
func (s *RevisionService) Revise(ctx context.Context, script *models.Script, parts []models.PartName, instruction string, lang models.Language, persona models.AIPersona) (*RevisionCandidate, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}
	parts, err := normalizeParts(parts)
	if err != nil {
		return nil, err
	}
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, apperrors.NewValidationError("修改指令不能为空", nil)
	}
	if strings.TrimSpace(persona.SystemInstruction) == "" {
		persona = models.DefaultPersona
	}

	original := script.Clone()
	revised, err := s.backend.ReviseScript(ctx, original.Clone(), parts, instruction, lang, persona.SystemInstruction)
	if err != nil {
		return nil, fmt.Errorf("修改脚本失败: %w", err)
	}

	candidate := &RevisionCandidate{
		ID:          uuid.NewString(),
		ScriptID:    original.ID,
		Parts:       parts,
		Instruction: instruction,
		Language:    lang,
		Script:      scopeRevision(original, revised, parts),
		CreatedAt:   time.Now(),
		original:    original,
		persona:     persona,
	}

	s.mutex.Lock()
	s.evictExpiredLocked()
	s.candidates[candidate.ID] = candidate
	s.mutex.Unlock()

	s.logger.Info("✏️ 生成修改候选", map[string]interface{}{
		"script_id":    original.ID,
		"candidate_id": candidate.ID,
		"parts":        joinParts(parts),
	})
	return candidate.clone(), nil
}

func (s *RevisionService) evictExpiredLocked() {
	now := time.Now()
	for id, c := range s.candidates {
		if now.Sub(c.CreatedAt) > candidateTTL {
			delete(s.candidates, id)
		}
	}
}

// Get 返回候选副本
func (s *RevisionService) Get(candidateID string) (*RevisionCandidate, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	c, ok := s.candidates[candidateID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("修改候选 %s 不存在", candidateID), nil)
	}
	return c.clone(), nil
}

// Apply 取出候选脚本，由调用方写回历史；候选随之移除
func (s *RevisionService) Apply(candidateID string) (*models.Script, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	c, ok := s.candidates[candidateID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("修改候选 %s 不存在", candidateID), nil)
	}
	delete(s.candidates, candidateID)
	return c.Script.Clone(), nil
}

// Regenerate 用同一条指令对原脚本的三个部分重新生成。
// 每次都从原脚本出发，不叠加之前的候选或指令。
func (s *RevisionService) Regenerate(ctx context.Context, candidateID string) (*RevisionCandidate, error) {
	s.mutex.RLock()
	c, ok := s.candidates[candidateID]
	s.mutex.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("修改候选 %s 不存在", candidateID), nil)
	}

	parts := append([]models.PartName(nil), models.AllParts...)
	revised, err := s.backend.ReviseScript(ctx, c.original.Clone(), parts, c.Instruction, c.Language, c.persona.SystemInstruction)
	if err != nil {
		return nil, fmt.Errorf("重新生成修改失败: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	current, ok := s.candidates[candidateID]
	if !ok {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("修改候选 %s 已被移除", candidateID), nil)
	}
	next := *current
	next.Parts = parts
	next.Script = scopeRevision(c.original, revised, parts)
	next.CreatedAt = time.Now()
	s.candidates[candidateID] = &next
	return next.clone(), nil
}

// Discard 放弃候选，不存在时视为成功
func (s *RevisionService) Discard(candidateID string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	delete(s.candidates, candidateID)
}

// ApplyVariant 用选中的候选替换脚本的一个部分，返回新脚本。
// hook/cta 的候选必须恰好一个部分。
func ApplyVariant(script *models.Script, part models.PartName, variant []models.ScriptPart) (*models.Script, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}
	if _, err := models.ParsePartName(string(part)); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), err)
	}
	if len(variant) == 0 || (part != models.PartContent && len(variant) != 1) {
		return nil, apperrors.NewValidationError(fmt.Sprintf("%s 候选的部分数量不正确: %d", part, len(variant)), nil)
	}

	revised := &models.Script{Title: script.Title, Score: script.Score, IsBestOption: script.IsBestOption}
	switch part {
	case models.PartHook:
		revised.Hook = variant[0]
	case models.PartCTA:
		revised.CTA = variant[0]
	case models.PartContent:
		revised.Content = variant
	}
	return scopeRevision(script, revised, []models.PartName{part}), nil
}
