// internal/services/generation_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/utils"
)

// GenerateOptions 调用方策略
type GenerateOptions struct {
	// TolerateTrendFailure 趋势分析失败时以空上下文继续；默认失败直接返回
	TolerateTrendFailure bool
}

type GenerationResult struct {
	Scripts      []models.Script `json:"scripts"`
	TrendContext string          `json:"trendContext,omitempty"`
}

// GenerationService 脚本生成编排：趋势分析 → 生成 → 写入输入快照
type GenerationService struct {
	backend Backend
	timeout time.Duration
	logger  *utils.Logger
}

// NewGenerationService timeout 为整次生成的时间预算，<=0 表示只受调用方 ctx 约束
func NewGenerationService(backend Backend, timeout time.Duration) *GenerationService {
	return &GenerationService{
		backend: backend,
		timeout: timeout,
		logger:  utils.GetLogger(),
	}
}

// Generate 生成脚本。rawInput 是调用方收到的原始输入字节，原样写入每个脚本的快照；
// 为空时使用 input 的序列化结果。
func (s *GenerationService) Generate(ctx context.Context, input models.GenerationInput, rawInput []byte, lang models.Language, persona models.AIPersona, opts ...GenerateOptions) (*GenerationResult, error) {
	var opt GenerateOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	if strings.TrimSpace(input.ProductName) == "" {
		return nil, apperrors.NewValidationError("产品名称不能为空", nil)
	}
	if len(rawInput) == 0 {
		data, err := json.Marshal(input)
		if err != nil {
			return nil, apperrors.NewValidationError("无法序列化生成输入", err)
		}
		rawInput = data
	}
	if strings.TrimSpace(persona.SystemInstruction) == "" {
		persona = models.DefaultPersona
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	s.logger.Info("🎬 开始生成脚本", map[string]interface{}{
		"product":  input.ProductName,
		"persona":  persona.ID,
		"language": string(lang),
		"trends":   input.UseTrendAnalysis,
	})

	trendContext := ""
	if input.UseTrendAnalysis {
		trends, err := s.backend.FetchTrendingTopics(ctx, input, lang)
		switch {
		case err == nil:
			trendContext = trends
		case opt.TolerateTrendFailure:
			s.logger.Warn("⚠️ 趋势分析失败，以空上下文继续", map[string]interface{}{"error": err.Error()})
		default:
			return nil, s.classify(ctx, err, "趋势分析失败")
		}
	}

	scripts, err := s.backend.GenerateScripts(ctx, input, lang, persona.SystemInstruction, trendContext)
	if err != nil {
		return nil, s.classify(ctx, err, "脚本生成失败")
	}

	for i := range scripts {
		scripts[i].InputSnapshot = append(json.RawMessage(nil), rawInput...)
		if scripts[i].GeneratedAt.IsZero() {
			scripts[i].GeneratedAt = time.Now().UTC()
		}
	}

	s.logger.Info("✅ 脚本生成完成", map[string]interface{}{
		"count":       len(scripts),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	return &GenerationResult{Scripts: scripts, TrendContext: trendContext}, nil
}

// classify 超出预算一律视为超时；已分类的超时和配额错误原样返回，其余归为生成失败
func (s *GenerationService) classify(ctx context.Context, err error, message string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !apperrors.IsTimeoutError(err) {
		return apperrors.NewTimeoutError(message+": 超出生成时间预算", err)
	}
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeTimeout, apperrors.ErrorTypeQuotaExceeded, apperrors.ErrorTypeMalformedResponse, apperrors.ErrorTypeValidation:
		return err
	}
	return apperrors.NewGenerationError(message, err)
}

// MergeProductAnalysis 商品链接分析结果预填输入，空字段不覆盖
func MergeProductAnalysis(input models.GenerationInput, result *models.ProductAnalysisResult) models.GenerationInput {
	if result == nil {
		return input
	}
	return result.MergeInto(input)
}
