// internal/services/photoshoot.go
package services

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/llm"
	"github.com/Corphon/Direktiva/internal/models"
	"golang.org/x/sync/errgroup"
)

// PhotoshootRequest 写真生成请求
type PhotoshootRequest struct {
	Subject                *models.ImageData `json:"subject"`
	MainProduct            *models.ImageData `json:"mainProduct"`
	AdditionalInstructions string            `json:"additionalInstructions"`
	AspectRatio            string            `json:"aspectRatio"`
	BackgroundPrompt       string            `json:"backgroundPrompt"`
	StylePrompt            string            `json:"stylePrompt"`
}

// PhotoshootStyle 预置的画面风格
type PhotoshootStyle struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// PhotoshootStyles 风格预设，空 Prompt 表示使用策略中的默认风格
var PhotoshootStyles = []PhotoshootStyle{
	{ID: "photorealistic", Name: "Photorealistic", Prompt: ""},
	{ID: "editorial", Name: "Fashion Editorial", Prompt: "High-fashion magazine editorial look with dramatic lighting, bold composition and rich contrast."},
	{ID: "lifestyle", Name: "Lifestyle", Prompt: "Warm, candid lifestyle photography with natural light and an authentic, relaxed mood."},
	{ID: "minimalist", Name: "Minimalist", Prompt: "Clean minimalist aesthetic with soft neutral tones, generous negative space and even lighting."},
	{ID: "cinematic", Name: "Cinematic", Prompt: "Cinematic color grading with anamorphic depth of field and moody, directional lighting."},
}

// PhotoshootAspectRatios 写真支持的画幅
var PhotoshootAspectRatios = []string{"original", "1:1", "3:4", "4:3", "9:16", "16:9"}

// GenerateProductPhoto 两阶段：先合成主图固定人物与服装，再把主图放入各场景。
// 第一阶段失败时不会发出任何场景请求；第二阶段成功数低于策略阈值时整体失败。
func (c *BackendClient) GenerateProductPhoto(ctx context.Context, req PhotoshootRequest) ([]models.ImageData, error) {
	if req.Subject == nil || len(req.Subject.Data) == 0 {
		return nil, apperrors.NewValidationError("A subject (model) image is required for this operation.", nil)
	}
	if req.MainProduct == nil || len(req.MainProduct.Data) == 0 {
		return nil, apperrors.NewValidationError("A main product image is required for this operation.", nil)
	}

	master, err := c.llm.ComposeImage(ctx, "photoshoot_master", llm.ImageRequest{
		Prompt:      baseCompositePrompt,
		References:  []llm.Part{imagePart(*req.Subject), imagePart(*req.MainProduct)},
		AspectRatio: req.AspectRatio,
	})
	if err != nil {
		if apperrors.IsQuotaExceededError(err) || apperrors.IsTimeoutError(err) {
			return nil, err
		}
		return nil, apperrors.NewAnchorGenerationError("第一阶段主图合成失败，请确认人物和产品图片清晰", err)
	}

	policy := c.policy.Photoshoot
	style := req.StylePrompt
	if style == "" {
		style = policy.DefaultStyle
	}

	results := make([]*models.ImageData, len(policy.Scenarios))
	var (
		mu       sync.Mutex
		failures []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, scenario := range policy.Scenarios {
		i, scenario := i, scenario
		g.Go(func() error {
			prompt := buildScenePlacementPrompt(sceneDescription(scenario.Prompt, req.BackgroundPrompt), style, req.AdditionalInstructions)
			img, err := c.llm.ComposeImage(gctx, "photoshoot_scene", llm.ImageRequest{
				Prompt:      prompt,
				References:  []llm.Part{imagePart(*master)},
				AspectRatio: req.AspectRatio,
			})
			if err != nil {
				c.logger.Warn("⚠️ 写真场景生成失败", map[string]interface{}{
					"scenario": scenario.Name,
					"error":    err.Error(),
				})
				mu.Lock()
				failures = append(failures, err)
				mu.Unlock()
				return nil
			}
			results[i] = img
			return nil
		})
	}
	g.Wait()

	images := make([]models.ImageData, 0, len(results))
	for _, img := range results {
		if img != nil {
			images = append(images, *img)
		}
	}

	if len(images) < policy.MinSceneSuccesses {
		msg := fmt.Sprintf("Image generation failed for most scenarios (%d/%d succeeded). Please check if the product images are clear and try again.",
			len(images), len(policy.Scenarios))
		for _, f := range failures {
			if apperrors.IsQuotaExceededError(f) {
				return nil, apperrors.NewQuotaExceededError(msg, f)
			}
		}
		var cause error
		if len(failures) > 0 {
			cause = failures[0]
		}
		return nil, apperrors.NewGenerationError(msg, cause)
	}
	return images, nil
}
