// internal/services/backend_client_test.go
package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Corphon/Direktiva/internal/config"
	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/llm"
	"github.com/Corphon/Direktiva/internal/models"
)

func newTestClient(p *fakeProvider) *BackendClient {
	return NewBackendClient(NewLLMServiceWithProvider(p), config.DefaultPolicy())
}

const partJSON = `{"scene": %d, "visual_ideas": [{"id": "%s", "description": "d", "image_prompt": "p %s", "video_prompt": "v"}], "dialogue": "line %d", "sound_effect": "sfx"}`

func wirePart(scene int, ideaID string) string {
	return fmt.Sprintf(partJSON, scene, ideaID, ideaID, scene)
}

func scriptJSON(id, title string) string {
	return `{"id": "` + id + `", "title": "` + title + `", "score": 90, "isBestOption": true,
		"hook": ` + wirePart(1, "dup") + `,
		"content": [` + wirePart(2, "dup") + `, ` + wirePart(3, "") + `],
		"cta": ` + wirePart(4, "cta-1") + `}`
}

func TestGenerateScriptsAssignsUniqueIDs(t *testing.T) {
	p := &fakeProvider{complete: func(req llm.CompletionRequest) (string, error) {
		if !req.JSONResponse || req.Schema == nil {
			t.Errorf("结构化请求应带 JSON 模式和 schema")
		}
		return "```json\n{\"scripts\": [" + scriptJSON("", "A") + ", " + scriptJSON("", "B") + "]}\n```", nil
	}}
	c := newTestClient(p)

	scripts, err := c.GenerateScripts(context.Background(), models.GenerationInput{ProductName: "Serum", NumberOfScripts: 2}, models.LanguageEnglish, "persona", "")
	if err != nil {
		t.Fatalf("生成脚本失败: %v", err)
	}
	if len(scripts) != 2 {
		t.Fatalf("期望 2 个脚本，得到 %d", len(scripts))
	}
	if scripts[0].ID == "" || scripts[0].ID == scripts[1].ID {
		t.Fatalf("脚本 ID 应非空且唯一: %q %q", scripts[0].ID, scripts[1].ID)
	}
	for _, s := range scripts {
		seen := map[string]bool{}
		for _, v := range s.AllVisualIdeas() {
			if v.ID == "" || seen[v.ID] {
				t.Fatalf("脚本 %s 内画面 ID 重复或为空: %q", s.Title, v.ID)
			}
			seen[v.ID] = true
		}
		if !seen["cta-1"] {
			t.Fatalf("模型给出的唯一 ID 应保留")
		}
		if s.GeneratedAt.IsZero() {
			t.Fatalf("应设置生成时间")
		}
	}
}

func TestGenerateScriptsMissingDialogueIsMalformed(t *testing.T) {
	broken := strings.Replace(scriptJSON("s1", "A"), `"dialogue": "line 4", `, "", 1)
	p := &fakeProvider{complete: func(llm.CompletionRequest) (string, error) {
		return `{"scripts": [` + broken + `]}`, nil
	}}

	_, err := newTestClient(p).GenerateScripts(context.Background(), models.GenerationInput{ProductName: "Serum"}, models.LanguageEnglish, "", "")
	if !apperrors.IsMalformedResponseError(err) {
		t.Fatalf("缺少 dialogue 应返回 MalformedResponseError，得到 %v", err)
	}
}

func TestGenerateScriptsNotJSONIsMalformed(t *testing.T) {
	p := &fakeProvider{complete: func(llm.CompletionRequest) (string, error) {
		return "I cannot help with that.", nil
	}}

	_, err := newTestClient(p).GenerateScripts(context.Background(), models.GenerationInput{ProductName: "Serum"}, models.LanguageEnglish, "", "")
	if !apperrors.IsMalformedResponseError(err) {
		t.Fatalf("非 JSON 响应应返回 MalformedResponseError，得到 %v", err)
	}
}

func TestProviderQuotaIsClassified(t *testing.T) {
	p := &fakeProvider{complete: func(llm.CompletionRequest) (string, error) {
		return "", &llm.StatusError{Provider: "fake", StatusCode: http.StatusTooManyRequests}
	}}

	_, err := newTestClient(p).FetchTrendingTopics(context.Background(), models.GenerationInput{ProductName: "Serum"}, models.LanguageEnglish)
	if !apperrors.IsQuotaExceededError(err) {
		t.Fatalf("429 应归类为配额错误，得到 %v", err)
	}
}

func TestReviseScriptOnlyChangesNamedParts(t *testing.T) {
	original := newTestScript(t)
	before := original.Clone()

	// 模型越界改写了 hook 和 content
	p := &fakeProvider{complete: func(llm.CompletionRequest) (string, error) {
		return `{"title": "New", "score": 70, "isBestOption": false,
			"hook": ` + wirePart(1, "x1") + `,
			"content": [` + wirePart(2, "x2") + `],
			"cta": ` + wirePart(4, "h1") + `}`, nil
	}}

	revised, err := newTestClient(p).ReviseScript(context.Background(), original, []models.PartName{models.PartCTA}, "make it urgent", models.LanguageEnglish, "")
	if err != nil {
		t.Fatalf("修改失败: %v", err)
	}
	if !reflect.DeepEqual(revised.Hook, before.Hook) || !reflect.DeepEqual(revised.Content, before.Content) {
		t.Fatalf("未点名的 hook/content 应与原脚本完全一致")
	}
	if revised.CTA.Dialogue != "line 4" {
		t.Fatalf("cta 应采用修改结果，得到 %q", revised.CTA.Dialogue)
	}
	if revised.CTA.VisualIdeas[0].ID == "h1" {
		t.Fatalf("与保留部分冲突的画面 ID 应被重新分配")
	}
	if revised.ID != original.ID || string(revised.InputSnapshot) != string(original.InputSnapshot) {
		t.Fatalf("ID 与输入快照应保持不变")
	}
	if !reflect.DeepEqual(original, before) {
		t.Fatalf("原脚本不应被修改")
	}
}

func TestVariantsForHookMustHaveOnePart(t *testing.T) {
	p := &fakeProvider{complete: func(llm.CompletionRequest) (string, error) {
		return `{"variants": [[` + wirePart(1, "a") + `, ` + wirePart(2, "b") + `]]}`, nil
	}}

	_, err := newTestClient(p).GenerateScriptPartVariants(context.Background(), models.PartHook, newTestScript(t), models.LanguageEnglish)
	if !apperrors.IsMalformedResponseError(err) {
		t.Fatalf("hook 候选包含两个部分应返回 MalformedResponseError，得到 %v", err)
	}
}

func TestVariantsForContent(t *testing.T) {
	p := &fakeProvider{complete: func(llm.CompletionRequest) (string, error) {
		return `{"variants": [[` + wirePart(2, "a") + `, ` + wirePart(3, "b") + `], [` + wirePart(2, "c1") + `]]}`, nil
	}}

	variants, err := newTestClient(p).GenerateScriptPartVariants(context.Background(), models.PartContent, newTestScript(t), models.LanguageEnglish)
	if err != nil {
		t.Fatalf("生成候选失败: %v", err)
	}
	if len(variants) != 2 || len(variants[0]) != 2 {
		t.Fatalf("候选结构错误: %+v", variants)
	}
	if variants[1][0].VisualIdeas[0].ID == "c1" {
		t.Fatalf("与现有画面重复的 ID 应被重新分配")
	}
}

func TestVoiceOverRateOutOfRangeIsMalformed(t *testing.T) {
	p := &fakeProvider{complete: func(llm.CompletionRequest) (string, error) {
		return `{"title": "t", "overallDirection": "warm", "lines": [{"dialogue": "hi", "direction": "soft", "rate": 9}]}`, nil
	}}

	_, err := newTestClient(p).GenerateVoiceOverDirections(context.Background(), newTestScript(t), models.LanguageEnglish)
	if !apperrors.IsMalformedResponseError(err) {
		t.Fatalf("语速越界应返回 MalformedResponseError，得到 %v", err)
	}
}

func TestVoiceOverOptionalRatePitch(t *testing.T) {
	p := &fakeProvider{complete: func(llm.CompletionRequest) (string, error) {
		return `{"title": "t", "overallDirection": "warm", "lines": [{"dialogue": "hi", "direction": "soft"}, {"dialogue": "go", "direction": "fast", "rate": 1.5, "pitch": -2}]}`, nil
	}}

	vo, err := newTestClient(p).GenerateVoiceOverDirections(context.Background(), newTestScript(t), models.LanguageEnglish)
	if err != nil {
		t.Fatalf("生成配音指导失败: %v", err)
	}
	if vo.Lines[0].Rate != nil || vo.Lines[0].Pitch != nil {
		t.Fatalf("缺省的语速/音调应保持为空")
	}
	if *vo.Lines[1].Rate != 1.5 || *vo.Lines[1].Pitch != -2 {
		t.Fatalf("语速/音调解析错误: %+v", vo.Lines[1])
	}
}

func TestGenerateImageFromPromptRouting(t *testing.T) {
	p := &fakeProvider{}
	c := newTestClient(p)
	ctx := context.Background()

	if _, err := c.GenerateImageFromPrompt(ctx, "a", "9:16", nil, nil); err != nil {
		t.Fatalf("文生图失败: %v", err)
	}
	if len(p.generated) != 1 || p.composeCount() != 0 {
		t.Fatalf("没有参考图时应走文生图")
	}

	if _, err := c.GenerateImageFromPrompt(ctx, "b", "9:16", img("product"), nil); err != nil {
		t.Fatalf("产品参考图生成失败: %v", err)
	}
	if p.composeCount() != 1 || len(p.composed[0].References) != 1 {
		t.Fatalf("只有产品图时应以产品图为唯一参考")
	}

	if _, err := c.GenerateImageFromPrompt(ctx, "c", "9:16", img("product"), img("anchor")); err != nil {
		t.Fatalf("角色参考图生成失败: %v", err)
	}
	refs := p.composed[1].References
	if len(refs) != 3 || string(refs[0].Data) != "anchor" || !strings.Contains(refs[1].Text, "c") || string(refs[2].Data) != "product" {
		t.Fatalf("角色参考请求结构错误: %+v", refs)
	}
}

func TestGenerateImageFromPromptRejectsEmptyPrompt(t *testing.T) {
	_, err := newTestClient(&fakeProvider{}).GenerateImageFromPrompt(context.Background(), "  ", "1:1", nil, nil)
	if !apperrors.IsValidationError(err) {
		t.Fatalf("空提示应返回校验错误，得到 %v", err)
	}
}

func photoshootRequest() PhotoshootRequest {
	return PhotoshootRequest{Subject: img("subject"), MainProduct: img("dress"), AspectRatio: "3:4"}
}

func TestPhotoshootMasterFailureSkipsScenes(t *testing.T) {
	p := &fakeProvider{compose: func(llm.ImageRequest) (*llm.ImageResponse, error) {
		return nil, llm.ErrNoImage
	}}

	_, err := newTestClient(p).GenerateProductPhoto(context.Background(), photoshootRequest())
	if !apperrors.IsAnchorGenerationError(err) {
		t.Fatalf("主图失败应返回 AnchorGenerationError，得到 %v", err)
	}
	if p.composeCount() != 1 {
		t.Fatalf("主图失败后不应发出场景请求，实际请求 %d 次", p.composeCount())
	}
}

func TestPhotoshootThreshold(t *testing.T) {
	var scene int32
	p := &fakeProvider{compose: func(req llm.ImageRequest) (*llm.ImageResponse, error) {
		if len(req.References) == 2 {
			return &llm.ImageResponse{MIMEType: "image/png", Data: []byte("master")}, nil
		}
		// 5 个场景中只有 2 个成功
		if atomic.AddInt32(&scene, 1) <= 2 {
			return &llm.ImageResponse{MIMEType: "image/png", Data: []byte("scene")}, nil
		}
		return nil, errors.New("blocked")
	}}

	_, err := newTestClient(p).GenerateProductPhoto(context.Background(), photoshootRequest())
	if !apperrors.IsGenerationError(err) {
		t.Fatalf("成功数低于阈值应返回 GenerationError，得到 %v", err)
	}
	if !strings.Contains(err.Error(), "2/5") {
		t.Fatalf("错误信息应包含成功数: %v", err)
	}
}

func TestPhotoshootThresholdQuota(t *testing.T) {
	p := &fakeProvider{compose: func(req llm.ImageRequest) (*llm.ImageResponse, error) {
		if len(req.References) == 2 {
			return &llm.ImageResponse{MIMEType: "image/png", Data: []byte("master")}, nil
		}
		return nil, &llm.StatusError{Provider: "fake", StatusCode: http.StatusTooManyRequests}
	}}

	_, err := newTestClient(p).GenerateProductPhoto(context.Background(), photoshootRequest())
	if !apperrors.IsQuotaExceededError(err) {
		t.Fatalf("场景失败源于配额时应返回 QuotaExceededError，得到 %v", err)
	}
}

func TestPhotoshootSucceedsAtThreshold(t *testing.T) {
	var scene int32
	p := &fakeProvider{compose: func(req llm.ImageRequest) (*llm.ImageResponse, error) {
		if len(req.References) == 2 {
			return &llm.ImageResponse{MIMEType: "image/png", Data: []byte("master")}, nil
		}
		if string(req.References[0].Data) != "master" {
			t.Errorf("场景请求应以主图为参考")
		}
		if atomic.AddInt32(&scene, 1) <= 3 {
			return &llm.ImageResponse{MIMEType: "image/png", Data: []byte("scene")}, nil
		}
		return nil, errors.New("blocked")
	}}

	images, err := newTestClient(p).GenerateProductPhoto(context.Background(), photoshootRequest())
	if err != nil {
		t.Fatalf("达到阈值时应成功: %v", err)
	}
	if len(images) != 3 {
		t.Fatalf("期望 3 张图片，得到 %d", len(images))
	}
}

func TestPhotoshootRequiresImages(t *testing.T) {
	_, err := newTestClient(&fakeProvider{}).GenerateProductPhoto(context.Background(), PhotoshootRequest{MainProduct: img("dress")})
	if !apperrors.IsValidationError(err) || !strings.Contains(err.Error(), "subject") {
		t.Fatalf("缺少人物图应返回校验错误，得到 %v", err)
	}
}

func TestGenerateClipNotReady(t *testing.T) {
	c := NewBackendClient(createBaseLLMService(), config.DefaultPolicy())
	_, err := c.GenerateVideoClip(context.Background(), *img("frame"), "pan", "9:16")
	if !errors.Is(err, ErrLLMNotReady) {
		t.Fatalf("未就绪时应返回 ErrLLMNotReady，得到 %v", err)
	}
}
