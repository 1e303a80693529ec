// internal/services/revision_service_test.go
package services

import (
	"context"
	"reflect"
	"testing"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
)

// rewriteAll 模型把所有部分都改写，用来检验只采用被点名的部分
func rewriteAll(tag string) func(context.Context, *models.Script, []models.PartName, string) (*models.Script, error) {
	return func(_ context.Context, s *models.Script, _ []models.PartName, _ string) (*models.Script, error) {
		out := s.Clone()
		out.Title = tag
		out.Hook.Dialogue = tag + " hook"
		for i := range out.Content {
			out.Content[i].Dialogue = tag + " content"
		}
		out.CTA.Dialogue = tag + " cta"
		out.CTA.VisualIdeas = []models.VisualIdea{idea("t1", "new cta prompt")}
		return out, nil
	}
}

func TestReviseCTAOnlyKeepsOtherParts(t *testing.T) {
	script := newTestScript(t)
	script.Storyboard = models.Storyboard{
		"h1": {Status: models.FrameDone, Image: img("h1")},
		"t1": {Status: models.FrameDone, Image: img("t1")},
	}
	script.GeneratedVideoClips = []string{"clip-1"}
	before := script.Clone()

	svc := NewRevisionService(&fakeBackend{reviseScript: rewriteAll("v1")})
	candidate, err := svc.Revise(context.Background(), script, []models.PartName{models.PartCTA}, "more urgent", models.LanguageEnglish, models.DefaultPersona)
	if err != nil {
		t.Fatalf("修改失败: %v", err)
	}

	got := candidate.Script
	if !reflect.DeepEqual(got.Hook, before.Hook) || !reflect.DeepEqual(got.Content, before.Content) {
		t.Fatalf("只修改 cta 时 hook/content 应完全不变")
	}
	if got.CTA.Dialogue != "v1 cta" || got.Title != "v1" {
		t.Fatalf("cta 和标题应采用修改结果: %+v", got.CTA)
	}
	if _, ok := got.Storyboard["h1"]; !ok {
		t.Fatalf("未变化画面的分镜应保留")
	}
	if _, ok := got.Storyboard["t1"]; ok {
		t.Fatalf("图片提示改变的画面应移除分镜")
	}
	if !reflect.DeepEqual(got.GeneratedVideoClips, before.GeneratedVideoClips) {
		t.Fatalf("视频片段应保留")
	}
	if !reflect.DeepEqual(script, before) {
		t.Fatalf("原脚本在应用之前不应改变")
	}
}

func TestReviseValidation(t *testing.T) {
	svc := NewRevisionService(&fakeBackend{})
	script := newTestScript(t)

	if _, err := svc.Revise(context.Background(), script, nil, "x", models.LanguageEnglish, models.DefaultPersona); !apperrors.IsValidationError(err) {
		t.Fatalf("未指定部分应返回校验错误，得到 %v", err)
	}
	if _, err := svc.Revise(context.Background(), script, []models.PartName{"intro"}, "x", models.LanguageEnglish, models.DefaultPersona); !apperrors.IsValidationError(err) {
		t.Fatalf("未知部分应返回校验错误，得到 %v", err)
	}
	if _, err := svc.Revise(context.Background(), script, []models.PartName{models.PartHook}, "  ", models.LanguageEnglish, models.DefaultPersona); !apperrors.IsValidationError(err) {
		t.Fatalf("空指令应返回校验错误，得到 %v", err)
	}
}

func TestRegenerateStartsFromOriginal(t *testing.T) {
	calls := 0
	var lastInput *models.Script
	var lastParts []models.PartName
	backend := &fakeBackend{reviseScript: func(ctx context.Context, s *models.Script, parts []models.PartName, instruction string) (*models.Script, error) {
		calls++
		lastInput = s.Clone()
		lastParts = parts
		if instruction != "shorter" {
			t.Errorf("重新生成应沿用同一条指令，得到 %q", instruction)
		}
		return rewriteAll("v" + string(rune('0'+calls)))(ctx, s, parts, instruction)
	}}
	svc := NewRevisionService(backend)
	script := newTestScript(t)

	first, err := svc.Revise(context.Background(), script, []models.PartName{models.PartHook}, "shorter", models.LanguageEnglish, models.DefaultPersona)
	if err != nil {
		t.Fatalf("修改失败: %v", err)
	}
	second, err := svc.Regenerate(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("重新生成失败: %v", err)
	}

	if lastInput.Hook.Dialogue != script.Hook.Dialogue {
		t.Fatalf("重新生成应基于原脚本，而不是上一个候选: %q", lastInput.Hook.Dialogue)
	}
	if !reflect.DeepEqual(lastParts, models.AllParts) {
		t.Fatalf("重新生成应覆盖全部部分，得到 %v", lastParts)
	}
	if second.ID != first.ID || second.Script.CTA.Dialogue != "v2 cta" {
		t.Fatalf("重新生成结果错误: %+v", second.Script.CTA)
	}
}

func TestApplyAndDiscard(t *testing.T) {
	svc := NewRevisionService(&fakeBackend{reviseScript: rewriteAll("v1")})
	script := newTestScript(t)

	c, err := svc.Revise(context.Background(), script, []models.PartName{models.PartHook}, "x", models.LanguageEnglish, models.DefaultPersona)
	if err != nil {
		t.Fatalf("修改失败: %v", err)
	}
	applied, err := svc.Apply(c.ID)
	if err != nil {
		t.Fatalf("应用失败: %v", err)
	}
	if applied.Hook.Dialogue != "v1 hook" || applied.ID != script.ID {
		t.Fatalf("应用结果错误: %+v", applied.Hook)
	}
	if _, err := svc.Get(c.ID); !apperrors.IsNotFoundError(err) {
		t.Fatalf("应用后候选应被移除")
	}

	c2, _ := svc.Revise(context.Background(), script, []models.PartName{models.PartHook}, "x", models.LanguageEnglish, models.DefaultPersona)
	svc.Discard(c2.ID)
	if _, err := svc.Apply(c2.ID); !apperrors.IsNotFoundError(err) {
		t.Fatalf("放弃后不能再应用，得到 %v", err)
	}
}

func TestApplyVariant(t *testing.T) {
	script := newTestScript(t)
	before := script.Clone()
	variant := []models.ScriptPart{{Scene: 1, Dialogue: "New hook", VisualIdeas: []models.VisualIdea{idea("h9", "p")}}}

	out, err := ApplyVariant(script, models.PartHook, variant)
	if err != nil {
		t.Fatalf("应用候选失败: %v", err)
	}
	if out.Hook.Dialogue != "New hook" || !reflect.DeepEqual(out.Content, before.Content) || !reflect.DeepEqual(out.CTA, before.CTA) {
		t.Fatalf("只应替换 hook")
	}

	if _, err := ApplyVariant(script, models.PartCTA, append(variant, variant[0])); !apperrors.IsValidationError(err) {
		t.Fatalf("cta 候选多于一个部分应返回校验错误，得到 %v", err)
	}
}
