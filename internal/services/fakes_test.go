// internal/services/fakes_test.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Corphon/Direktiva/internal/llm"
	"github.com/Corphon/Direktiva/internal/models"
)

var errNotStubbed = errors.New("未设置测试桩")

// fakeBackend 按需设置的 Backend 测试桩
type fakeBackend struct {
	generateScripts func(ctx context.Context, input models.GenerationInput, lang models.Language, system, trends string) ([]models.Script, error)
	reviseScript    func(ctx context.Context, script *models.Script, parts []models.PartName, instruction string) (*models.Script, error)
	fetchTrends     func(ctx context.Context, input models.GenerationInput) (string, error)
	imageFromPrompt func(ctx context.Context, prompt string, productRef, characterRef *models.ImageData) (*models.ImageData, error)
	videoClip       func(ctx context.Context, image models.ImageData, motion string) (string, error)
	voiceOver       func(ctx context.Context, script *models.Script) (*models.VoiceOverDirections, error)

	mu           sync.Mutex
	imagePrompts []string
}

func (f *fakeBackend) GenerateScripts(ctx context.Context, input models.GenerationInput, lang models.Language, system, trends string) ([]models.Script, error) {
	if f.generateScripts == nil {
		return nil, errNotStubbed
	}
	return f.generateScripts(ctx, input, lang, system, trends)
}

func (f *fakeBackend) ReviseScript(ctx context.Context, script *models.Script, parts []models.PartName, instruction string, lang models.Language, system string) (*models.Script, error) {
	if f.reviseScript == nil {
		return nil, errNotStubbed
	}
	return f.reviseScript(ctx, script, parts, instruction)
}

func (f *fakeBackend) GenerateScriptPartVariants(context.Context, models.PartName, *models.Script, models.Language) ([][]models.ScriptPart, error) {
	return nil, errNotStubbed
}

func (f *fakeBackend) GenerateMarketingAssets(context.Context, *models.Script, models.Language) (*models.MarketingAssets, error) {
	return nil, errNotStubbed
}

func (f *fakeBackend) GenerateVoiceOverDirections(ctx context.Context, script *models.Script, lang models.Language) (*models.VoiceOverDirections, error) {
	if f.voiceOver == nil {
		return nil, errNotStubbed
	}
	return f.voiceOver(ctx, script)
}

func (f *fakeBackend) FetchTrendingTopics(ctx context.Context, input models.GenerationInput, lang models.Language) (string, error) {
	if f.fetchTrends == nil {
		return "", errNotStubbed
	}
	return f.fetchTrends(ctx, input)
}

func (f *fakeBackend) AnalyzeProductURL(context.Context, string, models.Language) (*models.ProductAnalysisResult, error) {
	return nil, errNotStubbed
}

func (f *fakeBackend) GenerateProductPhoto(context.Context, PhotoshootRequest) ([]models.ImageData, error) {
	return nil, errNotStubbed
}

func (f *fakeBackend) EditProductInImage(context.Context, models.ImageData, models.ImageData, string, string) (*models.ImageData, error) {
	return nil, errNotStubbed
}

func (f *fakeBackend) GenerateImageFromPrompt(ctx context.Context, prompt, aspect string, productRef, characterRef *models.ImageData) (*models.ImageData, error) {
	f.mu.Lock()
	f.imagePrompts = append(f.imagePrompts, prompt)
	f.mu.Unlock()
	if f.imageFromPrompt == nil {
		return nil, errNotStubbed
	}
	return f.imageFromPrompt(ctx, prompt, productRef, characterRef)
}

func (f *fakeBackend) GenerateVideoClip(ctx context.Context, image models.ImageData, motion, aspect string) (string, error) {
	if f.videoClip == nil {
		return "", errNotStubbed
	}
	return f.videoClip(ctx, image, motion)
}

func (f *fakeBackend) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.imagePrompts)
}

var _ Backend = (*fakeBackend)(nil)

// fakeProvider 同时具备文本、图片、视频能力的提供者桩
type fakeProvider struct {
	complete func(req llm.CompletionRequest) (string, error)
	compose  func(req llm.ImageRequest) (*llm.ImageResponse, error)
	generate func(req llm.ImageRequest) (*llm.ImageResponse, error)
	clip     func(req llm.ClipRequest) (string, error)

	mu          sync.Mutex
	completions []llm.CompletionRequest
	composed    []llm.ImageRequest
	generated   []llm.ImageRequest
}

func (p *fakeProvider) Initialize(map[string]string) error { return nil }
func (p *fakeProvider) GetName() string                    { return "fake" }
func (p *fakeProvider) GetSupportedModels() []string       { return []string{"fake-1"} }

func (p *fakeProvider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.completions = append(p.completions, req)
	p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.complete == nil {
		return nil, errNotStubbed
	}
	text, err := p.complete(req)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Text: text}, nil
}

func (p *fakeProvider) ComposeImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	p.mu.Lock()
	p.composed = append(p.composed, req)
	p.mu.Unlock()
	if p.compose == nil {
		return &llm.ImageResponse{MIMEType: "image/png", Data: []byte("composed")}, nil
	}
	return p.compose(req)
}

func (p *fakeProvider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	p.mu.Lock()
	p.generated = append(p.generated, req)
	p.mu.Unlock()
	if p.generate == nil {
		return &llm.ImageResponse{MIMEType: "image/jpeg", Data: []byte("generated")}, nil
	}
	return p.generate(req)
}

func (p *fakeProvider) GenerateClip(ctx context.Context, req llm.ClipRequest) (string, error) {
	if p.clip == nil {
		return "https://example.invalid/clip.mp4", nil
	}
	return p.clip(req)
}

func (p *fakeProvider) composeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.composed)
}

var (
	_ llm.ImageProvider = (*fakeProvider)(nil)
	_ llm.ClipProvider  = (*fakeProvider)(nil)
)

func idea(id, prompt string) models.VisualIdea {
	return models.VisualIdea{ID: id, Description: "desc " + id, ImagePrompt: prompt, VideoPrompt: "pan " + id}
}

// newTestScript hook(h1)、两个 content 场景(c1, c2)、cta(t1)
func newTestScript(t *testing.T) *models.Script {
	t.Helper()
	snapshot, err := json.Marshal(models.GenerationInput{ProductName: "Glow Serum", AspectRatio: "9:16"})
	if err != nil {
		t.Fatalf("序列化输入失败: %v", err)
	}
	return &models.Script{
		ID:           "script-1",
		Title:        "Glow Up",
		Score:        80,
		IsBestOption: true,
		Hook:         models.ScriptPart{Scene: 1, Dialogue: "Tired of dull skin?", SoundEffect: "whoosh", VisualIdeas: []models.VisualIdea{idea("h1", "close-up of a face")}},
		Content: []models.ScriptPart{
			{Scene: 2, Dialogue: "Meet \"Glow\" serum.", SoundEffect: "pop", VisualIdeas: []models.VisualIdea{idea("c1", "the Glow Serum bottle")}},
			{Scene: 3, Dialogue: "", SoundEffect: "", VisualIdeas: []models.VisualIdea{idea("c2", "applying it at night")}},
		},
		CTA:           models.ScriptPart{Scene: 4, Dialogue: "Tap the basket!", SoundEffect: "ding", VisualIdeas: []models.VisualIdea{idea("t1", "smiling to camera")}},
		InputSnapshot: snapshot,
	}
}

func img(tag string) *models.ImageData {
	return &models.ImageData{MimeType: "image/png", Data: []byte(tag)}
}
