// internal/services/backend_client.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Corphon/Direktiva/internal/config"
	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/llm"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/utils"
	"github.com/google/uuid"
)

// Backend 生成后端的请求契约。每个方法对应一次外部请求，不重试，不缓存。
type Backend interface {
	GenerateScripts(ctx context.Context, input models.GenerationInput, lang models.Language, systemInstruction, trendContext string) ([]models.Script, error)
	ReviseScript(ctx context.Context, script *models.Script, parts []models.PartName, instruction string, lang models.Language, systemInstruction string) (*models.Script, error)
	GenerateScriptPartVariants(ctx context.Context, part models.PartName, script *models.Script, lang models.Language) ([][]models.ScriptPart, error)
	GenerateMarketingAssets(ctx context.Context, script *models.Script, lang models.Language) (*models.MarketingAssets, error)
	GenerateVoiceOverDirections(ctx context.Context, script *models.Script, lang models.Language) (*models.VoiceOverDirections, error)
	FetchTrendingTopics(ctx context.Context, input models.GenerationInput, lang models.Language) (string, error)
	AnalyzeProductURL(ctx context.Context, url string, lang models.Language) (*models.ProductAnalysisResult, error)
	GenerateProductPhoto(ctx context.Context, req PhotoshootRequest) ([]models.ImageData, error)
	EditProductInImage(ctx context.Context, base, replacement models.ImageData, instructions, aspectRatio string) (*models.ImageData, error)
	GenerateImageFromPrompt(ctx context.Context, prompt, aspectRatio string, productRef, characterRef *models.ImageData) (*models.ImageData, error)
	GenerateVideoClip(ctx context.Context, image models.ImageData, motionPrompt, aspectRatio string) (string, error)
}

const maxScriptsPerRequest = 5

// BackendClient 基于 LLMService 的 Backend 实现
type BackendClient struct {
	llm    *LLMService
	policy config.Policy
	logger *utils.Logger
}

func NewBackendClient(llmService *LLMService, policy config.Policy) *BackendClient {
	return &BackendClient{
		llm:    llmService,
		policy: policy,
		logger: utils.GetLogger(),
	}
}

// ClassifyBackendError 把提供者原始错误归入错误分类
func ClassifyBackendError(err error) error {
	return llm.Classify(err, "生成后端调用失败")
}

// --- 结构化响应 ---

type wireVisualIdea struct {
	ID          string  `json:"id" jsonschema_description:"A unique UUID for this visual idea."`
	Description *string `json:"description" validate:"required" jsonschema_description:"A detailed description of the visual scene in the requested language."`
	ImagePrompt *string `json:"image_prompt" validate:"required" jsonschema_description:"A detailed, single-paragraph image prompt in English."`
	VideoPrompt *string `json:"video_prompt" validate:"required" jsonschema_description:"A short, action-oriented video prompt in English describing camera movement and subject action."`
}

type wireScriptPart struct {
	Scene       *int             `json:"scene" validate:"required" jsonschema_description:"The scene number."`
	VisualIdeas []wireVisualIdea `json:"visual_ideas" validate:"required,dive"`
	Dialogue    *string          `json:"dialogue" validate:"required" jsonschema_description:"The spoken dialogue for this part of the script."`
	SoundEffect *string          `json:"sound_effect" validate:"required" jsonschema_description:"Description of sound effects or music for this scene."`
}

type wireScript struct {
	ID           string           `json:"id" jsonschema_description:"A unique UUID for the script."`
	Title        *string          `json:"title" validate:"required" jsonschema_description:"A catchy title for the video script."`
	Score        *int             `json:"score" validate:"required" jsonschema_description:"An overall engagement score from 1-100 based on virality potential."`
	IsBestOption *bool            `json:"isBestOption" validate:"required" jsonschema_description:"Set to true for the single best script option."`
	Hook         *wireScriptPart  `json:"hook" validate:"required"`
	Content      []wireScriptPart `json:"content" validate:"required,dive"`
	CTA          *wireScriptPart  `json:"cta" validate:"required"`
}

type wireScripts struct {
	Scripts []wireScript `json:"scripts" validate:"required,min=1,dive"`
}

type wireVariants struct {
	Variants [][]wireScriptPart `json:"variants" validate:"required,min=1,dive,required,min=1,dive"`
}

type wireHashtags struct {
	General             []string `json:"general" validate:"required"`
	PlatformSpecific    []string `json:"platform_specific" validate:"required"`
	TrendingSuggestions []string `json:"trending_suggestions" validate:"required"`
}

type wireAssets struct {
	Titles             []string      `json:"titles" validate:"required"`
	Hashtags           *wireHashtags `json:"hashtags" validate:"required"`
	ThumbnailTextIdeas []string      `json:"thumbnail_text_ideas" validate:"required"`
}

type wireVoiceOverLine struct {
	Dialogue  *string  `json:"dialogue" validate:"required"`
	Direction *string  `json:"direction" validate:"required" jsonschema_description:"Direction for the voice actor on how to read this line."`
	Rate      *float64 `json:"rate,omitempty" validate:"omitempty,gte=0.25,lte=4" jsonschema_description:"Speech rate (0.25 to 4.0), default is 1."`
	Pitch     *float64 `json:"pitch,omitempty" validate:"omitempty,gte=-20,lte=20" jsonschema_description:"Speech pitch (-20.0 to 20.0), default is 0."`
}

type wireVoiceOver struct {
	Title            *string             `json:"title" validate:"required"`
	OverallDirection *string             `json:"overallDirection" validate:"required" jsonschema_description:"Overall direction for the voiceover tone and style."`
	Lines            []wireVoiceOverLine `json:"lines" validate:"required,dive"`
}

type wireProductAnalysis struct {
	ProductName        *string `json:"productName" validate:"required" jsonschema_description:"The extracted product name."`
	ProductDescription *string `json:"productDescription" validate:"required" jsonschema_description:"A concise, well-written product description summarized from the page."`
	ProductCategory    *string `json:"productCategory" validate:"required" jsonschema_description:"The most relevant product category."`
	TargetAudience     *string `json:"targetAudience" validate:"required" jsonschema_description:"The most likely target audience."`
}

var (
	scriptsSchema         = GenerateSchema[wireScripts]()
	scriptSchema          = GenerateSchema[wireScript]()
	variantsSchema        = GenerateSchema[wireVariants]()
	assetsSchema          = GenerateSchema[wireAssets]()
	voiceOverSchema       = GenerateSchema[wireVoiceOver]()
	productAnalysisSchema = GenerateSchema[wireProductAnalysis]()
)

// idAllocator 保证一个脚本内画面 ID 唯一；模型给出的 ID 重复或为空时重新分配
type idAllocator map[string]bool

func (a idAllocator) assign(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || a[id] {
		id = uuid.NewString()
	}
	a[id] = true
	return id
}

func (a idAllocator) reserve(parts ...models.ScriptPart) {
	for _, p := range parts {
		for _, idea := range p.VisualIdeas {
			a[idea.ID] = true
		}
	}
}

func (w wireScriptPart) toPart(ids idAllocator) models.ScriptPart {
	part := models.ScriptPart{
		Scene:       *w.Scene,
		Dialogue:    *w.Dialogue,
		SoundEffect: *w.SoundEffect,
		VisualIdeas: make([]models.VisualIdea, len(w.VisualIdeas)),
	}
	for i, v := range w.VisualIdeas {
		part.VisualIdeas[i] = models.VisualIdea{
			ID:          ids.assign(v.ID),
			Description: *v.Description,
			ImagePrompt: *v.ImagePrompt,
			VideoPrompt: *v.VideoPrompt,
		}
	}
	return part
}

func toParts(ws []wireScriptPart, ids idAllocator) []models.ScriptPart {
	parts := make([]models.ScriptPart, len(ws))
	for i, w := range ws {
		parts[i] = w.toPart(ids)
	}
	return parts
}

func (w wireScript) toScript(scriptIDs, ideaIDs idAllocator) models.Script {
	return models.Script{
		ID:           scriptIDs.assign(w.ID),
		Title:        *w.Title,
		Score:        *w.Score,
		IsBestOption: *w.IsBestOption,
		Hook:         w.Hook.toPart(ideaIDs),
		Content:      toParts(w.Content, ideaIDs),
		CTA:          w.CTA.toPart(ideaIDs),
	}
}

// --- 文本/JSON 契约 ---

// supportsInlineImages 文本提供者同时具备图片能力时才附带参考图
func (c *BackendClient) supportsInlineImages() bool {
	provider, _, _, err := c.llm.current()
	if err != nil {
		return false
	}
	_, ok := provider.(llm.ImageProvider)
	return ok
}

// GenerateScripts 按输入生成若干脚本，返回的脚本尚未设置输入快照
func (c *BackendClient) GenerateScripts(ctx context.Context, input models.GenerationInput, lang models.Language, systemInstruction, trendContext string) ([]models.Script, error) {
	count := input.NumberOfScripts
	if count <= 0 {
		count = 1
	}
	if count > maxScriptsPerRequest {
		count = maxScriptsPerRequest
	}

	parts := []llm.Part{llm.TextPart(buildScriptPrompt(input, lang, trendContext, count))}
	if c.supportsInlineImages() {
		for _, img := range input.ProductImages {
			data, err := models.ImageFromProduct(img)
			if err != nil {
				return nil, apperrors.NewValidationError(fmt.Sprintf("产品图片 %s 不是有效的 base64 数据", img.Name), err)
			}
			parts = append(parts, llm.BlobPart(data.MimeType, data.Data))
		}
	}

	var resp wireScripts
	err := c.llm.CreateStructuredCompletion(ctx, "generate_scripts", llm.CompletionRequest{
		SystemInstruction: systemInstruction,
		Parts:             parts,
		Schema:            scriptsSchema,
		SchemaName:        "video_scripts",
	}, &resp)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	scriptIDs := idAllocator{}
	scripts := make([]models.Script, len(resp.Scripts))
	for i, w := range resp.Scripts {
		scripts[i] = w.toScript(scriptIDs, idAllocator{})
		scripts[i].GeneratedAt = now
	}
	return scripts, nil
}

// ReviseScript 只允许 parts 中的部分变化；其余部分从原脚本深拷贝恢复
func (c *BackendClient) ReviseScript(ctx context.Context, script *models.Script, parts []models.PartName, instruction string, lang models.Language, systemInstruction string) (*models.Script, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}
	if len(parts) == 0 {
		return nil, apperrors.NewValidationError("至少需要指定一个修改部分", nil)
	}
	if strings.TrimSpace(instruction) == "" {
		return nil, apperrors.NewValidationError("修改指令不能为空", nil)
	}

	var resp wireScript
	err := c.llm.CreateStructuredCompletion(ctx, "revise_script", llm.CompletionRequest{
		SystemInstruction: systemInstruction,
		Parts:             []llm.Part{llm.TextPart(buildRevisionPrompt(script, parts, instruction, lang))},
		Schema:            scriptSchema,
		SchemaName:        "video_script",
	}, &resp)
	if err != nil {
		return nil, err
	}
	return mergeRevision(script, &resp, parts), nil
}

// mergeRevision 把模型返回的脚本转换后交给 scopeRevision，未指定的部分不会采用模型输出
func mergeRevision(original *models.Script, revised *wireScript, parts []models.PartName) *models.Script {
	named := partSet(parts)
	ids := idAllocator{}
	for _, name := range models.AllParts {
		if !named[name] {
			ids.reserve(original.Part(name)...)
		}
	}

	candidate := &models.Script{
		Title:        *revised.Title,
		Score:        *revised.Score,
		IsBestOption: *revised.IsBestOption,
	}
	if named[models.PartHook] {
		candidate.Hook = revised.Hook.toPart(ids)
	}
	if named[models.PartContent] {
		candidate.Content = toParts(revised.Content, ids)
	}
	if named[models.PartCTA] {
		candidate.CTA = revised.CTA.toPart(ids)
	}
	return scopeRevision(original, candidate, parts)
}

// GenerateScriptPartVariants 无副作用；hook/cta 每个候选恰好一个部分
func (c *BackendClient) GenerateScriptPartVariants(ctx context.Context, part models.PartName, script *models.Script, lang models.Language) ([][]models.ScriptPart, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}
	if _, err := models.ParsePartName(string(part)); err != nil {
		return nil, apperrors.NewValidationError(err.Error(), err)
	}

	var resp wireVariants
	err := c.llm.CreateStructuredCompletion(ctx, "generate_variants", llm.CompletionRequest{
		Parts:      []llm.Part{llm.TextPart(buildVariantsPrompt(script, part, lang))},
		Schema:     variantsSchema,
		SchemaName: "script_part_variants",
	}, &resp)
	if err != nil {
		return nil, err
	}

	ids := idAllocator{}
	ids.reserve(script.Part(models.PartHook)...)
	ids.reserve(script.Content...)
	ids.reserve(script.CTA)

	variants := make([][]models.ScriptPart, len(resp.Variants))
	for i, candidate := range resp.Variants {
		if part != models.PartContent && len(candidate) != 1 {
			return nil, apperrors.NewMalformedResponseError(
				fmt.Sprintf("%s 候选 %d 应只包含一个部分，实际 %d 个", part, i+1, len(candidate)), nil)
		}
		variants[i] = toParts(candidate, ids)
	}
	return variants, nil
}

func (c *BackendClient) GenerateMarketingAssets(ctx context.Context, script *models.Script, lang models.Language) (*models.MarketingAssets, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}
	platform := ""
	if in, err := script.Snapshot(); err == nil {
		platform = in.Platform
	}

	var resp wireAssets
	err := c.llm.CreateStructuredCompletion(ctx, "generate_assets", llm.CompletionRequest{
		Parts:      []llm.Part{llm.TextPart(buildAssetsPrompt(script, lang, platform))},
		Schema:     assetsSchema,
		SchemaName: "marketing_assets",
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &models.MarketingAssets{
		Titles: resp.Titles,
		Hashtags: models.Hashtags{
			General:             resp.Hashtags.General,
			PlatformSpecific:    resp.Hashtags.PlatformSpecific,
			TrendingSuggestions: resp.Hashtags.TrendingSuggestions,
		},
		ThumbnailTextIdeas: resp.ThumbnailTextIdeas,
	}, nil
}

func (c *BackendClient) GenerateVoiceOverDirections(ctx context.Context, script *models.Script, lang models.Language) (*models.VoiceOverDirections, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}

	var resp wireVoiceOver
	err := c.llm.CreateStructuredCompletion(ctx, "generate_voiceover", llm.CompletionRequest{
		Parts:      []llm.Part{llm.TextPart(buildVoiceOverPrompt(script, lang))},
		Schema:     voiceOverSchema,
		SchemaName: "voice_over_directions",
	}, &resp)
	if err != nil {
		return nil, err
	}

	out := &models.VoiceOverDirections{
		Title:            *resp.Title,
		OverallDirection: *resp.OverallDirection,
		Lines:            make([]models.VoiceOverLine, len(resp.Lines)),
	}
	for i, l := range resp.Lines {
		out.Lines[i] = models.VoiceOverLine{
			Dialogue:  *l.Dialogue,
			Direction: *l.Direction,
			Rate:      l.Rate,
			Pitch:     l.Pitch,
		}
	}
	return out, nil
}

// FetchTrendingTopics 返回自由文本，只用作脚本生成的附加上下文
func (c *BackendClient) FetchTrendingTopics(ctx context.Context, input models.GenerationInput, lang models.Language) (string, error) {
	text, err := c.llm.CreateCompletion(ctx, "fetch_trends", llm.CompletionRequest{
		Parts: []llm.Part{llm.TextPart(buildTrendPrompt(input, lang))},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// AnalyzeProductURL 尽力提取，任何字段都可能为空
func (c *BackendClient) AnalyzeProductURL(ctx context.Context, url string, lang models.Language) (*models.ProductAnalysisResult, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, apperrors.NewValidationError("商品链接不能为空", nil)
	}

	var resp wireProductAnalysis
	err := c.llm.CreateStructuredCompletion(ctx, "analyze_product_url", llm.CompletionRequest{
		Parts:      []llm.Part{llm.TextPart(buildProductURLPrompt(url, lang))},
		Schema:     productAnalysisSchema,
		SchemaName: "product_analysis",
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &models.ProductAnalysisResult{
		ProductName:        strings.TrimSpace(*resp.ProductName),
		ProductDescription: strings.TrimSpace(*resp.ProductDescription),
		ProductCategory:    strings.TrimSpace(*resp.ProductCategory),
		TargetAudience:     strings.TrimSpace(*resp.TargetAudience),
	}, nil
}

// --- 图片/视频契约 ---

func imagePart(img models.ImageData) llm.Part {
	return llm.BlobPart(img.MimeType, img.Data)
}

// GenerateImageFromPrompt 有角色参考图时附带角色连续性协议；
// 只有产品参考图时以产品图为参考合成；都没有时走纯文生图
func (c *BackendClient) GenerateImageFromPrompt(ctx context.Context, prompt, aspectRatio string, productRef, characterRef *models.ImageData) (*models.ImageData, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, apperrors.NewValidationError("图片提示不能为空", nil)
	}

	switch {
	case characterRef != nil:
		refs := []llm.Part{imagePart(*characterRef), llm.TextPart(buildContinuityPrompt(prompt))}
		if productRef != nil {
			refs = append(refs, imagePart(*productRef))
		}
		return c.llm.ComposeImage(ctx, "image_with_character", llm.ImageRequest{
			References:  refs,
			AspectRatio: aspectRatio,
		})
	case productRef != nil:
		return c.llm.ComposeImage(ctx, "image_with_product", llm.ImageRequest{
			Prompt:      prompt,
			References:  []llm.Part{imagePart(*productRef)},
			AspectRatio: aspectRatio,
		})
	default:
		return c.llm.GenerateImage(ctx, "image_from_prompt", llm.ImageRequest{
			Prompt:      prompt,
			AspectRatio: aspectRatio,
		})
	}
}

// EditProductInImage 保留人物与场景，只替换服装
func (c *BackendClient) EditProductInImage(ctx context.Context, base, replacement models.ImageData, instructions, aspectRatio string) (*models.ImageData, error) {
	if len(base.Data) == 0 || len(replacement.Data) == 0 {
		return nil, apperrors.NewValidationError("需要底图和替换产品图", nil)
	}
	return c.llm.ComposeImage(ctx, "edit_product", llm.ImageRequest{
		Prompt:      buildEditPrompt(instructions),
		References:  []llm.Part{imagePart(base), imagePart(replacement)},
		AspectRatio: aspectRatio,
	})
}

// GenerateVideoClip 以分镜图为首帧生成短视频，受策略中的最长等待时间约束
func (c *BackendClient) GenerateVideoClip(ctx context.Context, image models.ImageData, motionPrompt, aspectRatio string) (string, error) {
	if len(image.Data) == 0 {
		return "", apperrors.NewValidationError("缺少首帧图片", nil)
	}
	if c.policy.Video.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.Video.MaxWait)
		defer cancel()
	}

	return c.llm.GenerateClip(ctx, "generate_clip", llm.ClipRequest{
		Prompt:      motionPrompt,
		Image:       imagePart(image),
		AspectRatio: aspectRatio,
	})
}

var _ Backend = (*BackendClient)(nil)
