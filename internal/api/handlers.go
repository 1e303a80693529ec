// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Corphon/Direktiva/internal/config"
	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/llm"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/services"
	"github.com/Corphon/Direktiva/internal/utils"
	"github.com/gin-gonic/gin"
)

// Handler 处理API请求
type Handler struct {
	// 编排
	Generation *services.GenerationService
	Storyboard *services.StoryboardService
	Revision   *services.RevisionService
	Video      *services.VideoService
	VoiceOver  *services.VoiceOverService
	Backend    services.Backend

	// 偏好与历史
	Presets  *services.PresetService
	Personas *services.PersonaService
	History  *services.HistoryService

	Export   *services.ExportService
	Clips    services.ClipFetcher
	Progress *services.ProgressService
	Locks    *services.LockManager
	LLM      *services.LLMService // 可为空，仅状态与配置接口使用

	Streamer *ProgressStreamer
	Metrics  *utils.MetricsCollector
	Response *ResponseHelper
}

// APIResponse 标准API响应格式
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError 标准错误格式
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Scene   int    `json:"scene,omitempty"`
}

// GenerateRequest 生成脚本。Input 原样作为每个脚本的输入快照。
type GenerateRequest struct {
	Input                json.RawMessage `json:"input" binding:"required"`
	Language             string          `json:"language"`
	PresetID             string          `json:"presetId"`
	TolerateTrendFailure bool            `json:"tolerateTrendFailure"`
}

type ReviseRequest struct {
	Parts       []models.PartName `json:"parts" binding:"required"`
	Instruction string            `json:"instruction" binding:"required"`
	Language    string            `json:"language"`
}

type VariantsRequest struct {
	Part     models.PartName `json:"part" binding:"required"`
	Language string          `json:"language"`
}

type ApplyVariantRequest struct {
	Part    models.PartName     `json:"part" binding:"required"`
	Variant []models.ScriptPart `json:"variant" binding:"required"`
}

type LanguageRequest struct {
	Language string `json:"language"`
}

type AnalyzeURLRequest struct {
	URL      string                  `json:"url" binding:"required"`
	Language string                  `json:"language"`
	Input    *models.GenerationInput `json:"input"`
}

// bindOptionalJSON 空请求体视为零值
func bindOptionalJSON(c *gin.Context, v interface{}) error {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return c.ShouldBindJSON(v)
}

// loadScript 从历史中取脚本，失败时已写出响应
func (h *Handler) loadScript(c *gin.Context) (*models.Script, bool) {
	script, err := h.History.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.Response.AppError(c, err)
		return nil, false
	}
	return script, true
}

// personaFor 脚本使用生成时选定的人设
func (h *Handler) personaFor(ctx context.Context, script *models.Script) models.AIPersona {
	in, err := script.Snapshot()
	if err != nil {
		return models.DefaultPersona
	}
	return h.Personas.Resolve(ctx, in.AIPersonaID)
}

// Health 存活检查
func (h *Handler) Health(c *gin.Context) {
	ready := false
	if h.LLM != nil {
		ready = h.LLM.IsReady()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"llm_ready": ready,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// ========================================
// 生成
// ========================================

// Generate 生成一批脚本并写入历史
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	var input models.GenerationInput
	if err := json.Unmarshal(req.Input, &input); err != nil {
		h.Response.BadRequest(c, "无效的生成输入", err.Error())
		return
	}

	ctx := c.Request.Context()
	raw := []byte(req.Input)
	if req.PresetID != "" {
		presets, err := h.Presets.ListGeneralPresets(ctx)
		if err != nil {
			h.Response.AppError(c, err)
			return
		}
		found := false
		for _, p := range presets {
			if p.ID == req.PresetID {
				input = p.Settings.ApplyTo(input)
				found = true
				break
			}
		}
		if !found {
			h.Response.AppError(c, apperrors.NewNotFoundError(fmt.Sprintf("预设 %s 不存在", req.PresetID), nil))
			return
		}
		// 预设改变了输入，快照记录实际使用的设置
		raw = nil
	}

	persona := h.Personas.Resolve(ctx, input.AIPersonaID)
	result, err := h.Generation.Generate(ctx, input, raw, models.ParseLanguage(req.Language), persona,
		services.GenerateOptions{TolerateTrendFailure: req.TolerateTrendFailure})
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	if err := h.History.Add(ctx, result.Scripts...); err != nil {
		h.Response.AppError(c, apperrors.WrapError(err, "保存脚本历史失败", apperrors.ErrorTypeError))
		return
	}
	h.Response.Created(c, result, fmt.Sprintf("已生成 %d 个脚本", len(result.Scripts)))
}

// AnalyzeProductURL 分析商品链接；带上 input 时返回合并后的输入
func (h *Handler) AnalyzeProductURL(c *gin.Context) {
	var req AnalyzeURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	result, err := h.Backend.AnalyzeProductURL(c.Request.Context(), req.URL, models.ParseLanguage(req.Language))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}

	data := gin.H{"analysis": result}
	if req.Input != nil {
		data["input"] = services.MergeProductAnalysis(*req.Input, result)
	}
	h.Response.Success(c, data)
}

// ========================================
// 修改
// ========================================

// ReviseScript 生成修改候选，历史中的脚本不变
func (h *Handler) ReviseScript(c *gin.Context) {
	var req ReviseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	candidate, err := h.Revision.Revise(ctx, script, req.Parts, req.Instruction,
		models.ParseLanguage(req.Language), h.personaFor(ctx, script))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Created(c, candidate, "修改候选已生成")
}

func (h *Handler) GetRevision(c *gin.Context) {
	candidate, err := h.Revision.Get(c.Param("cid"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, candidate)
}

// ApplyRevision 候选写回历史
func (h *Handler) ApplyRevision(c *gin.Context) {
	script, err := h.Revision.Apply(c.Param("cid"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	updated, err := h.History.Update(c.Request.Context(), script)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, updated, "修改已应用")
}

func (h *Handler) RegenerateRevision(c *gin.Context) {
	candidate, err := h.Revision.Regenerate(c.Request.Context(), c.Param("cid"))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, candidate, "已重新生成")
}

func (h *Handler) DiscardRevision(c *gin.Context) {
	h.Revision.Discard(c.Param("cid"))
	h.Response.Success(c, nil, "修改已放弃")
}

// GenerateVariants 为一个部分生成候选写法
func (h *Handler) GenerateVariants(c *gin.Context) {
	var req VariantsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if _, err := models.ParsePartName(string(req.Part)); err != nil {
		h.Response.BadRequest(c, err.Error())
		return
	}
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	variants, err := h.Backend.GenerateScriptPartVariants(c.Request.Context(), req.Part, script, models.ParseLanguage(req.Language))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"part": req.Part, "variants": variants})
}

func (h *Handler) ApplyVariant(c *gin.Context) {
	var req ApplyVariantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	revised, err := services.ApplyVariant(script, req.Part, req.Variant)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	updated, err := h.History.Update(c.Request.Context(), revised)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, updated, "候选已应用")
}

// GenerateAssets 生成营销素材并挂到脚本上
func (h *Handler) GenerateAssets(c *gin.Context) {
	var req LanguageRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	assets, err := h.Backend.GenerateMarketingAssets(ctx, script, models.ParseLanguage(req.Language))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	updated, err := h.History.AttachAssets(ctx, script.ID, assets)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, updated.Assets)
}

// ========================================
// 配音
// ========================================

func (h *Handler) VoiceOverDirections(c *gin.Context) {
	var req LanguageRequest
	if err := bindOptionalJSON(c, &req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	directions, err := h.VoiceOver.Directions(c.Request.Context(), script, models.ParseLanguage(req.Language))
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, directions)
}

// PreviewVoiceOver 逐句朗读，客户端断开时停止
func (h *Handler) PreviewVoiceOver(c *gin.Context) {
	var directions models.VoiceOverDirections
	if err := c.ShouldBindJSON(&directions); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if err := h.VoiceOver.Preview(c.Request.Context(), &directions); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "试听结束")
}

func (h *Handler) StopVoiceOver(c *gin.Context) {
	h.VoiceOver.Stop()
	h.Response.Success(c, nil, "已停止")
}

// ========================================
// 进度
// ========================================

// SubscribeProgress 订阅任务进度的SSE端点
func (h *Handler) SubscribeProgress(c *gin.Context) {
	taskID := c.Param("taskID")

	tracker, exists := h.Progress.GetTracker(taskID)
	if !exists {
		h.Response.NotFound(c, "任务")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	clientGone := c.Request.Context().Done()

	updateChan := tracker.Subscribe()
	defer tracker.Unsubscribe(updateChan)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	fmt.Fprintf(c.Writer, "event: connected\ndata: {\"task_id\":%q}\n\n", taskID)
	c.Writer.Flush()

	for {
		select {
		case <-clientGone:
			return
		case update, ok := <-updateChan:
			if !ok {
				return
			}
			writeProgressEvent(c, update)
			if update.IsTerminal() {
				return
			}
		case <-tracker.Done:
			for _, update := range finalUpdates(updateChan, tracker) {
				writeProgressEvent(c, update)
			}
			return
		case <-ticker.C:
			fmt.Fprintf(c.Writer, "event: heartbeat\ndata: {\"time\":%d}\n\n", time.Now().Unix())
			c.Writer.Flush()
		}
	}
}

func writeProgressEvent(c *gin.Context, update services.ProgressUpdate) {
	data, _ := json.Marshal(update)
	fmt.Fprintf(c.Writer, "event: progress\ndata: %s\n\n", string(data))
	c.Writer.Flush()
}

// ========================================
// 生成后端状态与配置
// ========================================

// GetLLMStatus 获取生成后端状态
func (h *Handler) GetLLMStatus(c *gin.Context) {
	cfg := config.GetCurrentConfig()

	ready, state := h.LLM.GetProviderStatus()
	h.Response.Success(c, gin.H{
		"ready":     ready,
		"status":    state,
		"provider":  h.LLM.GetProviderName(),
		"providers": llm.ListProviders(),
		"config": gin.H{
			"provider":       cfg.LLMProvider,
			"has_api_key":    cfg.LLMConfig["api_key"] != "",
			"has_openai_key": cfg.LLMConfig["openai_api_key"] != "",
			"model":          cfg.LLMConfig["default_model"],
		},
	})
}

// UpdateLLMConfig 保存配置并切换提供者
func (h *Handler) UpdateLLMConfig(c *gin.Context) {
	var req struct {
		Provider string            `json:"provider" binding:"required"`
		Config   map[string]string `json:"config" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	known := false
	for _, name := range llm.ListProviders() {
		if name == req.Provider {
			known = true
			break
		}
	}
	if !known {
		h.Response.Error(c, http.StatusBadRequest, ErrorLLMProviderMissing, "不支持的生成后端: "+req.Provider)
		return
	}

	// 未提交的键沿用当前配置
	merged := config.GetCurrentConfig().LLMConfig
	for k, v := range req.Config {
		merged[k] = v
	}
	if err := h.LLM.UpdateProvider(req.Provider, merged); err != nil {
		h.Response.Error(c, http.StatusBadRequest, ErrorLLMConfigInvalid, "生成后端配置无效", err.Error())
		return
	}
	if err := config.UpdateLLMConfig(req.Provider, req.Config); err != nil {
		h.Response.Error(c, http.StatusInternalServerError, ErrorInternalError,
			"生成后端已切换，但配置保存失败", err.Error())
		return
	}
	h.Response.Success(c, nil, "生成后端配置已更新")
}

// GetMetrics 进程内指标快照
func (h *Handler) GetMetrics(c *gin.Context) {
	data := h.Metrics.GetMetrics()
	if h.Streamer != nil {
		data["websocket"] = h.Streamer.GetStatus()
	}
	if h.Locks != nil {
		data["active_tasks"] = h.Locks.Active()
	}
	h.Response.Success(c, data)
}
