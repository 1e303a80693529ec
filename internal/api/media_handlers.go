// internal/api/media_handlers.go
package api

import (
	"context"
	"fmt"
	"net/http"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/services"
	"github.com/gin-gonic/gin"
)

type EditImageRequest struct {
	Base         models.ImageData `json:"base" binding:"required"`
	Replacement  models.ImageData `json:"replacement" binding:"required"`
	Instructions string           `json:"instructions"`
	AspectRatio  string           `json:"aspectRatio"`
}

type GenerateImageRequest struct {
	Prompt       string            `json:"prompt" binding:"required"`
	AspectRatio  string            `json:"aspectRatio"`
	ProductRef   *models.ImageData `json:"productRef"`
	CharacterRef *models.ImageData `json:"characterRef"`
}

// ========================================
// 分镜
// ========================================

// AssembleStoryboard 生成分镜，整批结束后一次性写回历史；中间状态只通过进度推送。
// 锚点失败时分镜同样写回，响应为错误。
func (h *Handler) AssembleStoryboard(c *gin.Context) {
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	persist := context.WithoutCancel(ctx)
	board, err := h.Storyboard.Assemble(ctx, script, func(board models.Storyboard) error {
		_, err := h.History.AttachStoryboard(persist, script.ID, board)
		return err
	})
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{
		"script_id":  script.ID,
		"storyboard": board,
		"task_id":    services.StoryboardTaskID(script.ID),
	})
}

// ResetStoryboardFrame 清除一帧以便重新生成
func (h *Handler) ResetStoryboardFrame(c *gin.Context) {
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	board := h.Storyboard.Reset(script.Storyboard, c.Param("ideaId"))
	updated, err := h.History.AttachStoryboard(c.Request.Context(), script.ID, board)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, updated.Storyboard)
}

// ========================================
// 视频
// ========================================

// GenerateVideo 由完整分镜逐场景生成视频，全部成功后写回历史
func (h *Handler) GenerateVideo(c *gin.Context) {
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	clips, err := h.Video.GenerateFromStoryboard(ctx, script, func(clips []string) error {
		_, err := h.History.AttachClips(context.WithoutCancel(ctx), script.ID, clips)
		return err
	})
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{
		"script_id": script.ID,
		"clips":     clips,
		"task_id":   services.VideoTaskID(script.ID),
	})
}

// ========================================
// 图片
// ========================================

// GetPhotoshootStyles 写真风格与画幅
func (h *Handler) GetPhotoshootStyles(c *gin.Context) {
	h.Response.Success(c, gin.H{
		"styles":        services.PhotoshootStyles,
		"aspect_ratios": services.PhotoshootAspectRatios,
	})
}

// Photoshoot 两阶段产品写真
func (h *Handler) Photoshoot(c *gin.Context) {
	var req services.PhotoshootRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	images, err := h.Backend.GenerateProductPhoto(c.Request.Context(), req)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, gin.H{"images": images, "count": len(images)})
}

// EditImage 把图中产品替换为新产品
func (h *Handler) EditImage(c *gin.Context) {
	var req EditImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if len(req.Base.Data) == 0 || len(req.Replacement.Data) == 0 {
		h.Response.AppError(c, apperrors.NewValidationError("原图和替换产品图都不能为空", nil))
		return
	}

	image, err := h.Backend.EditProductInImage(c.Request.Context(), req.Base, req.Replacement, req.Instructions, req.AspectRatio)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, image)
}

func (h *Handler) GenerateImage(c *gin.Context) {
	var req GenerateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}

	image, err := h.Backend.GenerateImageFromPrompt(c.Request.Context(), req.Prompt, req.AspectRatio, req.ProductRef, req.CharacterRef)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, image)
}

// ========================================
// 导出
// ========================================

// ExportScript ?format=json|csv|srt|txt，以附件下载
func (h *Handler) ExportScript(c *gin.Context) {
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	result, err := h.Export.Export(script, c.DefaultQuery("format", "json"))
	if err != nil {
		if apperrors.IsValidationError(err) {
			h.Response.Error(c, http.StatusBadRequest, ErrorExportFormatInvalid, err.Error())
			return
		}
		h.Response.Error(c, http.StatusInternalServerError, ErrorExportFailed, "导出失败", err.Error())
		return
	}
	h.Response.DownloadResponse(c, result)
}

// ExportStoryboardArchive 已完成的分镜图打包下载
func (h *Handler) ExportStoryboardArchive(c *gin.Context) {
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	result, err := h.Export.StoryboardArchive(script)
	if err != nil {
		h.exportError(c, err)
		return
	}
	h.Response.DownloadResponse(c, result)
}

// ExportClipsArchive 下载全部视频片段并打包
func (h *Handler) ExportClipsArchive(c *gin.Context) {
	script, ok := h.loadScript(c)
	if !ok {
		return
	}

	result, err := h.Export.ClipsArchive(c.Request.Context(), script, h.Clips)
	if err != nil {
		h.exportError(c, err)
		return
	}
	h.Response.DownloadResponse(c, result)
}

func (h *Handler) exportError(c *gin.Context, err error) {
	if apperrors.IsValidationError(err) {
		h.Response.Error(c, http.StatusBadRequest, ErrorExportDataEmpty, err.Error())
		return
	}
	h.Response.Error(c, http.StatusBadGateway, ErrorExportFailed, fmt.Sprintf("打包失败: %v", err))
}
