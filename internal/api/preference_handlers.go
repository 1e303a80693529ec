// internal/api/preference_handlers.go
package api

import (
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/gin-gonic/gin"
)

type SavePresetRequest struct {
	Name      string                `json:"name" binding:"required"`
	Settings  models.PresetSettings `json:"settings"`
	Overwrite bool                  `json:"overwrite"`
}

type SaveCharacterPresetRequest struct {
	Name      string                  `json:"name" binding:"required"`
	Character models.CharacterDetails `json:"character"`
	Overwrite bool                    `json:"overwrite"`
}

// ---------------- 通用预设 ----------------

func (h *Handler) ListPresets(c *gin.Context) {
	presets, err := h.Presets.ListGeneralPresets(c.Request.Context())
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, presets)
}

// SavePreset 同名且未确认覆盖时返回 409
func (h *Handler) SavePreset(c *gin.Context) {
	var req SavePresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	preset, err := h.Presets.SaveGeneralPreset(c.Request.Context(), req.Name, req.Settings, req.Overwrite)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Created(c, preset, "预设已保存")
}

func (h *Handler) DeletePreset(c *gin.Context) {
	if err := h.Presets.DeleteGeneralPreset(c.Request.Context(), c.Param("id")); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "预设已删除")
}

// ---------------- 角色预设 ----------------

func (h *Handler) ListCharacterPresets(c *gin.Context) {
	presets, err := h.Presets.ListCharacterPresets(c.Request.Context())
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, presets)
}

func (h *Handler) SaveCharacterPreset(c *gin.Context) {
	var req SaveCharacterPresetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	preset, err := h.Presets.SaveCharacterPreset(c.Request.Context(), req.Name, req.Character, req.Overwrite)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Created(c, preset, "角色预设已保存")
}

func (h *Handler) DeleteCharacterPreset(c *gin.Context) {
	if err := h.Presets.DeleteCharacterPreset(c.Request.Context(), c.Param("id")); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "角色预设已删除")
}

// ---------------- 人设 ----------------

func (h *Handler) ListPersonas(c *gin.Context) {
	personas, err := h.Personas.List(c.Request.Context())
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, personas)
}

func (h *Handler) SavePersona(c *gin.Context) {
	var persona models.AIPersona
	if err := c.ShouldBindJSON(&persona); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	if id := c.Param("id"); id != "" {
		persona.ID = id
	}
	saved, err := h.Personas.Save(c.Request.Context(), persona)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, saved, "人设已保存")
}

func (h *Handler) DeletePersona(c *gin.Context) {
	if err := h.Personas.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "人设已删除")
}

// ---------------- 历史 ----------------

// ListHistory 空历史会写入示例脚本
func (h *Handler) ListHistory(c *gin.Context) {
	scripts, err := h.History.List(c.Request.Context())
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, scripts)
}

func (h *Handler) GetHistory(c *gin.Context) {
	script, ok := h.loadScript(c)
	if !ok {
		return
	}
	h.Response.Success(c, script)
}

// UpdateHistory 手工编辑后的脚本写回，ID 与输入快照以历史为准
func (h *Handler) UpdateHistory(c *gin.Context) {
	var script models.Script
	if err := c.ShouldBindJSON(&script); err != nil {
		h.Response.BadRequest(c, "无效的请求格式", err.Error())
		return
	}
	script.ID = c.Param("id")
	updated, err := h.History.Update(c.Request.Context(), &script)
	if err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, updated, "脚本已更新")
}

func (h *Handler) DeleteHistory(c *gin.Context) {
	if err := h.History.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.Response.AppError(c, err)
		return
	}
	h.Response.Success(c, nil, "脚本已删除")
}
