// internal/api/router.go
package api

import (
	"fmt"

	"github.com/Corphon/Direktiva/internal/app"
	"github.com/Corphon/Direktiva/internal/config"
	"github.com/Corphon/Direktiva/internal/di"
	"github.com/Corphon/Direktiva/internal/services"
	"github.com/Corphon/Direktiva/internal/utils"
	"github.com/gin-gonic/gin"
)

// lookup 从容器中取出指定类型的服务
func lookup[T any](container *di.Container, name, label string) (T, error) {
	service, err := di.Resolve[T](container, name)
	if err != nil {
		return service, fmt.Errorf("%s未正确初始化: %w", label, err)
	}
	return service, nil
}

// NewHandlerFromContainer 只从容器获取服务，不创建新实例
func NewHandlerFromContainer(container *di.Container) (*Handler, error) {
	h := &Handler{Response: NewResponseHelper(), Metrics: utils.GetMetricsCollector()}
	var err error

	if h.Generation, err = lookup[*services.GenerationService](container, app.ServiceGeneration, "生成服务"); err != nil {
		return nil, err
	}
	if h.Storyboard, err = lookup[*services.StoryboardService](container, app.ServiceStoryboard, "分镜服务"); err != nil {
		return nil, err
	}
	if h.Revision, err = lookup[*services.RevisionService](container, app.ServiceRevision, "修改服务"); err != nil {
		return nil, err
	}
	if h.Video, err = lookup[*services.VideoService](container, app.ServiceVideo, "视频服务"); err != nil {
		return nil, err
	}
	if h.VoiceOver, err = lookup[*services.VoiceOverService](container, app.ServiceVoiceOver, "配音服务"); err != nil {
		return nil, err
	}
	if h.Backend, err = lookup[services.Backend](container, app.ServiceBackend, "生成后端"); err != nil {
		return nil, err
	}
	if h.Presets, err = lookup[*services.PresetService](container, app.ServicePreset, "预设服务"); err != nil {
		return nil, err
	}
	if h.Personas, err = lookup[*services.PersonaService](container, app.ServicePersona, "人设服务"); err != nil {
		return nil, err
	}
	if h.History, err = lookup[*services.HistoryService](container, app.ServiceHistory, "历史服务"); err != nil {
		return nil, err
	}
	if h.Export, err = lookup[*services.ExportService](container, app.ServiceExport, "导出服务"); err != nil {
		return nil, err
	}
	if h.Progress, err = lookup[*services.ProgressService](container, app.ServiceProgress, "进度服务"); err != nil {
		return nil, err
	}
	if h.LLM, err = lookup[*services.LLMService](container, app.ServiceLLM, "LLM服务"); err != nil {
		return nil, err
	}
	if h.Locks, err = lookup[*services.LockManager](container, app.ServiceLocks, "任务登记表"); err != nil {
		return nil, err
	}
	h.Clips = h.LLM
	h.Streamer = NewProgressStreamer(h.Progress)
	return h, nil
}

// SetupRouter 配置HTTP路由
func SetupRouter() (*gin.Engine, error) {
	handler, err := NewHandlerFromContainer(di.GetContainer())
	if err != nil {
		return nil, err
	}
	return NewRouter(handler, config.GetCurrentConfig().DebugMode), nil
}

// NewRouter 注册全部路由
func NewRouter(handler *Handler, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(MetricsMiddleware(utils.NewGenerationMetrics(handler.Metrics)))

	limiter := NewRateLimiter()
	generation := GenerationRateLimit(limiter)

	r.GET("/health", handler.Health)

	// WebSocket 进度推送
	r.GET("/ws/storyboard/:id", handler.Streamer.StoryboardWebSocket)
	r.GET("/ws/video/:id", handler.Streamer.VideoWebSocket)

	api := r.Group("/api")
	api.Use(DefaultRateLimit(limiter))
	{
		// ===============================
		// 生成
		// ===============================
		api.POST("/generate", generation, handler.Generate)
		api.POST("/analyze-url", generation, handler.AnalyzeProductURL)

		// ===============================
		// 脚本相关路由
		// ===============================
		scripts := api.Group("/scripts/:id")
		{
			scripts.POST("/revise", generation, handler.ReviseScript)
			scripts.POST("/variants", generation, handler.GenerateVariants)
			scripts.POST("/variants/apply", handler.ApplyVariant)
			scripts.POST("/assets", generation, handler.GenerateAssets)
			scripts.POST("/voiceover", generation, handler.VoiceOverDirections)

			scripts.POST("/storyboard", generation, handler.AssembleStoryboard)
			scripts.POST("/storyboard/:ideaId/reset", handler.ResetStoryboardFrame)
			scripts.POST("/video", generation, handler.GenerateVideo)

			scripts.GET("/export", handler.ExportScript)
			scripts.GET("/archive/storyboard", handler.ExportStoryboardArchive)
			scripts.GET("/archive/clips", handler.ExportClipsArchive)
		}

		// ===============================
		// 修改候选
		// ===============================
		revisions := api.Group("/revisions/:cid")
		{
			revisions.GET("", handler.GetRevision)
			revisions.POST("/apply", handler.ApplyRevision)
			revisions.POST("/regenerate", generation, handler.RegenerateRevision)
			revisions.DELETE("", handler.DiscardRevision)
		}

		// ===============================
		// 图片
		// ===============================
		api.GET("/photoshoot/styles", handler.GetPhotoshootStyles)
		api.POST("/photoshoot", generation, handler.Photoshoot)
		api.POST("/images/edit", generation, handler.EditImage)
		api.POST("/images/generate", generation, handler.GenerateImage)

		// ===============================
		// 配音试听
		// ===============================
		api.POST("/voiceover/preview", handler.PreviewVoiceOver)
		api.POST("/voiceover/stop", handler.StopVoiceOver)

		// ===============================
		// 偏好与历史
		// ===============================
		presets := api.Group("/presets")
		{
			presets.GET("", handler.ListPresets)
			presets.POST("", handler.SavePreset)
			presets.DELETE("/:id", handler.DeletePreset)
		}

		characterPresets := api.Group("/character-presets")
		{
			characterPresets.GET("", handler.ListCharacterPresets)
			characterPresets.POST("", handler.SaveCharacterPreset)
			characterPresets.DELETE("/:id", handler.DeleteCharacterPreset)
		}

		personas := api.Group("/personas")
		{
			personas.GET("", handler.ListPersonas)
			personas.POST("", handler.SavePersona)
			personas.PUT("/:id", handler.SavePersona)
			personas.DELETE("/:id", handler.DeletePersona)
		}

		history := api.Group("/history")
		{
			history.GET("", handler.ListHistory)
			history.GET("/:id", handler.GetHistory)
			history.PUT("/:id", handler.UpdateHistory)
			history.DELETE("/:id", handler.DeleteHistory)
		}

		// ===============================
		// 进度、状态与配置
		// ===============================
		api.GET("/progress/:taskID", handler.SubscribeProgress)
		api.GET("/metrics", handler.GetMetrics)

		llmGroup := api.Group("/llm")
		{
			llmGroup.GET("/status", handler.GetLLMStatus)
			llmGroup.PUT("/config", handler.UpdateLLMConfig)
		}
	}

	return r
}
