// internal/app/app.go
package app

import (
	"fmt"
	"os"
	"sync"

	"github.com/Corphon/Direktiva/internal/config"
	"github.com/Corphon/Direktiva/internal/di"
	"github.com/Corphon/Direktiva/internal/llm/providers/google"
	"github.com/Corphon/Direktiva/internal/services"
	"github.com/Corphon/Direktiva/internal/storage"
	"github.com/Corphon/Direktiva/internal/utils"

	_ "github.com/Corphon/Direktiva/internal/llm/providers/openai"
)

// 容器中的服务名称
const (
	ServiceConfig     = "config"
	ServicePolicy     = "policy"
	ServiceStore      = "store"
	ServiceLLM        = "llm"
	ServiceBackend    = "backend"
	ServiceGeneration = "generation"
	ServiceStoryboard = "storyboard"
	ServiceRevision   = "revision"
	ServiceVideo      = "video"
	ServiceExport     = "export"
	ServicePreset     = "preset"
	ServicePersona    = "persona"
	ServiceHistory    = "history"
	ServiceVoiceOver  = "voiceover"
	ServiceProgress   = "progress"
	ServiceLocks      = "locks"
)

// App 进程级应用状态
type App struct {
	config *config.AppConfig
	mu     sync.Mutex
}

var (
	instance *App
	once     sync.Once
)

// GetApp 返回应用单例
func GetApp() *App {
	once.Do(func() {
		instance = &App{}
	})
	return instance
}

// GetConfig 返回初始化时使用的配置
func (a *App) GetConfig() *config.AppConfig {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

// GetDIContainer 返回全局容器
func GetDIContainer() *di.Container {
	return di.GetContainer()
}

// IsDebugMode 应用未初始化时视为关闭
func IsDebugMode() bool {
	cfg := GetApp().GetConfig()
	return cfg != nil && cfg.DebugMode
}

// InitLogger 把日志同时写入按日期命名的文件
func InitLogger(logDir string) error {
	if logDir == "" {
		return nil
	}
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("创建日志目录失败: %w", err)
	}
	return utils.InitLogger(utils.DailyLogFile(logDir))
}

// InitServices 按依赖顺序创建并注册所有服务。必须先调用 config.InitConfig。
func InitServices() error {
	return InitServicesWith(config.GetCurrentConfig(), nil)
}

// InitServicesWith 使用指定配置初始化；store 为 nil 时按配置打开存储后端
func InitServicesWith(cfg *config.AppConfig, store storage.KVStore) error {
	if cfg == nil {
		return fmt.Errorf("配置为空")
	}
	logger := utils.GetLogger()
	logger.SetLogLevel(utils.ParseLogLevel(cfg.LogLevel))

	app := GetApp()
	app.mu.Lock()
	app.config = cfg
	app.mu.Unlock()

	container := di.GetContainer()
	container.Register(ServiceConfig, cfg)

	// 1. 生成策略
	policy, err := config.LoadPolicy(cfg.PolicyFile)
	if err != nil {
		logger.Warn("⚠️ 策略文件无效，使用默认策略", map[string]interface{}{
			"file":  cfg.PolicyFile,
			"error": err.Error(),
		})
		policy = config.DefaultPolicy()
	}
	google.PollInterval = policy.Video.PollInterval
	container.Register(ServicePolicy, policy)

	// 2. 偏好存储
	if store == nil {
		store, err = storage.Open(cfg)
		if err != nil {
			return fmt.Errorf("打开存储后端失败: %w", err)
		}
	}
	container.Register(ServiceStore, store)

	// 3. 生成后端，未配置密钥时服务仍可启动
	llmService, err := services.NewLLMService()
	if err != nil {
		logger.Warn("⚠️ 生成后端初始化失败", map[string]interface{}{"error": err.Error()})
	}
	container.Register(ServiceLLM, llmService)

	backend := services.NewBackendClient(llmService, policy)
	container.Register(ServiceBackend, backend)

	// 4. 编排服务
	progress := services.NewProgressService()
	container.Register(ServiceProgress, progress)
	locks := services.NewLockManager()
	container.Register(ServiceLocks, locks)
	container.Register(ServiceGeneration, services.NewGenerationService(backend, cfg.GenerationTimeout))
	container.Register(ServiceStoryboard, services.NewStoryboardService(backend, progress, policy.Storyboard.Concurrency).WithLocks(locks))
	container.Register(ServiceRevision, services.NewRevisionService(backend))
	container.Register(ServiceVideo, services.NewVideoService(backend, progress).WithLocks(locks))
	container.Register(ServiceVoiceOver, services.NewVoiceOverService(backend, services.NewLogSpeaker()))
	container.Register(ServiceExport, services.NewExportService())

	// 5. 偏好
	container.Register(ServicePreset, services.NewPresetService(store))
	container.Register(ServicePersona, services.NewPersonaService(store))
	container.Register(ServiceHistory, services.NewHistoryService(store))

	logger.Info("✅ 服务注册完成", map[string]interface{}{
		"services": len(container.GetNames()),
		"store":    cfg.StoreBackend,
		"provider": cfg.LLMProvider,
	})
	return nil
}

// Shutdown 释放存储连接
func Shutdown() error {
	if store, ok := di.GetContainer().Get(ServiceStore).(storage.KVStore); ok && store != nil {
		return store.Close()
	}
	return nil
}
