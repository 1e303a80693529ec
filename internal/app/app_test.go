// internal/app/app_test.go
package app

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Corphon/Direktiva/internal/config"
	"github.com/Corphon/Direktiva/internal/di"
	"github.com/Corphon/Direktiva/internal/services"
	"github.com/Corphon/Direktiva/internal/storage"
)

// 测试前的设置工作：环境变量指向临时目录，清空密钥
func setupTest(t *testing.T) string {
	tempDir := t.TempDir()
	t.Setenv("DATA_DIR", filepath.Join(tempDir, "data"))
	t.Setenv("LOG_DIR", filepath.Join(tempDir, "logs"))
	t.Setenv("POLICY_FILE", filepath.Join(tempDir, "policy.yaml"))
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	di.GetContainer().Clear()
	t.Cleanup(func() { di.GetContainer().Clear() })
	return tempDir
}

func TestGetAppSingleton(t *testing.T) {
	if GetApp() != GetApp() {
		t.Fatal("GetApp应该返回相同的实例")
	}
	if GetDIContainer() != di.GetContainer() {
		t.Fatal("应该返回相同的DI容器实例")
	}
}

func TestInitServicesRegistersEverything(t *testing.T) {
	tempDir := setupTest(t)
	if err := config.InitConfig(tempDir); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	if err := InitServices(); err != nil {
		t.Fatalf("初始化服务失败: %v", err)
	}

	container := di.GetContainer()
	for _, name := range []string{
		ServiceConfig, ServicePolicy, ServiceStore, ServiceLLM, ServiceBackend,
		ServiceGeneration, ServiceStoryboard, ServiceRevision, ServiceVideo,
		ServiceExport, ServicePreset, ServicePersona, ServiceHistory,
		ServiceVoiceOver, ServiceProgress, ServiceLocks,
	} {
		if !container.Has(name) {
			t.Errorf("服务 %s 应该已被注册", name)
		}
	}

	llmService, ok := container.Get(ServiceLLM).(*services.LLMService)
	if !ok {
		t.Fatal("llm 服务类型错误")
	}
	if llmService.IsReady() {
		t.Error("未配置密钥时生成后端不应就绪")
	}
	if _, ok := container.Get(ServiceStore).(*storage.MemoryStore); !ok {
		t.Error("STORE_BACKEND=memory 时应使用内存存储")
	}

	if _, err := os.Stat(filepath.Join(tempDir, "config.json")); err != nil {
		t.Errorf("配置文件应该已被创建: %v", err)
	}
	if err := Shutdown(); err != nil {
		t.Errorf("关闭存储失败: %v", err)
	}
}

func TestInitServicesWithInjectedStore(t *testing.T) {
	setupTest(t)
	store := storage.NewMemoryStore()

	cfg := &config.AppConfig{DebugMode: true, LogLevel: "debug"}
	if err := InitServicesWith(cfg, store); err != nil {
		t.Fatalf("初始化服务失败: %v", err)
	}
	if di.GetContainer().Get(ServiceStore) != storage.KVStore(store) {
		t.Error("应使用注入的存储")
	}
	if !IsDebugMode() {
		t.Error("调试模式开启时IsDebugMode应该返回true")
	}
	if GetApp().GetConfig() != cfg {
		t.Error("GetConfig应该返回初始化使用的配置")
	}
}

func TestInitServicesRejectsNilConfig(t *testing.T) {
	if err := InitServicesWith(nil, nil); err == nil {
		t.Fatal("配置为空时应返回错误")
	}
}

func TestInitLogger(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "custom_logs")
	if err := InitLogger(logDir); err != nil {
		t.Fatalf("初始化日志系统失败: %v", err)
	}
	files, _ := os.ReadDir(logDir)
	if len(files) == 0 {
		t.Error("应该已创建日志文件")
	}
}
