// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Corphon/Direktiva/internal/api"
	"github.com/Corphon/Direktiva/internal/app"
	"github.com/Corphon/Direktiva/internal/config"
	"github.com/Corphon/Direktiva/internal/di"
	"github.com/Corphon/Direktiva/internal/services"
	"github.com/gin-gonic/gin"
)

func main() {
	log.Println("🚀 启动 Direktiva 服务器...")

	// 1. 首先加载基础配置
	baseConfig, err := config.Load()
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	log.Printf("✅ 基础配置加载完成，端口: %s", baseConfig.Port)

	// 2. 创建必要的目录
	createDirectories(baseConfig)
	log.Println("✅ 目录结构创建完成")

	// 3. 初始化配置系统
	if err := config.InitConfig(baseConfig.DataDir); err != nil {
		log.Fatalf("初始化配置系统失败: %v", err)
	}
	log.Println("✅ 配置系统初始化完成")

	// 4. 结构化日志
	if err := app.InitLogger(baseConfig.LogDir); err != nil {
		log.Printf("⚠️ 无法初始化结构化日志: %v", err)
	}

	// 5. 初始化所有服务（按依赖顺序）
	if err := app.InitServices(); err != nil {
		log.Fatalf("初始化服务失败: %v", err)
	}
	log.Printf("✅ 所有服务初始化完成，服务数量: %d", len(di.GetContainer().GetNames()))

	if err := performHealthCheck(); err != nil {
		log.Printf("⚠️ 服务健康检查警告: %v", err)
	}

	// 6. 设置路由（只获取服务，不创建）
	router, err := api.SetupRouter()
	if err != nil {
		log.Fatalf("❌ 设置路由失败: %v", err)
	}
	log.Println("✅ 路由设置完成")

	stopJanitor := startTaskJanitor(10*time.Minute, 30*time.Minute)
	defer stopJanitor()

	log.Printf("🌐 服务器启动在端口 %s", baseConfig.Port)
	log.Printf("🔗 健康检查: http://localhost:%s/health", baseConfig.Port)

	runWithGracefulShutdown(router, baseConfig.Port)
}

// 检查关键服务是否已注册
func performHealthCheck() error {
	container := di.GetContainer()
	critical := []string{app.ServiceConfig, app.ServiceLLM, app.ServiceGeneration, app.ServiceHistory}
	for _, name := range critical {
		if container.Get(name) == nil {
			return &missingServiceError{name: name}
		}
	}
	log.Println("✅ 服务健康检查通过")
	return nil
}

type missingServiceError struct{ name string }

func (e *missingServiceError) Error() string { return "关键服务未注册: " + e.name }

// startTaskJanitor 定期清理已结束的进度任务
func startTaskJanitor(every, maxAge time.Duration) func() {
	progress, err := di.Resolve[*services.ProgressService](di.GetContainer(), app.ServiceProgress)
	if err != nil {
		log.Printf("⚠️ 进度服务不可用，跳过任务清理: %v", err)
		return func() {}
	}

	ticker := time.NewTicker(every)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				progress.CleanupCompletedTasks(maxAge)
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// runWithGracefulShutdown 阻塞直到收到退出信号
func runWithGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 正在关闭服务器...")

	// 视频生成可能持续较久，给在途请求留出时间
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("❌ 服务器强制关闭: %v", err)
	}
	if err := app.Shutdown(); err != nil {
		log.Printf("⚠️ 关闭存储失败: %v", err)
	}

	log.Println("✅ 服务器优雅关闭完成")
}

// createDirectories 创建应用所需的目录结构
func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "preferences"),
		filepath.Join(cfg.DataDir, "exports"),
		cfg.LogDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}
}
