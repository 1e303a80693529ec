// cmd/demo/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Corphon/Direktiva/internal/app"
	"github.com/Corphon/Direktiva/internal/config"
	"github.com/Corphon/Direktiva/internal/di"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/services"
	"github.com/Corphon/Direktiva/internal/utils"
)

type options struct {
	inputPath string
	language  string
	formats   string
	outDir    string
	tolerate  bool
	timeout   time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.inputPath, "input", "", "生成输入 JSON 文件（必填）")
	flag.StringVar(&opts.language, "lang", "en", "输出语言: en | id")
	flag.StringVar(&opts.formats, "format", "json,srt", "导出格式，逗号分隔: json,csv,srt,txt")
	flag.StringVar(&opts.outDir, "out", "exports", "导出目录")
	flag.BoolVar(&opts.tolerate, "tolerate-trends", false, "趋势分析失败时继续生成")
	flag.DurationVar(&opts.timeout, "timeout", 5*time.Minute, "整次运行的超时时间")
	flag.Parse()

	fmt.Println("🚀 Direktiva 脚本生成")
	fmt.Println("=================================")

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	if opts.inputPath == "" {
		return fmt.Errorf("请通过 -input 指定生成输入文件")
	}
	raw, err := os.ReadFile(opts.inputPath)
	if err != nil {
		return fmt.Errorf("读取输入文件失败: %w", err)
	}
	var input models.GenerationInput
	if err := json.Unmarshal(raw, &input); err != nil {
		return fmt.Errorf("解析输入文件失败: %w", err)
	}

	if err := initializeEnvironment(); err != nil {
		return err
	}
	defer app.Shutdown()

	container := di.GetContainer()
	generation, ok := container.Get(app.ServiceGeneration).(*services.GenerationService)
	if !ok {
		return fmt.Errorf("生成服务未初始化")
	}
	personas := container.Get(app.ServicePersona).(*services.PersonaService)
	history := container.Get(app.ServiceHistory).(*services.HistoryService)
	exporter := container.Get(app.ServiceExport).(*services.ExportService)

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	persona := personas.Resolve(ctx, input.AIPersonaID)
	lang := models.ParseLanguage(opts.language)
	fmt.Printf("🎬 正在为「%s」生成脚本（%s，人设: %s）...\n", input.ProductName, lang.Name(), persona.Name)

	start := time.Now()
	result, err := generation.Generate(ctx, input, raw, lang, persona,
		services.GenerateOptions{TolerateTrendFailure: opts.tolerate})
	if err != nil {
		return err
	}
	fmt.Printf("✅ 生成 %d 个脚本，用时 %s\n", len(result.Scripts), time.Since(start).Round(time.Millisecond))

	if err := history.Add(ctx, result.Scripts...); err != nil {
		fmt.Printf("⚠️ 写入历史失败: %v\n", err)
	}

	if err := os.MkdirAll(opts.outDir, 0755); err != nil {
		return fmt.Errorf("创建导出目录失败: %w", err)
	}

	for i := range result.Scripts {
		script := &result.Scripts[i]
		printSummary(i+1, script)
		for _, format := range splitFormats(opts.formats) {
			exported, err := exporter.Export(script, format)
			if err != nil {
				return err
			}
			path := filepath.Join(opts.outDir, fmt.Sprintf("%d_%s", i+1, exported.Filename))
			if err := os.WriteFile(path, exported.Content, 0644); err != nil {
				return fmt.Errorf("写入导出文件失败: %w", err)
			}
			fmt.Printf("   📄 %s\n", path)
		}
	}
	return nil
}

// initializeEnvironment 配置、日志与服务
func initializeEnvironment() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("加载基础配置失败: %w", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("创建目录失败 %s: %w", dir, err)
		}
	}
	if err := config.InitConfig(cfg.DataDir); err != nil {
		return fmt.Errorf("初始化配置系统失败: %w", err)
	}
	if err := app.InitLogger(cfg.LogDir); err != nil {
		log.Printf("⚠️ 无法初始化结构化日志: %v", err)
	}
	if err := app.InitServices(); err != nil {
		return fmt.Errorf("初始化服务失败: %w", err)
	}
	utils.GetLogger().Info("命令行生成启动", map[string]interface{}{"datadir": cfg.DataDir})
	return nil
}

func splitFormats(s string) []string {
	var formats []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			formats = append(formats, f)
		}
	}
	return formats
}

func printSummary(n int, script *models.Script) {
	marker := ""
	if script.IsBestOption {
		marker = " ⭐"
	}
	fmt.Printf("\n%d) %s%s  [评分 %d]\n", n, script.Title, marker, script.Score)
	fmt.Printf("   开场: %s\n", truncate(script.Hook.Dialogue, 60))
	fmt.Printf("   行动号召: %s\n", truncate(script.CTA.Dialogue, 60))
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}
