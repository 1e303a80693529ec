// internal/services/export_service.go
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/storage"
)

// srtBlockDuration 每段台词在字幕中的固定时长
const srtBlockDuration = 4 * time.Second

var whitespaceRun = regexp.MustCompile(`\s+`)

// ExportResult 一次导出的文件
type ExportResult struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Content     []byte `json:"-"`
}

// ClipFetcher 下载视频片段
type ClipFetcher interface {
	FetchClip(ctx context.Context, uri string) ([]byte, error)
}

// ExportService 纯格式化，不访问网络（ClipsArchive 通过 ClipFetcher 取数据）
type ExportService struct{}

func NewExportService() *ExportService {
	return &ExportService{}
}

// Export 按格式导出：json、csv、srt、txt
func (s *ExportService) Export(script *models.Script, format string) (*ExportResult, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}

	switch strings.ToLower(format) {
	case "json":
		data, err := s.ExportJSON(script)
		if err != nil {
			return nil, err
		}
		return &ExportResult{Filename: ExportFilename(script.Title, "json"), ContentType: "application/json", Content: data}, nil
	case "csv":
		return &ExportResult{Filename: ExportFilename(script.Title, "csv"), ContentType: "text/csv", Content: []byte(s.ExportCSV(script))}, nil
	case "srt":
		return &ExportResult{Filename: ExportFilename(script.Title, "srt"), ContentType: "application/x-subrip", Content: []byte(s.ExportSRT(script))}, nil
	case "txt", "text":
		return &ExportResult{Filename: ExportFilename(script.Title, "txt"), ContentType: "text/plain; charset=utf-8", Content: []byte(s.PlainText(script))}, nil
	}
	return nil, apperrors.NewValidationError(fmt.Sprintf("不支持的导出格式: %s，支持的格式: json, csv, srt, txt", format), nil)
}

// ExportFilename 标题中的连续空白替换为下划线
func ExportFilename(title, ext string) string {
	base := whitespaceRun.ReplaceAllString(title, "_")
	if base == "" || base == "_" {
		base = "script"
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}

// ExportJSON 两空格缩进，可无损解析回同一个脚本
func (s *ExportService) ExportJSON(script *models.Script) ([]byte, error) {
	data, err := json.MarshalIndent(script, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化脚本失败: %w", err)
	}
	return data, nil
}

func csvQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func csvRow(partName string, scene int, part models.ScriptPart) string {
	descriptions := make([]string, len(part.VisualIdeas))
	for i, idea := range part.VisualIdeas {
		descriptions[i] = idea.Description
	}
	return strings.Join([]string{
		partName,
		strconv.Itoa(scene),
		csvQuote(strings.Join(descriptions, "; ")),
		csvQuote(part.Dialogue),
		csvQuote(part.SoundEffect),
	}, ",")
}

// ExportCSV 每个部分一行：Hook、各 Content 场景、CTA
func (s *ExportService) ExportCSV(script *models.Script) string {
	rows := []string{"Part,Scene,Visual,Dialogue,Sound Effect"}
	rows = append(rows, csvRow("Hook", 1, script.Hook))
	for i, p := range script.Content {
		scene := p.Scene
		if scene == 0 {
			scene = i + 2
		}
		rows = append(rows, csvRow("Content", scene, p))
	}
	rows = append(rows, csvRow("CTA", len(script.Content)+2, script.CTA))
	return strings.Join(rows, "\n")
}

func srtTimestamp(d time.Duration) string {
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)
	ms := int(d % time.Second / time.Millisecond)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, sec, ms)
}

// ExportSRT 有台词的部分各占一个 4 秒字幕块，编号从 1 开始
func (s *ExportService) ExportSRT(script *models.Script) string {
	var b strings.Builder
	counter := 1
	var current time.Duration

	add := func(p models.ScriptPart) {
		if p.Dialogue == "" {
			return
		}
		start := current
		current += srtBlockDuration
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", counter, srtTimestamp(start), srtTimestamp(current), p.Dialogue)
		counter++
	}

	add(script.Hook)
	for _, p := range script.Content {
		add(p)
	}
	add(script.CTA)
	return b.String()
}

// PlainText 完整脚本的纯文本形式，用于复制
func (s *ExportService) PlainText(script *models.Script) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", script.Title)

	add := func(name string, p models.ScriptPart) {
		fmt.Fprintf(&b, "--- %s ---\n", name)
		fmt.Fprintf(&b, "%s\n", p.Dialogue)
		for i, v := range p.VisualIdeas {
			fmt.Fprintf(&b, "  Visual Idea %d: %s\n", i+1, v.Description)
		}
		b.WriteString("\n")
	}

	add("HOOK", script.Hook)
	for i, c := range script.Content {
		add(fmt.Sprintf("CONTENT %d", i+1), c)
	}
	add("CTA", script.CTA)
	return b.String()
}

// StoryboardArchive 按画面顺序打包已完成的分镜图 scene_N.jpg
func (s *ExportService) StoryboardArchive(script *models.Script) (*ExportResult, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}

	var entries []storage.ArchiveEntry
	for _, idea := range script.AllVisualIdeas() {
		img, ok := script.Storyboard.Done(idea.ID)
		if !ok {
			continue
		}
		entries = append(entries, storage.ArchiveEntry{
			Name: fmt.Sprintf("scene_%d.jpg", len(entries)+1),
			Data: img.Data,
		})
	}
	if len(entries) == 0 {
		return nil, apperrors.NewValidationError("没有已完成的分镜图可以打包", nil)
	}

	data, err := storage.BuildArchive(entries)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    ExportFilename(script.Title, "") + "_storyboard.zip",
		ContentType: "application/zip",
		Content:     data,
	}, nil
}

// ClipsArchive 下载并打包全部视频片段 scene_N.mp4
func (s *ExportService) ClipsArchive(ctx context.Context, script *models.Script, fetcher ClipFetcher) (*ExportResult, error) {
	if script == nil {
		return nil, apperrors.NewValidationError("脚本不能为空", nil)
	}
	if len(script.GeneratedVideoClips) == 0 {
		return nil, apperrors.NewValidationError("脚本还没有视频片段", nil)
	}
	if fetcher == nil {
		return nil, apperrors.NewValidationError("未配置视频下载器", nil)
	}

	entries := make([]storage.ArchiveEntry, 0, len(script.GeneratedVideoClips))
	for i, uri := range script.GeneratedVideoClips {
		data, err := fetcher.FetchClip(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("下载第 %d 个视频片段失败: %w", i+1, err)
		}
		entries = append(entries, storage.ArchiveEntry{Name: fmt.Sprintf("scene_%d.mp4", i+1), Data: data})
	}

	data, err := storage.BuildArchive(entries)
	if err != nil {
		return nil, err
	}
	return &ExportResult{
		Filename:    ExportFilename(script.Title, "") + "_video_clips.zip",
		ContentType: "application/zip",
		Content:     data,
	}, nil
}
