// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// 错误定义
var (
	ErrUnknownProvider = errors.New("未知的AI提供者")
	ErrNoImage         = errors.New("后端未返回图片")
	ErrUnsupported     = errors.New("该提供者不支持此能力")
)

// Part 请求中的一段内容：文本或内联二进制（图片）
type Part struct {
	Text     string `json:"text,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// TextPart 文本片段
func TextPart(s string) Part { return Part{Text: s} }

// BlobPart 内联图片
func BlobPart(mime string, data []byte) Part { return Part{MIMEType: mime, Data: data} }

// IsBlob 是否为内联数据
func (p Part) IsBlob() bool { return len(p.Data) > 0 }

// CompletionRequest 文本/JSON 生成请求
type CompletionRequest struct {
	Model             string  `json:"model,omitempty"`
	SystemInstruction string  `json:"system_instruction,omitempty"`
	Parts             []Part  `json:"parts"`
	JSONResponse      bool    `json:"json_response,omitempty"`
	Schema            any     `json:"-"` // 可选，JSON Schema（map 或 *jsonschema.Schema）
	SchemaName        string  `json:"schema_name,omitempty"`
	Temperature       float32 `json:"temperature,omitempty"`
	MaxTokens         int     `json:"max_tokens,omitempty"`
}

// CompletionResponse 文本生成结果
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	PromptTokens int    `json:"prompt_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// Provider 所有文本生成提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	GetName() string

	GetSupportedModels() []string

	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ImageRequest 图片生成请求。References 非空时走多模态编辑模型，否则走文生图模型。
type ImageRequest struct {
	Model       string `json:"model,omitempty"`
	Prompt      string `json:"prompt"`
	References  []Part `json:"-"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// ImageResponse 生成的图片
type ImageResponse struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
	Text     string `json:"text,omitempty"`
}

// ImageProvider 图片能力
type ImageProvider interface {
	// ComposeImage 以参考图 + 文本生成新图（编辑/合成）
	ComposeImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)
	// GenerateImage 纯文本生成图片
	GenerateImage(ctx context.Context, req ImageRequest) (*ImageResponse, error)
}

// ClipRequest 由首帧图片生成短视频
type ClipRequest struct {
	Model       string `json:"model,omitempty"`
	Prompt      string `json:"prompt"`
	Image       Part   `json:"-"`
	AspectRatio string `json:"aspect_ratio,omitempty"`
}

// ClipProvider 视频能力，返回视频片段的定位符（URI）
type ClipProvider interface {
	GenerateClip(ctx context.Context, req ClipRequest) (string, error)
}

// ClipDownloader 按 URI 下载视频片段内容（URI 通常需要同一凭证）
type ClipDownloader interface {
	FetchClip(ctx context.Context, uri string) ([]byte, error)
}

// ProviderFactory 提供者工厂
type ProviderFactory func() Provider

var (
	providersMu sync.RWMutex
	providers   = make(map[string]ProviderFactory)
)

// Register 注册提供者工厂，通常在 init 中调用
func Register(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// GetProvider 创建并初始化指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	providersMu.RLock()
	factory, exists := providers[name]
	providersMu.RUnlock()
	if !exists {
		return nil, errors.New("未知的提供者: " + name)
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}
	return provider, nil
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
