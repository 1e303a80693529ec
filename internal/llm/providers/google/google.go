// internal/llm/providers/google/google.go
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/Corphon/Direktiva/internal/llm"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			models: []string{
				"gemini-2.5-flash",
				"gemini-2.5-pro",
			},
			baseURL: defaultBaseURL,
		}
	})
}

// Provider Gemini 文本走 generative-ai-go，图片与视频走 REST
type Provider struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	models      []string
	textModel   string
	imageModel  string
	imagenModel string
	videoModel  string
	endpoint    string // genai 客户端的自定义端点，可选

	clientOnce sync.Once
	client     *genai.Client
	clientErr  error
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["api_key"]
	if apiKey == "" {
		return errors.New("google_api密钥未提供")
	}

	p.apiKey = apiKey
	p.httpClient = &http.Client{}
	p.textModel = valueOr(config["default_model"], "gemini-2.5-flash")
	p.imageModel = valueOr(config["image_model"], "gemini-2.5-flash-image-preview")
	p.imagenModel = valueOr(config["imagen_model"], "imagen-4.0-generate-001")
	p.videoModel = valueOr(config["video_model"], "veo-2.0-generate-001")
	if baseURL := config["base_url"]; baseURL != "" {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
	p.endpoint = config["endpoint"]
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}
	return nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (p *Provider) GetName() string {
	return "google gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

// genaiClient 首次使用时建立连接
func (p *Provider) genaiClient(ctx context.Context) (*genai.Client, error) {
	p.clientOnce.Do(func() {
		opts := []option.ClientOption{option.WithAPIKey(p.apiKey)}
		if p.endpoint != "" {
			opts = append(opts, option.WithEndpoint(p.endpoint))
		}
		p.client, p.clientErr = genai.NewClient(ctx, opts...)
	})
	if p.clientErr != nil {
		return nil, fmt.Errorf("创建 gemini 客户端失败: %w", p.clientErr)
	}
	return p.client, nil
}

// Close 释放 genai 连接
func (p *Provider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	client, err := p.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	modelName := valueOr(req.Model, p.textModel)
	model := client.GenerativeModel(modelName)
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}

	system := req.SystemInstruction
	if req.JSONResponse {
		model.ResponseMIMEType = "application/json"
		if req.Schema != nil {
			schemaJSON, err := json.Marshal(req.Schema)
			if err != nil {
				return nil, fmt.Errorf("序列化响应 schema 失败: %w", err)
			}
			system = strings.TrimSpace(system + "\n\nYour response MUST be a single JSON value conforming to this JSON Schema:\n" + string(schemaJSON))
		}
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	parts := make([]genai.Part, 0, len(req.Parts))
	for _, part := range req.Parts {
		if part.IsBlob() {
			parts = append(parts, genai.Blob{MIMEType: part.MIMEType, Data: part.Data})
		} else if part.Text != "" {
			parts = append(parts, genai.Text(part.Text))
		}
	}
	if len(parts) == 0 {
		return nil, errors.New("请求内容为空")
	}

	resp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("google gemini API错误: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("google gemini未返回任何结果")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}

	out := &llm.CompletionResponse{
		Text:         sb.String(),
		FinishReason: resp.Candidates[0].FinishReason.String(),
		ModelName:    modelName,
		ProviderName: p.GetName(),
	}
	if resp.UsageMetadata != nil {
		out.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}
