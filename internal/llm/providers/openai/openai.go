// internal/llm/providers/openai/openai.go
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Corphon/Direktiva/internal/llm"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

func init() {
	llm.Register("openai", func() llm.Provider {
		return &Provider{
			models: []string{
				openai.ChatModelGPT4oMini,
				openai.ChatModelGPT4o,
			},
		}
	})
}

// Provider 只提供文本/JSON 生成；图片与视频仍需 google 提供者
type Provider struct {
	client       openai.Client
	defaultModel string
	models       []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey := config["openai_api_key"]
	if apiKey == "" {
		apiKey = config["api_key"]
	}
	if apiKey == "" {
		return errors.New("openai_api密钥未提供")
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL := config["base_url"]; baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	p.client = openai.NewClient(opts...)

	p.defaultModel = openai.ChatModelGPT4oMini
	if model := config["openai_model"]; model != "" {
		p.defaultModel = model
	}
	return nil
}

func (p *Provider) GetName() string {
	return "openai"
}

func (p *Provider) GetSupportedModels() []string {
	return p.models
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := p.defaultModel
	// gemini 模型名对 openai 无意义
	if req.Model != "" && !strings.HasPrefix(req.Model, "gemini") {
		model = req.Model
	}

	var text strings.Builder
	for _, part := range req.Parts {
		if part.IsBlob() {
			return nil, fmt.Errorf("openai 提供者不支持内联图片: %w", llm.ErrUnsupported)
		}
		text.WriteString(part.Text)
		text.WriteString("\n")
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemInstruction != "" {
		messages = append(messages, openai.SystemMessage(req.SystemInstruction))
	}
	messages = append(messages, openai.UserMessage(strings.TrimSpace(text.String())))

	params := openai.ChatCompletionNewParams{
		Messages: messages,
		Model:    model,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	if req.JSONResponse {
		if req.Schema != nil {
			name := req.SchemaName
			if name == "" {
				name = "structured_response"
			}
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
					JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:        name,
						Description: openai.String("Structured data response"),
						Schema:      req.Schema,
					},
				},
			}
		} else {
			params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
			}
		}
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("no response from OpenAI")
	}

	return &llm.CompletionResponse{
		Text:         completion.Choices[0].Message.Content,
		FinishReason: completion.Choices[0].FinishReason,
		PromptTokens: int(completion.Usage.PromptTokens),
		OutputTokens: int(completion.Usage.CompletionTokens),
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}
