// internal/services/llm_service.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/Direktiva/internal/config"
	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/llm"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/utils"
	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
)

var ErrLLMNotReady = errors.New("llm service not ready")

// 追加到每个结构化请求的系统提示末尾
const structuredSuffix = "\n\nReturn your response in valid JSON format, following the provided output schema, without adding explanations or preambles."

// LLMService 提供统一的生成后端调用入口：文本、结构化 JSON、图片、视频
type LLMService struct {
	providerMutex sync.RWMutex
	provider      llm.Provider
	images        llm.ImageProvider
	clips         llm.ClipProvider
	providerName  string
	isReady       bool
	readyState    string

	validate *validator.Validate
	metrics  *utils.GenerationMetrics
	logger   *utils.Logger
}

// NewLLMService 按当前配置创建服务；未配置密钥时返回未就绪的实例而不是错误
func NewLLMService() (*LLMService, error) {
	s := createBaseLLMService()

	cfg := config.GetCurrentConfig()
	if cfg == nil || cfg.LLMProvider == "" {
		s.readyState = "LLM provider not configured"
		return s, nil
	}
	if cfg.LLMConfig["api_key"] == "" && cfg.LLMConfig["openai_api_key"] == "" {
		s.readyState = "API key not configured"
		s.logger.Warn("⚠️ 未配置生成后端密钥，生成功能不可用", map[string]interface{}{
			"provider": cfg.LLMProvider,
		})
		return s, nil
	}

	if err := s.UpdateProvider(cfg.LLMProvider, cfg.LLMConfig); err != nil {
		return s, fmt.Errorf("初始化生成后端失败: %w", err)
	}
	return s, nil
}

// NewLLMServiceWithProvider 直接注入提供者。provider 若同时实现图片/视频接口则一并使用。
func NewLLMServiceWithProvider(provider llm.Provider) *LLMService {
	s := createBaseLLMService()
	s.setProvider(provider, nil)
	return s
}

func createBaseLLMService() *LLMService {
	return &LLMService{
		readyState: "Waiting for initialization",
		validate:   validator.New(),
		metrics:    utils.NewGenerationMetrics(nil),
		logger:     utils.GetLogger(),
	}
}

// UpdateProvider 切换文本提供者。文本提供者不具备图片/视频能力时，用 google 密钥补上媒体提供者。
func (s *LLMService) UpdateProvider(providerName string, cfg map[string]string) error {
	provider, err := llm.GetProvider(providerName, cfg)
	if err != nil {
		s.providerMutex.Lock()
		s.isReady = false
		s.readyState = fmt.Sprintf("Configuration failed: %v", err)
		s.providerMutex.Unlock()
		return err
	}

	var media llm.Provider
	if _, ok := provider.(llm.ImageProvider); !ok && cfg["api_key"] != "" {
		media, err = llm.GetProvider("google", cfg)
		if err != nil {
			s.logger.Warn("⚠️ 媒体提供者初始化失败，图片与视频不可用", map[string]interface{}{"error": err.Error()})
		}
	}

	s.setProvider(provider, media)
	s.providerMutex.RLock()
	name := s.providerName
	s.providerMutex.RUnlock()
	s.logger.Info("✅ 生成后端就绪", map[string]interface{}{"provider": name})
	return nil
}

func (s *LLMService) setProvider(provider llm.Provider, media llm.Provider) {
	s.providerMutex.Lock()
	defer s.providerMutex.Unlock()

	s.provider = provider
	s.providerName = provider.GetName()
	s.images, _ = provider.(llm.ImageProvider)
	s.clips, _ = provider.(llm.ClipProvider)
	if media != nil {
		if images, ok := media.(llm.ImageProvider); ok {
			s.images = images
		}
		if clips, ok := media.(llm.ClipProvider); ok {
			s.clips = clips
		}
	}
	s.isReady = true
	s.readyState = "Ready"
}

// IsReady 服务是否可用
func (s *LLMService) IsReady() bool {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady
}

// GetProviderStatus 返回服务是否就绪以及可读描述
func (s *LLMService) GetProviderStatus() (bool, string) {
	if s == nil {
		return false, "LLM服务实例未初始化"
	}
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.provider != nil && s.isReady, s.readyState
}

// GetProviderName 当前文本提供者名称
func (s *LLMService) GetProviderName() string {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	return s.providerName
}

func (s *LLMService) current() (llm.Provider, llm.ImageProvider, llm.ClipProvider, error) {
	s.providerMutex.RLock()
	defer s.providerMutex.RUnlock()
	if s.provider == nil || !s.isReady {
		return nil, nil, nil, apperrors.NewGenerationError(s.readyState, ErrLLMNotReady)
	}
	return s.provider, s.images, s.clips, nil
}

// observe 统一归类错误并记录指标
func (s *LLMService) observe(op string, start time.Time, err error) error {
	if err != nil {
		err = llm.Classify(err, op+" 失败")
		s.metrics.RecordBackendCall(op, string(apperrors.TypeOf(err)), time.Since(start))
		return err
	}
	s.metrics.RecordBackendCall(op, "", time.Since(start))
	return nil
}

// CreateCompletion 文本生成
func (s *LLMService) CreateCompletion(ctx context.Context, op string, req llm.CompletionRequest) (string, error) {
	provider, _, _, err := s.current()
	if err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := provider.CompleteText(ctx, req)
	if err = s.observe(op, start, err); err != nil {
		return "", err
	}
	return resp.Text, nil
}

// CreateStructuredCompletion 请求 JSON 并严格解析到 out。
// out 的字段用 validate 标签声明必填项；缺失或类型不符都返回 MalformedResponseError，不做任何补全。
func (s *LLMService) CreateStructuredCompletion(ctx context.Context, op string, req llm.CompletionRequest, out any) error {
	provider, _, _, err := s.current()
	if err != nil {
		return err
	}

	req.SystemInstruction += structuredSuffix
	req.JSONResponse = true
	if req.SchemaName == "" {
		req.SchemaName = op
	}

	start := time.Now()
	resp, err := provider.CompleteText(ctx, req)
	if err = s.observe(op, start, err); err != nil {
		return err
	}

	if err := s.decodeStrict(resp.Text, out); err != nil {
		s.metrics.RecordBackendCall(op+"_parse", string(apperrors.ErrorTypeMalformedResponse), 0)
		s.logger.Warn("⚠️ 模型返回的结构化数据不合格", map[string]interface{}{
			"operation": op,
			"error":     err.Error(),
		})
		return apperrors.NewMalformedResponseError("failed to parse AI response into structured data", err)
	}
	return nil
}

func (s *LLMService) decodeStrict(raw string, out any) error {
	cleaned := cleanJSONString(raw)
	if cleaned == "" {
		return errors.New("empty response")
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("failed to parse AI response into structured data: %w", err)
	}
	if err := s.validate.Struct(out); err != nil {
		return fmt.Errorf("response is missing required fields: %w", err)
	}
	return nil
}

// ComposeImage 参考图 + 文本生成图片
func (s *LLMService) ComposeImage(ctx context.Context, op string, req llm.ImageRequest) (*models.ImageData, error) {
	_, images, _, err := s.current()
	if err != nil {
		return nil, err
	}
	if images == nil {
		return nil, apperrors.NewGenerationError("当前后端不支持图片生成", llm.ErrUnsupported)
	}

	start := time.Now()
	resp, err := images.ComposeImage(ctx, req)
	if err = s.observe(op, start, err); err != nil {
		return nil, err
	}
	return &models.ImageData{MimeType: resp.MIMEType, Data: resp.Data}, nil
}

// GenerateImage 纯文本生成图片
func (s *LLMService) GenerateImage(ctx context.Context, op string, req llm.ImageRequest) (*models.ImageData, error) {
	_, images, _, err := s.current()
	if err != nil {
		return nil, err
	}
	if images == nil {
		return nil, apperrors.NewGenerationError("当前后端不支持图片生成", llm.ErrUnsupported)
	}

	start := time.Now()
	resp, err := images.GenerateImage(ctx, req)
	if err = s.observe(op, start, err); err != nil {
		return nil, err
	}
	return &models.ImageData{MimeType: resp.MIMEType, Data: resp.Data}, nil
}

// GenerateClip 首帧图片生成视频片段，返回定位符
func (s *LLMService) GenerateClip(ctx context.Context, op string, req llm.ClipRequest) (string, error) {
	_, _, clips, err := s.current()
	if err != nil {
		return "", err
	}
	if clips == nil {
		return "", apperrors.NewGenerationError("当前后端不支持视频生成", llm.ErrUnsupported)
	}

	start := time.Now()
	uri, err := clips.GenerateClip(ctx, req)
	if err = s.observe(op, start, err); err != nil {
		return "", err
	}
	return uri, nil
}

// FetchClip 用当前视频提供者的凭证下载片段
func (s *LLMService) FetchClip(ctx context.Context, uri string) ([]byte, error) {
	_, _, clips, err := s.current()
	if err != nil {
		return nil, err
	}
	downloader, ok := clips.(llm.ClipDownloader)
	if !ok {
		return nil, apperrors.NewGenerationError("当前后端不支持下载视频片段", llm.ErrUnsupported)
	}

	start := time.Now()
	data, err := downloader.FetchClip(ctx, uri)
	if err = s.observe("fetch_clip", start, err); err != nil {
		return nil, err
	}
	return data, nil
}

// GenerateSchema 由 Go 类型生成 JSON Schema，附在结构化请求里
func GenerateSchema[T any]() interface{} {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}
