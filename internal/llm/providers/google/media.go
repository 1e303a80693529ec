// internal/llm/providers/google/media.go
package google

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Corphon/Direktiva/internal/llm"
)

// PollInterval 视频长任务的轮询间隔
var PollInterval = 10 * time.Second

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type restPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []restPart `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
}

// post 发送 JSON 请求，非 200 时返回 *llm.StatusError
func (p *Provider) post(ctx context.Context, url string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	return p.do(httpReq, out)
}

func (p *Provider) get(ctx context.Context, url string, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("x-goog-api-key", p.apiKey)
	return p.do(httpReq, out)
}

func (p *Provider) do(httpReq *http.Request, out any) error {
	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return err
	}

	if httpResp.StatusCode != http.StatusOK {
		var errorResp struct {
			Error struct {
				Message string `json:"message"`
				Status  string `json:"status"`
			} `json:"error"`
		}
		se := &llm.StatusError{Provider: "google gemini", StatusCode: httpResp.StatusCode, Message: string(body)}
		if json.Unmarshal(body, &errorResp) == nil && errorResp.Error.Message != "" {
			se.Message = errorResp.Error.Message
			se.Status = errorResp.Error.Status
		}
		return se
	}

	return json.Unmarshal(body, out)
}

// ComposeImage 多模态图片模型：参考图 + 文本 → 图片
func (p *Provider) ComposeImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	model := valueOr(req.Model, p.imageModel)

	parts := make([]restPart, 0, len(req.References)+1)
	for _, ref := range req.References {
		if ref.IsBlob() {
			parts = append(parts, restPart{InlineData: &inlineData{
				MimeType: ref.MIMEType,
				Data:     base64.StdEncoding.EncodeToString(ref.Data),
			}})
		} else if ref.Text != "" {
			parts = append(parts, restPart{Text: ref.Text})
		}
	}
	if req.Prompt != "" {
		parts = append(parts, restPart{Text: req.Prompt})
	}

	requestBody := map[string]any{
		"contents": []map[string]any{{"role": "user", "parts": parts}},
		"generationConfig": map[string]any{
			"responseModalities": []string{"IMAGE", "TEXT"},
		},
	}

	var response generateContentResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	if err := p.post(ctx, url, requestBody, &response); err != nil {
		return nil, err
	}

	if len(response.Candidates) == 0 {
		return nil, llm.ErrNoImage
	}
	out := &llm.ImageResponse{}
	for _, part := range response.Candidates[0].Content.Parts {
		if part.InlineData != nil && part.InlineData.Data != "" && out.Data == nil {
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("解码图片数据失败: %w", err)
			}
			out.Data = data
			out.MIMEType = valueOr(part.InlineData.MimeType, "image/png")
		} else if part.Text != "" {
			out.Text += part.Text
		}
	}
	if out.Data == nil {
		return nil, llm.ErrNoImage
	}
	return out, nil
}

// GenerateImage Imagen 文生图
func (p *Provider) GenerateImage(ctx context.Context, req llm.ImageRequest) (*llm.ImageResponse, error) {
	model := valueOr(req.Model, p.imagenModel)
	aspect := req.AspectRatio
	if aspect == "" || aspect == "original" {
		aspect = "1:1"
	}

	requestBody := map[string]any{
		"instances": []map[string]any{{"prompt": req.Prompt}},
		"parameters": map[string]any{
			"sampleCount":    1,
			"aspectRatio":    aspect,
			"outputMimeType": "image/jpeg",
		},
	}

	var response struct {
		Predictions []struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
			MimeType           string `json:"mimeType"`
		} `json:"predictions"`
	}
	url := fmt.Sprintf("%s/models/%s:predict", p.baseURL, model)
	if err := p.post(ctx, url, requestBody, &response); err != nil {
		return nil, err
	}

	if len(response.Predictions) == 0 || response.Predictions[0].BytesBase64Encoded == "" {
		return nil, llm.ErrNoImage
	}
	data, err := base64.StdEncoding.DecodeString(response.Predictions[0].BytesBase64Encoded)
	if err != nil {
		return nil, fmt.Errorf("解码图片数据失败: %w", err)
	}
	return &llm.ImageResponse{MIMEType: valueOr(response.Predictions[0].MimeType, "image/jpeg"), Data: data}, nil
}

type operation struct {
	Name  string `json:"name"`
	Done  bool   `json:"done"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Response struct {
		GenerateVideoResponse struct {
			GeneratedSamples []struct {
				Video struct {
					URI string `json:"uri"`
				} `json:"video"`
			} `json:"generatedSamples"`
		} `json:"generateVideoResponse"`
	} `json:"response"`
}

// GenerateClip Veo 首帧生成视频，轮询长任务直到完成
func (p *Provider) GenerateClip(ctx context.Context, req llm.ClipRequest) (string, error) {
	model := valueOr(req.Model, p.videoModel)

	instance := map[string]any{"prompt": req.Prompt}
	if req.Image.IsBlob() {
		instance["image"] = map[string]string{
			"bytesBase64Encoded": base64.StdEncoding.EncodeToString(req.Image.Data),
			"mimeType":           req.Image.MIMEType,
		}
	}
	parameters := map[string]any{}
	if req.AspectRatio == "9:16" || req.AspectRatio == "16:9" {
		parameters["aspectRatio"] = req.AspectRatio
	}

	var op operation
	url := fmt.Sprintf("%s/models/%s:predictLongRunning", p.baseURL, model)
	if err := p.post(ctx, url, map[string]any{"instances": []any{instance}, "parameters": parameters}, &op); err != nil {
		return "", err
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		name := op.Name
		if err := p.get(ctx, fmt.Sprintf("%s/%s", p.baseURL, name), &op); err != nil {
			return "", err
		}
		if op.Name == "" {
			op.Name = name
		}
	}

	if op.Error != nil {
		se := &llm.StatusError{Provider: "google veo", StatusCode: op.Error.Code, Message: op.Error.Message}
		// gRPC 状态码 8
		if op.Error.Code == 8 {
			se.Status = "RESOURCE_EXHAUSTED"
		}
		return "", se
	}
	samples := op.Response.GenerateVideoResponse.GeneratedSamples
	if len(samples) == 0 || samples[0].Video.URI == "" {
		return "", errors.New("google veo未返回视频")
	}
	return samples[0].Video.URI, nil
}

// FetchClip 下载 Veo 返回的视频文件
func (p *Provider) FetchClip(ctx context.Context, uri string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		return nil, &llm.StatusError{Provider: "google veo", StatusCode: httpResp.StatusCode, Message: string(body)}
	}
	return io.ReadAll(httpResp.Body)
}

var (
	_ llm.ImageProvider  = (*Provider)(nil)
	_ llm.ClipProvider   = (*Provider)(nil)
	_ llm.ClipDownloader = (*Provider)(nil)
)
