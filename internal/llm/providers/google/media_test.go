// internal/llm/providers/google/media_test.go
package google

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Corphon/Direktiva/internal/llm"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := &Provider{}
	if err := p.Initialize(map[string]string{"api_key": "k", "base_url": srv.URL}); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}
	return p
}

func TestComposeImageSendsModalitiesAndDecodesInlineData(t *testing.T) {
	png := []byte{0x89, 'P', 'N', 'G'}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.5-flash-image-preview:generateContent") {
			t.Errorf("请求路径错误: %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "k" {
			t.Errorf("缺少 API 密钥头")
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		mods := body["generationConfig"].(map[string]any)["responseModalities"].([]any)
		if len(mods) != 2 || mods[0] != "IMAGE" {
			t.Errorf("responseModalities 错误: %v", mods)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{
				"content": map[string]any{"parts": []any{
					map[string]any{"text": "here"},
					map[string]any{"inlineData": map[string]any{"mimeType": "image/png", "data": base64.StdEncoding.EncodeToString(png)}},
				}},
			}},
		})
	})

	img, err := p.ComposeImage(context.Background(), llm.ImageRequest{
		Prompt:     "place it",
		References: []llm.Part{llm.BlobPart("image/jpeg", []byte{1, 2, 3})},
	})
	if err != nil {
		t.Fatalf("合成图片失败: %v", err)
	}
	if string(img.Data) != string(png) || img.MIMEType != "image/png" {
		t.Fatalf("图片数据解码错误: %+v", img)
	}
}

func TestComposeImageWithoutInlineDataFails(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"refused"}]}}]}`))
	})

	_, err := p.ComposeImage(context.Background(), llm.ImageRequest{Prompt: "x"})
	if !errors.Is(err, llm.ErrNoImage) {
		t.Fatalf("没有图片时应返回 ErrNoImage，得到 %v", err)
	}
}

func TestGenerateImageMapsOriginalAspect(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Parameters map[string]any `json:"parameters"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Parameters["aspectRatio"] != "1:1" {
			t.Errorf("original 应映射为 1:1，得到 %v", body.Parameters["aspectRatio"])
		}
		w.Write([]byte(`{"predictions":[{"bytesBase64Encoded":"` + base64.StdEncoding.EncodeToString([]byte("jpg")) + `"}]}`))
	})

	img, err := p.GenerateImage(context.Background(), llm.ImageRequest{Prompt: "x", AspectRatio: "original"})
	if err != nil {
		t.Fatalf("文生图失败: %v", err)
	}
	if string(img.Data) != "jpg" || img.MIMEType != "image/jpeg" {
		t.Fatalf("结果错误: %+v", img)
	}
}

func TestQuotaErrorSurfacesAsStatusError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := p.GenerateImage(context.Background(), llm.ImageRequest{Prompt: "x"})
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Status != "RESOURCE_EXHAUSTED" || se.StatusCode != 429 {
		t.Fatalf("应返回带状态的 StatusError，得到 %v", err)
	}
}

func TestGenerateClipPollsOperation(t *testing.T) {
	old := PollInterval
	PollInterval = 5 * time.Millisecond
	defer func() { PollInterval = old }()

	var polls int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, ":predictLongRunning"):
			w.Write([]byte(`{"name":"operations/abc","done":false}`))
		case strings.HasSuffix(r.URL.Path, "/operations/abc"):
			if atomic.AddInt32(&polls, 1) < 2 {
				w.Write([]byte(`{"name":"operations/abc","done":false}`))
				return
			}
			w.Write([]byte(`{"name":"operations/abc","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"https://files/clip.mp4"}}]}}}`))
		default:
			t.Errorf("意外的请求: %s", r.URL.Path)
		}
	})

	uri, err := p.GenerateClip(context.Background(), llm.ClipRequest{
		Prompt: "slow dolly",
		Image:  llm.BlobPart("image/png", []byte{1}),
	})
	if err != nil {
		t.Fatalf("生成视频失败: %v", err)
	}
	if uri != "https://files/clip.mp4" {
		t.Fatalf("视频地址错误: %s", uri)
	}
	if atomic.LoadInt32(&polls) != 2 {
		t.Fatalf("应轮询两次，实际 %d", polls)
	}
}

func TestFetchClipSendsKey(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "k" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("mp4"))
	})

	data, err := p.FetchClip(context.Background(), p.baseURL+"/files/abc:download")
	if err != nil {
		t.Fatalf("下载失败: %v", err)
	}
	if string(data) != "mp4" {
		t.Fatalf("内容错误: %q", data)
	}
}
