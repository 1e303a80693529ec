// internal/llm/providers/openai/openai_test.go
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Corphon/Direktiva/internal/llm"
)

func TestCompleteTextSendsSchemaAndSystemMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("请求路径错误: %s", r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)

		messages := body["messages"].([]any)
		if len(messages) != 2 || messages[0].(map[string]any)["role"] != "system" {
			t.Errorf("应先发送 system 消息: %v", messages)
		}
		format := body["response_format"].(map[string]any)
		if format["type"] != "json_schema" {
			t.Errorf("应使用 json_schema 响应格式: %v", format)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"ok\":true}"}}],
			"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`))
	}))
	defer srv.Close()

	p := &Provider{}
	if err := p.Initialize(map[string]string{"openai_api_key": "k", "base_url": srv.URL}); err != nil {
		t.Fatalf("初始化失败: %v", err)
	}

	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{
		SystemInstruction: "be brief",
		Parts:             []llm.Part{llm.TextPart("hello")},
		JSONResponse:      true,
		Schema:            map[string]any{"type": "object"},
		SchemaName:        "test",
	})
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	if resp.Text != `{"ok":true}` || resp.OutputTokens != 2 {
		t.Fatalf("响应解析错误: %+v", resp)
	}
}

func TestCompleteTextRejectsImages(t *testing.T) {
	p := &Provider{}
	p.Initialize(map[string]string{"openai_api_key": "k"})

	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{
		Parts: []llm.Part{llm.BlobPart("image/png", []byte{1})},
	})
	if !errors.Is(err, llm.ErrUnsupported) {
		t.Fatalf("内联图片应返回 ErrUnsupported，得到 %v", err)
	}
}
