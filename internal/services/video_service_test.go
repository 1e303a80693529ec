// internal/services/video_service_test.go
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/llm"
	"github.com/Corphon/Direktiva/internal/models"
)

func fullStoryboard(s *models.Script) models.Storyboard {
	board := models.Storyboard{}
	for _, v := range s.AllVisualIdeas() {
		board[v.ID] = models.StoryboardFrame{Status: models.FrameDone, Image: img(v.ID)}
	}
	return board
}

func TestVideoRequiresCompleteStoryboard(t *testing.T) {
	script := newTestScript(t)
	script.Storyboard = fullStoryboard(script)
	delete(script.Storyboard, "c2")

	_, err := NewVideoService(&fakeBackend{}, nil).GenerateFromStoryboard(context.Background(), script, nil)
	if !apperrors.IsValidationError(err) || !strings.Contains(err.Error(), "1/4 missing") {
		t.Fatalf("分镜不完整应返回校验错误，得到 %v", err)
	}
}

func TestVideoGeneratesInOrder(t *testing.T) {
	script := newTestScript(t)
	script.Storyboard = fullStoryboard(script)
	backend := &fakeBackend{videoClip: func(_ context.Context, image models.ImageData, motion string) (string, error) {
		if motion != "pan "+string(image.Data) {
			t.Errorf("首帧与动作提示不匹配: %s / %s", image.Data, motion)
		}
		return "uri-" + string(image.Data), nil
	}}

	var delivered []string
	progress := NewProgressService()
	clips, err := NewVideoService(backend, progress).GenerateFromStoryboard(context.Background(), script, func(c []string) error {
		delivered = c
		return nil
	})
	if err != nil {
		t.Fatalf("生成视频失败: %v", err)
	}
	want := []string{"uri-h1", "uri-c1", "uri-c2", "uri-t1"}
	if strings.Join(clips, ",") != strings.Join(want, ",") || len(delivered) != 4 {
		t.Fatalf("片段顺序错误: %v", clips)
	}
	tracker, ok := progress.GetTracker(VideoTaskID(script.ID))
	if !ok || tracker.Status != TaskCompleted {
		t.Fatalf("进度应标记为完成")
	}
}

func TestVideoSceneErrorCarriesIndex(t *testing.T) {
	script := newTestScript(t)
	script.Storyboard = fullStoryboard(script)
	calls := 0
	backend := &fakeBackend{videoClip: func(context.Context, models.ImageData, string) (string, error) {
		calls++
		if calls == 3 {
			return "", errors.New("render failed")
		}
		return "uri", nil
	}}

	updated := false
	_, err := NewVideoService(backend, nil).GenerateFromStoryboard(context.Background(), script, func([]string) error {
		updated = true
		return nil
	})
	scene, ok := apperrors.SceneOf(err)
	if !ok || scene != 3 {
		t.Fatalf("应返回第 3 个场景的错误，得到 %v", err)
	}
	if calls != 3 || updated {
		t.Fatalf("失败后应停止且不交付结果")
	}
}

func TestVideoQuotaNamesScene(t *testing.T) {
	script := newTestScript(t)
	script.Storyboard = fullStoryboard(script)
	backend := &fakeBackend{videoClip: func(context.Context, models.ImageData, string) (string, error) {
		return "", ClassifyBackendError(&llm.StatusError{Provider: "veo", StatusCode: http.StatusTooManyRequests})
	}}

	_, err := NewVideoService(backend, nil).GenerateFromStoryboard(context.Background(), script, nil)
	if !apperrors.IsQuotaExceededError(err) || !strings.Contains(err.Error(), "第 1 个场景") {
		t.Fatalf("配额错误应指明场景，得到 %v", err)
	}
}
