// internal/services/storyboard_service_test.go
package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
)

func TestAssembleUsesAnchorAsCharacterReference(t *testing.T) {
	backend := &fakeBackend{imageFromPrompt: func(_ context.Context, prompt string, productRef, characterRef *models.ImageData) (*models.ImageData, error) {
		if prompt == "close-up of a face" {
			if characterRef != nil {
				t.Errorf("锚点不应带角色参考图")
			}
			return img("anchor"), nil
		}
		if characterRef == nil || string(characterRef.Data) != "anchor" {
			t.Errorf("画面 %q 应以锚点图为角色参考", prompt)
		}
		return img(prompt), nil
	}}
	script := newTestScript(t)

	var delivered models.Storyboard
	calls := 0
	board, err := NewStoryboardService(backend, NewProgressService(), 2).Assemble(context.Background(), script, func(sb models.Storyboard) error {
		calls++
		delivered = sb
		return nil
	})
	if err != nil {
		t.Fatalf("分镜生成失败: %v", err)
	}
	for _, v := range script.AllVisualIdeas() {
		if _, ok := board.Done(v.ID); !ok {
			t.Fatalf("画面 %s 应已完成: %+v", v.ID, board[v.ID])
		}
	}
	if calls != 1 {
		t.Fatalf("onUpdate 应只在结束时调用一次，得到 %d 次", calls)
	}
	if len(delivered) != 4 {
		t.Fatalf("onUpdate 应收到完整分镜，得到 %d 项", len(delivered))
	}
	if script.Storyboard != nil {
		t.Fatalf("输入脚本不应被修改")
	}
}

func TestAssembleAnchorFailureStopsDependents(t *testing.T) {
	backend := &fakeBackend{imageFromPrompt: func(context.Context, string, *models.ImageData, *models.ImageData) (*models.ImageData, error) {
		return nil, errors.New("safety block")
	}}
	script := newTestScript(t)

	updates := 0
	board, err := NewStoryboardService(backend, nil, 4).Assemble(context.Background(), script, func(models.Storyboard) error {
		updates++
		return nil
	})
	if !apperrors.IsAnchorGenerationError(err) {
		t.Fatalf("锚点失败应返回 AnchorGenerationError，得到 %v", err)
	}
	if backend.promptCount() != 1 {
		t.Fatalf("锚点失败后不应再请求其他画面，实际 %d 次", backend.promptCount())
	}
	if board["h1"].Status != models.FrameError {
		t.Fatalf("锚点应标记为 error")
	}
	for _, id := range []string{"c1", "c2", "t1"} {
		if _, ok := board[id]; ok {
			t.Fatalf("其他画面应保持原状，%s 得到 %+v", id, board[id])
		}
	}
	if updates != 1 {
		t.Fatalf("锚点失败也应交付一次结果，实际 %d 次", updates)
	}
}

func TestAssembleDependentFailureIsIsolated(t *testing.T) {
	backend := &fakeBackend{imageFromPrompt: func(_ context.Context, prompt string, _, _ *models.ImageData) (*models.ImageData, error) {
		if prompt == "applying it at night" {
			return nil, errors.New("timeout")
		}
		return img(prompt), nil
	}}

	board, err := NewStoryboardService(backend, nil, 4).Assemble(context.Background(), newTestScript(t), nil)
	if err != nil {
		t.Fatalf("单个画面失败不应让整体失败: %v", err)
	}
	if board["c2"].Status != models.FrameError || !strings.Contains(board["c2"].Error, "timeout") {
		t.Fatalf("c2 应为 error: %+v", board["c2"])
	}
	for _, id := range []string{"h1", "c1", "t1"} {
		if _, ok := board.Done(id); !ok {
			t.Fatalf("%s 应已完成", id)
		}
	}
}

func TestAssembleReusesDoneFrames(t *testing.T) {
	backend := &fakeBackend{imageFromPrompt: func(_ context.Context, prompt string, _, characterRef *models.ImageData) (*models.ImageData, error) {
		if prompt == "close-up of a face" {
			t.Errorf("已完成的锚点不应重新生成")
		}
		if characterRef == nil || string(characterRef.Data) != "old-anchor" {
			t.Errorf("应复用已有锚点图作为参考")
		}
		return img(prompt), nil
	}}
	script := newTestScript(t)
	script.Storyboard = models.Storyboard{
		"h1": {Status: models.FrameDone, Image: img("old-anchor")},
		"c1": {Status: models.FrameDone, Image: img("old-c1")},
		"c2": {Status: models.FrameError, Error: "earlier failure"},
	}

	board, err := NewStoryboardService(backend, nil, 1).Assemble(context.Background(), script, nil)
	if err != nil {
		t.Fatalf("分镜生成失败: %v", err)
	}
	if backend.promptCount() != 2 {
		t.Fatalf("只应重新生成 c2 和 t1，实际请求 %d 次", backend.promptCount())
	}
	if got, _ := board.Done("c1"); string(got.Data) != "old-c1" {
		t.Fatalf("已完成的画面应保留原图")
	}
}

func TestAssembleConcurrentRunConflicts(t *testing.T) {
	release := make(chan struct{})
	var started int32
	backend := &fakeBackend{imageFromPrompt: func(_ context.Context, prompt string, _, _ *models.ImageData) (*models.ImageData, error) {
		atomic.AddInt32(&started, 1)
		<-release
		return img(prompt), nil
	}}
	svc := NewStoryboardService(backend, nil, 1)
	script := newTestScript(t)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Assemble(context.Background(), script, nil)
		done <- err
	}()
	for atomic.LoadInt32(&started) == 0 {
		time.Sleep(time.Millisecond)
	}

	_, err := svc.Assemble(context.Background(), script, nil)
	if !apperrors.IsConflictError(err) {
		t.Fatalf("同一脚本并发生成应返回 ConflictError，得到 %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("第一次生成失败: %v", err)
	}
}

func TestAssembleAttachesProductOnlyWhenMentioned(t *testing.T) {
	var withProduct int32
	backend := &fakeBackend{imageFromPrompt: func(_ context.Context, prompt string, productRef, _ *models.ImageData) (*models.ImageData, error) {
		if productRef != nil {
			atomic.AddInt32(&withProduct, 1)
			if prompt != "the Glow Serum bottle" {
				t.Errorf("未提到产品的画面 %q 不应附带产品图", prompt)
			}
		}
		return img(prompt), nil
	}}
	script := newTestScript(t)
	script.InputSnapshot = []byte(`{"productName":"glow serum","productImages":[{"name":"p.png","type":"image/png","data":"cHJvZHVjdA=="}]}`)

	if _, err := NewStoryboardService(backend, nil, 2).Assemble(context.Background(), script, nil); err != nil {
		t.Fatalf("分镜生成失败: %v", err)
	}
	if withProduct != 1 {
		t.Fatalf("只有一个画面提到产品，实际附带 %d 次", withProduct)
	}
}

func TestResetRemovesFrame(t *testing.T) {
	board := models.Storyboard{"h1": {Status: models.FrameDone, Image: img("a")}}
	out := NewStoryboardService(&fakeBackend{}, nil, 1).Reset(board, "h1")
	if _, ok := out["h1"]; ok {
		t.Fatalf("重置后画面应回到未开始状态")
	}
	if _, ok := board["h1"]; !ok {
		t.Fatalf("原分镜不应被修改")
	}
}

func TestAssembleWithoutHookIdeasIsolatesEveryFrame(t *testing.T) {
	backend := &fakeBackend{imageFromPrompt: func(_ context.Context, prompt string, _, characterRef *models.ImageData) (*models.ImageData, error) {
		if characterRef != nil {
			t.Errorf("开场没有画面时，画面 %q 不应带角色参考图", prompt)
		}
		if prompt == "the Glow Serum bottle" {
			return nil, errors.New("safety block")
		}
		return img(prompt), nil
	}}
	script := newTestScript(t)
	script.Hook.VisualIdeas = []models.VisualIdea{}

	board, err := NewStoryboardService(backend, nil, 2).Assemble(context.Background(), script, nil)
	if err != nil {
		t.Fatalf("单个画面失败不应中止分镜: %v", err)
	}
	if board["c1"].Status != models.FrameError {
		t.Fatalf("c1 应为 error，得到 %+v", board["c1"])
	}
	for _, id := range []string{"c2", "t1"} {
		if _, ok := board.Done(id); !ok {
			t.Fatalf("画面 %s 应独立完成，得到 %+v", id, board[id])
		}
	}
	if backend.promptCount() != 3 {
		t.Fatalf("每个画面应只请求一次，得到 %d", backend.promptCount())
	}
}
