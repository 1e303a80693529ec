// internal/services/store_services_test.go
package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/Corphon/Direktiva/internal/errors"
	"github.com/Corphon/Direktiva/internal/models"
	"github.com/Corphon/Direktiva/internal/storage"
)

func TestSaveGeneralPresetConflictLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	svc := NewPresetService(store)

	first, err := svc.SaveGeneralPreset(ctx, "Weekly TikTok", models.PresetSettings{Platform: "tiktok"}, false)
	if err != nil {
		t.Fatalf("保存预设失败: %v", err)
	}
	before, _ := store.Get(ctx, storage.KeyGeneralPresets)

	_, err = svc.SaveGeneralPreset(ctx, "weekly tiktok", models.PresetSettings{Platform: "shopee"}, false)
	if !apperrors.IsConflictError(err) {
		t.Fatalf("同名未确认覆盖应返回 ConflictError，得到 %v", err)
	}
	after, _ := store.Get(ctx, storage.KeyGeneralPresets)
	if !bytes.Equal(before, after) {
		t.Fatalf("冲突时存储内容不应改变")
	}

	saved, err := svc.SaveGeneralPreset(ctx, "weekly tiktok", models.PresetSettings{Platform: "shopee"}, true)
	if err != nil {
		t.Fatalf("确认覆盖失败: %v", err)
	}
	if saved.ID != first.ID {
		t.Fatalf("覆盖应保留原 ID")
	}
	list, _ := svc.ListGeneralPresets(ctx)
	if len(list) != 1 || list[0].Settings.Platform != "shopee" {
		t.Fatalf("覆盖结果错误: %+v", list)
	}
}

func TestCharacterPresetsLifecycle(t *testing.T) {
	ctx := context.Background()
	svc := NewPresetService(storage.NewMemoryStore())

	if _, err := svc.SaveCharacterPreset(ctx, " ", models.CharacterDetails{}, false); !apperrors.IsValidationError(err) {
		t.Fatalf("空名称应返回校验错误，得到 %v", err)
	}
	p, err := svc.SaveCharacterPreset(ctx, "Rina", models.CharacterDetails{Identity: models.CharacterIdentity{Name: "Rina"}}, false)
	if err != nil {
		t.Fatalf("保存角色预设失败: %v", err)
	}
	if err := svc.DeleteCharacterPreset(ctx, p.ID); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if err := svc.DeleteCharacterPreset(ctx, p.ID); !apperrors.IsNotFoundError(err) {
		t.Fatalf("重复删除应返回 NotFound，得到 %v", err)
	}
	list, _ := svc.ListCharacterPresets(ctx)
	if len(list) != 0 {
		t.Fatalf("删除后列表应为空")
	}
}

func TestPersonaDefaultIsProtected(t *testing.T) {
	ctx := context.Background()
	svc := NewPersonaService(storage.NewMemoryStore())

	if err := svc.Delete(ctx, models.DefaultPersonaID); !apperrors.IsValidationError(err) {
		t.Fatalf("默认人设不可删除，得到 %v", err)
	}
	if _, err := svc.Save(ctx, models.AIPersona{ID: models.DefaultPersonaID, Name: "x", SystemInstruction: "y"}); !apperrors.IsValidationError(err) {
		t.Fatalf("默认人设不可修改，得到 %v", err)
	}

	custom, err := svc.Save(ctx, models.AIPersona{Name: "Hype", SystemInstruction: "Be loud."})
	if err != nil {
		t.Fatalf("保存人设失败: %v", err)
	}
	list, _ := svc.List(ctx)
	if len(list) != 2 || list[0].ID != models.DefaultPersonaID || list[1].ID != custom.ID {
		t.Fatalf("列表应为默认人设在前: %+v", list)
	}

	if err := svc.Delete(ctx, custom.ID); err != nil {
		t.Fatalf("删除自定义人设失败: %v", err)
	}
	if got := svc.Resolve(ctx, custom.ID); got.ID != models.DefaultPersonaID {
		t.Fatalf("已删除的人设应回落到默认人设")
	}
}

func TestHistorySeedsExample(t *testing.T) {
	ctx := context.Background()
	svc := NewHistoryService(storage.NewMemoryStore())

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("读取历史失败: %v", err)
	}
	if len(list) != 1 || list[0].ID != models.ExampleScriptID {
		t.Fatalf("空历史应写入示例脚本: %+v", list)
	}

	if err := svc.Add(ctx, models.Script{ID: "new", Title: "New"}); err != nil {
		t.Fatalf("添加失败: %v", err)
	}
	list, _ = svc.List(ctx)
	if len(list) != 2 || list[0].ID != "new" {
		t.Fatalf("新脚本应排在最前: %+v", list)
	}

	if err := svc.Delete(ctx, "new"); err != nil {
		t.Fatalf("删除失败: %v", err)
	}
	if err := svc.Delete(ctx, models.ExampleScriptID); err != nil {
		t.Fatalf("删除示例失败: %v", err)
	}
	list, _ = svc.List(ctx)
	if len(list) != 1 || list[0].ID != models.ExampleScriptID {
		t.Fatalf("历史清空后应重新写入示例脚本")
	}
}

func TestHistoryModifyPreservesSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := NewHistoryService(storage.NewMemoryStore())
	script := *newTestScript(t)
	if err := svc.Add(ctx, script); err != nil {
		t.Fatalf("添加失败: %v", err)
	}

	updated, err := svc.Modify(ctx, script.ID, func(s *models.Script) error {
		s.ID = "hijacked"
		s.InputSnapshot = []byte(`{}`)
		s.Title = "Renamed"
		return nil
	})
	if err != nil {
		t.Fatalf("修改失败: %v", err)
	}
	if updated.ID != script.ID || string(updated.InputSnapshot) != string(script.InputSnapshot) || updated.Title != "Renamed" {
		t.Fatalf("ID 与输入快照不应被改写: %+v", updated)
	}

	if _, err := svc.AttachClips(ctx, script.ID, []string{"a", "b"}); err != nil {
		t.Fatalf("保存视频片段失败: %v", err)
	}
	got, _ := svc.Get(ctx, script.ID)
	if len(got.GeneratedVideoClips) != 2 {
		t.Fatalf("视频片段未保存")
	}
	if _, err := svc.Get(ctx, "missing"); !apperrors.IsNotFoundError(err) {
		t.Fatalf("不存在的脚本应返回 NotFound，得到 %v", err)
	}
}

// brokenStore 模拟读写都失败的存储
type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, error) { return nil, errors.New("disk gone") }
func (brokenStore) Set(context.Context, string, []byte) error   { return errors.New("disk gone") }
func (brokenStore) Delete(context.Context, string) error        { return errors.New("disk gone") }
func (brokenStore) Close() error                                { return nil }

func TestStoreFailuresAreProcessingErrors(t *testing.T) {
	ctx := context.Background()

	if _, err := NewHistoryService(brokenStore{}).List(ctx); apperrors.TypeOf(err) != apperrors.ErrorTypeError {
		t.Fatalf("历史读取失败应为处理错误，得到 %v", err)
	}
	if _, err := NewPresetService(brokenStore{}).SaveGeneralPreset(ctx, "x", models.PresetSettings{}, false); apperrors.TypeOf(err) != apperrors.ErrorTypeError {
		t.Fatalf("预设保存失败应为处理错误，得到 %v", err)
	}
	err := NewPersonaService(brokenStore{}).Delete(ctx, "p1")
	if apperrors.TypeOf(err) != apperrors.ErrorTypeError {
		t.Fatalf("人设读取失败应为处理错误，得到 %v", err)
	}
	if !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("应保留底层错误信息，得到 %v", err)
	}
}
