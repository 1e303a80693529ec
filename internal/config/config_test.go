// internal/config/config_test.go
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadPolicyDefaultsWhenMissing(t *testing.T) {
	policy, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("缺失的策略文件不应报错: %v", err)
	}
	if policy.Photoshoot.MinSceneSuccesses != 3 || len(policy.Photoshoot.Scenarios) != 5 {
		t.Fatalf("默认写真策略不正确: %+v", policy.Photoshoot)
	}
}

func TestLoadPolicyOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
photoshoot:
  min_scene_successes: 2
storyboard:
  concurrency: 1
video:
  poll_interval: 2s
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写入策略文件失败: %v", err)
	}

	policy, err := LoadPolicy(path)
	if err != nil {
		t.Fatalf("加载策略失败: %v", err)
	}
	if policy.Photoshoot.MinSceneSuccesses != 2 {
		t.Fatalf("阈值应被覆盖为 2，得到 %d", policy.Photoshoot.MinSceneSuccesses)
	}
	if len(policy.Photoshoot.Scenarios) != 5 {
		t.Fatalf("未配置场景时应保留默认场景")
	}
	if policy.Storyboard.Concurrency != 1 || policy.Video.PollInterval != 2*time.Second {
		t.Fatalf("覆盖值未生效: %+v", policy)
	}
}

func TestLoadPolicyRejectsImpossibleThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
photoshoot:
  min_scene_successes: 4
  scenarios:
    - name: one
      prompt: p1
    - name: two
      prompt: p2
`
	os.WriteFile(path, []byte(content), 0644)

	if _, err := LoadPolicy(path); err == nil {
		t.Fatalf("阈值大于场景数量时应报错")
	}
}

func TestInitConfigDoesNotPersistAPIKey(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GEMINI_API_KEY", "secret-key")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))

	if err := InitConfig(dir); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}

	cfg := GetCurrentConfig()
	if cfg.LLMConfig["api_key"] != "secret-key" {
		t.Fatalf("内存中的配置应包含密钥")
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("配置文件应已写入: %v", err)
	}
	var saved AppConfig
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("配置文件格式错误: %v", err)
	}
	if saved.LLMConfig["api_key"] != "" {
		t.Fatalf("密钥不应写入磁盘")
	}
}

func TestUpdateLLMConfigMergesKeys(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GEMINI_API_KEY", "secret-key")
	t.Setenv("DATA_DIR", dir)
	t.Setenv("LOG_DIR", filepath.Join(dir, "logs"))

	if err := InitConfig(dir); err != nil {
		t.Fatalf("初始化配置失败: %v", err)
	}
	before := GetCurrentConfig()

	if err := UpdateLLMConfig("gemini", map[string]string{"default_model": "gemini-2.5-pro"}); err != nil {
		t.Fatalf("更新配置失败: %v", err)
	}

	cfg := GetCurrentConfig()
	if cfg.LLMConfig["default_model"] != "gemini-2.5-pro" {
		t.Fatalf("传入的键应被更新，得到 %q", cfg.LLMConfig["default_model"])
	}
	if cfg.LLMConfig["api_key"] != "secret-key" {
		t.Fatalf("未传入的密钥不应丢失")
	}
	for k, v := range before.LLMConfig {
		if k == "default_model" {
			continue
		}
		if cfg.LLMConfig[k] != v {
			t.Fatalf("未传入的键 %s 应保留 %q，得到 %q", k, v, cfg.LLMConfig[k])
		}
	}
}
