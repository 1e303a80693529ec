// internal/config/policy.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario 写真第二阶段的一个场景
type Scenario struct {
	Name   string `yaml:"name" json:"name"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

type PhotoshootPolicy struct {
	// MinSceneSuccesses 少于该数量的场景成功时整体失败
	MinSceneSuccesses int        `yaml:"min_scene_successes"`
	DefaultStyle      string     `yaml:"default_style"`
	Scenarios         []Scenario `yaml:"scenarios"`
}

type StoryboardPolicy struct {
	// Concurrency 锚点之后的并发上限
	Concurrency int `yaml:"concurrency"`
}

type VideoPolicy struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxWait      time.Duration `yaml:"max_wait"`
}

// Policy 生成策略，来自 policy.yaml，缺省项使用内置默认值
type Policy struct {
	Photoshoot PhotoshootPolicy `yaml:"photoshoot"`
	Storyboard StoryboardPolicy `yaml:"storyboard"`
	Video      VideoPolicy      `yaml:"video"`
}

// DefaultPolicy 内置默认策略
func DefaultPolicy() Policy {
	return Policy{
		Photoshoot: PhotoshootPolicy{
			MinSceneSuccesses: 3,
			DefaultStyle:      "The final images must be ultra-photorealistic, indistinguishable from a professional photograph from a high-end brand campaign.",
			Scenarios: []Scenario{
				{Name: "Street Style", Prompt: "A full-length shot of the model walking confidently on a modern city street, blurred background of shops and palm trees. The mood is chic and bright."},
				{Name: "Cafe Lifestyle", Prompt: "A medium shot of the model sitting in a bright, modern cafe by a large window, holding a coffee cup and smiling gently, looking just off-camera. The lighting is soft and natural."},
				{Name: "Studio Dynamic", Prompt: "A full-length studio shot against a solid, vibrant colored background (e.g., pastel blue or gradient). The model has a joyful, laughing expression. The lighting is bright and commercial."},
				{Name: "Elegant Detail", Prompt: "A close-up \"detail\" shot, focusing on the texture and pattern on the shoulder of the clothing. The model's face is partially in frame, turned three-quarters, softly out of focus. The mood is elegant and focused on quality."},
				{Name: "Indoor Grace", Prompt: "A three-quarter shot of the model standing in a minimalist apartment, looking gracefully out of a large window. Sunlight creates a soft, hazy glow."},
			},
		},
		Storyboard: StoryboardPolicy{Concurrency: 4},
		Video:      VideoPolicy{PollInterval: 10 * time.Second, MaxWait: 6 * time.Minute},
	}
}

// LoadPolicy 文件不存在时返回默认策略
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return policy, nil
	}
	if err != nil {
		return policy, fmt.Errorf("读取策略文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, &policy); err != nil {
		return DefaultPolicy(), fmt.Errorf("解析策略文件失败: %w", err)
	}
	return policy.normalize()
}

func (p Policy) normalize() (Policy, error) {
	def := DefaultPolicy()
	if len(p.Photoshoot.Scenarios) == 0 {
		p.Photoshoot.Scenarios = def.Photoshoot.Scenarios
	}
	if p.Photoshoot.DefaultStyle == "" {
		p.Photoshoot.DefaultStyle = def.Photoshoot.DefaultStyle
	}
	if p.Photoshoot.MinSceneSuccesses <= 0 {
		p.Photoshoot.MinSceneSuccesses = def.Photoshoot.MinSceneSuccesses
	}
	if p.Photoshoot.MinSceneSuccesses > len(p.Photoshoot.Scenarios) {
		return p, fmt.Errorf("min_scene_successes (%d) 大于场景数量 (%d)",
			p.Photoshoot.MinSceneSuccesses, len(p.Photoshoot.Scenarios))
	}
	if p.Storyboard.Concurrency <= 0 {
		p.Storyboard.Concurrency = def.Storyboard.Concurrency
	}
	if p.Video.PollInterval <= 0 {
		p.Video.PollInterval = def.Video.PollInterval
	}
	if p.Video.MaxWait <= 0 {
		p.Video.MaxWait = def.Video.MaxWait
	}
	return p, nil
}
