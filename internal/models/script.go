// internal/models/script.go
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PartName 脚本的三个结构部分
type PartName string

const (
	PartHook    PartName = "hook"
	PartContent PartName = "content"
	PartCTA     PartName = "cta"
)

// AllParts 固定顺序：hook、content、cta
var AllParts = []PartName{PartHook, PartContent, PartCTA}

// ParsePartName 校验部分名称
func ParsePartName(s string) (PartName, error) {
	switch PartName(s) {
	case PartHook, PartContent, PartCTA:
		return PartName(s), nil
	}
	return "", fmt.Errorf("未知的脚本部分: %q", s)
}

// VisualIdea 一个画面节拍。ID 在脚本生命周期内稳定，分镜状态以它为键。
type VisualIdea struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	ImagePrompt string `json:"image_prompt"`
	VideoPrompt string `json:"video_prompt"`
}

type ScriptPart struct {
	Scene       int          `json:"scene"`
	VisualIdeas []VisualIdea `json:"visual_ideas"`
	Dialogue    string       `json:"dialogue"`
	SoundEffect string       `json:"sound_effect"`
}

// Clone 深拷贝
func (p ScriptPart) Clone() ScriptPart {
	out := p
	if p.VisualIdeas != nil {
		out.VisualIdeas = append([]VisualIdea(nil), p.VisualIdeas...)
	}
	return out
}

type Hashtags struct {
	General             []string `json:"general"`
	PlatformSpecific    []string `json:"platform_specific"`
	TrendingSuggestions []string `json:"trending_suggestions"`
}

type MarketingAssets struct {
	Titles             []string `json:"titles"`
	Hashtags           Hashtags `json:"hashtags"`
	ThumbnailTextIdeas []string `json:"thumbnail_text_ideas"`
}

// Script 核心产物
type Script struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Score        int          `json:"score"`
	IsBestOption bool         `json:"isBestOption"`
	Hook         ScriptPart   `json:"hook"`
	Content      []ScriptPart `json:"content"`
	CTA          ScriptPart   `json:"cta"`
	GeneratedAt  time.Time    `json:"generatedAt"`

	// InputSnapshot 生成时使用的原始输入字节，创建后不再改写
	InputSnapshot json.RawMessage `json:"inputSnapshot"`

	Assets              *MarketingAssets `json:"assets,omitempty"`
	Storyboard          Storyboard       `json:"storyboard,omitempty"`
	GeneratedVideoClips []string         `json:"generatedVideoClips,omitempty"`
}

// Snapshot 解码输入快照
func (s *Script) Snapshot() (GenerationInput, error) {
	var in GenerationInput
	if len(s.InputSnapshot) == 0 {
		return in, fmt.Errorf("脚本 %s 缺少输入快照", s.ID)
	}
	if err := json.Unmarshal(s.InputSnapshot, &in); err != nil {
		return in, fmt.Errorf("解析输入快照失败: %w", err)
	}
	return in, nil
}

// Part 按名称取出部分；content 返回全部场景
func (s *Script) Part(name PartName) []ScriptPart {
	switch name {
	case PartHook:
		return []ScriptPart{s.Hook}
	case PartCTA:
		return []ScriptPart{s.CTA}
	case PartContent:
		return s.Content
	}
	return nil
}

// AllVisualIdeas hook 在前，content 按场景顺序展开，cta 在后
func (s *Script) AllVisualIdeas() []VisualIdea {
	ideas := append([]VisualIdea(nil), s.Hook.VisualIdeas...)
	for _, p := range s.Content {
		ideas = append(ideas, p.VisualIdeas...)
	}
	return append(ideas, s.CTA.VisualIdeas...)
}

// Clone 深拷贝，编排过程只在副本上工作
func (s *Script) Clone() *Script {
	if s == nil {
		return nil
	}
	out := *s
	out.Hook = s.Hook.Clone()
	out.CTA = s.CTA.Clone()
	if s.Content != nil {
		out.Content = make([]ScriptPart, len(s.Content))
		for i, p := range s.Content {
			out.Content[i] = p.Clone()
		}
	}
	if s.InputSnapshot != nil {
		out.InputSnapshot = append(json.RawMessage(nil), s.InputSnapshot...)
	}
	if s.Assets != nil {
		a := *s.Assets
		a.Titles = append([]string(nil), s.Assets.Titles...)
		a.ThumbnailTextIdeas = append([]string(nil), s.Assets.ThumbnailTextIdeas...)
		a.Hashtags = Hashtags{
			General:             append([]string(nil), s.Assets.Hashtags.General...),
			PlatformSpecific:    append([]string(nil), s.Assets.Hashtags.PlatformSpecific...),
			TrendingSuggestions: append([]string(nil), s.Assets.Hashtags.TrendingSuggestions...),
		}
		out.Assets = &a
	}
	out.Storyboard = s.Storyboard.Clone()
	if s.GeneratedVideoClips != nil {
		out.GeneratedVideoClips = append([]string(nil), s.GeneratedVideoClips...)
	}
	return &out
}
