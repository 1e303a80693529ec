// internal/models/preset.go
package models

// PresetSettings 通用预设保存的字段：不含产品名称/类型/描述、图片、角色、数量和参考视频
type PresetSettings struct {
	ProductCategory  string        `json:"productCategory"`
	TargetAudience   string        `json:"targetAudience"`
	BrandVoice       string        `json:"brandVoice"`
	Platform         string        `json:"platform"`
	ContentMode      string        `json:"contentMode"`
	VisualStrategy   string        `json:"visualStrategy"`
	ModelStrategy    ModelStrategy `json:"modelStrategy"`
	WritingStyle     string        `json:"writingStyle"`
	Tone             string        `json:"tone"`
	HookType         string        `json:"hookType"`
	CTAType          string        `json:"ctaType"`
	Duration         int           `json:"duration"`
	AspectRatio      string        `json:"aspectRatio"`
	UseTrendAnalysis bool          `json:"useTrendAnalysis"`
	AIPersonaID      string        `json:"aiPersonaId"`
}

// SettingsFromInput 从输入中抽取预设字段
func SettingsFromInput(in GenerationInput) PresetSettings {
	return PresetSettings{
		ProductCategory:  in.ProductCategory,
		TargetAudience:   in.TargetAudience,
		BrandVoice:       in.BrandVoice,
		Platform:         in.Platform,
		ContentMode:      in.ContentMode,
		VisualStrategy:   in.VisualStrategy,
		ModelStrategy:    in.ModelStrategy,
		WritingStyle:     in.WritingStyle,
		Tone:             in.Tone,
		HookType:         in.HookType,
		CTAType:          in.CTAType,
		Duration:         in.Duration,
		AspectRatio:      in.AspectRatio,
		UseTrendAnalysis: in.UseTrendAnalysis,
		AIPersonaID:      in.AIPersonaID,
	}
}

// ApplyTo 把预设套用到输入上，产品相关字段保持不变
func (s PresetSettings) ApplyTo(in GenerationInput) GenerationInput {
	in.ProductCategory = s.ProductCategory
	in.TargetAudience = s.TargetAudience
	in.BrandVoice = s.BrandVoice
	in.Platform = s.Platform
	in.ContentMode = s.ContentMode
	in.VisualStrategy = s.VisualStrategy
	in.ModelStrategy = s.ModelStrategy
	in.WritingStyle = s.WritingStyle
	in.Tone = s.Tone
	in.HookType = s.HookType
	in.CTAType = s.CTAType
	in.Duration = s.Duration
	in.AspectRatio = s.AspectRatio
	in.UseTrendAnalysis = s.UseTrendAnalysis
	in.AIPersonaID = s.AIPersonaID
	return in
}

type GeneralPreset struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Settings PresetSettings `json:"settings"`
}

type CharacterPreset struct {
	ID        string           `json:"id"`
	Name      string           `json:"name"`
	Character CharacterDetails `json:"character"`
}
