// internal/models/input.go
package models

import "strings"

// Language 输出语言
type Language string

const (
	LanguageEnglish    Language = "en"
	LanguageIndonesian Language = "id"
)

// Name 返回提示词中使用的语言名称
func (l Language) Name() string {
	switch l {
	case LanguageIndonesian:
		return "Indonesian (Bahasa Indonesia)"
	default:
		return "English"
	}
}

// ParseLanguage 未知语言一律回落为英语
func ParseLanguage(s string) Language {
	if strings.EqualFold(strings.TrimSpace(s), string(LanguageIndonesian)) {
		return LanguageIndonesian
	}
	return LanguageEnglish
}

// ModelStrategy 人物出镜策略
type ModelStrategy string

const (
	ModelStrategyNone      ModelStrategy = "none"
	ModelStrategyFaceless  ModelStrategy = "faceless"
	ModelStrategyCharacter ModelStrategy = "character"
)

// ProductImage 用户上传的参考图（base64）
type ProductImage struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Data string `json:"data"`
}

type CharacterIdentity struct {
	Name      string `json:"name"`
	Gender    string `json:"gender"`
	Age       string `json:"age"`
	Ethnicity string `json:"ethnicity"`
}

type FacialFeatures struct {
	FaceShape       string `json:"faceShape"`
	EyeColor        string `json:"eyeColor"`
	HairStyle       string `json:"hairStyle"`
	CustomHairStyle string `json:"customHairStyle,omitempty"`
	HairColor       string `json:"hairColor"`
}

type Physique struct {
	SkinTone  string `json:"skinTone"`
	BodyShape string `json:"bodyShape"`
	Height    string `json:"height"`
}

type StyleAndAesthetics struct {
	ClothingStyle string `json:"clothingStyle"`
	DominantColor string `json:"dominantColor"`
}

type Personality struct {
	DominantAura    string `json:"dominantAura"`
	AdditionalNotes string `json:"additionalNotes"`
}

// CharacterDetails 角色外观设定，用于保持多张图之间的人物一致
type CharacterDetails struct {
	Identity           CharacterIdentity  `json:"identity"`
	FacialFeatures     FacialFeatures     `json:"facialFeatures"`
	Physique           Physique           `json:"physique"`
	StyleAndAesthetics StyleAndAesthetics `json:"styleAndAesthetics"`
	Personality        Personality        `json:"personality"`
}

// GenerationInput 一次生成请求的全部用户选择。按值传递，生成过程中不会被修改。
type GenerationInput struct {
	ProductName        string `json:"productName" binding:"required"`
	ProductType        string `json:"productType"`
	ProductCategory    string `json:"productCategory"`
	ProductDescription string `json:"productDescription"`
	TargetAudience     string `json:"targetAudience"`
	BrandVoice         string `json:"brandVoice"`

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

	Character   CharacterDetails `json:"character"`
	AIPersonaID string           `json:"aiPersonaId"`

	ProductImages   []ProductImage `json:"productImages"`
	ReferenceVideo  *ProductImage  `json:"referenceVideo"`
	NumberOfScripts int            `json:"numberOfScripts"`
}

// PrimaryProductImage 第一张产品图，没有时返回 nil
func (in GenerationInput) PrimaryProductImage() *ProductImage {
	if len(in.ProductImages) == 0 {
		return nil
	}
	img := in.ProductImages[0]
	return &img
}

// ProductAnalysisResult 商品链接分析结果，任一字段都可能为空
type ProductAnalysisResult struct {
	ProductName        string `json:"productName"`
	ProductDescription string `json:"productDescription"`
	ProductCategory    string `json:"productCategory"`
	TargetAudience     string `json:"targetAudience"`
}

// MergeInto 只覆盖分析结果中非空的字段
func (r ProductAnalysisResult) MergeInto(in GenerationInput) GenerationInput {
	if r.ProductName != "" {
		in.ProductName = r.ProductName
	}
	if r.ProductDescription != "" {
		in.ProductDescription = r.ProductDescription
	}
	if r.ProductCategory != "" {
		in.ProductCategory = r.ProductCategory
	}
	if r.TargetAudience != "" {
		in.TargetAudience = r.TargetAudience
	}
	return in
}
