// internal/models/example.go
package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExampleScriptID 历史为空时填充的示例脚本
const ExampleScriptID = "example-script-123"

// NewExampleScript 每次调用生成新的画面 ID
func NewExampleScript() Script {
	input := GenerationInput{
		ProductName:        "Glow Up Face Serum",
		ProductType:        "Serum Wajah",
		ProductCategory:    "beauty",
		ProductDescription: "Serum pencerah dan pelembap yang diformulasikan untuk memperbaiki skin barrier.",
		TargetAudience:     "gen_z",
		BrandVoice:         "Informatif, ramah, dan meyakinkan.",
		Platform:           "tiktok",
		ContentMode:        "single_video",
		VisualStrategy:     "problem_solution",
		ModelStrategy:      ModelStrategyCharacter,
		WritingStyle:       "casual",
		Tone:               "educational",
		HookType:           "problem_solution_2025",
		CTAType:            "check_yellow_basket",
		Duration:           30,
		AspectRatio:        "9:16",
		Character: CharacterDetails{
			Identity:           CharacterIdentity{Name: "Rina", Gender: "female", Age: "25", Ethnicity: "Southeast Asian"},
			FacialFeatures:     FacialFeatures{FaceShape: "oval", EyeColor: "dark brown", HairStyle: "long_wavy", HairColor: "dark brown"},
			Physique:           Physique{SkinTone: "light brown", BodyShape: "slim", Height: "165cm"},
			StyleAndAesthetics: StyleAndAesthetics{ClothingStyle: "casual chic", DominantColor: "earth tones"},
			Personality:        Personality{DominantAura: "cheerful and trustworthy"},
		},
		AIPersonaID:     DefaultPersonaID,
		ProductImages:   []ProductImage{},
		NumberOfScripts: 1,
	}
	snapshot, _ := json.Marshal(input)

	return Script{
		ID:           ExampleScriptID,
		Title:        "Contoh: Rahasia Kulit Glowing!",
		Score:        92,
		IsBestOption: true,
		Hook: ScriptPart{
			Scene: 1,
			VisualIdeas: []VisualIdea{{
				ID:          uuid.NewString(),
				Description: "Seorang wanita dengan kulit bercahaya memegang sebotol serum dengan latar belakang dedaunan tropis yang lembut.",
				ImagePrompt: "A 25-year-old Southeast Asian woman with glowing, dewy skin and long wavy dark brown hair, smiling softly at the camera. She is holding a sleek, minimalist bottle of face serum. The background is filled with lush, soft-focus tropical leaves and gentle morning light filters through. Photorealistic, natural look.",
				VideoPrompt: "Slow-motion shot of a water droplet falling onto a leaf in the background, then focus pulls to the woman.",
			}},
			Dialogue:    "Stop scroll! Kamu tahu nggak sih, kenapa skincare-mu nggak bekerja maksimal?",
			SoundEffect: "Suara tetesan air yang menenangkan, diikuti musik lo-fi yang ceria.",
		},
		Content: []ScriptPart{
			{
				Scene: 2,
				VisualIdeas: []VisualIdea{{
					ID:          uuid.NewString(),
					Description: "Close-up tangan wanita itu meneteskan serum ke telapak tangannya. Tekstur serum terlihat jelas.",
					ImagePrompt: "Extreme close-up macro shot of a single, clear drop of serum falling from a dropper onto the woman's palm. The texture of the serum and the lines of her skin are in sharp focus. Bright, clean lighting.",
					VideoPrompt: "The serum drop ripples as it lands on her palm in ultra slow-motion.",
				}},
				Dialogue:    "Itu karena skin barrier kamu mungkin rusak. Akibatnya, kulit jadi kusam dan jerawatan.",
				SoundEffect: "Suara \"swoosh\" lembut saat serum diteteskan.",
			},
			{
				Scene: 3,
				VisualIdeas: []VisualIdea{{
					ID:          uuid.NewString(),
					Description: "Wanita itu dengan lembut mengaplikasikan serum ke wajahnya, tersenyum dengan puas.",
					ImagePrompt: "Medium close-up of the 25-year-old Southeast Asian woman gently patting the serum onto her cheeks. Her eyes are closed with a blissful expression. The tropical leaf background is softly blurred.",
					VideoPrompt: "Camera slowly orbits around the woman as she applies the serum.",
				}},
				Dialogue:    "Tapi tenang, serum ini punya Ceramide dan Hyaluronic Acid yang bisa memperbaiki dan melembapkan kulitmu dari dalam!",
				SoundEffect: "Musik lo-fi menjadi sedikit lebih upbeat.",
			},
		},
		CTA: ScriptPart{
			Scene: 4,
			VisualIdeas: []VisualIdea{{
				ID:          uuid.NewString(),
				Description: "Wanita itu menunjukkan produk ke kamera dengan senyum cerah, sambil menunjuk ke arah pojok kiri bawah layar.",
				ImagePrompt: "The 25-year-old Southeast Asian woman holds the serum bottle prominently towards the camera with a bright, confident smile, pointing towards the lower-left corner of the frame. Final product shot, clean lighting.",
				VideoPrompt: "A subtle \"tap here\" graphic animates in the lower-left corner where she is pointing.",
			}},
			Dialogue:    "Hasilnya? Kulit jadi super sehat dan glowing! Mau coba? Langsung aja cek keranjang kuning!",
			SoundEffect: "Suara \"sparkle\" atau \"cha-ching\" yang memuaskan.",
		},
		GeneratedAt:   time.Now().UTC(),
		InputSnapshot: snapshot,
	}
}
