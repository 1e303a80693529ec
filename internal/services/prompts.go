// internal/services/prompts.go
package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Corphon/Direktiva/internal/models"
)

// scriptView 发给模型的脚本视图，不含快照、分镜和视频
type scriptView struct {
	Title   string              `json:"title"`
	Hook    models.ScriptPart   `json:"hook"`
	Content []models.ScriptPart `json:"content"`
	CTA     models.ScriptPart   `json:"cta"`
}

func renderScript(s *models.Script) string {
	data, _ := json.MarshalIndent(scriptView{
		Title:   s.Title,
		Hook:    s.Hook,
		Content: s.Content,
		CTA:     s.CTA,
	}, "", "  ")
	return string(data)
}

func languageDirective(lang models.Language) string {
	return fmt.Sprintf("Write every 'title', 'description' and 'dialogue' value in %s. Every 'image_prompt' and 'video_prompt' value MUST be in English.", lang.Name())
}

func characterBlock(in models.GenerationInput) string {
	switch in.ModelStrategy {
	case models.ModelStrategyCharacter:
		c := in.Character
		hair := c.FacialFeatures.HairStyle
		if c.FacialFeatures.CustomHairStyle != "" {
			hair = c.FacialFeatures.CustomHairStyle
		}
		var b strings.Builder
		b.WriteString("**CHARACTER (use for the Character Consistency Block):**\n")
		fmt.Fprintf(&b, "- Identity: %s, %s, age %s, %s\n", c.Identity.Name, c.Identity.Gender, c.Identity.Age, c.Identity.Ethnicity)
		fmt.Fprintf(&b, "- Face: %s face, %s eyes, %s %s hair\n", c.FacialFeatures.FaceShape, c.FacialFeatures.EyeColor, c.FacialFeatures.HairColor, hair)
		fmt.Fprintf(&b, "- Physique: %s skin, %s body, %s tall\n", c.Physique.SkinTone, c.Physique.BodyShape, c.Physique.Height)
		fmt.Fprintf(&b, "- Style: %s, dominant color %s\n", c.StyleAndAesthetics.ClothingStyle, c.StyleAndAesthetics.DominantColor)
		fmt.Fprintf(&b, "- Aura: %s", c.Personality.DominantAura)
		if c.Personality.AdditionalNotes != "" {
			fmt.Fprintf(&b, " (%s)", c.Personality.AdditionalNotes)
		}
		return b.String()
	case models.ModelStrategyFaceless:
		return "**MODEL STRATEGY:** Faceless. Never show a face; use hands, over-the-shoulder and product-focused framing."
	default:
		return "**MODEL STRATEGY:** No human model. The product and its environment carry every scene."
	}
}

func buildScriptPrompt(in models.GenerationInput, lang models.Language, trendContext string, count int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create %d distinct short-form video script option(s) for the product below.\n\n", count)

	b.WriteString("**PRODUCT:**\n")
	fmt.Fprintf(&b, "- Name: %s\n- Type: %s\n- Category: %s\n- Description: %s\n- Target audience: %s\n- Brand voice: %s\n\n",
		in.ProductName, in.ProductType, in.ProductCategory, in.ProductDescription, in.TargetAudience, in.BrandVoice)

	b.WriteString("**STRATEGY:**\n")
	fmt.Fprintf(&b, "- Platform: %s\n- Content mode: %s\n- Visual strategy: %s\n- Writing style: %s\n- Tone: %s\n- Hook type: %s\n- CTA type: %s\n- Duration: %d seconds\n- Aspect ratio: %s\n\n",
		in.Platform, in.ContentMode, in.VisualStrategy, in.WritingStyle, in.Tone, in.HookType, in.CTAType, in.Duration, in.AspectRatio)

	b.WriteString(characterBlock(in))
	b.WriteString("\n\n")

	if trendContext != "" {
		b.WriteString("**TRENDING CONTEXT (weave in where it fits naturally):**\n")
		b.WriteString(trendContext)
		b.WriteString("\n\n")
	}
	if len(in.ProductImages) > 0 {
		b.WriteString("The attached images show the product. Describe it faithfully in every image prompt where it appears, and mention it by its exact product name.\n\n")
	}

	b.WriteString("**OUTPUT RULES:**\n")
	b.WriteString("- Number scenes sequentially: the hook is scene 1, content scenes follow, the CTA is last.\n")
	b.WriteString("- Every part has at least one visual idea, a dialogue line and a sound effect.\n")
	b.WriteString("- Give each script an engagement score from 1-100 and set isBestOption to true for exactly one script.\n")
	b.WriteString("- " + languageDirective(lang) + "\n")
	b.WriteString(`- Respond with an object of the form {"scripts": [ ... ]}.`)
	return b.String()
}

func joinParts(parts []models.PartName) string {
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func buildRevisionPrompt(s *models.Script, parts []models.PartName, instruction string, lang models.Language) string {
	var b strings.Builder
	b.WriteString("Revise the video script below.\n\n")
	b.WriteString("**CURRENT SCRIPT:**\n")
	b.WriteString(renderScript(s))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "**PARTS TO REVISE:** %s\n", joinParts(parts))
	fmt.Fprintf(&b, "**INSTRUCTION:** %s\n\n", instruction)
	b.WriteString("Rewrite ONLY the listed parts. Return every other part exactly as it is, keeping visual idea ids unchanged where a visual idea is kept.\n")
	b.WriteString(languageDirective(lang) + "\n")
	b.WriteString("Respond with the complete script object (title, score, isBestOption, hook, content, cta).")
	return b.String()
}

func buildVariantsPrompt(s *models.Script, part models.PartName, lang models.Language) string {
	current, _ := json.MarshalIndent(s.Part(part), "", "  ")

	var b strings.Builder
	fmt.Fprintf(&b, "Here is a short-form video script titled %q:\n%s\n\n", s.Title, renderScript(s))
	fmt.Fprintf(&b, "Write 3 alternative versions of its %s section. The current %s is:\n%s\n\n", part, part, current)
	if part == models.PartContent {
		b.WriteString("Each alternative is a complete replacement for the content section: an array of one or more scene parts.\n")
	} else {
		b.WriteString("Each alternative is an array containing exactly one scene part.\n")
	}
	b.WriteString(languageDirective(lang) + "\n")
	b.WriteString(`Respond with an object of the form {"variants": [[...], [...], [...]]}.`)
	return b.String()
}

func buildAssetsPrompt(s *models.Script, lang models.Language, platform string) string {
	var b strings.Builder
	b.WriteString("Create marketing assets for publishing the following short-form video script.\n\n")
	b.WriteString(renderScript(s))
	b.WriteString("\n\n")
	if platform != "" {
		fmt.Fprintf(&b, "The video will be posted on %s.\n", platform)
	}
	b.WriteString("Provide alternative titles, hashtags split into general, platform-specific and trending suggestions, and short thumbnail text ideas.\n")
	fmt.Fprintf(&b, "Write all text in %s.", lang.Name())
	return b.String()
}

func buildVoiceOverPrompt(s *models.Script, lang models.Language) string {
	var b strings.Builder
	b.WriteString("Act as a voice-over director. For the script below, write an overall direction and one line per dialogue in order (hook, each content scene, cta).\n\n")
	b.WriteString(renderScript(s))
	b.WriteString("\n\n")
	b.WriteString("Each line repeats the dialogue verbatim and adds a reading direction. Optionally suggest a speech rate (0.25 to 4.0, default 1) and pitch (-20.0 to 20.0, default 0).\n")
	fmt.Fprintf(&b, "Write directions in %s.", lang.Name())
	return b.String()
}

func buildTrendPrompt(in models.GenerationInput, lang models.Language) string {
	return fmt.Sprintf("Based on the product %q and target audience %q, find the latest trending topics, challenges, and sounds on %s in %s.",
		in.ProductName, in.TargetAudience, in.Platform, lang.Name())
}

func buildProductURLPrompt(url string, lang models.Language) string {
	return fmt.Sprintf("Analyze the content of the URL: %s. Extract the product name, create a compelling product description, and determine the most suitable product category and target audience. Write the description in %s.",
		url, lang.Name())
}

const baseCompositePrompt = `
**PROTOCOL: BASE COMPOSITE GENERATION (v14.0 - Step 1/2)**

**TASK:** Your sole objective is to create a single, ultra-photorealistic, full-body studio portrait.
1.  **PERSON:** Use the exact person from **[IMAGE 1: SUBJECT]**. Replicate their face, hair, and identity with 100% accuracy.
2.  **CLOTHING:** Dress this person in the exact clothing from **[IMAGE 2: PRODUCT]**. Replicate the product's design, pattern, and fit with 100% accuracy.
3.  **BACKGROUND:** Place them against a neutral, plain, light gray studio background.
4.  **POSE:** The person should be standing, facing the camera with a neutral, pleasant expression.
5.  **OUTPUT:** The final image is the definitive "source of truth" for the character's appearance. Do not add any other elements.
`

func buildScenePlacementPrompt(scene, style, additional string) string {
	if additional == "" {
		additional = "None."
	}
	return fmt.Sprintf(`
**PROTOCOL: SCENE PLACEMENT (v14.0 - Step 2/2)**

**TASK:** Your sole objective is to place the character from the provided **[MASTER IMAGE]** into a new environment.
1.  **CHARACTER SOURCE:** The person and their clothing in the **[MASTER IMAGE]** are locked and are the single source of truth. DO NOT change their face, hair, or the clothing design in any way.
2.  **NEW SCENE:** Place this character into the following scene: "%s".
3.  **INTEGRATION:** Flawlessly blend the character into the new scene by adjusting only the lighting and shadows to match the environment.
4.  **AESTHETIC:** Apply this style meticulously: %s
5.  **ADDITIONAL INSTRUCTIONS:** %s

**CRITICAL FAILURE CONDITION:** Any deviation from the character's facial features or clothing in the [MASTER IMAGE] is a total failure.
`, scene, style, additional)
}

// sceneDescription 指定背景时场景只作为构图参考
func sceneDescription(scenario, background string) string {
	if background == "" {
		return scenario
	}
	return fmt.Sprintf("The background MUST be: %q. The overall scene, pose, and composition should be inspired by this theme: %q", background, scenario)
}

func buildEditPrompt(instructions string) string {
	return fmt.Sprintf(`
**Image Editing Protocol:**
1.  **Analyze Base Image:** Identify the person and the primary piece of clothing they are wearing in the [BASE IMAGE].
2.  **Analyze Replacement:** Identify the product in the [REPLACEMENT PRODUCT IMAGE].
3.  **Execute Swap:** Flawlessly replace the original clothing on the person with the replacement product. Preserve the original pose, lighting, background, and most importantly, the person's face and body, exactly as they are.
4.  **User Instructions:** Apply the following instructions: %q.
5.  **Realism:** The final image must be perfectly blended and photorealistic.
`, instructions)
}

func buildContinuityPrompt(prompt string) string {
	return `
**CHARACTER CONTINUITY PROTOCOL:**
- **Source of Truth:** The person in the provided reference image is the character. Replicate their facial features, hair, and overall appearance with 100% accuracy.
- **New Scene:** Place this exact character into the following scene, described by the prompt below. The pose and setting should be new, but the person's identity must remain locked.
---
**PROMPT:** ` + prompt
}
