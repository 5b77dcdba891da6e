package tone

import (
	"fmt"
	"sort"
	"strings"
)

// =============================================================================
// 🎨 语气预设与提示词构建
// =============================================================================

// stylePresets 内置语气预设：标识 → 提示词中的语气描述
var stylePresets = map[string]string{
	"professional": "professional and business-like",
	"casual":       "casual and friendly",
	"formal":       "formal and polite",
	"friendly":     "warm and friendly",
	"confident":    "confident and assertive",
	"empathetic":   "empathetic and understanding",
	"enthusiastic": "enthusiastic and energetic",
	"neutral":      "neutral and objective",
	"persuasive":   "persuasive and compelling",
	"concise":      "concise and to-the-point",
	"detailed":     "detailed and comprehensive",
	"humorous":     "light-hearted and humorous",
	"genz":         `Gen-Z style with modern slang, abbreviations like "ngl", "fr", "lowkey", "tbh", emojis, and trendy expressions. Adapt formality based on context: use "honestly" and "pretty cool" for professional, "omg" and "fr fr" for friends, "aww" and "miss you" for family. Keep it authentic and contextually appropriate.`,
}

// StyleDescription 将语气标识解析为提示词描述。
// 未知标识原样透传，调用方可传入自定义语气描述。
func StyleDescription(style string) string {
	if desc, ok := stylePresets[strings.ToLower(strings.TrimSpace(style))]; ok {
		return desc
	}
	return style
}

// AvailableStyles 返回全部内置语气预设（标识 → 描述）
func AvailableStyles() map[string]string {
	out := make(map[string]string, len(stylePresets))
	for k, v := range stylePresets {
		out[k] = v
	}
	return out
}

// StyleNames 返回排序后的内置语气标识列表
func StyleNames() []string {
	names := make([]string, 0, len(stylePresets))
	for k := range stylePresets {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// buildShiftSystemPrompt 构建语气改写的 system 提示词
func buildShiftSystemPrompt(styleDescription string, preserveMeaning bool, context string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are an expert communication assistant specializing in tone adaptation.

Your task: Rewrite the given text in a %s tone.

Rules:
- Only return the rewritten text, nothing else
- Do not add explanations or comments
`, styleDescription)

	if preserveMeaning {
		b.WriteString("- Preserve the original meaning and key information\n")
	}
	if context != "" {
		fmt.Fprintf(&b, "- Context: %s\n", context)
	}

	b.WriteString(`- Maintain appropriate length (similar to original)
- Use natural language
- Ensure grammatical correctness`)

	return b.String()
}

// buildShiftUserPrompt 构建语气改写的 user 提示词
func buildShiftUserPrompt(text string) string {
	return "Original text: " + text
}

// buildSuggestSystemPrompt 构建语气分析的 system 提示词
func buildSuggestSystemPrompt(currentTone, targetAudience string) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are a communication expert. Analyze the given text and provide:
1. Tone assessment (identify the current tone)
2. Suggestions for improvement
3. Alternative phrasings for key parts
4. Recommended tone adjustments

Current perceived tone: %s
`, currentTone)

	if targetAudience != "" {
		fmt.Fprintf(&b, "Target audience: %s\n", targetAudience)
	}

	b.WriteString("\nProvide your analysis in a structured format.")
	return b.String()
}
