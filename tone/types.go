package tone

import "github.com/BaSui01/toneflow/providers"

// =============================================================================
// 📦 请求与响应类型
// =============================================================================

// ShiftRequest 语气改写请求
// PreserveMeaning 与 UseCache 缺省为 true，Temperature 缺省为 0.7
type ShiftRequest struct {
	Text            string   `json:"text"`
	Style           string   `json:"style"`
	Context         string   `json:"context,omitempty"`
	PreserveMeaning *bool    `json:"preserve_meaning,omitempty"`
	Temperature     *float32 `json:"temperature,omitempty"`
	UseCache        *bool    `json:"use_cache,omitempty"`

	// IdentityID 调用者身份；为空时读写全局缓存作用域
	IdentityID string `json:"-"`
}

func (r *ShiftRequest) preserveMeaning() bool {
	return r.PreserveMeaning == nil || *r.PreserveMeaning
}

func (r *ShiftRequest) useCache() bool {
	return r.UseCache == nil || *r.UseCache
}

func (r *ShiftRequest) temperature() float32 {
	if r.Temperature == nil {
		return 0.7
	}
	return *r.Temperature
}

// ShiftResponse 语气改写响应
type ShiftResponse struct {
	Success          bool                 `json:"success"`
	OriginalText     string               `json:"original_text"`
	TransformedText  string               `json:"transformed_text,omitempty"`
	Style            string               `json:"target_tone"`
	StyleDescription string               `json:"tone_description,omitempty"`
	Model            string               `json:"model_used,omitempty"`
	Cached           bool                 `json:"cached"`
	CacheHitCount    int64                `json:"cache_hit_count,omitempty"`
	Usage            *providers.ChatUsage `json:"usage,omitempty"`
	Error            string               `json:"error,omitempty"`
}

// BatchShiftRequest 批量语气改写请求
type BatchShiftRequest struct {
	Texts   []string `json:"texts"`
	Style   string   `json:"style"`
	Context string   `json:"context,omitempty"`

	IdentityID string `json:"-"`
}

// SuggestRequest 语气分析请求
type SuggestRequest struct {
	Text           string `json:"text"`
	CurrentTone    string `json:"current_tone"`
	TargetAudience string `json:"target_audience,omitempty"`
}

// SuggestResponse 语气分析响应
type SuggestResponse struct {
	Success        bool   `json:"success"`
	OriginalText   string `json:"original_text"`
	Analysis       string `json:"analysis,omitempty"`
	CurrentTone    string `json:"current_tone"`
	TargetAudience string `json:"target_audience,omitempty"`
	Error          string `json:"error,omitempty"`
}
