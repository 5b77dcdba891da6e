// Package providers defines the upstream LLM invoker contract and its
// implementations. Each provider speaks an OpenAI-compatible chat
// completions dialect and maps transport failures onto typed errors.
package providers

import (
	"context"
	"time"
)

// =============================================================================
// 📦 消息与请求类型
// =============================================================================

// Role 消息角色
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 对话消息
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 上游补全请求
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float32   `json:"temperature,omitempty"`
	TopP        float32   `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// ChatUsage token 用量统计
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse 上游补全响应
type ChatResponse struct {
	ID        string    `json:"id"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	Content   string    `json:"content"`
	Usage     ChatUsage `json:"usage"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// HealthStatus 上游健康状态
type HealthStatus struct {
	Healthy bool          `json:"healthy"`
	Latency time.Duration `json:"latency"`
}

// Provider 上游 LLM 调用方契约
type Provider interface {
	// Name 返回 provider 标识
	Name() string

	// Completion 发起一次同步补全调用。
	// 失败返回 *types.Error，携带映射后的错误码与可重试标记。
	Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// HealthCheck 探测上游可达性
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// ChooseModel 按请求、配置、默认值的优先级选择模型
func ChooseModel(reqModel, cfgModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if cfgModel != "" {
		return cfgModel
	}
	return fallback
}
