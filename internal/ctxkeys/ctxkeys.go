// Package ctxkeys holds typed context keys shared between middleware
// and handlers.
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	identityIDKey contextKey = "identity_id"
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithIdentityID 设置调用者身份
func WithIdentityID(ctx context.Context, identityID string) context.Context {
	return context.WithValue(ctx, identityIDKey, identityID)
}

// IdentityID 获取调用者身份；未认证时返回空串（全局缓存作用域）
func IdentityID(ctx context.Context) string {
	v, _ := ctx.Value(identityIDKey).(string)
	return v
}
