package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

// =============================================================================
// 🧪 缓存键派生测试
// =============================================================================

func TestDeriveKey_Normalization(t *testing.T) {
	// 首尾空白与大小写不影响键
	assert.Equal(t,
		DeriveKey("Hello World", "professional", ""),
		DeriveKey("  hello world  ", "Professional", ""),
	)

	// context 的空白同样被规范化
	assert.Equal(t,
		DeriveKey("hi", "casual", " Email To Boss "),
		DeriveKey("hi", "casual", "email to boss"),
	)
}

func TestDeriveKey_EmptyContext(t *testing.T) {
	// 未提供 context 与显式空串等价
	assert.Equal(t,
		DeriveKey("hello", "formal", ""),
		DeriveKey("hello", "formal", "   "),
	)
}

func TestDeriveKey_DistinctInputs(t *testing.T) {
	base := DeriveKey("hello", "formal", "")

	assert.NotEqual(t, base, DeriveKey("hello!", "formal", ""))
	assert.NotEqual(t, base, DeriveKey("hello", "casual", ""))
	assert.NotEqual(t, base, DeriveKey("hello", "formal", "a memo"))
}

func TestDeriveKey_FieldBoundaries(t *testing.T) {
	// 字段内容不会跨边界串扰
	assert.NotEqual(t,
		DeriveKey("ab", "c", ""),
		DeriveKey("a", "bc", ""),
	)
}

func TestDeriveKey_Format(t *testing.T) {
	key := DeriveKey("hello", "formal", "")
	assert.Len(t, key, 32)
	assert.Regexp(t, "^[0-9a-f]{32}$", key)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		style := rapid.String().Draw(t, "style")
		context := rapid.String().Draw(t, "context")

		k1 := DeriveKey(text, style, context)
		k2 := DeriveKey(text, style, context)

		assert.Equal(t, k1, k2, "same inputs must derive the same key")
		assert.Len(t, k1, 32)
	})
}
