package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// keyPayload 缓存键的规范化载荷
// 字段按字典序声明，json.Marshal 按声明顺序输出，保证跨进程逐位一致
type keyPayload struct {
	Context string `json:"context"`
	Text    string `json:"text"`
	Tone    string `json:"tone"`
}

// DeriveKey 根据规范化的 (text, style, context) 三元组生成确定性缓存键。
// 每个字段先去除首尾空白再转小写；空 context 视为 ""。
// 纯函数：无 I/O、无副作用，对等价输入（如 " Hi " 与 "hi"）产生相同的键。
func DeriveKey(text, style, context string) string {
	payload := keyPayload{
		Context: normalizeField(context),
		Text:    normalizeField(text),
		Tone:    normalizeField(style),
	}

	data, _ := json.Marshal(payload)
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16]) // 使用前 16 字节
}

func normalizeField(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
