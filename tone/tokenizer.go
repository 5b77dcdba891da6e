package tone

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// =============================================================================
// 🔢 输入 token 预算
// =============================================================================

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
	encodingErr  error
)

// countTokens 估算文本的 token 数。
// cl100k_base 与 llama 系分词器并不一致，这里只做输入预算的近似上界；
// 编码器加载失败时退化为字符数估算（约 4 字符/token）。
func countTokens(text string) int {
	encodingOnce.Do(func() {
		encoding, encodingErr = tiktoken.GetEncoding("cl100k_base")
	})
	if encodingErr != nil {
		return len(text) / 4
	}
	return len(encoding.Encode(text, nil, nil))
}
