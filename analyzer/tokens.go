package analyzer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// tokenCounter 估算提示词 token 数用于指标
// tiktoken 编码按需加载，加载失败时退回字符估算
type tokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
}

func newTokenCounter(encoding string) *tokenCounter {
	return &tokenCounter{encoding: encoding}
}

func (t *tokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	if t != nil && t.encoding != "" {
		t.once.Do(func() {
			if enc, err := tiktoken.GetEncoding(t.encoding); err == nil {
				t.enc = enc
			}
		})
		if t.enc != nil {
			return len(t.enc.Encode(text, nil, nil))
		}
	}
	return estimateTokens(text)
}

// estimateTokens 中日韩字符约 1.5 个一 token，其他字符约 4 个一 token
func estimateTokens(text string) int {
	total := utf8.RuneCountInString(text)
	cjk := 0
	for _, r := range text {
		if isCJK(r) {
			cjk++
		}
	}
	n := int(float64(cjk)/1.5 + float64(total-cjk)/4.0)
	if n == 0 && total > 0 {
		n = 1
	}
	return n
}

func isCJK(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) ||
		(r >= 0x3400 && r <= 0x4DBF) ||
		(r >= 0x3000 && r <= 0x303F) ||
		(r >= 0xFF00 && r <= 0xFFEF)
}
