package analyzer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/wyxpro/CubeAI-FlowDecompose/types"
)

var (
	jsonFenceOpen = regexp.MustCompile("```json\\s*")
	fenceAny      = regexp.MustCompile("```\\s*")
	jsonBlock     = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)
)

// ExtractJSON 解析模型应答，兼容纯 JSON、夹在文字中或 markdown 代码块里的 JSON
func ExtractJSON(text string) (gjson.Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed != "" && gjson.Valid(trimmed) {
		return gjson.Parse(trimmed), nil
	}

	cleaned := jsonFenceOpen.ReplaceAllString(text, "")
	cleaned = fenceAny.ReplaceAllString(cleaned, "")
	if m := jsonBlock.FindString(cleaned); m != "" && gjson.Valid(m) {
		return gjson.Parse(m), nil
	}

	return gjson.Result{}, types.NewExternalError(capabilityName,
		fmt.Sprintf("no JSON found in analyzer reply: %s", truncate(text, 200)), nil)
}

// unwrap doc 为含 key 的对象时返回 doc[key]，否则返回 doc
func unwrap(doc gjson.Result, key string) gjson.Result {
	if doc.IsObject() {
		if v := doc.Get(key); v.Exists() {
			return v
		}
	}
	return doc
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
