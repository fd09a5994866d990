package memory

import (
	"errors"
	"strings"
)

// LLM 返回的 JSON 经常被散文或代码块包裹,四个提示词调用点
// 共用这里的宽松抽取:扫描首个配平的顶层结构,而不是整体严格解析

// ErrNoJSON 响应中找不到可解析的 JSON 结构
var ErrNoJSON = errors.New("no JSON structure found in response")

// ExtractJSONObject 抽取响应中第一个顶层 JSON 对象的原文
func ExtractJSONObject(raw string) (string, error) {
	return extractBalanced(raw, '{', '}')
}

// ExtractJSONArray 抽取响应中第一个顶层 JSON 数组的原文
func ExtractJSONArray(raw string) (string, error) {
	return extractBalanced(raw, '[', ']')
}

// extractBalanced 从 open 的首次出现开始做括号配平扫描
// 跳过字符串字面量内部的括号与转义引号
func extractBalanced(raw string, open, closing byte) (string, error) {
	start := strings.IndexByte(raw, open)
	if start < 0 {
		return "", ErrNoJSON
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(raw); i++ {
		c := raw[i]

		if escaped {
			escaped = false
			continue
		}

		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
			// 字符串内部不计括号
		case c == open:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				return raw[start : i+1], nil
			}
		}
	}

	return "", ErrNoJSON
}
