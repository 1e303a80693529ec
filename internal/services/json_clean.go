// internal/services/json_clean.go
package services

import (
	"strings"
	"unicode"
)

const fence = "```"

// stripFence 去掉包在 JSON 外面的 Markdown 代码块；JSON 内部出现的反引号保持原样
func stripFence(s string) string {
	if open := strings.Index(s, fence); open != -1 {
		if first := strings.IndexAny(s, "[{"); first == -1 || open < first {
			rest := s[open+len(fence):]
			// 跳过语言标记，如 ```json
			if nl := strings.IndexByte(rest, '\n'); nl != -1 {
				rest = rest[nl+1:]
			} else {
				rest = strings.TrimLeftFunc(rest, unicode.IsLetter)
			}
			s = rest
		}
	}
	if end := strings.LastIndex(s, fence); end != -1 {
		if last := strings.LastIndexAny(s, "]}"); last == -1 || end > last {
			s = s[:end]
		}
	}
	return s
}

// cleanJSONString 去掉代码块标记和首个 JSON 值前后的杂文，不改写值本身
func cleanJSONString(s string) string {
	if s == "" {
		return s
	}

	s = stripFence(s)
	s = strings.TrimSpace(s)

	// 零宽字符及除换行/制表符外的控制字符
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\u200b', '\u200c', '\u200d', '\u2060', '\ufeff':
			return -1
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			return -1
		}
		return r
	}, s)

	start := strings.IndexAny(s, "[{")
	if start == -1 {
		return s
	}
	s = s[start:]

	openCh, closeCh := byte('{'), byte('}')
	if s[0] == '[' {
		openCh, closeCh = '[', ']'
	}

	balance := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case openCh:
			balance++
		case closeCh:
			balance--
			if balance == 0 {
				return strings.TrimSpace(s[:i+1])
			}
		}
	}

	// 没有配平时回退到最后一个结束符
	if end := strings.LastIndexByte(s, closeCh); end != -1 {
		return strings.TrimSpace(s[:end+1])
	}
	return strings.TrimSpace(s)
}
