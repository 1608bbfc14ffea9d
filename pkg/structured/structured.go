// Package structured 把大模型返回的文本解析为结构化数据。
// 所有修复启发式都收敛在这里，调用方只看到 Parse 的结果或 ErrParse。
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrParse 表示修复之后仍然无法解析。
var ErrParse = errors.New("structured output parse failed")

var danglingComma = regexp.MustCompile(`,?\s*$`)

// Parse 从 raw 中找出 JSON 片段，修复常见的格式问题后反序列化到 T。
// 某个片段解析失败时，从它之后的下一个 { 或 [ 继续尝试。
func Parse[T any](raw string) (T, error) {
	var out T
	var lastErr error
	for from := 0; from < len(raw); {
		start, end, ok := locate(raw, from)
		if !ok {
			break
		}
		v, err := decode[T](raw[start:end])
		if err == nil {
			return v, nil
		}
		lastErr = err
		from = end
	}
	if lastErr == nil {
		return out, fmt.Errorf("%w: no json object or array found", ErrParse)
	}
	return out, fmt.Errorf("%w: %v", ErrParse, lastErr)
}

func decode[T any](span string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(span), &out); err == nil {
		return out, nil
	}
	var repaired T
	err := json.Unmarshal([]byte(Repair(span)), &repaired)
	return repaired, err
}

// Extract 定位第一个顶层 {...} 或 [...] 片段。
// 没有找到匹配的闭合符号时（输出被截断），返回从起始符号到文本末尾的部分。
func Extract(raw string) (string, bool) {
	start, end, ok := locate(raw, 0)
	if !ok {
		return "", false
	}
	return raw[start:end], true
}

// locate 返回 raw[from:] 中第一个顶层片段的起止下标。
func locate(raw string, from int) (int, int, bool) {
	idx := strings.IndexAny(raw[from:], "{[")
	if idx < 0 {
		return 0, 0, false
	}
	start := from + idx
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return start, i + 1, true
			}
		}
	}
	return start, start + len(strings.TrimRight(raw[start:], " \t\r\n`")), true
}

// Repair 在双引号字符串之外去掉尾随逗号、给裸键加引号、把单引号字符串改为双引号、
// 清理控制字符，最后补齐缺失的闭合括号。
func Repair(s string) string {
	return closeBrackets(normalize(s))
}

func isControl(c byte) bool {
	return c < 0x20 || c == 0x7f
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

// normalize 逐字节扫描，双引号字符串内部只替换控制字符。
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	// last 是已输出的最后一个非空白字节
	var last byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			i = copyDoubleQuoted(&b, s, i)
			last = '"'
		case c == '\'':
			i = convertSingleQuoted(&b, s, i)
			last = '"'
		case c == ',':
			if j := skipSpace(s, i+1); j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
			b.WriteByte(c)
			last = c
		case isIdentStart(c) && (last == '{' || last == ','):
			j := i
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			if k := skipSpace(s, j); k < len(s) && s[k] == ':' {
				b.WriteString(`"` + s[i:j] + `"`)
				last = '"'
			} else {
				b.WriteString(s[i:j])
				last = s[j-1]
			}
			i = j - 1
		case c == '\n' || c == '\r' || c == '\t':
			b.WriteByte(' ')
		case isControl(c):
		case c == ' ':
			b.WriteByte(c)
		default:
			b.WriteByte(c)
			last = c
		}
	}
	return b.String()
}

// copyDoubleQuoted 原样写出从 s[i] 开始的双引号字符串，返回结束引号的下标。
func copyDoubleQuoted(b *strings.Builder, s string, i int) int {
	b.WriteByte('"')
	escaped := false
	for j := i + 1; j < len(s); j++ {
		c := s[j]
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			b.WriteByte(c)
			return j
		case isControl(c):
			c = ' '
		}
		b.WriteByte(c)
	}
	return len(s) - 1
}

// convertSingleQuoted 把从 s[i] 开始的单引号字符串改写为双引号字符串，返回结束引号的下标。
// 截断时不补结束引号，交给 closeBrackets。
func convertSingleQuoted(b *strings.Builder, s string, i int) int {
	b.WriteByte('"')
	for j := i + 1; j < len(s); j++ {
		c := s[j]
		switch {
		case c == '\\' && j+1 < len(s) && s[j+1] == '\'':
			b.WriteByte('\'')
			j++
		case c == '\\' && j+1 < len(s):
			b.WriteByte(c)
			b.WriteByte(s[j+1])
			j++
		case c == '\'':
			b.WriteByte('"')
			return j
		case c == '"':
			b.WriteString(`\"`)
		case isControl(c):
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return len(s) - 1
}

// closeBrackets 按嵌套顺序补齐未闭合的字符串、数组与对象。
func closeBrackets(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if len(stack) == 0 && !inString {
		return s
	}
	if inString {
		if escaped {
			s = s[:len(s)-1]
		}
		s += `"`
	} else {
		s = danglingComma.ReplaceAllString(s, "")
		if strings.HasSuffix(s, ":") {
			s += "null"
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
