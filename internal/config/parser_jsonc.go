package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

func decodeJSONC(content string, payload *overlay) error {
	normalized, err := normalizeJSONC(content)
	if err != nil {
		return err
	}

	decoder := json.NewDecoder(strings.NewReader(normalized))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(payload); err != nil {
		return wrapJSONDecodeError(normalized, err)
	}

	var extra struct{}
	switch err := decoder.Decode(&extra); {
	case errors.Is(err, io.EOF):
		return nil
	case err == nil:
		return fmt.Errorf("multiple JSON values are not allowed")
	default:
		return wrapJSONDecodeError(normalized, err)
	}
}

// normalizeJSONC blanks out comments and drops trailing commas. Byte offsets
// and line breaks are preserved so decode errors still point at the source.
func normalizeJSONC(content string) (string, error) {
	src := []byte(content)
	out := make([]byte, 0, len(src))

	const (
		code = iota
		str
		line
		block
	)
	mode := code
	escaped := false

	for i := 0; i < len(src); i++ {
		ch := src[i]
		switch mode {
		case str:
			out = append(out, ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				mode = code
			}
		case line:
			if ch == '\n' || ch == '\r' {
				mode = code
				out = append(out, ch)
			} else {
				out = append(out, ' ')
			}
		case block:
			if ch == '*' && i+1 < len(src) && src[i+1] == '/' {
				mode = code
				out = append(out, ' ', ' ')
				i++
			} else if ch == '\n' || ch == '\r' || ch == '\t' {
				out = append(out, ch)
			} else {
				out = append(out, ' ')
			}
		default:
			switch {
			case ch == '"':
				mode = str
				out = append(out, ch)
			case ch == '/' && i+1 < len(src) && src[i+1] == '/':
				mode = line
				out = append(out, ' ', ' ')
				i++
			case ch == '/' && i+1 < len(src) && src[i+1] == '*':
				mode = block
				out = append(out, ' ', ' ')
				i++
			default:
				out = append(out, ch)
			}
		}
	}
	if mode == block {
		return "", fmt.Errorf("unterminated block comment in JSONC")
	}

	return dropTrailingCommas(out), nil
}

func dropTrailingCommas(src []byte) string {
	var b strings.Builder
	b.Grow(len(src))

	inString, escaped := false, false
	for i, ch := range src {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			b.WriteByte(ch)
			continue
		}
		if ch == '"' {
			inString = true
		}
		if ch == ',' && closesNext(src[i+1:]) {
			b.WriteByte(' ')
			continue
		}
		b.WriteByte(ch)
	}
	return b.String()
}

func closesNext(rest []byte) bool {
	for _, ch := range rest {
		switch ch {
		case ' ', '\n', '\r', '\t':
			continue
		case '}', ']':
			return true
		default:
			return false
		}
	}
	return false
}

func wrapJSONDecodeError(content string, err error) error {
	var offset int64 = -1

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		offset = syntaxErr.Offset
	case errors.As(err, &typeErr):
		offset = typeErr.Offset
	}
	if offset < 0 {
		return err
	}

	line, col := offsetToLineCol(content, offset)
	return fmt.Errorf("line %d column %d: %w", line, col, err)
}

func offsetToLineCol(content string, offset int64) (int, int) {
	limit := min(int(offset), len(content))
	line, col := 1, 1
	for i := 0; i < limit-1; i++ {
		if content[i] == '\n' {
			line++
			col = 1
			continue
		}
		col++
	}
	return line, col
}
