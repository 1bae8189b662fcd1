package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
)

var (
	errUnterminatedQuote  = errors.New("unterminated quote")
	errUnterminatedEscape = errors.New("unterminated escape sequence")
)

// ParseCommand splits raw into argv with shell-like quoting. Single quotes are
// literal; double quotes allow \" \\ \$ escapes; $VAR and ${VAR} expand outside
// single quotes. A leading # yields an empty command.
func ParseCommand(raw string) (CommandConfig, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return CommandConfig{Raw: raw}, nil
	}

	lx := argvLexer{src: []rune(trimmed), getenv: os.Getenv}
	argv, err := lx.split()
	if err != nil {
		return CommandConfig{}, fmt.Errorf("%w in command: %q", err, trimmed)
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func mustParseCommand(raw string) CommandConfig {
	cmd, err := ParseCommand(raw)
	if err != nil {
		panic(err)
	}
	return cmd
}

type argvLexer struct {
	src    []rune
	pos    int
	getenv func(string) string

	argv    []string
	word    strings.Builder
	started bool
}

func (l *argvLexer) split() ([]string, error) {
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		l.pos++

		switch {
		case unicode.IsSpace(r):
			l.endWord()
		case r == '\\':
			if l.pos >= len(l.src) {
				return nil, errUnterminatedEscape
			}
			l.write(l.src[l.pos])
			l.pos++
		case r == '\'':
			if err := l.singleQuoted(); err != nil {
				return nil, err
			}
		case r == '"':
			if err := l.doubleQuoted(); err != nil {
				return nil, err
			}
		case r == '$':
			l.expand()
		default:
			l.write(r)
		}
	}
	l.endWord()
	return l.argv, nil
}

func (l *argvLexer) singleQuoted() error {
	l.started = true
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		l.pos++
		if r == '\'' {
			return nil
		}
		l.word.WriteRune(r)
	}
	return errUnterminatedQuote
}

func (l *argvLexer) doubleQuoted() error {
	l.started = true
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		l.pos++
		switch r {
		case '"':
			return nil
		case '\\':
			if l.pos >= len(l.src) {
				return errUnterminatedQuote
			}
			next := l.src[l.pos]
			if next == '"' || next == '\\' || next == '$' {
				l.word.WriteRune(next)
				l.pos++
				continue
			}
			l.word.WriteRune(r)
		case '$':
			l.expand()
		default:
			l.word.WriteRune(r)
		}
	}
	return errUnterminatedQuote
}

// expand consumes a variable reference after '$'. A '$' not followed by a
// name is kept literally.
func (l *argvLexer) expand() {
	if l.pos < len(l.src) && l.src[l.pos] == '{' {
		end := l.pos + 1
		for end < len(l.src) && l.src[end] != '}' {
			end++
		}
		if end < len(l.src) {
			l.write([]rune(l.getenv(string(l.src[l.pos+1 : end])))...)
			l.pos = end + 1
			return
		}
	}

	start := l.pos
	for l.pos < len(l.src) && isNameRune(l.src[l.pos]) {
		l.pos++
	}
	if start == l.pos {
		l.write('$')
		return
	}
	l.write([]rune(l.getenv(string(l.src[start:l.pos])))...)
}

func (l *argvLexer) write(rs ...rune) {
	if len(rs) > 0 {
		l.started = true
	}
	for _, r := range rs {
		l.word.WriteRune(r)
	}
}

func (l *argvLexer) endWord() {
	if !l.started {
		return
	}
	l.argv = append(l.argv, l.word.String())
	l.word.Reset()
	l.started = false
}

func isNameRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
