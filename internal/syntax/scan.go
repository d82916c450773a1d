package syntax

import (
	"fmt"
	"strings"
	"unicode"
)

// blockKeywords open a compound statement whose header must contain a
// top-level colon.
var blockKeywords = map[string]bool{
	"def": true, "class": true, "if": true, "elif": true, "else": true,
	"for": true, "while": true, "with": true, "try": true, "except": true,
	"finally": true,
}

var closers = map[rune]rune{')': '(', ']': '[', '}': '{'}

type bracket struct {
	ch   rune
	line int
}

// scanner is a lexical check of Python source. It tracks string literals,
// comments, bracket nesting and line continuations, which is enough to catch
// the structural mistakes a template or a language model produces.
type scanner struct {
	src   []rune
	pos   int
	line  int
	stack []bracket

	logical      strings.Builder
	logicalStart int
	topColon     bool
}

// checkPython returns the first structural error in code, or nil.
func checkPython(code string) error {
	s := &scanner{src: []rune(code), line: 1, logicalStart: 1}
	return s.run()
}

func (s *scanner) errorf(line int, format string, args ...any) error {
	return fmt.Errorf("Syntax error at line %d: %s", line, fmt.Sprintf(format, args...))
}

func (s *scanner) run() error {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '#':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' {
				s.pos++
			}
			continue
		case c == '\'' || c == '"':
			if err := s.skipString(c); err != nil {
				return err
			}
			s.logical.WriteRune('s')
			continue
		case c == '\\' && s.peek(1) == '\n':
			s.pos += 2
			s.line++
			continue
		case c == '(' || c == '[' || c == '{':
			s.stack = append(s.stack, bracket{ch: c, line: s.line})
		case closers[c] != 0:
			if len(s.stack) == 0 {
				return s.errorf(s.line, "unmatched '%c'", c)
			}
			top := s.stack[len(s.stack)-1]
			if top.ch != closers[c] {
				return s.errorf(s.line, "closing parenthesis '%c' does not match opening parenthesis '%c' on line %d", c, top.ch, top.line)
			}
			s.stack = s.stack[:len(s.stack)-1]
		case c == ':' && len(s.stack) == 0:
			s.topColon = true
		case c == '\n':
			s.line++
			if len(s.stack) == 0 {
				if err := s.endLogical(); err != nil {
					return err
				}
				s.logicalStart = s.line
			}
			s.pos++
			continue
		}
		s.logical.WriteRune(c)
		s.pos++
	}

	if len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		return s.errorf(top.line, "'%c' was never closed", top.ch)
	}
	return s.endLogical()
}

func (s *scanner) peek(n int) rune {
	if s.pos+n < len(s.src) {
		return s.src[s.pos+n]
	}
	return 0
}

// skipString consumes a string literal starting at the current quote.
func (s *scanner) skipString(q rune) error {
	start := s.line
	triple := s.peek(1) == q && s.peek(2) == q
	if triple {
		s.pos += 3
	} else {
		s.pos++
	}

	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			if s.peek(1) == '\n' {
				s.line++
			}
			s.pos += 2
			continue
		case c == '\n':
			if !triple {
				return s.errorf(start, "unterminated string literal")
			}
			s.line++
		case c == q:
			if !triple {
				s.pos++
				return nil
			}
			if s.peek(1) == q && s.peek(2) == q {
				s.pos += 3
				return nil
			}
		}
		s.pos++
	}
	if triple {
		return s.errorf(start, "unterminated triple-quoted string literal")
	}
	return s.errorf(start, "unterminated string literal")
}

// endLogical checks the finished logical line and resets line state.
func (s *scanner) endLogical() error {
	text := strings.TrimSpace(s.logical.String())
	colon := s.topColon
	s.logical.Reset()
	s.topColon = false

	if text == "" {
		return nil
	}
	keyword := leadingWord(text)
	if blockKeywords[keyword] && !colon {
		return s.errorf(s.logicalStart, "expected ':' after '%s'", keyword)
	}
	return nil
}

func leadingWord(text string) string {
	end := strings.IndexFunc(text, func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	if end < 0 {
		return text
	}
	return text[:end]
}
