package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// token is a raw argument before it is checked against a schema.
type token struct {
	kind   tokenKind
	text   string
	number float64
	params map[string]Value
}

type tokenKind int

const (
	tokQuoted tokenKind = iota + 1
	tokBare
	tokNumber
	tokParams
)

// splitCall separates "name(args)" into its name and argument text. ok is
// false when s does not have call syntax: the parenthesis after the name
// must be the one closed at the end of s, and the argument text must be a
// literal list with no shell syntax in it.
func splitCall(s string) (name, args string, ok bool) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", "", false
	}
	name = s[:open]
	if !isIdent(name) {
		return "", "", false
	}
	args = s[open+1 : len(s)-1]
	if !literalArgs(args) {
		return "", "", false
	}
	return name, args, true
}

// shellSyntax holds the characters that never appear unquoted in a literal
// argument list.
const shellSyntax = "()<>|&;$`\\\n\r"

// literalArgs reports whether src lexes as quoted strings, single-word bare
// values and {key: value} blocks separated by commas. Text meant for the
// shell fails here even where parseArgs would accept it.
func literalArgs(src string) bool {
	var (
		quote  byte
		inWord bool // inside a bare word
		closed bool // the current value ended; only a separator may follow
	)
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch {
			case c == '\\' && quote == '"':
				i++
			case c == quote:
				quote = 0
				closed = true
			}
			continue
		}
		switch {
		case c == '"' || c == '\'':
			if inWord || closed {
				return false
			}
			quote = c
		case strings.IndexByte(",{}:", c) >= 0:
			inWord, closed = false, false
		case c == ' ' || c == '\t':
			if inWord {
				closed = true
			}
		case strings.IndexByte(shellSyntax, c) >= 0:
			return false
		default:
			if closed {
				return false
			}
			inWord = true
		}
	}
	return quote == 0
}

func isIdent(s string) bool {
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return s != ""
}

// scanner tokenises an argument list. It understands double-quoted strings
// with Go escapes, single-quoted raw strings, numbers, flat {key: value}
// blocks and bare words. Nothing is evaluated.
type scanner struct {
	src string
	pos int
}

func parseArgs(src string) ([]token, error) {
	s := &scanner{src: src}
	s.skipSpace()
	if s.done() {
		return nil, nil
	}
	var out []token
	for {
		tok, err := s.value(true)
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		s.skipSpace()
		if s.done() {
			return out, nil
		}
		if s.src[s.pos] != ',' {
			return nil, fmt.Errorf("expected ',' at offset %d", s.pos)
		}
		s.pos++
		s.skipSpace()
	}
}

func (s *scanner) done() bool { return s.pos >= len(s.src) }

func (s *scanner) skipSpace() {
	for !s.done() && unicode.IsSpace(rune(s.src[s.pos])) {
		s.pos++
	}
}

func (s *scanner) value(allowBlock bool) (token, error) {
	if s.done() {
		return token{}, fmt.Errorf("missing argument at offset %d", s.pos)
	}
	switch c := s.src[s.pos]; {
	case c == '"' || c == '\'':
		text, err := s.quoted(c)
		return token{kind: tokQuoted, text: text}, err
	case c == '{':
		if !allowBlock {
			return token{}, fmt.Errorf("nested parameter block at offset %d", s.pos)
		}
		params, err := s.block()
		return token{kind: tokParams, params: params}, err
	default:
		word := s.bare()
		if word == "" {
			return token{}, fmt.Errorf("empty argument at offset %d", s.pos)
		}
		if f, err := strconv.ParseFloat(word, 64); err == nil {
			return token{kind: tokNumber, number: f, text: word}, nil
		}
		return token{kind: tokBare, text: word}, nil
	}
}

func (s *scanner) quoted(q byte) (string, error) {
	start := s.pos
	s.pos++
	for !s.done() {
		c := s.src[s.pos]
		if c == '\\' && q == '"' {
			s.pos += 2
			continue
		}
		if c == q {
			s.pos++
			raw := s.src[start:s.pos]
			if q == '\'' {
				return raw[1 : len(raw)-1], nil
			}
			text, err := strconv.Unquote(raw)
			if err != nil {
				return "", fmt.Errorf("bad string %s: %w", raw, err)
			}
			return text, nil
		}
		s.pos++
	}
	return "", fmt.Errorf("unterminated string at offset %d", start)
}

func (s *scanner) bare() string {
	start := s.pos
	for !s.done() && !strings.ContainsRune(",{}:'\"", rune(s.src[s.pos])) {
		s.pos++
	}
	return strings.TrimSpace(s.src[start:s.pos])
}

func (s *scanner) block() (map[string]Value, error) {
	s.pos++ // '{'
	out := make(map[string]Value)
	for {
		s.skipSpace()
		if s.done() {
			return nil, fmt.Errorf("unterminated parameter block")
		}
		if s.src[s.pos] == '}' {
			s.pos++
			return out, nil
		}
		key, err := s.value(false)
		if err != nil {
			return nil, err
		}
		if key.kind == tokParams || key.text == "" {
			return nil, fmt.Errorf("bad parameter key at offset %d", s.pos)
		}
		s.skipSpace()
		if s.done() || s.src[s.pos] != ':' {
			return nil, fmt.Errorf("expected ':' after key %q", key.text)
		}
		s.pos++
		s.skipSpace()
		val, err := s.value(false)
		if err != nil {
			return nil, err
		}
		if _, dup := out[key.text]; dup {
			return nil, fmt.Errorf("duplicate parameter %q", key.text)
		}
		if val.kind == tokNumber {
			out[key.text] = Value{IsNumber: true, Number: val.number}
		} else {
			out[key.text] = Value{Text: val.text}
		}
		s.skipSpace()
		if !s.done() && s.src[s.pos] == ',' {
			s.pos++
		}
	}
}
