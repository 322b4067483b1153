package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

type tokenKind int

const (
	tEOF tokenKind = iota
	tWord
	tPhrase
	tRange
	tLParen
	tRParen
	tAnd
	tOr
	tNot
	tXor
	tNear
	tAdj
	tLove
	tHate
)

var kindNames = [...]string{
	tEOF: "end of query", tWord: "word", tPhrase: "phrase", tRange: "range",
	tLParen: "(", tRParen: ")", tAnd: "AND", tOr: "OR", tNot: "NOT",
	tXor: "XOR", tNear: "NEAR", tAdj: "ADJ", tLove: "+", tHate: "-",
}

func (k tokenKind) String() string { return kindNames[k] }

// token is one lexical item. text is the raw word, phrase body or range;
// field is the name before a "field:" qualifier, if any.
type token struct {
	kind   tokenKind
	pos    int
	text   string
	field  string
	window uint32
}

type lexer struct {
	src    string
	flags  int
	fields map[string]*field
	ranges bool
	toks   []token
}

// lex splits src into tokens. Boolean operators are only recognised with
// FlagBoolean, and only in upper case unless FlagBooleanAnyCase is set.
func lex(src string, flags int, fields map[string]*field, ranges bool) ([]token, error) {
	l := &lexer{src: src, flags: flags, fields: fields, ranges: ranges}
	if err := l.run(); err != nil {
		return nil, err
	}
	l.toks = append(l.toks, token{kind: tEOF, pos: len(src)})
	return l.toks, nil
}

func (l *lexer) emit(t token) { l.toks = append(l.toks, t) }

func (l *lexer) run() error {
	i := 0
	atStart := true
	for i < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
			atStart = true
			continue
		case r == '(':
			l.emit(token{kind: tLParen, pos: i})
			i++
			atStart = true
			continue
		case r == ')':
			l.emit(token{kind: tRParen, pos: i})
			i++
			atStart = true
			continue
		case r == '"':
			if l.flags&FlagPhrase == 0 {
				i++
				continue
			}
			next, err := l.phrase(i, "")
			if err != nil {
				return err
			}
			i = next
			atStart = true
			continue
		case (r == '+' || r == '-') && atStart && l.flags&FlagLoveHate != 0 && i+1 < len(l.src):
			nr, _ := utf8.DecodeRuneInString(l.src[i+1:])
			if !unicode.IsSpace(nr) && nr != '+' && nr != '-' && nr != ')' {
				kind := tLove
				if r == '-' {
					kind = tHate
				}
				l.emit(token{kind: kind, pos: i})
				i++
				continue
			}
		}
		next, err := l.chunk(i)
		if err != nil {
			return err
		}
		i = next
		atStart = true
	}
	return nil
}

// chunkEnd returns the end of the run of characters starting at i that
// are not spaces, parentheses or quotes.
func (l *lexer) chunkEnd(i int) int {
	for i < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[i:])
		if unicode.IsSpace(r) || r == '(' || r == ')' || r == '"' {
			break
		}
		i += size
	}
	return i
}

func (l *lexer) chunk(start int) (int, error) {
	end := l.chunkEnd(start)
	raw := l.src[start:end]
	if l.ranges && strings.Contains(raw, "..") {
		l.emit(token{kind: tRange, pos: start, text: raw})
		return end, nil
	}

	if name, rest, ok := strings.Cut(l.src[start:], ":"); ok && isFieldName(name) {
		if _, known := l.fields[name]; known {
			at := start + len(name) + 1
			switch {
			case strings.HasPrefix(rest, "\"") && l.flags&FlagPhrase != 0:
				return l.phrase(at, name)
			case strings.HasPrefix(rest, "("):
				l.emit(token{kind: tLParen, pos: at, field: name})
				return at + 1, nil
			case at < end:
				l.emit(token{kind: tWord, pos: at, text: l.src[at:end], field: name})
				return end, nil
			}
		}
	}

	if kind, window, ok := l.operator(raw); ok {
		l.emit(token{kind: kind, pos: start, window: window})
		return end, nil
	}
	l.emit(token{kind: tWord, pos: start, text: raw})
	return end, nil
}

func (l *lexer) phrase(open int, fieldName string) (int, error) {
	closeAt := strings.IndexByte(l.src[open+1:], '"')
	if closeAt < 0 {
		return 0, apperrors.NewQueryParserError(open, "unterminated quote")
	}
	body := l.src[open+1 : open+1+closeAt]
	l.emit(token{kind: tPhrase, pos: open, text: body, field: fieldName})
	return open + closeAt + 2, nil
}

// operator recognises AND, OR, NOT, XOR and the positional NEAR/n and
// ADJ/n.
func (l *lexer) operator(raw string) (tokenKind, uint32, bool) {
	if l.flags&FlagBoolean == 0 {
		return 0, 0, false
	}
	word := raw
	if l.flags&FlagBooleanAnyCase != 0 {
		word = strings.ToUpper(raw)
	}
	switch word {
	case "AND":
		return tAnd, 0, true
	case "OR":
		return tOr, 0, true
	case "NOT":
		return tNot, 0, true
	case "XOR":
		return tXor, 0, true
	}
	for _, op := range []struct {
		name string
		kind tokenKind
	}{{"NEAR", tNear}, {"ADJ", tAdj}} {
		rest, ok := strings.CutPrefix(word, op.name)
		if !ok {
			continue
		}
		if rest == "" {
			return op.kind, defaultNearWindow, true
		}
		if n, ok := parseWindow(rest); ok {
			return op.kind, n, true
		}
	}
	return 0, 0, false
}

func parseWindow(s string) (uint32, bool) {
	digits, ok := strings.CutPrefix(s, "/")
	if !ok || digits == "" || len(digits) > 4 {
		return 0, false
	}
	var n uint32
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + uint32(c-'0')
	}
	return n, true
}

func isFieldName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
