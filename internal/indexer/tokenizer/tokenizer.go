// Package tokenizer turns text into normalised terms. It applies NFKC
// normalisation and lower-casing, splits on non-alphanumeric boundaries,
// optionally splits CJK runs into unigrams and bigrams, and wraps the
// snowball stemmers.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxWordLength is the longest word (in bytes, after normalisation) that
// produces a term. Longer runs are skipped but still consume a position.
const MaxWordLength = 64

// Token represents a single normalised term, its word position, and the
// byte range of the word in the original text.
type Token struct {
	Term     string
	Position int
	Start    int
	End      int
}

// Options changes how text is split.
type Options struct {
	// CJKNgram emits each CJK character as a unigram and each adjacent
	// pair as a bigram instead of treating a CJK run as one word.
	CJKNgram bool
}

// Tokenize splits text with default options.
func Tokenize(text string) []Token {
	return TokenizeWith(text, Options{})
}

// TokenizeWith breaks text into normalised Tokens. Positions are dense and
// start at 0; CJK bigrams share the position of their first character.
func TokenizeWith(text string, opts Options) []Token {
	tokens := make([]Token, 0, len(text)/6)
	pos := 0
	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !isWordRune(r) {
			i += size
			continue
		}
		start := i
		if opts.CJKNgram && IsCJK(r) {
			i = scan(text, i, IsCJK)
			tokens = appendNgrams(tokens, text[start:i], start, &pos)
			continue
		}
		i = scan(text, i, func(r rune) bool {
			return isWordRune(r) && !(opts.CJKNgram && IsCJK(r))
		})
		term := Normalize(text[start:i])
		if term != "" && len(term) <= MaxWordLength {
			tokens = append(tokens, Token{Term: term, Position: pos, Start: start, End: i})
		}
		pos++
	}
	return tokens
}

func scan(text string, i int, keep func(rune) bool) int {
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if !keep(r) {
			break
		}
		i += size
	}
	return i
}

func appendNgrams(tokens []Token, run string, offset int, pos *int) []Token {
	var prev string
	prevStart := 0
	for j, r := range run {
		uni := Normalize(string(r))
		end := j + utf8.RuneLen(r)
		if prev != "" {
			tokens = append(tokens, Token{
				Term:     prev + uni,
				Position: *pos - 1,
				Start:    offset + prevStart,
				End:      offset + end,
			})
		}
		tokens = append(tokens, Token{Term: uni, Position: *pos, Start: offset + j, End: offset + end})
		prev, prevStart = uni, j
		*pos++
	}
	return tokens
}

// Normalize applies NFKC and lower-cases the result.
func Normalize(word string) string {
	return strings.ToLower(norm.NFKC.String(word))
}

// IsCJK reports whether r belongs to a script that is written without
// spaces between words. Kana sound marks and the prolonged sound mark have
// Common or Inherited script but only occur inside kana words, so they
// count too.
func IsCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r) ||
		isKanaMark(r)
}

func isKanaMark(r rune) bool {
	switch {
	case r >= 0x3099 && r <= 0x309C:
		// combining and spacing (semi-)voiced sound marks
		return true
	case r == 0x30FC, r == 0xFF70, r == 0xFF9E, r == 0xFF9F:
		// ー and its halfwidth forms
		return true
	}
	return false
}

// IsWordRune reports whether r can appear inside a term.
func IsWordRune(r rune) bool {
	return isWordRune(r)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r)
}
