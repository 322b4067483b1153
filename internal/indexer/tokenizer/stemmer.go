package tokenizer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/kljensen/snowball"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// StemStrategy selects which terms are stemmed. Values are stable.
type StemStrategy int

const (
	// StemNone indexes words unstemmed.
	StemNone StemStrategy = 0
	// StemSome indexes unstemmed positional terms plus a "Z"-prefixed
	// stemmed term without positions.
	StemSome StemStrategy = 1
	// StemAll replaces each word by its stem, keeping positions.
	StemAll StemStrategy = 2
	// StemAllZ replaces each word by its "Z"-prefixed stem, keeping positions.
	StemAllZ StemStrategy = 3
)

func (s StemStrategy) String() string {
	switch s {
	case StemNone:
		return "none"
	case StemSome:
		return "some"
	case StemAll:
		return "all"
	case StemAllZ:
		return "all_z"
	default:
		return fmt.Sprintf("StemStrategy(%d)", int(s))
	}
}

func ParseStemStrategy(s string) (StemStrategy, error) {
	switch strings.ToLower(s) {
	case "none":
		return StemNone, nil
	case "", "some":
		return StemSome, nil
	case "all":
		return StemAll, nil
	case "all_z":
		return StemAllZ, nil
	}
	return StemNone, fmt.Errorf("%w: unknown stemming strategy %q", apperrors.ErrInvalidArgument, s)
}

var languageAliases = map[string]string{
	"en": "english", "english": "english",
	"es": "spanish", "spanish": "spanish",
	"fr": "french", "french": "french",
	"ru": "russian", "russian": "russian",
	"sv": "swedish", "swedish": "swedish",
	"no": "norwegian", "nb": "norwegian", "norwegian": "norwegian",
	"hu": "hungarian", "hungarian": "hungarian",
}

// Stemmer reduces words to their stem for one language. The zero value and
// the "none" stemmer return words unchanged.
type Stemmer struct {
	language string
}

// NewStemmer accepts a snowball language name or its ISO 639-1 code.
// An empty name or "none" yields a stemmer that does nothing.
func NewStemmer(language string) (*Stemmer, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" || language == "none" {
		return &Stemmer{}, nil
	}
	name, ok := languageAliases[language]
	if !ok {
		return nil, fmt.Errorf("%w: no stemmer for language %q", apperrors.ErrInvalidArgument, language)
	}
	return &Stemmer{language: name}, nil
}

func (s *Stemmer) Language() string {
	if s == nil || s.language == "" {
		return "none"
	}
	return s.language
}

// IsNone reports whether Stem is the identity.
func (s *Stemmer) IsNone() bool {
	return s == nil || s.language == ""
}

// Stem returns the stem of an already normalised word. Words containing
// digits are returned unchanged.
func (s *Stemmer) Stem(word string) string {
	if s.IsNone() || strings.IndexFunc(word, unicode.IsDigit) >= 0 {
		return word
	}
	stemmed, err := snowball.Stem(word, s.language, true)
	if err != nil || stemmed == "" {
		return word
	}
	return stemmed
}

// Stopper decides whether a word is too common to index or search for.
type Stopper interface {
	IsStop(word string) bool
}

// StopList is a set-backed Stopper.
type StopList map[string]struct{}

func (l StopList) IsStop(word string) bool {
	_, ok := l[word]
	return ok
}

func NewStopList(words ...string) StopList {
	l := make(StopList, len(words))
	for _, w := range words {
		l[Normalize(w)] = struct{}{}
	}
	return l
}

var EnglishStopWords = NewStopList(
	"a", "an", "and", "are", "as", "at",
	"be", "by", "for", "from", "has", "he",
	"in", "is", "it", "its", "of", "on",
	"or", "that", "the", "to", "was", "were",
	"will", "with", "this", "but", "they",
	"have", "had", "what", "when", "where",
	"who", "which", "their", "if", "each",
	"do", "not", "no", "so", "can",
)
