// Package indexer turns text into the terms and postings of a
// database.Document.
package indexer

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Flags accepted by SetFlags. Values are stable.
const (
	FlagSpelling = 128
	FlagCJKNgram = 2048

	knownFlags = FlagSpelling | FlagCJKNgram
)

// DefaultTermposGap is the gap IncreaseTermpos callers conventionally leave
// between fields so phrases cannot match across them.
const DefaultTermposGap = 100

// TermGenerator indexes text into a document. It keeps a running term
// position so successive IndexText calls on one document continue where
// the previous call stopped. A TermGenerator is not safe for concurrent
// use.
type TermGenerator struct {
	doc      *database.Document
	stemmer  *tokenizer.Stemmer
	strategy tokenizer.StemStrategy
	stopper  tokenizer.Stopper
	flags    int
	termpos  uint32
}

// New returns a TermGenerator with no stemmer, the StemSome strategy and
// no flags set.
func New() *TermGenerator {
	return &TermGenerator{strategy: tokenizer.StemSome}
}

func (g *TermGenerator) SetStemmer(s *tokenizer.Stemmer) {
	g.stemmer = s
}

func (g *TermGenerator) SetStemmingStrategy(s tokenizer.StemStrategy) error {
	if s < tokenizer.StemNone || s > tokenizer.StemAllZ {
		return fmt.Errorf("%w: stemming strategy %d", apperrors.ErrInvalidArgument, int(s))
	}
	g.strategy = s
	return nil
}

// SetStopper sets the words to leave out of the index. Stopped words still
// consume a position. Nil disables stopping.
func (g *TermGenerator) SetStopper(s tokenizer.Stopper) {
	g.stopper = s
}

// SetFlags sets the flags to (flags & mask) ^ toggle and returns the
// previous flags. Spelling data is not supported.
func (g *TermGenerator) SetFlags(toggle, mask int) (int, error) {
	next := (g.flags & mask) ^ toggle
	if next&^knownFlags != 0 {
		return g.flags, fmt.Errorf("%w: unknown term generator flags %#x", apperrors.ErrInvalidArgument, next&^knownFlags)
	}
	if next&FlagSpelling != 0 {
		return g.flags, fmt.Errorf("%w: spelling data", apperrors.ErrUnimplemented)
	}
	prev := g.flags
	g.flags = next
	return prev, nil
}

func (g *TermGenerator) Flags() int { return g.flags }

// SetDocument directs further indexing into doc and resets the term
// position to 0.
func (g *TermGenerator) SetDocument(doc *database.Document) {
	g.doc = doc
	g.termpos = 0
}

func (g *TermGenerator) Document() *database.Document { return g.doc }

// Termpos is the position of the last word indexed.
func (g *TermGenerator) Termpos() uint32 { return g.termpos }

func (g *TermGenerator) SetTermpos(pos uint32) { g.termpos = pos }

// IncreaseTermpos leaves a gap of delta positions, typically between
// fields, so that phrase and proximity matches do not span them.
func (g *TermGenerator) IncreaseTermpos(delta uint32) {
	g.termpos += delta
}

// IndexText indexes text without a prefix.
func (g *TermGenerator) IndexText(text string) error {
	return g.index(text, "", true)
}

// IndexTextWithPrefix indexes text as terms of the field with the given
// prefix.
func (g *TermGenerator) IndexTextWithPrefix(text, prefix string) error {
	return g.index(text, prefix, true)
}

// IndexTextWithoutPositions indexes text without recording positions. The
// term position still advances.
func (g *TermGenerator) IndexTextWithoutPositions(text, prefix string) error {
	return g.index(text, prefix, false)
}

// IndexInt indexes v as the exact term prefix+decimal(v).
func (g *TermGenerator) IndexInt(v int32, prefix string) error {
	return g.indexExact(prefix + strconv.FormatInt(int64(v), 10))
}

func (g *TermGenerator) IndexLong(v int64, prefix string) error {
	return g.indexExact(prefix + strconv.FormatInt(v, 10))
}

// IndexDouble indexes v using the shortest decimal form that round-trips,
// so 1972.0 yields the same term as IndexInt(1972).
func (g *TermGenerator) IndexDouble(v float64, prefix string) error {
	return g.indexExact(prefix + strconv.FormatFloat(v, 'f', -1, 64))
}

func (g *TermGenerator) indexExact(term string) error {
	if g.doc == nil {
		return fmt.Errorf("%w: no document set", apperrors.ErrInvalidOperation)
	}
	g.termpos++
	g.doc.AddPosting(term, g.termpos, 1)
	return nil
}

func (g *TermGenerator) index(text, prefix string, positional bool) error {
	if g.doc == nil {
		return fmt.Errorf("%w: no document set", apperrors.ErrInvalidOperation)
	}
	tokens := tokenizer.TokenizeWith(text, tokenizer.Options{CJKNgram: g.flags&FlagCJKNgram != 0})
	base := g.termpos
	last := -1
	for _, tok := range tokens {
		last = max(last, tok.Position)
		if g.stopper != nil && g.stopper.IsStop(tok.Term) {
			continue
		}
		g.addWord(tok.Term, prefix, base+uint32(tok.Position)+1, positional)
	}
	g.termpos = base + uint32(last+1)
	return nil
}

func (g *TermGenerator) add(term string, pos uint32, positional bool) {
	if positional {
		g.doc.AddPosting(term, pos, 1)
	} else {
		g.doc.AddTerm(term, 1)
	}
}

func (g *TermGenerator) addWord(word, prefix string, pos uint32, positional bool) {
	r, _ := utf8.DecodeRuneInString(word)
	if g.stemmer.IsNone() || g.strategy == tokenizer.StemNone || tokenizer.IsCJK(r) {
		g.add(prefix+word, pos, positional)
		return
	}
	stem := g.stemmer.Stem(word)
	switch g.strategy {
	case tokenizer.StemSome:
		g.add(prefix+word, pos, positional)
		g.doc.AddTerm("Z"+prefix+stem, 1)
	case tokenizer.StemAll:
		g.add(prefix+stem, pos, positional)
	case tokenizer.StemAllZ:
		g.add("Z"+prefix+stem, pos, positional)
	}
}
