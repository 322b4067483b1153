package executor

import (
	"fmt"
	"iter"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Match is one ranked result.
type Match struct {
	DocID  uint32  `json:"docid"`
	Weight float64 `json:"weight"`
	// Rank is the 0-based position in the full ranking.
	Rank int `json:"rank"`
	// Percent scales Weight against the best weight of the evaluation.
	Percent int    `json:"percent"`
	SortKey []byte `json:"sort_key,omitempty"`
}

// MSet is a page of ranked matches. It stays bound to the snapshot it was
// computed from: reading documents through it fails once the database is
// closed, reopened or modified.
type MSet struct {
	snap        *database.Snapshot
	query       *query.Query
	first       int
	items       []merger.Item
	lower       uint32
	estimated   uint32
	upper       uint32
	maxPossible float64
	maxAttained float64
}

// Size is the number of matches in the page.
func (m *MSet) Size() int { return len(m.items) }

func (m *MSet) Empty() bool { return len(m.items) == 0 }

// FirstItem is the rank of the first match in the page.
func (m *MSet) FirstItem() int { return m.first }

// MatchesLowerBound is a lower bound on the total number of matches.
func (m *MSet) MatchesLowerBound() uint32 { return m.lower }

// MatchesEstimated is an estimate of the total number of matches, not an
// exact count. It is exact when the lower and upper bounds agree.
func (m *MSet) MatchesEstimated() uint32 { return m.estimated }

// MatchesUpperBound is an upper bound on the total number of matches.
func (m *MSet) MatchesUpperBound() uint32 { return m.upper }

// MaxPossible bounds the weight any document could have had.
func (m *MSet) MaxPossible() float64 { return m.maxPossible }

// MaxAttained is the highest weight of any match seen.
func (m *MSet) MaxAttained() float64 { return m.maxAttained }

func (m *MSet) match(i int) Match {
	it := m.items[i]
	pct := 100
	if m.maxAttained > 0 {
		pct = int(math.Round(100 * it.Weight / m.maxAttained))
	}
	return Match{
		DocID:   it.DocID,
		Weight:  it.Weight,
		Rank:    m.first + i,
		Percent: pct,
		SortKey: it.Key,
	}
}

// Matches returns the page in rank order.
func (m *MSet) Matches() []Match {
	out := make([]Match, len(m.items))
	for i := range m.items {
		out[i] = m.match(i)
	}
	return out
}

// At returns the i-th match of the page.
func (m *MSet) At(i int) (Match, error) {
	if i < 0 || i >= len(m.items) {
		return Match{}, fmt.Errorf("%w: index %d outside mset of size %d", apperrors.ErrInvalidArgument, i, len(m.items))
	}
	return m.match(i), nil
}

// Document fetches the stored document of the i-th match.
func (m *MSet) Document(i int) (*database.Document, error) {
	if i < 0 || i >= len(m.items) {
		return nil, fmt.Errorf("%w: index %d outside mset of size %d", apperrors.ErrInvalidArgument, i, len(m.items))
	}
	return m.snap.Document(m.items[i].DocID)
}

// Valid reports whether the MSet's snapshot can still be read.
func (m *MSet) Valid() error { return m.snap.Valid() }

// All yields the page in rank order. If the database is closed or changed
// during iteration it yields the error once and stops.
func (m *MSet) All() iter.Seq2[Match, error] {
	return func(yield func(Match, error) bool) {
		for i := range m.items {
			if err := m.snap.Valid(); err != nil {
				yield(Match{}, err)
				return
			}
			if !yield(m.match(i), nil) {
				return
			}
		}
	}
}

// Iterator is a single-pass cursor over an MSet.
type Iterator struct {
	m   *MSet
	i   int
	err error
}

// Iterator returns a cursor positioned before the first match.
func (m *MSet) Iterator() *Iterator {
	return &Iterator{m: m, i: -1}
}

// Next advances to the next match. It returns false at the end of the page
// or when the underlying database was closed or changed; Err tells which.
func (it *Iterator) Next() bool {
	if it.err != nil || it.i >= len(it.m.items) {
		return false
	}
	if err := it.m.snap.Valid(); err != nil {
		it.err = err
		return false
	}
	it.i++
	return it.i < len(it.m.items)
}

// Match returns the current match.
func (it *Iterator) Match() Match {
	if it.i < 0 || it.i >= len(it.m.items) {
		return Match{}
	}
	return it.m.match(it.i)
}

// Document fetches the current match's stored document.
func (it *Iterator) Document() (*database.Document, error) {
	if it.err != nil {
		return nil, it.err
	}
	return it.m.Document(it.i)
}

func (it *Iterator) Err() error { return it.err }

// Snippet returns an extract of text of about length bytes around the
// densest cluster of query terms, with matching words wrapped in hiStart
// and hiEnd. omit is added where text was cut. stemmer should be the one
// the query was parsed with, so that stemmed query terms match.
func (m *MSet) Snippet(text string, length int, stemmer *tokenizer.Stemmer, hiStart, hiEnd, omit string) string {
	if text == "" || length <= 0 {
		return ""
	}
	words := queryWords(m.query)
	tokens := tokenizer.Tokenize(text)
	hit := make([]bool, len(tokens))
	for i, tok := range tokens {
		hit[i] = words[tok.Term] || (!stemmer.IsNone() && words[stemmer.Stem(tok.Term)])
	}

	// Start the extract at the hit whose window covers the most hits.
	bestStart, bestHits := 0, 0
	for i := range tokens {
		if !hit[i] {
			continue
		}
		n := 0
		for j := i; j < len(tokens) && tokens[j].End-tokens[i].Start <= length; j++ {
			if hit[j] {
				n++
			}
		}
		if n > bestHits {
			bestStart, bestHits = i, n
		}
	}
	start := 0
	if len(tokens) > 0 && bestHits > 0 {
		start = tokens[bestStart].Start
	}
	end := min(len(text), start+length)
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	// Do not cut a word in half at the end.
	for _, tok := range tokens {
		if tok.Start < end && tok.End > end {
			end = tok.Start
			break
		}
	}

	var sb strings.Builder
	if start > 0 {
		sb.WriteString(omit)
	}
	pos := start
	for i, tok := range tokens {
		if tok.Start < start || tok.End > end || !hit[i] {
			continue
		}
		sb.WriteString(text[pos:tok.Start])
		sb.WriteString(hiStart)
		sb.WriteString(text[tok.Start:tok.End])
		sb.WriteString(hiEnd)
		pos = tok.End
	}
	sb.WriteString(text[pos:end])
	if end < len(text) {
		sb.WriteString(omit)
	}
	return sb.String()
}

// queryWords strips field and stem prefixes from the query's terms,
// leaving the words the user typed.
func queryWords(q *query.Query) map[string]bool {
	words := make(map[string]bool)
	for term := range q.Terms() {
		term = strings.TrimPrefix(term, "Z")
		term = strings.TrimLeftFunc(term, func(r rune) bool { return r >= 'A' && r <= 'Z' })
		if term != "" {
			words[term] = true
		}
	}
	return words
}
