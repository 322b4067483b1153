package ingestion

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/parser"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
)

// Term prefixes of the movie index.
const (
	PrefixTitle    = "T"
	PrefixOverview = "O"
	PrefixID       = "Q"
	PrefixGenre    = "XG"
)

// Value slots of the movie index.
const (
	SlotYear   uint32 = 0 // sortable-serialised release year
	SlotGenres uint32 = 1 // genres joined by ","
	SlotDate   uint32 = 2 // release date as YYYYMMDD
)

// UniqueTerm is the boolean term identifying the movie with the given id.
func UniqueTerm(id int64) string {
	return PrefixID + strconv.FormatInt(id, 10)
}

// Analysis is the text analysis shared by the indexer and the searchers.
// Both sides must use the same stemmer and strategy or stemmed query terms
// will not match the indexed ones.
type Analysis struct {
	Stemmer  *tokenizer.Stemmer
	Strategy tokenizer.StemStrategy
	CJKNgram bool
}

func NewAnalysis(cfg config.IndexerConfig) (*Analysis, error) {
	stemmer, err := tokenizer.NewStemmer(cfg.Stemmer)
	if err != nil {
		return nil, err
	}
	strategy, err := tokenizer.ParseStemStrategy(cfg.StemStrategy)
	if err != nil {
		return nil, err
	}
	return &Analysis{Stemmer: stemmer, Strategy: strategy, CJKNgram: cfg.CJKNgram}, nil
}

// TermGenerator returns a generator configured for movie documents.
func (a *Analysis) TermGenerator() (*indexer.TermGenerator, error) {
	g := indexer.New()
	g.SetStemmer(a.Stemmer)
	if err := g.SetStemmingStrategy(a.Strategy); err != nil {
		return nil, err
	}
	if a.CJKNgram {
		if _, err := g.SetFlags(indexer.FlagCJKNgram, 0); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// ParseFlags is the feature set searchers parse user queries with.
func (a *Analysis) ParseFlags() int {
	flags := parser.FlagDefault | parser.FlagWildcard
	if a.CJKNgram {
		flags |= parser.FlagCJKNgram
	}
	return flags
}

// QueryParser returns a parser that understands the movie fields:
// title:, overview:, id:, genre:, year:A..B and date:A..B.
func (a *Analysis) QueryParser(db database.Reader, maxWildcard int) (*parser.QueryParser, error) {
	qp := parser.New()
	qp.SetStemmer(a.Stemmer)
	if err := qp.SetStemmingStrategy(a.Strategy); err != nil {
		return nil, err
	}
	if db != nil {
		qp.SetDatabase(db)
		if err := qp.SetMaxWildcardExpansion(maxWildcard); err != nil {
			return nil, err
		}
	}
	for name, prefix := range map[string]string{"title": PrefixTitle, "overview": PrefixOverview} {
		if err := qp.AddPrefix(name, prefix); err != nil {
			return nil, err
		}
	}
	for name, prefix := range map[string]string{"id": PrefixID, "genre": PrefixGenre} {
		if err := qp.AddBooleanPrefix(name, prefix); err != nil {
			return nil, err
		}
	}
	years, err := parser.NewNumberRangeProcessor(SlotYear, "year:", 0)
	if err != nil {
		return nil, err
	}
	qp.AddRangeProcessor(years)
	dates, err := parser.NewDateRangeProcessor(SlotDate, "date:", 0)
	if err != nil {
		return nil, err
	}
	qp.AddRangeProcessor(dates)
	return qp, nil
}

// BuildDocument turns m into a document ready for ReplaceDocument under the
// returned unique term. The movie itself is stored as the document data.
// Title and overview are indexed both with their field prefix and without
// one, so free text matches either field.
func BuildDocument(g *indexer.TermGenerator, m *Movie) (*database.Document, string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, "", fmt.Errorf("encoding movie %d: %w", m.ID, err)
	}
	doc := database.NewDocument()
	doc.SetData(data)

	idterm := UniqueTerm(m.ID)
	doc.AddBooleanTerm(idterm)
	for _, genre := range m.Genres {
		doc.AddBooleanTerm(GenreTerm(genre))
	}

	released := m.Released()
	doc.AddInt(SlotYear, int64(released.Year()))
	doc.AddString(SlotGenres, strings.Join(m.Genres, ","))
	doc.AddString(SlotDate, released.Format("20060102"))

	g.SetDocument(doc)
	fields := []struct{ text, prefix string }{
		{m.Title, PrefixTitle},
		{m.Overview, PrefixOverview},
	}
	for _, f := range fields {
		if err := g.IndexTextWithPrefix(f.text, f.prefix); err != nil {
			return nil, "", err
		}
		g.IncreaseTermpos(indexer.DefaultTermposGap)
		if err := g.IndexText(f.text); err != nil {
			return nil, "", err
		}
		g.IncreaseTermpos(indexer.DefaultTermposGap)
	}
	return doc, idterm, nil
}

// GenreTerm is the boolean filter term for a genre. The parser passes
// boolean field values through verbatim, so the genre is lowercased with
// spaces removed to keep genre:science_fiction style queries simple.
func GenreTerm(genre string) string {
	g := strings.ToLower(strings.TrimSpace(genre))
	g = strings.ReplaceAll(g, " ", "_")
	return PrefixGenre + g
}

// DecodeDocument reads the movie stored in a document's data.
func DecodeDocument(doc *database.Document) (Movie, error) {
	var m Movie
	if err := json.Unmarshal(doc.Data(), &m); err != nil {
		return m, fmt.Errorf("decoding document %d: %w", doc.ID(), err)
	}
	return m, nil
}
