package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/matchspy"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/tracing"
)

const (
	snippetLength = 100
	facetLimit    = 50
)

// Facets that can be requested by name.
var facetSlots = map[string]uint32{
	"genres": ingestion.SlotGenres,
	"date":   ingestion.SlotDate,
}

// Sort orders that can be requested by name. A leading "-" reverses.
var sortSlots = map[string]uint32{
	"year": ingestion.SlotYear,
	"date": ingestion.SlotDate,
}

// Request is one search.
type Request struct {
	Query        string
	Offset       int
	Limit        int
	CheckAtLeast int
	Facets       []string
	Sort         string
}

// Result is one matching movie.
type Result struct {
	Rank    int             `json:"rank"`
	DocID   uint32          `json:"docid"`
	Weight  float64         `json:"weight"`
	Percent int             `json:"percent"`
	Movie   ingestion.Movie `json:"movie"`
	Snippet string          `json:"snippet,omitempty"`
}

// Response is the page of results for a Request.
type Response struct {
	Query            string                            `json:"query"`
	Parsed           string                            `json:"parsed"`
	Offset           int                               `json:"offset"`
	MatchesEstimated uint32                            `json:"matches_estimated"`
	MatchesLower     uint32                            `json:"matches_lower_bound"`
	MatchesUpper     uint32                            `json:"matches_upper_bound"`
	Results          []Result                          `json:"results"`
	Facets           map[string][]matchspy.ValueCount `json:"facets,omitempty"`
}

// Searcher runs movie searches against a database, optionally through the
// result cache. It is safe for concurrent use.
type Searcher struct {
	db       database.Reader
	analysis *ingestion.Analysis
	cache    *cache.QueryCache
	cfg      config.SearchConfig
	logger   *slog.Logger
}

// NewSearcher returns a Searcher. queryCache may be nil.
func NewSearcher(db database.Reader, analysis *ingestion.Analysis, queryCache *cache.QueryCache, cfg config.SearchConfig) *Searcher {
	return &Searcher{
		db:       db,
		analysis: analysis,
		cache:    queryCache,
		cfg:      cfg,
		logger:   slog.Default().With("component", "searcher"),
	}
}

// normalize applies defaults and limits and rejects unknown names.
func (s *Searcher) normalize(req *Request) error {
	if req.Offset < 0 || req.Limit < 0 || req.CheckAtLeast < 0 {
		return fmt.Errorf("%w: offset, limit and check_at_least must not be negative", apperrors.ErrInvalidArgument)
	}
	if req.Limit == 0 {
		req.Limit = s.cfg.DefaultLimit
	}
	if s.cfg.MaxResults > 0 {
		req.Limit = min(req.Limit, s.cfg.MaxResults)
		if req.Offset+req.Limit > s.cfg.MaxResults {
			return fmt.Errorf("%w: results beyond %d are not available", apperrors.ErrInvalidArgument, s.cfg.MaxResults)
		}
	}
	for _, f := range req.Facets {
		if _, ok := facetSlots[f]; !ok {
			return fmt.Errorf("%w: unknown facet %q", apperrors.ErrInvalidArgument, f)
		}
	}
	if key := strings.TrimPrefix(req.Sort, "-"); req.Sort != "" && req.Sort != "relevance" {
		if _, ok := sortSlots[key]; !ok {
			return fmt.Errorf("%w: unknown sort %q", apperrors.ErrInvalidArgument, req.Sort)
		}
	}
	return nil
}

// Search returns the encoded JSON Response for req and whether it came
// from the cache.
func (s *Searcher) Search(ctx context.Context, req Request) ([]byte, bool, error) {
	start := time.Now()
	if err := s.normalize(&req); err != nil {
		return nil, false, err
	}
	ctx, span := tracing.StartSpan(ctx, "search", logger.RequestID(ctx))
	defer func() {
		span.End()
		span.Log(ctx, s.logger)
	}()
	compute := func() ([]byte, error) {
		resp, err := s.evaluate(ctx, req)
		if err != nil {
			return nil, err
		}
		return json.Marshal(resp)
	}

	cacheStatus := "disabled"
	var (
		data []byte
		hit  bool
		err  error
	)
	if s.cache != nil {
		snap, serr := s.db.Snapshot()
		if serr != nil {
			return nil, false, serr
		}
		key := cache.Key{
			DatabaseUUID: snap.UUID(),
			Revision:     snap.Revision(),
			Query:        req.Query,
			Flags:        s.analysis.ParseFlags(),
			First:        req.Offset,
			MaxItems:     req.Limit,
			CheckAtLeast: req.CheckAtLeast,
			Sort:         req.Sort,
		}
		for _, f := range req.Facets {
			key.Facets = append(key.Facets, facetSlots[f])
		}
		data, hit, err = s.cache.GetOrCompute(ctx, key, compute)
		cacheStatus = "miss"
		if hit {
			cacheStatus = "hit"
		}
		span.SetAttr("cache", cacheStatus)
	} else {
		data, err = compute()
	}
	if err != nil {
		outcome := "error"
		if errors.Is(err, apperrors.ErrQueryParser) {
			outcome = "parse_error"
		}
		metrics.QueriesTotal.WithLabelValues(outcome).Inc()
		return nil, false, err
	}
	metrics.QueryLatency.WithLabelValues(cacheStatus).Observe(time.Since(start).Seconds())
	return data, hit, nil
}

// evaluate runs req, retrying when a reopen invalidates the snapshot the
// evaluation was reading.
func (s *Searcher) evaluate(ctx context.Context, req Request) (*Response, error) {
	var resp *Response
	retry := resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 5 * time.Millisecond,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrIteratorInvalidated)
		},
	}
	err := resilience.Retry(ctx, "search", retry, func() error {
		return resilience.WithTimeout(ctx, s.cfg.Timeout, "search", func(ctx context.Context) error {
			var err error
			resp, err = s.run(ctx, req)
			return err
		})
	})
	if err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Debug("search evaluated",
		"query", req.Query,
		"parsed", resp.Parsed,
		"estimated", resp.MatchesEstimated,
		"returned", len(resp.Results),
	)
	return resp, nil
}

func (s *Searcher) run(ctx context.Context, req Request) (*Response, error) {
	_, parseSpan := tracing.StartChildSpan(ctx, "parse")
	q := query.MatchAll()
	if strings.TrimSpace(req.Query) != "" {
		qp, err := s.analysis.QueryParser(s.db, s.cfg.MaxWildcardExpansion)
		if err != nil {
			parseSpan.End()
			return nil, err
		}
		if q, err = qp.Parse(req.Query, s.analysis.ParseFlags()); err != nil {
			parseSpan.End()
			return nil, err
		}
	}
	parseSpan.End()

	enq := executor.New(s.db)
	enq.SetQuery(q)
	if req.Sort != "" && req.Sort != "relevance" {
		enq.SetSortByValue(sortSlots[strings.TrimPrefix(req.Sort, "-")], strings.HasPrefix(req.Sort, "-"))
	}
	spies := make(map[string]*matchspy.ValueCountMatchSpy, len(req.Facets))
	for _, f := range req.Facets {
		spy := matchspy.NewValueCountMatchSpy(facetSlots[f])
		spies[f] = spy
		enq.AddMatchSpy(spy)
	}

	_, matchSpan := tracing.StartChildSpan(ctx, "match")
	ms, err := enq.GetMSetCheckAtLeast(req.Offset, req.Limit, req.CheckAtLeast)
	if err != nil {
		matchSpan.SetAttr("error", err.Error())
		matchSpan.End()
		return nil, err
	}
	matchSpan.SetAttr("estimated", ms.MatchesEstimated())
	matchSpan.End()

	_, fetchSpan := tracing.StartChildSpan(ctx, "fetch")
	defer fetchSpan.End()
	resp := &Response{
		Query:            req.Query,
		Parsed:           q.Description(),
		Offset:           ms.FirstItem(),
		MatchesEstimated: ms.MatchesEstimated(),
		MatchesLower:     ms.MatchesLowerBound(),
		MatchesUpper:     ms.MatchesUpperBound(),
		Results:          make([]Result, 0, ms.Size()),
	}
	for i := range ms.Size() {
		m, err := ms.At(i)
		if err != nil {
			return nil, err
		}
		doc, err := ms.Document(i)
		if err != nil {
			return nil, err
		}
		movie, err := ingestion.DecodeDocument(doc)
		if err != nil {
			return nil, err
		}
		resp.Results = append(resp.Results, Result{
			Rank:    m.Rank,
			DocID:   m.DocID,
			Weight:  m.Weight,
			Percent: m.Percent,
			Movie:   movie,
			Snippet: ms.Snippet(movie.Overview, snippetLength, s.analysis.Stemmer, "<b>", "</b>", "..."),
		})
	}
	if len(spies) > 0 {
		resp.Facets = make(map[string][]matchspy.ValueCount, len(spies))
		for name, spy := range spies {
			resp.Facets[name] = spy.TopValues(facetLimit)
		}
	}
	return resp, nil
}

// Movie returns the stored movie with the given id.
func (s *Searcher) Movie(id int64) (*ingestion.Movie, error) {
	snap, err := s.db.Snapshot()
	if err != nil {
		return nil, err
	}
	pl, err := snap.PostingList(ingestion.UniqueTerm(id))
	if err != nil {
		return nil, err
	}
	if len(pl) == 0 {
		return nil, fmt.Errorf("%w: movie %d", apperrors.ErrDocNotFound, id)
	}
	doc, err := snap.Document(pl[0].DocID)
	if err != nil {
		return nil, err
	}
	movie, err := ingestion.DecodeDocument(doc)
	if err != nil {
		return nil, err
	}
	return &movie, nil
}

// Stats describes the revision a Searcher currently reads.
type Stats struct {
	UUID      string  `json:"uuid"`
	Revision  uint64  `json:"revision"`
	DocCount  uint32  `json:"doc_count"`
	LastDocID uint32  `json:"last_docid"`
	AvgLength float64 `json:"avg_length"`
}

func (s *Searcher) Stats() (*Stats, error) {
	snap, err := s.db.Snapshot()
	if err != nil {
		return nil, err
	}
	return &Stats{
		UUID:      snap.UUID(),
		Revision:  snap.Revision(),
		DocCount:  snap.DocCount(),
		LastDocID: snap.LastDocID(),
		AvgLength: snap.AvgLength(),
	}, nil
}
