// Package ranker provides the weighting schemes used to score matching
// documents.
package ranker

import (
	"fmt"
	"math"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// CollectionStats describes the database a query runs against.
type CollectionStats struct {
	DocCount     uint32
	AvgDocLength float64
}

// TermStats describes one query term.
type TermStats struct {
	DocFreq  uint32
	CollFreq uint64
	// Wqf is the term's frequency within the query.
	Wqf uint32
}

// Weight is a weighting scheme. It prepares a TermWeight per query term.
type Weight interface {
	Name() string
	Prepare(coll CollectionStats, term TermStats) TermWeight
}

// TermWeight scores one term's occurrence in one document.
type TermWeight interface {
	Score(wdf, docLength uint32) float64
	// MaxScore bounds Score over every document.
	MaxScore() float64
}

// New returns the weighting scheme with the given name: "bm25", "tfidf" or
// "bool".
func New(name string) (Weight, error) {
	switch strings.ToLower(name) {
	case "", "bm25":
		return NewBM25(), nil
	case "tfidf":
		return TfIdf{}, nil
	case "bool":
		return Bool{}, nil
	}
	return nil, fmt.Errorf("%w: unknown weighting scheme %q", apperrors.ErrInvalidArgument, name)
}

const (
	k1 = 1.2
	b  = 0.75
)

// BM25 is the default weighting scheme.
type BM25 struct {
	K1 float64
	B  float64
}

func NewBM25() BM25 { return BM25{K1: k1, B: b} }

func (BM25) Name() string { return "bm25" }

func (w BM25) Prepare(coll CollectionStats, term TermStats) TermWeight {
	wqf := float64(max(term.Wqf, 1))
	return bm25Term{
		k1:     w.K1,
		b:      w.B,
		avgLen: coll.AvgDocLength,
		idf:    computeIDF(int64(coll.DocCount), int64(term.DocFreq)) * wqf,
	}
}

type bm25Term struct {
	k1, b  float64
	avgLen float64
	idf    float64
}

func (t bm25Term) Score(wdf, docLength uint32) float64 {
	if wdf == 0 || t.avgLen == 0 {
		return 0
	}
	return t.idf * computeTFNorm(float64(wdf), float64(docLength), t.avgLen, t.k1, t.b)
}

// MaxScore is the limit of the tf component as wdf grows.
func (t bm25Term) MaxScore() float64 {
	if t.avgLen == 0 {
		return 0
	}
	return t.idf * (t.k1 + 1)
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq, docLength, avgDocLength, k1, b float64) float64 {
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}

// TfIdf weights by log-scaled term frequency times inverse document
// frequency.
type TfIdf struct{}

func (TfIdf) Name() string { return "tfidf" }

func (TfIdf) Prepare(coll CollectionStats, term TermStats) TermWeight {
	idf := 0.0
	if term.DocFreq > 0 && coll.DocCount > 0 {
		idf = math.Log(float64(coll.DocCount)/float64(term.DocFreq)) + 1
	}
	return tfidfTerm{
		idf:    idf * float64(max(term.Wqf, 1)),
		maxWdf: max(term.CollFreq, 1),
	}
}

type tfidfTerm struct {
	idf    float64
	maxWdf uint64
}

func (t tfidfTerm) Score(wdf, _ uint32) float64 {
	if wdf == 0 {
		return 0
	}
	return (1 + math.Log(float64(wdf))) * t.idf
}

func (t tfidfTerm) MaxScore() float64 {
	return (1 + math.Log(float64(t.maxWdf))) * t.idf
}

// Bool gives every match weight 0, for pure boolean retrieval.
type Bool struct{}

func (Bool) Name() string { return "bool" }

func (Bool) Prepare(CollectionStats, TermStats) TermWeight { return boolTerm{} }

type boolTerm struct{}

func (boolTerm) Score(uint32, uint32) float64 { return 0 }

func (boolTerm) MaxScore() float64 { return 0 }
