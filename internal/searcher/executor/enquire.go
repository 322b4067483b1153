// Package executor evaluates query trees against a database snapshot and
// returns ranked, paginated match sets.
package executor

import (
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/matchspy"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/metrics"
)

// DocIDOrder decides how documents that rank equally are ordered. Values
// are stable.
type DocIDOrder int

const (
	DocIDDescending DocIDOrder = 0
	DocIDAscending  DocIDOrder = 1
	DocIDDontCare   DocIDOrder = 2
)

type sortMode int

const (
	sortRelevance sortMode = iota
	sortKey
	sortRelevanceThenKey
)

// Enquire runs queries against one database. Configure it, then call
// GetMSet; each call evaluates against a fresh snapshot. It is not safe
// for concurrent use.
type Enquire struct {
	db         database.Reader
	q          *query.Query
	weight     ranker.Weight
	sort       sortMode
	keyMaker   KeyMaker
	reverse    bool
	docIDOrder DocIDOrder
	spies      []matchspy.MatchSpy
	logger     *slog.Logger
}

func New(db database.Reader) *Enquire {
	return &Enquire{
		db:         db,
		weight:     ranker.NewBM25(),
		docIDOrder: DocIDAscending,
		logger:     slog.Default().With("component", "query-executor"),
	}
}

func (e *Enquire) SetQuery(q *query.Query) { e.q = q }

func (e *Enquire) Query() *query.Query { return e.q }

func (e *Enquire) SetWeightingScheme(w ranker.Weight) {
	if w == nil {
		w = ranker.NewBM25()
	}
	e.weight = w
}

// SetSortByRelevance restores the default ranking.
func (e *Enquire) SetSortByRelevance() {
	e.sort, e.keyMaker = sortRelevance, nil
}

// SetSortByValue ranks by the value in slot, ascending unless reverse is
// set. Relevance is ignored.
func (e *Enquire) SetSortByValue(slot uint32, reverse bool) {
	e.SetSortByKey(valueKey(slot), reverse)
}

// SetSortByKey ranks by the key km builds for each match.
func (e *Enquire) SetSortByKey(km KeyMaker, reverse bool) {
	e.sort, e.keyMaker, e.reverse = sortKey, km, reverse
}

// SetSortByRelevanceThenValue ranks by relevance and breaks weight ties by
// the value in slot.
func (e *Enquire) SetSortByRelevanceThenValue(slot uint32, reverse bool) {
	e.sort, e.keyMaker, e.reverse = sortRelevanceThenKey, valueKey(slot), reverse
}

func (e *Enquire) SetDocIDOrder(order DocIDOrder) error {
	if order < DocIDDescending || order > DocIDDontCare {
		return fmt.Errorf("%w: docid order %d", apperrors.ErrInvalidArgument, int(order))
	}
	e.docIDOrder = order
	return nil
}

// AddMatchSpy registers a spy that observes every match of later GetMSet
// calls.
func (e *Enquire) AddMatchSpy(spy matchspy.MatchSpy) {
	e.spies = append(e.spies, spy)
}

func (e *Enquire) ClearMatchSpies() { e.spies = nil }

func (e *Enquire) order() merger.Order {
	return merger.Order{
		Relevance:       e.sort != sortKey,
		Key:             e.sort != sortRelevance,
		ReverseKey:      e.reverse,
		DocIDDescending: e.docIDOrder == DocIDDescending,
	}
}

// GetMSet evaluates the query and returns matches [first, first+maxItems)
// of the ranked order.
func (e *Enquire) GetMSet(first, maxItems int) (*MSet, error) {
	return e.GetMSetCheckAtLeast(first, maxItems, 0)
}

// GetMSetCheckAtLeast is GetMSet but examines at least checkAtLeast
// matches before stopping early, so that counts up to that many are exact.
func (e *Enquire) GetMSetCheckAtLeast(first, maxItems, checkAtLeast int) (*MSet, error) {
	if first < 0 || maxItems < 0 || checkAtLeast < 0 {
		return nil, fmt.Errorf("%w: negative first, maxItems or checkAtLeast", apperrors.ErrInvalidArgument)
	}
	snap, err := e.db.Snapshot()
	if err != nil {
		return nil, err
	}
	st := &evalState{snap: snap}
	coll := ranker.CollectionStats{DocCount: snap.DocCount(), AvgDocLength: snap.AvgLength()}
	b := &builder{st: st, weight: e.weight, coll: coll}
	root, err := b.build(e.q)
	if err != nil {
		return nil, err
	}

	ms := &MSet{snap: snap, first: first, query: e.q, maxPossible: root.maxWeight()}
	top := merger.NewTopK(first+maxItems, e.order().Better())
	// Once the heap is full no later document can displace its worst entry
	// if it cannot exceed that entry's weight.
	canStop := len(e.spies) == 0 && e.sort == sortRelevance && e.docIDOrder != DocIDDescending
	var matched uint32
	var lastDoc uint32
	stopped := false

	for next(root); !exhausted(root); next(root) {
		id := root.doc()
		w := root.weight()
		matched++
		lastDoc = id
		ms.maxAttained = max(ms.maxAttained, w)

		doc := &matchDoc{snap: snap, id: id}
		for _, spy := range e.spies {
			if err := spy.Observe(doc, w); err != nil {
				st.fail(err)
			}
		}
		it := merger.Item{DocID: id, Weight: w}
		if e.keyMaker != nil {
			key, err := e.keyMaker.Key(doc)
			if err != nil {
				st.fail(err)
			}
			it.Key = key
		}
		if st.err != nil {
			return nil, st.err
		}
		top.Push(it)

		if canStop && top.Full() && int(matched) >= checkAtLeast {
			if worst, _ := top.Worst(); worst.Weight >= root.maxWeight() {
				stopped = !exhausted(root)
				break
			}
		}
	}
	if st.err != nil {
		return nil, st.err
	}
	// A writer's snapshot shares its live buffer; a mutation during the
	// walk makes the result unreliable.
	if err := snap.Valid(); err != nil {
		return nil, err
	}

	ms.lower, ms.estimated, ms.upper = matched, matched, matched
	if stopped {
		ms.upper = max(matched, min(root.estimate(), coll.DocCount))
		est := uint64(matched)
		if lastDoc > 0 {
			est = uint64(matched) * uint64(snap.LastDocID()) / uint64(lastDoc)
		}
		ms.estimated = uint32(min(max(est, uint64(ms.lower)), uint64(ms.upper)))
	}
	items := top.Sorted()
	if first < len(items) {
		ms.items = items[first:]
	}

	outcome := "ok"
	if matched == 0 {
		outcome = "zero_result"
	}
	metrics.QueriesTotal.WithLabelValues(outcome).Inc()
	metrics.PostingsScanned.Observe(float64(st.scanned))
	e.logger.Debug("query executed",
		"query", e.q.Description(),
		"matched", matched,
		"estimated", ms.estimated,
		"early_stop", stopped,
		"returned", len(ms.items),
	)
	return ms, nil
}

// matchDoc loads a matching document's values at most once.
type matchDoc struct {
	snap *database.Snapshot
	id   uint32
	doc  *database.Document
}

func (d *matchDoc) ID() uint32 { return d.id }

func (d *matchDoc) Value(slot uint32) ([]byte, error) {
	if d.doc == nil {
		doc, err := d.snap.Document(d.id)
		if err != nil {
			return nil, err
		}
		d.doc = doc
	}
	return d.doc.Value(slot), nil
}
