package executor

import (
	"fmt"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// builder turns a query tree into a cursor tree over one snapshot.
type builder struct {
	st     *evalState
	weight ranker.Weight
	coll   ranker.CollectionStats
	ids    []uint32
}

// allIDs lists the live documents once per evaluation; match-all and value
// nodes share it.
func (b *builder) allIDs() ([]uint32, error) {
	if b.ids == nil {
		ids, err := b.st.snap.DocIDs()
		if err != nil {
			return nil, err
		}
		b.ids = ids
	}
	return b.ids, nil
}

func (b *builder) termCursor(term string, wqf uint32) (*termCursor, error) {
	pl, err := b.st.snap.PostingList(term)
	if err != nil {
		return nil, err
	}
	return b.postingCursor(pl, wqf), nil
}

func (b *builder) postingCursor(pl index.PostingList, wqf uint32) *termCursor {
	ts := ranker.TermStats{DocFreq: uint32(len(pl)), Wqf: wqf}
	for _, p := range pl {
		ts.CollFreq += uint64(p.Frequency)
	}
	return newTermCursor(b.st, pl, b.weight.Prepare(b.coll, ts))
}

func (b *builder) build(q *query.Query) (cursor, error) {
	switch q.Op() {
	case query.OpLeafMatchNothing:
		return emptyCursor{}, nil
	case query.OpLeafTerm:
		return b.termCursor(q.Term(), q.Wqf())
	case query.OpLeafMatchAll:
		ids, err := b.allIDs()
		if err != nil {
			return nil, err
		}
		return &idCursor{ids: ids}, nil
	case query.OpValueRange, query.OpValueGE, query.OpValueLE:
		return b.valueCursor(q)
	case query.OpScaleWeight:
		c, err := b.build(q.Children()[0])
		if err != nil {
			return nil, err
		}
		return &scaleCursor{cursor: c, factor: q.Factor()}, nil
	case query.OpSynonym:
		return b.synonym(q.Children())
	case query.OpNear, query.OpPhrase:
		return b.positional(q)
	}

	kids, err := b.buildAll(q.Children())
	if err != nil {
		return nil, err
	}
	switch q.Op() {
	case query.OpAnd:
		return newAndCursor(kids, kids), nil
	case query.OpFilter:
		return newAndCursor(kids, kids[:1]), nil
	case query.OpOr:
		return b.or(kids), nil
	case query.OpXor:
		c := b.or(kids)
		c.odd = true
		return c, nil
	case query.OpAndNot:
		return &andNotCursor{pos: kids[0], neg: b.orOf(kids[1:])}, nil
	case query.OpAndMaybe:
		return &andMaybeCursor{req: kids[0], opt: b.orOf(kids[1:])}, nil
	case query.OpEliteSet:
		return b.eliteSet(kids, int(q.EliteSetSize())), nil
	}
	return nil, fmt.Errorf("%w: cannot evaluate %s", apperrors.ErrInvalidArgument, q.Op())
}

func (b *builder) buildAll(qs []*query.Query) ([]cursor, error) {
	kids := make([]cursor, 0, len(qs))
	for _, sub := range qs {
		c, err := b.build(sub)
		if err != nil {
			return nil, err
		}
		kids = append(kids, c)
	}
	return kids, nil
}

func (b *builder) or(kids []cursor) *orCursor {
	return &orCursor{kids: kids, limit: b.coll.DocCount}
}

func (b *builder) orOf(kids []cursor) cursor {
	if len(kids) == 1 {
		return kids[0]
	}
	return b.or(kids)
}

func (b *builder) valueCursor(q *query.Query) (cursor, error) {
	ids, err := b.allIDs()
	if err != nil {
		return nil, err
	}
	slot := q.Slot()
	lo, hi := q.Bounds()
	return &idCursor{ids: ids, keep: func(id uint32) bool {
		return valueInRange(b.st.value(id, slot), lo, hi)
	}}, nil
}

// synonym treats its term children as one term: their postings are merged
// with wdfs summed and weighted with the merged statistics. Other children
// only widen the match set.
func (b *builder) synonym(children []*query.Query) (cursor, error) {
	var lists []index.PostingList
	var others []cursor
	var wqf uint32
	for _, child := range children {
		if child.Op() == query.OpLeafTerm {
			pl, err := b.st.snap.PostingList(child.Term())
			if err != nil {
				return nil, err
			}
			lists = append(lists, pl)
			wqf = max(wqf, child.Wqf())
			continue
		}
		c, err := b.build(child)
		if err != nil {
			return nil, err
		}
		others = append(others, &scaleCursor{cursor: c})
	}
	merged := mergeSynonyms(lists)
	c := cursor(b.postingCursor(merged, wqf))
	if len(others) == 0 {
		return c, nil
	}
	return b.or(append([]cursor{c}, others...)), nil
}

func mergeSynonyms(lists []index.PostingList) index.PostingList {
	byDoc := make(map[uint32]index.Posting)
	for _, pl := range lists {
		for _, p := range pl {
			acc := byDoc[p.DocID]
			acc.DocID = p.DocID
			acc.Frequency += p.Frequency
			acc.Positions = append(acc.Positions, p.Positions...)
			byDoc[p.DocID] = acc
		}
	}
	out := make(index.PostingList, 0, len(byDoc))
	for _, p := range byDoc {
		slices.Sort(p.Positions)
		p.Positions = slices.Compact(p.Positions)
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b index.Posting) int {
		switch {
		case a.DocID < b.DocID:
			return -1
		case a.DocID > b.DocID:
			return 1
		}
		return 0
	})
	return out
}

func (b *builder) positional(q *query.Query) (cursor, error) {
	children := q.Children()
	terms := make([]*termCursor, 0, len(children))
	kids := make([]cursor, 0, len(children))
	for _, child := range children {
		tc, err := b.termCursor(child.Term(), child.Wqf())
		if err != nil {
			return nil, err
		}
		terms = append(terms, tc)
		kids = append(kids, tc)
	}
	return &positionalCursor{
		andCursor: newAndCursor(kids, kids),
		terms:     terms,
		window:    q.Window(),
		ordered:   q.Op() == query.OpPhrase,
	}, nil
}

// eliteSet keeps the k children with the highest maximum weight.
func (b *builder) eliteSet(kids []cursor, k int) cursor {
	if len(kids) > k {
		kids = slices.Clone(kids)
		slices.SortStableFunc(kids, func(x, y cursor) int {
			switch {
			case x.maxWeight() > y.maxWeight():
				return -1
			case x.maxWeight() < y.maxWeight():
				return 1
			}
			return 0
		})
		kids = kids[:k]
	}
	return b.orOf(kids)
}
