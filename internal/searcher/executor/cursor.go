package executor

import (
	"bytes"
	"math"
	"slices"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/database"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/ranker"
)

// endDoc marks an exhausted cursor. It is never a valid docid.
const endDoc uint32 = math.MaxUint32

// cursor walks the documents matching one query node in ascending docid
// order. A new cursor is positioned before the first document (doc() == 0).
type cursor interface {
	// skipTo moves to the first match >= target. It never moves backwards.
	skipTo(target uint32)
	doc() uint32
	// weight is the weight of the current document.
	weight() float64
	// maxWeight bounds weight() for the current and all later documents.
	maxWeight() float64
	// estimate bounds the number of matches from above.
	estimate() uint32
}

func next(c cursor) {
	c.skipTo(c.doc() + 1)
}

func exhausted(c cursor) bool { return c.doc() == endDoc }

// evalState is shared by the cursors of one evaluation. Lookups that fail
// record the first error; the match loop checks it after every document.
type evalState struct {
	snap *database.Snapshot
	err  error
	// scanned counts postings visited, for metrics.
	scanned int
}

func (st *evalState) fail(err error) {
	if st.err == nil {
		st.err = err
	}
}

func (st *evalState) docLength(id uint32) uint32 {
	n, err := st.snap.DocLength(id)
	if err != nil {
		st.fail(err)
	}
	return n
}

func (st *evalState) value(id, slot uint32) []byte {
	v, err := st.snap.Value(id, slot)
	if err != nil {
		st.fail(err)
	}
	return v
}

type emptyCursor struct{}

func (emptyCursor) skipTo(uint32)      {}
func (emptyCursor) doc() uint32        { return endDoc }
func (emptyCursor) weight() float64    { return 0 }
func (emptyCursor) maxWeight() float64 { return 0 }
func (emptyCursor) estimate() uint32   { return 0 }

// termCursor walks one posting list.
type termCursor struct {
	st  *evalState
	pl  index.PostingList
	i   int
	cur uint32
	tw  ranker.TermWeight
}

func newTermCursor(st *evalState, pl index.PostingList, tw ranker.TermWeight) *termCursor {
	return &termCursor{st: st, pl: pl, tw: tw}
}

func (c *termCursor) skipTo(target uint32) {
	if target <= c.cur {
		return
	}
	rest := c.pl[c.i:]
	c.i += sort.Search(len(rest), func(j int) bool { return rest[j].DocID >= target })
	if c.i >= len(c.pl) {
		c.cur = endDoc
		return
	}
	c.st.scanned++
	c.cur = c.pl[c.i].DocID
}

func (c *termCursor) doc() uint32 { return c.cur }

func (c *termCursor) weight() float64 {
	p := c.pl[c.i]
	if p.Frequency == 0 {
		return 0
	}
	return c.tw.Score(p.Frequency, c.st.docLength(c.cur))
}

func (c *termCursor) maxWeight() float64 {
	if exhausted(c) {
		return 0
	}
	return c.tw.MaxScore()
}

func (c *termCursor) estimate() uint32 { return uint32(len(c.pl)) }

func (c *termCursor) positions() []uint32 { return c.pl[c.i].Positions }

// idCursor walks a fixed docid list, optionally filtered by a predicate.
// It backs MatchAll and the value range nodes.
type idCursor struct {
	ids  []uint32
	i    int
	cur  uint32
	keep func(id uint32) bool
}

func (c *idCursor) skipTo(target uint32) {
	if target <= c.cur {
		return
	}
	rest := c.ids[c.i:]
	c.i += sort.Search(len(rest), func(j int) bool { return rest[j] >= target })
	for ; c.i < len(c.ids); c.i++ {
		if c.keep == nil || c.keep(c.ids[c.i]) {
			c.cur = c.ids[c.i]
			return
		}
	}
	c.cur = endDoc
}

func (c *idCursor) doc() uint32        { return c.cur }
func (c *idCursor) weight() float64    { return 0 }
func (c *idCursor) maxWeight() float64 { return 0 }
func (c *idCursor) estimate() uint32   { return uint32(len(c.ids)) }

func valueInRange(v, lo, hi []byte) bool {
	if len(v) == 0 {
		return false
	}
	if lo != nil && bytes.Compare(v, lo) < 0 {
		return false
	}
	if hi != nil && bytes.Compare(v, hi) > 0 {
		return false
	}
	return true
}

// andCursor matches documents matched by every child. Children are kept in
// ascending order of estimate so the most selective one leads. Only the
// scoring children contribute weight, which lets FILTER reuse it.
type andCursor struct {
	kids    []cursor
	scoring []cursor
	cur     uint32
}

func newAndCursor(kids, scoring []cursor) *andCursor {
	sorted := slices.Clone(kids)
	slices.SortStableFunc(sorted, func(a, b cursor) int {
		switch {
		case a.estimate() < b.estimate():
			return -1
		case a.estimate() > b.estimate():
			return 1
		}
		return 0
	})
	return &andCursor{kids: sorted, scoring: scoring}
}

func (c *andCursor) skipTo(target uint32) {
	if target <= c.cur {
		return
	}
	for {
		agreed := true
		for _, k := range c.kids {
			k.skipTo(target)
			d := k.doc()
			if d == endDoc {
				c.cur = endDoc
				return
			}
			if d != target {
				target = d
				agreed = false
				break
			}
		}
		if agreed {
			c.cur = target
			return
		}
	}
}

func (c *andCursor) doc() uint32 { return c.cur }

func (c *andCursor) weight() float64 {
	var w float64
	for _, k := range c.scoring {
		w += k.weight()
	}
	return w
}

func (c *andCursor) maxWeight() float64 {
	if exhausted(c) {
		return 0
	}
	var w float64
	for _, k := range c.scoring {
		w += k.maxWeight()
	}
	return w
}

func (c *andCursor) estimate() uint32 {
	est := endDoc
	for _, k := range c.kids {
		est = min(est, k.estimate())
	}
	return est
}

// orCursor matches documents matched by any child. With odd set it matches
// documents matched by an odd number of children (XOR).
type orCursor struct {
	kids  []cursor
	cur   uint32
	odd   bool
	limit uint32
}

func (c *orCursor) skipTo(target uint32) {
	if target <= c.cur {
		return
	}
	for {
		lo := endDoc
		for _, k := range c.kids {
			if k.doc() < target {
				k.skipTo(target)
			}
			lo = min(lo, k.doc())
		}
		c.cur = lo
		if !c.odd || lo == endDoc {
			return
		}
		n := 0
		for _, k := range c.kids {
			if k.doc() == lo {
				n++
			}
		}
		if n%2 == 1 {
			return
		}
		target = lo + 1
	}
}

func (c *orCursor) doc() uint32 { return c.cur }

func (c *orCursor) weight() float64 {
	var w float64
	for _, k := range c.kids {
		if k.doc() == c.cur {
			w += k.weight()
		}
	}
	return w
}

// maxWeight only counts children that can still match.
func (c *orCursor) maxWeight() float64 {
	var w float64
	for _, k := range c.kids {
		if !exhausted(k) {
			w += k.maxWeight()
		}
	}
	return w
}

func (c *orCursor) estimate() uint32 {
	var n uint64
	for _, k := range c.kids {
		n += uint64(k.estimate())
	}
	return uint32(min(n, uint64(c.limit)))
}

// andNotCursor matches documents of pos that neg does not match.
type andNotCursor struct {
	pos, neg cursor
	cur      uint32
}

func (c *andNotCursor) skipTo(target uint32) {
	if target <= c.cur {
		return
	}
	for {
		c.pos.skipTo(target)
		d := c.pos.doc()
		if d == endDoc {
			c.cur = endDoc
			return
		}
		c.neg.skipTo(d)
		if c.neg.doc() != d {
			c.cur = d
			return
		}
		target = d + 1
	}
}

func (c *andNotCursor) doc() uint32        { return c.cur }
func (c *andNotCursor) weight() float64    { return c.pos.weight() }
func (c *andNotCursor) maxWeight() float64 { return c.pos.maxWeight() }
func (c *andNotCursor) estimate() uint32   { return c.pos.estimate() }

// andMaybeCursor matches the documents of req; opt only adds weight.
type andMaybeCursor struct {
	req, opt cursor
	cur      uint32
}

func (c *andMaybeCursor) skipTo(target uint32) {
	if target <= c.cur {
		return
	}
	c.req.skipTo(target)
	c.cur = c.req.doc()
	if c.cur != endDoc {
		c.opt.skipTo(c.cur)
	}
}

func (c *andMaybeCursor) doc() uint32 { return c.cur }

func (c *andMaybeCursor) weight() float64 {
	w := c.req.weight()
	if c.opt.doc() == c.cur {
		w += c.opt.weight()
	}
	return w
}

func (c *andMaybeCursor) maxWeight() float64 {
	if exhausted(c) {
		return 0
	}
	return c.req.maxWeight() + c.opt.maxWeight()
}

func (c *andMaybeCursor) estimate() uint32 { return c.req.estimate() }

// scaleCursor multiplies the weight of its child.
type scaleCursor struct {
	cursor
	factor float64
}

func (c *scaleCursor) weight() float64    { return c.cursor.weight() * c.factor }
func (c *scaleCursor) maxWeight() float64 { return c.cursor.maxWeight() * c.factor }

// positionalCursor restricts an AND of term cursors to documents where the
// terms occur within window positions, in order for phrases.
type positionalCursor struct {
	*andCursor
	terms   []*termCursor
	window  uint32
	ordered bool
}

func (c *positionalCursor) skipTo(target uint32) {
	for {
		c.andCursor.skipTo(target)
		d := c.doc()
		if d == endDoc || c.match() {
			return
		}
		target = d + 1
	}
}

func (c *positionalCursor) match() bool {
	lists := make([][]uint32, len(c.terms))
	for i, t := range c.terms {
		lists[i] = t.positions()
		if len(lists[i]) == 0 {
			return false
		}
	}
	if c.ordered {
		return phraseMatch(lists, c.window)
	}
	return nearMatch(lists, c.window)
}

// phraseMatch reports whether positions p0 < p1 < ... < pn can be picked,
// one from each list in order, with pn-p0 < window.
func phraseMatch(lists [][]uint32, window uint32) bool {
	for _, start := range lists[0] {
		prev := start
		ok := true
		for _, l := range lists[1:] {
			i := sort.Search(len(l), func(j int) bool { return l[j] > prev })
			if i == len(l) {
				return false
			}
			prev = l[i]
			if prev-start >= window {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// nearMatch reports whether one position from each list falls within a
// span of fewer than window positions, in any order.
func nearMatch(lists [][]uint32, window uint32) bool {
	type event struct {
		pos  uint32
		list int
	}
	var events []event
	for i, l := range lists {
		for _, p := range l {
			events = append(events, event{p, i})
		}
	}
	slices.SortFunc(events, func(a, b event) int {
		if a.pos != b.pos {
			if a.pos < b.pos {
				return -1
			}
			return 1
		}
		return a.list - b.list
	})
	counts := make([]int, len(lists))
	covered := 0
	lo := 0
	for _, e := range events {
		if counts[e.list] == 0 {
			covered++
		}
		counts[e.list]++
		for covered == len(lists) {
			if e.pos-events[lo].pos < window {
				return true
			}
			l := events[lo].list
			counts[l]--
			if counts[l] == 0 {
				covered--
			}
			lo++
		}
	}
	return false
}
