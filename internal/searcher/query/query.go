// Package query defines the immutable query tree evaluated by the
// executor and produced by the parser.
package query

import (
	"fmt"
	"iter"
	"math"
	"slices"
	"strconv"
	"strings"

	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Op identifies a query node. The numeric values are stable.
type Op int

const (
	OpAnd         Op = 0
	OpOr          Op = 1
	OpAndNot      Op = 2
	OpXor         Op = 3
	OpAndMaybe    Op = 4
	OpFilter      Op = 5
	OpNear        Op = 6
	OpPhrase      Op = 7
	OpValueRange  Op = 8
	OpScaleWeight Op = 9
	OpEliteSet    Op = 10
	OpValueGE     Op = 11
	OpValueLE     Op = 12
	OpSynonym     Op = 13

	OpLeafTerm         Op = 100
	OpLeafMatchAll     Op = 101
	OpLeafMatchNothing Op = 102
)

var opNames = map[Op]string{
	OpAnd:              "AND",
	OpOr:               "OR",
	OpAndNot:           "AND_NOT",
	OpXor:              "XOR",
	OpAndMaybe:         "AND_MAYBE",
	OpFilter:           "FILTER",
	OpNear:             "NEAR",
	OpPhrase:           "PHRASE",
	OpValueRange:       "VALUE_RANGE",
	OpScaleWeight:      "SCALE_WEIGHT",
	OpEliteSet:         "ELITE_SET",
	OpValueGE:          "VALUE_GE",
	OpValueLE:          "VALUE_LE",
	OpSynonym:          "SYNONYM",
	OpLeafTerm:         "TERM",
	OpLeafMatchAll:     "MATCH_ALL",
	OpLeafMatchNothing: "MATCH_NOTHING",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Op(%d)", int(op))
}

// Query is a node of an immutable query tree. The zero value and nil both
// match nothing.
type Query struct {
	op       Op
	term     string
	wqf      uint32
	pos      uint32
	children []*Query
	window   uint32
	k        uint32
	factor   float64
	slot     uint32
	lo, hi   []byte
}

var (
	matchAll     = &Query{op: OpLeafMatchAll}
	matchNothing = &Query{op: OpLeafMatchNothing}
)

// MatchAll matches every document with weight 0.
func MatchAll() *Query { return matchAll }

// MatchNothing matches no documents.
func MatchNothing() *Query { return matchNothing }

// Term matches documents indexed by term. A term missing from the database
// matches nothing.
func Term(term string) *Query {
	return TermAt(term, 1, 0)
}

// TermAt builds a term leaf with a within-query frequency and the term's
// position in the query string (0 if unknown).
func TermAt(term string, wqf, pos uint32) *Query {
	if wqf == 0 {
		wqf = 1
	}
	return &Query{op: OpLeafTerm, term: term, wqf: wqf, pos: pos}
}

// New combines subqueries with a boolean or synonym operator. Nil
// children are dropped; a combination with no children matches nothing.
// For AND_NOT, AND_MAYBE and FILTER the first child is the one that
// selects documents and the rest modify it.
func New(op Op, children ...*Query) (*Query, error) {
	switch op {
	case OpAnd, OpOr, OpAndNot, OpXor, OpAndMaybe, OpFilter, OpSynonym:
	case OpNear, OpPhrase:
		return Positional(op, 0, children...)
	case OpEliteSet:
		return EliteSet(10, children...)
	default:
		return nil, fmt.Errorf("%w: %s is not a combining operator", apperrors.ErrInvalidArgument, op)
	}
	kids := compact(children)
	if len(kids) == 0 {
		return MatchNothing(), nil
	}
	if len(kids) == 1 && op != OpSynonym {
		return kids[0], nil
	}
	return &Query{op: op, children: kids}, nil
}

// Must is New for callers that know the operator is valid.
func Must(op Op, children ...*Query) *Query {
	q, err := New(op, children...)
	if err != nil {
		panic(err)
	}
	return q
}

// Positional builds a NEAR or PHRASE node over term leaves. PHRASE requires
// the terms in order; NEAR accepts any order. All terms must fall within a
// span of window positions; a window of 0 means the number of terms.
func Positional(op Op, window uint32, children ...*Query) (*Query, error) {
	if op != OpNear && op != OpPhrase {
		return nil, fmt.Errorf("%w: %s is not positional", apperrors.ErrInvalidArgument, op)
	}
	kids := compact(children)
	for _, c := range kids {
		if c.op == OpLeafMatchNothing {
			return MatchNothing(), nil
		}
		if c.op != OpLeafTerm {
			return nil, fmt.Errorf("%w: %s subqueries must be terms, got %s", apperrors.ErrInvalidArgument, op, c.op)
		}
	}
	switch len(kids) {
	case 0:
		return MatchNothing(), nil
	case 1:
		return kids[0], nil
	}
	if window == 0 {
		window = uint32(len(kids))
	}
	if window < uint32(len(kids)) {
		return nil, fmt.Errorf("%w: window %d is smaller than %d terms", apperrors.ErrInvalidArgument, window, len(kids))
	}
	return &Query{op: op, children: kids, window: window}, nil
}

// EliteSet ORs the k subqueries with the highest possible weight and
// ignores the others.
func EliteSet(k uint32, children ...*Query) (*Query, error) {
	if k == 0 {
		return nil, fmt.Errorf("%w: elite set size 0", apperrors.ErrInvalidArgument)
	}
	kids := compact(children)
	if len(kids) == 0 {
		return MatchNothing(), nil
	}
	return &Query{op: OpEliteSet, children: kids, k: k}, nil
}

// ScaleWeight multiplies the weights of q by factor. A factor of 0 turns
// q into a pure filter.
func ScaleWeight(q *Query, factor float64) (*Query, error) {
	if factor < 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("%w: scale factor %v", apperrors.ErrInvalidArgument, factor)
	}
	if q.Empty() {
		return MatchNothing(), nil
	}
	if factor == 1 {
		return q, nil
	}
	return &Query{op: OpScaleWeight, children: []*Query{q}, factor: factor}, nil
}

// ValueRange matches documents whose value in slot lies in [lo, hi] by
// bytewise comparison.
func ValueRange(slot uint32, lo, hi []byte) *Query {
	return &Query{op: OpValueRange, slot: slot, lo: slices.Clone(lo), hi: slices.Clone(hi)}
}

// ValueGE matches documents whose value in slot is >= lo.
func ValueGE(slot uint32, lo []byte) *Query {
	return &Query{op: OpValueGE, slot: slot, lo: slices.Clone(lo)}
}

// ValueLE matches documents with a non-empty value in slot that is <= hi.
func ValueLE(slot uint32, hi []byte) *Query {
	return &Query{op: OpValueLE, slot: slot, hi: slices.Clone(hi)}
}

// compact drops nil and zero-value subqueries. MatchNothing is kept: it
// still empties an AND.
func compact(children []*Query) []*Query {
	out := make([]*Query, 0, len(children))
	for _, c := range children {
		if !c.unset() {
			out = append(out, c)
		}
	}
	return out
}

func (q *Query) unset() bool {
	return q == nil || (q.op == OpAnd && len(q.children) == 0)
}

func (q *Query) Op() Op {
	if q.unset() {
		return OpLeafMatchNothing
	}
	return q.op
}

// Empty reports whether q can match no document at all by construction.
func (q *Query) Empty() bool {
	return q.Op() == OpLeafMatchNothing
}

// Term returns the term of a leaf, or "".
func (q *Query) Term() string {
	if q.Op() != OpLeafTerm {
		return ""
	}
	return q.term
}

// Wqf is the within-query frequency of a term leaf.
func (q *Query) Wqf() uint32 { return q.wqf }

// Position is the term's position in the parsed query string.
func (q *Query) Position() uint32 { return q.pos }

// Children returns a copy of the subqueries.
func (q *Query) Children() []*Query {
	if q == nil {
		return nil
	}
	return slices.Clone(q.children)
}

func (q *Query) Window() uint32 { return q.window }

// EliteSetSize is k for an ELITE_SET node.
func (q *Query) EliteSetSize() uint32 { return q.k }

func (q *Query) Factor() float64 { return q.factor }

func (q *Query) Slot() uint32 { return q.slot }

// Bounds returns the range limits of a value node. A nil bound is open.
func (q *Query) Bounds() (lo, hi []byte) { return q.lo, q.hi }

// Terms yields each distinct term of the tree once, in the order first
// seen.
func (q *Query) Terms() iter.Seq[string] {
	return func(yield func(string) bool) {
		seen := make(map[string]bool)
		var walk func(*Query) bool
		walk = func(n *Query) bool {
			if n.Op() == OpLeafTerm {
				if seen[n.term] {
					return true
				}
				seen[n.term] = true
				return yield(n.term)
			}
			for _, c := range n.Children() {
				if !walk(c) {
					return false
				}
			}
			return true
		}
		walk(q)
	}
}

// Description renders the tree for logs and tests, e.g.
// "Query((Zred@1 AND Zcar@2))".
func (q *Query) Description() string {
	var sb strings.Builder
	sb.WriteString("Query(")
	if !q.Empty() {
		q.describe(&sb)
	}
	sb.WriteString(")")
	return sb.String()
}

func (q *Query) String() string { return q.Description() }

func (q *Query) describe(sb *strings.Builder) {
	switch q.Op() {
	case OpLeafTerm:
		sb.WriteString(q.term)
		if q.wqf > 1 {
			fmt.Fprintf(sb, "#%d", q.wqf)
		}
		if q.pos > 0 {
			fmt.Fprintf(sb, "@%d", q.pos)
		}
		return
	case OpLeafMatchAll:
		sb.WriteString("<alldocuments>")
		return
	case OpLeafMatchNothing:
		return
	case OpValueRange:
		fmt.Fprintf(sb, "VALUE_RANGE %d %s %s", q.slot, quoteBytes(q.lo), quoteBytes(q.hi))
		return
	case OpValueGE:
		fmt.Fprintf(sb, "VALUE_GE %d %s", q.slot, quoteBytes(q.lo))
		return
	case OpValueLE:
		fmt.Fprintf(sb, "VALUE_LE %d %s", q.slot, quoteBytes(q.hi))
		return
	case OpScaleWeight:
		fmt.Fprintf(sb, "%s * ", strconv.FormatFloat(q.factor, 'g', -1, 64))
		q.children[0].describe(sb)
		return
	}
	sep := " " + q.op.String() + " "
	switch q.op {
	case OpNear, OpPhrase:
		sep = fmt.Sprintf(" %s %d ", q.op, q.window)
	case OpEliteSet:
		sep = fmt.Sprintf(" ELITE_SET %d ", q.k)
	}
	sb.WriteString("(")
	for i, c := range q.children {
		if i > 0 {
			sb.WriteString(sep)
		}
		c.describe(sb)
	}
	sb.WriteString(")")
}

func quoteBytes(b []byte) string {
	if b == nil {
		return "-"
	}
	for _, c := range b {
		if c < 0x20 || c >= 0x7f {
			return fmt.Sprintf("0x%x", b)
		}
	}
	return strconv.Quote(string(b))
}
