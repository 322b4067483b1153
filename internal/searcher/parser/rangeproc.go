package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Range processor flags. Values are stable.
const (
	// RPSuffix expects the marker string after the end bound ("5..10kg")
	// instead of before the begin bound ("year:1972..1975").
	RPSuffix = 1
	// RPRepeated allows the marker on both bounds.
	RPRepeated = 2
	// RPDatePreferMDY reads ambiguous dates like 01/02/2003 as month first.
	RPDatePreferMDY = 4

	knownRangeFlags = RPSuffix | RPRepeated | RPDatePreferMDY
)

// RangeProcessor turns the two sides of "begin..end" into a query. It
// returns nil, nil to decline, leaving the range to later processors. An
// empty side means the range is open on that side.
type RangeProcessor interface {
	Process(begin, end string) (*query.Query, error)
}

// rangeBase strips the marker string that identifies which processor a
// range belongs to.
type rangeBase struct {
	slot   uint32
	marker string
	flags  int
}

func newRangeBase(slot uint32, marker string, flags int) (rangeBase, error) {
	if flags&^knownRangeFlags != 0 {
		return rangeBase{}, fmt.Errorf("%w: unknown range processor flags %#x", apperrors.ErrInvalidArgument, flags&^knownRangeFlags)
	}
	return rangeBase{slot: slot, marker: marker, flags: flags}, nil
}

// strip removes the marker and reports whether the range carries it.
func (r rangeBase) strip(begin, end string) (string, string, bool) {
	if r.marker == "" {
		return begin, end, true
	}
	if r.flags&RPSuffix != 0 {
		var ok bool
		if end != "" {
			if end, ok = strings.CutSuffix(end, r.marker); !ok {
				return "", "", false
			}
			if r.flags&RPRepeated != 0 {
				begin = strings.TrimSuffix(begin, r.marker)
			}
			return begin, end, true
		}
		begin, ok = strings.CutSuffix(begin, r.marker)
		return begin, end, ok
	}
	var ok bool
	if begin != "" {
		if begin, ok = strings.CutPrefix(begin, r.marker); !ok {
			return "", "", false
		}
		if r.flags&RPRepeated != 0 {
			end = strings.TrimPrefix(end, r.marker)
		}
		return begin, end, true
	}
	end, ok = strings.CutPrefix(end, r.marker)
	return begin, end, ok
}

// valueRange builds the query for already encoded bounds. nil bounds
// leave the range open.
func (r rangeBase) valueRange(lo, hi []byte) *query.Query {
	switch {
	case lo == nil:
		return query.ValueLE(r.slot, hi)
	case hi == nil:
		return query.ValueGE(r.slot, lo)
	}
	return query.ValueRange(r.slot, lo, hi)
}

// StringRangeProcessor matches the raw bytes of a value slot.
type StringRangeProcessor struct{ rangeBase }

func NewStringRangeProcessor(slot uint32, marker string, flags int) (*StringRangeProcessor, error) {
	base, err := newRangeBase(slot, marker, flags)
	if err != nil {
		return nil, err
	}
	return &StringRangeProcessor{base}, nil
}

func (p *StringRangeProcessor) Process(begin, end string) (*query.Query, error) {
	begin, end, ok := p.strip(begin, end)
	if !ok || begin == "" && end == "" {
		return nil, nil
	}
	var lo, hi []byte
	if begin != "" {
		lo = []byte(begin)
	}
	if end != "" {
		hi = []byte(end)
	}
	return p.valueRange(lo, hi), nil
}

// NumberRangeProcessor matches slots holding docstore.SortableSerialise
// encodings, as written by Document.AddFloat and Document.AddInt.
type NumberRangeProcessor struct{ rangeBase }

func NewNumberRangeProcessor(slot uint32, marker string, flags int) (*NumberRangeProcessor, error) {
	base, err := newRangeBase(slot, marker, flags)
	if err != nil {
		return nil, err
	}
	return &NumberRangeProcessor{base}, nil
}

func (p *NumberRangeProcessor) Process(begin, end string) (*query.Query, error) {
	begin, end, ok := p.strip(begin, end)
	if !ok || begin == "" && end == "" {
		return nil, nil
	}
	lo, ok := sortableBound(begin)
	if !ok {
		return nil, nil
	}
	hi, ok := sortableBound(end)
	if !ok {
		return nil, nil
	}
	return p.valueRange(lo, hi), nil
}

func sortableBound(s string) ([]byte, bool) {
	if s == "" {
		return nil, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return docstore.SortableSerialise(v), true
}

// DateRangeProcessor matches slots holding dates as "YYYYMMDD" strings.
// Bounds may be written YYYY, YYYY-MM, YYYY-MM-DD, YYYYMMDD or DD/MM/YYYY
// (MM/DD/YYYY with RPDatePreferMDY). A year or month given alone covers
// the whole period.
type DateRangeProcessor struct{ rangeBase }

func NewDateRangeProcessor(slot uint32, marker string, flags int) (*DateRangeProcessor, error) {
	base, err := newRangeBase(slot, marker, flags)
	if err != nil {
		return nil, err
	}
	return &DateRangeProcessor{base}, nil
}

func (p *DateRangeProcessor) Process(begin, end string) (*query.Query, error) {
	begin, end, ok := p.strip(begin, end)
	if !ok || begin == "" && end == "" {
		return nil, nil
	}
	var lo, hi []byte
	if begin != "" {
		from, _, ok := p.parseDate(begin)
		if !ok {
			return nil, nil
		}
		lo = []byte(from.Format(dateKeyLayout))
	}
	if end != "" {
		_, to, ok := p.parseDate(end)
		if !ok {
			return nil, nil
		}
		hi = []byte(to.Format(dateKeyLayout))
	}
	if lo != nil && hi != nil && string(lo) > string(hi) {
		return nil, fmt.Errorf("%w: range starts after it ends", apperrors.ErrInvalidArgument)
	}
	return p.valueRange(lo, hi), nil
}

const dateKeyLayout = "20060102"

// parseDate returns the first and last day s covers.
func (p *DateRangeProcessor) parseDate(s string) (time.Time, time.Time, bool) {
	if t, err := time.Parse("2006", s); err == nil && len(s) == 4 {
		return t, t.AddDate(1, 0, -1), true
	}
	if t, err := time.Parse("2006-01", s); err == nil {
		return t, t.AddDate(0, 1, -1), true
	}
	layouts := []string{"2006-01-02", "20060102", "02/01/2006", "2/1/2006"}
	if p.flags&RPDatePreferMDY != 0 {
		layouts = []string{"2006-01-02", "20060102", "01/02/2006", "1/2/2006"}
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, t, true
		}
	}
	return time.Time{}, time.Time{}, false
}
