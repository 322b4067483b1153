package executor

import (
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/matchspy"
)

// KeyMaker builds the sort key of a matching document.
type KeyMaker interface {
	Key(doc matchspy.Document) ([]byte, error)
}

// valueKey sorts by the raw value of one slot.
type valueKey uint32

func (k valueKey) Key(doc matchspy.Document) ([]byte, error) {
	return doc.Value(uint32(k))
}

type keySlot struct {
	slot    uint32
	reverse bool
}

// MultiValueKeyMaker sorts by several slots in turn, each ascending or
// descending. Keys of different documents compare bytewise in the same
// order as the slot values would compare one slot at a time.
type MultiValueKeyMaker struct {
	slots []keySlot
}

func NewMultiValueKeyMaker() *MultiValueKeyMaker {
	return &MultiValueKeyMaker{}
}

// AddValue appends slot to the sort order.
func (m *MultiValueKeyMaker) AddValue(slot uint32, reverse bool) *MultiValueKeyMaker {
	m.slots = append(m.slots, keySlot{slot: slot, reverse: reverse})
	return m
}

// Key concatenates the slot values. Every value but the last is escaped
// and terminated so a shorter value sorts before its extensions; reversed
// values have their bytes inverted.
func (m *MultiValueKeyMaker) Key(doc matchspy.Document) ([]byte, error) {
	var key []byte
	for i, s := range m.slots {
		v, err := doc.Value(s.slot)
		if err != nil {
			return nil, err
		}
		last := i == len(m.slots)-1
		if !s.reverse {
			if last {
				key = append(key, v...)
				break
			}
			for _, c := range v {
				key = append(key, c)
				if c == 0 {
					key = append(key, 0xff)
				}
			}
			key = append(key, 0, 0)
			continue
		}
		for _, c := range v {
			c = ^c
			key = append(key, c)
			if c == 0xff {
				key = append(key, 0)
			}
		}
		key = append(key, 0xff, 0xff)
	}
	return key, nil
}
