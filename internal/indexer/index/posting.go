package index

import "sort"

// Posting records one document's occurrences of a term. Frequency is the
// within-document frequency (wdf); boolean terms have wdf 0 and no
// positions.
type Posting struct {
	DocID     uint32
	Frequency uint32
	Positions []uint32
}

// PostingList is sorted by ascending DocID.
type PostingList []Posting

// Find returns the index of the first posting with DocID >= id.
func (pl PostingList) Find(id uint32) int {
	return sort.Search(len(pl), func(i int) bool {
		return pl[i].DocID >= id
	})
}

// Merge combines lists with disjoint document ids into one sorted list.
func Merge(lists ...PostingList) PostingList {
	switch len(lists) {
	case 0:
		return nil
	case 1:
		return lists[0]
	}
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make(PostingList, 0, n)
	for _, l := range lists {
		out = append(out, l...)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].DocID < out[j].DocID
	})
	return out
}

type TermEntry struct {
	Term     string
	Postings PostingList
}

// CollectionFreq is the sum of wdf across the postings.
func (e TermEntry) CollectionFreq() uint64 {
	var cf uint64
	for _, p := range e.Postings {
		cf += uint64(p.Frequency)
	}
	return cf
}

// TermStats summarises a term for dictionary enumeration.
type TermStats struct {
	Term     string
	DocFreq  uint32
	CollFreq uint64
}
