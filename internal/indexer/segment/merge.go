package segment

import (
	"fmt"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
)

// Source is one input to Merge: a segment and the ids deleted from it.
type Source struct {
	Reader  *Reader
	Deleted *roaring.Bitmap
}

func (s Source) live(id uint32) bool {
	return s.Deleted == nil || !s.Deleted.Contains(id)
}

// Merge writes the live documents of sources into segment id. It returns
// an Info with DocCount 0 and no file when every document was deleted.
func (w *Writer) Merge(id uint64, sources []Source) (Info, error) {
	var docs []*docstore.Record
	for _, src := range sources {
		for docID := range src.Reader.DocIDs() {
			if !src.live(docID) {
				continue
			}
			rec, err := src.Reader.Document(docID)
			if err != nil {
				return Info{}, fmt.Errorf("merging %s: %w", src.Reader.Name(), err)
			}
			docs = append(docs, rec)
		}
	}
	if len(docs) == 0 {
		return Info{}, nil
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].ID < docs[j].ID
	})

	terms := make(map[string]struct{})
	for _, src := range sources {
		for ts := range src.Reader.Terms("") {
			terms[ts.Term] = struct{}{}
		}
	}
	names := make([]string, 0, len(terms))
	for t := range terms {
		names = append(names, t)
	}
	sort.Strings(names)

	entries := make([]index.TermEntry, 0, len(names))
	for _, term := range names {
		var lists []index.PostingList
		for _, src := range sources {
			pl, err := src.Reader.Search(term)
			if err != nil {
				return Info{}, fmt.Errorf("merging %s: %w", src.Reader.Name(), err)
			}
			kept := pl[:0]
			for _, p := range pl {
				if src.live(p.DocID) {
					kept = append(kept, p)
				}
			}
			if len(kept) > 0 {
				lists = append(lists, kept)
			}
		}
		if len(lists) == 0 {
			continue
		}
		entries = append(entries, index.TermEntry{Term: term, Postings: index.Merge(lists...)})
	}
	return w.Write(id, entries, docs)
}
