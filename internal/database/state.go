package database

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Stats are the collection statistics weighting schemes need.
type Stats struct {
	DocCount    uint32
	LastDocID   uint32
	TotalLength uint64
}

// AvgLength is the mean document length, or 0 for an empty collection.
func (s Stats) AvgLength() float64 {
	if s.DocCount == 0 {
		return 0
	}
	return float64(s.TotalLength) / float64(s.DocCount)
}

type segmentView struct {
	meta    *SegmentMeta
	reader  *segment.Reader
	deleted *roaring.Bitmap
}

func (v *segmentView) live(id uint32) bool {
	return v.reader.HasDoc(id) && !v.deleted.Contains(id)
}

// state is an immutable committed view: a manifest plus readers for its
// healthy segments.
type state struct {
	manifest *Manifest
	segments []*segmentView
	corrupt  []error
	stats    Stats
}

// loadState opens the segments named by m. Readers already open in prev
// are reused. Segments that fail validation are logged and left out of
// the view; any other failure aborts the load.
func loadState(dir string, m *Manifest, prev *state, logger *slog.Logger) (*state, error) {
	reuse := make(map[string]*segment.Reader)
	if prev != nil {
		for _, sv := range prev.segments {
			reuse[sv.meta.Name] = sv.reader
		}
	}

	readers := make([]*segment.Reader, len(m.Segments))
	errs := make([]error, len(m.Segments))
	var g errgroup.Group
	g.SetLimit(4)
	for i, meta := range m.Segments {
		if r, ok := reuse[meta.Name]; ok {
			readers[i] = r
			continue
		}
		g.Go(func() error {
			r, err := segment.OpenReader(filepath.Join(dir, meta.Name))
			if err != nil {
				if errors.Is(err, apperrors.ErrDatabaseCorrupt) {
					errs[i] = err
					return nil
				}
				return err
			}
			readers[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrDatabaseOpening, err)
	}

	st := &state{manifest: m, stats: Stats{LastDocID: m.LastDocID}}
	for i, meta := range m.Segments {
		if errs[i] != nil {
			logger.Warn("skipping corrupt segment", "segment", meta.Name, "error", errs[i])
			st.corrupt = append(st.corrupt, errs[i])
			continue
		}
		deleted, err := meta.DeletedBitmap()
		if err != nil {
			logger.Warn("skipping segment with unreadable deletions", "segment", meta.Name, "error", err)
			st.corrupt = append(st.corrupt, err)
			continue
		}
		st.segments = append(st.segments, &segmentView{meta: meta, reader: readers[i], deleted: deleted})
		st.stats.DocCount += meta.NumDocs - meta.NumDeleted
		st.stats.TotalLength += meta.TotalLength - meta.DeletedLength
	}
	return st, nil
}

// healthy reports whether the manifest segment is served by this state.
func (st *state) healthy(meta *SegmentMeta) (*segmentView, bool) {
	for _, sv := range st.segments {
		if sv.meta.Name == meta.Name {
			return sv, true
		}
	}
	return nil, false
}
