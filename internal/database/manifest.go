package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/dchest/safefile"
	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

const (
	ManifestFilename = "manifest.json"
	LockFilename     = "LOCK"
	manifestVersion  = 1
)

// Manifest is the committed state of a database: the live segments and
// the documents deleted from each. Publishing a new manifest is the commit
// point.
type Manifest struct {
	Version       int            `json:"version"`
	UUID          string         `json:"uuid"`
	Revision      uint64         `json:"revision"`
	LastDocID     uint32         `json:"last_docid"`
	NextSegmentID uint64         `json:"next_segment_id"`
	Segments      []*SegmentMeta `json:"segments"`
}

type SegmentMeta struct {
	ID            uint64 `json:"id"`
	Name          string `json:"name"`
	NumDocs       uint32 `json:"ndocs"`
	TotalLength   uint64 `json:"total_length"`
	NumDeleted    uint32 `json:"ndeleted,omitempty"`
	DeletedLength uint64 `json:"deleted_length,omitempty"`
	// Deleted is a serialised roaring bitmap of deleted document ids.
	Deleted []byte `json:"deleted,omitempty"`
}

func newManifest() *Manifest {
	return &Manifest{
		Version:       manifestVersion,
		UUID:          uuid.NewString(),
		NextSegmentID: 1,
		Segments:      []*SegmentMeta{},
	}
}

// Clone creates a copy of the manifest that can be updated independently.
func (m *Manifest) Clone() *Manifest {
	m2 := *m
	m2.Segments = make([]*SegmentMeta, len(m.Segments))
	for i, s := range m.Segments {
		s2 := *s
		s2.Deleted = append([]byte(nil), s.Deleted...)
		m2.Segments[i] = &s2
	}
	return &m2
}

// DeletedBitmap decodes the segment's deletion bitmap.
func (s *SegmentMeta) DeletedBitmap() (*roaring.Bitmap, error) {
	bm := roaring.New()
	if len(s.Deleted) == 0 {
		return bm, nil
	}
	if err := bm.UnmarshalBinary(s.Deleted); err != nil {
		return nil, fmt.Errorf("%w: deletion bitmap of %s: %v", apperrors.ErrDatabaseCorrupt, s.Name, err)
	}
	return bm, nil
}

func (s *SegmentMeta) setDeleted(bm *roaring.Bitmap) error {
	if bm.IsEmpty() {
		s.Deleted = nil
		return nil
	}
	bm.RunOptimize()
	data, err := bm.ToBytes()
	if err != nil {
		return fmt.Errorf("encoding deletion bitmap of %s: %w", s.Name, err)
	}
	s.Deleted = data
	return nil
}

func manifestExists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, ManifestFilename))
	return err == nil
}

func loadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFilename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrDatabaseNotFound, dir)
		}
		return nil, fmt.Errorf("%w: reading manifest: %v", apperrors.ErrDatabaseOpening, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", apperrors.ErrDatabaseCorrupt, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("%w: unsupported manifest version %d", apperrors.ErrDatabaseOpening, m.Version)
	}
	if m.Segments == nil {
		m.Segments = []*SegmentMeta{}
	}
	return &m, nil
}

// save atomically replaces the manifest file.
func (m *Manifest) save(dir string) error {
	f, err := safefile.Create(filepath.Join(dir, ManifestFilename), 0o644)
	if err != nil {
		return fmt.Errorf("creating manifest: %w", err)
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := f.Commit(); err != nil {
		return fmt.Errorf("committing manifest: %w", err)
	}
	return segment.SyncDir(dir)
}
