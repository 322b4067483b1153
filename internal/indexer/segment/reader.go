package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
)

// Reader serves one immutable segment. The file is read and verified once
// at open; afterwards the Reader is safe for concurrent use.
type Reader struct {
	name     string
	data     []byte
	header   SegmentHeader
	footer   SegmentFooter
	dict     []DictEntry
	docIndex []DocEntry
}

func corrupt(path, format string, args ...any) error {
	return fmt.Errorf("%w: segment %s: %s", apperrors.ErrDatabaseCorrupt,
		filepath.Base(path), fmt.Sprintf(format, args...))
}

// OpenReader loads and validates the segment at path. Structural or
// checksum failures wrap errors.ErrDatabaseCorrupt.
func OpenReader(path string) (*Reader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, corrupt(path, "file too short (%d bytes)", len(data))
	}
	h := data[:HeaderSize]
	header := SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(h[0:4]),
		Version:    binary.LittleEndian.Uint32(h[4:8]),
		TermCount:  binary.LittleEndian.Uint32(h[8:12]),
		DocCount:   binary.LittleEndian.Uint32(h[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(h[16:24])),
		PostOffset: int64(binary.LittleEndian.Uint64(h[24:32])),
		PostSize:   int64(binary.LittleEndian.Uint64(h[32:40])),
		DictOffset: int64(binary.LittleEndian.Uint64(h[40:48])),
		DictSize:   int64(binary.LittleEndian.Uint64(h[48:56])),
		DocsOffset: int64(binary.LittleEndian.Uint64(h[56:64])),
	}
	if header.Magic != MagicBytes {
		return nil, corrupt(path, "bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, corrupt(path, "unsupported format version %d", header.Version)
	}
	bodyEnd := len(data) - FooterSize
	f := data[bodyEnd:]
	footer := SegmentFooter{
		Checksum:     binary.LittleEndian.Uint32(f[0:4]),
		DocCount:     binary.LittleEndian.Uint32(f[4:8]),
		DocIdxOffset: int64(binary.LittleEndian.Uint64(f[8:16])),
		DocIdxSize:   int64(binary.LittleEndian.Uint64(f[16:24])),
		DocsSize:     int64(binary.LittleEndian.Uint64(f[24:32])),
	}
	if sum := crc32.ChecksumIEEE(data[HeaderSize:bodyEnd]); sum != footer.Checksum {
		return nil, corrupt(path, "checksum mismatch (stored %08x, computed %08x)", footer.Checksum, sum)
	}
	if footer.DocCount != header.DocCount {
		return nil, corrupt(path, "header and footer disagree on document count")
	}
	inBody := func(off, size int64) bool {
		return off >= int64(HeaderSize) && size >= 0 && off+size <= int64(bodyEnd)
	}
	if !inBody(header.PostOffset, header.PostSize) || !inBody(header.DictOffset, header.DictSize) ||
		!inBody(header.DocsOffset, footer.DocsSize) || !inBody(footer.DocIdxOffset, footer.DocIdxSize) {
		return nil, corrupt(path, "section out of bounds")
	}

	var dict []DictEntry
	if err := json.Unmarshal(data[header.DictOffset:header.DictOffset+header.DictSize], &dict); err != nil {
		return nil, corrupt(path, "parsing dictionary: %v", err)
	}
	var docIndex []DocEntry
	if err := json.Unmarshal(data[footer.DocIdxOffset:footer.DocIdxOffset+footer.DocIdxSize], &docIndex); err != nil {
		return nil, corrupt(path, "parsing document index: %v", err)
	}
	if len(dict) != int(header.TermCount) || len(docIndex) != int(header.DocCount) {
		return nil, corrupt(path, "section counts do not match header")
	}
	return &Reader{
		name:     filepath.Base(path),
		data:     data,
		header:   header,
		footer:   footer,
		dict:     dict,
		docIndex: docIndex,
	}, nil
}

func (r *Reader) lookup(term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Search returns the postings for term, or nil if the segment lacks it.
func (r *Reader) Search(term string) (index.PostingList, error) {
	entry, ok := r.lookup(term)
	if !ok {
		return nil, nil
	}
	start := r.header.PostOffset + entry.PostOffset
	end := start + int64(entry.PostLen)
	if entry.PostOffset < 0 || end > r.header.PostOffset+r.header.PostSize {
		return nil, corrupt(r.name, "postings for %q out of bounds", term)
	}
	pl, err := decodePostings(r.data[start:end])
	if err != nil {
		return nil, corrupt(r.name, "decoding postings for %q: %v", term, err)
	}
	return pl, nil
}

// Stats returns the dictionary statistics for term.
func (r *Reader) Stats(term string) (index.TermStats, bool) {
	entry, ok := r.lookup(term)
	if !ok {
		return index.TermStats{}, false
	}
	return index.TermStats{Term: entry.Term, DocFreq: entry.DocFreq, CollFreq: entry.CollFreq}, true
}

// Terms yields the segment's terms starting with prefix in sorted order.
func (r *Reader) Terms(prefix string) iter.Seq[index.TermStats] {
	return func(yield func(index.TermStats) bool) {
		i := sort.Search(len(r.dict), func(i int) bool {
			return r.dict[i].Term >= prefix
		})
		for ; i < len(r.dict) && strings.HasPrefix(r.dict[i].Term, prefix); i++ {
			e := r.dict[i]
			if !yield(index.TermStats{Term: e.Term, DocFreq: e.DocFreq, CollFreq: e.CollFreq}) {
				return
			}
		}
	}
}

func (r *Reader) findDoc(id uint32) (DocEntry, bool) {
	idx := sort.Search(len(r.docIndex), func(i int) bool {
		return r.docIndex[i].ID >= id
	})
	if idx >= len(r.docIndex) || r.docIndex[idx].ID != id {
		return DocEntry{}, false
	}
	return r.docIndex[idx], true
}

// HasDoc reports whether the segment stores a record for id.
func (r *Reader) HasDoc(id uint32) bool {
	_, ok := r.findDoc(id)
	return ok
}

// DocLength returns the stored document length for id.
func (r *Reader) DocLength(id uint32) (uint32, bool) {
	e, ok := r.findDoc(id)
	return e.Length, ok
}

// Document decodes the stored record for id.
func (r *Reader) Document(id uint32) (*docstore.Record, error) {
	e, ok := r.findDoc(id)
	if !ok {
		return nil, fmt.Errorf("%w: %d", apperrors.ErrDocNotFound, id)
	}
	start := r.header.DocsOffset + e.Offset
	end := start + int64(e.Len)
	if e.Offset < 0 || end > r.header.DocsOffset+r.footer.DocsSize {
		return nil, corrupt(r.name, "document %d out of bounds", id)
	}
	var rec docstore.Record
	if err := json.Unmarshal(r.data[start:end], &rec); err != nil {
		return nil, corrupt(r.name, "decoding document %d: %v", id, err)
	}
	return &rec, nil
}

// DocIDs yields the stored document ids in ascending order.
func (r *Reader) DocIDs() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		for _, e := range r.docIndex {
			if !yield(e.ID) {
				return
			}
		}
	}
}

func (r *Reader) Name() string {
	return r.name
}

func (r *Reader) TermCount() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

// TotalLength sums the stored document lengths.
func (r *Reader) TotalLength() uint64 {
	var n uint64
	for _, e := range r.docIndex {
		n += uint64(e.Length)
	}
	return n
}
