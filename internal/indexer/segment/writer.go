package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/docstore"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	FileSuffix           = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	CreatedAt  int64
	PostOffset int64
	PostSize   int64
	DictOffset int64
	DictSize   int64
	DocsOffset int64
}

// SegmentFooter closes the file. Checksum covers every byte between the
// header and the footer.
type SegmentFooter struct {
	Checksum     uint32
	DocCount     uint32
	DocIdxOffset int64
	DocIdxSize   int64
	DocsSize     int64
}

// DictEntry maps a term to its postings offset, length, and statistics.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    uint32 `json:"d"`
	CollFreq   uint64 `json:"c"`
}

// DocEntry locates a stored record in the documents section.
type DocEntry struct {
	ID     uint32 `json:"i"`
	Offset int64  `json:"o"`
	Len    int    `json:"l"`
	Length uint32 `json:"n"`
}

// Info describes a freshly written segment.
type Info struct {
	Name        string
	DocCount    int
	TermCount   int
	TotalLength uint64
}

// FileName returns the segment file name for a segment id.
func FileName(id uint64) string {
	return fmt.Sprintf("seg_%06d%s", id, FileSuffix)
}

// Writer serialises buffered terms and records into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

type countingWriter struct {
	w   io.Writer
	crc uint32
	n   int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.crc = crc32.Update(c.crc, crc32.IEEETable, p[:n])
	c.n += int64(n)
	return n, err
}

// Write atomically creates segment id from entries (sorted by term, postings
// sorted by docid) and docs (sorted by id). It writes to a .tmp file first
// and renames on success.
func (w *Writer) Write(id uint64, entries []index.TermEntry, docs []*docstore.Record) (Info, error) {
	if len(docs) == 0 {
		return Info{}, fmt.Errorf("cannot write empty segment")
	}
	segmentName := FileName(id)
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return Info{}, fmt.Errorf("creating temp segment file: %w", err)
	}
	ok := false
	defer func() {
		f.Close()
		if !ok {
			os.Remove(tmpPath)
		}
	}()

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return Info{}, fmt.Errorf("writing header: %w", err)
	}
	body := &countingWriter{w: f}
	base := int64(HeaderSize)

	dict := make([]DictEntry, 0, len(entries))
	var buf []byte
	for _, entry := range entries {
		buf = encodePostings(buf[:0], entry.Postings)
		offset := body.n
		if _, err := body.Write(buf); err != nil {
			return Info{}, fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset,
			PostLen:    len(buf),
			DocFreq:    uint32(len(entry.Postings)),
			CollFreq:   entry.CollectionFreq(),
		})
	}
	postSize := body.n

	dictStart := body.n
	dictData, err := json.Marshal(dict)
	if err != nil {
		return Info{}, fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := body.Write(dictData); err != nil {
		return Info{}, fmt.Errorf("writing dictionary: %w", err)
	}

	docsStart := body.n
	docIndex := make([]DocEntry, 0, len(docs))
	var totalLength uint64
	for _, rec := range docs {
		data, err := json.Marshal(rec)
		if err != nil {
			return Info{}, fmt.Errorf("marshaling document %d: %w", rec.ID, err)
		}
		offset := body.n - docsStart
		if _, err := body.Write(data); err != nil {
			return Info{}, fmt.Errorf("writing document %d: %w", rec.ID, err)
		}
		docIndex = append(docIndex, DocEntry{ID: rec.ID, Offset: offset, Len: len(data), Length: rec.Length})
		totalLength += uint64(rec.Length)
	}
	docsSize := body.n - docsStart

	docIdxStart := body.n
	docIdxData, err := json.Marshal(docIndex)
	if err != nil {
		return Info{}, fmt.Errorf("marshaling document index: %w", err)
	}
	if _, err := body.Write(docIdxData); err != nil {
		return Info{}, fmt.Errorf("writing document index: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], body.crc)
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(docs)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(base+docIdxStart))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(len(docIdxData)))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(docsSize))
	if _, err := f.Write(footer); err != nil {
		return Info{}, fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(docs)))
	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(base))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postSize))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(base+dictStart))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(base+docsStart))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return Info{}, fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return Info{}, fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return Info{}, fmt.Errorf("closing segment file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return Info{}, fmt.Errorf("renaming segment file: %w", err)
	}
	if err := SyncDir(filepath.Dir(finalPath)); err != nil {
		return Info{}, err
	}
	ok = true
	return Info{
		Name:        segmentName,
		DocCount:    len(docs),
		TermCount:   len(entries),
		TotalLength: totalLength,
	}, nil
}

// encodePostings appends the uvarint encoding of pl: the posting count,
// then per posting the docid delta, wdf, position count and position
// deltas.
func encodePostings(buf []byte, pl index.PostingList) []byte {
	buf = binary.AppendUvarint(buf, uint64(len(pl)))
	var prevDoc uint32
	for _, p := range pl {
		buf = binary.AppendUvarint(buf, uint64(p.DocID-prevDoc))
		prevDoc = p.DocID
		buf = binary.AppendUvarint(buf, uint64(p.Frequency))
		buf = binary.AppendUvarint(buf, uint64(len(p.Positions)))
		var prevPos uint32
		for _, pos := range p.Positions {
			buf = binary.AppendUvarint(buf, uint64(pos-prevPos))
			prevPos = pos
		}
	}
	return buf
}

func decodePostings(data []byte) (index.PostingList, error) {
	n, k := binary.Uvarint(data)
	if k <= 0 {
		return nil, fmt.Errorf("bad posting count")
	}
	data = data[k:]
	if n > uint64(len(data)) {
		return nil, fmt.Errorf("posting count %d exceeds data", n)
	}
	next := func() (uint32, error) {
		v, k := binary.Uvarint(data)
		if k <= 0 || v > 1<<32-1 {
			return 0, fmt.Errorf("truncated postings")
		}
		data = data[k:]
		return uint32(v), nil
	}
	pl := make(index.PostingList, n)
	var doc uint32
	for i := range pl {
		delta, err := next()
		if err != nil {
			return nil, err
		}
		doc += delta
		wdf, err := next()
		if err != nil {
			return nil, err
		}
		npos, err := next()
		if err != nil {
			return nil, err
		}
		if int(npos) > len(data) {
			return nil, fmt.Errorf("position count %d exceeds data", npos)
		}
		p := index.Posting{DocID: doc, Frequency: wdf}
		if npos > 0 {
			p.Positions = make([]uint32, npos)
			var pos uint32
			for j := range p.Positions {
				d, err := next()
				if err != nil {
					return nil, err
				}
				pos += d
				p.Positions[j] = pos
			}
		}
		pl[i] = p
	}
	return pl, nil
}

// SyncDir flushes directory entries of dir, making earlier renames into it
// durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("opening directory %s: %w", dir, err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return fmt.Errorf("syncing directory %s: %w", dir, err)
	}
	return nil
}
