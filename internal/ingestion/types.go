// Package ingestion defines the movie records the tools index, the Kafka
// event schemas of the indexing pipeline, and the index schema (term
// prefixes and value slots) shared by writers and searchers.
package ingestion

import (
	"encoding/json"
	"time"
)

// Movie is one record of the JSON-lines corpus. ReleaseDate is a Unix
// timestamp in seconds.
type Movie struct {
	ID          int64    `json:"id"`
	Title       string   `json:"title"`
	Overview    string   `json:"overview"`
	ReleaseDate int64    `json:"release_date"`
	Genres      []string `json:"genres"`
}

// Released returns the release date in UTC.
func (m *Movie) Released() time.Time {
	return time.Unix(m.ReleaseDate, 0).UTC()
}

// Op is what an ingest event asks the indexer to do.
type Op string

const (
	OpUpsert Op = "upsert"
	OpDelete Op = "delete"
)

// IngestEvent is the payload of the document-ingest topic. Delete events
// only need Movie.ID.
type IngestEvent struct {
	Op         Op        `json:"op"`
	Movie      Movie     `json:"movie"`
	IngestedAt time.Time `json:"ingested_at"`
}

// IndexCompleteEvent is published after each commit so searchers can reopen
// and drop cached results of older revisions.
type IndexCompleteEvent struct {
	DatabaseUUID string    `json:"database_uuid"`
	Revision     uint64    `json:"revision"`
	DocCount     uint32    `json:"doc_count"`
	Added        int       `json:"added"`
	Deleted      uint64    `json:"deleted"`
	CommittedAt  time.Time `json:"committed_at"`
}

// DecodeMovieLine parses one line of the corpus. A trailing comma, as
// left by files that wrap the records in a JSON array, is ignored.
func DecodeMovieLine(line []byte) (Movie, error) {
	line = trimRecord(line)
	var m Movie
	err := json.Unmarshal(line, &m)
	return m, err
}

func trimRecord(line []byte) []byte {
	for len(line) > 0 && (line[len(line)-1] == ',' || line[len(line)-1] == ' ' ||
		line[len(line)-1] == '\r' || line[len(line)-1] == '\t') {
		line = line[:len(line)-1]
	}
	return line
}
