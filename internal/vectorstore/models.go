package vectorstore

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"github.com/fyrsmithlabs/assessd/internal/chunker"
)

// Metadata keys stored with every entry.
const (
	MetaRecordID   = "record_id"
	MetaSource     = "source"
	MetaSheet      = "sheet"
	MetaRow        = "row"
	MetaChunkIndex = "chunk_index"
)

// Document is one index entry before embedding.
type Document struct {
	// ID is "<record id>#<chunk index>".
	ID       string
	Content  string
	Metadata map[string]string
}

// Result is one retrieved entry.
type Result struct {
	ID      string
	Content string
	// Score is cosine similarity; higher is closer.
	Score    float32
	Metadata map[string]string
}

// RecordID returns the source record the entry was cut from.
func (r Result) RecordID() string {
	return r.Metadata[MetaRecordID]
}

// DocumentFromSegment carries a segment's provenance into entry metadata.
func DocumentFromSegment(s chunker.Segment) Document {
	return Document{
		ID:      s.RecordID + "#" + strconv.Itoa(s.Index),
		Content: s.Text,
		Metadata: map[string]string{
			MetaRecordID:   s.RecordID,
			MetaSource:     s.Source,
			MetaSheet:      s.Sheet,
			MetaRow:        strconv.Itoa(s.Row),
			MetaChunkIndex: strconv.Itoa(s.Index),
		},
	}
}

func documentsFromSegments(segments []chunker.Segment) []Document {
	docs := make([]Document, len(segments))
	for i, s := range segments {
		docs[i] = DocumentFromSegment(s)
	}
	return docs
}

var collectionNamePattern = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateCollectionName accepts 1-64 lowercase letters, digits and underscores.
func ValidateCollectionName(name string) error {
	if !collectionNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q must match %s", ErrInvalidCollectionName, name, collectionNamePattern)
	}
	return nil
}

// clampK applies DefaultTopK and caps k at the number of stored entries.
func clampK(k, count int) int {
	if k <= 0 {
		k = DefaultTopK
	}
	if k > count {
		k = count
	}
	return k
}

// rankResults orders results by score, highest first, breaking ties by ID,
// and keeps at most k.
func rankResults(results []Result, k int) []Result {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}
