// Package chunker splits record text into bounded, overlapping segments.
//
// Splitting is recursive over a separator list: the text is cut on the
// coarsest separator present, pieces that are still too long are cut on the
// next one, and adjacent small pieces are merged back up to the size limit.
// Lengths are counted in runes.
package chunker

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fyrsmithlabs/assessd/internal/loader"
	"github.com/tmc/langchaingo/textsplitter"
)

const (
	// DefaultSize is the maximum segment length in runes.
	DefaultSize = 500
	// DefaultOverlap is the target overlap between neighbouring segments.
	DefaultOverlap = 50
)

// ErrInvalidConfig indicates an unusable size/overlap pair.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// DefaultSeparators are tried in order; "" splits between runes.
var DefaultSeparators = []string{"\n\n", "\n", loader.FieldSeparator, " ", ""}

// Segment is a bounded substring of one record's text.
type Segment struct {
	RecordID string
	Source   string
	Sheet    string
	Row      int
	// Index is the segment's position within its record, from 0.
	Index int
	Text  string
}

// Splitter cuts text into segments of at most Size runes.
type Splitter struct {
	size     int
	splitter textsplitter.RecursiveCharacter
}

// New returns a Splitter. size must be positive and overlap in [0, size).
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, size, overlap)
	}
	return &Splitter{
		size: size,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithSeparators(DefaultSeparators),
			textsplitter.WithChunkSize(size),
			textsplitter.WithChunkOverlap(overlap),
			textsplitter.WithLenFunc(utf8.RuneCountInString),
		),
	}, nil
}

// Split is shorthand for New(size, overlap) followed by Splitter.Split.
func Split(records []loader.Record, size, overlap int) ([]Segment, error) {
	s, err := New(size, overlap)
	if err != nil {
		return nil, err
	}
	return s.Split(records)
}

// Split segments every record in order. A record no longer than the size
// limit yields exactly one segment holding its text unchanged; blank records
// yield none.
func (s *Splitter) Split(records []loader.Record) ([]Segment, error) {
	var out []Segment
	for _, r := range records {
		texts, err := s.SplitText(r.Text)
		if err != nil {
			return nil, fmt.Errorf("splitting record %s: %w", r.ID, err)
		}
		for i, text := range texts {
			out = append(out, Segment{
				RecordID: r.ID,
				Source:   r.Source,
				Sheet:    r.Sheet,
				Row:      r.Row,
				Index:    i,
				Text:     text,
			})
		}
	}
	return out, nil
}

// SplitText splits a single text.
func (s *Splitter) SplitText(text string) ([]string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(text) <= s.size {
		return []string{text}, nil
	}
	return s.splitter.SplitText(text)
}
