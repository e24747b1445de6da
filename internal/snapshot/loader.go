// Package snapshot loads ledger object exports in NDJSON form and indexes
// them for downstream resolution.
package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"deepbook-sandbox/internal/domain"
)

// ErrLoad wraps any failure while reading or parsing an export.
var ErrLoad = errors.New("snapshot load failed")

// Set is an indexed collection of deduplicated object records.
// For each object id only the highest observed version is kept.
type Set struct {
	byID    map[string]domain.ObjectRecord
	byOwner map[string][]domain.ObjectRecord
	stats   Stats
}

// Stats summarizes a completed load.
type Stats struct {
	LinesRead     int    `json:"lines_read"`
	Objects       int    `json:"objects"`
	Superseded    int    `json:"superseded"` // lower-version duplicates dropped
	MaxCheckpoint uint64 `json:"max_checkpoint"`
}

// Load reads an export from r. Exports are NDJSON, one record per line, or
// a single JSON array of records; the form is detected from the first
// non-space byte. Blank lines are skipped; a malformed line aborts the load
// with its line number.
func Load(r io.Reader) (*Set, error) {
	s := &Set{
		byID:    make(map[string]domain.ObjectRecord),
		byOwner: make(map[string][]domain.ObjectRecord),
	}

	br := bufio.NewReader(r)
	if isArrayForm(br) {
		return s.loadArray(br)
	}

	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		s.stats.LinesRead++

		var rec domain.ObjectRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrLoad, line, err)
		}
		if rec.ObjectID == "" {
			return nil, fmt.Errorf("%w: line %d: missing object_id", ErrLoad, line)
		}
		s.add(rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}

	s.buildOwnerIndex()
	return s, nil
}

// isArrayForm peeks past leading whitespace for a '[' without consuming.
func isArrayForm(br *bufio.Reader) bool {
	for n := 1; ; n++ {
		buf, err := br.Peek(n)
		if err != nil || len(buf) < n {
			return false
		}
		switch buf[n-1] {
		case ' ', '\t', '\r', '\n':
			continue
		case '[':
			return true
		default:
			return false
		}
	}
}

func (s *Set) loadArray(r io.Reader) (*Set, error) {
	var recs []domain.ObjectRecord
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	for i, rec := range recs {
		s.stats.LinesRead++
		if rec.ObjectID == "" {
			return nil, fmt.Errorf("%w: record %d: missing object_id", ErrLoad, i)
		}
		s.add(rec)
	}
	s.buildOwnerIndex()
	return s, nil
}

// LoadFile opens and loads an export file.
func LoadFile(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	defer f.Close()
	return Load(f)
}

func (s *Set) add(rec domain.ObjectRecord) {
	if prev, ok := s.byID[rec.ObjectID]; ok {
		if rec.Version <= prev.Version {
			s.stats.Superseded++
			return
		}
		s.stats.Superseded++
	}
	s.byID[rec.ObjectID] = rec
	if rec.Checkpoint > s.stats.MaxCheckpoint {
		s.stats.MaxCheckpoint = rec.Checkpoint
	}
}

func (s *Set) buildOwnerIndex() {
	s.byOwner = make(map[string][]domain.ObjectRecord, len(s.byID))
	for _, rec := range s.byID {
		if rec.OwnerAddress != "" {
			s.byOwner[rec.OwnerAddress] = append(s.byOwner[rec.OwnerAddress], rec)
		}
	}
	s.stats.Objects = len(s.byID)
}

// ByID returns the record for an object id.
func (s *Set) ByID(id string) (domain.ObjectRecord, bool) {
	rec, ok := s.byID[id]
	return rec, ok
}

// ByOwner returns all records owned by the given address. Dynamic fields of
// a container object surface here keyed by the container's id.
func (s *Set) ByOwner(addr string) []domain.ObjectRecord {
	return s.byOwner[addr]
}

// All iterates every deduplicated record.
func (s *Set) All() []domain.ObjectRecord {
	out := make([]domain.ObjectRecord, 0, len(s.byID))
	for _, rec := range s.byID {
		out = append(out, rec)
	}
	return out
}

// Len returns the number of distinct objects.
func (s *Set) Len() int { return len(s.byID) }

// Stats returns load statistics.
func (s *Set) Stats() Stats { return s.stats }
