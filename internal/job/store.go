package job

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrNotFound is returned when a job id is not in the index.
var ErrNotFound = errors.New("job not found")

// Store provides persistent job record lookups.
//
// The whole index is rewritten after every mutation (last writer wins).
// Mutation points are serialized per job id by construction -- each
// record is written only by its own capture worker at exit and by
// foreground operations -- but the read-modify-write of the index file
// itself is guarded by the mutex so two jobs' updates cannot interleave.
type Store struct {
	records  map[string]*Record
	mu       sync.Mutex
	filePath string
}

// NewStore creates a store backed by index.json in dataDir.
func NewStore(dataDir string) *Store {
	return &Store{
		records:  make(map[string]*Record),
		filePath: filepath.Join(dataDir, "index.json"),
	}
}

// Load reads the index from disk. A missing file starts an empty index.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		return err
	}

	s.records = make(map[string]*Record, len(records))
	for _, rec := range records {
		s.records[rec.ID] = rec
	}
	return nil
}

// saveLocked rewrites the whole index atomically. Callers hold s.mu.
func (s *Store) saveLocked() error {
	records := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return err
	}

	tmpPath := s.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, s.filePath)
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Exists reports whether id is tracked.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok
}

// List returns copies of all records ordered by start time.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, *rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].StartedAt.Before(records[j].StartedAt)
	})
	return records
}

// Put inserts or replaces a record and persists the index.
func (s *Store) Put(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := rec
	s.records[r.ID] = &r
	return s.saveLocked()
}

// Update applies fn to the record for id under the store lock and
// persists the index. On a persist failure the in-memory mutation is
// kept; memory and disk reconverge on the next successful write.
func (s *Store) Update(id string, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	fn(rec)
	return s.saveLocked()
}

// Delete removes the given ids and persists the index.
func (s *Store) Delete(ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		delete(s.records, id)
	}
	return s.saveLocked()
}
