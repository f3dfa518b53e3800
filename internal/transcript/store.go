// Package transcript owns the live in-memory transcript for the active
// conversation thread: an id-keyed record map with merge-on-reobservation
// semantics, mirrored to durable storage on a debounced schedule.
package transcript

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"chatscribe/internal/fragment"
)

// DefaultPersistDebounce is the trailing-edge window for coalescing mirror
// writes during capture bursts.
const DefaultPersistDebounce = 400 * time.Millisecond

// Mirror is the durable key-value collaborator. Failures are non-fatal to
// the in-memory transcript.
type Mirror interface {
	Save(threadKey string, records []fragment.Record) error
	Delete(threadKey string) error
}

type entry struct {
	rec fragment.Record
	seq int
}

// Store holds the canonical transcript for one thread.
type Store struct {
	mu        sync.Mutex
	threadKey string
	records   map[string]*entry
	nextSeq   int
	gen       int
	mirror    Mirror
	debounce  *debouncer
	logger    *zap.Logger

	// persistMu serializes mirror writes against Clear's delete, so a
	// flush caught mid-write can never land after the row is removed.
	persistMu sync.Mutex
}

// NewStore creates an empty store for the given thread. mirror may be nil
// for a memory-only store (tests, previews).
func NewStore(threadKey string, mirror Mirror, debounce time.Duration, logger *zap.Logger) *Store {
	if debounce <= 0 {
		debounce = DefaultPersistDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		threadKey: threadKey,
		records:   make(map[string]*entry),
		mirror:    mirror,
		debounce:  newDebouncer(debounce),
		logger:    logger,
	}
}

// ThreadKey returns the durable key this store mirrors to.
func (s *Store) ThreadKey() string { return s.threadKey }

// Upsert merges one parsed record. A new id is inserted and schedules a
// mirror write; a known id only has its sort key refreshed (content fields
// are first-write-wins, position is last-write-wins). Returns whether the
// id was newly seen.
func (s *Store) Upsert(rec fragment.Record) bool {
	s.mu.Lock()
	if e, ok := s.records[rec.ID]; ok {
		e.rec.SortKey = rec.SortKey
		s.mu.Unlock()
		return false
	}
	s.records[rec.ID] = &entry{rec: rec, seq: s.nextSeq}
	s.nextSeq++
	s.mu.Unlock()

	s.schedulePersist()
	return true
}

// Records returns the transcript ordered ascending by sort key; records
// with equal keys keep their insertion order.
func (s *Store) Records() []fragment.Record {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.records))
	for _, e := range s.records {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].rec.SortKey < entries[j].rec.SortKey })

	out := make([]fragment.Record, len(entries))
	for i, e := range entries {
		out[i] = e.rec
	}
	return out
}

// Count reports the number of stored records.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// LoadFrom replaces the store's contents with an already-ordered sequence,
// typically read back from the mirror or a JSON export. Insertion order
// follows slice order, so a round-tripped transcript reproduces the same
// ordered sequence.
func (s *Store) LoadFrom(records []fragment.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*entry, len(records))
	s.nextSeq = 0
	s.gen++
	for _, rec := range records {
		if _, ok := s.records[rec.ID]; ok {
			continue
		}
		s.records[rec.ID] = &entry{rec: rec, seq: s.nextSeq}
		s.nextSeq++
	}
}

// Clear empties the transcript and synchronously removes the durable row.
// Bumping the generation invalidates any flush that already snapshotted
// the old contents, and persistMu makes the delete wait out a flush that
// is already inside the mirror, so the delete is always the last word.
func (s *Store) Clear() error {
	s.mu.Lock()
	s.records = make(map[string]*entry)
	s.nextSeq = 0
	s.gen++
	s.mu.Unlock()

	s.debounce.Cancel()
	if s.mirror == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()
	if err := s.mirror.Delete(s.threadKey); err != nil {
		s.logger.Warn("clear: mirror delete failed", zap.String("thread", s.threadKey), zap.Error(err))
		return err
	}
	return nil
}

// Persist forces an immediate mirror write, cancelling any pending
// debounced one.
func (s *Store) Persist() error {
	s.debounce.Cancel()
	return s.flush()
}

func (s *Store) schedulePersist() {
	if s.mirror == nil {
		return
	}
	s.debounce.Trigger(func() {
		// Mirror failures leave the in-memory transcript authoritative.
		_ = s.flush()
	})
}

func (s *Store) flush() error {
	if s.mirror == nil {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	records := s.Records()
	// An empty transcript's durable form is the absence of the row, not
	// an empty row; Clear and LoadFrom invalidate stale snapshots.
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	stale := s.gen != gen
	s.mu.Unlock()
	if stale {
		return nil
	}
	if err := s.mirror.Save(s.threadKey, records); err != nil {
		s.logger.Warn("persist failed", zap.String("thread", s.threadKey), zap.Error(err))
		return err
	}
	s.logger.Debug("persisted transcript",
		zap.String("thread", s.threadKey), zap.Int("records", len(records)))
	return nil
}
