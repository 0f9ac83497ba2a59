package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/domain"
)

// memoryEntry guards one domain. A removed entry has been unlinked from the
// map; goroutines that raced with the removal look the name up again.
type memoryEntry struct {
	mu      sync.Mutex
	rec     *domain.DomainRecord
	removed bool
}

// MemoryRecordStore keeps records in process memory with one mutex per
// domain, so different domains never contend.
type MemoryRecordStore struct {
	entries sync.Map // name -> *memoryEntry
	now     func() time.Time
}

// NewMemoryRecordStore returns an empty store.
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{now: time.Now}
}

// Get returns a copy of the record.
func (s *MemoryRecordStore) Get(_ context.Context, name string) (*domain.DomainRecord, error) {
	v, ok := s.entries.Load(name)
	if !ok {
		return nil, domain.ErrNotFound
	}
	e := v.(*memoryEntry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.rec == nil {
		return nil, domain.ErrNotFound
	}
	return e.rec.Clone(), nil
}

// Update applies mutate under the domain's mutex.
func (s *MemoryRecordStore) Update(
	ctx context.Context,
	name string,
	create bool,
	mutate Mutation,
) (*domain.DomainRecord, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("memory update: %w: %w", domain.ErrUnavailable, err)
		}

		e, ok := s.entry(name, create)
		if !ok {
			return nil, domain.ErrNotFound
		}

		rec, retry, err := s.apply(e, name, create, mutate)
		if retry {
			continue
		}
		return rec, err
	}
}

func (s *MemoryRecordStore) entry(name string, create bool) (*memoryEntry, bool) {
	if create {
		v, _ := s.entries.LoadOrStore(name, &memoryEntry{})
		return v.(*memoryEntry), true
	}
	v, ok := s.entries.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*memoryEntry), true
}

// apply runs mutate against e. retry is true when e was removed before the
// lock was acquired.
func (s *MemoryRecordStore) apply(
	e *memoryEntry,
	name string,
	create bool,
	mutate Mutation,
) (rec *domain.DomainRecord, retry bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return nil, true, nil
	}

	now := s.now()
	var working *domain.DomainRecord
	switch {
	case e.rec != nil:
		working = e.rec.Clone()
	case create:
		working = domain.NewDomainRecord(name, now)
	default:
		return nil, false, domain.ErrNotFound
	}

	if mutateErr := mutate(working); mutateErr != nil {
		if e.rec == nil {
			s.unlink(name, e)
		}
		return nil, false, mutateErr
	}

	working.UpdatedAt = now
	e.rec = working
	return working.Clone(), false, nil
}

// unlink removes e from the map. The caller holds e.mu.
func (s *MemoryRecordStore) unlink(name string, e *memoryEntry) {
	e.removed = true
	s.entries.CompareAndDelete(name, e)
}

// Delete removes the record if present.
func (s *MemoryRecordStore) Delete(_ context.Context, name string) error {
	v, ok := s.entries.Load(name)
	if !ok {
		return nil
	}
	e := v.(*memoryEntry)

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.removed {
		s.unlink(name, e)
	}
	return nil
}

// Ping always succeeds.
func (s *MemoryRecordStore) Ping(context.Context) error {
	return nil
}

// MemoryAssetStore keeps static assets in process memory.
type MemoryAssetStore struct {
	mu     sync.RWMutex
	assets map[string]domain.Asset
}

// NewMemoryAssetStore returns an empty asset store.
func NewMemoryAssetStore() *MemoryAssetStore {
	return &MemoryAssetStore{assets: make(map[string]domain.Asset)}
}

// Put stores a copy of asset.
func (s *MemoryAssetStore) Put(_ context.Context, asset *domain.Asset) error {
	stored := *asset
	stored.Data = slices.Clone(asset.Data)
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = time.Now()
	}

	s.mu.Lock()
	s.assets[asset.Path] = stored
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the stored asset.
func (s *MemoryAssetStore) Get(_ context.Context, path string) (*domain.Asset, error) {
	s.mu.RLock()
	stored, ok := s.assets[path]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	stored.Data = slices.Clone(stored.Data)
	return &stored, nil
}
