package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/i474232898/cycle-tracker/internal/cycle"
)

// SampleHistory holds a date-ordered list of samples for one user.
type SampleHistory struct {
	Samples []cycle.Sample
}

// MemoryStore is a concurrency-safe in-memory implementation of cycle.Store.
type MemoryStore struct {
	mu sync.RWMutex

	// key: user id, value: history
	data map[string]*SampleHistory

	// retention is an optional max age for samples, measured on the sample
	// date; 0 keeps everything.
	retention time.Duration
	now       func() time.Time
}

// NewMemoryStore creates a new MemoryStore.
// If retention is <= 0, samples are kept forever.
func NewMemoryStore(retention time.Duration) *MemoryStore {
	return &MemoryStore{
		data:      make(map[string]*SampleHistory),
		retention: retention,
		now:       time.Now,
	}
}

// SaveSamples inserts new samples and replaces existing ones by ID, then
// enforces retention.
func (s *MemoryStore) SaveSamples(_ context.Context, samples []cycle.Sample) ([]cycle.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	saved := make([]cycle.Sample, 0, len(samples))
	touched := make(map[string]bool)
	for _, smp := range samples {
		if smp.UserID == "" {
			return saved, fmt.Errorf("%w: missing user id", cycle.ErrInvalidSample)
		}
		if !smp.Category.Valid() {
			return saved, fmt.Errorf("%w: unknown category %q", cycle.ErrInvalidSample, smp.Category)
		}

		history, ok := s.data[smp.UserID]
		if !ok {
			history = &SampleHistory{}
			s.data[smp.UserID] = history
		}

		if smp.ID == "" {
			smp.ID = uuid.NewString()
		}
		if smp.CreatedAt.IsZero() {
			smp.CreatedAt = s.now().UTC()
		}

		replaced := false
		for i := range history.Samples {
			if history.Samples[i].ID == smp.ID {
				history.Samples[i] = smp
				replaced = true
				break
			}
		}
		if !replaced {
			history.Samples = append(history.Samples, smp)
		}
		touched[smp.UserID] = true
		saved = append(saved, smp)
	}

	for user := range touched {
		history := s.data[user]
		sort.SliceStable(history.Samples, func(i, j int) bool {
			return history.Samples[i].ValueDateKey < history.Samples[j].ValueDateKey
		})
		s.enforceRetention(history)
	}
	return saved, nil
}

// enforceRetention drops samples dated before the retention cutoff. Callers hold mu.
func (s *MemoryStore) enforceRetention(history *SampleHistory) {
	if s.retention <= 0 {
		return
	}
	cutoff := cycle.KeyOf(s.now().Add(-s.retention))
	i := 0
	for ; i < len(history.Samples); i++ {
		if history.Samples[i].ValueDateKey >= cutoff {
			break
		}
	}
	if i > 0 {
		history.Samples = history.Samples[i:]
	}
}

// DeleteSamples removes samples by ID. Nothing is removed if any ID is unknown.
func (s *MemoryStore) DeleteSamples(_ context.Context, userID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[userID]
	if !ok {
		if len(ids) == 0 {
			return nil
		}
		return fmt.Errorf("%w: %s", cycle.ErrNotFound, ids[0])
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		if !containsID(history.Samples, id) {
			return fmt.Errorf("%w: %s", cycle.ErrNotFound, id)
		}
		drop[id] = true
	}

	kept := history.Samples[:0]
	for _, smp := range history.Samples {
		if !drop[smp.ID] {
			kept = append(kept, smp)
		}
	}
	history.Samples = kept
	return nil
}

func containsID(samples []cycle.Sample, id string) bool {
	for _, smp := range samples {
		if smp.ID == id {
			return true
		}
	}
	return false
}

// ListBetween returns the user's samples of the given categories dated in [from, to).
func (s *MemoryStore) ListBetween(_ context.Context, userID string, categories []cycle.Category, from, to cycle.DateKey) ([]cycle.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]cycle.Sample, 0)
	history, ok := s.data[userID]
	if !ok {
		return result, nil
	}

	for _, smp := range history.Samples {
		if smp.ValueDateKey < from || smp.ValueDateKey >= to {
			continue
		}
		if hasCategory(categories, smp.Category) {
			result = append(result, smp)
		}
	}
	return result, nil
}

// ListAll returns every sample of one category for the user.
func (s *MemoryStore) ListAll(_ context.Context, userID string, category cycle.Category) ([]cycle.Sample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]cycle.Sample, 0)
	history, ok := s.data[userID]
	if !ok {
		return result, nil
	}
	for _, smp := range history.Samples {
		if smp.Category == category {
			result = append(result, smp)
		}
	}
	return result, nil
}

// Users lists every user with at least one stored sample.
func (s *MemoryStore) Users(context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]string, 0, len(s.data))
	for user, history := range s.data {
		if len(history.Samples) > 0 {
			users = append(users, user)
		}
	}
	sort.Strings(users)
	return users, nil
}

func hasCategory(categories []cycle.Category, c cycle.Category) bool {
	for _, want := range categories {
		if want == c {
			return true
		}
	}
	return false
}
