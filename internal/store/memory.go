package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/nwp-ensemble/internal/nwp"
)

var (
	// ErrNotFound is returned when no summary is available for a provider.
	ErrNotFound = errors.New("no retrieval data for provider")
)

// SummaryHistory holds a time-ordered list of retrieval summaries for one
// provider.
type SummaryHistory struct {
	Summaries []nwp.Summary
}

// MemoryStore is a concurrency-safe in-memory store of retrieval summaries.
type MemoryStore struct {
	mu sync.RWMutex

	// key: provider name, value: history
	data map[nwp.Provider]*SummaryHistory

	// retention configuration
	maxHistory int           // max number of summaries per provider
	maxAge     time.Duration // max age of summaries (0 = unlimited)
}

// NewMemoryStore creates a new MemoryStore with optional limits.
// If maxHistory is <= 0, it is treated as unlimited.
func NewMemoryStore(maxHistory int, maxAge time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[nwp.Provider]*SummaryHistory),
		maxHistory: maxHistory,
		maxAge:     maxAge,
	}
}

// SaveSummary appends a summary for its provider and enforces retention.
func (s *MemoryStore) SaveSummary(summary nwp.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.data[summary.Provider]
	if !ok {
		history = &SummaryHistory{}
		s.data[summary.Provider] = history
	}

	history.Summaries = append(history.Summaries, summary)

	// Enforce retention by count.
	if s.maxHistory > 0 && len(history.Summaries) > s.maxHistory {
		over := len(history.Summaries) - s.maxHistory
		history.Summaries = history.Summaries[over:]
	}

	// Enforce retention by age.
	if s.maxAge > 0 {
		cutoff := time.Now().Add(-s.maxAge)
		i := 0
		for ; i < len(history.Summaries); i++ {
			if !history.Summaries[i].Finished.Before(cutoff) {
				break
			}
		}
		if i > 0 && i < len(history.Summaries) {
			history.Summaries = history.Summaries[i:]
		}
	}
}

// GetLatest returns the most recent summary for a provider.
func (s *MemoryStore) GetLatest(provider nwp.Provider) (nwp.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[provider]
	if !ok || len(history.Summaries) == 0 {
		return nwp.Summary{}, ErrNotFound
	}
	return history.Summaries[len(history.Summaries)-1], nil
}

// GetRange returns all summaries for a provider finished between from and
// to (inclusive).
func (s *MemoryStore) GetRange(provider nwp.Provider, from, to time.Time) ([]nwp.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.data[provider]
	if !ok || len(history.Summaries) == 0 {
		return nil, ErrNotFound
	}

	var result []nwp.Summary
	for _, summary := range history.Summaries {
		if !summary.Finished.Before(from) && !summary.Finished.After(to) {
			result = append(result, summary)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}

// Latest returns the most recent summary of every provider that has one,
// ordered by provider name.
func (s *MemoryStore) Latest() []nwp.Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []nwp.Summary
	for _, history := range s.data {
		if len(history.Summaries) > 0 {
			out = append(out, history.Summaries[len(history.Summaries)-1])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
