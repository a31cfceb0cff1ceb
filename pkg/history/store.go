// Package history caches the backend's most-recent-first deployment list.
// The cache is advisory: it feeds listings and redeploy selection and is
// never consulted for the active session's state.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
)

// DefaultLimit is the number of entries fetched on refresh
const DefaultLimit = 10

// Fetcher lists recent deployments. *api.Client satisfies it.
type Fetcher interface {
	RecentDeployments(ctx context.Context, limit int) ([]deployment.HistoryEntry, error)
}

// Store is a read-through cache over Fetcher. Consistency is last fetch wins.
type Store struct {
	fetcher Fetcher
	limit   int
	logger  hclog.Logger
	now     func() time.Time

	mu         sync.RWMutex
	entries    []deployment.HistoryEntry
	fetchedFor int
	fetchedAt  time.Time
	loaded     bool
}

// NewStore creates a history store. limit is used by Refresh; values <= 0
// fall back to DefaultLimit.
func NewStore(fetcher Fetcher, limit int, logger hclog.Logger) *Store {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Store{
		fetcher: fetcher,
		limit:   limit,
		logger:  logger.Named("history"),
		now:     time.Now,
	}
}

// List returns up to limit entries, most recent first. It is served from the
// cache when the last fetch covered limit entries.
func (s *Store) List(ctx context.Context, limit int) ([]deployment.HistoryEntry, error) {
	if limit <= 0 {
		limit = s.limit
	}

	s.mu.RLock()
	covered := s.loaded && (s.fetchedFor >= limit || len(s.entries) < s.fetchedFor)
	if covered {
		out := copyEntries(s.entries, limit)
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()

	if err := s.fetch(ctx, max(limit, s.limit)); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyEntries(s.entries, limit), nil
}

// Refresh forces a fetch of the configured number of entries
func (s *Store) Refresh(ctx context.Context) error {
	return s.fetch(ctx, s.limit)
}

// Cached returns the cached entries without fetching
func (s *Store) Cached() []deployment.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyEntries(s.entries, len(s.entries))
}

// FetchedAt returns when the cache was last filled
func (s *Store) FetchedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fetchedAt
}

// Lookup finds the most recent cached entry for an infra project
func (s *Store) Lookup(infraProjectID string) (deployment.HistoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.InfraProjectID != "" && e.InfraProjectID == infraProjectID {
			return copyEntry(e), true
		}
	}
	return deployment.HistoryEntry{}, false
}

func (s *Store) fetch(ctx context.Context, limit int) error {
	entries, err := s.fetcher.RecentDeployments(ctx, limit)
	if err != nil {
		s.logger.Warn("history refresh failed", "error", err)
		return fmt.Errorf("history refresh failed: %w", err)
	}

	s.mu.Lock()
	s.entries = copyEntries(entries, len(entries))
	s.fetchedFor = limit
	s.fetchedAt = s.now()
	s.loaded = true
	s.mu.Unlock()

	s.logger.Debug("history refreshed", "entries", len(entries), "limit", limit)
	return nil
}

func copyEntries(entries []deployment.HistoryEntry, limit int) []deployment.HistoryEntry {
	if limit > len(entries) {
		limit = len(entries)
	}
	out := make([]deployment.HistoryEntry, limit)
	for i := 0; i < limit; i++ {
		out[i] = copyEntry(entries[i])
	}
	return out
}

func copyEntry(e deployment.HistoryEntry) deployment.HistoryEntry {
	if e.URLs != nil {
		urls := make(map[string]string, len(e.URLs))
		for k, v := range e.URLs {
			urls[k] = v
		}
		e.URLs = urls
	}
	if e.CompletedAt != nil {
		t := *e.CompletedAt
		e.CompletedAt = &t
	}
	return e
}
