package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/taggate-io/taggate/server/internal/taggate/store"
	"github.com/taggate-io/taggate/server/internal/taggate/types"
)

// CredentialStore is an in-memory implementation for tests and dev runs.
type CredentialStore struct {
	mu    sync.RWMutex
	creds map[string]types.Credential
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{creds: make(map[string]types.Credential)}
}

func (s *CredentialStore) FindByID(_ context.Context, id string) (types.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.creds[id]
	if !ok {
		return types.Credential{}, store.ErrNotFound
	}
	return c, nil
}

func (s *CredentialStore) UpsertActive(_ context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[id]
	if !ok {
		c = types.Credential{ID: id, EnrolledAt: now}
	}
	c.Active = active
	c.UpdatedAt = now
	s.creds[id] = c
	return nil
}

func (s *CredentialStore) CountEnrolled(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds), nil
}

func (s *CredentialStore) DeactivateAll(_ context.Context) (int64, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	var changed int64
	for id, c := range s.creds {
		if !c.Active {
			continue
		}
		c.Active = false
		c.UpdatedAt = now
		s.creds[id] = c
		changed++
	}
	return changed, nil
}

func (s *CredentialStore) ListAll(_ context.Context) ([]types.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Credential, 0, len(s.creds))
	for _, c := range s.creds {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EnrolledAt.Equal(out[j].EnrolledAt) {
			return out[i].EnrolledAt.Before(out[j].EnrolledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
