package memory

import (
	"context"
	"sync"
	"time"

	"github.com/taggate-io/taggate/server/internal/taggate/types"
)

// AuditStore is an in-memory append-only audit log for tests and dev runs.
type AuditStore struct {
	mu     sync.Mutex
	nextID int64
	recs   []types.AuditRecord
}

func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

func (s *AuditStore) Append(_ context.Context, rec types.AuditRecord) (types.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.LoggedAt.IsZero() {
		rec.LoggedAt = time.Now().UTC()
	}
	rec.ID = s.nextID
	s.nextID++
	s.recs = append(s.recs, rec)
	return rec, nil
}

func (s *AuditStore) ListRecent(_ context.Context, n int) ([]types.AuditRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n <= 0 {
		return nil, nil
	}
	if n > len(s.recs) {
		n = len(s.recs)
	}

	// Newest first; insertion order already encodes timestamp ties.
	out := make([]types.AuditRecord, 0, n)
	for i := len(s.recs) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.recs[i])
	}
	return out, nil
}

// Records returns a copy of all appended records in insertion order.
// Test-only helper.
func (s *AuditStore) Records() []types.AuditRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.AuditRecord, len(s.recs))
	copy(out, s.recs)
	return out
}
