package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	dbpkg "github.com/taggate-io/taggate/server/internal/db"
	"github.com/taggate-io/taggate/server/internal/taggate/store"
	"github.com/taggate-io/taggate/server/internal/taggate/types"
)

type CredentialStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewCredentialStore(db *sql.DB, writer *dbpkg.Worker) *CredentialStore {
	return &CredentialStore{db: db, writer: writer}
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (types.Credential, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return types.Credential{}, store.ErrNotFound
	}

	var (
		active     int
		enrolledMs int64
		updatedMs  int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT active, enrolled_at_ms, updated_at_ms
FROM credentials
WHERE credential_id = ?;
`, id).Scan(&active, &enrolledMs, &updatedMs)

	if err == sql.ErrNoRows {
		return types.Credential{}, store.ErrNotFound
	}
	if err != nil {
		return types.Credential{}, fmt.Errorf("FindByID query: %w", err)
	}

	return types.Credential{
		ID:         id,
		Active:     active == 1,
		EnrolledAt: time.UnixMilli(enrolledMs).UTC(),
		UpdatedAt:  time.UnixMilli(updatedMs).UTC(),
	}, nil
}

// UpsertActive inserts the credential on first sight and updates its state
// on rescan. The enrollment timestamp is kept from the original insert.
func (s *CredentialStore) UpsertActive(ctx context.Context, id string, active bool) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	nowMs := time.Now().UTC().UnixMilli()

	var act int
	if active {
		act = 1
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO credentials(credential_id, active, enrolled_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?)
ON CONFLICT(credential_id) DO UPDATE SET
  active        = excluded.active,
  updated_at_ms = excluded.updated_at_ms;
`, id, act, nowMs, nowMs); err != nil {
			return fmt.Errorf("UpsertActive %s: %w", id, err)
		}
		return nil
	})
}

func (s *CredentialStore) CountEnrolled(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credentials;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("CountEnrolled: %w", err)
	}
	return n, nil
}

func (s *CredentialStore) DeactivateAll(ctx context.Context) (int64, error) {
	nowMs := time.Now().UTC().UnixMilli()

	var changed int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE credentials
SET active = 0, updated_at_ms = ?
WHERE active = 1;
`, nowMs)
		if err != nil {
			return fmt.Errorf("DeactivateAll: %w", err)
		}
		changed, _ = res.RowsAffected()
		return nil
	})
	return changed, err
}

func (s *CredentialStore) ListAll(ctx context.Context) ([]types.Credential, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT credential_id, active, enrolled_at_ms, updated_at_ms
FROM credentials
ORDER BY enrolled_at_ms ASC, credential_id ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("ListAll query: %w", err)
	}
	defer rows.Close()

	var out []types.Credential
	for rows.Next() {
		var (
			id         string
			active     int
			enrolledMs int64
			updatedMs  int64
		)
		if err := rows.Scan(&id, &active, &enrolledMs, &updatedMs); err != nil {
			return nil, fmt.Errorf("ListAll scan: %w", err)
		}
		out = append(out, types.Credential{
			ID:         id,
			Active:     active == 1,
			EnrolledAt: time.UnixMilli(enrolledMs).UTC(),
			UpdatedAt:  time.UnixMilli(updatedMs).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListAll rows: %w", err)
	}
	return out, nil
}
