package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/taggate-io/taggate/server/internal/db"
	"github.com/taggate-io/taggate/server/internal/taggate/types"
)

type AuditStore struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

func NewAuditStore(db *sql.DB, writer *dbpkg.Worker) *AuditStore {
	return &AuditStore{db: db, writer: writer}
}

// Append writes one audit row. The timestamp is assigned at write time
// unless the record already carries one; the autoincrement audit_id breaks
// ordering ties between rows logged in the same millisecond.
func (s *AuditStore) Append(ctx context.Context, rec types.AuditRecord) (types.AuditRecord, error) {
	if rec.LoggedAt.IsZero() {
		rec.LoggedAt = time.Now().UTC()
	}
	loggedMs := rec.LoggedAt.UTC().UnixMilli()

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO audit_log(credential_id, result, logged_at_ms)
VALUES (?, ?, ?);
`, rec.CredentialID, int(rec.Result), loggedMs)
		if err != nil {
			return fmt.Errorf("Append insert: %w", err)
		}
		rec.ID, _ = res.LastInsertId()
		return nil
	})
	if err != nil {
		return types.AuditRecord{}, err
	}

	rec.LoggedAt = time.UnixMilli(loggedMs).UTC()
	return rec, nil
}

func (s *AuditStore) ListRecent(ctx context.Context, n int) ([]types.AuditRecord, error) {
	if n <= 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT audit_id, credential_id, result, logged_at_ms
FROM audit_log
ORDER BY logged_at_ms DESC, audit_id DESC
LIMIT ?;
`, n)
	if err != nil {
		return nil, fmt.Errorf("ListRecent query: %w", err)
	}
	defer rows.Close()

	var out []types.AuditRecord
	for rows.Next() {
		var (
			id       int64
			credID   string
			result   int
			loggedMs int64
		)
		if err := rows.Scan(&id, &credID, &result, &loggedMs); err != nil {
			return nil, fmt.Errorf("ListRecent scan: %w", err)
		}
		out = append(out, types.AuditRecord{
			ID:           id,
			CredentialID: credID,
			Result:       types.ScanResult(result),
			LoggedAt:     time.UnixMilli(loggedMs).UTC(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRecent rows: %w", err)
	}
	return out, nil
}
