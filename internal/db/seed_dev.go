package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type SeedDevOptions struct {
	// Tag ids to pre-enroll (inactive) so the scanner loop and dashboard
	// can be exercised immediately in dev.
	SeedTagIDs []string
}

func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	ids := opt.SeedTagIDs
	if len(ids) == 0 {
		ids = []string{"DEADBEEF"}
	}

	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO credentials(credential_id, active, enrolled_at_ms, updated_at_ms)
VALUES (?, 0, ?, ?);`, id, now, now); err != nil {
			return fmt.Errorf("seed credential %s: %w", id, err)
		}
	}

	return nil
}
