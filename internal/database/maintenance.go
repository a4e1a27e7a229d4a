package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Reset wipes persisted state and session history but keeps the schema.
func Reset(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("reset: db not configured")
	}
	if err := WithTx(ctx, db, func(tx *sql.Tx) error {
		for _, t := range []string{"sessions", "app_state"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+t); err != nil {
				return fmt.Errorf("reset table %s: %w", t, err)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	_, _ = db.ExecContext(ctx, "VACUUM")
	return nil
}
