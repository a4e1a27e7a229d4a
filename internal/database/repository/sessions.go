package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionRepo records backend connection sessions.
type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

func (r *SessionRepo) Start(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO sessions(id, url, chain, node_version, started_at, blocks_seen)
	VALUES (?, ?, ?, ?, ?, 0);
	`, s.ID, s.URL, s.Chain, s.NodeVersion, s.StartedAt.UTC())
	return err
}

// SetNode stores what the node reported about itself once connected.
func (r *SessionRepo) SetNode(ctx context.Context, id, chain, version string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE sessions SET chain = ?, node_version = ? WHERE id = ?`, chain, version, id)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

// Finish closes the session out. lastBlock is nil when no block arrived.
func (r *SessionRepo) Finish(ctx context.Context, id string, at time.Time, blocksSeen int64, lastBlock *int64, reason string) error {
	res, err := r.db.ExecContext(ctx, `
	UPDATE sessions SET finished_at = ?, blocks_seen = ?, last_block = ?, stop_reason = ?
	WHERE id = ?;
	`, at.UTC(), blocksSeen, lastBlock, reason, id)
	if err != nil {
		return err
	}
	return expectOne(res, id)
}

func (r *SessionRepo) Get(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT id, url, chain, node_version, started_at, finished_at, blocks_seen, last_block, stop_reason
	FROM sessions WHERE id = ?`, id)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// Recent lists sessions newest first.
func (r *SessionRepo) Recent(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, url, chain, node_version, started_at, finished_at, blocks_seen, last_block, stop_reason
	FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Prune keeps the newest keep sessions and deletes the rest.
func (r *SessionRepo) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := r.db.ExecContext(ctx, `
	DELETE FROM sessions WHERE id NOT IN (
		SELECT id FROM sessions ORDER BY started_at DESC, rowid DESC LIMIT ?
	);`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s        Session
		finished sql.NullTime
		last     sql.NullInt64
		reason   sql.NullString
	)
	if err := row.Scan(&s.ID, &s.URL, &s.Chain, &s.NodeVersion, &s.StartedAt, &finished, &s.BlocksSeen, &last, &reason); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		s.FinishedAt = &t
	}
	if last.Valid {
		v := last.Int64
		s.LastBlock = &v
	}
	if reason.Valid {
		v := reason.String
		s.StopReason = &v
	}
	return &s, nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("session %s: not found", id)
	}
	return nil
}
