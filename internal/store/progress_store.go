package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// UserProgress is one user's XP standing.
type UserProgress struct {
	UserID      string
	DisplayName string
	XP          int
	Level       int
	Badges      []string // in award order
	LastMessage time.Time
}

// ProgressStore reads and writes UserProgress rows.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a progress store on db.
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// Get returns the user's progress. Unknown users start at level 1 with no XP.
func (s *ProgressStore) Get(ctx context.Context, userID string) (UserProgress, error) {
	p := UserProgress{UserID: userID, Level: 1}

	var last sql.NullString
	err := s.db.sql.QueryRowContext(ctx,
		`SELECT display_name, xp, level, last_message FROM progress WHERE user_id = ?`, userID,
	).Scan(&p.DisplayName, &p.XP, &p.Level, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("loading progress for %s: %w", userID, err)
	}
	if last.Valid {
		p.LastMessage, _ = time.Parse(time.RFC3339, last.String)
	}

	p.Badges, err = s.badges(ctx, userID)
	return p, err
}

func (s *ProgressStore) badges(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT name FROM badges WHERE user_id = ? ORDER BY awarded_at, rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("loading badges for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// Save upserts p. Badges are only ever added.
func (s *ProgressStore) Save(ctx context.Context, p UserProgress) error {
	tx, err := s.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var last any
	if !p.LastMessage.IsZero() {
		last = p.LastMessage.UTC().Format(time.RFC3339)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO progress (user_id, display_name, xp, level, last_message, updated_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(user_id) DO UPDATE SET
			display_name = excluded.display_name,
			xp = excluded.xp,
			level = excluded.level,
			last_message = excluded.last_message,
			updated_at = excluded.updated_at`,
		p.UserID, p.DisplayName, p.XP, p.Level, last,
	)
	if err != nil {
		return fmt.Errorf("saving progress for %s: %w", p.UserID, err)
	}

	for _, b := range p.Badges {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO badges (user_id, name) VALUES (?, ?)`, p.UserID, b,
		); err != nil {
			return fmt.Errorf("saving badge %q: %w", b, err)
		}
	}
	return tx.Commit()
}

// Top returns up to n users ordered by level, then XP, highest first.
func (s *ProgressStore) Top(ctx context.Context, n int) ([]UserProgress, error) {
	rows, err := s.db.sql.QueryContext(ctx,
		`SELECT user_id, display_name, xp, level FROM progress
		 ORDER BY level DESC, xp DESC, user_id LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	defer rows.Close()

	var out []UserProgress
	for rows.Next() {
		var p UserProgress
		if err := rows.Scan(&p.UserID, &p.DisplayName, &p.XP, &p.Level); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Reset deletes every progress row and badge.
func (s *ProgressStore) Reset(ctx context.Context) error {
	for _, table := range []string{"badges", "progress"} {
		if _, err := s.db.sql.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("resetting %s: %w", table, err)
		}
	}
	s.db.log.Warn().Msg("progress reset")
	return nil
}
