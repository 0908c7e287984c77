package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/reuniteapp/reunite/internal/model"
)

const matchColumns = `id, lost_report_id, found_report_id, score, status, lost_confirmed, found_confirmed, closed_at, created_at`

func scanMatch(row pgx.Row) (model.Match, error) {
	var m model.Match
	err := row.Scan(&m.ID, &m.LostReportID, &m.FoundReportID, &m.Score,
		&m.Status, &m.LostConfirmed, &m.FoundConfirmed, &m.ClosedAt, &m.CreatedAt)
	return m, err
}

// CreateMatch inserts a match and returns it.
func (db *DB) CreateMatch(ctx context.Context, m model.Match) (model.Match, error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = model.MatchOpen
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO matches (id, lost_report_id, found_report_id, score, status, lost_confirmed, found_confirmed, closed_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.ID, m.LostReportID, m.FoundReportID, m.Score, m.Status,
		m.LostConfirmed, m.FoundConfirmed, m.ClosedAt, m.CreatedAt,
	)
	if err != nil {
		return model.Match{}, fmt.Errorf("storage: create match: %w", err)
	}
	return m, nil
}

// GetMatch retrieves a match by id without joined reports.
func (db *DB) GetMatch(ctx context.Context, id uuid.UUID) (model.Match, error) {
	m, err := scanMatch(db.pool.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Match{}, ErrNotFound
		}
		return model.Match{}, fmt.Errorf("storage: get match: %w", err)
	}
	return m, nil
}

// GetMatchWithReports retrieves a match with both referenced reports
// populated.
func (db *DB) GetMatchWithReports(ctx context.Context, id uuid.UUID) (model.Match, error) {
	m, err := db.GetMatch(ctx, id)
	if err != nil {
		return model.Match{}, err
	}
	lost, err := db.GetReport(ctx, m.LostReportID)
	if err != nil {
		return model.Match{}, fmt.Errorf("storage: match %s lost report: %w", id, err)
	}
	found, err := db.GetReport(ctx, m.FoundReportID)
	if err != nil {
		return model.Match{}, fmt.Errorf("storage: match %s found report: %w", id, err)
	}
	m.LostReport = &lost
	m.FoundReport = &found
	return m, nil
}

// MatchExistsForPair reports whether any match row exists for the unordered
// report pair. Both orderings are checked. This pre-check is the only
// duplicate-pair guard; there is no unique constraint, so two concurrent
// creations can still race past it.
func (db *DB) MatchExistsForPair(ctx context.Context, a, b uuid.UUID) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM matches
			WHERE (lost_report_id = $1 AND found_report_id = $2)
			   OR (lost_report_id = $2 AND found_report_id = $1)
		)`,
		a, b,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: match exists for pair: %w", err)
	}
	return exists, nil
}

// ListResolvedMatches returns closed matches, most recently closed first.
func (db *DB) ListResolvedMatches(ctx context.Context, limit int) ([]model.Match, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+matchColumns+` FROM matches
		 WHERE status = $1
		 ORDER BY closed_at DESC
		 LIMIT $2`,
		model.MatchClosed, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list resolved matches: %w", err)
	}
	defer rows.Close()

	var out []model.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan resolved match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ConfirmResult is the outcome of a ConfirmMatch transaction.
type ConfirmResult struct {
	Match     model.Match
	Closed    bool
	Cancelled []model.Match
}

// ConfirmMatch applies a user's confirmation to a match inside a single
// transaction. The match row is locked with SELECT ... FOR UPDATE so two
// concurrent confirms serialize and the closure side effects run exactly
// once.
//
// The flag is set for every side the user owns that is not yet confirmed.
// If both flags end up true the match closes: closed_at is stamped, both
// reports flip to resolved, and every other still-open match referencing
// either report is cancelled in the same transaction. The status='open'
// guard on the cascade leaves already closed or cancelled siblings alone.
//
// Errors: ErrNotFound when the match does not exist, ErrNotOpen when it is
// already closed or cancelled, ErrForbidden when the user owns neither side
// or has already confirmed every side they own.
func (db *DB) ConfirmMatch(ctx context.Context, matchID, userID uuid.UUID) (ConfirmResult, error) {
	var res ConfirmResult

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("storage: confirm match: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	m, err := scanMatch(tx.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, matchID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return res, ErrNotFound
		}
		return res, fmt.Errorf("storage: confirm match: lock: %w", err)
	}
	if m.Status != model.MatchOpen {
		return res, ErrNotOpen
	}

	var lostOwner, foundOwner uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT l.owner_id, f.owner_id FROM reports l, reports f WHERE l.id = $1 AND f.id = $2`,
		m.LostReportID, m.FoundReportID,
	).Scan(&lostOwner, &foundOwner)
	if err != nil {
		return res, fmt.Errorf("storage: confirm match: owners: %w", err)
	}

	confirmed := false
	if lostOwner == userID && !m.LostConfirmed {
		m.LostConfirmed = true
		confirmed = true
	}
	if foundOwner == userID && !m.FoundConfirmed {
		m.FoundConfirmed = true
		confirmed = true
	}
	if !confirmed {
		return res, ErrForbidden
	}

	if m.LostConfirmed && m.FoundConfirmed {
		now := time.Now().UTC()
		m.Status = model.MatchClosed
		m.ClosedAt = &now
		res.Closed = true
	}

	_, err = tx.Exec(ctx,
		`UPDATE matches SET lost_confirmed = $2, found_confirmed = $3, status = $4, closed_at = $5 WHERE id = $1`,
		m.ID, m.LostConfirmed, m.FoundConfirmed, m.Status, m.ClosedAt,
	)
	if err != nil {
		return res, fmt.Errorf("storage: confirm match: update: %w", err)
	}

	if res.Closed {
		_, err = tx.Exec(ctx,
			`UPDATE reports SET status = $3 WHERE id IN ($1, $2)`,
			m.LostReportID, m.FoundReportID, model.ReportResolved,
		)
		if err != nil {
			return res, fmt.Errorf("storage: confirm match: resolve reports: %w", err)
		}

		rows, err := tx.Query(ctx,
			`UPDATE matches SET status = $4
			 WHERE status = $5 AND id <> $1
			   AND (lost_report_id IN ($2, $3) OR found_report_id IN ($2, $3))
			 RETURNING `+matchColumns,
			m.ID, m.LostReportID, m.FoundReportID, model.MatchCancelled, model.MatchOpen,
		)
		if err != nil {
			return res, fmt.Errorf("storage: confirm match: cascade: %w", err)
		}
		for rows.Next() {
			sib, err := scanMatch(rows)
			if err != nil {
				rows.Close()
				return res, fmt.Errorf("storage: confirm match: scan cancelled: %w", err)
			}
			res.Cancelled = append(res.Cancelled, sib)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return res, fmt.Errorf("storage: confirm match: cascade rows: %w", err)
		}
		rows.Close()
	}

	if err := tx.Commit(ctx); err != nil {
		return res, fmt.Errorf("storage: confirm match: commit: %w", err)
	}
	res.Match = m
	return res, nil
}
