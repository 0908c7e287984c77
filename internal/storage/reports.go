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

const reportColumns = `id, owner_id, kind, category, title, description, location_text, tags, status, created_at`

func scanReport(row pgx.Row) (model.Report, error) {
	var r model.Report
	err := row.Scan(&r.ID, &r.OwnerID, &r.Kind, &r.Category, &r.Title,
		&r.Description, &r.LocationText, &r.Tags, &r.Status, &r.CreatedAt)
	return r, err
}

// CreateReport inserts a report and returns it.
func (db *DB) CreateReport(ctx context.Context, r model.Report) (model.Report, error) {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = model.ReportOpen
	}
	if r.Tags == nil {
		r.Tags = []string{}
	}

	_, err := db.pool.Exec(ctx,
		`INSERT INTO reports (id, owner_id, kind, category, title, description, location_text, tags, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.OwnerID, r.Kind, r.Category, r.Title, r.Description,
		r.LocationText, r.Tags, r.Status, r.CreatedAt,
	)
	if err != nil {
		return model.Report{}, fmt.Errorf("storage: create report: %w", err)
	}
	return r, nil
}

// GetReport retrieves a report by id.
func (db *DB) GetReport(ctx context.Context, id uuid.UUID) (model.Report, error) {
	r, err := scanReport(db.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Report{}, ErrNotFound
		}
		return model.Report{}, fmt.Errorf("storage: get report: %w", err)
	}
	return r, nil
}

// FindCandidateReports returns up to limit most-recent reports of the given
// kind that are not resolved, excluding excludeID. This is the candidate pool
// for the matching scan.
func (db *DB) FindCandidateReports(ctx context.Context, kind model.ReportKind, excludeID uuid.UUID, limit int) ([]model.Report, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM reports
		 WHERE kind = $1 AND status <> $2 AND id <> $3
		 ORDER BY created_at DESC
		 LIMIT $4`,
		kind, model.ReportResolved, excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: find candidate reports: %w", err)
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan candidate report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListReportsByOwner returns a user's reports, newest first.
func (db *DB) ListReportsByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Report, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE owner_id = $1 ORDER BY created_at DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list reports by owner: %w", err)
	}
	defer rows.Close()

	var out []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("storage: scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListMatchSummariesForReport builds the report's match-summary view by
// joining the matches table at read time. Cancelled matches are excluded, so
// cascade cancellation removes entries from this view with no extra write.
func (db *DB) ListMatchSummariesForReport(ctx context.Context, reportID uuid.UUID) ([]model.MatchSummary, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT m.id, r.id, r.title, r.category, m.score, m.status
		 FROM matches m
		 JOIN reports r ON r.id = CASE WHEN m.lost_report_id = $1 THEN m.found_report_id ELSE m.lost_report_id END
		 WHERE (m.lost_report_id = $1 OR m.found_report_id = $1)
		   AND m.status <> $2
		 ORDER BY m.created_at DESC`,
		reportID, model.MatchCancelled,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list match summaries: %w", err)
	}
	defer rows.Close()

	var out []model.MatchSummary
	for rows.Next() {
		var s model.MatchSummary
		if err := rows.Scan(&s.MatchID, &s.MatchedReportID, &s.MatchedTitle,
			&s.MatchedCategory, &s.Score, &s.Status); err != nil {
			return nil, fmt.Errorf("storage: scan match summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// OwnsCounterpartReport reports whether userID owns any report that has a
// non-cancelled match against reportID. Used to authorize viewing a stranger's
// report: you may see it only if you were matched against it.
func (db *DB) OwnsCounterpartReport(ctx context.Context, userID, reportID uuid.UUID) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM matches m
			JOIN reports own ON own.id = CASE WHEN m.lost_report_id = $2 THEN m.found_report_id ELSE m.lost_report_id END
			WHERE (m.lost_report_id = $2 OR m.found_report_id = $2)
			  AND m.status <> $3
			  AND own.owner_id = $1
		)`,
		userID, reportID, model.MatchCancelled,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("storage: owns counterpart report: %w", err)
	}
	return exists, nil
}
