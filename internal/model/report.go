package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReportKind says which side of a reunion a report sits on.
type ReportKind string

const (
	KindLost  ReportKind = "lost"
	KindFound ReportKind = "found"
)

// Opposite returns the kind a report of kind k can be matched against.
func (k ReportKind) Opposite() ReportKind {
	if k == KindLost {
		return KindFound
	}
	return KindLost
}

// Valid reports are exactly "lost" or "found".
func (k ReportKind) Valid() bool {
	return k == KindLost || k == KindFound
}

// ReportStatus is the lifecycle status of a report.
type ReportStatus string

const (
	ReportOpen     ReportStatus = "open"
	ReportResolved ReportStatus = "resolved"
)

// Field length limits for report fields. These bound what flows into the
// tokenizer and Postgres TEXT columns.
const (
	MaxTitleLen       = 200
	MaxDescriptionLen = 8 * 1024
	MaxLocationLen    = 500
	MaxCategoryLen    = 100
	MaxTags           = 20
	MaxTagLen         = 50
)

// Report is a user's lost or found item claim. Kind is immutable after
// creation; Status flips to resolved exactly once, as a side effect of one of
// the report's matches closing.
type Report struct {
	ID           uuid.UUID    `json:"id"`
	OwnerID      uuid.UUID    `json:"owner_id"`
	Kind         ReportKind   `json:"kind"`
	Category     string       `json:"category"`
	Title        string       `json:"title"`
	Description  string       `json:"description"`
	LocationText string       `json:"location_text"`
	Tags         []string     `json:"tags"`
	Status       ReportStatus `json:"status"`
	CreatedAt    time.Time    `json:"created_at"`

	// Matches is the report's match-summary view. Populated by queries as a
	// read-time projection over the matches table, never stored.
	Matches []MatchSummary `json:"matches,omitempty"`
}

// MatchSummary is one entry in a report's match list: the counterpart report
// plus the match that links them. Cancelled matches are excluded from the
// projection, so they never appear here.
type MatchSummary struct {
	MatchID         uuid.UUID   `json:"match_id"`
	MatchedReportID uuid.UUID   `json:"matched_report_id"`
	MatchedTitle    string      `json:"matched_title"`
	MatchedCategory string      `json:"matched_category"`
	Score           float64     `json:"score"`
	Status          MatchStatus `json:"status"`
}

// CreateReportRequest is the request body for POST /v1/reports.
type CreateReportRequest struct {
	Kind         ReportKind `json:"kind"`
	Category     string     `json:"category"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	LocationText string     `json:"location_text"`
	Tags         []string   `json:"tags,omitempty"`
}

// Validate checks required fields and length limits before any write.
func (r CreateReportRequest) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("kind must be %q or %q", KindLost, KindFound)
	}
	if r.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(r.Title) > MaxTitleLen {
		return fmt.Errorf("title exceeds maximum length of %d characters", MaxTitleLen)
	}
	if len(r.Description) > MaxDescriptionLen {
		return fmt.Errorf("description exceeds maximum length of %d bytes", MaxDescriptionLen)
	}
	if len(r.LocationText) > MaxLocationLen {
		return fmt.Errorf("location_text exceeds maximum length of %d characters", MaxLocationLen)
	}
	if len(r.Category) > MaxCategoryLen {
		return fmt.Errorf("category exceeds maximum length of %d characters", MaxCategoryLen)
	}
	if len(r.Tags) > MaxTags {
		return fmt.Errorf("at most %d tags allowed", MaxTags)
	}
	for i, t := range r.Tags {
		if t == "" {
			return fmt.Errorf("tags[%d] must not be empty", i)
		}
		if len(t) > MaxTagLen {
			return fmt.Errorf("tags[%d] exceeds maximum length of %d characters", i, MaxTagLen)
		}
	}
	return nil
}

// CreateReportResponse is the response for POST /v1/reports: the stored
// report plus the matches the orchestrator created for it.
type CreateReportResponse struct {
	Report  Report          `json:"report"`
	Matches []MatchProposal `json:"matches"`
}

// MatchProposal is one accepted candidate from a report-creation scan.
type MatchProposal struct {
	MatchID         uuid.UUID `json:"match_id"`
	MatchedReportID uuid.UUID `json:"matched_report_id"`
	Score           float64   `json:"score"`
}
