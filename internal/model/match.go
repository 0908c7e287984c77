package model

import (
	"time"

	"github.com/google/uuid"
)

// MatchStatus is the lifecycle status of a match. Transitions are monotonic:
// open → closed or open → cancelled; a match never re-opens.
type MatchStatus string

const (
	MatchOpen      MatchStatus = "open"
	MatchClosed    MatchStatus = "closed"
	MatchCancelled MatchStatus = "cancelled"
)

// Match is a candidate pairing between exactly one lost report and one found
// report. Closed implies both confirmation flags are true and ClosedAt is
// set; cancelled means a sibling match sharing one of the reports closed
// first.
type Match struct {
	ID             uuid.UUID   `json:"id"`
	LostReportID   uuid.UUID   `json:"lost_report_id"`
	FoundReportID  uuid.UUID   `json:"found_report_id"`
	Score          float64     `json:"score"`
	Status         MatchStatus `json:"status"`
	LostConfirmed  bool        `json:"lost_confirmed"`
	FoundConfirmed bool        `json:"found_confirmed"`
	ClosedAt       *time.Time  `json:"closed_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`

	// Joined data (populated by GetMatch, not stored on the matches row).
	LostReport  *Report `json:"lost_report,omitempty"`
	FoundReport *Report `json:"found_report,omitempty"`
}

// References reports true if the match links the given report on either side.
func (m Match) References(reportID uuid.UUID) bool {
	return m.LostReportID == reportID || m.FoundReportID == reportID
}

// Event names broadcast on match lifecycle transitions. Consumers must treat
// payloads as invalidation hints and re-fetch authoritative state.
const (
	EventMatchUpdated   = "match:updated"
	EventMatchClosed    = "match:closed"
	EventMatchCancelled = "match:cancelled"
	EventMessageNew     = "message:new"
)

// MatchUpdatedPayload is the payload for match:updated events.
type MatchUpdatedPayload struct {
	MatchID        uuid.UUID   `json:"match_id"`
	Status         MatchStatus `json:"status"`
	LostConfirmed  bool        `json:"lost_confirmed"`
	FoundConfirmed bool        `json:"found_confirmed"`
	ClosedAt       *time.Time  `json:"closed_at,omitempty"`
}

// MatchClosedPayload is the payload for match:closed events.
type MatchClosedPayload struct {
	MatchID       uuid.UUID  `json:"match_id"`
	LostReportID  uuid.UUID  `json:"lost_report_id"`
	FoundReportID uuid.UUID  `json:"found_report_id"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
}

// MatchCancelledPayload is the payload for match:cancelled events.
type MatchCancelledPayload struct {
	MatchID       uuid.UUID `json:"match_id"`
	LostReportID  uuid.UUID `json:"lost_report_id"`
	FoundReportID uuid.UUID `json:"found_report_id"`
}
