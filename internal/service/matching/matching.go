// Package matching implements the matching orchestrator and the two-party
// confirmation state machine. The orchestrator scores a new report against
// recent opposite-kind reports and persists matches above threshold; the
// state machine applies per-side confirmations, closes a match when both
// sides agree, and cascades cancellation to competing matches.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reuniteapp/reunite/internal/model"
	"github.com/reuniteapp/reunite/internal/notify"
	"github.com/reuniteapp/reunite/internal/score"
	"github.com/reuniteapp/reunite/internal/storage"
)

// Notifier enqueues best-effort email notifications. Satisfied by
// notify.Dispatcher.
type Notifier interface {
	Enqueue(notify.Email)
}

// Service wires the scorer, storage, broadcaster and notifier together.
type Service struct {
	db          *storage.DB
	logger      *slog.Logger
	broadcaster Broadcaster
	notifier    Notifier

	baseURL        string
	candidateLimit int
	threshold      float64
}

// Option configures a Service.
type Option func(*Service)

// WithBroadcaster attaches a live-event transport. Defaults to
// NoopBroadcaster.
func WithBroadcaster(b Broadcaster) Option {
	return func(s *Service) { s.broadcaster = b }
}

// WithNotifier attaches an email notifier. Without one, notifications are
// skipped.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithCandidateLimit bounds the candidate pool scanned per new report.
func WithCandidateLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.candidateLimit = n
		}
	}
}

// WithThreshold overrides the default score threshold.
func WithThreshold(t float64) Option {
	return func(s *Service) {
		if t >= 0 && t <= 1 {
			s.threshold = t
		}
	}
}

// WithBaseURL sets the base URL used in notification emails.
func WithBaseURL(u string) Option {
	return func(s *Service) { s.baseURL = u }
}

// New creates a matching service.
func New(db *storage.DB, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:             db,
		logger:         logger,
		broadcaster:    NoopBroadcaster{Logger: logger},
		candidateLimit: 200,
		threshold:      score.Threshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnReportCreated scans recent opposite-kind reports, scores each candidate
// and creates a match for every pair at or above threshold. Returns the
// accepted proposals. A persistence failure on one candidate is logged and
// skips only that candidate; partial success is expected.
//
// The duplicate-pair pre-check queries both orderings before each insert.
// Without a unique constraint two concurrent creations can both pass it;
// that race is accepted.
func (s *Service) OnReportCreated(ctx context.Context, report model.Report) ([]model.MatchProposal, error) {
	candidates, err := s.db.FindCandidateReports(ctx, report.Kind.Opposite(), report.ID, s.candidateLimit)
	if err != nil {
		return nil, fmt.Errorf("matching: candidate scan: %w", err)
	}

	proposals := make([]model.MatchProposal, 0, 4)
	for _, cand := range candidates {
		exists, err := s.db.MatchExistsForPair(ctx, report.ID, cand.ID)
		if err != nil {
			s.logger.Error("matching: duplicate pre-check failed, skipping candidate",
				"report_id", report.ID, "candidate_id", cand.ID, "error", err)
			continue
		}
		if exists {
			continue
		}

		sc := score.Score(report, cand)
		if sc < s.threshold {
			continue
		}

		lostID, foundID := report.ID, cand.ID
		if report.Kind == model.KindFound {
			lostID, foundID = cand.ID, report.ID
		}

		match, err := s.db.CreateMatch(ctx, model.Match{
			LostReportID:  lostID,
			FoundReportID: foundID,
			Score:         sc,
		})
		if err != nil {
			s.logger.Error("matching: create match failed, skipping candidate",
				"report_id", report.ID, "candidate_id", cand.ID, "error", err)
			continue
		}

		s.notifyMatchFound(ctx, cand)
		proposals = append(proposals, model.MatchProposal{
			MatchID:         match.ID,
			MatchedReportID: cand.ID,
			Score:           sc,
		})
	}
	return proposals, nil
}

// Confirm applies userID's confirmation to the match. See the package doc
// for the state machine; the transactional core lives in
// storage.ConfirmMatch, and this method maps its errors, retries transient
// conflicts and runs the post-commit side effects.
func (s *Service) Confirm(ctx context.Context, matchID, userID uuid.UUID) (model.Match, error) {
	var res storage.ConfirmResult
	err := storage.WithRetry(ctx, 3, 50*time.Millisecond, func() error {
		var err error
		res, err = s.db.ConfirmMatch(ctx, matchID, userID)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return model.Match{}, model.ErrMatchNotFound
		case errors.Is(err, storage.ErrForbidden):
			return model.Match{}, model.ErrNotParticipant
		case errors.Is(err, storage.ErrNotOpen):
			return model.Match{}, model.ErrMatchNotOpen
		}
		return model.Match{}, fmt.Errorf("matching: confirm: %w", err)
	}

	m := res.Match
	s.publish(ctx, model.EventMatchUpdated, model.MatchUpdatedPayload{
		MatchID:        m.ID,
		Status:         m.Status,
		LostConfirmed:  m.LostConfirmed,
		FoundConfirmed: m.FoundConfirmed,
		ClosedAt:       m.ClosedAt,
	})

	if res.Closed {
		s.publish(ctx, model.EventMatchClosed, model.MatchClosedPayload{
			MatchID:       m.ID,
			LostReportID:  m.LostReportID,
			FoundReportID: m.FoundReportID,
			ClosedAt:      m.ClosedAt,
		})
		for _, sib := range res.Cancelled {
			s.publish(ctx, model.EventMatchCancelled, model.MatchCancelledPayload{
				MatchID:       sib.ID,
				LostReportID:  sib.LostReportID,
				FoundReportID: sib.FoundReportID,
			})
		}
		s.notifyMatchClosed(ctx, m)
	}
	return m, nil
}

func (s *Service) publish(ctx context.Context, event string, payload any) {
	if err := s.broadcaster.Publish(ctx, event, payload); err != nil {
		s.logger.Error("matching: broadcast failed", "event", event, "error", err)
	}
}

func (s *Service) notifyMatchFound(ctx context.Context, cand model.Report) {
	if s.notifier == nil {
		return
	}
	owner, err := s.db.GetUser(ctx, cand.OwnerID)
	if err != nil {
		s.logger.Error("matching: notify lookup failed", "user_id", cand.OwnerID, "error", err)
		return
	}
	subject, body := notify.MatchFoundEmail(s.baseURL, cand.Title)
	s.notifier.Enqueue(notify.Email{To: owner.Email, Subject: subject, Body: body})
}

func (s *Service) notifyMatchClosed(ctx context.Context, m model.Match) {
	if s.notifier == nil {
		return
	}
	for _, reportID := range []uuid.UUID{m.LostReportID, m.FoundReportID} {
		report, err := s.db.GetReport(ctx, reportID)
		if err != nil {
			s.logger.Error("matching: notify lookup failed", "report_id", reportID, "error", err)
			continue
		}
		owner, err := s.db.GetUser(ctx, report.OwnerID)
		if err != nil {
			s.logger.Error("matching: notify lookup failed", "user_id", report.OwnerID, "error", err)
			continue
		}
		subject, body := notify.MatchClosedEmail(s.baseURL, report.Title)
		s.notifier.Enqueue(notify.Email{To: owner.Email, Subject: subject, Body: body})
	}
}
