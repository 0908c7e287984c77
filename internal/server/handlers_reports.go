package server

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/reuniteapp/reunite/internal/model"
	"github.com/reuniteapp/reunite/internal/storage"
)

// HandleCreateReport handles POST /v1/reports. Stores the report, runs the
// matching scan over recent opposite-kind reports and returns the report
// together with any matches the scan created. No candidates is a success
// with an empty match list.
func (h *Handlers) HandleCreateReport(w http.ResponseWriter, r *http.Request) {
	var req model.CreateReportRequest
	if err := decodeJSON(w, r, &req, h.maxRequestBodyBytes); err != nil {
		handleDecodeError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}

	report, err := h.db.CreateReport(r.Context(), model.Report{
		OwnerID:      UserIDFromContext(r.Context()),
		Kind:         req.Kind,
		Category:     req.Category,
		Title:        req.Title,
		Description:  req.Description,
		LocationText: req.LocationText,
		Tags:         req.Tags,
	})
	if err != nil {
		h.writeInternalError(w, r, "failed to create report", err)
		return
	}

	proposals, err := h.matchSvc.OnReportCreated(r.Context(), report)
	if err != nil {
		// The report is stored; a failed scan only means no matches were
		// proposed this time.
		h.logger.Error("matching scan failed", "report_id", report.ID, "error", err)
		proposals = []model.MatchProposal{}
	}

	writeJSON(w, r, http.StatusCreated, model.CreateReportResponse{
		Report:  report,
		Matches: proposals,
	})
}

// HandleListMyReports handles GET /v1/reports/mine. Each report carries its
// match-summary view.
func (h *Handlers) HandleListMyReports(w http.ResponseWriter, r *http.Request) {
	userID := UserIDFromContext(r.Context())

	reports, err := h.db.ListReportsByOwner(r.Context(), userID)
	if err != nil {
		h.writeInternalError(w, r, "failed to list reports", err)
		return
	}

	for i := range reports {
		summaries, err := h.db.ListMatchSummariesForReport(r.Context(), reports[i].ID)
		if err != nil {
			h.writeInternalError(w, r, "failed to load match summaries", err)
			return
		}
		reports[i].Matches = summaries
	}

	writeJSON(w, r, http.StatusOK, reports)
}

// HandleGetReport handles GET /v1/reports/{id}. Visible to the owner and to
// owners of counterpart reports in a non-cancelled match.
func (h *Handlers) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid report id")
		return
	}

	report, err := h.db.GetReport(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "report not found")
			return
		}
		h.writeInternalError(w, r, "failed to get report", err)
		return
	}

	userID := UserIDFromContext(r.Context())
	if report.OwnerID != userID {
		matched, err := h.db.OwnsCounterpartReport(r.Context(), userID, report.ID)
		if err != nil {
			h.writeInternalError(w, r, "failed to check report access", err)
			return
		}
		if !matched {
			writeError(w, r, http.StatusForbidden, model.ErrCodeForbidden, "not your report")
			return
		}
	}

	summaries, err := h.db.ListMatchSummariesForReport(r.Context(), report.ID)
	if err != nil {
		h.writeInternalError(w, r, "failed to load match summaries", err)
		return
	}
	report.Matches = summaries

	writeJSON(w, r, http.StatusOK, report)
}
