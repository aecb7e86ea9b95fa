package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/k2ai/interview-relay/pkg/gateway/mw"
	"github.com/k2ai/interview-relay/pkg/store"
)

// ReportStore is the slice of the persistence layer report retrieval needs.
type ReportStore interface {
	GetSession(ctx context.Context, sessionID uuid.UUID) (*store.Session, error)
	GetFeedback(ctx context.Context, sessionID uuid.UUID) (*store.Feedback, error)
}

// ReportsHandler serves GET /api/reports/{sessionID}.
type ReportsHandler struct {
	Store ReportStore
}

type reportResp struct {
	SessionID          string   `json:"session_id"`
	CandidateName      string   `json:"candidate_name"`
	Position           string   `json:"position"`
	Difficulty         string   `json:"difficulty"`
	Language           string   `json:"language"`
	OverallScore       int      `json:"overall_score"`
	CommunicationScore int      `json:"communication_score"`
	TechnicalScore     int      `json:"technical_score"`
	ConfidenceScore    int      `json:"confidence_score"`
	Strengths          []string `json:"strengths"`
	Improvements       []string `json:"improvements"`
	DetailedAnalysis   string   `json:"detailed_analysis"`
	Verdict            string   `json:"verdict"`
	Transcript         string   `json:"transcript"`
}

func (h ReportsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", reqID)
		return
	}

	rawID := strings.TrimPrefix(r.URL.Path, "/api/reports/")
	sessionID, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		writeErrorJSON(w, http.StatusBadRequest, "bad_request", "invalid session id", reqID)
		return
	}

	sess, err := h.Store.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		writeErrorJSON(w, http.StatusNotFound, "not_found", "session not found", reqID)
		return
	}
	if err != nil {
		writeErrorJSON(w, http.StatusInternalServerError, "internal", "failed to load session", reqID)
		return
	}

	fb, err := h.Store.GetFeedback(r.Context(), sessionID)
	if errors.Is(err, store.ErrNotFound) {
		writeErrorJSON(w, http.StatusNotFound, "not_found", "no report for this session", reqID)
		return
	}
	if err != nil {
		writeErrorJSON(w, http.StatusInternalServerError, "internal", "failed to load report", reqID)
		return
	}

	writeJSON(w, http.StatusOK, reportResp{
		SessionID:          sessionID.String(),
		CandidateName:      sess.CandidateName,
		Position:           sess.JobPosition,
		Difficulty:         sess.Difficulty,
		Language:           sess.Language,
		OverallScore:       fb.OverallScore,
		CommunicationScore: fb.CommunicationScore,
		TechnicalScore:     fb.TechnicalScore,
		ConfidenceScore:    fb.ConfidenceScore,
		Strengths:          fb.Strengths,
		Improvements:       fb.Improvements,
		DetailedAnalysis:   fb.DetailedAnalysis,
		Verdict:            fb.Verdict,
		Transcript:         sess.Transcript,
	})
}
