package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/k2ai/interview-relay/pkg/store"
)

type fakeReportStore struct {
	session  *store.Session
	feedback *store.Feedback
}

func (f *fakeReportStore) GetSession(_ context.Context, _ uuid.UUID) (*store.Session, error) {
	if f.session == nil {
		return nil, store.ErrNotFound
	}
	return f.session, nil
}

func (f *fakeReportStore) GetFeedback(_ context.Context, _ uuid.UUID) (*store.Feedback, error) {
	if f.feedback == nil {
		return nil, store.ErrNotFound
	}
	return f.feedback, nil
}

func TestReportsHandler(t *testing.T) {
	id := uuid.New()
	populated := &fakeReportStore{
		session: &store.Session{
			ID:            id,
			CandidateName: "Elena",
			JobPosition:   "QA Engineer",
			Difficulty:    "Standard",
			Language:      "bg",
			Transcript:    "\n[Interviewer]: Здравейте!",
		},
		feedback: &store.Feedback{
			SessionID:        id,
			OverallScore:     88,
			Strengths:        []string{"thorough"},
			Improvements:     []string{"pace"},
			DetailedAnalysis: "Strong showing.",
			Verdict:          "HIRE",
		},
	}

	tests := []struct {
		name       string
		path       string
		store      *fakeReportStore
		wantStatus int
	}{
		{"ok", "/api/reports/" + id.String(), populated, http.StatusOK},
		{"bad id", "/api/reports/not-a-uuid", populated, http.StatusBadRequest},
		{"unknown session", "/api/reports/" + uuid.NewString(), &fakeReportStore{}, http.StatusNotFound},
		{"no feedback yet", "/api/reports/" + id.String(), &fakeReportStore{session: populated.session}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			ReportsHandler{Store: tt.store}.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestReportsHandlerBody(t *testing.T) {
	id := uuid.New()
	h := ReportsHandler{Store: &fakeReportStore{
		session: &store.Session{ID: id, CandidateName: "Elena", JobPosition: "QA Engineer", Transcript: "t"},
		feedback: &store.Feedback{
			SessionID: id, OverallScore: 88, Verdict: "HIRE",
			Strengths: []string{"thorough"}, Improvements: []string{"pace"},
		},
	}}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/reports/"+id.String(), nil))

	var resp reportResp
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID != id.String() || resp.OverallScore != 88 || resp.Verdict != "HIRE" {
		t.Fatalf("resp = %+v", resp)
	}
	if resp.Transcript != "t" || resp.CandidateName != "Elena" {
		t.Fatalf("resp = %+v", resp)
	}
}
