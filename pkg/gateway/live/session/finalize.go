package session

import (
	"context"
	"errors"
	"time"

	"github.com/k2ai/interview-relay/pkg/gateway/live/protocol"
	"github.com/k2ai/interview-relay/pkg/upstream/geminilive"
)

const (
	persistTimeout = 10 * time.Second
	gradingTimeout = 2 * time.Minute
)

// finalize ends the interview exactly once: close the link, flush the
// transcript, mark the session ended and dispatch grading off the event
// goroutine. Every later caller is a no-op.
func (s *Service) finalize(iv *Interview) {
	link, first := iv.markEnded()
	if !first {
		return
	}
	if link != nil {
		_ = link.Close()
	}

	transcript := iv.Transcript()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if transcript != "" {
		if err := s.deps.Store.AppendTranscript(ctx, iv.SessionID, transcript); err != nil {
			s.logger.Error("failed to flush transcript",
				"session_id", iv.SessionID.String(), "error", err)
		}
	}
	if err := s.deps.Store.FinalizeSession(ctx, iv.SessionID); err != nil {
		s.logger.Error("failed to mark session ended",
			"session_id", iv.SessionID.String(), "error", err)
	}

	iv.dispatch.SendPriority(protocol.NewStatus(protocol.StatusGrading, "Evaluating the interview"))
	go s.grade(iv, transcript)
}

func (s *Service) grade(iv *Interview, transcript string) {
	defer func() {
		if s.deps.Unregister != nil {
			s.deps.Unregister(iv.ConnID)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), gradingTimeout)
	defer cancel()

	fb, err := s.deps.Grader.Grade(ctx, iv.SessionID, iv.userKey)
	if err != nil {
		var upstreamErr *geminilive.Error
		if errors.As(err, &upstreamErr) && upstreamErr.RateLimited() {
			iv.dispatch.SendPriority(protocol.ServerError{
				Type:        "error",
				Message:     "Grading is rate limited, please check back for your report later",
				RateLimited: true,
			})
		} else {
			iv.dispatch.SendPriority(protocol.NewError("Grading failed"))
		}
		iv.dispatch.SendPriority(protocol.NewStatus(protocol.StatusEnded, ""))
		s.logger.Error("grading dispatch failed", "session_id", iv.SessionID.String(), "error", err)
		return
	}

	iv.dispatch.SendPriority(protocol.ServerReport{
		Type:               "report",
		SessionID:          iv.SessionID.String(),
		OverallScore:       fb.OverallScore,
		CommunicationScore: fb.CommunicationScore,
		TechnicalScore:     fb.TechnicalScore,
		ConfidenceScore:    fb.ConfidenceScore,
		Strengths:          fb.Strengths,
		Improvements:       fb.Improvements,
		DetailedAnalysis:   fb.DetailedAnalysis,
		Verdict:            fb.Verdict,
		Transcript:         transcript,
	})
	iv.dispatch.SendPriority(protocol.NewStatus(protocol.StatusEnded, ""))
	s.logger.Info("report delivered", "session_id", iv.SessionID.String(), "score", fb.OverallScore)
}
