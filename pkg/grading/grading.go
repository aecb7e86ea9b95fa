// Package grading produces the written evaluation of a finished interview by
// calling Gemini generateContent with a rotation-selected credential/model
// pair. It is invoked asynchronously by the relay's finalization path.
package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/k2ai/interview-relay/pkg/rotation"
	"github.com/k2ai/interview-relay/pkg/store"
	"github.com/k2ai/interview-relay/pkg/upstream/geminilive"
)

const maxAttempts = 6

// SessionStore is the slice of the persistence layer grading needs.
type SessionStore interface {
	GetSession(ctx context.Context, sessionID uuid.UUID) (*store.Session, error)
	SaveFeedback(ctx context.Context, fb *store.Feedback) error
	SetScore(ctx context.Context, sessionID uuid.UUID, score int) error
}

// GenerateFunc performs one generateContent call and returns the response
// text. Swappable for tests.
type GenerateFunc func(ctx context.Context, apiKey, model, promptText string) (string, error)

type Service struct {
	store    SessionStore
	rotation *rotation.Policy
	logger   *slog.Logger
	generate GenerateFunc
}

func New(st SessionStore, rot *rotation.Policy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		rotation: rot,
		logger:   logger.With("component", "grading"),
		generate: generateWithGenAI,
	}
}

// Grade evaluates the session transcript. Rate/quota failures rotate to the
// next available pair; when the rotation is fully exhausted a rate-limited
// error is returned so the caller can surface it distinguishably. Any other
// failure degrades to neutral default feedback rather than an error.
func (s *Service) Grade(ctx context.Context, sessionID uuid.UUID, userKey string) (*store.Feedback, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if strings.TrimSpace(sess.Transcript) == "" {
		s.logger.Warn("no transcript to grade", "session_id", sessionID.String())
		return s.saveFeedback(ctx, defaultFeedback(sessionID))
	}

	promptText := buildGradingPrompt(sess)

	for attempt := 0; attempt < maxAttempts; attempt++ {
		pair := s.rotation.Next(userKey)
		if pair == nil {
			return nil, &geminilive.Error{Type: geminilive.ErrRateLimited, Message: "all grading credentials are exhausted"}
		}

		text, err := s.generate(ctx, pair.Credential, pair.Model, promptText)
		if err != nil {
			var apiErr genai.APIError
			if errors.As(err, &apiErr) {
				switch apiErr.Code {
				case 429:
					daily := strings.Contains(apiErr.Message, "PerDay") || strings.Contains(strings.ToLower(apiErr.Message), "per day")
					s.rotation.FlagExhausted(pair.Credential, pair.Model, daily)
					s.logger.Warn("grading pair rate limited, rotating", "model", pair.Model, "daily", daily)
					continue
				case 403, 404:
					s.rotation.FlagInaccessible(pair.Credential, pair.Model)
					s.logger.Warn("grading pair inaccessible, rotating", "model", pair.Model, "code", apiErr.Code)
					continue
				}
			}
			s.logger.Error("grading call failed", "session_id", sessionID.String(), "error", err)
			return s.saveFeedback(ctx, defaultFeedback(sessionID))
		}

		fb, perr := parseFeedback(sessionID, text)
		if perr != nil {
			s.logger.Error("unparseable grading response", "session_id", sessionID.String(), "error", perr)
			fb = defaultFeedback(sessionID)
		}
		return s.saveFeedback(ctx, fb)
	}

	return nil, &geminilive.Error{Type: geminilive.ErrRateLimited, Message: "grading retries exhausted"}
}

func (s *Service) saveFeedback(ctx context.Context, fb *store.Feedback) (*store.Feedback, error) {
	if err := s.store.SaveFeedback(ctx, fb); err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}
	if err := s.store.SetScore(ctx, fb.SessionID, fb.OverallScore); err != nil {
		s.logger.Error("failed to store session score", "session_id", fb.SessionID.String(), "error", err)
	}
	s.logger.Info("grading complete", "session_id", fb.SessionID.String(), "score", fb.OverallScore)
	return fb, nil
}

func generateWithGenAI(ctx context.Context, apiKey, model, promptText string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", err
	}
	resp, err := client.Models.GenerateContent(ctx, model, genai.Text(promptText), &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0.7),
		MaxOutputTokens: 2048,
	})
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

func buildGradingPrompt(sess *store.Session) string {
	return fmt.Sprintf(`You are an expert interview evaluator. Analyze the following job interview transcript and provide a detailed evaluation.

## Interview Details
- Position: %s
- Difficulty Level: %s
- Candidate Name: %s

## Transcript
%s

## Evaluation Instructions
Evaluate the candidate's performance and provide scores from 0-100 for each category.
Be fair but honest in your assessment. Consider the difficulty level in your evaluation.

Provide your evaluation in the following JSON format ONLY (no other text):
`+"```json"+`
{
    "overallScore": <0-100>,
    "communicationScore": <0-100>,
    "technicalScore": <0-100>,
    "confidenceScore": <0-100>,
    "strengths": ["strength1", "strength2", "strength3"],
    "improvements": ["improvement1", "improvement2", "improvement3"],
    "detailedAnalysis": "A paragraph providing detailed feedback about the candidate's performance, what they did well, and specific areas for improvement.",
    "verdict": "<STRONG_HIRE|HIRE|MAYBE|NO_HIRE>"
}
`+"```"+`

Important:
- overallScore should reflect the overall interview performance
- communicationScore evaluates clarity, articulation, and listening skills
- technicalScore evaluates domain knowledge and problem-solving
- confidenceScore evaluates composure, assertiveness, and presence
- Provide 2-4 specific strengths observed
- Provide 2-4 actionable improvements
- detailedAnalysis should be 2-4 sentences with constructive feedback
- verdict should match the overall assessment
`, sess.JobPosition, sess.Difficulty, sess.CandidateName, sess.Transcript)
}

type evaluation struct {
	OverallScore       int      `json:"overallScore"`
	CommunicationScore int      `json:"communicationScore"`
	TechnicalScore     int      `json:"technicalScore"`
	ConfidenceScore    int      `json:"confidenceScore"`
	Strengths          []string `json:"strengths"`
	Improvements       []string `json:"improvements"`
	DetailedAnalysis   string   `json:"detailedAnalysis"`
	Verdict            string   `json:"verdict"`
}

func parseFeedback(sessionID uuid.UUID, text string) (*store.Feedback, error) {
	jsonStr := extractJSON(text)
	var eval evaluation
	if err := json.Unmarshal([]byte(jsonStr), &eval); err != nil {
		return nil, fmt.Errorf("decode evaluation: %w", err)
	}
	fb := &store.Feedback{
		SessionID:          sessionID,
		OverallScore:       clampScore(eval.OverallScore),
		CommunicationScore: clampScore(eval.CommunicationScore),
		TechnicalScore:     clampScore(eval.TechnicalScore),
		ConfidenceScore:    clampScore(eval.ConfidenceScore),
		Strengths:          eval.Strengths,
		Improvements:       eval.Improvements,
		DetailedAnalysis:   eval.DetailedAnalysis,
		Verdict:            eval.Verdict,
	}
	if fb.DetailedAnalysis == "" {
		fb.DetailedAnalysis = "No detailed analysis available."
	}
	if fb.Verdict == "" {
		fb.Verdict = "MAYBE"
	}
	return fb, nil
}

// extractJSON pulls the JSON object out of a model response that may wrap it
// in markdown code fences or surrounding prose.
func extractJSON(text string) string {
	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end])
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func defaultFeedback(sessionID uuid.UUID) *store.Feedback {
	return &store.Feedback{
		SessionID:          sessionID,
		OverallScore:       50,
		CommunicationScore: 50,
		TechnicalScore:     50,
		ConfidenceScore:    50,
		Strengths:          []string{"Unable to evaluate - insufficient data"},
		Improvements:       []string{"Complete the interview for full evaluation"},
		DetailedAnalysis:   "The interview could not be fully evaluated. Please ensure the interview is completed with sufficient dialogue for accurate assessment.",
		Verdict:            "MAYBE",
	}
}

// SetGenerateFunc overrides the generateContent call, for tests.
func (s *Service) SetGenerateFunc(fn GenerateFunc) {
	if fn != nil {
		s.generate = fn
	}
}
