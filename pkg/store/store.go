// Package store persists interview sessions and their written evaluations in
// Postgres. It is the persistence collaborator of the live relay: the relay
// only ever creates a session, appends transcript text, marks the session
// ended, and stores/loads feedback.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a session or feedback row does not exist.
var ErrNotFound = errors.New("store: not found")

type Session struct {
	ID            uuid.UUID
	CandidateName string
	JobPosition   string
	Difficulty    string
	Language      string
	Transcript    string
	Score         *int
	StartedAt     time.Time
	EndedAt       *time.Time
}

type Feedback struct {
	SessionID          uuid.UUID
	OverallScore       int
	CommunicationScore int
	TechnicalScore     int
	ConfidenceScore    int
	Strengths          []string
	Improvements       []string
	DetailedAnalysis   string
	Verdict            string
	CreatedAt          time.Time
}

type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to Postgres and applies pending migrations.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := Migrate(dsn, logger); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, logger: logger.With("component", "store")}, nil
}

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// CreateSession inserts a new interview session and returns its durable id.
func (s *Store) CreateSession(ctx context.Context, candidateName, position, difficulty, language string) (uuid.UUID, error) {
	if language == "" {
		language = "en"
	}
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO interview_sessions (id, candidate_name, job_position, difficulty, language, transcript, started_at)
		 VALUES ($1, $2, $3, $4, $5, '', now())`,
		id.String(), candidateName, position, difficulty, language)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("interview session created", "session_id", id.String(), "position", position)
	return id, nil
}

// AppendTranscript appends text to the session transcript.
func (s *Store) AppendTranscript(ctx context.Context, sessionID uuid.UUID, text string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE interview_sessions SET transcript = transcript || $2 WHERE id = $1`,
		sessionID.String(), text)
	if err != nil {
		return fmt.Errorf("append transcript: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FinalizeSession marks the session ended.
func (s *Store) FinalizeSession(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE interview_sessions SET ended_at = now() WHERE id = $1`,
		sessionID.String())
	if err != nil {
		return fmt.Errorf("finalize session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.logger.Info("interview session finalized", "session_id", sessionID.String())
	return nil
}

// SetScore stores the overall score on the session row.
func (s *Store) SetScore(ctx context.Context, sessionID uuid.UUID, score int) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE interview_sessions SET score = $2 WHERE id = $1`,
		sessionID.String(), score)
	if err != nil {
		return fmt.Errorf("set score: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession loads one session row.
func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id::text, candidate_name, job_position, difficulty, language, transcript, score, started_at, ended_at
		 FROM interview_sessions WHERE id = $1`,
		sessionID.String())

	var (
		sess  Session
		idStr string
	)
	err := row.Scan(&idStr, &sess.CandidateName, &sess.JobPosition, &sess.Difficulty,
		&sess.Language, &sess.Transcript, &sess.Score, &sess.StartedAt, &sess.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("get session: parse id: %w", err)
	}
	return &sess, nil
}

// SaveFeedback upserts the evaluation for a session.
func (s *Store) SaveFeedback(ctx context.Context, fb *Feedback) error {
	strengths, err := json.Marshal(sliceOrEmpty(fb.Strengths))
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	improvements, err := json.Marshal(sliceOrEmpty(fb.Improvements))
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO interview_feedback
		   (session_id, overall_score, communication_score, technical_score, confidence_score,
		    strengths, improvements, detailed_analysis, verdict)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (session_id) DO UPDATE SET
		   overall_score = EXCLUDED.overall_score,
		   communication_score = EXCLUDED.communication_score,
		   technical_score = EXCLUDED.technical_score,
		   confidence_score = EXCLUDED.confidence_score,
		   strengths = EXCLUDED.strengths,
		   improvements = EXCLUDED.improvements,
		   detailed_analysis = EXCLUDED.detailed_analysis,
		   verdict = EXCLUDED.verdict`,
		fb.SessionID.String(), fb.OverallScore, fb.CommunicationScore, fb.TechnicalScore,
		fb.ConfidenceScore, strengths, improvements, fb.DetailedAnalysis, fb.Verdict)
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

// GetFeedback loads the evaluation for a session.
func (s *Store) GetFeedback(ctx context.Context, sessionID uuid.UUID) (*Feedback, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT overall_score, communication_score, technical_score, confidence_score,
		        strengths, improvements, detailed_analysis, verdict, created_at
		 FROM interview_feedback WHERE session_id = $1`,
		sessionID.String())

	fb := Feedback{SessionID: sessionID}
	var strengths, improvements []byte
	err := row.Scan(&fb.OverallScore, &fb.CommunicationScore, &fb.TechnicalScore, &fb.ConfidenceScore,
		&strengths, &improvements, &fb.DetailedAnalysis, &fb.Verdict, &fb.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get feedback: %w", err)
	}
	if err := json.Unmarshal(strengths, &fb.Strengths); err != nil {
		return nil, fmt.Errorf("get feedback: strengths: %w", err)
	}
	if err := json.Unmarshal(improvements, &fb.Improvements); err != nil {
		return nil, fmt.Errorf("get feedback: improvements: %w", err)
	}
	return &fb, nil
}

func sliceOrEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
