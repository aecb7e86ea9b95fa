package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/k2ai/interview-relay/pkg/gateway/live/protocol"
	"github.com/k2ai/interview-relay/pkg/prompt"
	"github.com/k2ai/interview-relay/pkg/rotation"
	"github.com/k2ai/interview-relay/pkg/store"
	"github.com/k2ai/interview-relay/pkg/upstream/geminilive"
	"github.com/k2ai/interview-relay/pkg/voices"
)

// UpstreamLink is the slice of geminilive.Link the relay drives. A link is
// never reused after it closes; reconnection builds a fresh one.
type UpstreamLink interface {
	Open(ctx context.Context, resumeHandle string) error
	SendAudio(pcm []byte) error
	SendText(text string) error
	SendAudioStreamEnd() error
	Close() error
	Connected() bool
	ResumptionHandle() string
}

// LinkFactory builds a link. Swappable for tests.
type LinkFactory func(cfg geminilive.LinkConfig, h geminilive.Handlers) UpstreamLink

// SessionStore is the persistence surface the relay needs.
type SessionStore interface {
	CreateSession(ctx context.Context, candidateName, position, difficulty, language string) (uuid.UUID, error)
	AppendTranscript(ctx context.Context, sessionID uuid.UUID, text string) error
	FinalizeSession(ctx context.Context, sessionID uuid.UUID) error
}

// Grader produces the written evaluation after finalization.
type Grader interface {
	Grade(ctx context.Context, sessionID uuid.UUID, userKey string) (*store.Feedback, error)
}

// ErrRequiresAPIKey is returned by Start when the deployment expects clients
// to bring their own provider key and none was supplied.
var ErrRequiresAPIKey = errors.New("session: an api key is required to start an interview")

type Deps struct {
	Store    SessionStore
	Grader   Grader
	Rotation *rotation.Policy
	NewLink  LinkFactory

	// RequireClientKey marks deployments where clients supply their own
	// provider credential.
	RequireClientKey bool

	// Unregister removes the session from the registry once grading has
	// been delivered. Optional.
	Unregister func(connID string)

	// BaseWSURL overrides the upstream endpoint, for tests.
	BaseWSURL string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration

	Logger *slog.Logger
}

type Service struct {
	deps   Deps
	logger *slog.Logger
}

func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if deps.NewLink == nil {
		deps.NewLink = func(cfg geminilive.LinkConfig, h geminilive.Handlers) UpstreamLink {
			return geminilive.New(cfg, h)
		}
	}
	return &Service{deps: deps, logger: logger.With("component", "relay")}
}

// Start validates the request, creates the durable session, builds the first
// upstream link and opens it. The returned Interview is live once the link's
// setup is acknowledged; events flow to disp from then on.
func (s *Service) Start(ctx context.Context, connID string, req protocol.ClientStart, disp Dispatcher) (*Interview, error) {
	name := strings.TrimSpace(req.CandidateName)
	position := strings.TrimSpace(req.Position)
	if name == "" {
		return nil, &protocol.DecodeError{Code: "bad_request", Message: "candidate_name is required", Param: "candidate_name"}
	}
	if position == "" {
		return nil, &protocol.DecodeError{Code: "bad_request", Message: "position is required", Param: "position"}
	}
	difficulty := normalizeDifficulty(req.Difficulty)
	language := normalizeLanguage(req.Language)
	voiceID := strings.TrimSpace(req.VoiceID)
	if !voices.IsValid(voiceID) {
		voiceID = voices.DefaultID
	}

	userKey := strings.TrimSpace(req.APIKey)
	if s.deps.RequireClientKey && userKey == "" {
		return nil, ErrRequiresAPIKey
	}
	pair := s.deps.Rotation.Next(userKey)
	if pair == nil {
		return nil, &geminilive.Error{Type: geminilive.ErrRateLimited, Message: "no interview capacity is available right now"}
	}

	sessionID, err := s.deps.Store.CreateSession(ctx, name, position, difficulty, language)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	instruction := prompt.GenerateInstruction(prompt.InstructionOptions{
		Position:          position,
		Difficulty:        difficulty,
		Language:          language,
		CVText:            strings.TrimSpace(req.CVText),
		InterviewerNameEN: strings.TrimSpace(req.InterviewerNameEN),
		InterviewerNameBG: strings.TrimSpace(req.InterviewerNameBG),
	})

	iv := &Interview{
		ConnID:        connID,
		SessionID:     sessionID,
		CandidateName: name,
		Position:      position,
		Difficulty:    difficulty,
		Language:      language,
		VoiceID:       voiceID,
		Instruction:   instruction,
		credential:    pair.Credential,
		model:         pair.Model,
		userKey:       userKey,
		dispatch:      disp,
	}

	link := s.deps.NewLink(s.linkConfig(iv), s.bindHandlers(iv))
	iv.replaceLink(link)
	if err := link.Open(ctx, ""); err != nil {
		s.logger.Error("failed to open upstream link",
			"conn_id", connID, "session_id", sessionID.String(), "error", err)
		return nil, err
	}

	s.logger.Info("interview started",
		"conn_id", connID, "session_id", sessionID.String(),
		"position", position, "difficulty", difficulty, "language", language, "voice", voiceID)
	return iv, nil
}

func (s *Service) linkConfig(iv *Interview) geminilive.LinkConfig {
	return geminilive.LinkConfig{
		APIKey:            iv.credential,
		Model:             iv.model,
		Voice:             iv.VoiceID,
		SystemInstruction: iv.Instruction,
		BaseWSURL:         s.deps.BaseWSURL,
		HandshakeTimeout:  s.deps.HandshakeTimeout,
		WriteTimeout:      s.deps.WriteTimeout,
		PingInterval:      s.deps.PingInterval,
		Logger:            s.logger,
	}
}

// bindHandlers wires the fixed upstream event contract to one interview. The
// same set is bound to every replacement link during reconnection.
func (s *Service) bindHandlers(iv *Interview) geminilive.Handlers {
	return geminilive.Handlers{
		Connected: func(resumed bool) { s.onConnected(iv, resumed) },
		Audio: func(pcm []byte) {
			iv.dispatch.Send(protocol.NewAudio(base64.StdEncoding.EncodeToString(pcm)))
		},
		Text: func(text string) {
			iv.dispatch.Send(protocol.NewText(text))
		},
		InputTranscript: func(text string) {
			iv.appendUserSpeech(text)
			iv.dispatch.Send(protocol.NewTranscript(protocol.SpeakerUser, text))
		},
		OutputTranscript: func(text string) {
			iv.appendAISpeech(text)
			iv.dispatch.Send(protocol.NewTranscript(protocol.SpeakerAI, text))
		},
		TurnComplete: func() { s.onTurnComplete(iv) },
		Interrupted: func() {
			iv.discardTurn()
			iv.dispatch.SendPriority(protocol.NewStatus(protocol.StatusInterrupted, ""))
		},
		ResumptionUpdate: func(handle string) { iv.setResumption(handle) },
		GoAway: func(timeLeft time.Duration) {
			s.logger.Warn("upstream retiring connection, reconnecting early",
				"session_id", iv.SessionID.String(), "time_left", timeLeft)
			s.reconnect(iv)
		},
		Closed: func() { s.onClosed(iv) },
		Error:  func(err *geminilive.Error) { s.onUpstreamError(iv, err) },
	}
}

func (s *Service) onConnected(iv *Interview, resumed bool) {
	if resumed {
		link, replay := iv.finishReconnect()
		iv.dispatch.SendPriority(protocol.NewStatus(protocol.StatusConnected, "Reconnected"))
		for _, chunk := range replay {
			if err := link.SendAudio(chunk); err != nil {
				break
			}
		}
		s.logger.Info("reconnection complete",
			"session_id", iv.SessionID.String(), "replayed_chunks", len(replay))
		return
	}

	iv.dispatch.SendPriority(protocol.NewStatus(protocol.StatusConnected, ""))
	link, ok := iv.activeLink()
	if !ok {
		return
	}
	// A deterministic opener: the model replies to the greeting instead of
	// waiting for the candidate to speak first.
	if err := link.SendText(prompt.Greeting(iv.Language)); err != nil {
		s.logger.Error("failed to send greeting", "session_id", iv.SessionID.String(), "error", err)
	}
}

func (s *Service) onTurnComplete(iv *Interview) {
	turn := iv.takeTurn()
	iv.dispatch.SendPriority(protocol.NewStatus(protocol.StatusTurnComplete, ""))
	if prompt.IsConcluding(turn) {
		s.logger.Info("conclusion detected", "session_id", iv.SessionID.String())
		s.finalize(iv)
	}
}

func (s *Service) onClosed(iv *Interview) {
	if iv.Ended() {
		return
	}
	// The guard in beginReconnect makes the closure of the outgoing link
	// during an active reconnection a no-op.
	s.reconnect(iv)
}

func (s *Service) onUpstreamError(iv *Interview, err *geminilive.Error) {
	switch {
	case err.InvalidCredential():
		iv.forbidReconnect()
		iv.dispatch.SendPriority(protocol.ServerError{
			Type:       "error",
			Message:    err.Message,
			InvalidKey: true,
		})
	case err.RateLimited():
		daily := strings.Contains(err.Message, "PerDay") || strings.Contains(strings.ToLower(err.Message), "per day")
		s.deps.Rotation.FlagExhausted(iv.credential, iv.model, daily)
		iv.dispatch.SendPriority(protocol.ServerError{
			Type:        "error",
			Message:     err.Message,
			RateLimited: true,
		})
	default:
		iv.dispatch.SendPriority(protocol.NewError(err.Message))
	}
}

// HandleAudio routes one client audio chunk: forwarded when the link is
// healthy, buffered while reconnecting, dropped after the end.
func (s *Service) HandleAudio(iv *Interview, dataB64 string) error {
	pcm, err := base64.StdEncoding.DecodeString(dataB64)
	if err != nil {
		return &protocol.DecodeError{Code: "bad_request", Message: "invalid audio base64", Param: "data_b64"}
	}
	link, forward := iv.forwardOrBuffer(pcm)
	if !forward {
		return nil
	}
	return link.SendAudio(pcm)
}

// HandleAudioStreamEnd tells the model the candidate muted their microphone.
func (s *Service) HandleAudioStreamEnd(iv *Interview) {
	link, ok := iv.activeLink()
	if !ok {
		return
	}
	_ = link.SendAudioStreamEnd()
}

// End finalizes the interview on an explicit client request.
func (s *Service) End(iv *Interview) {
	s.finalize(iv)
}

// Disconnect tears the session down when the client went away without
// finishing. The link is closed and nothing is graded.
func (s *Service) Disconnect(iv *Interview) {
	link, first := iv.markEnded()
	if !first {
		return
	}
	if link != nil {
		_ = link.Close()
	}
	s.logger.Info("client disconnected mid-interview", "session_id", iv.SessionID.String())
}

func normalizeDifficulty(in string) string {
	switch strings.ToLower(strings.TrimSpace(in)) {
	case "easy":
		return "Easy"
	case "hard":
		return "Hard"
	default:
		return "Standard"
	}
}

func normalizeLanguage(in string) string {
	if strings.EqualFold(strings.TrimSpace(in), "bg") {
		return "bg"
	}
	return "en"
}
