// Package geminilive maintains one bidirectional streaming connection to the
// Gemini Live API and its JSON framing. A Link is never reused once it has
// closed or failed; reconnection always constructs a fresh Link.
package geminilive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultWSBase = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

type LinkConfig struct {
	APIKey            string
	Model             string
	Voice             string
	SystemInstruction string

	// BaseWSURL overrides the production endpoint, for tests.
	BaseWSURL string

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration

	Logger *slog.Logger
}

// Handlers is the fixed event contract of a link. Every field is optional;
// a nil handler drops the event. The same Handlers value can be bound to a
// replacement link during reconnection without re-deriving closures.
type Handlers struct {
	// Connected fires on setup acknowledgement. resumed is true when the
	// link was opened with a resumption handle.
	Connected        func(resumed bool)
	Audio            func(pcm []byte)
	Text             func(text string)
	InputTranscript  func(text string)
	OutputTranscript func(text string)
	TurnComplete     func()
	Interrupted      func()
	ResumptionUpdate func(handle string)
	GoAway           func(timeLeft time.Duration)
	Closed           func()
	Error            func(err *Error)
}

type Link struct {
	cfg      LinkConfig
	handlers Handlers
	logger   *slog.Logger

	writeMu sync.Mutex
	conn    *websocket.Conn

	mu           sync.Mutex
	connected    bool
	resumeHandle string
	startedAt    time.Time

	closed    chan struct{}
	closeOnce sync.Once
}

func New(cfg LinkConfig, h Handlers) *Link {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		cfg:      cfg,
		handlers: h,
		logger:   logger.With("component", "geminilive"),
		closed:   make(chan struct{}),
	}
}

// Open dials the websocket and sends the setup frame. resumeHandle continues
// a prior conversation; when it is set the system instruction is withheld
// because the provider retains it across resumptions.
func (l *Link) Open(ctx context.Context, resumeHandle string) error {
	if strings.TrimSpace(l.cfg.APIKey) == "" {
		return &Error{Type: ErrInvalidCredential, Message: "api key is required"}
	}
	if strings.TrimSpace(l.cfg.Model) == "" {
		return &Error{Type: ErrAPI, Message: "model is required"}
	}

	wsURL, err := l.buildURL()
	if err != nil {
		return &Error{Type: ErrAPI, Message: err.Error()}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	handshake := l.cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	dialCtx, cancel := context.WithTimeout(ctx, handshake)
	defer cancel()

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, wsURL, nil)
	if err != nil {
		return classifyDialError(err, resp)
	}

	l.mu.Lock()
	l.conn = conn
	l.resumeHandle = resumeHandle
	l.startedAt = time.Now()
	l.mu.Unlock()

	if err := l.writeJSON(encodeSetup(l.cfg, resumeHandle)); err != nil {
		_ = conn.Close()
		return &Error{Type: ErrTransport, Message: fmt.Sprintf("send setup: %v", err)}
	}

	go l.readLoop()
	go l.keepAliveLoop()
	return nil
}

func (l *Link) buildURL() (string, error) {
	base := strings.TrimSpace(l.cfg.BaseWSURL)
	if base == "" {
		base = defaultWSBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid live ws base url: %w", err)
	}
	q := u.Query()
	q.Set("key", l.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connected reports whether setup has been acknowledged.
func (l *Link) Connected() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

// ResumptionHandle returns the most recent handle issued by the provider, or
// the handle the link was opened with if none has arrived yet.
func (l *Link) ResumptionHandle() string {
	if l == nil {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.resumeHandle
}

// StartedAt returns when the link finished dialing.
func (l *Link) StartedAt() time.Time {
	if l == nil {
		return time.Time{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.startedAt
}

// SendAudio frames one raw PCM chunk as realtime input. Sending on a link
// that is not connected yet is a logged no-op; transport failures are
// delivered through the error handler as well as returned.
func (l *Link) SendAudio(pcm []byte) error {
	if !l.Connected() {
		l.logger.Warn("dropping audio chunk, link not connected")
		return nil
	}
	if err := l.writeJSON(encodeAudioChunk(pcm)); err != nil {
		l.emitError(&Error{Type: ErrTransport, Message: fmt.Sprintf("send audio: %v", err)})
		return err
	}
	return nil
}

// SendText frames one complete user turn. Used once per session right after
// setup acknowledgement to elicit the model's opening remarks.
func (l *Link) SendText(text string) error {
	if !l.Connected() {
		return &Error{Type: ErrTransport, Message: "link not connected"}
	}
	if err := l.writeJSON(encodeUserTurn(text)); err != nil {
		l.emitError(&Error{Type: ErrTransport, Message: fmt.Sprintf("send text: %v", err)})
		return err
	}
	return nil
}

// SendAudioStreamEnd signals end-of-audio-input without closing the
// connection (user muted the mic).
func (l *Link) SendAudioStreamEnd() error {
	if !l.Connected() {
		return nil
	}
	if err := l.writeJSON(encodeAudioStreamEnd()); err != nil {
		l.emitError(&Error{Type: ErrTransport, Message: fmt.Sprintf("send audio stream end: %v", err)})
		return err
	}
	return nil
}

// Close is idempotent and requests graceful shutdown.
func (l *Link) Close() error {
	if l == nil {
		return nil
	}
	l.closeOnce.Do(func() {
		close(l.closed)
		l.mu.Lock()
		l.connected = false
		conn := l.conn
		l.mu.Unlock()
		if conn != nil {
			deadline := time.Now().Add(time.Second)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
			_ = conn.Close()
		}
	})
	return nil
}

func (l *Link) explicitlyClosed() bool {
	select {
	case <-l.closed:
		return true
	default:
		return false
	}
}

func (l *Link) readLoop() {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.mu.Lock()
			l.connected = false
			l.mu.Unlock()
			if !l.explicitlyClosed() {
				if classified := classifyReadError(err); classified != nil {
					l.emitError(classified)
				}
			}
			if l.handlers.Closed != nil {
				l.handlers.Closed()
			}
			return
		}
		l.handleMessage(data)
	}
}

// handleMessage dispatches one inbound frame. Malformed frames are reported
// and skipped; they are never fatal to the link.
func (l *Link) handleMessage(data []byte) {
	var msg serverMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		l.emitError(newProtocolError(fmt.Sprintf("malformed frame: %v", err)))
		return
	}

	if msg.SetupComplete != nil {
		l.mu.Lock()
		l.connected = true
		resumed := l.resumeHandle != ""
		l.mu.Unlock()
		l.logger.Info("live setup acknowledged", "resumed", resumed)
		if l.handlers.Connected != nil {
			l.handlers.Connected(resumed)
		}
	}

	if upd := msg.SessionResumptionUpdate; upd != nil {
		if upd.Resumable && strings.TrimSpace(upd.NewHandle) != "" {
			l.mu.Lock()
			l.resumeHandle = upd.NewHandle
			l.mu.Unlock()
			if l.handlers.ResumptionUpdate != nil {
				l.handlers.ResumptionUpdate(upd.NewHandle)
			}
		}
	}

	if ga := msg.GoAway; ga != nil {
		timeLeft, err := time.ParseDuration(strings.TrimSpace(ga.TimeLeft))
		if err != nil {
			timeLeft = 0
		}
		l.logger.Warn("provider retiring connection", "time_left", timeLeft)
		if l.handlers.GoAway != nil {
			l.handlers.GoAway(timeLeft)
		}
	}

	if sc := msg.ServerContent; sc != nil {
		l.handleServerContent(sc)
	}
}

func (l *Link) handleServerContent(sc *serverContent) {
	if sc.Interrupted {
		if l.handlers.Interrupted != nil {
			l.handlers.Interrupted()
		}
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		if l.handlers.InputTranscript != nil {
			l.handlers.InputTranscript(sc.InputTranscription.Text)
		}
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		if l.handlers.OutputTranscript != nil {
			l.handlers.OutputTranscript(sc.OutputTranscription.Text)
		}
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData != nil && p.InlineData.Data != "" {
				pcm, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
				if err != nil {
					l.emitError(newProtocolError("invalid audio base64 in model turn"))
					continue
				}
				if l.handlers.Audio != nil {
					l.handlers.Audio(pcm)
				}
			}
			if p.Text != "" && l.handlers.Text != nil {
				l.handlers.Text(p.Text)
			}
		}
	}
	// Turn boundary fires after the transcripts it terminates.
	if sc.TurnComplete {
		if l.handlers.TurnComplete != nil {
			l.handlers.TurnComplete()
		}
	}
}

func (l *Link) keepAliveLoop() {
	interval := l.cfg.PingInterval
	if interval <= 0 {
		interval = 20 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.closed:
			return
		case <-ticker.C:
			deadline := time.Now().Add(l.writeTimeout())
			if err := l.conn.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return
			}
		}
	}
}

func (l *Link) writeTimeout() time.Duration {
	if l.cfg.WriteTimeout > 0 {
		return l.cfg.WriteTimeout
	}
	return 5 * time.Second
}

func (l *Link) writeJSON(payload any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	_ = l.conn.SetWriteDeadline(time.Now().Add(l.writeTimeout()))
	return l.conn.WriteJSON(payload)
}

func (l *Link) emitError(err *Error) {
	if err == nil {
		return
	}
	l.logger.Error("upstream link error", "type", string(err.Type), "message", err.Message, "code", err.Code)
	if l.handlers.Error != nil {
		l.handlers.Error(err)
	}
}
