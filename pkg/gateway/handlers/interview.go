package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/k2ai/interview-relay/pkg/gateway/config"
	"github.com/k2ai/interview-relay/pkg/gateway/lifecycle"
	"github.com/k2ai/interview-relay/pkg/gateway/live/protocol"
	"github.com/k2ai/interview-relay/pkg/gateway/live/session"
	"github.com/k2ai/interview-relay/pkg/gateway/live/sessions"
	"github.com/k2ai/interview-relay/pkg/gateway/mw"
	"github.com/k2ai/interview-relay/pkg/upstream/geminilive"
)

// InterviewHandler handles /ws/interview websocket sessions.
type InterviewHandler struct {
	Config    config.Config
	Relay     *session.Service
	Registry  *sessions.Registry
	Lifecycle *lifecycle.Lifecycle
	Logger    *slog.Logger
}

func (h InterviewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	if r.Method != http.MethodGet {
		writeErrorJSON(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", reqID)
		return
	}
	if h.Lifecycle.IsDraining() {
		writeErrorJSON(w, http.StatusServiceUnavailable, "draining", "gateway is draining", reqID)
		return
	}
	if !h.originAllowed(r) {
		writeErrorJSON(w, http.StatusForbidden, "forbidden", "origin is not allowed", reqID)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if h.Config.WSMaxMessageBytes > 0 {
		conn.SetReadLimit(h.Config.WSMaxMessageBytes)
	}

	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}

	connID := "conn_" + uuid.NewString()
	writer := session.NewWriter(conn, session.WriterConfig{
		PingInterval: h.Config.WSPingInterval,
		WriteTimeout: h.Config.WSWriteTimeout,
		Logger:       logger,
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		if err := writer.Run(ctx); err != nil {
			logger.Warn("client writer stopped", "conn_id", connID, "error", err)
		}
	}()

	iv := h.runSession(ctx, conn, connID, writer, logger)
	if iv != nil {
		h.Relay.Disconnect(iv)
	}

	cancel()
	select {
	case <-writerDone:
	case <-time.After(time.Second):
	}
}

// runSession reads client frames until the socket closes. The first frame
// must be start; everything after is audio, audio_stream_end or end.
func (h InterviewHandler) runSession(ctx context.Context, conn *websocket.Conn, connID string, writer *session.Writer, logger *slog.Logger) *session.Interview {
	handshake := h.Config.LiveHandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	_ = conn.SetReadDeadline(time.Now().Add(handshake))
	_, firstFrame, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	_ = conn.SetReadDeadline(time.Time{})

	decoded, err := protocol.DecodeClientMessage(firstFrame)
	if err != nil {
		writer.SendPriority(protocol.NewError("first frame must be a start message"))
		return nil
	}
	start, ok := decoded.(protocol.ClientStart)
	if !ok {
		writer.SendPriority(protocol.NewError("first frame must be a start message"))
		return nil
	}
	logger.Info("interview requested", "conn_id", connID, "start", start.RedactedForLog())

	iv, err := h.Relay.Start(ctx, connID, start, writer)
	if err != nil {
		writer.SendPriority(startErrorFrame(err))
		return nil
	}

	cancelSession := func() {
		h.Relay.Disconnect(iv)
		_ = conn.Close()
	}
	unregister := h.Registry.Register(connID, sessions.Handle{Interview: iv, Cancel: cancelSession})
	defer unregister()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return iv
		}
		decoded, err := protocol.DecodeClientMessage(data)
		if err != nil {
			writer.SendPriority(protocol.NewError(err.Error()))
			continue
		}
		switch msg := decoded.(type) {
		case protocol.ClientAudio:
			if err := h.Relay.HandleAudio(iv, msg.DataB64); err != nil {
				writer.SendPriority(protocol.NewError(err.Error()))
			}
		case protocol.ClientAudioStreamEnd:
			h.Relay.HandleAudioStreamEnd(iv)
		case protocol.ClientEnd:
			h.Relay.End(iv)
		case protocol.ClientStart:
			writer.SendPriority(protocol.NewError("interview already started"))
		}
	}
}

func startErrorFrame(err error) protocol.ServerError {
	if errors.Is(err, session.ErrRequiresAPIKey) {
		return protocol.ServerError{
			Type:           "error",
			Message:        err.Error(),
			RequiresAPIKey: true,
		}
	}
	var upstreamErr *geminilive.Error
	if errors.As(err, &upstreamErr) {
		switch {
		case upstreamErr.RateLimited():
			return protocol.ServerError{Type: "error", Message: upstreamErr.Message, RateLimited: true}
		case upstreamErr.InvalidCredential():
			return protocol.ServerError{Type: "error", Message: upstreamErr.Message, InvalidKey: true}
		}
	}
	var decodeErr *protocol.DecodeError
	if errors.As(err, &decodeErr) {
		return protocol.NewError(decodeErr.Error())
	}
	return protocol.NewError("failed to start the interview")
}

func (h InterviewHandler) originAllowed(r *http.Request) bool {
	allowed := h.Config.CORSAllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		// Non-browser clients send no Origin header.
		return true
	}
	_, ok := allowed[origin]
	return ok
}
