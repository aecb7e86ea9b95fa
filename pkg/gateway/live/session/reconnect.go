package session

import (
	"context"

	"github.com/k2ai/interview-relay/pkg/gateway/live/protocol"
)

// reconnect replaces a dying upstream link with a fresh one opened on the
// saved resumption token. Triggered by a provider retirement notice or by an
// unexpected closure; while it runs, client audio is captured in the replay
// buffer and flushed once the replacement link acknowledges setup.
func (s *Service) reconnect(iv *Interview) {
	old, token, ok := iv.beginReconnect()
	if !ok {
		return
	}

	if token == "" {
		// Without a token a new link would start a blank conversation.
		// The session stays disconnected until the client restarts it.
		iv.abortReconnect()
		iv.dispatch.SendPriority(protocol.NewStatus(protocol.StatusDisconnected,
			"Connection lost and no resumption token is available"))
		s.logger.Warn("reconnection impossible, no resumption token",
			"session_id", iv.SessionID.String())
		return
	}

	if old != nil {
		_ = old.Close()
	}
	iv.dispatch.SendPriority(protocol.NewStatus(protocol.StatusReconnecting, ""))
	s.logger.Info("reconnecting upstream link", "session_id", iv.SessionID.String())

	link := s.deps.NewLink(s.linkConfig(iv), s.bindHandlers(iv))
	iv.replaceLink(link)
	if err := link.Open(context.Background(), token); err != nil {
		// Clearing the guard here lets a later closure event retry
		// instead of locking the session out permanently.
		iv.abortReconnect()
		iv.dispatch.SendPriority(protocol.NewError("reconnection failed: " + err.Error()))
		iv.dispatch.SendPriority(protocol.NewStatus(protocol.StatusDisconnected, ""))
		s.logger.Error("reconnection failed",
			"session_id", iv.SessionID.String(), "error", err)
	}
}
