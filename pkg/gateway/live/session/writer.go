package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/k2ai/interview-relay/pkg/gateway/live/protocol"
)

// Dispatcher delivers server frames to one client connection. Status, error
// and report frames go through SendPriority; audio and transcripts through
// Send.
type Dispatcher interface {
	Send(frame any)
	SendPriority(frame any)
}

type wsWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

type WriterConfig struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Writer is the outbound half of a client connection: a single goroutine
// draining a priority and a normal queue, so a burst of audio frames can
// never delay a status or error frame.
type Writer struct {
	ws       wsWriter
	logger   *slog.Logger
	cfg      WriterConfig
	priority chan []byte
	normal   chan []byte
}

func NewWriter(ws wsWriter, cfg WriterConfig) *Writer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		ws:       ws,
		logger:   logger.With("component", "dispatch"),
		cfg:      cfg,
		priority: make(chan []byte, 64),
		normal:   make(chan []byte, 256),
	}
}

// Send enqueues a normal frame. A full queue drops the frame with a warning
// rather than blocking the upstream event callback.
func (w *Writer) Send(frame any) {
	select {
	case w.normal <- protocol.Encode(frame):
	default:
		w.logger.Warn("outbound queue full, dropping frame")
	}
}

// SendPriority enqueues a status/error/report frame ahead of pending audio.
func (w *Writer) SendPriority(frame any) {
	select {
	case w.priority <- protocol.Encode(frame):
	default:
		w.logger.Warn("priority queue full, dropping frame")
	}
}

// Run writes frames until ctx is canceled, preferring the priority queue. A
// pending normal frame can still be preempted by a priority frame that
// arrives before it is written.
func (w *Writer) Run(ctx context.Context) error {
	pingInterval := w.cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	writeTimeout := w.cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	var pendingNormal []byte

	for {
		select {
		case <-ctx.Done():
			w.flushPriorityOnShutdown(writeTimeout)
			_ = w.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			_ = w.ws.Close()
			return nil
		default:
		}

		select {
		case frame := <-w.priority:
			if err := w.writeFrame(frame, writeTimeout); err != nil {
				return err
			}
			continue
		default:
		}

		if pendingNormal != nil {
			select {
			case frame := <-w.priority:
				if err := w.writeFrame(frame, writeTimeout); err != nil {
					return err
				}
				continue
			default:
			}
			if err := w.writeFrame(pendingNormal, writeTimeout); err != nil {
				return err
			}
			pendingNormal = nil
			continue
		}

		select {
		case <-ctx.Done():
			continue
		case <-pingTicker.C:
			deadline := time.Now().Add(writeTimeout)
			if err := w.ws.WriteControl(websocket.PingMessage, []byte("ping"), deadline); err != nil {
				return err
			}
		case frame := <-w.priority:
			if err := w.writeFrame(frame, writeTimeout); err != nil {
				return err
			}
		case frame := <-w.normal:
			pendingNormal = frame
		}
	}
}

func (w *Writer) flushPriorityOnShutdown(writeTimeout time.Duration) {
	flushDeadline := time.Now().Add(100 * time.Millisecond)
	for i := 0; i < 8 && time.Now().Before(flushDeadline); i++ {
		select {
		case frame := <-w.priority:
			_ = w.writeFrame(frame, writeTimeout)
		default:
			return
		}
	}
}

func (w *Writer) writeFrame(data []byte, writeTimeout time.Duration) error {
	if err := w.ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return w.ws.WriteMessage(websocket.TextMessage, data)
}
