package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/k2ai/interview-relay/pkg/gateway/live/protocol"
)

type fakeWS struct {
	msgs     chan []byte
	controls chan int
}

func newFakeWS() *fakeWS {
	return &fakeWS{msgs: make(chan []byte, 32), controls: make(chan int, 32)}
}

func (f *fakeWS) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeWS) WriteMessage(_ int, data []byte) error {
	f.msgs <- data
	return nil
}

func (f *fakeWS) WriteControl(messageType int, _ []byte, _ time.Time) error {
	f.controls <- messageType
	return nil
}

func (f *fakeWS) Close() error { return nil }

func (f *fakeWS) next(t *testing.T) []byte {
	t.Helper()
	select {
	case data := <-f.msgs:
		return data
	case <-time.After(time.Second):
		t.Fatal("no frame written")
		return nil
	}
}

func frameType(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Type   string `json:"type"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatal(err)
	}
	if envelope.Status != "" {
		return envelope.Status
	}
	return envelope.Type
}

func TestWriterPrefersPriorityFrames(t *testing.T) {
	ws := newFakeWS()
	w := NewWriter(ws, WriterConfig{PingInterval: time.Hour})

	w.Send(protocol.NewAudio("YQ=="))
	w.Send(protocol.NewAudio("Yg=="))
	w.SendPriority(protocol.NewStatus(protocol.StatusInterrupted, ""))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	if got := frameType(t, ws.next(t)); got != protocol.StatusInterrupted {
		t.Fatalf("first frame = %q, want the priority status", got)
	}
	if got := frameType(t, ws.next(t)); got != "audio" {
		t.Fatalf("second frame = %q", got)
	}
	if got := frameType(t, ws.next(t)); got != "audio" {
		t.Fatalf("third frame = %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestWriterDropsWhenNormalQueueFull(t *testing.T) {
	ws := newFakeWS()
	w := NewWriter(ws, WriterConfig{})
	for i := 0; i < 300; i++ {
		w.Send(protocol.NewAudio("YQ=="))
	}
	if len(w.normal) != cap(w.normal) {
		t.Fatalf("queue length = %d, want full at %d", len(w.normal), cap(w.normal))
	}
}
