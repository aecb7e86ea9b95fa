package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeClientMessage(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		check   func(t *testing.T, got any)
	}{
		{
			name: "start",
			data: `{"type":"start","candidate_name":"Ana","position":"QA Engineer","difficulty":"Hard","language":"bg","voice_id":"Kore","api_key":"secret"}`,
			check: func(t *testing.T, got any) {
				msg, ok := got.(ClientStart)
				if !ok {
					t.Fatalf("got %T", got)
				}
				if msg.CandidateName != "Ana" || msg.Position != "QA Engineer" || msg.Language != "bg" {
					t.Fatalf("msg = %+v", msg)
				}
			},
		},
		{
			name: "audio",
			data: `{"type":"audio","data_b64":"AQID"}`,
			check: func(t *testing.T, got any) {
				msg, ok := got.(ClientAudio)
				if !ok || msg.DataB64 != "AQID" {
					t.Fatalf("got %T %+v", got, got)
				}
			},
		},
		{
			name: "audio without data",
			data: `{"type":"audio"}`,

			wantErr: true,
		},
		{
			name: "audio stream end",
			data: `{"type":"audio_stream_end"}`,
			check: func(t *testing.T, got any) {
				if _, ok := got.(ClientAudioStreamEnd); !ok {
					t.Fatalf("got %T", got)
				}
			},
		},
		{
			name: "end",
			data: `{"type":"end"}`,
			check: func(t *testing.T, got any) {
				if _, ok := got.(ClientEnd); !ok {
					t.Fatalf("got %T", got)
				}
			},
		},
		{name: "unknown type", data: `{"type":"dance"}`, wantErr: true},
		{name: "missing type", data: `{}`, wantErr: true},
		{name: "not json", data: `hello`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClientMessage([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			tt.check(t, got)
		})
	}
}

func TestRedactedForLogHidesSecrets(t *testing.T) {
	msg := ClientStart{
		Type:     "start",
		Position: "Backend Developer",
		CVText:   "my life story",
		APIKey:   "AIza-secret",
	}
	redacted := msg.RedactedForLog()
	data, err := json.Marshal(redacted)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, secret := range []string{"my life story", "AIza-secret"} {
		if strings.Contains(s, secret) {
			t.Fatalf("redacted log leaks %q: %s", secret, s)
		}
	}
	if redacted["has_cv"] != true || redacted["has_api_key"] != true {
		t.Fatalf("redacted = %v", redacted)
	}
}

func TestEncodeStatusFrame(t *testing.T) {
	data := Encode(NewStatus(StatusGrading, "Analyzing your performance..."))
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "status" || decoded["status"] != "GRADING" {
		t.Fatalf("decoded = %v", decoded)
	}
}
