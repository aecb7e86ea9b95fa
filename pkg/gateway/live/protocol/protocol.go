// Package protocol defines the JSON frames exchanged with browser clients
// over the interview websocket.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

// Client → server frames.

type ClientStart struct {
	Type              string `json:"type"`
	CandidateName     string `json:"candidate_name"`
	Position          string `json:"position"`
	Difficulty        string `json:"difficulty,omitempty"`
	Language          string `json:"language,omitempty"`
	VoiceID           string `json:"voice_id,omitempty"`
	CVText            string `json:"cv_text,omitempty"`
	InterviewerNameEN string `json:"interviewer_name_en,omitempty"`
	InterviewerNameBG string `json:"interviewer_name_bg,omitempty"`
	APIKey            string `json:"api_key,omitempty"`
}

// RedactedForLog drops the credential and CV body before logging.
func (s ClientStart) RedactedForLog() map[string]any {
	return map[string]any{
		"type":        s.Type,
		"position":    s.Position,
		"difficulty":  s.Difficulty,
		"language":    s.Language,
		"voice_id":    s.VoiceID,
		"has_cv":      strings.TrimSpace(s.CVText) != "",
		"has_api_key": strings.TrimSpace(s.APIKey) != "",
	}
}

type ClientAudio struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

type ClientAudioStreamEnd struct {
	Type string `json:"type"`
}

type ClientEnd struct {
	Type string `json:"type"`
}

// DecodeClientMessage dispatches an inbound client frame on its type field.
func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "start":
		var msg ClientStart
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid start frame", "")
		}
		return msg, nil
	case "audio":
		var msg ClientAudio
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid audio frame", "")
		}
		if strings.TrimSpace(msg.DataB64) == "" {
			return nil, badRequest("audio frame requires data_b64", "data_b64")
		}
		return msg, nil
	case "audio_stream_end":
		return ClientAudioStreamEnd{Type: typ}, nil
	case "end":
		return ClientEnd{Type: typ}, nil
	default:
		return nil, badRequest("unknown message type", "type")
	}
}

// Server → client frames.

const (
	StatusConnected    = "CONNECTED"
	StatusTurnComplete = "TURN_COMPLETE"
	StatusInterrupted  = "INTERRUPTED"
	StatusReconnecting = "RECONNECTING"
	StatusDisconnected = "DISCONNECTED"
	StatusGrading      = "GRADING"
	StatusEnded        = "ENDED"
)

type ServerStatus struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func NewStatus(status, message string) ServerStatus {
	return ServerStatus{Type: "status", Status: status, Message: message}
}

type ServerAudio struct {
	Type    string `json:"type"`
	DataB64 string `json:"data_b64"`
}

func NewAudio(dataB64 string) ServerAudio {
	return ServerAudio{Type: "audio", DataB64: dataB64}
}

const (
	SpeakerUser = "user"
	SpeakerAI   = "ai"
)

type ServerTranscript struct {
	Type    string `json:"type"`
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

func NewTranscript(speaker, text string) ServerTranscript {
	return ServerTranscript{Type: "transcript", Speaker: speaker, Text: text}
}

type ServerText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewText(text string) ServerText {
	return ServerText{Type: "text", Text: text}
}

type ServerError struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	RateLimited    bool   `json:"rate_limited,omitempty"`
	InvalidKey     bool   `json:"invalid_key,omitempty"`
	RequiresAPIKey bool   `json:"requires_api_key,omitempty"`
}

func NewError(message string) ServerError {
	return ServerError{Type: "error", Message: message}
}

type ServerReport struct {
	Type               string   `json:"type"`
	SessionID          string   `json:"session_id"`
	OverallScore       int      `json:"overall_score"`
	CommunicationScore int      `json:"communication_score"`
	TechnicalScore     int      `json:"technical_score"`
	ConfidenceScore    int      `json:"confidence_score"`
	Strengths          []string `json:"strengths"`
	Improvements       []string `json:"improvements"`
	DetailedAnalysis   string   `json:"detailed_analysis"`
	Verdict            string   `json:"verdict"`
	Transcript         string   `json:"transcript"`
}

// Encode marshals a server frame, falling back to an error frame if the
// payload itself cannot be marshaled.
func Encode(frame any) []byte {
	data, err := json.Marshal(frame)
	if err != nil {
		data, _ = json.Marshal(NewError("internal encoding error"))
	}
	return data
}
