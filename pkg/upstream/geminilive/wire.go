package geminilive

import (
	"encoding/base64"
	"encoding/json"
)

// Outbound frames for the BidiGenerateContent websocket. Field names follow
// the v1beta JSON casing; empty structs are emitted deliberately where the
// API treats presence as "enabled".

type setupFrame struct {
	Setup setupPayload `json:"setup"`
}

type setupPayload struct {
	Model                    string              `json:"model"`
	GenerationConfig         generationConfig    `json:"generationConfig"`
	ContextWindowCompression *contextCompression `json:"contextWindowCompression,omitempty"`
	SessionResumption        *sessionResumption  `json:"sessionResumption,omitempty"`
	SystemInstruction        *content            `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}           `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}           `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

// Enables unbounded session duration by letting the provider slide older
// turns out of the context window.
type contextCompression struct {
	SlidingWindow struct{} `json:"slidingWindow"`
}

type sessionResumption struct {
	Handle string `json:"handle,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInputFrame struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	Audio          *realtimeAudio `json:"audio,omitempty"`
	AudioStreamEnd bool           `json:"audioStreamEnd,omitempty"`
}

type realtimeAudio struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

type clientContentFrame struct {
	ClientContent clientContent `json:"clientContent"`
}

type clientContent struct {
	Turns        []content `json:"turns"`
	TurnComplete bool      `json:"turnComplete"`
}

func encodeSetup(cfg LinkConfig, resumeHandle string) setupFrame {
	payload := setupPayload{
		Model: "models/" + cfg.Model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
			SpeechConfig: &speechConfig{
				VoiceConfig: voiceConfig{
					PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.Voice},
				},
			},
		},
		ContextWindowCompression: &contextCompression{},
		SessionResumption:        &sessionResumption{Handle: resumeHandle},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	// The provider retains the instruction across resumptions; resending it
	// would restart the interview from the top.
	if resumeHandle == "" && cfg.SystemInstruction != "" {
		payload.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	return setupFrame{Setup: payload}
}

func encodeAudioChunk(pcm []byte) realtimeInputFrame {
	return realtimeInputFrame{RealtimeInput: realtimeInput{
		Audio: &realtimeAudio{
			Data:     base64.StdEncoding.EncodeToString(pcm),
			MIMEType: "audio/pcm;rate=16000",
		},
	}}
}

func encodeAudioStreamEnd() realtimeInputFrame {
	return realtimeInputFrame{RealtimeInput: realtimeInput{AudioStreamEnd: true}}
}

func encodeUserTurn(text string) clientContentFrame {
	return clientContentFrame{ClientContent: clientContent{
		Turns:        []content{{Role: "user", Parts: []part{{Text: text}}}},
		TurnComplete: true,
	}}
}

// Inbound frames.

type serverMessage struct {
	SetupComplete           *struct{}         `json:"setupComplete"`
	ServerContent           *serverContent    `json:"serverContent"`
	SessionResumptionUpdate *resumptionUpdate `json:"sessionResumptionUpdate"`
	GoAway                  *goAwayNotice     `json:"goAway"`
	UsageMetadata           *json.RawMessage  `json:"usageMetadata"`
}

type serverContent struct {
	Interrupted         bool           `json:"interrupted"`
	TurnComplete        bool           `json:"turnComplete"`
	InputTranscription  *transcription `json:"inputTranscription"`
	OutputTranscription *transcription `json:"outputTranscription"`
	ModelTurn           *content       `json:"modelTurn"`
}

type transcription struct {
	Text string `json:"text"`
}

type resumptionUpdate struct {
	Resumable bool   `json:"resumable"`
	NewHandle string `json:"newHandle"`
}

type goAwayNotice struct {
	// Duration string, e.g. "10s".
	TimeLeft string `json:"timeLeft"`
}
