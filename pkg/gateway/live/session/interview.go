// Package session holds the live relay core: the per-interview conversation
// state, the upstream link lifecycle including reconnection, turn and
// transcript accumulation, conclusion detection, and the finalization handoff
// to persistence and grading.
package session

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Interview is the per-client-connection aggregate. All mutation goes through
// its methods under one mutex; events from the upstream link and frames from
// the client websocket arrive on unrelated goroutines.
type Interview struct {
	ConnID    string
	SessionID uuid.UUID

	CandidateName string
	Position      string
	Difficulty    string
	Language      string
	VoiceID       string
	Instruction   string

	// credential/model drive the upstream link; userKey is the raw
	// client-supplied key handed to grading rotation (empty outside
	// client-key mode).
	credential string
	model      string
	userKey    string

	dispatch Dispatcher

	mu           sync.Mutex
	link         UpstreamLink
	resumption   string
	ended        bool
	reconnecting bool
	noReconnect  bool
	userSpeech   strings.Builder
	aiSpeech     strings.Builder
	transcript   strings.Builder
	currentTurn  strings.Builder
	audioReplay  [][]byte
}

// appendUserSpeech records one input-transcription fragment.
func (iv *Interview) appendUserSpeech(text string) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.ended {
		return
	}
	iv.userSpeech.WriteString(text)
	iv.transcript.WriteString("\n[Candidate]: ")
	iv.transcript.WriteString(text)
}

// appendAISpeech records one output-transcription fragment in both the full
// transcript and the current-turn buffer.
func (iv *Interview) appendAISpeech(text string) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.ended {
		return
	}
	iv.aiSpeech.WriteString(text)
	iv.currentTurn.WriteString(text)
	iv.transcript.WriteString("\n[Interviewer]: ")
	iv.transcript.WriteString(text)
}

// takeTurn returns and clears the current-turn buffer.
func (iv *Interview) takeTurn() string {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	turn := iv.currentTurn.String()
	iv.currentTurn.Reset()
	return turn
}

// discardTurn drops the current-turn buffer without treating it as a
// completed turn (the model was interrupted mid-sentence).
func (iv *Interview) discardTurn() {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.currentTurn.Reset()
}

// Transcript returns the full interleaved transcript so far.
func (iv *Interview) Transcript() string {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.transcript.String()
}

// Ended reports whether the session has been finalized or torn down.
func (iv *Interview) Ended() bool {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.ended
}

func (iv *Interview) setResumption(handle string) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.resumption = handle
}

func (iv *Interview) forbidReconnect() {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.noReconnect = true
}

// activeLink returns the current link, or false once the session has ended.
func (iv *Interview) activeLink() (UpstreamLink, bool) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.ended {
		return nil, false
	}
	return iv.link, iv.link != nil
}

// forwardOrBuffer decides what happens to one inbound client audio chunk:
// dropped after the end, captured in the replay buffer while reconnecting, or
// forwarded to the returned link.
func (iv *Interview) forwardOrBuffer(pcm []byte) (UpstreamLink, bool) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.ended {
		return nil, false
	}
	if iv.reconnecting {
		iv.audioReplay = append(iv.audioReplay, pcm)
		return nil, false
	}
	return iv.link, iv.link != nil
}

// markEnded flips the monotonic ended flag. The first caller gets true plus
// the link to close; everyone after gets false. The replay buffer is dropped
// because no link will ever consume it.
func (iv *Interview) markEnded() (UpstreamLink, bool) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.ended {
		return nil, false
	}
	iv.ended = true
	iv.reconnecting = false
	iv.audioReplay = nil
	return iv.link, true
}

// beginReconnect arms the reconnection guard. It returns the outgoing link
// and the resumption token to reuse; ok is false when the session has ended,
// a reconnection is already in flight, or reconnection is forbidden.
func (iv *Interview) beginReconnect() (old UpstreamLink, token string, ok bool) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	if iv.ended || iv.reconnecting || iv.noReconnect {
		return nil, "", false
	}
	token = iv.resumption
	if token == "" && iv.link != nil {
		token = iv.link.ResumptionHandle()
	}
	iv.reconnecting = true
	return iv.link, token, true
}

// abortReconnect clears the guard after a failed attempt so a later closure
// event may try again.
func (iv *Interview) abortReconnect() {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.reconnecting = false
}

// replaceLink swaps in the replacement link while reconnecting.
func (iv *Interview) replaceLink(link UpstreamLink) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.link = link
}

// finishReconnect clears the guard and hands back the buffered audio in
// capture order together with the link that must replay it.
func (iv *Interview) finishReconnect() (UpstreamLink, [][]byte) {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	iv.reconnecting = false
	replay := iv.audioReplay
	iv.audioReplay = nil
	return iv.link, replay
}

func (iv *Interview) isReconnecting() bool {
	iv.mu.Lock()
	defer iv.mu.Unlock()
	return iv.reconnecting
}
