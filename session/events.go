package session

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Server control keywords carried in the "message" field.
const (
	msgServerReady = "SERVER_READY"
	msgDisconnect  = "DISCONNECT"
)

// Status values carried in the "status" field.
const (
	statusWait    = "WAIT"
	statusError   = "ERROR"
	statusWarning = "WARNING"
)

// ServerEvent is a decoded inbound message. Messages are distinguished by
// which fields they carry, so decoding happens once at the boundary and the
// rest of the engine only sees this closed set of variants.
type ServerEvent interface {
	// SessionUID returns the uid the message was addressed to, or "" when
	// the message carries no identity.
	SessionUID() string
}

// ReadyEvent signals the server accepted the handshake and will stream
// transcription results.
type ReadyEvent struct {
	UID     string
	Backend string
}

// StatusEvent carries a WAIT / ERROR / WARNING notice.
type StatusEvent struct {
	UID     string
	Status  string
	Message string
	// WaitMinutes is the estimated queue time for WAIT notices.
	WaitMinutes float64
}

// DisconnectEvent signals the server is closing the session.
type DisconnectEvent struct {
	UID string
}

// LanguageEvent reports the detected spoken language.
type LanguageEvent struct {
	UID         string
	Language    string
	Probability float64
}

// SummaryEvent replaces the latest meeting summary.
type SummaryEvent struct {
	UID     string
	Summary string
}

// TranscriptEvent is the core reconciliation input: finalized text,
// translations, the current live segment, and the known language set. Any of
// the parts may be absent.
type TranscriptEvent struct {
	UID                string
	Final              []FinalSegment
	Translations       []TranslationSegment
	Live               *LiveSegment
	AvailableLanguages []string
	// HasLanguages distinguishes an absent language list from an empty one;
	// observers are notified on every occurrence.
	HasLanguages bool
}

// MalformedEvent is produced for payloads that match no known shape.
type MalformedEvent struct {
	Reason string
}

func (e ReadyEvent) SessionUID() string      { return e.UID }
func (e StatusEvent) SessionUID() string     { return e.UID }
func (e DisconnectEvent) SessionUID() string { return e.UID }
func (e LanguageEvent) SessionUID() string   { return e.UID }
func (e SummaryEvent) SessionUID() string    { return e.UID }
func (e TranscriptEvent) SessionUID() string { return e.UID }
func (e MalformedEvent) SessionUID() string  { return "" }

// FinalSegment is a server-finalized transcript entry.
type FinalSegment struct {
	ID        flexID  `json:"id"`
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"data"`
	Speaker   string  `json:"speaker,omitempty"`
	Language  string  `json:"language,omitempty"`
}

// TranslationSegment carries the translations for one timestamp. Its id
// namespace is independent of FinalSegment ids.
type TranslationSegment struct {
	ID           flexID            `json:"id"`
	Timestamp    float64           `json:"timestamp"`
	Translations map[string]string `json:"translations"`
}

// LiveSegment is the current in-progress transcription, replaced wholesale
// on every update.
type LiveSegment struct {
	Timestamp float64 `json:"timestamp"`
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker,omitempty"`
	Language  string  `json:"language,omitempty"`
}

// flexID accepts segment ids sent either as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

type segmentList struct {
	RecentSegments []json.RawMessage `json:"recent_segments"`
}

// liveSegments tolerates last_segments arriving either as a single object or
// as a list; in the list form the most recent entry wins.
type liveSegments struct {
	segment *LiveSegment
}

func (l *liveSegments) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		return nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []LiveSegment
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		if len(list) > 0 {
			last := list[len(list)-1]
			l.segment = &last
		}
		return nil
	}
	var seg LiveSegment
	if err := json.Unmarshal(data, &seg); err != nil {
		return err
	}
	l.segment = &seg
	return nil
}

type wireMessage struct {
	UID                string            `json:"uid"`
	Status             string            `json:"status"`
	Message            json.RawMessage   `json:"message"`
	Backend            string            `json:"backend"`
	Language           *string           `json:"language"`
	LanguageProb       float64           `json:"language_prob"`
	Summary            *string           `json:"summary"`
	Transcript         *segmentList      `json:"transcript"`
	Multilingual       *segmentList      `json:"multilingual_transcript"`
	LastSegments       *liveSegments     `json:"last_segments"`
	AvailableLanguages *[]string         `json:"available_languages"`
}

// DecodeServerEvent classifies one inbound text message. It never returns
// nil: payloads that match no recognized shape come back as MalformedEvent.
func DecodeServerEvent(data []byte) ServerEvent {
	var msg wireMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return MalformedEvent{Reason: "invalid json: " + err.Error()}
	}

	if msg.Status != "" {
		ev := StatusEvent{UID: msg.UID, Status: msg.Status}
		ev.Message, ev.WaitMinutes = decodeStatusMessage(msg.Status, msg.Message)
		return ev
	}

	if keyword, ok := messageKeyword(msg.Message); ok {
		switch keyword {
		case msgServerReady:
			return ReadyEvent{UID: msg.UID, Backend: msg.Backend}
		case msgDisconnect:
			return DisconnectEvent{UID: msg.UID}
		}
	}

	if msg.Language != nil {
		return LanguageEvent{UID: msg.UID, Language: *msg.Language, Probability: msg.LanguageProb}
	}

	if msg.Summary != nil {
		return SummaryEvent{UID: msg.UID, Summary: *msg.Summary}
	}

	if msg.Transcript != nil || msg.Multilingual != nil || msg.LastSegments != nil || msg.AvailableLanguages != nil {
		ev := TranscriptEvent{UID: msg.UID}
		if msg.Transcript != nil {
			ev.Final = decodeFinalSegments(msg.Transcript.RecentSegments)
		}
		if msg.Multilingual != nil {
			ev.Translations = decodeTranslationSegments(msg.Multilingual.RecentSegments)
		}
		if msg.LastSegments != nil {
			ev.Live = msg.LastSegments.segment
		}
		if msg.AvailableLanguages != nil {
			ev.AvailableLanguages = *msg.AvailableLanguages
			ev.HasLanguages = true
		}
		return ev
	}

	return MalformedEvent{Reason: "unrecognized message shape"}
}

// decodeStatusMessage interprets the dual-typed "message" field: WAIT notices
// carry a numeric wait estimate in minutes, ERROR/WARNING carry text.
func decodeStatusMessage(status string, raw json.RawMessage) (string, float64) {
	if len(raw) == 0 {
		return "", 0
	}
	if status == statusWait {
		var minutes float64
		if err := json.Unmarshal(raw, &minutes); err == nil {
			return "server at capacity, estimated wait " + strconv.FormatFloat(minutes, 'f', -1, 64) + " minutes", minutes
		}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text, 0
	}
	return "", 0
}

func messageKeyword(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return "", false
	}
	return text, true
}

// decodeFinalSegments decodes entries individually so a single malformed
// entry does not abandon the rest of the batch.
func decodeFinalSegments(raw []json.RawMessage) []FinalSegment {
	out := make([]FinalSegment, 0, len(raw))
	for _, entry := range raw {
		var seg FinalSegment
		if err := json.Unmarshal(entry, &seg); err != nil {
			continue
		}
		out = append(out, seg)
	}
	return out
}

func decodeTranslationSegments(raw []json.RawMessage) []TranslationSegment {
	out := make([]TranslationSegment, 0, len(raw))
	for _, entry := range raw {
		var seg TranslationSegment
		if err := json.Unmarshal(entry, &seg); err != nil {
			continue
		}
		out = append(out, seg)
	}
	return out
}
