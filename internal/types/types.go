// Package types provides shared type definitions for the application.
package types

// ConnectionStatus describes the transport channel state.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
	StatusWaiting      ConnectionStatus = "waiting"
)

// StatusUpdate is emitted on every connection state transition.
type StatusUpdate struct {
	Status  ConnectionStatus `json:"status"`
	Message string           `json:"message,omitempty"`
	// WaitMinutes is the server-supplied wait estimate while Status is
	// "waiting". Informational only.
	WaitMinutes float64 `json:"waitMinutes,omitempty"`
	// Terminal is set when the automatic retry budget is exhausted and a
	// manual reconnect is required.
	Terminal bool `json:"terminal,omitempty"`
}

// Segment is one unit of transcribed speech.
type Segment struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"` // seconds since session start
	Speaker   string  `json:"speaker"`
	Completed bool    `json:"completed"`
	Language  string  `json:"language,omitempty"`
	// Translations maps a language code to the translated text.
	Translations map[string]string `json:"translations,omitempty"`
}

// Clone returns a deep copy of the segment.
func (s Segment) Clone() Segment {
	out := s
	if s.Translations != nil {
		out.Translations = make(map[string]string, len(s.Translations))
		for k, v := range s.Translations {
			out.Translations[k] = v
		}
	}
	return out
}

// Thread holds one speaker's segments in timestamp order.
type Thread struct {
	Speaker  string    `json:"speaker"`
	Segments []Segment `json:"segments"`
}

// LanguageDetection is the server's guess at the spoken language.
type LanguageDetection struct {
	Language    string  `json:"language"`
	Probability float64 `json:"probability"`
}

// SessionStatus summarizes a running caption session for the UI.
type SessionStatus struct {
	Active       bool             `json:"active"`
	Connection   ConnectionStatus `json:"connection"`
	SegmentCount int              `json:"segmentCount"`
	Duration     int64            `json:"duration"` // seconds
	Server       string           `json:"server"`
	Model        string           `json:"model"`
}
