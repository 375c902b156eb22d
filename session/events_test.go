package session

import (
	"testing"
)

func TestDecodeServerEvent_ControlMessages(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, ev ServerEvent)
	}{
		{
			name:    "server ready",
			payload: `{"uid":"abc","message":"SERVER_READY","backend":"faster_whisper"}`,
			check: func(t *testing.T, ev ServerEvent) {
				ready, ok := ev.(ReadyEvent)
				if !ok {
					t.Fatalf("got %T, want ReadyEvent", ev)
				}
				if ready.UID != "abc" || ready.Backend != "faster_whisper" {
					t.Errorf("ReadyEvent = %+v", ready)
				}
			},
		},
		{
			name:    "disconnect",
			payload: `{"uid":"abc","message":"DISCONNECT"}`,
			check: func(t *testing.T, ev ServerEvent) {
				if _, ok := ev.(DisconnectEvent); !ok {
					t.Fatalf("got %T, want DisconnectEvent", ev)
				}
			},
		},
		{
			name:    "wait with numeric message",
			payload: `{"uid":"abc","status":"WAIT","message":2.5}`,
			check: func(t *testing.T, ev ServerEvent) {
				st, ok := ev.(StatusEvent)
				if !ok {
					t.Fatalf("got %T, want StatusEvent", ev)
				}
				if st.Status != "WAIT" || st.WaitMinutes != 2.5 {
					t.Errorf("StatusEvent = %+v", st)
				}
			},
		},
		{
			name:    "error with text message",
			payload: `{"uid":"abc","status":"ERROR","message":"model unavailable"}`,
			check: func(t *testing.T, ev ServerEvent) {
				st, ok := ev.(StatusEvent)
				if !ok {
					t.Fatalf("got %T, want StatusEvent", ev)
				}
				if st.Message != "model unavailable" {
					t.Errorf("Message = %q", st.Message)
				}
			},
		},
		{
			name:    "language detection",
			payload: `{"uid":"abc","language":"es","language_prob":0.93}`,
			check: func(t *testing.T, ev ServerEvent) {
				lang, ok := ev.(LanguageEvent)
				if !ok {
					t.Fatalf("got %T, want LanguageEvent", ev)
				}
				if lang.Language != "es" || lang.Probability != 0.93 {
					t.Errorf("LanguageEvent = %+v", lang)
				}
			},
		},
		{
			name:    "summary",
			payload: `{"uid":"abc","summary":"we discussed things"}`,
			check: func(t *testing.T, ev ServerEvent) {
				sum, ok := ev.(SummaryEvent)
				if !ok {
					t.Fatalf("got %T, want SummaryEvent", ev)
				}
				if sum.Summary != "we discussed things" {
					t.Errorf("Summary = %q", sum.Summary)
				}
			},
		},
		{
			name:    "invalid json",
			payload: `{"uid":`,
			check: func(t *testing.T, ev ServerEvent) {
				if _, ok := ev.(MalformedEvent); !ok {
					t.Fatalf("got %T, want MalformedEvent", ev)
				}
			},
		},
		{
			name:    "unrecognized shape",
			payload: `{"uid":"abc","something":"else"}`,
			check: func(t *testing.T, ev ServerEvent) {
				if _, ok := ev.(MalformedEvent); !ok {
					t.Fatalf("got %T, want MalformedEvent", ev)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, DecodeServerEvent([]byte(tt.payload)))
		})
	}
}

func TestDecodeServerEvent_Transcript(t *testing.T) {
	payload := `{
		"uid": "abc",
		"transcript": {"recent_segments": [
			{"id": 7, "timestamp": 1.5, "data": "hello", "speaker": "Alice"},
			{"id": "8", "timestamp": 2.5, "data": "world"}
		]},
		"multilingual_transcript": {"recent_segments": [
			{"id": "m1", "timestamp": 1.5, "translations": {"es": "hola"}}
		]},
		"last_segments": {"timestamp": 3.0, "text": "typing"},
		"available_languages": ["en", "es"]
	}`

	ev, ok := DecodeServerEvent([]byte(payload)).(TranscriptEvent)
	if !ok {
		t.Fatal("want TranscriptEvent")
	}

	if len(ev.Final) != 2 {
		t.Fatalf("Final len = %d", len(ev.Final))
	}
	// Numeric and string ids normalize to the same representation.
	if string(ev.Final[0].ID) != "7" || string(ev.Final[1].ID) != "8" {
		t.Errorf("ids = %q, %q", ev.Final[0].ID, ev.Final[1].ID)
	}
	if ev.Final[0].Speaker != "Alice" {
		t.Errorf("speaker = %q", ev.Final[0].Speaker)
	}

	if len(ev.Translations) != 1 || ev.Translations[0].Translations["es"] != "hola" {
		t.Errorf("translations = %+v", ev.Translations)
	}

	if ev.Live == nil || ev.Live.Text != "typing" {
		t.Errorf("live = %+v", ev.Live)
	}

	if !ev.HasLanguages || len(ev.AvailableLanguages) != 2 {
		t.Errorf("languages = %v (has=%v)", ev.AvailableLanguages, ev.HasLanguages)
	}
}

func TestDecodeServerEvent_LiveSegmentList(t *testing.T) {
	payload := `{"uid":"abc","last_segments":[
		{"timestamp": 1.0, "text": "old"},
		{"timestamp": 2.0, "text": "newest"}
	]}`

	ev, ok := DecodeServerEvent([]byte(payload)).(TranscriptEvent)
	if !ok {
		t.Fatal("want TranscriptEvent")
	}
	if ev.Live == nil || ev.Live.Text != "newest" {
		t.Errorf("live = %+v, want the last list entry", ev.Live)
	}
}

func TestDecodeServerEvent_MalformedEntrySkipped(t *testing.T) {
	payload := `{"uid":"abc","transcript":{"recent_segments":[
		{"id": "1", "timestamp": "not-a-number", "data": "bad"},
		{"id": "2", "timestamp": 2.0, "data": "good"}
	]}}`

	ev, ok := DecodeServerEvent([]byte(payload)).(TranscriptEvent)
	if !ok {
		t.Fatal("want TranscriptEvent")
	}
	if len(ev.Final) != 1 || string(ev.Final[0].ID) != "2" {
		t.Errorf("Final = %+v, want only the well-formed entry", ev.Final)
	}
}
