package session

import (
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/TienVM2004/mai-live/internal/types"
)

// liveIDPrefix is the synthetic id namespace for the in-progress segment.
const liveIDPrefix = "in-progress-"

// LanguageDetector tags finalized text the server left untagged.
type LanguageDetector interface {
	Detect(text string) (code string, ok bool)
}

// Engine merges the asynchronously arriving transcript and translation
// streams into a consistent keyed store. Finalized text and translations are
// deduplicated in independent id namespaces and matched by timestamp, so
// either side may arrive first; the single in-progress segment is replaced
// wholesale on every update.
type Engine struct {
	mu sync.Mutex

	seenFinal map[string]struct{}
	finalLog  []FinalSegment

	seenTranslation map[string]struct{}
	translationLog  []TranslationSegment

	live   *LiveSegment
	liveID string

	store map[string]types.Segment

	// Global advancing identifier: the highest numeric finalized-segment id
	// observed. Non-numeric ids unconditionally replace the pointer; see the
	// note on advance.
	maxID     string
	maxIDNum  int64
	hasMaxNum bool

	languages []string
	summary   string

	detector LanguageDetector
}

// NewEngine creates an empty reconciliation engine.
func NewEngine() *Engine {
	e := &Engine{}
	e.reset()
	return e
}

// SetDetector installs a local language detector used as fallback for
// finalized segments without a server-assigned language tag.
func (e *Engine) SetDetector(d LanguageDetector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.detector = d
}

// Reset clears all per-session state so a new connection starts from a clean
// slate.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reset()
}

func (e *Engine) reset() {
	e.seenFinal = make(map[string]struct{})
	e.finalLog = nil
	e.seenTranslation = make(map[string]struct{})
	e.translationLog = nil
	e.live = nil
	e.liveID = ""
	e.store = make(map[string]types.Segment)
	e.maxID = ""
	e.maxIDNum = 0
	e.hasMaxNum = false
	e.languages = nil
	e.summary = ""
}

// HandleTranscript folds one transcript event into the engine. Each event
// category is processed independently; a malformed entry is dropped and
// logged without abandoning the rest of the event.
func (e *Engine) HandleTranscript(ev TranscriptEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, seg := range ev.Final {
		e.ingestFinal(seg)
	}
	for _, seg := range ev.Translations {
		e.ingestTranslation(seg)
	}
	if ev.Live != nil {
		live := *ev.Live
		e.live = &live
	}
	if ev.HasLanguages {
		e.languages = append([]string(nil), ev.AvailableLanguages...)
	}

	e.recompute()
}

// ingestFinal records an unseen finalized segment in the append-only log.
// Already-seen ids are never reprocessed or mutated.
func (e *Engine) ingestFinal(seg FinalSegment) {
	id := string(seg.ID)
	if id == "" {
		slog.Warn("dropping finalized segment without id", "timestamp", seg.Timestamp)
		return
	}
	if _, ok := e.seenFinal[id]; ok {
		return
	}
	e.seenFinal[id] = struct{}{}

	if seg.Language == "" && e.detector != nil {
		if code, ok := e.detector.Detect(seg.Text); ok {
			seg.Language = code
		}
	}

	e.finalLog = append(e.finalLog, seg)
	e.advance(id)
}

// ingestTranslation records an unseen translation entry. Translations carry
// their own id namespace and may arrive before or after their original text.
func (e *Engine) ingestTranslation(seg TranslationSegment) {
	id := string(seg.ID)
	if id == "" {
		slog.Warn("dropping translation segment without id", "timestamp", seg.Timestamp)
		return
	}
	if _, ok := e.seenTranslation[id]; ok {
		return
	}
	e.seenTranslation[id] = struct{}{}
	e.translationLog = append(e.translationLog, seg)
}

// advance moves the global advancing identifier. Numeric ids only move it
// forward; ids that do not parse as numeric are treated as always-newer and
// replace the pointer outright, dropping the numeric high-water mark so the
// next numeric id takes over regardless of magnitude. Defined-but-
// questionable policy, kept as the server contract specifies.
func (e *Engine) advance(id string) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		e.maxID = id
		e.hasMaxNum = false
		return
	}
	if !e.hasMaxNum || n > e.maxIDNum {
		e.maxIDNum = n
		e.hasMaxNum = true
		e.maxID = id
	}
}

// recompute rebuilds the keyed store from the logs. Finalized segments are
// written completed with their exact-timestamp translation match; the live
// segment, when it carries text, is written under its synthetic id.
func (e *Engine) recompute() {
	for _, fin := range e.finalLog {
		seg := types.Segment{
			ID:        string(fin.ID),
			Text:      fin.Text,
			Timestamp: fin.Timestamp,
			Speaker:   fin.Speaker,
			Language:  fin.Language,
			Completed: true,
		}
		if match, ok := e.matchTranslation(fin.Timestamp); ok {
			seg.Translations = make(map[string]string, len(match.Translations))
			for lang, text := range match.Translations {
				seg.Translations[lang] = text
			}
		}
		e.mergeIntoStore(seg)
	}

	e.refreshLive()
}

// matchTranslation finds the first translation-log entry whose timestamp is
// exactly equal. No tolerance window: the server emits bit-identical
// timestamps for a segment and its translations.
func (e *Engine) matchTranslation(timestamp float64) (TranslationSegment, bool) {
	for _, tr := range e.translationLog {
		if tr.Timestamp == timestamp {
			return tr, true
		}
	}
	return TranslationSegment{}, false
}

// mergeIntoStore writes a segment under its id, unioning translation maps
// with any existing entry. Incoming values win per language key, but known
// translations are never dropped by an update that lacks them.
func (e *Engine) mergeIntoStore(seg types.Segment) {
	existing, ok := e.store[seg.ID]
	if ok && len(existing.Translations) > 0 {
		merged := make(map[string]string, len(existing.Translations)+len(seg.Translations))
		for lang, text := range existing.Translations {
			merged[lang] = text
		}
		for lang, text := range seg.Translations {
			merged[lang] = text
		}
		seg.Translations = merged
	}
	e.store[seg.ID] = seg
}

// refreshLive enforces the single-live-segment invariant: at most one
// in-progress entry, reflecting only the latest update.
func (e *Engine) refreshLive() {
	newID := ""
	if e.live != nil && e.live.Text != "" {
		newID = liveIDPrefix + strconv.FormatFloat(e.live.Timestamp, 'f', -1, 64)
	}

	if e.liveID != "" && e.liveID != newID {
		delete(e.store, e.liveID)
	}
	e.liveID = newID
	if newID == "" {
		return
	}

	e.store[newID] = types.Segment{
		ID:        newID,
		Text:      e.live.Text,
		Timestamp: e.live.Timestamp,
		Speaker:   e.live.Speaker,
		Language:  e.live.Language,
		Completed: false,
	}
}

// SetSummary replaces the latest meeting summary.
func (e *Engine) SetSummary(summary string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.summary = summary
}

// Summary returns the latest meeting summary.
func (e *Engine) Summary() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// Languages returns the most recently announced language set.
func (e *Engine) Languages() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.languages...)
}

// MaxSegmentID returns the global advancing identifier, "" before the first
// finalized segment.
func (e *Engine) MaxSegmentID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxID
}

// Len returns the number of store entries, the live segment included.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.store)
}

// Snapshot returns the derived ordered transcript: deep copies of all store
// entries sorted by timestamp, ids breaking ties for determinism.
func (e *Engine) Snapshot() []types.Segment {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]types.Segment, 0, len(e.store))
	for _, seg := range e.store {
		out = append(out, seg.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp < out[j].Timestamp
		}
		return out[i].ID < out[j].ID
	})
	return out
}
