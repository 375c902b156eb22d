// Package app provides the core application service for Wails bindings.
package app

// Event names for frontend communication.
const (
	EventCaptionStatus    = "caption-status"
	EventCaptionSegments  = "caption-segments"
	EventCaptionLanguage  = "caption-language-detected"
	EventCaptionLanguages = "caption-languages"
	EventCaptionSummary   = "caption-summary"
)
