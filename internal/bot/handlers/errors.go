package handlers

import (
	"errors"
	"strings"
)

// Sentinel errors surfaced by the orchestration layer. Handlers convert them
// to a single user-visible notice at the event boundary; none of them may
// crash the update loop.
var (
	// ErrNoHistory means an analysis was requested for a chat with no stored messages.
	ErrNoHistory = errors.New("no messages to analyze")

	// ErrAnalysisService wraps a failure of the text-analysis call.
	ErrAnalysisService = errors.New("analysis service failed")

	// ErrTranscription wraps a failure of the voice download or speech-to-text call.
	ErrTranscription = errors.New("transcription failed")
)

// causeText extracts the short failure description carried inside a wrapped
// sentinel error, for interpolation into user-facing notices.
func causeText(err, sentinel error) string {
	msg := err.Error()
	if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok && rest != "" {
		return rest
	}
	return msg
}
