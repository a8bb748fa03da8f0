package gemini

import (
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/mbvolkov/chatsage/internal/database"
)

func TestFormatMessageForAI(t *testing.T) {
	t.Parallel()

	date := time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		msg  database.Message
		want string
	}{
		{
			name: "text message",
			msg: database.Message{
				UserID:      5,
				Text:        sql.NullString{String: "hello", Valid: true},
				MessageDate: date,
			},
			want: "[2025-06-01 10:30:00] UID 5: hello",
		},
		{
			name: "voice with transcript",
			msg: database.Message{
				UserID:        5,
				IsVoice:       true,
				Transcription: sql.NullString{String: "spoken words", Valid: true},
				MessageDate:   date,
			},
			want: "[2025-06-01 10:30:00] UID 5: spoken words",
		},
		{
			name: "voice without transcript",
			msg: database.Message{
				UserID:      5,
				IsVoice:     true,
				MessageDate: date,
			},
			want: "[2025-06-01 10:30:00] UID 5: [voice message without transcript]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := formatMessageForAI(&tt.msg); got != tt.want {
				t.Errorf("formatMessageForAI = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderHistoryPreservesOrder(t *testing.T) {
	t.Parallel()

	date := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	messages := []database.Message{
		{UserID: 1, Text: sql.NullString{String: "newest", Valid: true}, MessageDate: date.Add(time.Minute)},
		{UserID: 2, Text: sql.NullString{String: "oldest", Valid: true}, MessageDate: date},
	}

	got := renderHistory(messages)
	if !strings.HasPrefix(got, "Chat history (most recent first):\n") {
		t.Errorf("history missing header: %q", got)
	}
	newestIdx := strings.Index(got, "newest")
	oldestIdx := strings.Index(got, "oldest")
	if newestIdx < 0 || oldestIdx < 0 || newestIdx > oldestIdx {
		t.Errorf("history order not preserved: %q", got)
	}
}

func TestAnalysisInstructionsCoverAllModes(t *testing.T) {
	t.Parallel()

	for _, mode := range []string{ModeSummary, ModeInsights, ModeTopics, ModeSentiment} {
		if analysisInstructions[mode] == "" {
			t.Errorf("mode %q has no analysis instruction", mode)
		}
	}
	if _, ok := analysisInstructions[ModeCustom]; ok {
		t.Error("custom mode should use CustomAnalysisInstruction, not the fixed map")
	}
}
