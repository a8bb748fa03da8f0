package handlers

import (
	"testing"

	"github.com/mbvolkov/chatsage/internal/database"
	"github.com/mbvolkov/chatsage/internal/gemini"
)

func TestParseCallbackAction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want callbackAction
	}{
		{"back to menu", "back_to_menu", callbackAction{Kind: actionMainMenu}},
		{"list private", "list_private", callbackAction{Kind: actionListChats, ChatType: database.ChatTypePrivate}},
		{"list groups", "list_groups", callbackAction{Kind: actionListChats, ChatType: database.ChatTypeGroup}},
		{"list channels", "list_channels", callbackAction{Kind: actionListChats, ChatType: database.ChatTypeChannel}},
		{"global settings", "settings", callbackAction{Kind: actionGlobalSettings}},
		{"chat actions", "chat_actions_12345", callbackAction{Kind: actionChatActions, ChatID: 12345}},
		{"chat settings", "chat_settings_-100987", callbackAction{Kind: actionChatSettings, ChatID: -100987}},
		{"toggle transcription", "toggle_transcription_77", callbackAction{Kind: actionToggleTranscription, ChatID: 77}},
		{"analyze summary", "analyze_summary_42", callbackAction{Kind: actionAnalyze, ChatID: 42, Mode: gemini.ModeSummary}},
		{"analyze insights", "analyze_insights_42", callbackAction{Kind: actionAnalyze, ChatID: 42, Mode: gemini.ModeInsights}},
		{"analyze topics", "analyze_topics_42", callbackAction{Kind: actionAnalyze, ChatID: 42, Mode: gemini.ModeTopics}},
		{"analyze sentiment", "analyze_sentiment_42", callbackAction{Kind: actionAnalyze, ChatID: 42, Mode: gemini.ModeSentiment}},
		{"analyze custom", "analyze_custom_42", callbackAction{Kind: actionAnalyze, ChatID: 42, Mode: gemini.ModeCustom}},
		{"analyze negative chat id", "analyze_summary_-4242", callbackAction{Kind: actionAnalyze, ChatID: -4242, Mode: gemini.ModeSummary}},

		{"empty data", "", callbackAction{Kind: actionIgnore}},
		{"unknown literal", "bogus", callbackAction{Kind: actionIgnore}},
		{"unknown mode", "analyze_magic_42", callbackAction{Kind: actionIgnore}},
		{"missing chat id", "analyze_summary_", callbackAction{Kind: actionIgnore}},
		{"non-numeric chat id", "chat_actions_abc", callbackAction{Kind: actionIgnore}},
		{"zero chat id", "chat_settings_0", callbackAction{Kind: actionIgnore}},
		{"bare analyze prefix", "analyze_", callbackAction{Kind: actionIgnore}},
		{"prefix without id", "toggle_transcription_", callbackAction{Kind: actionIgnore}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := parseCallbackAction(tt.data)
			if got != tt.want {
				t.Errorf("parseCallbackAction(%q) = %+v, want %+v", tt.data, got, tt.want)
			}
		})
	}
}
