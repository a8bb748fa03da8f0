package handlers

import (
	"strconv"
	"strings"

	"github.com/mbvolkov/chatsage/internal/database"
	"github.com/mbvolkov/chatsage/internal/gemini"
)

// actionKind enumerates everything a callback button can ask for. The raw
// callback data string is parsed exactly once, at the router boundary; any
// string that doesn't parse maps to actionIgnore.
type actionKind int

const (
	actionIgnore actionKind = iota
	actionMainMenu
	actionListChats
	actionGlobalSettings
	actionChatActions
	actionChatSettings
	actionToggleTranscription
	actionAnalyze
)

// callbackAction is the parsed form of one callback-data string.
type callbackAction struct {
	Kind     actionKind
	ChatID   int64  // set for chat-scoped actions
	Mode     string // set for actionAnalyze
	ChatType string // set for actionListChats
}

// analysisModeValid reports whether mode is one of the known analysis modes.
func analysisModeValid(mode string) bool {
	switch mode {
	case gemini.ModeSummary, gemini.ModeInsights, gemini.ModeTopics, gemini.ModeSentiment, gemini.ModeCustom:
		return true
	}
	return false
}

// parseCallbackAction converts raw callback data into a closed action variant.
// Unknown or malformed data yields actionIgnore, which handlers treat as a
// no-op rather than an error.
func parseCallbackAction(data string) callbackAction {
	switch data {
	case "back_to_menu":
		return callbackAction{Kind: actionMainMenu}
	case "list_private":
		return callbackAction{Kind: actionListChats, ChatType: database.ChatTypePrivate}
	case "list_groups":
		return callbackAction{Kind: actionListChats, ChatType: database.ChatTypeGroup}
	case "list_channels":
		return callbackAction{Kind: actionListChats, ChatType: database.ChatTypeChannel}
	case "settings":
		return callbackAction{Kind: actionGlobalSettings}
	}

	if rest, ok := strings.CutPrefix(data, "analyze_"); ok {
		mode, idStr, ok := strings.Cut(rest, "_")
		if !ok || !analysisModeValid(mode) {
			return callbackAction{Kind: actionIgnore}
		}
		chatID, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil || chatID == 0 {
			return callbackAction{Kind: actionIgnore}
		}
		return callbackAction{Kind: actionAnalyze, ChatID: chatID, Mode: mode}
	}

	for prefix, kind := range map[string]actionKind{
		"chat_actions_":         actionChatActions,
		"chat_settings_":        actionChatSettings,
		"toggle_transcription_": actionToggleTranscription,
	} {
		if idStr, ok := strings.CutPrefix(data, prefix); ok {
			chatID, err := strconv.ParseInt(idStr, 10, 64)
			if err != nil || chatID == 0 {
				return callbackAction{Kind: actionIgnore}
			}
			return callbackAction{Kind: kind, ChatID: chatID}
		}
	}

	return callbackAction{Kind: actionIgnore}
}
