package handlers

import (
	"fmt"

	"github.com/go-telegram/bot/models"

	"github.com/mbvolkov/chatsage/internal/database"
)

// mainMenuKeyboard builds the top-level chat-category menu.
func mainMenuKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "👤 Private chats", CallbackData: "list_private"}},
			{{Text: "👥 Groups", CallbackData: "list_groups"}},
			{{Text: "📢 Channels", CallbackData: "list_channels"}},
			{{Text: "⚙️ Settings", CallbackData: "settings"}},
		},
	}
}

// chatActionsKeyboard builds the per-chat action menu with all analysis modes.
func chatActionsKeyboard(chatID int64) *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "📊 Resume", CallbackData: fmt.Sprintf("analyze_summary_%d", chatID)}},
			{{Text: "💡 Insights", CallbackData: fmt.Sprintf("analyze_insights_%d", chatID)}},
			{{Text: "📝 Topics", CallbackData: fmt.Sprintf("analyze_topics_%d", chatID)}},
			{{Text: "😊 Sentiment", CallbackData: fmt.Sprintf("analyze_sentiment_%d", chatID)}},
			{{Text: "❓ Own question", CallbackData: fmt.Sprintf("analyze_custom_%d", chatID)}},
			{{Text: "⚙️ Chat settings", CallbackData: fmt.Sprintf("chat_settings_%d", chatID)}},
			{{Text: "◀️ Back", CallbackData: "back_to_menu"}},
		},
	}
}

// chatSettingsKeyboard builds the per-chat settings menu. The toggle button
// label reflects the currently persisted transcription flag.
func chatSettingsKeyboard(chatID int64, transcriptionEnabled bool, onLabel, offLabel string) *models.InlineKeyboardMarkup {
	toggleLabel := offLabel
	if transcriptionEnabled {
		toggleLabel = onLabel
	}
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: toggleLabel, CallbackData: fmt.Sprintf("toggle_transcription_%d", chatID)}},
			{{Text: "◀️ Back", CallbackData: fmt.Sprintf("chat_actions_%d", chatID)}},
		},
	}
}

// backKeyboard builds a single back-to-menu button.
func backKeyboard() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{{Text: "◀️ Back", CallbackData: "back_to_menu"}},
		},
	}
}

// chatListKeyboard builds one button per stored chat, plus a back button.
func chatListKeyboard(chats []database.Chat) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(chats)+1)
	for _, c := range chats {
		title := c.Title.String
		if title == "" {
			title = fmt.Sprintf("Chat %d", c.ChatID)
		}
		rows = append(rows, []models.InlineKeyboardButton{
			{Text: title, CallbackData: fmt.Sprintf("chat_actions_%d", c.ChatID)},
		})
	}
	rows = append(rows, []models.InlineKeyboardButton{{Text: "◀️ Back", CallbackData: "back_to_menu"}})
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
