package handlers

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mbvolkov/chatsage/internal/database"
	"github.com/mbvolkov/chatsage/internal/gemini"
)

// handleCallback dispatches one parsed button press. Every branch answers
// the callback query exactly once; long-running analysis answers up front so
// the client spinner stops while the work proceeds.
func (h routerHandler) handleCallback(ctx context.Context, b *bot.Bot, cb *models.CallbackQuery) {
	deps := h.deps
	log := deps.Logger.With("handler", "callback", "user_id", cb.From.ID)

	msg := cb.Message.Message
	if msg == nil {
		log.DebugContext(ctx, "Callback on inaccessible message, ignoring", "data", cb.Data)
		h.answerCallback(ctx, b, cb.ID, "", false)
		return
	}
	chatID := msg.Chat.ID

	action := parseCallbackAction(cb.Data)
	log.DebugContext(ctx, "Dispatching callback", "data", cb.Data, "chat_id", chatID)

	switch action.Kind {
	case actionMainMenu:
		deps.Pending.Clear(cb.From.ID)
		h.answerCallback(ctx, b, cb.ID, "", false)
		h.editMenu(ctx, b, chatID, msg.ID, deps.Config.Messages.MainMenu, mainMenuKeyboard())

	case actionListChats:
		h.answerCallback(ctx, b, cb.ID, "", false)
		h.showChatList(ctx, b, chatID, msg.ID, action.ChatType)

	case actionGlobalSettings:
		h.answerCallback(ctx, b, cb.ID, "", false)
		h.editMenu(ctx, b, chatID, msg.ID, deps.Config.Messages.GlobalSettings, backKeyboard())

	case actionChatActions:
		h.showChatActions(ctx, b, cb, chatID, msg.ID, action.ChatID)

	case actionChatSettings:
		h.showChatSettings(ctx, b, cb, chatID, msg.ID, action.ChatID)

	case actionToggleTranscription:
		h.toggleTranscription(ctx, b, cb, chatID, msg.ID, action.ChatID)

	case actionAnalyze:
		if action.Mode == gemini.ModeCustom {
			deps.Pending.Set(cb.From.ID, action.ChatID)
			h.answerCallback(ctx, b, cb.ID, "", false)
			h.editMenu(ctx, b, chatID, msg.ID, deps.Config.Messages.AskCustomQuery, backKeyboard())
			return
		}
		h.answerCallback(ctx, b, cb.ID, "", false)
		h.runMenuAnalysis(ctx, b, cb, chatID, msg.ID, action)

	default:
		log.DebugContext(ctx, "Ignoring unknown callback data", "data", cb.Data)
		h.answerCallback(ctx, b, cb.ID, "", false)
	}
}

func (h routerHandler) showChatList(ctx context.Context, b *bot.Bot, chatID int64, messageID int, chatType string) {
	deps := h.deps

	chats, err := deps.Store.GetChatsByType(ctx, chatType, deps.Config.Database.ChatListLimit)
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to list chats", "chat_type", chatType, "error", err)
		h.editMenu(ctx, b, chatID, messageID, deps.Config.Messages.GeneralError, backKeyboard())
		return
	}
	if len(chats) == 0 {
		h.editMenu(ctx, b, chatID, messageID, deps.Config.Messages.EmptyChatList, backKeyboard())
		return
	}
	h.editMenu(ctx, b, chatID, messageID, deps.Config.Messages.ChooseChat, chatListKeyboard(chats))
}

func (h routerHandler) showChatActions(ctx context.Context, b *bot.Bot, cb *models.CallbackQuery, chatID int64, messageID int, targetChatID int64) {
	deps := h.deps

	chat, err := deps.Store.GetChat(ctx, targetChatID)
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to load chat", "target_chat_id", targetChatID, "error", err)
		h.answerCallback(ctx, b, cb.ID, deps.Config.Messages.GeneralError, true)
		return
	}
	if chat == nil {
		h.answerCallback(ctx, b, cb.ID, deps.Config.Messages.ChatNotFound, true)
		return
	}

	h.answerCallback(ctx, b, cb.ID, "", false)
	text := fmt.Sprintf(deps.Config.Messages.ChatActionsFmt, chatLabel(chat))
	h.editMenu(ctx, b, chatID, messageID, text, chatActionsKeyboard(targetChatID))
}

func (h routerHandler) showChatSettings(ctx context.Context, b *bot.Bot, cb *models.CallbackQuery, chatID int64, messageID int, targetChatID int64) {
	deps := h.deps

	chat, err := deps.Store.GetChat(ctx, targetChatID)
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to load chat", "target_chat_id", targetChatID, "error", err)
		h.answerCallback(ctx, b, cb.ID, deps.Config.Messages.GeneralError, true)
		return
	}
	if chat == nil {
		h.answerCallback(ctx, b, cb.ID, deps.Config.Messages.ChatNotFound, true)
		return
	}

	h.answerCallback(ctx, b, cb.ID, "", false)
	text := fmt.Sprintf(deps.Config.Messages.ChatSettingsFmt, chatLabel(chat))
	markup := chatSettingsKeyboard(targetChatID, chat.TranscriptionEnabled,
		deps.Config.Messages.TranscriptionOn, deps.Config.Messages.TranscriptionOff)
	h.editMenu(ctx, b, chatID, messageID, text, markup)
}

// toggleTranscription flips the persisted flag and refreshes the keyboard so
// the button label always shows the stored state.
func (h routerHandler) toggleTranscription(ctx context.Context, b *bot.Bot, cb *models.CallbackQuery, chatID int64, messageID int, targetChatID int64) {
	deps := h.deps
	log := deps.Logger.With("handler", "callback", "target_chat_id", targetChatID)

	chat, err := deps.Store.GetChat(ctx, targetChatID)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load chat for toggle", "error", err)
		h.answerCallback(ctx, b, cb.ID, deps.Config.Messages.GeneralError, true)
		return
	}
	if chat == nil {
		h.answerCallback(ctx, b, cb.ID, deps.Config.Messages.ChatNotFound, true)
		return
	}

	enabled := !chat.TranscriptionEnabled
	if err := deps.Store.SetTranscriptionEnabled(ctx, targetChatID, enabled); err != nil {
		log.ErrorContext(ctx, "Failed to persist transcription flag", "error", err)
		h.answerCallback(ctx, b, cb.ID, deps.Config.Messages.GeneralError, true)
		return
	}

	answer := deps.Config.Messages.TranscriptionOff
	if enabled {
		answer = deps.Config.Messages.TranscriptionOn
	}
	h.answerCallback(ctx, b, cb.ID, answer, false)

	markup := chatSettingsKeyboard(targetChatID, enabled,
		deps.Config.Messages.TranscriptionOn, deps.Config.Messages.TranscriptionOff)
	_, err = b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: markup,
	})
	if err != nil {
		log.WarnContext(ctx, "Failed to refresh settings keyboard", "error", err)
	}
}

// runMenuAnalysis drives a fixed-mode analysis triggered from the action
// menu: the menu message becomes the progress notice, then the result, and a
// fresh action menu follows so the user can chain requests.
func (h routerHandler) runMenuAnalysis(ctx context.Context, b *bot.Bot, cb *models.CallbackQuery, chatID int64, messageID int, action callbackAction) {
	deps := h.deps
	log := deps.Logger.With("handler", "callback_analysis", "target_chat_id", action.ChatID, "mode", action.Mode)

	onAnalyzing := func() {
		h.editMenu(ctx, b, chatID, messageID, deps.Config.Messages.Analyzing, nil)
	}

	req := analysisRequest{ChatID: action.ChatID, UserID: cb.From.ID, Mode: action.Mode}
	result, err := runAnalysis(ctx, deps, req, onAnalyzing)

	switch {
	case errors.Is(err, ErrNoHistory):
		h.editMenu(ctx, b, chatID, messageID, deps.Config.Messages.NoHistory, backKeyboard())
	case err != nil:
		log.ErrorContext(ctx, "Menu analysis failed", "error", err)
		text := deps.Config.Messages.GeneralError
		if errors.Is(err, ErrAnalysisService) {
			text = fmt.Sprintf(deps.Config.Messages.AnalysisErrorFmt, causeText(err, ErrAnalysisService))
		}
		h.editMenu(ctx, b, chatID, messageID, text, backKeyboard())
	default:
		h.editMenu(ctx, b, chatID, messageID, truncateReply(result), nil)
		h.sendChatActions(ctx, b, chatID, action.ChatID)
	}
}

func (h routerHandler) editMenu(ctx context.Context, b *bot.Bot, chatID int64, messageID int, text string, markup models.ReplyMarkup) {
	_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		h.deps.Logger.WarnContext(ctx, "Failed to edit menu message", "chat_id", chatID, "message_id", messageID, "error", err)
	}
}

func (h routerHandler) answerCallback(ctx context.Context, b *bot.Bot, callbackID, text string, alert bool) {
	_, err := b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
		ShowAlert:       alert,
	})
	if err != nil {
		h.deps.Logger.WarnContext(ctx, "Failed to answer callback query", "error", err)
	}
}

// chatLabel renders a stored chat for menu headers.
func chatLabel(chat *database.Chat) string {
	if chat.Title.Valid && chat.Title.String != "" {
		return chat.Title.String
	}
	return fmt.Sprintf("Chat %d", chat.ChatID)
}
