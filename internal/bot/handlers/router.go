package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mbvolkov/chatsage/internal/database"
	"github.com/mbvolkov/chatsage/internal/gemini"
)

// maxReplyLength keeps outgoing text under the Bot API message limit with
// headroom for headers.
const maxReplyLength = 4000

type routerHandler struct {
	deps HandlerDeps
}

// NewRouterHandler returns the default update handler. It classifies each
// update into exactly one category (business connection lifecycle, business
// message, callback query, direct message) and dispatches it; updates
// matching none are dropped.
func NewRouterHandler(deps HandlerDeps) bot.HandlerFunc {
	return routerHandler{deps}.Handle
}

func (h routerHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	switch {
	case update.BusinessConnection != nil:
		h.handleBusinessConnection(ctx, b, update.BusinessConnection)
	case update.BusinessMessage != nil:
		h.handleBusinessMessage(ctx, b, update.BusinessMessage)
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, b, update.CallbackQuery)
	case update.Message != nil:
		h.handleDirectMessage(ctx, b, update.Message)
	default:
		h.deps.Logger.DebugContext(ctx, "Ignoring unsupported update type", "update_id", update.ID)
	}
}

// handleDirectMessage covers private messages sent straight to the bot:
// voice notes go to the transcription pipeline, text either answers a
// pending custom-analysis question or is recorded as history. Messages from
// users who never ran /start are dropped before anything is persisted.
func (h routerHandler) handleDirectMessage(ctx context.Context, b *bot.Bot, msg *models.Message) {
	deps := h.deps
	log := deps.Logger.With("handler", "direct_message", "chat_id", msg.Chat.ID)

	if msg.From == nil {
		log.DebugContext(ctx, "Ignoring message without sender")
		return
	}
	userID := msg.From.ID

	authorized, err := deps.Store.IsUserAuthorized(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Authorization lookup failed", "user_id", userID, "error", err)
		return
	}
	if !authorized {
		log.DebugContext(ctx, "Dropping message from unknown user", "user_id", userID)
		return
	}

	if msg.Voice != nil {
		h.handleDirectVoice(ctx, b, msg)
		return
	}
	if msg.Text == "" {
		log.DebugContext(ctx, "Ignoring non-text, non-voice message")
		return
	}

	if targetChatID, ok := deps.Pending.Get(userID); ok {
		h.runPendingQuery(ctx, b, msg, targetChatID)
		return
	}

	h.recordIncomingText(ctx, msg)
}

// recordIncomingText persists the chat row first and then the message, so a
// stored message always has its chat on file.
func (h routerHandler) recordIncomingText(ctx context.Context, msg *models.Message) {
	deps := h.deps
	log := deps.Logger.With("handler", "direct_message", "chat_id", msg.Chat.ID)

	chat := chatFromMessage(msg)
	if err := deps.Store.UpsertChat(ctx, chat); err != nil {
		log.ErrorContext(ctx, "Failed to upsert chat", "error", err)
		return
	}

	record := &database.Message{
		ChatID:      msg.Chat.ID,
		UserID:      msg.From.ID,
		Text:        toNullString(msg.Text),
		MessageDate: time.Unix(int64(msg.Date), 0),
	}
	if err := deps.Store.SaveMessage(ctx, record); err != nil {
		log.ErrorContext(ctx, "Failed to save message", "error", err)
	}
}

// runPendingQuery consumes the user's text as the question for their pending
// custom analysis. The pending entry is cleared on success and when the
// target chat has no history; it survives a service failure so the user can
// retry the question.
func (h routerHandler) runPendingQuery(ctx context.Context, b *bot.Bot, msg *models.Message, targetChatID int64) {
	deps := h.deps
	log := deps.Logger.With("handler", "custom_query", "chat_id", msg.Chat.ID, "target_chat_id", targetChatID)

	query := strings.TrimSpace(msg.Text)
	if query == "" {
		log.DebugContext(ctx, "Empty custom query, keeping pending entry")
		return
	}

	var noticeID int
	onAnalyzing := func() {
		sent, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: deps.Config.Messages.Analyzing})
		if err != nil {
			log.WarnContext(ctx, "Failed to send analyzing notice", "error", err)
			return
		}
		noticeID = sent.ID
	}

	req := analysisRequest{ChatID: targetChatID, UserID: msg.From.ID, Mode: gemini.ModeCustom, Query: query}
	result, err := runAnalysis(ctx, deps, req, onAnalyzing)

	switch {
	case errors.Is(err, ErrNoHistory):
		deps.Pending.Clear(msg.From.ID)
		h.sendOrEdit(ctx, b, msg.Chat.ID, noticeID, deps.Config.Messages.NoHistory, nil)
	case err != nil:
		log.ErrorContext(ctx, "Custom analysis failed", "error", err)
		text := deps.Config.Messages.GeneralError
		if errors.Is(err, ErrAnalysisService) {
			text = fmt.Sprintf(deps.Config.Messages.AnalysisErrorFmt, causeText(err, ErrAnalysisService))
		}
		h.sendOrEdit(ctx, b, msg.Chat.ID, noticeID, text, nil)
	default:
		deps.Pending.Clear(msg.From.ID)
		h.sendOrEdit(ctx, b, msg.Chat.ID, noticeID, truncateReply(result), nil)
		h.sendChatActions(ctx, b, msg.Chat.ID, targetChatID)
	}
}

// handleDirectVoice runs the transcription pipeline for a private voice note
// and replies with the transcript. The progress notice is only sent once the
// pipeline confirms transcription is enabled for the chat.
func (h routerHandler) handleDirectVoice(ctx context.Context, b *bot.Bot, msg *models.Message) {
	deps := h.deps
	log := deps.Logger.With("handler", "direct_voice", "chat_id", msg.Chat.ID)

	job := voiceJob{
		ChatID:    msg.Chat.ID,
		ChatType:  chatTypeOf(msg.Chat),
		Title:     chatTitleOf(msg),
		UserID:    msg.From.ID,
		FileID:    msg.Voice.FileID,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}

	var noticeID int
	onTranscribing := func() {
		sent, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: msg.Chat.ID, Text: deps.Config.Messages.Transcribing})
		if err != nil {
			log.WarnContext(ctx, "Failed to send transcribing notice", "error", err)
			return
		}
		noticeID = sent.ID
	}

	download := newVoiceDownloader(b, deps.Config.Telegram.Token, log)
	transcript, skipped, err := runVoicePipeline(ctx, deps, job, download, onTranscribing)
	if err != nil {
		text := deps.Config.Messages.GeneralError
		if errors.Is(err, ErrTranscription) {
			text = fmt.Sprintf(deps.Config.Messages.TranscriptionErrorFmt, causeText(err, ErrTranscription))
		}
		h.sendOrEdit(ctx, b, msg.Chat.ID, noticeID, text, nil)
		return
	}
	if skipped {
		return
	}

	reply := deps.Config.Messages.TranscriptHeader + "\n" + transcript
	h.sendOrEdit(ctx, b, msg.Chat.ID, noticeID, truncateReply(reply), nil)
}

// sendChatActions posts the per-chat action menu as a fresh message.
func (h routerHandler) sendChatActions(ctx context.Context, b *bot.Bot, chatID, targetChatID int64) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        h.deps.Config.Messages.ChooseAction,
		ReplyMarkup: chatActionsKeyboard(targetChatID),
	})
	if err != nil {
		h.deps.Logger.WarnContext(ctx, "Failed to send chat actions menu", "chat_id", chatID, "error", err)
	}
}

// sendOrEdit updates the progress notice in place when one exists, otherwise
// sends a new message.
func (h routerHandler) sendOrEdit(ctx context.Context, b *bot.Bot, chatID int64, messageID int, text string, markup models.ReplyMarkup) {
	log := h.deps.Logger.With("chat_id", chatID)
	if messageID != 0 {
		_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        text,
			ReplyMarkup: markup,
		})
		if err == nil {
			return
		}
		log.WarnContext(ctx, "Failed to edit message, sending new one", "message_id", messageID, "error", err)
	}
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text, ReplyMarkup: markup})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send message", "error", err)
	}
}

// chatFromMessage builds the chat row for an incoming private message.
func chatFromMessage(msg *models.Message) *database.Chat {
	return &database.Chat{
		ChatID:   msg.Chat.ID,
		ChatType: chatTypeOf(msg.Chat),
		Title:    toNullString(chatTitleOf(msg)),
	}
}

// chatTypeOf maps Telegram chat types onto the stored category set.
func chatTypeOf(chat models.Chat) string {
	switch chat.Type {
	case models.ChatTypeGroup, models.ChatTypeSupergroup:
		return database.ChatTypeGroup
	case models.ChatTypeChannel:
		return database.ChatTypeChannel
	default:
		return database.ChatTypePrivate
	}
}

// chatTitleOf prefers the chat title and falls back to the sender's name,
// which is what private chats carry instead of a title.
func chatTitleOf(msg *models.Message) string {
	if msg.Chat.Title != "" {
		return msg.Chat.Title
	}
	if msg.From != nil {
		return displayName(msg.From)
	}
	return ""
}

func displayName(u *models.User) string {
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func truncateReply(text string) string {
	if len(text) <= maxReplyLength {
		return text
	}
	runes := []rune(text)
	if len(runes) <= maxReplyLength {
		return text
	}
	return string(runes[:maxReplyLength]) + "…"
}
