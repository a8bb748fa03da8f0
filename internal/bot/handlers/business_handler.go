package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mbvolkov/chatsage/internal/database"
)

// handleBusinessConnection records connection lifecycle events. An enabled
// connection is stored (or reactivated); a disabled one is soft-deleted so
// later relayed messages for it are dropped.
func (h routerHandler) handleBusinessConnection(ctx context.Context, _ *bot.Bot, conn *models.BusinessConnection) {
	deps := h.deps
	log := deps.Logger.With("handler", "business_connection", "connection_id", conn.ID)

	if !conn.IsEnabled {
		if err := deps.Store.DeactivateBusinessConnection(ctx, conn.ID); err != nil {
			log.ErrorContext(ctx, "Failed to deactivate business connection", "error", err)
			return
		}
		log.InfoContext(ctx, "Business connection disabled", "user_id", conn.User.ID)
		return
	}

	record := &database.BusinessConnection{
		ConnectionID: conn.ID,
		UserID:       conn.User.ID,
		UserChatID:   conn.UserChatID,
		IsActive:     true,
	}
	if err := deps.Store.SaveBusinessConnection(ctx, record); err != nil {
		log.ErrorContext(ctx, "Failed to save business connection", "error", err)
		return
	}
	log.InfoContext(ctx, "Business connection enabled", "user_id", conn.User.ID)
}

// handleBusinessMessage processes messages relayed from a connected business
// account. Text is recorded as history; voice goes through the transcription
// pipeline and the transcript is sent back into the business chat as a reply
// to the original voice note. Messages for unknown or deactivated
// connections are dropped without persistence.
func (h routerHandler) handleBusinessMessage(ctx context.Context, b *bot.Bot, msg *models.Message) {
	deps := h.deps
	log := deps.Logger.With("handler", "business_message", "connection_id", msg.BusinessConnectionID, "chat_id", msg.Chat.ID)

	conn, err := deps.Store.GetBusinessConnection(ctx, msg.BusinessConnectionID)
	if err != nil {
		log.ErrorContext(ctx, "Business connection lookup failed", "error", err)
		return
	}
	if conn == nil {
		log.DebugContext(ctx, "Dropping message for inactive business connection")
		return
	}

	// Outgoing messages from the account owner arrive without a sender.
	userID := conn.UserID
	if msg.From != nil {
		userID = msg.From.ID
	}

	if msg.Voice != nil {
		h.handleBusinessVoice(ctx, b, msg, userID)
		return
	}
	if msg.Text == "" {
		log.DebugContext(ctx, "Ignoring non-text, non-voice business message")
		return
	}

	chat := &database.Chat{
		ChatID:   msg.Chat.ID,
		ChatType: database.ChatTypeBusiness,
		Title:    toNullString(chatTitleOf(msg)),
	}
	if err := deps.Store.UpsertChat(ctx, chat); err != nil {
		log.ErrorContext(ctx, "Failed to upsert business chat", "error", err)
		return
	}

	record := &database.Message{
		ChatID:      msg.Chat.ID,
		UserID:      userID,
		Text:        toNullString(msg.Text),
		MessageDate: time.Unix(int64(msg.Date), 0),
	}
	if err := deps.Store.SaveMessage(ctx, record); err != nil {
		log.ErrorContext(ctx, "Failed to save business message", "error", err)
	}
}

func (h routerHandler) handleBusinessVoice(ctx context.Context, b *bot.Bot, msg *models.Message, userID int64) {
	deps := h.deps
	log := deps.Logger.With("handler", "business_voice", "connection_id", msg.BusinessConnectionID, "chat_id", msg.Chat.ID)

	job := voiceJob{
		ChatID:    msg.Chat.ID,
		ChatType:  database.ChatTypeBusiness,
		Title:     chatTitleOf(msg),
		UserID:    userID,
		FileID:    msg.Voice.FileID,
		Timestamp: time.Unix(int64(msg.Date), 0),
	}

	download := newVoiceDownloader(b, deps.Config.Telegram.Token, log)
	transcript, skipped, err := runVoicePipeline(ctx, deps, job, download, nil)
	if err != nil {
		notice := deps.Config.Messages.GeneralError
		if errors.Is(err, ErrTranscription) {
			log.WarnContext(ctx, "Business voice transcription failed, message stored without transcript", "error", err)
			notice = fmt.Sprintf(deps.Config.Messages.TranscriptionErrorFmt, causeText(err, ErrTranscription))
		} else {
			log.ErrorContext(ctx, "Business voice pipeline failed", "error", err)
		}
		h.sendBusinessReply(ctx, b, msg, notice)
		return
	}
	if skipped {
		return
	}

	reply := deps.Config.Messages.TranscriptHeader + "\n" + transcript
	h.sendBusinessReply(ctx, b, msg, truncateReply(reply))
}

// sendBusinessReply sends text into the business chat as a reply to the
// triggering message, routed through the owner's business connection.
func (h routerHandler) sendBusinessReply(ctx context.Context, b *bot.Bot, msg *models.Message, text string) {
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		BusinessConnectionID: msg.BusinessConnectionID,
		ChatID:               msg.Chat.ID,
		Text:                 text,
		ReplyParameters: &models.ReplyParameters{
			MessageID: msg.ID,
			ChatID:    msg.Chat.ID,
		},
	})
	if err != nil {
		h.deps.Logger.ErrorContext(ctx, "Failed to send business reply",
			"connection_id", msg.BusinessConnectionID, "chat_id", msg.Chat.ID, "error", err)
	}
}
