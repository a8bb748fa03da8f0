package handlers

import (
	"context"
	"database/sql"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/mbvolkov/chatsage/internal/database"
)

// NewStartHandler returns a handler for the /start command. It registers
// the sender as an authorized user and shows the main menu.
func NewStartHandler(deps HandlerDeps) bot.HandlerFunc {
	return startHandler{deps}.Handle
}

type startHandler struct {
	deps HandlerDeps
}

func (h startHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "start")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Start handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	from := update.Message.From
	chatID := update.Message.Chat.ID

	log.InfoContext(ctx, "Handling /start command", "chat_id", chatID, "user_id", from.ID)

	user := &database.User{
		UserID:       from.ID,
		Username:     sql.NullString{String: from.Username, Valid: from.Username != ""},
		FirstName:    sql.NullString{String: from.FirstName, Valid: from.FirstName != ""},
		LastName:     sql.NullString{String: from.LastName, Valid: from.LastName != ""},
		IsAuthorized: true,
	}
	if err := h.deps.Store.SaveUser(ctx, user); err != nil {
		log.ErrorContext(ctx, "Failed to save user", "user_id", from.ID, "error", err)
		_, _ = b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: h.deps.Config.Messages.GeneralError})
		return
	}

	greeting := "👋 Hi, " + from.FirstName + "!\n\n" + h.deps.Config.Messages.Welcome
	_, err := b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        greeting,
		ReplyMarkup: mainMenuKeyboard(),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send welcome message", "error", err, "chat_id", chatID)
	}
}
