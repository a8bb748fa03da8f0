package handlers

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// NewMenuHandler returns a handler for the /menu command, which reopens the
// main menu without re-registering the user. Unknown users are ignored.
func NewMenuHandler(deps HandlerDeps) bot.HandlerFunc {
	return menuHandler{deps}.Handle
}

type menuHandler struct {
	deps HandlerDeps
}

func (h menuHandler) Handle(ctx context.Context, b *bot.Bot, update *models.Update) {
	log := h.deps.Logger.With("handler", "menu")

	if update.Message == nil || update.Message.From == nil {
		log.WarnContext(ctx, "Menu handler received update with nil message or sender", "update_id", update.ID)
		return
	}
	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	authorized, err := h.deps.Store.IsUserAuthorized(ctx, userID)
	if err != nil {
		log.ErrorContext(ctx, "Authorization lookup failed", "user_id", userID, "error", err)
		return
	}
	if !authorized {
		log.DebugContext(ctx, "Ignoring /menu from unknown user", "user_id", userID)
		return
	}

	h.deps.Pending.Clear(userID)
	_, err = b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        h.deps.Config.Messages.MainMenu,
		ReplyMarkup: mainMenuKeyboard(),
	})
	if err != nil {
		log.ErrorContext(ctx, "Failed to send main menu", "error", err, "chat_id", chatID)
	}
}
