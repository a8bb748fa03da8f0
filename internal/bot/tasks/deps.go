// Package tasks implements the scheduled maintenance tasks for ChatSage.
package tasks

import (
	"log/slog"

	"github.com/mbvolkov/chatsage/internal/config"
	"github.com/mbvolkov/chatsage/internal/database"
	"github.com/mbvolkov/chatsage/internal/gemini"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger       *slog.Logger
	Store        database.Store
	GeminiClient gemini.Client
	Config       *config.Config
}
