// Package config provides configuration loading, validation, and defaults
// for the ChatSage application. Values come from a YAML file and BOT_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-telegram/bot/models"
	"github.com/spf13/viper"
)

// LoggerConfig controls log level and output format.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot credential and runtime bot identity.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`

	// BotInfo is populated at startup via GetMe and is not read from config.
	BotInfo *models.User `mapstructure:"-"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`

	// HistoryLimit bounds how many recent messages one analysis sees.
	HistoryLimit int `mapstructure:"history_limit" validate:"min=1,max=300"`

	// ChatListLimit bounds how many chats a menu listing shows.
	ChatListLimit int `mapstructure:"chat_list_limit" validate:"min=1,max=50"`
}

// GeminiConfig holds the AI service credentials and tuning parameters used
// for both chat analysis and voice transcription.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key" validate:"required"`
	ModelName         string        `mapstructure:"model" validate:"required"`
	Temperature       float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxRetries        int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=1,max=60"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"min=1s,max=10m"`
}

// TaskConfig enables a named scheduled task with a cron expression.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// MessagesConfig collects every user-visible string so deployments can
// localize them without rebuilding.
type MessagesConfig struct {
	Welcome               string `mapstructure:"welcome"`
	MainMenu              string `mapstructure:"main_menu"`
	ChooseAction          string `mapstructure:"choose_action"`
	ChooseChat            string `mapstructure:"choose_chat"`
	AskCustomQuery        string `mapstructure:"ask_custom_query"`
	Transcribing          string `mapstructure:"transcribing"`
	TranscriptHeader      string `mapstructure:"transcript_header"`
	Analyzing             string `mapstructure:"analyzing"`
	NoHistory             string `mapstructure:"no_history"`
	ChatNotFound          string `mapstructure:"chat_not_found"`
	EmptyChatList         string `mapstructure:"empty_chat_list"`
	GlobalSettings        string `mapstructure:"global_settings"`
	ChatSettingsFmt       string `mapstructure:"chat_settings_fmt"`
	ChatActionsFmt        string `mapstructure:"chat_actions_fmt"`
	TranscriptionOn       string `mapstructure:"transcription_on"`
	TranscriptionOff      string `mapstructure:"transcription_off"`
	TranscriptionErrorFmt string `mapstructure:"transcription_error_fmt"`
	AnalysisErrorFmt      string `mapstructure:"analysis_error_fmt"`
	GeneralError          string `mapstructure:"general_error"`
}

// Config defines the application configuration. Values can be set via
// environment variables prefixed with BOT_ (e.g. BOT_TELEGRAM_TOKEN) or
// through a YAML config file.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LoadConfig reads, merges, and validates configuration from defaults, the
// given YAML file (optional), and BOT_* environment variables.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("BOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		// Missing config file is fine, defaults plus env cover it.
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.json", true)

	// Secrets default to empty so they can arrive via environment alone;
	// validation still rejects a missing value.
	v.SetDefault("telegram.token", "")
	v.SetDefault("gemini.api_key", "")

	v.SetDefault("database.path", "chatsage.db")
	v.SetDefault("database.history_limit", 300)
	v.SetDefault("database.chat_list_limit", 10)

	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.7)
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_delay_seconds", 2)
	v.SetDefault("gemini.timeout", 2*time.Minute)

	v.SetDefault("scheduler.tasks.sql_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.sql_maintenance.schedule", "0 0 4 * * *")

	v.SetDefault("messages.welcome", "I analyze your Telegram conversations.\n\nWhat I can do:\n• Transcribe voice messages automatically\n• Analyze conversations with AI\n• Build summaries and extract key topics\n• Answer your questions about a conversation\n\nPick a chat category to analyze:")
	v.SetDefault("messages.main_menu", "📱 Main menu:")
	v.SetDefault("messages.choose_action", "Choose an action:")
	v.SetDefault("messages.choose_chat", "Choose a chat:")
	v.SetDefault("messages.ask_custom_query", "❓ Ask your question about the conversation:")
	v.SetDefault("messages.transcribing", "🎤 Transcribing voice message...")
	v.SetDefault("messages.transcript_header", "📝 Transcript:")
	v.SetDefault("messages.analyzing", "🤔 Analyzing the conversation...")
	v.SetDefault("messages.no_history", "❌ No messages to analyze")
	v.SetDefault("messages.chat_not_found", "❌ Chat not found")
	v.SetDefault("messages.empty_chat_list", "No chats of this kind yet. They appear here once the bot sees messages from them.")
	v.SetDefault("messages.global_settings", "⚙️ Settings:\n\nPer-chat settings live in each chat's action menu.")
	v.SetDefault("messages.chat_settings_fmt", "⚙️ Chat settings: %s\n\nVoice transcription for this chat:")
	v.SetDefault("messages.chat_actions_fmt", "💬 Chat: %s\n\nChoose an action:")
	v.SetDefault("messages.transcription_on", "✅ Transcription enabled")
	v.SetDefault("messages.transcription_off", "❌ Transcription disabled")
	v.SetDefault("messages.transcription_error_fmt", "❌ Failed to process voice message: %s")
	v.SetDefault("messages.analysis_error_fmt", "❌ Analysis failed: %s")
	v.SetDefault("messages.general_error", "❌ An error occurred. Please try again later.")
}
