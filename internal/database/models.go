package database

import (
	"database/sql"
	"time"
)

// Chat types as delivered by Telegram, plus the synthetic business kind
// assigned to chats reached through a business connection.
const (
	ChatTypePrivate  = "private"
	ChatTypeGroup    = "group"
	ChatTypeChannel  = "channel"
	ChatTypeBusiness = "business"
)

// User represents a Telegram user known to the bot. Users are created on
// /start, which also marks them authorized.
type User struct {
	UserID       int64          `db:"user_id"`
	Username     sql.NullString `db:"username"`
	FirstName    sql.NullString `db:"first_name"`
	LastName     sql.NullString `db:"last_name"`
	IsAuthorized bool           `db:"is_authorized"`
	CreatedAt    time.Time      `db:"created_at"`
}

// Chat represents a chat the bot has seen messages from. TranscriptionEnabled
// defaults to true for chats that were never explicitly configured.
type Chat struct {
	ChatID               int64          `db:"chat_id"`
	ChatType             string         `db:"chat_type"`
	Title                sql.NullString `db:"title"`
	TranscriptionEnabled bool           `db:"transcription_enabled"`
	CreatedAt            time.Time      `db:"created_at"`
}

// Message is one inbound text or voice event. Rows are append-only: text is
// absent for voice messages, and transcription is absent when transcription
// was disabled or failed.
type Message struct {
	MessageID     uint           `db:"message_id"`
	ChatID        int64          `db:"chat_id"`
	UserID        int64          `db:"user_id"`
	Text          sql.NullString `db:"message_text"`
	MessageDate   time.Time      `db:"message_date"`
	IsVoice       bool           `db:"is_voice"`
	Transcription sql.NullString `db:"transcription"`
	CreatedAt     time.Time      `db:"created_at"`
}

// AnalysisResult is the append-only log of every performed analysis.
type AnalysisResult struct {
	ID           uint      `db:"id"`
	ChatID       int64     `db:"chat_id"`
	UserID       int64     `db:"user_id"`
	AnalysisType string    `db:"analysis_type"`
	ResultText   string    `db:"result_text"`
	CreatedAt    time.Time `db:"created_at"`
}

// BusinessConnection registers a Telegram Business link. Rows are soft-deleted
// (IsActive=false) so historical relayed messages remain attributable.
type BusinessConnection struct {
	ConnectionID string    `db:"connection_id"`
	UserID       int64     `db:"user_id"`
	UserChatID   int64     `db:"user_chat_id"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
}
