package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Store defines the interface for database operations.
// Methods accept context.Context for cancellation and timeouts.
type Store interface {
	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// SaveUser inserts or updates a user record and marks it authorized.
	SaveUser(ctx context.Context, user *User) error

	// GetUser retrieves a user by ID. Returns nil, nil if not found.
	GetUser(ctx context.Context, userID int64) (*User, error)

	// IsUserAuthorized reports whether the user exists and is authorized.
	IsUserAuthorized(ctx context.Context, userID int64) (bool, error)

	// UpsertChat inserts or updates a chat's type and title. The
	// transcription_enabled flag of an existing row is preserved.
	UpsertChat(ctx context.Context, chat *Chat) error

	// GetChat retrieves a chat by ID. Returns nil, nil if not found.
	GetChat(ctx context.Context, chatID int64) (*Chat, error)

	// GetChatsByType retrieves up to 'limit' chats of the given type,
	// newest-registered first.
	GetChatsByType(ctx context.Context, chatType string, limit int) ([]Chat, error)

	// SetTranscriptionEnabled sets the transcription flag for a chat.
	SetTranscriptionEnabled(ctx context.Context, chatID int64, enabled bool) error

	// IsTranscriptionEnabled returns the stored flag, or true when the chat
	// is unknown (fail-open default).
	IsTranscriptionEnabled(ctx context.Context, chatID int64) (bool, error)

	// SaveMessage appends a new message record.
	SaveMessage(ctx context.Context, message *Message) error

	// GetRecentMessagesInChat retrieves the most recent 'limit' messages for
	// a chat, newest first.
	GetRecentMessagesInChat(ctx context.Context, chatID int64, limit int) ([]Message, error)

	// SaveAnalysisResult appends an analysis result record.
	SaveAnalysisResult(ctx context.Context, result *AnalysisResult) error

	// GetRecentAnalysisResults retrieves the most recent 'limit' analysis
	// results for a chat, newest first.
	GetRecentAnalysisResults(ctx context.Context, chatID int64, limit int) ([]AnalysisResult, error)

	// SaveBusinessConnection inserts or updates a business connection and
	// marks it active.
	SaveBusinessConnection(ctx context.Context, conn *BusinessConnection) error

	// DeactivateBusinessConnection soft-deletes a business connection. The
	// row is kept so historical relays stay attributable.
	DeactivateBusinessConnection(ctx context.Context, connectionID string) error

	// GetBusinessConnection retrieves an active business connection by ID.
	// Returns nil, nil if there is no active connection with that ID.
	GetBusinessConnection(ctx context.Context, connectionID string) (*BusinessConnection, error)

	// RunSQLMaintenance performs database maintenance tasks like VACUUM.
	RunSQLMaintenance(ctx context.Context) error
}

// sqlxStore provides an implementation of the Store interface using sqlx.
type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new Store implementation backed by sqlx.
// It requires a connected sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// SaveUser inserts or updates a user record and marks it authorized.
func (s *sqlxStore) SaveUser(ctx context.Context, user *User) error {
	if user == nil {
		return fmt.Errorf("cannot save nil user")
	}
	if user.UserID == 0 {
		return fmt.Errorf("user must have a non-zero user_id")
	}

	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.IsAuthorized = true

	query := `
        INSERT INTO users (user_id, username, first_name, last_name, is_authorized, created_at)
        VALUES (:user_id, :username, :first_name, :last_name, :is_authorized, :created_at)
        ON CONFLICT (user_id) DO UPDATE SET
            username = excluded.username,
            first_name = excluded.first_name,
            last_name = excluded.last_name,
            is_authorized = excluded.is_authorized;
    `

	if _, err := s.db.NamedExecContext(ctx, query, user); err != nil {
		s.logger.ErrorContext(ctx, "Error saving user", "user_id", user.UserID, "error", err)
		return fmt.Errorf("failed to save user %d: %w", user.UserID, err)
	}

	s.logger.DebugContext(ctx, "User saved successfully", "user_id", user.UserID)
	return nil
}

// GetUser retrieves a user by ID. Returns nil, nil if not found.
func (s *sqlxStore) GetUser(ctx context.Context, userID int64) (*User, error) {
	if userID == 0 {
		return nil, fmt.Errorf("user_id cannot be zero")
	}

	var user User
	query := `SELECT user_id, username, first_name, last_name, is_authorized, created_at
	          FROM users WHERE user_id = ?`

	err := s.db.GetContext(ctx, &user, query, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No user found", "user_id", userID)
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting user", "user_id", userID, "error", err)
		return nil, fmt.Errorf("failed to get user %d: %w", userID, err)
	}

	return &user, nil
}

// IsUserAuthorized reports whether the user exists and is authorized.
func (s *sqlxStore) IsUserAuthorized(ctx context.Context, userID int64) (bool, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return user != nil && user.IsAuthorized, nil
}

// UpsertChat inserts or updates a chat's type and title. The transcription
// flag of an existing chat is left untouched so toggles survive re-upserts.
func (s *sqlxStore) UpsertChat(ctx context.Context, chat *Chat) error {
	if chat == nil {
		return fmt.Errorf("cannot save nil chat")
	}
	if chat.ChatID == 0 {
		return fmt.Errorf("chat must have a non-zero chat_id")
	}
	if chat.ChatType == "" {
		return fmt.Errorf("chat must have a chat_type")
	}

	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = time.Now().UTC()
	}
	chat.TranscriptionEnabled = true // only applies on first insert

	query := `
        INSERT INTO chats (chat_id, chat_type, title, transcription_enabled, created_at)
        VALUES (:chat_id, :chat_type, :title, :transcription_enabled, :created_at)
        ON CONFLICT (chat_id) DO UPDATE SET
            chat_type = excluded.chat_type,
            title = excluded.title;
    `

	if _, err := s.db.NamedExecContext(ctx, query, chat); err != nil {
		s.logger.ErrorContext(ctx, "Error upserting chat", "chat_id", chat.ChatID, "error", err)
		return fmt.Errorf("failed to upsert chat %d: %w", chat.ChatID, err)
	}

	s.logger.DebugContext(ctx, "Chat upserted successfully", "chat_id", chat.ChatID, "chat_type", chat.ChatType)
	return nil
}

// GetChat retrieves a chat by ID. Returns nil, nil if not found.
func (s *sqlxStore) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}

	var chat Chat
	query := `SELECT chat_id, chat_type, title, transcription_enabled, created_at
	          FROM chats WHERE chat_id = ?`

	err := s.db.GetContext(ctx, &chat, query, chatID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No chat found", "chat_id", chatID)
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting chat", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get chat %d: %w", chatID, err)
	}

	return &chat, nil
}

// GetChatsByType retrieves up to 'limit' chats of the given type.
func (s *sqlxStore) GetChatsByType(ctx context.Context, chatType string, limit int) ([]Chat, error) {
	if chatType == "" {
		return nil, fmt.Errorf("chat_type cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	}

	var chats []Chat
	query := `SELECT chat_id, chat_type, title, transcription_enabled, created_at
	          FROM chats
	          WHERE chat_type = ?
	          ORDER BY created_at DESC
	          LIMIT ?`

	if err := s.db.SelectContext(ctx, &chats, query, chatType, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error listing chats", "chat_type", chatType, "error", err)
		return nil, fmt.Errorf("failed to list %s chats: %w", chatType, err)
	}

	return chats, nil
}

// SetTranscriptionEnabled sets the transcription flag for a chat.
func (s *sqlxStore) SetTranscriptionEnabled(ctx context.Context, chatID int64, enabled bool) error {
	if chatID == 0 {
		return fmt.Errorf("chat_id cannot be zero")
	}

	query := `UPDATE chats SET transcription_enabled = ? WHERE chat_id = ?`
	result, err := s.db.ExecContext(ctx, query, enabled, chatID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error setting transcription flag", "chat_id", chatID, "enabled", enabled, "error", err)
		return fmt.Errorf("failed to set transcription flag for chat %d: %w", chatID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		s.logger.WarnContext(ctx, "Transcription flag set for unknown chat, no row updated", "chat_id", chatID)
	}

	s.logger.DebugContext(ctx, "Transcription flag updated", "chat_id", chatID, "enabled", enabled)
	return nil
}

// IsTranscriptionEnabled returns the stored flag, defaulting to enabled for
// chats that were never seen.
func (s *sqlxStore) IsTranscriptionEnabled(ctx context.Context, chatID int64) (bool, error) {
	chat, err := s.GetChat(ctx, chatID)
	if err != nil {
		return false, err
	}
	if chat == nil {
		return true, nil
	}
	return chat.TranscriptionEnabled, nil
}

// SaveMessage appends a new message record.
func (s *sqlxStore) SaveMessage(ctx context.Context, message *Message) error {
	if message == nil {
		return fmt.Errorf("cannot save nil message")
	}
	if message.ChatID == 0 {
		return fmt.Errorf("message must have a non-zero chat_id")
	}
	if message.UserID == 0 {
		return fmt.Errorf("message must have a non-zero user_id")
	}
	if message.MessageDate.IsZero() {
		return fmt.Errorf("message must have a non-zero message_date")
	}

	message.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO messages (chat_id, user_id, message_text, message_date, is_voice, transcription, created_at)
        VALUES (:chat_id, :user_id, :message_text, :message_date, :is_voice, :transcription, :created_at);
    `

	result, err := s.db.NamedExecContext(ctx, query, message)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving message", "chat_id", message.ChatID, "user_id", message.UserID, "error", err)
		return fmt.Errorf("failed to save message (chat %d, user %d): %w", message.ChatID, message.UserID, err)
	}

	if id, err := result.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		message.MessageID = uint(id)
	} else {
		s.logger.WarnContext(ctx, "Could not retrieve last insert ID after saving message",
			"chat_id", message.ChatID, "user_id", message.UserID, "error", err)
	}

	s.logger.DebugContext(ctx, "Message saved successfully",
		"chat_id", message.ChatID, "user_id", message.UserID, "message_id", message.MessageID, "is_voice", message.IsVoice)
	return nil
}

// GetRecentMessagesInChat retrieves the most recent 'limit' messages for a
// given chat ID, newest first. The order is preserved for the analysis call.
func (s *sqlxStore) GetRecentMessagesInChat(ctx context.Context, chatID int64, limit int) ([]Message, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}

	if limit <= 0 {
		limit = 20
		s.logger.DebugContext(ctx, "Invalid limit provided, using default", "chat_id", chatID, "default_limit", limit)
	} else if limit > 300 {
		limit = 300 // cap to the analysis window
		s.logger.DebugContext(ctx, "Limit exceeded maximum value, capping", "chat_id", chatID, "capped_limit", limit)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var messages []Message
	query := `
        SELECT message_id, chat_id, user_id, message_text, message_date, is_voice, transcription, created_at
        FROM messages
        WHERE chat_id = ?
        ORDER BY message_date DESC, message_id DESC
        LIMIT ?;
    `

	err := s.db.SelectContext(ctx, &messages, query, chatID, limit)
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.WarnContext(ctx, "Context timeout or cancellation while fetching messages", "chat_id", chatID, "error", err)
		return nil, err
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Error getting recent messages", "chat_id", chatID, "limit", limit, "error", err)
		return nil, fmt.Errorf("failed to get recent messages for chat %d: %w", chatID, err)
	}

	s.logger.DebugContext(ctx, "Fetched recent messages successfully", "chat_id", chatID, "count", len(messages))
	return messages, nil
}

// SaveAnalysisResult appends an analysis result record.
func (s *sqlxStore) SaveAnalysisResult(ctx context.Context, result *AnalysisResult) error {
	if result == nil {
		return fmt.Errorf("cannot save nil analysis result")
	}
	if result.ChatID == 0 {
		return fmt.Errorf("analysis result must have a non-zero chat_id")
	}
	if result.AnalysisType == "" {
		return fmt.Errorf("analysis result must have an analysis_type")
	}

	result.CreatedAt = time.Now().UTC()

	query := `
        INSERT INTO analysis_results (chat_id, user_id, analysis_type, result_text, created_at)
        VALUES (:chat_id, :user_id, :analysis_type, :result_text, :created_at);
    `

	res, err := s.db.NamedExecContext(ctx, query, result)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error saving analysis result",
			"chat_id", result.ChatID, "analysis_type", result.AnalysisType, "error", err)
		return fmt.Errorf("failed to save analysis result (chat %d, type %s): %w", result.ChatID, result.AnalysisType, err)
	}

	if id, err := res.LastInsertId(); err == nil {
		//nolint:gosec // integer overflow conversion is acceptable here
		result.ID = uint(id)
	}

	s.logger.DebugContext(ctx, "Analysis result saved successfully",
		"chat_id", result.ChatID, "analysis_type", result.AnalysisType, "id", result.ID)
	return nil
}

// GetRecentAnalysisResults retrieves the most recent 'limit' analysis results
// for a chat, newest first.
func (s *sqlxStore) GetRecentAnalysisResults(ctx context.Context, chatID int64, limit int) ([]AnalysisResult, error) {
	if chatID == 0 {
		return nil, fmt.Errorf("chat_id cannot be zero")
	}
	if limit <= 0 {
		limit = 10
	}

	var results []AnalysisResult
	query := `
        SELECT id, chat_id, user_id, analysis_type, result_text, created_at
        FROM analysis_results
        WHERE chat_id = ?
        ORDER BY created_at DESC, id DESC
        LIMIT ?;
    `

	if err := s.db.SelectContext(ctx, &results, query, chatID, limit); err != nil {
		s.logger.ErrorContext(ctx, "Error getting analysis results", "chat_id", chatID, "error", err)
		return nil, fmt.Errorf("failed to get analysis results for chat %d: %w", chatID, err)
	}

	return results, nil
}

// SaveBusinessConnection inserts or updates a business connection and marks
// it active.
func (s *sqlxStore) SaveBusinessConnection(ctx context.Context, conn *BusinessConnection) error {
	if conn == nil {
		return fmt.Errorf("cannot save nil business connection")
	}
	if conn.ConnectionID == "" {
		return fmt.Errorf("business connection must have a connection_id")
	}

	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = time.Now().UTC()
	}
	conn.IsActive = true

	query := `
        INSERT INTO business_connections (connection_id, user_id, user_chat_id, is_active, created_at)
        VALUES (:connection_id, :user_id, :user_chat_id, :is_active, :created_at)
        ON CONFLICT (connection_id) DO UPDATE SET
            user_id = excluded.user_id,
            user_chat_id = excluded.user_chat_id,
            is_active = excluded.is_active;
    `

	if _, err := s.db.NamedExecContext(ctx, query, conn); err != nil {
		s.logger.ErrorContext(ctx, "Error saving business connection", "connection_id", conn.ConnectionID, "error", err)
		return fmt.Errorf("failed to save business connection %s: %w", conn.ConnectionID, err)
	}

	s.logger.DebugContext(ctx, "Business connection saved successfully", "connection_id", conn.ConnectionID, "user_id", conn.UserID)
	return nil
}

// DeactivateBusinessConnection soft-deletes a business connection.
func (s *sqlxStore) DeactivateBusinessConnection(ctx context.Context, connectionID string) error {
	if connectionID == "" {
		return fmt.Errorf("connection_id cannot be empty")
	}

	query := `UPDATE business_connections SET is_active = 0 WHERE connection_id = ?`
	result, err := s.db.ExecContext(ctx, query, connectionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "Error deactivating business connection", "connection_id", connectionID, "error", err)
		return fmt.Errorf("failed to deactivate business connection %s: %w", connectionID, err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		s.logger.WarnContext(ctx, "Deactivation requested for unknown business connection", "connection_id", connectionID)
	}

	s.logger.DebugContext(ctx, "Business connection deactivated", "connection_id", connectionID)
	return nil
}

// GetBusinessConnection retrieves an active business connection by ID.
// Returns nil, nil when no active connection with that ID exists.
func (s *sqlxStore) GetBusinessConnection(ctx context.Context, connectionID string) (*BusinessConnection, error) {
	if connectionID == "" {
		return nil, fmt.Errorf("connection_id cannot be empty")
	}

	var conn BusinessConnection
	query := `SELECT connection_id, user_id, user_chat_id, is_active, created_at
	          FROM business_connections
	          WHERE connection_id = ? AND is_active = 1`

	err := s.db.GetContext(ctx, &conn, query, connectionID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.DebugContext(ctx, "No active business connection found", "connection_id", connectionID)
		return nil, nil
	case err != nil:
		s.logger.ErrorContext(ctx, "Error getting business connection", "connection_id", connectionID, "error", err)
		return nil, fmt.Errorf("failed to get business connection %s: %w", connectionID, err)
	}

	return &conn, nil
}

// RunSQLMaintenance executes a VACUUM command on the SQLite database.
func (s *sqlxStore) RunSQLMaintenance(ctx context.Context) error {
	if ctx.Err() != nil {
		s.logger.WarnContext(ctx, "Context cancelled or timed out before starting VACUUM", "error", ctx.Err())
		return ctx.Err()
	}

	s.logger.InfoContext(ctx, "Starting database maintenance (VACUUM)...")

	// VACUUM must run outside a transaction in SQLite
	_, err := s.db.ExecContext(ctx, "VACUUM;")
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		s.logger.WarnContext(ctx, "VACUUM operation timed out or was cancelled", "error", err)
		return fmt.Errorf("database maintenance (VACUUM) timed out: %w", err)
	case err != nil:
		s.logger.ErrorContext(ctx, "Database maintenance (VACUUM) failed", "error", err)
		return fmt.Errorf("failed to execute VACUUM: %w", err)
	}

	s.logger.InfoContext(ctx, "Database maintenance (VACUUM) completed successfully")
	return nil
}
