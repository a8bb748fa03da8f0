package database

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	db.SetMaxOpenConns(1)

	if err := ApplyMigrations(db.DB, "test"); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(db, log)
}

func TestSaveUserAuthorizes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	authorized, err := store.IsUserAuthorized(ctx, 42)
	if err != nil {
		t.Fatalf("IsUserAuthorized failed: %v", err)
	}
	if authorized {
		t.Error("unknown user should not be authorized")
	}

	user := &User{
		UserID:       42,
		Username:     sql.NullString{String: "alice", Valid: true},
		FirstName:    sql.NullString{String: "Alice", Valid: true},
		IsAuthorized: true,
	}
	if err := store.SaveUser(ctx, user); err != nil {
		t.Fatalf("SaveUser failed: %v", err)
	}

	authorized, err = store.IsUserAuthorized(ctx, 42)
	if err != nil {
		t.Fatalf("IsUserAuthorized failed: %v", err)
	}
	if !authorized {
		t.Error("user should be authorized after SaveUser")
	}

	got, err := store.GetUser(ctx, 42)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetUser returned nil for existing user")
	}
	if got.Username.String != "alice" {
		t.Errorf("GetUser username = %q, want %q", got.Username.String, "alice")
	}
}

func TestGetUserMissingReturnsNil(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	got, err := store.GetUser(ctx, 999)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetUser for unknown user = %+v, want nil", got)
	}
}

func TestUpsertChatPreservesTranscriptionFlag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	chat := &Chat{ChatID: 100, ChatType: ChatTypePrivate, Title: sql.NullString{String: "Alice", Valid: true}}
	if err := store.UpsertChat(ctx, chat); err != nil {
		t.Fatalf("UpsertChat failed: %v", err)
	}

	if err := store.SetTranscriptionEnabled(ctx, 100, false); err != nil {
		t.Fatalf("SetTranscriptionEnabled failed: %v", err)
	}

	// Re-upsert with a new title; the user's toggle must survive.
	chat2 := &Chat{ChatID: 100, ChatType: ChatTypePrivate, Title: sql.NullString{String: "Alice Smith", Valid: true}}
	if err := store.UpsertChat(ctx, chat2); err != nil {
		t.Fatalf("UpsertChat failed: %v", err)
	}

	got, err := store.GetChat(ctx, 100)
	if err != nil {
		t.Fatalf("GetChat failed: %v", err)
	}
	if got == nil {
		t.Fatal("GetChat returned nil")
	}
	if got.TranscriptionEnabled {
		t.Error("transcription flag was reset by upsert")
	}
	if got.Title.String != "Alice Smith" {
		t.Errorf("title = %q, want %q", got.Title.String, "Alice Smith")
	}
}

func TestTranscriptionFlag(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	t.Run("unknown chat defaults to enabled", func(t *testing.T) {
		enabled, err := store.IsTranscriptionEnabled(ctx, 555)
		if err != nil {
			t.Fatalf("IsTranscriptionEnabled failed: %v", err)
		}
		if !enabled {
			t.Error("unknown chat should default to transcription enabled")
		}
	})

	t.Run("set is idempotent", func(t *testing.T) {
		if err := store.UpsertChat(ctx, &Chat{ChatID: 200, ChatType: ChatTypeGroup}); err != nil {
			t.Fatalf("UpsertChat failed: %v", err)
		}
		for range 2 {
			if err := store.SetTranscriptionEnabled(ctx, 200, false); err != nil {
				t.Fatalf("SetTranscriptionEnabled failed: %v", err)
			}
		}
		enabled, err := store.IsTranscriptionEnabled(ctx, 200)
		if err != nil {
			t.Fatalf("IsTranscriptionEnabled failed: %v", err)
		}
		if enabled {
			t.Error("flag should stay disabled after repeated sets")
		}
	})
}

func TestMessageHistoryOrderingAndLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.UpsertChat(ctx, &Chat{ChatID: 300, ChatType: ChatTypePrivate}); err != nil {
		t.Fatalf("UpsertChat failed: %v", err)
	}

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := range 5 {
		msg := &Message{
			ChatID:      300,
			UserID:      1,
			Text:        sql.NullString{String: string(rune('a' + i)), Valid: true},
			MessageDate: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}

	msgs, err := store.GetRecentMessagesInChat(ctx, 300, 3)
	if err != nil {
		t.Fatalf("GetRecentMessagesInChat failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	if msgs[0].Text.String != "e" || msgs[2].Text.String != "c" {
		t.Errorf("unexpected order: first %q, last %q", msgs[0].Text.String, msgs[2].Text.String)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].MessageDate.After(msgs[i-1].MessageDate) {
			t.Error("messages not ordered newest first")
		}
	}
}

func TestVoiceMessageTranscriptRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	if err := store.UpsertChat(ctx, &Chat{ChatID: 400, ChatType: ChatTypePrivate}); err != nil {
		t.Fatalf("UpsertChat failed: %v", err)
	}

	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	withTranscript := &Message{
		ChatID:        400,
		UserID:        7,
		MessageDate:   now,
		IsVoice:       true,
		Transcription: sql.NullString{String: "hello there", Valid: true},
	}
	withoutTranscript := &Message{
		ChatID:      400,
		UserID:      7,
		MessageDate: now.Add(time.Minute),
		IsVoice:     true,
	}
	if err := store.SaveMessage(ctx, withTranscript); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}
	if err := store.SaveMessage(ctx, withoutTranscript); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	msgs, err := store.GetRecentMessagesInChat(ctx, 400, 10)
	if err != nil {
		t.Fatalf("GetRecentMessagesInChat failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Newest first: the one without a transcript comes back first.
	if msgs[0].Transcription.Valid {
		t.Error("failed transcription should be stored as NULL")
	}
	if !msgs[1].IsVoice || msgs[1].Transcription.String != "hello there" {
		t.Errorf("transcript did not round-trip: %+v", msgs[1])
	}
}

func TestBusinessConnectionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	conn := &BusinessConnection{ConnectionID: "conn-1", UserID: 10, UserChatID: 11, IsActive: true}
	if err := store.SaveBusinessConnection(ctx, conn); err != nil {
		t.Fatalf("SaveBusinessConnection failed: %v", err)
	}

	got, err := store.GetBusinessConnection(ctx, "conn-1")
	if err != nil {
		t.Fatalf("GetBusinessConnection failed: %v", err)
	}
	if got == nil || got.UserID != 10 {
		t.Fatalf("unexpected connection: %+v", got)
	}

	if err := store.DeactivateBusinessConnection(ctx, "conn-1"); err != nil {
		t.Fatalf("DeactivateBusinessConnection failed: %v", err)
	}

	got, err = store.GetBusinessConnection(ctx, "conn-1")
	if err != nil {
		t.Fatalf("GetBusinessConnection failed: %v", err)
	}
	if got != nil {
		t.Errorf("deactivated connection should not be returned, got %+v", got)
	}

	// Re-enabling the same connection reactivates the row.
	if err := store.SaveBusinessConnection(ctx, conn); err != nil {
		t.Fatalf("SaveBusinessConnection failed: %v", err)
	}
	got, err = store.GetBusinessConnection(ctx, "conn-1")
	if err != nil {
		t.Fatalf("GetBusinessConnection failed: %v", err)
	}
	if got == nil {
		t.Error("re-saved connection should be active again")
	}
}

func TestChatListingByType(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	chats := []Chat{
		{ChatID: 1, ChatType: ChatTypePrivate, Title: sql.NullString{String: "Alice", Valid: true}},
		{ChatID: 2, ChatType: ChatTypeGroup, Title: sql.NullString{String: "Team", Valid: true}},
		{ChatID: 3, ChatType: ChatTypePrivate, Title: sql.NullString{String: "Bob", Valid: true}},
	}
	for i := range chats {
		if err := store.UpsertChat(ctx, &chats[i]); err != nil {
			t.Fatalf("UpsertChat failed: %v", err)
		}
	}

	private, err := store.GetChatsByType(ctx, ChatTypePrivate, 10)
	if err != nil {
		t.Fatalf("GetChatsByType failed: %v", err)
	}
	if len(private) != 2 {
		t.Errorf("got %d private chats, want 2", len(private))
	}

	channels, err := store.GetChatsByType(ctx, ChatTypeChannel, 10)
	if err != nil {
		t.Fatalf("GetChatsByType failed: %v", err)
	}
	if len(channels) != 0 {
		t.Errorf("got %d channels, want 0", len(channels))
	}
}

func TestAnalysisResults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)

	result := &AnalysisResult{ChatID: 500, UserID: 9, AnalysisType: "summary", ResultText: "all good"}
	if err := store.SaveAnalysisResult(ctx, result); err != nil {
		t.Fatalf("SaveAnalysisResult failed: %v", err)
	}

	results, err := store.GetRecentAnalysisResults(ctx, 500, 5)
	if err != nil {
		t.Fatalf("GetRecentAnalysisResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].AnalysisType != "summary" || results[0].ResultText != "all good" {
		t.Errorf("unexpected result: %+v", results[0])
	}
}
