package handlers

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/mbvolkov/chatsage/internal/config"
	"github.com/mbvolkov/chatsage/internal/database"
	"github.com/mbvolkov/chatsage/internal/gemini"
)

// fakeGemini implements gemini.Client with canned responses and call counters.
type fakeGemini struct {
	analyzeResult string
	analyzeErr    error
	customResult  string
	customErr     error
	transcript    string
	transcribeErr error

	analyzeCalls    int
	customCalls     int
	transcribeCalls int
	lastMode        string
	lastQuery       string
	lastMime        string
}

func (f *fakeGemini) Analyze(_ context.Context, _ []database.Message, mode string) (string, error) {
	f.analyzeCalls++
	f.lastMode = mode
	return f.analyzeResult, f.analyzeErr
}

func (f *fakeGemini) CustomAnalyze(_ context.Context, _ []database.Message, query string) (string, error) {
	f.customCalls++
	f.lastQuery = query
	return f.customResult, f.customErr
}

func (f *fakeGemini) Transcribe(_ context.Context, _ []byte, mimeType string) (string, error) {
	f.transcribeCalls++
	f.lastMime = mimeType
	return f.transcript, f.transcribeErr
}

func newTestDeps(t *testing.T, client gemini.Client) HandlerDeps {
	t.Helper()

	db, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	if err := database.ApplyMigrations(db.DB, "test"); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{}
	cfg.Telegram.Token = "123:test"
	cfg.Database.HistoryLimit = 300
	cfg.Database.ChatListLimit = 10
	cfg.Messages = config.MessagesConfig{
		MainMenu:              "📱 Main menu:",
		ChooseAction:          "Choose an action:",
		AskCustomQuery:        "❓ Ask your question about the conversation:",
		Transcribing:          "🎤 Transcribing voice message...",
		TranscriptHeader:      "📝 Transcript:",
		Analyzing:             "🤔 Analyzing the conversation...",
		NoHistory:             "❌ No messages to analyze",
		TranscriptionErrorFmt: "❌ Failed to process voice message: %s",
		AnalysisErrorFmt:      "❌ Analysis failed: %s",
		GeneralError:          "❌ An error occurred. Please try again later.",
	}

	return HandlerDeps{
		Logger:       log,
		Config:       cfg,
		Store:        database.NewStore(db, log),
		GeminiClient: client,
		Pending:      NewPendingQueries(),
	}
}

func seedHistory(t *testing.T, deps HandlerDeps, chatID int64, texts ...string) {
	t.Helper()
	ctx := context.Background()

	if err := deps.Store.UpsertChat(ctx, &database.Chat{ChatID: chatID, ChatType: database.ChatTypePrivate}); err != nil {
		t.Fatalf("UpsertChat failed: %v", err)
	}
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, text := range texts {
		msg := &database.Message{
			ChatID:      chatID,
			UserID:      1,
			Text:        sql.NullString{String: text, Valid: true},
			MessageDate: base.Add(time.Duration(i) * time.Minute),
		}
		if err := deps.Store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("SaveMessage failed: %v", err)
		}
	}
}

func TestRunAnalysisNoHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeGemini{analyzeResult: "should not be used"}
	deps := newTestDeps(t, fake)

	if err := deps.Store.UpsertChat(ctx, &database.Chat{ChatID: 10, ChatType: database.ChatTypePrivate}); err != nil {
		t.Fatalf("UpsertChat failed: %v", err)
	}

	notified := false
	_, err := runAnalysis(ctx, deps, analysisRequest{ChatID: 10, UserID: 1, Mode: gemini.ModeSummary}, func() { notified = true })
	if !errors.Is(err, ErrNoHistory) {
		t.Fatalf("got error %v, want ErrNoHistory", err)
	}
	if notified {
		t.Error("progress callback fired for a chat without history")
	}
	if fake.analyzeCalls != 0 {
		t.Error("analysis service called for a chat without history")
	}

	results, err := deps.Store.GetRecentAnalysisResults(ctx, 10, 5)
	if err != nil {
		t.Fatalf("GetRecentAnalysisResults failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d result rows, want 0", len(results))
	}
}

func TestRunAnalysisFixedMode(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeGemini{analyzeResult: "a tidy summary"}
	deps := newTestDeps(t, fake)
	seedHistory(t, deps, 20, "hi", "how are you", "fine thanks")

	notified := 0
	out, err := runAnalysis(ctx, deps, analysisRequest{ChatID: 20, UserID: 1, Mode: gemini.ModeSummary}, func() { notified++ })
	if err != nil {
		t.Fatalf("runAnalysis failed: %v", err)
	}
	if notified != 1 {
		t.Errorf("progress callback fired %d times, want 1", notified)
	}
	if fake.lastMode != gemini.ModeSummary {
		t.Errorf("service called with mode %q, want %q", fake.lastMode, gemini.ModeSummary)
	}
	if !strings.Contains(out, "📊 Resume") || !strings.Contains(out, "a tidy summary") {
		t.Errorf("rendered output missing title or result: %q", out)
	}

	results, err := deps.Store.GetRecentAnalysisResults(ctx, 20, 5)
	if err != nil {
		t.Fatalf("GetRecentAnalysisResults failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d result rows, want 1", len(results))
	}
	if results[0].AnalysisType != gemini.ModeSummary || results[0].ResultText != "a tidy summary" {
		t.Errorf("unexpected persisted result: %+v", results[0])
	}
}

func TestRunAnalysisCustomQuery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeGemini{customResult: "42"}
	deps := newTestDeps(t, fake)
	seedHistory(t, deps, 30, "the answer is 42")

	out, err := runAnalysis(ctx, deps, analysisRequest{ChatID: 30, UserID: 2, Mode: gemini.ModeCustom, Query: "what is the answer?"}, nil)
	if err != nil {
		t.Fatalf("runAnalysis failed: %v", err)
	}
	if fake.customCalls != 1 || fake.analyzeCalls != 0 {
		t.Errorf("custom=%d analyze=%d, want custom path only", fake.customCalls, fake.analyzeCalls)
	}
	if fake.lastQuery != "what is the answer?" {
		t.Errorf("service got query %q", fake.lastQuery)
	}
	// Custom answers are rendered without a mode title.
	if out != "42" {
		t.Errorf("rendered output = %q, want %q", out, "42")
	}

	results, err := deps.Store.GetRecentAnalysisResults(ctx, 30, 5)
	if err != nil {
		t.Fatalf("GetRecentAnalysisResults failed: %v", err)
	}
	if len(results) != 1 || results[0].AnalysisType != gemini.ModeCustom {
		t.Fatalf("unexpected result rows: %+v", results)
	}
}

func TestRunAnalysisServiceFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fake := &fakeGemini{analyzeErr: errors.New("boom")}
	deps := newTestDeps(t, fake)
	seedHistory(t, deps, 40, "hello")

	_, err := runAnalysis(ctx, deps, analysisRequest{ChatID: 40, UserID: 1, Mode: gemini.ModeTopics}, nil)
	if !errors.Is(err, ErrAnalysisService) {
		t.Fatalf("got error %v, want ErrAnalysisService", err)
	}

	results, err := deps.Store.GetRecentAnalysisResults(ctx, 40, 5)
	if err != nil {
		t.Fatalf("GetRecentAnalysisResults failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("failed analysis must not persist a result row, got %d", len(results))
	}
}

func TestRenderAnalysisResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mode   string
		result string
		want   string
	}{
		{"summary gets title", gemini.ModeSummary, "text", "📊 Resume:\n\ntext"},
		{"topics gets title", gemini.ModeTopics, "text", "📝 Main topics:\n\ntext"},
		{"custom stays raw", gemini.ModeCustom, "text", "text"},
		{"unknown mode gets fallback", "other", "text", "📊 Analysis result:\n\ntext"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := renderAnalysisResult(tt.mode, tt.result); got != tt.want {
				t.Errorf("renderAnalysisResult(%q) = %q, want %q", tt.mode, got, tt.want)
			}
		})
	}
}
