package handlers

import (
	"context"
	"fmt"

	"github.com/mbvolkov/chatsage/internal/database"
	"github.com/mbvolkov/chatsage/internal/gemini"
)

// analysisRequest describes one analysis invocation: a target chat, a mode,
// and for the custom mode the user's free-text question.
type analysisRequest struct {
	ChatID int64
	UserID int64
	Mode   string
	Query  string
}

// analysisTitles maps fixed modes to the human title prefixed to the result.
// The custom mode renders untitled; unmapped modes fall back to a generic one.
var analysisTitles = map[string]string{
	gemini.ModeSummary:   "📊 Resume",
	gemini.ModeInsights:  "💡 Key insights",
	gemini.ModeTopics:    "📝 Main topics",
	gemini.ModeSentiment: "😊 Sentiment",
}

// runAnalysis performs one analysis end to end, transport aside: it fetches
// bounded recent history, invokes the analysis service, persists the result
// row, and returns the rendered output. onAnalyzing, if non-nil, fires after
// the history check passes and before the service call, so callers can show
// a progress notice only when work is actually about to happen.
//
// Errors: ErrNoHistory when the chat has no stored messages (no result row
// is written), ErrAnalysisService wrapping any service failure. One attempt
// per call; retries are not performed at this layer.
func runAnalysis(ctx context.Context, deps HandlerDeps, req analysisRequest, onAnalyzing func()) (string, error) {
	log := deps.Logger.With("component", "analysis", "chat_id", req.ChatID, "mode", req.Mode)

	messages, err := deps.Store.GetRecentMessagesInChat(ctx, req.ChatID, deps.Config.Database.HistoryLimit)
	if err != nil {
		return "", fmt.Errorf("failed to load chat history: %w", err)
	}
	if len(messages) == 0 {
		log.InfoContext(ctx, "Analysis requested for chat without history")
		return "", ErrNoHistory
	}

	if onAnalyzing != nil {
		onAnalyzing()
	}

	var result string
	if req.Mode == gemini.ModeCustom {
		result, err = deps.GeminiClient.CustomAnalyze(ctx, messages, req.Query)
	} else {
		result, err = deps.GeminiClient.Analyze(ctx, messages, req.Mode)
	}
	if err != nil {
		log.ErrorContext(ctx, "Analysis service call failed", "error", err)
		return "", fmt.Errorf("%w: %v", ErrAnalysisService, err)
	}

	row := &database.AnalysisResult{
		ChatID:       req.ChatID,
		UserID:       req.UserID,
		AnalysisType: req.Mode,
		ResultText:   result,
	}
	if err := deps.Store.SaveAnalysisResult(ctx, row); err != nil {
		log.ErrorContext(ctx, "Failed to persist analysis result", "error", err)
		return "", fmt.Errorf("failed to persist analysis result: %w", err)
	}

	log.InfoContext(ctx, "Analysis completed", "message_count", len(messages), "result_length", len(result))
	return renderAnalysisResult(req.Mode, result), nil
}

// renderAnalysisResult prefixes the result with its mode title.
func renderAnalysisResult(mode, result string) string {
	if mode == gemini.ModeCustom {
		return result
	}
	title, ok := analysisTitles[mode]
	if !ok {
		title = "📊 Analysis result"
	}
	return fmt.Sprintf("%s:\n\n%s", title, result)
}
