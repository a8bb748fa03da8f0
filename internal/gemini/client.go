// Package gemini implements integration with Google's Gemini AI API. It
// covers both chat-history analysis and voice-message transcription.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/mbvolkov/chatsage/internal/config"
	"github.com/mbvolkov/chatsage/internal/database"
)

// Client defines the interface for AI operations used throughout the
// application.
type Client interface {
	// Analyze runs one of the fixed analysis modes over the given messages.
	// Messages are passed in the order they were retrieved (newest first).
	Analyze(ctx context.Context, messages []database.Message, mode string) (string, error)

	// CustomAnalyze answers a free-form user question about the given messages.
	CustomAnalyze(ctx context.Context, messages []database.Message, query string) (string, error)

	// Transcribe converts a voice recording to text.
	Transcribe(ctx context.Context, audioData []byte, mimeType string) (string, error)
}

type sdkClient struct {
	genaiClient      *genai.Client
	log              *slog.Logger
	contentConfig    *genai.GenerateContentConfig
	defaultModelName string
	maxRetries       int
	retryDelay       time.Duration
}

// NewClient creates a new Gemini AI client with the provided configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig, log *slog.Logger) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	gi, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	baseCfg := &genai.GenerateContentConfig{
		Temperature: &cfg.Temperature,

		SafetySettings: []*genai.SafetySetting{
			{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockThresholdBlockNone},
			{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockThresholdBlockNone},
		},
	}

	logger := log.With("component", "gemini_client")
	logger.Info("Gemini client initialized successfully", "model", cfg.ModelName)
	return &sdkClient{
		genaiClient:      gi,
		log:              logger,
		contentConfig:    baseCfg,
		defaultModelName: cfg.ModelName,
		maxRetries:       cfg.MaxRetries,
		retryDelay:       time.Duration(cfg.RetryDelaySeconds) * time.Second,
	}, nil
}

// formatMessageForAI renders one stored message as a history line. Voice
// messages contribute their transcript when one exists.
func formatMessageForAI(m *database.Message) string {
	content := m.Text.String
	if m.IsVoice {
		if m.Transcription.Valid {
			content = m.Transcription.String
		} else {
			content = "[voice message without transcript]"
		}
	}
	return fmt.Sprintf("[%s] UID %d: %s", m.MessageDate.Format("2006-01-02 15:04:05"), m.UserID, content)
}

func (c *sdkClient) generateContentWithRetries(ctx context.Context, modelName string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	var resp *genai.GenerateContentResponse
	var err error

	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.genaiClient.Models.GenerateContent(ctx, modelName, contents, cfg)
		if err == nil {
			return resp, nil
		}

		c.log.WarnContext(ctx, "Gemini API call failed, checking for retry", "attempt", i+1, "max_retries", c.maxRetries, "error", err)

		var genAiAPIError *genai.APIError
		if errors.As(err, &genAiAPIError) && (genAiAPIError.Code == 500 || genAiAPIError.Code == 503) { // Retriable HTTP codes
			if i < c.maxRetries {
				c.log.InfoContext(ctx, "Retrying Gemini API call due to retriable APIError", "delay", c.retryDelay, "code", genAiAPIError.Code)
				time.Sleep(c.retryDelay)
				continue
			}
			c.log.ErrorContext(ctx, "Gemini API call failed after max retries with APIError", "error", err, "code", genAiAPIError.Code)
			return nil, fmt.Errorf("gemini API call failed after %d retries (APIError code %d): %w", c.maxRetries, genAiAPIError.Code, err)
		}

		c.log.ErrorContext(ctx, "Gemini API call failed with non-retriable error", "error", err)
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	return nil, err
}

// Analyze runs one of the fixed analysis modes over the given messages.
func (c *sdkClient) Analyze(ctx context.Context, messages []database.Message, mode string) (string, error) {
	c.log.DebugContext(ctx, "Generating analysis", "mode", mode, "message_count", len(messages))

	instruction, ok := analysisInstructions[mode]
	if !ok {
		return "", fmt.Errorf("unknown analysis mode %q", mode)
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: instruction}}}

	contents := []*genai.Content{genai.NewContentFromText(renderHistory(messages), genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini analysis failed", "mode", mode, "error", err)
		return "", fmt.Errorf("analysis (%s) failed: %w", mode, err)
	}

	return c.extractTextFromResponse(ctx, resp, "analysis")
}

// CustomAnalyze answers a free-form user question about the given messages.
func (c *sdkClient) CustomAnalyze(ctx context.Context, messages []database.Message, query string) (string, error) {
	c.log.DebugContext(ctx, "Generating custom analysis", "message_count", len(messages), "query_length", len(query))

	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("custom analysis query is empty")
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: CustomAnalysisInstruction}}}

	var sb strings.Builder
	sb.WriteString(renderHistory(messages))
	sb.WriteString("\n\nQuestion: ")
	sb.WriteString(query)

	contents := []*genai.Content{genai.NewContentFromText(sb.String(), genai.RoleUser)}

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini custom analysis failed", "error", err)
		return "", fmt.Errorf("custom analysis failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp, "custom_analysis")
}

// Transcribe converts a voice recording to text.
func (c *sdkClient) Transcribe(ctx context.Context, audioData []byte, mimeType string) (string, error) {
	c.log.DebugContext(ctx, "Transcribing audio", "size", len(audioData), "mime_type", mimeType)

	if len(audioData) == 0 || mimeType == "" {
		return "", fmt.Errorf("audio data and MIME type are required for transcription")
	}

	copyCfg := *c.contentConfig
	copyCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: TranscriptionInstruction}}}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{genai.NewPartFromBytes(audioData, mimeType)}, genai.RoleUser),
	}

	resp, err := c.generateContentWithRetries(ctx, c.defaultModelName, contents, &copyCfg)
	if err != nil {
		c.log.ErrorContext(ctx, "Gemini transcription failed", "error", err)
		return "", fmt.Errorf("transcription failed: %w", err)
	}

	return c.extractTextFromResponse(ctx, resp, "transcription")
}

// renderHistory joins messages into one history block, preserving the
// retrieved order.
func renderHistory(messages []database.Message) string {
	var sb strings.Builder
	sb.WriteString("Chat history (most recent first):\n")
	for i := range messages {
		sb.WriteString(formatMessageForAI(&messages[i]))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (c *sdkClient) extractTextFromResponse(ctx context.Context, resp *genai.GenerateContentResponse, op string) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		reasonMsg := fmt.Sprintf("%v", resp.PromptFeedback.BlockReason)
		if resp.PromptFeedback.BlockReasonMessage != "" {
			reasonMsg = resp.PromptFeedback.BlockReasonMessage
		}
		c.log.ErrorContext(ctx, "Gemini request blocked", "operation", op, "reason", reasonMsg)
		return "", fmt.Errorf("%s blocked by safety filter: %s", op, reasonMsg)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		finishReason := "unknown"
		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonUnspecified {
			finishReason = fmt.Sprintf("%v", resp.Candidates[0].FinishReason)
		}
		c.log.WarnContext(ctx, "Gemini response missing candidates or content", "operation", op, "finish_reason", finishReason)

		if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != genai.FinishReasonStop {
			return "", fmt.Errorf("%s returned no content, finish reason: %s", op, finishReason)
		}
		return "", fmt.Errorf("%s returned empty content", op)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		c.log.WarnContext(ctx, "Gemini response text is empty", "operation", op)
		return "", fmt.Errorf("%s returned empty text", op)
	}

	return text, nil
}
