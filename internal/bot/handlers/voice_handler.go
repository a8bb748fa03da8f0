package handlers

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-telegram/bot"

	"github.com/mbvolkov/chatsage/internal/database"
)

const voiceDownloadTimeout = 30 * time.Second

// downloadFunc retrieves the raw bytes of a voice attachment by file ID.
type downloadFunc func(ctx context.Context, fileID string) (data []byte, mimeType string, err error)

// voiceJob carries everything the transcription pipeline needs about one
// inbound voice event.
type voiceJob struct {
	ChatID    int64
	ChatType  string
	Title     string
	UserID    int64
	FileID    string
	Timestamp time.Time
}

// runVoicePipeline implements the transcription pipeline, transport aside:
// chat upsert, the cost-avoidance short-circuit when transcription is off,
// download, speech-to-text, and persistence. onTranscribing, if non-nil,
// fires right before the download starts.
//
// Returns skipped=true when transcription is disabled for the chat (the
// message is persisted without a transcript and nothing is rendered). On a
// download or transcription failure the message is still persisted without
// a transcript and the error wraps ErrTranscription.
func runVoicePipeline(ctx context.Context, deps HandlerDeps, job voiceJob, download downloadFunc, onTranscribing func()) (transcript string, skipped bool, err error) {
	log := deps.Logger.With("component", "voice_pipeline", "chat_id", job.ChatID, "user_id", job.UserID)

	if err := upsertChatForJob(ctx, deps, job); err != nil {
		return "", false, err
	}

	enabled, err := deps.Store.IsTranscriptionEnabled(ctx, job.ChatID)
	if err != nil {
		return "", false, fmt.Errorf("failed to check transcription flag: %w", err)
	}
	if !enabled {
		log.DebugContext(ctx, "Transcription disabled for chat, storing voice message without transcript")
		if err := saveVoiceMessage(ctx, deps, job, nil); err != nil {
			return "", false, err
		}
		return "", true, nil
	}

	if onTranscribing != nil {
		onTranscribing()
	}

	audio, mimeType, err := download(ctx, job.FileID)
	if err != nil {
		log.ErrorContext(ctx, "Voice download failed", "file_id", job.FileID, "error", err)
		if saveErr := saveVoiceMessage(ctx, deps, job, nil); saveErr != nil {
			log.ErrorContext(ctx, "Failed to persist voice message after download failure", "error", saveErr)
		}
		return "", false, fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	transcript, err = deps.GeminiClient.Transcribe(ctx, audio, mimeType)
	if err != nil {
		log.ErrorContext(ctx, "Transcription service call failed", "error", err)
		if saveErr := saveVoiceMessage(ctx, deps, job, nil); saveErr != nil {
			log.ErrorContext(ctx, "Failed to persist voice message after transcription failure", "error", saveErr)
		}
		return "", false, fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	if err := saveVoiceMessage(ctx, deps, job, &transcript); err != nil {
		return "", false, err
	}

	log.InfoContext(ctx, "Voice message transcribed", "transcript_length", len(transcript))
	return transcript, false, nil
}

func upsertChatForJob(ctx context.Context, deps HandlerDeps, job voiceJob) error {
	chat := &database.Chat{
		ChatID:   job.ChatID,
		ChatType: job.ChatType,
		Title:    sql.NullString{String: job.Title, Valid: job.Title != ""},
	}
	if err := deps.Store.UpsertChat(ctx, chat); err != nil {
		return fmt.Errorf("failed to upsert chat: %w", err)
	}
	return nil
}

func saveVoiceMessage(ctx context.Context, deps HandlerDeps, job voiceJob, transcript *string) error {
	msg := &database.Message{
		ChatID:      job.ChatID,
		UserID:      job.UserID,
		MessageDate: job.Timestamp,
		IsVoice:     true,
	}
	if transcript != nil {
		msg.Transcription = sql.NullString{String: *transcript, Valid: true}
	}
	if err := deps.Store.SaveMessage(ctx, msg); err != nil {
		return fmt.Errorf("failed to save voice message: %w", err)
	}
	return nil
}

// newVoiceDownloader returns the production downloadFunc: it resolves the
// file path via the Bot API and fetches the payload through a temporary
// file that is removed on every exit path.
func newVoiceDownloader(b *bot.Bot, token string, log *slog.Logger) downloadFunc {
	return func(ctx context.Context, fileID string) (data []byte, mimeType string, err error) {
		if fileID == "" {
			return nil, "", fmt.Errorf("empty fileID provided")
		}

		downloadCtx, cancel := context.WithTimeout(ctx, voiceDownloadTimeout)
		defer cancel()

		fileObj, err := b.GetFile(downloadCtx, &bot.GetFileParams{FileID: fileID})
		if err != nil {
			return nil, "", fmt.Errorf("failed to get file info from Telegram: %w", err)
		}
		if fileObj.FilePath == "" {
			return nil, "", fmt.Errorf("empty file path returned from Telegram")
		}

		url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", token, fileObj.FilePath)
		req, err := http.NewRequestWithContext(downloadCtx, http.MethodGet, url, nil)
		if err != nil {
			return nil, "", fmt.Errorf("failed to create request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("failed to download file: %w", err)
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
				err = fmt.Errorf("failed to close response body: %w", closeErr)
			}
		}()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("unexpected status code %d", resp.StatusCode)
		}

		tmp, err := os.CreateTemp("", "voice_*.ogg")
		if err != nil {
			return nil, "", fmt.Errorf("failed to create temp file: %w", err)
		}
		tmpName := tmp.Name()
		defer func() {
			if removeErr := os.Remove(tmpName); removeErr != nil {
				log.Warn("Failed to remove temp voice file", "path", tmpName, "error", removeErr)
			}
		}()

		if _, err := io.Copy(tmp, io.LimitReader(resp.Body, 20*1024*1024)); err != nil {
			_ = tmp.Close()
			return nil, "", fmt.Errorf("failed to write voice payload: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return nil, "", fmt.Errorf("failed to close temp file: %w", err)
		}

		data, err = os.ReadFile(tmpName)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read voice payload: %w", err)
		}
		if len(data) == 0 {
			return nil, "", fmt.Errorf("received empty file data")
		}

		mimeType = "audio/ogg"
		if detected := http.DetectContentType(data); detected != "application/octet-stream" {
			mimeType = detected
		}
		return data, mimeType, nil
	}
}
