package moderation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"tourism_media/internal/domain/models"
	"tourism_media/internal/lib/logger/sl"
	"tourism_media/internal/metrics"
)

const maxResponseSize = 1 << 20

type scoreRequest struct {
	Image    string `json:"image"`
	MimeType string `json:"mime_type"`
	Text     string `json:"text,omitempty"`
}

type scoreResponse struct {
	Score      *float64                    `json:"score"`
	Categories models.ModerationCategories `json:"categories"`
	TextFlags  []string                    `json:"text_flags"`
}

// HTTPScorer обращается к сервису модерации по HTTP
type HTTPScorer struct {
	log        *slog.Logger
	httpClient *http.Client
	endpoint   string
	apiKey     string
	timeout    time.Duration
}

func NewHTTPScorer(log *slog.Logger, endpoint, apiKey string, timeout time.Duration) *HTTPScorer {
	return &HTTPScorer{
		log: log.With(slog.String("component", "moderation_client")),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
			},
		},
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   apiKey,
		timeout:  timeout,
	}
}

// Score любая ошибка транспорта, статуса или формата ответа
// превращается в ErrModerationUnavailable
func (s *HTTPScorer) Score(ctx context.Context, img Image) (models.ModerationResult, error) {
	const op = "moderation.HTTPScorer.Score"

	start := time.Now()
	defer func() {
		metrics.ModerationRequestDuration.Observe(time.Since(start).Seconds())
	}()

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	result, err := s.score(ctx, img)
	if err != nil {
		metrics.ModerationFailuresTotal.Inc()
		s.log.Warn("moderation request failed", slog.String("op", op), sl.Err(err))
		return models.ModerationResult{}, fmt.Errorf("%s: %w: %w", op, models.ErrModerationUnavailable, err)
	}

	return result, nil
}

func (s *HTTPScorer) score(ctx context.Context, img Image) (models.ModerationResult, error) {
	body, err := json.Marshal(scoreRequest{
		Image:    base64.StdEncoding.EncodeToString(img.Data),
		MimeType: img.MimeType,
		Text:     img.Text,
	})
	if err != nil {
		return models.ModerationResult{}, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return models.ModerationResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return models.ModerationResult{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.ModerationResult{}, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed scoreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&parsed); err != nil {
		return models.ModerationResult{}, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Score == nil {
		return models.ModerationResult{}, fmt.Errorf("response without score")
	}

	result := models.ModerationResult{
		Score:      *parsed.Score,
		Categories: parsed.Categories,
		TextFlags:  parsed.TextFlags,
	}
	if err := result.Validate(); err != nil {
		return models.ModerationResult{}, err
	}

	return result, nil
}
