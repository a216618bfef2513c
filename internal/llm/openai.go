package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clause_lens/internal/config"
	"clause_lens/internal/logger"
)

const maxBackoff = 10 * time.Second

// OpenAI - клиент OpenAI-совместимого chat/completions API
type OpenAI struct {
	cfg        config.LLMConfig
	httpClient *http.Client
	log        *logger.Logger
	backoff    time.Duration // первая пауза между повторами, дальше удваивается
}

// NewOpenAI создаёт клиент OpenAI-совместимого сервиса
func NewOpenAI(cfg config.LLMConfig, log *logger.Logger) *OpenAI {
	return &OpenAI{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log.With("service", "openai"),
		backoff:    time.Second,
	}
}

func (c *OpenAI) Name() string {
	return "openai:" + c.cfg.Model
}

// Segment отправляет батч в LLM и возвращает текст ответа.
// Временные ошибки (429, 5xx, сеть) повторяются с экспоненциальной паузой
func (c *OpenAI) Segment(ctx context.Context, req Request) (string, error) {
	user, err := BuildUserPrompt(req)
	if err != nil {
		return "", err
	}

	// Формируем запрос в OpenAI-compatible формате
	reqBody := map[string]interface{}{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "system", "content": req.SystemInstruction},
			{"role": "user", "content": user},
		},
		"max_tokens":      c.cfg.MaxTokens,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]string{"type": "json_object"},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		content, err := c.doOnce(ctx, jsonData)
		if err == nil {
			return content, nil
		}
		if !isRetryable(err) || attempt >= c.cfg.MaxRetries {
			return "", err
		}

		sleepFor := backoff
		var httpErr *HTTPError
		if errors.As(err, &httpErr) && httpErr.retryAfter > 0 {
			sleepFor = httpErr.retryAfter
		}
		sleepFor = min(sleepFor, maxBackoff)

		c.log.Warn("LLM request retrying",
			"attempt", attempt+1,
			"max_retries", c.cfg.MaxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}
}

func (c *OpenAI) doOnce(ctx context.Context, body []byte) (string, error) {
	// Создаём HTTP запрос
	url := strings.TrimRight(c.cfg.URL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Key != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: string(raw), retryAfter: retryAfter(resp)}
	}

	// Парсим ответ
	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", ErrNoChoices
	}

	return response.Choices[0].Message.Content, nil
}
