package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"clause_lens/internal/config"
	"clause_lens/internal/logger"
)

// EnsureOllamaModel проверяет, что Ollama запущена и модель эмбеддингов скачана; иначе скачивает её
func EnsureOllamaModel(ctx context.Context, cfg config.OllamaConfig, client *http.Client, log *logger.Logger) error {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = logger.Nop()
	}
	base := strings.TrimRight(cfg.URL, "/")

	// 1. Ollama запущена и отдаёт список моделей
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("ollama is not running or not reachable at %s: %w", cfg.URL, err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil || resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama is not running or not reachable at %s", cfg.URL)
	}

	// 2. Модель уже есть
	if bytes.Contains(body, []byte(cfg.EmbedModel)) {
		log.Info("Model is available", "model", cfg.EmbedModel)
		return nil
	}

	// 3. Скачиваем
	log.Info("Model not found, pulling...", "model", cfg.EmbedModel)
	payload, err := json.Marshal(struct {
		Name   string `json:"name"`
		Stream bool   `json:"stream"`
	}{Name: cfg.EmbedModel, Stream: false})
	if err != nil {
		return fmt.Errorf("failed to marshal pull request: %w", err)
	}
	pullReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/api/pull", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	pullReq.Header.Set("Content-Type", "application/json")

	pullResp, err := client.Do(pullReq)
	if err != nil {
		return fmt.Errorf("failed to pull model %s: %w", cfg.EmbedModel, err)
	}
	defer pullResp.Body.Close()
	if pullResp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to pull model %s: status %d", cfg.EmbedModel, pullResp.StatusCode)
	}
	log.Info("Model pulled successfully", "model", cfg.EmbedModel)
	return nil
}
