// Package llm содержит клиенты внешнего сервиса понимания текста,
// который группирует блоки договора в клаузы.
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// BlockPreview - блок в том виде, в каком его видит сервис (текст может быть обрезан)
type BlockPreview struct {
	ID          string `json:"id"`
	TextPreview string `json:"textPreview"`
}

// Request - один запрос сегментации на батч блоков
type Request struct {
	SystemInstruction string
	Blocks            []BlockPreview
	ContractName      string
}

// Service - внешний сервис сегментации. Возвращает сырой текст ответа,
// разбор и валидация - забота вызывающей стороны
type Service interface {
	Segment(ctx context.Context, req Request) (string, error)
	Name() string
}

// BuildUserPrompt сериализует блоки батча в пользовательское сообщение
func BuildUserPrompt(req Request) (string, error) {
	payload := struct {
		ContractName string         `json:"contractName,omitempty"`
		Blocks       []BlockPreview `json:"blocks"`
	}{
		ContractName: req.ContractName,
		Blocks:       req.Blocks,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal blocks: %w", err)
	}
	return string(data), nil
}

// CacheKey - ключ ответа для конкретной модели и содержимого запроса
func CacheKey(model string, req Request) (string, error) {
	user, err := BuildUserPrompt(req)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(req.SystemInstruction))
	h.Write([]byte{0})
	h.Write([]byte(user))
	return "clause_lens:segment:" + hex.EncodeToString(h.Sum(nil)), nil
}
