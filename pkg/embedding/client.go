// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ragchat-go/internal/apperr"
	"ragchat-go/internal/config"
	"ragchat-go/pkg/httpretry"
	"ragchat-go/pkg/log"
)

// Client defines the interface for an embedding client.
type Client interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
	policy httpretry.Policy
}

// NewClient creates a new embedding client for an OpenAI-compatible API.
func NewClient(cfg config.EmbeddingConfig) Client {
	policy := httpretry.DefaultPolicy()
	if cfg.Retry.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.BaseBackoffMS > 0 {
		policy.BaseBackoff = time.Duration(cfg.Retry.BaseBackoffMS) * time.Millisecond
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{},
		policy: policy,
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// CreateEmbedding calls the embeddings API to get the vector for a given text.
// 空白文本直接拒绝；返回向量的维度必须等于配置的维度，否则视为模型/配置漂移。
func (c *openAICompatibleClient) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: embedding input is empty", apperr.ErrInvalidInput)
	}

	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_len: %d", c.cfg.Model, len(text))
	reqBody := embeddingRequest{
		Model:      c.cfg.Model,
		Input:      []string{text},
		Dimensions: c.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	resp, err := httpretry.Do(ctx, c.client, c.policy, func() (*http.Request, error) {
		req, err := http.NewRequest("POST", c.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		return req, nil
	})
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, fmt.Errorf("%w: embedding api returned status %s", apperr.ErrProviderUnavailable, resp.Status)
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embeddingResp.Data) == 0 || len(embeddingResp.Data[0].Embedding) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, fmt.Errorf("%w: received empty embedding from api", apperr.ErrProviderUnavailable)
	}

	vector := embeddingResp.Data[0].Embedding
	if c.cfg.Dimensions > 0 && len(vector) != c.cfg.Dimensions {
		log.Errorf("[EmbeddingClient] 向量维度不一致, 期望 %d, 实际 %d", c.cfg.Dimensions, len(vector))
		return nil, fmt.Errorf("%w: expected %d, got %d", apperr.ErrDimensionMismatch, c.cfg.Dimensions, len(vector))
	}

	log.Infof("[EmbeddingClient] 成功从 Embedding API 获取向量, 维度: %d", len(vector))
	return vector, nil
}
