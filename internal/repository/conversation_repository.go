// Package repository 提供了数据访问层的实现。
package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"ragchat-go/internal/model"
)

// 对话历史保留 7 天，单个对话只保留最近 N 条消息（由 service 层配置）。
const conversationTTL = 7 * 24 * time.Hour

// ConversationRepository 定义了对话历史记录的操作接口。
// 历史保存在 Redis 而非进程内存中，服务实例水平扩容时不会丢失上下文。
type ConversationRepository interface {
	NewConversationID() string
	GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error)
	AppendTurn(ctx context.Context, conversationID string, question, answer string, historyLimit int) error
}

type redisConversationRepository struct {
	redisClient *redis.Client
}

// NewConversationRepository 创建一个新的 ConversationRepository 实例。
func NewConversationRepository(redisClient *redis.Client) ConversationRepository {
	return &redisConversationRepository{redisClient: redisClient}
}

// NewConversationID 生成一个新的对话 ID。
func (r *redisConversationRepository) NewConversationID() string {
	return fmt.Sprintf("conv-%d", time.Now().UnixNano())
}

// GetConversationHistory 从 Redis 获取对话历史记录。
func (r *redisConversationRepository) GetConversationHistory(ctx context.Context, conversationID string) ([]model.ChatMessage, error) {
	key := fmt.Sprintf("conversation:%s", conversationID)
	jsonData, err := r.redisClient.Get(ctx, key).Result()
	if err == redis.Nil {
		return []model.ChatMessage{}, nil // No history yet
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation history: %w", err)
	}
	var messages []model.ChatMessage
	if err := json.Unmarshal([]byte(jsonData), &messages); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conversation history: %w", err)
	}
	return messages, nil
}

// AppendTurn 在对话末尾追加一轮问答，超出条数上限时丢弃最旧的消息。
func (r *redisConversationRepository) AppendTurn(ctx context.Context, conversationID, question, answer string, historyLimit int) error {
	history, err := r.GetConversationHistory(ctx, conversationID)
	if err != nil {
		return err
	}

	now := time.Now()
	history = append(history,
		model.ChatMessage{Role: "user", Content: question, Timestamp: now},
		model.ChatMessage{Role: "assistant", Content: answer, Timestamp: now},
	)
	if historyLimit > 0 && len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}

	jsonData, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal conversation history: %w", err)
	}
	key := fmt.Sprintf("conversation:%s", conversationID)
	if err := r.redisClient.Set(ctx, key, jsonData, conversationTTL).Err(); err != nil {
		return fmt.Errorf("failed to set conversation history: %w", err)
	}
	return nil
}
