// Package model 包含了应用的数据模型定义。
package model

import "time"

// ChatRequest 定义了一次问答请求。ConversationID 为空时由服务端生成。
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// ChatResponse 定义了一次问答的完整响应。
// Sources 按相关度降序、去重后列出被用作上下文的文档 id。
type ChatResponse struct {
	Response       string          `json:"response"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Sources        []string        `json:"sources"`
	SearchMetadata *SearchMetadata `json:"search_metadata,omitempty"`
}

// SearchMetadata 记录本轮检索的调试信息。
type SearchMetadata struct {
	DocumentsFound         int     `json:"documents_found"`
	TotalDocumentsSearched int     `json:"total_documents_searched"`
	HighestScore           float64 `json:"highest_score"`
	AvgScore               float64 `json:"avg_score"`
	SearchSuccessful       bool    `json:"search_successful"`
	SimilarityThreshold    float64 `json:"similarity_threshold"`
	Reason                 string  `json:"reason,omitempty"`
}

// ChatMessage 代表存储在 Redis 中的单条对话消息。
type ChatMessage struct {
	Role      string    `json:"role"` // "user" 或 "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthResponse 定义了健康检查接口的响应。
type HealthResponse struct {
	Status               string `json:"status"`
	VectorStoreConnected bool   `json:"vector_store_connected"`
	LLMConfigured        bool   `json:"llm_configured"`
}
