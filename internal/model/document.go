// Package model 包含了应用的数据模型定义。
package model

// Document 是入库的基本单元。ID 由调用方指定，重复入库即覆盖（upsert 语义）。
type Document struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SearchHit 是一次向量检索的单条命中结果，仅在请求内存在，不落库。
// Score 越大代表越相关（向量库配置为 cosine 相似度）。
type SearchHit struct {
	DocumentID string                 `json:"document_id"`
	Score      float64                `json:"score"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// StoredDocument 代表写入 Elasticsearch 的文档结构。
type StoredDocument struct {
	DocumentID   string                 `json:"document_id"`
	Content      string                 `json:"content"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	Embedding    []float32              `json:"embedding"`
	ModelVersion string                 `json:"model_version,omitempty"`
}
