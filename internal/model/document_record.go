package model

import "time"

// DocumentRecord 对应于数据库中的 document_records 表。
// 它是入库文档的台账：记录字符数、元数据快照与向量化所用的模型版本，
// 供列表查询与幂等检查使用；正文与向量本身存放在 MinIO 与 Elasticsearch。
type DocumentRecord struct {
	DocumentID   string    `gorm:"primaryKey;type:varchar(100);column:document_id" json:"documentId"`
	ContentChars int       `gorm:"not null;column:content_chars" json:"contentChars"`
	Metadata     string    `gorm:"type:text;column:metadata" json:"metadata"`
	ModelVersion string    `gorm:"type:varchar(100);column:model_version" json:"modelVersion"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentRecord) TableName() string {
	return "document_records"
}
