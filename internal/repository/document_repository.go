package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ragchat-go/internal/model"
)

// DocumentRepository 定义了对 document_records 表的数据操作接口。
type DocumentRepository interface {
	Upsert(record *model.DocumentRecord) error
	FindAll() ([]*model.DocumentRecord, error)
	FindByID(documentID string) (*model.DocumentRecord, error)
	DeleteByID(documentID string) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

// Upsert 写入或覆盖一条文档台账记录，主键冲突时整行更新。
func (r *documentRepository) Upsert(record *model.DocumentRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "document_id"}},
		UpdateAll: true,
	}).Create(record).Error
}

// FindAll 返回全部文档台账记录，按更新时间倒序。
func (r *documentRepository) FindAll() ([]*model.DocumentRecord, error) {
	var records []*model.DocumentRecord
	err := r.db.Order("updated_at DESC").Find(&records).Error
	return records, err
}

// FindByID 按文档 id 查找台账记录，未找到时返回 (nil, nil)。
func (r *documentRepository) FindByID(documentID string) (*model.DocumentRecord, error) {
	var record model.DocumentRecord
	err := r.db.Where("document_id = ?", documentID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// DeleteByID 按文档 id 删除台账记录。
func (r *documentRepository) DeleteByID(documentID string) error {
	return r.db.Where("document_id = ?", documentID).Delete(&model.DocumentRecord{}).Error
}
