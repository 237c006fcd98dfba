package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ragchat-go/internal/apperr"
	"ragchat-go/internal/model"
	"ragchat-go/internal/repository"
	"ragchat-go/pkg/embedding"
	"ragchat-go/pkg/log"
	"ragchat-go/pkg/tasks"
	"ragchat-go/pkg/vectorstore"
)

// Archiver 定义了文档正文归档副本的操作接口（MinIO 实现）。
type Archiver interface {
	ArchiveDocument(ctx context.Context, documentID, content string) error
	RemoveDocument(ctx context.Context, documentID string) error
}

// IngestService 定义了文档入库的操作接口。
// 入库 = 向量化 + 写向量库 + 归档正文 + 记台账；同一 id 重复入库即整体覆盖。
type IngestService interface {
	// Ingest 同步入库一批文档，返回成功入库的数量。
	// 遇到第一个致命错误时中止，并连同已入库数量一起返回。
	Ingest(ctx context.Context, docs []model.Document) (int, error)
	// IngestAsync 将一批文档封装为任务投递到 Kafka，由后台消费者入库。
	IngestAsync(docs []model.Document) (string, error)
	// Delete 删除一篇文档：向量库记录、归档副本与台账一并清除。
	Delete(ctx context.Context, documentID string) error
	// List 返回全部文档台账记录。
	List() ([]*model.DocumentRecord, error)
	// Process 实现 kafka.TaskProcessor，处理异步入库任务。
	Process(ctx context.Context, task tasks.DocumentIngestTask) error
}

type ingestService struct {
	embeddingClient embedding.Client
	store           vectorstore.Store
	archiver        Archiver
	documentRepo    repository.DocumentRepository
	modelVersion    string
	publish         func(tasks.DocumentIngestTask) error
}

// NewIngestService 创建一个新的 IngestService 实例。
// publish 为 Kafka 投递函数（如 kafka.ProduceIngestTask）。
func NewIngestService(
	embeddingClient embedding.Client,
	store vectorstore.Store,
	archiver Archiver,
	documentRepo repository.DocumentRepository,
	modelVersion string,
	publish func(tasks.DocumentIngestTask) error,
) IngestService {
	return &ingestService{
		embeddingClient: embeddingClient,
		store:           store,
		archiver:        archiver,
		documentRepo:    documentRepo,
		modelVersion:    modelVersion,
		publish:         publish,
	}
}

// Ingest 逐篇入库文档。
func (s *ingestService) Ingest(ctx context.Context, docs []model.Document) (int, error) {
	count := 0
	for _, doc := range docs {
		if err := s.ingestOne(ctx, doc); err != nil {
			return count, fmt.Errorf("ingest document %q: %w", doc.ID, err)
		}
		count++
	}
	log.Infof("[IngestService] 入库完成, 共 %d 篇文档", count)
	return count, nil
}

func (s *ingestService) ingestOne(ctx context.Context, doc model.Document) error {
	if strings.TrimSpace(doc.ID) == "" {
		return fmt.Errorf("%w: document id is empty", apperr.ErrInvalidInput)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("%w: document content is empty", apperr.ErrInvalidInput)
	}

	log.Infof("[IngestService] 开始入库文档, id: %s, 正文长度: %d", doc.ID, len(doc.Content))

	// 1. 向量化正文
	vector, err := s.embeddingClient.CreateEmbedding(ctx, doc.Content)
	if err != nil {
		return err
	}

	// 2. 写入向量库（按 id 幂等覆盖）
	if err := s.store.Upsert(ctx, doc, vector, s.modelVersion); err != nil {
		return err
	}

	// 3. 归档原始正文。归档是尽力而为：失败只记录，不回滚已写入的向量
	if err := s.archiver.ArchiveDocument(ctx, doc.ID, doc.Content); err != nil {
		log.Warnf("[IngestService] 归档文档正文失败, id: %s, err: %v", doc.ID, err)
	}

	// 4. 记台账
	metadataJSON := ""
	if len(doc.Metadata) > 0 {
		if b, err := json.Marshal(doc.Metadata); err == nil {
			metadataJSON = string(b)
		}
	}
	record := &model.DocumentRecord{
		DocumentID:   doc.ID,
		ContentChars: len([]rune(doc.Content)),
		Metadata:     metadataJSON,
		ModelVersion: s.modelVersion,
	}
	if err := s.documentRepo.Upsert(record); err != nil {
		return fmt.Errorf("failed to record document %s: %w", doc.ID, err)
	}
	return nil
}

// IngestAsync 投递异步入库任务，返回批次 id。
func (s *ingestService) IngestAsync(docs []model.Document) (string, error) {
	if len(docs) == 0 {
		return "", fmt.Errorf("%w: no documents to ingest", apperr.ErrInvalidInput)
	}
	for _, doc := range docs {
		if strings.TrimSpace(doc.ID) == "" || strings.TrimSpace(doc.Content) == "" {
			return "", fmt.Errorf("%w: document id and content are required", apperr.ErrInvalidInput)
		}
	}

	task := tasks.DocumentIngestTask{
		BatchID:   fmt.Sprintf("batch-%d", time.Now().UnixNano()),
		Documents: docs,
	}
	if err := s.publish(task); err != nil {
		return "", fmt.Errorf("failed to publish ingest task: %w", err)
	}
	log.Infof("[IngestService] 异步入库任务已投递, BatchID: %s, 文档数: %d", task.BatchID, len(docs))
	return task.BatchID, nil
}

// Delete 删除一篇文档的全部痕迹。
func (s *ingestService) Delete(ctx context.Context, documentID string) error {
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("%w: document id is empty", apperr.ErrInvalidInput)
	}

	if err := s.store.Delete(ctx, documentID); err != nil {
		return err
	}
	if err := s.archiver.RemoveDocument(ctx, documentID); err != nil {
		log.Warnf("[IngestService] 删除归档副本失败, id: %s, err: %v", documentID, err)
	}
	if err := s.documentRepo.DeleteByID(documentID); err != nil {
		return fmt.Errorf("failed to delete document record %s: %w", documentID, err)
	}
	log.Infof("[IngestService] 文档已删除, id: %s", documentID)
	return nil
}

// List 返回全部文档台账记录。
func (s *ingestService) List() ([]*model.DocumentRecord, error) {
	return s.documentRepo.FindAll()
}

// Process 处理 Kafka 消费到的异步入库任务。
func (s *ingestService) Process(ctx context.Context, task tasks.DocumentIngestTask) error {
	count, err := s.Ingest(ctx, task.Documents)
	if err != nil {
		return fmt.Errorf("batch %s failed after %d documents: %w", task.BatchID, count, err)
	}
	return nil
}
