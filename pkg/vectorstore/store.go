// Package vectorstore 提供了基于 Elasticsearch dense_vector 的向量库客户端。
// 集合（索引）维度来自 embedding 配置，查询/写入向量与其不一致会在发起
// 网络请求之前直接失败，绝不静默截断或补零。
package vectorstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"ragchat-go/internal/apperr"
	"ragchat-go/internal/config"
	"ragchat-go/internal/model"
	"ragchat-go/pkg/log"
)

// Store 定义了向量库的操作接口。
type Store interface {
	// Upsert 写入或覆盖一条文档向量记录，按 DocumentID 幂等。
	Upsert(ctx context.Context, doc model.Document, vector []float32, modelVersion string) error
	// Search 返回至多 topK 条命中，按相似度降序；topK<=0 时使用构造时的默认值。
	// 空结果不是错误。
	Search(ctx context.Context, vector []float32, topK int) ([]model.SearchHit, error)
	// Delete 按文档 id 删除，文档不存在视为成功。
	Delete(ctx context.Context, documentID string) error
	// Ping 检查向量库连通性。
	Ping(ctx context.Context) error
}

// ESStore 是 Store 的 Elasticsearch 实现。
type ESStore struct {
	client      *elasticsearch.Client
	indexName   string
	dimensions  int
	defaultTopK int
}

// NewStore 创建一个 Elasticsearch 向量库客户端。
// 连接池由 go-elasticsearch 传输层维护；瞬时错误（网络、429、5xx）由
// 传输层按指数退避做有界重试。
func NewStore(cfg config.ElasticsearchConfig, dimensions, defaultTopK int) (*ESStore, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("%w: vector dimensions must be positive, got %d", apperr.ErrDimensionMismatch, dimensions)
	}
	if defaultTopK <= 0 {
		defaultTopK = 3
	}

	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.Addresses},
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
		RetryOnStatus: []int{502, 503, 504, 429},
		MaxRetries:    3,
		RetryBackoff: func(i int) time.Duration {
			return time.Duration(i) * 200 * time.Millisecond
		},
	}
	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrConnection, err)
	}

	return &ESStore{
		client:      client,
		indexName:   cfg.IndexName,
		dimensions:  dimensions,
		defaultTopK: defaultTopK,
	}, nil
}

// EnsureIndex 检查索引是否存在，如果不存在则按配置的维度创建它。
// 在启动时调用，保证索引维度与 embedding 配置不会漂移。
func (s *ESStore) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.indexName}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("[VectorStore] 检查索引是否存在时出错: %v", err)
		return fmt.Errorf("%w: %v", apperr.ErrConnection, err)
	}
	res.Body.Close()
	if !res.IsError() && res.StatusCode == http.StatusOK {
		log.Infof("[VectorStore] 索引 '%s' 已存在", s.indexName)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("%w: unexpected status %d checking index", apperr.ErrConnection, res.StatusCode)
	}

	// document_id 与正文冗余存储在 _source 中，便于检索后直接组装上下文；
	// metadata 不参与索引，仅原样保存。
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"document_id": { "type": "keyword" },
				"content": { "type": "text" },
				"metadata": { "type": "object", "enabled": false },
				"model_version": { "type": "keyword" },
				"embedding": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				}
			}
		}
	}`, s.dimensions)

	createRes, err := s.client.Indices.Create(
		s.indexName,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("[VectorStore] 创建索引 '%s' 失败: %v", s.indexName, err)
		return fmt.Errorf("%w: %v", apperr.ErrConnection, err)
	}
	defer createRes.Body.Close()
	if createRes.IsError() {
		log.Errorf("[VectorStore] 创建索引 '%s' 时 Elasticsearch 返回错误: %s", s.indexName, createRes.String())
		return fmt.Errorf("failed to create index %s: %s", s.indexName, createRes.String())
	}

	log.Infof("[VectorStore] 索引 '%s' 创建成功, 维度: %d", s.indexName, s.dimensions)
	return nil
}

// Upsert 将单条文档向量写入 Elasticsearch，以文档 id 为主键覆盖旧记录。
func (s *ESStore) Upsert(ctx context.Context, doc model.Document, vector []float32, modelVersion string) error {
	if len(vector) != s.dimensions {
		return fmt.Errorf("%w: upsert vector has %d dims, collection expects %d",
			apperr.ErrDimensionMismatch, len(vector), s.dimensions)
	}

	stored := model.StoredDocument{
		DocumentID:   doc.ID,
		Content:      doc.Content,
		Metadata:     doc.Metadata,
		Embedding:    vector,
		ModelVersion: modelVersion,
	}
	docBytes, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	req := esapi.IndexRequest{
		Index:      s.indexName,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(docBytes),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrConnection, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: index %s", apperr.ErrCollectionNotFound, s.indexName)
	}
	if res.IsError() {
		log.Errorf("[VectorStore] 索引文档到 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("failed to index document %s: %s", doc.ID, res.String())
	}
	return nil
}

// Search 以 knn 查询执行相似度检索，命中顺序即 Elasticsearch 返回顺序
// （得分降序，得分相同保持写入顺序），不做二次排序。
func (s *ESStore) Search(ctx context.Context, vector []float32, topK int) ([]model.SearchHit, error) {
	if len(vector) != s.dimensions {
		return nil, fmt.Errorf("%w: query vector has %d dims, collection expects %d",
			apperr.ErrDimensionMismatch, len(vector), s.dimensions)
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	numCandidates := topK * 10
	if numCandidates < 100 {
		numCandidates = 100
	}
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              topK,
			"num_candidates": numCandidates,
		},
		"size":    topK,
		"_source": []string{"document_id", "content", "metadata"},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.indexName),
		s.client.Search.WithBody(&buf),
	)
	if err != nil {
		log.Errorf("[VectorStore] 向 Elasticsearch 发送搜索请求失败: %v", err)
		return nil, fmt.Errorf("%w: %v", apperr.ErrConnection, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: index %s", apperr.ErrCollectionNotFound, s.indexName)
	}
	if res.IsError() {
		log.Errorf("[VectorStore] Elasticsearch 返回错误: %s", res.String())
		return nil, fmt.Errorf("elasticsearch returned an error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Source model.StoredDocument `json:"_source"`
				Score  float64              `json:"_score"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]model.SearchHit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, model.SearchHit{
			DocumentID: h.Source.DocumentID,
			Score:      h.Score,
			Content:    h.Source.Content,
			Metadata:   h.Source.Metadata,
		})
	}
	log.Infof("[VectorStore] 检索完成, topK: %d, 命中: %d", topK, len(hits))
	return hits, nil
}

// Delete 按文档 id 删除一条记录。
func (s *ESStore) Delete(ctx context.Context, documentID string) error {
	req := esapi.DeleteRequest{
		Index:      s.indexName,
		DocumentID: documentID,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrConnection, err)
	}
	defer res.Body.Close()

	// 文档不存在也返回 404，删除语义下视为成功
	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("failed to delete document %s: %s", documentID, res.String())
	}
	return nil
}

// Ping 检查与 Elasticsearch 的连通性，供启动健康检查与 /health 使用。
func (s *ESStore) Ping(ctx context.Context) error {
	res, err := s.client.Info(s.client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrConnection, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("%w: status %d", apperr.ErrConnection, res.StatusCode)
	}
	return nil
}
