package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clearledger/go-docvault/internal/pkg/logger"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

// DocumentsIndex 文档元数据的 ES 索引名
const DocumentsIndex = "docvault-documents"

// IndexedDocument 写入 ES 的文档元数据投影，SQL 仍然是权威数据源
type IndexedDocument struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"client_id"`
	FolderID     *string   `json:"folder_id,omitempty"`
	FileName     string    `json:"file_name"`
	Title        *string   `json:"title,omitempty"`
	Description  *string   `json:"description,omitempty"`
	DocumentType string    `json:"document_type"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// DocumentIndexer 文档全文索引接口
type DocumentIndexer interface {
	// Index 写入或覆盖一条文档投影
	Index(ctx context.Context, doc IndexedDocument) error
	// Remove 删除文档投影
	Remove(ctx context.Context, documentID string) error
	// Search 按客户范围做全文检索，返回命中的文档ID
	Search(ctx context.Context, clientID, query string, limit int) ([]string, error)
}

// ESIndexer 基于 Elasticsearch 的实现
type ESIndexer struct {
	client *elasticsearch.Client
}

func NewESIndexer(client *elasticsearch.Client) *ESIndexer {
	return &ESIndexer{client: client}
}

func (i *ESIndexer) Index(ctx context.Context, doc IndexedDocument) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化索引文档失败: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      DocumentsIndex,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("写入 Elasticsearch 失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("Elasticsearch 索引请求失败: %s", res.Status())
	}
	return nil
}

func (i *ESIndexer) Remove(ctx context.Context, documentID string) error {
	req := esapi.DeleteRequest{
		Index:      DocumentsIndex,
		DocumentID: documentID,
	}
	res, err := req.Do(ctx, i.client)
	if err != nil {
		return fmt.Errorf("从 Elasticsearch 删除失败: %w", err)
	}
	defer res.Body.Close()

	// 文档不存在时 ES 返回 404，删除本身是幂等的
	if res.IsError() && res.StatusCode != 404 {
		return fmt.Errorf("Elasticsearch 删除请求失败: %s", res.Status())
	}
	return nil
}

func (i *ESIndexer) Search(ctx context.Context, clientID, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 50
	}

	esQuery := map[string]any{
		"size":    limit,
		"_source": false,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"client_id": clientID}},
				},
				"must": []map[string]any{
					{"multi_match": map[string]any{
						"query":  query,
						"fields": []string{"file_name^2", "title^2", "description", "tags"},
					}},
				},
			},
		},
	}
	body, err := json.Marshal(esQuery)
	if err != nil {
		return nil, fmt.Errorf("序列化查询失败: %w", err)
	}

	res, err := i.client.Search(
		i.client.Search.WithContext(ctx),
		i.client.Search.WithIndex(DocumentsIndex),
		i.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("Elasticsearch 查询失败: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("Elasticsearch 查询请求失败: %s", res.Status())
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("解析 Elasticsearch 响应失败: %w", err)
	}

	ids := make([]string, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// NoopIndexer 在未启用 Elasticsearch 时使用，全文检索退化为 SQL LIKE
type NoopIndexer struct{}

func (NoopIndexer) Index(ctx context.Context, doc IndexedDocument) error {
	return nil
}

func (NoopIndexer) Remove(ctx context.Context, documentID string) error {
	return nil
}

func (NoopIndexer) Search(ctx context.Context, clientID, query string, limit int) ([]string, error) {
	logger.Debug("search indexer disabled, falling back to SQL", zap.String("client_id", clientID))
	return nil, nil
}
