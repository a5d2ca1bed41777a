// Package elastic is a keyword (BM25) retrieval backend on Elasticsearch.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/vector"
)

const mapping = `{
  "settings": {"number_of_shards": 1, "number_of_replicas": 0},
  "mappings": {
    "properties": {
      "bill_id":  {"type": "keyword"},
      "user_id":  {"type": "keyword"},
      "category": {"type": "keyword"},
      "content":  {"type": "text"}
    }
  }
}`

type Store struct {
	client *elasticsearch.Client
	index  string
	logger *slog.Logger
}

// New creates the client and makes sure the index exists.
func New(ctx context.Context, cfg common.VectorConfig, logger *slog.Logger) (*Store, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: cfg.ESAddrs})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	s := NewWithClient(es, cfg.ESIndex, logger)
	if err := s.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func NewWithClient(es *elasticsearch.Client, index string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: es, index: index, logger: logger}
}

// EnsureIndex creates the index with its mapping unless it already exists.
func (s *Store) EnsureIndex(ctx context.Context) error {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return common.CollaboratorUnavailable("elasticsearch", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	s.logger.Info("vector.elastic.create_index", "index", s.index)
	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		return common.CollaboratorUnavailable("elasticsearch", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", s.index, res.String())
	}
	return nil
}

// Index writes the document with the bill id as _id, so re-indexing overwrites.
func (s *Store) Index(ctx context.Context, doc vector.Document) error {
	return s.IndexBatch(ctx, []vector.Document{doc})
}

// IndexBatch bulk-indexes documents.
func (s *Store) IndexBatch(ctx context.Context, docs []vector.Document) error {
	start := time.Now()
	log := common.LoggerFrom(ctx, s.logger)
	for _, d := range docs {
		if d.BillID == "" || d.UserID == "" {
			return common.InvalidInput("index document needs bill_id and user_id")
		}
	}

	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Index:   s.index,
		Client:  s.client,
		Refresh: "true",
	})
	if err != nil {
		return fmt.Errorf("bulk indexer: %w", err)
	}

	var failed atomic.Int64
	for _, d := range docs {
		body, err := json.Marshal(map[string]any{
			"bill_id":  d.BillID,
			"user_id":  d.UserID,
			"category": d.Category,
			"content":  d.Text,
		})
		if err != nil {
			return fmt.Errorf("encode document %s: %w", d.BillID, err)
		}
		err = bi.Add(ctx, esutil.BulkIndexerItem{
			Action:     "index",
			DocumentID: d.BillID,
			Body:       bytes.NewReader(body),
			OnFailure: func(_ context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				failed.Add(1)
				log.Warn("vector.elastic.index_item_failed", "bill_id", item.DocumentID, "status", res.Status, "error", err)
			},
		})
		if err != nil {
			return common.CollaboratorUnavailable("vector index", err)
		}
	}
	if err := bi.Close(ctx); err != nil {
		return common.CollaboratorUnavailable("vector index", err)
	}
	if n := failed.Load(); n > 0 {
		return common.CollaboratorUnavailable("vector index", fmt.Errorf("%d of %d documents failed", n, len(docs)))
	}
	log.Info("vector.elastic.index", "docs", len(docs), "elapsed_ms", common.ElapsedMS(start))
	return nil
}

func (s *Store) Search(ctx context.Context, query string, filter vector.Filter, topK int) ([]vector.Passage, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, s.logger)
	if filter.UserID == "" {
		return nil, common.InvalidInput("vector search requires a user_id")
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(BuildQuery(query, filter, topK)); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	req := esapi.SearchRequest{Index: []string{s.index}, Body: &buf}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		log.Error("vector.elastic.search_error", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return nil, common.CollaboratorUnavailable("vector search", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Error("vector.elastic.search_status", "status", res.StatusCode, "elapsed_ms", common.ElapsedMS(start))
		return nil, common.CollaboratorUnavailable("vector search", fmt.Errorf("search response: %s", res.String()))
	}

	var result struct {
		Hits struct {
			Hits []struct {
				ID     string  `json:"_id"`
				Score  float64 `json:"_score"`
				Source struct {
					BillID  string `json:"bill_id"`
					Content string `json:"content"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, common.CollaboratorUnavailable("vector search", fmt.Errorf("decode search response: %w", err))
	}

	out := make([]vector.Passage, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		id := h.Source.BillID
		if id == "" {
			id = h.ID
		}
		out = append(out, vector.Passage{BillID: id, Text: h.Source.Content, Score: h.Score})
	}
	log.Info("vector.elastic.search", "hits", len(out), "elapsed_ms", common.ElapsedMS(start))
	return out, nil
}

// BuildQuery is the search body: BM25 match on content, filtered by user and category.
func BuildQuery(query string, filter vector.Filter, topK int) map[string]any {
	filters := []map[string]any{
		{"term": map[string]any{"user_id": filter.UserID}},
	}
	if filter.Category != "" {
		filters = append(filters, map[string]any{"term": map[string]any{"category": filter.Category}})
	}
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{
					{"match": map[string]any{"content": map[string]any{"query": query}}},
				},
				"filter": filters,
			},
		},
	}
	if topK > 0 {
		body["size"] = topK
	}
	return body
}
