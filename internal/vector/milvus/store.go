// Package milvus is the Milvus vector backend: bill text is embedded with an eino
// embedder, stored through the eino Milvus indexer and searched with the eino Milvus
// retriever filtered on user_id and category.
package milvus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	einoidx "github.com/cloudwego/eino-ext/components/indexer/milvus"
	einoret "github.com/cloudwego/eino-ext/components/retriever/milvus"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/indexer"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/joseph-ayodele/bills-assistant/internal/common"
	"github.com/joseph-ayodele/bills-assistant/internal/vector"
)

const (
	fieldID       = "id"
	fieldUserID   = "user_id"
	fieldCategory = "category"
	fieldContent  = "content"
	fieldVector   = "vector"
)

// deleter is the slice of the Milvus client used to replace a bill's previous row.
type deleter interface {
	Delete(ctx context.Context, collName string, partitionName string, expr string) error
}

type Store struct {
	collection string
	indexer    indexer.Indexer
	retriever  retriever.Retriever
	deleter    deleter
	logger     *slog.Logger
}

// New connects to Milvus, creates the collection when missing and loads it.
func New(ctx context.Context, cfg common.VectorConfig, embedder embedding.Embedder, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	cli, err := client.NewClient(connectCtx, client.Config{Address: cfg.MilvusAddr})
	if err != nil {
		return nil, common.CollaboratorUnavailable("milvus", err)
	}

	vecs, err := embedder.EmbedStrings(ctx, []string{"dimension check"})
	if err != nil || len(vecs) == 0 {
		return nil, common.CollaboratorUnavailable("embedder", fmt.Errorf("dimension embedding: %w", err))
	}
	dim := len(vecs[0])

	idx, err := einoidx.NewIndexer(ctx, &einoidx.IndexerConfig{
		Client:            cli,
		Collection:        cfg.Collection,
		Fields:            Fields(dim),
		DocumentConverter: toRows,
		MetricType:        einoidx.L2,
		Embedding:         embedder,
	})
	if err != nil {
		return nil, fmt.Errorf("milvus indexer: %w", err)
	}
	if err := cli.LoadCollection(ctx, cfg.Collection, false); err != nil {
		logger.Warn("vector.milvus.load_collection_failed", "collection", cfg.Collection, "error", err)
	}

	retr, err := einoret.NewRetriever(ctx, &einoret.RetrieverConfig{
		Client:            cli,
		Collection:        cfg.Collection,
		VectorField:       fieldVector,
		OutputFields:      []string{fieldID, fieldUserID, fieldCategory, fieldContent},
		DocumentConverter: fromResult,
		MetricType:        entity.L2,
		TopK:              cfg.TopK,
		Embedding:         embedder,
	})
	if err != nil {
		return nil, fmt.Errorf("milvus retriever: %w", err)
	}

	logger.Info("vector.milvus.ready", "collection", cfg.Collection, "dim", dim, "elapsed_ms", common.ElapsedMS(start))
	return NewWith(cfg.Collection, idx, retr, cli, logger), nil
}

// NewWith assembles a store from already-built eino components.
func NewWith(collection string, idx indexer.Indexer, retr retriever.Retriever, del deleter, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{collection: collection, indexer: idx, retriever: retr, deleter: del, logger: logger}
}

// Fields is the collection schema for a given embedding dimension.
func Fields(dim int) []*entity.Field {
	return []*entity.Field{
		{
			Name:       fieldID,
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: true,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       fieldUserID,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "128"},
		},
		{
			Name:       fieldCategory,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       fieldVector,
			DataType:   entity.FieldTypeFloatVector,
			TypeParams: map[string]string{"dim": strconv.Itoa(dim)},
		},
		{
			Name:       fieldContent,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": "65535"},
		},
	}
}

// Index replaces the bill's row. Milvus inserts do not dedupe primary keys, so the old
// row is deleted first.
func (s *Store) Index(ctx context.Context, doc vector.Document) error {
	start := time.Now()
	log := common.LoggerFrom(ctx, s.logger)
	if doc.BillID == "" || doc.UserID == "" {
		return common.InvalidInput("index document needs bill_id and user_id")
	}
	if s.deleter != nil {
		if err := s.deleter.Delete(ctx, s.collection, "", fmt.Sprintf("%s in [%s]", fieldID, quote(doc.BillID))); err != nil {
			log.Warn("vector.milvus.delete_failed", "bill_id", doc.BillID, "error", err)
		}
	}
	ids, err := s.indexer.Store(ctx, []*schema.Document{{
		ID:      doc.BillID,
		Content: doc.Text,
		MetaData: map[string]any{
			fieldUserID:   doc.UserID,
			fieldCategory: doc.Category,
		},
	}})
	if err != nil {
		log.Error("vector.milvus.index_error", "bill_id", doc.BillID, "error", err, "elapsed_ms", common.ElapsedMS(start))
		return common.CollaboratorUnavailable("vector index", err)
	}
	log.Info("vector.milvus.index", "bill_id", doc.BillID, "stored", len(ids), "elapsed_ms", common.ElapsedMS(start))
	return nil
}

func (s *Store) Search(ctx context.Context, query string, filter vector.Filter, topK int) ([]vector.Passage, error) {
	start := time.Now()
	log := common.LoggerFrom(ctx, s.logger)
	if filter.UserID == "" {
		return nil, common.InvalidInput("vector search requires a user_id")
	}
	opts := []retriever.Option{einoret.WithFilter(BuildExpr(filter))}
	if topK > 0 {
		opts = append(opts, retriever.WithTopK(topK))
	}
	docs, err := s.retriever.Retrieve(ctx, query, opts...)
	if err != nil {
		log.Error("vector.milvus.search_error", "error", err, "elapsed_ms", common.ElapsedMS(start))
		return nil, common.CollaboratorUnavailable("vector search", err)
	}
	out := make([]vector.Passage, 0, len(docs))
	for _, d := range docs {
		out = append(out, vector.Passage{BillID: d.ID, Text: d.Content, Score: d.Score()})
	}
	log.Info("vector.milvus.search", "hits", len(out), "elapsed_ms", common.ElapsedMS(start))
	return out, nil
}

// BuildExpr renders the boolean filter expression for a search.
func BuildExpr(f vector.Filter) string {
	exprs := []string{fmt.Sprintf("%s == %s", fieldUserID, quote(f.UserID))}
	if f.Category != "" {
		exprs = append(exprs, fmt.Sprintf("%s == %s", fieldCategory, quote(f.Category)))
	}
	return strings.Join(exprs, " && ")
}

func quote(s string) string {
	return strconv.Quote(s)
}

func toRows(_ context.Context, docs []*schema.Document, vectors [][]float64) ([]interface{}, error) {
	if len(docs) != len(vectors) {
		return nil, fmt.Errorf("milvus rows: %d documents but %d vectors", len(docs), len(vectors))
	}
	rows := make([]interface{}, len(docs))
	for i, doc := range docs {
		vec32 := make([]float32, len(vectors[i]))
		for j, v := range vectors[i] {
			vec32[j] = float32(v)
		}
		userID, _ := doc.MetaData[fieldUserID].(string)
		category, _ := doc.MetaData[fieldCategory].(string)
		rows[i] = map[string]interface{}{
			fieldID:       doc.ID,
			fieldUserID:   userID,
			fieldCategory: category,
			fieldVector:   vec32,
			fieldContent:  doc.Content,
		}
	}
	return rows, nil
}

func fromResult(_ context.Context, result client.SearchResult) ([]*schema.Document, error) {
	if result.IDs == nil {
		return nil, nil
	}
	docs := make([]*schema.Document, result.IDs.Len())
	for i := 0; i < result.IDs.Len(); i++ {
		id, err := result.IDs.GetAsString(i)
		if err != nil {
			return nil, fmt.Errorf("milvus result id: %w", err)
		}
		doc := &schema.Document{ID: id, MetaData: map[string]any{}}
		if i < len(result.Scores) {
			doc = doc.WithScore(float64(result.Scores[i]))
		}
		for _, field := range result.Fields {
			v, err := field.GetAsString(i)
			if err != nil {
				continue
			}
			switch field.Name() {
			case fieldContent:
				doc.Content = v
			case fieldUserID, fieldCategory:
				doc.MetaData[field.Name()] = v
			}
		}
		docs[i] = doc
	}
	return docs, nil
}
