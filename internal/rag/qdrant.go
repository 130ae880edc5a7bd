package rag

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds connection parameters for a Qdrant vector store instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements VectorStore backed by a Qdrant instance. Collections
// are addressed per call so one store serves every knowledge base.
type QdrantStore struct {
	// client is the underlying Qdrant gRPC client.
	client *qdrant.Client
}

// NewQdrantStore creates a new QdrantStore and returns a ready-to-use
// VectorStore. Collections are created on demand via EnsureCollection.
func NewQdrantStore(cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	clientCfg := &qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	}

	client, err := qdrant.NewClient(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	return &QdrantStore{client: client}, nil
}

// EnsureCollection creates the named collection with cosine distance if it
// does not already exist.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, vectorSize uint64) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     vectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", collection, err)
	}

	return nil
}

// CollectionExists reports whether the named collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	return exists, nil
}

// Upsert stores or updates a batch of documents with their embeddings in the
// named collection. Embeddings must be pre-computed and parallel to docs.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("qdrant: %d docs but %d embeddings", len(docs), len(embeddings))
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		payload := map[string]interface{}{
			"content": doc.Content,
			"source":  doc.Source,
		}
		for k, v := range doc.Metadata {
			payload[k] = v
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(doc.ID),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant: upsert failed: %w", err)
	}

	return nil
}

// Search performs a cosine similarity search over the named collection and
// returns the top-k results, best match first. A missing collection yields
// ErrCollectionNotFound so the caller can surface it distinctly from an
// unreachable index.
func (s *QdrantStore) Search(ctx context.Context, collection string, queryEmbedding []float32, topK int) ([]Document, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(queryEmbedding...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search failed: %w", err)
	}

	docs := make([]Document, 0, len(results))
	for _, r := range results {
		doc := Document{
			ID:       r.Id.GetUuid(),
			Score:    r.Score,
			Metadata: make(map[string]string),
		}
		if p := r.Payload; p != nil {
			if v, ok := p["content"]; ok {
				doc.Content = v.GetStringValue()
			}
			if v, ok := p["source"]; ok {
				doc.Source = v.GetStringValue()
			}
			for k, v := range p {
				if k != "content" && k != "source" {
					doc.Metadata[k] = v.GetStringValue()
				}
			}
		}
		docs = append(docs, doc)
	}

	return docs, nil
}

// Delete removes documents from the named collection by their IDs.
func (s *QdrantStore) Delete(ctx context.Context, collection string, ids []string) error {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDUUID(id))
	}

	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("qdrant: delete failed: %w", err)
	}

	return nil
}

// Ping verifies the Qdrant server is reachable.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("qdrant: health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
