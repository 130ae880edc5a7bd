// Package rag defines the interfaces for retrieval-augmented generation
// components: vector storage, document retrieval, and embedding.
// Concrete implementations (Qdrant, etc.) satisfy these interfaces so the
// chat layer never depends on a specific backend.
package rag

import (
	"context"
	"errors"
)

// ErrCollectionNotFound is returned when a search targets a collection that
// does not exist in the vector store. Callers can distinguish it from a
// connectivity failure with errors.Is.
var ErrCollectionNotFound = errors.New("rag: collection not found")

// Document represents a unit of retrieved or stored knowledge.
type Document struct {
	// ID is the unique identifier for this document chunk.
	ID string

	// Content is the raw text content of the chunk.
	Content string

	// Source is the origin URI or file path of the document.
	Source string

	// Metadata holds arbitrary key-value pairs (source path, chunk index, etc.).
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval. Higher is a
	// closer match. Zero value means the score was not computed.
	Score float32
}

// VectorStore is the interface for persisting and searching document
// embeddings across named collections. Implementations must be safe to call
// from multiple goroutines.
type VectorStore interface {
	// EnsureCollection creates the named collection if it does not exist.
	EnsureCollection(ctx context.Context, collection string, vectorSize uint64) error

	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// Upsert stores or updates a batch of documents with their pre-computed
	// embeddings in the named collection. The embeddings slice must be
	// parallel to docs — embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, collection string, docs []Document, embeddings [][]float32) error

	// Search performs a semantic similarity search over the named collection
	// and returns the top-k most relevant documents, best match first.
	// A collection that does not exist yields ErrCollectionNotFound; a query
	// with no matches yields an empty slice and no error.
	Search(ctx context.Context, collection string, queryEmbedding []float32, topK int) ([]Document, error)

	// Delete removes documents from the named collection by their IDs.
	Delete(ctx context.Context, collection string, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface used by the chat orchestrator to
// fetch relevant context for a query. It combines embedding and vector
// search. Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Search returns the top-k most relevant documents for the query from
	// the named collection, best match first.
	Search(ctx context.Context, query, collection string, topK int) ([]Document, error)
}
