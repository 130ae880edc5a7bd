// Package ingestion implements the knowledge-base ingestion pipeline.
// It loads local document files, splits the content into overlapping chunks,
// embeds each chunk, and upserts the results into a named vector collection.
// This pipeline is invoked by the `ragchat ingest` CLI command.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/eblahq/ragchat/internal/rag"
)

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per document chunk.
	// Defaults to 500 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters to overlap between
	// consecutive chunks. Defaults to 50 if zero.
	ChunkOverlap int

	// VectorSize is the embedding dimensionality used when the target
	// collection has to be created. When zero the size of the first
	// computed embedding is used.
	VectorSize int
}

// Pipeline orchestrates the load → chunk → embed → upsert flow for a set of
// local document files.
type Pipeline struct {
	// embedder converts text chunks into dense vector embeddings.
	embedder rag.Embedder

	// store persists the embedded chunks.
	store rag.VectorStore

	// cfg holds the resolved pipeline configuration.
	cfg *Config
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 500
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 10
	}

	return &Pipeline{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}, nil
}

// Ingest loads, chunks, embeds, and stores all provided files into the named
// collection, creating the collection on first use. Files are processed
// sequentially and the first error encountered is returned. Progress is
// reported via the optional progress callback.
func (p *Pipeline) Ingest(ctx context.Context, collection string, paths []string, progress func(msg string)) error {
	if progress == nil {
		progress = func(string) {}
	}

	ensured := false
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("ingestion: read failed for %s: %w", path, err)
		}

		chunks := p.chunk(string(raw))
		if len(chunks) == 0 {
			progress(fmt.Sprintf("skipping empty file %s", path))
			continue
		}
		progress(fmt.Sprintf("chunked %s into %d chunks", path, len(chunks)))

		embeddings, err := p.embedder.Embed(ctx, chunks)
		if err != nil {
			return fmt.Errorf("ingestion: embedding failed for %s: %w", path, err)
		}

		if !ensured {
			size := p.cfg.VectorSize
			if size <= 0 && len(embeddings) > 0 {
				size = len(embeddings[0])
			}
			if err := p.store.EnsureCollection(ctx, collection, uint64(size)); err != nil {
				return fmt.Errorf("ingestion: ensure collection %s: %w", collection, err)
			}
			ensured = true
		}

		docs := make([]rag.Document, 0, len(chunks))
		for i, chunk := range chunks {
			docs = append(docs, rag.Document{
				ID:      chunkID(path, i),
				Content: chunk,
				Source:  path,
				Metadata: map[string]string{
					"source":      path,
					"chunk_index": fmt.Sprintf("%d", i),
				},
			})
		}

		if err := p.store.Upsert(ctx, collection, docs, embeddings); err != nil {
			return fmt.Errorf("ingestion: upsert failed for %s: %w", path, err)
		}

		progress(fmt.Sprintf("ingested %d chunks from %s", len(chunks), path))
	}

	return nil
}

// chunk splits text into overlapping chunks of cfg.ChunkSize characters.
func (p *Pipeline) chunk(text string) []string {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return nil
	}

	var chunks []string
	size := p.cfg.ChunkSize
	overlap := p.cfg.ChunkOverlap

	for start := 0; start < len(text); start += size - overlap {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end == len(text) {
			break
		}
	}

	return chunks
}

// chunkID generates a deterministic UUID for a document chunk based on its
// source path and chunk index, so re-ingesting a file updates in place.
// Qdrant point ids must be valid UUIDs, hence the name-based form.
func chunkID(sourcePath string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("%s#%d", sourcePath, index))).String()
}
