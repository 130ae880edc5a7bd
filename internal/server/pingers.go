package server

import (
	"context"
	"fmt"

	"github.com/eblahq/ragchat/internal/rag"
	"github.com/eblahq/ragchat/internal/store"
)

// QdrantPinger probes the Qdrant vector store using its native HealthCheck
// RPC. It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// store is the Qdrant-backed vector store to probe.
	store *rag.QdrantStore
}

// NewQdrantPinger constructs a QdrantPinger for the given vector store.
func NewQdrantPinger(store *rag.QdrantStore) *QdrantPinger {
	return &QdrantPinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
// Returns nil if Qdrant is reachable, or a descriptive error otherwise.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// StorePinger probes the conversation store with a lightweight query.
// It satisfies the Pinger interface and is used by GET /api/ready.
type StorePinger struct {
	// store is the conversation store to probe.
	store store.ConversationStore
}

// NewStorePinger constructs a StorePinger for the given conversation store.
func NewStorePinger(store store.ConversationStore) *StorePinger {
	return &StorePinger{store: store}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "sqlite" }

// Ping verifies the conversation database is reachable and responsive.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.store.Ping(ctx); err != nil {
		return fmt.Errorf("database unreachable: %w", err)
	}
	return nil
}
