// Package engine wires the memory components behind the tool surface.
//
// One Engine value is owned by the transport and passed to every handler. A
// single mutex serializes entry points: the store, registry and working
// buffer are never observed concurrently, so no finer locking exists below.
package engine

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/assemble"
	"github.com/latentcontext/latentcontext/internal/config"
	"github.com/latentcontext/latentcontext/internal/embedding"
	"github.com/latentcontext/latentcontext/internal/graph"
	"github.com/latentcontext/latentcontext/internal/memory"
	"github.com/latentcontext/latentcontext/internal/session"
	"github.com/latentcontext/latentcontext/internal/store"
	"github.com/latentcontext/latentcontext/internal/token"
	"github.com/latentcontext/latentcontext/internal/vector"
)

// Engine owns every memory component and serializes access to them.
type Engine struct {
	mu sync.Mutex

	cfg    *config.Config
	logger *zap.Logger

	store     *store.Store
	counter   *token.Counter
	embedder  *embedding.Embedder
	vectors   *vector.VectorStore
	graph     *graph.Graph
	registry  *session.Registry
	manager   *memory.Manager
	assembler *assemble.Assembler
}

// New boots the engine: open the store (fatal on failure), build the
// component graph, and auto-start a session when configured.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	st, err := store.Open(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("open durable store: %w", err)
	}

	counter, err := token.New()
	if err != nil {
		logger.Warn("token encoding unavailable, using character estimates", zap.Error(err))
	}

	emb := embedding.New(cfg.Embedding, logger)
	vs := vector.New(st, emb, logger)
	g := graph.New(st, logger)
	reg := session.New(st, logger)
	mgr := memory.New(st, g, vs, counter, reg, cfg, logger)
	asm := assemble.New(st, vs, g, mgr, reg, counter, cfg, logger)

	e := &Engine{
		cfg:       cfg,
		logger:    logger.Named("engine"),
		store:     st,
		counter:   counter,
		embedder:  emb,
		vectors:   vs,
		graph:     g,
		registry:  reg,
		manager:   mgr,
		assembler: asm,
	}

	if cfg.Session.AutoStartOnBoot {
		if _, err := e.SessionStart(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("auto-start session: %w", err)
		}
	}

	return e, nil
}

// Close finishes the engine: flush the store, end the session, release the
// embedder. Safe to call once after the last handler returns.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	ctx := context.Background()
	if err := e.registry.EndCurrent(ctx); err != nil {
		e.logger.Warn("failed to end session on shutdown", zap.Error(err))
	}
	if err := e.embedder.Close(); err != nil {
		e.logger.Warn("failed to close embedder", zap.Error(err))
	}
	return e.store.Close()
}

// CurrentSessionID returns the active session id, or "".
func (e *Engine) CurrentSessionID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.registry.CurrentID()
}
