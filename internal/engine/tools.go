package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/latentcontext/latentcontext/internal/assemble"
	"github.com/latentcontext/latentcontext/internal/graph"
	"github.com/latentcontext/latentcontext/internal/memory"
	"github.com/latentcontext/latentcontext/internal/model"
	"github.com/latentcontext/latentcontext/internal/session"
)

// Word counts gating memory_store content.
const (
	storeRejectBelow = 10
	storeWarnBelow   = 25
)

// SessionStart archives the outgoing session's working buffer, begins a new
// session and clears the buffer for strict isolation.
func (e *Engine) SessionStart(ctx context.Context) (*session.StartResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.registry.Start(ctx, func(oldID string) (string, bool) {
		return e.manager.ArchiveWorking(ctx, oldID)
	})
	if err != nil {
		return nil, err
	}
	e.manager.ClearWorking()
	return res, nil
}

// MemoryStore validates and stores one note. Content under 10 whitespace
// tokens is rejected outright; under 25 it is accepted with a warning the
// caller surfaces in its reply.
func (e *Engine) MemoryStore(ctx context.Context, content, kind string, confidence float64, entities []string) (*memory.StoreResult, string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	words := len(strings.Fields(content))
	if words < storeRejectBelow {
		return nil, "", fmt.Errorf(
			"REJECTED: content %q has only %d words (minimum %d). Store a self-contained note instead, e.g. %q",
			content, words, storeRejectBelow,
			"User is testing the alpha build of the memory engine this week.")
	}
	if !model.ValidKinds[kind] {
		return nil, "", fmt.Errorf("unknown memory kind %q (valid: fact, preference, event, summary, core)", kind)
	}
	if confidence < 0 || confidence > 1 {
		return nil, "", fmt.Errorf("confidence must be within [0,1], got %v", confidence)
	}

	warning := ""
	if words < storeWarnBelow {
		warning = fmt.Sprintf("Note: only %d words — short memories often lack the context needed for later retrieval.", words)
	}

	res, err := e.manager.Store(ctx, memory.StoreParams{
		Content:    content,
		Kind:       kind,
		Confidence: confidence,
		Entities:   entities,
	})
	if err != nil {
		return nil, "", err
	}
	return res, warning, nil
}

// MemoryRetrieve assembles the budgeted digest for a query.
func (e *Engine) MemoryRetrieve(ctx context.Context, p assemble.Params) (*assemble.Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if strings.TrimSpace(p.Query) == "" {
		return nil, fmt.Errorf("query is required")
	}
	return e.assembler.Retrieve(ctx, p)
}

// MemoryCompress runs a manual compression pass.
func (e *Engine) MemoryCompress(ctx context.Context, scope string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Compress(ctx, scope)
}

// MemoryForget applies delete, deprecate or correct to a memory.
func (e *Engine) MemoryForget(ctx context.Context, memoryID, action, correction string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if memoryID == "" {
		return "", fmt.Errorf("memory_id is required")
	}
	if !model.ValidForgetActions[action] {
		return "", fmt.Errorf("unknown forget action %q (valid: deprecate, correct, delete)", action)
	}
	return e.manager.Forget(ctx, memoryID, action, correction)
}

// MemoryStatus reports tier, graph, vector and session state.
func (e *Engine) MemoryStatus(ctx context.Context) (*memory.Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Status(ctx)
}

// GraphQuery serializes an entity neighborhood, or, given a relation, the
// active facts under that predicate.
func (e *Engine) GraphQuery(ctx context.Context, entity, relation string, depth int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if depth <= 0 {
		depth = 1
	}

	if relation != "" {
		facts, err := e.graph.QueryByPredicate(ctx, relation)
		if err != nil {
			return "", err
		}
		if entity != "" {
			facts = filterFactsByEntity(facts, entity)
		}
		if len(facts) == 0 {
			return fmt.Sprintf("No active facts with predicate %q.", relation), nil
		}
		return graph.FormatFacts(facts), nil
	}

	if entity == "" {
		return "", fmt.Errorf("entity is required")
	}
	view, err := e.graph.QueryEntity(ctx, entity, depth)
	if err != nil {
		return "", err
	}
	if view == nil {
		return fmt.Sprintf("Entity %q not found in the knowledge graph.", entity), nil
	}
	return view.Text, nil
}

func filterFactsByEntity(facts []graph.Fact, entity string) []graph.Fact {
	var out []graph.Fact
	for _, f := range facts {
		if strings.EqualFold(f.SubjectLabel, entity) || strings.EqualFold(f.ObjectLabel, entity) {
			out = append(out, f)
		}
	}
	return out
}
