// Package session tracks the single active session for the process.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/model"
	"github.com/latentcontext/latentcontext/internal/store"
)

// ArchiveHook summarizes the outgoing session's working memory. It returns
// the summary text and whether anything was archived.
type ArchiveHook func(oldSessionID string) (string, bool)

// StartResult reports a session transition.
type StartResult struct {
	SessionID      string    `json:"session_id"`
	StartedAt      time.Time `json:"started_at"`
	PreviousID     string    `json:"previous_session_id,omitempty"`
	Archived       bool      `json:"archived"`
	ArchiveSummary string    `json:"archive_summary,omitempty"`
}

// Registry owns the current session identifier. One Registry exists per
// engine; handlers are serialized above it, so no lock is held here.
type Registry struct {
	store  *store.Store
	logger *zap.Logger

	current *model.Session
}

// New returns a Registry with no active session.
func New(st *store.Store, logger *zap.Logger) *Registry {
	return &Registry{store: st, logger: logger.Named("session")}
}

// Start archives and ends any active session, then begins a new one. The
// archive hook is best-effort: a panic or failure there never blocks the new
// session.
func (r *Registry) Start(ctx context.Context, hook ArchiveHook) (*StartResult, error) {
	res := &StartResult{}

	if r.current != nil {
		old := r.current
		res.PreviousID = old.ID

		if hook != nil {
			summary, ok := r.runHook(hook, old.ID)
			res.Archived = ok
			res.ArchiveSummary = summary
		}

		if err := r.store.EndSession(ctx, old.ID, time.Now()); err != nil {
			r.logger.Warn("failed to end session", zap.String("session", old.ID), zap.Error(err))
		}
	}

	now := time.Now()
	sess := &model.Session{
		// Millisecond prefix keeps session ids lexicographically ordered.
		ID:        fmt.Sprintf("%d-%s", now.UnixMilli(), uuid.NewString()),
		StartedAt: now,
		Metadata:  map[string]interface{}{"previous_session_id": res.PreviousID},
	}
	if err := r.store.InsertSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	r.current = sess
	res.SessionID = sess.ID
	res.StartedAt = sess.StartedAt

	r.logger.Info("session started",
		zap.String("session", sess.ID), zap.String("previous", res.PreviousID))
	return res, nil
}

func (r *Registry) runHook(hook ArchiveHook, oldID string) (summary string, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("archive hook panicked", zap.Any("panic", rec))
			summary, ok = "", false
		}
	}()
	return hook(oldID)
}

// EndCurrent marks the active session ended and clears in-process state.
// A no-op when no session is active.
func (r *Registry) EndCurrent(ctx context.Context) error {
	if r.current == nil {
		return nil
	}
	id := r.current.ID
	r.current = nil
	if err := r.store.EndSession(ctx, id, time.Now()); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// CurrentID returns the active session id, or "" when none.
func (r *Registry) CurrentID() string {
	if r.current == nil {
		return ""
	}
	return r.current.ID
}
