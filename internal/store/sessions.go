package store

import (
	"context"
	"fmt"
	"time"

	"github.com/latentcontext/latentcontext/internal/model"
)

// InsertSession writes a new sessions row.
func (s *Store) InsertSession(ctx context.Context, sess *model.Session) error {
	err := s.execWrite(ctx,
		`INSERT INTO sessions (id, started_at, ended_at, metadata) VALUES (?, ?, ?, ?)`,
		sess.ID, FormatTime(sess.StartedAt), nullableTime(sess.EndedAt), marshalJSON(sess.Metadata, "{}"))
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// EndSession marks a session ended.
func (s *Store) EndSession(ctx context.Context, id string, at time.Time) error {
	return s.execWrite(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`, FormatTime(at), id)
}
