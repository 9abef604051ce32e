package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/latentcontext/latentcontext/internal/model"
)

const summaryCols = `id, tier, content, token_count, created_at, updated_at, session_id, source_ids, metadata`

// InsertSummary writes a new summary row. Tier is immutable afterwards.
func (s *Store) InsertSummary(ctx context.Context, sum *model.Summary) error {
	err := s.execWrite(ctx,
		`INSERT INTO summaries (`+summaryCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.Tier, sum.Content, sum.TokenCount,
		FormatTime(sum.CreatedAt), FormatTime(sum.UpdatedAt),
		nullable(sum.SessionID), marshalJSON(sum.SourceIDs, "[]"), marshalJSON(sum.Metadata, "{}"))
	if err != nil {
		return fmt.Errorf("insert summary: %w", err)
	}
	return nil
}

// SummaryByID returns a summary, or nil on miss.
func (s *Store) SummaryByID(ctx context.Context, id string) (*model.Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+summaryCols+` FROM summaries WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums, err := scanSummaries(rows)
	if err != nil || len(sums) == 0 {
		return nil, err
	}
	return &sums[0], nil
}

// UpdateSummaryContent replaces content and token count together.
func (s *Store) UpdateSummaryContent(ctx context.Context, id, content string, tokenCount int, updatedAt string) error {
	return s.execWrite(ctx,
		`UPDATE summaries SET content = ?, token_count = ?, updated_at = ? WHERE id = ?`,
		content, tokenCount, updatedAt, id)
}

// DeleteSummary removes a summary row.
func (s *Store) DeleteSummary(ctx context.Context, id string) error {
	return s.execWrite(ctx, `DELETE FROM summaries WHERE id = ?`, id)
}

// DeleteSummaries removes the listed summary rows in one statement.
func (s *Store) DeleteSummaries(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return s.execWrite(ctx, `DELETE FROM summaries WHERE id IN (`+placeholders+`)`, args...)
}

// SummariesByTier returns summaries at a tier, newest first. limit <= 0 means all.
func (s *Store) SummariesByTier(ctx context.Context, tier, limit int) ([]model.Summary, error) {
	q := `SELECT ` + summaryCols + ` FROM summaries WHERE tier = ? ORDER BY created_at DESC`
	args := []interface{}{tier}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// SummariesByTierSession returns summaries at a tier tagged with a session,
// newest first.
func (s *Store) SummariesByTierSession(ctx context.Context, tier int, sessionID string, limit int) ([]model.Summary, error) {
	q := `SELECT ` + summaryCols + ` FROM summaries WHERE tier = ? AND session_id = ? ORDER BY created_at DESC`
	args := []interface{}{tier, sessionID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// SummariesByTierNotSession returns summaries at a tier NOT tagged with the
// given session (including untagged rows), newest first.
func (s *Store) SummariesByTierNotSession(ctx context.Context, tier int, sessionID string, limit int) ([]model.Summary, error) {
	q := `SELECT ` + summaryCols + ` FROM summaries
	      WHERE tier = ? AND (session_id IS NULL OR session_id != ?)
	      ORDER BY created_at DESC`
	args := []interface{}{tier, sessionID}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSummaries(rows)
}

// TierStat is the per-tier aggregate used by status reporting.
type TierStat struct {
	Count  int
	Tokens int
}

// TierStats returns counts and token sums grouped by tier.
func (s *Store) TierStats(ctx context.Context) (map[int]TierStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tier, COUNT(*), COALESCE(SUM(token_count), 0) FROM summaries GROUP BY tier`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[int]TierStat)
	for rows.Next() {
		var tier int
		var st TierStat
		if err := rows.Scan(&tier, &st.Count, &st.Tokens); err != nil {
			return nil, err
		}
		stats[tier] = st
	}
	return stats, rows.Err()
}

func scanSummaries(rows *sql.Rows) ([]model.Summary, error) {
	var out []model.Summary
	for rows.Next() {
		var sum model.Summary
		var createdAt, updatedAt, sourceIDs, metadata string
		var sessionID sql.NullString

		if err := rows.Scan(&sum.ID, &sum.Tier, &sum.Content, &sum.TokenCount,
			&createdAt, &updatedAt, &sessionID, &sourceIDs, &metadata); err != nil {
			return nil, err
		}
		sum.CreatedAt = ParseTime(createdAt)
		sum.UpdatedAt = ParseTime(updatedAt)
		if sessionID.Valid {
			sum.SessionID = sessionID.String
		}
		sum.SourceIDs = unmarshalIDs(sourceIDs)
		sum.Metadata = unmarshalProps(metadata)
		out = append(out, sum)
	}
	return out, rows.Err()
}
