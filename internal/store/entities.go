package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/latentcontext/latentcontext/internal/model"
)

const entityCols = `id, label, entity_type, properties, created_at, updated_at, confidence, source_summary_id`

// InsertEntity writes a new entity row.
func (s *Store) InsertEntity(ctx context.Context, e *model.Entity) error {
	err := s.execWrite(ctx,
		`INSERT INTO entities (`+entityCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Label, e.EntityType, marshalJSON(e.Properties, "{}"),
		FormatTime(e.CreatedAt), FormatTime(e.UpdatedAt), e.Confidence, nullable(e.SourceSummaryID))
	if err != nil {
		return fmt.Errorf("insert entity: %w", err)
	}
	return nil
}

// UpdateEntityConfidence raises an entity's confidence. Callers enforce the
// monotonicity rule; this just writes.
func (s *Store) UpdateEntityConfidence(ctx context.Context, id string, confidence float64, updatedAt string) error {
	return s.execWrite(ctx,
		`UPDATE entities SET confidence = ?, updated_at = ? WHERE id = ?`,
		confidence, updatedAt, id)
}

// EntityByLabel looks up an entity by case-insensitive label. Returns nil on miss.
func (s *Store) EntityByLabel(ctx context.Context, label string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityCols+` FROM entities WHERE LOWER(label) = LOWER(?) LIMIT 1`, label)
	return scanEntity(row)
}

// EntityByID looks up an entity by id. Returns nil on miss.
func (s *Store) EntityByID(ctx context.Context, id string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityCols+` FROM entities WHERE id = ? LIMIT 1`, id)
	return scanEntity(row)
}

// EntityByLabelLike finds the highest-confidence entity whose label contains
// the given substring, case-insensitively. Returns nil on miss.
func (s *Store) EntityByLabelLike(ctx context.Context, label string) (*model.Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entityCols+` FROM entities
		 WHERE LOWER(label) LIKE '%' || LOWER(?) || '%'
		 ORDER BY confidence DESC LIMIT 1`, label)
	return scanEntity(row)
}

// EntitiesByIDs loads the listed entities; missing ids are skipped.
func (s *Store) EntitiesByIDs(ctx context.Context, ids []string) ([]model.Entity, error) {
	var out []model.Entity
	for _, id := range ids {
		e, err := s.EntityByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if e != nil {
			out = append(out, *e)
		}
	}
	return out, nil
}

// DeleteEntity removes an entity row.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	return s.execWrite(ctx, `DELETE FROM entities WHERE id = ?`, id)
}

// CountEntities returns the total number of entities.
func (s *Store) CountEntities(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&n)
	return n, err
}

func scanEntity(row *sql.Row) (*model.Entity, error) {
	var e model.Entity
	var props, createdAt, updatedAt string
	var source sql.NullString

	err := row.Scan(&e.ID, &e.Label, &e.EntityType, &props, &createdAt, &updatedAt, &e.Confidence, &source)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	e.Properties = unmarshalProps(props)
	e.CreatedAt = ParseTime(createdAt)
	e.UpdatedAt = ParseTime(updatedAt)
	if source.Valid {
		e.SourceSummaryID = source.String
	}
	return &e, nil
}
