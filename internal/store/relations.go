package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/latentcontext/latentcontext/internal/model"
)

const relationCols = `id, subject_id, predicate, object_id, properties, temporal_start, temporal_end, confidence, source_summary_id`

// InsertRelation writes a relation row, replacing any row with the same id.
func (s *Store) InsertRelation(ctx context.Context, r *model.Relation) error {
	err := s.execWrite(ctx,
		`INSERT OR REPLACE INTO relations (`+relationCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.SubjectID, r.Predicate, r.ObjectID, marshalJSON(r.Properties, "{}"),
		nullableTime(r.TemporalStart), nullableTime(r.TemporalEnd), r.Confidence, nullable(r.SourceSummaryID))
	if err != nil {
		return fmt.Errorf("insert relation: %w", err)
	}
	return nil
}

// ActiveRelation returns the single active relation for (subject, predicate),
// or nil when none exists.
func (s *Store) ActiveRelation(ctx context.Context, subjectID, predicate string) (*model.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+relationCols+` FROM relations
		 WHERE subject_id = ? AND predicate = ? AND temporal_end IS NULL LIMIT 1`,
		subjectID, predicate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rels, err := scanRelations(rows)
	if err != nil || len(rels) == 0 {
		return nil, err
	}
	return &rels[0], nil
}

// RelationByID returns a relation by id, or nil on miss.
func (s *Store) RelationByID(ctx context.Context, id string) (*model.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+relationCols+` FROM relations WHERE id = ? LIMIT 1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	rels, err := scanRelations(rows)
	if err != nil || len(rels) == 0 {
		return nil, err
	}
	return &rels[0], nil
}

// EndRelation marks a relation ended and sets its confidence.
func (s *Store) EndRelation(ctx context.Context, id string, end time.Time, confidence float64) error {
	return s.execWrite(ctx,
		`UPDATE relations SET temporal_end = ?, confidence = ? WHERE id = ?`,
		FormatTime(end), confidence, id)
}

// RelationsBySubject returns relations where the entity is the subject.
func (s *Store) RelationsBySubject(ctx context.Context, subjectID string, activeOnly bool) ([]model.Relation, error) {
	q := `SELECT ` + relationCols + ` FROM relations WHERE subject_id = ?`
	if activeOnly {
		q += ` AND temporal_end IS NULL`
	}
	rows, err := s.db.QueryContext(ctx, q, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelations(rows)
}

// RelationsByObject returns relations where the entity is the object.
func (s *Store) RelationsByObject(ctx context.Context, objectID string, activeOnly bool) ([]model.Relation, error) {
	q := `SELECT ` + relationCols + ` FROM relations WHERE object_id = ?`
	if activeOnly {
		q += ` AND temporal_end IS NULL`
	}
	rows, err := s.db.QueryContext(ctx, q, objectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelations(rows)
}

// RelationsByPredicate returns all active relations with the given predicate,
// matched case-insensitively.
func (s *Store) RelationsByPredicate(ctx context.Context, predicate string) ([]model.Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+relationCols+` FROM relations
		 WHERE LOWER(predicate) = LOWER(?) AND temporal_end IS NULL`, predicate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelations(rows)
}

// DeleteRelationsForEntity removes every relation the entity participates in,
// active or superseded.
func (s *Store) DeleteRelationsForEntity(ctx context.Context, entityID string) error {
	return s.execWrite(ctx,
		`DELETE FROM relations WHERE subject_id = ? OR object_id = ?`, entityID, entityID)
}

// CountActiveRelations returns the number of relations without temporal_end.
func (s *Store) CountActiveRelations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relations WHERE temporal_end IS NULL`).Scan(&n)
	return n, err
}

func scanRelations(rows *sql.Rows) ([]model.Relation, error) {
	var out []model.Relation
	for rows.Next() {
		var r model.Relation
		var props string
		var start, end, source sql.NullString

		if err := rows.Scan(&r.ID, &r.SubjectID, &r.Predicate, &r.ObjectID, &props,
			&start, &end, &r.Confidence, &source); err != nil {
			return nil, err
		}
		r.Properties = unmarshalProps(props)
		r.TemporalStart = timePtr(start)
		r.TemporalEnd = timePtr(end)
		if source.Valid {
			r.SourceSummaryID = source.String
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
