package store

import (
	"context"
	"fmt"

	"github.com/latentcontext/latentcontext/internal/model"
)

const vectorCols = `id, source_id, source_type, content_preview, embedding, dimensions, metadata, created_at, confidence`

// InsertVector writes a vector row. The embedding is persisted as float32
// little-endian bytes in index order.
func (s *Store) InsertVector(ctx context.Context, v *model.VectorRecord) error {
	err := s.execWrite(ctx,
		`INSERT INTO vectors (`+vectorCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.SourceID, v.SourceType, v.ContentPreview,
		model.EncodeVector(v.Embedding), v.Dimensions,
		marshalJSON(v.Metadata, "{}"), FormatTime(v.CreatedAt), v.Confidence)
	if err != nil {
		return fmt.Errorf("insert vector: %w", err)
	}
	return nil
}

// DeleteVector removes a vector row by id.
func (s *Store) DeleteVector(ctx context.Context, id string) error {
	return s.execWrite(ctx, `DELETE FROM vectors WHERE id = ?`, id)
}

// DeleteVectorsBySource removes all vectors embedding the given source.
func (s *Store) DeleteVectorsBySource(ctx context.Context, sourceID string) error {
	return s.execWrite(ctx, `DELETE FROM vectors WHERE source_id = ?`, sourceID)
}

// AllVectors scans the whole table in insertion order, decoding embeddings.
func (s *Store) AllVectors(ctx context.Context) ([]model.VectorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+vectorCols+` FROM vectors ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.VectorRecord
	for rows.Next() {
		var v model.VectorRecord
		var blob []byte
		var metadata, createdAt string

		if err := rows.Scan(&v.ID, &v.SourceID, &v.SourceType, &v.ContentPreview,
			&blob, &v.Dimensions, &metadata, &createdAt, &v.Confidence); err != nil {
			return nil, err
		}
		v.Embedding = model.DecodeVector(blob)
		v.Metadata = unmarshalProps(metadata)
		v.CreatedAt = ParseTime(createdAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

// VectorsBySource returns the vectors embedding a given source id.
func (s *Store) VectorsBySource(ctx context.Context, sourceID string) ([]model.VectorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+vectorCols+` FROM vectors WHERE source_id = ? ORDER BY rowid`, sourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.VectorRecord
	for rows.Next() {
		var v model.VectorRecord
		var blob []byte
		var metadata, createdAt string

		if err := rows.Scan(&v.ID, &v.SourceID, &v.SourceType, &v.ContentPreview,
			&blob, &v.Dimensions, &metadata, &createdAt, &v.Confidence); err != nil {
			return nil, err
		}
		v.Embedding = model.DecodeVector(blob)
		v.Metadata = unmarshalProps(metadata)
		v.CreatedAt = ParseTime(createdAt)
		out = append(out, v)
	}
	return out, rows.Err()
}

// CountVectors returns the total number of vector rows.
func (s *Store) CountVectors(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n)
	return n, err
}
