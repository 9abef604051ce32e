package store

import (
	"context"
	"strings"
	"time"
)

// LogAccess appends one row to the frequency signal.
func (s *Store) LogAccess(ctx context.Context, memoryID, memoryType string, at time.Time) error {
	return s.execWrite(ctx,
		`INSERT INTO access_log (memory_id, memory_type, accessed_at) VALUES (?, ?, ?)`,
		memoryID, memoryType, FormatTime(at))
}

// AccessCounts returns access counts for the listed memory ids. Ids with no
// accesses are absent from the result.
func (s *Store) AccessCounts(ctx context.Context, ids []string) (map[string]int, error) {
	counts := make(map[string]int)
	if len(ids) == 0 {
		return counts, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_id, COUNT(*) FROM access_log WHERE memory_id IN (`+placeholders+`) GROUP BY memory_id`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// PruneAccessLog keeps only the newest keep rows, bounding the table.
func (s *Store) PruneAccessLog(ctx context.Context, keep int) error {
	if keep <= 0 {
		return nil
	}
	return s.execWrite(ctx,
		`DELETE FROM access_log WHERE id NOT IN (SELECT id FROM access_log ORDER BY id DESC LIMIT ?)`,
		keep)
}
