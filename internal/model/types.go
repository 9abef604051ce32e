// Package model defines the core memory data types.
package model

import "time"

// Memory kinds accepted by store operations.
var ValidKinds = map[string]bool{
	"fact":       true,
	"preference": true,
	"event":      true,
	"summary":    true,
	"core":       true,
}

// Forget actions accepted by the memory manager.
var ValidForgetActions = map[string]bool{
	"deprecate": true,
	"correct":   true,
	"delete":    true,
}

// Entity is a node in the knowledge graph. Labels are unique case-insensitively;
// confidence only ever increases under upserts.
type Entity struct {
	ID              string                 `json:"id"`
	Label           string                 `json:"label"`
	EntityType      string                 `json:"entity_type"`
	Properties      map[string]interface{} `json:"properties,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Confidence      float64                `json:"confidence"`
	SourceSummaryID string                 `json:"source_summary_id,omitempty"`
}

// Relation is a directed edge (subject, predicate, object). A relation with
// TemporalEnd set is superseded and invisible to default queries.
type Relation struct {
	ID              string                 `json:"id"`
	SubjectID       string                 `json:"subject_id"`
	Predicate       string                 `json:"predicate"`
	ObjectID        string                 `json:"object_id"`
	Properties      map[string]interface{} `json:"properties,omitempty"`
	TemporalStart   *time.Time             `json:"temporal_start,omitempty"`
	TemporalEnd     *time.Time             `json:"temporal_end,omitempty"`
	Confidence      float64                `json:"confidence"`
	SourceSummaryID string                 `json:"source_summary_id,omitempty"`
}

// Active reports whether the relation has not been superseded or ended.
func (r *Relation) Active() bool { return r.TemporalEnd == nil }

// Summary is a textual memory at a tier. Tier is immutable after insert;
// content and token count update together.
type Summary struct {
	ID         string                 `json:"id"`
	Tier       int                    `json:"tier"`
	Content    string                 `json:"content"`
	TokenCount int                    `json:"token_count"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
	SessionID  string                 `json:"session_id,omitempty"`
	SourceIDs  []string               `json:"source_ids,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// WorkingEntry is an ephemeral Tier-0 record held only in process memory.
type WorkingEntry struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	TokenCount int       `json:"token_count"`
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id,omitempty"`
}

// VectorRecord is an embedded memory fragment. SourceID points at a summary
// or working-entry id; dangling references are tolerated by readers.
type VectorRecord struct {
	ID             string                 `json:"id"`
	SourceID       string                 `json:"source_id"`
	SourceType     string                 `json:"source_type"`
	ContentPreview string                 `json:"content_preview"`
	Embedding      []float32              `json:"-"`
	Dimensions     int                    `json:"dimensions"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	Confidence     float64                `json:"confidence"`
}

// Session is a bounded interval of interaction with a single active id.
type Session struct {
	ID        string                 `json:"id"`
	StartedAt time.Time              `json:"started_at"`
	EndedAt   *time.Time             `json:"ended_at,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// AccessEntry is one row of the retrieval frequency signal.
type AccessEntry struct {
	ID         int64     `json:"id"`
	MemoryID   string    `json:"memory_id"`
	MemoryType string    `json:"memory_type"`
	AccessedAt time.Time `json:"accessed_at"`
}
