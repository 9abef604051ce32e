// Package graph implements the entity-relation knowledge graph with temporal
// supersession.
//
// Entities are unique by case-insensitive label. For any (subject, predicate)
// pair at most one relation is active; storing a contradicting fact ends the
// prior relation at now and halves its confidence, so "X moved from Paris to
// London" keeps the Paris edge as history without surfacing it in default
// queries.
package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/model"
	"github.com/latentcontext/latentcontext/internal/store"
)

// Graph operates on the entities and relations tables.
type Graph struct {
	store  *store.Store
	logger *zap.Logger
}

// New returns a Graph over the given store.
func New(st *store.Store, logger *zap.Logger) *Graph {
	return &Graph{store: st, logger: logger.Named("graph")}
}

// Fact is a relation joined with its endpoint labels.
type Fact struct {
	RelationID   string  `json:"relation_id"`
	SubjectLabel string  `json:"subject"`
	Predicate    string  `json:"predicate"`
	ObjectLabel  string  `json:"object"`
	Confidence   float64 `json:"confidence"`
}

// EntityView is the result of a neighborhood query.
type EntityView struct {
	Entity    model.Entity   `json:"entity"`
	Outgoing  []Fact         `json:"outgoing"`
	Incoming  []Fact         `json:"incoming"`
	Neighbors []model.Entity `json:"neighbors"`
	Text      string         `json:"text"`
}

// EnsureEntity finds an entity by case-insensitive label or creates it.
// An existing entity's confidence is raised only when the incoming value
// strictly exceeds the stored one; it never decreases.
func (g *Graph) EnsureEntity(ctx context.Context, label, entityType string, props map[string]interface{}, confidence float64, sourceSummaryID string) (string, bool, error) {
	existing, err := g.store.EntityByLabel(ctx, label)
	if err != nil {
		return "", false, fmt.Errorf("lookup entity: %w", err)
	}
	if existing != nil {
		if confidence > existing.Confidence {
			if err := g.store.UpdateEntityConfidence(ctx, existing.ID, confidence, store.FormatTime(time.Now())); err != nil {
				return "", false, fmt.Errorf("update entity confidence: %w", err)
			}
		}
		return existing.ID, false, nil
	}

	if entityType == "" {
		entityType = "unknown"
	}
	now := time.Now()
	e := &model.Entity{
		ID:              uuid.NewString(),
		Label:           label,
		EntityType:      entityType,
		Properties:      props,
		CreatedAt:       now,
		UpdatedAt:       now,
		Confidence:      confidence,
		SourceSummaryID: sourceSummaryID,
	}
	if err := g.store.InsertEntity(ctx, e); err != nil {
		return "", false, err
	}
	return e.ID, true, nil
}

// FactParams describe a fact to upsert.
type FactParams struct {
	SubjectLabel    string
	Predicate       string
	ObjectLabel     string
	Confidence      float64
	Properties      map[string]interface{}
	TemporalStart   *time.Time
	SourceSummaryID string
}

// StoreFact ensures both endpoints and upserts the relation. A contradicting
// active relation (same subject and predicate, different object) is ended at
// now with its confidence halved; a matching one is replaced in place.
func (g *Graph) StoreFact(ctx context.Context, p FactParams) (string, error) {
	now := time.Now()

	subjID, _, err := g.EnsureEntity(ctx, p.SubjectLabel, "", nil, p.Confidence, p.SourceSummaryID)
	if err != nil {
		return "", err
	}
	objID, _, err := g.EnsureEntity(ctx, p.ObjectLabel, "", nil, p.Confidence, p.SourceSummaryID)
	if err != nil {
		return "", err
	}

	// Clock skew guard: a start in the future would make supersession
	// ordering undefined.
	start := p.TemporalStart
	if start != nil && start.After(now) {
		start = &now
	}

	existing, err := g.store.ActiveRelation(ctx, subjID, p.Predicate)
	if err != nil {
		return "", fmt.Errorf("lookup active relation: %w", err)
	}

	rel := &model.Relation{
		SubjectID:       subjID,
		Predicate:       p.Predicate,
		ObjectID:        objID,
		Properties:      p.Properties,
		TemporalStart:   start,
		Confidence:      p.Confidence,
		SourceSummaryID: p.SourceSummaryID,
	}

	switch {
	case existing != nil && existing.ObjectID != objID:
		if err := g.store.EndRelation(ctx, existing.ID, now, existing.Confidence*0.5); err != nil {
			return "", fmt.Errorf("supersede relation: %w", err)
		}
		rel.ID = uuid.NewString()
	case existing != nil:
		rel.ID = existing.ID
	default:
		rel.ID = uuid.NewString()
	}

	if err := g.store.InsertRelation(ctx, rel); err != nil {
		return "", err
	}
	return rel.ID, nil
}

// QueryEntity resolves a label (exact case-insensitive, then substring
// fallback by confidence) and collects its active neighborhood to the given
// depth. Returns nil when no entity matches.
func (g *Graph) QueryEntity(ctx context.Context, label string, depth int) (*EntityView, error) {
	root, err := g.store.EntityByLabel(ctx, label)
	if err != nil {
		return nil, fmt.Errorf("lookup entity: %w", err)
	}
	if root == nil {
		root, err = g.store.EntityByLabelLike(ctx, label)
		if err != nil {
			return nil, fmt.Errorf("fuzzy lookup entity: %w", err)
		}
	}
	if root == nil {
		return nil, nil
	}

	view := &EntityView{Entity: *root}
	labels := map[string]string{root.ID: root.Label}
	visited := map[string]bool{root.ID: true}

	if depth >= 1 {
		firstHop, err := g.collectEdges(ctx, root.ID, view, labels, visited)
		if err != nil {
			return nil, err
		}
		view.Neighbors = firstHop

		if depth > 1 {
			for _, n := range firstHop {
				secondHop, err := g.collectEdges(ctx, n.ID, view, labels, visited)
				if err != nil {
					return nil, err
				}
				view.Neighbors = append(view.Neighbors, secondHop...)
			}
		}
	}

	view.Text = serializeEntity(view)
	return view, nil
}

// collectEdges appends the entity's active relations to the view and returns
// any endpoints not yet visited.
func (g *Graph) collectEdges(ctx context.Context, entityID string, view *EntityView, labels map[string]string, visited map[string]bool) ([]model.Entity, error) {
	outgoing, err := g.store.RelationsBySubject(ctx, entityID, true)
	if err != nil {
		return nil, err
	}
	incoming, err := g.store.RelationsByObject(ctx, entityID, true)
	if err != nil {
		return nil, err
	}

	var fresh []model.Entity
	note := func(id string) error {
		if visited[id] {
			return nil
		}
		visited[id] = true
		e, err := g.store.EntityByID(ctx, id)
		if err != nil {
			return err
		}
		if e != nil {
			labels[id] = e.Label
			fresh = append(fresh, *e)
		}
		return nil
	}

	for _, r := range outgoing {
		if err := note(r.ObjectID); err != nil {
			return nil, err
		}
		view.Outgoing = append(view.Outgoing, g.fact(ctx, r, labels))
	}
	for _, r := range incoming {
		if err := note(r.SubjectID); err != nil {
			return nil, err
		}
		view.Incoming = append(view.Incoming, g.fact(ctx, r, labels))
	}
	return fresh, nil
}

func (g *Graph) fact(ctx context.Context, r model.Relation, labels map[string]string) Fact {
	return Fact{
		RelationID:   r.ID,
		SubjectLabel: g.label(ctx, r.SubjectID, labels),
		Predicate:    r.Predicate,
		ObjectLabel:  g.label(ctx, r.ObjectID, labels),
		Confidence:   r.Confidence,
	}
}

// label resolves an entity id, tolerating dangling references.
func (g *Graph) label(ctx context.Context, id string, cache map[string]string) string {
	if l, ok := cache[id]; ok {
		return l
	}
	e, err := g.store.EntityByID(ctx, id)
	if err != nil || e == nil {
		cache[id] = ""
		return ""
	}
	cache[id] = e.Label
	return e.Label
}

// QueryByPredicate returns all active facts with the given predicate.
func (g *Graph) QueryByPredicate(ctx context.Context, predicate string) ([]Fact, error) {
	rels, err := g.store.RelationsByPredicate(ctx, predicate)
	if err != nil {
		return nil, err
	}
	labels := map[string]string{}
	facts := make([]Fact, 0, len(rels))
	for _, r := range rels {
		facts = append(facts, g.fact(ctx, r, labels))
	}
	return facts, nil
}

// RemoveEntity deletes the entity and every relation it participates in,
// active or superseded. Returns false when the label resolves to nothing.
func (g *Graph) RemoveEntity(ctx context.Context, label string) (bool, error) {
	e, err := g.store.EntityByLabel(ctx, label)
	if err != nil {
		return false, err
	}
	if e == nil {
		return false, nil
	}
	if err := g.store.DeleteRelationsForEntity(ctx, e.ID); err != nil {
		return false, err
	}
	if err := g.store.DeleteEntity(ctx, e.ID); err != nil {
		return false, err
	}
	return true, nil
}

// DeprecateRelation sets the relation's confidence and marks it ended at now.
func (g *Graph) DeprecateRelation(ctx context.Context, id string, newConfidence float64) error {
	return g.store.EndRelation(ctx, id, time.Now(), newConfidence)
}

// Counts returns the entity total and the active relation total.
func (g *Graph) Counts(ctx context.Context) (entities, relations int, err error) {
	entities, err = g.store.CountEntities(ctx)
	if err != nil {
		return 0, 0, err
	}
	relations, err = g.store.CountActiveRelations(ctx)
	return entities, relations, err
}
