package graph

import (
	"fmt"
	"strings"
)

// serializeEntity renders the neighborhood text block:
//
//	Entity: <label> (<entity_type>)
//	  → <predicate> → <object_label> [conf:<0.xx>]
//	  ← <subject_label> → <predicate> [conf:<0.xx>]
//
// The conf suffix appears only below full confidence.
func serializeEntity(view *EntityView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entity: %s (%s)", view.Entity.Label, view.Entity.EntityType)
	for _, f := range view.Outgoing {
		fmt.Fprintf(&b, "\n  → %s → %s%s", f.Predicate, f.ObjectLabel, confSuffix(f.Confidence))
	}
	for _, f := range view.Incoming {
		fmt.Fprintf(&b, "\n  ← %s → %s%s", f.SubjectLabel, f.Predicate, confSuffix(f.Confidence))
	}
	return b.String()
}

// FormatFacts renders a facts list, one "<subj> → <pred> → <obj>" per line.
func FormatFacts(facts []Fact) string {
	lines := make([]string, len(facts))
	for i, f := range facts {
		lines[i] = fmt.Sprintf("%s → %s → %s%s", f.SubjectLabel, f.Predicate, f.ObjectLabel, confSuffix(f.Confidence))
	}
	return strings.Join(lines, "\n")
}

func confSuffix(conf float64) string {
	if conf >= 1.0 {
		return ""
	}
	return fmt.Sprintf(" [conf:%.2f]", conf)
}
