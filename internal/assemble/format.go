package assemble

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/latentcontext/latentcontext/internal/config"
)

// sectionLabels are the human headings per source tag.
var sectionLabels = map[string]string{
	SourceCore:           "## Core Memory",
	SourceWorking:        "## Working Memory",
	SourceCurrentSession: "## Current Session",
	SourceGraph:          "## Knowledge Graph",
	SourceLongTerm:       "## Long-Term Memory",
	SourcePastSessions:   "## Past Sessions",
	SourceVector:         "## Related Memories",
}

type section struct {
	source string
	texts  []string
}

// sectionOrder is the fixed emission order for the configured mode.
func (a *Assembler) sectionOrder() []string {
	if a.cfg.Retrieval.Mode == config.ModeSession {
		return []string{SourceWorking, SourceCurrentSession}
	}
	return []string{SourceWorking, SourceCurrentSession, SourceGraph, SourceLongTerm, SourcePastSessions, SourceVector}
}

// appendSections groups selected candidates into sections in the fixed order.
func appendSections(sections []section, selected []candidate, order []string) []section {
	for _, src := range order {
		var texts []string
		for _, c := range selected {
			if c.source == src {
				texts = append(texts, c.text)
			}
		}
		if len(texts) > 0 {
			sections = append(sections, section{source: src, texts: texts})
		}
	}
	return sections
}

// format renders sections plus the metadata footer. An empty selection yields
// a short guidance message instead of an empty digest.
func (a *Assembler) format(sections []section, res *Result, budget int, sourceOrder []string) string {
	var blocks []string
	for _, sec := range sections {
		blocks = append(blocks, sectionLabels[sec.source]+"\n"+strings.Join(sec.texts, "\n"))
	}

	body := strings.Join(blocks, "\n\n")
	if body == "" {
		body = emptyResultGuidance
	}

	return body + "\n\n" + footer(res.SessionID, sourceOrder, res.SourceCounts, res.TotalTokens, budget)
}

// footer is the bit-exact metadata trailer:
//
//	--- Session: <id-prefix> | Sources: <tag:count, …> | Tokens: <used>/<budget> ---
func footer(sessionID string, sourceOrder []string, counts map[string]int, used, budget int) string {
	id := "none"
	if sessionID != "" {
		id = sessionID
		if len(id) > 8 {
			id = id[:8]
		}
	}

	var sources []string
	for _, tag := range sourceOrder {
		sources = append(sources, fmt.Sprintf("%s:%d", tag, counts[tag]))
	}

	return fmt.Sprintf("--- Session: %s | Sources: %s | Tokens: %d/%d ---",
		id, strings.Join(sources, ", "), used, budget)
}

var (
	capitalizedSeq = regexp.MustCompile(`[A-Z][a-z]*(?:\s[A-Z][a-z]*)*`)
	quotedSpan     = regexp.MustCompile(`"([^"]+)"|'([^']+)'`)
)

// mentionStopwords filters capitalized sequences that are sentence mechanics
// rather than entities.
var mentionStopwords = map[string]bool{
	"The": true, "A": true, "An": true, "And": true, "Or": true, "But": true,
	"What": true, "Who": true, "Where": true, "When": true, "Why": true, "How": true,
	"Is": true, "Are": true, "Was": true, "Were": true, "Do": true, "Does": true,
	"Did": true, "Can": true, "Could": true, "Will": true, "Would": true, "Should": true,
	"I": true, "My": true, "Me": true, "You": true, "Your": true, "It": true,
	"This": true, "That": true, "These": true, "Those": true, "If": true, "Then": true,
	"In": true, "On": true, "At": true, "To": true, "For": true, "Of": true,
	"With": true, "About": true, "Tell": true, "Show": true, "Give": true,
	"Find": true, "Please": true,
}

// extractMentions pulls up to limit candidate entity mentions from a query:
// capitalized sequences plus quoted substrings, minus stopwords.
func extractMentions(query string, limit int) []string {
	seen := map[string]bool{}
	var mentions []string

	add := func(m string) {
		m = strings.TrimSpace(m)
		if m == "" || mentionStopwords[m] || seen[strings.ToLower(m)] {
			return
		}
		seen[strings.ToLower(m)] = true
		mentions = append(mentions, m)
	}

	for _, m := range capitalizedSeq.FindAllString(query, -1) {
		add(m)
	}
	for _, groups := range quotedSpan.FindAllStringSubmatch(query, -1) {
		if groups[1] != "" {
			add(groups[1])
		} else {
			add(groups[2])
		}
	}

	if len(mentions) > limit {
		mentions = mentions[:limit]
	}
	return mentions
}
