package rpc

// Prompt is a static template the host requests by name.
type Prompt struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Text        string `json:"-"`
}

var prompts = map[string]Prompt{
	"memory-policy": {
		Name:        "memory-policy",
		Description: "When and how to store memories during a conversation",
		Text: `You have access to a persistent memory sidecar. Store memories as the
conversation progresses rather than at the end:

- kind=fact for stable statements about the user or the world ("User lives in Paris").
- kind=preference for likes, dislikes and settings, with the subject in entities.
- kind=event for things happening in this conversation; they stay in working memory.
- kind=core only for identity-level facts that should never be evicted.
- kind=summary for condensed recaps of earlier discussion.

Write each note as a complete sentence of at least 10 words that makes sense
without the surrounding conversation. Name entities explicitly so the
knowledge graph can link them.`,
	},
	"retrieval-guidance": {
		Name:        "retrieval-guidance",
		Description: "How to phrase memory_retrieve queries for best recall",
		Text: `Before answering questions that may depend on earlier conversations, call
memory_retrieve with a focused query. Name the entities you care about with
their proper capitalization — the graph stage resolves capitalized mentions.
Pass a token_budget matching the space you can spend; the digest is ranked
and deduplicated, so request more than you think you need and trim yourself.`,
	},
	"compression-guidance": {
		Name:        "compression-guidance",
		Description: "When to trigger manual memory compression",
		Text: `Working memory compresses itself on overflow. Call memory_compress
explicitly when: (scope=working) the conversation shifts topic and the
buffer holds finished business; (scope=session) many session summaries
accumulated and retrieval grows noisy; (scope=epoch) enough session
summaries exist to distill into a long-term epoch summary.`,
	},
}

func listPrompts() []Prompt {
	return []Prompt{
		prompts["memory-policy"],
		prompts["retrieval-guidance"],
		prompts["compression-guidance"],
	}
}
