package rpc

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/assemble"
	"github.com/latentcontext/latentcontext/internal/engine"
	"github.com/latentcontext/latentcontext/internal/memory"
)

const protocolVersion = "2024-11-05"

// Server dispatches JSON-RPC methods to the engine.
type Server struct {
	engine  *engine.Engine
	logger  *zap.Logger
	name    string
	version string
	tools   []Tool
	byName  map[string]Tool
}

// NewServer builds the dispatcher with the full tool surface registered.
func NewServer(eng *engine.Engine, name, version string, logger *zap.Logger) *Server {
	s := &Server{
		engine:  eng,
		logger:  logger.Named("rpc"),
		name:    name,
		version: version,
		byName:  map[string]Tool{},
	}
	s.registerTools()
	return s
}

// HandleRequest routes one request. Engine errors become error-tagged tool
// replies; only transport-level problems surface as JSON-RPC errors.
func (s *Server) HandleRequest(ctx context.Context, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	switch req.Method {
	case "initialize":
		resp.Result = map[string]interface{}{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]interface{}{
				"tools":   map[string]interface{}{},
				"prompts": map[string]interface{}{},
			},
			"serverInfo": map[string]string{"name": s.name, "version": s.version},
		}

	case "tools/list":
		defs := make([]ToolDefinition, len(s.tools))
		for i, t := range s.tools {
			defs[i] = t.Definition
		}
		resp.Result = map[string]interface{}{"tools": defs}

	case "tools/call":
		resp = s.callTool(ctx, req)

	case "prompts/list":
		resp.Result = map[string]interface{}{"prompts": listPrompts()}

	case "prompts/get":
		name, _ := argString(req.Params, "name")
		p, ok := prompts[name]
		if !ok {
			resp.Error = &Error{Code: codeInvalidParams, Message: fmt.Sprintf("unknown prompt %q", name)}
			break
		}
		resp.Result = map[string]interface{}{
			"description": p.Description,
			"messages": []map[string]interface{}{
				{"role": "user", "content": TextContent{Type: "text", Text: p.Text}},
			},
		}

	case "ping":
		resp.Result = map[string]interface{}{}

	case "shutdown":
		resp.Result = map[string]interface{}{}

	default:
		resp.Error = &Error{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %q", req.Method)}
	}
	return resp
}

func (s *Server) callTool(ctx context.Context, req Request) Response {
	resp := Response{JSONRPC: "2.0", ID: req.ID}

	name, _ := argString(req.Params, "name")
	tool, ok := s.byName[name]
	if !ok {
		resp.Error = &Error{Code: codeInvalidParams, Message: fmt.Sprintf("unknown tool %q", name)}
		return resp
	}

	args, _ := req.Params["arguments"].(map[string]interface{})

	start := time.Now()
	text, err := tool.Handler(ctx, args)
	s.logger.Debug("tool call",
		zap.String("tool", name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("error", err != nil))

	if err != nil {
		resp.Result = CallToolResult{
			Content: []TextContent{{Type: "text", Text: "Error: " + err.Error()}},
			IsError: true,
		}
		return resp
	}
	resp.Result = CallToolResult{Content: []TextContent{{Type: "text", Text: text}}}
	return resp
}

// ToolNames lists the registered tools, sorted.
func (s *Server) ToolNames() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (s *Server) register(t Tool) {
	s.tools = append(s.tools, t)
	s.byName[t.Definition.Name] = t
}

func (s *Server) registerTools() {
	s.register(Tool{
		Definition: ToolDefinition{
			Name:        "session_start",
			Description: "Start a new conversation session, archiving the previous one",
			InputSchema: objectSchema(nil, nil),
		},
		Handler: s.handleSessionStart,
	})
	s.register(Tool{
		Definition: ToolDefinition{
			Name:        "memory_store",
			Description: "Store a compact, self-contained memory note",
			InputSchema: objectSchema(map[string]interface{}{
				"content":    map[string]interface{}{"type": "string", "description": "Self-contained note text (at least 10 words)"},
				"kind":       map[string]interface{}{"type": "string", "enum": []string{"fact", "preference", "event", "summary", "core"}},
				"confidence": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
				"entities":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			}, []string{"content", "kind"}),
		},
		Handler: s.handleMemoryStore,
	})
	s.register(Tool{
		Definition: ToolDefinition{
			Name:        "memory_retrieve",
			Description: "Retrieve a ranked, deduplicated, token-budgeted digest of relevant memories",
			InputSchema: objectSchema(map[string]interface{}{
				"query":        map[string]interface{}{"type": "string"},
				"token_budget": map[string]interface{}{"type": "integer", "minimum": 1},
				"filters": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"memory_types":   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
						"after":          map[string]interface{}{"type": "string", "format": "date-time"},
						"before":         map[string]interface{}{"type": "string", "format": "date-time"},
						"min_confidence": map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
					},
				},
			}, []string{"query"}),
		},
		Handler: s.handleMemoryRetrieve,
	})
	s.register(Tool{
		Definition: ToolDefinition{
			Name:        "memory_compress",
			Description: "Compress working, session or epoch memory",
			InputSchema: objectSchema(map[string]interface{}{
				"scope": map[string]interface{}{"type": "string", "enum": []string{"working", "session", "epoch"}},
			}, []string{"scope"}),
		},
		Handler: s.handleMemoryCompress,
	})
	s.register(Tool{
		Definition: ToolDefinition{
			Name:        "memory_forget",
			Description: "Delete, deprecate or correct a stored memory",
			InputSchema: objectSchema(map[string]interface{}{
				"memory_id":  map[string]interface{}{"type": "string"},
				"action":     map[string]interface{}{"type": "string", "enum": []string{"deprecate", "correct", "delete"}},
				"correction": map[string]interface{}{"type": "string"},
			}, []string{"memory_id", "action"}),
		},
		Handler: s.handleMemoryForget,
	})
	s.register(Tool{
		Definition: ToolDefinition{
			Name:        "memory_status",
			Description: "Report per-tier counts, graph and vector totals, and the current session",
			InputSchema: objectSchema(nil, nil),
		},
		Handler: s.handleMemoryStatus,
	})
	s.register(Tool{
		Definition: ToolDefinition{
			Name:        "graph_query",
			Description: "Query the knowledge graph by entity or predicate",
			InputSchema: objectSchema(map[string]interface{}{
				"entity":   map[string]interface{}{"type": "string"},
				"relation": map[string]interface{}{"type": "string"},
				"depth":    map[string]interface{}{"type": "integer", "minimum": 1},
			}, []string{"entity"}),
		},
		Handler: s.handleGraphQuery,
	})
}

func (s *Server) handleSessionStart(ctx context.Context, args map[string]interface{}) (string, error) {
	res, err := s.engine.SessionStart(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Started session %s.", shortID(res.SessionID))
	if res.PreviousID != "" {
		fmt.Fprintf(&b, " Previous session %s ended.", shortID(res.PreviousID))
	}
	if res.Archived {
		fmt.Fprintf(&b, " %s", res.ArchiveSummary)
	}
	return b.String(), nil
}

func (s *Server) handleMemoryStore(ctx context.Context, args map[string]interface{}) (string, error) {
	content, ok := argString(args, "content")
	if !ok {
		return "", fmt.Errorf("content is required")
	}
	kind, ok := argString(args, "kind")
	if !ok {
		return "", fmt.Errorf("kind is required")
	}
	confidence := argFloat(args, "confidence", 1.0)
	entities := argStringSlice(args, "entities")

	res, warning, err := s.engine.MemoryStore(ctx, content, kind, confidence, entities)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stored %s memory %s at tier %d.", kind, shortID(res.MemoryID), res.Tier)
	if len(res.EntitiesCreated) > 0 {
		fmt.Fprintf(&b, " Entities created: %s.", strings.Join(res.EntitiesCreated, ", "))
	}
	if res.FactsStored > 0 {
		fmt.Fprintf(&b, " Facts stored: %d.", res.FactsStored)
	}
	if res.VectorID == "" {
		b.WriteString(" Vector indexing unavailable for this memory.")
	}
	if warning != "" {
		fmt.Fprintf(&b, " %s", warning)
	}
	return b.String(), nil
}

func (s *Server) handleMemoryRetrieve(ctx context.Context, args map[string]interface{}) (string, error) {
	query, ok := argString(args, "query")
	if !ok {
		return "", fmt.Errorf("query is required")
	}

	params := assemble.Params{
		Query:  query,
		Budget: argInt(args, "token_budget", 0),
	}
	if _, given := args["token_budget"]; given && params.Budget < 1 {
		return "", fmt.Errorf("token_budget must be at least 1")
	}

	if raw, ok := args["filters"].(map[string]interface{}); ok {
		params.Filters.MemoryTypes = argStringSlice(raw, "memory_types")
		params.Filters.MinConfidence = argFloat(raw, "min_confidence", 0)
		if v, ok := argString(raw, "after"); ok {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return "", fmt.Errorf("invalid after timestamp: %w", err)
			}
			params.Filters.After = &t
		}
		if v, ok := argString(raw, "before"); ok {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return "", fmt.Errorf("invalid before timestamp: %w", err)
			}
			params.Filters.Before = &t
		}
	}

	res, err := s.engine.MemoryRetrieve(ctx, params)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

func (s *Server) handleMemoryCompress(ctx context.Context, args map[string]interface{}) (string, error) {
	scope, ok := argString(args, "scope")
	if !ok {
		return "", fmt.Errorf("scope is required")
	}
	return s.engine.MemoryCompress(ctx, scope)
}

func (s *Server) handleMemoryForget(ctx context.Context, args map[string]interface{}) (string, error) {
	memoryID, ok := argString(args, "memory_id")
	if !ok {
		return "", fmt.Errorf("memory_id is required")
	}
	action, ok := argString(args, "action")
	if !ok {
		return "", fmt.Errorf("action is required")
	}
	correction, _ := argString(args, "correction")
	return s.engine.MemoryForget(ctx, memoryID, action, correction)
}

func (s *Server) handleMemoryStatus(ctx context.Context, args map[string]interface{}) (string, error) {
	st, err := s.engine.MemoryStatus(ctx)
	if err != nil {
		return "", err
	}
	return formatStatus(st), nil
}

func (s *Server) handleGraphQuery(ctx context.Context, args map[string]interface{}) (string, error) {
	entity, _ := argString(args, "entity")
	relation, _ := argString(args, "relation")
	depth := argInt(args, "depth", 1)
	return s.engine.GraphQuery(ctx, entity, relation, depth)
}

func formatStatus(st *memory.Status) string {
	var b strings.Builder
	b.WriteString("Memory status:\n")
	tierNames := []string{"working", "session", "epoch", "core"}
	for tier := 0; tier <= 3; tier++ {
		ts := st.Tiers[tier]
		fmt.Fprintf(&b, "  Tier %d (%s): %d memories, ~%d tokens\n", tier, tierNames[tier], ts.Count, ts.TokenEstimate)
	}
	fmt.Fprintf(&b, "  Graph: %d entities, %d active relations\n", st.Graph.Entities, st.Graph.Relations)
	fmt.Fprintf(&b, "  Vectors: %d\n", st.Vectors)
	if st.SessionID != "" {
		fmt.Fprintf(&b, "  Session: %s", shortID(st.SessionID))
	} else {
		b.WriteString("  Session: none")
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func objectSchema(props map[string]interface{}, required []string) map[string]interface{} {
	if props == nil {
		props = map[string]interface{}{}
	}
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func argString(args map[string]interface{}, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok && v != ""
}

func argFloat(args map[string]interface{}, key string, def float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}

func argInt(args map[string]interface{}, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return def
}

func argStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	var out []string
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
