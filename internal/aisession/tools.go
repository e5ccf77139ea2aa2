package aisession

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/local/supportbot/internal/vendorllm"
)

// toolTimeout bounds every tool call at 10s. A call that exceeds it does not
// abort the turn: dispatch returns a timeout tool-error result that the LLM
// sees and may retry.
const toolTimeout = 10 * time.Second

// ToolFunc is a pure function from a JSON argument payload to a JSON (or
// plain-text) result. Implementations must be idempotent, since a timed-out
// call may have partially executed on the vendor side and the LLM is free
// to retry.
type ToolFunc func(ctx context.Context, rawArgs string) (string, error)

// Tool pairs a vendor-facing definition with its implementation.
type Tool struct {
	Def vendorllm.ToolDef
	Run ToolFunc
}

// ToolRegistry is the set of tools offered to the LLM this turn. Grounded
// on the teacher's tools.Registry (internal/agent/tools), narrowed to a
// flat name->Tool map since this coordinator's tool set is fixed at startup
// rather than dynamically registered per conversation.
type ToolRegistry struct {
	tools map[string]Tool
	order []string
}

// NewToolRegistry builds an empty registry; callers Register each tool.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: make(map[string]Tool)}
}

// Register adds or replaces a tool by name.
func (r *ToolRegistry) Register(t Tool) {
	if _, exists := r.tools[t.Def.Name]; !exists {
		r.order = append(r.order, t.Def.Name)
	}
	r.tools[t.Def.Name] = t
}

// Definitions returns the vendor-facing tool catalogue in registration
// order, for inclusion in every TurnRequest.
func (r *ToolRegistry) Definitions() []vendorllm.ToolDef {
	defs := make([]vendorllm.ToolDef, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Def)
	}
	return defs
}

// dispatch runs the named tool with a bounded timeout, translating both a
// missing tool and a timeout into a result string the LLM sees as a tool
// error (matching the teacher's "(tool error) "+err.Error() convention in
// agent/loop.go) rather than aborting the whole turn.
func (r *ToolRegistry) dispatch(ctx context.Context, call vendorllm.ToolCall) string {
	t, ok := r.tools[call.Name]
	if !ok {
		return "(tool error) unknown tool: " + call.Name
	}
	tctx, cancel := context.WithTimeout(ctx, toolTimeout)
	defer cancel()

	result, err := t.Run(tctx, call.Arguments)
	if err != nil {
		if tctx.Err() != nil {
			return "(tool error) timeout after " + toolTimeout.String() + ": retry if appropriate"
		}
		return "(tool error) " + err.Error()
	}
	return result
}

// --- Built-in tool constructors (spec §4.5: "at minimum get_active_promotions,
// lookup_partner, search_knowledge_base") ---

// PromotionLookup is the narrow capability the promotions broadcaster
// exposes into the tool registry, breaking the C5<->C7 cycle per spec §9
// ("pass a narrow capability interface... do not pass the broadcaster
// itself").
type PromotionLookup interface {
	ListActive(ctx context.Context) ([]ActivePromotion, error)
}

// ActivePromotion is the subset of a promotion's fields worth surfacing to
// the assistant.
type ActivePromotion struct {
	ID          string
	Title       string
	Description string
	Link        string
}

// NewGetActivePromotionsTool builds the get_active_promotions tool.
func NewGetActivePromotionsTool(lookup PromotionLookup) Tool {
	return Tool{
		Def: vendorllm.ToolDef{
			Name:        "get_active_promotions",
			Description: "List promotions currently active and available to mention to the user.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		Run: func(ctx context.Context, _ string) (string, error) {
			promos, err := lookup.ListActive(ctx)
			if err != nil {
				return "", err
			}
			b, err := json.Marshal(promos)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	}
}

// PartnerLookup is the narrow capability the auth service exposes for the
// lookup_partner tool (partner_code -> identity, without exposing the
// rest of auth.Service's surface to the LLM tool layer).
type PartnerLookup interface {
	LookupPartner(ctx context.Context, partnerCode string) (PartnerInfo, bool, error)
}

// PartnerInfo is what the assistant is allowed to learn about a partner
// identity row.
type PartnerInfo struct {
	PartnerCode string `json:"partner_code"`
	Name        string `json:"name"`
	Authorized  bool   `json:"authorized"`
}

type lookupPartnerArgs struct {
	PartnerCode string `json:"partner_code"`
}

// NewLookupPartnerTool builds the lookup_partner tool.
func NewLookupPartnerTool(lookup PartnerLookup) Tool {
	return Tool{
		Def: vendorllm.ToolDef{
			Name:        "lookup_partner",
			Description: "Look up a partner's authorization status by partner_code.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"partner_code": map[string]any{"type": "string"},
				},
				"required": []string{"partner_code"},
			},
		},
		Run: func(ctx context.Context, rawArgs string) (string, error) {
			var args lookupPartnerArgs
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			info, found, err := lookup.LookupPartner(ctx, args.PartnerCode)
			if err != nil {
				return "", err
			}
			if !found {
				return `{"found": false}`, nil
			}
			b, err := json.Marshal(struct {
				Found bool `json:"found"`
				PartnerInfo
			}{Found: true, PartnerInfo: info})
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
	}
}

// KnowledgeBase is the narrow capability the search_knowledge_base tool
// uses. The real backend (a Drive-folder-backed RAG index, per spec §6's
// optional KNOWLEDGE_DRIVE_FOLDER_ID) is an external collaborator out of
// scope for the core per §1 ("file/blob fetching... specified only by the
// interfaces the core uses"); NoopKnowledgeBase below is the stand-in used
// when no folder is configured.
type KnowledgeBase interface {
	Search(ctx context.Context, query string) (string, error)
}

// NoopKnowledgeBase reports that no knowledge base is configured, so the
// tool degrades to a clear, LLM-visible message rather than a silent empty
// result or an error that aborts the turn.
type NoopKnowledgeBase struct{}

func (NoopKnowledgeBase) Search(ctx context.Context, query string) (string, error) {
	return "knowledge base is not configured for this deployment", nil
}

type searchKBArgs struct {
	Query string `json:"query"`
}

// NewSearchKnowledgeBaseTool builds the search_knowledge_base tool.
func NewSearchKnowledgeBaseTool(kb KnowledgeBase) Tool {
	return Tool{
		Def: vendorllm.ToolDef{
			Name:        "search_knowledge_base",
			Description: "Search the support knowledge base for an answer to the user's question.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
				"required": []string{"query"},
			},
		},
		Run: func(ctx context.Context, rawArgs string) (string, error) {
			var args searchKBArgs
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			return kb.Search(ctx, args.Query)
		},
	}
}
