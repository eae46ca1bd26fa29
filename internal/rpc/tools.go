package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chitta-project/chitta/internal/dynamics"
	"github.com/chitta-project/chitta/internal/mind"
	"github.com/chitta-project/chitta/internal/node"
	"github.com/chitta-project/chitta/internal/retrieval"
)

// ToolHandler executes one tools/call invocation.
type ToolHandler func(ctx context.Context, args map[string]interface{}) (CallToolResult, error)

// toolList is the full spec §6 tool surface, argument shapes intentionally
// minimal since the schemas themselves are out of core scope.
var toolList = []Tool{
	{Name: "soul_context", Description: "Return the engine's current state, coherence, and vitality in one call."},
	{Name: "grow", Description: "Remember a new typed node (wisdom, belief, episode, ...)."},
	{Name: "observe", Description: "Record that a node was looked at, for session priming."},
	{Name: "update", Description: "Replace a node's text payload and re-embed it."},
	{Name: "recall", Description: "Run the recall pipeline (dense|sparse|hybrid) for a query."},
	{Name: "recall_by_tag", Description: "Return every node carrying an exact tag."},
	{Name: "resonate", Description: "Recall with spreading activation active."},
	{Name: "full_resonate", Description: "Recall with every optional stage active."},
	{Name: "cycle", Description: "Run one dynamics tick; optionally settle toward attractors."},
	{Name: "attractors", Description: "List current attractor nodes."},
	{Name: "lens", Description: "View nodes of a single type."},
	{Name: "lens_harmony", Description: "Coherence score, viewed as a single lens summary."},
	{Name: "intend", Description: "Create an Intention node and mark it active this session."},
	{Name: "wonder", Description: "Create a Question node."},
	{Name: "answer", Description: "Attach an answer to a Question node via a Supports edge."},
	{Name: "connect", Description: "Create a typed, weighted edge between two nodes."},
	{Name: "tag", Description: "Add or remove a tag on a node."},
	{Name: "narrate", Description: "Return the text payload of a node verbatim."},
	{Name: "feedback", Description: "Enqueue a feedback event for the next tick's apply_feedback."},
	{Name: "ledger", Description: "Save, load, update, or list session ledgers."},
	{Name: "propagate", Description: "Propagate a confidence delta outward from a node."},
	{Name: "forget", Description: "Remove a node, optionally cascading and rewiring its neighbours."},
	{Name: "epistemic_state", Description: "Coherence, vitality, and low-confidence ratio summary."},
	{Name: "bias_scan", Description: "Average effective confidence of nodes carrying a tag."},
	{Name: "competence", Description: "Return the current retrieval scoring configuration."},
	{Name: "cross_project", Description: "List ledgers for a project across sessions."},
}

func registerTools(m *mind.Mind) map[string]ToolHandler {
	return map[string]ToolHandler{
		"soul_context":    handleSoulContext(m),
		"grow":            handleGrow(m),
		"observe":         handleObserve(m),
		"update":          handleUpdate(m),
		"recall":          handleRecall(m),
		"recall_by_tag":   handleRecallByTag(m),
		"resonate":        handleResonate(m),
		"full_resonate":   handleFullResonate(m),
		"cycle":           handleCycle(m),
		"attractors":      handleAttractors(m),
		"lens":            handleLens(m),
		"lens_harmony":    handleLensHarmony(m),
		"intend":          handleIntend(m),
		"wonder":          handleWonder(m),
		"answer":          handleAnswer(m),
		"connect":         handleConnect(m),
		"tag":             handleTag(m),
		"narrate":         handleNarrate(m),
		"feedback":        handleFeedback(m),
		"ledger":          handleLedger(m),
		"propagate":       handlePropagate(m),
		"forget":          handleForget(m),
		"epistemic_state": handleEpistemicState(m),
		"bias_scan":       handleBiasScan(m),
		"competence":      handleCompetence(m),
		"cross_project":   handleCrossProject(m),
	}
}

func jsonText(v interface{}) CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return errorResult(err)
	}
	return CallToolResult{Content: []Content{{Type: "text", Text: string(b)}}, Structured: v}
}

func handleSoulContext(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		now := time.Now()
		state, err := m.State()
		if err != nil {
			return errorResult(err), nil
		}
		return jsonText(map[string]interface{}{
			"state":      state,
			"coherence":  m.Coherence(now),
			"vitality":   m.Health(now),
			"session":    m.SessionContext(),
		}), nil
	}
}

func handleGrow(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		text, err := requireString(args, "text")
		if err != nil {
			return errorResult(err), nil
		}
		typ := node.Type(argStringDefault(args, "type", string(node.Episode)))
		confidence := argFloat(args, "confidence", 0)
		tags := argStrings(args, "tags")
		n, err := m.Remember(ctx, text, typ, confidence, tags)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonText(map[string]interface{}{"id": n.ID}), nil
	}
}

func argStringDefault(args map[string]interface{}, key, def string) string {
	if s, ok := argString(args, key); ok && s != "" {
		return s
	}
	return def
}

func handleObserve(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		id, err := argNodeID(args, "id")
		if err != nil {
			return errorResult(err), nil
		}
		if err := m.ObserveNode(id, time.Now()); err != nil {
			return errorResult(err), nil
		}
		return textResult("ok"), nil
	}
}

func handleUpdate(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		id, err := argNodeID(args, "id")
		if err != nil {
			return errorResult(err), nil
		}
		text, err := requireString(args, "text")
		if err != nil {
			return errorResult(err), nil
		}
		if err := m.UpdatePayload(ctx, id, text); err != nil {
			return errorResult(err), nil
		}
		return textResult("ok"), nil
	}
}

func parseMode(args map[string]interface{}) retrieval.Mode {
	switch argStringDefault(args, "mode", "hybrid") {
	case "dense":
		return retrieval.ModeDense
	case "sparse":
		return retrieval.ModeSparse
	default:
		return retrieval.ModeHybrid
	}
}

func handleRecall(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		query, err := requireString(args, "query")
		if err != nil {
			return errorResult(err), nil
		}
		k := argInt(args, "k", 10)
		flags := retrieval.Flags{
			Prime:   argBool(args, "prime", true),
			Inhibit: argBool(args, "inhibit", true),
			Spread:  argBool(args, "spread", false),
			Learn:   argBool(args, "learn", true),
		}
		results, err := m.Recall(ctx, parseMode(args), query, k, flags, time.Now())
		if err != nil {
			return errorResult(err), nil
		}
		return jsonText(results), nil
	}
}

func handleRecallByTag(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		tag, err := requireString(args, "tag")
		if err != nil {
			return errorResult(err), nil
		}
		return jsonText(m.RecallByTag(tag)), nil
	}
}

func handleResonate(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		query, err := requireString(args, "query")
		if err != nil {
			return errorResult(err), nil
		}
		k := argInt(args, "k", 10)
		results, err := m.Resonate(ctx, query, k, time.Now())
		if err != nil {
			return errorResult(err), nil
		}
		return jsonText(results), nil
	}
}

func handleFullResonate(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		query, err := requireString(args, "query")
		if err != nil {
			return errorResult(err), nil
		}
		k := argInt(args, "k", 10)
		results, err := m.FullResonate(ctx, query, k, time.Now())
		if err != nil {
			return errorResult(err), nil
		}
		return jsonText(results), nil
	}
}

func handleCycle(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		now := time.Now()
		if err := m.Tick(now); err != nil {
			return errorResult(err), nil
		}
		if argBool(args, "attractors", false) {
			settleStrength := argFloat(args, "settle_strength", 0.1)
			if err := m.SettleTowardAttractors(now, settleStrength); err != nil {
				return errorResult(err), nil
			}
		}
		return textResult("ok"), nil
	}
}

func handleAttractors(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		return jsonText(m.FindAttractors(time.Now())), nil
	}
}

func handleLens(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		typ, err := requireString(args, "type")
		if err != nil {
			return errorResult(err), nil
		}
		return jsonText(m.QueryByType(node.Type(typ))), nil
	}
}

func handleLensHarmony(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		return jsonText(m.Coherence(time.Now())), nil
	}
}

func handleIntend(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		text, err := requireString(args, "text")
		if err != nil {
			return errorResult(err), nil
		}
		n, err := m.Remember(ctx, text, node.Intention, argFloat(args, "confidence", 0.5), argStrings(args, "tags"))
		if err != nil {
			return errorResult(err), nil
		}
		m.MarkIntention(n.ID)
		return jsonText(map[string]interface{}{"id": n.ID}), nil
	}
}

func handleWonder(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		text, err := requireString(args, "text")
		if err != nil {
			return errorResult(err), nil
		}
		n, err := m.Remember(ctx, text, node.Question, argFloat(args, "confidence", 0.3), argStrings(args, "tags"))
		if err != nil {
			return errorResult(err), nil
		}
		return jsonText(map[string]interface{}{"id": n.ID}), nil
	}
}

func handleAnswer(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		question, err := argNodeID(args, "question_id")
		if err != nil {
			return errorResult(err), nil
		}
		text, err := requireString(args, "text")
		if err != nil {
			return errorResult(err), nil
		}
		answer, err := m.Remember(ctx, text, node.Wisdom, argFloat(args, "confidence", 0.6), argStrings(args, "tags"))
		if err != nil {
			return errorResult(err), nil
		}
		if err := m.Connect(answer.ID, question, node.Supports, 1.0); err != nil {
			return errorResult(err), nil
		}
		return jsonText(map[string]interface{}{"id": answer.ID}), nil
	}
}

func handleConnect(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		from, err := argNodeID(args, "from")
		if err != nil {
			return errorResult(err), nil
		}
		to, err := argNodeID(args, "to")
		if err != nil {
			return errorResult(err), nil
		}
		edgeType := node.EdgeType(argStringDefault(args, "edge_type", string(node.RelatesTo)))
		weight := argFloat(args, "weight", 1.0)
		if err := m.Connect(from, to, edgeType, weight); err != nil {
			return errorResult(err), nil
		}
		return textResult("ok"), nil
	}
}

func handleTag(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		id, err := argNodeID(args, "id")
		if err != nil {
			return errorResult(err), nil
		}
		tag, err := requireString(args, "tag")
		if err != nil {
			return errorResult(err), nil
		}
		if argBool(args, "remove", false) {
			err = m.Untag(id, tag)
		} else {
			err = m.Tag(id, tag)
		}
		if err != nil {
			return errorResult(err), nil
		}
		return textResult("ok"), nil
	}
}

func handleNarrate(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		id, err := argNodeID(args, "id")
		if err != nil {
			return errorResult(err), nil
		}
		text, err := m.Text(id)
		if err != nil {
			return errorResult(err), nil
		}
		return textResult(text), nil
	}
}

func handleFeedback(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		id, err := argNodeID(args, "id")
		if err != nil {
			return errorResult(err), nil
		}
		kind, err := requireString(args, "kind")
		if err != nil {
			return errorResult(err), nil
		}
		magnitude := argFloat(args, "magnitude", 1.0)
		context := argStringDefault(args, "context", "")
		m.Feedback(id, dynamics.FeedbackKind(kind), magnitude, context)
		return textResult("ok"), nil
	}
}

func handleLedger(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		action, err := requireString(args, "action")
		if err != nil {
			return errorResult(err), nil
		}
		switch action {
		case "save":
			payload, err := requireString(args, "json")
			if err != nil {
				return errorResult(err), nil
			}
			sessionID, err := requireString(args, "session_id")
			if err != nil {
				return errorResult(err), nil
			}
			project, err := requireString(args, "project")
			if err != nil {
				return errorResult(err), nil
			}
			n, err := m.SaveLedger(payload, sessionID, project)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonText(map[string]interface{}{"id": n.ID}), nil
		case "load":
			sessionID, err := requireString(args, "session_id")
			if err != nil {
				return errorResult(err), nil
			}
			project, err := requireString(args, "project")
			if err != nil {
				return errorResult(err), nil
			}
			n, err := m.LoadLedger(sessionID, project)
			if err != nil {
				return errorResult(err), nil
			}
			return jsonText(n), nil
		case "update":
			id, err := argNodeID(args, "id")
			if err != nil {
				return errorResult(err), nil
			}
			payload, err := requireString(args, "json")
			if err != nil {
				return errorResult(err), nil
			}
			if err := m.UpdateLedger(id, payload); err != nil {
				return errorResult(err), nil
			}
			return textResult("ok"), nil
		case "list":
			project, err := requireString(args, "project")
			if err != nil {
				return errorResult(err), nil
			}
			return jsonText(m.ListLedgers(project)), nil
		default:
			return errorResult(fmt.Errorf("rpc: unknown ledger action %q", action)), nil
		}
	}
}

func handlePropagate(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		id, err := argNodeID(args, "id")
		if err != nil {
			return errorResult(err), nil
		}
		delta := argFloat(args, "delta", 0.1)
		decay := argFloat(args, "decay", 0.5)
		depth := argInt(args, "depth", 2)
		if err := m.PropagateConfidence(id, delta, decay, depth); err != nil {
			return errorResult(err), nil
		}
		return textResult("ok"), nil
	}
}

func handleForget(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		id, err := argNodeID(args, "id")
		if err != nil {
			return errorResult(err), nil
		}
		cascade := argBool(args, "cascade", true)
		rewire := argBool(args, "rewire", true)
		if err := m.Forget(id, cascade, rewire); err != nil {
			return errorResult(err), nil
		}
		return textResult("ok"), nil
	}
}

func handleEpistemicState(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		threshold := argFloat(args, "low_confidence_threshold", 0.3)
		return jsonText(m.EpistemicState(time.Now(), threshold)), nil
	}
}

func handleBiasScan(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		tag, err := requireString(args, "tag")
		if err != nil {
			return errorResult(err), nil
		}
		nodes := m.RecallByTag(tag)
		if len(nodes) == 0 {
			return jsonText(map[string]interface{}{"tag": tag, "count": 0, "mean_confidence": 0.0}), nil
		}
		var sum float64
		for _, n := range nodes {
			sum += n.Confidence.Effective()
		}
		return jsonText(map[string]interface{}{
			"tag":             tag,
			"count":           len(nodes),
			"mean_confidence": sum / float64(len(nodes)),
		}), nil
	}
}

func handleCompetence(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		return jsonText(m.CompetitionConfig()), nil
	}
}

func handleCrossProject(m *mind.Mind) ToolHandler {
	return func(ctx context.Context, args map[string]interface{}) (CallToolResult, error) {
		project, err := requireString(args, "project")
		if err != nil {
			return errorResult(err), nil
		}
		return jsonText(m.ListLedgers(project)), nil
	}
}
