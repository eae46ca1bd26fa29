package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitta-project/chitta/internal/embed"
	"github.com/chitta-project/chitta/internal/mind"
	"github.com/chitta-project/chitta/internal/node"
)

func newTestMindAndTools(t *testing.T) (*mind.Mind, map[string]ToolHandler) {
	t.Helper()
	m := mind.Open(mind.DefaultConfig(""), nil, nil, embed.NewZeroEmbedder(8))
	t.Cleanup(func() { m.Close() })
	return m, registerTools(m)
}

func TestHandleGrowAndLens(t *testing.T) {
	ctx := context.Background()
	m, tools := newTestMindAndTools(t)

	growResult, err := tools["grow"](ctx, map[string]interface{}{
		"text": "the sky is blue", "type": string(node.Wisdom),
	})
	require.NoError(t, err)
	require.False(t, growResult.IsError)

	nodes := m.RecallByTag("nonexistent")
	assert.Empty(t, nodes)

	lensResult, err := tools["lens"](ctx, map[string]interface{}{"type": string(node.Wisdom)})
	require.NoError(t, err)
	assert.False(t, lensResult.IsError)
}

func TestHandleGrowMissingTextErrors(t *testing.T) {
	ctx := context.Background()
	_, tools := newTestMindAndTools(t)

	result, err := tools["grow"](ctx, map[string]interface{}{})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleWonderAnswerConnect(t *testing.T) {
	ctx := context.Background()
	_, tools := newTestMindAndTools(t)

	wonderResult, err := tools["wonder"](ctx, map[string]interface{}{"text": "why is the sky blue?"})
	require.NoError(t, err)
	require.False(t, wonderResult.IsError)
	questionID := string(wonderResult.Structured.(map[string]interface{})["id"].(node.ID))

	answerResult, err := tools["answer"](ctx, map[string]interface{}{
		"question_id": questionID, "text": "Rayleigh scattering",
	})
	require.NoError(t, err)
	assert.False(t, answerResult.IsError)
}

func TestHandleTagAndRecallByTag(t *testing.T) {
	ctx := context.Background()
	_, tools := newTestMindAndTools(t)

	growResult, err := tools["grow"](ctx, map[string]interface{}{"text": "tagged node"})
	require.NoError(t, err)
	id := string(growResult.Structured.(map[string]interface{})["id"].(node.ID))

	tagResult, err := tools["tag"](ctx, map[string]interface{}{"id": id, "tag": "important"})
	require.NoError(t, err)
	assert.False(t, tagResult.IsError)

	recallResult, err := tools["recall_by_tag"](ctx, map[string]interface{}{"tag": "important"})
	require.NoError(t, err)
	assert.False(t, recallResult.IsError)
}

func TestHandleLedgerSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	_, tools := newTestMindAndTools(t)

	saveResult, err := tools["ledger"](ctx, map[string]interface{}{
		"action": "save", "json": `{"k":"v"}`, "session_id": "s1", "project": "p1",
	})
	require.NoError(t, err)
	require.False(t, saveResult.IsError)

	loadResult, err := tools["ledger"](ctx, map[string]interface{}{
		"action": "load", "session_id": "s1", "project": "p1",
	})
	require.NoError(t, err)
	assert.False(t, loadResult.IsError)
}

func TestHandleLedgerUnknownActionErrors(t *testing.T) {
	ctx := context.Background()
	_, tools := newTestMindAndTools(t)

	result, err := tools["ledger"](ctx, map[string]interface{}{"action": "explode"})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleBiasScanEmptyTag(t *testing.T) {
	ctx := context.Background()
	_, tools := newTestMindAndTools(t)

	result, err := tools["bias_scan"](ctx, map[string]interface{}{"tag": "unused"})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	body := result.Structured.(map[string]interface{})
	assert.Equal(t, 0, body["count"])
}
