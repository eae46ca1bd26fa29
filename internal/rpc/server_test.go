package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chitta-project/chitta/internal/embed"
	"github.com/chitta-project/chitta/internal/mind"
	"github.com/chitta-project/chitta/internal/node"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	m := mind.Open(mind.DefaultConfig(""), nil, nil, embed.NewZeroEmbedder(8))
	sockPath := t.TempDir() + "/chitta.sock"
	s := New(Config{SocketPath: sockPath}, m, nil)
	return s, sockPath
}

func TestServerInitializeListToolsCallTool(t *testing.T) {
	s, sockPath := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx) }()

	var conn net.Conn
	require.Eventually(t, func() bool {
		c, err := net.Dial("unix", sockPath)
		if err != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 10*time.Millisecond)
	defer conn.Close()

	reader := bufio.NewReader(conn)

	send := func(method string, params interface{}) Response {
		p, _ := json.Marshal(params)
		req := Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: method, Params: p}
		b, _ := json.Marshal(req)
		conn.Write(append(b, '\n'))
		line, err := reader.ReadBytes('\n')
		require.NoError(t, err)
		var resp Response
		require.NoError(t, json.Unmarshal(line, &resp))
		return resp
	}

	initResp := send("initialize", map[string]string{"protocolVersion": protocolVersion})
	assert.Nil(t, initResp.Error)

	listResp := send("tools/list", nil)
	assert.Nil(t, listResp.Error)

	growResp := send("tools/call", CallToolParams{Name: "grow", Arguments: map[string]interface{}{"text": "hello", "type": string(node.Wisdom)}})
	assert.Nil(t, growResp.Error)

	cancel()
	<-done
}
