package mcpserver

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopea/nopea/pkg/agent"
	"github.com/nopea/nopea/pkg/cache"
	"github.com/nopea/nopea/pkg/deploy"
	"github.com/nopea/nopea/pkg/kube"
	"github.com/nopea/nopea/pkg/memory"
	"github.com/nopea/nopea/pkg/store"
)

func newTestMCP(t *testing.T) *Server {
	t.Helper()
	c := cache.New()
	mem := memory.NewService(c)
	mem.Start()
	t.Cleanup(mem.Stop)

	history, err := store.Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	orch := deploy.NewOrchestrator(deploy.Options{
		Client: kube.NewFake(), Memory: mem, Cache: c, History: history,
	})
	sup := agent.NewSupervisor(orch, c, time.Minute)
	t.Cleanup(sup.Shutdown)

	return NewServer(sup, mem, history)
}

func callReq(args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{Arguments: args},
	}
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestDeployToolRequiresService(t *testing.T) {
	s := newTestMCP(t)
	result, err := s.handleDeploy(context.Background(), callReq(map[string]interface{}{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textOf(t, result), "missing service")
}

func TestDeployToolRunsDeploy(t *testing.T) {
	s := newTestMCP(t)
	result, err := s.handleDeploy(context.Background(), callReq(map[string]interface{}{
		"service": "web",
		"manifest_yaml": `apiVersion: v1
kind: Service
metadata:
  name: web
spec:
  ports:
    - port: 80
`,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &body))
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "direct", body["strategy"])
}

func TestContextTool(t *testing.T) {
	s := newTestMCP(t)
	result, err := s.handleContext(context.Background(), callReq(map[string]interface{}{
		"service": "web",
	}))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &body))
	assert.Equal(t, false, body["known"])
	assert.Equal(t, "default", body["namespace"])
}

func TestHealthTool(t *testing.T) {
	s := newTestMCP(t)
	result, err := s.handleHealth(context.Background(), callReq(nil))
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestExplainToolNeedsHistory(t *testing.T) {
	s := newTestMCP(t)
	result, err := s.handleExplain(context.Background(), callReq(map[string]interface{}{
		"service": "ghost",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	// After a deploy the explanation carries the outcome.
	_, err = s.handleDeploy(context.Background(), callReq(map[string]interface{}{"service": "web"}))
	require.NoError(t, err)
	result, err = s.handleExplain(context.Background(), callReq(map[string]interface{}{"service": "web"}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &body))
	assert.Equal(t, "completed", body["status"])
}
