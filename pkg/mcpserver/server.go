// Package mcpserver exposes nopea over the Model Context Protocol so
// agentic clients can deploy and inspect services through tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/nopea/nopea/pkg/agent"
	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/logger"
	"github.com/nopea/nopea/pkg/manifest"
	"github.com/nopea/nopea/pkg/memory"
	"github.com/nopea/nopea/pkg/store"
)

const serverVersion = "1.0.0"

// Server bridges MCP tool calls onto the supervisor, memory, and history.
type Server struct {
	supervisor *agent.Supervisor
	memory     *memory.Service
	history    *store.Store
	log        zerolog.Logger
}

func NewServer(supervisor *agent.Supervisor, mem *memory.Service, history *store.Store) *Server {
	return &Server{
		supervisor: supervisor,
		memory:     mem,
		history:    history,
		log:        logger.Component("mcpserver"),
	}
}

// ServeStdio registers the tools and serves MCP over stdin/stdout until
// the client disconnects.
func (s *Server) ServeStdio() error {
	mcpServer := server.NewMCPServer(
		"nopea",
		serverVersion,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)
	s.register(mcpServer)
	s.log.Info().Msg("mcp server listening on stdio")
	return server.ServeStdio(mcpServer)
}

func (s *Server) register(mcpServer *server.MCPServer) {
	mcpServer.AddTool(mcp.Tool{
		Name:        "nopea_deploy",
		Description: "Deploy a service to Kubernetes. Strategy is auto-selected from deploy history unless given.",
		InputSchema: schema(map[string]interface{}{
			"service":   prop("string", "Service name"),
			"namespace": prop("string", "Target namespace, default \"default\""),
			"manifest_yaml": prop("string",
				"Kubernetes manifests as YAML, multiple documents separated by ---"),
			"strategy": prop("string", "Rollout strategy: direct, canary, or blue_green"),
		}, "service"),
	}, s.handleDeploy)

	mcpServer.AddTool(mcp.Tool{
		Name:        "nopea_context",
		Description: "What nopea's memory knows about a service: failure patterns, dependencies, recommendations.",
		InputSchema: schema(map[string]interface{}{
			"service":   prop("string", "Service name"),
			"namespace": prop("string", "Namespace, default \"default\""),
		}, "service"),
	}, s.handleContext)

	mcpServer.AddTool(mcp.Tool{
		Name:        "nopea_history",
		Description: "Past deploys for a service, oldest first.",
		InputSchema: schema(map[string]interface{}{
			"service": prop("string", "Service name"),
		}, "service"),
	}, s.handleHistory)

	mcpServer.AddTool(mcp.Tool{
		Name:        "nopea_health",
		Description: "Supervisor health: known services, live agents, and graph size.",
		InputSchema: schema(map[string]interface{}{}, ""),
	}, s.handleHealth)

	mcpServer.AddTool(mcp.Tool{
		Name:        "nopea_explain",
		Description: "Explain a service's most recent deploy outcome using the knowledge graph.",
		InputSchema: schema(map[string]interface{}{
			"service": prop("string", "Service name"),
		}, "service"),
	}, s.handleExplain)
}

func (s *Server) handleDeploy(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	service, _ := args["service"].(string)
	if service == "" {
		return errorResult("missing service"), nil
	}
	namespace, _ := args["namespace"].(string)
	strategy, _ := args["strategy"].(string)

	var manifests []manifest.Manifest
	if yaml, _ := args["manifest_yaml"].(string); yaml != "" {
		parsed, err := manifest.Parse([]byte(yaml))
		if err != nil {
			return errorResult(fmt.Sprintf("manifest_yaml invalid: %v", err)), nil
		}
		manifests = parsed
	}

	result := s.supervisor.Deploy(ctx, deployment.Spec{
		Service:   service,
		Namespace: namespace,
		Manifests: manifests,
		Strategy:  deployment.Strategy(strategy),
	})
	return jsonResult(result)
}

func (s *Server) handleContext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	service, _ := args["service"].(string)
	if service == "" {
		return errorResult("missing service"), nil
	}
	namespace, _ := args["namespace"].(string)
	if namespace == "" {
		namespace = deployment.DefaultNamespace
	}
	return jsonResult(s.memory.GetDeployContext(service, namespace))
}

func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	service, _ := args["service"].(string)
	if service == "" {
		return errorResult("missing service"), nil
	}
	results, err := s.history.List(service)
	if err != nil {
		return errorResult(fmt.Sprintf("history unavailable: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{
		"service": service,
		"deploys": results,
	})
}

func (s *Server) handleHealth(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	states, liveAgents := s.supervisor.Health()
	stats := s.memory.GetStats()
	return jsonResult(map[string]interface{}{
		"status":              "ok",
		"services":            states,
		"live_agents":         liveAgents,
		"graph_nodes":         stats.Nodes,
		"graph_relationships": stats.Relationships,
	})
}

func (s *Server) handleExplain(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	service, _ := args["service"].(string)
	if service == "" {
		return errorResult("missing service"), nil
	}

	state, ok := s.supervisor.Status(service)
	if !ok || state.LastResult == nil {
		return errorResult(fmt.Sprintf("no deploys recorded for %s", service)), nil
	}
	last := state.LastResult

	explanation := map[string]interface{}{
		"service":     service,
		"deploy_id":   last.DeployID,
		"status":      string(last.Status),
		"strategy":    string(last.Strategy),
		"verified":    last.Verified,
		"duration_ms": last.DurationMS,
	}
	if last.Error != nil {
		explanation["error"] = last.Error.Error()
	}
	memCtx := s.memory.GetDeployContext(service, last.Namespace)
	explanation["known_service"] = memCtx.Known
	if len(memCtx.FailurePatterns) > 0 {
		explanation["failure_patterns"] = memCtx.FailurePatterns
	}
	if len(memCtx.Recommendations) > 0 {
		explanation["recommendations"] = memCtx.Recommendations
	}
	return jsonResult(explanation)
}

func schema(properties map[string]interface{}, required string) mcp.ToolInputSchema {
	s := mcp.ToolInputSchema{Type: "object", Properties: properties}
	if required != "" {
		s.Required = []string{required}
	}
	return s
}

func prop(typ, description string) map[string]interface{} {
	return map[string]interface{}{"type": typ, "description": description}
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return errorResult(fmt.Sprintf("encoding response: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: message},
		},
	}
}
