package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/graph"
)

// Confidence by deploy status: completed deploys are strong evidence that
// the service/namespace pairing is real; failures slightly less so.
func confidenceFor(status string) float64 {
	switch status {
	case "completed":
		return 0.9
	case "failed":
		return 0.8
	case "rolledback":
		return 0.7
	default:
		return 0.5
	}
}

// errorTag normalizes an error to the short lowercase tag used as the
// error node's canonical name. Coded errors contribute their code; plain
// errors contribute their message.
func errorTag(err error) string {
	if err == nil {
		return ""
	}
	if code := errors.CodeOf(err); code != errors.CodeUnknown && code != "" {
		return strings.ToLower(string(code))
	}
	return strings.ToLower(err.Error())
}

// ingest maps one deploy outcome onto graph operations. Validation happens
// before any mutation, so a rejected record leaves the graph unchanged.
func ingest(g *graph.Graph, outcome DeployOutcome, marker string) error {
	if outcome.Service == "" {
		return errors.Newf(errors.CodeMissingParameter, "memory", "deploy outcome missing service")
	}
	if outcome.Namespace == "" {
		return errors.Newf(errors.CodeMissingParameter, "memory", "deploy outcome missing namespace")
	}

	confidence := confidenceFor(outcome.Status)
	now := time.Now().UTC().Format(time.RFC3339)

	service := g.UpsertNode(graph.KindConcept, outcome.Service, confidence, marker)
	namespace := g.UpsertNode(graph.KindConcept, "namespace:"+outcome.Namespace, 0.5, marker)
	g.UpsertRelationship(service.ID, graph.RelationDeployedTo, namespace.ID, confidence, marker,
		fmt.Sprintf("deploy %s at %s", outcome.Status, now))

	if outcome.Status == "failed" && outcome.Error != nil {
		errNode := g.UpsertNode(graph.KindError, errorTag(outcome.Error), 0.8, marker)
		g.UpsertRelationship(service.ID, graph.RelationBreaks, errNode.ID, 0.8, marker,
			fmt.Sprintf("deploy failed: %v", outcome.Error))
	}

	for _, name := range outcome.ConcurrentDeploys {
		g.UpsertNode(graph.KindConcept, name, 0.5, marker)
	}
	return nil
}
