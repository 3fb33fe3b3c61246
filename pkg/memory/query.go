package memory

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/nopea/nopea/pkg/graph"
)

// Recommendation thresholds: a failure pattern must be both confident and
// repeated before the memory suggests changing how a service ships.
const (
	recommendConfidence   = 0.7
	recommendObservations = 2
)

func (s *Service) queryContext(service, namespace string) Context {
	ctx := Context{Service: service, Namespace: namespace}
	node := s.g.GetNode(graph.NodeID(graph.KindConcept, service))
	if node == nil {
		return ctx
	}
	ctx.Known = true
	ctx.FailurePatterns = failurePatterns(s.g, node.ID)
	ctx.Dependencies = dependencies(s.g, node.ID)
	ctx.Recommendations = recommendations(ctx.FailurePatterns)
	return ctx
}

func failurePatterns(g *graph.Graph, serviceID string) []FailurePattern {
	breaks := lo.Filter(g.Neighbors(serviceID, graph.Outgoing), func(r *graph.Relationship, _ int) bool {
		return r.Relation == graph.RelationBreaks
	})
	patterns := lo.Map(breaks, func(r *graph.Relationship, _ int) FailurePattern {
		name := r.Target
		if node := g.GetNode(r.Target); node != nil {
			name = node.Name
		}
		return FailurePattern{
			Error:        name,
			Confidence:   r.Weight,
			Observations: r.Observations,
			Evidence:     append([]string(nil), r.Evidence...),
		}
	})
	sort.Slice(patterns, func(i, j int) bool {
		return patterns[i].Confidence > patterns[j].Confidence
	})
	return patterns
}

func dependencies(g *graph.Graph, serviceID string) []Dependency {
	deps := lo.Filter(g.Neighbors(serviceID, graph.Outgoing), func(r *graph.Relationship, _ int) bool {
		return r.Relation == graph.RelationDependsOn
	})
	out := lo.Map(deps, func(r *graph.Relationship, _ int) Dependency {
		name := r.Target
		if node := g.GetNode(r.Target); node != nil {
			name = node.Name
		}
		return Dependency{Target: name, Weight: r.Weight, Observations: r.Observations}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Weight > out[j].Weight })
	return out
}

func recommendations(patterns []FailurePattern) []string {
	var recs []string
	for _, p := range patterns {
		if p.Confidence > recommendConfidence && p.Observations >= recommendObservations {
			recs = append(recs, fmt.Sprintf(
				"use a canary rollout: %q has broken this service %d times (confidence %.2f)",
				p.Error, p.Observations, p.Confidence))
		}
	}
	return recs
}

func (s *Service) queryStats() Stats {
	stats := Stats{
		Nodes:         s.g.NodeCount(),
		Relationships: s.g.RelationshipCount(),
	}
	var failures []FailurePattern
	for _, r := range s.g.Relationships {
		if r.Relation != graph.RelationBreaks {
			continue
		}
		name := r.Target
		if node := s.g.GetNode(r.Target); node != nil {
			name = node.Name
		}
		failures = append(failures, FailurePattern{
			Error:        name,
			Confidence:   r.Weight,
			Observations: r.Observations,
		})
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].Confidence > failures[j].Confidence })
	if len(failures) > 10 {
		failures = failures[:10]
	}
	stats.TopFailures = failures
	return stats
}
