package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeIDDeterministic(t *testing.T) {
	a := NodeID(KindConcept, "payments")
	b := NodeID(KindConcept, "payments")
	assert.Equal(t, a, b)
	assert.Len(t, a, 32, "16-byte digest hex encoded")
	assert.NotEqual(t, a, NodeID(KindError, "payments"))
}

func TestErrorNamesAreLowercased(t *testing.T) {
	g := New()
	n1 := g.UpsertNode(KindError, "CrashLoopBackOff", 0.8, "m1")
	n2 := g.UpsertNode(KindError, "crashloopbackoff", 0.8, "m2")
	assert.Same(t, n1, n2)
	assert.Equal(t, "crashloopbackoff", n1.Name)
}

func TestConceptNamesPreserved(t *testing.T) {
	g := New()
	n := g.UpsertNode(KindConcept, "Payments-API", 0.5, "m1")
	assert.Equal(t, "Payments-API", n.Name)
}

func TestUpsertNodeEWMA(t *testing.T) {
	g := New()
	n := g.UpsertNode(KindConcept, "svc", 0.9, "m1")
	assert.Equal(t, 0.5, n.Relevance)
	assert.Equal(t, 1, n.Observations)
	assert.Equal(t, "m1", n.FirstSeen)

	n = g.UpsertNode(KindConcept, "svc", 0.9, "m2")
	assert.InDelta(t, 0.3*0.9+0.7*0.5, n.Relevance, 1e-9)
	assert.Equal(t, 2, n.Observations)
	assert.Equal(t, "m1", n.FirstSeen)
	assert.Equal(t, "m2", n.LastSeen)
	assert.Len(t, g.Nodes, 1, "same (kind, name) collapses to one node")
}

func TestUpsertRelationshipAppendsEvidence(t *testing.T) {
	g := New()
	src := g.UpsertNode(KindConcept, "svc", 0.9, "m1").ID
	tgt := g.UpsertNode(KindConcept, "namespace:prod", 0.5, "m1").ID

	r := g.UpsertRelationship(src, RelationDeployedTo, tgt, 0.9, "m1", "deploy completed")
	assert.Equal(t, 0.9, r.Weight)
	assert.Equal(t, []string{"deploy completed"}, r.Evidence)

	r = g.UpsertRelationship(src, RelationDeployedTo, tgt, 0.8, "m2", "deploy failed")
	assert.InDelta(t, 0.3*0.8+0.7*0.9, r.Weight, 1e-9)
	assert.Equal(t, 2, r.Observations)
	assert.Equal(t, []string{"deploy completed", "deploy failed"}, r.Evidence)
	assert.Len(t, g.Relationships, 1)
}

func TestWeightsStayInUnitInterval(t *testing.T) {
	g := New()
	n := g.UpsertNode(KindConcept, "svc", 5.0, "m1")
	for i := 0; i < 50; i++ {
		n = g.UpsertNode(KindConcept, "svc", 5.0, "m1")
	}
	assert.LessOrEqual(t, n.Relevance, 1.0)
	assert.GreaterOrEqual(t, n.Relevance, 0.0)
}

func TestDecayAllPrunes(t *testing.T) {
	g := New()
	a := g.UpsertNode(KindConcept, "a", 0.9, "m1").ID
	b := g.UpsertNode(KindConcept, "b", 0.9, "m1").ID
	g.UpsertRelationship(a, RelationDependsOn, b, 0.9, "m1", "seen")

	g.DecayAll(0.98)
	require.Len(t, g.Nodes, 2)
	require.Len(t, g.Relationships, 1)

	// decay to zero empties everything
	g.DecayAll(0)
	assert.Empty(t, g.Relationships)
	assert.Empty(t, g.Nodes)
}

func TestDecayKeepsNodesWithLiveEdges(t *testing.T) {
	g := New()
	a := g.UpsertNode(KindConcept, "a", 0.9, "m1")
	b := g.UpsertNode(KindConcept, "b", 0.9, "m1")
	g.UpsertRelationship(a.ID, RelationBreaks, b.ID, 1.0, "m1", "seen")

	// Push node relevance under the floor while the edge stays above its own.
	a.Relevance = 0.005
	b.Relevance = 0.005
	g.DecayAll(1.0)
	assert.Len(t, g.Nodes, 2, "edges incident to retained nodes keep them alive")

	// Once the edge decays away the orphaned nodes go too.
	g.Relationships[Key(a.ID, RelationBreaks, b.ID)].Weight = 0.04
	g.DecayAll(1.0)
	assert.Empty(t, g.Relationships)
	assert.Empty(t, g.Nodes)
}

func TestNeighborsDirection(t *testing.T) {
	g := New()
	a := g.UpsertNode(KindConcept, "a", 0.9, "m1").ID
	b := g.UpsertNode(KindConcept, "b", 0.9, "m1").ID
	c := g.UpsertNode(KindError, "crash", 0.8, "m1").ID
	g.UpsertRelationship(a, RelationBreaks, c, 0.8, "m1", "deploy failed: crash")
	g.UpsertRelationship(b, RelationBreaks, c, 0.8, "m1", "deploy failed: crash")

	assert.Len(t, g.Neighbors(a, Outgoing), 1)
	assert.Empty(t, g.Neighbors(a, Incoming))
	assert.Len(t, g.Neighbors(c, Incoming), 2)
}
