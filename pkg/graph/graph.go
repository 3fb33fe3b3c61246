package graph

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// alpha is the EWMA smoothing factor. Fixed: tests pin exact trajectories.
const alpha = 0.3

const (
	relationshipFloor = 0.05
	nodeFloor         = 0.01
)

// CanonicalName normalizes a node name for identity. Error names are
// case-insensitive; concept names are preserved verbatim.
func CanonicalName(kind Kind, name string) string {
	if kind == KindError {
		return strings.ToLower(name)
	}
	return name
}

// NodeID derives the content address of (kind, canonical name): a 16-byte
// BLAKE2b digest, hex encoded. Identical inputs always produce the same id.
func NodeID(kind Kind, name string) string {
	sum := blake2b.Sum256([]byte(string(kind) + "\x00" + CanonicalName(kind, name)))
	return hex.EncodeToString(sum[:16])
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// UpsertNode creates or reinforces a node. New nodes start at relevance 0.5
// with one observation; existing nodes move toward confidence by EWMA and
// record the marker as last seen.
func (g *Graph) UpsertNode(kind Kind, name string, confidence float64, marker string) *Node {
	confidence = clamp01(confidence)
	id := NodeID(kind, name)
	if n, ok := g.Nodes[id]; ok {
		n.Relevance = clamp01(alpha*confidence + (1-alpha)*n.Relevance)
		n.Observations++
		n.LastSeen = marker
		return n
	}
	n := &Node{
		ID:           id,
		Kind:         kind,
		Name:         CanonicalName(kind, name),
		Relevance:    0.5,
		Observations: 1,
		FirstSeen:    marker,
		LastSeen:     marker,
	}
	g.Nodes[id] = n
	return n
}

// UpsertRelationship creates or reinforces a directed edge. Evidence is
// appended on every call, never overwritten.
func (g *Graph) UpsertRelationship(source string, relation Relation, target string, confidence float64, marker string, evidence string) *Relationship {
	confidence = clamp01(confidence)
	key := Key(source, relation, target)
	if r, ok := g.Relationships[key]; ok {
		r.Weight = clamp01(alpha*confidence + (1-alpha)*r.Weight)
		r.Observations++
		r.LastSeen = marker
		r.Evidence = append(r.Evidence, evidence)
		return r
	}
	r := &Relationship{
		Source:       source,
		Relation:     relation,
		Target:       target,
		Weight:       confidence,
		Observations: 1,
		FirstSeen:    marker,
		LastSeen:     marker,
		Evidence:     []string{evidence},
	}
	g.Relationships[key] = r
	return r
}

// DecayAll multiplies every relevance and weight by factor, then prunes:
// relationships below 0.05 are dropped, and nodes below 0.01 are dropped
// unless an edge still touches them.
func (g *Graph) DecayAll(factor float64) {
	factor = clamp01(factor)
	for _, n := range g.Nodes {
		n.Relevance *= factor
	}
	for key, r := range g.Relationships {
		r.Weight *= factor
		if r.Weight < relationshipFloor {
			delete(g.Relationships, key)
		}
	}
	incident := make(map[string]bool, len(g.Relationships)*2)
	for _, r := range g.Relationships {
		incident[r.Source] = true
		incident[r.Target] = true
	}
	for id, n := range g.Nodes {
		if n.Relevance < nodeFloor && !incident[id] {
			delete(g.Nodes, id)
		}
	}
}

// GetNode returns the node for id, or nil.
func (g *Graph) GetNode(id string) *Node {
	return g.Nodes[id]
}

// Neighbors returns the relationships leaving (outgoing) or entering
// (incoming) the given node.
func (g *Graph) Neighbors(nodeID string, direction Direction) []*Relationship {
	var out []*Relationship
	for _, r := range g.Relationships {
		if direction == Outgoing && r.Source == nodeID {
			out = append(out, r)
		}
		if direction == Incoming && r.Target == nodeID {
			out = append(out, r)
		}
	}
	return out
}

// NodeCount reports the number of live nodes.
func (g *Graph) NodeCount() int { return len(g.Nodes) }

// RelationshipCount reports the number of live relationships.
func (g *Graph) RelationshipCount() int { return len(g.Relationships) }
