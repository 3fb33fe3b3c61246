// Package graph is the in-memory weighted knowledge graph behind nopea's
// deploy memory. Nodes are content-addressed by (kind, canonical name);
// relevance and edge weights follow an EWMA with alpha 0.3 and decay over
// time until pruning removes what no longer matters.
package graph

// Kind classifies a node.
type Kind string

const (
	KindConcept Kind = "concept"
	KindError   Kind = "error"
)

// Relation types a directed edge.
type Relation string

const (
	RelationBreaks     Relation = "breaks"
	RelationDeployedTo Relation = "deployed_to"
	RelationDependsOn  Relation = "depends_on"
)

// Direction selects which incident edges Neighbors returns.
type Direction string

const (
	Outgoing Direction = "outgoing"
	Incoming Direction = "incoming"
)

// Node is a content-addressed graph vertex. Relevance stays in [0,1].
type Node struct {
	ID           string  `json:"id" cbor:"1,keyasint"`
	Kind         Kind    `json:"kind" cbor:"2,keyasint"`
	Name         string  `json:"name" cbor:"3,keyasint"`
	Relevance    float64 `json:"relevance" cbor:"4,keyasint"`
	Observations int     `json:"observations" cbor:"5,keyasint"`
	FirstSeen    string  `json:"first_seen" cbor:"6,keyasint"`
	LastSeen     string  `json:"last_seen" cbor:"7,keyasint"`
}

// Relationship is a directed, typed, weighted edge. Evidence strings are
// appended on every reinforcement and never rewritten.
type Relationship struct {
	Source       string   `json:"source" cbor:"1,keyasint"`
	Relation     Relation `json:"relation" cbor:"2,keyasint"`
	Target       string   `json:"target" cbor:"3,keyasint"`
	Weight       float64  `json:"weight" cbor:"4,keyasint"`
	Observations int      `json:"observations" cbor:"5,keyasint"`
	FirstSeen    string   `json:"first_seen" cbor:"6,keyasint"`
	LastSeen     string   `json:"last_seen" cbor:"7,keyasint"`
	Evidence     []string `json:"evidence" cbor:"8,keyasint"`
}

// Graph maps node ids to nodes and relationship keys to relationships.
// It is not safe for concurrent use; the memory service owns the only
// live instance and serializes access.
type Graph struct {
	Nodes         map[string]*Node         `json:"nodes" cbor:"1,keyasint"`
	Relationships map[string]*Relationship `json:"relationships" cbor:"2,keyasint"`
}

func New() *Graph {
	return &Graph{
		Nodes:         make(map[string]*Node),
		Relationships: make(map[string]*Relationship),
	}
}

// Key returns the map key for a relationship: (source, relation, target).
func Key(source string, relation Relation, target string) string {
	return source + "|" + string(relation) + "|" + target
}
