package memory

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/graph"
)

// snapshotVersion is bumped whenever the graph wire shape changes; decode
// rejects anything it does not recognize.
const snapshotVersion = 1

type snapshot struct {
	Version int          `cbor:"1,keyasint"`
	Graph   *graph.Graph `cbor:"2,keyasint"`
}

var decMode cbor.DecMode

func init() {
	// Length-bounded decoding: a corrupt snapshot must not be able to
	// allocate without limit.
	mode, err := cbor.DecOptions{
		MaxArrayElements: 1 << 20,
		MaxMapPairs:      1 << 20,
		MaxNestedLevels:  16,
	}.DecMode()
	if err != nil {
		panic(err)
	}
	decMode = mode
}

func encodeSnapshot(g *graph.Graph) ([]byte, error) {
	return cbor.Marshal(snapshot{Version: snapshotVersion, Graph: g})
}

// decodeSnapshot validates shape as well as syntax: unknown versions, nil
// maps, and out-of-range weights all reject the snapshot.
func decodeSnapshot(blob []byte) (*graph.Graph, error) {
	var snap snapshot
	if err := decMode.Unmarshal(blob, &snap); err != nil {
		return nil, errors.New(errors.CodeSnapshotInvalid, "memory", "decoding graph snapshot", err)
	}
	if snap.Version != snapshotVersion {
		return nil, errors.Newf(errors.CodeSnapshotInvalid, "memory", "unsupported snapshot version %d", snap.Version)
	}
	g := snap.Graph
	if g == nil || g.Nodes == nil || g.Relationships == nil {
		return nil, errors.Newf(errors.CodeSnapshotInvalid, "memory", "snapshot missing graph tables")
	}
	for id, n := range g.Nodes {
		if n == nil || n.ID != id || n.Relevance < 0 || n.Relevance > 1 || n.Observations < 1 {
			return nil, errors.Newf(errors.CodeSnapshotInvalid, "memory", "snapshot node %q out of shape", id)
		}
	}
	for key, r := range g.Relationships {
		if r == nil || r.Weight < 0 || r.Weight > 1 || r.Observations < 1 {
			return nil, errors.Newf(errors.CodeSnapshotInvalid, "memory", "snapshot relationship %q out of shape", key)
		}
		if key != graph.Key(r.Source, r.Relation, r.Target) {
			return nil, errors.Newf(errors.CodeSnapshotInvalid, "memory", "snapshot relationship %q key mismatch", key)
		}
		if g.Nodes[r.Source] == nil || g.Nodes[r.Target] == nil {
			return nil, errors.Newf(errors.CodeSnapshotInvalid, "memory", "snapshot relationship %q dangling", key)
		}
	}
	return g, nil
}
