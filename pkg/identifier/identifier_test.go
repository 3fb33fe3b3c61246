package identifier

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLength(t *testing.T) {
	id := New()
	require.Len(t, id, 26)
}

func TestGeneratorMonotonic(t *testing.T) {
	g := NewGenerator()
	ids := make([]string, 1000)
	for i := range ids {
		ids[i] = g.New()
	}
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	assert.Equal(t, sorted, ids, "identifiers must be strictly increasing")
	seen := map[string]bool{}
	for _, id := range ids {
		require.False(t, seen[id], "duplicate identifier %s", id)
		seen[id] = true
	}
}

func TestNilGeneratorFallsBack(t *testing.T) {
	var g *Generator
	id := g.New()
	assert.Len(t, id, 26)
}
