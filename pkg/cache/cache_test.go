package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopea/nopea/pkg/manifest"
)

func TestAvailable(t *testing.T) {
	assert.True(t, New().Available())
	var c *Cache
	assert.False(t, c.Available())
}

func TestDeploymentsTable(t *testing.T) {
	c := New()
	c.PutDeployment("svc", "01AAAAAAAAAAAAAAAAAAAAAAAA", "first")
	c.PutDeployment("svc", "01BBBBBBBBBBBBBBBBBBBBBBBB", "second")
	c.PutDeployment("other", "01CCCCCCCCCCCCCCCCCCCCCCCC", "elsewhere")

	v, ok := c.GetDeployment("svc", "01AAAAAAAAAAAAAAAAAAAAAAAA")
	require.True(t, ok)
	assert.Equal(t, "first", v)

	_, ok = c.GetDeployment("svc", "missing")
	assert.False(t, ok)

	list := c.ListDeployments("svc")
	require.Len(t, list, 2)
	assert.Equal(t, []interface{}{"first", "second"}, list)
}

func TestServiceStateTable(t *testing.T) {
	c := New()
	c.PutServiceState("b-svc", 2)
	c.PutServiceState("a-svc", 1)
	assert.Equal(t, []string{"a-svc", "b-svc"}, c.ListServices())

	v, ok := c.GetServiceState("a-svc")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestGraphSnapshotSingleton(t *testing.T) {
	c := New()
	_, ok := c.GetGraphSnapshot()
	assert.False(t, ok)

	c.PutGraphSnapshot([]byte{1, 2, 3})
	blob, ok := c.GetGraphSnapshot()
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, blob)
}

func TestLastAppliedTable(t *testing.T) {
	c := New()
	m := manifest.Manifest{"apiVersion": "v1", "kind": "Service"}
	c.PutLastApplied("svc", "Service/default/web", m)

	got, ok := c.GetLastApplied("svc", "Service/default/web")
	require.True(t, ok)
	assert.Equal(t, m, got)

	_, ok = c.GetLastApplied("svc", "Service/default/other")
	assert.False(t, ok)
}
