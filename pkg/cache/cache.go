// Package cache holds the four process-wide keyed tables: deployments,
// service state, the graph snapshot slot, and last-applied manifests.
// Tables are shared read/write, but each key has a single writing
// subsystem, so no compare-and-swap is needed.
package cache

import (
	"sort"
	"strings"

	gocache "github.com/patrickmn/go-cache"

	"github.com/nopea/nopea/pkg/manifest"
)

const snapshotKey = "graph_snapshot"

// Cache is the in-memory KV layer. Entries never expire; lifecycle is
// bounded by the process.
type Cache struct {
	deployments   *gocache.Cache
	serviceState  *gocache.Cache
	graphSnapshot *gocache.Cache
	lastApplied   *gocache.Cache
}

func New() *Cache {
	return &Cache{
		deployments:   gocache.New(gocache.NoExpiration, 0),
		serviceState:  gocache.New(gocache.NoExpiration, 0),
		graphSnapshot: gocache.New(gocache.NoExpiration, 0),
		lastApplied:   gocache.New(gocache.NoExpiration, 0),
	}
}

// Available reports whether all four tables exist.
func (c *Cache) Available() bool {
	return c != nil && c.deployments != nil && c.serviceState != nil &&
		c.graphSnapshot != nil && c.lastApplied != nil
}

func deploymentKey(service, deployID string) string {
	return service + "/" + deployID
}

// PutDeployment records a deploy result under (service, deploy_id).
func (c *Cache) PutDeployment(service, deployID string, result interface{}) {
	c.deployments.Set(deploymentKey(service, deployID), result, gocache.NoExpiration)
}

// GetDeployment returns the deploy result for (service, deploy_id).
func (c *Cache) GetDeployment(service, deployID string) (interface{}, bool) {
	return c.deployments.Get(deploymentKey(service, deployID))
}

// ListDeployments scans the deployments table for one service. Identifiers
// sort by creation time, so ordering by key is chronological.
func (c *Cache) ListDeployments(service string) []interface{} {
	prefix := service + "/"
	keys := make([]string, 0)
	for key := range c.deployments.Items() {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	out := make([]interface{}, 0, len(keys))
	for _, key := range keys {
		if v, ok := c.deployments.Get(key); ok {
			out = append(out, v)
		}
	}
	return out
}

// PutServiceState stores the owning agent's state snapshot for a service.
func (c *Cache) PutServiceState(service string, state interface{}) {
	c.serviceState.Set(service, state, gocache.NoExpiration)
}

// GetServiceState returns the last stored agent state for a service.
func (c *Cache) GetServiceState(service string) (interface{}, bool) {
	return c.serviceState.Get(service)
}

// ListServices enumerates services with recorded state.
func (c *Cache) ListServices() []string {
	items := c.serviceState.Items()
	out := make([]string, 0, len(items))
	for key := range items {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// PutGraphSnapshot stores the memory service's opaque snapshot blob.
func (c *Cache) PutGraphSnapshot(blob []byte) {
	c.graphSnapshot.Set(snapshotKey, blob, gocache.NoExpiration)
}

// GetGraphSnapshot returns the stored snapshot blob.
func (c *Cache) GetGraphSnapshot() ([]byte, bool) {
	v, ok := c.graphSnapshot.Get(snapshotKey)
	if !ok {
		return nil, false
	}
	blob, ok := v.([]byte)
	return blob, ok
}

// PutLastApplied records the manifest last applied for (service, resource key).
func (c *Cache) PutLastApplied(service, resourceKey string, m manifest.Manifest) {
	c.lastApplied.Set(service+"|"+resourceKey, m, gocache.NoExpiration)
}

// GetLastApplied returns the last-applied manifest for (service, resource key).
func (c *Cache) GetLastApplied(service, resourceKey string) (manifest.Manifest, bool) {
	v, ok := c.lastApplied.Get(service + "|" + resourceKey)
	if !ok {
		return nil, false
	}
	m, ok := v.(manifest.Manifest)
	return m, ok
}
