package kube

import (
	"context"
	"fmt"
	"sync"

	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/manifest"
)

// Fake is an in-memory Client for tests. Applied objects become visible to
// GetResource; Gate, when set, blocks every apply until released so tests
// can hold a deploy in flight.
type Fake struct {
	mu      sync.Mutex
	objects map[string]manifest.Manifest

	// Applied records every manifest handed to an apply call, in order.
	Applied []manifest.Manifest

	// ApplyErr, when set, fails all apply calls.
	ApplyErr error

	// Gate, when non-nil, is received from before each apply returns.
	Gate chan struct{}
}

func NewFake() *Fake {
	return &Fake{objects: make(map[string]manifest.Manifest)}
}

func objectKey(apiVersion, kind, name, namespace string) string {
	return fmt.Sprintf("%s|%s|%s|%s", apiVersion, kind, namespace, name)
}

// Seed inserts a live object without counting it as applied.
func (f *Fake) Seed(m manifest.Manifest, namespace string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[objectKey(m.APIVersion(), m.Kind(), m.Name(), namespace)] = m.DeepCopy()
}

// AppliedCount returns how many manifests have been applied.
func (f *Fake) AppliedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Applied)
}

// LastApplied returns the most recently applied manifest, or nil.
func (f *Fake) LastApplied() manifest.Manifest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Applied) == 0 {
		return nil
	}
	return f.Applied[len(f.Applied)-1]
}

func (f *Fake) ApplyManifests(ctx context.Context, manifests []manifest.Manifest, namespace string) ([]manifest.Manifest, error) {
	applied := make([]manifest.Manifest, 0, len(manifests))
	for _, m := range manifests {
		out, err := f.ApplyManifest(ctx, m, namespace)
		if err != nil {
			return applied, err
		}
		applied = append(applied, out)
	}
	return applied, nil
}

func (f *Fake) ApplyManifest(ctx context.Context, m manifest.Manifest, namespace string) (manifest.Manifest, error) {
	if f.Gate != nil {
		select {
		case <-f.Gate:
		case <-ctx.Done():
			return nil, errors.New(errors.CodeTimeout, "kube", "apply interrupted", ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ApplyErr != nil {
		return nil, f.ApplyErr
	}
	applied := m.DeepCopy()
	f.objects[objectKey(m.APIVersion(), m.Kind(), m.Name(), namespace)] = applied
	f.Applied = append(f.Applied, applied)
	return applied, nil
}

func (f *Fake) GetResource(ctx context.Context, apiVersion, kind, name, namespace string) (manifest.Manifest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.objects[objectKey(apiVersion, kind, name, namespace)]
	if !ok {
		return nil, errors.Newf(errors.CodeNotFound, "kube", "get %s/%s", kind, name)
	}
	return m.DeepCopy(), nil
}

func (f *Fake) DeleteResource(ctx context.Context, apiVersion, kind, name, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := objectKey(apiVersion, kind, name, namespace)
	if _, ok := f.objects[key]; !ok {
		return errors.Newf(errors.CodeNotFound, "kube", "delete %s/%s", kind, name)
	}
	delete(f.objects, key)
	return nil
}
