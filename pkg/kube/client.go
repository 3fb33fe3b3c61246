// Package kube is the Kubernetes collaborator boundary. The core only
// needs the four operations in Client; the real implementation speaks
// server-side apply through the dynamic client, and tests substitute a
// Fake wholesale.
package kube

import (
	"context"

	"github.com/nopea/nopea/pkg/manifest"
)

// Client is what the orchestrator and drift engine require from Kubernetes.
type Client interface {
	// ApplyManifests server-side applies a batch into the namespace and
	// returns the applied manifests in order.
	ApplyManifests(ctx context.Context, manifests []manifest.Manifest, namespace string) ([]manifest.Manifest, error)
	// ApplyManifest server-side applies a single manifest.
	ApplyManifest(ctx context.Context, m manifest.Manifest, namespace string) (manifest.Manifest, error)
	// GetResource fetches the live object. Missing resources surface as a
	// NOT_FOUND coded error.
	GetResource(ctx context.Context, apiVersion, kind, name, namespace string) (manifest.Manifest, error)
	// DeleteResource removes the object.
	DeleteResource(ctx context.Context, apiVersion, kind, name, namespace string) error
}
