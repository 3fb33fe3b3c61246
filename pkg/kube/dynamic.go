package kube

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/manifest"
)

const fieldManager = "nopea"

// DynamicClient implements Client with client-go's dynamic interface and
// server-side apply.
type DynamicClient struct {
	dyn dynamic.Interface
}

// NewDynamicClient builds a client from the given kubeconfig path, falling
// back to in-cluster config and then to ~/.kube/config.
func NewDynamicClient(kubeconfig string) (*DynamicClient, error) {
	cfg, err := restConfig(kubeconfig)
	if err != nil {
		return nil, errors.New(errors.CodeConnectionRefused, "kube", "loading kubernetes config", err)
	}
	dyn, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, errors.New(errors.CodeConnectionRefused, "kube", "building dynamic client", err)
	}
	return &DynamicClient{dyn: dyn}, nil
}

func restConfig(kubeconfig string) (*rest.Config, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
	}
	if kubeconfig == "" {
		if cfg, err := rest.InClusterConfig(); err == nil {
			return cfg, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		kubeconfig = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfig)
}

// gvrFor guesses the resource for a manifest's apiVersion/kind. The guess
// covers the regular plural forms; CRDs with irregular plurals would need a
// discovery-backed mapper.
func gvrFor(apiVersion, kind string) (schema.GroupVersionResource, error) {
	gv, err := schema.ParseGroupVersion(apiVersion)
	if err != nil {
		return schema.GroupVersionResource{}, err
	}
	resource := strings.ToLower(kind)
	switch {
	case strings.HasSuffix(resource, "s"):
		resource += "es"
	case strings.HasSuffix(resource, "y"):
		resource = resource[:len(resource)-1] + "ies"
	default:
		resource += "s"
	}
	return gv.WithResource(resource), nil
}

func (c *DynamicClient) ApplyManifests(ctx context.Context, manifests []manifest.Manifest, namespace string) ([]manifest.Manifest, error) {
	applied := make([]manifest.Manifest, 0, len(manifests))
	for _, m := range manifests {
		out, err := c.ApplyManifest(ctx, m, namespace)
		if err != nil {
			return applied, err
		}
		applied = append(applied, out)
	}
	return applied, nil
}

func (c *DynamicClient) ApplyManifest(ctx context.Context, m manifest.Manifest, namespace string) (manifest.Manifest, error) {
	gvr, err := gvrFor(m.APIVersion(), m.Kind())
	if err != nil {
		return nil, errors.New(errors.CodeManifestInvalid, "kube", "parsing apiVersion", err)
	}
	obj := &unstructured.Unstructured{Object: m.DeepCopy()}
	out, err := c.dyn.Resource(gvr).Namespace(namespace).Apply(ctx, m.Name(), obj, metav1.ApplyOptions{
		FieldManager: fieldManager,
		Force:        true,
	})
	if err != nil {
		return nil, classify("apply", m.Kind(), m.Name(), err)
	}
	return manifest.Manifest(out.Object), nil
}

func (c *DynamicClient) GetResource(ctx context.Context, apiVersion, kind, name, namespace string) (manifest.Manifest, error) {
	gvr, err := gvrFor(apiVersion, kind)
	if err != nil {
		return nil, errors.New(errors.CodeManifestInvalid, "kube", "parsing apiVersion", err)
	}
	out, err := c.dyn.Resource(gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, classify("get", kind, name, err)
	}
	return manifest.Manifest(out.Object), nil
}

func (c *DynamicClient) DeleteResource(ctx context.Context, apiVersion, kind, name, namespace string) error {
	gvr, err := gvrFor(apiVersion, kind)
	if err != nil {
		return errors.New(errors.CodeManifestInvalid, "kube", "parsing apiVersion", err)
	}
	if err := c.dyn.Resource(gvr).Namespace(namespace).Delete(ctx, name, metav1.DeleteOptions{}); err != nil {
		return classify("delete", kind, name, err)
	}
	return nil
}

// classify maps API server failures onto the stable error taxonomy.
func classify(verb, kind, name string, err error) *errors.Error {
	msg := verb + " " + kind + "/" + name
	switch {
	case apierrors.IsNotFound(err):
		return errors.New(errors.CodeNotFound, "kube", msg, err)
	case apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err):
		return errors.New(errors.CodeForbidden, "kube", msg, err)
	case apierrors.IsTimeout(err) || apierrors.IsServerTimeout(err) || stderrors.Is(err, context.DeadlineExceeded):
		return errors.New(errors.CodeTimeout, "kube", msg, err)
	case strings.Contains(err.Error(), "connection refused"):
		return errors.New(errors.CodeConnectionRefused, "kube", msg, err)
	case verb == "apply":
		return errors.New(errors.CodeApplyFailed, "kube", msg, err)
	default:
		return errors.New(errors.CodeInternalError, "kube", msg, err)
	}
}
