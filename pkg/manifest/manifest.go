// Package manifest holds the map-shaped Kubernetes resources nopea passes
// between the orchestrator, strategies, drift engine, and the K8s client.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/nopea/nopea/pkg/logger"
)

// Manifest is a parsed Kubernetes resource. Everything downstream works on
// this map form so cluster responses and desired state stay comparable.
type Manifest map[string]interface{}

const objectDelimiter = "\n---"

// APIVersion returns the manifest's apiVersion, or "".
func (m Manifest) APIVersion() string {
	s, _ := m["apiVersion"].(string)
	return s
}

// Kind returns the manifest's kind, or "".
func (m Manifest) Kind() string {
	s, _ := m["kind"].(string)
	return s
}

// Name returns metadata.name, or "".
func (m Manifest) Name() string {
	meta, _ := m["metadata"].(map[string]interface{})
	if meta == nil {
		return ""
	}
	s, _ := meta["name"].(string)
	return s
}

// Namespace returns metadata.namespace, or "".
func (m Manifest) Namespace() string {
	meta, _ := m["metadata"].(map[string]interface{})
	if meta == nil {
		return ""
	}
	s, _ := meta["namespace"].(string)
	return s
}

// IsDeployment reports whether the manifest is an apps/v1 Deployment.
func (m Manifest) IsDeployment() bool {
	return m.APIVersion() == "apps/v1" && m.Kind() == "Deployment"
}

// ResourceKey is the cache key form "{kind}/{namespace}/{name}".
func (m Manifest) ResourceKey(namespace string) string {
	if ns := m.Namespace(); ns != "" {
		namespace = ns
	}
	return fmt.Sprintf("%s/%s/%s", m.Kind(), namespace, m.Name())
}

// Spec returns the manifest's spec map, or nil.
func (m Manifest) Spec() map[string]interface{} {
	spec, _ := m["spec"].(map[string]interface{})
	return spec
}

// DeepCopy clones the manifest so normalization never mutates shared state.
func (m Manifest) DeepCopy() Manifest {
	return Manifest(copyValue(map[string]interface{}(m)).(map[string]interface{}))
}

func copyValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = copyValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = copyValue(val)
		}
		return out
	default:
		return t
	}
}

// Parse decodes one or more YAML documents into manifests, preserving order.
// Documents that are empty or not objects are skipped.
func Parse(content []byte) ([]Manifest, error) {
	var manifests []Manifest
	for _, doc := range strings.Split("\n"+string(content), objectDelimiter) {
		doc = strings.TrimSpace(doc)
		if doc == "" {
			continue
		}
		var m Manifest
		if err := yaml.Unmarshal([]byte(doc), &m); err != nil {
			return nil, fmt.Errorf("unmarshaling yaml as k8s object: %w", err)
		}
		if len(m) == 0 {
			continue
		}
		if m.Kind() == "" || m.APIVersion() == "" {
			return nil, fmt.Errorf("document missing kind or apiVersion")
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}

// Load reads manifests from a file, or from every .yaml/.yml under a
// directory. Files that fail to parse are skipped with a debug log so a
// manifests directory can hold non-resource YAML.
func Load(path string) ([]Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("accessing %s: %w", path, err)
	}
	if !info.IsDir() {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading manifest file %s: %w", path, err)
		}
		return Parse(content)
	}

	logger.Infof("Finding Kubernetes manifest files in directory: %s", path)
	var manifests []Manifest
	err = filepath.WalkDir(path, func(filePath string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !(strings.HasSuffix(d.Name(), ".yaml") || strings.HasSuffix(d.Name(), ".yml")) {
			return nil
		}
		content, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("reading file %s: %w", filePath, err)
		}
		parsed, err := Parse(content)
		if err != nil {
			logger.Debugf("Skipping file %s: %v", filePath, err)
			return nil
		}
		manifests = append(manifests, parsed...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking manifest directory: %w", err)
	}
	return manifests, nil
}
