// Package drift verifies deployed state: it normalizes manifests down to
// the fields an operator actually owns, hashes them, and classifies the
// difference between last-applied, desired, and live copies.
package drift

import (
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/api/resource"

	"github.com/nopea/nopea/pkg/manifest"
)

var metadataVolatile = []string{
	"resourceVersion", "uid", "creationTimestamp", "generation",
	"managedFields", "selfLink", "namespace",
}

var annotationVolatile = []string{
	"kubectl.kubernetes.io/last-applied-configuration",
	"deployment.kubernetes.io/revision",
}

var podSpecDefaults = []string{
	"dnsPolicy", "restartPolicy", "schedulerName", "securityContext",
	"terminationGracePeriodSeconds",
}

var probeDefaults = []string{"failureThreshold", "periodSeconds", "successThreshold"}

var serviceClusterManaged = []string{
	"clusterIP", "clusterIPs", "internalTrafficPolicy", "ipFamilies",
	"ipFamilyPolicy", "sessionAffinity",
}

// Normalize strips volatile and cluster-managed fields so that the hash of
// a manifest is stable across apply round-trips. The input is never
// mutated; Normalize is idempotent.
func Normalize(m manifest.Manifest) manifest.Manifest {
	out := m.DeepCopy()
	delete(out, "status")

	if meta, ok := out["metadata"].(map[string]interface{}); ok {
		for _, field := range metadataVolatile {
			delete(meta, field)
		}
		if ann, ok := meta["annotations"].(map[string]interface{}); ok {
			for _, key := range annotationVolatile {
				delete(ann, key)
			}
			if len(ann) == 0 {
				delete(meta, "annotations")
			}
		}
	}

	switch out.Kind() {
	case "Deployment":
		normalizeDeployment(out)
	case "Service":
		if spec, ok := out["spec"].(map[string]interface{}); ok {
			for _, field := range serviceClusterManaged {
				delete(spec, field)
			}
		}
	}
	return out
}

func normalizeDeployment(m manifest.Manifest) {
	spec, ok := m["spec"].(map[string]interface{})
	if !ok {
		return
	}
	delete(spec, "replicas")
	if strategy, ok := spec["strategy"].(map[string]interface{}); ok {
		if ru, ok := strategy["rollingUpdate"].(map[string]interface{}); ok {
			delete(ru, "maxSurge")
		}
	}

	template, ok := spec["template"].(map[string]interface{})
	if !ok {
		return
	}
	podSpec, ok := template["spec"].(map[string]interface{})
	if !ok {
		return
	}
	for _, field := range podSpecDefaults {
		delete(podSpec, field)
	}
	containers, _ := podSpec["containers"].([]interface{})
	for _, c := range containers {
		container, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		delete(container, "terminationMessagePath")
		delete(container, "terminationMessagePolicy")
		for _, probe := range []string{"livenessProbe", "readinessProbe"} {
			if p, ok := container[probe].(map[string]interface{}); ok {
				for _, field := range probeDefaults {
					delete(p, field)
				}
			}
		}
		normalizeCPULimit(container)
	}
}

// normalizeCPULimit rewrites a milli-form cpu limit ("2000m") to its whole
// core form ("2") when the quantity is an exact core count, matching how
// the API server echoes the value back.
func normalizeCPULimit(container map[string]interface{}) {
	resources, ok := container["resources"].(map[string]interface{})
	if !ok {
		return
	}
	limits, ok := resources["limits"].(map[string]interface{})
	if !ok {
		return
	}
	cpu, ok := limits["cpu"].(string)
	if !ok || !strings.HasSuffix(cpu, "m") {
		return
	}
	q, err := resource.ParseQuantity(cpu)
	if err != nil {
		return
	}
	if milli := q.MilliValue(); milli%1000 == 0 {
		limits["cpu"] = strconv.FormatInt(milli/1000, 10)
	}
}
