// Package occurrence builds the structured post-deploy report written after
// every deploy: a pretty JSON cold path for humans plus a binary warm path
// per deploy for downstream tooling.
package occurrence

import (
	"fmt"
	"time"

	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/identifier"
	"github.com/nopea/nopea/pkg/memory"
)

const (
	schemaVersion = "1.0"
	source        = "nopea"
)

// Occurrence is the report map. Keys are part of the artifact contract.
type Occurrence map[string]interface{}

func severityFor(status deployment.Status) string {
	switch status {
	case deployment.StatusCompleted:
		return "info"
	case deployment.StatusRolledback:
		return "warning"
	default:
		return "error"
	}
}

func impactFor(code errors.Code) string {
	switch code {
	case errors.CodeQueueFull:
		return "the request was rejected before reaching the cluster"
	case errors.CodeWorkerCrash:
		return "the deploy worker died mid-flight"
	case errors.CodeForbidden:
		return "the cluster refused the credentials in use"
	case errors.CodeConnectionRefused, errors.CodeTimeout:
		return "the cluster could not be reached in time"
	default:
		return "the previous version keeps serving traffic"
	}
}

// Build assembles the report from a deploy result and, when available, the
// memory context consulted for the deploy.
func Build(result deployment.Result, memCtx *memory.Context) Occurrence {
	outcome := string(result.Status)
	occ := Occurrence{
		"version":   schemaVersion,
		"id":        identifier.New(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"source":    source,
		"type":      "deploy.run." + outcome,
		"severity":  severityFor(result.Status),
		"outcome":   outcome,
		"history":   history(result),
		"deploy_data": map[string]interface{}{
			"service":           result.Service,
			"namespace":         result.Namespace,
			"strategy":          string(result.Strategy),
			"manifests_applied": result.ManifestCount,
			"verified":          result.Verified,
			"deploy_id":         result.DeployID,
		},
	}

	if result.Status != deployment.StatusCompleted {
		occ["error"] = errorSection(result)
		occ["reasoning"] = reasoning(result, memCtx)
	}
	return occ
}

func errorSection(result deployment.Result) map[string]interface{} {
	section := map[string]interface{}{
		"code":        string(errors.CodeOf(result.Error)),
		"what_failed": fmt.Sprintf("deploy of %s (%s)", result.Service, result.Strategy),
		"why_it_matters": fmt.Sprintf("%s in %s is not updated - %s",
			result.Service, result.Namespace, impactFor(errors.CodeOf(result.Error))),
	}
	if result.Error != nil {
		section["message"] = result.Error.Message
	}
	return section
}

func reasoning(result deployment.Result, memCtx *memory.Context) map[string]interface{} {
	known := memCtx != nil && memCtx.Known
	confidence := 0.3
	if known {
		confidence = 0.8
	}
	section := map[string]interface{}{
		"summary":    fmt.Sprintf("deploy failed with %s", errors.Tag(result.Error)),
		"confidence": confidence,
	}
	if memCtx != nil {
		section["memory_context"] = memCtx
		if len(memCtx.Recommendations) > 0 {
			section["recommendations"] = memCtx.Recommendations
		}
	}
	return section
}

func history(result deployment.Result) map[string]interface{} {
	var steps []map[string]interface{}
	switch result.Status {
	case deployment.StatusCompleted:
		steps = append(steps, map[string]interface{}{
			"step":        "apply manifests",
			"status":      "completed",
			"duration_ms": result.DurationMS,
		})
		if result.Verified {
			steps = append(steps, map[string]interface{}{
				"step":   "post-deploy verification",
				"status": "passed",
			})
		}
	default:
		failed := map[string]interface{}{
			"step":        "apply manifests",
			"status":      "failed",
			"duration_ms": result.DurationMS,
		}
		if result.Error != nil {
			failed["error"] = result.Error.Error()
		}
		steps = append(steps, failed)
		if result.Status == deployment.StatusRolledback {
			steps = append(steps, map[string]interface{}{
				"step":   "rollback",
				"status": "completed",
			})
		}
	}
	return map[string]interface{}{
		"steps":       steps,
		"duration_ms": result.DurationMS,
	}
}
