// Package deploy runs the deploy lifecycle: strategy selection, manifest
// application, post-deploy verification, and outcome recording.
package deploy

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/kube"
	"github.com/nopea/nopea/pkg/manifest"
	"github.com/nopea/nopea/pkg/memory"
)

// Rollout manifests hand progressive delivery off to the external kulta
// controller; nopea only shapes and applies the envelope.
const (
	rolloutAPIVersion = "kulta.io/v1alpha1"
	rolloutKind       = "Rollout"
	managedByLabel    = "app.kubernetes.io/managed-by"
	managedByValue    = "nopea"
	canarySuffix      = "-canary"
	previewSuffix     = "-preview"
)

// ChooseStrategy resolves the strategy for a spec. Explicit known
// strategies win; unknown values are logged and coerced to direct; an
// absent strategy auto-selects canary when memory knows a failure pattern
// above the threshold.
func ChooseStrategy(spec deployment.Spec, memCtx *memory.Context, canaryThreshold float64, log zerolog.Logger) deployment.Strategy {
	if spec.Strategy.Known() {
		return spec.Strategy
	}
	if spec.Strategy != deployment.StrategyAuto {
		log.Warn().Str("strategy", string(spec.Strategy)).Str("service", spec.Service).
			Msg("unknown strategy, falling back to direct")
		return deployment.StrategyDirect
	}
	if memCtx != nil {
		for _, p := range memCtx.FailurePatterns {
			if p.Confidence > canaryThreshold {
				log.Info().Str("service", spec.Service).Str("error", p.Error).
					Float64("confidence", p.Confidence).
					Msg("auto-selecting canary from failure history")
				return deployment.StrategyCanary
			}
		}
	}
	return deployment.StrategyDirect
}

// execute applies the spec with the chosen strategy and returns the
// applied manifests in order.
func execute(ctx context.Context, client kube.Client, spec deployment.Spec, strategy deployment.Strategy) ([]manifest.Manifest, error) {
	switch strategy {
	case deployment.StrategyDirect:
		return client.ApplyManifests(ctx, spec.Manifests, spec.Namespace)
	case deployment.StrategyCanary, deployment.StrategyBlueGreen:
		rollout, err := BuildRollout(spec, strategy)
		if err != nil {
			return nil, err
		}
		applied, err := client.ApplyManifest(ctx, rollout, spec.Namespace)
		if err != nil {
			return nil, err
		}
		return []manifest.Manifest{applied}, nil
	default:
		return nil, errors.Newf(errors.CodeInvalidParameter, "deploy", "unexecutable strategy %q", strategy)
	}
}

// BuildRollout translates a spec into the single rollout manifest consumed
// by the progressive-delivery controller. The replicas, selector, and pod
// template come from the first Deployment manifest in the spec.
func BuildRollout(spec deployment.Spec, strategy deployment.Strategy) (manifest.Manifest, error) {
	var source manifest.Manifest
	for _, m := range spec.Manifests {
		if m.IsDeployment() {
			source = m
			break
		}
	}
	if source == nil {
		return nil, errors.Newf(errors.CodeNoDeploymentFound, "deploy",
			"%s rollout for %s needs a Deployment manifest", strategy, spec.Service)
	}
	sourceSpec := source.DeepCopy().Spec()

	rolloutSpec := map[string]interface{}{
		"replicas": sourceSpec["replicas"],
		"selector": sourceSpec["selector"],
		"template": sourceSpec["template"],
	}
	switch strategy {
	case deployment.StrategyCanary:
		steps := make([]interface{}, 0, len(spec.Options.CanarySteps))
		for _, w := range spec.Options.CanarySteps {
			steps = append(steps, map[string]interface{}{"setWeight": w})
		}
		rolloutSpec["strategy"] = map[string]interface{}{
			"canary": map[string]interface{}{
				"steps":         steps,
				"canaryService": spec.Service + canarySuffix,
				"stableService": spec.Service,
			},
		}
	case deployment.StrategyBlueGreen:
		rolloutSpec["strategy"] = map[string]interface{}{
			"blueGreen": map[string]interface{}{
				"activeService":  spec.Service,
				"previewService": spec.Service + previewSuffix,
			},
		}
	}

	return manifest.Manifest{
		"apiVersion": rolloutAPIVersion,
		"kind":       rolloutKind,
		"metadata": map[string]interface{}{
			"name":      spec.Service,
			"namespace": spec.Namespace,
			"labels": map[string]interface{}{
				managedByLabel: managedByValue,
			},
		},
		"spec": rolloutSpec,
	}, nil
}
