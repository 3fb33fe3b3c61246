package deploy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopea/nopea/pkg/cache"
	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/kube"
	"github.com/nopea/nopea/pkg/logger"
	"github.com/nopea/nopea/pkg/manifest"
	"github.com/nopea/nopea/pkg/memory"
)

func deploymentManifest(name, image string) manifest.Manifest {
	return manifest.Manifest{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]interface{}{
			"name": name,
		},
		"spec": map[string]interface{}{
			"replicas": 3,
			"selector": map[string]interface{}{
				"matchLabels": map[string]interface{}{"app": name},
			},
			"template": map[string]interface{}{
				"metadata": map[string]interface{}{
					"labels": map[string]interface{}{"app": name},
				},
				"spec": map[string]interface{}{
					"containers": []interface{}{
						map[string]interface{}{"name": name, "image": image},
					},
				},
			},
		},
	}
}

func serviceManifest(name string) manifest.Manifest {
	return manifest.Manifest{
		"apiVersion": "v1",
		"kind":       "Service",
		"metadata":   map[string]interface{}{"name": name},
		"spec": map[string]interface{}{
			"selector": map[string]interface{}{"app": name},
			"ports":    []interface{}{map[string]interface{}{"port": 80}},
		},
	}
}

func newTestOrchestrator(t *testing.T, client kube.Client) (*Orchestrator, *memory.Service) {
	t.Helper()
	c := cache.New()
	mem := memory.NewService(c)
	mem.Start()
	t.Cleanup(mem.Stop)
	return NewOrchestrator(Options{Client: client, Memory: mem, Cache: c}), mem
}

func TestRunDirectDeploy(t *testing.T) {
	fake := kube.NewFake()
	orch, _ := newTestOrchestrator(t, fake)

	result := orch.Run(context.Background(), deployment.Spec{
		Service:   "web",
		Manifests: []manifest.Manifest{deploymentManifest("web", "web:1"), serviceManifest("web")},
	})

	assert.Equal(t, deployment.StatusCompleted, result.Status)
	assert.Equal(t, deployment.StrategyDirect, result.Strategy, "unknown services deploy direct")
	assert.Equal(t, "default", result.Namespace)
	assert.Equal(t, 2, result.ManifestCount)
	assert.True(t, result.Verified, "a fresh apply verifies clean")
	assert.Len(t, result.DeployID, 26)
	assert.Nil(t, result.Error)
	assert.Equal(t, 2, fake.AppliedCount())
}

func TestRunEmptyManifestsStillRecords(t *testing.T) {
	fake := kube.NewFake()
	orch, mem := newTestOrchestrator(t, fake)

	result := orch.Run(context.Background(), deployment.Spec{Service: "test-svc"})

	assert.Equal(t, deployment.StatusCompleted, result.Status)
	assert.Equal(t, 0, result.ManifestCount)
	assert.True(t, result.Verified)
	assert.GreaterOrEqual(t, result.DurationMS, int64(0))

	require.Eventually(t, func() bool {
		return mem.GetDeployContext("test-svc", "default").Known
	}, 2*time.Second, 10*time.Millisecond, "the deploy makes the service known")
}

func TestRunRejectsMissingService(t *testing.T) {
	fake := kube.NewFake()
	orch, _ := newTestOrchestrator(t, fake)

	result := orch.Run(context.Background(), deployment.Spec{})

	assert.Equal(t, deployment.StatusFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, errors.CodeMissingParameter, result.Error.Code)
	assert.Zero(t, fake.AppliedCount(), "nothing reaches the cluster")
}

func TestRunApplyFailure(t *testing.T) {
	fake := kube.NewFake()
	fake.ApplyErr = errors.Newf(errors.CodeApplyFailed, "kube", "apply Deployment/web")
	orch, mem := newTestOrchestrator(t, fake)

	result := orch.Run(context.Background(), deployment.Spec{
		Service:   "web",
		Manifests: []manifest.Manifest{deploymentManifest("web", "web:1")},
	})

	assert.Equal(t, deployment.StatusFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, errors.CodeApplyFailed, result.Error.Code)
	assert.False(t, result.Verified)

	// The failure lands in memory as a pattern under the error's tag.
	deadline := time.After(2 * time.Second)
	for {
		ctx := mem.GetDeployContext("web", "default")
		if len(ctx.FailurePatterns) > 0 {
			assert.Equal(t, "apply_failed", ctx.FailurePatterns[0].Error)
			return
		}
		select {
		case <-deadline:
			t.Fatal("failure pattern never recorded")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestAutoSelectsCanaryForKnownFailures(t *testing.T) {
	fake := kube.NewFake()
	orch, mem := newTestOrchestrator(t, fake)

	mem.RecordDeploy(memory.DeployOutcome{
		Service:   "web",
		Namespace: "default",
		Status:    "failed",
		Error:     errors.Newf(errors.CodeApplyFailed, "kube", "image pull backoff"),
	})
	require.Eventually(t, func() bool {
		return len(mem.GetDeployContext("web", "default").FailurePatterns) > 0
	}, 2*time.Second, 10*time.Millisecond)

	result := orch.Run(context.Background(), deployment.Spec{
		Service:   "web",
		Manifests: []manifest.Manifest{deploymentManifest("web", "web:2")},
	})

	assert.Equal(t, deployment.StrategyCanary, result.Strategy)
	assert.Equal(t, deployment.StatusCompleted, result.Status)
	assert.Equal(t, 1, result.ManifestCount, "canary applies a single rollout")
	assert.Equal(t, "Rollout", fake.LastApplied().Kind())
}

func TestUnknownStrategyFallsBackToDirect(t *testing.T) {
	spec := deployment.Spec{Service: "web", Strategy: "chaos"}
	got := ChooseStrategy(spec, nil, DefaultCanaryThreshold, logger.Component("test"))
	assert.Equal(t, deployment.StrategyDirect, got)
}

func TestExplicitStrategyWinsOverHistory(t *testing.T) {
	memCtx := &memory.Context{
		FailurePatterns: []memory.FailurePattern{{Error: "apply_failed", Confidence: 0.9}},
	}
	spec := deployment.Spec{Service: "web", Strategy: deployment.StrategyDirect}
	got := ChooseStrategy(spec, memCtx, DefaultCanaryThreshold, logger.Component("test"))
	assert.Equal(t, deployment.StrategyDirect, got)
}

func TestBuildRolloutCanaryShape(t *testing.T) {
	spec := deployment.Spec{
		Service:   "web",
		Namespace: "prod",
		Manifests: []manifest.Manifest{serviceManifest("web"), deploymentManifest("web", "web:3")},
		Options:   deployment.Options{CanarySteps: []int{20, 100}},
	}

	rollout, err := BuildRollout(spec, deployment.StrategyCanary)
	require.NoError(t, err)

	assert.Equal(t, "kulta.io/v1alpha1", rollout.APIVersion())
	assert.Equal(t, "Rollout", rollout.Kind())
	assert.Equal(t, "web", rollout.Name())
	assert.Equal(t, "prod", rollout.Namespace())

	meta := rollout["metadata"].(map[string]interface{})
	labels := meta["labels"].(map[string]interface{})
	assert.Equal(t, "nopea", labels["app.kubernetes.io/managed-by"])

	rspec := rollout.Spec()
	assert.Equal(t, 3, rspec["replicas"], "replicas come from the Deployment manifest")
	require.NotNil(t, rspec["template"])

	canary := rspec["strategy"].(map[string]interface{})["canary"].(map[string]interface{})
	assert.Equal(t, "web-canary", canary["canaryService"])
	assert.Equal(t, "web", canary["stableService"])
	steps := canary["steps"].([]interface{})
	require.Len(t, steps, 2)
	assert.Equal(t, map[string]interface{}{"setWeight": 20}, steps[0])
	assert.Equal(t, map[string]interface{}{"setWeight": 100}, steps[1])
}

func TestBuildRolloutBlueGreenShape(t *testing.T) {
	spec := deployment.Spec{
		Service:   "api",
		Namespace: "default",
		Manifests: []manifest.Manifest{deploymentManifest("api", "api:1")},
	}

	rollout, err := BuildRollout(spec, deployment.StrategyBlueGreen)
	require.NoError(t, err)

	bg := rollout.Spec()["strategy"].(map[string]interface{})["blueGreen"].(map[string]interface{})
	assert.Equal(t, "api", bg["activeService"])
	assert.Equal(t, "api-preview", bg["previewService"])
}

func TestBuildRolloutNeedsDeployment(t *testing.T) {
	spec := deployment.Spec{
		Service:   "web",
		Manifests: []manifest.Manifest{serviceManifest("web")},
	}
	_, err := BuildRollout(spec, deployment.StrategyCanary)
	require.Error(t, err)
	assert.Equal(t, errors.CodeNoDeploymentFound, errors.CodeOf(err))
}

func TestReapplyConvergesManualDrift(t *testing.T) {
	fake := kube.NewFake()
	orch, _ := newTestOrchestrator(t, fake)
	spec := deployment.Spec{
		Service:   "web",
		Manifests: []manifest.Manifest{deploymentManifest("web", "web:1")},
	}

	first := orch.Run(context.Background(), spec)
	require.True(t, first.Verified)

	// Someone edits the live object behind nopea's back.
	hacked := deploymentManifest("web", "web:hacked")
	fake.Seed(hacked, "default")

	second := orch.Run(context.Background(), spec)
	assert.Equal(t, deployment.StatusCompleted, second.Status)
	assert.True(t, second.Verified, "re-applying the same manifest converges the cluster")
}

func TestRunTimesOut(t *testing.T) {
	fake := kube.NewFake()
	fake.Gate = make(chan struct{})
	orch, _ := newTestOrchestrator(t, fake)

	result := orch.Run(context.Background(), deployment.Spec{
		Service:   "web",
		Manifests: []manifest.Manifest{deploymentManifest("web", "web:1")},
		TimeoutMS: 50,
	})

	assert.Equal(t, deployment.StatusFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, errors.CodeTimeout, result.Error.Code)
}

func TestRunRecordsHistoryInCache(t *testing.T) {
	fake := kube.NewFake()
	c := cache.New()
	orch := NewOrchestrator(Options{Client: fake, Cache: c})

	spec := deployment.Spec{
		Service:   "web",
		Manifests: []manifest.Manifest{deploymentManifest("web", "web:1")},
	}
	first := orch.Run(context.Background(), spec)
	second := orch.Run(context.Background(), spec)

	history := c.ListDeployments("web")
	require.Len(t, history, 2)
	assert.Equal(t, first.DeployID, history[0].(deployment.Result).DeployID)
	assert.Equal(t, second.DeployID, history[1].(deployment.Result).DeployID)
}
