package occurrence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/memory"
)

func completedResult() deployment.Result {
	return deployment.Result{
		DeployID:      "01J5TESTTESTTESTTESTTESTTE",
		Service:       "svc",
		Namespace:     "prod",
		Status:        deployment.StatusCompleted,
		Strategy:      deployment.StrategyDirect,
		ManifestCount: 2,
		DurationMS:    420,
		Verified:      true,
	}
}

func TestBuildCompleted(t *testing.T) {
	occ := Build(completedResult(), nil)

	assert.Equal(t, "1.0", occ["version"])
	assert.Equal(t, "nopea", occ["source"])
	assert.Equal(t, "deploy.run.completed", occ["type"])
	assert.Equal(t, "info", occ["severity"])
	assert.Equal(t, "completed", occ["outcome"])
	assert.NotContains(t, occ, "error")
	assert.NotContains(t, occ, "reasoning")
	assert.Len(t, occ["id"].(string), 26)

	history := occ["history"].(map[string]interface{})
	steps := history["steps"].([]map[string]interface{})
	require.Len(t, steps, 2)
	assert.Equal(t, "apply manifests", steps[0]["step"])
	assert.Equal(t, "post-deploy verification", steps[1]["step"])

	data := occ["deploy_data"].(map[string]interface{})
	assert.Equal(t, "direct", data["strategy"])
	assert.Equal(t, 2, data["manifests_applied"])
	assert.Equal(t, true, data["verified"])
}

func TestBuildFailed(t *testing.T) {
	result := completedResult()
	result.Status = deployment.StatusFailed
	result.Verified = false
	result.Error = errors.Newf(errors.CodeApplyFailed, "kube", "apply Deployment/web")
	memCtx := &memory.Context{Service: "svc", Namespace: "prod", Known: true,
		Recommendations: []string{"use a canary rollout"}}

	occ := Build(result, memCtx)
	assert.Equal(t, "deploy.run.failed", occ["type"])
	assert.Equal(t, "error", occ["severity"])

	errSection := occ["error"].(map[string]interface{})
	assert.Equal(t, "APPLY_FAILED", errSection["code"])
	assert.Equal(t, "deploy of svc (direct)", errSection["what_failed"])
	assert.Contains(t, errSection["why_it_matters"], "svc in prod is not updated")

	reasoning := occ["reasoning"].(map[string]interface{})
	assert.Equal(t, 0.8, reasoning["confidence"], "known services reason with higher confidence")
	assert.Contains(t, reasoning["summary"], "apply_failed")
	assert.Equal(t, []string{"use a canary rollout"}, reasoning["recommendations"])

	steps := occ["history"].(map[string]interface{})["steps"].([]map[string]interface{})
	require.Len(t, steps, 1)
	assert.Equal(t, "failed", steps[0]["status"])
}

func TestBuildRolledbackAddsRollbackStep(t *testing.T) {
	result := completedResult()
	result.Status = deployment.StatusRolledback
	occ := Build(result, nil)
	assert.Equal(t, "warning", occ["severity"])
	steps := occ["history"].(map[string]interface{})["steps"].([]map[string]interface{})
	require.Len(t, steps, 2)
	assert.Equal(t, "rollback", steps[1]["step"])

	reasoning := occ["reasoning"].(map[string]interface{})
	assert.Equal(t, 0.3, reasoning["confidence"], "no context means low confidence")
}

func TestPersistWritesBothArtifacts(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	occ := Build(completedResult(), nil)
	require.NoError(t, w.Persist(occ))

	cold, err := os.ReadFile(filepath.Join(dir, "occurrence.json"))
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(cold, &decoded))
	assert.Equal(t, "deploy.run.completed", decoded["type"])

	id := occ["id"].(string)
	warm, err := os.ReadFile(filepath.Join(dir, "occurrences", id+".etf"))
	require.NoError(t, err)
	var warmDecoded map[string]interface{}
	require.NoError(t, cbor.Unmarshal(warm, &warmDecoded))
	assert.Equal(t, "nopea", warmDecoded["source"])

	// Persisting again is idempotent on the directory.
	require.NoError(t, w.Persist(Build(completedResult(), nil)))
}
