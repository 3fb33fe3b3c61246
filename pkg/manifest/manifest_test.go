package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const deploymentYAML = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
  namespace: prod
spec:
  replicas: 2
`

const serviceYAML = `apiVersion: v1
kind: Service
metadata:
  name: web
`

func TestParseSingleDocument(t *testing.T) {
	ms, err := Parse([]byte(deploymentYAML))
	require.NoError(t, err)
	require.Len(t, ms, 1)
	m := ms[0]
	assert.Equal(t, "Deployment", m.Kind())
	assert.Equal(t, "web", m.Name())
	assert.Equal(t, "prod", m.Namespace())
	assert.True(t, m.IsDeployment())
	assert.Equal(t, "Deployment/prod/web", m.ResourceKey("default"))
}

func TestParseMultiDocumentPreservesOrder(t *testing.T) {
	ms, err := Parse([]byte(deploymentYAML + "---\n" + serviceYAML))
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, "Deployment", ms[0].Kind())
	assert.Equal(t, "Service", ms[1].Kind())
	assert.Equal(t, "Service/default/web", ms[1].ResourceKey("default"))
}

func TestParseRejectsNonResource(t *testing.T) {
	_, err := Parse([]byte("name: just-a-map\n"))
	assert.Error(t, err)
}

func TestDeepCopyIsDetached(t *testing.T) {
	ms, err := Parse([]byte(deploymentYAML))
	require.NoError(t, err)
	clone := ms[0].DeepCopy()
	clone.Spec()["replicas"] = 9
	assert.NotEqual(t, ms[0].Spec()["replicas"], clone.Spec()["replicas"])
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deploy.yaml"), []byte(deploymentYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "svc.yml"), []byte(serviceYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore"), 0o644))

	ms, err := Load(dir)
	require.NoError(t, err)
	assert.Len(t, ms, 2)
}
