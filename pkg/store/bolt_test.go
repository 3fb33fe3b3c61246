package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/identifier"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nopea.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutAndList(t *testing.T) {
	s := openTemp(t)
	gen := identifier.NewGenerator()

	first := deployment.Result{
		DeployID:  gen.New(),
		Service:   "svc",
		Namespace: "prod",
		Status:    deployment.StatusCompleted,
		Strategy:  deployment.StrategyDirect,
		Timestamp: time.Now().UTC(),
	}
	second := first
	second.DeployID = gen.New()
	second.Status = deployment.StatusFailed

	require.NoError(t, s.Put(first))
	require.NoError(t, s.Put(second))
	require.NoError(t, s.Put(deployment.Result{DeployID: gen.New(), Service: "other", Status: deployment.StatusCompleted}))

	results, err := s.List("svc")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, first.DeployID, results[0].DeployID, "history is oldest first")
	assert.Equal(t, deployment.StatusFailed, results[1].Status)
}

func TestListUnknownService(t *testing.T) {
	s := openTemp(t)
	results, err := s.List("missing")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHistorySurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nopea.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(deployment.Result{DeployID: identifier.New(), Service: "svc", Status: deployment.StatusCompleted}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	results, err := s2.List("svc")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
