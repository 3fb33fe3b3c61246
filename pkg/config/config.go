// Package config reads runtime settings from NOPEA_* environment
// variables. A .env file, when present, is loaded by the CLI entrypoint
// before this package reads anything.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nopea/nopea/pkg/logger"
)

const (
	envAPIPort          = "NOPEA_API_PORT"
	envCDEventsEndpoint = "NOPEA_CDEVENTS_ENDPOINT"
	envKubeconfig       = "NOPEA_KUBECONFIG"
	envDataDir          = "NOPEA_DATA_DIR"
	envAgentIdleTimeout = "NOPEA_AGENT_IDLE_TIMEOUT"
	envClusterEnabled   = "NOPEA_CLUSTER_ENABLED"
	envCanaryThreshold  = "NOPEA_CANARY_THRESHOLD"
)

const (
	defaultAPIPort         = 4000
	defaultIdleTimeout     = 15 * time.Minute
	defaultCanaryThreshold = 0.15
)

// Config is the resolved runtime configuration.
type Config struct {
	// APIPort is where the HTTP API listens.
	APIPort int
	// CDEventsEndpoint, when set, enables CDEvents emission to that URL.
	CDEventsEndpoint string
	// Kubeconfig overrides the kubeconfig path used to reach the cluster.
	Kubeconfig string
	// DataDir holds the deploy history database and occurrence artifacts.
	DataDir string
	// AgentIdleTimeout stops service agents that have had no deploys.
	AgentIdleTimeout time.Duration
	// ClusterEnabled gates the real Kubernetes client. When false, deploys
	// run against a no-cluster fake, which is useful for dry runs.
	ClusterEnabled bool
	// CanaryThreshold is the failure-pattern confidence above which an
	// unspecified strategy escalates to canary.
	CanaryThreshold float64
}

// Load resolves the configuration from the environment. Malformed values
// fall back to defaults with a warning rather than failing startup.
func Load() Config {
	return Config{
		APIPort:          intFromEnv(envAPIPort, defaultAPIPort),
		CDEventsEndpoint: os.Getenv(envCDEventsEndpoint),
		Kubeconfig:       os.Getenv(envKubeconfig),
		DataDir:          dataDir(),
		AgentIdleTimeout: durationFromEnv(envAgentIdleTimeout, defaultIdleTimeout),
		ClusterEnabled:   boolFromEnv(envClusterEnabled, true),
		CanaryThreshold:  floatFromEnv(envCanaryThreshold, defaultCanaryThreshold),
	}
}

// HistoryPath is the bbolt database location under the data directory.
func (c Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

func dataDir() string {
	if dir := os.Getenv(envDataDir); dir != "" {
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ".nopea"
	}
	return filepath.Join(cwd, ".nopea")
}

func intFromEnv(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		logger.Warnf("ignoring %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		logger.Warnf("ignoring %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return v
}

func boolFromEnv(key string, fallback bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Warnf("ignoring %s=%q, using %t", key, raw, fallback)
		return fallback
	}
	return v
}

func floatFromEnv(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v >= 1 {
		logger.Warnf("ignoring %s=%q, using %g", key, raw, fallback)
		return fallback
	}
	return v
}
