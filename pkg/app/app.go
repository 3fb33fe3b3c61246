// Package app wires the subsystems into one running application: cache,
// history store, memory service, Kubernetes client, event emitter,
// orchestrator, and the agent supervisor.
package app

import (
	"github.com/rs/zerolog"

	"github.com/nopea/nopea/pkg/agent"
	"github.com/nopea/nopea/pkg/cache"
	"github.com/nopea/nopea/pkg/config"
	"github.com/nopea/nopea/pkg/deploy"
	"github.com/nopea/nopea/pkg/events"
	"github.com/nopea/nopea/pkg/kube"
	"github.com/nopea/nopea/pkg/logger"
	"github.com/nopea/nopea/pkg/memory"
	"github.com/nopea/nopea/pkg/occurrence"
	"github.com/nopea/nopea/pkg/store"
)

// Options overrides parts of the default wiring. A non-nil KubeClient
// replaces the real cluster client, which is how tests and disabled-cluster
// runs substitute a fake.
type Options struct {
	KubeClient kube.Client
}

// App is the assembled application.
type App struct {
	Config     config.Config
	Cache      *cache.Cache
	Memory     *memory.Service
	History    *store.Store
	Client     kube.Client
	Supervisor *agent.Supervisor

	orchestrator *deploy.Orchestrator
	log          zerolog.Logger
}

// New assembles the application from configuration. The caller owns the
// returned App and must Close it.
func New(cfg config.Config, opts Options) (*App, error) {
	log := logger.Component("app")

	c := cache.New()

	history, err := store.Open(cfg.HistoryPath())
	if err != nil {
		return nil, err
	}

	mem := memory.NewService(c)
	mem.Start()

	client := opts.KubeClient
	if client == nil {
		if cfg.ClusterEnabled {
			client, err = kube.NewDynamicClient(cfg.Kubeconfig)
			if err != nil {
				mem.Stop()
				_ = history.Close()
				return nil, err
			}
		} else {
			log.Warn().Msg("cluster disabled, deploys run against an in-memory fake")
			client = kube.NewFake()
		}
	}

	var emitter events.Emitter = events.Noop{}
	if cfg.CDEventsEndpoint != "" {
		cd, err := events.NewCDEmitter(cfg.CDEventsEndpoint)
		if err != nil {
			log.Warn().Err(err).Msg("cdevents emitter unavailable, continuing without")
		} else {
			emitter = cd
			log.Info().Str("endpoint", cfg.CDEventsEndpoint).Msg("cdevents emission enabled")
		}
	}

	orch := deploy.NewOrchestrator(deploy.Options{
		Client:          client,
		Memory:          mem,
		Cache:           c,
		History:         history,
		Emitter:         emitter,
		Occurrences:     occurrence.NewWriter(cfg.DataDir),
		CanaryThreshold: cfg.CanaryThreshold,
	})

	return &App{
		Config:       cfg,
		Cache:        c,
		Memory:       mem,
		History:      history,
		Client:       client,
		Supervisor:   agent.NewSupervisor(orch, c, cfg.AgentIdleTimeout),
		orchestrator: orch,
		log:          log,
	}, nil
}

// Close shuts the application down in dependency order: agents first so
// no deploy is in flight, then memory, then the history database.
func (a *App) Close() {
	a.Supervisor.Shutdown()
	a.Memory.Stop()
	if err := a.History.Close(); err != nil {
		a.log.Warn().Err(err).Msg("closing history store")
	}
}
