package agent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nopea/nopea/pkg/cache"
	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/logger"
)

// Supervisor owns the per-service agents: it spawns them on first use,
// reaps them when they stop, and respawns crashed ones on the next deploy.
type Supervisor struct {
	runner      Runner
	cache       *cache.Cache
	idleTimeout time.Duration
	log         zerolog.Logger

	mu     sync.Mutex
	agents map[string]*Agent
}

func NewSupervisor(runner Runner, c *cache.Cache, idleTimeout time.Duration) *Supervisor {
	return &Supervisor{
		runner:      runner,
		cache:       c,
		idleTimeout: idleTimeout,
		log:         logger.Component("supervisor"),
		agents:      make(map[string]*Agent),
	}
}

// Deploy routes a spec to its service's agent, spawning one if needed. If
// the agent stopped between lookup and submit, the deploy retries once on
// a fresh agent.
func (s *Supervisor) Deploy(ctx context.Context, spec deployment.Spec) deployment.Result {
	for attempt := 0; ; attempt++ {
		result := s.ensure(spec.Service).Submit(ctx, spec)
		if result.Error != nil && result.Error.Code == errors.CodeAgentStopped && attempt == 0 {
			continue
		}
		return result
	}
}

// ensure returns the live agent for a service, creating it if absent.
func (s *Supervisor) ensure(service string) *Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.agents[service]; ok {
		return a
	}
	a := newAgent(service, s.runner, s.cache, s.idleTimeout, s.reap)
	s.agents[service] = a
	s.log.Info().Str("service", service).Msg("agent started")
	return a
}

// reap removes a finished agent from the registry. A crashed agent is
// respawned immediately with a reset deploy count; idle stops are left
// for the next deploy to respawn lazily.
func (s *Supervisor) reap(service string, crashed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.agents, service)
	if crashed {
		s.log.Error().Str("service", service).Msg("agent crashed, respawning")
		s.agents[service] = newAgent(service, s.runner, s.cache, s.idleTimeout, s.reap)
	} else {
		s.log.Debug().Str("service", service).Msg("agent stopped")
	}
}

// Status reports a service's last persisted state. Services that never
// deployed report false.
func (s *Supervisor) Status(service string) (deployment.ServiceState, bool) {
	v, ok := s.cache.GetServiceState(service)
	if !ok {
		return deployment.ServiceState{}, false
	}
	state, ok := v.(deployment.ServiceState)
	return state, ok
}

// Health reports the last persisted state of every known service and how
// many agents are currently live.
func (s *Supervisor) Health() (states []deployment.ServiceState, liveAgents int) {
	s.mu.Lock()
	liveAgents = len(s.agents)
	s.mu.Unlock()
	for _, service := range s.cache.ListServices() {
		if state, ok := s.Status(service); ok {
			states = append(states, state)
		}
	}
	return states, liveAgents
}

// Kill force-crashes a service's agent. Test hook.
func (s *Supervisor) Kill(service string) {
	s.mu.Lock()
	a, ok := s.agents[service]
	s.mu.Unlock()
	if !ok {
		return
	}
	close(a.kill)
	<-a.done
}

// Shutdown stops every live agent and waits for in-flight deploys.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	agents := make([]*Agent, 0, len(s.agents))
	for _, a := range s.agents {
		agents = append(agents, a)
	}
	s.mu.Unlock()
	for _, a := range agents {
		a.Stop()
	}
}
