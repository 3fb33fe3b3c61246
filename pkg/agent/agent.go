// Package agent serializes deploys per service. Each service gets one
// agent goroutine with a bounded FIFO mailbox; a deploy for a service
// never overlaps another deploy for the same service, while distinct
// services proceed in parallel.
package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/nopea/nopea/pkg/cache"
	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/logger"
	"github.com/nopea/nopea/pkg/telemetry"
)

const (
	// queueCap bounds waiting deploys per service. Submissions beyond it
	// fail fast with QUEUE_FULL instead of building unbounded backlog.
	queueCap = 10

	// crashCooldown is how long an agent pauses after a worker crash
	// before taking the next queued deploy.
	crashCooldown = 2 * time.Second

	// DefaultIdleTimeout stops agents that have had no work for a while.
	DefaultIdleTimeout = 15 * time.Minute
)

// Runner executes one deploy. The orchestrator is the production Runner.
type Runner interface {
	Run(ctx context.Context, spec deployment.Spec) deployment.Result
}

const (
	stateIdle      = "idle"
	stateDeploying = "deploying"
)

type request struct {
	ctx   context.Context
	spec  deployment.Spec
	reply chan deployment.Result
}

// Agent owns the deploy queue for a single service.
type Agent struct {
	service     string
	runner      Runner
	cache       *cache.Cache
	idleTimeout time.Duration
	onExit      func(service string, crashed bool)
	log         zerolog.Logger

	requests chan request
	stop     chan struct{}
	kill     chan struct{}
	done     chan struct{}

	// loop-owned, read by Submit only through the cache snapshot
	deployCount int
	lastResult  *deployment.Result
}

func newAgent(service string, runner Runner, c *cache.Cache, idleTimeout time.Duration, onExit func(string, bool)) *Agent {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	a := &Agent{
		service:     service,
		runner:      runner,
		cache:       c,
		idleTimeout: idleTimeout,
		onExit:      onExit,
		log:         logger.Component("agent").With().Str("service", service).Logger(),
		requests:    make(chan request, queueCap),
		stop:        make(chan struct{}),
		kill:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	a.restoreState()
	go a.run()
	return a
}

// restoreState carries the previous incarnation's last result forward so
// clients observe continuity across restarts. The deploy count restarts
// from zero with the agent.
func (a *Agent) restoreState() {
	if v, ok := a.cache.GetServiceState(a.service); ok {
		if prev, ok := v.(deployment.ServiceState); ok {
			a.lastResult = prev.LastResult
		}
	}
	a.persistState(stateIdle)
}

// Submit queues one deploy and waits for its result. A full queue is
// answered immediately with a QUEUE_FULL failure; a stopped agent reports
// AGENT_STOPPED so the supervisor can respawn and retry.
func (a *Agent) Submit(ctx context.Context, spec deployment.Spec) deployment.Result {
	req := request{ctx: ctx, spec: spec, reply: make(chan deployment.Result, 1)}
	select {
	case a.requests <- req:
	case <-a.done:
		return a.failure(spec, errors.CodeAgentStopped, "agent is not running")
	default:
		telemetry.QueueRejected(a.service)
		a.log.Warn().Int("queue_cap", queueCap).Msg("deploy rejected, queue full")
		return a.failure(spec, errors.CodeQueueFull,
			fmt.Sprintf("%d deploys already queued for %s", queueCap, spec.Service))
	}
	telemetry.SetQueueDepth(a.service, len(a.requests))

	select {
	case result := <-req.reply:
		return result
	case <-a.done:
		return a.failure(spec, errors.CodeAgentStopped, "agent stopped before the deploy ran")
	}
}

// Stop shuts the agent down after the in-flight deploy, abandoning queued
// requests. Safe to call more than once.
func (a *Agent) Stop() {
	select {
	case <-a.stop:
	default:
		close(a.stop)
	}
	<-a.done
}

func (a *Agent) run() {
	crashed := false
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			a.log.Error().Interface("panic", r).Msg("agent loop crashed")
		}
		close(a.done)
		if a.onExit != nil {
			a.onExit(a.service, crashed)
		}
	}()

	idle := time.NewTimer(a.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case req := <-a.requests:
			telemetry.SetQueueDepth(a.service, len(a.requests))
			if a.handle(req) {
				time.Sleep(crashCooldown)
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(a.idleTimeout)
		case <-idle.C:
			a.log.Info().Dur("idle_timeout", a.idleTimeout).Msg("agent idle, stopping")
			return
		case <-a.kill:
			panic("killed")
		case <-a.stop:
			return
		}
	}
}

// handle runs one deploy through the worker and reports whether the worker
// crashed. Requests whose context already expired are answered without
// touching the cluster.
func (a *Agent) handle(req request) bool {
	if err := req.ctx.Err(); err != nil {
		req.reply <- a.failure(req.spec, errors.CodeTimeout, "deploy expired while queued")
		return false
	}

	a.persistState(stateDeploying)

	result, crashed := a.runWorker(req.ctx, req.spec)
	if crashed {
		telemetry.WorkerCrashed(a.service)
		a.log.Error().Str("service", req.spec.Service).Msg("deploy worker crashed")
	}

	a.deployCount++
	a.lastResult = &result
	a.persistState(stateIdle)
	req.reply <- result
	return crashed
}

// runWorker executes the deploy on its own goroutine so a panic takes the
// worker down, not the agent. A crash synthesizes a failed result.
func (a *Agent) runWorker(ctx context.Context, spec deployment.Spec) (result deployment.Result, crashed bool) {
	done := make(chan deployment.Result, 1)
	panicked := make(chan interface{}, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				panicked <- r
			}
		}()
		done <- a.runner.Run(ctx, spec)
	}()

	select {
	case result = <-done:
		return result, false
	case reason := <-panicked:
		result = a.failure(spec, errors.CodeWorkerCrash, fmt.Sprintf("deploy worker panic: %v", reason))
		return result, true
	}
}

func (a *Agent) failure(spec deployment.Spec, code errors.Code, message string) deployment.Result {
	namespace := spec.Namespace
	if namespace == "" {
		namespace = deployment.DefaultNamespace
	}
	return deployment.Result{
		Service:   spec.Service,
		Namespace: namespace,
		Status:    deployment.StatusFailed,
		Strategy:  spec.Strategy,
		Error:     errors.Newf(code, "agent", "%s", message),
		Timestamp: time.Now().UTC(),
	}
}

func (a *Agent) persistState(status string) {
	a.cache.PutServiceState(a.service, deployment.ServiceState{
		Service:     a.service,
		Status:      status,
		DeployCount: a.deployCount,
		QueueLength: len(a.requests),
		LastResult:  a.lastResult,
	})
}
