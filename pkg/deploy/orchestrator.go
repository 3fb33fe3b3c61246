package deploy

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/nopea/nopea/pkg/cache"
	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/drift"
	"github.com/nopea/nopea/pkg/events"
	"github.com/nopea/nopea/pkg/identifier"
	"github.com/nopea/nopea/pkg/kube"
	"github.com/nopea/nopea/pkg/logger"
	"github.com/nopea/nopea/pkg/manifest"
	"github.com/nopea/nopea/pkg/memory"
	"github.com/nopea/nopea/pkg/occurrence"
	"github.com/nopea/nopea/pkg/store"
	"github.com/nopea/nopea/pkg/telemetry"
)

// DefaultCanaryThreshold is the failure-pattern confidence above which an
// unspecified strategy escalates to canary.
const DefaultCanaryThreshold = 0.15

// Orchestrator runs one deploy end to end. It is stateless between runs;
// everything durable lives in the cache, the history store, and memory.
type Orchestrator struct {
	client          kube.Client
	memory          *memory.Service
	cache           *cache.Cache
	history         *store.Store
	verifier        *drift.Verifier
	emitter         events.Emitter
	occurrences     *occurrence.Writer
	ids             *identifier.Generator
	canaryThreshold float64
	log             zerolog.Logger
}

// Options carries the orchestrator's collaborators. History, emitter, and
// occurrence writer are optional; a zero CanaryThreshold means the default.
type Options struct {
	Client          kube.Client
	Memory          *memory.Service
	Cache           *cache.Cache
	History         *store.Store
	Emitter         events.Emitter
	Occurrences     *occurrence.Writer
	CanaryThreshold float64
}

func NewOrchestrator(opts Options) *Orchestrator {
	emitter := opts.Emitter
	if emitter == nil {
		emitter = events.Noop{}
	}
	threshold := opts.CanaryThreshold
	if threshold <= 0 {
		threshold = DefaultCanaryThreshold
	}
	return &Orchestrator{
		client:          opts.Client,
		memory:          opts.Memory,
		cache:           opts.Cache,
		history:         opts.History,
		verifier:        drift.NewVerifier(opts.Cache, opts.Client),
		emitter:         emitter,
		occurrences:     opts.Occurrences,
		ids:             identifier.NewGenerator(),
		canaryThreshold: threshold,
		log:             logger.Component("deploy"),
	}
}

// Run executes one deploy. It always returns a Result; failures are carried
// in Result.Error rather than a second return so every outcome flows
// through the same recording path.
func (o *Orchestrator) Run(ctx context.Context, spec deployment.Spec) deployment.Result {
	started := time.Now()
	if err := spec.Normalize(); err != nil {
		result := deployment.Result{
			Service:   spec.Service,
			Namespace: spec.Namespace,
			Status:    deployment.StatusFailed,
			Error:     asCoded(err),
			Timestamp: started.UTC(),
		}
		o.log.Error().Err(err).Str("service", spec.Service).Msg("deploy spec rejected")
		return result
	}

	deployID := o.ids.New()
	memCtx := memory.Context{Service: spec.Service, Namespace: spec.Namespace}
	if o.memory != nil {
		memCtx = o.memory.GetDeployContext(spec.Service, spec.Namespace)
	}
	strategy := ChooseStrategy(spec, &memCtx, o.canaryThreshold, o.log)

	o.log.Info().
		Str("service", spec.Service).
		Str("namespace", spec.Namespace).
		Str("deploy_id", deployID).
		Str("strategy", string(strategy)).
		Int("manifests", len(spec.Manifests)).
		Msg("deploy started")
	telemetry.DeployStart(spec.Service, string(strategy))
	o.emitter.DeploymentStarted(spec.Service, spec.Namespace, deployID)

	runCtx, cancel := context.WithTimeout(ctx, spec.Timeout())
	defer cancel()

	applied, execErr := execute(runCtx, o.client, spec, strategy)

	result := deployment.Result{
		DeployID:         deployID,
		Service:          spec.Service,
		Namespace:        spec.Namespace,
		Strategy:         strategy,
		ManifestCount:    len(applied),
		AppliedResources: applied,
		Timestamp:        started.UTC(),
	}
	if execErr != nil {
		result.Status = deployment.StatusFailed
		result.Error = asCoded(execErr)
		o.log.Error().Err(execErr).Str("service", spec.Service).Str("deploy_id", deployID).
			Msg("deploy failed")
	} else {
		result.Status = deployment.StatusCompleted
		for _, m := range applied {
			o.cache.PutLastApplied(spec.Service, m.ResourceKey(spec.Namespace), m)
		}
		result.Verified = o.verify(runCtx, spec.Service, spec.Namespace, applied)
	}
	result.DurationMS = time.Since(started).Milliseconds()

	o.record(result, &memCtx)
	telemetry.DeployStop(spec.Service, string(result.Status), string(strategy), time.Since(started))
	o.emitter.DeploymentFinished(result, !memCtx.Known)

	o.log.Info().
		Str("service", spec.Service).
		Str("deploy_id", deployID).
		Str("status", string(result.Status)).
		Bool("verified", result.Verified).
		Int64("duration_ms", result.DurationMS).
		Msg("deploy finished")
	return result
}

// verify runs three-way verification over every applied manifest. A deploy
// is verified only when every resource comes back clean; verification
// errors count as unverified, never as deploy failures.
func (o *Orchestrator) verify(ctx context.Context, service, namespace string, applied []manifest.Manifest) bool {
	verified := true
	for _, m := range applied {
		res, err := o.verifier.VerifyManifest(ctx, service, m, namespace)
		if err != nil {
			o.log.Warn().Err(err).Str("service", service).Str("resource", m.ResourceKey(namespace)).
				Msg("verification unavailable")
			verified = false
			continue
		}
		if !res.Clean() {
			telemetry.DriftDetected(string(res.Outcome))
			verified = false
		}
	}
	return verified
}

// record fans the result out to memory, the cache, the history store, and
// the occurrence artifacts. Recording failures are logged, never surfaced:
// the deploy outcome is already decided.
func (o *Orchestrator) record(result deployment.Result, memCtx *memory.Context) {
	if o.memory != nil {
		outcome := memory.DeployOutcome{
			Service:   result.Service,
			Namespace: result.Namespace,
			Status:    string(result.Status),
		}
		if result.Error != nil {
			outcome.Error = result.Error
		}
		o.memory.RecordDeploy(outcome)
	}
	if o.cache != nil && result.DeployID != "" {
		o.cache.PutDeployment(result.Service, result.DeployID, result)
	}
	if o.history != nil && result.DeployID != "" {
		if err := o.history.Put(result); err != nil {
			o.log.Warn().Err(err).Str("deploy_id", result.DeployID).Msg("deploy history write failed")
		}
	}
	if o.occurrences != nil {
		if err := o.occurrences.Persist(occurrence.Build(result, memCtx)); err != nil {
			o.log.Warn().Err(err).Str("deploy_id", result.DeployID).Msg("occurrence write failed")
		}
	}
}

// asCoded keeps coded errors intact and wraps everything else as internal.
func asCoded(err error) *errors.Error {
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		return coded
	}
	return errors.New(errors.CodeInternalError, "deploy", "deploy failed", err)
}
