// Package events emits CDEvents over HTTP when an endpoint is configured.
// Emission is fire-and-forget: a sink outage never slows a deploy down.
package events

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/logger"
)

// CDEvents type strings carried on the wire.
const (
	TypeDeploymentStarted    = "dev.cdevents.deployment.started.0.1.0"
	TypeDeploymentCompleted  = "dev.cdevents.deployment.completed.0.1.0"
	TypeDeploymentFailed     = "dev.cdevents.deployment.failed.0.1.0"
	TypeDeploymentRolledback = "dev.cdevents.deployment.rolledback.0.1.0"
	TypeServiceDeployed      = "dev.cdevents.service.deployed.0.3.0"
	TypeServiceUpgraded      = "dev.cdevents.service.upgraded.0.3.0"
)

const eventSource = "nopea"

// Emitter is what the orchestrator notifies about deploy lifecycle edges.
type Emitter interface {
	DeploymentStarted(service, namespace, deployID string)
	// DeploymentFinished reports the outcome. firstDeploy selects between
	// the service.deployed and service.upgraded companion events.
	DeploymentFinished(result deployment.Result, firstDeploy bool)
}

// Noop is the emitter used when no endpoint is configured.
type Noop struct{}

func (Noop) DeploymentStarted(string, string, string)   {}
func (Noop) DeploymentFinished(deployment.Result, bool) {}

// CDEmitter sends CDEvents to a fixed HTTP endpoint.
type CDEmitter struct {
	client   cloudevents.Client
	endpoint string
	log      zerolog.Logger
}

func NewCDEmitter(endpoint string) (*CDEmitter, error) {
	client, err := cloudevents.NewClientHTTP()
	if err != nil {
		return nil, err
	}
	return &CDEmitter{
		client:   client,
		endpoint: endpoint,
		log:      logger.Component("events"),
	}, nil
}

func (e *CDEmitter) DeploymentStarted(service, namespace, deployID string) {
	e.sendAsync(TypeDeploymentStarted, service, map[string]interface{}{
		"service":   service,
		"namespace": namespace,
		"deploy_id": deployID,
	})
}

func (e *CDEmitter) DeploymentFinished(result deployment.Result, firstDeploy bool) {
	data := map[string]interface{}{
		"service":     result.Service,
		"namespace":   result.Namespace,
		"deploy_id":   result.DeployID,
		"status":      string(result.Status),
		"strategy":    string(result.Strategy),
		"duration_ms": result.DurationMS,
		"verified":    result.Verified,
	}
	e.sendAsync(outcomeType(result.Status), result.Service, data)

	if result.Status == deployment.StatusCompleted {
		companion := TypeServiceUpgraded
		if firstDeploy {
			companion = TypeServiceDeployed
		}
		e.sendAsync(companion, result.Service, data)
	}
}

func outcomeType(status deployment.Status) string {
	switch status {
	case deployment.StatusCompleted:
		return TypeDeploymentCompleted
	case deployment.StatusRolledback:
		return TypeDeploymentRolledback
	default:
		return TypeDeploymentFailed
	}
}

// sendAsync delivers one event off the caller's goroutine, retrying
// transient failures a few times before giving up with a warning.
func (e *CDEmitter) sendAsync(eventType, subject string, data map[string]interface{}) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetSource(eventSource)
	event.SetSubject(subject)
	event.SetType(eventType)
	event.SetTime(time.Now().UTC())
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		e.log.Warn().Err(err).Str("type", eventType).Msg("encoding cdevent")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ctx = cloudevents.ContextWithTarget(ctx, e.endpoint)

		err := retry.Do(
			func() error {
				if result := e.client.Send(ctx, event); cloudevents.IsUndelivered(result) {
					return result
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(500*time.Millisecond),
			retry.Context(ctx),
		)
		if err != nil {
			e.log.Warn().Err(err).Str("type", eventType).Str("subject", subject).Msg("cdevent undelivered")
		}
	}()
}
