// Package deployment defines the deploy specification and result types
// shared by the orchestrator, agents, stores, and outbound surfaces.
package deployment

import (
	"time"

	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/manifest"
)

// Strategy names a rollout style. The empty strategy means auto-select.
type Strategy string

const (
	StrategyAuto      Strategy = ""
	StrategyDirect    Strategy = "direct"
	StrategyCanary    Strategy = "canary"
	StrategyBlueGreen Strategy = "blue_green"
)

// Known reports whether s is one of the selectable strategies.
func (s Strategy) Known() bool {
	return s == StrategyDirect || s == StrategyCanary || s == StrategyBlueGreen
}

// Status is a deploy outcome.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusRolledback Status = "rolledback"
)

// Slot names a blue/green slot.
type Slot string

const (
	SlotBlue  Slot = "blue"
	SlotGreen Slot = "green"
)

// DefaultCanarySteps is the traffic ramp used when the caller specifies none.
var DefaultCanarySteps = []int{10, 25, 50, 75, 100}

const (
	DefaultNamespace = "default"
	DefaultTimeoutMS = 120_000
)

// Options is the typed bag of strategy-specific knobs.
type Options struct {
	// CanarySteps are traffic percentages in (0,100], strictly increasing,
	// ending at 100.
	CanarySteps []int `json:"canary_steps,omitempty"`
	// ActiveSlot selects which blue/green slot currently serves traffic.
	ActiveSlot Slot `json:"active_slot,omitempty"`
}

// Spec describes one requested deploy.
type Spec struct {
	Service   string              `json:"service"`
	Namespace string              `json:"namespace,omitempty"`
	Manifests []manifest.Manifest `json:"manifests,omitempty"`
	Strategy  Strategy            `json:"strategy,omitempty"`
	Options   Options             `json:"options,omitempty"`
	TimeoutMS int64               `json:"timeout_ms,omitempty"`
}

// Normalize fills defaults and validates the parts that must hold before a
// deploy can start.
func (s *Spec) Normalize() error {
	if s.Service == "" {
		return errors.Newf(errors.CodeMissingParameter, "deploy", "spec missing service")
	}
	if s.Namespace == "" {
		s.Namespace = DefaultNamespace
	}
	if s.TimeoutMS <= 0 {
		s.TimeoutMS = DefaultTimeoutMS
	}
	if s.Options.ActiveSlot == "" {
		s.Options.ActiveSlot = SlotBlue
	}
	if s.Options.ActiveSlot != SlotBlue && s.Options.ActiveSlot != SlotGreen {
		return errors.Newf(errors.CodeInvalidParameter, "deploy", "active_slot %q is not blue or green", s.Options.ActiveSlot)
	}
	if len(s.Options.CanarySteps) == 0 {
		s.Options.CanarySteps = append([]int(nil), DefaultCanarySteps...)
	}
	prev := 0
	for _, step := range s.Options.CanarySteps {
		if step <= prev || step > 100 {
			return errors.Newf(errors.CodeInvalidParameter, "deploy", "canary_steps must be strictly increasing within (0,100]")
		}
		prev = step
	}
	if prev != 100 {
		return errors.Newf(errors.CodeInvalidParameter, "deploy", "canary_steps must end at 100")
	}
	return nil
}

// Timeout returns the spec's timeout as a duration.
func (s *Spec) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

// Result is the outcome of one deploy. The orchestrator always returns a
// Result, never an error.
type Result struct {
	DeployID         string              `json:"deploy_id"`
	Service          string              `json:"service"`
	Namespace        string              `json:"namespace"`
	Status           Status              `json:"status"`
	Strategy         Strategy            `json:"strategy"`
	ManifestCount    int                 `json:"manifest_count"`
	DurationMS       int64               `json:"duration_ms"`
	Verified         bool                `json:"verified"`
	Error            *errors.Error       `json:"error,omitempty"`
	AppliedResources []manifest.Manifest `json:"applied_resources,omitempty"`
	Timestamp        time.Time           `json:"timestamp"`
}

// ServiceState is the agent state snapshot persisted to the cache so
// clients observe continuity across agent restarts.
type ServiceState struct {
	Service     string  `json:"service"`
	Status      string  `json:"status"`
	DeployCount int     `json:"deploy_count"`
	QueueLength int     `json:"queue_length"`
	LastResult  *Result `json:"last_result,omitempty"`
}
