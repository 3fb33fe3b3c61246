package drift

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/nopea/nopea/pkg/cache"
	"github.com/nopea/nopea/pkg/domain/errors"
	"github.com/nopea/nopea/pkg/kube"
	"github.com/nopea/nopea/pkg/logger"
	"github.com/nopea/nopea/pkg/manifest"
)

// Verifier runs post-deploy verification: it compares the desired manifest
// against what was last applied and what the cluster currently holds.
type Verifier struct {
	cache  *cache.Cache
	client kube.Client
	log    zerolog.Logger
}

func NewVerifier(c *cache.Cache, client kube.Client) *Verifier {
	return &Verifier{
		cache:  c,
		client: client,
		log:    logger.Component("drift"),
	}
}

// VerifyManifest classifies one resource for a service.
//
// Absence handling: no record and no live object means a brand new
// resource; a record without a live object also reads as new (the cluster
// lost it, the next apply recreates it); a live object without a record
// needs an apply to take ownership.
func (v *Verifier) VerifyManifest(ctx context.Context, service string, desired manifest.Manifest, namespace string) (Result, error) {
	key := desired.ResourceKey(namespace)
	lastApplied, hasLast := v.cache.GetLastApplied(service, key)

	live, err := v.client.GetResource(ctx, desired.APIVersion(), desired.Kind(), desired.Name(), namespace)
	hasLive := err == nil
	if err != nil && errors.CodeOf(err) != errors.CodeNotFound {
		return Result{}, err
	}

	switch {
	case !hasLast && !hasLive:
		return Result{Outcome: NewResource}, nil
	case !hasLast && hasLive:
		return Result{Outcome: NeedsApply}, nil
	case hasLast && !hasLive:
		return Result{Outcome: NewResource}, nil
	default:
		result := ThreeWayDiff(lastApplied, desired, live)
		if result.Outcome != NoDrift {
			v.log.Warn().
				Str("service", service).
				Str("resource", key).
				Str("outcome", string(result.Outcome)).
				Msg("drift detected")
		}
		return result, nil
	}
}
