package color

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/bluegreen/pkg/cluster"
)

const (
	StrategySelector     = "selector"
	StrategyBlueReplicas = "blue-replicas"
)

// ErrAmbiguous is the cause recorded in a Target when the slot had to
// be guessed.
var ErrAmbiguous = errors.New("color resolution ambiguous")

// Target is the outcome of resolving: the slot to release into, and
// the slot that will be torn down afterwards.
type Target struct {
	Color            Color
	TargetDeployment string
	OtherDeployment  string
	// Ambiguous is non-nil when the cluster could not say for sure
	// which slot is live, and a guess was made.
	Ambiguous error
}

func makeTarget(app string, c Color, ambiguous error) Target {
	return Target{
		Color:            c,
		TargetDeployment: DeploymentName(app, c),
		OtherDeployment:  DeploymentName(app, c.Other()),
		Ambiguous:        ambiguous,
	}
}

// Resolver decides which slot a release goes into. Resolving never
// fails because of what the cluster says; the error return is for
// cancellation only.
type Resolver interface {
	Resolve(ctx context.Context, buildID int) (Target, error)
}

// NewResolver returns the resolver for the strategy named.
func NewResolver(strategy string, c cluster.Cluster, app, service, labelKey string, logger log.Logger) (Resolver, error) {
	switch strategy {
	case StrategySelector, "":
		return &SelectorResolver{cluster: c, app: app, service: service, labelKey: labelKey, logger: logger}, nil
	case StrategyBlueReplicas:
		return &BlueReplicasResolver{cluster: c, app: app, logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown resolver strategy %q; expected %q or %q", strategy, StrategySelector, StrategyBlueReplicas)
	}
}

// SelectorResolver reads the live color from the Service selector,
// and releases into the other slot.
type SelectorResolver struct {
	cluster  cluster.Cluster
	app      string
	service  string
	labelKey string
	logger   log.Logger
}

func (r *SelectorResolver) Resolve(ctx context.Context, buildID int) (Target, error) {
	if err := ctx.Err(); err != nil {
		return Target{}, err
	}
	svc, err := r.cluster.GetService(ctx, r.service)
	switch {
	case err == nil:
		live := Color(svc.Selector[r.labelKey])
		if live.Valid() {
			return r.target(live.Other(), nil), nil
		}
		return r.target(Blue, errors.Wrapf(ErrAmbiguous, "service %q selects %s=%q", r.service, r.labelKey, live)), nil
	case cluster.IsNotFound(err):
		return r.target(Blue, nil), nil
	case buildID == 1:
		return r.target(Blue, errors.Wrap(ErrAmbiguous, err.Error())), nil
	default:
		return r.target(Green, errors.Wrap(ErrAmbiguous, err.Error())), nil
	}
}

func (r *SelectorResolver) target(c Color, ambiguous error) Target {
	t := makeTarget(r.app, c, ambiguous)
	if ambiguous != nil {
		r.logger.Log("strategy", StrategySelector, "color", c, "warn", ambiguous)
	}
	return t
}

// BlueReplicasResolver looks only at the blue deployment: if it has
// ready replicas, green is next; otherwise blue is. Since a release
// into green deletes blue, the release after that resolves to green
// again while green is live. It is kept for compatibility with
// pipelines that rely on it.
type BlueReplicasResolver struct {
	cluster cluster.Cluster
	app     string
	logger  log.Logger
}

func (r *BlueReplicasResolver) Resolve(ctx context.Context, buildID int) (Target, error) {
	if err := ctx.Err(); err != nil {
		return Target{}, err
	}
	blue := DeploymentName(r.app, Blue)
	d, err := r.cluster.GetDeployment(ctx, blue)
	switch {
	case err != nil && buildID == 1:
		var ambiguous error
		if !cluster.IsNotFound(err) {
			ambiguous = errors.Wrap(ErrAmbiguous, err.Error())
		}
		return r.target(Blue, ambiguous), nil
	case err != nil:
		return r.target(Green, errors.Wrap(ErrAmbiguous, err.Error())), nil
	case d.Rollout.Ready > 0:
		return r.target(Green, nil), nil
	default:
		return r.target(Blue, nil), nil
	}
}

func (r *BlueReplicasResolver) target(c Color, ambiguous error) Target {
	t := makeTarget(r.app, c, ambiguous)
	if ambiguous != nil {
		r.logger.Log("strategy", StrategyBlueReplicas, "color", c, "warn", ambiguous)
	}
	return t
}
