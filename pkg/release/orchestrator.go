package release

import (
	"context"
	"errors"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/fluxcd/bluegreen/pkg/color"
	"github.com/fluxcd/bluegreen/pkg/image"
)

const DefaultRolloutTimeout = 5 * time.Minute

// The stages of a release, in the order they run.
type (
	Resolver interface {
		Resolve(ctx context.Context, buildID int) (color.Target, error)
	}
	Publisher interface {
		Publish(ctx context.Context, buildID int, c color.Color) (image.Ref, error)
	}
	Deployer interface {
		Deploy(ctx context.Context, rel Release) error
	}
	Waiter interface {
		Await(ctx context.Context, deployment string, timeout time.Duration) error
	}
	Switcher interface {
		Switch(ctx context.Context, rel Release) error
	}
)

// stageKinds is the kind given to a stage failure that does not say
// what kind it is.
var stageKinds = map[Stage]Kind{
	StagePublish: PublishError,
	StageDeploy:  ApplyError,
	StageAwait:   ReadinessError,
	StageSwitch:  SwitchError,
}

// Orchestrator runs releases through each stage in turn. It holds no
// state between runs; callers must make sure only one release runs
// against an application at a time.
type Orchestrator struct {
	Resolver  Resolver
	Publisher Publisher
	Deployer  Deployer
	Waiter    Waiter
	Switcher  Switcher

	RolloutTimeout time.Duration
	Logger         log.Logger
}

// Result describes a completed release.
type Result struct {
	Release Release
	// Ambiguous is set when the color could not be decided with
	// certainty; the release still went ahead.
	Ambiguous error
	Took      time.Duration
}

// Run performs one release. Any stage failing stops the release where
// it is, and is returned as an *Error naming the stage; nothing is
// undone.
func (o *Orchestrator) Run(ctx context.Context, buildID int) (res Result, err error) {
	start := time.Now()
	logger := log.With(o.Logger, "build", buildID)
	defer func() {
		ObserveRelease(start, err == nil, res.Release.Color)
		res.Took = time.Since(start)
		if err != nil {
			logger.Log("stage", stageOf(err), "kind", KindOf(err), "err", err)
		}
	}()

	var target color.Target
	if err := o.stage(StageResolve, func() (err error) {
		target, err = o.Resolver.Resolve(ctx, buildID)
		return err
	}); err != nil {
		return res, err
	}
	res.Release = Release{
		BuildID:          buildID,
		Color:            target.Color,
		TargetDeployment: target.TargetDeployment,
		OtherDeployment:  target.OtherDeployment,
	}
	if target.Ambiguous != nil {
		res.Ambiguous = target.Ambiguous
		logger.Log("kind", ResolutionAmbiguous, "warn", target.Ambiguous)
	}
	logger = log.With(logger, "color", target.Color)
	logger.Log("stage", StageResolve, "target", target.TargetDeployment, "other", target.OtherDeployment)

	if err := o.stage(StagePublish, func() (err error) {
		res.Release.Image, err = o.Publisher.Publish(ctx, buildID, target.Color)
		return err
	}); err != nil {
		return res, err
	}
	logger.Log("stage", StagePublish, "image", res.Release.Image)

	// From here on the release is fixed.
	rel := res.Release

	if err := o.stage(StageDeploy, func() error {
		return o.Deployer.Deploy(ctx, rel)
	}); err != nil {
		return res, err
	}
	logger.Log("stage", StageDeploy, "deployment", rel.TargetDeployment)

	timeout := o.RolloutTimeout
	if timeout <= 0 {
		timeout = DefaultRolloutTimeout
	}
	if err := o.stage(StageAwait, func() error {
		return o.Waiter.Await(ctx, rel.TargetDeployment, timeout)
	}); err != nil {
		return res, err
	}
	logger.Log("stage", StageAwait, "ready", true)

	if err := o.stage(StageSwitch, func() error {
		return o.Switcher.Switch(ctx, rel)
	}); err != nil {
		return res, err
	}
	logger.Log("stage", StageSwitch, "live", rel.Color, "first", rel.IsFirst())
	return res, nil
}

// stage times f, and makes sure any error it returns says which stage
// it came from.
func (o *Orchestrator) stage(stage Stage, f func() error) error {
	timer := NewStageTimer(stage)
	defer timer.ObserveDuration()

	err := f()
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		e.Stage = stage
		return err
	}
	if kind, ok := stageKinds[stage]; ok {
		return &Error{Stage: stage, Kind: kind, Err: err}
	}
	return err
}

func stageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return StageResolve
}
