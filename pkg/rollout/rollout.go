package rollout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/fluxcd/bluegreen/pkg/cluster"
	"github.com/fluxcd/bluegreen/pkg/release"
)

const DefaultPollInterval = 2 * time.Second

// TimeoutError says how far a rollout got before the time ran out.
type TimeoutError struct {
	Deployment string
	Timeout    time.Duration
	// Found is false if the deployment never showed up.
	Found   bool
	Status  string
	Rollout cluster.RolloutStatus
}

func (e *TimeoutError) Error() string {
	if !e.Found {
		return fmt.Sprintf("deployment %q not found within %s", e.Deployment, e.Timeout)
	}
	r := e.Rollout
	msg := fmt.Sprintf("deployment %q not ready within %s (%s): %d/%d updated, %d/%d ready, %d/%d available, %d outdated",
		e.Deployment, e.Timeout, e.Status, r.Updated, r.Desired, r.Ready, r.Desired, r.Available, r.Desired, r.Outdated)
	if len(r.Messages) > 0 {
		msg += "; " + strings.Join(r.Messages, "; ")
	}
	return msg
}

// Waiter polls a deployment until its rollout is complete.
type Waiter struct {
	Cluster      cluster.Cluster
	PollInterval time.Duration
	Logger       log.Logger
}

// Await blocks until the deployment is ready, the timeout elapses, or
// ctx is done. A deployment that cannot be found yet is not ready;
// any other error from the cluster ends the wait. Nothing is undone on
// failure.
func (w *Waiter) Await(ctx context.Context, deployment string, timeout time.Duration) error {
	interval := w.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := log.With(w.Logger, "deployment", deployment)
	last := &TimeoutError{Deployment: deployment, Timeout: timeout}
	begin := time.Now()

	err := wait.PollImmediateUntil(interval, func() (bool, error) {
		d, err := w.Cluster.GetDeployment(ctx, deployment)
		switch {
		case cluster.IsNotFound(err):
			return false, nil
		case err != nil && ctx.Err() != nil:
			return false, nil // out of time; let the poller stop
		case err != nil:
			return false, release.Wrap(release.ReadinessError, err)
		}
		if !last.Found || d.Status != last.Status {
			logger.Log("status", d.Status, "updated", d.Rollout.Updated, "available", d.Rollout.Available, "desired", d.Rollout.Desired)
		}
		last.Found, last.Status, last.Rollout = true, d.Status, d.Rollout
		return d.Status == cluster.StatusReady, nil
	}, ctx.Done())

	switch {
	case err == nil:
		logger.Log("ready", true, "took", time.Since(begin))
		return nil
	case err == wait.ErrWaitTimeout:
		logger.Log("ready", false, "took", time.Since(begin), "err", last)
		return release.Wrap(release.TimedOut, last)
	default:
		logger.Log("ready", false, "err", err)
		return err
	}
}
