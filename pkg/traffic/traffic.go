package traffic

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/bluegreen/pkg/cluster"
	"github.com/fluxcd/bluegreen/pkg/gate"
	"github.com/fluxcd/bluegreen/pkg/manifest"
	"github.com/fluxcd/bluegreen/pkg/release"
)

const DefaultWindow = 15 * time.Minute

// Switcher moves the Service over to a release's slot once it is
// confirmed, then removes the slot it moved away from.
type Switcher struct {
	Cluster   cluster.Cluster
	Manifests manifest.Source
	Service   string
	LabelKey  string
	Confirmer gate.Confirmer
	// Window is how long to wait for confirmation.
	Window time.Duration
	Logger log.Logger
}

// Switch ensures the Service exists, and unless this is the first
// release, waits for confirmation, patches the selector to the
// release's color, and deletes the other slot. The selector is always
// patched before anything is deleted; if confirmation does not come,
// nothing is changed.
func (s *Switcher) Switch(ctx context.Context, rel release.Release) error {
	logger := log.With(s.Logger, "service", s.Service)

	svc, err := s.Manifests.Service()
	if err != nil {
		return release.Wrap(release.ManifestError, err)
	}
	if err := s.Cluster.Apply(ctx, svc.Bytes); err != nil {
		return release.Wrap(release.ApplyError, errors.Wrapf(err, "applying service %s", s.Service))
	}

	if rel.IsFirst() {
		logger.Log("first", true, "color", rel.Color)
		observeActive(rel.Color)
		return nil
	}

	window := s.Window
	if window <= 0 {
		window = DefaultWindow
	}
	confirmCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()
	req := gate.Request{
		BuildID:  rel.BuildID,
		Service:  s.Service,
		From:     rel.Color.Other(),
		To:       rel.Color,
		Deadline: time.Now().Add(window),
	}
	begin := time.Now()
	decision, err := s.Confirmer.Confirm(confirmCtx, req)
	switch {
	case err != nil && confirmCtx.Err() != nil:
		logger.Log("confirmed", false, "waited", time.Since(begin), "err", err)
		return release.Wrap(release.SwitchTimeout, errors.Wrapf(err, "no confirmation within %s", window))
	case err != nil:
		return release.Wrap(release.SwitchError, errors.Wrap(err, "asking for confirmation"))
	case !decision.Approve:
		logger.Log("confirmed", false, "waited", time.Since(begin), "reason", decision.Reason)
		return release.Errorf(release.SwitchRejected, "switch to %s rejected: %s", rel.Color, decision.Reason)
	}
	logger.Log("confirmed", true, "waited", time.Since(begin), "reason", decision.Reason)

	if err := s.Cluster.PatchServiceSelector(ctx, s.Service, s.LabelKey, string(rel.Color)); err != nil {
		return release.Wrap(release.SwitchError, errors.Wrapf(err, "pointing %s at %s", s.Service, rel.Color))
	}
	observeActive(rel.Color)
	logger.Log("selector", s.LabelKey+"="+string(rel.Color))

	err = s.Cluster.DeleteDeployment(ctx, rel.OtherDeployment)
	switch {
	case cluster.IsNotFound(err):
		logger.Log("delete", rel.OtherDeployment, "absent", true)
	case err != nil:
		return release.Wrap(release.SwitchError, errors.Wrapf(err, "deleting %s", rel.OtherDeployment))
	default:
		logger.Log("delete", rel.OtherDeployment)
	}
	return nil
}
