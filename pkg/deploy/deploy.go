package deploy

import (
	"context"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/fluxcd/bluegreen/pkg/cluster"
	"github.com/fluxcd/bluegreen/pkg/color"
	"github.com/fluxcd/bluegreen/pkg/manifest"
	"github.com/fluxcd/bluegreen/pkg/release"
)

// Deployer puts a release's image into its target slot.
type Deployer struct {
	Cluster   cluster.Cluster
	Manifests manifest.Source
	App       string
	LabelKey  string
	Container string // empty means the first container
	Logger    log.Logger
}

// Deploy applies the target slot's deployment and binds the release
// image to it. The very first blue deployment is applied from the
// canonical manifest together with the Service; every other one is
// derived from the canonical manifest.
func (d *Deployer) Deploy(ctx context.Context, rel release.Release) error {
	logger := log.With(d.Logger, "deployment", rel.TargetDeployment)

	canonical, err := d.Manifests.Deployment()
	if err != nil {
		return release.Wrap(release.ManifestError, err)
	}

	if d.bootstrapping(ctx, rel) {
		logger.Log("path", "bootstrap")
		if err := d.apply(ctx, logger, canonical.Bytes); err != nil {
			return err
		}
		svc, err := d.Manifests.Service()
		if err != nil {
			return release.Wrap(release.ManifestError, err)
		}
		if err := d.apply(ctx, logger, svc.Bytes); err != nil {
			return err
		}
	} else {
		logger.Log("path", "derived", "color", rel.Color)
		def, err := manifest.DeriveObject(canonical, d.App, d.LabelKey, rel.Color)
		if err != nil {
			return release.Wrap(release.ManifestError, err)
		}
		if err := d.apply(ctx, logger, def); err != nil {
			return err
		}
	}

	begin := time.Now()
	err = d.Cluster.SetImage(ctx, rel.TargetDeployment, d.Container, rel.Image)
	logger.Log("image", rel.Image, "took", time.Since(begin), "err", err)
	if err != nil {
		return release.Wrap(release.ImageBindError, errors.Wrapf(err, "setting image on %s", rel.TargetDeployment))
	}
	return nil
}

// bootstrapping is true when the blue slot is about to be created for
// the first time.
func (d *Deployer) bootstrapping(ctx context.Context, rel release.Release) bool {
	if rel.Color != color.Blue {
		return false
	}
	_, err := d.Cluster.GetDeployment(ctx, rel.TargetDeployment)
	return cluster.IsNotFound(err)
}

func (d *Deployer) apply(ctx context.Context, logger log.Logger, def []byte) error {
	begin := time.Now()
	err := d.Cluster.Apply(ctx, def)
	logger.Log("apply", len(def), "took", time.Since(begin), "err", err)
	if err != nil {
		return release.Wrap(release.ApplyError, err)
	}
	return nil
}
