package build

import (
	"context"
	"strconv"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/fluxcd/bluegreen/pkg/color"
	"github.com/fluxcd/bluegreen/pkg/image"
	"github.com/fluxcd/bluegreen/pkg/release"
)

// Builder makes and distributes images; DockerCLI is the real one.
type Builder interface {
	Build(ctx context.Context, contextDir string, ref image.Ref) error
	Tag(ctx context.Context, src, dst image.Ref) error
	Push(ctx context.Context, ref image.Ref) error
}

// Verifier confirms a pushed image is in the registry.
type Verifier interface {
	Verify(ctx context.Context, ref image.Ref) (digest.Digest, error)
}

// Loader puts an image straight into the cluster's runtime.
type Loader interface {
	Load(ctx context.Context, ref image.Ref) error
}

// Publisher builds the application image for a release and makes it
// available to the cluster, either by pushing it (and optionally
// checking the registry has it) or by loading it directly.
type Publisher struct {
	Builder    Builder
	Repository image.Name
	ContextDir string
	Push       bool
	// Verifier is consulted after a push, when set.
	Verifier Verifier
	// Loader is used when not pushing, when set.
	Loader Loader
	Logger log.Logger
}

// Publish builds <repository>:<buildID>, tags it <repository>:<color>
// too, and returns the build-tagged ref. Running it again for the
// same build and color overwrites both tags.
func (p *Publisher) Publish(ctx context.Context, buildID int, c color.Color) (image.Ref, error) {
	buildRef := p.Repository.ToRef(strconv.Itoa(buildID))
	colorRef := p.Repository.ToRef(string(c))
	logger := log.With(p.Logger, "image", buildRef)
	begin := time.Now()

	if err := p.Builder.Build(ctx, p.ContextDir, buildRef); err != nil {
		return image.Ref{}, release.Wrap(release.BuildError, errors.Wrapf(err, "building %s", buildRef))
	}
	if err := p.Builder.Tag(ctx, buildRef, colorRef); err != nil {
		return image.Ref{}, release.Wrap(release.BuildError, errors.Wrapf(err, "tagging %s", colorRef))
	}

	switch {
	case p.Push:
		for _, ref := range []image.Ref{buildRef, colorRef} {
			if err := p.Builder.Push(ctx, ref); err != nil {
				return image.Ref{}, release.Wrap(release.PublishError, errors.Wrapf(err, "pushing %s", ref))
			}
		}
		if p.Verifier != nil {
			dgst, err := p.Verifier.Verify(ctx, buildRef)
			if err != nil {
				return image.Ref{}, release.Wrap(release.PublishError, errors.Wrapf(err, "verifying %s was pushed", buildRef))
			}
			logger = log.With(logger, "digest", dgst)
		}
	case p.Loader != nil:
		if err := p.Loader.Load(ctx, buildRef); err != nil {
			return image.Ref{}, release.Wrap(release.PublishError, errors.Wrapf(err, "loading %s", buildRef))
		}
	}

	logger.Log("tags", colorRef.Tag, "pushed", p.Push, "took", time.Since(begin))
	return buildRef, nil
}
