package registry

import (
	"context"
	"net/http"

	"github.com/docker/distribution/registry/client"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/fluxcd/bluegreen/pkg/image"
)

// Client talks to the registry about one image repository. It is an
// interface so we can wrap it in instrumentation and fake it in
// tests.
type Client interface {
	// Digest resolves a tag to the digest of the manifest it points at.
	Digest(ctx context.Context, tag string) (digest.Digest, error)
}

// ClientFactory supplies a Client for a repository, given some
// credentials.
type ClientFactory interface {
	ClientFor(image.Name, Credentials) (Client, error)
	Succeed(image.Name)
}

type Remote struct {
	transport http.RoundTripper
	repo      image.Name
	base      string
}

// named adapts an image.Name to docker distribution's
// reference.Named. The distribution client builds API URLs from
// Name(), which must be the path only, with no domain.
type named struct {
	name image.Name
}

func (n named) Name() string {
	return n.name.Image
}

func (n named) String() string {
	return n.name.String()
}

func (r *Remote) Digest(ctx context.Context, tag string) (digest.Digest, error) {
	repository, err := client.NewRepository(named{r.repo}, r.base, r.transport)
	if err != nil {
		return "", err
	}
	desc, err := repository.Tags(ctx).Get(ctx, tag)
	if err != nil {
		return "", errors.Wrapf(err, "looking up %s", r.repo.ToRef(tag))
	}
	if err := desc.Digest.Validate(); err != nil {
		return "", errors.Wrapf(err, "registry gave a bad digest for %s", r.repo.ToRef(tag))
	}
	return desc.Digest, nil
}
