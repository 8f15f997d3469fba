package registry

import (
	"context"

	"github.com/go-kit/kit/log"
	"github.com/opencontainers/go-digest"

	"github.com/fluxcd/bluegreen/pkg/image"
)

// Verifier checks that a pushed image can be seen in its registry.
type Verifier struct {
	Factory     ClientFactory
	Credentials Credentials
	Logger      log.Logger
}

// Verify resolves ref's tag to a content digest.
func (v *Verifier) Verify(ctx context.Context, ref image.Ref) (digest.Digest, error) {
	client, err := v.Factory.ClientFor(ref.Name, v.Credentials)
	if err != nil {
		return "", err
	}
	dgst, err := client.Digest(ctx, ref.Tag)
	if err != nil {
		return "", err
	}
	v.Factory.Succeed(ref.Name)
	v.Logger.Log("image", ref, "digest", dgst)
	return dgst, nil
}
