package mock

import (
	"context"

	"github.com/opencontainers/go-digest"

	"github.com/fluxcd/bluegreen/pkg/image"
	"github.com/fluxcd/bluegreen/pkg/registry"
)

type Client struct {
	DigestFn func(tag string) (digest.Digest, error)
}

func (m *Client) Digest(ctx context.Context, tag string) (digest.Digest, error) {
	return m.DigestFn(tag)
}

var _ registry.Client = &Client{}

type ClientFactory struct {
	Client registry.Client
	Err    error

	// Asked records the repositories clients were made for.
	Asked     []image.Name
	Succeeded []image.Name
}

func (m *ClientFactory) ClientFor(repository image.Name, creds registry.Credentials) (registry.Client, error) {
	m.Asked = append(m.Asked, repository)
	return m.Client, m.Err
}

func (m *ClientFactory) Succeed(repository image.Name) {
	m.Succeeded = append(m.Succeeded, repository)
}

var _ registry.ClientFactory = &ClientFactory{}
