package registry_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-kit/kit/log"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/bluegreen/pkg/image"
	"github.com/fluxcd/bluegreen/pkg/registry"
	"github.com/fluxcd/bluegreen/pkg/registry/middleware"
	"github.com/fluxcd/bluegreen/pkg/registry/mock"
)

var manifestDigest = digest.FromString("a manifest")

// fakeRegistry serves just enough of the registry API for tag lookups.
func fakeRegistry(t *testing.T, tags map[string]digest.Digest, basicAuth string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if basicAuth != "" {
			if user, pass, ok := r.BasicAuth(); !ok || user+":"+pass != basicAuth {
				w.Header().Set("WWW-Authenticate", `Basic realm="test"`)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
		}
		if r.URL.Path == "/v2/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		const prefix = "/v2/myapp/manifests/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		dgst, ok := tags[strings.TrimPrefix(r.URL.Path, prefix)]
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == "GET" {
				fmt.Fprint(w, `{"errors":[{"code":"MANIFEST_UNKNOWN","message":"manifest unknown"}]}`)
			}
			return
		}
		w.Header().Set("Content-Type", "application/vnd.docker.distribution.manifest.v2+json")
		w.Header().Set("Docker-Content-Digest", dgst.String())
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusOK)
	}))
}

func repoName(t *testing.T, server *httptest.Server) image.Name {
	name, err := image.ParseName(strings.TrimPrefix(server.URL, "http://") + "/myapp")
	require.NoError(t, err)
	return name
}

func factory() *registry.RemoteClientFactory {
	return &registry.RemoteClientFactory{
		Logger:        log.NewNopLogger(),
		Limiters:      &middleware.RateLimiters{RPS: 50, Burst: 10},
		InsecureHosts: []string{"127.0.0.1"},
	}
}

func TestRemoteDigest(t *testing.T) {
	server := fakeRegistry(t, map[string]digest.Digest{"7": manifestDigest}, "")
	defer server.Close()

	client, err := factory().ClientFor(repoName(t, server), registry.NoCredentials())
	require.NoError(t, err)

	dgst, err := client.Digest(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, manifestDigest, dgst)
}

func TestRemoteDigestUnknownTag(t *testing.T) {
	server := fakeRegistry(t, map[string]digest.Digest{}, "")
	defer server.Close()

	client, err := factory().ClientFor(repoName(t, server), registry.NoCredentials())
	require.NoError(t, err)

	_, err = client.Digest(context.Background(), "8")
	assert.Error(t, err)
}

func TestRemoteDigestBasicAuth(t *testing.T) {
	server := fakeRegistry(t, map[string]digest.Digest{"7": manifestDigest}, "user:pass")
	defer server.Close()

	host := strings.TrimPrefix(server.URL, "http://")
	config := fmt.Sprintf(`{"auths": {%q: {"auth": %q}}}`, host, base64.StdEncoding.EncodeToString([]byte("user:pass")))
	creds, err := registry.ParseCredentials("test", []byte(config))
	require.NoError(t, err)

	client, err := factory().ClientFor(repoName(t, server), creds)
	require.NoError(t, err)
	dgst, err := client.Digest(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, manifestDigest, dgst)
}

func TestRemoteInsecureNotAllowed(t *testing.T) {
	server := fakeRegistry(t, nil, "")
	defer server.Close()

	f := factory()
	f.InsecureHosts = nil
	_, err := f.ClientFor(repoName(t, server), registry.NoCredentials())
	assert.Error(t, err)
}

func TestVerifier(t *testing.T) {
	ref, err := image.ParseRef("registry.example.com/team/myapp:7")
	require.NoError(t, err)

	f := &mock.ClientFactory{Client: &mock.Client{DigestFn: func(tag string) (digest.Digest, error) {
		assert.Equal(t, "7", tag)
		return manifestDigest, nil
	}}}
	v := &registry.Verifier{Factory: f, Credentials: registry.NoCredentials(), Logger: log.NewNopLogger()}

	dgst, err := v.Verify(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, manifestDigest, dgst)
	assert.Equal(t, []image.Name{ref.Name}, f.Succeeded)
}

func TestVerifierNotFound(t *testing.T) {
	ref, _ := image.ParseRef("myapp:7")
	f := &mock.ClientFactory{Client: &mock.Client{DigestFn: func(string) (digest.Digest, error) {
		return "", errors.New("manifest unknown")
	}}}
	v := &registry.Verifier{Factory: f, Credentials: registry.NoCredentials(), Logger: log.NewNopLogger()}

	_, err := v.Verify(context.Background(), ref)
	assert.EqualError(t, err, "manifest unknown")
	assert.Empty(t, f.Succeeded)
}
