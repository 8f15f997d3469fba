package registry

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/docker/distribution/registry/client/auth"
	"github.com/docker/distribution/registry/client/auth/challenge"
	"github.com/docker/distribution/registry/client/transport"
	"github.com/go-kit/kit/log"

	"github.com/fluxcd/bluegreen/pkg/image"
	"github.com/fluxcd/bluegreen/pkg/registry/middleware"
)

const pingTimeout = 30 * time.Second

// RemoteClientFactory makes clients for real registries. It remembers
// the auth challenges each registry has sent, so a registry is pinged
// once per process.
type RemoteClientFactory struct {
	Logger   log.Logger
	Limiters *middleware.RateLimiters
	Trace    bool

	// Hosts (with or without the port) to which insecure connections
	// are tolerated: TLS verification is skipped, and plain HTTP is
	// tried if HTTPS fails.
	InsecureHosts []string

	mu               sync.Mutex
	challengeManager challenge.Manager
}

type logging struct {
	logger    log.Logger
	transport http.RoundTripper
}

func (t *logging) RoundTrip(req *http.Request) (*http.Response, error) {
	res, err := t.transport.RoundTrip(req)
	if err != nil {
		t.logger.Log("method", req.Method, "url", req.URL.String(), "err", err.Error())
		return res, err
	}
	t.logger.Log("method", req.Method, "url", req.URL.String(), "status", res.Status)
	return res, err
}

func (f *RemoteClientFactory) insecure(domain string) bool {
	candidates := []string{domain}
	if host, _, err := net.SplitHostPort(domain); err == nil {
		candidates = append(candidates, host)
	}
	for _, h := range f.InsecureHosts {
		for _, c := range candidates {
			if h == c {
				return true
			}
		}
	}
	return false
}

func (f *RemoteClientFactory) manager() challenge.Manager {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.challengeManager == nil {
		f.challengeManager = challenge.NewSimpleManager()
	}
	return f.challengeManager
}

// ping finds out how the registry wants us to authenticate, unless we
// already know, and returns the API base URL to use (after any
// redirect, or the fall back to HTTP).
func (f *RemoteClientFactory) ping(manager challenge.Manager, tx http.RoundTripper, domain string, insecure bool) (*url.URL, error) {
	schemes := []string{"https"}
	if insecure {
		schemes = append(schemes, "http")
	}

	var lastErr error
	for _, scheme := range schemes {
		registryURL := url.URL{Scheme: scheme, Host: domain, Path: "/v2/"}
		cs, err := manager.GetChallenges(registryURL)
		if err != nil {
			return nil, err
		}
		if len(cs) > 0 {
			return &registryURL, nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
		req, err := http.NewRequest("GET", registryURL.String(), nil)
		if err != nil {
			cancel()
			return nil, err
		}
		res, err := (&http.Client{Transport: tx}).Do(req.WithContext(ctx))
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		err = manager.AddResponse(res)
		res.Body.Close()
		cancel()
		if err != nil {
			return nil, err
		}
		u := *res.Request.URL
		return &u, nil
	}
	return nil, lastErr
}

func (f *RemoteClientFactory) ClientFor(repo image.Name, creds Credentials) (Client, error) {
	repo = repo.Canonical()
	insecure := f.insecure(repo.Domain)

	// One of these is made per release, so don't keep many idle
	// connections around.
	var tx http.RoundTripper = &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: insecure},
		MaxIdleConns:    10,
		IdleConnTimeout: 10 * time.Second,
		Proxy:           http.ProxyFromEnvironment,
	}
	if f.Limiters != nil {
		tx = f.Limiters.RoundTripper(tx, repo.Domain)
	}
	if f.Trace {
		tx = &logging{f.Logger, tx}
	}

	manager := f.manager()
	registryURL, err := f.ping(manager, tx, repo.Domain, insecure)
	if err != nil {
		return nil, err
	}

	cred := creds.credsFor(repo.Domain)
	if f.Trace {
		f.Logger.Log("repo", repo.String(), "auth", cred.String(), "api", registryURL.String())
	}

	store := &store{cred}
	tx = transport.NewTransport(tx, auth.NewAuthorizer(manager,
		auth.NewTokenHandler(tx, store, repo.Image, "pull"),
		auth.NewBasicHandler(store),
	))

	// The API base is the scheme and host only.
	registryURL.Path = ""
	return NewInstrumentedClient(&Remote{transport: tx, repo: repo, base: registryURL.String()}, repo.Domain), nil
}

// Succeed lets the rate limit for repo's registry recover.
func (f *RemoteClientFactory) Succeed(repo image.Name) {
	if f.Limiters != nil {
		f.Limiters.Recover(repo.Canonical().Domain)
	}
}

// store hands a single host's creds to the distribution auth handlers.
type store struct {
	auth creds
}

func (s *store) Basic(*url.URL) (string, string) {
	return s.auth.username, s.auth.password
}

func (s *store) RefreshToken(*url.URL, string) string {
	return ""
}

func (s *store) SetRefreshToken(*url.URL, string, string) {}
