package main

import (
	"bytes"
	"context"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/bluegreen/pkg/cluster/mock"
	"github.com/fluxcd/bluegreen/pkg/color"
	"github.com/fluxcd/bluegreen/pkg/config"
	"github.com/fluxcd/bluegreen/pkg/gate"
	transport "github.com/fluxcd/bluegreen/pkg/http"
	"github.com/fluxcd/bluegreen/pkg/http/client"
)

// execute runs the whole command tree as main does.
func execute(args ...string) (string, error) {
	root := newRoot()
	root.logOut = ioutil.Discard
	cmd := root.Command()
	cmd.AddCommand(
		newRelease(root).Command(),
		newStatus(root).Command(),
		newApprove(root).Command(),
		newReject(root).Command(),
		newVersionCommand(),
	)
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(ioutil.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestReleaseUsage(t *testing.T) {
	defer setenv(t, config.EnvBuildNumber, "")()

	_, err := execute("release", "--build-id", "3")
	require.Error(t, err)
	_, ok := err.(usageError)
	assert.True(t, ok, "expected usage error, got %v", err)

	_, err = execute("release", "unexpected")
	assert.Equal(t, errorWantedNoArgs, err)

	_, err = execute("status")
	_, ok = err.(usageError)
	assert.True(t, ok, "expected usage error, got %v", err)
}

func TestNewPublisher(t *testing.T) {
	base := config.Config{App: "myapp", Image: "localhost:5000/myapp", Docker: "docker", BuildContext: "."}

	p, err := newPublisher(base, log.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "localhost:5000/myapp", p.Repository.String())
	assert.Nil(t, p.Verifier)
	assert.Nil(t, p.Loader)

	pushed := base
	pushed.Push, pushed.VerifyPush = true, true
	p, err = newPublisher(pushed, log.NewNopLogger())
	require.NoError(t, err)
	assert.NotNil(t, p.Verifier)
	assert.Nil(t, p.Loader)

	loaded := base
	loaded.LoadCommand = "kind load docker-image"
	p, err = newPublisher(loaded, log.NewNopLogger())
	require.NoError(t, err)
	assert.Nil(t, p.Verifier)
	assert.NotNil(t, p.Loader)

	bad := base
	bad.Image = "myapp:latest"
	_, err = newPublisher(bad, log.NewNopLogger())
	assert.Error(t, err)
}

func TestNewOrchestrator(t *testing.T) {
	cfg := config.Config{App: "myapp", Service: "myapp", Image: "myapp", ColorLabel: "color", Resolver: color.StrategyBlueReplicas}
	o, err := newOrchestrator(cfg, mock.New(), gate.Auto{}, log.NewNopLogger())
	require.NoError(t, err)
	assert.NotNil(t, o.Switcher)

	cfg.Resolver = "coin-toss"
	_, err = newOrchestrator(cfg, mock.New(), gate.Auto{}, log.NewNopLogger())
	assert.Error(t, err)
}

func awaitPending(t *testing.T, url, token string) {
	c := client.New(http.DefaultClient, transport.NewAPIRouter(), url, client.Token(token))
	for i := 0; i < 100; i++ {
		if _, err := c.Pending(context.Background()); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("nothing pending")
}

func TestApproveAndReject(t *testing.T) {
	s := gate.NewServer("s3cret", "v1.0.0", log.NewNopLogger())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	defer setenv(t, config.EnvConfirmToken, "s3cret")()

	for _, approve := range []bool{true, false} {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		decisions := make(chan gate.Decision, 1)
		go func() {
			d, _ := s.Confirm(ctx, gate.Request{BuildID: 9, Service: "myapp", From: color.Blue, To: color.Green})
			decisions <- d
		}()
		awaitPending(t, ts.URL, "s3cret")

		verb := "reject"
		if approve {
			verb = "approve"
		}
		// the wrong build is refused, and the switch is still pending
		_, err := execute(verb, "--confirm-url", ts.URL, "--build", "8")
		assert.Error(t, err)

		out, err := execute(verb, "--confirm-url", ts.URL, "--build", "9", "-m", "checked")
		require.NoError(t, err)
		assert.Contains(t, out, "switch service myapp from blue to green for build 9")

		d := <-decisions
		cancel()
		assert.Equal(t, approve, d.Approve)
		assert.Equal(t, "checked", d.Reason)
	}
}

func TestVersionCommand(t *testing.T) {
	version = ""
	out, err := execute("version")
	require.NoError(t, err)
	assert.Equal(t, "unversioned", strings.TrimSpace(out))

	version = "v1.2.0"
	defer func() { version = "" }()
	out, err = execute("version")
	require.NoError(t, err)
	assert.Equal(t, "v1.2.0", strings.TrimSpace(out))

	_, err = execute("version", "extra")
	assert.Error(t, err)
}

func TestApproveNotAnApprovalAPI(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, err := execute("approve", "--confirm-url", ts.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not look like a bluegreen approval API")
}
