package release_test

import (
	"context"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/bluegreen/pkg/cluster"
	"github.com/fluxcd/bluegreen/pkg/cluster/mock"
	"github.com/fluxcd/bluegreen/pkg/color"
	"github.com/fluxcd/bluegreen/pkg/deploy"
	"github.com/fluxcd/bluegreen/pkg/gate"
	"github.com/fluxcd/bluegreen/pkg/image"
	"github.com/fluxcd/bluegreen/pkg/manifest"
	"github.com/fluxcd/bluegreen/pkg/release"
	"github.com/fluxcd/bluegreen/pkg/rollout"
	"github.com/fluxcd/bluegreen/pkg/traffic"
)

const deploymentYAML = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: myapp-blue
  labels:
    app: myapp
    color: blue
spec:
  replicas: 2
  selector:
    matchLabels:
      app: myapp
      color: blue
  template:
    metadata:
      labels:
        app: myapp
        color: blue
    spec:
      containers:
      - name: web
        image: myapp:latest
`

const serviceYAML = `apiVersion: v1
kind: Service
metadata:
  name: myapp
spec:
  selector:
    app: myapp
    color: blue
  ports:
  - port: 80
`

type publishFunc func(ctx context.Context, buildID int, c color.Color) (image.Ref, error)

func (f publishFunc) Publish(ctx context.Context, buildID int, c color.Color) (image.Ref, error) {
	return f(ctx, buildID, c)
}

func publishLocal(ctx context.Context, buildID int, c color.Color) (image.Ref, error) {
	return image.ParseRef("myapp:" + strconv.Itoa(buildID))
}

func setup(t *testing.T) (*release.Orchestrator, *mock.Cluster, func()) {
	dir, err := ioutil.TempDir("", "release-test")
	require.NoError(t, err)
	source := manifest.Source{
		DeploymentPath: filepath.Join(dir, "deployment.yaml"),
		ServicePath:    filepath.Join(dir, "service.yaml"),
	}
	require.NoError(t, ioutil.WriteFile(source.DeploymentPath, []byte(deploymentYAML), 0600))
	require.NoError(t, ioutil.WriteFile(source.ServicePath, []byte(serviceYAML), 0600))

	logger := log.NewNopLogger()
	m := mock.New()
	resolver, err := color.NewResolver(color.StrategySelector, m, "myapp", "myapp", "color", logger)
	require.NoError(t, err)

	return &release.Orchestrator{
		Resolver:  resolver,
		Publisher: publishFunc(publishLocal),
		Deployer: &deploy.Deployer{
			Cluster:   m,
			Manifests: source,
			App:       "myapp",
			LabelKey:  "color",
			Logger:    logger,
		},
		Waiter: &rollout.Waiter{
			Cluster:      m,
			PollInterval: time.Millisecond,
			Logger:       logger,
		},
		Switcher: &traffic.Switcher{
			Cluster:   m,
			Manifests: source,
			Service:   "myapp",
			LabelKey:  "color",
			Confirmer: gate.Auto{},
			Window:    time.Second,
			Logger:    logger,
		},
		RolloutTimeout: time.Second,
		Logger:         logger,
	}, m, func() { os.RemoveAll(dir) }
}

func opStrings(m *mock.Cluster) []string {
	var ops []string
	for _, op := range m.Ops() {
		ops = append(ops, op.String())
	}
	return ops
}

func liveColor(t *testing.T, m *mock.Cluster) string {
	svc, err := m.GetService(context.Background(), "myapp")
	require.NoError(t, err)
	return svc.Selector["color"]
}

func TestBootstrapRelease(t *testing.T) {
	o, m, cleanup := setup(t)
	defer cleanup()

	res, err := o.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Nil(t, res.Ambiguous)
	assert.Equal(t, release.Release{
		BuildID:          1,
		Image:            image.Ref{Name: image.Name{Image: "myapp"}, Tag: "1"},
		Color:            color.Blue,
		TargetDeployment: "myapp-blue",
		OtherDeployment:  "myapp-green",
	}, res.Release)
	assert.Equal(t, []string{
		"apply Deployment/myapp-blue",
		"apply Service/myapp",
		"set-image myapp-blue myapp:1",
		"apply Service/myapp",
	}, opStrings(m))
	assert.Equal(t, "blue", liveColor(t, m))
}

func TestBlueToGreenRelease(t *testing.T) {
	o, m, cleanup := setup(t)
	defer cleanup()
	m.AddService(cluster.Service{Name: "myapp", Selector: map[string]string{"app": "myapp", "color": "blue"}})
	m.AddDeployment(cluster.Deployment{
		Name:       "myapp-blue",
		Containers: []cluster.Container{{Name: "web", Image: "myapp:1"}},
		Status:     cluster.StatusReady,
		Rollout:    cluster.RolloutStatus{Desired: 2, Updated: 2, Ready: 2, Available: 2},
	})

	res, err := o.Run(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, color.Green, res.Release.Color)
	assert.Equal(t, []string{
		"apply Deployment/myapp-green",
		"set-image myapp-green myapp:2",
		"apply Service/myapp",
		"patch-selector myapp color=green",
		"delete myapp-blue",
	}, opStrings(m))

	assert.Equal(t, "green", liveColor(t, m))
	_, err = m.GetDeployment(context.Background(), "myapp-blue")
	assert.True(t, cluster.IsNotFound(err))
	green, err := m.GetDeployment(context.Background(), "myapp-green")
	require.NoError(t, err)
	assert.Equal(t, "myapp:2", green.Image(""))
	assert.Equal(t, "green", green.Labels["color"])
}

func TestReadinessTimeout(t *testing.T) {
	o, m, cleanup := setup(t)
	defer cleanup()
	o.RolloutTimeout = 20 * time.Millisecond
	m.ApplyStatus = cluster.StatusUpdating
	m.AddService(cluster.Service{Name: "myapp", Selector: map[string]string{"app": "myapp", "color": "blue"}})
	m.AddDeployment(cluster.Deployment{Name: "myapp-blue", Status: cluster.StatusReady})

	_, err := o.Run(context.Background(), 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, release.TimedOut))

	var e *release.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, release.StageAwait, e.Stage)
	var timeout *rollout.TimeoutError
	require.True(t, errors.As(err, &timeout))
	assert.Equal(t, "myapp-green", timeout.Deployment)

	for _, op := range m.Ops() {
		assert.NotEqual(t, "patch-selector", op.Verb)
		assert.NotEqual(t, "delete", op.Verb)
	}
	assert.Equal(t, "blue", liveColor(t, m))
	_, err = m.GetDeployment(context.Background(), "myapp-green")
	assert.NoError(t, err, "the target slot is left for inspection")
}

func TestReleasesAlternate(t *testing.T) {
	o, m, cleanup := setup(t)
	defer cleanup()

	for build, want := range []string{"blue", "green", "blue", "green", "blue"} {
		res, err := o.Run(context.Background(), build+1)
		require.NoError(t, err)
		assert.Equal(t, want, string(res.Release.Color))
		assert.Equal(t, want, liveColor(t, m))

		_, err = m.GetDeployment(context.Background(), color.DeploymentName("myapp", color.Color(want).Other()))
		assert.True(t, cluster.IsNotFound(err), "only the live slot remains after build %d", build+1)
	}
}

func TestPublishFailureTouchesNothing(t *testing.T) {
	o, m, cleanup := setup(t)
	defer cleanup()
	o.Publisher = publishFunc(func(context.Context, int, color.Color) (image.Ref, error) {
		return image.Ref{}, release.Wrap(release.BuildError, errors.New("exit status 1"))
	})

	_, err := o.Run(context.Background(), 1)
	var e *release.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, release.StagePublish, e.Stage)
	assert.Equal(t, release.BuildError, e.Kind)
	assert.Empty(t, m.Ops())
}

func TestUnclassifiedStageError(t *testing.T) {
	o, _, cleanup := setup(t)
	defer cleanup()
	o.Publisher = publishFunc(func(context.Context, int, color.Color) (image.Ref, error) {
		return image.Ref{}, errors.New("no space left on device")
	})

	_, err := o.Run(context.Background(), 1)
	assert.True(t, errors.Is(err, release.PublishError))
	assert.Equal(t, release.PublishError, release.KindOf(err))
}

func TestAmbiguousResolutionIsNotFatal(t *testing.T) {
	o, m, cleanup := setup(t)
	defer cleanup()
	m.AddService(cluster.Service{Name: "myapp", Selector: map[string]string{"app": "myapp"}})

	res, err := o.Run(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, errors.Is(res.Ambiguous, color.ErrAmbiguous))
	assert.Equal(t, color.Blue, res.Release.Color)
}

func TestRunCancelled(t *testing.T) {
	o, m, cleanup := setup(t)
	defer cleanup()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, 1)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, m.Ops())
}

func TestMakeUserError(t *testing.T) {
	o, m, cleanup := setup(t)
	defer cleanup()
	m.ApplyStatus = cluster.StatusUpdating
	o.RolloutTimeout = 10 * time.Millisecond

	_, err := o.Run(context.Background(), 1)
	uerr := release.MakeUserError(err)
	assert.Contains(t, uerr.Help, `stage "await"`)
	assert.Contains(t, uerr.Help, "did not become ready in time")
}
