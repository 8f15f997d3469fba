package manifest

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcd/bluegreen/pkg/color"
)

const blueDeployment = `---
apiVersion: apps/v1
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
        image: myapp:placeholder
        ports:
        - containerPort: 8080
`

const service = `apiVersion: v1
kind: Service
metadata:
  name: myapp
spec:
  selector:
    app: myapp
    color: blue
  ports:
  - port: 80
    targetPort: 8080
`

func TestParseMultidoc(t *testing.T) {
	objs, err := ParseMultidoc([]byte(blueDeployment+"---\n"+service+"---\n"), "test")
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "Deployment/myapp-blue", objs[0].String())
	assert.Equal(t, "Service/myapp", objs[1].String())

	svc, err := Only(objs, KindService)
	require.NoError(t, err)
	s, err := svc.Service()
	require.NoError(t, err)
	assert.Equal(t, "blue", s.Spec.Selector["color"])
}

func TestParseMultidocNoKind(t *testing.T) {
	_, err := ParseMultidoc([]byte("foo: bar\n"), "test")
	assert.Error(t, err)
}

func TestOnly(t *testing.T) {
	objs, err := ParseMultidoc([]byte(blueDeployment+"---\n"+blueDeployment), "test")
	require.NoError(t, err)
	_, err = Only(objs, KindDeployment)
	assert.Error(t, err)
	_, err = Only(objs, KindService)
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "manifest-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "deployment.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(blueDeployment), 0600))

	objs, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, objs, 1)

	_, err = ReadFile(filepath.Join(dir, "absent.yaml"))
	assert.Error(t, err)
}

func TestDeriveGreen(t *testing.T) {
	objs, err := ParseMultidoc([]byte(blueDeployment), "test")
	require.NoError(t, err)

	out, err := Derive(objs, "myapp", "color", color.Green)
	require.NoError(t, err)

	derived, err := ParseMultidoc(out, "derived")
	require.NoError(t, err)
	obj, err := Only(derived, KindDeployment)
	require.NoError(t, err)
	d, err := obj.Deployment()
	require.NoError(t, err)

	assert.Equal(t, "myapp-green", d.Name)
	assert.Equal(t, map[string]string{"app": "myapp", "color": "green"}, d.Labels)
	assert.Equal(t, map[string]string{"app": "myapp", "color": "green"}, d.Spec.Selector.MatchLabels)
	assert.Equal(t, map[string]string{"app": "myapp", "color": "green"}, d.Spec.Template.Labels)
	// untouched
	assert.Equal(t, int32(2), *d.Spec.Replicas)
	assert.Equal(t, "myapp:placeholder", d.Spec.Template.Spec.Containers[0].Image)
}

func TestDeriveIsDeterministic(t *testing.T) {
	objs, err := ParseMultidoc([]byte(blueDeployment), "test")
	require.NoError(t, err)
	first, err := Derive(objs, "myapp", "color", color.Green)
	require.NoError(t, err)
	second, err := Derive(objs, "myapp", "color", color.Green)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDeriveBlueIsCanonical(t *testing.T) {
	objs, err := ParseMultidoc([]byte(blueDeployment), "test")
	require.NoError(t, err)
	out, err := Derive(objs, "myapp", "color", color.Blue)
	require.NoError(t, err)
	derived, err := ParseMultidoc(out, "derived")
	require.NoError(t, err)
	assert.Equal(t, "Deployment/myapp-blue", derived[0].String())
}

func TestDeriveErrors(t *testing.T) {
	objs, err := ParseMultidoc([]byte(blueDeployment), "test")
	require.NoError(t, err)

	for name, c := range map[string]struct {
		app, label string
		slot       color.Color
	}{
		"name does not match app": {"otherapp", "color", color.Green},
		"no label to relabel":     {"myapp", "slot", color.Green},
		"unknown slot":            {"myapp", "color", color.Color("red")},
	} {
		_, err := Derive(objs, c.app, c.label, c.slot)
		assert.Error(t, err, name)
		assert.True(t, errors.Is(err, ErrDerive), name)
	}

	svcOnly, err := ParseMultidoc([]byte(service), "test")
	require.NoError(t, err)
	_, err = Derive(svcOnly, "myapp", "color", color.Green)
	assert.True(t, errors.Is(err, ErrDerive))
}

func TestSourceServiceAlongsideDeployment(t *testing.T) {
	dir, err := ioutil.TempDir("", "manifest-test")
	require.NoError(t, err)
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "app.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(blueDeployment+"---\n"+service), 0600))

	src := Source{DeploymentPath: path}
	d, err := src.Deployment()
	require.NoError(t, err)
	assert.Equal(t, "Deployment/myapp-blue", d.String())
	s, err := src.Service()
	require.NoError(t, err)
	assert.Equal(t, "Service/myapp", s.String())
}
