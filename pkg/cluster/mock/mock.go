package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/fluxcd/bluegreen/pkg/cluster"
	"github.com/fluxcd/bluegreen/pkg/image"
	"github.com/fluxcd/bluegreen/pkg/manifest"
)

// Op records one mutating call made against the mock.
type Op struct {
	Verb string // apply, set-image, patch-selector or delete
	Name string // Kind/name for apply, the object name otherwise
	Arg  string
}

func (o Op) String() string {
	if o.Arg == "" {
		return o.Verb + " " + o.Name
	}
	return fmt.Sprintf("%s %s %s", o.Verb, o.Name, o.Arg)
}

// Cluster is an in-memory cluster.Cluster which records what is done
// to it. Any of the Func fields, when set, replaces the in-memory
// behaviour of that method (the call is still recorded if it is a
// mutation).
type Cluster struct {
	// ApplyStatus is the status given to deployments when they are
	// applied or have their image set; the zero value means ready.
	ApplyStatus string

	GetDeploymentFunc        func(ctx context.Context, name string) (cluster.Deployment, error)
	GetServiceFunc           func(ctx context.Context, name string) (cluster.Service, error)
	ApplyFunc                func(ctx context.Context, def []byte) error
	SetImageFunc             func(ctx context.Context, deployment, container string, ref image.Ref) error
	PatchServiceSelectorFunc func(ctx context.Context, service, key, value string) error
	DeleteDeploymentFunc     func(ctx context.Context, name string) error

	mu          sync.Mutex
	ops         []Op
	deployments map[string]cluster.Deployment
	services    map[string]cluster.Service
}

var _ cluster.Cluster = &Cluster{}

func New() *Cluster {
	return &Cluster{
		deployments: map[string]cluster.Deployment{},
		services:    map[string]cluster.Service{},
	}
}

// AddDeployment puts a deployment in the cluster without recording
// an op.
func (m *Cluster) AddDeployment(d cluster.Deployment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deployments[d.Name] = d
}

func (m *Cluster) AddService(s cluster.Service) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.services[s.Name] = s
}

// Ops returns the mutations made so far, in order.
func (m *Cluster) Ops() []Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Op(nil), m.ops...)
}

func (m *Cluster) record(op Op) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops = append(m.ops, op)
}

func (m *Cluster) status() string {
	if m.ApplyStatus == "" {
		return cluster.StatusReady
	}
	return m.ApplyStatus
}

func (m *Cluster) GetDeployment(ctx context.Context, name string) (cluster.Deployment, error) {
	if m.GetDeploymentFunc != nil {
		return m.GetDeploymentFunc(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[name]
	if !ok {
		return cluster.Deployment{}, errors.Wrapf(cluster.ErrNotFound, "deployment %q", name)
	}
	return d, nil
}

func (m *Cluster) GetService(ctx context.Context, name string) (cluster.Service, error) {
	if m.GetServiceFunc != nil {
		return m.GetServiceFunc(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[name]
	if !ok {
		return cluster.Service{}, errors.Wrapf(cluster.ErrNotFound, "service %q", name)
	}
	return s, nil
}

func (m *Cluster) Apply(ctx context.Context, def []byte) error {
	objs, err := manifest.ParseMultidoc(def, "apply")
	if err != nil {
		return err
	}
	for _, obj := range objs {
		m.record(Op{Verb: "apply", Name: obj.String()})
	}
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, def)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, obj := range objs {
		switch obj.Kind {
		case manifest.KindDeployment:
			d, err := obj.Deployment()
			if err != nil {
				return err
			}
			var containers []cluster.Container
			for _, c := range d.Spec.Template.Spec.Containers {
				containers = append(containers, cluster.Container{Name: c.Name, Image: c.Image})
			}
			m.deployments[d.Name] = cluster.Deployment{
				Name:       d.Name,
				Labels:     d.Labels,
				Containers: containers,
				Status:     m.status(),
			}
		case manifest.KindService:
			s, err := obj.Service()
			if err != nil {
				return err
			}
			if _, ok := m.services[s.Name]; ok {
				continue // the live selector stays
			}
			m.services[s.Name] = cluster.Service{Name: s.Name, Selector: s.Spec.Selector}
		default:
			return fmt.Errorf("mock cannot apply %s", obj)
		}
	}
	return nil
}

func (m *Cluster) SetImage(ctx context.Context, deployment, container string, ref image.Ref) error {
	m.record(Op{Verb: "set-image", Name: deployment, Arg: ref.String()})
	if m.SetImageFunc != nil {
		return m.SetImageFunc(ctx, deployment, container, ref)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.deployments[deployment]
	if !ok {
		return errors.Wrapf(cluster.ErrNotFound, "deployment %q", deployment)
	}
	containers := append([]cluster.Container(nil), d.Containers...)
	var found bool
	for i := range containers {
		if (container == "" && i == 0) || containers[i].Name == container {
			containers[i].Image = ref.String()
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("container %q not found in deployment %q", container, deployment)
	}
	d.Containers = containers
	d.Status = m.status()
	m.deployments[deployment] = d
	return nil
}

func (m *Cluster) PatchServiceSelector(ctx context.Context, service, key, value string) error {
	m.record(Op{Verb: "patch-selector", Name: service, Arg: key + "=" + value})
	if m.PatchServiceSelectorFunc != nil {
		return m.PatchServiceSelectorFunc(ctx, service, key, value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.services[service]
	if !ok {
		return errors.Wrapf(cluster.ErrNotFound, "service %q", service)
	}
	selector := map[string]string{}
	for k, v := range s.Selector {
		selector[k] = v
	}
	selector[key] = value
	s.Selector = selector
	m.services[service] = s
	return nil
}

func (m *Cluster) DeleteDeployment(ctx context.Context, name string) error {
	m.record(Op{Verb: "delete", Name: name})
	if m.DeleteDeploymentFunc != nil {
		return m.DeleteDeploymentFunc(ctx, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.deployments[name]; !ok {
		return errors.Wrapf(cluster.ErrNotFound, "deployment %q", name)
	}
	delete(m.deployments, name)
	return nil
}
