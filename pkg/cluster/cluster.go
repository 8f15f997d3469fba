package cluster

import (
	"context"
	"errors"

	"github.com/fluxcd/bluegreen/pkg/image"
)

// Constants for deployment ready status. These are defined here so
// that no-one has to drag in Kubernetes dependencies to be able to
// use them.
const (
	StatusUnknown  = "unknown"
	StatusError    = "error"
	StatusReady    = "ready"
	StatusUpdating = "updating"
	StatusStarted  = "started"
)

// ErrNotFound is returned (possibly wrapped) when a named object is
// absent from the cluster.
var ErrNotFound = errors.New("not found")

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Cluster is the part of the control plane a release talks to. All
// operations are scoped to the namespace the implementation was
// created for.
type Cluster interface {
	GetDeployment(ctx context.Context, name string) (Deployment, error)
	GetService(ctx context.Context, name string) (Service, error)
	// Apply creates or updates the objects in the (possibly
	// multidoc) YAML given. Applying a Service that already exists
	// leaves its live selector as it is.
	Apply(ctx context.Context, def []byte) error
	// SetImage sets the image of the named container; an empty
	// container name means the first container.
	SetImage(ctx context.Context, deployment, container string, ref image.Ref) error
	PatchServiceSelector(ctx context.Context, service, key, value string) error
	DeleteDeployment(ctx context.Context, name string) error
}

// RolloutStatus describes numbers of pods in different states and
// the messages about unexpected rollout progress
// a rollout status might be:
// - in progress: Updated, Ready or Available numbers are not equal to Desired, or Outdated not equal to 0
// - stuck: Messages contains info if deployment unavailable or exceeded its progress deadline
// - complete: Updated, Ready and Available numbers are equal to Desired and Outdated equal to 0
// See https://kubernetes.io/docs/concepts/workloads/controllers/deployment/#deployment-status
type RolloutStatus struct {
	// Desired number of pods as defined in spec.
	Desired int32
	// Updated number of pods that are on the desired pod spec.
	Updated int32
	// Ready number of pods targeted by this deployment.
	Ready int32
	// Available number of available pods (ready for at least minReadySeconds) targeted by this deployment.
	Available int32
	// Outdated number of pods that are on a different pod spec.
	Outdated int32
	// Messages about unexpected rollout progress
	// if there's a message here, the rollout will not make progress without intervention
	Messages []string
}

type Container struct {
	Name  string
	Image string
}

// Deployment is one slot as the cluster sees it.
type Deployment struct {
	Name       string
	Labels     map[string]string
	Containers []Container
	Status     string // one of the Status* constants
	Rollout    RolloutStatus
}

// Image returns the image of the named container, or of the first
// container when name is empty.
func (d Deployment) Image(container string) string {
	for i, c := range d.Containers {
		if (container == "" && i == 0) || c.Name == container {
			return c.Image
		}
	}
	return ""
}

type Service struct {
	Name     string
	Selector map[string]string
}
