package kubernetes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	meta_v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	k8sclient "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/util/retry"

	"github.com/fluxcd/bluegreen/pkg/cluster"
	"github.com/fluxcd/bluegreen/pkg/image"
)

// Applier creates or updates the objects in a YAML document.
type Applier interface {
	Apply(ctx context.Context, logger log.Logger, def []byte) error
}

// Cluster is a handle to one namespace of a Kubernetes API server.
type Cluster struct {
	client    k8sclient.Interface
	namespace string
	applier   Applier
	logger    log.Logger
}

var _ cluster.Cluster = &Cluster{}

// NewCluster returns a usable cluster. If applier is nil, objects are
// applied through the API with client.
func NewCluster(client k8sclient.Interface, namespace string, applier Applier, logger log.Logger) *Cluster {
	if applier == nil {
		applier = &TypedApplier{client: client, namespace: namespace}
	}
	return &Cluster{
		client:    client,
		namespace: namespace,
		applier:   applier,
		logger:    logger,
	}
}

func (c *Cluster) GetDeployment(ctx context.Context, name string) (cluster.Deployment, error) {
	if err := ctx.Err(); err != nil {
		return cluster.Deployment{}, err
	}
	start := time.Now()
	d, err := c.client.AppsV1().Deployments(c.namespace).Get(name, meta_v1.GetOptions{})
	observeRequest("get", "deployment", start, err)
	if err != nil {
		return cluster.Deployment{}, checkMissing("deployment", name, err)
	}
	return makeDeployment(d), nil
}

func (c *Cluster) GetService(ctx context.Context, name string) (cluster.Service, error) {
	if err := ctx.Err(); err != nil {
		return cluster.Service{}, err
	}
	start := time.Now()
	s, err := c.client.CoreV1().Services(c.namespace).Get(name, meta_v1.GetOptions{})
	observeRequest("get", "service", start, err)
	if err != nil {
		return cluster.Service{}, checkMissing("service", name, err)
	}
	return cluster.Service{Name: s.Name, Selector: s.Spec.Selector}, nil
}

func (c *Cluster) Apply(ctx context.Context, def []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := c.applier.Apply(ctx, c.logger, def)
	observeRequest("apply", "", start, err)
	return err
}

// SetImage updates the container image in place, retrying if the
// deployment was changed by someone else in the meantime.
func (c *Cluster) SetImage(ctx context.Context, deployment, container string, ref image.Ref) error {
	deployments := c.client.AppsV1().Deployments(c.namespace)
	start := time.Now()
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := deployments.Get(deployment, meta_v1.GetOptions{})
		if err != nil {
			return checkMissing("deployment", deployment, err)
		}
		containers := d.Spec.Template.Spec.Containers
		i := -1
		for j := range containers {
			if (container == "" && j == 0) || containers[j].Name == container {
				i = j
				break
			}
		}
		if i < 0 {
			return fmt.Errorf("deployment %s has no container %q", deployment, container)
		}
		containers[i].Image = ref.String()
		_, err = deployments.Update(d)
		return err
	})
	observeRequest("set-image", "deployment", start, err)
	return err
}

// PatchServiceSelector sets one key of the selector with a merge
// patch. The patch carries the resourceVersion it was computed
// against, so a concurrent change makes it fail with a conflict and it
// is computed again.
func (c *Cluster) PatchServiceSelector(ctx context.Context, service, key, value string) error {
	services := c.client.CoreV1().Services(c.namespace)
	start := time.Now()
	err := retry.RetryOnConflict(retry.DefaultRetry, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := services.Get(service, meta_v1.GetOptions{})
		if err != nil {
			return checkMissing("service", service, err)
		}
		patch, err := selectorPatch(s.ResourceVersion, s.Spec.Selector, key, value)
		if err != nil {
			return err
		}
		_, err = services.Patch(service, types.MergePatchType, patch)
		return err
	})
	observeRequest("patch", "service", start, err)
	if err != nil {
		return errors.Wrapf(err, "patching selector of service %s", service)
	}
	c.logger.Log("service", service, "selector", key+"="+value)
	return nil
}

type selectorDoc struct {
	Metadata struct {
		ResourceVersion string `json:"resourceVersion,omitempty"`
	} `json:"metadata"`
	Spec struct {
		Selector map[string]string `json:"selector"`
	} `json:"spec"`
}

func selectorPatch(resourceVersion string, live map[string]string, key, value string) ([]byte, error) {
	var original, modified selectorDoc
	original.Spec.Selector = live
	modified.Metadata.ResourceVersion = resourceVersion
	modified.Spec.Selector = map[string]string{}
	for k, v := range live {
		modified.Spec.Selector[k] = v
	}
	modified.Spec.Selector[key] = value

	originalJSON, err := json.Marshal(original)
	if err != nil {
		return nil, err
	}
	modifiedJSON, err := json.Marshal(modified)
	if err != nil {
		return nil, err
	}
	return jsonpatch.CreateMergePatch(originalJSON, modifiedJSON)
}

func (c *Cluster) DeleteDeployment(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	policy := meta_v1.DeletePropagationBackground
	start := time.Now()
	err := c.client.AppsV1().Deployments(c.namespace).Delete(name, &meta_v1.DeleteOptions{
		PropagationPolicy: &policy,
	})
	observeRequest("delete", "deployment", start, err)
	if err != nil {
		return checkMissing("deployment", name, err)
	}
	return nil
}
