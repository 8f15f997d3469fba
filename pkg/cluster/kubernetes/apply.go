package kubernetes

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	meta_v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sclient "k8s.io/client-go/kubernetes"

	"github.com/fluxcd/bluegreen/pkg/manifest"
)

// TypedApplier applies Deployments and Services through the typed
// API: it creates what is absent and replaces the spec of what is
// present. An existing Service keeps its live selector and cluster
// IP, as `kubectl apply` would when the selector has been patched
// since the last apply.
type TypedApplier struct {
	client    k8sclient.Interface
	namespace string
}

func NewTypedApplier(client k8sclient.Interface, namespace string) *TypedApplier {
	return &TypedApplier{client: client, namespace: namespace}
}

func (a *TypedApplier) Apply(ctx context.Context, logger log.Logger, def []byte) error {
	objs, err := manifest.ParseMultidoc(def, "apply")
	if err != nil {
		return err
	}
	for _, obj := range objs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if obj.Metadata.Namespace != "" && obj.Metadata.Namespace != a.namespace {
			return fmt.Errorf("%s is for namespace %q, not %q", obj, obj.Metadata.Namespace, a.namespace)
		}
		var created bool
		switch obj.Kind {
		case manifest.KindDeployment:
			created, err = a.applyDeployment(obj)
		case manifest.KindService:
			created, err = a.applyService(obj)
		default:
			err = fmt.Errorf("cannot apply %s; only Deployments and Services are supported", obj)
		}
		if err != nil {
			return errors.Wrapf(err, "applying %s", obj)
		}
		logger.Log("applied", obj.String(), "created", created)
	}
	return nil
}

func (a *TypedApplier) applyDeployment(obj manifest.Object) (bool, error) {
	want, err := obj.Deployment()
	if err != nil {
		return false, err
	}
	want.Namespace = a.namespace
	deployments := a.client.AppsV1().Deployments(a.namespace)

	live, err := deployments.Get(want.Name, meta_v1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = deployments.Create(want)
		return true, err
	}
	if err != nil {
		return false, err
	}
	want.ResourceVersion = live.ResourceVersion
	_, err = deployments.Update(want)
	return false, err
}

func (a *TypedApplier) applyService(obj manifest.Object) (bool, error) {
	want, err := obj.Service()
	if err != nil {
		return false, err
	}
	want.Namespace = a.namespace
	services := a.client.CoreV1().Services(a.namespace)

	live, err := services.Get(want.Name, meta_v1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = services.Create(want)
		return true, err
	}
	if err != nil {
		return false, err
	}
	want.ResourceVersion = live.ResourceVersion
	want.Spec.Selector = live.Spec.Selector
	want.Spec.ClusterIP = live.Spec.ClusterIP
	_, err = services.Update(want)
	return false, err
}
