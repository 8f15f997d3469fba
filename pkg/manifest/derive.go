package manifest

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	apiapps "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/util/validation"

	"github.com/fluxcd/bluegreen/pkg/color"
)

// ErrDerive is the cause of every failure to derive a slot manifest.
var ErrDerive = errors.New("cannot derive slot manifest")

// DeriveSlot returns a copy of the canonical (blue) deployment made
// to run in the slot given: the name becomes <app>-<slot>, and every
// label labelKey: blue in the object labels, the selector and the pod
// template becomes labelKey: <slot>. Nothing else is touched.
func DeriveSlot(canonical *apiapps.Deployment, app, labelKey string, slot color.Color) (*apiapps.Deployment, error) {
	if !slot.Valid() {
		return nil, errors.Wrapf(ErrDerive, "unknown slot %q", slot)
	}
	from := color.DeploymentName(app, color.Blue)
	if canonical.Name != from {
		return nil, errors.Wrapf(ErrDerive, "canonical deployment is named %q; expected %q", canonical.Name, from)
	}
	name := color.DeploymentName(app, slot)
	if errs := validation.IsDNS1123Subdomain(name); len(errs) > 0 {
		return nil, errors.Wrapf(ErrDerive, "invalid deployment name %q: %s", name, strings.Join(errs, "; "))
	}

	d := canonical.DeepCopy()
	d.Name = name

	var relabelled int
	relabel := func(labels map[string]string) {
		if v, ok := labels[labelKey]; ok && v == string(color.Blue) {
			labels[labelKey] = string(slot)
			relabelled++
		}
	}
	relabel(d.Labels)
	if d.Spec.Selector != nil {
		relabel(d.Spec.Selector.MatchLabels)
	}
	relabel(d.Spec.Template.Labels)
	if relabelled == 0 {
		return nil, errors.Wrapf(ErrDerive, "no %s: %s label found in deployment %q", labelKey, color.Blue, from)
	}
	return d, nil
}

// Derive finds the canonical deployment among objs, and returns the
// YAML for the deployment in the given slot.
func Derive(objs []Object, app, labelKey string, slot color.Color) ([]byte, error) {
	obj, err := Only(objs, KindDeployment)
	if err != nil {
		return nil, errors.Wrap(ErrDerive, err.Error())
	}
	return DeriveObject(obj, app, labelKey, slot)
}

// DeriveObject is Derive for an object already picked out.
func DeriveObject(obj Object, app, labelKey string, slot color.Color) ([]byte, error) {
	canonical, err := obj.Deployment()
	if err != nil {
		return nil, errors.Wrap(ErrDerive, err.Error())
	}
	d, err := DeriveSlot(canonical, app, labelKey, slot)
	if err != nil {
		return nil, err
	}
	// apiVersion & kind must be set for the document to be applied
	d.APIVersion, d.Kind = "apps/v1", KindDeployment
	out, err := Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %v", d.Name, err)
	}
	return out, nil
}
