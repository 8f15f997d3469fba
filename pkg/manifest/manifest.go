// Package manifest reads the deployment and service manifests a
// release is made from, and derives the manifest for the green slot
// from the canonical blue one.
package manifest

import (
	"bytes"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/ghodss/yaml"
	"github.com/pkg/errors"
	yamlv2 "gopkg.in/yaml.v2"
	apiapps "k8s.io/api/apps/v1"
	apiv1 "k8s.io/api/core/v1"
	meta_v1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

const (
	KindDeployment = "Deployment"
	KindService    = "Service"
)

// Object is one document of a manifest file, with just enough
// decoded to tell what it is.
type Object struct {
	meta_v1.TypeMeta `json:",inline"`
	Metadata         struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace,omitempty"`
	} `json:"metadata"`
	Bytes []byte `json:"-"`
}

func (o Object) String() string {
	return fmt.Sprintf("%s/%s", o.Kind, o.Metadata.Name)
}

// ReadFile reads and splits the manifest file at path.
func ReadFile(path string) ([]Object, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading manifest")
	}
	return ParseMultidoc(data, path)
}

// ParseMultidoc splits a multidoc YAML stream into its objects. Empty
// documents are skipped.
func ParseMultidoc(multidoc []byte, source string) ([]Object, error) {
	var objs []Object
	decoder := yamlv2.NewDecoder(bytes.NewReader(multidoc))
	for {
		// Decode generically and encode again to get each document
		// on its own; comments do not survive this.
		var val interface{}
		err := decoder.Decode(&val)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "scanning multidoc from %q", source)
		}
		if val == nil {
			continue
		}
		doc, err := yamlv2.Marshal(val)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing YAML doc from %q", source)
		}
		var obj Object
		if err := yaml.Unmarshal(doc, &obj); err != nil {
			return nil, errors.Wrapf(err, "parsing YAML doc from %q", source)
		}
		if obj.Kind == "" || obj.Metadata.Name == "" {
			return nil, fmt.Errorf("document in %q has no kind or name", source)
		}
		obj.Bytes = doc
		objs = append(objs, obj)
	}
	return objs, nil
}

// Only returns the single object of the given kind.
func Only(objs []Object, kind string) (Object, error) {
	var found []Object
	for _, o := range objs {
		if o.Kind == kind {
			found = append(found, o)
		}
	}
	switch len(found) {
	case 0:
		return Object{}, fmt.Errorf("no %s found in manifest", kind)
	case 1:
		return found[0], nil
	default:
		return Object{}, fmt.Errorf("expected one %s in manifest, found %d", kind, len(found))
	}
}

func (o Object) Deployment() (*apiapps.Deployment, error) {
	if o.Kind != KindDeployment || o.APIVersion != "apps/v1" {
		return nil, fmt.Errorf("%s (%s) is not an apps/v1 Deployment", o, o.APIVersion)
	}
	var d apiapps.Deployment
	if err := yaml.Unmarshal(o.Bytes, &d); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", o)
	}
	return &d, nil
}

func (o Object) Service() (*apiv1.Service, error) {
	if o.Kind != KindService || o.APIVersion != "v1" {
		return nil, fmt.Errorf("%s (%s) is not a v1 Service", o, o.APIVersion)
	}
	var s apiv1.Service
	if err := yaml.Unmarshal(o.Bytes, &s); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", o)
	}
	return &s, nil
}

// Marshal encodes a typed object as YAML. The output has sorted keys,
// so the same object always encodes to the same bytes.
func Marshal(obj interface{}) ([]byte, error) {
	return yaml.Marshal(obj)
}

// Source says where an application's manifests are. The Service may
// live in its own file or alongside the Deployment.
type Source struct {
	DeploymentPath string
	ServicePath    string
}

func (s Source) Deployment() (Object, error) {
	objs, err := ReadFile(s.DeploymentPath)
	if err != nil {
		return Object{}, err
	}
	return Only(objs, KindDeployment)
}

func (s Source) Service() (Object, error) {
	path := s.ServicePath
	if path == "" {
		path = s.DeploymentPath
	}
	objs, err := ReadFile(path)
	if err != nil {
		return Object{}, err
	}
	return Only(objs, KindService)
}
