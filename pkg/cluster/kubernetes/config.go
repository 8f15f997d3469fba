package kubernetes

import (
	"github.com/pkg/errors"
	rest "k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	clientcmdapi "k8s.io/client-go/tools/clientcmd/api"
)

// ClientConfig loads connection details the way kubectl does: from
// the kubeconfig given, else $KUBECONFIG or ~/.kube/config, else the
// in-cluster service account. The namespace returned is the one asked
// for, or else the current context's (or the pod's) namespace.
func ClientConfig(kubeconfig, master, namespace string) (*rest.Config, string, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	rules.ExplicitPath = kubeconfig
	overrides := &clientcmd.ConfigOverrides{
		ClusterInfo: clientcmdapi.Cluster{Server: master},
	}
	overrides.Context.Namespace = namespace

	loader := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides)
	config, err := loader.ClientConfig()
	if err != nil {
		return nil, "", errors.Wrap(err, "loading kubernetes client config")
	}
	ns, _, err := loader.Namespace()
	if err != nil {
		return nil, "", errors.Wrap(err, "finding namespace")
	}
	return config, ns, nil
}
