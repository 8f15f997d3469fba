package kubernetes

import (
	"fmt"

	"github.com/pkg/errors"
	apierrors "k8s.io/apimachinery/pkg/api/errors"

	"github.com/fluxcd/bluegreen/pkg/cluster"
	fluxerr "github.com/fluxcd/bluegreen/pkg/errors"
)

func ObjectMissingError(obj string, err error) *fluxerr.Error {
	return &fluxerr.Error{
		Type: fluxerr.Missing,
		Err:  errors.Wrapf(cluster.ErrNotFound, "%s: %s", obj, err),
		Help: fmt.Sprintf(`Cluster object %q not found

The object requested was not found in the namespace bluegreen is
using. Check the --namespace flag, and perhaps verify the object's
presence using kubectl.
`, obj)}
}

// checkMissing turns the API server's NotFound into a cluster.ErrNotFound.
func checkMissing(kind, name string, err error) error {
	if apierrors.IsNotFound(err) {
		return ObjectMissingError(kind+"/"+name, err)
	}
	return err
}
