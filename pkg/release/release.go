package release

import (
	"github.com/fluxcd/bluegreen/pkg/color"
	"github.com/fluxcd/bluegreen/pkg/image"
)

// Release is everything decided about one run. It is made once the
// color is resolved and the image published, and then handed to each
// later stage.
type Release struct {
	BuildID          int
	Image            image.Ref
	Color            color.Color
	TargetDeployment string
	OtherDeployment  string
}

// IsFirst is true for the bootstrap release, which has nothing to
// switch from.
func (r Release) IsFirst() bool {
	return r.BuildID == 1 && r.Color == color.Blue
}
