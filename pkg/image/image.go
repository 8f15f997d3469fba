package image

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	dockerHubHost    = "index.docker.io"
	oldDockerHubHost = "docker.io"
)

var (
	ErrInvalidRef   = errors.New("invalid image reference")
	ErrBlankRef     = errors.Wrap(ErrInvalidRef, "blank image name")
	ErrMalformedRef = errors.Wrap(ErrInvalidRef, `expected image as <repository>:<tag> or just <repository>`)
)

// Name is an image repository, without a tag, e.g.,
//   * myapp
//   * localhost:5000/team/myapp
//   * quay.io/team/myapp
// A name with no domain lives at Docker Hub; a single path element
// there is implicitly prefixed with `library/`.
type Name struct {
	Domain, Image string
}

func (n Name) String() string {
	if n.Image == "" {
		return ""
	}
	if n.Domain == "" {
		return n.Image
	}
	return n.Domain + "/" + n.Image
}

// Repository is the path part of the name as the registry API
// expects it.
func (n Name) Repository() string {
	switch n.Domain {
	case "", oldDockerHubHost, dockerHubHost:
		if !strings.Contains(n.Image, "/") {
			return "library/" + n.Image
		}
	}
	return n.Image
}

// Registry is the host to talk to about this name.
func (n Name) Registry() string {
	switch n.Domain {
	case "", oldDockerHubHost:
		return dockerHubHost
	default:
		return n.Domain
	}
}

// Canonical fills in everything left implied by convention.
func (n Name) Canonical() Name {
	return Name{Domain: n.Registry(), Image: n.Repository()}
}

func (n Name) ToRef(tag string) Ref {
	return Ref{Name: n, Tag: tag}
}

// Ref is a tagged image. A release produces two of these for the
// same image: one tagged with the build id, one with the slot color.
type Ref struct {
	Name
	Tag string
}

func (r Ref) String() string {
	if r.Tag == "" {
		return r.Name.String()
	}
	return fmt.Sprintf("%s:%s", r.Name.String(), r.Tag)
}

// WithTag returns a copy of the ref with another tag.
func (r Ref) WithTag(tag string) Ref {
	r.Tag = tag
	return r
}

func (r Ref) CanonicalRef() Ref {
	return Ref{Name: r.Name.Canonical(), Tag: r.Tag}
}

var (
	domainComponent = `([a-zA-Z0-9]|[a-zA-Z0-9][a-zA-Z0-9-]*[a-zA-Z0-9])`
	domainRegexp    = regexp.MustCompile(fmt.Sprintf(`^(localhost|(%s([.]%s)+))(:[0-9]+)?$`, domainComponent, domainComponent))
)

// ParseName parses a repository with no tag.
func ParseName(s string) (Name, error) {
	ref, err := ParseRef(s)
	if err != nil {
		return Name{}, err
	}
	if ref.Tag != "" {
		return Name{}, errors.Wrapf(ErrMalformedRef, "%q is tagged; expected a repository", s)
	}
	return ref.Name, nil
}

// ParseRef parses an image reference of the form
// [domain/]path[:tag]. Digests are not supported.
func ParseRef(s string) (Ref, error) {
	var ref Ref
	if s == "" {
		return ref, errors.Wrapf(ErrBlankRef, "parsing %q", s)
	}
	if strings.HasPrefix(s, "/") || strings.HasSuffix(s, "/") {
		return ref, errors.Wrapf(ErrMalformedRef, "parsing %q", s)
	}

	path := s
	if i := strings.Index(s, "/"); i > 0 && domainRegexp.MatchString(s[:i]) {
		ref.Domain = s[:i]
		path = s[i+1:]
	}

	parts := strings.Split(path, ":")
	switch len(parts) {
	case 1:
		ref.Image = path
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Ref{}, errors.Wrapf(ErrMalformedRef, "parsing %q", s)
		}
		ref.Image, ref.Tag = parts[0], parts[1]
	default:
		return Ref{}, errors.Wrapf(ErrMalformedRef, "parsing %q", s)
	}
	return ref, nil
}

func (r Ref) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

func (r *Ref) UnmarshalJSON(data []byte) (err error) {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*r, err = ParseRef(str)
	return err
}
