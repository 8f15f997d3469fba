package registry

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// creds are the username and password for one registry host.
type creds struct {
	username, password string
	host, from         string
}

func (c creds) String() string {
	if c == (creds{}) {
		return "<anonymous>"
	}
	return fmt.Sprintf("<%s@%s from %s>", c.username, c.host, c.from)
}

// Credentials holds registry logins keyed by host, as found in a
// docker config file.
type Credentials struct {
	m map[string]creds
}

func NoCredentials() Credentials {
	return Credentials{m: map[string]creds{}}
}

// dockerConfig is the part of ~/.docker/config.json we read. A
// kubernetes dockercfg secret has the same entries without the
// surrounding "auths".
type dockerConfig struct {
	Auths map[string]struct {
		Auth string `json:"auth"`
	} `json:"auths"`
}

func decodeAuth(auth string) (creds, error) {
	decoded, err := base64.StdEncoding.DecodeString(auth)
	if err != nil {
		return creds{}, errors.Wrap(err, "decoding auth")
	}
	userpass := strings.SplitN(string(decoded), ":", 2)
	if len(userpass) != 2 {
		return creds{}, fmt.Errorf("decoded auth has %d fields, expected user:password", len(userpass))
	}
	return creds{username: userpass[0], password: userpass[1]}, nil
}

// registryHost reduces the keys people put in docker configs (a
// bare host, host:port, or a URL with a scheme and API path) to a
// host[:port].
func registryHost(key string) (string, error) {
	if key == "http://" || key == "https://" {
		return "", errors.New("empty registry address")
	}
	u, err := url.Parse(key)
	if err != nil || u.Host == "" {
		u, err = url.Parse("https://" + key + "/")
		if err != nil {
			return "", errors.Wrapf(err, "registry address %q", key)
		}
	}
	if u.Host == "" {
		return "", fmt.Errorf("registry address %q has no host; expected e.g., https://registry.example.com/v2/", key)
	}
	return u.Host, nil
}

// ParseCredentials reads a docker config (or kubernetes dockercfg);
// from names where it came from, for logging.
func ParseCredentials(from string, b []byte) (Credentials, error) {
	var config dockerConfig
	if err := json.Unmarshal(b, &config); err != nil {
		return Credentials{}, err
	}
	if len(config.Auths) == 0 {
		if err := json.Unmarshal(b, &config.Auths); err != nil {
			return Credentials{}, err
		}
	}

	cs := NoCredentials()
	for key, entry := range config.Auths {
		c, err := decodeAuth(entry.Auth)
		if err != nil {
			return Credentials{}, errors.Wrapf(err, "credentials for %s", key)
		}
		host, err := registryHost(key)
		if err != nil {
			return Credentials{}, err
		}
		c.host, c.from = host, from
		cs.m[host] = c
	}
	return cs, nil
}

// CredentialsFromFile reads a docker config file. A file that does
// not exist means no credentials, so that anonymous registries work
// out of the box.
func CredentialsFromFile(path string) (Credentials, error) {
	if path == "" {
		return NoCredentials(), nil
	}
	b, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return NoCredentials(), nil
	}
	if err != nil {
		return Credentials{}, err
	}
	return ParseCredentials(path, b)
}

func (cs Credentials) credsFor(host string) creds {
	return cs.m[host]
}

// Hosts returns all of the hosts available in these credentials.
func (cs Credentials) Hosts() []string {
	hosts := []string{}
	for host := range cs.m {
		hosts = append(hosts, host)
	}
	return hosts
}

// Merge copies c's entries into cs, overriding any for the same host.
func (cs Credentials) Merge(c Credentials) {
	for k, v := range c.m {
		cs.m[k] = v
	}
}

func (cs Credentials) String() string {
	return fmt.Sprintf("{%v}", cs.m)
}
