package registry

import (
	"encoding/base64"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	user    = "user"
	pass    = "pass"
	okCreds = base64.StdEncoding.EncodeToString([]byte(user + ":" + pass))
	tmpl    = `{"auths": {%q: {"auth": %q}}}`
)

func TestParseCredentialsHosts(t *testing.T) {
	for _, v := range []struct {
		key   string
		host  string
		error bool
	}{
		{key: "host", host: "host"},
		{key: "quay.io", host: "quay.io"},
		{key: "localhost:5000/v2/", host: "localhost:5000"},
		{key: "192.168.99.100:5000", host: "192.168.99.100:5000"},
		{key: "https://192.168.99.100:5000/v2", host: "192.168.99.100:5000"},
		{key: "https://registry.example.com:5000/v2", host: "registry.example.com:5000"},
		{key: "https://index.docker.io/v1/", host: "index.docker.io"},
		{key: "quay.io/v1", host: "quay.io"},
		{key: "", error: true},
		{key: "https://", error: true},
		{key: "^#invalid.io/v1/", error: true},
		{key: "/var/user", error: true},
	} {
		t.Run(v.key, func(t *testing.T) {
			cs, err := ParseCredentials("test", []byte(fmt.Sprintf(tmpl, v.key, okCreds)))
			if v.error {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, user, cs.credsFor(v.host).username)
			assert.Equal(t, pass, cs.credsFor(v.host).password)
		})
	}
}

func TestParseCredentialsKubernetesFormat(t *testing.T) {
	k8sCreds := []byte(`{"localhost:5000":{"username":"testuser","password":"testpassword","email":"foo@bar.com","auth":"dGVzdHVzZXI6dGVzdHBhc3N3b3Jk"}}`)
	cs, err := ParseCredentials("test", k8sCreds)
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:5000"}, cs.Hosts())
	assert.Equal(t, "testuser", cs.credsFor("localhost:5000").username)
	assert.Equal(t, "testpassword", cs.credsFor("localhost:5000").password)
}

func TestParseCredentialsBadAuth(t *testing.T) {
	noColon := base64.StdEncoding.EncodeToString([]byte("justuser"))
	_, err := ParseCredentials("test", []byte(fmt.Sprintf(tmpl, "quay.io", noColon)))
	assert.Error(t, err)

	_, err = ParseCredentials("test", []byte(fmt.Sprintf(tmpl, "quay.io", "!!not base64")))
	assert.Error(t, err)
}

func TestCredentialsStringHidesPassword(t *testing.T) {
	cs, err := ParseCredentials("test", []byte(fmt.Sprintf(tmpl, "localhost:5000", okCreds)))
	require.NoError(t, err)
	assert.Equal(t, "{map[localhost:5000:<user@localhost:5000 from test>]}", cs.String())
	assert.Equal(t, "<anonymous>", cs.credsFor("quay.io").String())
}

func TestCredentialsFromFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "registry-creds")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	cs, err := CredentialsFromFile(filepath.Join(dir, "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, cs.Hosts())

	path := filepath.Join(dir, "config.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(fmt.Sprintf(tmpl, "quay.io", okCreds)), 0600))
	cs, err = CredentialsFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<user@quay.io from "+path+">", cs.credsFor("quay.io").String())
}

func TestCredentialsMerge(t *testing.T) {
	a, err := ParseCredentials("a", []byte(fmt.Sprintf(tmpl, "quay.io", okCreds)))
	require.NoError(t, err)
	other := base64.StdEncoding.EncodeToString([]byte("other:secret"))
	b, err := ParseCredentials("b", []byte(fmt.Sprintf(tmpl, "quay.io", other)))
	require.NoError(t, err)

	a.Merge(b)
	assert.Equal(t, "other", a.credsFor("quay.io").username)
}
