package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadValidManifest(t *testing.T) {
	path := writeManifest(t, `{
		"volumePath": "/srv/microvms",
		"vms": {
			"vm1": {
				"repo": "ssh://example/repo",
				"passFile": "/var/keys/pass",
				"sshKeyPath": "/var/keys/key"
			}
		}
	}`)

	m, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/microvms", m.VolumePath)
	require.Contains(t, m.VMs, "vm1")
	assert.Equal(t, "ssh://example/repo", m.VMs["vm1"].Repo)
}

func TestLoadRejectsRelativePassFile(t *testing.T) {
	path := writeManifest(t, `{
		"volumePath": "/srv/microvms",
		"vms": {"vm1": {"repo": "r", "passFile": "relative", "sshKeyPath": "/k"}}
	}`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestPathsForDerivesScratchNames(t *testing.T) {
	paths := PathsFor("/srv/microvms", "vm1")
	assert.Equal(t, "/srv/microvms/vm1", paths.Target)
	assert.Equal(t, "/srv/microvms/.vm1.restore-new", paths.Stage)
	assert.Equal(t, "/srv/microvms/.vm1.restore-old", paths.Old)
}

func TestRequireUnknownVM(t *testing.T) {
	m := &Manifest{VolumePath: "/srv", VMs: map[string]VMConfig{}}
	_, err := Require(m, "ghost")
	assert.Error(t, err)
}
