// Package manifest loads and validates the process-wide, read-only backup
// manifest: a volume path and a map of VM name to per-VM backup config.
// Manifest loading is explicitly named in spec.md as an external
// collaborator ("out of scope" for the specified core) — this package is a
// direct, field-for-field translation of the original's load_manifest,
// VmBackupConfig, Manifest, vm_paths and require_vm, kept minimal on
// purpose.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/homelab-ops/microvm-backup/internal/clierr"
)

// DefaultPath is used when neither --manifest nor the environment variable
// override is set.
const DefaultPath = "/etc/microvm-backup/manifest.json"

// EnvOverride is the environment variable that overrides DefaultPath.
const EnvOverride = "MICROVM_BACKUP_MANIFEST"

// VMConfig is the per-VM backup configuration: where its repository lives,
// and the credentials needed to reach it.
type VMConfig struct {
	Repo       string
	PassFile   string
	SSHKeyPath string
}

// Manifest is process-wide, read-only configuration loaded once at startup.
type Manifest struct {
	VolumePath string
	VMs        map[string]VMConfig
}

// Paths are the three subvolume locations derived from a volume path and VM
// name. Only Target exists in steady state; Stage and Old exist only during
// a restore transaction.
type Paths struct {
	Target string
	Stage  string
	Old    string
}

// PathsFor derives the three VM subvolume paths deterministically.
func PathsFor(volumePath, vm string) Paths {
	return Paths{
		Target: filepath.Join(volumePath, vm),
		Stage:  filepath.Join(volumePath, fmt.Sprintf(".%s.restore-new", vm)),
		Old:    filepath.Join(volumePath, fmt.Sprintf(".%s.restore-old", vm)),
	}
}

// Require looks up a VM's backup config, failing with a CliError if unknown.
func Require(m *Manifest, vm string) (VMConfig, error) {
	cfg, ok := m.VMs[vm]
	if !ok {
		return VMConfig{}, clierr.New("unknown VM: %s", vm)
	}
	return cfg, nil
}

// Names returns the manifest's VM names in no particular order; callers
// that need a stable order sort it themselves (see internal/cmd's
// interactive `list` path).
func Names(m *Manifest) []string {
	names := make([]string, 0, len(m.VMs))
	for name := range m.VMs {
		names = append(names, name)
	}
	return names
}

type rawManifest struct {
	VolumePath any            `json:"volumePath"`
	VMs        map[string]any `json:"vms"`
}

type rawVMConfig struct {
	Repo       any `json:"repo"`
	PassFile   any `json:"passFile"`
	SSHKeyPath any `json:"sshKeyPath"`
}

// Load reads the manifest from manifestOverride, falling back to the
// MICROVM_BACKUP_MANIFEST environment variable, falling back to
// DefaultPath.
func Load(manifestOverride string) (*Manifest, error) {
	path := manifestOverride
	if path == "" {
		path = os.Getenv(EnvOverride)
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, clierr.New("manifest file does not exist: %s", path)
		}
		return nil, clierr.New("reading manifest file %s: %v", path, err)
	}

	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, clierr.New("manifest file is not valid JSON: %s: %v", path, err)
	}

	volumePath, err := readAbsolutePathField(raw.VolumePath, "manifest.volumePath")
	if err != nil {
		return nil, err
	}
	if raw.VMs == nil {
		return nil, clierr.New("manifest.vms must be an object keyed by vm name")
	}

	vms := make(map[string]VMConfig, len(raw.VMs))
	for name, rawVM := range raw.VMs {
		if name == "" {
			return nil, clierr.New("manifest.vms keys must be non-empty strings")
		}
		vmObj, ok := asObject(rawVM)
		if !ok {
			return nil, clierr.New("manifest.vms.%s must be an object", name)
		}
		var rv rawVMConfig
		if err := remarshal(vmObj, &rv); err != nil {
			return nil, clierr.New("manifest.vms.%s is malformed: %v", name, err)
		}

		repo, err := readStringField(rv.Repo, fmt.Sprintf("manifest.vms.%s.repo", name))
		if err != nil {
			return nil, err
		}
		passFile, err := readAbsolutePathField(rv.PassFile, fmt.Sprintf("manifest.vms.%s.passFile", name))
		if err != nil {
			return nil, err
		}
		sshKeyPath, err := readAbsolutePathField(rv.SSHKeyPath, fmt.Sprintf("manifest.vms.%s.sshKeyPath", name))
		if err != nil {
			return nil, err
		}
		vms[name] = VMConfig{Repo: repo, PassFile: passFile, SSHKeyPath: sshKeyPath}
	}

	return &Manifest{VolumePath: volumePath, VMs: vms}, nil
}

func asObject(raw any) (map[string]any, bool) {
	obj, ok := raw.(map[string]any)
	return obj, ok
}

func remarshal(obj map[string]any, out any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func readStringField(raw any, fieldPath string) (string, error) {
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", clierr.New("%s must be a non-empty string", fieldPath)
	}
	return s, nil
}

func readAbsolutePathField(raw any, fieldPath string) (string, error) {
	s, err := readStringField(raw, fieldPath)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(s) {
		return "", clierr.New("%s must be an absolute path", fieldPath)
	}
	return s, nil
}
