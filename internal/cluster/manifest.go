package cluster

import (
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

// ManifestFile is the manifest's name at the root of a cluster directory.
const ManifestFile = "instamo.yaml"

// Manifest describes a launched cluster for tools that inspect it later.
type Manifest struct {
	Instance  string            `yaml:"instance"`
	Endpoint  string            `yaml:"endpoint"`
	State     string            `yaml:"state"`
	Version   string            `yaml:"version"`
	Runtime   string            `yaml:"runtime"`
	Ports     siteconf.Ports    `yaml:"ports"`
	StartedAt time.Time         `yaml:"started_at"`
	StoppedAt *time.Time        `yaml:"stopped_at,omitempty"`
	Processes []ManifestProcess `yaml:"processes"`
}

// ManifestProcess is one role process in a Manifest.
type ManifestProcess struct {
	Role     string `yaml:"role"`
	Pid      int    `yaml:"pid"`
	Stdout   string `yaml:"stdout"`
	Stderr   string `yaml:"stderr"`
	ExitCode *int   `yaml:"exit_code,omitempty"`
}

// ManifestPath returns the manifest location under root.
func ManifestPath(root string) string {
	return filepath.Join(root, ManifestFile)
}

// WriteManifest writes m to path atomically.
func WriteManifest(fs afero.Fs, path string, m *Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "failed to marshal manifest")
	}
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write manifest")
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return errors.Wrap(err, "failed to replace manifest")
	}
	return nil
}

// ReadManifest reads the manifest at path.
func ReadManifest(fs afero.Fs, path string) (*Manifest, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.NewConfigError("cannot read manifest", err).WithPath(path)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.NewConfigError("malformed manifest", err).WithPath(path)
	}
	return &m, nil
}
