package cluster

import (
	"os"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/siteconf"
)

// WorkingDir is a validated, laid-out cluster directory.
type WorkingDir struct {
	siteconf.Layout
	fs afero.Fs
}

// NewWorkingDir validates root and creates the layout under it. root must
// not exist or must be an empty directory; nothing is created otherwise.
func NewWorkingDir(fs afero.Fs, root string) (*WorkingDir, error) {
	if err := validateRoot(fs, root); err != nil {
		return nil, err
	}

	wd := &WorkingDir{Layout: siteconf.NewLayout(root), fs: fs}
	dirs := append(wd.Dirs(), wd.CoordinationData())
	for _, dir := range dirs {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewConfigError("cannot create cluster directory", err).WithPath(dir)
		}
	}
	return wd, nil
}

func validateRoot(fs afero.Fs, root string) error {
	info, err := fs.Stat(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.NewConfigError("cannot inspect cluster directory", err).WithPath(root)
	}
	if !info.IsDir() {
		return errors.NewConfigError("must pass in a directory", errors.ErrNotDirectory).WithPath(root)
	}

	empty, err := afero.IsEmpty(fs, root)
	if err != nil {
		return errors.NewConfigError("cannot list cluster directory", err).WithPath(root)
	}
	if !empty {
		return errors.NewConfigError("cluster directory is not empty", errors.ErrDirectoryNotEmpty).WithPath(root)
	}
	return nil
}

// Fs returns the filesystem the directory lives on.
func (w *WorkingDir) Fs() afero.Fs {
	return w.fs
}
