package siteconf

import (
	"bytes"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/version"
)

// Write renders both configuration files into layout.Conf. The
// configuration directory must already exist.
func Write(fs afero.Fs, layout Layout, overrides map[string]string, ports Ports, v version.Version) (*Site, *Coordination, error) {
	site := BuildSite(layout, ports, v, overrides)
	coord := NewCoordination(ports.Coordination, layout.CoordinationData())

	var buf bytes.Buffer
	if err := site.Render(&buf); err != nil {
		return nil, nil, errors.NewConfigError("cannot render site configuration", err).WithPath(layout.SitePath())
	}
	if err := afero.WriteFile(fs, layout.SitePath(), buf.Bytes(), 0o644); err != nil {
		return nil, nil, errors.NewConfigError("cannot write site configuration", err).WithPath(layout.SitePath())
	}

	buf.Reset()
	if err := coord.Render(&buf); err != nil {
		return nil, nil, errors.NewConfigError("cannot render coordination configuration", err).WithPath(layout.CoordinationPath())
	}
	if err := afero.WriteFile(fs, layout.CoordinationPath(), buf.Bytes(), 0o644); err != nil {
		return nil, nil, errors.NewConfigError("cannot write coordination configuration", err).WithPath(layout.CoordinationPath())
	}

	return site, coord, nil
}
