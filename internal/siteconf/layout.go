package siteconf

import "path/filepath"

// File names inside the configuration directory.
const (
	SiteFile         = "accumulo-site.xml"
	CoordinationFile = "zoo.cfg"
)

// Layout names the directories of a cluster working directory.
type Layout struct {
	Root   string
	Lib    string
	Conf   string
	Data   string
	Logs   string
	WALogs string
}

// NewLayout derives the standard layout under root.
func NewLayout(root string) Layout {
	return Layout{
		Root:   root,
		Lib:    filepath.Join(root, "lib"),
		Conf:   filepath.Join(root, "conf"),
		Data:   filepath.Join(root, "accumulo"),
		Logs:   filepath.Join(root, "logs"),
		WALogs: filepath.Join(root, "walogs"),
	}
}

// Dirs returns the five top-level subdirectories in creation order.
func (l Layout) Dirs() []string {
	return []string{l.Lib, l.Conf, l.Data, l.Logs, l.WALogs}
}

// CoordinationData is the coordination service's data directory.
func (l Layout) CoordinationData() string {
	return filepath.Join(l.Data, "zookeeper")
}

// SitePath is the path of the site file.
func (l Layout) SitePath() string {
	return filepath.Join(l.Conf, SiteFile)
}

// CoordinationPath is the path of zoo.cfg.
func (l Layout) CoordinationPath() string {
	return filepath.Join(l.Conf, CoordinationFile)
}
