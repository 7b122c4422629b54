package siteconf

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/version"
)

// Site property keys the orchestrator computes defaults for.
const (
	KeyDFSURI            = "instance.dfs.uri"
	KeyDFSDir            = "instance.dfs.dir"
	KeyZooKeeperHost     = "instance.zookeeper.host"
	KeyMasterPort        = "master.port.client"
	KeyTServerPort       = "tserver.port.client"
	KeyDataCacheSize     = "tserver.cache.data.size"
	KeyIndexCacheSize    = "tserver.cache.index.size"
	KeyMemoryMapsMax     = "tserver.memory.maps.max"
	KeyWALogMaxSize      = "tserver.walog.max.size"
	KeyNativeMapsEnabled = "tserver.memory.maps.native.enabled"
	KeyGeneralClasspaths = "general.classpaths"
	KeyLoggerDir         = "logger.dir.walog"
	KeyMajorCompactDelay = "tserver.compaction.major.delay"
)

// Ports are the ports allocated for a cluster.
type Ports struct {
	Coordination int `yaml:"coordination"`
	Master       int `yaml:"master"`
	TabletServer int `yaml:"tserver"`
}

// Property is one name/value pair of the site file.
type Property struct {
	Name  string `xml:"name"`
	Value string `xml:"value"`
}

// Site is an ordered site configuration.
type Site struct {
	Properties []Property
}

type xmlConfiguration struct {
	XMLName    xml.Name   `xml:"configuration"`
	Properties []Property `xml:"property"`
}

// BuildSite merges computed defaults with overrides. An override always wins
// and suppresses the matching default.
func BuildSite(layout Layout, ports Ports, v version.Version, overrides map[string]string) *Site {
	defaults := []Property{
		{KeyDFSURI, "file:///"},
		{KeyDFSDir, layout.Data},
		{KeyZooKeeperHost, fmt.Sprintf("localhost:%d", ports.Coordination)},
		{KeyMasterPort, fmt.Sprint(ports.Master)},
		{KeyTServerPort, fmt.Sprint(ports.TabletServer)},
		{KeyDataCacheSize, "10M"},
		{KeyIndexCacheSize, "10M"},
		{KeyMemoryMapsMax, "50M"},
		{KeyWALogMaxSize, "100M"},
		{KeyNativeMapsEnabled, "false"},
		{KeyGeneralClasspaths, layout.Conf + "," + layout.Lib + "/[^.].*.jar"},
	}
	if v.RequiresLoggerService() {
		defaults = append(defaults, Property{KeyLoggerDir, layout.WALogs})
	}
	if v.HasMajorCompactionDelay() {
		defaults = append(defaults, Property{KeyMajorCompactDelay, "3"})
	}

	site := &Site{Properties: make([]Property, 0, len(defaults)+len(overrides))}
	for _, p := range defaults {
		if _, ok := overrides[p.Name]; ok {
			continue
		}
		site.Properties = append(site.Properties, p)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		site.Properties = append(site.Properties, Property{k, overrides[k]})
	}
	return site
}

// Get returns the value of key. When a key appears more than once the last
// occurrence wins, matching how the storage engine reads the file.
func (s *Site) Get(key string) (string, bool) {
	for i := len(s.Properties) - 1; i >= 0; i-- {
		if s.Properties[i].Name == key {
			return s.Properties[i].Value, true
		}
	}
	return "", false
}

// Map returns the properties as a map.
func (s *Site) Map() map[string]string {
	m := make(map[string]string, len(s.Properties))
	for _, p := range s.Properties {
		m[p.Name] = p.Value
	}
	return m
}

// Render writes the site file.
func (s *Site) Render(w io.Writer) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(xmlConfiguration{Properties: s.Properties}); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// ParseSite parses a site file.
func ParseSite(r io.Reader) (*Site, error) {
	var doc xmlConfiguration
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	return &Site{Properties: doc.Properties}, nil
}

// ReadSite reads and parses the site file at path.
func ReadSite(fs afero.Fs, path string) (*Site, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, errors.NewConfigError("cannot read site configuration", err).WithPath(path)
	}
	site, err := ParseSite(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewConfigError("malformed site configuration", err).WithPath(path)
	}
	return site, nil
}
