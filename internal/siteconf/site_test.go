package siteconf

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/version"
)

var testPorts = Ports{Coordination: 2181, Master: 9999, TabletServer: 9997}

func TestBuildSite_Defaults(t *testing.T) {
	layout := NewLayout("/tmp/mac")
	site := BuildSite(layout, testPorts, version.MustParse("1.5.0"), nil)

	tests := []struct {
		key  string
		want string
	}{
		{KeyDFSURI, "file:///"},
		{KeyDFSDir, "/tmp/mac/accumulo"},
		{KeyZooKeeperHost, "localhost:2181"},
		{KeyMasterPort, "9999"},
		{KeyTServerPort, "9997"},
		{KeyDataCacheSize, "10M"},
		{KeyIndexCacheSize, "10M"},
		{KeyMemoryMapsMax, "50M"},
		{KeyWALogMaxSize, "100M"},
		{KeyNativeMapsEnabled, "false"},
		{KeyGeneralClasspaths, "/tmp/mac/conf,/tmp/mac/lib/[^.].*.jar"},
		{KeyMajorCompactDelay, "3"},
	}
	for _, tt := range tests {
		got, ok := site.Get(tt.key)
		if !ok {
			t.Errorf("missing default %s", tt.key)
			continue
		}
		if got != tt.want {
			t.Errorf("%s = %q, want %q", tt.key, got, tt.want)
		}
	}

	if _, ok := site.Get(KeyLoggerDir); ok {
		t.Errorf("%s should not be emitted for 1.5", KeyLoggerDir)
	}
}

func TestBuildSite_LegacyVersion(t *testing.T) {
	layout := NewLayout("/tmp/mac")
	site := BuildSite(layout, testPorts, version.MustParse("1.4.5"), nil)

	if got, _ := site.Get(KeyLoggerDir); got != "/tmp/mac/walogs" {
		t.Errorf("%s = %q, want %q", KeyLoggerDir, got, "/tmp/mac/walogs")
	}
	if _, ok := site.Get(KeyMajorCompactDelay); ok {
		t.Errorf("%s should not be emitted for 1.4", KeyMajorCompactDelay)
	}
}

func TestBuildSite_OverrideSuppressesDefault(t *testing.T) {
	overrides := map[string]string{
		KeyMemoryMapsMax:        "1G",
		"table.split.threshold": "1M",
		"a.first.key":           "x",
	}
	site := BuildSite(NewLayout("/r"), testPorts, version.Default, overrides)

	var count int
	for _, p := range site.Properties {
		if p.Name == KeyMemoryMapsMax {
			count++
			if p.Value != "1G" {
				t.Errorf("%s = %q, want override 1G", KeyMemoryMapsMax, p.Value)
			}
		}
	}
	if count != 1 {
		t.Errorf("%s emitted %d times, want 1", KeyMemoryMapsMax, count)
	}

	// Overrides follow the defaults, sorted by key.
	n := len(site.Properties)
	tail := site.Properties[n-3:]
	wantOrder := []string{"a.first.key", "table.split.threshold", KeyMemoryMapsMax}
	for i, p := range tail {
		if p.Name != wantOrder[i] {
			t.Errorf("override[%d] = %s, want %s", i, p.Name, wantOrder[i])
		}
	}
}

func TestBuildSite_Deterministic(t *testing.T) {
	overrides := map[string]string{"z": "1", "y": "2", "x": "3", "w": "4"}
	var first bytes.Buffer
	if err := BuildSite(NewLayout("/r"), testPorts, version.Default, overrides).Render(&first); err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i := 0; i < 10; i++ {
		var again bytes.Buffer
		if err := BuildSite(NewLayout("/r"), testPorts, version.Default, overrides).Render(&again); err != nil {
			t.Fatalf("Render: %v", err)
		}
		if again.String() != first.String() {
			t.Fatal("site rendering is not deterministic")
		}
	}
}

func TestSite_RenderParseRoundTrip(t *testing.T) {
	site := BuildSite(NewLayout("/r"), testPorts, version.Default, map[string]string{
		"custom.value": "<a&b>",
	})

	var buf bytes.Buffer
	if err := site.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "<?xml") || !strings.Contains(out, "<configuration>") {
		t.Errorf("unexpected site file:\n%s", out)
	}
	if strings.Contains(out, "<a&b>") {
		t.Error("values must be escaped")
	}

	parsed, err := ParseSite(&buf)
	if err != nil {
		t.Fatalf("ParseSite: %v", err)
	}
	if got, _ := parsed.Get("custom.value"); got != "<a&b>" {
		t.Errorf("custom.value = %q, want %q", got, "<a&b>")
	}
	if len(parsed.Properties) != len(site.Properties) {
		t.Errorf("parsed %d properties, want %d", len(parsed.Properties), len(site.Properties))
	}
}

func TestSite_GetLastWins(t *testing.T) {
	site := &Site{Properties: []Property{{"k", "1"}, {"k", "2"}}}
	if got, _ := site.Get("k"); got != "2" {
		t.Errorf("Get(k) = %q, want %q", got, "2")
	}
	if m := site.Map(); m["k"] != "2" {
		t.Errorf("Map()[k] = %q, want %q", m["k"], "2")
	}
}

func TestReadSite_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := ReadSite(fs, "/missing.xml")
	var cfgErr *errors.ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Path != "/missing.xml" {
		t.Errorf("ReadSite(missing) error = %v, want ConfigError with path", err)
	}

	_ = afero.WriteFile(fs, "/bad.xml", []byte("<configuration><property>"), 0o644)
	if _, err := ReadSite(fs, "/bad.xml"); !errors.As(err, &cfgErr) {
		t.Errorf("ReadSite(malformed) error = %v, want ConfigError", err)
	}
}
