package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/instamo/internal/cluster"
	"github.com/Iron-Ham/instamo/internal/siteconf"
	"github.com/Iron-Ham/instamo/internal/testutil"
	"github.com/Iron-Ham/instamo/internal/version"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// isolateConfig keeps the user's config file and environment out of a test
func isolateConfig(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "instamo" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "instamo")
	}

	cmdMap := make(map[string]*cobra.Command)
	for _, c := range rootCmd.Commands() {
		cmdMap[c.Name()] = c
	}
	for _, expected := range []string{"start", "app", "status", "logs", "config", "role"} {
		if cmdMap[expected] == nil {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
	if role := cmdMap["role"]; role != nil && (!role.Hidden || !role.DisableFlagParsing) {
		t.Error("role command should be hidden and pass its flags through")
	}
}

func TestConfigShow(t *testing.T) {
	isolateConfig(t)
	t.Setenv("INSTAMO_CLUSTER_TABLET_SERVERS", "3")

	output, err := executeCommand(rootCmd, "config")
	if err != nil {
		t.Fatalf("config failed: %v\n%s", err, output)
	}
	for _, want := range []string{"none - using defaults", "instance_name: test", "site: {}"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
	// Environment values are strings, which YAML may quote.
	if !regexp.MustCompile(`tablet_servers: "?3"?`).MatchString(output) {
		t.Errorf("environment override not shown:\n%s", output)
	}
}

func TestConfigShow_Invalid(t *testing.T) {
	isolateConfig(t)
	t.Setenv("INSTAMO_RUNTIME_KIND", "wasm")

	if _, err := executeCommand(rootCmd, "config", "show"); err == nil {
		t.Error("config show should fail for an invalid runtime kind")
	}
}

func TestConfigPath(t *testing.T) {
	isolateConfig(t)

	output, err := executeCommand(rootCmd, "config", "path")
	if err != nil {
		t.Fatalf("config path failed: %v", err)
	}
	if !strings.Contains(output, "INSTAMO_") || !strings.Contains(output, "config.yaml") {
		t.Errorf("unexpected output:\n%s", output)
	}
}

func TestStatus(t *testing.T) {
	isolateConfig(t)
	dir := t.TempDir()
	code := 0
	m := &cluster.Manifest{
		Instance:  "test",
		Endpoint:  "localhost:1234",
		State:     cluster.StateRunning.String(),
		Version:   "1.5.0",
		Runtime:   "native",
		Ports:     siteconf.Ports{Coordination: 1234, Master: 1235, TabletServer: 1236},
		StartedAt: time.Now(),
		Processes: []cluster.ManifestProcess{
			{Role: "coordination", Pid: 100, Stdout: "/x/logs/coordination_100.out", Stderr: "/x/logs/coordination_100.err"},
			{Role: "initializer", Pid: 101, Stdout: "/x/logs/initializer_101.out", Stderr: "/x/logs/initializer_101.err", ExitCode: &code},
		},
	}
	if err := cluster.WriteManifest(afero.NewOsFs(), cluster.ManifestPath(dir), m); err != nil {
		t.Fatal(err)
	}

	output, err := executeCommand(rootCmd, "status", dir)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	for _, want := range []string{"localhost:1234", "running", "coordination", "initializer_101.out", "exited 0", "master 1235"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}

	if _, err := executeCommand(rootCmd, "status", t.TempDir()); err == nil {
		t.Error("status of a directory without a manifest should fail")
	}
}

// writeClusterLogs lays out logs the way a cluster leaves them
func writeClusterLogs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	logDir := siteconf.NewLayout(dir).Logs
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "instamo.log"): `{"time":"2024-05-01T12:00:00Z","level":"INFO","msg":"cluster running","cluster":"test"}` + "\n",
		filepath.Join(logDir, "tserver_12.err"): `{"level":"info","ts":1714564800.5,"caller":"engine/tserver.go:1","msg":"tablet loaded","role":"tserver","table":"foo"}` + "\n" +
			`{"level":"warn","ts":1714564801,"msg":"deregister failed","role":"tserver"}` + "\n",
		filepath.Join(logDir, "master_11.out"): "plain text line\n",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func resetLogsFlags() {
	logsRole, logsTail, logsFollow, logsLevel, logsSince, logsGrep = "", 50, false, "", "", ""
}

func TestLogs(t *testing.T) {
	isolateConfig(t)
	dir := writeClusterLogs(t)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "all logs",
			args: []string{"logs", dir},
			want: []string{"==> instamo <==", "cluster running", "==> tserver_12.err <==", "tablet loaded", "table=", "plain text line"},
		},
		{
			name:    "one role",
			args:    []string{"logs", dir, "--role", "tserver"},
			want:    []string{"tablet loaded"},
			notWant: []string{"cluster running", "plain text line", "caller="},
		},
		{
			name:    "minimum level",
			args:    []string{"logs", dir, "--role", "tserver", "--level", "warn"},
			want:    []string{"deregister failed"},
			notWant: []string{"tablet loaded"},
		},
		{
			name:    "grep",
			args:    []string{"logs", dir, "--grep", "plain"},
			want:    []string{"plain text line"},
			notWant: []string{"tablet loaded"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetLogsFlags()
			t.Cleanup(resetLogsFlags)

			output, err := executeCommand(rootCmd, tt.args...)
			if err != nil {
				t.Fatalf("logs failed: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("output missing %q:\n%s", want, output)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(output, notWant) {
					t.Errorf("output should not contain %q:\n%s", notWant, output)
				}
			}
		})
	}
}

func TestLogEntry_Unmarshal(t *testing.T) {
	f := logFilter{minLevel: -1}

	out, ok := f.render(`{"level":"info","ts":1714564800.25,"msg":"hello","pid":7}`)
	if !ok || !strings.Contains(out, "hello") || !strings.Contains(out, "pid=") || !strings.Contains(out, "[INFO]") {
		t.Errorf("zap line rendered as %q", out)
	}

	var e logEntry
	if err := e.UnmarshalJSON([]byte(`{"level":"info","ts":1714564800.25,"msg":"hello"}`)); err != nil {
		t.Fatal(err)
	}
	if want := time.Unix(1714564800, 250_000_000); !e.Time.Equal(want) {
		t.Errorf("Time = %v, want %v", e.Time, want)
	}

	e = logEntry{}
	if err := e.UnmarshalJSON([]byte(`{"time":"2024-05-01T12:00:00Z","level":"WARN","msg":"m","cluster":"x"}`)); err != nil {
		t.Fatal(err)
	}
	if e.Time.IsZero() || e.Level != "WARN" || e.Extra["cluster"] != "x" {
		t.Errorf("entry = %+v", e)
	}
}

func TestTailer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tserver_1.out")
	var buf bytes.Buffer
	tl := newTailer(&buf, logFilter{minLevel: -1})

	if err := os.WriteFile(path, []byte("first\nsec"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := tl.read("tserver_1.out", path); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "first") || strings.Contains(buf.String(), "sec") {
		t.Errorf("after partial write: %q", buf.String())
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = f.WriteString("ond\n")
	_ = f.Close()

	buf.Reset()
	if err := tl.read("tserver_1.out", path); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "second") || strings.Contains(buf.String(), "first") {
		t.Errorf("after completing the line: %q", buf.String())
	}
}

func TestFollowLabel(t *testing.T) {
	dir := "/mini"
	logDir := siteconf.NewLayout(dir).Logs

	tests := []struct {
		path, role, label string
		ok                bool
	}{
		{filepath.Join(dir, "instamo.log"), "", "instamo", true},
		{filepath.Join(dir, "instamo.log"), "master", "", false},
		{filepath.Join(logDir, "master_3.out"), "", "master_3.out", true},
		{filepath.Join(logDir, "master_3.out"), "tserver", "", false},
		{filepath.Join(logDir, "notes.txt"), "", "", false},
		{filepath.Join(dir, "conf", "zoo.cfg"), "", "", false},
	}
	for _, tt := range tests {
		label, ok := followLabel(dir, tt.path, tt.role)
		if ok != tt.ok || label != tt.label {
			t.Errorf("followLabel(%s, %q) = %q, %v; want %q, %v", tt.path, tt.role, label, ok, tt.label, tt.ok)
		}
	}
}

func TestReadPassword(t *testing.T) {
	var prompt bytes.Buffer

	got, err := readPassword(strings.NewReader("s3cret\r\n"), &prompt)
	if err != nil || got != "s3cret" {
		t.Errorf("readPassword() = %q, %v", got, err)
	}
	if _, err := readPassword(strings.NewReader("\n"), &prompt); err == nil {
		t.Error("readPassword() should reject an empty password")
	}
	if _, err := readPassword(strings.NewReader(""), &prompt); err == nil {
		t.Error("readPassword() should fail at end of input")
	}
}

func TestApp(t *testing.T) {
	testutil.SkipIfShort(t)
	isolateConfig(t)
	e := testutil.StartEngine(t, version.Default, "pass1234")

	output, err := executeCommand(rootCmd, "app", "--endpoint", e.Endpoint(), "--password", "pass1234")
	if err != nil {
		t.Fatalf("app failed: %v\n%s", err, output)
	}
	for _, want := range []string{"r1 cf1:cq1", "\tv1", "r1 cf1:cq2", "\tv3"} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}
