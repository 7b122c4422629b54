package process

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/instamo/internal/siteconf"
)

// Environment variables exported to every role process.
const (
	EnvHome   = "ACCUMULO_HOME"
	EnvLogDir = "ACCUMULO_LOG_DIR"
	// EnvPath is the inherited library path extended by NativeRuntime.
	EnvPath = "INSTAMO_PATH"
)

// Role identifies a launchable program.
type Role struct {
	// Tag names the role in log file names and metrics.
	Tag string
	// JVMClass is the fully-qualified Java entry point.
	JVMClass string
	// NativeEntry is the role name understood by the native engine.
	NativeEntry string
	// ReadsStdin opens a stdin pipe for the process.
	ReadsStdin bool
}

// Spec is everything a Runtime needs to build a command.
type Spec struct {
	Role   Role
	Args   []string
	Layout siteconf.Layout
}

// Runtime builds the argument vector and environment for a role.
type Runtime interface {
	Command(spec Spec) (argv []string, env []string)
}

// baseEnv returns the inherited environment plus the installation and log
// directory variables. Later entries win, so these override inherited values.
func baseEnv(layout siteconf.Layout) []string {
	env := os.Environ()
	return append(env,
		EnvHome+"="+layout.Root,
		EnvLogDir+"="+layout.Logs,
	)
}

func joinPath(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, string(os.PathListSeparator))
}

// JVMRuntime launches Java entry points.
type JVMRuntime struct {
	// JavaHome is the JVM installation; java is resolved from its bin directory.
	JavaHome string
	// Classpath holds extra classpath entries placed after the cluster's own.
	Classpath []string
	// MaxHeap is the -Xmx value (default "128m").
	MaxHeap string
	// InheritedClasspath is appended last. Defaults to $CLASSPATH when empty.
	InheritedClasspath string
}

// Command implements Runtime.
func (r JVMRuntime) Command(spec Spec) ([]string, []string) {
	java := "java"
	if r.JavaHome != "" {
		java = filepath.Join(r.JavaHome, "bin", "java")
	}
	heap := r.MaxHeap
	if heap == "" {
		heap = "128m"
	}
	inherited := r.InheritedClasspath
	if inherited == "" {
		inherited = os.Getenv("CLASSPATH")
	}

	parts := append([]string{spec.Layout.Conf, filepath.Join(spec.Layout.Lib, "*")}, r.Classpath...)
	parts = append(parts, inherited)

	argv := []string{
		java,
		"-cp", joinPath(parts...),
		"-Xmx" + heap,
		"-Xms64m",
		"-XX:+UseSerialGC",
		"-Djava.net.preferIPv4Stack=true",
		spec.Role.JVMClass,
	}
	argv = append(argv, spec.Args...)
	return argv, baseEnv(spec.Layout)
}

// NativeRuntime re-executes a binary that implements the roles in Go.
type NativeRuntime struct {
	// Executable is the binary to run. Defaults to the running executable.
	Executable string
	// Prefix precedes the role arguments, for example "role" for the
	// instamo CLI.
	Prefix []string
	// Env holds extra environment entries.
	Env []string
	// MemLimit is exported as GOMEMLIMIT (default "128MiB").
	MemLimit string
}

// Command implements Runtime.
func (r NativeRuntime) Command(spec Spec) ([]string, []string) {
	exe := r.Executable
	if exe == "" {
		if self, err := os.Executable(); err == nil {
			exe = self
		} else {
			exe = os.Args[0]
		}
	}
	limit := r.MemLimit
	if limit == "" {
		limit = "128MiB"
	}

	argv := append([]string{exe}, r.Prefix...)
	argv = append(argv,
		"--path", joinPath(spec.Layout.Conf, spec.Layout.Lib, os.Getenv(EnvPath)),
		spec.Role.NativeEntry,
	)
	argv = append(argv, spec.Args...)

	env := baseEnv(spec.Layout)
	env = append(env, "GOMEMLIMIT="+limit, "GOGC=50")
	env = append(env, r.Env...)
	return argv, env
}
