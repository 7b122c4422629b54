package cluster

import (
	"os"
	"testing"

	"github.com/Iron-Ham/instamo/internal/engine"
	"github.com/Iron-Ham/instamo/internal/process"
)

const (
	roleEnv = "INSTAMO_TEST_ROLE"
	exitEnv = "INSTAMO_TEST_EXIT"
)

// TestMain runs the native engine roles when the test binary is
// re-executed as a role process.
func TestMain(m *testing.M) {
	if os.Getenv(roleEnv) == "1" {
		if os.Getenv(exitEnv) != "" {
			os.Exit(3)
		}
		os.Exit(engine.Main(os.Args[2:]))
	}
	os.Exit(m.Run())
}

// testRuntime runs roles in the test binary. Roles named in fail exit with
// status 3 at once.
type testRuntime struct {
	fail string
}

func (r testRuntime) Command(spec process.Spec) ([]string, []string) {
	native := process.NativeRuntime{
		Executable: os.Args[0],
		Prefix:     []string{"-test.run=^$"},
		Env:        []string{roleEnv + "=1"},
	}
	argv, env := native.Command(spec)
	if spec.Role.Tag == r.fail {
		env = append(env, exitEnv+"=1")
	}
	return argv, env
}
