package cluster

import (
	"testing"

	"github.com/Iron-Ham/instamo/internal/version"
)

func TestServiceRoles(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		tservers int
		want     []string
	}{
		{"current", "1.5.0", 1, []string{"master", "tserver"}},
		{"several tablet servers", "1.5.0", 3, []string{"master", "tserver", "tserver", "tserver"}},
		{"logger service", "1.4.5", 1, []string{"master", "tserver", "logger"}},
		{"newer", "2.0", 2, []string{"master", "tserver", "tserver"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roles := ServiceRoles(version.MustParse(tt.version), tt.tservers)
			if len(roles) != len(tt.want) {
				t.Fatalf("ServiceRoles() = %v, want %v", roles, tt.want)
			}
			for i, r := range roles {
				if r.Tag != tt.want[i] {
					t.Errorf("role %d = %s, want %s", i, r.Tag, tt.want[i])
				}
			}
		})
	}
}

func TestAllRoles(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range AllRoles() {
		if r.Tag == "" || r.JVMClass == "" || r.NativeEntry == "" {
			t.Errorf("incomplete role %+v", r)
		}
		if seen[r.Tag] {
			t.Errorf("duplicate role %s", r.Tag)
		}
		seen[r.Tag] = true
	}
	if !RoleInitializer.ReadsStdin {
		t.Error("initializer must read stdin")
	}
}
