package version

import (
	"testing"

	"github.com/Iron-Ham/instamo/internal/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Version
		wantErr bool
	}{
		{"1.5", Version{1, 5, 0}, false},
		{"1.4.2", Version{1, 4, 2}, false},
		{" 2.0.1 ", Version{2, 0, 1}, false},
		{"1", Version{}, true},
		{"1.2.3.4", Version{}, true},
		{"1.x", Version{}, true},
		{"1.-1", Version{}, true},
		{"", Version{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrInvalidInput) {
					t.Errorf("Parse(%q) error = %v, want ErrInvalidInput", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestVersionGates(t *testing.T) {
	tests := []struct {
		version    string
		logger     bool
		compaction bool
	}{
		{"1.3.6", true, false},
		{"1.4.4", true, false},
		{"1.5.0", false, true},
		{"1.6", false, true},
		{"2.1.0", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			v := MustParse(tt.version)
			if got := v.RequiresLoggerService(); got != tt.logger {
				t.Errorf("RequiresLoggerService() = %v, want %v", got, tt.logger)
			}
			if got := v.HasMajorCompactionDelay(); got != tt.compaction {
				t.Errorf("HasMajorCompactionDelay() = %v, want %v", got, tt.compaction)
			}
		})
	}
}

func TestCompare(t *testing.T) {
	a := MustParse("1.4.9")
	b := MustParse("1.5.0")
	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Errorf("Compare ordering broken for %v and %v", a, b)
	}
	if Default.String() != "1.5.0" {
		t.Errorf("Default.String() = %q, want %q", Default.String(), "1.5.0")
	}
}

func TestMustParsePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustParse on garbage should panic")
		}
	}()
	MustParse("garbage")
}
