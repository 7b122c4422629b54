package tablet

import (
	"testing"

	"github.com/Iron-Ham/instamo/internal/errors"
)

func fixedClock(ts int64) func() int64 {
	return func() int64 { return ts }
}

func TestTablet_ApplyAndScanOrder(t *testing.T) {
	tab := New()
	tab.Apply(1, []Mutation{
		*NewMutation("r2").Put("cf1", "cq1", "c"),
		*NewMutation("r1").Put("cf1", "cq2", "b").Put("cf1", "cq1", "a"),
		*NewMutation("r1").Put("cf0", "cq9", "z"),
	})

	got := tab.Scan("", "")
	want := []Key{
		{"r1", "cf0", "cq9"},
		{"r1", "cf1", "cq1"},
		{"r1", "cf1", "cq2"},
		{"r2", "cf1", "cq1"},
	}
	if len(got) != len(want) {
		t.Fatalf("Scan() returned %d entries, want %d: %v", len(got), len(want), got)
	}
	for i, k := range want {
		if got[i].Key != k {
			t.Errorf("entry %d key = %v, want %v", i, got[i].Key, k)
		}
	}
}

func TestTablet_NewestTimestampWins(t *testing.T) {
	tab := New()
	tab.Apply(10, []Mutation{*NewMutation("r").Put("f", "q", "new")})
	tab.Apply(5, []Mutation{*NewMutation("r").Put("f", "q", "old")})

	got := tab.Scan("", "")
	if len(got) != 1 || got[0].Value != "new" || got[0].Timestamp != 10 {
		t.Errorf("Scan() = %v, want single entry new@10", got)
	}

	tab.Apply(11, []Mutation{*NewMutation("r").Put("f", "q", "newer")})
	if got := tab.Scan("", ""); got[0].Value != "newer" {
		t.Errorf("value = %q, want %q", got[0].Value, "newer")
	}
}

func TestTablet_Delete(t *testing.T) {
	tab := New()
	tab.Apply(1, []Mutation{*NewMutation("r").Put("f", "a", "1").Put("f", "b", "2")})
	tab.Apply(2, []Mutation{*NewMutation("r").PutDelete("f", "a").PutDelete("f", "missing")})

	got := tab.Scan("", "")
	if len(got) != 1 || got[0].Qualifier != "b" {
		t.Errorf("Scan() after delete = %v, want only f:b", got)
	}
	if tab.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tab.Len())
	}
}

func TestTablet_ScanRange(t *testing.T) {
	tab := New()
	tab.Apply(1, []Mutation{
		*NewMutation("a").Put("f", "q", "1"),
		*NewMutation("b").Put("f", "q", "2"),
		*NewMutation("c").Put("f", "q", "3"),
	})

	tests := []struct {
		name       string
		start, end string
		rows       []string
	}{
		{"open", "", "", []string{"a", "b", "c"}},
		{"from b", "b", "", []string{"b", "c"}},
		{"before c", "", "c", []string{"a", "b"}},
		{"only b", "b", "c", []string{"b"}},
		{"empty", "x", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tab.Scan(tt.start, tt.end)
			if len(got) != len(tt.rows) {
				t.Fatalf("Scan(%q, %q) = %v, want rows %v", tt.start, tt.end, got, tt.rows)
			}
			for i, row := range tt.rows {
				if got[i].Row != row {
					t.Errorf("row %d = %q, want %q", i, got[i].Row, row)
				}
			}
		})
	}
}

func TestTablet_NextTimestampMonotonic(t *testing.T) {
	tab := New()
	tab.now = fixedClock(100)

	first := tab.NextTimestamp()
	second := tab.NextTimestamp()
	if first != 100 || second != 101 {
		t.Errorf("timestamps = %d, %d, want 100, 101", first, second)
	}

	tab.Apply(500, []Mutation{*NewMutation("r").Put("f", "q", "v")})
	if next := tab.NextTimestamp(); next != 501 {
		t.Errorf("NextTimestamp() after replayed ts 500 = %d, want 501", next)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		muts    []Mutation
		wantErr bool
	}{
		{"valid", []Mutation{*NewMutation("r").Put("f", "q", "v")}, false},
		{"none", nil, true},
		{"empty row", []Mutation{*NewMutation("").Put("f", "q", "v")}, true},
		{"no updates", []Mutation{*NewMutation("r")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.muts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrInvalidInput) {
				t.Errorf("Validate() error = %v, want ErrInvalidInput", err)
			}
		})
	}
}
