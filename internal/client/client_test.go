package client

import (
	"context"
	"testing"
	"time"

	"github.com/Iron-Ham/instamo/internal/errors"
	"github.com/Iron-Ham/instamo/internal/testutil"
	"github.com/Iron-Ham/instamo/internal/version"
)

func connect(t *testing.T, e *testutil.Engine, password string) (*Connector, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	return Connect(ctx, e.Instance, e.Endpoint(), "root", password)
}

func TestConnector_CreateWriteScan(t *testing.T) {
	testutil.SkipIfShort(t)
	e := testutil.StartEngine(t, version.Default, "pass1234")

	conn, err := connect(t, e, "pass1234")
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if conn.InstanceID() == "" {
		t.Error("InstanceID() is empty")
	}

	ctx := context.Background()
	if _, err := conn.CreateTable(ctx, "foo"); err != nil {
		t.Fatalf("CreateTable() error: %v", err)
	}
	err = conn.Write(ctx, "foo", []Mutation{
		*NewMutation("r1").Put("cf1", "cq1", "v1"),
		*NewMutation("r1").Put("cf1", "cq2", "v3"),
		*NewMutation("r2").Put("cf1", "cq1", "v2"),
	})
	if err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	entries, err := conn.Scan(ctx, "foo")
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	want := []struct{ row, qual, value string }{
		{"r1", "cq1", "v1"},
		{"r1", "cq2", "v3"},
		{"r2", "cq1", "v2"},
	}
	if len(entries) != len(want) {
		t.Fatalf("Scan() returned %d entries, want %d: %v", len(entries), len(want), entries)
	}
	for i, w := range want {
		got := entries[i]
		if got.Row != w.row || got.Family != "cf1" || got.Qualifier != w.qual || got.Value != w.value {
			t.Errorf("entry %d = %+v, want %s cf1:%s=%s", i, got, w.row, w.qual, w.value)
		}
	}

	ranged, err := conn.ScanRange(ctx, "foo", "r2", "")
	if err != nil {
		t.Fatalf("ScanRange() error: %v", err)
	}
	if len(ranged) != 1 || ranged[0].Row != "r2" {
		t.Errorf("ScanRange(r2, \"\") = %v, want only r2", ranged)
	}

	// Deletes hide the cell.
	if err := conn.Write(ctx, "foo", []Mutation{*NewMutation("r2").PutDelete("cf1", "cq1")}); err != nil {
		t.Fatalf("Write(delete) error: %v", err)
	}
	entries, err = conn.Scan(ctx, "foo")
	if err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Scan() after delete = %v, want 2 entries", entries)
	}

	tables, err := conn.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables() error: %v", err)
	}
	if len(tables) != 1 || tables[0].Name != "foo" {
		t.Errorf("Tables() = %v, want [foo]", tables)
	}
}

func TestConnector_Errors(t *testing.T) {
	testutil.SkipIfShort(t)
	e := testutil.StartEngine(t, version.Default, "pass1234")

	t.Run("wrong password", func(t *testing.T) {
		_, err := connect(t, e, "nope")
		if !errors.Is(err, ErrAuthentication) {
			t.Errorf("Connect() error = %v, want ErrAuthentication", err)
		}
	})

	t.Run("unknown instance", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := Connect(ctx, "missing", e.Endpoint(), "root", "pass1234")
		if !errors.Is(err, ErrUnknownInstance) {
			t.Errorf("Connect() error = %v, want ErrUnknownInstance", err)
		}
	})

	conn, err := connect(t, e, "pass1234")
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	ctx := context.Background()

	t.Run("duplicate table", func(t *testing.T) {
		if _, err := conn.CreateTable(ctx, "dup"); err != nil {
			t.Fatalf("CreateTable() error: %v", err)
		}
		if _, err := conn.CreateTable(ctx, "dup"); !errors.Is(err, ErrTableExists) {
			t.Errorf("second CreateTable() error = %v, want ErrTableExists", err)
		}
	})

	t.Run("missing table", func(t *testing.T) {
		if _, err := conn.Scan(ctx, "missing"); !errors.Is(err, ErrTableNotFound) {
			t.Errorf("Scan() error = %v, want ErrTableNotFound", err)
		}
		err := conn.Write(ctx, "missing", []Mutation{*NewMutation("r").Put("f", "q", "v")})
		if !errors.Is(err, ErrTableNotFound) {
			t.Errorf("Write() error = %v, want ErrTableNotFound", err)
		}
	})

	t.Run("invalid mutation", func(t *testing.T) {
		if _, err := conn.CreateTable(ctx, "strict"); err != nil {
			t.Fatalf("CreateTable() error: %v", err)
		}
		if err := conn.Write(ctx, "strict", []Mutation{{Row: "r"}}); err == nil {
			t.Error("Write() of a mutation without updates should fail")
		}
	})
}
