package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sub", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndGet(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	r, err := s.Record(ctx, Run{
		Origin:   OriginCLI,
		Source:   "3+5を表示",
		Output:   "8\n",
		Duration: 3 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if r.ID == "" {
		t.Fatal("Record did not assign an ID")
	}
	if r.Started.IsZero() {
		t.Error("Record did not set Started")
	}

	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Source != "3+5を表示" || got.Output != "8\n" || got.Origin != OriginCLI {
		t.Errorf("Get = %+v", got)
	}
	if got.Duration != 3*time.Millisecond {
		t.Errorf("Duration = %v", got.Duration)
	}
	if !got.Started.Equal(r.Started) {
		t.Errorf("Started = %v, want %v", got.Started, r.Started)
	}
	if got.Failed() {
		t.Error("Failed = true for a successful run")
	}
}

func TestGetNotFound(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)
	for i, src := range []string{"1を表示", "2を表示", "3を表示"} {
		if _, err := s.Record(ctx, Run{Origin: OriginREPL, Source: src, Started: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Recent returned %d runs, want 2", len(runs))
	}
	if runs[0].Source != "3を表示" || runs[1].Source != "2を表示" {
		t.Errorf("Recent order = %q, %q", runs[0].Source, runs[1].Source)
	}
}

func TestInputsOldestFirstByOrigin(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Unix(1700000000, 0)
	records := []Run{
		{Origin: OriginREPL, Source: "a"},
		{Origin: OriginServer, Source: "x"},
		{Origin: OriginREPL, Source: "b"},
		{Origin: OriginREPL, Source: "c"},
	}
	for i, r := range records {
		r.Started = base.Add(time.Duration(i) * time.Second)
		if _, err := s.Record(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	inputs, err := s.Inputs(ctx, OriginREPL, 2)
	if err != nil {
		t.Fatalf("Inputs: %v", err)
	}
	if len(inputs) != 2 || inputs[0] != "b" || inputs[1] != "c" {
		t.Errorf("Inputs = %v, want [b c]", inputs)
	}
}

func TestClear(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	if _, err := s.Record(ctx, Run{Origin: OriginCLI, Source: "x", Error: "Division by zero"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	runs, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("runs after Clear = %d", len(runs))
	}
}

func TestReopenKeepsRuns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	r, err := s.Record(context.Background(), Run{Origin: OriginCLI, Source: "keep"})
	if err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	got, err := s.Get(context.Background(), r.ID)
	if err != nil || got.Source != "keep" {
		t.Errorf("Get after reopen = %+v, %v", got, err)
	}
}

func TestOpenMemory(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if _, err := s.Record(context.Background(), Run{Origin: OriginServer, Source: "m"}); err != nil {
		t.Errorf("Record: %v", err)
	}
}
