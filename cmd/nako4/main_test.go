package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"google.golang.org/grpc"

	"github.com/nako4/nako4/manifest"
	"github.com/nako4/nako4/server"
	"github.com/nako4/nako4/store"
)

// run invokes the CLI in an empty project directory.
func run(t *testing.T, dir string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err = runCLI(append([]string{"-dir", dir}, args...), &out, &errOut)
	return out.String(), errOut.String(), err
}

func TestRunCode(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"3 + 5を表示", "8\n"},
		{"A=30; Aを表示", "30\n"},
		{"「こんにちは」を表示", "こんにちは\n"},
		{"1を表示\n2を表示", "1\n2\n"},
	}
	for _, tc := range tests {
		out, _, err := run(t, t.TempDir(), "-e", tc.code)
		if err != nil {
			t.Errorf("%q: %v", tc.code, err)
		}
		if out != tc.want {
			t.Errorf("%q: stdout = %q, want %q", tc.code, out, tc.want)
		}
	}
}

func TestRunRuntimeError(t *testing.T) {
	out, stderr, err := run(t, t.TempDir(), "-e", "1を表示\n1/0を表示")
	if !errors.Is(err, errRunFailed) {
		t.Fatalf("err = %v, want errRunFailed", err)
	}
	if out != "1\n" {
		t.Errorf("stdout = %q", out)
	}
	if !strings.Contains(stderr, "Error (after line 1): Division by zero") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunErrorOnFirstStatement(t *testing.T) {
	_, stderr, err := run(t, t.TempDir(), "-e", "1/0を表示")
	if !errors.Is(err, errRunFailed) {
		t.Fatalf("err = %v, want errRunFailed", err)
	}
	if stderr != "Error: Division by zero\n" {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestRunStrict(t *testing.T) {
	dir := t.TempDir()
	src := "1を表示\n表示"

	out, _, err := run(t, dir, "-e", src)
	if !errors.Is(err, errRunFailed) || out != "1\n" {
		t.Errorf("lenient: out = %q, err = %v", out, err)
	}

	out, stderr, err := run(t, dir, "-strict", "-e", src)
	if !errors.Is(err, errRunFailed) {
		t.Errorf("strict: err = %v, want errRunFailed", err)
	}
	if out != "" {
		t.Errorf("strict run produced output %q", out)
	}
	if stderr == "" {
		t.Error("strict failure printed nothing")
	}
}

func TestRunDebugWritesTrace(t *testing.T) {
	out, stderr, err := run(t, t.TempDir(), "-debug", "-e", "1を表示")
	if err != nil {
		t.Fatal(err)
	}
	if out != "1\n" {
		t.Errorf("stdout = %q", out)
	}
	if stderr == "" {
		t.Error("debug mode wrote no trace")
	}
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.nako")
	if err := os.WriteFile(path, []byte("名前は「くじら」。名前を表示"), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := run(t, dir, path)
	if err != nil {
		t.Fatal(err)
	}
	if out != "くじら\n" {
		t.Errorf("stdout = %q", out)
	}

	if _, _, err := run(t, dir, filepath.Join(dir, "missing.nako")); err == nil {
		t.Error("missing file: expected an error")
	}
	if _, _, err := run(t, dir, path, path); err == nil {
		t.Error("two files: expected an error")
	}
}

func TestInitAndEntry(t *testing.T) {
	dir := t.TempDir()

	out, _, err := run(t, dir, "-init", "demo")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, manifest.FileName) {
		t.Errorf("init output = %q", out)
	}
	m, err := manifest.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if m.Project.Name != "demo" {
		t.Errorf("project name = %q", m.Project.Name)
	}

	if _, _, err := run(t, dir, "-init", "demo"); err == nil {
		t.Error("second init: expected an error")
	}

	if err := os.WriteFile(m.EntryPath(), []byte("7を表示"), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err = run(t, dir)
	if err != nil {
		t.Fatal(err)
	}
	if out != "7\n" {
		t.Errorf("entry run stdout = %q", out)
	}
}

func TestRunRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	if _, _, err := run(t, dir, "-history", "-e", "2を表示"); err != nil {
		t.Fatal(err)
	}

	h, err := store.Open(filepath.Join(dir, manifest.DefaultHistoryPath))
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	runs, err := h.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Fatalf("recorded %d runs, want 1", len(runs))
	}
	if r := runs[0]; r.Origin != store.OriginCLI || r.Source != "2を表示" || r.Output != "2\n" {
		t.Errorf("run = %+v", r)
	}
}

func TestRunRemote(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(server.WithAddrs("", ""))
	defer srv.Stop()
	gs := grpc.NewServer()
	srv.RegisterGRPC(gs)
	go gs.Serve(lis)
	defer gs.Stop()

	out, _, err := run(t, t.TempDir(), "-remote", lis.Addr().String(), "-e", "6 * 7を表示")
	if err != nil {
		t.Fatal(err)
	}
	if out != "42\n" {
		t.Errorf("stdout = %q", out)
	}

	_, stderr, err := run(t, t.TempDir(), "-remote", lis.Addr().String(), "-e", "1/0を表示")
	if !errors.Is(err, errRunFailed) || !strings.Contains(stderr, "Division by zero") {
		t.Errorf("remote fault: err = %v, stderr = %q", err, stderr)
	}
}

func TestFlagErrors(t *testing.T) {
	dir := t.TempDir()

	if _, stderr, err := run(t, dir, "-h"); !errors.Is(err, flag.ErrHelp) || !strings.Contains(stderr, "Usage: nako4") {
		t.Errorf("-h: err = %v, stderr = %q", err, stderr)
	}
	if _, _, err := run(t, dir, "-no-such-flag"); err == nil {
		t.Error("unknown flag: expected an error")
	}
}

func TestVerbosityFlagRepeats(t *testing.T) {
	f, _, err := parseFlags([]string{"-v", "-v", "-e", "1"}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if f.verbose != 2 {
		t.Errorf("verbose = %d, want 2", f.verbose)
	}
}
