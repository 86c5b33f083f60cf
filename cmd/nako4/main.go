// Nako4 CLI - runs Nako programs, the REPL, the evaluation server and the
// language server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/tliron/commonlog"

	"github.com/nako4/nako4/compiler"
	"github.com/nako4/nako4/manifest"
	"github.com/nako4/nako4/server"
	"github.com/nako4/nako4/store"
	"github.com/nako4/nako4/vm"

	_ "github.com/tliron/commonlog/simple"
)

var log = commonlog.GetLogger("nako4.cli")

// errRunFailed reports that the program itself failed; its message has
// already been written to stderr.
var errRunFailed = errors.New("run failed")

func main() {
	err := runCLI(os.Args[1:], os.Stdout, os.Stderr)
	switch {
	case err == nil, errors.Is(err, flag.ErrHelp):
		return
	case errors.Is(err, errRunFailed):
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(1)
}

// cliFlags holds the parsed command line.
type cliFlags struct {
	code        string
	dir         string
	debug       bool
	strict      bool
	interactive bool
	serve       bool
	lsp         bool
	remote      string
	httpAddr    string
	grpcAddr    string
	history     bool
	noHistory   bool
	initName    string
	verbose     int
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, []string, error) {
	f := &cliFlags{}
	fs := flag.NewFlagSet("nako4", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&f.code, "e", "", "Run the given code instead of a file")
	fs.StringVar(&f.dir, "dir", ".", "Project directory (searched upwards for nako.toml)")
	fs.BoolVar(&f.debug, "debug", false, "Dump tokens, AST, bytecode and VM trace to stderr")
	fs.BoolVar(&f.strict, "strict", false, "Refuse to run programs with compile errors")
	fs.BoolVar(&f.interactive, "i", false, "Start interactive REPL")
	fs.BoolVar(&f.serve, "serve", false, "Start the evaluation server (Connect HTTP + gRPC)")
	fs.BoolVar(&f.lsp, "lsp", false, "Start the language server on stdio")
	fs.StringVar(&f.remote, "remote", "", "Evaluate on a remote server at this gRPC address")
	fs.StringVar(&f.httpAddr, "http", "", "Connect listen address (overrides nako.toml)")
	fs.StringVar(&f.grpcAddr, "grpc", "", "gRPC listen address (overrides nako.toml)")
	fs.BoolVar(&f.history, "history", false, "Record runs in the history database")
	fs.BoolVar(&f.noHistory, "no-history", false, "Do not record runs")
	fs.StringVar(&f.initName, "init", "", "Create nako.toml for a project with this name and exit")
	fs.BoolFunc("v", "Raise log verbosity (repeatable, e.g. -v -v)", func(string) error {
		f.verbose++
		return nil
	})

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: nako4 [options] [file.nako]\n\n")
		fmt.Fprintf(stderr, "Runs a Nako program. Without a file or -e, runs the entry file named in\n")
		fmt.Fprintf(stderr, "nako.toml, or starts the REPL when there is no project.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  nako4 -e '3 + 5を表示'          # Run code\n")
		fmt.Fprintf(stderr, "  nako4 -debug hello.nako         # Run a file with the debug dump\n")
		fmt.Fprintf(stderr, "  nako4 -i                        # Start REPL\n")
		fmt.Fprintf(stderr, "  nako4 -serve                    # Serve on :4567 (Connect) and :4568 (gRPC)\n")
		fmt.Fprintf(stderr, "  nako4 -remote localhost:4568 -e '1を表示'\n")
		fmt.Fprintf(stderr, "  nako4 -init myproject           # Write nako.toml\n")
	}

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return f, fs.Args(), nil
}

func runCLI(args []string, stdout, stderr io.Writer) error {
	f, rest, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	if f.initName != "" {
		m, err := manifest.Init(f.dir, f.initName)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Created %s\n", filepath.Join(m.Dir, manifest.FileName))
		return nil
	}

	m, found, err := loadManifest(f)
	if err != nil {
		return err
	}
	configureLogging(m, f.verbose)

	var history *store.Store
	if m.History.Enabled {
		history, err = store.Open(m.HistoryPath())
		if err != nil {
			return err
		}
		defer history.Close()
	}

	opts := compiler.Options{Debug: m.Run.Debug, Strict: m.Run.Strict}
	if opts.Debug {
		opts.Trace = &vm.WriterTracer{W: stderr}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	switch {
	case f.lsp:
		return server.NewLSP().Run()

	case f.serve:
		srv := server.New(
			server.WithAddrs(m.Server.HTTPAddr, m.Server.GRPCAddr),
			server.WithHistory(history),
			server.WithCompileOptions(compiler.Options{Strict: opts.Strict}),
		)
		defer srv.Stop()
		fmt.Fprintf(stdout, "Nako evaluation server\n")
		fmt.Fprintf(stdout, "  Connect (HTTP/JSON): http://%s%s\n", m.Server.HTTPAddr, server.RunProcedure)
		fmt.Fprintf(stdout, "  gRPC (binary):       grpc://%s\n", m.Server.GRPCAddr)
		return srv.ListenAndServe(ctx)
	}

	source, name, err := pickSource(f, rest, m, found)
	if err != nil {
		return err
	}

	if f.interactive || name == "" {
		ev, err := newEvaluator(ctx, f.remote, opts)
		if err != nil {
			return err
		}
		defer ev.Close()
		return runREPL(ev, history)
	}

	log.Debugf("running %s", name)
	if f.remote != "" {
		return runRemote(ctx, f.remote, source, stdout, stderr)
	}
	return runLocal(ctx, source, opts, history, stdout, stderr)
}

// loadManifest finds nako.toml from the project directory and applies the
// command-line overrides. found reports whether a file was read.
func loadManifest(f *cliFlags) (*manifest.Manifest, bool, error) {
	m, err := manifest.FindAndLoad(f.dir)
	if err != nil {
		return nil, false, err
	}
	found := m != nil
	if !found {
		abs, err := filepath.Abs(f.dir)
		if err != nil {
			return nil, false, err
		}
		m = manifest.Default(abs)
	}

	if f.debug {
		m.Run.Debug = true
	}
	if f.strict {
		m.Run.Strict = true
	}
	if f.httpAddr != "" {
		m.Server.HTTPAddr = f.httpAddr
	}
	if f.grpcAddr != "" {
		m.Server.GRPCAddr = f.grpcAddr
	}
	if f.history {
		m.History.Enabled = true
	}
	if f.noHistory {
		m.History.Enabled = false
	}
	if err := m.Validate(); err != nil {
		return nil, false, err
	}
	return m, found, nil
}

func configureLogging(m *manifest.Manifest, verbose int) {
	verbosity := m.Log.Verbosity + verbose
	if path := m.LogFile(); path != "" {
		commonlog.Configure(verbosity, &path)
		return
	}
	commonlog.Configure(verbosity, nil)
}

// pickSource chooses what to run: -e code, a file argument, or the
// manifest's entry file. An empty name means there is nothing to run.
func pickSource(f *cliFlags, rest []string, m *manifest.Manifest, found bool) (source, name string, err error) {
	switch {
	case f.code != "":
		return f.code, "-e", nil
	case len(rest) > 0:
		if len(rest) > 1 {
			return "", "", fmt.Errorf("expected one source file, got %d", len(rest))
		}
		data, err := os.ReadFile(rest[0])
		if err != nil {
			return "", "", fmt.Errorf("cannot read %s: %w", rest[0], err)
		}
		return string(data), rest[0], nil
	case found && !f.interactive:
		path := m.EntryPath()
		data, err := os.ReadFile(path)
		if err != nil {
			return "", "", fmt.Errorf("cannot read entry file: %w", err)
		}
		return string(data), path, nil
	}
	return "", "", nil
}

func runLocal(ctx context.Context, source string, opts compiler.Options, history *store.Store, stdout, stderr io.Writer) error {
	start := time.Now()
	res := compiler.Execute(source, opts)

	// Debug mode traces diagnostics already; strict failures carry them in
	// res.Error.
	if !opts.Debug && !(opts.Strict && res.Diagnostics.HasErrors()) {
		for _, d := range res.Diagnostics {
			fmt.Fprintln(stderr, d)
		}
	}
	io.WriteString(stdout, res.Output)

	if history != nil {
		_, err := history.Record(ctx, store.Run{
			Origin:   store.OriginCLI,
			Source:   source,
			Output:   res.Output,
			Error:    res.Error,
			Started:  start,
			Duration: time.Since(start),
		})
		if err != nil {
			log.Warningf("cannot record run: %s", err)
		}
	}

	if res.Error != "" {
		reportError(stderr, res.Error, res.Line)
		return errRunFailed
	}
	return nil
}

func runRemote(ctx context.Context, addr, source string, stdout, stderr io.Writer) error {
	client, err := server.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.Run(ctx, source)
	if err != nil {
		return fmt.Errorf("remote run: %w", err)
	}
	for _, d := range reply.Diagnostics {
		fmt.Fprintln(stderr, d)
	}
	io.WriteString(stdout, reply.Output)
	if reply.Error != "" {
		reportError(stderr, reply.Error, reply.Line)
		return errRunFailed
	}
	return nil
}

// reportError prints a run failure. line is the last statement that completed,
// so the fault lies in a statement after it.
func reportError(w io.Writer, msg string, line int) {
	msg = strings.TrimRight(msg, "\n")
	if line > 0 {
		fmt.Fprintf(w, "Error (after line %d): %s\n", line, msg)
		return
	}
	fmt.Fprintf(w, "Error: %s\n", msg)
}
