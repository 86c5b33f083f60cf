// Package manifest handles nako.toml project configuration.
package manifest

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
)

// FileName is the name of the project configuration file.
const FileName = "nako.toml"

// Defaults applied by Load.
const (
	DefaultEntry       = "main.nako"
	DefaultHTTPAddr    = ":4567"
	DefaultGRPCAddr    = ":4568"
	DefaultHistoryPath = ".nako4/history.db"
)

// Manifest represents a nako.toml project configuration.
type Manifest struct {
	Project Project       `toml:"project"`
	Source  Source        `toml:"source"`
	Run     RunConfig     `toml:"run"`
	History HistoryConfig `toml:"history"`
	Server  ServerConfig  `toml:"server"`
	Log     LogConfig     `toml:"log"`

	// Dir is the directory containing the nako.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures the program entry file.
type Source struct {
	Entry string `toml:"entry"`
}

// RunConfig sets compile and run options.
type RunConfig struct {
	Debug  bool `toml:"debug"`
	Strict bool `toml:"strict"`
}

// HistoryConfig configures the run history database.
type HistoryConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// ServerConfig configures the evaluation service listeners.
type ServerConfig struct {
	HTTPAddr string `toml:"http-addr"`
	GRPCAddr string `toml:"grpc-addr"`
}

// LogConfig configures commonlog output.
type LogConfig struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Default returns a manifest with every default applied.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults()
	return m
}

func (m *Manifest) applyDefaults() {
	if m.Source.Entry == "" {
		m.Source.Entry = DefaultEntry
	}
	if m.History.Path == "" {
		m.History.Path = DefaultHistoryPath
	}
	if m.Server.HTTPAddr == "" {
		m.Server.HTTPAddr = DefaultHTTPAddr
	}
	if m.Server.GRPCAddr == "" {
		m.Server.GRPCAddr = DefaultGRPCAddr
	}
}

// Parse decodes and validates manifest text. dir becomes the manifest's Dir.
func Parse(data []byte, dir string) (*Manifest, error) {
	var raw map[string]any
	if _, err := toml.Decode(string(data), &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := ValidateDocument(raw); err != nil {
		return nil, err
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	m.Dir = dir
	m.applyDefaults()
	return &m, nil
}

// Load parses a nako.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m, err := Parse(data, abs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// FindAndLoad walks up from startDir to find a nako.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Write encodes the manifest as TOML.
func (m *Manifest) Write(w io.Writer) error {
	return toml.NewEncoder(w).Encode(m)
}

// Init writes a default nako.toml for a project called name into dir. It
// refuses to overwrite an existing file.
func Init(dir, name string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("%s already exists", path)
	}
	m := Default(dir)
	m.Project = Project{Name: name, Version: "0.1.0"}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create %s: %w", path, err)
	}
	defer f.Close()
	if err := m.Write(f); err != nil {
		return nil, fmt.Errorf("cannot write %s: %w", path, err)
	}
	return m, nil
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Source.Entry)
}

// HistoryPath returns the absolute path of the history database.
func (m *Manifest) HistoryPath() string {
	return m.resolve(m.History.Path)
}

// LogFile returns the absolute log file path, or "" to log to stderr.
func (m *Manifest) LogFile() string {
	if m.Log.File == "" {
		return ""
	}
	return m.resolve(m.Log.File)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// ---------------------------------------------------------------------------
// Schema validation
// ---------------------------------------------------------------------------

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error

	// A cue.Context is not safe for concurrent use.
	schemaMu sync.Mutex
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("manifest schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Manifest"))
		if err := schemaDef.Err(); err != nil {
			schemaErr = fmt.Errorf("manifest schema: %w", err)
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// ErrInvalid wraps every schema violation.
var ErrInvalid = errors.New("invalid manifest")

// ValidateDocument checks a decoded TOML document against the manifest
// schema. Unknown keys, wrong types and out-of-range values are rejected.
func ValidateDocument(doc map[string]any) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}
	if doc == nil {
		doc = map[string]any{}
	}
	schemaMu.Lock()
	defer schemaMu.Unlock()
	v := def.Unify(ctx.Encode(doc))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// Validate checks the manifest's current values against the schema, for
// example after command-line overrides have been applied.
func (m *Manifest) Validate() error {
	return ValidateDocument(m.document())
}

// document renders m as the map shape of a nako.toml file.
func (m *Manifest) document() map[string]any {
	doc := map[string]any{
		"project": map[string]any{
			"name":    m.Project.Name,
			"version": m.Project.Version,
		},
		"source": map[string]any{},
		"run": map[string]any{
			"debug":  m.Run.Debug,
			"strict": m.Run.Strict,
		},
		"history": map[string]any{
			"enabled": m.History.Enabled,
		},
		"server": map[string]any{},
		"log": map[string]any{
			"verbosity": m.Log.Verbosity,
			"file":      m.Log.File,
		},
	}
	if m.Source.Entry != "" {
		doc["source"].(map[string]any)["entry"] = m.Source.Entry
	}
	if m.History.Path != "" {
		doc["history"].(map[string]any)["path"] = m.History.Path
	}
	if m.Server.HTTPAddr != "" {
		doc["server"].(map[string]any)["http-addr"] = m.Server.HTTPAddr
	}
	if m.Server.GRPCAddr != "" {
		doc["server"].(map[string]any)["grpc-addr"] = m.Server.GRPCAddr
	}
	return doc
}
