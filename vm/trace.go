package vm

import (
	"fmt"
	"io"

	"github.com/tliron/commonlog"
)

// Tracer receives human-readable diagnostic lines from the compiler and the
// VM. Tracing never changes compiled output or execution results.
type Tracer interface {
	Tracef(format string, args ...any)
}

// NopTracer discards everything. It is the default.
type NopTracer struct{}

func (NopTracer) Tracef(string, ...any) {}

// LogTracer forwards trace lines to a commonlog logger at debug level.
type LogTracer struct {
	Log commonlog.Logger
}

// NewLogTracer returns a tracer writing to the named commonlog logger.
func NewLogTracer(name string) *LogTracer {
	return &LogTracer{Log: commonlog.GetLogger(name)}
}

func (t *LogTracer) Tracef(format string, args ...any) {
	t.Log.Debugf(format, args...)
}

// WriterTracer writes one line per trace call to W.
type WriterTracer struct {
	W io.Writer
}

func (t *WriterTracer) Tracef(format string, args ...any) {
	fmt.Fprintf(t.W, format+"\n", args...)
}
