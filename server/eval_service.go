package server

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/nako4/nako4/compiler"
	"github.com/nako4/nako4/store"
	"github.com/nako4/nako4/vm"
	"github.com/nako4/nako4/vm/dist"
)

// ---------------------------------------------------------------------------
// Reply: the result of one run as it travels over the wire
// ---------------------------------------------------------------------------

// Reply is the decoded form of a run result.
type Reply struct {
	ID          string
	Output      string
	Error       string
	Line        int
	Diagnostics []string
}

// Text returns the error message when there is one, otherwise the output.
func (r Reply) Text() string {
	if r.Error != "" {
		return r.Error
	}
	return r.Output
}

func (r Reply) encode() (*structpb.Struct, error) {
	diags := make([]any, len(r.Diagnostics))
	for i, d := range r.Diagnostics {
		diags[i] = d
	}
	return structpb.NewStruct(map[string]any{
		"id":          r.ID,
		"output":      r.Output,
		"error":       r.Error,
		"line":        r.Line,
		"diagnostics": diags,
	})
}

// DecodeReply converts a result struct back into a Reply.
func DecodeReply(s *structpb.Struct) Reply {
	fields := s.GetFields()
	r := Reply{
		ID:     fields["id"].GetStringValue(),
		Output: fields["output"].GetStringValue(),
		Error:  fields["error"].GetStringValue(),
		Line:   int(fields["line"].GetNumberValue()),
	}
	for _, v := range fields["diagnostics"].GetListValue().GetValues() {
		r.Diagnostics = append(r.Diagnostics, v.GetStringValue())
	}
	return r
}

// ---------------------------------------------------------------------------
// EvalService
// ---------------------------------------------------------------------------

// EvalService compiles and runs Nako programs for remote callers. Each
// method is transport neutral; server.go mounts it on Connect and grpc.go
// on gRPC. Failures are *connect.Error values.
type EvalService struct {
	sessions *SessionStore
	history  *store.Store
	opts     compiler.Options
}

// NewEvalService creates an EvalService. history may be nil.
func NewEvalService(sessions *SessionStore, history *store.Store, opts compiler.Options) *EvalService {
	return &EvalService{
		sessions: sessions,
		history:  history,
		opts:     opts,
	}
}

// Run compiles and executes source in a fresh variable scope.
func (s *EvalService) Run(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	source := req.GetValue()
	if strings.TrimSpace(source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	start := time.Now()
	res := compiler.Execute(source, s.opts)
	return s.reply(ctx, source, res, start)
}

// Compile compiles source and returns the program as a CBOR chunk. Sources
// with compile errors are rejected.
func (s *EvalService) Compile(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	source := req.GetValue()
	if strings.TrimSpace(source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	prog, diags := compiler.Compile(source, s.opts)
	if diags.HasErrors() {
		return nil, connect.NewError(connect.CodeInvalidArgument, diags.Errors())
	}
	data, err := dist.MarshalChunk(dist.NewChunk(source, prog))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return wrapperspb.Bytes(data), nil
}

// Execute runs a chunk produced by Compile. The chunk's program must match
// what its source compiles to.
func (s *EvalService) Execute(ctx context.Context, req *wrapperspb.BytesValue) (*structpb.Struct, error) {
	chunk, err := dist.UnmarshalChunk(req.GetValue())
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := dist.VerifyChunk(chunk, verifyCompile); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	start := time.Now()
	res := compiler.ExecuteProgram(chunk.Program, s.opts)
	return s.reply(ctx, chunk.Source, res, start)
}

func verifyCompile(source string) (*vm.Program, error) {
	prog, diags := compiler.Compile(source, compiler.Options{})
	return prog, diags.Err()
}

// CreateSession opens a session whose variables persist across SessionRun
// calls. The request carries an optional display name.
func (s *EvalService) CreateSession(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.StringValue, error) {
	session := s.sessions.Create(req.GetValue())
	return wrapperspb.String(session.ID), nil
}

// SessionRun executes source inside a session. The request struct carries
// "session" and "source" string fields.
func (s *EvalService) SessionRun(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	id := fields["session"].GetStringValue()
	source := fields["source"].GetStringValue()
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("session is required"))
	}
	if strings.TrimSpace(source) == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("source is required"))
	}

	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}

	start := time.Now()
	v, err := session.Worker().Do(ctx, func(cs *compiler.Session) any {
		return cs.Execute(source)
	})
	if err != nil {
		return nil, workerError(id, err)
	}
	return s.reply(ctx, source, v.(compiler.Result), start)
}

// DestroySession closes a session.
func (s *EvalService) DestroySession(ctx context.Context, req *wrapperspb.StringValue) (*emptypb.Empty, error) {
	if !s.sessions.Destroy(req.GetValue()) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.GetValue()))
	}
	return &emptypb.Empty{}, nil
}

func workerError(id string, err error) *connect.Error {
	switch {
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q was closed", id))
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

// reply builds the wire result and records the run in the history store.
func (s *EvalService) reply(ctx context.Context, source string, res compiler.Result, start time.Time) (*structpb.Struct, error) {
	r := Reply{
		Output: res.Output,
		Error:  res.Error,
		Line:   res.Line,
	}
	for _, d := range res.Diagnostics {
		r.Diagnostics = append(r.Diagnostics, d.String())
	}
	r.ID = s.record(ctx, store.Run{
		Origin:   store.OriginServer,
		Source:   source,
		Output:   res.Output,
		Error:    res.Error,
		Started:  start,
		Duration: time.Since(start),
	})

	out, err := r.encode()
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return out, nil
}

func (s *EvalService) record(ctx context.Context, run store.Run) string {
	if s.history == nil {
		return uuid.NewString()
	}
	saved, err := s.history.Record(ctx, run)
	if err != nil {
		log.Warningf("cannot record run: %s", err)
		return uuid.NewString()
	}
	return saved.ID
}
