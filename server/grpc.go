package server

import (
	"context"
	"errors"

	"connectrpc.com/connect"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified service name on both transports.
const ServiceName = "nako.v1.NakoService"

// Procedure paths, shared by the Connect mux and the gRPC method table.
const (
	RunProcedure            = "/" + ServiceName + "/Run"
	CompileProcedure        = "/" + ServiceName + "/Compile"
	ExecuteProcedure        = "/" + ServiceName + "/Execute"
	CreateSessionProcedure  = "/" + ServiceName + "/CreateSession"
	SessionRunProcedure     = "/" + ServiceName + "/SessionRun"
	DestroySessionProcedure = "/" + ServiceName + "/DestroySession"
)

// NakoServiceServer is the gRPC service contract. EvalService implements it.
type NakoServiceServer interface {
	Run(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	Compile(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	Execute(context.Context, *wrapperspb.BytesValue) (*structpb.Struct, error)
	CreateSession(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	SessionRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DestroySession(context.Context, *wrapperspb.StringValue) (*emptypb.Empty, error)
}

var _ NakoServiceServer = (*EvalService)(nil)

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NakoServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		grpcMethod("Run", NakoServiceServer.Run),
		grpcMethod("Compile", NakoServiceServer.Compile),
		grpcMethod("Execute", NakoServiceServer.Execute),
		grpcMethod("CreateSession", NakoServiceServer.CreateSession),
		grpcMethod("SessionRun", NakoServiceServer.SessionRun),
		grpcMethod("DestroySession", NakoServiceServer.DestroySession),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nako/v1/nako.proto",
}

// grpcMethod builds the unary handler gRPC code generation would emit for
// one method, translating *connect.Error into a gRPC status.
func grpcMethod[Req, Res any](name string, call func(NakoServiceServer, context.Context, *Req) (*Res, error)) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	invoke := func(srv any, ctx context.Context, in *Req) (*Res, error) {
		out, err := call(srv.(NakoServiceServer), ctx, in)
		if err != nil {
			return nil, toStatus(err)
		}
		return out, nil
	}
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return invoke(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return invoke(srv, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// toStatus maps a Connect error onto the gRPC status with the same code.
// Connect codes are numerically identical to gRPC codes.
func toStatus(err error) error {
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		return status.Error(codes.Code(cerr.Code()), cerr.Message())
	}
	return status.Error(codes.Internal, err.Error())
}

// RegisterGRPC registers the evaluation service on gs.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	gs.RegisterService(&serviceDesc, s.eval)
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client calls a remote evaluation service over gRPC.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to addr. Without options the connection is plaintext.
func Dial(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run executes source remotely in a fresh scope.
func (c *Client) Run(ctx context.Context, source string) (Reply, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, RunProcedure, wrapperspb.String(source), out); err != nil {
		return Reply{}, err
	}
	return DecodeReply(out), nil
}

// Compile compiles source remotely and returns the encoded chunk.
func (c *Client) Compile(ctx context.Context, source string) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.conn.Invoke(ctx, CompileProcedure, wrapperspb.String(source), out); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Execute runs an encoded chunk remotely.
func (c *Client) Execute(ctx context.Context, chunk []byte) (Reply, error) {
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, ExecuteProcedure, wrapperspb.Bytes(chunk), out); err != nil {
		return Reply{}, err
	}
	return DecodeReply(out), nil
}

// CreateSession opens a remote session and returns its ID.
func (c *Client) CreateSession(ctx context.Context, name string) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.conn.Invoke(ctx, CreateSessionProcedure, wrapperspb.String(name), out); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// SessionRun executes source inside a remote session.
func (c *Client) SessionRun(ctx context.Context, session, source string) (Reply, error) {
	in, err := structpb.NewStruct(map[string]any{"session": session, "source": source})
	if err != nil {
		return Reply{}, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, SessionRunProcedure, in, out); err != nil {
		return Reply{}, err
	}
	return DecodeReply(out), nil
}

// DestroySession closes a remote session.
func (c *Client) DestroySession(ctx context.Context, session string) error {
	return c.conn.Invoke(ctx, DestroySessionProcedure, wrapperspb.String(session), new(emptypb.Empty))
}
