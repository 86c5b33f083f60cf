// Package server exposes the Nako compiler to remote callers: an evaluation
// service mounted on Connect (HTTP) and gRPC, and a language server for
// editors.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/nako4/nako4/compiler"
	"github.com/nako4/nako4/store"
)

var log = commonlog.GetLogger("nako4.server")

// Server is the evaluation server. It serves Connect (HTTP/JSON and binary
// protobuf) from Handler and gRPC from a separate listener.
type Server struct {
	eval     *EvalService
	sessions *SessionStore
	mux      *http.ServeMux
	cfg      *serverConfig

	stopSweeper func()
}

// ServerOption configures a Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	history       *store.Store
	opts          compiler.Options
	sweepInterval time.Duration
	sessionTTL    time.Duration
	httpAddr      string
	grpcAddr      string
}

// WithHistory records every run in h.
func WithHistory(h *store.Store) ServerOption {
	return func(c *serverConfig) { c.history = h }
}

// WithCompileOptions sets the options every run compiles with.
func WithCompileOptions(opts compiler.Options) ServerOption {
	return func(c *serverConfig) { c.opts = opts }
}

// WithSessionTTL expires sessions idle for longer than ttl.
func WithSessionTTL(ttl time.Duration) ServerOption {
	return func(c *serverConfig) { c.sessionTTL = ttl }
}

// WithAddrs sets the HTTP and gRPC listen addresses. An empty address
// disables that listener.
func WithAddrs(httpAddr, grpcAddr string) ServerOption {
	return func(c *serverConfig) {
		c.httpAddr = httpAddr
		c.grpcAddr = grpcAddr
	}
}

// New creates a Server.
func New(opts ...ServerOption) *Server {
	cfg := &serverConfig{
		sweepInterval: 5 * time.Minute,
		sessionTTL:    30 * time.Minute,
		httpAddr:      ":4567",
		grpcAddr:      ":4568",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	sessions := NewSessionStore(cfg.opts)
	s := &Server{
		eval:     NewEvalService(sessions, cfg.history, cfg.opts),
		sessions: sessions,
		mux:      http.NewServeMux(),
		cfg:      cfg,
	}

	// Register Connect handlers
	s.mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, unary(s.eval.Run)))
	s.mux.Handle(CompileProcedure, connect.NewUnaryHandler(CompileProcedure, unary(s.eval.Compile)))
	s.mux.Handle(ExecuteProcedure, connect.NewUnaryHandler(ExecuteProcedure, unary(s.eval.Execute)))
	s.mux.Handle(CreateSessionProcedure, connect.NewUnaryHandler(CreateSessionProcedure, unary(s.eval.CreateSession)))
	s.mux.Handle(SessionRunProcedure, connect.NewUnaryHandler(SessionRunProcedure, unary(s.eval.SessionRun)))
	s.mux.Handle(DestroySessionProcedure, connect.NewUnaryHandler(DestroySessionProcedure, unary(s.eval.DestroySession)))

	s.stopSweeper = sessions.StartSweeper(cfg.sweepInterval, cfg.sessionTTL)

	return s
}

// unary adapts a plain service method to a Connect unary handler.
func unary[Req, Res any](fn func(context.Context, *Req) (*Res, error)) func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error) {
	return func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		res, err := fn(ctx, req.Msg)
		if err != nil {
			return nil, err
		}
		return connect.NewResponse(res), nil
	}
}

// Handler returns the Connect HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Sessions returns the server's session store.
func (s *Server) Sessions() *SessionStore {
	return s.sessions
}

// ListenAndServe serves HTTP and gRPC on the configured addresses until ctx
// is cancelled or a listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.httpAddr == "" && s.cfg.grpcAddr == "" {
		return errors.New("no listen address configured")
	}

	// Bind gRPC before starting anything so a bad address fails fast.
	var lis net.Listener
	if addr := s.cfg.grpcAddr; addr != "" {
		var err error
		if lis, err = net.Listen("tcp", addr); err != nil {
			return fmt.Errorf("grpc: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	if addr := s.cfg.httpAddr; addr != "" {
		hs := &http.Server{Addr: addr, Handler: s.mux}
		g.Go(func() error {
			log.Noticef("Connect (HTTP) listening on %s", addr)
			if err := hs.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hs.Shutdown(shutdownCtx)
		})
	}

	if lis != nil {
		gs := grpc.NewServer()
		s.RegisterGRPC(gs)
		g.Go(func() error {
			log.Noticef("gRPC listening on %s", lis.Addr())
			if err := gs.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return fmt.Errorf("grpc: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			gs.GracefulStop()
			return nil
		})
	}

	return g.Wait()
}

// Stop shuts down the session sweeper and every session worker.
func (s *Server) Stop() {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	s.sessions.DestroyAll()
}
