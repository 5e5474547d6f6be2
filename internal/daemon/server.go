package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vaultrank/vaultrank/pkg/searcher"
)

// RequestHandler serves the daemon's RPC methods.
type RequestHandler interface {
	HandleSearch(ctx context.Context, params SearchParams) (*SearchReply, error)
	GetStatus() StatusResult
}

// Server listens on a Unix socket and dispatches JSON-RPC requests.
type Server struct {
	socketPath string
	connLimit  time.Duration
	ln         net.Listener
	handler    RequestHandler
	startedAt  time.Time
	closing    atomic.Bool
	wg         sync.WaitGroup
}

// NewServer creates a server for the given socket path. connLimit
// bounds one connection's lifetime; zero means 30 seconds.
func NewServer(socketPath string, connLimit time.Duration) (*Server, error) {
	if socketPath == "" {
		return nil, fmt.Errorf("socket path cannot be empty")
	}
	if connLimit <= 0 {
		connLimit = 30 * time.Second
	}
	return &Server{socketPath: socketPath, connLimit: connLimit}, nil
}

// SetHandler sets the request handler.
func (s *Server) SetHandler(h RequestHandler) {
	s.handler = h
}

// ListenAndServe accepts connections until ctx is cancelled, then waits
// for in-flight requests and removes the socket. Returns ctx.Err().
func (s *Server) ListenAndServe(ctx context.Context) error {
	// A previous daemon that died uncleanly leaves its socket behind.
	_ = os.Remove(s.socketPath)

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	s.ln, s.startedAt = ln, time.Now()

	defer func() {
		_ = ln.Close()
		_ = os.Remove(s.socketPath)
	}()

	slog.Info("daemon listening", slog.String("socket", s.socketPath))

	stop := context.AfterFunc(ctx, func() {
		s.closing.Store(true)
		_ = ln.Close()
	})
	defer stop()

	s.acceptLoop(ctx, ln)
	s.wg.Wait()

	return ctx.Err()
}

// acceptLoop accepts until the listener closes for shutdown. Transient
// accept errors are logged and skipped.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closing.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			slog.Error("accept failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Go(func() { s.handleConnection(ctx, conn) })
	}
}

// handleConnection serves one request per connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.connLimit)); err != nil {
		slog.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	enc := json.NewEncoder(conn)

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = enc.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	_ = enc.Encode(s.dispatch(ctx, req))
}

// dispatch routes one request by method.
func (s *Server) dispatch(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.getStatus())
	case MethodSearch:
		return s.handleSearch(ctx, req)
	}
	return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
}

// handleSearch decodes params and runs the search through the handler.
func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	if s.handler == nil {
		return NewErrorResponse(req.ID, ErrCodeInternalError, "no search handler configured")
	}

	var params SearchParams
	if err := rebind(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, fmt.Sprintf("bad params: %v", err))
	}
	if err := params.Validate(); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, err.Error())
	}

	reply, err := s.handler.HandleSearch(ctx, params)
	if err != nil {
		code := ErrCodeSearchFailed
		if errors.Is(err, searcher.ErrNotIndexed) {
			code = ErrCodeVaultNotIndexed
		}
		return NewErrorResponse(req.ID, code, err.Error())
	}

	return NewSuccessResponse(req.ID, reply)
}

// getStatus reports server uptime plus whatever the handler knows.
func (s *Server) getStatus() StatusResult {
	st := StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	}

	if s.handler != nil {
		hs := s.handler.GetStatus()
		st.EmbedderModel, st.EmbedderStatus = hs.EmbedderModel, hs.EmbedderStatus
		st.VaultsLoaded, st.Vaults = hs.VaultsLoaded, hs.Vaults
	}

	return st
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.closing.Store(true)
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
