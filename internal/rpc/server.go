package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/chitta-project/chitta/internal/mind"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "chitta"
	serverVersion   = "0.1.0"
	maxMessageBytes = 1 << 20 // 1 MiB, per spec §6
)

// Config configures the socket server.
type Config struct {
	SocketPath string // unix socket path, mode 0600
	Auth       *TokenAuth // nil disables the token check (trusted local socket)
}

// Server accepts newline-delimited JSON-RPC 2.0 connections over a Unix
// domain socket (spec §6), dispatching tools/call to the tool registry
// built over a *mind.Mind. Grounded on the teacher's pkg/mcp.Server request
// loop, adapted from HTTP+JWT to a local stream socket.
type Server struct {
	cfg   Config
	m     *mind.Mind
	tools map[string]ToolHandler

	mu       sync.Mutex
	listener net.Listener
	log      *slog.Logger
}

// New constructs a Server bound to the given mind and socket configuration.
func New(cfg Config, m *mind.Mind, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{cfg: cfg, m: m, tools: registerTools(m), log: log}
}

// Serve listens on the configured socket path and blocks, accepting
// connections until ctx is cancelled or Close is called.
func (s *Server) Serve(ctx context.Context) error {
	_ = os.Remove(s.cfg.SocketPath)
	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("rpc: listen: %w", err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("rpc: chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.log.Warn("rpc accept failed", "error", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	s.listener = nil
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, maxMessageBytes)
	writer := bufio.NewWriter(conn)
	authenticated := s.cfg.Auth == nil

	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if len(line) == 0 {
				return
			}
		}
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeResponse(writer, Response{JSONRPC: "2.0", Error: &Error{Code: CodeParseError, Message: err.Error()}})
			continue
		}

		resp := s.dispatch(ctx, req, &authenticated)
		if req.Method != "initialized" {
			s.writeResponse(writer, resp)
		}

		if err != nil {
			return
		}
	}
}

func (s *Server) writeResponse(w *bufio.Writer, resp Response) {
	resp.JSONRPC = "2.0"
	b, err := json.Marshal(resp)
	if err != nil {
		return
	}
	w.Write(b)
	w.WriteByte('\n')
	w.Flush()
}

func (s *Server) dispatch(ctx context.Context, req Request, authenticated *bool) Response {
	switch req.Method {
	case "initialize":
		params, err := parseInitializeParams(req.Params)
		if err != nil {
			return errResponse(req.ID, CodeInvalidParams, err)
		}
		if s.cfg.Auth != nil {
			if err := s.cfg.Auth.Verify(params.Token); err != nil {
				return errResponse(req.ID, CodeInvalidRequest, err)
			}
			*authenticated = true
		}
		return Response{ID: req.ID, Result: InitializeResult{
			ProtocolVersion: protocolVersion,
			Capabilities:    map[string]interface{}{"tools": map[string]interface{}{"listChanged": true}},
			ServerInfo:      ServerInfo{Name: serverName, Version: serverVersion},
		}}

	case "initialized":
		return Response{} // notification: handleConn writes no reply

	case "shutdown":
		go s.Close()
		return Response{ID: req.ID, Result: "ok"}

	case "tools/list":
		if !*authenticated {
			return errResponse(req.ID, CodeInvalidRequest, ErrUnauthorized)
		}
		return Response{ID: req.ID, Result: ListToolsResult{Tools: toolList}}

	case "tools/call":
		if !*authenticated {
			return errResponse(req.ID, CodeInvalidRequest, ErrUnauthorized)
		}
		return s.dispatchToolCall(ctx, req)

	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Errorf("rpc: unknown method %q", req.Method))
	}
}

func (s *Server) dispatchToolCall(ctx context.Context, req Request) Response {
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err)
	}
	handler, ok := s.tools[params.Name]
	if !ok {
		return errResponse(req.ID, CodeToolNotFound, fmt.Errorf("rpc: unknown tool %q", params.Name))
	}
	result, err := handler(ctx, params.Arguments)
	if err != nil {
		return errResponse(req.ID, CodeToolExecutionError, err)
	}
	return Response{ID: req.ID, Result: result}
}

func errResponse(id json.RawMessage, code int, err error) Response {
	return Response{ID: id, Error: &Error{Code: code, Message: err.Error()}}
}
