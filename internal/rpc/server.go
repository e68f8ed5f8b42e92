// Package rpc serves the engine's host boundary: newline-delimited JSON-RPC
// 2.0 over a byte stream, one request object per line.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"lexreview/engine/internal/logging"
)

const (
	jsonRPCVersion = "2.0"
	rpcErrorCode   = -32000
	maxLineBytes   = 10 * 1024 * 1024
)

// Request is one incoming JSON-RPC call. Requests without an id are
// notifications and get no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	APIVer  string          `json:"api_version,omitempty"`
}

// Response is one outgoing reply.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// Notification is a server-initiated message.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// ErrorPayload is the wire form of a handler error; Data carries the
// structured errinfo payload.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error is a handler-level failure.
type Error struct {
	Message string
	Data    any
}

// Handler resolves one method call.
type Handler func(ctx context.Context, params json.RawMessage) (any, *Error)

// Server reads requests line by line and dispatches them to registered
// handlers. Writes are serialized under a mutex; each request runs on its
// own goroutine so a slow reasoning call does not block the stream.
type Server struct {
	apiVersion string
	reader     *bufio.Reader
	writer     *bufio.Writer
	logger     *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler
}

// NewServer builds a server over the given stream.
func NewServer(apiVersion string, r io.Reader, w io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Server{
		apiVersion: apiVersion,
		reader:     bufio.NewReader(r),
		writer:     bufio.NewWriter(w),
		handlers:   make(map[string]Handler),
		logger:     logger,
	}
}

// Register installs a handler for a method name.
func (s *Server) Register(method string, handler Handler) {
	s.handlers[method] = handler
}

// Serve reads until EOF or a read error.
func (s *Server) Serve(ctx context.Context) error {
	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			s.logger.Error("rpc.read_failed", "error", err.Error())
			return err
		}
		if len(line) == 0 {
			continue
		}
		if len(line) > maxLineBytes {
			s.logger.Warn("rpc.message_too_large", "bytes", len(line))
			s.writeError(nil, "message too large", nil)
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Warn("rpc.invalid_json", "error", err.Error())
			s.writeError(nil, "invalid json", nil)
			continue
		}
		if req.JSONRPC != jsonRPCVersion {
			s.writeError(req.ID, "invalid jsonrpc version", nil)
			continue
		}
		if req.APIVer != "" && req.APIVer != s.apiVersion {
			s.writeError(req.ID, "incompatible api_version", map[string]string{"expected": s.apiVersion})
			continue
		}
		handler, ok := s.handlers[req.Method]
		if !ok {
			s.logger.Warn("rpc.method_not_found", "method", req.Method)
			s.writeError(req.ID, fmt.Sprintf("method not found: %s", req.Method), nil)
			continue
		}
		s.logger.Debug("rpc.request", "method", req.Method, "id", string(req.ID), "params", logging.RedactJSON(req.Params))
		go s.dispatch(ctx, req, handler)
	}
}

func (s *Server) dispatch(ctx context.Context, req Request, handler Handler) {
	result, err := handler(ctx, req.Params)
	if req.ID == nil {
		return
	}
	if err != nil {
		s.logger.Error("rpc.response_error", "method", req.Method, "id", string(req.ID), "error", err.Message)
		s.writeError(req.ID, err.Message, err.Data)
		return
	}
	s.logger.Debug("rpc.response", "method", req.Method, "id", string(req.ID))
	s.write(Response{JSONRPC: jsonRPCVersion, ID: req.ID, Result: result})
}

// Notify pushes a server-initiated notification.
func (s *Server) Notify(method string, params any) {
	s.logger.Debug("rpc.notify", "method", method, "params", logging.RedactAny(params))
	s.write(Notification{JSONRPC: jsonRPCVersion, Method: method, Params: params})
}

func (s *Server) writeError(id json.RawMessage, message string, data any) {
	s.write(Response{
		JSONRPC: jsonRPCVersion,
		ID:      id,
		Error:   &ErrorPayload{Code: rpcErrorCode, Message: message, Data: data},
	})
}

func (s *Server) write(payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = s.writer.Write(append(data, '\n'))
	_ = s.writer.Flush()
}
