// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"testd/executor/internal/engine"
	"testd/executor/internal/jsonrpc"
	"testd/executor/internal/logging"
)

// shutdownTimeout bounds the teardown of sessions left open at exit.
const shutdownTimeout = 30 * time.Second

// Server reads requests from a line stream and answers them through a
// Dispatcher.
type Server struct {
	dispatcher *Dispatcher
	logger     *pterm.Logger
}

// New creates a server. logger may be nil.
func New(d *Dispatcher, logger *pterm.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{dispatcher: d, logger: logger}
}

// Serve handles requests read from r until r is exhausted or ctx is
// cancelled. Each request runs on its own goroutine and its response goes to
// w. Before returning, Serve waits for in-flight requests and tears down
// every session still open. It returns the read error, if any.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	out := jsonrpc.NewWriter(w)
	lines := make(chan []byte)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)
		br := bufio.NewReader(r)
		for {
			line, err := br.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				select {
				case lines <- line:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					readErr <- err
				}
				return
			}
		}
	}()

	// Handlers outlive a cancelled server context so that in-flight
	// requests are answered.
	hctx := context.WithoutCancel(ctx)
	var wg sync.WaitGroup
loop:
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("shutting down", s.logger.Args("reason", context.Cause(ctx).Error()))
			break loop
		case line, ok := <-lines:
			if !ok {
				s.logger.Debug("input closed")
				break loop
			}
			req, err := jsonrpc.Decode(line)
			if err != nil {
				s.logger.Warn("dropping malformed request", s.logger.Args("error", err.Error(), "line", logging.Mask(truncate(line))))
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.handle(hctx, out, req)
			}()
		}
	}

	wg.Wait()
	s.closeSessions(hctx)

	select {
	case err := <-readErr:
		return fmt.Errorf("read requests: %w", err)
	default:
		return nil
	}
}

func (s *Server) handle(ctx context.Context, out *jsonrpc.Writer, req *jsonrpc.Request) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("request handler panicked", s.logger.Args(
				"id", string(req.ID),
				"method", req.Name,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			))
			s.respondErr(out, req, fmt.Errorf("internal error: %v", r))
		}
	}()

	s.logger.Debug("request received", s.logger.Args("id", string(req.ID), "method", req.Name))
	result, err := s.dispatcher.Handle(ctx, req)
	if err != nil {
		s.respondErr(out, req, err)
		return
	}
	if werr := out.RespondOK(req.ID, result); werr != nil {
		s.logger.Error("writing response failed", s.logger.Args("id", string(req.ID), "error", werr.Error()))
		return
	}
	s.logger.Debug("request answered", s.logger.Args("id", string(req.ID), "method", req.Name))
}

func (s *Server) respondErr(out *jsonrpc.Writer, req *jsonrpc.Request, err error) {
	s.logger.Debug("request failed", s.logger.Args("id", string(req.ID), "method", req.Name, "error", logging.PresentError("", err)))
	rpcErr := jsonrpc.RPCError{Code: jsonrpc.ErrorCode, Message: err.Error()}
	if werr := out.RespondErr(req.ID, rpcErr); werr != nil {
		s.logger.Error("writing response failed", s.logger.Args("id", string(req.ID), "error", werr.Error()))
	}
}

// closeSessions tears down every session still registered.
func (s *Server) closeSessions(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	for _, sess := range s.dispatcher.Sessions().RemoveAll() {
		if err := sess.Close(ctx, engine.NextRequestID()); err != nil {
			s.logger.Warn("teardown at shutdown failed", s.logger.Args("schema_id", sess.ID, "error", logging.PresentError("", err)))
			continue
		}
		s.logger.Info("schema torn down at shutdown", s.logger.Args("schema_id", sess.ID))
	}
}

func truncate(line []byte) string {
	const limit = 256
	line = bytes.TrimSpace(line)
	if len(line) > limit {
		return string(line[:limit]) + "..."
	}
	return string(line)
}
