// Package server exposes an Engine over a JSON-lines protocol on a pair of
// streams, one request object per input line and one response object per
// output line. Editors typically run it over the process's stdin and stdout.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jward/arbor"
	arborerrors "github.com/jward/arbor/internal/errors"
)

// maxLine bounds a single request line.
const maxLine = 16 << 20

// Engine is the part of *arbor.Engine the server drives.
type Engine interface {
	Build(ctx context.Context, files []string, opts ...arbor.BuildOption) (*arbor.BuildReport, error)
	BuildDirectory(ctx context.Context, dir string, opts ...arbor.BuildOption) (*arbor.BuildReport, error)
	Query(ctx context.Context, f arbor.Filter) ([]arbor.Symbol, error)
	References(ctx context.Context, name, path string, line int, opts arbor.RefOptions) ([]arbor.Occurrence, error)
	Complete(ctx context.Context, path string, line, col int, opts arbor.CompleteOptions) (*arbor.Completion, error)
	Definition(ctx context.Context, path string, line, col int) (*arbor.Definition, error)
	Info(ctx context.Context, dir string) (*arbor.PackageInfo, error)
	PrintAST(ctx context.Context, path string, opts arbor.PrintOptions) (string, error)
	CacheStats(ctx context.Context) (arbor.CacheStats, error)
	IndexStats(ctx context.Context) (arbor.IndexStats, error)
	Root() string
}

// Server answers requests against one Engine. Requests run concurrently;
// responses are written whole, in completion order, and carry the request id.
type Server struct {
	engine Engine
	log    *slog.Logger

	writeMu sync.Mutex
	enc     *json.Encoder
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New returns a Server for e.
func New(e Engine, opts ...Option) *Server {
	s := &Server{engine: e, log: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Serve reads requests from r and writes responses to w until r is exhausted,
// a shutdown request arrives, or ctx is done. In-flight requests are finished
// before Serve returns. A clean end of input returns nil.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.enc = json.NewEncoder(w)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLine)

	var wg sync.WaitGroup
	defer wg.Wait()

	s.log.Info("server started", "root", s.engine.Root())
	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.reply(Response{Error: errorBody(arborerrors.Validationf("request", "", "malformed request: %v", err))})
			continue
		}
		if req.Method == MethodShutdown {
			wg.Wait()
			s.reply(Response{ID: req.ID, Result: struct{}{}})
			s.log.Info("server shutting down")
			return nil
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.reply(s.handle(ctx, req))
		}()
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("server: read request: %w", err)
	}
	return nil
}

func (s *Server) reply(resp Response) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		s.log.Warn("write response failed", "id", string(resp.ID), "error", err)
	}
}

// handle dispatches one request and wraps its outcome.
func (s *Server) handle(ctx context.Context, req Request) Response {
	h, ok := handlers[req.Method]
	if !ok {
		err := arborerrors.Validationf("method", req.Method, "unknown method")
		return Response{ID: req.ID, Error: errorBody(err)}
	}
	result, err := h(ctx, s.engine, req.Params)
	if err != nil {
		s.log.Debug("request failed", "method", req.Method, "error", err)
		return Response{ID: req.ID, Error: errorBody(err)}
	}
	return Response{ID: req.ID, Result: result}
}

func errorBody(err error) *ErrorBody {
	return &ErrorBody{Kind: string(arborerrors.KindOf(err)), Message: err.Error()}
}

// decode unmarshals params into v. Absent params leave v at its zero value.
func decode(params json.RawMessage, v any) error {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return arborerrors.Validationf("params", "", "%v", err)
	}
	return nil
}
