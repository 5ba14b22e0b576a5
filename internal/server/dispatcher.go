// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package server runs the executor's request loop. It reads JSON-RPC requests
// from a line stream, routes each one to its handler on its own goroutine and
// writes exactly one response per request.
package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pterm/pterm"

	"testd/executor/internal/adapter"
	"testd/executor/internal/config"
	"testd/executor/internal/engine"
	xerrors "testd/executor/internal/errors"
	"testd/executor/internal/jsonrpc"
	"testd/executor/internal/logging"
	"testd/executor/internal/session"
)

// EngineFactory builds an unconnected engine for a session.
type EngineFactory func(cfg config.Config, opts engine.Options) (engine.Engine, error)

// ManagerFactory creates the driver adapter manager for a session.
type ManagerFactory func(cfg config.Config, params adapter.SetupParams) (adapter.Manager, error)

// Deps are the collaborators of a Dispatcher. Nil fields get the production
// implementations.
type Deps struct {
	Sessions   *session.Registry
	Logger     *pterm.Logger
	NewEngine  EngineFactory
	NewManager ManagerFactory
}

// emptyTrace is the trace context sent with commit and rollback.
const emptyTrace = "{}"

// Dispatcher validates the session precondition of a request and runs its
// handler.
type Dispatcher struct {
	cfg        config.Config
	sessions   *session.Registry
	logger     *pterm.Logger
	newEngine  EngineFactory
	newManager ManagerFactory
}

// NewDispatcher creates a dispatcher for cfg.
func NewDispatcher(cfg config.Config, deps Deps) *Dispatcher {
	d := &Dispatcher{
		cfg:        cfg,
		sessions:   deps.Sessions,
		logger:     deps.Logger,
		newEngine:  deps.NewEngine,
		newManager: deps.NewManager,
	}
	if d.sessions == nil {
		d.sessions = session.NewRegistry()
	}
	if d.logger == nil {
		d.logger = logging.Discard()
	}
	if d.newEngine == nil {
		d.newEngine = engine.New
	}
	if d.newManager == nil {
		d.newManager = adapter.Setup
	}
	return d
}

// Sessions returns the registry of live sessions.
func (d *Dispatcher) Sessions() *session.Registry { return d.sessions }

// Handle runs req and returns its result. The error message, if any, is what
// the client sees.
func (d *Dispatcher) Handle(ctx context.Context, req *jsonrpc.Request) (any, error) {
	if req.Method == jsonrpc.MethodUnknown {
		return nil, unknownMethod(req.Name)
	}

	var sess *session.Session
	if req.Method != jsonrpc.MethodInitializeSchema {
		var ok bool
		if sess, ok = d.sessions.Get(req.Params.SchemaRef()); !ok {
			return nil, session.NotInitializedError(req.Params.SchemaRef())
		}
	}

	switch p := req.Params.(type) {
	case *jsonrpc.InitializeSchemaParams:
		return d.initializeSchema(ctx, p)
	case *jsonrpc.QueryParams:
		return d.query(ctx, sess, p)
	case *jsonrpc.StartTxParams:
		return d.startTx(ctx, sess, p)
	case *jsonrpc.CommitTxParams:
		return d.finishTx(sess.Engine.CommitTransaction(ctx, p.TxID, emptyTrace, engine.NextRequestID()))
	case *jsonrpc.RollbackTxParams:
		return d.finishTx(sess.Engine.RollbackTransaction(ctx, p.TxID, emptyTrace, engine.NextRequestID()))
	case *jsonrpc.TeardownParams:
		return d.teardown(ctx, p)
	case *jsonrpc.GetLogsParams:
		return sess.DrainLogs(), nil
	default:
		return nil, unknownMethod(req.Name)
	}
}

func unknownMethod(name string) error {
	return xerrors.New(xerrors.UnknownMethod, fmt.Sprintf("Unknown method: `%s`", name))
}

type initializeResult struct {
	MaxBindValues *int `json:"maxBindValues"`
}

func (d *Dispatcher) initializeSchema(ctx context.Context, p *jsonrpc.InitializeSchemaParams) (any, error) {
	if d.sessions.Has(p.SchemaID) {
		return nil, session.ExistsError(p.SchemaID)
	}
	if d.cfg.Executor == config.ExecutorQueryCompiler {
		return nil, xerrors.New(xerrors.UnsupportedExecutor,
			"query compiler tests must be run using the query compiler executor")
	}

	s := session.New(p.SchemaID)
	release := func() {
		if err := s.Close(ctx, engine.NextRequestID()); err != nil {
			d.logger.Warn("releasing a failed session", d.logger.Args("schema_id", p.SchemaID, "error", logging.PresentError("", err)))
		}
	}

	var (
		bound    adapter.Adapter
		provider adapter.Provider
	)
	if d.cfg.Executor != config.ExecutorMobile {
		m, err := d.newManager(d.cfg, adapter.SetupParams{URL: p.URL, MigrationScript: p.MigrationScript})
		if err != nil {
			return nil, err
		}
		s.Manager = m
		provider = m.Connector()
		a, err := m.Connect(ctx)
		if err != nil {
			release()
			return nil, err
		}
		s.Adapter = adapter.Bind(a)
		bound = s.Adapter
	}

	eng, err := d.newEngine(d.cfg, engine.Options{
		Schema:   p.Schema,
		URL:      p.URL,
		Adapter:  bound,
		Provider: provider,
		Log:      s.AppendLog,
		Logger:   d.logger,
	})
	if err != nil {
		release()
		return nil, err
	}
	s.Engine = eng
	if err := eng.Connect(ctx, "", engine.NextRequestID()); err != nil {
		release()
		return nil, xerrors.Wrap(xerrors.EngineFailed, "engine failed to connect", err)
	}

	if err := d.sessions.Add(s); err != nil {
		release()
		return nil, err
	}
	d.logger.Info("schema initialized", d.logger.Args(
		"schema_id", p.SchemaID,
		"url", logging.Mask(p.URL),
		"executor", string(d.cfg.Executor),
	))

	var res initializeResult
	if s.Adapter != nil {
		if info, err := s.Adapter.ConnectionInfo(); err == nil {
			res.MaxBindValues = &info.MaxBindValues
		}
	}
	return res, nil
}

func (d *Dispatcher) query(ctx context.Context, s *session.Session, p *jsonrpc.QueryParams) (any, error) {
	out, err := s.Engine.Query(ctx, string(p.Query), "", p.TxID, engine.NextRequestID())
	if err != nil {
		return nil, xerrors.Wrap(xerrors.EngineFailed, "engine query failed", err)
	}
	if !json.Valid([]byte(out)) {
		return nil, xerrors.New(xerrors.EngineFailed, "engine returned a result that is not JSON")
	}
	d.reportExternalError(s, out)
	return json.RawMessage(out), nil
}

// engineErrors is the part of an engine result that names an adapter error.
type engineErrors struct {
	Errors []struct {
		UserFacingError struct {
			ErrorCode string `json:"error_code"`
			Meta      struct {
				ID *uint64 `json:"id"`
			} `json:"meta"`
		} `json:"user_facing_error"`
	} `json:"errors"`
}

// reportExternalError logs the native adapter error behind a P2036 result
// and drops it from the session's registry.
func (d *Dispatcher) reportExternalError(s *session.Session, result string) {
	var res engineErrors
	if err := json.Unmarshal([]byte(result), &res); err != nil || len(res.Errors) == 0 {
		return
	}
	ufe := res.Errors[0].UserFacingError
	if ufe.ErrorCode != "P2036" || ufe.Meta.ID == nil {
		return
	}
	id := *ufe.Meta.ID
	if s.Adapter == nil {
		d.logger.Warn("external connector error without a driver adapter", d.logger.Args("schema_id", s.ID, "error_id", id))
		return
	}
	native, ok := s.Adapter.Errors.Take(id)
	if !ok {
		d.logger.Error("external connector error is missing from the registry", d.logger.Args("schema_id", s.ID, "error_id", id))
		return
	}
	d.logger.Info("driver adapter error", d.logger.Args(
		"schema_id", s.ID,
		"error_id", id,
		"error", logging.PresentError("", native),
	))
}

func (d *Dispatcher) startTx(ctx context.Context, s *session.Session, p *jsonrpc.StartTxParams) (any, error) {
	options := string(p.Options)
	if options == "" || options == "null" {
		options = "{}"
	}
	out, err := s.Engine.StartTransaction(ctx, options, "", engine.NextRequestID())
	if err != nil {
		return nil, xerrors.Wrap(xerrors.EngineFailed, "engine failed to start a transaction", err)
	}
	return parsed(out)
}

func (d *Dispatcher) finishTx(out string, err error) (any, error) {
	if err != nil {
		return nil, xerrors.Wrap(xerrors.EngineFailed, "engine failed to finish the transaction", err)
	}
	return parsed(out)
}

// parsed returns engine output as a JSON value, or an error if it is not one.
func parsed(out string) (any, error) {
	if !json.Valid([]byte(out)) {
		return nil, xerrors.New(xerrors.EngineFailed, "engine returned a result that is not JSON")
	}
	return json.RawMessage(out), nil
}

func (d *Dispatcher) teardown(ctx context.Context, p *jsonrpc.TeardownParams) (any, error) {
	s, ok := d.sessions.Remove(p.SchemaID)
	if !ok {
		return nil, session.NotInitializedError(p.SchemaID)
	}
	if err := s.Close(ctx, engine.NextRequestID()); err != nil {
		return nil, err
	}
	d.logger.Info("schema torn down", d.logger.Args("schema_id", p.SchemaID))
	return struct{}{}, nil
}
