// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package engine holds the query engine connectors a schema session drives.
//
// Three connectors exist. Local runs raw queries in process against a bound
// driver adapter and is used for the Napi and Wasm executors. Mobile forwards
// every call to a React Native emulator over HTTP. Remote forwards every call
// to an out-of-process engine host over gRPC. All of them speak the same
// text protocol: request bodies and results are JSON documents passed through
// as strings, so callers can relay them without re-encoding.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/pterm/pterm"

	"testd/executor/internal/adapter"
	"testd/executor/internal/config"
	xerrors "testd/executor/internal/errors"
)

// Engine is a connected query engine for one schema.
type Engine interface {
	Connect(ctx context.Context, trace string, requestID uint64) error
	// Query runs a JSON protocol request, inside txID when it is non-nil.
	Query(ctx context.Context, body, trace string, txID *string, requestID uint64) (string, error)
	// StartTransaction opens an interactive transaction and returns its
	// descriptor, a JSON object with an "id" field.
	StartTransaction(ctx context.Context, options, trace string, requestID uint64) (string, error)
	CommitTransaction(ctx context.Context, txID, trace string, requestID uint64) (string, error)
	RollbackTransaction(ctx context.Context, txID, trace string, requestID uint64) (string, error)
	Disconnect(ctx context.Context, trace string, requestID uint64) error
}

// LogCallback receives one engine log line, a JSON object, at a time.
type LogCallback func(line string)

var requestCounter atomic.Uint64

// NextRequestID returns the next process-wide request id. Ids start at 1.
func NextRequestID() uint64 {
	return requestCounter.Add(1)
}

// Options are the per-session inputs to New.
type Options struct {
	// Schema is the datamodel text the engine is built for.
	Schema string
	// URL is the datasource URL, forwarded to engines that open their own
	// connections.
	URL string
	// Adapter is the bound driver adapter. Mobile sessions have none.
	Adapter adapter.Adapter
	// Provider is the database family of the session's driver adapter
	// manager. Remote engines are told which connector to build.
	Provider adapter.Provider
	Log      LogCallback
	Logger   *pterm.Logger
}

// New builds the engine for the configured executor mode. The engine is
// not connected yet.
func New(cfg config.Config, opts Options) (Engine, error) {
	if opts.Log == nil {
		opts.Log = func(string) {}
	}
	switch cfg.Executor {
	case config.ExecutorNapi, config.ExecutorWasm:
		if opts.Adapter == nil {
			return nil, xerrors.New(xerrors.EngineFailed, "executor "+string(cfg.Executor)+" requires a driver adapter")
		}
		if opts.Provider != "" && opts.Provider != opts.Adapter.Provider() {
			return nil, xerrors.New(xerrors.EngineFailed, fmt.Sprintf("driver adapter %s serves %s, not %s",
				opts.Adapter.AdapterName(), opts.Adapter.Provider(), opts.Provider))
		}
		return NewLocal(opts.Adapter, opts.Log, opts.Logger), nil
	case config.ExecutorMobile:
		return NewMobile(cfg.MobileEmulatorURL, opts.Schema, opts.Log), nil
	case config.ExecutorRemote:
		return NewRemote(cfg.EngineGRPCAddr, RemoteOptions{Schema: opts.Schema, URL: opts.URL, Provider: opts.Provider, Log: opts.Log})
	case config.ExecutorQueryCompiler:
		return nil, xerrors.New(xerrors.UnsupportedExecutor,
			"query compiler tests must be run using the query compiler executor")
	default:
		return nil, xerrors.New(xerrors.UnsupportedExecutor, fmt.Sprintf("unknown executor %q", cfg.Executor))
	}
}
