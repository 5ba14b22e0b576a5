// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package server

import (
	"context"
	"errors"
	"sync"

	"testd/executor/internal/adapter"
	"testd/executor/internal/config"
	"testd/executor/internal/engine"
)

var errFake = errors.New("fake adapter has no database")

type fakeAdapter struct{}

func (fakeAdapter) Provider() adapter.Provider { return adapter.ProviderSQLite }
func (fakeAdapter) AdapterName() string        { return "fake" }
func (fakeAdapter) Dispose() error             { return nil }

func (fakeAdapter) QueryRaw(context.Context, adapter.Query) (*adapter.ResultSet, error) {
	return nil, errFake
}

func (fakeAdapter) ExecuteRaw(context.Context, adapter.Query) (int64, error) {
	return 0, errFake
}

func (fakeAdapter) ExecuteScript(context.Context, string) error { return nil }

func (fakeAdapter) StartTransaction(context.Context, string) (adapter.Transaction, error) {
	return nil, errFake
}

type fakeManager struct {
	mu          sync.Mutex
	connects    int
	teardowns   int
	connectErr  error
	teardownErr error
}

func (m *fakeManager) Connect(context.Context) (adapter.Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connects++
	if m.connectErr != nil {
		return nil, m.connectErr
	}
	return fakeAdapter{}, nil
}

func (m *fakeManager) Connector() adapter.Provider { return adapter.ProviderSQLite }

func (m *fakeManager) Teardown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardowns++
	return m.teardownErr
}

func (m *fakeManager) counts() (connects, teardowns int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects, m.teardowns
}

// fakeEngine answers with canned text and records calls.
type fakeEngine struct {
	log      engine.LogCallback
	provider adapter.Provider

	mu            sync.Mutex
	calls         []string
	queryResult   string
	queryPanic    any
	connectErr    error
	disconnectErr error
}

func (e *fakeEngine) record(call string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, call)
}

func (e *fakeEngine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.calls...)
}

func (e *fakeEngine) Connect(context.Context, string, uint64) error {
	e.record("connect")
	if e.connectErr != nil {
		return e.connectErr
	}
	e.log(`{"level":"INFO","fields":{"message":"connected"}}`)
	return nil
}

func (e *fakeEngine) Query(_ context.Context, body, _ string, txID *string, _ uint64) (string, error) {
	e.record("query " + body)
	if e.queryPanic != nil {
		panic(e.queryPanic)
	}
	if txID != nil && *txID == "missing" {
		return "", errors.New("transaction missing is closed")
	}
	return e.queryResult, nil
}

func (e *fakeEngine) StartTransaction(_ context.Context, options, _ string, _ uint64) (string, error) {
	e.record("startTx " + options)
	return `{"id":"tx-1"}`, nil
}

func (e *fakeEngine) CommitTransaction(_ context.Context, txID, trace string, _ uint64) (string, error) {
	e.record("commitTx " + txID + " " + trace)
	return `{}`, nil
}

func (e *fakeEngine) RollbackTransaction(_ context.Context, txID, trace string, _ uint64) (string, error) {
	e.record("rollbackTx " + txID + " " + trace)
	return `{}`, nil
}

func (e *fakeEngine) Disconnect(context.Context, string, uint64) error {
	e.record("disconnect")
	return e.disconnectErr
}

// fakes builds the factories of a dispatcher and remembers what they made.
type fakes struct {
	mu       sync.Mutex
	engines  []*fakeEngine
	managers []*fakeManager

	queryResult      string
	queryPanic       any
	disconnectErr    error
	teardownErr      error
	connectErr       error
	newEngineErr     error
	engineConnectErr error
}

func (f *fakes) deps() Deps {
	return Deps{
		NewEngine: func(_ config.Config, opts engine.Options) (engine.Engine, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.newEngineErr != nil {
				return nil, f.newEngineErr
			}
			e := &fakeEngine{
				log:           opts.Log,
				provider:      opts.Provider,
				queryResult:   f.queryResult,
				queryPanic:    f.queryPanic,
				connectErr:    f.engineConnectErr,
				disconnectErr: f.disconnectErr,
			}
			f.engines = append(f.engines, e)
			return e, nil
		},
		NewManager: func(config.Config, adapter.SetupParams) (adapter.Manager, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			m := &fakeManager{connectErr: f.connectErr, teardownErr: f.teardownErr}
			f.managers = append(f.managers, m)
			return m, nil
		},
	}
}

func (f *fakes) made() (engines, managers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.engines), len(f.managers)
}

func (f *fakes) engine(i int) *fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.engines[i]
}

func (f *fakes) manager(i int) *fakeManager {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.managers[i]
}
