// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"testd/executor/internal/config"
	"testd/executor/internal/dsn"
	xerrors "testd/executor/internal/errors"
)

// Manager owns one driver adapter for the lifetime of a schema session.
type Manager interface {
	// Connect opens the adapter, running the migration script on first use.
	Connect(ctx context.Context) (Adapter, error)
	// Connector names the database family the engine must be built for.
	Connector() Provider
	// Teardown releases the adapter. It is safe to call when Connect never ran.
	Teardown(ctx context.Context) error
}

// SetupParams are the per-session inputs to Setup.
type SetupParams struct {
	URL             string
	MigrationScript *string
}

// Setup creates the manager for the configured driver adapter. Nothing is
// opened until Connect.
func Setup(cfg config.Config, params SetupParams) (Manager, error) {
	info, normalized, err := dsn.Resolve(params.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.UnsupportedAdapter, "cannot use connection URL", err)
	}

	var script string
	if params.MigrationScript != nil {
		script = *params.MigrationScript
	}
	maxConns := cfg.DriverAdapterConfig.MaxConnections

	switch cfg.DriverAdapter {
	case config.AdapterPg:
		if info.Type != dsn.DBTypePostgreSQL {
			return nil, mismatch(cfg.DriverAdapter, info.Type)
		}
		return &pgManager{
			managerBase: managerBase{dsn: normalized, script: script, maxConns: maxConns},
			schema:      info.Schema,
		}, nil
	case config.AdapterBetterSQLite3:
		if info.Type != dsn.DBTypeSQLite {
			return nil, mismatch(cfg.DriverAdapter, info.Type)
		}
		return &sqliteManager{
			managerBase: managerBase{dsn: normalized, script: script, maxConns: maxConns},
			driverName:  driverMattn,
			name:        string(config.AdapterBetterSQLite3),
		}, nil
	case config.AdapterLibSQL:
		if info.Type != dsn.DBTypeSQLite {
			return nil, mismatch(cfg.DriverAdapter, info.Type)
		}
		return &sqliteManager{
			managerBase: managerBase{dsn: normalized, script: script, maxConns: maxConns},
			driverName:  driverModernc,
			name:        string(config.AdapterLibSQL),
		}, nil
	default:
		return nil, xerrors.New(xerrors.UnsupportedAdapter, fmt.Sprintf("driver adapter %q is not supported", cfg.DriverAdapter))
	}
}

func mismatch(a config.DriverAdapter, t dsn.DBType) error {
	return xerrors.New(xerrors.UnsupportedAdapter,
		fmt.Sprintf("driver adapter %q cannot connect to a %s URL", a, t))
}

// managerBase holds what every manager needs and the connect-once bookkeeping.
type managerBase struct {
	dsn      string
	script   string
	maxConns int

	mu      sync.Mutex
	adapter Adapter
}

// connect opens the adapter with open on first call and runs the migration
// script; later calls return the same adapter.
func (m *managerBase) connect(ctx context.Context, open func(context.Context) (Adapter, error)) (Adapter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adapter != nil {
		return m.adapter, nil
	}

	a, err := open(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.AdapterFailed, "driver adapter failed to connect", err)
	}
	if strings.TrimSpace(m.script) != "" {
		if err := a.ExecuteScript(ctx, m.script); err != nil {
			_ = a.Dispose()
			return nil, xerrors.Wrap(xerrors.AdapterFailed, "migration script failed", err)
		}
	}
	m.adapter = a
	return a, nil
}

func (m *managerBase) Teardown(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adapter == nil {
		return nil
	}
	err := m.adapter.Dispose()
	m.adapter = nil
	if err != nil {
		return xerrors.Wrap(xerrors.AdapterFailed, "driver adapter failed to close", err)
	}
	return nil
}

type pgManager struct {
	managerBase
	schema string
}

func (m *pgManager) Connector() Provider { return ProviderPostgres }

func (m *pgManager) Connect(ctx context.Context) (Adapter, error) {
	return m.connect(ctx, func(ctx context.Context) (Adapter, error) {
		pcfg, err := pgxpool.ParseConfig(m.dsn)
		if err != nil {
			return nil, err
		}
		if m.schema != "" {
			pcfg.ConnConfig.RuntimeParams["search_path"] = m.schema
		}
		if m.maxConns > 0 {
			pcfg.MaxConns = int32(m.maxConns)
		}
		pool, err := pgxpool.NewWithConfig(ctx, pcfg)
		if err != nil {
			return nil, err
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return NewPgAdapter(pool, m.schema), nil
	})
}

type sqliteManager struct {
	managerBase
	driverName string
	name       string
}

func (m *sqliteManager) Connector() Provider { return ProviderSQLite }

func (m *sqliteManager) Connect(ctx context.Context) (Adapter, error) {
	return m.connect(ctx, func(ctx context.Context) (Adapter, error) {
		db, err := OpenSQLite(ctx, m.driverName, m.dsn, m.maxConns)
		if err != nil {
			return nil, err
		}
		return NewSQLiteAdapter(db, m.name), nil
	})
}
