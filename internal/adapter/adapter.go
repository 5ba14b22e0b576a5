// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package adapter defines the driver adapter contract the query engine runs
// against and ships the adapters this executor can test: pg on pgx, and two
// SQLite flavours on database/sql through sqlx (better-sqlite3 on
// mattn/go-sqlite3, libsql on modernc.org/sqlite).
//
// A Manager owns the lifetime of one adapter for one schema session. Adapters
// handed to an engine are wrapped with Bind so that native errors are parked
// in an error registry and only their numeric id crosses the engine boundary.
package adapter

import (
	"context"
	"errors"
)

// Provider identifies the database family an adapter talks to.
type Provider string

const (
	ProviderPostgres Provider = "postgres"
	ProviderSQLite   Provider = "sqlite"
)

// ColumnType is the engine-facing type of a result column.
type ColumnType string

const (
	ColumnInt32    ColumnType = "int"
	ColumnInt64    ColumnType = "bigint"
	ColumnFloat    ColumnType = "float"
	ColumnDouble   ColumnType = "double"
	ColumnNumeric  ColumnType = "numeric"
	ColumnBoolean  ColumnType = "boolean"
	ColumnText     ColumnType = "string"
	ColumnDate     ColumnType = "date"
	ColumnTime     ColumnType = "time"
	ColumnDateTime ColumnType = "datetime"
	ColumnJSON     ColumnType = "json"
	ColumnUUID     ColumnType = "uuid"
	ColumnBytes    ColumnType = "bytes"
	ColumnUnknown  ColumnType = "unknown"
)

// Query is one SQL statement with positional arguments.
type Query struct {
	SQL  string
	Args []any
}

// ResultSet is the result of a row-returning query. Row values are one of
// nil, bool, int64, float64, string, []byte, time.Time or json.RawMessage.
type ResultSet struct {
	ColumnNames []string
	ColumnTypes []ColumnType
	Rows        [][]any
}

// Queryable runs statements.
type Queryable interface {
	QueryRaw(ctx context.Context, q Query) (*ResultSet, error)
	ExecuteRaw(ctx context.Context, q Query) (int64, error)
}

// Transaction is an open transaction on an adapter.
type Transaction interface {
	Queryable
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Adapter is a connection provider for one storage backend.
type Adapter interface {
	Queryable
	Provider() Provider
	AdapterName() string
	// ExecuteScript runs a multi-statement script outside any transaction.
	ExecuteScript(ctx context.Context, script string) error
	// StartTransaction opens a transaction. An empty isolation level keeps
	// the database default.
	StartTransaction(ctx context.Context, isolation string) (Transaction, error)
	Dispose() error
}

// ConnectionInfo describes capabilities of an open connection.
type ConnectionInfo struct {
	SchemaName    string
	MaxBindValues int
}

// ConnectionInfoProvider is implemented by adapters that report ConnectionInfo.
type ConnectionInfoProvider interface {
	ConnectionInfo() (ConnectionInfo, error)
}

// ErrNoConnectionInfo is returned when an adapter does not report ConnectionInfo.
var ErrNoConnectionInfo = errors.New("adapter does not expose connection info")

// Isolation levels as the engine names them in transaction options.
const (
	IsolationReadUncommitted = "ReadUncommitted"
	IsolationReadCommitted   = "ReadCommitted"
	IsolationRepeatableRead  = "RepeatableRead"
	IsolationSnapshot        = "Snapshot"
	IsolationSerializable    = "Serializable"
)
