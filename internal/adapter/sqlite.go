// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// database/sql driver names registered by the two SQLite drivers.
const (
	driverMattn   = "sqlite3"
	driverModernc = "sqlite"
)

// sqliteMaxBindValues is SQLITE_MAX_VARIABLE_NUMBER as compiled into older
// SQLite releases, the lowest limit the engine may meet.
const sqliteMaxBindValues = 999

// SQLiteAdapter executes statements on a database/sql SQLite handle.
type SQLiteAdapter struct {
	db   *sqlx.DB
	name string
}

// NewSQLiteAdapter wraps db. name is reported as the adapter name.
func NewSQLiteAdapter(db *sqlx.DB, name string) *SQLiteAdapter {
	return &SQLiteAdapter{db: db, name: name}
}

// OpenSQLite opens and pings a SQLite database with the given driver.
func OpenSQLite(ctx context.Context, driverName, dsn string, maxConns int) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func (a *SQLiteAdapter) Provider() Provider  { return ProviderSQLite }
func (a *SQLiteAdapter) AdapterName() string { return a.name }

func (a *SQLiteAdapter) QueryRaw(ctx context.Context, q Query) (*ResultSet, error) {
	return sqliteQueryRaw(ctx, a.db, q)
}

func (a *SQLiteAdapter) ExecuteRaw(ctx context.Context, q Query) (int64, error) {
	return sqliteExecuteRaw(ctx, a.db, q)
}

func (a *SQLiteAdapter) ExecuteScript(ctx context.Context, script string) error {
	if _, err := a.db.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("execute script: %w", err)
	}
	return nil
}

func (a *SQLiteAdapter) StartTransaction(ctx context.Context, isolation string) (Transaction, error) {
	switch isolation {
	case "", IsolationSerializable:
	default:
		return nil, fmt.Errorf("isolation level %q is not supported by sqlite", isolation)
	}
	tx, err := a.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx}, nil
}

func (a *SQLiteAdapter) Dispose() error { return a.db.Close() }

func (a *SQLiteAdapter) ConnectionInfo() (ConnectionInfo, error) {
	return ConnectionInfo{SchemaName: "main", MaxBindValues: sqliteMaxBindValues}, nil
}

type sqliteTx struct {
	tx *sqlx.Tx
}

func (t *sqliteTx) QueryRaw(ctx context.Context, q Query) (*ResultSet, error) {
	return sqliteQueryRaw(ctx, t.tx, q)
}

func (t *sqliteTx) ExecuteRaw(ctx context.Context, q Query) (int64, error) {
	return sqliteExecuteRaw(ctx, t.tx, q)
}

func (t *sqliteTx) Commit(context.Context) error   { return t.tx.Commit() }
func (t *sqliteTx) Rollback(context.Context) error { return t.tx.Rollback() }

func sqliteExecuteRaw(ctx context.Context, db sqlx.ExtContext, q Query) (int64, error) {
	res, err := db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func sqliteQueryRaw(ctx context.Context, db sqlx.ExtContext, q Query) (*ResultSet, error) {
	rows, err := db.QueryxContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{
		ColumnNames: make([]string, len(cols)),
		ColumnTypes: make([]ColumnType, len(cols)),
		Rows:        [][]any{},
	}
	for i, c := range cols {
		rs.ColumnNames[i] = c.Name()
		rs.ColumnTypes[i] = sqliteDeclaredType(c.DatabaseTypeName())
	}

	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			vals[i] = sqliteValue(v, rs.ColumnTypes[i])
		}
		rs.Rows = append(rs.Rows, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Expression columns carry no declared type; take it from the data.
	for i, t := range rs.ColumnTypes {
		if t == ColumnUnknown {
			rs.ColumnTypes[i] = inferColumnType(rs.Rows, i)
		}
	}
	return rs, nil
}

// sqliteDeclaredType applies SQLite's affinity rules to a declared column type.
func sqliteDeclaredType(decl string) ColumnType {
	d := strings.ToUpper(decl)
	switch {
	case d == "":
		return ColumnUnknown
	case d == "BIGINT":
		return ColumnInt64
	case d == "BOOLEAN" || d == "BOOL":
		return ColumnBoolean
	case d == "DATE":
		return ColumnDate
	case d == "TIME":
		return ColumnTime
	case strings.HasPrefix(d, "DATETIME") || strings.HasPrefix(d, "TIMESTAMP"):
		return ColumnDateTime
	case d == "JSONB" || d == "JSON":
		return ColumnJSON
	case strings.HasPrefix(d, "DECIMAL") || strings.HasPrefix(d, "NUMERIC"):
		return ColumnNumeric
	case strings.Contains(d, "INT"):
		return ColumnInt32
	case strings.Contains(d, "CHAR") || strings.Contains(d, "CLOB") || strings.Contains(d, "TEXT"):
		return ColumnText
	case strings.Contains(d, "BLOB"):
		return ColumnBytes
	case strings.Contains(d, "REAL") || strings.Contains(d, "FLOA") || strings.Contains(d, "DOUB"):
		return ColumnDouble
	}
	return ColumnNumeric
}

func inferColumnType(rows [][]any, col int) ColumnType {
	for _, row := range rows {
		switch row[col].(type) {
		case nil:
			continue
		case int64:
			return ColumnInt64
		case float64:
			return ColumnDouble
		case string:
			return ColumnText
		case []byte:
			return ColumnBytes
		case time.Time:
			return ColumnDateTime
		case bool:
			return ColumnBoolean
		}
	}
	return ColumnInt32
}

// sqliteValue normalises a scanned value for its column type.
func sqliteValue(v any, t ColumnType) any {
	switch val := v.(type) {
	case int64:
		switch t {
		case ColumnBoolean:
			return val != 0
		case ColumnDouble:
			return float64(val)
		}
		return val
	case []byte:
		if t == ColumnBytes {
			return val
		}
		return sqliteValue(string(val), t)
	case string:
		if t == ColumnJSON && json.Valid([]byte(val)) {
			return json.RawMessage(val)
		}
		return val
	}
	return v
}
