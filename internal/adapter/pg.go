// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/netip"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgMaxBindValues is the bind parameter limit the engine should chunk at.
// The wire protocol allows 65535; the engine keeps half as headroom.
const pgMaxBindValues = 32766

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PgAdapter executes statements on a pgx connection pool.
type PgAdapter struct {
	// Pool is the PostgreSQL connection pool
	Pool   *pgxpool.Pool
	schema string
}

// NewPgAdapter creates an adapter over pool. schema is reported in
// ConnectionInfo and defaults to public.
func NewPgAdapter(pool *pgxpool.Pool, schema string) *PgAdapter {
	if schema == "" {
		schema = "public"
	}
	return &PgAdapter{Pool: pool, schema: schema}
}

func (a *PgAdapter) Provider() Provider  { return ProviderPostgres }
func (a *PgAdapter) AdapterName() string { return "pg" }

func (a *PgAdapter) QueryRaw(ctx context.Context, q Query) (*ResultSet, error) {
	return pgQueryRaw(ctx, a.Pool, q)
}

func (a *PgAdapter) ExecuteRaw(ctx context.Context, q Query) (int64, error) {
	return pgExecuteRaw(ctx, a.Pool, q)
}

// ExecuteScript runs script over the simple protocol, which allows several
// statements in one call.
func (a *PgAdapter) ExecuteScript(ctx context.Context, script string) error {
	if _, err := a.Pool.Exec(ctx, script); err != nil {
		return fmt.Errorf("execute script: %w", err)
	}
	return nil
}

func (a *PgAdapter) StartTransaction(ctx context.Context, isolation string) (Transaction, error) {
	opts := pgx.TxOptions{}
	switch isolation {
	case "":
	case IsolationReadUncommitted:
		opts.IsoLevel = pgx.ReadUncommitted
	case IsolationReadCommitted:
		opts.IsoLevel = pgx.ReadCommitted
	case IsolationRepeatableRead:
		opts.IsoLevel = pgx.RepeatableRead
	case IsolationSerializable:
		opts.IsoLevel = pgx.Serializable
	default:
		return nil, fmt.Errorf("isolation level %q is not supported by postgres", isolation)
	}
	tx, err := a.Pool.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx}, nil
}

func (a *PgAdapter) Dispose() error {
	a.Pool.Close()
	return nil
}

func (a *PgAdapter) ConnectionInfo() (ConnectionInfo, error) {
	return ConnectionInfo{SchemaName: a.schema, MaxBindValues: pgMaxBindValues}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) QueryRaw(ctx context.Context, q Query) (*ResultSet, error) {
	return pgQueryRaw(ctx, t.tx, q)
}

func (t *pgTx) ExecuteRaw(ctx context.Context, q Query) (int64, error) {
	return pgExecuteRaw(ctx, t.tx, q)
}

func (t *pgTx) Commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgTx) Rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

func pgExecuteRaw(ctx context.Context, db pgQuerier, q Query) (int64, error) {
	ct, err := db.Exec(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

func pgQueryRaw(ctx context.Context, db pgQuerier, q Query) (*ResultSet, error) {
	rows, err := db.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	rs := &ResultSet{
		ColumnNames: make([]string, len(fds)),
		ColumnTypes: make([]ColumnType, len(fds)),
		Rows:        [][]any{},
	}
	for i, fd := range fds {
		rs.ColumnNames[i] = fd.Name
		rs.ColumnTypes[i] = pgColumnType(fd.DataTypeOID)
	}

	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make([]any, len(vals))
		for i, v := range vals {
			row[i] = pgValue(v)
		}
		rs.Rows = append(rs.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rs, nil
}

func pgColumnType(oid uint32) ColumnType {
	switch oid {
	case pgtype.Int2OID, pgtype.Int4OID:
		return ColumnInt32
	case pgtype.Int8OID:
		return ColumnInt64
	case pgtype.Float4OID:
		return ColumnFloat
	case pgtype.Float8OID:
		return ColumnDouble
	case pgtype.NumericOID:
		return ColumnNumeric
	case pgtype.BoolOID:
		return ColumnBoolean
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID, pgtype.NameOID:
		return ColumnText
	case pgtype.DateOID:
		return ColumnDate
	case pgtype.TimeOID:
		return ColumnTime
	case pgtype.TimestampOID, pgtype.TimestamptzOID:
		return ColumnDateTime
	case pgtype.JSONOID, pgtype.JSONBOID:
		return ColumnJSON
	case pgtype.UUIDOID:
		return ColumnUUID
	case pgtype.ByteaOID:
		return ColumnBytes
	}
	return ColumnUnknown
}

// pgValue converts a value decoded by pgx into one of the ResultSet value types.
func pgValue(val any) any {
	switch v := val.(type) {
	case nil:
		return nil
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	case int64:
		return v
	case float32:
		return float64(v)
	case float64, bool, string, []byte, time.Time:
		return v
	case [16]byte:
		return uuid.UUID(v).String()
	case pgtype.Numeric:
		if !v.Valid {
			return nil
		}
		b, err := v.MarshalJSON()
		if err != nil {
			return nil
		}
		return string(b)
	case pgtype.Time:
		if !v.Valid {
			return nil
		}
		return time.Time{}.Add(time.Duration(v.Microseconds) * time.Microsecond)
	case netip.Prefix:
		return v.String()
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil
		}
		return json.RawMessage(b)
	default:
		return fmt.Sprint(v)
	}
}
