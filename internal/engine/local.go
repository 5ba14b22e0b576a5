// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pterm/pterm"

	"testd/executor/internal/adapter"
)

// defaultTxTimeout applies when transaction options carry no timeout.
const defaultTxTimeout = 5 * time.Second

var errNotConnected = errors.New("engine is not connected")

// Local executes raw operations in process on a driver adapter.
type Local struct {
	adapter adapter.Adapter
	log     LogCallback
	logger  *pterm.Logger

	mu        sync.Mutex
	connected bool
	txs       map[string]*localTx
}

type localTx struct {
	mu    sync.Mutex
	tx    adapter.Transaction
	timer *time.Timer
}

// NewLocal returns an engine over a. logger may be nil.
func NewLocal(a adapter.Adapter, log LogCallback, logger *pterm.Logger) *Local {
	if log == nil {
		log = func(string) {}
	}
	return &Local{adapter: a, log: log, logger: logger, txs: make(map[string]*localTx)}
}

func (e *Local) Connect(_ context.Context, trace string, requestID uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.connected {
		return errors.New("engine is already connected")
	}
	e.connected = true
	e.emit("INFO", fmt.Sprintf("Starting a %s pool through the %s driver adapter", e.adapter.Provider(), e.adapter.AdapterName()),
		map[string]any{"request_id": requestID, "trace": trace})
	return nil
}

func (e *Local) Disconnect(ctx context.Context, trace string, requestID uint64) error {
	e.mu.Lock()
	if !e.connected {
		e.mu.Unlock()
		return errNotConnected
	}
	e.connected = false
	open := e.txs
	e.txs = make(map[string]*localTx)
	e.mu.Unlock()

	var errs []error
	for id, t := range open {
		t.timer.Stop()
		t.mu.Lock()
		if err := e.rollback(ctx, t.tx); err != nil {
			errs = append(errs, fmt.Errorf("rollback transaction %s: %w", id, err))
		}
		t.mu.Unlock()
	}
	e.emit("INFO", "Disconnected", map[string]any{"request_id": requestID, "trace": trace, "open_transactions": len(open)})
	return errors.Join(errs...)
}

func (e *Local) Query(ctx context.Context, body, _ string, txID *string, _ uint64) (string, error) {
	if !e.isConnected() {
		return "", errNotConnected
	}
	var req requestBody
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		return "", fmt.Errorf("query body is not valid JSON: %w", err)
	}

	if txID != nil {
		t, ok := e.lookupTx(*txID)
		if !ok {
			return encode(errorResult(transactionNotFound(*txID)))
		}
		t.mu.Lock()
		defer t.mu.Unlock()
		return e.respond(ctx, t.tx, req)
	}

	if req.Batch != nil && req.Transaction != nil {
		return e.transactionalBatch(ctx, req)
	}
	return e.respond(ctx, e.adapter, req)
}

// respond runs a single operation or a non-transactional batch on q.
func (e *Local) respond(ctx context.Context, q adapter.Queryable, req requestBody) (string, error) {
	if req.Batch == nil {
		return encode(e.run(ctx, q, req.operation))
	}
	out := batchResult{BatchResult: make([]opResult, len(req.Batch))}
	for i, op := range req.Batch {
		out.BatchResult[i] = e.run(ctx, q, op)
	}
	return encode(out)
}

// transactionalBatch runs every operation in one transaction. The first
// failure rolls it back and is returned as the whole answer.
func (e *Local) transactionalBatch(ctx context.Context, req requestBody) (string, error) {
	tx, err := e.adapter.StartTransaction(ctx, req.Transaction.IsolationLevel)
	if err != nil {
		return encode(errorResult(adapterError(err)))
	}
	out := batchResult{BatchResult: make([]opResult, len(req.Batch))}
	for i, op := range req.Batch {
		res := e.run(ctx, tx, op)
		if res.Errors != nil {
			if err := e.rollback(ctx, tx); err != nil {
				e.emit("WARN", "Rollback of a failed batch failed", map[string]any{"error": err.Error()})
			}
			return encode(res)
		}
		out.BatchResult[i] = res
	}
	if err := tx.Commit(ctx); err != nil {
		return encode(errorResult(adapterError(err)))
	}
	return encode(out)
}

func (e *Local) run(ctx context.Context, q adapter.Queryable, op operation) opResult {
	args, err := decodeParameters(op.Query.Arguments.Parameters)
	if err != nil {
		msg := "Failed to validate the query: " + err.Error()
		return errorResult(newEngineError(codeValidation, msg, map[string]any{"query_validation_error": err.Error()}))
	}
	query := adapter.Query{SQL: op.Query.Arguments.Query, Args: args}

	start := time.Now()
	defer func() {
		e.emit("DEBUG", query.SQL, map[string]any{
			"query":       query.SQL,
			"params":      fmt.Sprint(args),
			"duration_ms": time.Since(start).Milliseconds(),
		})
	}()

	switch op.Action {
	case "queryRaw":
		rs, err := q.QueryRaw(ctx, query)
		if err != nil {
			return errorResult(adapterError(err))
		}
		return opResult{Data: map[string]any{"queryRaw": encodeResultSet(rs)}}
	case "executeRaw":
		n, err := q.ExecuteRaw(ctx, query)
		if err != nil {
			return errorResult(adapterError(err))
		}
		return opResult{Data: map[string]any{"executeRaw": n}}
	default:
		msg := fmt.Sprintf("The current database provider doesn't support a feature that the query used: %s", op.Action)
		return errorResult(newEngineError(codeUnsupported, msg, map[string]any{"feature": op.Action}))
	}
}

// txOptions are the interactive transaction options, in milliseconds.
type txOptions struct {
	MaxWait        int64  `json:"max_wait"`
	Timeout        int64  `json:"timeout"`
	IsolationLevel string `json:"isolation_level"`
}

func (e *Local) StartTransaction(ctx context.Context, options, trace string, requestID uint64) (string, error) {
	if !e.isConnected() {
		return "", errNotConnected
	}
	var opts txOptions
	if options != "" {
		if err := json.Unmarshal([]byte(options), &opts); err != nil {
			return "", fmt.Errorf("transaction options are not valid JSON: %w", err)
		}
	}
	timeout := defaultTxTimeout
	if opts.Timeout > 0 {
		timeout = time.Duration(opts.Timeout) * time.Millisecond
	}

	tx, err := e.adapter.StartTransaction(ctx, opts.IsolationLevel)
	if err != nil {
		return encode(errorResult(adapterError(err)))
	}

	id := uuid.NewString()
	t := &localTx{tx: tx}
	e.mu.Lock()
	e.txs[id] = t
	t.timer = time.AfterFunc(timeout, func() { e.expire(id) })
	e.mu.Unlock()

	e.emit("DEBUG", "Started transaction", map[string]any{"id": id, "request_id": requestID, "trace": trace})
	return encode(map[string]string{"id": id})
}

func (e *Local) CommitTransaction(ctx context.Context, txID, _ string, _ uint64) (string, error) {
	return e.finish(ctx, txID, adapter.Transaction.Commit)
}

func (e *Local) RollbackTransaction(ctx context.Context, txID, _ string, _ uint64) (string, error) {
	return e.finish(ctx, txID, adapter.Transaction.Rollback)
}

func (e *Local) finish(ctx context.Context, txID string, end func(adapter.Transaction, context.Context) error) (string, error) {
	if !e.isConnected() {
		return "", errNotConnected
	}
	t, ok := e.takeTx(txID)
	if !ok {
		return encode(errorResult(transactionNotFound(txID)))
	}
	t.timer.Stop()
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := end(t.tx, ctx); err != nil {
		return encode(errorResult(adapterError(err)))
	}
	return "{}", nil
}

// expire rolls back a transaction that outlived its timeout.
func (e *Local) expire(id string) {
	t, ok := e.takeTx(id)
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := e.rollback(context.Background(), t.tx); err != nil {
		e.emit("WARN", "Rollback of an expired transaction failed", map[string]any{"id": id, "error": err.Error()})
		return
	}
	e.emit("WARN", "Transaction expired and was rolled back", map[string]any{"id": id})
}

// rollback ends tx on the engine's own initiative. No result ever names the
// failure, so the native error is taken back out of the adapter's registry.
func (e *Local) rollback(ctx context.Context, tx adapter.Transaction) error {
	err := tx.Rollback(ctx)
	var ext *adapter.ExternalError
	if b, ok := e.adapter.(*adapter.Bound); ok && errors.As(err, &ext) {
		if native, found := b.Errors.Take(ext.ID); found {
			return native
		}
	}
	return err
}

func (e *Local) isConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connected
}

func (e *Local) lookupTx(id string) (*localTx, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.txs[id]
	return t, ok
}

func (e *Local) takeTx(id string) (*localTx, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t, ok := e.txs[id]
	if ok {
		delete(e.txs, id)
	}
	return t, ok
}

// emit hands one JSON log line to the session callback and mirrors it at
// trace level.
func (e *Local) emit(level, message string, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["message"] = message
	line, err := encode(map[string]any{
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"level":     level,
		"fields":    fields,
		"target":    "testd::engine",
	})
	if err != nil {
		return
	}
	e.log(line)
	if e.logger != nil {
		e.logger.Trace("engine log", e.logger.Args("line", line))
	}
}
