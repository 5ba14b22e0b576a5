// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package adapter

import (
	"context"
	"fmt"

	"testd/executor/internal/errregistry"
)

// ExternalError is what a bound adapter returns in place of a native error.
// The native error stays in the adapter's registry under ID.
type ExternalError struct {
	ID uint64
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("error in external connector (id %d)", e.ID)
}

// Bound wraps an Adapter so that every failing call registers its native
// error in Errors and returns an *ExternalError instead.
type Bound struct {
	inner  Adapter
	Errors *errregistry.Registry
}

// Bind wraps a with a fresh error registry.
func Bind(a Adapter) *Bound {
	return &Bound{inner: a, Errors: errregistry.New()}
}

func (b *Bound) capture(err error) error {
	if err == nil {
		return nil
	}
	return &ExternalError{ID: b.Errors.Register(err)}
}

func (b *Bound) Provider() Provider  { return b.inner.Provider() }
func (b *Bound) AdapterName() string { return b.inner.AdapterName() }

func (b *Bound) QueryRaw(ctx context.Context, q Query) (*ResultSet, error) {
	rs, err := b.inner.QueryRaw(ctx, q)
	if err != nil {
		return nil, b.capture(err)
	}
	return rs, nil
}

func (b *Bound) ExecuteRaw(ctx context.Context, q Query) (int64, error) {
	n, err := b.inner.ExecuteRaw(ctx, q)
	if err != nil {
		return 0, b.capture(err)
	}
	return n, nil
}

func (b *Bound) ExecuteScript(ctx context.Context, script string) error {
	return b.capture(b.inner.ExecuteScript(ctx, script))
}

func (b *Bound) StartTransaction(ctx context.Context, isolation string) (Transaction, error) {
	tx, err := b.inner.StartTransaction(ctx, isolation)
	if err != nil {
		return nil, b.capture(err)
	}
	return &boundTx{inner: tx, capture: b.capture}, nil
}

// Dispose is called by the manager, not the engine, so its error is returned as is.
func (b *Bound) Dispose() error { return b.inner.Dispose() }

// ConnectionInfo forwards to the wrapped adapter when it reports connection
// info, and returns ErrNoConnectionInfo otherwise.
func (b *Bound) ConnectionInfo() (ConnectionInfo, error) {
	p, ok := b.inner.(ConnectionInfoProvider)
	if !ok {
		return ConnectionInfo{}, ErrNoConnectionInfo
	}
	return p.ConnectionInfo()
}

type boundTx struct {
	inner   Transaction
	capture func(error) error
}

func (t *boundTx) QueryRaw(ctx context.Context, q Query) (*ResultSet, error) {
	rs, err := t.inner.QueryRaw(ctx, q)
	if err != nil {
		return nil, t.capture(err)
	}
	return rs, nil
}

func (t *boundTx) ExecuteRaw(ctx context.Context, q Query) (int64, error) {
	n, err := t.inner.ExecuteRaw(ctx, q)
	if err != nil {
		return 0, t.capture(err)
	}
	return n, nil
}

func (t *boundTx) Commit(ctx context.Context) error   { return t.capture(t.inner.Commit(ctx)) }
func (t *boundTx) Rollback(ctx context.Context) error { return t.capture(t.inner.Rollback(ctx)) }
