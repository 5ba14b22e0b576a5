// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"testd/executor/internal/adapter"
	xerrors "testd/executor/internal/errors"
	"testd/executor/internal/httperrors"
)

// remoteService is the fully qualified gRPC service of the engine host.
const remoteService = "/queryengine.Engine/"

// RemoteOptions configure a Remote connector.
type RemoteOptions struct {
	Schema   string
	URL      string
	Provider adapter.Provider
	Log      LogCallback
	// DialOptions replace the transport credentials derived from the address.
	DialOptions []grpc.DialOption
}

// Remote forwards engine calls to an engine host over unary gRPC calls.
// Requests and responses are google.protobuf.StringValue messages carrying
// JSON text. Engine log lines come back in the x-engine-log trailer.
type Remote struct {
	conn   *grpc.ClientConn
	target string
	opts   RemoteOptions
}

// NewRemote creates a client for the engine host at addr. An address of the
// form tls://host[:port] uses TLS with the host as server name and port 443
// by default; any other address is dialled in plaintext.
func NewRemote(addr string, opts RemoteOptions) (*Remote, error) {
	if opts.Log == nil {
		opts.Log = func(string) {}
	}
	target, creds := remoteTarget(addr)
	dial := opts.DialOptions
	if len(dial) == 0 {
		dial = []grpc.DialOption{grpc.WithTransportCredentials(creds)}
	}
	conn, err := grpc.NewClient(target, dial...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.EngineFailed, "cannot create engine host client", err)
	}
	return &Remote{conn: conn, target: target, opts: opts}, nil
}

func remoteTarget(addr string) (string, credentials.TransportCredentials) {
	rest, ok := strings.CutPrefix(addr, "tls://")
	if !ok {
		return addr, insecure.NewCredentials()
	}
	host, target := rest, rest
	if h, _, err := net.SplitHostPort(rest); err == nil {
		host = h
	} else {
		target = net.JoinHostPort(rest, "443")
	}
	return target, credentials.NewTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12})
}

func (r *Remote) Connect(ctx context.Context, trace string, requestID uint64) error {
	_, err := r.invoke(ctx, "Connect", map[string]any{
		"datamodel": r.opts.Schema,
		"url":       r.opts.URL,
		"provider":  string(r.opts.Provider),
	}, trace, requestID)
	return err
}

func (r *Remote) Query(ctx context.Context, body, trace string, txID *string, requestID uint64) (string, error) {
	return r.invoke(ctx, "Query", map[string]any{"body": body, "txId": txID}, trace, requestID)
}

func (r *Remote) StartTransaction(ctx context.Context, options, trace string, requestID uint64) (string, error) {
	return r.invoke(ctx, "StartTransaction", map[string]any{"options": options}, trace, requestID)
}

func (r *Remote) CommitTransaction(ctx context.Context, txID, trace string, requestID uint64) (string, error) {
	return r.invoke(ctx, "CommitTransaction", map[string]any{"txId": txID}, trace, requestID)
}

func (r *Remote) RollbackTransaction(ctx context.Context, txID, trace string, requestID uint64) (string, error) {
	return r.invoke(ctx, "RollbackTransaction", map[string]any{"txId": txID}, trace, requestID)
}

// Disconnect tells the host to release the engine and closes the client
// connection, even when the call fails.
func (r *Remote) Disconnect(ctx context.Context, trace string, requestID uint64) error {
	_, err := r.invoke(ctx, "Disconnect", map[string]any{}, trace, requestID)
	if cerr := r.conn.Close(); err == nil {
		err = cerr
	}
	return err
}

func (r *Remote) invoke(ctx context.Context, method string, payload any, trace string, requestID uint64) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	md := metadata.Pairs("x-request-id", strconv.FormatUint(requestID, 10))
	if trace != "" {
		md.Append("traceparent", trace)
	}
	ctx = metadata.NewOutgoingContext(ctx, md)

	var trailer metadata.MD
	out := &wrapperspb.StringValue{}
	err = r.conn.Invoke(ctx, remoteService+method, wrapperspb.String(string(b)), out, grpc.Trailer(&trailer))
	for _, line := range trailer.Get("x-engine-log") {
		r.opts.Log(line)
	}
	if err != nil {
		if st, ok := status.FromError(err); ok {
			if st.Code() == codes.Unavailable || st.Code() == codes.DeadlineExceeded {
				return "", fmt.Errorf("engine host %s: %w", method, httperrors.FormatNetworkError(err, r.target))
			}
			return "", fmt.Errorf("engine host %s: %s: %s", method, st.Code(), st.Message())
		}
		return "", fmt.Errorf("engine host %s: %w", method, err)
	}
	return out.GetValue(), nil
}
