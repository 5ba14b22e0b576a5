// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package jsonrpc implements the newline-delimited JSON-RPC 2.0 codec spoken on
// the executor's stdin and stdout. Requests are validated against the shape of
// their method's params before they reach the dispatcher; responses are written
// as one compact JSON line each.
package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Version is the only protocol version accepted and emitted.
const Version = "2.0"

// ErrorCode is the code carried by every error response.
const ErrorCode = 1

// ID is a request correlation token. It holds the literal JSON number text
// so that it is echoed back byte for byte.
type ID string

// UnmarshalJSON accepts JSON numbers only.
func (id *ID) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	n, ok := v.(json.Number)
	if !ok {
		return fmt.Errorf("id must be a number, got %s", b)
	}
	*id = ID(n)
	return nil
}

// MarshalJSON writes the id exactly as it was received.
func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return []byte(id), nil
}

// Request is a decoded, validated request line.
type Request struct {
	ID     ID
	Method Method
	// Name is the method name as sent on the wire.
	Name string
	// Params is nil when Method is MethodUnknown.
	Params Params
}

type envelope struct {
	JSONRPC *string         `json:"jsonrpc"`
	ID      *ID             `json:"id"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Decode parses one request line. Lines that are not JSON, lack a numeric id
// or a method, or carry params that do not fit a known method are rejected.
// A request for an unknown method is returned with MethodUnknown so that it
// can still be answered.
func Decode(line []byte) (*Request, error) {
	var env envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return nil, fmt.Errorf("malformed request: %w", err)
	}
	if env.JSONRPC != nil && *env.JSONRPC != Version {
		return nil, fmt.Errorf("unsupported jsonrpc version %q", *env.JSONRPC)
	}
	if env.ID == nil {
		return nil, fmt.Errorf("request id is required")
	}
	if env.Method == nil {
		return nil, fmt.Errorf("request method is required")
	}

	req := &Request{
		ID:     *env.ID,
		Method: ParseMethod(*env.Method),
		Name:   *env.Method,
	}
	if req.Method == MethodUnknown {
		return req, nil
	}

	params, err := decodeParams(req.Method, env.Params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.Name, err)
	}
	req.Params = params
	return req, nil
}

// RPCError is the error object of an error response.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// OKResponse is a success response.
type OKResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      ID     `json:"id"`
	Result  any    `json:"result"`
}

// ErrResponse is an error response.
type ErrResponse struct {
	JSONRPC string   `json:"jsonrpc"`
	ID      ID       `json:"id"`
	Error   RPCError `json:"error"`
}

// Writer writes responses as single lines. It is safe for concurrent use;
// every line is flushed before the next one starts.
type Writer struct {
	mu  sync.Mutex
	out *bufio.Writer
}

// NewWriter wraps w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{out: bufio.NewWriter(w)}
}

// RespondOK writes a success response for id.
func (w *Writer) RespondOK(id ID, result any) error {
	return w.write(OKResponse{JSONRPC: Version, ID: id, Result: result})
}

// RespondErr writes an error response for id.
func (w *Writer) RespondErr(id ID, rpcErr RPCError) error {
	return w.write(ErrResponse{JSONRPC: Version, ID: id, Error: rpcErr})
}

func (w *Writer) write(msg any) error {
	// No HTML escaping: raw engine results keep their text.
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(msg); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return err
	}
	return w.out.Flush()
}
