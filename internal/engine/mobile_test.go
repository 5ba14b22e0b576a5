// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"testd/executor/internal/httperrors"
)

type emulatorCall struct {
	path      string
	body      map[string]any
	requestID string
	trace     string
}

func newEmulator(t *testing.T) (*httptest.Server, func() []emulatorCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []emulatorCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(b, &body)
		mu.Lock()
		calls = append(calls, emulatorCall{
			path:      r.URL.Path,
			body:      body,
			requestID: r.Header.Get("X-Request-Id"),
			trace:     r.Header.Get("Traceparent"),
		})
		mu.Unlock()

		switch r.URL.Path {
		case "/query":
			w.Header().Add("X-Engine-Log", `{"level":"DEBUG","fields":{"message":"SELECT 1"}}`)
			_, _ = io.WriteString(w, `{"data":{"queryRaw":{"columns":["x"],"types":["double"],"rows":[[3.0]]}}}`)
		case "/start_transaction":
			_, _ = io.WriteString(w, `{"id":"tx-1"}`)
		case "/commit_transaction":
			http.Error(w, "transaction tx-9 not found", http.StatusNotFound)
		default:
			_, _ = io.WriteString(w, `{}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []emulatorCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]emulatorCall(nil), calls...)
	}
}

func TestMobile_ForwardsCalls(t *testing.T) {
	ctx := context.Background()
	srv, calls := newEmulator(t)
	sink := &logSink{}
	m := NewMobile(srv.URL+"/", "model Item { id Int @id }", sink.append)

	if err := m.Connect(ctx, "00-trace-01", 41); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	txID := "tx-1"
	got, err := m.Query(ctx, `{"action":"queryRaw"}`, "", &txID, 42)
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got != `{"data":{"queryRaw":{"columns":["x"],"types":["double"],"rows":[[3.0]]}}}` {
		t.Errorf("Query() = %s, want the emulator body unchanged", got)
	}
	if got, _ := m.StartTransaction(ctx, `{"timeout":100}`, "", 43); got != `{"id":"tx-1"}` {
		t.Errorf("StartTransaction() = %s", got)
	}
	if err := m.Disconnect(ctx, "", 44); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	recorded := calls()
	wantPaths := []string{"/connect", "/query", "/start_transaction", "/disconnect"}
	if len(recorded) != len(wantPaths) {
		t.Fatalf("emulator saw %d calls, want %d", len(recorded), len(wantPaths))
	}
	for i, p := range wantPaths {
		if recorded[i].path != p {
			t.Errorf("call %d path = %s, want %s", i, recorded[i].path, p)
		}
	}
	if recorded[0].body["schema"] != "model Item { id Int @id }" || recorded[0].trace != "00-trace-01" {
		t.Errorf("connect call = %+v", recorded[0])
	}
	if recorded[1].body["txId"] != "tx-1" || recorded[1].requestID != "42" {
		t.Errorf("query call = %+v", recorded[1])
	}
	if lines := sink.all(); len(lines) != 1 || !strings.Contains(lines[0], "SELECT 1") {
		t.Errorf("log lines = %v", lines)
	}
}

func TestMobile_ErrorStatus(t *testing.T) {
	srv, _ := newEmulator(t)
	m := NewMobile(srv.URL, "", nil)

	_, err := m.CommitTransaction(context.Background(), "tx-9", "", 1)
	if err == nil {
		t.Fatal("CommitTransaction() error = nil")
	}
	if !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "tx-9 not found") {
		t.Errorf("error = %v, want status and body", err)
	}
}

func TestMobile_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewMobile(url, "", nil).Connect(context.Background(), "", 1)
	var ne *httperrors.NetworkError
	if !errors.As(err, &ne) {
		t.Fatalf("Connect() error = %v, want a *httperrors.NetworkError", err)
	}
	if ne.Cause != httperrors.CauseRefused {
		t.Errorf("cause = %q, want %q", ne.Cause, httperrors.CauseRefused)
	}
}
