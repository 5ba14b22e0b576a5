// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package jsonrpc

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func TestDecode_KnownMethods(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantMethod Method
		wantSchema string
	}{
		{
			name:       "initializeSchema with null migration",
			line:       `{"id":1,"method":"initializeSchema","params":{"url":"file:test.db","schema":"model A {}","schemaId":"s1","migrationScript":null}}`,
			wantMethod: MethodInitializeSchema,
			wantSchema: "s1",
		},
		{
			name:       "query without txId",
			line:       `{"jsonrpc":"2.0","id":2,"method":"query","params":{"schemaId":"s1","query":{"action":"queryRaw"}}}`,
			wantMethod: MethodQuery,
			wantSchema: "s1",
		},
		{
			name:       "startTx",
			line:       `{"id":3,"method":"startTx","params":{"schemaId":"s2","options":{"max_wait":2000}}}`,
			wantMethod: MethodStartTx,
			wantSchema: "s2",
		},
		{
			name:       "commitTx",
			line:       `{"id":4,"method":"commitTx","params":{"schemaId":"s2","txId":"tx-1"}}`,
			wantMethod: MethodCommitTx,
			wantSchema: "s2",
		},
		{
			name:       "rollbackTx",
			line:       `{"id":5,"method":"rollbackTx","params":{"schemaId":"s2","txId":"tx-1"}}`,
			wantMethod: MethodRollbackTx,
			wantSchema: "s2",
		},
		{
			name:       "teardown ignores extra fields",
			line:       `{"id":6,"method":"teardown","params":{"schemaId":"s3","extra":true}}`,
			wantMethod: MethodTeardown,
			wantSchema: "s3",
		},
		{
			name:       "getLogs",
			line:       `{"id":7,"method":"getLogs","params":{"schemaId":"s3"}}`,
			wantMethod: MethodGetLogs,
			wantSchema: "s3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Decode([]byte(tt.line))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if req.Method != tt.wantMethod {
				t.Errorf("Method = %v, want %v", req.Method, tt.wantMethod)
			}
			if got := req.Params.SchemaRef(); got != tt.wantSchema {
				t.Errorf("SchemaRef() = %q, want %q", got, tt.wantSchema)
			}
		})
	}
}

func TestDecode_Rejects(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "not json", line: `hello`},
		{name: "truncated", line: `{"id":1,"method":"query"`},
		{name: "string id", line: `{"id":"1","method":"getLogs","params":{"schemaId":"s1"}}`},
		{name: "null id", line: `{"id":null,"method":"getLogs","params":{"schemaId":"s1"}}`},
		{name: "missing id", line: `{"method":"getLogs","params":{"schemaId":"s1"}}`},
		{name: "missing method", line: `{"id":1,"params":{"schemaId":"s1"}}`},
		{name: "wrong version", line: `{"jsonrpc":"1.0","id":1,"method":"getLogs","params":{"schemaId":"s1"}}`},
		{name: "missing params", line: `{"id":1,"method":"getLogs"}`},
		{name: "params not object", line: `{"id":1,"method":"getLogs","params":[1]}`},
		{name: "missing schemaId", line: `{"id":1,"method":"teardown","params":{}}`},
		{name: "schemaId wrong type", line: `{"id":1,"method":"teardown","params":{"schemaId":5}}`},
		{name: "query missing", line: `{"id":1,"method":"query","params":{"schemaId":"s1"}}`},
		{name: "query null", line: `{"id":1,"method":"query","params":{"schemaId":"s1","query":null}}`},
		{name: "initializeSchema missing url", line: `{"id":1,"method":"initializeSchema","params":{"schema":"x","schemaId":"s1"}}`},
		{name: "commitTx missing txId", line: `{"id":1,"method":"commitTx","params":{"schemaId":"s1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if req, err := Decode([]byte(tt.line)); err == nil {
				t.Errorf("Decode() = %+v, want error", req)
			}
		})
	}
}

func TestDecode_UnknownMethodKeepsID(t *testing.T) {
	req, err := Decode([]byte(`{"id":9,"method":"explode","params":{"schemaId":"s1"}}`))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if req.Method != MethodUnknown {
		t.Errorf("Method = %v, want MethodUnknown", req.Method)
	}
	if req.Name != "explode" {
		t.Errorf("Name = %q, want explode", req.Name)
	}
	if req.ID != "9" {
		t.Errorf("ID = %q, want 9", req.ID)
	}
}

func TestDecode_QueryKeepsNumberLiterals(t *testing.T) {
	line := `{"id":1,"method":"query","params":{"schemaId":"s1","query":{"value":3.0,"big":12345678901234567890},"txId":"t"}}`
	req, err := Decode([]byte(line))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	p := req.Params.(*QueryParams)
	if want := `{"value":3.0,"big":12345678901234567890}`; string(p.Query) != want {
		t.Errorf("Query = %s, want %s", p.Query, want)
	}
	if p.TxID == nil || *p.TxID != "t" {
		t.Errorf("TxID = %v, want t", p.TxID)
	}
}

func TestWriter_EchoesIDVerbatim(t *testing.T) {
	for _, raw := range []string{"1", "1.50", "-3", "1e3"} {
		t.Run(raw, func(t *testing.T) {
			req, err := Decode([]byte(`{"id":` + raw + `,"method":"getLogs","params":{"schemaId":"s"}}`))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			var buf bytes.Buffer
			if err := NewWriter(&buf).RespondOK(req.ID, []string{}); err != nil {
				t.Fatalf("RespondOK() error = %v", err)
			}
			want := `{"jsonrpc":"2.0","id":` + raw + `,"result":[]}` + "\n"
			if buf.String() != want {
				t.Errorf("wrote %q, want %q", buf.String(), want)
			}
		})
	}
}

func TestWriter_RawResultUnchanged(t *testing.T) {
	var buf bytes.Buffer
	raw := json.RawMessage(`{"data":{"queryRaw":{"rows":[[3.0,"<a&b>"]]}}}`)
	if err := NewWriter(&buf).RespondOK("4", raw); err != nil {
		t.Fatalf("RespondOK() error = %v", err)
	}
	want := `{"jsonrpc":"2.0","id":4,"result":{"data":{"queryRaw":{"rows":[[3.0,"<a&b>"]]}}}}` + "\n"
	if buf.String() != want {
		t.Errorf("wrote %q, want %q", buf.String(), want)
	}
}

func TestWriter_ErrorResponse(t *testing.T) {
	var buf bytes.Buffer
	err := NewWriter(&buf).RespondErr("2", RPCError{Code: ErrorCode, Message: "Unknown method: `x`"})
	if err != nil {
		t.Fatalf("RespondErr() error = %v", err)
	}
	want := "{\"jsonrpc\":\"2.0\",\"id\":2,\"error\":{\"code\":1,\"message\":\"Unknown method: `x`\"}}\n"
	if buf.String() != want {
		t.Errorf("wrote %q, want %q", buf.String(), want)
	}
}

func TestWriter_ConcurrentLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.RespondOK("1", strings.Repeat("x", 512))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 50 {
		t.Fatalf("got %d lines, want 50", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Fatalf("line is not valid JSON: %q", line)
		}
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range Methods() {
		if got := ParseMethod(m.String()); got != m {
			t.Errorf("ParseMethod(%q) = %v, want %v", m.String(), got, m)
		}
	}
	if got := ParseMethod(""); got != MethodUnknown {
		t.Errorf("ParseMethod(\"\") = %v, want MethodUnknown", got)
	}
	if len(Methods()) != 7 {
		t.Errorf("len(Methods()) = %d, want 7", len(Methods()))
	}
}
