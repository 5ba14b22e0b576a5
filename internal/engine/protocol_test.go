// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
	"time"

	"testd/executor/internal/adapter"
)

func TestJSONFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{3, "3.0"},
		{-2, "-2.0"},
		{0, "0.0"},
		{2.5, "2.5"},
		{0.1, "0.1"},
		{1e21, "1e+21"},
		{1e-7, "1e-07"},
		{math.Inf(1), `"+Inf"`},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, err := json.Marshal(jsonFloat(tt.in))
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Marshal(%v) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestEncodeResultSet(t *testing.T) {
	ts := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	rs := &adapter.ResultSet{
		ColumnNames: []string{"id", "big", "price", "created", "day", "meta"},
		ColumnTypes: []adapter.ColumnType{
			adapter.ColumnInt32, adapter.ColumnInt64, adapter.ColumnDouble,
			adapter.ColumnDateTime, adapter.ColumnDate, adapter.ColumnJSON,
		},
		Rows: [][]any{{int64(1), int64(9007199254740993), float64(3), ts, ts, json.RawMessage(`{"a":1}`)}},
	}

	got, err := encode(encodeResultSet(rs))
	if err != nil {
		t.Fatalf("encode() error = %v", err)
	}
	want := `{"columns":["id","big","price","created","day","meta"],` +
		`"types":["int","bigint","double","datetime","date","json"],` +
		`"rows":[[1,"9007199254740993",3.0,"2025-03-04T05:06:07Z","2025-03-04",{"a":1}]]}`
	if got != want {
		t.Errorf("encode() =\n%s\nwant\n%s", got, want)
	}
}

func TestDecodeParameters(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    []any
		wantErr bool
	}{
		{name: "absent", raw: ``, want: nil},
		{name: "array", raw: `[1, 2.5, "x", true, null]`, want: []any{int64(1), 2.5, "x", true, nil}},
		{name: "string encoded", raw: `"[1,\"a\"]"`, want: []any{int64(1), "a"}},
		{name: "bigint", raw: `[{"prisma__type":"bigint","prisma__value":"9007199254740993"}]`, want: []any{int64(9007199254740993)}},
		{name: "bytes", raw: `[{"prisma__type":"bytes","prisma__value":"AQI="}]`, want: []any{[]byte{1, 2}}},
		{name: "object as text", raw: `[{"a":1}]`, want: []any{`{"a":1}`}},
		{name: "not an array", raw: `{"a":1}`, wantErr: true},
		{name: "unknown tag", raw: `[{"prisma__type":"vector","prisma__value":"x"}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeParameters(json.RawMessage(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeParameters() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("decodeParameters() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestAdapterError(t *testing.T) {
	e := adapterError(&adapter.ExternalError{ID: 7})
	if e.UserFacingError.ErrorCode != codeExternalAdapter {
		t.Errorf("ErrorCode = %q, want %q", e.UserFacingError.ErrorCode, codeExternalAdapter)
	}
	if id := e.UserFacingError.Meta["id"]; id != uint64(7) {
		t.Errorf("meta.id = %#v, want 7", id)
	}
}
