// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"testd/executor/internal/adapter"
)

// User-facing error codes produced by the local engine.
const (
	codeValidation      = "P2009"
	codeRawQueryFailed  = "P2010"
	codeUnsupported     = "P2026"
	codeTransactionAPI  = "P2028"
	codeExternalAdapter = "P2036"
)

// operation is a single JSON protocol request.
type operation struct {
	ModelName string `json:"modelName,omitempty"`
	Action    string `json:"action"`
	Query     struct {
		Arguments struct {
			Query      string          `json:"query"`
			Parameters json.RawMessage `json:"parameters"`
		} `json:"arguments"`
	} `json:"query"`
}

type batchTransaction struct {
	IsolationLevel string `json:"isolationLevel"`
}

// requestBody is either a single operation or a batch of them.
type requestBody struct {
	operation
	Batch       []operation       `json:"batch"`
	Transaction *batchTransaction `json:"transaction"`
}

// opResult is the engine's answer to one operation: data or errors.
type opResult struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []engineError  `json:"errors,omitempty"`
}

type batchResult struct {
	BatchResult []opResult `json:"batchResult"`
}

type engineError struct {
	Error           string          `json:"error"`
	UserFacingError userFacingError `json:"user_facing_error"`
}

type userFacingError struct {
	IsPanic   bool           `json:"is_panic"`
	Message   string         `json:"message"`
	Meta      map[string]any `json:"meta"`
	ErrorCode string         `json:"error_code"`
}

func newEngineError(code, message string, meta map[string]any) engineError {
	if meta == nil {
		meta = map[string]any{}
	}
	return engineError{
		Error:           message,
		UserFacingError: userFacingError{Message: message, Meta: meta, ErrorCode: code},
	}
}

// adapterError converts a failure returned by the driver adapter. Errors the
// bound adapter parked in its registry are reported by id only.
func adapterError(err error) engineError {
	var ext *adapter.ExternalError
	if errors.As(err, &ext) {
		return newEngineError(codeExternalAdapter,
			fmt.Sprintf("Error in external connector (id %d)", ext.ID),
			map[string]any{"id": ext.ID})
	}
	return newEngineError(codeRawQueryFailed,
		"Raw query failed. Code: `N/A`. Message: `"+err.Error()+"`",
		map[string]any{"code": "N/A", "message": err.Error()})
}

func transactionNotFound(id string) engineError {
	msg := "Transaction API error: Transaction not found. Transaction ID is invalid, refers to an old closed transaction or was obtained before disconnecting: " + id
	return newEngineError(codeTransactionAPI, msg, map[string]any{"error": msg})
}

func errorResult(e engineError) opResult {
	return opResult{Errors: []engineError{e}}
}

// encode renders v as compact JSON text.
func encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// decodeParameters reads the raw query parameters. They arrive either as a
// JSON array or as a string holding one.
func decodeParameters(raw json.RawMessage) ([]any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		raw = json.RawMessage(s)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("parameters must be a JSON array: %w", err)
	}
	args := make([]any, len(items))
	for i, item := range items {
		v, err := decodeArgument(item)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i+1, err)
		}
		args[i] = v
	}
	return args, nil
}

func decodeArgument(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		return x.Float64()
	case map[string]any:
		if typ, ok := x["prisma__type"].(string); ok {
			return taggedArgument(typ, x["prisma__value"])
		}
		return string(raw), nil
	case []any:
		return string(raw), nil
	}
	return v, nil
}

// taggedArgument decodes a {"prisma__type", "prisma__value"} parameter.
func taggedArgument(typ string, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	s := fmt.Sprint(value)
	switch typ {
	case "bigint":
		return strconv.ParseInt(s, 10, 64)
	case "date":
		return time.Parse(time.RFC3339Nano, s)
	case "bytes":
		return base64.StdEncoding.DecodeString(s)
	case "decimal":
		return s, nil
	case "json":
		if str, ok := value.(string); ok {
			return str, nil
		}
		b, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return nil, fmt.Errorf("unsupported parameter type %q", typ)
	}
}

// rawResult is the queryRaw payload.
type rawResult struct {
	Columns []string `json:"columns"`
	Types   []string `json:"types"`
	Rows    [][]any  `json:"rows"`
}

func encodeResultSet(rs *adapter.ResultSet) rawResult {
	out := rawResult{
		Columns: rs.ColumnNames,
		Types:   make([]string, len(rs.ColumnTypes)),
		Rows:    make([][]any, len(rs.Rows)),
	}
	if out.Columns == nil {
		out.Columns = []string{}
	}
	for i, t := range rs.ColumnTypes {
		out.Types[i] = string(t)
	}
	for i, row := range rs.Rows {
		enc := make([]any, len(row))
		for j, v := range row {
			t := adapter.ColumnUnknown
			if j < len(rs.ColumnTypes) {
				t = rs.ColumnTypes[j]
			}
			enc[j] = encodeValue(v, t)
		}
		out.Rows[i] = enc
	}
	return out
}

// encodeValue maps a result value to its JSON form for column type t.
func encodeValue(v any, t adapter.ColumnType) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return jsonFloat(x)
	case int64:
		if t == adapter.ColumnInt64 {
			return strconv.FormatInt(x, 10)
		}
		return x
	case time.Time:
		switch t {
		case adapter.ColumnDate:
			return x.Format(time.DateOnly)
		case adapter.ColumnTime:
			return x.Format("15:04:05.999999")
		}
		return x.UTC().Format(time.RFC3339Nano)
	}
	return v
}

// jsonFloat marshals like a float64 except that integral values keep a
// fractional part, so 3 is written as 3.0.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return json.Marshal(strconv.FormatFloat(v, 'g', -1, 64))
	}
	format := byte('f')
	if abs := math.Abs(v); abs != 0 && (abs < 1e-6 || abs >= 1e21) {
		format = 'e'
	}
	b := strconv.AppendFloat(nil, v, format, -1, 64)
	if format == 'f' && bytes.IndexByte(b, '.') < 0 {
		b = append(b, ".0"...)
	}
	return b, nil
}
