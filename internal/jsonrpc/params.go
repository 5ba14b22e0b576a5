// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Params is implemented only by the params types in this package, one per Method.
type Params interface {
	// SchemaRef returns the schema id the request targets.
	SchemaRef() string
	params()
}

// InitializeSchemaParams are the params of initializeSchema.
type InitializeSchemaParams struct {
	URL             string  `json:"url"`
	Schema          string  `json:"schema"`
	SchemaID        string  `json:"schemaId"`
	MigrationScript *string `json:"migrationScript"`
}

// QueryParams are the params of query. Query is kept as raw JSON so number
// literals reach the engine exactly as the caller wrote them.
type QueryParams struct {
	SchemaID string          `json:"schemaId"`
	Query    json.RawMessage `json:"query"`
	TxID     *string         `json:"txId"`
}

// StartTxParams are the params of startTx.
type StartTxParams struct {
	SchemaID string          `json:"schemaId"`
	Options  json.RawMessage `json:"options"`
}

// CommitTxParams are the params of commitTx.
type CommitTxParams struct {
	SchemaID string `json:"schemaId"`
	TxID     string `json:"txId"`
}

// RollbackTxParams are the params of rollbackTx.
type RollbackTxParams struct {
	SchemaID string `json:"schemaId"`
	TxID     string `json:"txId"`
}

// TeardownParams are the params of teardown.
type TeardownParams struct {
	SchemaID string `json:"schemaId"`
}

// GetLogsParams are the params of getLogs.
type GetLogsParams struct {
	SchemaID string `json:"schemaId"`
}

func (p *InitializeSchemaParams) SchemaRef() string { return p.SchemaID }
func (p *QueryParams) SchemaRef() string            { return p.SchemaID }
func (p *StartTxParams) SchemaRef() string          { return p.SchemaID }
func (p *CommitTxParams) SchemaRef() string         { return p.SchemaID }
func (p *RollbackTxParams) SchemaRef() string       { return p.SchemaID }
func (p *TeardownParams) SchemaRef() string         { return p.SchemaID }
func (p *GetLogsParams) SchemaRef() string          { return p.SchemaID }

func (*InitializeSchemaParams) params() {}
func (*QueryParams) params()            {}
func (*StartTxParams) params()          {}
func (*CommitTxParams) params()         {}
func (*RollbackTxParams) params()       {}
func (*TeardownParams) params()         {}
func (*GetLogsParams) params()          {}

// decodeParams decodes raw into the params type of m.
func decodeParams(m Method, raw json.RawMessage) (Params, error) {
	switch m {
	case MethodInitializeSchema:
		return decodeInto[InitializeSchemaParams](raw, "url", "schema", "schemaId")
	case MethodQuery:
		return decodeInto[QueryParams](raw, "schemaId", "query")
	case MethodStartTx:
		return decodeInto[StartTxParams](raw, "schemaId", "options")
	case MethodCommitTx:
		return decodeInto[CommitTxParams](raw, "schemaId", "txId")
	case MethodRollbackTx:
		return decodeInto[RollbackTxParams](raw, "schemaId", "txId")
	case MethodTeardown:
		return decodeInto[TeardownParams](raw, "schemaId")
	case MethodGetLogs:
		return decodeInto[GetLogsParams](raw, "schemaId")
	default:
		return nil, fmt.Errorf("no params decoder for method %s", m)
	}
}

// decodeInto checks that raw is an object holding every required field with a
// non-null value, then decodes it into T. Unknown fields are ignored.
func decodeInto[T any, P interface {
	*T
	Params
}](raw json.RawMessage, required ...string) (Params, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("params is required")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("params must be an object")
	}
	for _, name := range required {
		v, ok := fields[name]
		if !ok || string(v) == "null" {
			return nil, fmt.Errorf("params.%s is required", name)
		}
	}
	p := P(new(T))
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("invalid params: %w", err)
	}
	return p, nil
}
