// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package jsonrpc

// Method is the closed set of operations the executor answers.
type Method int

const (
	// MethodUnknown marks a well-formed request whose method name is not recognised.
	MethodUnknown Method = iota
	MethodInitializeSchema
	MethodQuery
	MethodStartTx
	MethodCommitTx
	MethodRollbackTx
	MethodTeardown
	MethodGetLogs

	methodCount
)

var methodNames = [...]string{
	MethodUnknown:          "",
	MethodInitializeSchema: "initializeSchema",
	MethodQuery:            "query",
	MethodStartTx:          "startTx",
	MethodCommitTx:         "commitTx",
	MethodRollbackTx:       "rollbackTx",
	MethodTeardown:         "teardown",
	MethodGetLogs:          "getLogs",
}

// Adding a Method without a name fails to compile.
var (
	_ [len(methodNames) - int(methodCount)]struct{}
	_ [int(methodCount) - len(methodNames)]struct{}
)

func (m Method) String() string {
	if m < 0 || m >= methodCount || m == MethodUnknown {
		return "unknown"
	}
	return methodNames[m]
}

// Methods returns every known method, MethodUnknown excluded.
func Methods() []Method {
	out := make([]Method, 0, methodCount-1)
	for m := MethodUnknown + 1; m < methodCount; m++ {
		out = append(out, m)
	}
	return out
}

// ParseMethod maps a wire name to its Method, or MethodUnknown.
func ParseMethod(name string) Method {
	for m := MethodUnknown + 1; m < methodCount; m++ {
		if methodNames[m] == name {
			return m
		}
	}
	return MethodUnknown
}
