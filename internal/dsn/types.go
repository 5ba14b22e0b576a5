// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import "fmt"

// DBType represents the type of database
type DBType string

const (
	DBTypePostgreSQL DBType = "postgresql"
	DBTypeSQLite     DBType = "sqlite"
	DBTypeMySQL      DBType = "mysql"
	DBTypeSQLServer  DBType = "sqlserver"
	DBTypeUnknown    DBType = "unknown"
)

// DSNInfo contains parsed information from a DSN string
type DSNInfo struct {
	Type     DBType
	Host     string
	Port     string
	User     string
	Password string
	Database string
	// Schema is the Prisma-style ?schema= parameter. It is not a driver
	// parameter and never appears in the normalized DSN.
	Schema   string
	Params   map[string]string
	Original string
}

// String returns the DSN as it was given
func (d *DSNInfo) String() string {
	return d.Original
}

// Resolver is an interface for database-specific DSN resolution
type Resolver interface {
	// Parse parses a DSN string and returns normalized DSN info
	Parse(dsn string) (*DSNInfo, error)

	// Normalize converts DSN info to a connection string the Go driver accepts
	Normalize(info *DSNInfo) (string, error)

	// Validate checks if the DSN is valid for the database type
	Validate(dsn string) error
}

// ParseError represents an error that occurred during DSN parsing
type ParseError struct {
	DSN    string
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid connection URL: %s (hint: %s)", e.Reason, e.Hint)
	}
	return fmt.Sprintf("invalid connection URL: %s", e.Reason)
}

// NewParseError creates a new ParseError
func NewParseError(dsn, reason, hint string) *ParseError {
	return &ParseError{
		DSN:    dsn,
		Reason: reason,
		Hint:   hint,
	}
}

// engineOnlyParams are query parameters understood by the query engine's
// connection string handling but unknown to the Go drivers.
var engineOnlyParams = map[string]bool{
	"schema":               true,
	"connection_limit":     true,
	"pool_timeout":         true,
	"socket_timeout":       true,
	"statement_cache_size": true,
	"pgbouncer":            true,
}
