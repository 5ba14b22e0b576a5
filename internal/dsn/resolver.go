// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn turns the connection URLs sent in initializeSchema requests into
// connection strings the Go drivers accept. The URLs use the query engine's
// conventions (a ?schema= parameter for Postgres, file: URLs for SQLite) which
// the drivers do not understand.
package dsn

import (
	"strings"
)

// DetectDBType detects the database type from a DSN string
func DetectDBType(dsn string) DBType {
	lower := strings.ToLower(dsn)

	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return DBTypePostgreSQL
	case strings.HasPrefix(lower, "file:"):
		return DBTypeSQLite
	case strings.HasPrefix(lower, "mysql://"):
		return DBTypeMySQL
	case strings.HasPrefix(lower, "sqlserver://"):
		return DBTypeSQLServer
	}
	return DBTypeUnknown
}

// resolverFor picks the resolver for dsn's database type.
func resolverFor(dsn string) (Resolver, error) {
	if dsn == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid database connection URL")
	}

	switch DetectDBType(dsn) {
	case DBTypePostgreSQL:
		return NewPostgreSQLResolver(), nil
	case DBTypeSQLite:
		return NewSQLiteResolver(), nil
	case DBTypeMySQL:
		return nil, NewParseError(dsn, "MySQL driver adapters are not supported by this executor", "use a pg or sqlite adapter")
	case DBTypeSQLServer:
		return nil, NewParseError(dsn, "SQL Server driver adapters are not supported by this executor", "use a pg or sqlite adapter")
	default:
		return nil, NewParseError(dsn, "unknown database type", "use postgres://, postgresql:// or file:")
	}
}

// Resolve validates dsn and returns both its details and the normalized form.
func Resolve(dsn string) (*DSNInfo, string, error) {
	resolver, err := resolverFor(dsn)
	if err != nil {
		return nil, "", err
	}
	if err := resolver.Validate(dsn); err != nil {
		return nil, "", err
	}
	info, err := resolver.Parse(dsn)
	if err != nil {
		return nil, "", err
	}
	normalized, err := resolver.Normalize(info)
	if err != nil {
		return nil, "", err
	}
	return info, normalized, nil
}
