// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"net/url"
	"sort"
	"strings"
)

// SQLiteResolver handles file: URLs for the SQLite driver adapters.
type SQLiteResolver struct{}

// NewSQLiteResolver creates a new SQLite resolver
func NewSQLiteResolver() *SQLiteResolver {
	return &SQLiteResolver{}
}

// Parse splits a file: URL into its path and query parameters.
// Both file:test.db and file://test.db are accepted.
func (r *SQLiteResolver) Parse(dsn string) (*DSNInfo, error) {
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		return nil, NewParseError(dsn, "missing or invalid scheme", "use file:path/to/db")
	}
	rest := dsn[len("file:"):]
	rest = strings.TrimPrefix(rest, "//")

	info := &DSNInfo{
		Type:     DBTypeSQLite,
		Params:   make(map[string]string),
		Original: dsn,
	}

	path, query, _ := strings.Cut(rest, "?")
	info.Database = strings.TrimSpace(path)
	if info.Database == "" {
		return nil, NewParseError(dsn, "missing database file", "use file:path/to/db")
	}

	if query != "" {
		values, err := url.ParseQuery(query)
		if err != nil {
			return nil, NewParseError(dsn, "invalid query parameters", err.Error())
		}
		for key, v := range values {
			if len(v) > 0 {
				info.Params[key] = v[0]
			}
		}
	}
	return info, nil
}

// Normalize returns a file: URI for the database/sql SQLite drivers with the
// engine-only parameters removed.
func (r *SQLiteResolver) Normalize(info *DSNInfo) (string, error) {
	if info == nil {
		return "", NewParseError("", "nil DSN info", "")
	}

	keys := make([]string, 0, len(info.Params))
	for key := range info.Params {
		if !engineOnlyParams[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString("file:")
	builder.WriteString(info.Database)
	for i, key := range keys {
		if i == 0 {
			builder.WriteString("?")
		} else {
			builder.WriteString("&")
		}
		builder.WriteString(url.QueryEscape(key))
		builder.WriteString("=")
		builder.WriteString(url.QueryEscape(info.Params[key]))
	}
	return builder.String(), nil
}

// Validate checks that dsn names a database file.
func (r *SQLiteResolver) Validate(dsn string) error {
	_, err := r.Parse(dsn)
	return err
}
