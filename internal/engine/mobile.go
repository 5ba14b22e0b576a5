// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"testd/executor/internal/httperrors"
)

// Mobile forwards engine calls to a React Native emulator that hosts the
// engine. The emulator opens its own database, so no driver adapter is used.
type Mobile struct {
	// baseURL is the emulator root, without a trailing slash.
	baseURL string
	schema  string
	log     LogCallback
	client  *http.Client
}

// NewMobile creates a connector for the emulator at baseURL.
func NewMobile(baseURL, schema string, log LogCallback) *Mobile {
	if log == nil {
		log = func(string) {}
	}
	return &Mobile{
		baseURL: strings.TrimRight(baseURL, "/"),
		schema:  schema,
		log:     log,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (m *Mobile) Connect(ctx context.Context, trace string, requestID uint64) error {
	_, err := m.post(ctx, "/connect", map[string]any{"schema": m.schema}, trace, requestID)
	return err
}

func (m *Mobile) Query(ctx context.Context, body, trace string, txID *string, requestID uint64) (string, error) {
	return m.post(ctx, "/query", map[string]any{"body": body, "txId": txID}, trace, requestID)
}

func (m *Mobile) StartTransaction(ctx context.Context, options, trace string, requestID uint64) (string, error) {
	return m.post(ctx, "/start_transaction", map[string]any{"body": options}, trace, requestID)
}

func (m *Mobile) CommitTransaction(ctx context.Context, txID, trace string, requestID uint64) (string, error) {
	return m.post(ctx, "/commit_transaction", map[string]any{"txId": txID}, trace, requestID)
}

func (m *Mobile) RollbackTransaction(ctx context.Context, txID, trace string, requestID uint64) (string, error) {
	return m.post(ctx, "/rollback_transaction", map[string]any{"txId": txID}, trace, requestID)
}

func (m *Mobile) Disconnect(ctx context.Context, trace string, requestID uint64) error {
	_, err := m.post(ctx, "/disconnect", map[string]any{}, trace, requestID)
	return err
}

// post sends payload as JSON and returns the response body text. Log lines
// the emulator reports in X-Engine-Log headers go to the session callback.
func (m *Mobile) post(ctx context.Context, path string, payload any, trace string, requestID uint64) (string, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", strconv.FormatUint(requestID, 10))
	if trace != "" {
		req.Header.Set("Traceparent", trace)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mobile emulator %s: %w", path, httperrors.FormatNetworkError(err, httperrors.ExtractHostFromURL(m.baseURL)))
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("mobile emulator %s: read response: %w", path, err)
	}
	for _, line := range resp.Header.Values("X-Engine-Log") {
		m.log(line)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("mobile emulator %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return string(text), nil
}
