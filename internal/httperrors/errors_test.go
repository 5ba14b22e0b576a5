// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

package httperrors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Cause
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: CauseTimeout},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "emulator.invalid"}, want: CauseDNS},
		{name: "refused", err: &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, want: CauseRefused},
		{name: "refused text", err: errors.New("dial tcp 127.0.0.1:9: connect: connection refused"), want: CauseRefused},
		{name: "tls", err: errors.New("x509: certificate signed by unknown authority"), want: CauseTLS},
		{name: "other", err: errors.New("unexpected EOF"), want: CauseOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatNetworkError(t *testing.T) {
	if FormatNetworkError(nil, "host") != nil {
		t.Error("FormatNetworkError(nil) != nil")
	}

	cause := fmt.Errorf("post: %w", syscall.ECONNREFUSED)
	err := FormatNetworkError(cause, "127.0.0.1:8081")
	var ne *NetworkError
	if !errors.As(err, &ne) || ne.Cause != CauseRefused || ne.Host != "127.0.0.1:8081" {
		t.Fatalf("FormatNetworkError() = %#v", err)
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Error("wrapped cause lost")
	}
}

func TestExtractHostFromURL(t *testing.T) {
	if got := ExtractHostFromURL("http://10.0.2.2:8081/"); got != "10.0.2.2:8081" {
		t.Errorf("ExtractHostFromURL() = %q", got)
	}
	if got := ExtractHostFromURL("not a url"); got != "not a url" {
		t.Errorf("ExtractHostFromURL() = %q", got)
	}
}
