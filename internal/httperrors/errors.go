// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors turns transport failures of the out-of-process engine
// connectors into messages that say what most likely went wrong.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Cause is the detected category of a network error.
type Cause string

const (
	CauseTimeout Cause = "timeout"
	CauseDNS     Cause = "dns"
	CauseRefused Cause = "connection refused"
	CauseTLS     Cause = "tls"
	CauseOther   Cause = "network"
)

// NetworkError is a transport failure with its detected cause and a hint.
type NetworkError struct {
	Cause Cause
	Host  string
	Hint  string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s error talking to %s (%s): %v", e.Cause, e.Host, e.Hint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// FormatNetworkError classifies err, returned while talking to host, and
// wraps it in a *NetworkError. It returns nil for a nil err.
func FormatNetworkError(err error, host string) error {
	if err == nil {
		return nil
	}
	cause := Classify(err)
	return &NetworkError{Cause: cause, Host: host, Hint: hints[cause], Err: err}
}

var hints = map[Cause]string{
	CauseTimeout: "the engine host took too long to respond",
	CauseDNS:     "the host name does not resolve",
	CauseRefused: "nothing is listening at that address; is the engine host running?",
	CauseTLS:     "the secure connection could not be established",
	CauseOther:   "check the configured address",
}

// Classify returns the cause of a network error.
func Classify(err error) Cause {
	switch {
	case isTimeoutError(err):
		return CauseTimeout
	case isDNSError(err):
		return CauseDNS
	case isConnectionRefusedError(err):
		return CauseRefused
	case isSSLError(err):
		return CauseTLS
	default:
		return CauseOther
	}
}

func isTimeoutError(err error) bool {
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

// ExtractHostFromURL extracts the host of urlStr for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return urlStr
	}
	return u.Host
}
