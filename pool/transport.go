// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pool

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/bufbuild/httppools/poolconfig"
)

// Transport option keys understood by the pools in this package. Other
// keys are accepted and ignored.
const (
	TransportConnectTimeout         = "connect_timeout"
	TransportTLSHandshakeTimeout    = "tls_handshake_timeout"
	TransportIdleTimeout            = "idle_timeout"
	TransportMaxResponseHeaderBytes = "max_response_header_bytes"
	TransportDisableCompression     = "disable_compression"
	TransportInsecureSkipVerify     = "insecure_skip_verify"
)

const (
	defaultConnectTimeout         = 30 * time.Second
	defaultKeepAlive              = 30 * time.Second
	defaultTLSHandshakeTimeout    = 10 * time.Second
	defaultMaxResponseHeaderBytes = 1 << 20
)

// TransportConfig defines the options used to create the transports
// behind a pool. It is derived from a pool's transport options.
type TransportConfig struct {
	// DialFunc is used to establish network connections.
	DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)
	// TLSClientConfig, if present, provides custom TLS configuration for
	// use with secure ("https") servers.
	TLSClientConfig *tls.Config
	// TLSHandshakeTimeout configures the maximum time allowed for a TLS
	// handshake to complete.
	TLSHandshakeTimeout time.Duration
	// IdleConnTimeout, if non-zero, is used to expire idle network
	// connections.
	IdleConnTimeout time.Duration
	// MaxResponseHeaderBytes configures the maximum size of the response
	// status line and response headers.
	MaxResponseHeaderBytes int64
	// DisableCompression disables transparent gzip decoding.
	DisableCompression bool
}

// NewTransportConfig builds a TransportConfig from the given transport
// options. Later options override earlier ones with the same key.
// Unrecognized keys are logged at debug level and otherwise ignored.
func NewTransportConfig(opts []poolconfig.TransportOption, logger *slog.Logger) (TransportConfig, error) {
	connectTimeout := defaultConnectTimeout
	config := TransportConfig{
		TLSHandshakeTimeout:    defaultTLSHandshakeTimeout,
		MaxResponseHeaderBytes: defaultMaxResponseHeaderBytes,
	}
	var insecure bool
	for _, opt := range opts {
		var err error
		switch opt.Key {
		case TransportConnectTimeout:
			connectTimeout, err = durationOption(opt.Value)
		case TransportTLSHandshakeTimeout:
			config.TLSHandshakeTimeout, err = durationOption(opt.Value)
		case TransportIdleTimeout:
			config.IdleConnTimeout, err = durationOption(opt.Value)
		case TransportMaxResponseHeaderBytes:
			config.MaxResponseHeaderBytes, err = intOption(opt.Value)
		case TransportDisableCompression:
			config.DisableCompression, err = boolOption(opt.Value)
		case TransportInsecureSkipVerify:
			insecure, err = boolOption(opt.Value)
		default:
			if logger != nil {
				logger.Debug("ignoring transport option", slog.String("key", opt.Key))
			}
		}
		if err != nil {
			return TransportConfig{}, fmt.Errorf("transport option %q: %w", opt.Key, err)
		}
	}
	dialer := &net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: defaultKeepAlive,
	}
	config.DialFunc = dialer.DialContext
	if insecure {
		config.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // explicitly requested
	}
	return config, nil
}

// durationOption reads a millisecond count. A string is parsed with
// time.ParseDuration instead.
func durationOption(value any) (time.Duration, error) {
	if str, ok := value.(string); ok {
		d, err := time.ParseDuration(str)
		if err != nil {
			return 0, err
		}
		if d < 0 {
			return 0, fmt.Errorf("must not be negative, got %v", d)
		}
		return d, nil
	}
	ms, err := intOption(value)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func intOption(value any) (int64, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int64:
		n = v
	case uint64:
		n = int64(v) //nolint:gosec
	case float64:
		if v != float64(int64(v)) {
			return 0, fmt.Errorf("expected integer, got %v", v)
		}
		n = int64(v)
	default:
		return 0, fmt.Errorf("expected integer, got %T", value)
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative, got %d", n)
	}
	return n, nil
}

func boolOption(value any) (bool, error) {
	b, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %T", value)
	}
	return b, nil
}
