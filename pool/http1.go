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
	"crypto/tls"
	"net/http"
	"time"

	"github.com/bufbuild/httppools/destination"
	"github.com/bufbuild/httppools/poolconfig"
)

// HTTP1Factory creates [HTTP1Pool] instances.
//
//nolint:gochecknoglobals
var HTTP1Factory Factory = http1Factory{}

// HTTP1Pool is a pool of up to size HTTP/1.1 connections per host. Each
// connection carries one request at a time; HTTP/2 is never negotiated.
type HTTP1Pool struct {
	basePool
	transport *http.Transport
}

var _ Pool = (*HTTP1Pool)(nil)

type http1Factory struct{}

func (http1Factory) New(_ destination.Key, size int, opts TransportConfig) Pool {
	return NewHTTP1Pool(size, opts)
}

// NewHTTP1Pool returns a pool that allows size concurrent requests.
func NewHTTP1Pool(size int, opts TransportConfig) *HTTP1Pool {
	transport := &http.Transport{
		DialContext:            opts.DialFunc,
		ForceAttemptHTTP2:      false,
		MaxIdleConns:           size,
		MaxIdleConnsPerHost:    size,
		MaxConnsPerHost:        size,
		IdleConnTimeout:        opts.IdleConnTimeout,
		TLSHandshakeTimeout:    opts.TLSHandshakeTimeout,
		TLSClientConfig:        opts.TLSClientConfig,
		MaxResponseHeaderBytes: opts.MaxResponseHeaderBytes,
		DisableCompression:     opts.DisableCompression,
		ExpectContinueTimeout:  1 * time.Second,
		// a non-nil, empty map disables HTTP/2 upgrades over TLS
		TLSNextProto: map[string]func(string, *tls.Conn) http.RoundTripper{},
	}
	pool := &HTTP1Pool{
		basePool:  newBasePool(size),
		transport: transport,
	}
	pool.roundTripper = func(*http.Request) http.RoundTripper { return transport }
	pool.closeIdle = transport.CloseIdleConnections
	return pool
}

// Protocol implements Pool.
func (p *HTTP1Pool) Protocol() poolconfig.Protocol {
	return poolconfig.ProtocolHTTP1
}
