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
	"net"
	"net/http"

	"github.com/bufbuild/httppools/destination"
	"github.com/bufbuild/httppools/poolconfig"
	"golang.org/x/net/http2"
)

// HTTP2Factory creates [HTTP2Pool] instances.
//
//nolint:gochecknoglobals
var HTTP2Factory Factory = http2Factory{}

// HTTP2Pool multiplexes up to size concurrent streams over one HTTP/2
// connection per host. "https" destinations negotiate HTTP/2 over TLS;
// "http" destinations use HTTP/2 over clear-text (h2c) with prior
// knowledge.
type HTTP2Pool struct {
	basePool
	tlsTransport *http2.Transport
	h2cTransport *http2.Transport
}

var _ Pool = (*HTTP2Pool)(nil)

type http2Factory struct{}

func (http2Factory) New(_ destination.Key, size int, opts TransportConfig) Pool {
	return NewHTTP2Pool(size, opts)
}

// NewHTTP2Pool returns a pool that allows size concurrent streams.
func NewHTTP2Pool(size int, opts TransportConfig) *HTTP2Pool {
	dial := opts.DialFunc
	tlsTransport := &http2.Transport{
		TLSClientConfig: opts.TLSClientConfig,
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			rawConn, err := dial(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			tlsConn := tls.Client(rawConn, cfg)
			handshakeCtx := ctx
			if opts.TLSHandshakeTimeout > 0 {
				var cancel context.CancelFunc
				handshakeCtx, cancel = context.WithTimeout(ctx, opts.TLSHandshakeTimeout)
				defer cancel()
			}
			if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
				_ = rawConn.Close()
				return nil, err
			}
			return tlsConn, nil
		},
		MaxHeaderListSize:  uint32(opts.MaxResponseHeaderBytes), //nolint:gosec
		DisableCompression: opts.DisableCompression,
		IdleConnTimeout:    opts.IdleConnTimeout,
	}
	// We can't support all transport options with h2c. The TLS config
	// is irrelevant since h2c is plain-text only.
	h2cTransport := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dial(ctx, network, addr)
		},
		MaxHeaderListSize:  uint32(opts.MaxResponseHeaderBytes), //nolint:gosec
		DisableCompression: opts.DisableCompression,
		IdleConnTimeout:    opts.IdleConnTimeout,
	}
	pool := &HTTP2Pool{
		basePool:     newBasePool(size),
		tlsTransport: tlsTransport,
		h2cTransport: h2cTransport,
	}
	pool.roundTripper = func(req *http.Request) http.RoundTripper {
		if req.URL.Scheme == "http" {
			return h2cTransport
		}
		return tlsTransport
	}
	pool.closeIdle = func() {
		tlsTransport.CloseIdleConnections()
		h2cTransport.CloseIdleConnections()
	}
	return pool
}

// Protocol implements Pool.
func (p *HTTP2Pool) Protocol() poolconfig.Protocol {
	return poolconfig.ProtocolHTTP2
}
