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

package httppools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bufbuild/httppools/destination"
	"github.com/bufbuild/httppools/stream"
	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"
)

const (
	// DefaultPoolTimeout is how long a request waits for a connection
	// unless WithPoolTimeout says otherwise.
	DefaultPoolTimeout = 5 * time.Second
	// DefaultReceiveTimeout is how long a request waits for the complete
	// response unless WithReceiveTimeout says otherwise.
	DefaultReceiveTimeout = 15 * time.Second
)

// Header is a single request or response header.
type Header = stream.Header

// Response is a fully received response.
type Response = stream.Response

// Request is an HTTP request ready to be dispatched. It is created by
// NewRequest and may be dispatched only once.
type Request struct {
	id      uuid.UUID
	method  string
	url     *url.URL
	headers []Header
	body    io.Reader
	key     destination.Key
	// +checkatomic
	consumed atomic.Bool
}

// NewRequest builds a request. The URL must be absolute; its scheme, host
// and port select the pool group that serves the request. Headers are
// sent in the given order. body may be nil.
//
// If the URL is malformed, the returned error wraps ErrInvalidURL. An
// invalid method or header yields ErrInvalidRequest.
func NewRequest(method, rawURL string, headers []Header, body io.Reader) (*Request, error) {
	if method == "" {
		method = http.MethodGet
	}
	if strings.IndexFunc(method, func(r rune) bool { return !httpguts.IsTokenRune(r) }) >= 0 {
		return nil, fmt.Errorf("%w: bad method %q", ErrInvalidRequest, method)
	}
	for _, h := range headers {
		if !httpguts.ValidHeaderFieldName(h.Name) {
			return nil, fmt.Errorf("%w: bad header name %q", ErrInvalidRequest, h.Name)
		}
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return nil, fmt.Errorf("%w: bad value for header %q", ErrInvalidRequest, h.Name)
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	key, err := destination.FromURL(u)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	return &Request{
		id:      uuid.New(),
		method:  method,
		url:     u,
		headers: append([]Header(nil), headers...),
		body:    body,
		key:     key,
	}, nil
}

// NewRequestBytes is like NewRequest but sends body as the request body.
// The length of body is sent as the content length.
func NewRequestBytes(method, rawURL string, headers []Header, body []byte) (*Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	return NewRequest(method, rawURL, headers, reader)
}

// ID returns an identifier for the request, used to correlate log
// entries.
func (r *Request) ID() string {
	return r.id.String()
}

// Method returns the request method.
func (r *Request) Method() string {
	return r.method
}

// URL returns a copy of the request URL.
func (r *Request) URL() *url.URL {
	u := *r.url
	return &u
}

// Headers returns a copy of the request headers.
func (r *Request) Headers() []Header {
	return append([]Header(nil), r.headers...)
}

// Key returns the destination the request is dispatched by.
func (r *Request) Key() destination.Key {
	return r.key
}

// Scheme returns the scheme of the request's destination.
func (r *Request) Scheme() string {
	return r.key.Scheme()
}

// Host returns the host of the request's destination.
func (r *Request) Host() string {
	return r.key.Host()
}

// Port returns the port of the request's destination, which is the
// scheme's default port when the URL has none.
func (r *Request) Port() int {
	return r.key.Port()
}

func (r *Request) toHTTP(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.method, r.url.String(), r.body)
	if err != nil {
		return nil, err
	}
	for _, h := range r.headers {
		if http.CanonicalHeaderKey(h.Name) == "Host" {
			req.Host = h.Value
			continue
		}
		req.Header.Add(h.Name, h.Value)
	}
	return req, nil
}

// RequestOption is an option that customizes a single dispatch.
type RequestOption interface {
	apply(*requestOptions)
}

// WithPoolTimeout bounds how long a request waits to check out a pool
// connection. If it elapses, the request fails with a *DispatchError
// wrapping [pool.ErrPoolTimeout]. A non-positive duration waits until the
// request's context is done. If not specified, DefaultPoolTimeout is used.
func WithPoolTimeout(duration time.Duration) RequestOption {
	return requestOptionFunc(func(opts *requestOptions) {
		opts.poolTimeout = duration
	})
}

// WithReceiveTimeout bounds how long a request waits for its complete
// response, once a connection has been checked out. If it elapses, the
// request fails with a *TransportError wrapping [pool.ErrReceiveTimeout].
// A non-positive duration waits until the request's context is done. If
// not specified, DefaultReceiveTimeout is used.
func WithReceiveTimeout(duration time.Duration) RequestOption {
	return requestOptionFunc(func(opts *requestOptions) {
		opts.receiveTimeout = duration
	})
}

type requestOptionFunc func(*requestOptions)

func (f requestOptionFunc) apply(opts *requestOptions) {
	f(opts)
}

type requestOptions struct {
	poolTimeout    time.Duration
	receiveTimeout time.Duration
}

func newRequestOptions(options []RequestOption) requestOptions {
	opts := requestOptions{
		poolTimeout:    DefaultPoolTimeout,
		receiveTimeout: DefaultReceiveTimeout,
	}
	for _, opt := range options {
		opt.apply(&opts)
	}
	return opts
}
