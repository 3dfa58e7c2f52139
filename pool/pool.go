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

// Package pool provides the connection pools that serve requests for a
// destination. There are two pool variants, selected by a configuration's
// protocol: [HTTP1Pool], a set of HTTP/1.1 connections that each carry one
// request at a time, and [HTTP2Pool], which multiplexes concurrent streams
// over a single HTTP/2 connection per host.
//
// Both variants expose the same two capabilities: a [Pool] hands out a
// [Conn] via Checkout, bounded by the pool's size, and a Conn streams one
// request, emitting [stream.Event] values as the response arrives.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/bufbuild/httppools/destination"
	"github.com/bufbuild/httppools/internal"
	"github.com/bufbuild/httppools/poolconfig"
	"github.com/bufbuild/httppools/stream"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrPoolTimeout is returned when no connection could be checked out
	// before the pool timeout elapsed.
	ErrPoolTimeout = errors.New("timed out waiting for a pool connection")
	// ErrReceiveTimeout is returned when the full response did not arrive
	// before the receive timeout elapsed.
	ErrReceiveTimeout = errors.New("timed out receiving response")
	// ErrPoolClosed is returned when checking out from a closed pool.
	ErrPoolClosed = errors.New("pool is closed")
)

const readChunkSize = 32 * 1024

// Pool is a bounded set of connections to a destination.
type Pool interface {
	// Protocol reports which pool variant this is.
	Protocol() poolconfig.Protocol
	// Checkout blocks until a connection slot is free, the pool is
	// closed, or ctx is done. The returned Conn must be released.
	Checkout(ctx context.Context) (Conn, error)
	// Close releases the pool's idle connections. Checkouts blocked on
	// the pool fail with ErrPoolClosed.
	Close() error
}

// Conn is a checked-out connection slot.
type Conn interface {
	// Stream sends req and emits the response as events: one
	// [stream.Status], then [stream.Headers] and [stream.Data] in arrival
	// order, then trailers (if any) as a final [stream.Headers]. If emit
	// returns an error, streaming stops and that error is returned. If
	// the whole response does not arrive within receiveTimeout (when
	// positive), Stream fails with ErrReceiveTimeout.
	Stream(ctx context.Context, req *http.Request, receiveTimeout time.Duration, emit func(stream.Event) error) error
	// Release returns the slot to its pool. Calls after the first are
	// no-ops.
	Release()
}

// Factory creates pools of one variant.
type Factory interface {
	// New creates a pool for the given destination (which may be the
	// default destination) that allows size concurrent requests.
	New(dest destination.Key, size int, transport TransportConfig) Pool
}

// FactoryFor returns the built-in factory for the given protocol.
func FactoryFor(protocol poolconfig.Protocol) (Factory, error) {
	switch protocol {
	case poolconfig.ProtocolHTTP1:
		return HTTP1Factory, nil
	case poolconfig.ProtocolHTTP2:
		return HTTP2Factory, nil
	default:
		return nil, fmt.Errorf("no pool implementation for protocol %q", protocol)
	}
}

// basePool holds what both variants share: the slot semaphore and the
// close signal. The variants supply the round-tripper.
type basePool struct {
	ctx    context.Context //nolint:containedctx
	cancel context.CancelFunc
	slots  *semaphore.Weighted
	clock  internal.Clock
	// roundTripper picks the transport for a request.
	roundTripper func(req *http.Request) http.RoundTripper
	closeIdle    func()
}

func newBasePool(size int) basePool {
	ctx, cancel := context.WithCancel(context.Background())
	return basePool{
		ctx:    ctx,
		cancel: cancel,
		slots:  semaphore.NewWeighted(int64(size)),
		clock:  internal.NewRealClock(),
	}
}

// clockSetter is implemented by the built-in pools so a Group can drive
// their receive timeouts with its own clock.
type clockSetter interface {
	setClock(clock internal.Clock)
}

func (p *basePool) setClock(clock internal.Clock) {
	p.clock = clock
}

func (p *basePool) Checkout(ctx context.Context) (Conn, error) {
	if p.ctx.Err() != nil {
		return nil, ErrPoolClosed
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(p.ctx, func() { cancel(ErrPoolClosed) })
	defer stop()
	if err := p.slots.Acquire(ctx, 1); err != nil {
		if cause := context.Cause(ctx); cause != nil {
			return nil, cause
		}
		return nil, err
	}
	if p.ctx.Err() != nil {
		p.slots.Release(1)
		return nil, ErrPoolClosed
	}
	return &conn{pool: p}, nil
}

func (p *basePool) Close() error {
	p.cancel()
	if p.closeIdle != nil {
		p.closeIdle()
	}
	return nil
}

type conn struct {
	pool *basePool
	// +checkatomic
	released atomic.Bool
}

func (c *conn) Release() {
	if c.released.CompareAndSwap(false, true) {
		c.pool.slots.Release(1)
	}
}

func (c *conn) Stream(ctx context.Context, req *http.Request, receiveTimeout time.Duration, emit func(stream.Event) error) error {
	ctx, cancel := internal.WithTimeoutCause(ctx, c.pool.clock, receiveTimeout, ErrReceiveTimeout)
	defer cancel()
	resp, err := c.pool.roundTripper(req).RoundTrip(req.WithContext(ctx))
	if err != nil {
		return classify(ctx, err)
	}
	defer resp.Body.Close()

	if err := emit(stream.Status{Code: resp.StatusCode}); err != nil {
		return err
	}
	if headers := headerList(resp.Header); len(headers) > 0 {
		if err := emit(stream.Headers{Headers: headers}); err != nil {
			return err
		}
	}
	buf := make([]byte, readChunkSize)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := emit(stream.Data{Bytes: chunk}); err != nil {
				return err
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return classify(ctx, readErr)
		}
	}
	// trailers are only populated once the body is exhausted
	if trailers := headerList(resp.Trailer); len(trailers) > 0 {
		if err := emit(stream.Headers{Headers: trailers}); err != nil {
			return err
		}
	}
	return nil
}

// classify reports ErrReceiveTimeout in place of the transport's
// context error when the receive timeout is what cancelled ctx.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, ErrReceiveTimeout) {
		return err
	}
	if cause := context.Cause(ctx); errors.Is(cause, ErrReceiveTimeout) {
		return fmt.Errorf("%w: %w", ErrReceiveTimeout, err)
	}
	return err
}

// headerList flattens h into name/value pairs, sorted by name. Values for
// a name keep their order.
func headerList(h http.Header) []stream.Header {
	if len(h) == 0 {
		return nil
	}
	names := make([]string, 0, len(h))
	count := 0
	for name, values := range h {
		names = append(names, name)
		count += len(values)
	}
	sort.Strings(names)
	result := make([]stream.Header, 0, count)
	for _, name := range names {
		for _, value := range h[name] {
			result = append(result, stream.Header{Name: name, Value: value})
		}
	}
	return result
}
