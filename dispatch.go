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
	"context"
	"io"
	"log/slog"

	"github.com/bufbuild/httppools/stream"
)

// Stream dispatches req through client and folds each response event into
// acc with reduce, in the order the events arrive. It blocks until the
// response is complete or the request fails.
//
// On success, the final accumulator is returned. On failure, the zero
// value of A is returned along with a *DispatchError (no connection could
// be checked out) or a *TransportError (the exchange failed after
// checkout). A partially folded accumulator is never returned.
func Stream[A any](
	ctx context.Context,
	client *Client,
	req *Request,
	acc A,
	reduce stream.Reducer[A],
	options ...RequestOption,
) (A, error) {
	var zero A
	if !req.consumed.CompareAndSwap(false, true) {
		return zero, ErrRequestConsumed
	}
	opts := newRequestOptions(options)
	httpReq, err := req.toHTTP(ctx)
	if err != nil {
		return zero, err
	}

	group, protocol := client.Resolve(req.key)
	logAttrs := []any{
		slog.String("request_id", req.ID()),
		slog.String("destination", group.Destination().String()),
		slog.String("protocol", string(protocol)),
	}
	conn, err := group.Checkout(ctx, opts.poolTimeout)
	if err != nil {
		client.logger.Warn("request dispatch failed", append(logAttrs, slog.Any("error", err))...)
		return zero, &DispatchError{Destination: group.Destination(), Protocol: protocol, Err: err}
	}
	defer conn.Release()

	var seq stream.Sequencer
	err = conn.Stream(ctx, httpReq, opts.receiveTimeout, func(event stream.Event) error {
		if err := seq.Check(event); err != nil {
			return err
		}
		acc = reduce(event, acc)
		return nil
	})
	if err == nil {
		err = seq.Finish()
	}
	if err != nil {
		client.logger.Warn("request failed", append(logAttrs, slog.Any("error", err))...)
		return zero, &TransportError{Destination: group.Destination(), Protocol: protocol, Err: err}
	}
	return acc, nil
}

// Do dispatches req and returns the assembled response: its status, every
// header in arrival order (trailers last), and the whole body.
func (c *Client) Do(ctx context.Context, req *Request, options ...RequestOption) (*Response, error) {
	acc, err := Stream(ctx, c, req, stream.Collector{}, stream.Collect, options...)
	if err != nil {
		return nil, err
	}
	return acc.Response(), nil
}

// Request builds a request and dispatches it with Do.
//
// Deprecated: Use NewRequest and Client.Do.
func (c *Client) Request(
	ctx context.Context,
	method, rawURL string,
	headers []Header,
	body io.Reader,
	options ...RequestOption,
) (*Response, error) {
	req, err := NewRequest(method, rawURL, headers, body)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, req, options...)
}
