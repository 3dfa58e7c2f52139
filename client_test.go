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
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bufbuild/httppools/destination"
	"github.com/bufbuild/httppools/internal/clocktest"
	"github.com/bufbuild/httppools/picker"
	"github.com/bufbuild/httppools/pool"
	"github.com/bufbuild/httppools/poolconfig"
	"github.com/bufbuild/httppools/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func protoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Proto", r.Proto)
		w.Header().Set("X-Echo", r.Header.Get("X-Echo"))
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "%s %s", r.Method, body)
	})
}

func newTestClient(t *testing.T, raw poolconfig.Raw, opts ...ClientOption) *Client {
	t.Helper()
	registry, err := poolconfig.BuildRegistry(raw)
	require.NoError(t, err)
	client, err := NewClient(registry, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, client.Close()) })
	return client
}

func TestClient_Resolve(t *testing.T) {
	t.Parallel()
	client := newTestClient(t, poolconfig.Raw{
		"https://a.com:443": {"protocol": "http2", "size": 3},
		"default":           {"size": 7},
	})

	testCases := []struct {
		name     string
		url      string
		specific bool
	}{
		{name: "exact", url: "https://a.com:443/x", specific: true},
		{name: "default port", url: "https://a.com", specific: true},
		{name: "other host", url: "https://b.com:443"},
		{name: "other scheme", url: "http://a.com"},
		{name: "other port", url: "https://a.com:8443"},
		{name: "host case", url: "https://A.com"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			key, err := destination.Normalize(testCase.url)
			require.NoError(t, err)
			group, protocol := client.Resolve(key)
			if testCase.specific {
				assert.Equal(t, destination.Explicit("https", "a.com", 443), group.Destination())
				assert.Equal(t, poolconfig.ProtocolHTTP2, protocol)
				assert.Equal(t, 3, group.Config().Size)
			} else {
				assert.True(t, group.Destination().IsDefault())
				assert.Equal(t, poolconfig.ProtocolHTTP1, protocol)
				assert.Equal(t, 7, group.Config().Size)
			}
		})
	}
}

func TestClient_DispatchByDestination(t *testing.T) {
	t.Parallel()
	h2cServer := httptest.NewServer(h2c.NewHandler(protoHandler(), &http2.Server{}))
	t.Cleanup(h2cServer.Close)
	plainServer := httptest.NewServer(protoHandler())
	t.Cleanup(plainServer.Close)

	client := newTestClient(t, poolconfig.Raw{
		h2cServer.URL: {"protocol": "http2"},
	})
	ctx := context.Background()

	req, err := NewRequestBytes(http.MethodPost, h2cServer.URL+"/a", []Header{{Name: "X-Echo", Value: "one"}}, []byte("abc"))
	require.NoError(t, err)
	resp, err := client.Do(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "POST abc", string(resp.Body))
	proto, _ := resp.Header("X-Proto")
	assert.Equal(t, "HTTP/2.0", proto)
	echo, _ := resp.Header("X-Echo")
	assert.Equal(t, "one", echo)

	// no entry for this server, so the default http1 group serves it
	req, err = NewRequest(http.MethodGet, plainServer.URL, nil, nil)
	require.NoError(t, err)
	resp, err = client.Do(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "GET ", string(resp.Body))
	proto, _ = resp.Header("X-Proto")
	assert.Equal(t, "HTTP/1.1", proto)
}

func TestClient_WithPicker(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(protoHandler())
	t.Cleanup(server.Close)
	client := newTestClient(t, poolconfig.Raw{"default": {"count": 3, "size": 1}}, WithPicker(picker.PowerOfTwoFactory))

	for range 5 {
		req, err := NewRequest(http.MethodGet, server.URL, nil, nil)
		require.NoError(t, err)
		resp, err := client.Do(context.Background(), req, WithPoolTimeout(0))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.Status)
	}
}

func TestStream_CustomAccumulator(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(protoHandler())
	t.Cleanup(server.Close)
	client := newTestClient(t, nil)

	req, err := NewRequestBytes(http.MethodPut, server.URL, nil, []byte("hello"))
	require.NoError(t, err)
	size, err := Stream(context.Background(), client, req, 0, func(event stream.Event, n int) int {
		if data, ok := event.(stream.Data); ok {
			n += len(data.Bytes)
		}
		return n
	})
	require.NoError(t, err)
	assert.Equal(t, len("PUT hello"), size)
}

func TestStream_RequestConsumed(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(protoHandler())
	t.Cleanup(server.Close)
	client := newTestClient(t, nil)

	req, err := NewRequest(http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)
	_, err = client.Do(context.Background(), req)
	require.NoError(t, err)
	_, err = client.Do(context.Background(), req)
	require.ErrorIs(t, err, ErrRequestConsumed)
}

func TestStream_PoolTimeout(t *testing.T) {
	t.Parallel()
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		entered <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	clock := clocktest.NewFakeClock()
	client := newTestClient(t, poolconfig.Raw{"default": {"size": 1}}, WithClock(clock))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// occupy the only slot
	first, err := NewRequest(http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)
	firstDone := make(chan error, 1)
	go func() {
		_, err := client.Do(ctx, first, WithReceiveTimeout(0))
		firstDone <- err
	}()
	select {
	case <-entered:
	case <-ctx.Done():
		t.Fatal("first request never reached the server")
	}

	second, err := NewRequest(http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)
	errs := make(chan error, 1)
	go func() {
		resp, err := client.Do(ctx, second)
		if resp != nil {
			err = fmt.Errorf("unexpected response %d", resp.Status)
		}
		errs <- err
	}()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(DefaultPoolTimeout)
	select {
	case err := <-errs:
		var dispatchErr *DispatchError
		require.ErrorAs(t, err, &dispatchErr)
		require.ErrorIs(t, err, pool.ErrPoolTimeout)
		assert.True(t, dispatchErr.Destination.IsDefault())
		assert.Equal(t, poolconfig.ProtocolHTTP1, dispatchErr.Protocol)
	case <-ctx.Done():
		t.Fatal("second request did not time out")
	}

	close(release)
	require.NoError(t, <-firstDone)
}

func TestStream_TransportErrorDiscardsAccumulator(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Length", "100")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("partial"))
		rc := http.NewResponseController(w)
		_ = rc.Flush()
		conn, _, err := rc.Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	t.Cleanup(server.Close)
	client := newTestClient(t, nil)

	req, err := NewRequest(http.MethodGet, server.URL, nil, nil)
	require.NoError(t, err)
	var seen int
	events, err := Stream(context.Background(), client, req, []stream.Event(nil), func(event stream.Event, acc []stream.Event) []stream.Event {
		seen++
		return append(acc, event)
	})
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.True(t, transportErr.Destination.IsDefault())
	assert.Nil(t, events)
	assert.Positive(t, seen)
}

func TestStream_ProtocolViolation(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name   string
		events []stream.Event
	}{
		{name: "data first", events: []stream.Event{stream.Data{Bytes: []byte("x")}}},
		{name: "two statuses", events: []stream.Event{stream.Status{Code: 200}, stream.Status{Code: 200}}},
		{name: "no status", events: nil},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			client := newTestClient(t, nil, WithPoolFactory(poolconfig.ProtocolHTTP1, scriptedFactory{events: testCase.events}))
			req, err := NewRequest(http.MethodGet, "http://example.com", nil, nil)
			require.NoError(t, err)
			resp, err := client.Do(context.Background(), req)
			var transportErr *TransportError
			require.ErrorAs(t, err, &transportErr)
			require.ErrorIs(t, err, stream.ErrProtocolViolation)
			assert.Nil(t, resp)
		})
	}
}

func TestClient_Closed(t *testing.T) {
	t.Parallel()
	registry, err := poolconfig.BuildRegistry(poolconfig.Raw{"https://a.com": {}})
	require.NoError(t, err)
	client, err := NewClient(registry)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	req, err := NewRequest(http.MethodGet, "https://a.com/x", nil, nil)
	require.NoError(t, err)
	_, err = client.Do(context.Background(), req)
	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	require.ErrorIs(t, err, pool.ErrPoolClosed)
	assert.Equal(t, destination.Explicit("https", "a.com", 443), dispatchErr.Destination)
}

func TestClient_DeprecatedRequest(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(protoHandler())
	t.Cleanup(server.Close)
	client := newTestClient(t, nil)

	resp, err := client.Request(context.Background(), http.MethodGet, server.URL, nil, nil) //nolint:staticcheck
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)

	_, err = client.Request(context.Background(), http.MethodGet, "not a url", nil, nil) //nolint:staticcheck
	require.ErrorIs(t, err, ErrInvalidURL)
}

func TestNewClient_NilRegistry(t *testing.T) {
	t.Parallel()
	_, err := NewClient(nil)
	require.Error(t, err)
}

type scriptedFactory struct {
	events []stream.Event
}

func (f scriptedFactory) New(destination.Key, int, pool.TransportConfig) pool.Pool {
	return scriptedPool(f)
}

type scriptedPool struct {
	events []stream.Event
}

func (scriptedPool) Protocol() poolconfig.Protocol {
	return poolconfig.ProtocolHTTP1
}

func (p scriptedPool) Checkout(context.Context) (pool.Conn, error) {
	return scriptedConn(p), nil
}

func (scriptedPool) Close() error {
	return nil
}

type scriptedConn struct {
	events []stream.Event
}

func (c scriptedConn) Stream(_ context.Context, _ *http.Request, _ time.Duration, emit func(stream.Event) error) error {
	for _, event := range c.events {
		if err := emit(event); err != nil {
			return err
		}
	}
	return nil
}

func (scriptedConn) Release() {}
