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
	"errors"
	"io"
	"log/slog"

	"github.com/bufbuild/httppools/destination"
	"github.com/bufbuild/httppools/internal"
	"github.com/bufbuild/httppools/picker"
	"github.com/bufbuild/httppools/pool"
	"github.com/bufbuild/httppools/poolconfig"
	"golang.org/x/sync/errgroup"
)

// ClientOption is an option used to customize the behavior of a Client.
type ClientOption interface {
	apply(*clientOptions)
}

// WithLogger configures the logger used by the client and its pools. If
// not specified, nothing is logged.
func WithLogger(logger *slog.Logger) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.logger = logger
	})
}

// WithPoolFactory overrides the factory used to create pools for entries
// with the given protocol. This is mainly useful to instrument or stub
// out the pools in tests. If not specified, the factories in the pool
// package are used.
func WithPoolFactory(protocol poolconfig.Protocol, factory pool.Factory) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		if opts.factories == nil {
			opts.factories = map[poolconfig.Protocol]pool.Factory{}
		}
		opts.factories[protocol] = factory
	})
}

// WithPicker configures how each pool group chooses among its pools for
// a checkout. If not specified, [picker.RoundRobinFactory] is used.
func WithPicker(factory picker.Factory) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.picker = factory
	})
}

// WithMetrics configures where pool checkout events are reported, for
// example the Prometheus collectors in package poolmetrics. If not specified, nothing is recorded.
func WithMetrics(metrics pool.Metrics) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.metrics = metrics
	})
}

// withClock sets the clock that drives pool and receive timeouts.
func withClock(clock internal.Clock) ClientOption {
	return clientOptionFunc(func(opts *clientOptions) {
		opts.clock = clock
	})
}

// Client dispatches requests to the pool group configured for their
// destination. A Client is safe for concurrent use.
type Client struct {
	registry     *poolconfig.Registry
	logger       *slog.Logger
	defaultGroup *pool.Group
	groups       map[destination.Key]*pool.Group
}

// NewClient starts a pool group for every entry in registry, including
// the default entry, and returns a client that dispatches to them. The
// client should be closed when no longer needed.
func NewClient(registry *poolconfig.Registry, options ...ClientOption) (*Client, error) {
	if registry == nil {
		return nil, errors.New("httppools: nil registry")
	}
	var opts clientOptions
	for _, opt := range options {
		opt.apply(&opts)
	}
	opts.applyDefaults()

	client := &Client{
		registry: registry,
		logger:   opts.logger,
		groups:   make(map[destination.Key]*pool.Group, registry.Len()-1),
	}
	for _, entry := range registry.Entries() {
		group, err := pool.NewGroup(entry.Key, entry.Config, pool.GroupOptions{
			Factory: opts.factories[entry.Config.Protocol],
			Picker:  opts.picker,
			Metrics: opts.metrics,
			Logger:  opts.logger,
			Clock:   opts.clock,
		})
		if err != nil {
			_ = client.Close()
			return nil, err
		}
		if entry.Key.IsDefault() {
			client.defaultGroup = group
		} else {
			client.groups[entry.Key] = group
		}
	}
	return client, nil
}

// Registry returns the configuration the client was built from.
func (c *Client) Registry() *poolconfig.Registry {
	return c.registry
}

// Resolve returns the pool group serving the given destination and the
// protocol of its pools. Only an exact match on scheme, host and port
// selects a specific group; any other destination gets the default group.
func (c *Client) Resolve(key destination.Key) (*pool.Group, poolconfig.Protocol) {
	if group, ok := c.groups[key]; ok {
		return group, group.Protocol()
	}
	if !key.IsDefault() {
		c.logger.Debug("no pool configured for destination, using default",
			slog.String("destination", key.String()),
		)
	}
	return c.defaultGroup, c.defaultGroup.Protocol()
}

// Close closes every pool group. Requests dispatched after Close fail
// with a *DispatchError wrapping [pool.ErrPoolClosed].
func (c *Client) Close() error {
	grp, _ := errgroup.WithContext(context.Background())
	for _, group := range c.groups {
		group := group
		grp.Go(group.Close)
	}
	if c.defaultGroup != nil {
		grp.Go(c.defaultGroup.Close)
	}
	return grp.Wait()
}

type clientOptionFunc func(*clientOptions)

func (f clientOptionFunc) apply(opts *clientOptions) {
	f(opts)
}

type clientOptions struct {
	logger    *slog.Logger
	factories map[poolconfig.Protocol]pool.Factory
	picker    picker.Factory
	metrics   pool.Metrics
	clock     internal.Clock
}

func (opts *clientOptions) applyDefaults() {
	if opts.logger == nil {
		opts.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.clock == nil {
		opts.clock = internal.NewRealClock()
	}
}
