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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bufbuild/httppools/destination"
	"github.com/bufbuild/httppools/internal"
	"github.com/bufbuild/httppools/picker"
	"github.com/bufbuild/httppools/poolconfig"
	"golang.org/x/sync/errgroup"
)

// GroupOptions configures NewGroup.
type GroupOptions struct {
	// Factory creates the group's pools. If nil, the built-in factory for
	// the configuration's protocol is used.
	Factory Factory
	// Picker chooses the pool for each checkout. If nil,
	// [picker.RoundRobinFactory] is used.
	Picker picker.Factory
	// Metrics receives checkout events. If nil, none are recorded.
	Metrics Metrics
	Logger  *slog.Logger
	Clock   internal.Clock
}

// Group is the set of Count pools started for one registry entry.
// Checkouts are spread over the pools by a picker.
type Group struct {
	dest    destination.Key
	config  poolconfig.Config
	pools   []Pool
	picker  picker.Picker
	metrics Metrics
	clock   internal.Clock
}

// NewGroup starts config.Count pools of config.Size for dest.
func NewGroup(dest destination.Key, config poolconfig.Config, opts GroupOptions) (*Group, error) {
	if config.Count <= 0 || config.Size <= 0 {
		return nil, fmt.Errorf("pool group %s: size and count must be positive", dest)
	}
	factory := opts.Factory
	if factory == nil {
		var err error
		factory, err = FactoryFor(config.Protocol)
		if err != nil {
			return nil, err
		}
	}
	clock := opts.Clock
	if clock == nil {
		clock = internal.NewRealClock()
	}
	transport, err := NewTransportConfig(config.TransportOptions, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("pool group %s: %w", dest, err)
	}
	pools := make([]Pool, config.Count)
	for i := range pools {
		pools[i] = factory.New(dest, config.Size, transport)
		if setter, ok := pools[i].(clockSetter); ok {
			setter.setClock(clock)
		}
	}
	if opts.Logger != nil {
		opts.Logger.Info("started pool group",
			slog.String("destination", dest.String()),
			slog.String("protocol", string(config.Protocol)),
			slog.Int("size", config.Size),
			slog.Int("count", config.Count),
		)
	}
	pickerFactory := opts.Picker
	if pickerFactory == nil {
		pickerFactory = picker.RoundRobinFactory
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Group{
		dest:    dest,
		config:  config,
		pools:   pools,
		picker:  pickerFactory.New(len(pools)),
		metrics: metrics,
		clock:   clock,
	}, nil
}

// Destination returns the registry key the group was started for.
func (g *Group) Destination() destination.Key {
	return g.dest
}

// Protocol returns the variant of every pool in the group.
func (g *Group) Protocol() poolconfig.Protocol {
	return g.config.Protocol
}

// Config returns the configuration the group was started with.
func (g *Group) Config() poolconfig.Config {
	cfg := g.config
	cfg.TransportOptions = append([]poolconfig.TransportOption(nil), g.config.TransportOptions...)
	return cfg
}

// Checkout picks the next pool and checks out a connection from it. If
// none is available within poolTimeout (when positive), Checkout fails
// with ErrPoolTimeout.
func (g *Group) Checkout(ctx context.Context, poolTimeout time.Duration) (Conn, error) {
	start := g.clock.Now()
	conn, whenDone, err := g.checkout(ctx, poolTimeout)
	if err != nil {
		if whenDone != nil {
			whenDone()
		}
		g.metrics.CheckoutFailed(g.dest, g.config.Protocol, FailureReason(err))
		return nil, err
	}
	g.metrics.CheckedOut(g.dest, g.config.Protocol, g.clock.Since(start))
	return &trackedConn{
		Conn: conn,
		onRelease: func() {
			if whenDone != nil {
				whenDone()
			}
			g.metrics.Released(g.dest, g.config.Protocol)
		},
	}, nil
}

func (g *Group) checkout(ctx context.Context, poolTimeout time.Duration) (Conn, func(), error) {
	ctx, cancel := internal.WithTimeoutCause(ctx, g.clock, poolTimeout, ErrPoolTimeout)
	defer cancel()
	index, whenDone := g.picker.Pick()
	conn, err := g.pools[index].Checkout(ctx)
	if err != nil {
		if cause := context.Cause(ctx); errors.Is(cause, ErrPoolTimeout) {
			return nil, whenDone, ErrPoolTimeout
		}
		return nil, whenDone, err
	}
	return conn, whenDone, nil
}

// Close closes every pool in the group.
func (g *Group) Close() error {
	grp, _ := errgroup.WithContext(context.Background())
	for _, pool := range g.pools {
		pool := pool
		grp.Go(pool.Close)
	}
	return grp.Wait()
}

// trackedConn reports its release back to the group, once.
type trackedConn struct {
	Conn
	onRelease func()
	once      sync.Once
}

func (c *trackedConn) Release() {
	c.Conn.Release()
	c.once.Do(c.onRelease)
}
