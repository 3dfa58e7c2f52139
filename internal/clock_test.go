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

package internal_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bufbuild/httppools/internal"
	"github.com/bufbuild/httppools/internal/clocktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTooSlow = errors.New("too slow")

func TestWithTimeoutCause(t *testing.T) {
	t.Parallel()
	clock := clocktest.NewFakeClock()
	ctx, cancel := internal.WithTimeoutCause(context.Background(), clock, time.Second, errTooSlow)
	defer cancel()

	clock.Advance(999 * time.Millisecond)
	require.NoError(t, ctx.Err())
	clock.Advance(time.Millisecond)
	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), errTooSlow)
}

func TestWithTimeoutCause_Cancel(t *testing.T) {
	t.Parallel()
	clock := clocktest.NewFakeClock()
	ctx, cancel := internal.WithTimeoutCause(context.Background(), clock, time.Second, errTooSlow)
	cancel()
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)

	// the timer is stopped, so nothing is left waiting on the clock
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer waitCancel()
	require.Error(t, clock.BlockUntilContext(waitCtx, 1))
}

func TestWithTimeoutCause_NoTimeout(t *testing.T) {
	t.Parallel()
	clock := clocktest.NewFakeClock()
	ctx, cancel := internal.WithTimeoutCause(context.Background(), clock, 0, errTooSlow)
	clock.Advance(time.Hour)
	require.NoError(t, ctx.Err())
	cancel()
	assert.ErrorIs(t, context.Cause(ctx), context.Canceled)
}

func TestNewRand(t *testing.T) {
	t.Parallel()
	rnd := internal.NewRand()
	for range 100 {
		n := rnd.Intn(7)
		assert.GreaterOrEqual(t, n, 0)
		assert.Less(t, n, 7)
	}
}
