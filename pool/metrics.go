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
	"time"

	"github.com/bufbuild/httppools/destination"
	"github.com/bufbuild/httppools/poolconfig"
)

// Checkout failure reasons reported to [Metrics].
const (
	ReasonPoolTimeout = "pool_timeout"
	ReasonClosed      = "closed"
	ReasonCanceled    = "canceled"
	ReasonOther       = "other"
)

// Metrics receives checkout events from a [Group]. Implementations must
// be safe for concurrent use.
type Metrics interface {
	// CheckedOut is called when a connection is checked out, with the
	// time spent waiting for it.
	CheckedOut(dest destination.Key, protocol poolconfig.Protocol, wait time.Duration)
	// CheckoutFailed is called when a checkout fails. reason is one of
	// the Reason constants.
	CheckoutFailed(dest destination.Key, protocol poolconfig.Protocol, reason string)
	// Released is called once for every connection reported to
	// CheckedOut, when it is released.
	Released(dest destination.Key, protocol poolconfig.Protocol)
}

// FailureReason classifies a checkout error for [Metrics].
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrPoolTimeout):
		return ReasonPoolTimeout
	case errors.Is(err, ErrPoolClosed):
		return ReasonClosed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	default:
		return ReasonOther
	}
}

type noopMetrics struct{}

func (noopMetrics) CheckedOut(destination.Key, poolconfig.Protocol, time.Duration) {}
func (noopMetrics) CheckoutFailed(destination.Key, poolconfig.Protocol, string)    {}
func (noopMetrics) Released(destination.Key, poolconfig.Protocol)                  {}
