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
	"errors"
	"fmt"

	"github.com/bufbuild/httppools/destination"
	"github.com/bufbuild/httppools/poolconfig"
)

var (
	// ErrInvalidURL is returned by NewRequest when the URL cannot be
	// parsed into a scheme, host and port.
	ErrInvalidURL = errors.New("invalid request URL")
	// ErrInvalidRequest is returned by NewRequest for a malformed method
	// or header.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRequestConsumed is returned when a request is dispatched more
	// than once.
	ErrRequestConsumed = errors.New("request already dispatched")
)

// DispatchError reports that no connection could be obtained from the
// pool group serving a request, for example because the pool timeout
// elapsed or the client was closed.
type DispatchError struct {
	// Destination is the registry entry the request resolved to. It is
	// [destination.Default] when the request fell back to the default
	// group.
	Destination destination.Key
	Protocol    poolconfig.Protocol
	Err         error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch to %s pool %s: %v", e.Protocol, e.Destination, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// TransportError reports that a request failed after a connection was
// checked out: the exchange failed, the receive timeout elapsed, or the
// pool produced events out of order.
type TransportError struct {
	Destination destination.Key
	Protocol    poolconfig.Protocol
	Err         error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport via %s pool %s: %v", e.Protocol, e.Destination, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
