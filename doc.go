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

// Package httppools provides an HTTP client that spreads requests over
// connection pools, one group of pools per destination. A destination is
// a (scheme, host, port) triple; requests to destinations without their
// own configuration are served by a catch-all default group.
//
// Pool configuration is validated up front into a [poolconfig.Registry],
// either built programmatically with [poolconfig.BuildRegistry] or loaded
// from YAML with [poolconfig.Load]:
//
//	pools:
//	  default:
//	    size: 20
//	  https://api.example.com:
//	    protocol: http2
//	    count: 2
//	    transport_options:
//	      connect_timeout: 2000
//
// [NewClient] starts the pools for every registry entry. Responses can be
// consumed two ways. [Client.Do] returns a fully assembled [Response].
// [Stream] instead folds the response events ([stream.Status], then any
// number of [stream.Headers] and [stream.Data]) through a caller-supplied
// reducer into an accumulator of the caller's choosing.
//
// Checkouts can be observed with [WithMetrics]; package poolmetrics
// exports them to Prometheus.
//
// # Errors
//
// Every failure identifies the stage at which it occurred:
//
//  1. Building a registry fails with a *[poolconfig.ConfigError] listing
//     every invalid option and destination.
//  2. Building a request from a malformed URL fails with [ErrInvalidURL].
//  3. Failing to check out a connection, such as when the pool timeout
//     elapses, yields a *[DispatchError].
//  4. Failures while the response is streaming, including the receive
//     timeout elapsing, yield a *[TransportError]. Anything accumulated
//     before the failure is discarded.
//
// Nothing is retried by this package.
package httppools
