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

package picker

import (
	"sync/atomic"

	"github.com/bufbuild/httppools/internal"
)

//nolint:gochecknoglobals
var (
	// RoundRobinFactory creates pickers that pick pools in a "round-robin"
	// fashion, that is to say, in sequential order. In order to mitigate
	// the risk of a "thundering herd" scenario, each picker starts at a
	// random pool.
	RoundRobinFactory Factory = roundRobinFactory{}
)

type roundRobinFactory struct{}

type roundRobin struct {
	n uint64
	// +checkatomic
	counter atomic.Uint64
}

func (roundRobinFactory) New(n int) Picker {
	picker := &roundRobin{n: uint64(n)}
	picker.counter.Store(uint64(internal.NewRand().Intn(n))) //nolint:gosec
	return picker
}

func (r *roundRobin) Pick() (int, func()) {
	return int(r.counter.Add(1) % r.n), nil //nolint:gosec // less than n
}
