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
	"math/rand/v2"
	"sync/atomic"
)

//nolint:gochecknoglobals
var (
	// PowerOfTwoFactory creates pickers that select two pools at random
	// and pick the one with fewer connections checked out. This takes
	// advantage of the [power of two random choices], which provides
	// substantial benefits over a simple random picker without having to
	// maintain a heap.
	//
	// [power of two random choices]: http://www.eecs.harvard.edu/~michaelm/postscripts/handbook2001.pdf
	PowerOfTwoFactory Factory = FactoryFunc(newPowerOfTwo)
)

func newPowerOfTwo(n int) Picker {
	return &powerOfTwo{
		loads: make([]atomic.Int64, n),
		intn:  rand.IntN,
	}
}

type powerOfTwo struct {
	// +checkatomic
	loads []atomic.Int64
	intn  func(int) int
}

func (p *powerOfTwo) Pick() (int, func()) {
	first := p.intn(len(p.loads))
	second := p.intn(len(p.loads))

	index := second
	if p.loads[first].Load() < p.loads[second].Load() {
		index = first
	}

	p.loads[index].Add(1)
	return index, func() {
		p.loads[index].Add(-1)
	}
}
