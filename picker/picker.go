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

// Picker selects one of a fixed number of pools. It also returns a
// callback that, if non-nil, must be invoked once the connection checked
// out from that pool is released (or the checkout fails). Such a callback
// can be used, for example, to track the number of connections in use
// for a load-aware implementation.
//
// A Picker must be safe for concurrent use.
type Picker interface {
	Pick() (index int, whenDone func())
}

// Factory creates pickers.
type Factory interface {
	// New returns a picker over n pools. n is always positive.
	New(n int) Picker
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(n int) Picker

// New implements Factory.
func (f FactoryFunc) New(n int) Picker {
	return f(n)
}

type pickerFunc func() (int, func())

func (f pickerFunc) Pick() (int, func()) {
	return f()
}
