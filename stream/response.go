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

package stream

import "strings"

// Response is a fully received response.
type Response struct {
	Status int
	// Headers holds every header field from every Headers event, in
	// arrival order.
	Headers []Header
	// Body is the concatenation of every Data event, in arrival order.
	Body []byte
}

// Header returns the value of the first header field with the given
// name, compared case-insensitively, and whether one was found.
func (r *Response) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// Collector is the accumulator used by [Collect]. Body chunks are kept
// separately and joined once, by [Collector.Response].
type Collector struct {
	status  int
	headers []Header
	chunks  [][]byte
	size    int
}

// Collect is the reducer that assembles a [Response]. Status replaces the
// status code, Headers are appended and Data chunks are buffered.
func Collect(event Event, acc Collector) Collector {
	switch e := event.(type) {
	case Status:
		acc.status = e.Code
	case Headers:
		acc.headers = append(acc.headers, e.Headers...)
	case Data:
		if len(e.Bytes) > 0 {
			acc.chunks = append(acc.chunks, e.Bytes)
			acc.size += len(e.Bytes)
		}
	}
	return acc
}

// Response builds the response from everything collected so far.
func (c Collector) Response() *Response {
	body := make([]byte, 0, c.size)
	for _, chunk := range c.chunks {
		body = append(body, chunk...)
	}
	headers := make([]Header, len(c.headers))
	copy(headers, c.headers)
	return &Response{
		Status:  c.status,
		Headers: headers,
		Body:    body,
	}
}
