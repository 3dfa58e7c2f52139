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

// Package stream defines the events a pool emits while receiving a
// response, and the reducers that fold those events into a value.
//
// For a single request, a pool emits exactly one [Status] event, followed
// by any number of [Headers] and [Data] events in the order the transport
// produced them. Each event is delivered once. A [Sequencer] checks that
// ordering, and [Collect] is the reducer that assembles a [Response].
package stream

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation is reported when a pool emits events out of order.
var ErrProtocolViolation = errors.New("stream protocol violation")

// Header is a single response or request header field. Header lists keep
// the order in which fields were produced, and may repeat names.
type Header struct {
	Name  string
	Value string
}

// Event is one of [Status], [Headers] or [Data].
type Event interface {
	isEvent()
}

// Status carries the response status code.
type Status struct {
	Code int
}

// Headers carries header fields. A stream may have several Headers events
// (trailers arrive as a second one); consumers append rather than replace.
type Headers struct {
	Headers []Header
}

// Data carries one contiguous chunk of the response body. The producer
// does not retain or modify Bytes after the event is delivered.
type Data struct {
	Bytes []byte
}

func (Status) isEvent()  {}
func (Headers) isEvent() {}
func (Data) isEvent()    {}

// Reducer folds one event into an accumulator and returns the new
// accumulator.
type Reducer[A any] func(event Event, acc A) A

// Sequencer checks that a series of events follows the stream ordering
// rules. The zero value is ready to use. A Sequencer is not safe for
// concurrent use.
type Sequencer struct {
	sawStatus bool
}

// Check returns an error if event may not follow the events already
// checked.
func (s *Sequencer) Check(event Event) error {
	switch e := event.(type) {
	case Status:
		if s.sawStatus {
			return fmt.Errorf("%w: duplicate status %d", ErrProtocolViolation, e.Code)
		}
		s.sawStatus = true
	case Headers:
		if !s.sawStatus {
			return fmt.Errorf("%w: headers before status", ErrProtocolViolation)
		}
	case Data:
		if !s.sawStatus {
			return fmt.Errorf("%w: data before status", ErrProtocolViolation)
		}
	default:
		return fmt.Errorf("%w: unknown event %T", ErrProtocolViolation, event)
	}
	return nil
}

// Finish returns an error if the stream ended without a status.
func (s *Sequencer) Finish() error {
	if !s.sawStatus {
		return fmt.Errorf("%w: stream ended without status", ErrProtocolViolation)
	}
	return nil
}

// Fold applies reduce to each event in order, starting from acc. If the
// events are out of order, Fold returns the zero value and an error.
func Fold[A any](events []Event, acc A, reduce Reducer[A]) (A, error) {
	var seq Sequencer
	for _, event := range events {
		if err := seq.Check(event); err != nil {
			var zero A
			return zero, err
		}
		acc = reduce(event, acc)
	}
	if err := seq.Finish(); err != nil {
		var zero A
		return zero, err
	}
	return acc, nil
}
