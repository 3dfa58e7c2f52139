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

package poolconfig

import (
	"fmt"
	"math"
	"slices"
	"sort"
)

// Protocol selects the pool implementation used for a destination.
type Protocol string

const (
	// ProtocolHTTP1 pools are sets of short-lived HTTP/1.1 connections,
	// one request per connection at a time.
	ProtocolHTTP1 Protocol = "http1"
	// ProtocolHTTP2 pools multiplex concurrent requests over a single
	// HTTP/2 connection.
	ProtocolHTTP2 Protocol = "http2"
)

// Recognized option names.
const (
	OptionProtocol         = "protocol"
	OptionSize             = "size"
	OptionCount            = "count"
	OptionTransportOptions = "transport_options"
)

// Schema defaults, applied to any option that is not set.
const (
	DefaultProtocol = ProtocolHTTP1
	DefaultSize     = 10
	DefaultCount    = 1
)

// Options is a loosely-typed set of pool options, as read from a
// configuration source. Keys are option names, such as "size".
type Options map[string]any

// TransportOption is a single key/value pair passed through verbatim to
// the transport layer of a pool.
type TransportOption struct {
	Key   string
	Value any
}

// Config is a validated, fully-defaulted pool configuration.
type Config struct {
	Protocol Protocol
	// Size is the number of connections (HTTP/1) or concurrent streams
	// (HTTP/2) each pool allows.
	Size int
	// Count is the number of pools started for the destination.
	Count            int
	TransportOptions []TransportOption
}

// Defaults returns the configuration obtained by validating an empty
// option set.
func Defaults() Config {
	return Config{
		Protocol: DefaultProtocol,
		Size:     DefaultSize,
		Count:    DefaultCount,
	}
}

// Equal reports whether c and other describe the same configuration.
// Transport options are compared in order.
func (c Config) Equal(other Config) bool {
	if c.Protocol != other.Protocol || c.Size != other.Size || c.Count != other.Count {
		return false
	}
	return slices.EqualFunc(c.TransportOptions, other.TransportOptions, func(a, b TransportOption) bool {
		return a.Key == b.Key && fmt.Sprint(a.Value) == fmt.Sprint(b.Value)
	})
}

// Options returns c as a raw option set. Validating the result yields a
// configuration equal to c.
func (c Config) Options() Options {
	return Options{
		OptionProtocol:         string(c.Protocol),
		OptionSize:             c.Size,
		OptionCount:            c.Count,
		OptionTransportOptions: slices.Clone(c.TransportOptions),
	}
}

func (c Config) clone() Config {
	c.TransportOptions = slices.Clone(c.TransportOptions)
	return c
}

// Validate checks the given options against the pool option schema and
// merges them over the schema defaults. Every violation is reported, not
// just the first. The returned error, if any, is a *ConfigError.
func Validate(opts Options) (Config, error) {
	cfg, violations := validate("", opts)
	if len(violations) > 0 {
		return Config{}, &ConfigError{Violations: violations}
	}
	return cfg, nil
}

func validate(dest string, opts Options) (Config, []Violation) {
	cfg := Defaults()
	var violations []Violation
	report := func(option string, kind ViolationKind, format string, args ...any) {
		violations = append(violations, Violation{
			Destination: dest,
			Option:      option,
			Kind:        kind,
			Detail:      fmt.Sprintf(format, args...),
		})
	}

	names := make([]string, 0, len(opts))
	for name := range opts {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := opts[name]
		switch name {
		case OptionProtocol:
			var protocol Protocol
			switch v := value.(type) {
			case Protocol:
				protocol = v
			case string:
				protocol = Protocol(v)
			default:
				report(name, KindWrongType, "expected string, got %T", value)
				continue
			}
			switch protocol {
			case ProtocolHTTP1, ProtocolHTTP2:
				cfg.Protocol = protocol
			default:
				report(name, KindOutOfRange, "must be %q or %q, got %q", ProtocolHTTP1, ProtocolHTTP2, protocol)
			}
		case OptionSize, OptionCount:
			n, kind := asInt(value)
			switch kind {
			case KindWrongType:
				report(name, KindWrongType, "expected integer, got %T", value)
				continue
			case KindOutOfRange:
				report(name, KindOutOfRange, "must be a positive integer, got %v", value)
				continue
			}
			if n <= 0 {
				report(name, KindOutOfRange, "must be a positive integer, got %d", n)
				continue
			}
			if name == OptionSize {
				cfg.Size = n
			} else {
				cfg.Count = n
			}
		case OptionTransportOptions:
			transportOpts, err := asTransportOptions(value)
			if err != nil {
				report(name, KindWrongType, "%v", err)
				continue
			}
			cfg.TransportOptions = transportOpts
		default:
			report(name, KindUnknownOption, "unknown option")
		}
	}
	return cfg, violations
}

// asInt converts value to an int. It returns KindWrongType if value is
// not an integer and KindOutOfRange if it is one that does not fit.
func asInt(value any) (int, ViolationKind) {
	switch v := value.(type) {
	case int:
		return v, 0
	case int8:
		return int(v), 0
	case int16:
		return int(v), 0
	case int32:
		return int(v), 0
	case int64:
		if v > math.MaxInt || v < math.MinInt {
			return 0, KindOutOfRange
		}
		return int(v), 0
	case uint:
		if v > math.MaxInt {
			return 0, KindOutOfRange
		}
		return int(v), 0
	case uint8:
		return int(v), 0
	case uint16:
		return int(v), 0
	case uint32:
		return int(v), 0
	case uint64:
		if v > math.MaxInt {
			return 0, KindOutOfRange
		}
		return int(v), 0
	case float64:
		// JSON decoders produce float64 for every number.
		if math.IsNaN(v) || (!math.IsInf(v, 0) && v != math.Trunc(v)) {
			return 0, KindWrongType
		}
		if v > math.MaxInt32 || v < math.MinInt32 {
			return 0, KindOutOfRange
		}
		return int(v), 0
	case float32:
		return asInt(float64(v))
	default:
		return 0, KindWrongType
	}
}

func asTransportOptions(value any) ([]TransportOption, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []TransportOption:
		for i, opt := range v {
			if opt.Key == "" {
				return nil, fmt.Errorf("entry %d has an empty key", i)
			}
		}
		return slices.Clone(v), nil
	case []any:
		result := make([]TransportOption, 0, len(v))
		for i, elem := range v {
			switch e := elem.(type) {
			case TransportOption:
				if e.Key == "" {
					return nil, fmt.Errorf("entry %d has an empty key", i)
				}
				result = append(result, e)
			case map[string]any:
				if len(e) != 1 {
					return nil, fmt.Errorf("entry %d must have exactly one key, got %d", i, len(e))
				}
				for key, val := range e {
					if key == "" {
						return nil, fmt.Errorf("entry %d has an empty key", i)
					}
					result = append(result, TransportOption{Key: key, Value: val})
				}
			default:
				return nil, fmt.Errorf("entry %d: expected key/value pair, got %T", i, elem)
			}
		}
		return result, nil
	default:
		return nil, fmt.Errorf("expected ordered list of key/value pairs, got %T", value)
	}
}
