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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := Validate(nil)
	require.NoError(t, err)
	assert.Equal(t, Config{Protocol: ProtocolHTTP1, Size: 10, Count: 1}, cfg)
}

func TestValidate_Idempotent(t *testing.T) {
	t.Parallel()
	for _, opts := range []Options{
		nil,
		{OptionProtocol: "http2"},
		{OptionSize: 3, OptionCount: 4},
		{OptionTransportOptions: []any{
			map[string]any{"connect_timeout": 250},
			map[string]any{"disable_compression": true},
		}},
	} {
		first, err := Validate(opts)
		require.NoError(t, err)
		second, err := Validate(first.Options())
		require.NoError(t, err)
		assert.True(t, first.Equal(second), "%+v != %+v", first, second)
		assert.Equal(t, first, second)
	}
}

func TestValidate_Numbers(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name  string
		value any
		want  int
		kind  ViolationKind
	}{
		{name: "int", value: 5, want: 5},
		{name: "int64", value: int64(6), want: 6},
		{name: "uint8", value: uint8(7), want: 7},
		{name: "integral float", value: 8.0, want: 8},
		{name: "fractional float", value: 8.5, kind: KindWrongType},
		{name: "float above int32", value: 3e9, kind: KindOutOfRange},
		{name: "infinite float", value: math.Inf(1), kind: KindOutOfRange},
		{name: "uint64 above int", value: uint64(math.MaxUint64), kind: KindOutOfRange},
		{name: "string", value: "8", kind: KindWrongType},
		{name: "bool", value: true, kind: KindWrongType},
		{name: "zero", value: 0, kind: KindOutOfRange},
		{name: "negative", value: -2, kind: KindOutOfRange},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Validate(Options{OptionSize: testCase.value})
			if testCase.kind == 0 {
				require.NoError(t, err)
				assert.Equal(t, testCase.want, cfg.Size)
				return
			}
			var configErr *ConfigError
			require.ErrorAs(t, err, &configErr)
			require.Len(t, configErr.Violations, 1)
			assert.Equal(t, testCase.kind, configErr.Violations[0].Kind)
			assert.Equal(t, OptionSize, configErr.Violations[0].Option)
		})
	}
}

func TestValidate_TransportOptions(t *testing.T) {
	t.Parallel()
	cfg, err := Validate(Options{OptionTransportOptions: []any{
		map[string]any{"b": 1},
		TransportOption{Key: "a", Value: "x"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []TransportOption{{Key: "b", Value: 1}, {Key: "a", Value: "x"}}, cfg.TransportOptions)

	for _, bad := range []any{
		map[string]any{"a": 1},
		"a=1",
		[]any{map[string]any{"a": 1, "b": 2}},
		[]any{42},
		[]TransportOption{{Value: 1}},
	} {
		_, err := Validate(Options{OptionTransportOptions: bad})
		var configErr *ConfigError
		require.ErrorAs(t, err, &configErr, "value %v", bad)
		assert.Equal(t, KindWrongType, configErr.Violations[0].Kind)
	}
}

func TestValidate_Protocol(t *testing.T) {
	t.Parallel()
	cfg, err := Validate(Options{OptionProtocol: "http2"})
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTP2, cfg.Protocol)

	cfg, err = Validate(Options{OptionProtocol: ProtocolHTTP2})
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTP2, cfg.Protocol)
	cfg, err = Validate(Options{OptionProtocol: ProtocolHTTP1, OptionSize: 2})
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTP1, cfg.Protocol)

	_, err = Validate(Options{OptionProtocol: Protocol("spdy")})
	require.ErrorIs(t, err, ErrConfiguration)
	_, err = Validate(Options{OptionProtocol: "HTTP2"})
	require.ErrorIs(t, err, ErrConfiguration)
	_, err = Validate(Options{OptionProtocol: 2})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestValidate_ReportsEveryViolation(t *testing.T) {
	t.Parallel()
	_, err := Validate(Options{
		OptionSize:     -1,
		OptionCount:    "x",
		OptionProtocol: "spdy",
		"pool_size":    10,
	})
	var configErr *ConfigError
	require.ErrorAs(t, err, &configErr)
	require.Len(t, configErr.Violations, 4)
	options := make([]string, len(configErr.Violations))
	for i, v := range configErr.Violations {
		options[i] = v.Option
		assert.Empty(t, v.Destination)
	}
	assert.Equal(t, []string{OptionCount, "pool_size", OptionProtocol, OptionSize}, options)
}
