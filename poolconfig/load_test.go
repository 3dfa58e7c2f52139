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
	"os"
	"path/filepath"
	"testing"

	"github.com/bufbuild/httppools/destination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
pools:
  default:
    size: 20
  https://api.example.com:
    protocol: http2
    count: 2
    transport_options:
      tls_handshake_timeout: 500
      connect_timeout: 1000
      insecure_skip_verify: true
  http://localhost:8080:
`

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfigYAML), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, reg.Len())
	assert.Equal(t, 20, reg.Default().Size)

	cfg, ok := reg.Lookup(destination.Explicit("https", "api.example.com", 443))
	require.True(t, ok)
	assert.Equal(t, ProtocolHTTP2, cfg.Protocol)
	assert.Equal(t, 2, cfg.Count)
	assert.Equal(t, []TransportOption{
		{Key: "tls_handshake_timeout", Value: 500},
		{Key: "connect_timeout", Value: 1000},
		{Key: "insecure_skip_verify", Value: true},
	}, cfg.TransportOptions)

	cfg, ok = reg.Lookup(destination.Explicit("http", "localhost", 8080))
	require.True(t, ok)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestParse(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name      string
		input     string
		wantLen   int
		configErr bool
		otherErr  bool
	}{
		{name: "empty", input: "", wantLen: 1},
		{name: "no pools", input: "pools:\n", wantLen: 1},
		{name: "list transport options", input: "pools:\n  https://a.com:\n    transport_options:\n      - connect_timeout: 5\n", wantLen: 2},
		{name: "unknown top-level key", input: "pool:\n  default: {}\n", otherErr: true},
		{name: "pools not a mapping", input: "pools: [1, 2]\n", otherErr: true},
		{name: "options not a mapping", input: "pools:\n  https://a.com: 3\n", otherErr: true},
		{name: "duplicate key", input: "pools:\n  https://a.com: {}\n  https://a.com: {}\n", otherErr: true},
		{name: "unknown option", input: "pools:\n  https://a.com:\n    sise: 3\n", configErr: true},
		{name: "bad destination", input: "pools:\n  a.com: {}\n", configErr: true},
		{name: "string size", input: "pools:\n  default:\n    size: ten\n", configErr: true},
	}
	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			reg, err := Parse([]byte(testCase.input))
			switch {
			case testCase.configErr:
				require.ErrorIs(t, err, ErrConfiguration)
			case testCase.otherErr:
				require.Error(t, err)
				require.NotErrorIs(t, err, ErrConfiguration)
			default:
				require.NoError(t, err)
				assert.Equal(t, testCase.wantLen, reg.Len())
			}
		})
	}
}
