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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a YAML pool configuration file and builds a registry from it.
//
// The file has a single top-level "pools" mapping from destination
// descriptor to options:
//
//	pools:
//	  default:
//	    size: 20
//	  https://api.example.com:
//	    protocol: http2
//	    count: 2
//	    transport_options:
//	      connect_timeout: 1000
//	      insecure_skip_verify: false
//
// The order of transport_options entries is preserved.
func Load(path string) (*Registry, error) {
	// #nosec G304 -- path is provided by trusted config/flag.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse is like Load, but reads the YAML document from data.
func Parse(data []byte) (*Registry, error) {
	raw, err := ParseRaw(data)
	if err != nil {
		return nil, err
	}
	return BuildRegistry(raw)
}

// ParseRaw decodes a YAML pool configuration into its unvalidated form.
func ParseRaw(data []byte) (Raw, error) {
	var doc struct {
		Pools yaml.Node `yaml:"pools"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			// empty document: defaults only
			return Raw{}, nil
		}
		return nil, fmt.Errorf("decode pool configuration: %w", err)
	}
	if doc.Pools.Kind == 0 || isNull(&doc.Pools) {
		return Raw{}, nil
	}
	if doc.Pools.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: pools must be a mapping", doc.Pools.Line)
	}
	raw := make(Raw, len(doc.Pools.Content)/2)
	for i := 0; i+1 < len(doc.Pools.Content); i += 2 {
		keyNode, valueNode := doc.Pools.Content[i], doc.Pools.Content[i+1]
		if _, dup := raw[keyNode.Value]; dup {
			return nil, fmt.Errorf("line %d: pool %q defined more than once", keyNode.Line, keyNode.Value)
		}
		opts, err := decodeOptions(valueNode)
		if err != nil {
			return nil, fmt.Errorf("line %d: pool %q: %w", valueNode.Line, keyNode.Value, err)
		}
		raw[keyNode.Value] = opts
	}
	return raw, nil
}

func decodeOptions(node *yaml.Node) (Options, error) {
	if isNull(node) {
		return Options{}, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, errors.New("options must be a mapping")
	}
	opts := make(Options, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		valueNode := node.Content[i+1]
		if name == OptionTransportOptions && valueNode.Kind == yaml.MappingNode {
			transportOpts, err := decodeTransportOptions(valueNode)
			if err != nil {
				return nil, err
			}
			opts[name] = transportOpts
			continue
		}
		var value any
		if err := valueNode.Decode(&value); err != nil {
			return nil, fmt.Errorf("option %q: %w", name, err)
		}
		opts[name] = value
	}
	return opts, nil
}

func decodeTransportOptions(node *yaml.Node) ([]TransportOption, error) {
	result := make([]TransportOption, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		var value any
		if err := node.Content[i+1].Decode(&value); err != nil {
			return nil, fmt.Errorf("transport option %q: %w", key, err)
		}
		result = append(result, TransportOption{Key: key, Value: value})
	}
	return result, nil
}

func isNull(node *yaml.Node) bool {
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}
