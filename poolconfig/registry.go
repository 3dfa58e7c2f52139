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
	"sort"

	"github.com/bufbuild/httppools/destination"
)

// Raw maps destination descriptors ([destination.DefaultName] or an
// absolute URL) to unvalidated options.
type Raw map[string]Options

// Entry is a single destination and its configuration.
type Entry struct {
	Key    destination.Key
	Config Config
}

// Registry is an immutable mapping from destination key to pool
// configuration. It always has exactly one entry for [destination.Default].
// A Registry is safe for concurrent use.
type Registry struct {
	defaultConfig Config
	entries       map[destination.Key]Config
}

// BuildRegistry validates every entry in raw and returns the resulting
// registry. The default entry starts as the schema defaults and is
// replaced if raw has an entry for [destination.DefaultName].
//
// Validation is all-or-nothing: if any destination or option is invalid,
// no registry is returned and the *ConfigError lists every violation.
//
// Descriptors that normalize to the same key (such as "https://a.com"
// and "https://a.com:443") are applied in sorted order, so the
// lexicographically greater descriptor wins.
func BuildRegistry(raw Raw) (*Registry, error) {
	reg := &Registry{
		defaultConfig: Defaults(),
		entries:       make(map[destination.Key]Config, len(raw)),
	}

	descriptors := make([]string, 0, len(raw))
	for descriptor := range raw {
		descriptors = append(descriptors, descriptor)
	}
	sort.Strings(descriptors)

	var violations []Violation
	for _, descriptor := range descriptors {
		key, err := destination.Normalize(descriptor)
		if err != nil {
			violations = append(violations, Violation{
				Destination: descriptor,
				Kind:        KindInvalidDestination,
				Detail:      err.Error(),
			})
			// keep going so option problems are reported too
		}
		cfg, optViolations := validate(descriptor, raw[descriptor])
		violations = append(violations, optViolations...)
		if err != nil || len(optViolations) > 0 {
			continue
		}
		if key.IsDefault() {
			reg.defaultConfig = cfg
			continue
		}
		reg.entries[key] = cfg
	}
	if len(violations) > 0 {
		return nil, &ConfigError{Violations: violations}
	}
	return reg, nil
}

// Default returns the catch-all configuration.
func (r *Registry) Default() Config {
	return r.defaultConfig.clone()
}

// Lookup returns the configuration for exactly the given key. Lookup of
// [destination.Default] always succeeds.
func (r *Registry) Lookup(key destination.Key) (Config, bool) {
	if key.IsDefault() {
		return r.Default(), true
	}
	cfg, ok := r.entries[key]
	if !ok {
		return Config{}, false
	}
	return cfg.clone(), true
}

// Resolve returns the key whose configuration applies to the given key,
// along with that configuration. It is key itself if the registry has an
// explicit entry for it, otherwise [destination.Default]. No partial
// matching is done.
func (r *Registry) Resolve(key destination.Key) (destination.Key, Config) {
	if cfg, ok := r.Lookup(key); ok {
		return key, cfg
	}
	return destination.Default, r.Default()
}

// Len returns the number of entries, including the default entry.
func (r *Registry) Len() int {
	return len(r.entries) + 1
}

// Entries returns every entry. The default entry comes first; explicit
// entries follow, sorted by key.
func (r *Registry) Entries() []Entry {
	result := make([]Entry, 0, r.Len())
	result = append(result, Entry{Key: destination.Default, Config: r.Default()})
	explicit := make([]Entry, 0, len(r.entries))
	for key, cfg := range r.entries {
		explicit = append(explicit, Entry{Key: key, Config: cfg.clone()})
	}
	sort.Slice(explicit, func(i, j int) bool {
		return explicit[i].Key.String() < explicit[j].Key.String()
	})
	return append(result, explicit...)
}
