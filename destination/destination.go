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

// Package destination provides the key used to select a pool configuration
// for an outbound request. A key is either the catch-all [Default] key or an
// explicit (scheme, host, port) triple derived from a URL.
//
// Explicit keys compare exactly: no host case folding, no trailing-dot
// removal and no wildcarding. "https://a.com" and "https://a.com:443" produce
// the same key because the port is filled in from the scheme, but
// "http://a.com" and "https://a.com" do not.
package destination

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

// DefaultName is the descriptor that names the catch-all destination in
// a pool configuration.
const DefaultName = "default"

// ErrInvalidDestination is returned when a descriptor is neither
// [DefaultName] nor an absolute URL with a scheme and host.
var ErrInvalidDestination = errors.New("invalid destination")

//nolint:gochecknoglobals
var defaultPorts = map[string]int{
	"http":  80,
	"https": 443,
	"ws":    80,
	"wss":   443,
}

// Key identifies a destination. The zero value is the [Default] key.
// Keys are comparable and may be used as map keys.
type Key struct {
	scheme string
	host   string
	port   int
}

// Default is the catch-all key.
//
//nolint:gochecknoglobals
var Default = Key{}

// Normalize converts a destination descriptor into a Key. The descriptor
// must be [DefaultName] or an absolute URL. Only the scheme, host and
// port of a URL are significant; path, query and fragment are discarded.
func Normalize(descriptor string) (Key, error) {
	if descriptor == DefaultName {
		return Default, nil
	}
	u, err := url.Parse(descriptor)
	if err != nil {
		return Key{}, fmt.Errorf("%w %q: %w", ErrInvalidDestination, descriptor, err)
	}
	return FromURL(u)
}

// FromURL returns the explicit key for the given URL. The port is taken
// from the URL if present, otherwise from the scheme's well-known port.
func FromURL(u *url.URL) (Key, error) {
	if u == nil {
		return Key{}, fmt.Errorf("%w: nil URL", ErrInvalidDestination)
	}
	if u.Scheme == "" {
		return Key{}, fmt.Errorf("%w %q: missing scheme", ErrInvalidDestination, u.String())
	}
	host := u.Hostname()
	if host == "" {
		return Key{}, fmt.Errorf("%w %q: missing host", ErrInvalidDestination, u.String())
	}
	var port int
	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil || p <= 0 || p > 65535 {
			return Key{}, fmt.Errorf("%w %q: bad port %q", ErrInvalidDestination, u.String(), portStr)
		}
		port = p
	} else {
		p, ok := defaultPorts[u.Scheme]
		if !ok {
			return Key{}, fmt.Errorf("%w %q: no port and no default port for scheme %q", ErrInvalidDestination, u.String(), u.Scheme)
		}
		port = p
	}
	return Key{scheme: u.Scheme, host: host, port: port}, nil
}

// Explicit builds a key directly from its parts. It does not validate them.
func Explicit(scheme, host string, port int) Key {
	return Key{scheme: scheme, host: host, port: port}
}

// IsDefault reports whether k is the catch-all key.
func (k Key) IsDefault() bool {
	return k == Default
}

// Scheme returns the URL scheme, or "" for the default key.
func (k Key) Scheme() string {
	return k.scheme
}

// Host returns the host name, without brackets for IPv6 literals.
func (k Key) Host() string {
	return k.host
}

// Port returns the port number, or 0 for the default key.
func (k Key) Port() int {
	return k.port
}

// HostPort returns "host:port".
func (k Key) HostPort() string {
	if k.IsDefault() {
		return ""
	}
	return net.JoinHostPort(k.host, strconv.Itoa(k.port))
}

func (k Key) String() string {
	if k.IsDefault() {
		return DefaultName
	}
	return k.scheme + "://" + k.HostPort()
}
