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

// Command httppools checks pool configuration files and sends requests
// through the pools they describe.
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bufbuild/httppools"
	"github.com/bufbuild/httppools/poolconfig"
	"github.com/bufbuild/httppools/poolmetrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "httppools",
		Short:         "Per-destination HTTP connection pools",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newValidateCmd(), newFetchCmd())
	return cmd
}

func newValidateCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a pool configuration file and print the resolved pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			registry, err := poolconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			printRegistry(cmd.OutOrStdout(), registry)
			return nil
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "pools.yaml", "pool config yaml path")
	return cmd
}

func printRegistry(out io.Writer, registry *poolconfig.Registry) {
	for _, entry := range registry.Entries() {
		cfg := entry.Config
		_, _ = fmt.Fprintf(out, "%s\tprotocol=%s size=%d count=%d", entry.Key, cfg.Protocol, cfg.Size, cfg.Count)
		for _, opt := range cfg.TransportOptions {
			_, _ = fmt.Fprintf(out, " %s=%v", opt.Key, opt.Value)
		}
		_, _ = fmt.Fprintln(out)
	}
}

type fetchOptions struct {
	cfgPath        string
	method         string
	headers        []string
	data           string
	poolTimeout    time.Duration
	receiveTimeout time.Duration
	logLevel       string
	metrics        bool
}

func newFetchCmd() *cobra.Command {
	var opts fetchOptions
	cmd := &cobra.Command{
		Use:   "fetch URL",
		Short: "Send a request through the configured pools and print the response",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, opts, args[0])
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.cfgPath, "config", "", "pool config yaml path (default pools only if empty)")
	fs.StringVarP(&opts.method, "method", "X", "GET", "request method")
	fs.StringArrayVarP(&opts.headers, "header", "H", nil, "request header as 'Name: value', may be repeated")
	fs.StringVarP(&opts.data, "data", "d", "", "request body")
	fs.DurationVar(&opts.poolTimeout, "pool-timeout", httppools.DefaultPoolTimeout, "max wait for a pool connection")
	fs.DurationVar(&opts.receiveTimeout, "receive-timeout", httppools.DefaultReceiveTimeout, "max wait for the full response")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	fs.BoolVar(&opts.metrics, "metrics", false, "print pool metrics to stderr after the response")
	return cmd
}

func runFetch(cmd *cobra.Command, opts fetchOptions, rawURL string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	registry, err := loadRegistry(opts.cfgPath)
	if err != nil {
		return err
	}
	headers, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}
	var body io.Reader
	if opts.data != "" {
		body = strings.NewReader(opts.data)
	}
	req, err := httppools.NewRequest(opts.method, rawURL, headers, body)
	if err != nil {
		return err
	}

	clientOpts := []httppools.ClientOption{httppools.WithLogger(logger)}
	reg := prometheus.NewRegistry()
	if opts.metrics {
		clientOpts = append(clientOpts, httppools.WithMetrics(poolmetrics.NewPrometheus(reg)))
		defer func() {
			_ = writeMetrics(cmd.ErrOrStderr(), reg)
		}()
	}
	client, err := httppools.NewClient(registry, clientOpts...)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	resp, err := client.Do(cmd.Context(), req,
		httppools.WithPoolTimeout(opts.poolTimeout),
		httppools.WithReceiveTimeout(opts.receiveTimeout),
	)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "%d\n", resp.Status)
	for _, h := range resp.Headers {
		_, _ = fmt.Fprintf(out, "%s: %s\n", h.Name, h.Value)
	}
	_, _ = fmt.Fprintln(out)
	_, err = out.Write(resp.Body)
	return err
}

func writeMetrics(out io.Writer, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(out, family); err != nil {
			return err
		}
	}
	return nil
}

func loadRegistry(path string) (*poolconfig.Registry, error) {
	if path == "" {
		return poolconfig.BuildRegistry(nil)
	}
	return poolconfig.Load(path)
}

func parseHeaders(raw []string) ([]httppools.Header, error) {
	headers := make([]httppools.Header, 0, len(raw))
	for _, h := range raw {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, errors.New("header must have the form 'Name: value': " + h)
		}
		headers = append(headers, httppools.Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return headers, nil
}
