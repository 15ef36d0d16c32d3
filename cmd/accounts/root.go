// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/logging"
	"github.com/holomush/accounts/internal/xdg"
	"github.com/holomush/accounts/pkg/errutil"
)

const serviceName = "accounts"

// app carries state shared by the subcommands of one invocation.
type app struct {
	deps         Deps
	configFile   string
	printMetrics bool

	cfg     *config.Config
	logger  *slog.Logger
	backend *Backend
	svc     *services
	stdin   *bufio.Reader
}

// NewRootCmd creates the root command for the accounts CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(Deps{})
}

func newRootCmd(deps Deps) *cobra.Command {
	a := &app{deps: deps.withDefaults()}

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage account identities and credentials",
		Long: `accounts administers the identity store: registration, email
confirmation, password changes and resets, and credential management.`,
		SilenceUsage:       true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	cmd.PersistentFlags().StringVar(&a.configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/accounts/config.yaml)")
	cmd.PersistentFlags().BoolVar(&a.printMetrics, "print-metrics", false, "print auth counters to stderr on exit")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		newMigrateCmd(a),
		newUserCmd(a),
		newEmailCmd(a),
		newPasswordCmd(a),
		newCredentialCmd(a),
		newLoginCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	path := a.configFile
	if path == "" {
		found, err := xdg.DefaultConfigFile()
		if err != nil {
			return err
		}
		path = found
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   level,
		Writer:  cmd.ErrOrStderr(),
	})
	return nil
}

func (a *app) teardown(cmd *cobra.Command, _ []string) error {
	if a.backend != nil {
		a.backend.Close()
		a.backend = nil
	}
	if a.printMetrics {
		return writeMetrics(cmd.ErrOrStderr(), a.deps.Registry)
	}
	return nil
}

// services opens the backend on first use.
func (a *app) services(cmd *cobra.Command) (*services, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	backend, err := a.deps.BackendOpener(cmd.Context(), a.cfg, a.logger)
	if err != nil {
		errutil.LogErrorContext(cmd.Context(), a.logger, "open store failed", err)
		return nil, err
	}
	svc, err := buildServices(a.cfg, backend, a.logger, a.deps)
	if err != nil {
		backend.Close()
		return nil, err
	}
	a.backend = backend
	a.svc = svc
	return svc, nil
}

// secret returns value, or the next line of stdin when value is "-".
func (a *app) secret(cmd *cobra.Command, name, value string) (string, error) {
	if value != "-" {
		if value == "" {
			return "", oops.Code("INVALID_ARGUMENT").With("flag", name).Errorf("--%s is required", name)
		}
		return value, nil
	}
	if a.stdin == nil {
		a.stdin = bufio.NewReader(cmd.InOrStdin())
	}
	line, err := a.stdin.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", oops.Code("INPUT_READ_FAILED").With("flag", name).Wrap(err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", oops.Code("INVALID_ARGUMENT").With("flag", name).Errorf("empty %s on stdin", name)
	}
	return line, nil
}

// writeMetrics prints every counter in name{labels} value form, sorted.
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return oops.Code("METRICS_GATHER_FAILED").Wrap(err)
	}

	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			if labels := m.GetLabel(); len(labels) > 0 {
				pairs := make([]string, 0, len(labels))
				for _, l := range labels {
					pairs = append(pairs, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
				}
				name += "{" + strings.Join(pairs, ",") + "}"
			}
			lines = append(lines, fmt.Sprintf("%s %g", name, m.GetCounter().GetValue()))
		}
	}
	sort.Strings(lines)
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return oops.Code("METRICS_WRITE_FAILED").Wrap(err)
		}
	}
	return nil
}
