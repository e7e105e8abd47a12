// Copyright (c) 2018 Cisco and/or its affiliates.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at:
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/contiv/mptestbed/plugins/emulator"
	"github.com/contiv/mptestbed/plugins/ipam"
	"github.com/contiv/mptestbed/plugins/testbed"
	"github.com/contiv/mptestbed/plugins/topology"
)

const shutdownTimeout = 30 * time.Second

func newRootCommand() *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:           "mptestbed",
		Short:         "Builds MPTCP testbeds from topology descriptions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "configuration file (default $MPTESTBED_CONFIG or mptestbed.yaml)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&opts.topologiesDir, "topologies", "", "directory searched for topologies referenced by name")
	flags.StringVar(&opts.engine, "engine", "", "emulation engine: dryrun, netns or docker")

	rootCmd.AddCommand(
		newValidateCommand(opts),
		newPlanCommand(opts),
		newBuildCommand(opts),
		newSessionsCommand(opts),
		newShowCommand(opts),
		newDeleteCommand(opts),
	)
	return rootCmd
}

// withApp runs fn with the application set up from global flags.
func withApp(opts *options, fn func(a *app) error) error {
	a, err := newApp(opts)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a)
}

func newValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate topology",
		Short: "Checks a topology description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				topo, err := a.loader.Load(args[0])
				if err != nil {
					return err
				}
				printValidation(cmd.OutOrStdout(), topo, topo.Islands())
				return nil
			})
		},
	}
}

func newPlanCommand(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "plan topology",
		Short: "Prints allocations and host commands without creating anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				topo, err := a.loader.Load(args[0])
				if err != nil {
					return err
				}
				dir, err := a.topologyDir(args[0])
				if err != nil {
					return err
				}
				session, err := a.buildIn(context.Background(), topo, dir, emulator.NewDryRun(a.log),
					emulator.DryRunEngine, nil)
				if err != nil {
					return err
				}
				defer session.Shutdown(context.Background())
				return printPlan(cmd.OutOrStdout(), session.Plan, output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, yaml or json")
	return cmd
}

func newBuildCommand(opts *options) *cobra.Command {
	var (
		wait   bool
		listen string
	)
	cmd := &cobra.Command{
		Use:   "build topology",
		Short: "Builds the topology in the configured emulation engine",
		Long: "Builds the topology in the configured emulation engine. Without --wait the session\n" +
			"is shut down as soon as it is built and its scripts finish, with --wait it runs\n" +
			"until interrupted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				if listen == "" {
					listen = a.config.REST.Listen
				}
				return a.runBuild(cmd, args[0], wait, listen)
			})
		},
	}
	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "keep the session running until interrupted")
	cmd.Flags().StringVar(&listen, "rest", "", "serve the plan and metrics on this address while waiting")
	return cmd
}

func (a *app) runBuild(cmd *cobra.Command, ref string, wait bool, listen string) error {
	topo, err := a.loader.Load(ref)
	if err != nil {
		return err
	}
	dir, err := a.topologyDir(ref)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	engine, err := emulator.New(a.config.Engine, topo.Name, a.log)
	if err != nil {
		return err
	}
	shutdown := func(session *testbed.Session) {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var err error
		if session != nil {
			err = session.Shutdown(ctx)
		} else {
			err = engine.Shutdown(ctx)
		}
		if err != nil {
			a.log.Errorf("Shutdown failed: %v", err)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()
	session, err := a.buildIn(ctx, topo, dir, engine, a.config.Engine.Type, registry)
	if err != nil {
		shutdown(nil)
		return err
	}
	if err := a.savePlan(session.Plan); err != nil {
		a.log.Warnf("Plan of session %s not stored: %v", session.ID, err)
	}
	printSummary(cmd.OutOrStdout(), session.Plan)

	if !wait {
		shutdown(session)
		return nil
	}

	var server *testbed.RESTServer
	if listen != "" {
		server = testbed.NewRESTServer(listen, registry, a.log)
		server.SetSession(session)
		server.Start()
	}
	a.log.Infof("Session %s is running, interrupt to shut it down", session.ID)
	<-ctx.Done()

	if server != nil {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := server.Close(closeCtx); err != nil {
			a.log.Warnf("Failed to stop REST server: %v", err)
		}
		closeCancel()
	}
	shutdown(session)
	return nil
}

// topologyDir returns the directory relative node files and scripts of the
// topology are resolved against.
func (a *app) topologyDir(ref string) (string, error) {
	path, err := a.loader.Resolve(ref)
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}

// buildIn builds the topology in the engine. Metrics are registered with
// the registry unless it is nil.
func (a *app) buildIn(ctx context.Context, topo *topology.Topology, dir string, engine emulator.Engine,
	engineType string, registry *prometheus.Registry) (*testbed.Session, error) {
	var (
		ipamMetrics    *ipam.Metrics
		testbedMetrics *testbed.Metrics
		err            error
	)
	if registry != nil {
		if ipamMetrics, err = ipam.NewMetrics(registry); err != nil {
			return nil, err
		}
		if testbedMetrics, err = testbed.NewMetrics(registry); err != nil {
			return nil, err
		}
	}
	ipamConfig := a.config.IPAM
	addressing, err := ipam.NewRegistry(&ipamConfig, a.log, ipamMetrics)
	if err != nil {
		return nil, err
	}
	routingConfig := a.config.MPTCP
	builder := testbed.NewBuilder(testbed.Deps{
		Log:      a.log,
		Engine:   engine,
		Registry: addressing,
		Routing:  &routingConfig,
		Metrics:  testbedMetrics,
	}, engineType)
	return builder.Build(ctx, topo, dir)
}

func (a *app) savePlan(plan *testbed.Plan) error {
	if a.config.Store.Disabled {
		return nil
	}
	plans, err := a.openStore()
	if err != nil {
		return err
	}
	defer plans.Close()
	return plans.Save(plan)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}

func newSessionsCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "Lists plans of previous builds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				plans, err := a.openStore()
				if err != nil {
					return err
				}
				defer plans.Close()
				summaries, err := plans.List()
				if err != nil {
					return err
				}
				printSessions(cmd.OutOrStdout(), summaries)
				return nil
			})
		},
	}
}

func newShowCommand(opts *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show session",
		Short: "Prints the plan of a previous build, the session ID may be abbreviated",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				plans, err := a.openStore()
				if err != nil {
					return err
				}
				defer plans.Close()
				plan, err := plans.Get(args[0])
				if err != nil {
					return err
				}
				return printPlan(cmd.OutOrStdout(), plan, output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, yaml or json")
	return cmd
}

func newDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete session",
		Short: "Removes the plan of a previous build",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				plans, err := a.openStore()
				if err != nil {
					return err
				}
				defer plans.Close()
				if err := plans.Delete(args[0]); err != nil {
					return err
				}
				a.log.Infof("Deleted plan of session %s", args[0])
				return nil
			})
		},
	}
}
