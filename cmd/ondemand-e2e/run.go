// Copyright (C) 2023 Gobalsky Labs Limited
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"code.vegaprotocol.io/ondemand/artifacts"
	"code.vegaprotocol.io/ondemand/chain"
	"code.vegaprotocol.io/ondemand/codec"
	"code.vegaprotocol.io/ondemand/config"
	"code.vegaprotocol.io/ondemand/invariants"
	vgclose "code.vegaprotocol.io/ondemand/libs/close"
	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/metrics"
	"code.vegaprotocol.io/ondemand/monitor"
	"code.vegaprotocol.io/ondemand/poller"
	"code.vegaprotocol.io/ondemand/scenario"
	"code.vegaprotocol.io/ondemand/submitter"

	"github.com/jessevdk/go-flags"
	"github.com/mattn/go-isatty"
)

var ErrScenarioFailed = errors.New("scenario failed")

type runCmd struct {
	ctx context.Context

	ConfigPath string `short:"c" long:"config" description:"Path to the configuration file, the defaults are used when empty"`
	Output     string `long:"output" choice:"auto" choice:"text" choice:"json" default:"auto" description:"Verdict format, auto prints text on a terminal and JSON otherwise"`

	config.Config
}

func Run(ctx context.Context, parser *flags.Parser) error {
	cmd := &runCmd{
		ctx:    ctx,
		Config: config.NewDefaultConfig(),
	}

	short := "Run a scenario against a live network"
	long := "Connect to the coordinating and dependent chains, run the selected steps and print the verdict"

	_, err := parser.AddCommand("run", short, long, cmd)
	return err
}

func (opts *runCmd) Execute(_ []string) error {
	cfg := &opts.Config
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = loadConfig(opts.ConfigPath, os.Args[1:]); err != nil {
			return err
		}
	}

	log, err := logging.NewLoggerFromConfig(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.AtExit()

	ctx, stop := signal.NotifyContext(opts.ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	controller, err := setup(ctx, log, *cfg)
	if err != nil {
		log.Error("couldn't set the scenario up", logging.Error(err))
		return err
	}

	verdict := controller.Run(ctx)
	if err := scenario.Report(os.Stdout, verdict, reportFormat(opts.Output, os.Stdout)); err != nil {
		return fmt.Errorf("couldn't print the verdict: %w", err)
	}
	if !verdict.Passed() {
		return ErrScenarioFailed
	}
	return nil
}

// loadConfig reads the configuration file and applies the command line
// over it.
func loadConfig(path string, args []string) (*config.Config, error) {
	cfg, err := config.Read(path)
	if err != nil {
		return nil, err
	}
	if _, err := flags.NewParser(cfg, flags.IgnoreUnknown).ParseArgs(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setup opens the sessions and builds the controller, which owns them from
// then on.
func setup(ctx context.Context, log *logging.Logger, cfg config.Config) (_ *scenario.Controller, err error) {
	closer := vgclose.NewCloser()
	defer func() {
		if err != nil {
			if cerr := closer.CloseAll(); cerr != nil {
				log.Warn("teardown failed", logging.Error(cerr))
			}
		}
	}()

	srv, err := metrics.Start(log, cfg.Metrics)
	if err != nil {
		return nil, err
	}
	if srv != nil {
		closer.Add("metrics endpoint", srv.Close)
	}

	relay, relayCodec, err := connect(ctx, log, closer, "relay", cfg.Relay)
	if err != nil {
		return nil, err
	}
	para, _, err := connect(ctx, log, closer, "para", cfg.Para)
	if err != nil {
		return nil, err
	}

	signer, err := relayCodec.Signer(ctx, cfg.Scenario.Signer)
	if err != nil {
		return nil, err
	}
	log.Info("signer resolved", logging.String("address", signer.Address))

	var collators invariants.CollatorSet
	if cfg.Scenario.Selects(scenario.StepMonitorOrders) {
		if collators, err = invariants.NewCollatorSet(cfg.Invariants.Collators...); err != nil {
			return nil, err
		}
	}

	controller := scenario.NewController(log, cfg.Scenario, signer,
		relay, para,
		submitter.New(log, cfg.Submitter, relay),
		submitter.New(log, cfg.Submitter, para),
		poller.New(log, cfg.Poller),
		monitor.New(log, monitorConfig(cfg), relay),
		invariants.New(log, cfg.Invariants, collators),
		artifacts.NewFileProvider(cfg.Artifacts),
	)
	controller.Own("sessions", closer.CloseAll)
	return controller, nil
}

// monitorConfig filters the orders on the chain under test unless another
// chain is configured.
func monitorConfig(cfg config.Config) monitor.Config {
	mcfg := cfg.Monitor
	if mcfg.ChainID == 0 {
		mcfg.ChainID = cfg.Scenario.ChainID
	}
	return mcfg
}

func connect(ctx context.Context, log *logging.Logger, closer *vgclose.Closer, name string, cfg chain.Config) (*chain.Session, *codec.Client, error) {
	c, err := codec.Dial(ctx, log, cfg.CodecEndpoint, cfg.RPC)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't connect to the %s codec: %w", name, err)
	}
	closer.Add(name+" codec", c.Close)

	session, err := chain.Connect(ctx, log, name, cfg, c)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't connect to %s: %w", name, err)
	}
	closer.Add(name, session.Close)
	return session, c, nil
}

func reportFormat(output string, f *os.File) scenario.Format {
	switch output {
	case "text":
		return scenario.FormatText
	case "json":
		return scenario.FormatJSON
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return scenario.FormatText
	}
	return scenario.FormatJSON
}
