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

//lint:file-ignore SA5008 duplicated struct tags are ok for config

package config

import (
	"bytes"
	"errors"
	"fmt"

	"code.vegaprotocol.io/ondemand/artifacts"
	"code.vegaprotocol.io/ondemand/chain"
	"code.vegaprotocol.io/ondemand/invariants"
	vgfs "code.vegaprotocol.io/ondemand/libs/fs"
	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/metrics"
	"code.vegaprotocol.io/ondemand/monitor"
	"code.vegaprotocol.io/ondemand/poller"
	"code.vegaprotocol.io/ondemand/scenario"
	"code.vegaprotocol.io/ondemand/submitter"

	"github.com/BurntSushi/toml"
)

const DefaultFileName = "config.toml"

var ErrConfigExists = errors.New("configuration file already exists")

// Empty is used when a command or sub-command receives no argument.
type Empty struct{}

// Config ties together all other application configuration types.
type Config struct {
	Logging    logging.Config    `group:"Logging" namespace:"logging"`
	Metrics    metrics.Config    `group:"Metrics" namespace:"metrics"`
	Relay      chain.Config      `group:"Relay" namespace:"relay"`
	Para       chain.Config      `group:"Para" namespace:"para"`
	Submitter  submitter.Config  `group:"Submitter" namespace:"submitter"`
	Poller     poller.Config     `group:"Poller" namespace:"poller"`
	Monitor    monitor.Config    `group:"Monitor" namespace:"monitor"`
	Invariants invariants.Config `group:"Invariants" namespace:"invariants"`
	Artifacts  artifacts.Config  `group:"Artifacts" namespace:"artifacts"`
	Scenario   scenario.Config   `group:"Scenario" namespace:"scenario"`
}

// NewDefaultConfig returns the default configuration of every package. The
// relay and para chains default to the ports of a local zombienet.
func NewDefaultConfig() Config {
	para := chain.NewDefaultConfig()
	para.Endpoint = "ws://127.0.0.1:9988"
	para.CodecEndpoint = "ws://127.0.0.1:9901"

	return Config{
		Logging:    logging.NewDefaultConfig(),
		Metrics:    metrics.NewDefaultConfig(),
		Relay:      chain.NewDefaultConfig(),
		Para:       para,
		Submitter:  submitter.NewDefaultConfig(),
		Poller:     poller.NewDefaultConfig(),
		Monitor:    monitor.NewDefaultConfig(),
		Invariants: invariants.NewDefaultConfig(),
		Artifacts:  artifacts.NewDefaultConfig(),
		Scenario:   scenario.NewDefaultConfig(),
	}
}

// Read loads the configuration file at path over the defaults, so the file
// only needs to hold what differs from them.
func Read(path string) (*Config, error) {
	buf, err := vgfs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("couldn't read configuration file: %w", err)
	}
	cfg := NewDefaultConfig()
	if _, err := toml.Decode(string(buf), &cfg); err != nil {
		return nil, fmt.Errorf("couldn't decode configuration file %s: %w", path, err)
	}
	return &cfg, nil
}

// Write saves the configuration at path. An existing file is only replaced
// when overwrite is set.
func Write(path string, cfg Config, overwrite bool) error {
	exists, err := vgfs.FileExists(path)
	if err != nil {
		return err
	}
	if exists && !overwrite {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}

	buf := new(bytes.Buffer)
	if err := toml.NewEncoder(buf).Encode(cfg); err != nil {
		return fmt.Errorf("couldn't encode configuration: %w", err)
	}
	return vgfs.WriteFile(path, buf.Bytes())
}
