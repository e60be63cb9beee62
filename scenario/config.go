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

package scenario

import (
	"errors"
	"fmt"
	"time"

	"code.vegaprotocol.io/ondemand/config/encoding"
	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/types"
)

const namedLogger = "scenario"

var ErrUnknownStep = errors.New("unknown scenario step")

// Config represent the configuration of a scenario run.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	Steps   []string `long:"step" description:"Step to run, repeat for each step. Steps always run in their natural order, the downgrade scenario runs by default"`
	Signer  string   `long:"signer" description:"Secret URI of the account signing the calls"`
	ChainID uint32   `long:"chain-id" description:"Dependent chain under test, replaced by the reserved id when registering"`

	Sessions  uint32 `long:"sessions" description:"Number of session rotations to wait for"`
	MinOrders int    `long:"min-orders" description:"Minimum number of orders expected while monitoring"`

	CheckGuaranteedChain encoding.Bool `long:"check-guaranteed-chain" description:"Refuse to assign a core when no chain is in guaranteed mode"`
	GuaranteedChains     []uint32      `long:"guaranteed-chain" description:"Chain expected in guaranteed mode before core assignment, defaults to the chain under test"`

	SlotWidth          uint32 `long:"slot-width" description:"Slot width set on the dependent chain, 0 leaves it unchanged"`
	ThresholdParameter uint64 `long:"threshold-parameter" description:"Order threshold set on the dependent chain, 0 leaves it unchanged"`

	Configuration  types.ConfigurationSet `no-flag:"true"`
	CoreAssignment types.CoreAssignment   `no-flag:"true"`

	Timeouts TimeoutsConfig `group:"Timeouts" namespace:"timeouts"`
}

// TimeoutsConfig bounds every wait of a scenario. The values depend on the
// session length of the test network.
type TimeoutsConfig struct {
	Step             encoding.Duration `long:"step" description:"Upper bound of any step"`
	Submission       encoding.Duration `long:"submission" description:"Time for a call to be finalized"`
	Lifecycle        encoding.Duration `long:"lifecycle" description:"Time for a chain to be onboarded or downgraded"`
	Sessions         encoding.Duration `long:"sessions" description:"Time for the session rotations to happen"`
	StagnationWindow encoding.Duration `long:"stagnation-window" description:"Window over which the dependent chain must not produce blocks"`
	ProgressMin      encoding.Duration `long:"progress-min" description:"Minimum wait before checking the dependent chain progressed"`
	ProgressTimeout  encoding.Duration `long:"progress-timeout" description:"Time for the dependent chain to produce a block"`
	ObserveFor       encoding.Duration `long:"observe-for" description:"Time the orders are still monitored after the last step"`
}

// NewDefaultConfig creates an instance of the package specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:                encoding.LogLevel{Level: logging.InfoLevel},
		Signer:               "//Alice",
		ChainID:              2000,
		Sessions:             2,
		CheckGuaranteedChain: true,
		Configuration:        types.DefaultConfigurationSet(),
		// Core 0 is left to the chains already in guaranteed mode.
		CoreAssignment: types.CoreAssignment{
			Core:  1,
			Begin: 0,
			Parts: []types.AssignmentPart{{Kind: types.AssignmentPool, Weight: types.FullCore}},
		},
		Timeouts: TimeoutsConfig{
			Step:             encoding.Duration{Duration: 15 * time.Minute},
			Submission:       encoding.Duration{Duration: 2 * time.Minute},
			Lifecycle:        encoding.Duration{Duration: 10 * time.Minute},
			Sessions:         encoding.Duration{Duration: 10 * time.Minute},
			StagnationWindow: encoding.Duration{Duration: time.Minute},
			ProgressMin:      encoding.Duration{Duration: 30 * time.Second},
			ProgressTimeout:  encoding.Duration{Duration: 5 * time.Minute},
			ObserveFor:       encoding.Duration{Duration: 2 * time.Minute},
		},
	}
}

// Selects tells whether the step is part of the run.
func (c Config) Selects(step string) bool {
	selected, err := selectSteps(c.Steps)
	return err == nil && selected[step]
}

// Validate checks the selected steps have what they need.
func (c Config) Validate() error {
	selected, err := selectSteps(c.Steps)
	if err != nil {
		return err
	}
	if c.Signer == "" {
		return errors.New("a signer is required")
	}
	if selected[StepConfigure] {
		if err := c.Configuration.Validate(); err != nil {
			return fmt.Errorf("invalid configuration set: %w", err)
		}
	}
	if selected[StepAssignCore] {
		if err := c.CoreAssignment.Validate(); err != nil {
			return fmt.Errorf("invalid core assignment: %w", err)
		}
	}
	if !selected[StepRegister] && c.ChainID == 0 && (selected[StepDowngrade] || selected[StepAssignCore]) {
		return errors.New("a chain id is required")
	}
	return nil
}
