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

import "fmt"

const (
	StepConfigure     = "configure"
	StepConfigurePara = "configure-para"
	StepRegister      = "register"
	StepAssignCore    = "assign-core"
	StepDowngrade     = "downgrade"
	StepAwaitSessions = "await-sessions"
	StepStagnation    = "stagnation"
	StepProgress      = "progress"
	StepMonitorOrders = "monitor-orders"

	// setupStep reports failures happening before the first step.
	setupStep = "setup"

	// interruptedStep reports a run cancelled between two steps.
	interruptedStep = "interrupted"
)

// stepOrder is the order the steps run in, whatever the order they are
// selected in. It follows the lifecycle of the chain under test.
var stepOrder = []string{
	StepConfigure,
	StepConfigurePara,
	StepRegister,
	StepAssignCore,
	StepDowngrade,
	StepAwaitSessions,
	StepStagnation,
	StepProgress,
}

// DefaultSteps selects the downgrade scenario, from configuration to
// monitored on-demand production.
func DefaultSteps() []string {
	return []string{
		StepConfigure,
		StepAssignCore,
		StepDowngrade,
		StepAwaitSessions,
		StepStagnation,
		StepProgress,
		StepMonitorOrders,
	}
}

func selectSteps(names []string) (map[string]bool, error) {
	if len(names) == 0 {
		names = DefaultSteps()
	}
	known := map[string]bool{StepMonitorOrders: true}
	for _, name := range stepOrder {
		known[name] = true
	}

	selected := make(map[string]bool, len(names))
	for _, name := range names {
		if !known[name] {
			return nil, fmt.Errorf("%w: %q", ErrUnknownStep, name)
		}
		selected[name] = true
	}
	return selected, nil
}
