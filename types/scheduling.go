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

package types

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// FullCore is the weight of a whole core, assignments are expressed in
// parts of 57600.
const FullCore uint16 = 57600

var (
	ErrEmptyConfigurationSet  = errors.New("configuration set is empty")
	ErrInvalidParameterName   = errors.New("configuration parameter name must be snake_case")
	ErrDuplicateParameter     = errors.New("configuration parameter is set twice")
	ErrNoAssignmentParts      = errors.New("core assignment requires at least one part")
	ErrZeroAssignmentWeight   = errors.New("core assignment part weight must be greater than zero")
	ErrAssignmentOverweight   = errors.New("core assignment parts exceed a full core")
	ErrUnknownAssignmentKind  = errors.New("core assignment kind must be Pool, Idle or Task")
	ErrTaskAssignmentNeedsID  = errors.New("task core assignment requires a chain id")
	ErrEndHintBeforeBeginning = errors.New("core assignment end hint is before its beginning")
)

var parameterName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Parameter is one scheduling parameter of the coordinating chain host
// configuration, applied through `Configuration.set_<Name>`.
type Parameter struct {
	Name  string
	Value uint64
}

// ConfigurationSet is an ordered list of parameters applied atomically.
type ConfigurationSet []Parameter

// DefaultConfigurationSet is the on-demand setup used by the test network.
func DefaultConfigurationSet() ConfigurationSet {
	return ConfigurationSet{
		{Name: "on_demand_base_fee", Value: 1_000_000},
		{Name: "on_demand_queue_max_size", Value: 100},
		{Name: "coretime_cores", Value: 3},
		{Name: "scheduling_lookahead", Value: 2},
	}
}

func (s ConfigurationSet) Validate() error {
	if len(s) == 0 {
		return ErrEmptyConfigurationSet
	}
	seen := make(map[string]struct{}, len(s))
	for _, p := range s {
		if !parameterName.MatchString(p.Name) {
			return fmt.Errorf("%w: %q", ErrInvalidParameterName, p.Name)
		}
		if _, ok := seen[p.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateParameter, p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Values returns the parameters as a map, useful to compare two sets
// regardless of their order.
func (s ConfigurationSet) Values() map[string]uint64 {
	out := make(map[string]uint64, len(s))
	for _, p := range s {
		out[p.Name] = p.Value
	}
	return out
}

// Call returns the batched call applying every parameter. The output only
// depends on the set, so applying the same set twice sends the same call.
func (s ConfigurationSet) Call() Call {
	calls := make([]Call, 0, len(s))
	for _, p := range s {
		calls = append(calls, NewCall("Configuration", "set_"+p.Name, p.Value))
	}
	return BatchAll(calls...)
}

// AssignmentKind is the workload a core part is assigned to.
type AssignmentKind string

const (
	AssignmentPool AssignmentKind = "Pool"
	AssignmentIdle AssignmentKind = "Idle"
	AssignmentTask AssignmentKind = "Task"
)

// AssignmentPart is a (kind, weight) share of a core.
type AssignmentPart struct {
	Kind   AssignmentKind
	Task   uint32
	Weight uint16
}

func (p AssignmentPart) arg() []interface{} {
	var kind interface{} = string(p.Kind)
	if p.Kind == AssignmentTask {
		kind = map[string]uint32{string(AssignmentTask): p.Task}
	}
	return []interface{}{kind, p.Weight}
}

// CoreAssignment is the scheduling directive sent to the coretime pallet.
type CoreAssignment struct {
	Core    uint16
	Begin   uint32
	Parts   []AssignmentPart
	EndHint *uint32
}

func (a CoreAssignment) Validate() error {
	if len(a.Parts) == 0 {
		return ErrNoAssignmentParts
	}
	var total uint32
	for _, p := range a.Parts {
		switch p.Kind {
		case AssignmentPool, AssignmentIdle:
		case AssignmentTask:
			if p.Task == 0 {
				return ErrTaskAssignmentNeedsID
			}
		default:
			return fmt.Errorf("%w: %q", ErrUnknownAssignmentKind, p.Kind)
		}
		if p.Weight == 0 {
			return ErrZeroAssignmentWeight
		}
		total += uint32(p.Weight)
	}
	if total > uint32(FullCore) {
		return fmt.Errorf("%w: %d/%d", ErrAssignmentOverweight, total, FullCore)
	}
	if a.EndHint != nil && *a.EndHint < a.Begin {
		return ErrEndHintBeforeBeginning
	}
	return nil
}

// Call returns `Coretime.assign_core(core, begin, assignment, end_hint)`.
func (a CoreAssignment) Call() Call {
	parts := make([]interface{}, 0, len(a.Parts))
	for _, p := range a.Parts {
		parts = append(parts, p.arg())
	}
	var endHint interface{}
	if a.EndHint != nil {
		endHint = *a.EndHint
	}
	return NewCall("Coretime", "assign_core", a.Core, a.Begin, parts, endHint)
}

// ReserveCall reserves the next free chain id for the signer.
func ReserveCall() Call {
	return NewCall("Registrar", "reserve")
}

// RegisterCall registers a reserved chain id with its genesis head and
// validation code.
func RegisterCall(chainID uint32, genesisHead, validationCode []byte) Call {
	return NewCall("Registrar", "register", chainID, hexutil.Bytes(genesisHead), hexutil.Bytes(validationCode))
}

// DowngradeCall schedules the downgrade of a chain from guaranteed to
// on-demand scheduling. It must be privileged.
func DowngradeCall(chainID uint32) Call {
	return NewCall("ParasSudoWrapper", "sudo_schedule_parachain_downgrade", chainID)
}

// SetSlotWidthCall configures how often the dependent chain collators may
// place a new order, in coordinating chain blocks.
func SetSlotWidthCall(width uint32) Call {
	return NewCall("OnDemand", "set_slot_width", width)
}

// SetThresholdParameterCall sets the runtime threshold used by collators
// to decide whether an order should be placed.
func SetThresholdParameterCall(threshold uint64) Call {
	return NewCall("OnDemand", "set_threshold_parameter", threshold)
}
