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
)

var ErrLifecycleRollback = errors.New("chain lifecycle cannot move backwards")

// LifecycleState is the progression of the dependent chain under test
// through a scenario. It only moves forward.
type LifecycleState int

const (
	Unregistered LifecycleState = iota
	Reserved
	Registered
	CoreAssignedGuaranteed
	DowngradeRequested
	OnDemandStalled
	OnDemandActive
)

func (s LifecycleState) String() string {
	switch s {
	case Unregistered:
		return "Unregistered"
	case Reserved:
		return "Reserved"
	case Registered:
		return "Registered"
	case CoreAssignedGuaranteed:
		return "CoreAssignedGuaranteed"
	case DowngradeRequested:
		return "DowngradeRequested"
	case OnDemandStalled:
		return "OnDemandStalled"
	case OnDemandActive:
		return "OnDemandActive"
	default:
		return fmt.Sprintf("LifecycleState(%d)", int(s))
	}
}

// Advance returns the next state. Staying in place is allowed, skipping
// ahead is allowed, going back is not.
func (s LifecycleState) Advance(to LifecycleState) (LifecycleState, error) {
	if to < s {
		return s, fmt.Errorf("%w: %s to %s", ErrLifecycleRollback, s, to)
	}
	return to, nil
}

// ParaLifecycle is the lifecycle of a chain as stored by the coordinating
// chain in `Paras.ParaLifecycles`.
type ParaLifecycle uint8

const (
	ParaOnboarding ParaLifecycle = iota
	ParaParathread
	ParaParachain
	ParaUpgradingParathread
	ParaDowngradingParachain
	ParaOffboardingParathread
	ParaOffboardingParachain
)

func (l ParaLifecycle) String() string {
	switch l {
	case ParaOnboarding:
		return "Onboarding"
	case ParaParathread:
		return "Parathread"
	case ParaParachain:
		return "Parachain"
	case ParaUpgradingParathread:
		return "UpgradingParathread"
	case ParaDowngradingParachain:
		return "DowngradingParachain"
	case ParaOffboardingParathread:
		return "OffboardingParathread"
	case ParaOffboardingParachain:
		return "OffboardingParachain"
	default:
		return fmt.Sprintf("ParaLifecycle(%d)", uint8(l))
	}
}

func (l ParaLifecycle) IsValid() bool {
	return l <= ParaOffboardingParachain
}

// IsGuaranteed reports whether the chain is scheduled on a guaranteed core.
// A chain being downgraded keeps its core until the next session.
func (l ParaLifecycle) IsGuaranteed() bool {
	return l == ParaParachain || l == ParaDowngradingParachain
}

// IsOnDemand reports whether the chain relies on on-demand orders.
func (l ParaLifecycle) IsOnDemand() bool {
	return l == ParaParathread || l == ParaUpgradingParathread
}
