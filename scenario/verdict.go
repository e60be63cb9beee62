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
	"context"
	"errors"
	"time"

	"code.vegaprotocol.io/ondemand/config/encoding"
	"code.vegaprotocol.io/ondemand/invariants"
	"code.vegaprotocol.io/ondemand/poller"
	"code.vegaprotocol.io/ondemand/types"
	"code.vegaprotocol.io/ondemand/types/num"
	"code.vegaprotocol.io/ondemand/version"

	uuid "github.com/satori/go.uuid"
)

type StepStatus string

const (
	StepPassed  StepStatus = "passed"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult is the outcome of one step.
type StepResult struct {
	Name        string                   `json:"name"`
	Status      StepStatus               `json:"status"`
	Duration    encoding.Duration        `json:"duration"`
	Error       string                   `json:"error,omitempty"`
	ErrorKind   string                   `json:"error_kind,omitempty"`
	Submissions []types.SubmissionResult `json:"submissions,omitempty"`
	Observation *poller.Observation      `json:"observation,omitempty"`
}

// Failure is the fatal error that aborted a run.
type Failure struct {
	Step      string `json:"step"`
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Lifecycle string `json:"lifecycle"`

	err error
}

// Err returns the error behind the failure.
func (f *Failure) Err() error {
	return f.err
}

// Verdict is the single outcome of a scenario run.
type Verdict struct {
	RunID      string    `json:"run_id"`
	Version    string    `json:"version"`
	Unreleased bool      `json:"unreleased,omitempty"`
	ChainID    uint32    `json:"chain_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Steps     []StepResult `json:"steps"`
	Lifecycle string       `json:"lifecycle"`

	Orders         int                    `json:"orders"`
	TotalSpotPrice *num.Uint              `json:"total_spot_price"`
	Violations     []invariants.Violation `json:"violations"`
	Assertions     []types.AssertionError `json:"assertions"`

	Failure  *Failure `json:"failure,omitempty"`
	Teardown []string `json:"teardown,omitempty"`
}

func newVerdict(chainID uint32) *Verdict {
	return &Verdict{
		RunID:          uuid.NewV4().String(),
		Version:        version.Get(),
		Unreleased:     version.IsUnreleased(),
		ChainID:        chainID,
		StartedAt:      time.Now(),
		Steps:          []StepResult{},
		TotalSpotPrice: num.UintZero(),
		Violations:     []invariants.Violation{},
		Assertions:     []types.AssertionError{},
	}
}

// Passed tells whether every step succeeded with no assertion failed and no
// violation recorded.
func (v *Verdict) Passed() bool {
	return v.Failure == nil && len(v.Violations) == 0 && len(v.Assertions) == 0
}

func (v *Verdict) fail(step string, err error, lifecycle types.LifecycleState) {
	v.Failure = &Failure{
		Step:      step,
		Error:     err.Error(),
		Kind:      types.Kind(err),
		Lifecycle: lifecycle.String(),
		err:       err,
	}
}

// failMonitor records the failure of the order stream. It takes precedence
// over the failure of a step interrupted because of it.
func (v *Verdict) failMonitor(err error, lifecycle types.LifecycleState) {
	if v.Failure != nil && !errors.Is(v.Failure.err, context.Canceled) {
		return
	}
	v.fail(StepMonitorOrders, err, lifecycle)
}

func (v *Verdict) assert(err *types.AssertionError) {
	v.Assertions = append(v.Assertions, *err)
}
