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

var (
	ErrSubmissionAlreadyTerminal = errors.New("submission already reached a terminal state")
	ErrSubmissionStateRollback   = errors.New("submission state cannot move backwards")
)

// SubmissionState is the lifecycle of a submitted extrinsic.
type SubmissionState int

const (
	SubmissionPending SubmissionState = iota
	SubmissionInBlock
	SubmissionFinalized
	SubmissionFailed
)

func (s SubmissionState) String() string {
	switch s {
	case SubmissionPending:
		return "Pending"
	case SubmissionInBlock:
		return "InBlock"
	case SubmissionFinalized:
		return "Finalized"
	case SubmissionFailed:
		return "Failed"
	default:
		return fmt.Sprintf("SubmissionState(%d)", int(s))
	}
}

func (s SubmissionState) IsTerminal() bool {
	return s == SubmissionFinalized || s == SubmissionFailed
}

// SubmissionResult tracks one submission until it is finalized or failed.
// It only moves forward and is never reopened once terminal.
type SubmissionResult struct {
	Chain  string          `json:"chain"`
	Call   string          `json:"call"`
	State  SubmissionState `json:"state"`
	Block  string          `json:"block,omitempty"`
	Reason string          `json:"reason,omitempty"`
	// Events emitted by the extrinsic itself, filled once finalized.
	Events []DecodedEvent `json:"events,omitempty"`
}

// NewSubmissionResult returns a pending result for the call.
func NewSubmissionResult(chain string, call Call) SubmissionResult {
	return SubmissionResult{
		Chain: chain,
		Call:  call.Path(),
		State: SubmissionPending,
	}
}

// Advance moves the result to the next state. Being included in another
// block (after a retraction) keeps the InBlock state and updates the block.
func (r *SubmissionResult) Advance(state SubmissionState, block string) error {
	if r.State.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrSubmissionAlreadyTerminal, r.State)
	}
	if state < r.State || (state == r.State && state != SubmissionInBlock) {
		return fmt.Errorf("%w: %s to %s", ErrSubmissionStateRollback, r.State, state)
	}
	r.State = state
	if block != "" {
		r.Block = block
	}
	return nil
}

// Fail moves the result to the Failed state with a reason.
func (r *SubmissionResult) Fail(block, reason string) error {
	if err := r.Advance(SubmissionFailed, block); err != nil {
		return err
	}
	r.Reason = reason
	return nil
}

// Err returns the SubmissionError for failed results, nil otherwise.
func (r SubmissionResult) Err() error {
	if r.State != SubmissionFailed {
		return nil
	}
	return &SubmissionError{
		Chain:  r.Chain,
		Call:   r.Call,
		Block:  r.Block,
		Reason: r.Reason,
	}
}

// FindEvent returns the first event of the extrinsic matching pallet and
// method.
func (r SubmissionResult) FindEvent(pallet, method string) (DecodedEvent, bool) {
	for _, e := range r.Events {
		if e.Pallet == pallet && e.Method == method {
			return e, true
		}
	}
	return DecodedEvent{}, false
}

// ExtrinsicStatusKind is the status reported by the node while it watches
// an extrinsic.
type ExtrinsicStatusKind string

const (
	StatusFuture          ExtrinsicStatusKind = "future"
	StatusReady           ExtrinsicStatusKind = "ready"
	StatusBroadcast       ExtrinsicStatusKind = "broadcast"
	StatusInBlock         ExtrinsicStatusKind = "inBlock"
	StatusRetracted       ExtrinsicStatusKind = "retracted"
	StatusFinalityTimeout ExtrinsicStatusKind = "finalityTimeout"
	StatusFinalized       ExtrinsicStatusKind = "finalized"
	StatusUsurped         ExtrinsicStatusKind = "usurped"
	StatusDropped         ExtrinsicStatusKind = "dropped"
	StatusInvalid         ExtrinsicStatusKind = "invalid"
)

// ExtrinsicStatus is one update of the watched extrinsic. Block is set for
// the statuses that reference a block (or, for usurped, the replacing
// extrinsic hash).
type ExtrinsicStatus struct {
	Kind  ExtrinsicStatusKind
	Block string
}

// StatusStream is the push-based sequence of status updates for one
// submitted extrinsic. Updates is closed when the stream ends, Err then
// reports why (nil after Close).
type StatusStream interface {
	Updates() <-chan ExtrinsicStatus
	Err() error
	Close()
}
