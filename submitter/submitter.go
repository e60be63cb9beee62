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

// Package submitter signs, submits and follows calls until they are
// finalized or failed, then inspects the events they emitted to tell
// whether they were successfully dispatched.
package submitter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/metrics"
	"code.vegaprotocol.io/ondemand/types"
)

//go:generate go run github.com/golang/mock/mockgen -destination mocks/chain_mock.go -package mocks code.vegaprotocol.io/ondemand/submitter Chain

// Chain is the part of the chain session used to submit calls.
type Chain interface {
	Name() string
	Sign(ctx context.Context, signer types.Signer, call types.Call) (string, error)
	SubmitAndWatch(ctx context.Context, extrinsic string) (types.StatusStream, error)
	ExtrinsicEvents(ctx context.Context, blockHash, extrinsic string) ([]types.DecodedEvent, error)
}

// Submitter submits calls to one chain. Submissions are never retried.
type Submitter struct {
	log   *logging.Logger
	cfg   Config
	chain Chain
}

func New(log *logging.Logger, cfg Config, chain Chain) *Submitter {
	log = log.Named(namedLogger).With(logging.Chain(chain.Name()))
	log.SetLevel(cfg.Level.Get())
	return &Submitter{
		log:   log,
		cfg:   cfg,
		chain: chain,
	}
}

// Submit signs the call with the signer, wrapped in the root authority
// envelope if wrapPrivileged is set, submits it and follows it until it
// reaches a terminal state or the timeout expires.
//
// A failed submission returns its result along with a SubmissionError. An
// expired timeout returns a TimeoutError.
func (s *Submitter) Submit(ctx context.Context, signer types.Signer, call types.Call, wrapPrivileged bool, timeout time.Duration) (result types.SubmissionResult, err error) {
	if wrapPrivileged && !call.IsPrivileged() {
		call = types.Sudo(call)
	}
	result = types.NewSubmissionResult(s.chain.Name(), call)
	log := s.log.With(
		logging.String("call", call.Path()),
		logging.String("signer", signer.String()),
	)

	started := time.Now()
	defer func() {
		metrics.SubmissionCounterInc(s.chain.Name(), outcomeLabel(result, err))
		if err != nil {
			log.Error("submission failed",
				logging.String("state", result.State.String()),
				logging.Duration("elapsed", time.Since(started)),
				logging.Error(err),
			)
		}
	}()

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	timedOut := func(err error) error {
		if parent.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return &types.TimeoutError{
				Operation:    fmt.Sprintf("submission of %s on %s", call.Path(), s.chain.Name()),
				Timeout:      timeout,
				LastObserved: result.State.String(),
			}
		}
		return err
	}

	log.Info("submitting call")

	extrinsic, err := s.chain.Sign(ctx, signer, call)
	if err != nil {
		return result, timedOut(err)
	}

	stream, err := s.chain.SubmitAndWatch(ctx, extrinsic)
	if err != nil {
		if isTransportError(err) {
			return result, timedOut(err)
		}
		// The node refused the extrinsic, like an invalid or unpayable one.
		_ = result.Fail("", err.Error())
		return result, result.Err()
	}
	defer stream.Close()

	for {
		select {
		case <-ctx.Done():
			return result, timedOut(ctx.Err())
		case status, ok := <-stream.Updates():
			if !ok {
				if err := stream.Err(); err != nil {
					return result, timedOut(err)
				}
				_ = result.Fail(result.Block, "the node stopped reporting the extrinsic status")
				return result, result.Err()
			}

			done, err := s.handleStatus(ctx, log, &result, status, extrinsic)
			if err != nil {
				return result, timedOut(err)
			}
			if done {
				if err := result.Err(); err != nil {
					return result, err
				}
				log.Info("submission succeeded",
					logging.String("state", result.State.String()),
					logging.String("block", result.Block),
					logging.Duration("elapsed", time.Since(started)),
				)
				return result, nil
			}
		}
	}
}

// handleStatus updates the result from the status, and returns true once the
// submission outcome is known.
func (s *Submitter) handleStatus(ctx context.Context, log *logging.Logger, result *types.SubmissionResult, status types.ExtrinsicStatus, extrinsic string) (bool, error) {
	log.Debug("extrinsic status received",
		logging.String("status", string(status.Kind)),
		logging.String("block", status.Block),
	)

	switch status.Kind {
	case types.StatusFuture, types.StatusReady, types.StatusBroadcast:
		return false, nil
	case types.StatusRetracted:
		// The block was reorganised away, the extrinsic will be included
		// again.
		log.Warn("extrinsic block retracted", logging.String("block", status.Block))
		return false, nil
	case types.StatusInBlock:
		if s.cfg.WaitForFinality.Get() {
			return false, result.Advance(types.SubmissionInBlock, status.Block)
		}
		return true, s.inspect(ctx, result, types.SubmissionInBlock, status.Block, extrinsic)
	case types.StatusFinalized:
		return true, s.inspect(ctx, result, types.SubmissionFinalized, status.Block, extrinsic)
	case types.StatusDropped, types.StatusInvalid, types.StatusUsurped, types.StatusFinalityTimeout:
		return true, result.Fail(status.Block, fmt.Sprintf("extrinsic %s", status.Kind))
	default:
		return false, fmt.Errorf("unexpected extrinsic status %q", status.Kind)
	}
}

// inspect fetches the events the extrinsic emitted, and moves the result to
// the given state, or to Failed if the dispatch failed.
func (s *Submitter) inspect(ctx context.Context, result *types.SubmissionResult, state types.SubmissionState, block, extrinsic string) error {
	events, err := s.chain.ExtrinsicEvents(ctx, block, extrinsic)
	if err != nil {
		return fmt.Errorf("could not inspect the outcome of %s: %w", result.Call, err)
	}
	result.Events = events

	if reason, failed := DispatchFailure(events); failed {
		return result.Fail(block, reason)
	}
	return result.Advance(state, block)
}

// DispatchFailure tells whether the events of an extrinsic report a failed
// dispatch, and why. A privileged call can be included and yet fail, which is
// only visible in the events of the root authority envelope.
func DispatchFailure(events []types.DecodedEvent) (string, bool) {
	for _, e := range events {
		switch {
		case e.Pallet == "System" && e.Method == "ExtrinsicFailed":
			return "System.ExtrinsicFailed: " + rawField(e, "dispatch_error"), true
		case e.Pallet == "Utility" && e.Method == "BatchInterrupted":
			return fmt.Sprintf("Utility.BatchInterrupted at call %s: %s", rawField(e, "index"), rawField(e, "error")), true
		case e.Pallet == "Sudo" && e.Method == "Sudid":
			if reason, failed := sudoFailure(e); failed {
				return "Sudo.Sudid: " + reason, true
			}
		}
	}
	return "", false
}

func sudoFailure(e types.DecodedEvent) (string, bool) {
	var outcome map[string]json.RawMessage
	if err := e.Field("sudo_result", &outcome); err != nil {
		return "", false
	}
	for _, key := range []string{"Err", "err"} {
		if reason, ok := outcome[key]; ok {
			return string(reason), true
		}
	}
	return "", false
}

func rawField(e types.DecodedEvent, name string) string {
	raw, ok := e.Fields[name]
	if !ok {
		return "unknown"
	}
	return string(raw)
}

func isTransportError(err error) bool {
	var (
		connErr   *types.ConnectionError
		decodeErr *types.DecodeError
	)
	return errors.As(err, &connErr) ||
		errors.As(err, &decodeErr) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func outcomeLabel(result types.SubmissionResult, err error) string {
	var timeoutErr *types.TimeoutError
	switch {
	case errors.As(err, &timeoutErr):
		return "TimedOut"
	case err != nil && result.State != types.SubmissionFailed:
		return "Errored"
	default:
		return result.State.String()
	}
}
