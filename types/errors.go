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
	"context"
	"errors"
	"fmt"
	"time"
)

// ConnectionError is returned when an endpoint is unreachable or drops
// while the scenario is running.
type ConnectionError struct {
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// SubmissionError is returned when a call is rejected by the node or fails
// on-chain.
type SubmissionError struct {
	Chain  string
	Call   string
	Block  string
	Reason string
}

func (e *SubmissionError) Error() string {
	if e.Block != "" {
		return fmt.Sprintf("submission of %s on %s failed in block %s: %s", e.Call, e.Chain, e.Block, e.Reason)
	}
	return fmt.Sprintf("submission of %s on %s failed: %s", e.Call, e.Chain, e.Reason)
}

// TimeoutError is returned when a bounded wait exceeds its limit.
type TimeoutError struct {
	Operation    string
	Timeout      time.Duration
	LastObserved string
}

func (e *TimeoutError) Error() string {
	if e.LastObserved != "" {
		return fmt.Sprintf("%s did not complete within %s (last observed: %s)", e.Operation, e.Timeout, e.LastObserved)
	}
	return fmt.Sprintf("%s did not complete within %s", e.Operation, e.Timeout)
}

// Is lets errors.Is(err, context.DeadlineExceeded) match timeouts.
func (e *TimeoutError) Is(target error) bool {
	return target == context.DeadlineExceeded
}

// AssertionError is a failed height or fairness check.
type AssertionError struct {
	Check    string
	Expected string
	Observed string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion %q failed: expected %s, observed %s", e.Check, e.Expected, e.Observed)
}

// DecodeError is returned when a payload from the node or the codec cannot
// be decoded.
type DecodeError struct {
	What string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("could not decode %s: %v", e.What, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the error must abort a scenario. Assertion errors
// are the verdict itself and are not fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var (
		connErr    *ConnectionError
		subErr     *SubmissionError
		timeoutErr *TimeoutError
		decodeErr  *DecodeError
	)
	return errors.As(err, &connErr) ||
		errors.As(err, &subErr) ||
		errors.As(err, &timeoutErr) ||
		errors.As(err, &decodeErr)
}

// Kind names the error class for reports.
func Kind(err error) string {
	var (
		connErr      *ConnectionError
		subErr       *SubmissionError
		timeoutErr   *TimeoutError
		decodeErr    *DecodeError
		assertionErr *AssertionError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &connErr):
		return "ConnectionError"
	case errors.As(err, &subErr):
		return "SubmissionError"
	case errors.As(err, &timeoutErr):
		return "TimeoutError"
	case errors.As(err, &decodeErr):
		return "DecodeError"
	case errors.As(err, &assertionErr):
		return "AssertionError"
	default:
		return "Error"
	}
}
