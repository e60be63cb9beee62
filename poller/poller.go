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

// Package poller samples the chain state over time to tell whether a chain
// is producing blocks, and waits for state transitions with explicit bounds.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/metrics"
	"code.vegaprotocol.io/ondemand/types"

	"github.com/cenkalti/backoff/v4"
)

var errNotYet = errors.New("condition not met yet")

//go:generate go run github.com/golang/mock/mockgen -destination mocks/sources_mock.go -package mocks code.vegaprotocol.io/ondemand/poller HeightSource,SessionSource

// HeightSource reports the best block number of a chain.
type HeightSource interface {
	Name() string
	Height(ctx context.Context) (uint64, error)
}

// SessionSource reports the current session index of a chain.
type SessionSource interface {
	Name() string
	SessionIndex(ctx context.Context) (uint32, error)
}

// Condition is evaluated on every poll. It returns what it observed, used
// in logs and timeout reports, and whether the wait is over. Any error ends
// the wait.
type Condition func(ctx context.Context) (observed string, done bool, err error)

// Observation is the outcome of a height sampling window.
type Observation struct {
	Chain     string    `json:"chain"`
	Start     uint64    `json:"start"`
	End       uint64    `json:"end"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Samples   int       `json:"samples"`
}

// Stagnant tells whether no block was produced during the window.
func (o Observation) Stagnant() bool {
	return o.End == o.Start
}

// Progressed tells whether at least one block was produced during the window.
func (o Observation) Progressed() bool {
	return o.End > o.Start
}

func (o Observation) String() string {
	return fmt.Sprintf("%s height %d -> %d over %s", o.Chain, o.Start, o.End, o.EndedAt.Sub(o.StartedAt).Round(time.Millisecond))
}

type Poller struct {
	log *logging.Logger
	cfg Config
}

func New(log *logging.Logger, cfg Config) *Poller {
	log = log.Named(namedLogger)
	log.SetLevel(cfg.Level.Get())
	return &Poller{
		log: log,
		cfg: cfg,
	}
}

// WaitForStagnation samples the height, waits for the window, then samples
// it again. Whether the chain stagnated is left to the caller, through
// Observation.Stagnant.
func (p *Poller) WaitForStagnation(ctx context.Context, src HeightSource, window time.Duration) (Observation, error) {
	obs := Observation{Chain: src.Name()}

	start, err := p.sample(ctx, src, &obs)
	if err != nil {
		return obs, err
	}
	obs.Start, obs.End = start, start

	if err := sleep(ctx, window); err != nil {
		return obs, err
	}

	end, err := p.sample(ctx, src, &obs)
	if err != nil {
		return obs, err
	}
	obs.End = end

	p.log.Info("stagnation window over",
		logging.Chain(obs.Chain),
		logging.Uint64("start", obs.Start),
		logging.Uint64("end", obs.End),
		logging.Bool("stagnant", obs.Stagnant()),
	)
	return obs, nil
}

// WaitForProgress samples the height, waits for at least minDuration, then
// polls until the height grows. The timeout counts from the first sample,
// a chain that does not grow in time yields a TimeoutError along with the
// last observation.
func (p *Poller) WaitForProgress(ctx context.Context, src HeightSource, minDuration, timeout time.Duration) (Observation, error) {
	obs := Observation{Chain: src.Name()}
	operation := fmt.Sprintf("block production on %s", obs.Chain)

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start, err := p.sample(ctx, src, &obs)
	if err != nil {
		return obs, timedOut(parent, err, operation, timeout, "")
	}
	obs.Start, obs.End = start, start

	if err := sleep(ctx, minDuration); err != nil {
		return obs, timedOut(parent, err, operation, timeout, obs.String())
	}

	err = p.poll(ctx, operation, func(ctx context.Context) (string, bool, error) {
		height, err := p.sample(ctx, src, &obs)
		if err != nil {
			return "", false, err
		}
		obs.End = height
		return obs.String(), obs.Progressed(), nil
	})
	if err != nil {
		return obs, timedOut(parent, err, operation, timeout, obs.String())
	}

	p.log.Info("chain progressed",
		logging.Chain(obs.Chain),
		logging.Uint64("start", obs.Start),
		logging.Uint64("end", obs.End),
	)
	return obs, nil
}

// WaitForSessions waits until the session index moved at least n sessions
// past the current one.
func (p *Poller) WaitForSessions(ctx context.Context, src SessionSource, n uint32, timeout time.Duration) (uint32, error) {
	start, err := src.SessionIndex(ctx)
	if err != nil {
		return 0, err
	}
	target := start + n
	current := start

	p.log.Info("waiting for session rotations",
		logging.Chain(src.Name()),
		logging.Uint32("current", start),
		logging.Uint32("target", target),
	)

	err = p.WaitFor(ctx, fmt.Sprintf("%d session rotations on %s", n, src.Name()), timeout,
		func(ctx context.Context) (string, bool, error) {
			index, err := src.SessionIndex(ctx)
			if err != nil {
				return "", false, err
			}
			current = index
			return fmt.Sprintf("session %d (waiting for %d)", index, target), index >= target, nil
		})
	return current, err
}

// WaitFor polls the condition at the configured interval until it is met,
// it fails, or the timeout elapses, reported as a TimeoutError.
func (p *Poller) WaitFor(ctx context.Context, description string, timeout time.Duration, cond Condition) error {
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var last string
	err := p.poll(ctx, description, func(ctx context.Context) (string, bool, error) {
		observed, done, err := cond(ctx)
		if observed != "" {
			last = observed
		}
		return observed, done, err
	})
	return timedOut(parent, err, description, timeout, last)
}

func (p *Poller) poll(ctx context.Context, description string, cond Condition) error {
	interval := p.cfg.Interval.Get()
	op := func() error {
		observed, done, err := cond(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !done {
			p.log.Debug("still waiting",
				logging.String("for", description),
				logging.String("observed", observed),
			)
			return errNotYet
		}
		return nil
	}
	return backoff.Retry(op, backoff.WithContext(backoff.NewConstantBackOff(interval), ctx))
}

func (p *Poller) sample(ctx context.Context, src HeightSource, obs *Observation) (uint64, error) {
	height, err := src.Height(ctx)
	if err != nil {
		return 0, err
	}
	now := time.Now()
	if obs.Samples == 0 {
		obs.StartedAt = now
	}
	obs.EndedAt = now
	obs.Samples++
	metrics.HeightGaugeSet(height, obs.Chain)
	return height, nil
}

// timedOut turns the expiry of the wait's own deadline into a TimeoutError.
// Cancellation from the caller is returned as is.
func timedOut(parent context.Context, err error, operation string, timeout time.Duration, observed string) error {
	if err == nil {
		return nil
	}
	if parent.Err() == nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errNotYet)) {
		return &types.TimeoutError{
			Operation:    operation,
			Timeout:      timeout,
			LastObserved: observed,
		}
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
