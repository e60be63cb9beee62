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

// Package invariants checks the fairness of the orders placed by the
// collators of an on-demand chain.
package invariants

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/metrics"
	"code.vegaprotocol.io/ondemand/types"
	"code.vegaprotocol.io/ondemand/types/num"
)

var ErrEmptyCollatorSet = errors.New("the collator set is empty")

type ViolationKind int

const (
	// MembershipViolation is an order placed by an account outside of the
	// collator set.
	MembershipViolation ViolationKind = iota
	// RepetitionViolation is an order placed by the same account as the
	// order right before it.
	RepetitionViolation
)

func (k ViolationKind) String() string {
	switch k {
	case MembershipViolation:
		return "MembershipViolation"
	case RepetitionViolation:
		return "RepetitionViolation"
	default:
		return fmt.Sprintf("ViolationKind(%d)", int(k))
	}
}

func (k ViolationKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Violation is one broken rule, recorded against the order that broke it.
type Violation struct {
	Kind  ViolationKind          `json:"kind"`
	Order types.OrderPlacedEvent `json:"order"`
	// Previous is the placer of the order right before, for repetitions.
	Previous string `json:"previous,omitempty"`
}

func (v Violation) Error() string {
	switch v.Kind {
	case MembershipViolation:
		return fmt.Sprintf("order %d in block %s placed by %s, which is not a collator", v.Order.Index, v.Order.Block, v.Order.Placer)
	case RepetitionViolation:
		return fmt.Sprintf("order %d in block %s placed by %s twice in a row", v.Order.Index, v.Order.Block, v.Order.Placer)
	default:
		return fmt.Sprintf("order %d: %s", v.Order.Index, v.Kind)
	}
}

// Assertion turns the violation into the assertion that failed.
func (v Violation) Assertion() *types.AssertionError {
	switch v.Kind {
	case MembershipViolation:
		return &types.AssertionError{
			Check:    fmt.Sprintf("placer of order %d", v.Order.Index),
			Expected: "a member of the collator set",
			Observed: v.Order.Placer,
		}
	default:
		return &types.AssertionError{
			Check:    fmt.Sprintf("placer of order %d", v.Order.Index),
			Expected: "a different placer than " + v.Previous,
			Observed: v.Order.Placer,
		}
	}
}

// CollatorSet is the fixed set of accounts allowed to place orders.
type CollatorSet map[string]struct{}

func NewCollatorSet(collators ...string) (CollatorSet, error) {
	if len(collators) == 0 {
		return nil, ErrEmptyCollatorSet
	}
	set := make(CollatorSet, len(collators))
	for _, c := range collators {
		set[c] = struct{}{}
	}
	return set, nil
}

func (s CollatorSet) Contains(placer string) bool {
	_, ok := s[placer]
	return ok
}

// Members returns the collators, sorted.
func (s CollatorSet) Members() []string {
	members := make([]string, 0, len(s))
	for c := range s {
		members = append(members, c)
	}
	sort.Strings(members)
	return members
}

// FairnessTracker holds the last seen placer and the violations found so
// far.
type FairnessTracker struct {
	last       string
	seen       bool
	observed   int
	spent      *num.Uint
	violations []Violation
}

// Checker applies the rules to every order, in arrival order. It never
// fails: broken rules are recorded and returned.
type Checker struct {
	log       *logging.Logger
	collators CollatorSet

	mu      sync.Mutex
	tracker FairnessTracker
}

func New(log *logging.Logger, cfg Config, collators CollatorSet) *Checker {
	log = log.Named(namedLogger)
	log.SetLevel(cfg.Level.Get())
	return &Checker{
		log:       log,
		collators: collators,
	}
}

// Observe checks the order against the rules, and returns what it broke.
// The order always becomes the last seen one.
func (c *Checker) Observe(order types.OrderPlacedEvent) []Violation {
	c.mu.Lock()
	defer c.mu.Unlock()

	var found []Violation
	if !c.collators.Contains(order.Placer) {
		found = append(found, Violation{Kind: MembershipViolation, Order: order})
	}
	if c.tracker.seen && c.tracker.last == order.Placer {
		found = append(found, Violation{Kind: RepetitionViolation, Order: order, Previous: c.tracker.last})
	}

	c.tracker.last = order.Placer
	c.tracker.seen = true
	c.tracker.observed++
	c.tracker.spent = num.Sum(c.tracker.spent, order.SpotPrice)
	c.tracker.violations = append(c.tracker.violations, found...)

	for _, v := range found {
		metrics.ViolationCounterInc(v.Kind.String())
		c.log.Warn("fairness rule broken",
			logging.String("kind", v.Kind.String()),
			logging.Int("index", order.Index),
			logging.String("block", order.Block),
			logging.String("placer", order.Placer),
		)
	}
	return found
}

// Run observes the orders until the channel is closed or ctx is cancelled.
func (c *Checker) Run(ctx context.Context, orders <-chan types.OrderPlacedEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case order, ok := <-orders:
			if !ok {
				return
			}
			c.Observe(order)
		}
	}
}

// Violations returns a copy of the violations recorded so far.
func (c *Checker) Violations() []Violation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Violation, len(c.tracker.violations))
	copy(out, c.tracker.violations)
	return out
}

// Spent returns the sum of the spot prices paid by the observed orders.
func (c *Checker) Spent() *num.Uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tracker.spent == nil {
		return num.UintZero()
	}
	return c.tracker.spent.Clone()
}

// Observed returns how many orders were checked.
func (c *Checker) Observed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.observed
}
