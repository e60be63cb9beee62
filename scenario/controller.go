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

// Package scenario sequences the privileged operations of an on-demand
// scheduling scenario, checks the chains behave as expected between them,
// and reports a single verdict.
package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"code.vegaprotocol.io/ondemand/artifacts"
	"code.vegaprotocol.io/ondemand/invariants"
	vgclose "code.vegaprotocol.io/ondemand/libs/close"
	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/metrics"
	"code.vegaprotocol.io/ondemand/monitor"
	"code.vegaprotocol.io/ondemand/poller"
	"code.vegaprotocol.io/ondemand/types"
	"code.vegaprotocol.io/ondemand/types/num"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoGuaranteedChain is returned when a core is about to be assigned while
// no chain is in guaranteed mode. The scheduler never applies the assignment
// in that case.
var ErrNoGuaranteedChain = errors.New("no chain in guaranteed mode, the core assignment would never be applied")

var (
	ErrConfigurationApplied  = errors.New("the configuration set was already applied")
	ErrReservedEventNotFound = errors.New("the reservation did not emit a Registrar.Reserved event")
	ErrNoParaSubmitter       = errors.New("no submitter for the dependent chain")
)

//go:generate go run github.com/golang/mock/mockgen -destination mocks/mocks.go -package mocks code.vegaprotocol.io/ondemand/scenario Relay,Para,Submitter

// Relay is the session to the coordinating chain.
type Relay interface {
	Name() string
	Height(ctx context.Context) (uint64, error)
	SessionIndex(ctx context.Context) (uint32, error)
	ParaLifecycle(ctx context.Context, chainID uint32) (types.ParaLifecycle, bool, error)
	SubscribeEvents(ctx context.Context, predicate types.EventPredicate) (types.EventStream, error)
}

// Para is the session to the dependent chain under test.
type Para interface {
	Name() string
	Height(ctx context.Context) (uint64, error)
}

// Submitter submits calls to one chain.
type Submitter interface {
	Submit(ctx context.Context, signer types.Signer, call types.Call, wrapPrivileged bool, timeout time.Duration) (types.SubmissionResult, error)
}

type step struct {
	name string
	run  func(ctx context.Context, res *StepResult) error
}

// Controller runs one scenario. It is not reusable.
type Controller struct {
	log *logging.Logger
	cfg Config

	signer         types.Signer
	relay          Relay
	para           Para
	relaySubmitter Submitter
	paraSubmitter  Submitter
	poller         *poller.Poller
	monitor        *monitor.Monitor
	checker        *invariants.Checker
	artifacts      artifacts.Provider
	closer         *vgclose.Closer
	stream         *monitor.Stream

	chainID    uint32
	lifecycle  types.LifecycleState
	configured bool
}

func NewController(
	log *logging.Logger,
	cfg Config,
	signer types.Signer,
	relay Relay,
	para Para,
	relaySubmitter Submitter,
	paraSubmitter Submitter,
	poller *poller.Poller,
	monitor *monitor.Monitor,
	checker *invariants.Checker,
	artifacts artifacts.Provider,
) *Controller {
	log = log.Named(namedLogger)
	log.SetLevel(cfg.Level.Get())
	return &Controller{
		log:            log,
		cfg:            cfg,
		signer:         signer,
		relay:          relay,
		para:           para,
		relaySubmitter: relaySubmitter,
		paraSubmitter:  paraSubmitter,
		poller:         poller,
		monitor:        monitor,
		checker:        checker,
		artifacts:      artifacts,
		closer:         vgclose.NewCloser(),
		chainID:        cfg.ChainID,
	}
}

// Own hands a resource over to the controller, which closes it at the end of
// the run, failed or not.
func (c *Controller) Own(name string, closeFn func() error) {
	c.closer.Add(name, closeFn)
}

// Run executes the selected steps one after the other. The order monitor,
// when selected, runs alongside them. Any fatal error aborts the remaining
// steps. The resources owned by the controller are always closed.
func (c *Controller) Run(ctx context.Context) *Verdict {
	v := newVerdict(c.chainID)
	defer c.finish(v)

	if err := c.cfg.Validate(); err != nil {
		v.fail(setupStep, err, c.lifecycle)
		return v
	}
	selected, _ := selectSteps(c.cfg.Steps)
	if !selected[StepRegister] {
		// The chain under test already exists.
		c.lifecycle = types.Registered
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	g, gctx := errgroup.WithContext(monitorCtx)

	if selected[StepMonitorOrders] {
		stream, err := c.monitor.Start(gctx)
		if err != nil {
			v.fail(StepMonitorOrders, err, c.lifecycle)
			return v
		}
		c.stream = stream
		g.Go(func() error {
			// Drains whatever is buffered before the stream closes.
			c.checker.Run(context.Background(), stream.C())
			return nil
		})
		g.Go(func() error {
			<-stream.Done()
			return stream.Err()
		})
	}

	aborted := c.runSteps(gctx, v, selected)

	if c.stream != nil && !aborted {
		c.observe(gctx, v)
	}

	stopMonitor()
	if err := g.Wait(); err != nil {
		v.failMonitor(err, c.lifecycle)
	}
	if err := ctx.Err(); err != nil && v.Failure == nil {
		v.fail(interruptedStep, fmt.Errorf("scenario interrupted: %w", err), c.lifecycle)
	}

	if c.stream != nil {
		c.collect(v)
	}
	return v
}

func (c *Controller) runSteps(ctx context.Context, v *Verdict, selected map[string]bool) bool {
	aborted := false
	for _, s := range c.steps() {
		if !selected[s.name] {
			continue
		}
		if aborted {
			v.Steps = append(v.Steps, StepResult{Name: s.name, Status: StepSkipped})
			continue
		}

		err := c.runStep(ctx, v, s)
		if err == nil {
			continue
		}

		var assertion *types.AssertionError
		if errors.As(err, &assertion) {
			v.assert(assertion)
			continue
		}
		v.fail(s.name, err, c.lifecycle)
		aborted = true
	}
	return aborted
}

func (c *Controller) runStep(ctx context.Context, v *Verdict, s step) error {
	log := c.log.With(logging.Step(s.name))
	log.Info("step started", logging.String("lifecycle", c.lifecycle.String()))

	timeout := c.cfg.Timeouts.Step.Get()
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res := StepResult{Name: s.name, Status: StepPassed}
	started := time.Now()
	err := s.run(stepCtx, &res)
	elapsed := time.Since(started)

	var timeoutErr *types.TimeoutError
	if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) && !errors.As(err, &timeoutErr) {
		err = &types.TimeoutError{
			Operation:    "step " + s.name,
			Timeout:      timeout,
			LastObserved: c.lifecycle.String(),
		}
	}

	res.Duration.Duration = elapsed
	if err != nil {
		res.Status = StepFailed
		res.Error = err.Error()
		res.ErrorKind = types.Kind(err)
		log.Error("step failed",
			logging.Duration("elapsed", elapsed),
			logging.String("lifecycle", c.lifecycle.String()),
			logging.Error(err),
		)
	} else {
		log.Info("step succeeded",
			logging.Duration("elapsed", elapsed),
			logging.String("lifecycle", c.lifecycle.String()),
		)
	}
	metrics.StepDurationObserve(elapsed.Seconds(), s.name, string(res.Status))
	v.Steps = append(v.Steps, res)
	return err
}

func (c *Controller) steps() []step {
	runs := map[string]func(context.Context, *StepResult) error{
		StepConfigure:     c.configure,
		StepConfigurePara: c.configurePara,
		StepRegister:      c.register,
		StepAssignCore:    c.assignCore,
		StepDowngrade:     c.downgrade,
		StepAwaitSessions: c.awaitSessions,
		StepStagnation:    c.stagnation,
		StepProgress:      c.progress,
	}
	steps := make([]step, 0, len(stepOrder))
	for _, name := range stepOrder {
		steps = append(steps, step{name: name, run: runs[name]})
	}
	return steps
}

// observe keeps monitoring the orders after the last step.
func (c *Controller) observe(ctx context.Context, v *Verdict) {
	d := c.cfg.Timeouts.ObserveFor.Get()
	res := StepResult{Name: StepMonitorOrders, Status: StepPassed}
	started := time.Now()

	c.log.Info("observing orders", logging.Duration("for", d))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		err := fmt.Errorf("observation interrupted: %w", ctx.Err())
		res.Status = StepFailed
		res.Error = err.Error()
		res.ErrorKind = types.Kind(err)
		v.fail(StepMonitorOrders, err, c.lifecycle)
		c.log.Error("observation interrupted", logging.Duration("elapsed", time.Since(started)))
	case <-t.C:
	}

	res.Duration.Duration = time.Since(started)
	metrics.StepDurationObserve(res.Duration.Seconds(), res.Name, string(res.Status))
	v.Steps = append(v.Steps, res)
}

func (c *Controller) collect(v *Verdict) {
	v.Orders = c.checker.Observed()
	v.Violations = c.checker.Violations()
	v.TotalSpotPrice = c.checker.Spent()

	if v.Orders < c.cfg.MinOrders {
		v.assert(&types.AssertionError{
			Check:    "number of orders placed",
			Expected: fmt.Sprintf("at least %d", c.cfg.MinOrders),
			Observed: fmt.Sprintf("%d", v.Orders),
		})
	}
}

func (c *Controller) finish(v *Verdict) {
	v.ChainID = c.chainID
	v.Lifecycle = c.lifecycle.String()

	if err := c.closer.CloseAll(); err != nil {
		c.log.Warn("teardown failed", logging.Error(err))
		v.Teardown = append(v.Teardown, err.Error())
	}
	v.FinishedAt = time.Now()

	fields := []zap.Field{
		logging.String("run-id", v.RunID),
		logging.Bool("passed", v.Passed()),
		logging.Int("orders", v.Orders),
		logging.Int("violations", len(v.Violations)),
		logging.Int("assertions", len(v.Assertions)),
		logging.Duration("elapsed", v.FinishedAt.Sub(v.StartedAt)),
	}
	if v.Failure != nil {
		fields = append(fields, logging.String("failed-step", v.Failure.Step), logging.String("error", v.Failure.Error))
	}
	c.log.Info("scenario finished", fields...)
}

func (c *Controller) advance(to types.LifecycleState) error {
	next, err := c.lifecycle.Advance(to)
	if err != nil {
		return err
	}
	if next != c.lifecycle {
		c.log.Info("chain lifecycle changed",
			logging.Uint32("chain-id", c.chainID),
			logging.String("from", c.lifecycle.String()),
			logging.String("to", next.String()),
		)
	}
	c.lifecycle = next
	return nil
}

func (c *Controller) submit(ctx context.Context, res *StepResult, submitter Submitter, call types.Call, privileged bool) (types.SubmissionResult, error) {
	result, err := submitter.Submit(ctx, c.signer, call, privileged, c.cfg.Timeouts.Submission.Get())
	res.Submissions = append(res.Submissions, result)
	return result, err
}

func (c *Controller) configure(ctx context.Context, res *StepResult) error {
	if c.configured {
		return ErrConfigurationApplied
	}
	if _, err := c.submit(ctx, res, c.relaySubmitter, c.cfg.Configuration.Call(), true); err != nil {
		return err
	}
	c.configured = true
	return nil
}

func (c *Controller) configurePara(ctx context.Context, res *StepResult) error {
	if c.paraSubmitter == nil {
		return ErrNoParaSubmitter
	}
	if c.cfg.SlotWidth != 0 {
		if _, err := c.submit(ctx, res, c.paraSubmitter, types.SetSlotWidthCall(c.cfg.SlotWidth), true); err != nil {
			return err
		}
	}
	if c.cfg.ThresholdParameter != 0 {
		if _, err := c.submit(ctx, res, c.paraSubmitter, types.SetThresholdParameterCall(c.cfg.ThresholdParameter), true); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) register(ctx context.Context, res *StepResult) error {
	reservation, err := c.submit(ctx, res, c.relaySubmitter, types.ReserveCall(), false)
	if err != nil {
		return err
	}
	reserved, ok := reservation.FindEvent("Registrar", "Reserved")
	if !ok {
		return ErrReservedEventNotFound
	}
	var id num.Uint
	if err := reserved.Field("para_id", &id); err != nil {
		return err
	}
	c.chainID = uint32(id.Uint64())
	if c.stream != nil {
		c.stream.Follow(c.chainID)
	}
	if err := c.advance(types.Reserved); err != nil {
		return err
	}

	head, err := c.artifacts.GenesisHead(ctx)
	if err != nil {
		return err
	}
	code, err := c.artifacts.ValidationCode(ctx)
	if err != nil {
		return err
	}
	if _, err := c.submit(ctx, res, c.relaySubmitter, types.RegisterCall(c.chainID, head, code), false); err != nil {
		return err
	}

	err = c.waitForLifecycle(ctx, "onboarding", func(l types.ParaLifecycle) bool {
		return l == types.ParaParathread || l == types.ParaParachain
	})
	if err != nil {
		return err
	}
	return c.advance(types.Registered)
}

func (c *Controller) assignCore(ctx context.Context, res *StepResult) error {
	if c.cfg.CheckGuaranteedChain.Get() {
		if err := c.checkGuaranteedChain(ctx); err != nil {
			return err
		}
	}
	if _, err := c.submit(ctx, res, c.relaySubmitter, c.cfg.CoreAssignment.Call(), true); err != nil {
		return err
	}

	// The chain under test only counts as scheduled on a guaranteed core
	// when it is a full chain.
	lifecycle, ok, err := c.relay.ParaLifecycle(ctx, c.chainID)
	if err != nil {
		return err
	}
	if !ok || !lifecycle.IsGuaranteed() {
		observed := "unknown"
		if ok {
			observed = lifecycle.String()
		}
		c.log.Info("core assigned, chain under test not in guaranteed mode",
			logging.Uint32("chain-id", c.chainID),
			logging.String("para-lifecycle", observed),
		)
		return nil
	}
	return c.advance(types.CoreAssignedGuaranteed)
}

func (c *Controller) checkGuaranteedChain(ctx context.Context) error {
	ids := c.cfg.GuaranteedChains
	if len(ids) == 0 {
		ids = []uint32{c.chainID}
	}

	observed := make([]string, 0, len(ids))
	for _, id := range ids {
		lifecycle, ok, err := c.relay.ParaLifecycle(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			observed = append(observed, fmt.Sprintf("%d is unknown", id))
			continue
		}
		if lifecycle.IsGuaranteed() {
			c.log.Debug("chain in guaranteed mode found",
				logging.Uint32("chain-id", id),
				logging.String("lifecycle", lifecycle.String()),
			)
			return nil
		}
		observed = append(observed, fmt.Sprintf("%d is %s", id, lifecycle))
	}
	return fmt.Errorf("%w (%s)", ErrNoGuaranteedChain, strings.Join(observed, ", "))
}

func (c *Controller) downgrade(ctx context.Context, res *StepResult) error {
	if _, err := c.submit(ctx, res, c.relaySubmitter, types.DowngradeCall(c.chainID), true); err != nil {
		return err
	}
	if err := c.advance(types.DowngradeRequested); err != nil {
		return err
	}
	return c.waitForLifecycle(ctx, "downgrade", func(l types.ParaLifecycle) bool {
		return l == types.ParaParathread
	})
}

func (c *Controller) awaitSessions(ctx context.Context, _ *StepResult) error {
	_, err := c.poller.WaitForSessions(ctx, c.relay, c.cfg.Sessions, c.cfg.Timeouts.Sessions.Get())
	return err
}

func (c *Controller) stagnation(ctx context.Context, res *StepResult) error {
	obs, err := c.poller.WaitForStagnation(ctx, c.para, c.cfg.Timeouts.StagnationWindow.Get())
	res.Observation = &obs
	if err != nil {
		return err
	}
	if !obs.Stagnant() {
		return &types.AssertionError{
			Check:    fmt.Sprintf("%s does not produce blocks", obs.Chain),
			Expected: fmt.Sprintf("height %d", obs.Start),
			Observed: fmt.Sprintf("height %d", obs.End),
		}
	}
	return c.advance(types.OnDemandStalled)
}

func (c *Controller) progress(ctx context.Context, res *StepResult) error {
	obs, err := c.poller.WaitForProgress(ctx, c.para, c.cfg.Timeouts.ProgressMin.Get(), c.cfg.Timeouts.ProgressTimeout.Get())
	res.Observation = &obs
	if err != nil {
		return err
	}
	return c.advance(types.OnDemandActive)
}

func (c *Controller) waitForLifecycle(ctx context.Context, what string, reached func(types.ParaLifecycle) bool) error {
	description := fmt.Sprintf("%s of chain %d", what, c.chainID)
	return c.poller.WaitFor(ctx, description, c.cfg.Timeouts.Lifecycle.Get(), func(ctx context.Context) (string, bool, error) {
		lifecycle, ok, err := c.relay.ParaLifecycle(ctx, c.chainID)
		if err != nil {
			return "", false, err
		}
		if !ok {
			return "unknown to " + c.relay.Name(), false, nil
		}
		return lifecycle.String(), reached(lifecycle), nil
	})
}
