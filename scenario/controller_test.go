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

package scenario_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"code.vegaprotocol.io/ondemand/artifacts"
	"code.vegaprotocol.io/ondemand/config/encoding"
	"code.vegaprotocol.io/ondemand/invariants"
	vgfs "code.vegaprotocol.io/ondemand/libs/fs"
	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/monitor"
	"code.vegaprotocol.io/ondemand/poller"
	"code.vegaprotocol.io/ondemand/scenario"
	"code.vegaprotocol.io/ondemand/scenario/mocks"
	"code.vegaprotocol.io/ondemand/types"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = types.Signer{URI: "//Alice", Address: "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"}

type fakeEventStream struct {
	batches chan types.EventBatch
	once    sync.Once

	mu  sync.Mutex
	err error
}

func newFakeEventStream() *fakeEventStream {
	return &fakeEventStream{batches: make(chan types.EventBatch, 16)}
}

func (s *fakeEventStream) Batches() <-chan types.EventBatch { return s.batches }

func (s *fakeEventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeEventStream) Close() {}

func (s *fakeEventStream) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.batches)
	})
}

func (s *fakeEventStream) place(block string, placers ...string) {
	s.placeFor(block, "2000", placers...)
}

func (s *fakeEventStream) placeFor(block, chainID string, placers ...string) {
	events := make([]types.DecodedEvent, 0, len(placers))
	for _, p := range placers {
		events = append(events, types.DecodedEvent{
			Pallet: "OnDemandAssignmentProvider",
			Method: "OnDemandOrderPlaced",
			Fields: map[string]json.RawMessage{
				"para_id":    json.RawMessage(chainID),
				"ordered_by": json.RawMessage(`"` + p + `"`),
				"spot_price": json.RawMessage(`"1000000"`),
			},
		})
	}
	s.batches <- types.EventBatch{Block: block, Events: events}
}

type testController struct {
	*scenario.Controller
	relay          *mocks.MockRelay
	para           *mocks.MockPara
	relaySubmitter *mocks.MockSubmitter
	paraSubmitter  *mocks.MockSubmitter
	events         *fakeEventStream
	genesisHead    []byte
	validationCode []byte
}

func getTestConfig(steps ...string) scenario.Config {
	cfg := scenario.NewDefaultConfig()
	cfg.Steps = steps
	cfg.Timeouts = scenario.TimeoutsConfig{
		Step:             encoding.Duration{Duration: 2 * time.Second},
		Submission:       encoding.Duration{Duration: 500 * time.Millisecond},
		Lifecycle:        encoding.Duration{Duration: 500 * time.Millisecond},
		Sessions:         encoding.Duration{Duration: 500 * time.Millisecond},
		StagnationWindow: encoding.Duration{Duration: 10 * time.Millisecond},
		ProgressMin:      encoding.Duration{Duration: 0},
		ProgressTimeout:  encoding.Duration{Duration: 500 * time.Millisecond},
		ObserveFor:       encoding.Duration{Duration: 50 * time.Millisecond},
	}
	return cfg
}

func getTestController(t *testing.T, cfg scenario.Config) *testController {
	t.Helper()
	ctrl := gomock.NewController(t)
	relay := mocks.NewMockRelay(ctrl)
	relay.EXPECT().Name().Return("relay").AnyTimes()
	para := mocks.NewMockPara(ctrl)
	para.EXPECT().Name().Return("para").AnyTimes()
	relaySubmitter := mocks.NewMockSubmitter(ctrl)
	paraSubmitter := mocks.NewMockSubmitter(ctrl)
	events := newFakeEventStream()
	relay.EXPECT().SubscribeEvents(gomock.Any(), gomock.Any()).Return(events, nil).AnyTimes()

	dir := t.TempDir()
	genesisHead := []byte{0x01, 0x02}
	validationCode := []byte{0x00, 0x61, 0x73, 0x6d}
	require.NoError(t, vgfs.WriteFile(filepath.Join(dir, "genesis.hex"), []byte("0x0102")))
	require.NoError(t, vgfs.WriteFile(filepath.Join(dir, "runtime.wasm"), validationCode))
	provider := artifacts.NewFileProvider(artifacts.Config{
		GenesisHead:    filepath.Join(dir, "genesis.hex"),
		ValidationCode: filepath.Join(dir, "runtime.wasm"),
	})

	log := logging.NewTestLogger()
	pollerCfg := poller.NewDefaultConfig()
	pollerCfg.Interval = encoding.Duration{Duration: 5 * time.Millisecond}
	monitorCfg := monitor.NewDefaultConfig()
	monitorCfg.ChainID = cfg.ChainID
	collators, err := invariants.NewCollatorSet("A", "B", "C")
	require.NoError(t, err)

	controller := scenario.NewController(log, cfg, alice,
		relay, para, relaySubmitter, paraSubmitter,
		poller.New(log, pollerCfg),
		monitor.New(log, monitorCfg, relay),
		invariants.New(log, invariants.NewDefaultConfig(), collators),
		provider,
	)

	return &testController{
		Controller:     controller,
		relay:          relay,
		para:           para,
		relaySubmitter: relaySubmitter,
		paraSubmitter:  paraSubmitter,
		events:         events,
		genesisHead:    genesisHead,
		validationCode: validationCode,
	}
}

func finalized(call types.Call, events ...types.DecodedEvent) types.SubmissionResult {
	return types.SubmissionResult{
		Chain:  "relay",
		Call:   call.Path(),
		State:  types.SubmissionFinalized,
		Block:  "0x01",
		Events: events,
	}
}

func heightSequence(heights ...uint64) func(context.Context) (uint64, error) {
	i := 0
	return func(context.Context) (uint64, error) {
		h := heights[i]
		if i < len(heights)-1 {
			i++
		}
		return h, nil
	}
}

func stepNames(v *scenario.Verdict) []string {
	names := make([]string, 0, len(v.Steps))
	for _, s := range v.Steps {
		names = append(names, s.Name)
	}
	return names
}

func TestRun(t *testing.T) {
	t.Run("Downgrade scenario passes", testRunDowngradeScenario)
	t.Run("Alternating orders pass", testRunAlternatingOrders)
	t.Run("Repeated orders fail the verdict", testRunRepeatedOrders)
	t.Run("Core assignment without guaranteed chain is refused", testRunNoGuaranteedChain)
	t.Run("Core assignment without guaranteed chain times out", testRunNoGuaranteedChainTimesOut)
	t.Run("Stalled step is bounded", testRunStalledStep)
	t.Run("Failed submission aborts the scenario", testRunFailedSubmission)
	t.Run("Moving chain fails the stagnation assertion", testRunStagnationAssertion)
	t.Run("Registration uses the reserved chain id", testRunRegistration)
	t.Run("Dependent chain is configured", testRunConfigurePara)
	t.Run("Broken order stream fails the scenario", testRunBrokenOrderStream)
	t.Run("Too few orders fail the verdict", testRunTooFewOrders)
	t.Run("Invalid configuration fails before any step", testRunInvalidConfiguration)
	t.Run("Owned resources are closed", testRunTeardown)
	t.Run("Same configuration sends the same call", testRunConfigurationIsIdempotent)
	t.Run("Cancellation while observing fails the verdict", testRunCancelledWhileObserving)
	t.Run("Cancellation between steps fails the verdict", testRunCancelledBetweenSteps)
	t.Run("Order monitor follows the reserved chain id", testRunMonitorFollowsRegisteredChain)
	t.Run("Core assignment leaves an on-demand chain registered", testRunCoreAssignedToOnDemandChain)
	t.Run("Default core assignment leaves core 0 alone", testRunDefaultCoreAssignment)
}

func testRunDowngradeScenario(t *testing.T) {
	cfg := getTestConfig()
	tc := getTestController(t, cfg)
	lifecycle := types.ParaParachain

	// setup
	tc.events.place("0x10", "A", "B", "C")
	tc.events.place("0x11", "A", "B")

	gomock.InOrder(
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, cfg.Configuration.Call(), true, cfg.Timeouts.Submission.Get()).
			Return(finalized(cfg.Configuration.Call()), nil),
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, cfg.CoreAssignment.Call(), true, gomock.Any()).
			Return(finalized(cfg.CoreAssignment.Call()), nil),
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, types.DowngradeCall(2000), true, gomock.Any()).
			DoAndReturn(func(context.Context, types.Signer, types.Call, bool, time.Duration) (types.SubmissionResult, error) {
				lifecycle = types.ParaDowngradingParachain
				return finalized(types.DowngradeCall(2000)), nil
			}),
	)
	polls := 0
	tc.relay.EXPECT().ParaLifecycle(gomock.Any(), uint32(2000)).DoAndReturn(
		func(context.Context, uint32) (types.ParaLifecycle, bool, error) {
			if lifecycle == types.ParaDowngradingParachain {
				polls++
				if polls > 2 {
					lifecycle = types.ParaParathread
				}
			}
			return lifecycle, true, nil
		}).MinTimes(2)
	sessions := []uint32{4, 4, 5, 6}
	tc.relay.EXPECT().SessionIndex(gomock.Any()).DoAndReturn(func(context.Context) (uint32, error) {
		s := sessions[0]
		if len(sessions) > 1 {
			sessions = sessions[1:]
		}
		return s, nil
	}).MinTimes(3)
	tc.para.EXPECT().Height(gomock.Any()).DoAndReturn(heightSequence(10, 10, 10, 10, 11)).MinTimes(4)

	// when
	v := tc.Run(context.Background())

	// then
	require.Nil(t, v.Failure)
	assert.True(t, v.Passed())
	assert.Equal(t, []string{
		scenario.StepConfigure,
		scenario.StepAssignCore,
		scenario.StepDowngrade,
		scenario.StepAwaitSessions,
		scenario.StepStagnation,
		scenario.StepProgress,
		scenario.StepMonitorOrders,
	}, stepNames(v))
	for _, s := range v.Steps {
		assert.Equal(t, scenario.StepPassed, s.Status, s.Name)
	}
	assert.Equal(t, types.OnDemandActive.String(), v.Lifecycle)
	assert.Equal(t, uint32(2000), v.ChainID)
	assert.Equal(t, 5, v.Orders)
	assert.Empty(t, v.Violations)
	assert.Equal(t, "5000000", v.TotalSpotPrice.String())
	assert.NotEmpty(t, v.RunID)
	require.NotNil(t, v.Steps[4].Observation)
	assert.True(t, v.Steps[4].Observation.Stagnant())
	require.NotNil(t, v.Steps[5].Observation)
	assert.True(t, v.Steps[5].Observation.Progressed())
	assert.Len(t, v.Steps[0].Submissions, 1)
}

func testRunAlternatingOrders(t *testing.T) {
	tc := getTestController(t, getTestConfig(scenario.StepMonitorOrders))

	// given
	tc.events.place("0x10", "A", "B", "C", "A", "B")

	// when
	v := tc.Run(context.Background())

	// then
	assert.True(t, v.Passed())
	assert.Equal(t, 5, v.Orders)
	assert.Empty(t, v.Violations)
}

func testRunRepeatedOrders(t *testing.T) {
	tc := getTestController(t, getTestConfig(scenario.StepMonitorOrders))

	// given
	tc.events.place("0x10", "A", "A", "B")

	// when
	v := tc.Run(context.Background())

	// then
	assert.False(t, v.Passed())
	assert.Nil(t, v.Failure)
	require.Len(t, v.Violations, 1)
	assert.Equal(t, invariants.RepetitionViolation, v.Violations[0].Kind)
	assert.Equal(t, 1, v.Violations[0].Order.Index)
}

func testRunNoGuaranteedChain(t *testing.T) {
	tc := getTestController(t, getTestConfig(scenario.StepAssignCore))

	// setup
	tc.relay.EXPECT().ParaLifecycle(gomock.Any(), uint32(2000)).Return(types.ParaParathread, true, nil).Times(1)
	tc.relaySubmitter.EXPECT().Submit(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	// when
	v := tc.Run(context.Background())

	// then
	require.NotNil(t, v.Failure)
	assert.ErrorIs(t, v.Failure.Err(), scenario.ErrNoGuaranteedChain)
	assert.Equal(t, scenario.StepAssignCore, v.Failure.Step)
	assert.Contains(t, v.Failure.Error, "2000 is Parathread")
	assert.Equal(t, types.Registered.String(), v.Failure.Lifecycle)
}

func testRunNoGuaranteedChainTimesOut(t *testing.T) {
	cfg := getTestConfig(scenario.StepAssignCore)
	cfg.CheckGuaranteedChain = false
	tc := getTestController(t, cfg)

	// setup
	tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, cfg.CoreAssignment.Call(), true, cfg.Timeouts.Submission.Get()).DoAndReturn(
		func(_ context.Context, _ types.Signer, call types.Call, _ bool, timeout time.Duration) (types.SubmissionResult, error) {
			time.Sleep(10 * time.Millisecond)
			return types.NewSubmissionResult("relay", call), &types.TimeoutError{
				Operation: "submission of " + call.Path(),
				Timeout:   timeout,
			}
		}).Times(1)

	// when
	v := tc.Run(context.Background())

	// then
	require.NotNil(t, v.Failure)
	assert.Equal(t, "TimeoutError", v.Failure.Kind)
	assert.Equal(t, scenario.StepAssignCore, v.Failure.Step)
	assert.False(t, v.Passed())
}

func testRunStalledStep(t *testing.T) {
	cfg := getTestConfig(scenario.StepAssignCore, scenario.StepDowngrade)
	cfg.CheckGuaranteedChain = false
	cfg.Timeouts.Step = encoding.Duration{Duration: 50 * time.Millisecond}
	tc := getTestController(t, cfg)

	// setup
	tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, cfg.CoreAssignment.Call(), true, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ types.Signer, call types.Call, _ bool, _ time.Duration) (types.SubmissionResult, error) {
			<-ctx.Done()
			return types.NewSubmissionResult("relay", call), ctx.Err()
		}).Times(1)

	// when
	v := tc.Run(context.Background())

	// then
	require.NotNil(t, v.Failure)
	var timeoutErr *types.TimeoutError
	require.ErrorAs(t, v.Failure.Err(), &timeoutErr)
	assert.Equal(t, "step assign-core", timeoutErr.Operation)
	require.Len(t, v.Steps, 2)
	assert.Equal(t, scenario.StepFailed, v.Steps[0].Status)
	assert.Equal(t, scenario.StepSkipped, v.Steps[1].Status)
}

func testRunFailedSubmission(t *testing.T) {
	cfg := getTestConfig(scenario.StepConfigure, scenario.StepAssignCore, scenario.StepStagnation)
	tc := getTestController(t, cfg)
	rejected := &types.SubmissionError{Chain: "relay", Call: "Sudo.sudo", Reason: "Sudo.Sudid: \"BadOrigin\""}

	// setup
	call := cfg.Configuration.Call()
	tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, call, true, gomock.Any()).DoAndReturn(
		func(context.Context, types.Signer, types.Call, bool, time.Duration) (types.SubmissionResult, error) {
			result := types.NewSubmissionResult("relay", types.Sudo(call))
			_ = result.Fail("0x01", rejected.Reason)
			return result, rejected
		}).Times(1)

	// when
	v := tc.Run(context.Background())

	// then
	require.NotNil(t, v.Failure)
	assert.Equal(t, scenario.StepConfigure, v.Failure.Step)
	assert.Equal(t, "SubmissionError", v.Failure.Kind)
	assert.Equal(t, []string{scenario.StepConfigure, scenario.StepAssignCore, scenario.StepStagnation}, stepNames(v))
	assert.Equal(t, scenario.StepFailed, v.Steps[0].Status)
	require.Len(t, v.Steps[0].Submissions, 1)
	assert.Equal(t, types.SubmissionFailed, v.Steps[0].Submissions[0].State)
	assert.Equal(t, scenario.StepSkipped, v.Steps[1].Status)
	assert.Equal(t, scenario.StepSkipped, v.Steps[2].Status)
}

func testRunStagnationAssertion(t *testing.T) {
	tc := getTestController(t, getTestConfig(scenario.StepStagnation, scenario.StepProgress))

	// setup
	tc.para.EXPECT().Height(gomock.Any()).DoAndReturn(heightSequence(10, 12, 12, 13)).MinTimes(4)

	// when
	v := tc.Run(context.Background())

	// then
	assert.False(t, v.Passed())
	assert.Nil(t, v.Failure)
	require.Len(t, v.Assertions, 1)
	assert.Equal(t, "height 10", v.Assertions[0].Expected)
	assert.Equal(t, "height 12", v.Assertions[0].Observed)
	require.Len(t, v.Steps, 2)
	assert.Equal(t, scenario.StepFailed, v.Steps[0].Status)
	assert.Equal(t, "AssertionError", v.Steps[0].ErrorKind)
	assert.Equal(t, scenario.StepPassed, v.Steps[1].Status)
}

func testRunRegistration(t *testing.T) {
	cfg := getTestConfig(scenario.StepRegister)
	tc := getTestController(t, cfg)
	reserved := types.DecodedEvent{
		Pallet: "Registrar",
		Method: "Reserved",
		Fields: map[string]json.RawMessage{"para_id": json.RawMessage("2001"), "who": json.RawMessage(`"` + alice.Address + `"`)},
	}

	// setup
	register := types.RegisterCall(2001, tc.genesisHead, tc.validationCode)
	gomock.InOrder(
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, types.ReserveCall(), false, gomock.Any()).
			Return(finalized(types.ReserveCall(), reserved), nil),
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, register, false, gomock.Any()).
			Return(finalized(register), nil),
	)
	gomock.InOrder(
		tc.relay.EXPECT().ParaLifecycle(gomock.Any(), uint32(2001)).Return(types.ParaLifecycle(0), false, nil).Times(1),
		tc.relay.EXPECT().ParaLifecycle(gomock.Any(), uint32(2001)).Return(types.ParaOnboarding, true, nil).Times(1),
		tc.relay.EXPECT().ParaLifecycle(gomock.Any(), uint32(2001)).Return(types.ParaParathread, true, nil).Times(1),
	)

	// when
	v := tc.Run(context.Background())

	// then
	require.Nil(t, v.Failure)
	assert.True(t, v.Passed())
	assert.Equal(t, uint32(2001), v.ChainID)
	assert.Equal(t, types.Registered.String(), v.Lifecycle)
	assert.Len(t, v.Steps[0].Submissions, 2)
}

func testRunConfigurePara(t *testing.T) {
	cfg := getTestConfig(scenario.StepConfigurePara)
	cfg.SlotWidth = 4
	cfg.ThresholdParameter = 10
	tc := getTestController(t, cfg)

	// setup
	gomock.InOrder(
		tc.paraSubmitter.EXPECT().Submit(gomock.Any(), alice, types.SetSlotWidthCall(4), true, gomock.Any()).
			Return(finalized(types.SetSlotWidthCall(4)), nil),
		tc.paraSubmitter.EXPECT().Submit(gomock.Any(), alice, types.SetThresholdParameterCall(10), true, gomock.Any()).
			Return(finalized(types.SetThresholdParameterCall(10)), nil),
	)

	// when
	v := tc.Run(context.Background())

	// then
	assert.True(t, v.Passed())
	assert.Len(t, v.Steps[0].Submissions, 2)
}

func testRunBrokenOrderStream(t *testing.T) {
	cfg := getTestConfig(scenario.StepAwaitSessions, scenario.StepMonitorOrders)
	cfg.Timeouts.Sessions = encoding.Duration{Duration: time.Second}
	tc := getTestController(t, cfg)
	lost := &types.ConnectionError{Endpoint: "ws://127.0.0.1:9944", Err: errors.New("EOF")}

	// setup
	tc.relay.EXPECT().SessionIndex(gomock.Any()).Return(uint32(4), nil).AnyTimes()
	tc.events.place("0x10", "A")
	tc.events.end(lost)

	// when
	v := tc.Run(context.Background())

	// then
	require.NotNil(t, v.Failure)
	assert.Equal(t, scenario.StepMonitorOrders, v.Failure.Step)
	assert.Equal(t, "ConnectionError", v.Failure.Kind)
	assert.ErrorIs(t, v.Failure.Err(), lost)
	assert.Equal(t, 1, v.Orders)
}

func testRunTooFewOrders(t *testing.T) {
	cfg := getTestConfig(scenario.StepMonitorOrders)
	cfg.MinOrders = 3
	tc := getTestController(t, cfg)

	// given
	tc.events.place("0x10", "A", "B")

	// when
	v := tc.Run(context.Background())

	// then
	assert.False(t, v.Passed())
	require.Len(t, v.Assertions, 1)
	assert.Equal(t, "at least 3", v.Assertions[0].Expected)
	assert.Equal(t, "2", v.Assertions[0].Observed)
}

func testRunInvalidConfiguration(t *testing.T) {
	tc := getTestController(t, getTestConfig("configure", "teleport"))

	// when
	v := tc.Run(context.Background())

	// then
	require.NotNil(t, v.Failure)
	assert.Equal(t, "setup", v.Failure.Step)
	assert.ErrorIs(t, v.Failure.Err(), scenario.ErrUnknownStep)
	assert.Empty(t, v.Steps)
}

func testRunTeardown(t *testing.T) {
	tc := getTestController(t, getTestConfig(scenario.StepMonitorOrders))
	closed := []string{}
	tc.Own("relay", func() error {
		closed = append(closed, "relay")
		return nil
	})
	tc.Own("para", func() error {
		closed = append(closed, "para")
		return errors.New("connection already closed")
	})

	// when
	v := tc.Run(context.Background())

	// then
	assert.Equal(t, []string{"para", "relay"}, closed)
	require.Len(t, v.Teardown, 1)
	assert.Contains(t, v.Teardown[0], "couldn't close para")
	assert.True(t, v.Passed())
}

func testRunConfigurationIsIdempotent(t *testing.T) {
	cfg := getTestConfig(scenario.StepConfigure)
	sent := [][]types.Call{}

	for i := 0; i < 2; i++ {
		tc := getTestController(t, cfg)
		var calls []types.Call
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, gomock.Any(), true, gomock.Any()).DoAndReturn(
			func(_ context.Context, _ types.Signer, call types.Call, _ bool, _ time.Duration) (types.SubmissionResult, error) {
				calls = append(calls, call)
				return finalized(call), nil
			}).Times(1)

		v := tc.Run(context.Background())
		require.True(t, v.Passed())
		sent = append(sent, calls)
	}

	assert.Empty(t, cmp.Diff(sent[0], sent[1]))
	assert.Equal(t, cfg.Configuration.Call().String(), sent[0][0].String())
}

func testRunCancelledWhileObserving(t *testing.T) {
	cfg := getTestConfig(scenario.StepMonitorOrders)
	cfg.Timeouts.ObserveFor = encoding.Duration{Duration: 10 * time.Second}
	tc := getTestController(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// given
	tc.events.place("0x10", "A", "B")
	time.AfterFunc(50*time.Millisecond, cancel)

	// when
	started := time.Now()
	v := tc.Run(ctx)

	// then
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.False(t, v.Passed())
	require.NotNil(t, v.Failure)
	assert.Equal(t, scenario.StepMonitorOrders, v.Failure.Step)
	assert.ErrorIs(t, v.Failure.Err(), context.Canceled)
	require.Len(t, v.Steps, 1)
	assert.Equal(t, scenario.StepFailed, v.Steps[0].Status)
	assert.Equal(t, 2, v.Orders)
}

func testRunCancelledBetweenSteps(t *testing.T) {
	cfg := getTestConfig(scenario.StepConfigure)
	tc := getTestController(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// setup
	tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, cfg.Configuration.Call(), true, gomock.Any()).DoAndReturn(
		func(_ context.Context, _ types.Signer, call types.Call, _ bool, _ time.Duration) (types.SubmissionResult, error) {
			cancel()
			return finalized(call), nil
		}).Times(1)

	// when
	v := tc.Run(ctx)

	// then
	assert.False(t, v.Passed())
	require.NotNil(t, v.Failure)
	assert.Equal(t, "interrupted", v.Failure.Step)
	assert.ErrorIs(t, v.Failure.Err(), context.Canceled)
	require.Len(t, v.Steps, 1)
	assert.Equal(t, scenario.StepPassed, v.Steps[0].Status)
}

func reservedEvent(chainID string) types.DecodedEvent {
	return types.DecodedEvent{
		Pallet: "Registrar",
		Method: "Reserved",
		Fields: map[string]json.RawMessage{"para_id": json.RawMessage(chainID), "who": json.RawMessage(`"` + alice.Address + `"`)},
	}
}

func testRunMonitorFollowsRegisteredChain(t *testing.T) {
	cfg := getTestConfig(scenario.StepRegister, scenario.StepMonitorOrders)
	tc := getTestController(t, cfg)

	// setup
	register := types.RegisterCall(2001, tc.genesisHead, tc.validationCode)
	gomock.InOrder(
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, types.ReserveCall(), false, gomock.Any()).
			Return(finalized(types.ReserveCall(), reservedEvent("2001")), nil),
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, register, false, gomock.Any()).DoAndReturn(
			func(context.Context, types.Signer, types.Call, bool, time.Duration) (types.SubmissionResult, error) {
				tc.events.placeFor("0x10", "2000", "A")
				tc.events.placeFor("0x11", "2001", "B", "C")
				return finalized(register), nil
			}),
	)
	tc.relay.EXPECT().ParaLifecycle(gomock.Any(), uint32(2001)).Return(types.ParaParathread, true, nil).AnyTimes()

	// when
	v := tc.Run(context.Background())

	// then
	require.Nil(t, v.Failure)
	assert.True(t, v.Passed())
	assert.Equal(t, uint32(2001), v.ChainID)
	assert.Equal(t, 2, v.Orders)
	assert.Equal(t, "2000000", v.TotalSpotPrice.String())
}

func testRunCoreAssignedToOnDemandChain(t *testing.T) {
	cfg := getTestConfig(scenario.StepRegister, scenario.StepAssignCore)
	cfg.GuaranteedChains = []uint32{2000}
	tc := getTestController(t, cfg)

	// setup
	register := types.RegisterCall(2001, tc.genesisHead, tc.validationCode)
	gomock.InOrder(
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, types.ReserveCall(), false, gomock.Any()).
			Return(finalized(types.ReserveCall(), reservedEvent("2001")), nil),
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, register, false, gomock.Any()).
			Return(finalized(register), nil),
		tc.relaySubmitter.EXPECT().Submit(gomock.Any(), alice, cfg.CoreAssignment.Call(), true, gomock.Any()).
			Return(finalized(cfg.CoreAssignment.Call()), nil),
	)
	tc.relay.EXPECT().ParaLifecycle(gomock.Any(), uint32(2000)).Return(types.ParaParachain, true, nil).Times(1)
	tc.relay.EXPECT().ParaLifecycle(gomock.Any(), uint32(2001)).Return(types.ParaParathread, true, nil).MinTimes(2)

	// when
	v := tc.Run(context.Background())

	// then
	require.Nil(t, v.Failure)
	assert.True(t, v.Passed())
	assert.Equal(t, types.Registered.String(), v.Lifecycle)
	require.Len(t, v.Steps, 2)
	assert.Len(t, v.Steps[1].Submissions, 1)
}

func testRunDefaultCoreAssignment(t *testing.T) {
	cfg := scenario.NewDefaultConfig()

	// then
	assert.Equal(t, uint16(1), cfg.CoreAssignment.Core)
	require.NoError(t, cfg.CoreAssignment.Validate())
}
