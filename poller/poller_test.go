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

package poller_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"code.vegaprotocol.io/ondemand/config/encoding"
	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/poller"
	"code.vegaprotocol.io/ondemand/poller/mocks"
	"code.vegaprotocol.io/ondemand/types"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPoller struct {
	*poller.Poller
	heights  *mocks.MockHeightSource
	sessions *mocks.MockSessionSource
}

func getTestPoller(t *testing.T) *testPoller {
	t.Helper()
	ctrl := gomock.NewController(t)
	heights := mocks.NewMockHeightSource(ctrl)
	heights.EXPECT().Name().Return("para").AnyTimes()
	sessions := mocks.NewMockSessionSource(ctrl)
	sessions.EXPECT().Name().Return("relay").AnyTimes()

	cfg := poller.NewDefaultConfig()
	cfg.Interval = encoding.Duration{Duration: 5 * time.Millisecond}
	return &testPoller{
		Poller:   poller.New(logging.NewTestLogger(), cfg),
		heights:  heights,
		sessions: sessions,
	}
}

// heightSequence returns the heights in order, then repeats the last one.
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

func TestWaitForStagnation(t *testing.T) {
	t.Run("Idle chain is stagnant", testStagnationIdleChain)
	t.Run("Growing chain is not stagnant", testStagnationGrowingChain)
	t.Run("Source failure is returned", testStagnationSourceFailure)
	t.Run("Cancellation interrupts the window", testStagnationCancelled)
}

func testStagnationIdleChain(t *testing.T) {
	tp := getTestPoller(t)

	// setup
	tp.heights.EXPECT().Height(gomock.Any()).Return(uint64(42), nil).Times(2)

	// when
	obs, err := tp.WaitForStagnation(context.Background(), tp.heights, 20*time.Millisecond)

	// then
	require.NoError(t, err)
	assert.True(t, obs.Stagnant())
	assert.False(t, obs.Progressed())
	assert.Equal(t, "para", obs.Chain)
	assert.Equal(t, 2, obs.Samples)
	assert.GreaterOrEqual(t, obs.EndedAt.Sub(obs.StartedAt), 20*time.Millisecond)
}

func testStagnationGrowingChain(t *testing.T) {
	tp := getTestPoller(t)

	// setup
	tp.heights.EXPECT().Height(gomock.Any()).DoAndReturn(heightSequence(42, 44)).Times(2)

	// when
	obs, err := tp.WaitForStagnation(context.Background(), tp.heights, 10*time.Millisecond)

	// then
	require.NoError(t, err)
	assert.False(t, obs.Stagnant())
	assert.Equal(t, uint64(42), obs.Start)
	assert.Equal(t, uint64(44), obs.End)
}

func testStagnationSourceFailure(t *testing.T) {
	tp := getTestPoller(t)
	lost := &types.ConnectionError{Endpoint: "ws://127.0.0.1:9988", Err: errors.New("EOF")}

	// setup
	tp.heights.EXPECT().Height(gomock.Any()).Return(uint64(0), lost).Times(1)

	// when
	_, err := tp.WaitForStagnation(context.Background(), tp.heights, time.Millisecond)

	// then
	assert.ErrorIs(t, err, lost)
}

func testStagnationCancelled(t *testing.T) {
	tp := getTestPoller(t)
	ctx, cancel := context.WithCancel(context.Background())

	// setup
	tp.heights.EXPECT().Height(gomock.Any()).DoAndReturn(func(context.Context) (uint64, error) {
		cancel()
		return 42, nil
	}).Times(1)

	// when
	_, err := tp.WaitForStagnation(ctx, tp.heights, time.Minute)

	// then
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWaitForProgress(t *testing.T) {
	t.Run("Growing chain progresses", testProgressGrowingChain)
	t.Run("Idle chain times out", testProgressIdleChain)
	t.Run("Minimum duration is honoured", testProgressMinDuration)
}

func testProgressGrowingChain(t *testing.T) {
	tp := getTestPoller(t)

	// setup
	tp.heights.EXPECT().Height(gomock.Any()).DoAndReturn(heightSequence(10, 10, 10, 11)).MinTimes(4)

	// when
	obs, err := tp.WaitForProgress(context.Background(), tp.heights, 0, time.Second)

	// then
	require.NoError(t, err)
	assert.True(t, obs.Progressed())
	assert.Equal(t, uint64(10), obs.Start)
	assert.Equal(t, uint64(11), obs.End)
	assert.Equal(t, 4, obs.Samples)
}

func testProgressIdleChain(t *testing.T) {
	tp := getTestPoller(t)

	// setup
	tp.heights.EXPECT().Height(gomock.Any()).Return(uint64(10), nil).MinTimes(2)

	// when
	obs, err := tp.WaitForProgress(context.Background(), tp.heights, 5*time.Millisecond, 50*time.Millisecond)

	// then
	var timeoutErr *types.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "block production on para", timeoutErr.Operation)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
	assert.Contains(t, timeoutErr.LastObserved, "para height 10 -> 10")
	assert.True(t, obs.Stagnant())
}

func testProgressMinDuration(t *testing.T) {
	tp := getTestPoller(t)
	started := time.Now()

	// setup
	tp.heights.EXPECT().Height(gomock.Any()).DoAndReturn(heightSequence(10, 12)).Times(2)

	// when
	obs, err := tp.WaitForProgress(context.Background(), tp.heights, 30*time.Millisecond, time.Second)

	// then
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(started), 30*time.Millisecond)
	assert.Equal(t, uint64(12), obs.End)
}

func TestWaitFor(t *testing.T) {
	t.Run("Condition met after a few polls", testWaitForMet)
	t.Run("Condition never met times out", testWaitForTimeout)
	t.Run("Condition failure ends the wait", testWaitForFailure)
	t.Run("Session rotations are awaited", testWaitForSessions)
	t.Run("Session rotations time out", testWaitForSessionsTimeout)
}

func testWaitForMet(t *testing.T) {
	tp := getTestPoller(t)
	polls := 0

	// when
	err := tp.WaitFor(context.Background(), "three polls", time.Second, func(context.Context) (string, bool, error) {
		polls++
		return "", polls == 3, nil
	})

	// then
	require.NoError(t, err)
	assert.Equal(t, 3, polls)
}

func testWaitForTimeout(t *testing.T) {
	tp := getTestPoller(t)

	// when
	err := tp.WaitFor(context.Background(), "forever", 30*time.Millisecond, func(context.Context) (string, bool, error) {
		return "still nothing", false, nil
	})

	// then
	var timeoutErr *types.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "forever", timeoutErr.Operation)
	assert.Equal(t, "still nothing", timeoutErr.LastObserved)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func testWaitForFailure(t *testing.T) {
	tp := getTestPoller(t)
	boom := errors.New("boom")
	polls := 0

	// when
	err := tp.WaitFor(context.Background(), "failing", time.Second, func(context.Context) (string, bool, error) {
		polls++
		return "", false, boom
	})

	// then
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, polls)
}

func testWaitForSessions(t *testing.T) {
	tp := getTestPoller(t)
	indexes := []uint32{7, 7, 8, 9}
	i := 0

	// setup
	tp.sessions.EXPECT().SessionIndex(gomock.Any()).DoAndReturn(func(context.Context) (uint32, error) {
		index := indexes[i]
		if i < len(indexes)-1 {
			i++
		}
		return index, nil
	}).Times(4)

	// when
	index, err := tp.WaitForSessions(context.Background(), tp.sessions, 2, time.Second)

	// then
	require.NoError(t, err)
	assert.Equal(t, uint32(9), index)
}

func testWaitForSessionsTimeout(t *testing.T) {
	tp := getTestPoller(t)

	// setup
	tp.sessions.EXPECT().SessionIndex(gomock.Any()).Return(uint32(7), nil).MinTimes(2)

	// when
	index, err := tp.WaitForSessions(context.Background(), tp.sessions, 1, 30*time.Millisecond)

	// then
	var timeoutErr *types.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "session 7 (waiting for 8)", timeoutErr.LastObserved)
	assert.Equal(t, uint32(7), index)
}
