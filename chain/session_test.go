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

package chain_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"code.vegaprotocol.io/ondemand/chain"
	"code.vegaprotocol.io/ondemand/chain/mocks"
	"code.vegaprotocol.io/ondemand/libs/jsonrpc"
	"code.vegaprotocol.io/ondemand/libs/test"
	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/types"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSession struct {
	*chain.Session
	node  *test.Node
	codec *mocks.MockCodec
}

func getTestSession(t *testing.T) *testSession {
	t.Helper()
	ctrl := gomock.NewController(t)
	node := test.NewNode(t)
	codec := mocks.NewMockCodec(ctrl)

	cfg := chain.NewDefaultConfig()
	cfg.Endpoint = node.URL()
	session, err := chain.Connect(context.Background(), logging.NewTestLogger(), "relay", cfg, codec)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = session.Close()
	})

	return &testSession{
		Session: session,
		node:    node,
		codec:   codec,
	}
}

// storage answers `state_getStorage` from the given key/value pairs.
func storage(values map[string]string) test.Handler {
	return func(params []json.RawMessage) (interface{}, *jsonrpc.ErrorDetails) {
		var key string
		if len(params) == 0 || json.Unmarshal(params[0], &key) != nil {
			return nil, &jsonrpc.ErrorDetails{Code: -32602, Message: "Invalid params"}
		}
		value, ok := values[key]
		if !ok {
			return nil, nil
		}
		return value, nil
	}
}

func applyExtrinsic(index uint32) types.Phase {
	return types.Phase{ApplyExtrinsic: &index}
}

func TestSessionQueries(t *testing.T) {
	t.Run("Height is the number of the best block", testSessionHeight)
	t.Run("Absent storage item is nil", testSessionAbsentStorageItem)
	t.Run("Session index is decoded", testSessionIndex)
	t.Run("Chain lifecycle is decoded", testSessionParaLifecycle)
	t.Run("Node errors are returned", testSessionNodeErrors)
}

func TestSessionExtrinsics(t *testing.T) {
	t.Run("Submitting streams the extrinsic status", testSessionSubmitAndWatch)
	t.Run("Events of an extrinsic are selected by phase", testSessionExtrinsicEvents)
	t.Run("Events of an extrinsic missing from the block fail", testSessionExtrinsicEventsNotInBlock)
	t.Run("Signing goes through the codec", testSessionSign)
	t.Run("Events of a block are decoded once", testSessionEventsDecodedOnce)
}

func TestSessionEvents(t *testing.T) {
	t.Run("Matching events are streamed block by block", testSessionEventsStreamed)
	t.Run("Cancelling the context ends the stream cleanly", testSessionEventsCancelled)
	t.Run("Dropped connection ends the stream with an error", testSessionEventsDropped)
	t.Run("Undecodable events end the stream with an error", testSessionEventsUndecodable)
}

func testSessionHeight(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.HandleResult("chain_getHeader", map[string]string{
		"parentHash": "0x00",
		"number":     "0x1a",
	})

	// when
	height, err := s.Height(context.Background())

	// then
	require.NoError(t, err)
	assert.Equal(t, uint64(26), height)
}

func testSessionAbsentStorageItem(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.Handle("state_getStorage", storage(map[string]string{}))

	// when
	value, err := s.Query(context.Background(), chain.ActiveConfigKey, "")

	// then
	require.NoError(t, err)
	assert.Nil(t, value)
}

func testSessionIndex(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.Handle("state_getStorage", storage(map[string]string{
		chain.SessionCurrentIndexKey: "0x05000000",
	}))

	// when
	index, err := s.SessionIndex(context.Background())

	// then
	require.NoError(t, err)
	assert.Equal(t, uint32(5), index)
}

func testSessionParaLifecycle(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.Handle("state_getStorage", storage(map[string]string{
		chain.ParaLifecycleKey(2000): "0x02",
		chain.ParaLifecycleKey(2001): "0x09",
	}))
	ctx := context.Background()

	// when
	lifecycle, found, err := s.ParaLifecycle(ctx, 2000)

	// then
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, types.ParaParachain, lifecycle)

	// when
	_, found, err = s.ParaLifecycle(ctx, 3000)

	// then
	require.NoError(t, err)
	assert.False(t, found)

	// when
	_, _, err = s.ParaLifecycle(ctx, 2001)

	// then
	var decodeErr *types.DecodeError
	assert.ErrorAs(t, err, &decodeErr)
}

func testSessionNodeErrors(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.HandleError("chain_getHeader", -32000, "Client error")

	// when
	_, err := s.Height(context.Background())

	// then
	var details *jsonrpc.ErrorDetails
	require.ErrorAs(t, err, &details)
	assert.Contains(t, err.Error(), "relay")
	assert.False(t, types.IsFatal(err))
}

func testSessionSubmitAndWatch(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.HandleResult("author_submitAndWatchExtrinsic", "w-1")
	s.node.HandleResult("author_unwatchExtrinsic", true)

	// when
	stream, err := s.SubmitAndWatch(context.Background(), "0xaa")
	require.NoError(t, err)
	defer stream.Close()
	s.node.Notify("author_extrinsicUpdate", "w-1", "ready")
	s.node.Notify("author_extrinsicUpdate", "w-1", map[string]string{"inBlock": "0x01"})
	s.node.Notify("author_extrinsicUpdate", "w-1", map[string]string{"finalized": "0x01"})

	// then
	expected := []types.ExtrinsicStatus{
		{Kind: types.StatusReady},
		{Kind: types.StatusInBlock, Block: "0x01"},
		{Kind: types.StatusFinalized, Block: "0x01"},
	}
	for _, e := range expected {
		select {
		case status := <-stream.Updates():
			assert.Equal(t, e, status)
		case <-time.After(5 * time.Second):
			t.Fatal("no status received")
		}
	}
	requests := s.node.Requests("author_submitAndWatchExtrinsic")
	require.Len(t, requests, 1)
	assert.JSONEq(t, `"0xaa"`, string(requests[0].Params[0]))
}

func testSessionExtrinsicEvents(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.HandleResult("chain_getBlock", map[string]interface{}{
		"block": map[string]interface{}{
			"header":     map[string]string{"number": "0x2"},
			"extrinsics": []string{"0xaa", "0xBB"},
		},
	})
	s.node.Handle("state_getStorage", storage(map[string]string{
		chain.SystemEventsKey: "0x1234",
	}))
	s.codec.EXPECT().DecodeEvents(gomock.Any(), "0x1234").Times(1).Return([]types.DecodedEvent{
		{Pallet: "ParaInherent", Method: "Enter", Phase: applyExtrinsic(0)},
		{Pallet: "Registrar", Method: "Reserved", Phase: applyExtrinsic(1)},
		{Pallet: "System", Method: "ExtrinsicSuccess", Phase: applyExtrinsic(1)},
		{Pallet: "Session", Method: "NewSession", Phase: types.Phase{Finalization: true}},
	}, nil)

	// when
	events, err := s.ExtrinsicEvents(context.Background(), "0x02", "0xbb")

	// then
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Registrar.Reserved", events[0].Path())
	assert.Equal(t, "System.ExtrinsicSuccess", events[1].Path())
}

func testSessionExtrinsicEventsNotInBlock(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.HandleResult("chain_getBlock", map[string]interface{}{
		"block": map[string]interface{}{
			"header":     map[string]string{"number": "0x2"},
			"extrinsics": []string{"0xaa"},
		},
	})

	// when
	events, err := s.ExtrinsicEvents(context.Background(), "0x02", "0xbb")

	// then
	require.ErrorIs(t, err, chain.ErrExtrinsicNotInBlock)
	assert.Nil(t, events)
}

func testSessionSign(t *testing.T) {
	// given
	s := getTestSession(t)
	signer := types.Signer{URI: "//Alice"}
	call := types.ReserveCall()
	s.codec.EXPECT().Sign(gomock.Any(), signer, call).Times(1).Return("0xsigned", nil)

	// when
	extrinsic, err := s.Sign(context.Background(), signer, call)

	// then
	require.NoError(t, err)
	assert.Equal(t, "0xsigned", extrinsic)
}

func testSessionEventsDecodedOnce(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.Handle("state_getStorage", storage(map[string]string{
		chain.SystemEventsKey: "0x1234",
	}))
	s.codec.EXPECT().DecodeEvents(gomock.Any(), "0x1234").Times(1).Return([]types.DecodedEvent{
		{Pallet: "System", Method: "ExtrinsicSuccess", Phase: applyExtrinsic(0)},
	}, nil)

	// when
	first, err := s.EventsAt(context.Background(), "0xAB")
	require.NoError(t, err)
	second, err := s.EventsAt(context.Background(), "0xab")
	require.NoError(t, err)

	// then
	assert.Equal(t, first, second)
	assert.Len(t, s.node.Requests("state_getStorage"), 1)
}

func testSessionEventsStreamed(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.HandleResult("state_subscribeStorage", "s-1")
	s.node.HandleResult("state_unsubscribeStorage", true)
	s.codec.EXPECT().DecodeEvents(gomock.Any(), "0x0102").Times(1).Return([]types.DecodedEvent{
		{Pallet: "System", Method: "ExtrinsicSuccess"},
		{Pallet: "OnDemandAssignmentProvider", Method: "OnDemandOrderPlaced"},
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// when
	stream, err := s.SubscribeEvents(ctx, types.ByMethod("OnDemandOrderPlaced"))
	require.NoError(t, err)
	s.node.Notify("state_storage", "s-1", map[string]interface{}{
		"block":   "0xb0",
		"changes": [][]interface{}{{chain.SystemEventsKey, nil}},
	})
	s.node.Notify("state_storage", "s-1", map[string]interface{}{
		"block":   "0xb1",
		"changes": [][]interface{}{{chain.SystemEventsKey, "0x0102"}},
	})

	// then
	select {
	case batch := <-stream.Batches():
		assert.Equal(t, "0xb1", batch.Block)
		require.Len(t, batch.Events, 1)
		assert.Equal(t, "OnDemandOrderPlaced", batch.Events[0].Method)
	case <-time.After(5 * time.Second):
		t.Fatal("no batch received")
	}
	requests := s.node.Requests("state_subscribeStorage")
	require.Len(t, requests, 1)
	assert.JSONEq(t, `["`+chain.SystemEventsKey+`"]`, string(requests[0].Params[0]))
}

func testSessionEventsCancelled(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.HandleResult("state_subscribeStorage", "s-1")
	s.node.HandleResult("state_unsubscribeStorage", true)
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := s.SubscribeEvents(ctx, nil)
	require.NoError(t, err)

	// when
	cancel()

	// then
	drain(t, stream)
	assert.NoError(t, stream.Err())
	assert.Eventually(t, func() bool {
		return len(s.node.Requests("state_unsubscribeStorage")) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func testSessionEventsDropped(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.HandleResult("state_subscribeStorage", "s-1")
	stream, err := s.SubscribeEvents(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Close()

	// when
	s.node.DropConnections()

	// then
	drain(t, stream)
	var connErr *types.ConnectionError
	assert.ErrorAs(t, stream.Err(), &connErr)
}

func testSessionEventsUndecodable(t *testing.T) {
	// given
	s := getTestSession(t)
	s.node.HandleResult("state_subscribeStorage", "s-1")
	s.node.HandleResult("state_unsubscribeStorage", true)
	stream, err := s.SubscribeEvents(context.Background(), nil)
	require.NoError(t, err)
	defer stream.Close()

	// when
	s.node.Notify("state_storage", "s-1", map[string]interface{}{
		"block":   "0xb1",
		"changes": [][]interface{}{{chain.SystemEventsKey, "not hex"}},
	})

	// then
	drain(t, stream)
	var decodeErr *types.DecodeError
	assert.ErrorAs(t, stream.Err(), &decodeErr)
}

func drain(t *testing.T, stream types.EventStream) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case _, ok := <-stream.Batches():
			if !ok {
				return
			}
		case <-timeout:
			t.Fatal("stream did not end")
		}
	}
}
