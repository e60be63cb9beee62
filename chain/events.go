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

package chain

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/rpc"
	"code.vegaprotocol.io/ondemand/types"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// storageChangeSet is the notification payload of `state_subscribeStorage`.
type storageChangeSet struct {
	Block   string               `json:"block"`
	Changes [][]*json.RawMessage `json:"changes"`
}

type eventStream struct {
	log       *logging.Logger
	codec     Codec
	sub       *rpc.Subscription
	predicate types.EventPredicate

	ctx     context.Context
	cancel  context.CancelFunc
	batches chan types.EventBatch
	once    sync.Once

	mu  sync.Mutex
	err error
}

func streamEvents(ctx context.Context, log *logging.Logger, codec Codec, sub *rpc.Subscription, predicate types.EventPredicate) *eventStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		log:       log,
		codec:     codec,
		sub:       sub,
		predicate: predicate,
		ctx:       ctx,
		cancel:    cancel,
		batches:   make(chan types.EventBatch),
	}
	go s.run()
	return s
}

func (s *eventStream) Batches() <-chan types.EventBatch {
	return s.batches
}

func (s *eventStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *eventStream) Close() {
	s.cancel()
}

func (s *eventStream) run() {
	defer close(s.batches)
	defer s.unsubscribe()

	for {
		select {
		case <-s.ctx.Done():
			return
		case raw, ok := <-s.sub.C():
			if !ok {
				s.setErr(s.sub.Err())
				return
			}
			batch, err := s.decode(raw)
			if err != nil {
				if s.ctx.Err() == nil {
					s.setErr(err)
				}
				return
			}
			if len(batch.Events) == 0 {
				continue
			}
			select {
			case s.batches <- batch:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func (s *eventStream) decode(raw json.RawMessage) (types.EventBatch, error) {
	changes := storageChangeSet{}
	if err := json.Unmarshal(raw, &changes); err != nil {
		return types.EventBatch{}, &types.DecodeError{What: "storage change set", Err: err}
	}

	batch := types.EventBatch{
		Block:  changes.Block,
		Events: []types.DecodedEvent{},
	}
	for _, change := range changes.Changes {
		if len(change) != 2 || change[0] == nil || change[1] == nil {
			continue
		}
		var key, value string
		if err := json.Unmarshal(*change[0], &key); err != nil {
			return types.EventBatch{}, &types.DecodeError{What: "storage change key", Err: err}
		}
		if !strings.EqualFold(key, SystemEventsKey) {
			continue
		}
		if err := json.Unmarshal(*change[1], &value); err != nil {
			return types.EventBatch{}, &types.DecodeError{What: "storage change value", Err: err}
		}
		if _, err := hexutil.Decode(value); err != nil {
			return types.EventBatch{}, &types.DecodeError{What: "events of block " + changes.Block, Err: err}
		}

		events, err := s.codec.DecodeEvents(s.ctx, value)
		if err != nil {
			return types.EventBatch{}, err
		}
		for _, e := range events {
			if s.predicate == nil || s.predicate(e) {
				batch.Events = append(batch.Events, e)
			}
		}
	}
	return batch, nil
}

func (s *eventStream) unsubscribe() {
	s.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		defer cancel()
		if err := s.sub.Unsubscribe(ctx); err != nil {
			s.log.Debug("could not stop the event subscription", logging.Error(err))
		}
	})
}

func (s *eventStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}
