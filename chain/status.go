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
	"fmt"
	"sync"
	"time"

	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/rpc"
	"code.vegaprotocol.io/ondemand/types"
)

const unsubscribeTimeout = 5 * time.Second

// ParseExtrinsicStatus decodes a status update of a watched extrinsic. A
// status is either a bare string, such as "ready", or an object with a
// single key, such as {"inBlock": "0x..."}.
func ParseExtrinsicStatus(raw json.RawMessage) (types.ExtrinsicStatus, error) {
	var kind string
	if err := json.Unmarshal(raw, &kind); err == nil {
		switch s := types.ExtrinsicStatusKind(kind); s {
		case types.StatusFuture, types.StatusReady, types.StatusDropped, types.StatusInvalid:
			return types.ExtrinsicStatus{Kind: s}, nil
		default:
			return types.ExtrinsicStatus{}, unknownStatus(raw)
		}
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) != 1 {
		return types.ExtrinsicStatus{}, unknownStatus(raw)
	}
	for key, value := range obj {
		s := types.ExtrinsicStatusKind(key)
		switch s {
		case types.StatusBroadcast:
			return types.ExtrinsicStatus{Kind: s}, nil
		case types.StatusInBlock, types.StatusRetracted, types.StatusFinalityTimeout, types.StatusFinalized, types.StatusUsurped:
			var hash string
			if err := json.Unmarshal(value, &hash); err != nil {
				return types.ExtrinsicStatus{}, &types.DecodeError{
					What: fmt.Sprintf("extrinsic status %q", key),
					Err:  err,
				}
			}
			return types.ExtrinsicStatus{Kind: s, Block: hash}, nil
		}
	}
	return types.ExtrinsicStatus{}, unknownStatus(raw)
}

func unknownStatus(raw json.RawMessage) error {
	return &types.DecodeError{
		What: "extrinsic status",
		Err:  fmt.Errorf("unknown status %s", string(raw)),
	}
}

type extrinsicWatch struct {
	log     *logging.Logger
	sub     *rpc.Subscription
	updates chan types.ExtrinsicStatus
	stop    chan struct{}
	once    sync.Once

	mu  sync.Mutex
	err error
}

func watchExtrinsic(log *logging.Logger, sub *rpc.Subscription) *extrinsicWatch {
	w := &extrinsicWatch{
		log:     log,
		sub:     sub,
		updates: make(chan types.ExtrinsicStatus),
		stop:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *extrinsicWatch) Updates() <-chan types.ExtrinsicStatus {
	return w.updates
}

func (w *extrinsicWatch) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *extrinsicWatch) Close() {
	w.once.Do(func() {
		close(w.stop)
		ctx, cancel := context.WithTimeout(context.Background(), unsubscribeTimeout)
		defer cancel()
		if err := w.sub.Unsubscribe(ctx); err != nil {
			w.log.Debug("could not stop watching the extrinsic", logging.Error(err))
		}
	})
}

func (w *extrinsicWatch) run() {
	defer close(w.updates)
	for raw := range w.sub.C() {
		status, err := ParseExtrinsicStatus(raw)
		if err != nil {
			w.setErr(err)
			return
		}
		select {
		case w.updates <- status:
		case <-w.stop:
			return
		}
	}
	w.setErr(w.sub.Err())
}

func (w *extrinsicWatch) setErr(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
