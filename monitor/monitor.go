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

package monitor

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/metrics"
	"code.vegaprotocol.io/ondemand/types"
	"code.vegaprotocol.io/ondemand/types/num"
)

//go:generate go run github.com/golang/mock/mockgen -destination mocks/event_source_mock.go -package mocks code.vegaprotocol.io/ondemand/monitor EventSource

// EventSource is the chain session the orders are read from.
type EventSource interface {
	Name() string
	SubscribeEvents(ctx context.Context, predicate types.EventPredicate) (types.EventStream, error)
}

// Monitor turns the event stream of a chain into a sequence of placed
// orders.
type Monitor struct {
	log    *logging.Logger
	cfg    Config
	source EventSource
}

func New(log *logging.Logger, cfg Config, source EventSource) *Monitor {
	log = log.Named(namedLogger).With(logging.Chain(source.Name()))
	log.SetLevel(cfg.Level.Get())
	return &Monitor{
		log:    log,
		cfg:    cfg,
		source: source,
	}
}

// Start subscribes to the order events. The returned stream delivers orders
// in arrival order until ctx is cancelled or the subscription fails.
func (m *Monitor) Start(ctx context.Context) (*Stream, error) {
	events, err := m.source.SubscribeEvents(ctx, types.ByMethod(m.cfg.Method))
	if err != nil {
		return nil, fmt.Errorf("could not subscribe to %s events: %w", m.cfg.Method, err)
	}

	size := m.cfg.BufferSize
	if size < 0 {
		size = 0
	}
	s := &Stream{
		log:    m.log,
		chain:  m.source.Name(),
		events: events,
		orders: make(chan types.OrderPlacedEvent, size),
		done:   make(chan struct{}),
	}
	s.filter.Store(m.cfg.ChainID)
	go s.run(ctx)

	m.log.Info("monitoring orders",
		logging.String("method", m.cfg.Method),
		logging.Uint32("chain-id", m.cfg.ChainID),
	)
	return s, nil
}

// Stream is the buffered hand-off between the monitor and its consumer.
type Stream struct {
	log    *logging.Logger
	chain  string
	filter atomic.Uint32
	events types.EventStream
	orders chan types.OrderPlacedEvent
	done   chan struct{}

	mu    sync.Mutex
	err   error
	count int
}

// C delivers the orders. It is closed when the stream ends.
func (s *Stream) C() <-chan types.OrderPlacedEvent {
	return s.orders
}

// Done is closed once the stream ended.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err reports why the stream ended, nil if it was cancelled.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Follow moves the filter to another chain, a stream monitoring every chain
// keeps doing so.
func (s *Stream) Follow(chainID uint32) {
	for {
		current := s.filter.Load()
		if current == 0 || current == chainID {
			return
		}
		if s.filter.CompareAndSwap(current, chainID) {
			s.log.Info("following another chain",
				logging.Uint32("from", current),
				logging.Uint32("to", chainID),
			)
			return
		}
	}
}

// Count returns how many orders were delivered so far.
func (s *Stream) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

func (s *Stream) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.orders)
	defer s.events.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-s.events.Batches():
			if !ok {
				if err := s.events.Err(); err != nil {
					s.setErr(err)
				}
				return
			}
			for _, e := range batch.Events {
				order, err := decodeOrder(batch.Block, e)
				if err != nil {
					s.setErr(err)
					return
				}
				if filter := s.filter.Load(); filter != 0 && order.ChainID != filter {
					continue
				}
				if !s.deliver(ctx, order) {
					return
				}
			}
		}
	}
}

func (s *Stream) deliver(ctx context.Context, order types.OrderPlacedEvent) bool {
	s.mu.Lock()
	order.Index = s.count
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return false
	case s.orders <- order:
	}

	s.mu.Lock()
	s.count++
	s.mu.Unlock()

	metrics.OrderCounterInc(s.chain)
	s.log.Debug("order placed",
		logging.Int("index", order.Index),
		logging.String("block", order.Block),
		logging.Uint32("chain-id", order.ChainID),
		logging.String("placer", order.Placer),
	)
	return true
}

func (s *Stream) setErr(err error) {
	s.log.Error("order stream ended", logging.Error(err))
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func decodeOrder(block string, e types.DecodedEvent) (types.OrderPlacedEvent, error) {
	var (
		chainID   num.Uint
		placer    string
		spotPrice num.Uint
	)
	if err := e.Field("para_id", &chainID); err != nil {
		return types.OrderPlacedEvent{}, err
	}
	if chainID.GT(num.NewUint(math.MaxUint32)) {
		return types.OrderPlacedEvent{}, &types.DecodeError{
			What: fmt.Sprintf("%s field \"para_id\"", e.Path()),
			Err:  fmt.Errorf("%s does not fit a chain id", chainID.String()),
		}
	}
	if err := e.Field("ordered_by", &placer); err != nil {
		return types.OrderPlacedEvent{}, err
	}
	if placer == "" {
		return types.OrderPlacedEvent{}, &types.DecodeError{
			What: fmt.Sprintf("%s field \"ordered_by\"", e.Path()),
			Err:  fmt.Errorf("placer is empty"),
		}
	}
	order := types.OrderPlacedEvent{
		Block:   block,
		ChainID: uint32(chainID.Uint64()),
		Placer:  placer,
	}
	// Older runtimes do not report the price.
	if _, ok := e.Fields["spot_price"]; ok {
		if err := e.Field("spot_price", &spotPrice); err != nil {
			return types.OrderPlacedEvent{}, err
		}
		order.SpotPrice = &spotPrice
	}
	return order, nil
}
