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

package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// Subscription delivers the notifications of one subscription, in the order
// the node sent them. Notifications are queued without bound so a slow
// consumer never blocks the connection.
//
// C is closed when the subscription ends: after every queued notification
// was delivered if the connection dropped, immediately if the owner
// unsubscribed. Err tells which.
type Subscription struct {
	client            *Client
	method            string
	unsubscribeMethod string

	// Set by the client read loop, under the client lock.
	id    string
	rawID json.RawMessage

	mu    sync.Mutex
	queue []json.RawMessage
	ended bool
	err   error

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	out      chan json.RawMessage
}

func newSubscription(c *Client, method, unsubscribeMethod string) *Subscription {
	s := &Subscription{
		client:            c,
		method:            method,
		unsubscribeMethod: unsubscribeMethod,
		wake:              make(chan struct{}, 1),
		stop:              make(chan struct{}),
		out:               make(chan json.RawMessage),
	}
	go s.pump()
	return s
}

// ID returns the identifier assigned by the node.
func (s *Subscription) ID() string {
	s.client.mu.RLock()
	defer s.client.mu.RUnlock()
	return s.id
}

func (s *Subscription) Method() string {
	return s.method
}

// C returns the notifications channel.
func (s *Subscription) C() <-chan json.RawMessage {
	return s.out
}

// Err returns the reason the subscription ended, nil if it's still running
// or if it was cancelled by its owner.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe stops the delivery of notifications, and discards the ones
// still queued. It's safe to call more than once.
func (s *Subscription) Unsubscribe(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		s.terminate(nil)
		close(s.stop)

		rawID := s.client.drop(s)
		if rawID == nil || s.unsubscribeMethod == "" || s.client.isClosed() {
			return
		}
		err = s.client.Call(ctx, s.unsubscribeMethod, []interface{}{rawID}, nil)
		if errors.Is(err, ErrClosed) {
			err = nil
		}
	})
	return err
}

func (s *Subscription) halt() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
}

func (s *Subscription) push(msg json.RawMessage) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, msg)
	s.mu.Unlock()
	s.signal()
}

// terminate ends the subscription. Only the first reason is kept.
func (s *Subscription) terminate(err error) {
	s.mu.Lock()
	if !s.ended {
		s.ended = true
		s.err = err
	}
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- msg:
			case <-s.stop:
				return
			}
			continue
		}
		ended := s.ended
		s.mu.Unlock()

		if ended {
			return
		}
		select {
		case <-s.wake:
		case <-s.stop:
			return
		}
	}
}
