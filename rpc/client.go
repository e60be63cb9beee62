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

// Package rpc implements a websocket JSON-RPC 2.0 client to a chain node,
// with support for subscriptions.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"code.vegaprotocol.io/ondemand/libs/jsonrpc"
	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/types"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ErrClosed is returned, wrapped in a ConnectionError, once the client has
// been closed by its owner.
var ErrClosed = errors.New("rpc: client has already been closed")

// Client is a websocket JSON-RPC client. Initialise it with Dial, and use
// Call and Subscribe to interact with the node.
type Client struct {
	log          *logging.Logger
	endpoint     string
	writeTimeout time.Duration

	conn    *websocket.Conn
	closed  chan struct{}
	pending chan *jsonrpc.Request

	// mu protects the fields below.
	mu            sync.RWMutex
	connClosed    bool
	err           error
	lastID        uint64
	results       map[uint64]chan *jsonrpc.Response
	subscribing   map[uint64]*Subscription
	subscriptions map[string]*Subscription
}

// Dial establishes the websocket connection to the endpoint. Failed attempts
// are retried according to the configuration.
func Dial(ctx context.Context, log *logging.Logger, endpoint string, cfg Config) (*Client, error) {
	log = log.Named(namedLogger).With(logging.String("endpoint", endpoint))
	log.SetLevel(cfg.Level.Get())

	dialer := &websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout.Get(),
	}

	var (
		conn    *websocket.Conn
		attempt int
	)
	retryPolicy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.DialRetryDelay.Get()), cfg.DialRetries),
		ctx,
	)
	err := backoff.Retry(func() error {
		attempt++
		w, _, err := dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			log.Warn("could not connect to the node",
				logging.Int("attempt", attempt),
				logging.Error(err),
			)
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		conn = w
		return nil
	}, retryPolicy)
	if err != nil {
		return nil, &types.ConnectionError{Endpoint: endpoint, Err: err}
	}

	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1
	}

	c := &Client{
		log:           log,
		endpoint:      endpoint,
		writeTimeout:  cfg.WriteTimeout.Get(),
		conn:          conn,
		closed:        make(chan struct{}),
		pending:       make(chan *jsonrpc.Request, queueSize),
		results:       map[uint64]chan *jsonrpc.Response{},
		subscribing:   map[uint64]*Subscription{},
		subscriptions: map[string]*Subscription{},
	}

	pings := make(chan string, queueSize)
	conn.SetPingHandler(func(m string) error {
		select {
		case pings <- m:
		default:
		}
		return nil
	})

	go c.readLoop()
	go c.writeLoop(pings)

	log.Info("connected to the node", logging.Int("attempts", attempt))
	return c, nil
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// Done is closed once the connection is closed, whatever the reason.
func (c *Client) Done() <-chan struct{} {
	return c.closed
}

// Err returns the reason the connection was closed, nil while it's open.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connClosed {
		return nil
	}
	return c.connectionError()
}

// Close terminates the underlying websocket connection, and every
// subscription with it.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connClosed {
		return nil
	}
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.closeWithError(nil)
}

// Call invokes the method and decodes its result into result, unless it's
// nil.
func (c *Client) Call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	resp, err := c.do(ctx, method, params, nil)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return &types.DecodeError{
			What: fmt.Sprintf("result of %s", method),
			Err:  err,
		}
	}
	return nil
}

// Subscribe invokes the subscription method and returns the subscription
// receiving its notifications. The unsubscribe method is invoked, if set,
// when the subscription is cancelled by its owner.
func (c *Client) Subscribe(ctx context.Context, method, unsubscribeMethod string, params []interface{}) (*Subscription, error) {
	sub := newSubscription(c, method, unsubscribeMethod)
	if _, err := c.do(ctx, method, params, sub); err != nil {
		c.drop(sub)
		sub.terminate(err)
		sub.halt()
		return nil, err
	}

	c.log.Debug("subscribed",
		logging.String("method", method),
		logging.String("subscription", sub.ID()),
	)
	return sub, nil
}

func (c *Client) do(ctx context.Context, method string, params []interface{}, sub *Subscription) (*jsonrpc.Response, error) {
	ch := make(chan *jsonrpc.Response, 1)

	c.mu.Lock()
	if c.connClosed {
		err := c.connectionError()
		c.mu.Unlock()
		return nil, err
	}
	c.lastID++
	id := c.lastID
	req := jsonrpc.NewRequest(id, method, params...)
	if err := req.Check(); err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("rpc: invalid %q request: %w", method, err)
	}
	c.results[id] = ch
	if sub != nil {
		c.subscribing[id] = sub
	}
	c.mu.Unlock()

	// The request is registered before being queued, so the response can
	// never arrive before we wait for it.
	select {
	case c.pending <- req:
	case <-c.closed:
		c.forget(id)
		return nil, c.Err()
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}

	c.log.Debug("request queued",
		logging.String("method", method),
		logging.Uint64("id", id),
	)

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, fmt.Errorf("rpc: got error response from %s call: %w", method, resp.Error)
		}
		return resp, nil
	case <-c.closed:
		c.forget(id)
		return nil, c.Err()
	case <-ctx.Done():
		c.forget(id)
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.results, id)
	delete(c.subscribing, id)
	c.mu.Unlock()
}

// drop unregisters the subscription and returns its raw identifier, empty
// if it was never acknowledged by the node.
func (c *Client) drop(sub *Subscription) json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub.id == "" {
		return nil
	}
	if registered, ok := c.subscriptions[sub.id]; ok && registered == sub {
		delete(c.subscriptions, sub.id)
	}
	return sub.rawID
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connClosed
}

// connectionError must be called with the lock held.
func (c *Client) connectionError() error {
	return &types.ConnectionError{
		Endpoint: c.endpoint,
		Err:      c.err,
	}
}

// closeWithError must be called with the lock held.
func (c *Client) closeWithError(err error) error {
	if c.connClosed {
		return nil
	}
	closeErr := c.conn.Close()
	if err == nil {
		err = ErrClosed
	}
	c.connClosed = true
	c.err = err
	close(c.closed)

	connErr := c.connectionError()
	for id, sub := range c.subscriptions {
		sub.terminate(connErr)
		delete(c.subscriptions, id)
	}
	for id, sub := range c.subscribing {
		sub.terminate(connErr)
		delete(c.subscribing, id)
	}
	return closeErr
}

func (c *Client) handleError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connClosed {
		return
	}
	c.log.Error("connection to the node lost", logging.Error(err))
	_ = c.closeWithError(err)
}

func (c *Client) readLoop() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.handleError(err)
			return
		}
		resp := &jsonrpc.Response{}
		if err := json.Unmarshal(data, resp); err != nil {
			c.handleError(&types.DecodeError{What: "node message", Err: err})
			return
		}
		if resp.IsNotification() {
			c.dispatchNotification(resp)
			continue
		}
		if resp.ID == nil {
			c.log.Warn("ignoring message without identifier", logging.String("message", string(data)))
			continue
		}
		c.dispatchResponse(resp)
	}
}

func (c *Client) dispatchResponse(resp *jsonrpc.Response) {
	id := *resp.ID

	c.mu.Lock()
	ch, awaited := c.results[id]
	delete(c.results, id)
	sub, subscribing := c.subscribing[id]
	delete(c.subscribing, id)
	// The subscription is registered before the next message is read, so
	// no notification can be missed.
	if subscribing && resp.Error == nil {
		sub.rawID = resp.Result
		sub.id = jsonrpc.CanonicalID(resp.Result)
		c.subscriptions[sub.id] = sub
	}
	c.mu.Unlock()

	if !awaited {
		c.log.Debug("received response to a request no longer awaited", logging.Uint64("id", id))
		return
	}
	ch <- resp
}

func (c *Client) dispatchNotification(resp *jsonrpc.Response) {
	id := resp.Params.SubscriptionID()

	c.mu.RLock()
	sub, ok := c.subscriptions[id]
	c.mu.RUnlock()

	if !ok {
		c.log.Debug("received notification for an unknown subscription",
			logging.String("method", resp.Method),
			logging.String("subscription", id),
		)
		return
	}
	sub.push(resp.Params.Result)
}

func (c *Client) writeLoop(pings chan string) {
	for {
		select {
		case m := <-pings:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.handleError(err)
				return
			}
			if err := c.conn.WriteMessage(websocket.PongMessage, []byte(m)); err != nil {
				c.handleError(err)
				return
			}
		case req := <-c.pending:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				c.handleError(err)
				return
			}
			if err := c.conn.WriteJSON(req); err != nil {
				c.handleError(err)
				return
			}
		case <-c.closed:
			return
		}
	}
}
