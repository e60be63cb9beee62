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

package test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"code.vegaprotocol.io/ondemand/libs/jsonrpc"

	"github.com/gorilla/websocket"
)

// Handler answers a request with a result or an error.
type Handler func(params []json.RawMessage) (interface{}, *jsonrpc.ErrorDetails)

// ReceivedRequest is a request as decoded by the Node.
type ReceivedRequest struct {
	ID     uint64            `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

// Node is an in-process websocket JSON-RPC node for tests.
type Node struct {
	t        *testing.T
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]Handler
	conns    []*nodeConn
	requests []ReceivedRequest
}

type nodeConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *nodeConn) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func NewNode(t *testing.T) *Node {
	t.Helper()
	n := &Node{
		t:        t,
		handlers: map[string]Handler{},
	}
	n.server = httptest.NewServer(http.HandlerFunc(n.serve))
	t.Cleanup(n.server.Close)
	return n
}

// URL returns the websocket address of the node.
func (n *Node) URL() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

func (n *Node) Handle(method string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// HandleResult answers every request to the method with the same result.
func (n *Node) HandleResult(method string, result interface{}) {
	n.Handle(method, func([]json.RawMessage) (interface{}, *jsonrpc.ErrorDetails) {
		return result, nil
	})
}

// HandleError answers every request to the method with the same error.
func (n *Node) HandleError(method string, code int, message string) {
	n.Handle(method, func([]json.RawMessage) (interface{}, *jsonrpc.ErrorDetails) {
		return nil, &jsonrpc.ErrorDetails{Code: code, Message: message}
	})
}

// Silence accepts requests to the method but never answers.
func (n *Node) Silence(method string) {
	n.Handle(method, nil)
}

// Notify sends a subscription notification on every open connection.
func (n *Node) Notify(method string, subscription interface{}, result interface{}) {
	n.t.Helper()
	sub, err := json.Marshal(subscription)
	if err != nil {
		n.t.Fatalf("could not encode subscription identifier: %v", err)
	}
	res, err := json.Marshal(result)
	if err != nil {
		n.t.Fatalf("could not encode notification: %v", err)
	}
	msg := jsonrpc.Response{
		Version: jsonrpc.VERSION2,
		Method:  method,
		Params: &jsonrpc.Notification{
			Subscription: sub,
			Result:       res,
		},
	}
	for _, c := range n.connections() {
		if err := c.write(msg); err != nil {
			n.t.Logf("could not send notification: %v", err)
		}
	}
}

// DropConnections closes every open connection without a close handshake.
func (n *Node) DropConnections() {
	for _, c := range n.connections() {
		_ = c.conn.Close()
	}
}

// Requests returns the requests received for the method, in order.
func (n *Node) Requests(method string) []ReceivedRequest {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := []ReceivedRequest{}
	for _, r := range n.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func (n *Node) connections() []*nodeConn {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*nodeConn(nil), n.conns...)
}

func (n *Node) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := n.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &nodeConn{conn: conn}
	n.mu.Lock()
	n.conns = append(n.conns, c)
	n.mu.Unlock()

	defer conn.Close()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		req := ReceivedRequest{}
		if err := json.Unmarshal(data, &req); err != nil {
			n.t.Logf("could not decode request: %v", err)
			return
		}

		n.mu.Lock()
		n.requests = append(n.requests, req)
		handler, ok := n.handlers[req.Method]
		n.mu.Unlock()

		if ok && handler == nil {
			continue
		}

		id := req.ID
		resp := jsonrpc.Response{
			Version: jsonrpc.VERSION2,
			ID:      &id,
		}
		if !ok {
			resp.Error = &jsonrpc.ErrorDetails{Code: -32601, Message: "Method not found"}
		} else if result, rpcErr := handler(req.Params); rpcErr != nil {
			resp.Error = rpcErr
		} else {
			buf, err := json.Marshal(result)
			if err != nil {
				n.t.Logf("could not encode result: %v", err)
				return
			}
			resp.Result = buf
		}
		if err := c.write(resp); err != nil {
			return
		}
	}
}
