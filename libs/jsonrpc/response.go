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

package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Response is any message sent by the node: either the response to a
// request, when ID is set, or a subscription notification, when Method is
// set.
type Response struct {
	Version string          `json:"jsonrpc"`
	ID      *uint64         `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ErrorDetails   `json:"error,omitempty"`

	Method string        `json:"method,omitempty"`
	Params *Notification `json:"params,omitempty"`
}

func (r *Response) IsNotification() bool {
	return r.ID == nil && r.Method != "" && r.Params != nil
}

// Notification is the payload of a subscription message.
type Notification struct {
	// Subscription is the identifier returned when subscribing. Nodes send
	// either a string or a number.
	Subscription json.RawMessage `json:"subscription"`
	Result       json.RawMessage `json:"result"`
}

// SubscriptionID returns the subscription identifier in its canonical
// string form so string and numeric identifiers can be compared.
func (n *Notification) SubscriptionID() string {
	return CanonicalID(n.Subscription)
}

// CanonicalID turns a raw subscription identifier into a string.
func CanonicalID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// ErrorDetails is returned when the call encountered an error.
type ErrorDetails struct {
	// Code indicates the error type that occurred.
	Code int `json:"code"`

	// Message provides a short description of the error.
	Message string `json:"message"`

	// Data is a primitive or a structured value that contains additional
	// information about the error.
	Data json.RawMessage `json:"data,omitempty"`
}

func (d ErrorDetails) Error() string {
	if len(d.Data) != 0 {
		return fmt.Sprintf("%d (%s): %s", d.Code, d.Message, string(d.Data))
	}
	return fmt.Sprintf("%d (%s)", d.Code, d.Message)
}
