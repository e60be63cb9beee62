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
	"errors"
)

const VERSION2 = "2.0"

var (
	ErrOnlySupportJSONRPC2 = errors.New("the API only supports JSON-RPC 2.0")
	ErrMethodIsRequired    = errors.New("the method is required")
	ErrIDIsRequired        = errors.New("the id is required")
)

// Params holds the positional parameter values of a call.
type Params []interface{}

type Request struct {
	// Version specifies the version of the JSON-RPC protocol.
	// MUST be exactly "2.0".
	Version string `json:"jsonrpc"`

	// Method contains the name of the method to be invoked.
	Method string `json:"method"`

	// Params holds the positional parameter values used during the
	// invocation of the method. Nodes expect an array, even an empty one.
	Params Params `json:"params"`

	// ID is established by the client to correlate the response with the
	// request. Requests sent by this client are never notifications.
	ID uint64 `json:"id"`
}

func NewRequest(id uint64, method string, params ...interface{}) *Request {
	if params == nil {
		params = Params{}
	}
	return &Request{
		Version: VERSION2,
		Method:  method,
		Params:  params,
		ID:      id,
	}
}

func (r *Request) Check() error {
	if r.Version != VERSION2 {
		return ErrOnlySupportJSONRPC2
	}

	if r.Method == "" {
		return ErrMethodIsRequired
	}

	if r.ID == 0 {
		return ErrIDIsRequired
	}

	return nil
}
