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

package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Call is a runtime call described by pallet, method and positional
// arguments. The signing collaborator turns it into an encoded extrinsic
// using the chain metadata, so arguments stay in their JSON form here.
// Nested calls are passed as Call values.
type Call struct {
	Pallet string        `json:"pallet"`
	Method string        `json:"method"`
	Args   []interface{} `json:"args"`
}

// NewCall builds a call. A nil argument list is normalised to an empty one
// so it is encoded as `[]` rather than `null`.
func NewCall(pallet, method string, args ...interface{}) Call {
	if args == nil {
		args = []interface{}{}
	}
	return Call{
		Pallet: pallet,
		Method: method,
		Args:   args,
	}
}

// Path returns the call in its "Pallet.method" form, used in logs and errors.
func (c Call) Path() string {
	return fmt.Sprintf("%s.%s", c.Pallet, c.Method)
}

// IsPrivileged reports whether the call is already wrapped in the root
// authority envelope.
func (c Call) IsPrivileged() bool {
	return c.Pallet == "Sudo" && strings.HasPrefix(c.Method, "sudo")
}

func (c Call) String() string {
	buf, err := json.Marshal(c)
	if err != nil {
		return c.Path()
	}
	return string(buf)
}

// Sudo wraps the call in the root authority envelope so it is dispatched
// with superuser privileges. It is only available on test networks.
func Sudo(call Call) Call {
	return NewCall("Sudo", "sudo", call)
}

// BatchAll groups calls in a single atomic call, either all of them are
// dispatched or none is.
func BatchAll(calls ...Call) Call {
	args := make([]interface{}, 0, len(calls))
	for _, c := range calls {
		args = append(args, c)
	}
	return NewCall("Utility", "batch_all", args)
}

// Signer is the explicit signer handle passed to every submission. It only
// carries the secret URI understood by the signing collaborator (e.g.
// "//Alice") and the account it resolves to; no key material is held here.
type Signer struct {
	URI     string `json:"-"`
	Address string `json:"address"`
}

func (s Signer) String() string {
	if s.Address == "" {
		return s.URI
	}
	return s.Address
}
