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

	"code.vegaprotocol.io/ondemand/types/num"
)

// Phase is the phase of block execution an event was emitted in.
type Phase struct {
	ApplyExtrinsic *uint32 `json:"applyExtrinsic,omitempty"`
	Finalization   bool    `json:"finalization,omitempty"`
	Initialization bool    `json:"initialization,omitempty"`
}

// AppliesTo reports whether the event was emitted while applying the
// extrinsic at the given index.
func (p Phase) AppliesTo(index uint32) bool {
	return p.ApplyExtrinsic != nil && *p.ApplyExtrinsic == index
}

// DecodedEvent is a runtime event as returned by the codec collaborator.
// Fields are kept raw and decoded by the component interested in them.
type DecodedEvent struct {
	Pallet string                     `json:"pallet"`
	Method string                     `json:"method"`
	Phase  Phase                      `json:"phase"`
	Fields map[string]json.RawMessage `json:"fields"`
}

func (e DecodedEvent) Path() string {
	return fmt.Sprintf("%s.%s", e.Pallet, e.Method)
}

// Field decodes the named field into v.
func (e DecodedEvent) Field(name string, v interface{}) error {
	raw, ok := e.Fields[name]
	if !ok {
		return &DecodeError{
			What: fmt.Sprintf("%s field %q", e.Path(), name),
			Err:  fmt.Errorf("field is missing"),
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{
			What: fmt.Sprintf("%s field %q", e.Path(), name),
			Err:  err,
		}
	}
	return nil
}

// EventPredicate selects events from the stream.
type EventPredicate func(DecodedEvent) bool

// ByMethod matches events with the given method name whatever the pallet,
// as the on-demand pallet name differs between runtimes.
func ByMethod(method string) EventPredicate {
	return func(e DecodedEvent) bool {
		return e.Method == method
	}
}

// EventBatch holds the events of one block that matched the predicate.
type EventBatch struct {
	Block  string
	Events []DecodedEvent
}

// EventStream is the push-based, non-restartable sequence of event batches
// delivered for the lifetime of a session. Batches is closed when the
// stream ends and Err reports why; a dropped connection is never resumed.
type EventStream interface {
	Batches() <-chan EventBatch
	Err() error
	Close()
}

// OrderPlacedEvent is an on-demand order placed on the coordinating chain.
type OrderPlacedEvent struct {
	// Index is the arrival position of the event in the monitored stream.
	Index     int       `json:"index"`
	Block     string    `json:"block"`
	ChainID   uint32    `json:"chainId"`
	Placer    string    `json:"placer"`
	SpotPrice *num.Uint `json:"spotPrice,omitempty"`
}
