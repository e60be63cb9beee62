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

package chain_test

import (
	"encoding/json"
	"testing"

	"code.vegaprotocol.io/ondemand/chain"
	"code.vegaprotocol.io/ondemand/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExtrinsicStatus(t *testing.T) {
	tcs := []struct {
		raw      string
		expected types.ExtrinsicStatus
	}{
		{raw: `"future"`, expected: types.ExtrinsicStatus{Kind: types.StatusFuture}},
		{raw: `"ready"`, expected: types.ExtrinsicStatus{Kind: types.StatusReady}},
		{raw: `"dropped"`, expected: types.ExtrinsicStatus{Kind: types.StatusDropped}},
		{raw: `"invalid"`, expected: types.ExtrinsicStatus{Kind: types.StatusInvalid}},
		{raw: `{"broadcast":["12D3KooW"]}`, expected: types.ExtrinsicStatus{Kind: types.StatusBroadcast}},
		{raw: `{"inBlock":"0x01"}`, expected: types.ExtrinsicStatus{Kind: types.StatusInBlock, Block: "0x01"}},
		{raw: `{"retracted":"0x01"}`, expected: types.ExtrinsicStatus{Kind: types.StatusRetracted, Block: "0x01"}},
		{raw: `{"finalityTimeout":"0x01"}`, expected: types.ExtrinsicStatus{Kind: types.StatusFinalityTimeout, Block: "0x01"}},
		{raw: `{"finalized":"0x02"}`, expected: types.ExtrinsicStatus{Kind: types.StatusFinalized, Block: "0x02"}},
		{raw: `{"usurped":"0x03"}`, expected: types.ExtrinsicStatus{Kind: types.StatusUsurped, Block: "0x03"}},
	}

	for _, tc := range tcs {
		t.Run(tc.raw, func(tt *testing.T) {
			status, err := chain.ParseExtrinsicStatus(json.RawMessage(tc.raw))
			require.NoError(tt, err)
			assert.Equal(tt, tc.expected, status)
		})
	}

	for _, raw := range []string{`"pending"`, `{"inBlock":1}`, `{"inBlock":"0x01","finalized":"0x02"}`, `{"unknown":"0x01"}`, `12`} {
		t.Run("rejects "+raw, func(tt *testing.T) {
			_, err := chain.ParseExtrinsicStatus(json.RawMessage(raw))
			var decodeErr *types.DecodeError
			assert.ErrorAs(tt, err, &decodeErr)
		})
	}
}
