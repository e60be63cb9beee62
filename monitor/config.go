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
	"code.vegaprotocol.io/ondemand/config/encoding"
	"code.vegaprotocol.io/ondemand/logging"
)

const namedLogger = "monitor"

// Config represent the configuration of the order monitor.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	BufferSize int    `long:"buffer-size" description:"Number of decoded orders held until the checker consumes them"`
	Method     string `long:"method" description:"Name of the event emitted when an order is placed"`
	ChainID    uint32 `long:"chain-id" description:"Only monitor orders placed for this chain, defaults to the chain under test"`
}

// NewDefaultConfig creates an instance of the package specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:      encoding.LogLevel{Level: logging.InfoLevel},
		BufferSize: 256,
		Method:     "OnDemandOrderPlaced",
	}
}
