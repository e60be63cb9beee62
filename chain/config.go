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

package chain

import (
	"code.vegaprotocol.io/ondemand/config/encoding"
	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/rpc"
)

const namedLogger = "chain"

// Config represent the configuration of a session to one chain.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	Endpoint      string `long:"endpoint" description:"Websocket address of the node"`
	CodecEndpoint string `long:"codec-endpoint" description:"Websocket address of the signing and decoding service bound to this chain"`

	EventsCacheSize int `long:"events-cache-size" description:"Number of blocks whose decoded events are kept in memory"`

	RPC rpc.Config `group:"RPC" namespace:"rpc"`
}

// NewDefaultConfig creates an instance of the package specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:           encoding.LogLevel{Level: logging.InfoLevel},
		Endpoint:        "ws://127.0.0.1:9944",
		CodecEndpoint:   "ws://127.0.0.1:9900",
		EventsCacheSize: 64,
		RPC:             rpc.NewDefaultConfig(),
	}
}
