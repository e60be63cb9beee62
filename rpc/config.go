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
	"time"

	"code.vegaprotocol.io/ondemand/config/encoding"
	"code.vegaprotocol.io/ondemand/logging"
)

const namedLogger = "rpc"

// Config represent the configuration of the websocket JSON-RPC transport.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	HandshakeTimeout encoding.Duration `long:"handshake-timeout" description:"Maximum time allowed for the websocket handshake"`
	WriteTimeout     encoding.Duration `long:"write-timeout" description:"Maximum time allowed to write a message on the connection"`
	DialRetries      uint64            `long:"dial-retries" description:"Number of attempts before giving up on an unreachable endpoint"`
	DialRetryDelay   encoding.Duration `long:"dial-retry-delay" description:"Delay between two connection attempts"`
	QueueSize        int               `long:"queue-size" description:"Number of requests that can wait to be written on the connection"`
}

// NewDefaultConfig creates an instance of the package specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:            encoding.LogLevel{Level: logging.InfoLevel},
		HandshakeTimeout: encoding.Duration{Duration: 10 * time.Second},
		WriteTimeout:     encoding.Duration{Duration: 30 * time.Second},
		DialRetries:      5,
		DialRetryDelay:   encoding.Duration{Duration: time.Second},
		QueueSize:        100,
	}
}
