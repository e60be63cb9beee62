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

package submitter

import (
	"code.vegaprotocol.io/ondemand/config/encoding"
	"code.vegaprotocol.io/ondemand/logging"
)

const namedLogger = "submitter"

// Config represent the configuration of the extrinsic submitter.
type Config struct {
	Level encoding.LogLevel `long:"log-level"`

	// WaitForFinality makes a submission succeed on finalization only. When
	// disabled, inclusion in a block is enough.
	WaitForFinality encoding.Bool `long:"wait-for-finality" description:"Wait for finalization rather than inclusion in a block"`
}

// NewDefaultConfig creates an instance of the package specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Level:           encoding.LogLevel{Level: logging.InfoLevel},
		WaitForFinality: true,
	}
}
