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

package logging

// Config contains the configurable items for this package.
type Config struct {
	Environment string `choice:"dev" choice:"prod" description:"Logger preset, dev is human readable, prod is JSON" long:"environment"`
	Level       string `description:"Minimum level to log (debug, info, warning, error)" long:"level"`

	// File duplicates the logs into a file rotated by size, when set.
	File       string `description:"Also write the logs to this file, rotated by size" long:"file"`
	MaxSizeMB  int    `description:"Size in megabytes after which the log file is rotated" long:"max-size"`
	MaxAgeDays int    `description:"Number of days rotated log files are kept" long:"max-age"`
}

// NewDefaultConfig creates an instance of the package-specific configuration.
func NewDefaultConfig() Config {
	return Config{
		Environment: "dev",
		Level:       InfoLevel.String(),
		MaxSizeMB:   100,
		MaxAgeDays:  7,
	}
}
