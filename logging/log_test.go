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

package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"code.vegaprotocol.io/ondemand/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevels(t *testing.T) {
	t.Run("Parsing known levels succeeds", testParsingKnownLevelsSucceeds)
	t.Run("Parsing unknown level fails", testParsingUnknownLevelFails)
}

func TestLogger(t *testing.T) {
	t.Run("Naming a logger chains the names", testNamingLoggerChainsNames)
	t.Run("Config level is applied", testConfigLevelIsApplied)
	t.Run("Logs are duplicated into the configured file", testLogsDuplicatedIntoFile)
}

func testParsingKnownLevelsSucceeds(t *testing.T) {
	tcs := map[string]logging.Level{
		"debug":   logging.DebugLevel,
		"Info":    logging.InfoLevel,
		"warning": logging.WarnLevel,
		"WARN":    logging.WarnLevel,
		"error":   logging.ErrorLevel,
	}
	for in, expected := range tcs {
		t.Run(in, func(tt *testing.T) {
			// when
			lvl, err := logging.ParseLevel(in)

			// then
			require.NoError(tt, err)
			assert.Equal(tt, expected, lvl)
		})
	}
}

func testParsingUnknownLevelFails(t *testing.T) {
	_, err := logging.ParseLevel("chatty")
	assert.Error(t, err)
}

func testNamingLoggerChainsNames(t *testing.T) {
	// given
	log := logging.NewTestLogger()

	// when
	named := log.Named("scenario").Named("submitter")

	// then
	assert.Equal(t, "scenario.submitter", named.GetName())
	assert.Equal(t, "", log.GetName())
}

func testConfigLevelIsApplied(t *testing.T) {
	// given
	cfg := logging.NewDefaultConfig()
	cfg.Environment = "prod"
	cfg.Level = "error"

	// when
	log, err := logging.NewLoggerFromConfig(cfg)
	require.NoError(t, err)
	defer log.AtExit()

	// then
	assert.Equal(t, logging.ErrorLevel, log.GetLevel())
}

func testLogsDuplicatedIntoFile(t *testing.T) {
	// given
	cfg := logging.NewDefaultConfig()
	cfg.Environment = "prod"
	cfg.File = filepath.Join(t.TempDir(), "ondemand.log")

	// when
	log, err := logging.NewLoggerFromConfig(cfg)
	require.NoError(t, err)
	log.Named("scenario").Info("scenario started")
	log.AtExit()

	// then
	content, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	assert.Contains(t, string(content), "scenario started")
	assert.Contains(t, string(content), `"logger":"scenario"`)
}
