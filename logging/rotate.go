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

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"
)

const rotatingSinkScheme = "rotate"

var (
	registerSinkOnce sync.Once
	registerSinkErr  error

	sinksMu sync.Mutex
	sinks   = map[string]*rotatingSink{}
)

// rotatingSink writes the logs to a file rotated by size. Every logger
// writing to the same file shares the same sink.
type rotatingSink struct {
	*lumberjack.Logger
}

func (s *rotatingSink) Sync() error {
	return nil
}

// rotatingFileURL returns the zap output path of a rotated log file.
func rotatingFileURL(path string, maxSizeMB, maxAgeDays int) (string, error) {
	registerSinkOnce.Do(func() {
		registerSinkErr = zap.RegisterSink(rotatingSinkScheme, newRotatingSink)
	})
	if registerSinkErr != nil {
		return "", fmt.Errorf("could not register the rotating file sink: %w", registerSinkErr)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("could not resolve log file path %q: %w", path, err)
	}
	u := url.URL{
		Scheme: rotatingSinkScheme,
		Path:   filepath.ToSlash(abs),
	}
	q := u.Query()
	q.Set("max-size", strconv.Itoa(maxSizeMB))
	q.Set("max-age", strconv.Itoa(maxAgeDays))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func newRotatingSink(u *url.URL) (zap.Sink, error) {
	sinksMu.Lock()
	defer sinksMu.Unlock()

	if s, ok := sinks[u.Path]; ok {
		return s, nil
	}

	maxSize, _ := strconv.Atoi(u.Query().Get("max-size"))
	maxAge, _ := strconv.Atoi(u.Query().Get("max-age"))
	s := &rotatingSink{
		Logger: &lumberjack.Logger{
			Filename: filepath.FromSlash(u.Path),
			MaxSize:  maxSize,
			MaxAge:   maxAge,
			Compress: true,
		},
	}
	sinks[u.Path] = s
	return s, nil
}
