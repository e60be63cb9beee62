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

// Package artifacts supplies the genesis head and the validation code of a
// chain being registered. Both are opaque blobs.
package artifacts

import (
	"bytes"
	"context"

	vgfs "code.vegaprotocol.io/ondemand/libs/fs"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
)

var (
	ErrNoGenesisHead    = errors.New("no genesis head configured")
	ErrNoValidationCode = errors.New("no validation code configured")
	ErrEmptyArtifact    = errors.New("artifact is empty")
)

// Provider supplies the registration artifacts.
type Provider interface {
	GenesisHead(ctx context.Context) ([]byte, error)
	ValidationCode(ctx context.Context) ([]byte, error)
}

// FileProvider reads the artifacts from files. A file starting with 0x is
// decoded as hex, anything else is taken as is.
type FileProvider struct {
	cfg Config
}

func NewFileProvider(cfg Config) *FileProvider {
	return &FileProvider{cfg: cfg}
}

func (p *FileProvider) GenesisHead(_ context.Context) ([]byte, error) {
	if p.cfg.GenesisHead == "" {
		return nil, ErrNoGenesisHead
	}
	return load(p.cfg.GenesisHead)
}

func (p *FileProvider) ValidationCode(_ context.Context) ([]byte, error) {
	if p.cfg.ValidationCode == "" {
		return nil, ErrNoValidationCode
	}
	return load(p.cfg.ValidationCode)
}

func load(path string) ([]byte, error) {
	buf, err := vgfs.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load artifact")
	}

	if trimmed := bytes.TrimSpace(buf); bytes.HasPrefix(trimmed, []byte("0x")) {
		decoded, err := hexutil.Decode(string(trimmed))
		if err != nil {
			return nil, errors.Wrapf(err, "artifact %s is not valid hex", path)
		}
		buf = decoded
	}

	if len(buf) == 0 {
		return nil, errors.Wrap(ErrEmptyArtifact, path)
	}
	return buf, nil
}
