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

package main

import (
	"context"
	"fmt"

	"code.vegaprotocol.io/ondemand/config"

	"github.com/jessevdk/go-flags"
)

type initCmd struct {
	Output string `short:"o" long:"output" default:"config.toml" description:"Path of the configuration file to generate"`
	Force  bool   `short:"f" long:"force" description:"Erase the existing configuration file"`
}

func Init(_ context.Context, parser *flags.Parser) error {
	_, err := parser.AddCommand("init", "Generate the default configuration", "Write the default configuration of every component in a TOML file", &initCmd{})
	return err
}

func (opts *initCmd) Execute(_ []string) error {
	if err := config.Write(opts.Output, config.NewDefaultConfig(), opts.Force); err != nil {
		return err
	}
	fmt.Printf("configuration written to %s\n", opts.Output)
	return nil
}
