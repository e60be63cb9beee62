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

	"code.vegaprotocol.io/ondemand/version"

	"github.com/jessevdk/go-flags"
)

type versionCmd struct {
	Help bool `short:"h" long:"help" description:"Show this help message"`
}

func (cmd *versionCmd) Execute(_ []string) error {
	if cmd.Help {
		return &flags.Error{
			Type:    flags.ErrHelp,
			Message: "ondemand-e2e version subcommand help",
		}
	}
	fmt.Printf("ondemand-e2e %s (%s)\n", version.Get(), version.GetCommitHash())
	if version.IsUnreleased() {
		fmt.Println("this is an unreleased version, do not rely on it for a release sign-off")
	}
	return nil
}

func Version(_ context.Context, parser *flags.Parser) error {
	_, err := parser.AddCommand("version", "Show version info", "Show version info", &versionCmd{})
	return err
}
