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

package scenario

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
)

var (
	purple = color.New(color.FgMagenta).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

// Format is the rendering of a verdict.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Report renders the verdict in w.
func Report(w io.Writer, v *Verdict, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatText, "":
		_, err := io.WriteString(w, text(v))
		return err
	default:
		return fmt.Errorf("unsupported verdict format %q", format)
	}
}

func text(v *Verdict) string {
	b := &strings.Builder{}

	outcome := green("PASSED")
	if !v.Passed() {
		outcome = red("FAILED")
	}
	fmt.Fprintf(b, "scenario %s: %s\n", v.RunID, outcome)
	if v.Unreleased {
		fmt.Fprintf(b, "%s: built from unreleased version %s\n", purple("warn"), v.Version)
	}
	fmt.Fprintf(b, "chain %d ended %s after %s\n", v.ChainID, v.Lifecycle, v.FinishedAt.Sub(v.StartedAt).Round(time.Millisecond))

	for _, s := range v.Steps {
		status := green(string(s.Status))
		switch s.Status {
		case StepFailed:
			status = red(string(s.Status))
		case StepSkipped:
			status = yellow(string(s.Status))
		}
		fmt.Fprintf(b, "  %-16s %s", s.Name, status)
		if s.Status != StepSkipped {
			fmt.Fprintf(b, " in %s", s.Duration.Round(time.Millisecond))
		}
		if s.Observation != nil {
			fmt.Fprintf(b, " (%s)", s.Observation)
		}
		b.WriteString("\n")
		if s.Error != "" {
			fmt.Fprintf(b, "    %s: %s\n", red(s.ErrorKind), s.Error)
		}
	}

	fmt.Fprintf(b, "orders: %d, spent: %s\n", v.Orders, v.TotalSpotPrice)
	for _, violation := range v.Violations {
		fmt.Fprintf(b, "%s: %s: %s\n", red("violation"), violation.Kind, violation.Error())
	}
	for _, a := range v.Assertions {
		fmt.Fprintf(b, "%s: %s\n", red("assertion"), a.Error())
	}
	if v.Failure != nil {
		fmt.Fprintf(b, "%s: step %s failed with %s while %s: %s\n",
			red("error"), v.Failure.Step, v.Failure.Kind, v.Failure.Lifecycle, v.Failure.Error)
	}
	for _, t := range v.Teardown {
		fmt.Fprintf(b, "%s: %s\n", purple("warn"), t)
	}
	return b.String()
}
