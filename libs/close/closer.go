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

// Package close tears down the resources of a run in reverse order of
// acquisition.
package close

import (
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
)

type closeFn struct {
	name string
	fn   func() error
}

type Closer struct {
	mu       sync.Mutex
	closeFns []closeFn
}

func NewCloser() *Closer {
	return &Closer{
		closeFns: []closeFn{},
	}
}

// Add adds a function to call during call to CloseAll. The name is used to
// report its failure.
func (c *Closer) Add(name string, fn func() error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeFns = append(c.closeFns, closeFn{name: name, fn: fn})
}

// CloseAll calls all close functions in reverse order, even if some of them
// fail, and returns all their errors.
// Higher level-components should be closed first, but are usually instantiated
// last (and, thus, added later to the closer), hence the reverse order.
func (c *Closer) CloseAll() error {
	c.mu.Lock()
	fns := c.closeFns
	c.closeFns = []closeFn{}
	c.mu.Unlock()

	var errs *multierror.Error
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i].fn(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("couldn't close %s: %w", fns[i].name, err))
		}
	}
	return errs.ErrorOrNil()
}
