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

package num

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// Uint A wrapper for a big unsigned int, large enough to hold chain
// balances.
type Uint struct {
	u uint256.Int
}

// NewUint creates a new Uint with the value of the
// uint64 passed as a parameter.
func NewUint(val uint64) *Uint {
	return &Uint{*uint256.NewInt(val)}
}

// UintZero returns a new Uint set to 0.
func UintZero() *Uint {
	return NewUint(0)
}

// UintFromBig construct a new Uint with a big.Int
// returns true if overflow happened
func UintFromBig(b *big.Int) (*Uint, bool) {
	if b.Sign() < 0 {
		return NewUint(0), true
	}
	u, overflow := uint256.FromBig(b)
	if overflow {
		return NewUint(0), true
	}
	return &Uint{*u}, false
}

// UintFromString created a new Uint from a string
// interpreted using the give base.
// will return true if an error/overflow happened
func UintFromString(str string, base int) (*Uint, bool) {
	b, ok := big.NewInt(0).SetString(str, base)
	if !ok {
		return NewUint(0), true
	}
	return UintFromBig(b)
}

// Sum just removes the need to write num.NewUint(0).AddSum(x, y, z)
// so you can write num.Sum(x, y, z) instead, equivalent to x + y + z
func Sum(vals ...*Uint) *Uint {
	return NewUint(0).AddSum(vals...)
}

func (z Uint) Uint64() uint64 {
	return z.u.Uint64()
}

// Add will add x and y then store the result
// into z
// this is equivalent to:
// `z = x + y`
func (z *Uint) Add(x, y *Uint) *Uint {
	z.u.Add(&x.u, &y.u)
	return z
}

// AddSum adds multiple values at the same time to a given uint
// so x.AddSum(y, z) is equivalent to x + y + z
func (z *Uint) AddSum(vals ...*Uint) *Uint {
	for _, x := range vals {
		if x == nil {
			continue
		}
		z.u.Add(&z.u, &x.u)
	}
	return z
}

// GT with check if the value stored in u is
// greater than oth
// `u > oth`
func (u Uint) GT(oth *Uint) bool {
	return u.u.Gt(&oth.u)
}

// EQ with check if the value stored in u is
// equal to oth
// `u == oth`
func (u Uint) EQ(oth *Uint) bool {
	return u.u.Eq(&oth.u)
}

// IsZero return whether u == 0 or not
func (u Uint) IsZero() bool {
	return u.u.IsZero()
}

// Clone create copy of this value
// this is the equivalent to:
// x := z
func (z Uint) Clone() *Uint {
	return &Uint{z.u}
}

// String returns the stored value as a base 10 string.
func (u Uint) String() string {
	return u.u.ToBig().String()
}

// MarshalJSON encodes the value as a base 10 string, as JSON numbers can't
// hold a balance.
func (u Uint) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON accepts a JSON number, a base 10 string or a 0x prefixed
// hexadecimal string.
func (u *Uint) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, failed := UintFromString(s, base)
	if failed {
		return fmt.Errorf("invalid unsigned integer %s", string(data))
	}
	u.u = v.u
	return nil
}
