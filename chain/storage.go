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

package chain

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

var (
	// SystemEventsKey is the storage key of the events of the current block.
	SystemEventsKey = StorageKey("System", "Events")
	// SessionCurrentIndexKey is the storage key of the current session index.
	SessionCurrentIndexKey = StorageKey("Session", "CurrentIndex")
	// ActiveConfigKey is the storage key of the active host configuration.
	ActiveConfigKey = StorageKey("Configuration", "ActiveConfig")

	paraLifecyclesPrefix = StorageKey("Paras", "ParaLifecycles")
)

// Twox64 is the 64 bits xxHash of data, little endian.
func Twox64(data []byte) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, xxhash.Sum64(data))
	return out
}

// Twox128 is the concatenation of the xxHash of data with the seeds 0 and 1,
// little endian.
func Twox128(data []byte) []byte {
	out := make([]byte, 16)
	binary.LittleEndian.PutUint64(out[:8], xxhash.Sum64(data))

	h := xxhash.NewWithSeed(1)
	_, _ = h.Write(data)
	binary.LittleEndian.PutUint64(out[8:], h.Sum64())
	return out
}

// StorageKey returns the key of a plain storage item.
func StorageKey(pallet, item string) string {
	key := append(Twox128([]byte(pallet)), Twox128([]byte(item))...)
	return hexutil.Encode(key)
}

// ParaLifecycleKey returns the key of the lifecycle of the chain in the
// `Paras.ParaLifecycles` map, hashed with twox64 concat.
func ParaLifecycleKey(chainID uint32) string {
	id := make([]byte, 4)
	binary.LittleEndian.PutUint32(id, chainID)

	prefix := hexutil.MustDecode(paraLifecyclesPrefix)
	key := make([]byte, 0, len(prefix)+8+4)
	key = append(key, prefix...)
	key = append(key, Twox64(id)...)
	key = append(key, id...)
	return hexutil.Encode(key)
}
