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

// Package chain provides a typed session to a chain node, on top of the
// websocket JSON-RPC transport.
package chain

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/rpc"
	"code.vegaprotocol.io/ondemand/types"

	"github.com/ethereum/go-ethereum/common/hexutil"
	lru "github.com/hashicorp/golang-lru/v2"
)

var ErrExtrinsicNotInBlock = errors.New("extrinsic not found in block")

//go:generate go run github.com/golang/mock/mockgen -destination mocks/codec_mock.go -package mocks code.vegaprotocol.io/ondemand/chain Codec

// Codec signs calls and decodes events using the metadata of the chain.
type Codec interface {
	Sign(ctx context.Context, signer types.Signer, call types.Call) (string, error)
	DecodeEvents(ctx context.Context, events string) ([]types.DecodedEvent, error)
}

type Header struct {
	ParentHash     string         `json:"parentHash"`
	Number         hexutil.Uint64 `json:"number"`
	StateRoot      string         `json:"stateRoot"`
	ExtrinsicsRoot string         `json:"extrinsicsRoot"`
}

type Block struct {
	Header     Header   `json:"header"`
	Extrinsics []string `json:"extrinsics"`
}

// Session is a connection to one chain. It's owned by a single scenario and
// must be closed once done.
type Session struct {
	log    *logging.Logger
	name   string
	client *rpc.Client
	codec  Codec

	// events caches the decoded events by block hash, as a block content
	// never changes once it's known.
	events *lru.Cache[string, []types.DecodedEvent]
}

// Connect opens a session to the chain named name.
func Connect(ctx context.Context, log *logging.Logger, name string, cfg Config, codec Codec) (*Session, error) {
	log = log.Named(namedLogger).With(logging.Chain(name))
	log.SetLevel(cfg.Level.Get())

	cacheSize := cfg.EventsCacheSize
	if cacheSize <= 0 {
		cacheSize = 1
	}
	events, err := lru.New[string, []types.DecodedEvent](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("could not create the events cache: %w", err)
	}

	client, err := rpc.Dial(ctx, log, cfg.Endpoint, cfg.RPC)
	if err != nil {
		log.Error("could not connect to the chain", logging.Error(err))
		return nil, err
	}

	return &Session{
		log:    log,
		name:   name,
		client: client,
		codec:  codec,
		events: events,
	}, nil
}

func (s *Session) Name() string {
	return s.name
}

func (s *Session) Endpoint() string {
	return s.client.Endpoint()
}

// Done is closed once the connection to the node is closed.
func (s *Session) Done() <-chan struct{} {
	return s.client.Done()
}

// Err returns the reason the connection was closed.
func (s *Session) Err() error {
	return s.client.Err()
}

func (s *Session) Close() error {
	s.log.Debug("closing session")
	return s.client.Close()
}

// Header returns the header of the block, or of the best block if hash is
// empty.
func (s *Session) Header(ctx context.Context, hash string) (Header, error) {
	header := Header{}
	if err := s.client.Call(ctx, "chain_getHeader", optional(hash), &header); err != nil {
		return Header{}, s.wrap("chain_getHeader", err)
	}
	return header, nil
}

// Height returns the number of the best block.
func (s *Session) Height(ctx context.Context) (uint64, error) {
	header, err := s.Header(ctx, "")
	if err != nil {
		return 0, err
	}
	return uint64(header.Number), nil
}

// Block returns the block, or the best block if hash is empty.
func (s *Session) Block(ctx context.Context, hash string) (Block, error) {
	signed := struct {
		Block *Block `json:"block"`
	}{}
	if err := s.client.Call(ctx, "chain_getBlock", optional(hash), &signed); err != nil {
		return Block{}, s.wrap("chain_getBlock", err)
	}
	if signed.Block == nil {
		return Block{}, &types.DecodeError{
			What: fmt.Sprintf("block %s", hash),
			Err:  errors.New("block is unknown to the node"),
		}
	}
	return *signed.Block, nil
}

// Query reads a storage item at the block, or at the best block if at is
// empty. A nil value means the item is not set.
func (s *Session) Query(ctx context.Context, key, at string) (hexutil.Bytes, error) {
	params := []interface{}{key}
	if at != "" {
		params = append(params, at)
	}
	var value *hexutil.Bytes
	if err := s.client.Call(ctx, "state_getStorage", params, &value); err != nil {
		return nil, s.wrap("state_getStorage", err)
	}
	if value == nil {
		return nil, nil
	}
	return *value, nil
}

// SessionIndex returns the index of the current session.
func (s *Session) SessionIndex(ctx context.Context) (uint32, error) {
	value, err := s.Query(ctx, SessionCurrentIndexKey, "")
	if err != nil {
		return 0, err
	}
	if value == nil {
		return 0, nil
	}
	if len(value) < 4 {
		return 0, &types.DecodeError{
			What: "session index",
			Err:  fmt.Errorf("expected 4 bytes, got %d", len(value)),
		}
	}
	return binary.LittleEndian.Uint32(value), nil
}

// ParaLifecycle returns the lifecycle of the chain as stored by the
// coordinating chain. The boolean is false when the chain is unknown.
func (s *Session) ParaLifecycle(ctx context.Context, chainID uint32) (types.ParaLifecycle, bool, error) {
	value, err := s.Query(ctx, ParaLifecycleKey(chainID), "")
	if err != nil {
		return 0, false, err
	}
	if len(value) == 0 {
		return 0, false, nil
	}
	lifecycle := types.ParaLifecycle(value[0])
	if !lifecycle.IsValid() {
		return 0, false, &types.DecodeError{
			What: fmt.Sprintf("lifecycle of chain %d", chainID),
			Err:  fmt.Errorf("unknown variant %d", value[0]),
		}
	}
	return lifecycle, true, nil
}

// Sign returns the encoded extrinsic of the call signed by the signer.
func (s *Session) Sign(ctx context.Context, signer types.Signer, call types.Call) (string, error) {
	extrinsic, err := s.codec.Sign(ctx, signer, call)
	if err != nil {
		return "", fmt.Errorf("could not sign %s: %w", call.Path(), err)
	}
	return extrinsic, nil
}

// SubmitAndWatch submits the encoded extrinsic and streams its status.
func (s *Session) SubmitAndWatch(ctx context.Context, extrinsic string) (types.StatusStream, error) {
	sub, err := s.client.Subscribe(ctx, "author_submitAndWatchExtrinsic", "author_unwatchExtrinsic", []interface{}{extrinsic})
	if err != nil {
		return nil, s.wrap("author_submitAndWatchExtrinsic", err)
	}
	return watchExtrinsic(s.log, sub), nil
}

// EventsAt returns every event emitted in the block.
func (s *Session) EventsAt(ctx context.Context, blockHash string) ([]types.DecodedEvent, error) {
	if blockHash != "" {
		if events, ok := s.events.Get(strings.ToLower(blockHash)); ok {
			return events, nil
		}
	}

	value, err := s.Query(ctx, SystemEventsKey, blockHash)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return []types.DecodedEvent{}, nil
	}
	events, err := s.codec.DecodeEvents(ctx, value.String())
	if err != nil {
		return nil, fmt.Errorf("could not decode events of block %s: %w", blockHash, err)
	}
	if blockHash != "" {
		s.events.Add(strings.ToLower(blockHash), events)
	}
	return events, nil
}

// ExtrinsicEvents returns the events emitted while applying the extrinsic
// included in the block.
func (s *Session) ExtrinsicEvents(ctx context.Context, blockHash, extrinsic string) ([]types.DecodedEvent, error) {
	block, err := s.Block(ctx, blockHash)
	if err != nil {
		return nil, err
	}
	index := -1
	for i, xt := range block.Extrinsics {
		if strings.EqualFold(xt, extrinsic) {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, fmt.Errorf("%w: %s", ErrExtrinsicNotInBlock, blockHash)
	}

	events, err := s.EventsAt(ctx, blockHash)
	if err != nil {
		return nil, err
	}
	out := []types.DecodedEvent{}
	for _, e := range events {
		if e.Phase.AppliesTo(uint32(index)) {
			out = append(out, e)
		}
	}
	return out, nil
}

// SubscribeEvents streams the events matching the predicate, block by block.
// The stream lives until ctx is cancelled, the stream is closed, or the
// connection drops.
func (s *Session) SubscribeEvents(ctx context.Context, predicate types.EventPredicate) (types.EventStream, error) {
	sub, err := s.client.Subscribe(ctx, "state_subscribeStorage", "state_unsubscribeStorage", []interface{}{[]string{SystemEventsKey}})
	if err != nil {
		return nil, s.wrap("state_subscribeStorage", err)
	}
	return streamEvents(ctx, s.log, s.codec, sub, predicate), nil
}

// wrap keeps connection and decoding errors as they are, and annotates the
// errors returned by the node.
func (s *Session) wrap(method string, err error) error {
	var (
		connErr   *types.ConnectionError
		decodeErr *types.DecodeError
	)
	if errors.As(err, &connErr) || errors.As(err, &decodeErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s on %s: %w", method, s.name, err)
}

func optional(hash string) []interface{} {
	if hash == "" {
		return nil
	}
	return []interface{}{hash}
}
