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

// Package codec is the client of the signing and decoding service. The
// service holds the chain metadata: it encodes and signs calls, and decodes
// the events stored by the chain. Key material never leaves it, callers only
// pass the secret URI identifying the signer.
package codec

import (
	"context"
	"errors"
	"fmt"

	"code.vegaprotocol.io/ondemand/logging"
	"code.vegaprotocol.io/ondemand/rpc"
	"code.vegaprotocol.io/ondemand/types"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

const namedLogger = "codec"

var ErrEmptySignerURI = errors.New("signer URI is required")

type Client struct {
	log    *logging.Logger
	client *rpc.Client
}

// Dial connects to the service at endpoint.
func Dial(ctx context.Context, log *logging.Logger, endpoint string, cfg rpc.Config) (*Client, error) {
	log = log.Named(namedLogger)
	client, err := rpc.Dial(ctx, log, endpoint, cfg)
	if err != nil {
		return nil, err
	}
	return &Client{
		log:    log,
		client: client,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Signer resolves the address of the signer identified by the secret URI.
func (c *Client) Signer(ctx context.Context, uri string) (types.Signer, error) {
	if uri == "" {
		return types.Signer{}, ErrEmptySignerURI
	}
	var address string
	if err := c.client.Call(ctx, "codec_account", []interface{}{uri}, &address); err != nil {
		return types.Signer{}, fmt.Errorf("could not resolve signer: %w", err)
	}
	return types.Signer{
		URI:     uri,
		Address: address,
	}, nil
}

// Sign returns the hex encoded extrinsic of the call, signed by the signer.
func (c *Client) Sign(ctx context.Context, signer types.Signer, call types.Call) (string, error) {
	if signer.URI == "" {
		return "", ErrEmptySignerURI
	}
	var extrinsic string
	if err := c.client.Call(ctx, "codec_signCall", []interface{}{signer.URI, call}, &extrinsic); err != nil {
		return "", err
	}
	if _, err := hexutil.Decode(extrinsic); err != nil {
		return "", &types.DecodeError{
			What: fmt.Sprintf("signed extrinsic of %s", call.Path()),
			Err:  err,
		}
	}
	c.log.Debug("call signed",
		logging.String("call", call.Path()),
		logging.String("signer", signer.String()),
	)
	return extrinsic, nil
}

// DecodeEvents decodes the hex encoded content of `System.Events`.
func (c *Client) DecodeEvents(ctx context.Context, events string) ([]types.DecodedEvent, error) {
	decoded := []types.DecodedEvent{}
	if err := c.client.Call(ctx, "codec_decodeEvents", []interface{}{events}, &decoded); err != nil {
		var connErr *types.ConnectionError
		if errors.As(err, &connErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &types.DecodeError{What: "events", Err: err}
	}
	return decoded, nil
}
