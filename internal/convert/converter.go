// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package convert implements the transaction converter (C5, spec.md §4.5):
// the two-stage reduction RpcTransaction -> InternalRpcTransaction (conv1)
// -> AccountTransaction (conv2), plus the parallel L1-handler path.
package convert

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/starkware-libs/sequencer-sub007/internal/external"
	"github.com/starkware-libs/sequencer-sub007/internal/types"
)

// Validation errors returned by Conv1 (§7: validation errors, never
// retried, surfaced to the client as application errors).
var (
	ErrSignatureTooLong  = errors.New("convert: signature exceeds maximum length")
	ErrCalldataTooLarge  = errors.New("convert: calldata exceeds maximum size")
	ErrSierraClassTooBig = errors.New("convert: sierra class object exceeds maximum size")
	ErrZeroResourceBound = errors.New("convert: resource bound is zero where a positive value is required")
)

// Limits bounds the validation conv1 performs. Static, restart-required
// configuration per SPEC_FULL.md §10.3.
type Limits struct {
	MaxSignatureLength int
	MaxCalldataBytes   int
	MaxSierraBytes     int
}

// DefaultLimits mirrors Starknet mainnet's current gateway bounds, chosen
// generously to avoid rejecting ordinary traffic.
func DefaultLimits() Limits {
	return Limits{
		MaxSignatureLength: 256,
		MaxCalldataBytes:   16 << 20,
		MaxSierraBytes:     32 << 20,
	}
}

// Converter performs conv1 and conv2 against an injected chain id and
// class manager.
type Converter struct {
	chainID [8]byte
	limits  Limits
	classes external.ClassManager
}

// New constructs a Converter. chainID is mixed into every computed hash so
// that transactions cannot replay across networks.
func New(chainID [8]byte, limits Limits, classes external.ClassManager) *Converter {
	return &Converter{chainID: chainID, limits: limits, classes: classes}
}

// Conv1 reduces an RpcTransaction to its InternalRpcTransaction form:
// computing tx_hash and, for declare transactions, registering the
// contract class with the external class manager (§4.5). It is pure and
// idempotent with respect to the computed hash for equal input (§8
// round-trip property 8: the hash depends only on (chainID, tx), not on
// any mutable converter state).
func (c *Converter) Conv1(ctx context.Context, tx types.RpcTransaction) (types.InternalRpcTransaction, error) {
	if err := c.validate(tx); err != nil {
		return types.InternalRpcTransaction{}, err
	}

	hash := c.computeHash(tx)

	internal := types.InternalRpcTransaction{Tx: tx, TxHash: hash}

	switch tx.Kind {
	case types.TxKindDeclare:
		classHash, _, err := c.classes.AddClass(ctx, tx.SierraClass)
		if err != nil {
			return types.InternalRpcTransaction{}, fmt.Errorf("convert: registering declared class: %w", err)
		}
		internal.ResolvedClassHash = classHash
	case types.TxKindDeployAccount:
		internal.ResolvedClassHash = tx.ClassHash
		internal.ContractAddress = c.contractAddress(tx)
	}

	return internal, nil
}

// contractAddressPrefix domain-separates the contract-address derivation
// from tx_hash and every other Keccak-based digest this converter computes,
// mirroring the role starknet_api::core::CONTRACT_ADDRESS_PREFIX plays in
// the original Pedersen-based formula.
const contractAddressPrefix = "STARKNET_CONTRACT_ADDRESS"

// contractAddress precomputes the address a deploy-account transaction
// will occupy, the way conv1 registers a declared class's hash up front
// (§4.5): deployer, salt, class hash and a digest of the constructor
// calldata are mixed the same way computeHash mixes a transaction's
// fields, so two deploy-account transactions with identical (sender,
// salt, class_hash, calldata) always land on the same address.
func (c *Converter) contractAddress(tx types.RpcTransaction) types.Address {
	calldataDigest := crypto.Keccak256Hash(tx.Calldata)

	var buf []byte
	buf = append(buf, contractAddressPrefix...)
	buf = append(buf, tx.Sender[:]...)
	buf = append(buf, tx.Salt[:]...)
	buf = append(buf, tx.ClassHash[:]...)
	buf = append(buf, calldataDigest[:]...)
	return types.Address(crypto.Keccak256Hash(buf))
}

func (c *Converter) validate(tx types.RpcTransaction) error {
	if len(tx.Signature) > c.limits.MaxSignatureLength {
		return ErrSignatureTooLong
	}
	if len(tx.Calldata) > c.limits.MaxCalldataBytes {
		return ErrCalldataTooLarge
	}
	if len(tx.SierraClass) > c.limits.MaxSierraBytes {
		return ErrSierraClassTooBig
	}
	for name, bound := range tx.ResourceBounds {
		if bound == 0 && requiresPositiveBound(name) {
			return ErrZeroResourceBound
		}
	}
	return nil
}

// requiresPositiveBound names the resource kinds that the protocol
// forbids submitting with a zero bound (a zero L2-gas bound, for
// instance, can never pay for execution at all).
func requiresPositiveBound(name string) bool {
	return name == "l2_gas"
}

// computeHash derives tx_hash from the chain id and a canonical encoding
// of the transaction's fields, the way the teacher derives signing hashes
// via crypto.Keccak256 over an RLP-adjacent field encoding.
func (c *Converter) computeHash(tx types.RpcTransaction) types.TxHash {
	var buf []byte
	buf = append(buf, c.chainID[:]...)
	buf = append(buf, byte(tx.Kind))
	buf = append(buf, tx.Sender[:]...)
	buf = appendUint64(buf, uint64(tx.Nonce))
	buf = appendUint64(buf, uint64(tx.Tip))
	buf = append(buf, tx.Calldata...)
	buf = append(buf, tx.SierraClass...)
	buf = append(buf, tx.ClassHash[:]...)
	buf = append(buf, tx.Salt[:]...)
	for _, sig := range tx.Signature {
		buf = append(buf, sig[:]...)
	}
	return types.TxHash(crypto.Keccak256Hash(buf))
}

func appendUint64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

// Conv2 reduces an InternalRpcTransaction to its executable
// AccountTransaction form: fetching the compiled class when the
// transaction carries one (§4.5).
func (c *Converter) Conv2(ctx context.Context, internal types.InternalRpcTransaction) (types.AccountTransaction, error) {
	var executable []byte
	if internal.ResolvedClassHash != (types.ClassHash{}) {
		code, err := c.classes.GetExecutable(ctx, internal.ResolvedClassHash)
		if err != nil {
			return types.AccountTransaction{}, fmt.Errorf("convert: fetching executable class: %w", err)
		}
		executable = code
	}
	return types.AccountTransaction{Internal: internal, ExecutableCode: executable}, nil
}

// ConvL1Handler runs the parallel path for an L1-handler transaction:
// there is no class to resolve and the protocol fixes paid_fee_on_l1 = 1
// (§4.5).
func (c *Converter) ConvL1Handler(payload types.L1HandlerPayload) types.AccountTransaction {
	rpcTx := types.RpcTransaction{
		Kind:     types.TxKindL1Handler,
		Sender:   payload.Sender,
		Nonce:    payload.Nonce,
		Calldata: payload.Calldata,
	}
	internal := types.InternalRpcTransaction{Tx: rpcTx, TxHash: payload.TxHash}
	return types.AccountTransaction{Internal: internal, PaidFeeOnL1: 1}
}
