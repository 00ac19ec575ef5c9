// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types defines the wire- and pool-level data model shared by every
// component of the sequencer core: transaction identity, the lightweight
// pool key, account views, L1-handler payloads, and the block context.
package types

import (
	"fmt"
)

// Felt is an opaque 32-byte field element, used for hashes, addresses and
// class hashes alike. Its internal encoding is irrelevant to the core; only
// equality and ordering matter here.
type Felt [32]byte

func (f Felt) String() string {
	return fmt.Sprintf("0x%x", [32]byte(f))
}

// Less provides a deterministic total order over Felt values, used to break
// ties when two transactions otherwise compare equal (§4.6 tie-breaks).
func (f Felt) Less(other Felt) bool {
	for i := range f {
		if f[i] != other[i] {
			return f[i] < other[i]
		}
	}
	return false
}

// TxHash uniquely identifies a transaction. Computed once at ingress by the
// transaction converter (C5); downstream components never recompute it.
type TxHash = Felt

// Address identifies an account (contract) on Starknet.
type Address = Felt

// ClassHash identifies a contract's declared (Sierra) form.
type ClassHash = Felt

// CompiledClassHash identifies a contract's compiled (executable) form.
type CompiledClassHash = Felt

// Nonce is a per-account monotonically increasing counter that orders
// transactions from that account.
type Nonce uint64

// Tip is an auxiliary priority field a sender attaches to a transaction;
// the block builder prefers higher tips when multiple accounts are
// eligible (§4.6).
type Tip uint64

// PriorityClass distinguishes regular transactions from L1-handler
// transactions for tie-break purposes at the pool level.
type PriorityClass uint8

const (
	PriorityClassRegular PriorityClass = iota
	PriorityClassL1Handler
)

// TransactionReference is the pool's lightweight, copyable key (§3). The
// full transaction body lives only in the pool's by-hash index; this type
// is never an owner of it.
type TransactionReference struct {
	Address  Address
	Nonce    Nonce
	TxHash   TxHash
	Tip      Tip
	Priority PriorityClass
}

// AccountState denotes the last *committed* nonce for an account (§3). A
// pool entry for Address is eligible when its nonce equals
// CommittedNonce+1.
type AccountState struct {
	Address       Address
	CommittedNonce Nonce
}

// TxKind distinguishes the three top-level RPC transaction variants, plus
// the L1-handler kind used on the parallel L1-handler path. There
// is no inheritance hierarchy (§9 design notes): shared capabilities are
// expressed as methods on the tagged sum type below.
type TxKind uint8

const (
	TxKindInvoke TxKind = iota
	TxKindDeclare
	TxKindDeployAccount
	TxKindL1Handler
)

func (k TxKind) String() string {
	switch k {
	case TxKindInvoke:
		return "invoke"
	case TxKindDeclare:
		return "declare"
	case TxKindDeployAccount:
		return "deploy_account"
	case TxKindL1Handler:
		return "l1_handler"
	default:
		return "unknown"
	}
}

// RpcTransaction is the ingress form received from the gateway, before hash
// computation and class resolution (conv1 input, §4.5).
type RpcTransaction struct {
	Kind      TxKind
	Sender    Address
	Nonce     Nonce
	Tip       Tip
	Calldata  []byte
	Signature []Felt

	// Declare-only.
	SierraClass []byte // raw Sierra program, opaque to the core.

	// DeployAccount-only.
	ClassHash ClassHash
	Salt      Felt

	// ResourceBounds is a protocol resource-bound vector (L1/L2 gas etc.);
	// kept opaque here since its shape is execution-layer concern.
	ResourceBounds map[string]uint64
}

// HasPriority reports whether the transaction carries a non-zero tip.
func (t RpcTransaction) HasPriority() bool { return t.Tip > 0 }

// TotalBytes approximates the wire size of the transaction, used to
// maintain the pool's size_in_bytes accounting (§3 invariant 4).
func (t RpcTransaction) TotalBytes() uint64 {
	n := len(t.Calldata) + len(t.SierraClass) + 32*len(t.Signature) + 96
	for k, v := range t.ResourceBounds {
		n += len(k) + 8
		_ = v
	}
	return uint64(n)
}

// InternalRpcTransaction is the reduced form after conv1: the hash is
// computed and, for declare transactions, the class has been registered
// with the external class manager (§4.5).
type InternalRpcTransaction struct {
	Tx                RpcTransaction
	TxHash            TxHash
	ResolvedClassHash ClassHash // set for Declare/DeployAccount, zero otherwise.
	ContractAddress   Address   // set for DeployAccount only, precomputed by conv1 (§4.5).
}

func (t InternalRpcTransaction) Address() Address       { return t.Tx.Sender }
func (t InternalRpcTransaction) Nonce() Nonce            { return t.Tx.Nonce }
func (t InternalRpcTransaction) Tip() Tip                { return t.Tx.Tip }
func (t InternalRpcTransaction) TotalBytes() uint64      { return t.Tx.TotalBytes() }
func (t InternalRpcTransaction) Reference() TransactionReference {
	return TransactionReference{
		Address:  t.Address(),
		Nonce:    t.Nonce(),
		TxHash:   t.TxHash,
		Tip:      t.Tip(),
		Priority: PriorityClassRegular,
	}
}

// AccountTransaction is the fully reduced, executable form produced by
// conv2 (§4.5): the compiled class (if any) has been fetched and combined.
type AccountTransaction struct {
	Internal       InternalRpcTransaction
	ExecutableCode []byte // opaque compiled class / casm, fetched from the class manager.
	PaidFeeOnL1    uint64 // protocol-fixed to 1 for L1 handlers (§4.5), 0 otherwise.
}

// L1HandlerPayload is the subset of an L1-handler transaction's data that
// may or may not yet be fully known: a record can exist hash-only (seen via
// a commit notification before the full payload arrived) or fully staged.
type L1HandlerPayload struct {
	TxHash   TxHash
	Sender   Address // the L1 contract that sent the message, encoded as a felt.
	Nonce    Nonce   // protocol-fixed L1->L2 nonce sequencing.
	Calldata []byte
	full     bool
}

// IsFullyKnown reports whether the handler's calldata body has arrived, as
// opposed to only its hash (e.g. observed via a commit notification).
func (p L1HandlerPayload) IsFullyKnown() bool { return p.full }

// NewFullL1HandlerPayload constructs a payload with its body attached.
func NewFullL1HandlerPayload(hash TxHash, sender Address, nonce Nonce, calldata []byte) L1HandlerPayload {
	return L1HandlerPayload{TxHash: hash, Sender: sender, Nonce: nonce, Calldata: calldata, full: true}
}

// NewHashOnlyL1HandlerPayload constructs a payload known only by hash.
func NewHashOnlyL1HandlerPayload(hash TxHash) L1HandlerPayload {
	return L1HandlerPayload{TxHash: hash, full: false}
}

// SetFullPayload fills in a previously hash-only payload in place.
func (p *L1HandlerPayload) SetFullPayload(sender Address, nonce Nonce, calldata []byte) {
	p.Sender = sender
	p.Nonce = nonce
	p.Calldata = calldata
	p.full = true
}

// BouncerWeightSlot names one of the ten fixed bouncer dimensions (§3).
type BouncerWeightSlot int

const (
	SlotCairoSteps BouncerWeightSlot = iota
	SlotMemoryHoles
	SlotNEvents
	SlotStateDiffSize
	SlotNMessageSegments
	SlotL1Gas
	SlotL2Gas
	SlotBuiltinRangeCheck
	SlotBuiltinPedersen
	SlotBuiltinPoseidon
	NumBouncerSlots
)

// BouncerWeights is the fixed 10-slot weight vector tracked per transaction
// and, cumulatively, per block (§3).
type BouncerWeights [NumBouncerSlots]uint64

// Add returns the element-wise sum of w and other.
func (w BouncerWeights) Add(other BouncerWeights) BouncerWeights {
	var sum BouncerWeights
	for i := range sum {
		sum[i] = w[i] + other[i]
	}
	return sum
}

// ExceedsAny reports whether any slot of w exceeds the corresponding limit.
func (w BouncerWeights) ExceedsAny(limits BouncerWeights) bool {
	for i := range w {
		if w[i] > limits[i] {
			return true
		}
	}
	return false
}

// ExecutionOutcomeKind tags the result the executor (external) returns for
// a single transaction (§4.6 invariant 1).
type ExecutionOutcomeKind uint8

const (
	OutcomeSuccess ExecutionOutcomeKind = iota
	OutcomeRevert
	OutcomeSkippedForBouncer
	OutcomeFailed
)

// ExecutionOutcome is the executor's per-transaction result.
type ExecutionOutcome struct {
	Kind          ExecutionOutcomeKind
	RevertReason  string // set iff Kind == OutcomeRevert.
	Err           error  // set iff Kind == OutcomeFailed.
	BouncerDelta  BouncerWeights
	StateDiff     StateDiffIncrement
	ReceiptDigest []byte // opaque, execution-layer receipt encoding.
}

// StateDiffIncrement is the flat per-transaction contribution to the
// block's state diff, as produced by the executor.
type StateDiffIncrement struct {
	StorageWrites  map[Address]map[Felt]Felt
	NoncesUpdated  map[Address]Nonce
	ClassesDeclared map[ClassHash]CompiledClassHash
	DeployedContracts map[Address]ClassHash
}

// ExecutedTransaction is produced by the block builder (C6) for every
// transaction it feeds to the executor, successful or not (§3).
type ExecutedTransaction struct {
	TxHash       TxHash
	Outcome      ExecutionOutcome
	IsL1Handler  bool
}

// PreConfirmedTx is the structured record the block builder (C6) pushes
// for each finished transaction, so a separate writer can persist a
// "pre-confirmed" view of the in-progress block without the builder
// waiting on it (§4.6 invariant 6).
type PreConfirmedTx struct {
	TxHash        TxHash
	StateDiff     StateDiffIncrement
	ReceiptDigest []byte
}

// DataAvailabilityMode distinguishes calldata vs. blob DA for a block.
type DataAvailabilityMode uint8

const (
	DAModeCalldata DataAvailabilityMode = iota
	DAModeBlob
)

// GasPrices carries the per-resource gas price pair (in wei and in fri) the
// block context exposes to the executor.
type GasPrices struct {
	L1GasPriceWei  uint64
	L1GasPriceFri  uint64
	L1DataGasPriceWei uint64
	L1DataGasPriceFri uint64
	L2GasPriceWei  uint64
	L2GasPriceFri  uint64
}

// BlockContext is immutable for the lifetime of a single block build (§3).
type BlockContext struct {
	BlockNumber      uint64
	Timestamp        uint64
	SequencerAddress Address
	GasPrices        GasPrices
	DAMode           DataAvailabilityMode
	StarknetVersion  string
}

// NewRoots is the pair of Patricia trie roots the committer produces (§6).
type NewRoots struct {
	ContractsTrieRoot Felt
	ClassesTrieRoot   Felt
}
