// Package tx defines the UTXO transaction model: inputs that reference a
// prior output, outputs that create new spendable value, and the kind
// discriminators (coinbase / coinstake / normal) spec.md defines
// structurally rather than as a class hierarchy.
package tx

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"

	"github.com/klingon-tech/hybridnode/pkg/crypto"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

// PubKeySize and SchnorrSigSize are the byte lengths of the two parts
// packed into Input.Signature for a cryptographically verifiable (Normal)
// input: Signature = pubkey(33) || schnorr_signature(64). Coinbase and
// coinstake inputs don't carry real signatures (coinbase has no inputs at
// all; coinstake just needs a non-empty marker, per spec.md §3).
const (
	PubKeySize     = 33
	SchnorrSigSize = 64
)

// Input references a specific output of a prior transaction.
type Input struct {
	PreviousTx  types.Hash `json:"previous_tx"`
	OutputIndex uint32     `json:"output_index"`
	Signature   []byte     `json:"signature"`
}

// inputJSON hex-encodes the signature for wire transport.
type inputJSON struct {
	PreviousTx  types.Hash `json:"previous_tx"`
	OutputIndex uint32     `json:"output_index"`
	Signature   string     `json:"signature,omitempty"`
}

// MarshalJSON hex-encodes the signature bytes.
func (in Input) MarshalJSON() ([]byte, error) {
	j := inputJSON{PreviousTx: in.PreviousTx, OutputIndex: in.OutputIndex}
	if len(in.Signature) > 0 {
		j.Signature = hex.EncodeToString(in.Signature)
	}
	return json.Marshal(j)
}

// UnmarshalJSON hex-decodes the signature bytes.
func (in *Input) UnmarshalJSON(data []byte) error {
	var j inputJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	in.PreviousTx = j.PreviousTx
	in.OutputIndex = j.OutputIndex
	if j.Signature != "" {
		b, err := hex.DecodeString(j.Signature)
		if err != nil {
			return err
		}
		in.Signature = b
	}
	return nil
}

// PubKey extracts the packed public key from a Normal input's signature,
// if present.
func (in Input) PubKey() []byte {
	if len(in.Signature) < PubKeySize+SchnorrSigSize {
		return nil
	}
	return in.Signature[:PubKeySize]
}

// SchnorrSig extracts the packed Schnorr signature from a Normal input's
// signature, if present.
func (in Input) SchnorrSig() []byte {
	if len(in.Signature) < PubKeySize+SchnorrSigSize {
		return nil
	}
	return in.Signature[PubKeySize:]
}

// Output creates a new spendable UTXO paying address the given amount.
type Output struct {
	Address types.Address `json:"address"`
	Amount  uint64        `json:"amount"`
}

// Transaction is a UTXO-model transaction: it spends zero or more prior
// outputs and creates one or more new outputs.
type Transaction struct {
	Inputs    []Input  `json:"inputs"`
	Outputs   []Output `json:"outputs"`
	Timestamp uint64   `json:"timestamp"` // milliseconds since epoch
	Nonce     uint64   `json:"nonce"`
}

// IsCoinbase reports whether tx is structurally a coinbase: no inputs,
// exactly one output.
func (t *Transaction) IsCoinbase() bool {
	return len(t.Inputs) == 0 && len(t.Outputs) == 1
}

// IsCoinstake reports whether tx is structurally a coinstake: at least one
// input, at least two outputs, and outputs[0].Amount == 0 (the coinstake
// marker).
func (t *Transaction) IsCoinstake() bool {
	return len(t.Inputs) > 0 && len(t.Outputs) >= 2 && t.Outputs[0].Amount == 0
}

// IsNormal reports whether tx is neither a coinbase nor a coinstake.
func (t *Transaction) IsNormal() bool {
	return !t.IsCoinbase() && !t.IsCoinstake()
}

// SigningBytes returns the canonical serialization used both for the
// transaction hash and as the message each Normal input's signature binds
// to. Signature bytes are deliberately excluded — including them would
// make signing circular (the signature can't sign over itself) and would
// let a relaying peer mutate the wire signature without changing tx
// identity, which the "binding" language in spec.md rules out.
//
// Format (all integers little-endian):
//
//	timestamp(8) | nonce(8) |
//	input_count(4)  | [previous_tx(32) | output_index(4)]... |
//	output_count(4) | [address_len(4) | address | amount(8)]...
func (t *Transaction) SigningBytes() []byte {
	buf := make([]byte, 0, 16+8+len(t.Inputs)*36+8+len(t.Outputs)*16)
	buf = binary.LittleEndian.AppendUint64(buf, t.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, t.Nonce)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf = append(buf, in.PreviousTx[:]...)
		buf = binary.LittleEndian.AppendUint32(buf, in.OutputIndex)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		addr := []byte(out.Address)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(addr)))
		buf = append(buf, addr...)
		buf = binary.LittleEndian.AppendUint64(buf, out.Amount)
	}

	return buf
}

// Hash computes the transaction's canonical SHA-256 identity hash.
func (t *Transaction) Hash() types.Hash {
	return crypto.Hash(t.SigningBytes())
}

// TotalOutputValue sums all output amounts, erroring on overflow.
func (t *Transaction) TotalOutputValue() (uint64, error) {
	var total uint64
	for _, out := range t.Outputs {
		if total > math.MaxUint64-out.Amount {
			return 0, fmt.Errorf("output amount overflow")
		}
		total += out.Amount
	}
	return total, nil
}

// SignInput signs input i of tx with signer, binding the signature to
// tx.Hash() and packing the signer's public key alongside it so a verifier
// with no other key material can check the signature. Only meaningful for
// Normal transactions.
func SignInput(t *Transaction, i int, signer crypto.Signer) error {
	if i < 0 || i >= len(t.Inputs) {
		return fmt.Errorf("input index %d out of range", i)
	}
	h := t.Hash()
	sig, err := signer.Sign(h[:])
	if err != nil {
		return fmt.Errorf("sign input %d: %w", i, err)
	}
	packed := make([]byte, 0, PubKeySize+len(sig))
	packed = append(packed, signer.PublicKey()...)
	packed = append(packed, sig...)
	t.Inputs[i].Signature = packed
	return nil
}
