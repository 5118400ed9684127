package tx

import (
	"fmt"

	"github.com/klingon-tech/hybridnode/pkg/crypto"
	"github.com/klingon-tech/hybridnode/pkg/types"
)

// IsValid performs the structural check spec.md §4.1.1 step 1 requires at
// block-ingestion time: a coinbase is valid by construction; every other
// transaction must carry a non-empty signature on every input. This is
// intentionally cheap — it does not touch the UTXO set or verify
// cryptographic signatures, which requires the previous outputs and is
// what VerifySignatures does. The ledger's block validation calls only
// IsValid; it does not call VerifySignatures.
func (t *Transaction) IsValid() bool {
	if t.IsCoinbase() {
		return true
	}
	if len(t.Inputs) == 0 || len(t.Outputs) == 0 {
		return false
	}
	for _, in := range t.Inputs {
		if len(in.Signature) == 0 {
			return false
		}
	}
	return true
}

// PrevOutputLookup resolves the output a given input references. Callers
// supply it (for example backed by a UTXO index) so verification never
// needs direct storage access.
type PrevOutputLookup func(previousTx types.Hash, outputIndex uint32) (Output, bool)

// VerifySignatures cryptographically verifies every input of a Normal
// transaction: the packed public key must hash to the spent output's
// owning address, and the packed Schnorr signature must verify against
// tx.Hash() under that public key. Coinbase and coinstake transactions are
// not subject to this check (see spec.md §3 — only Normal transactions
// require signature binding).
func (t *Transaction) VerifySignatures(lookup PrevOutputLookup) error {
	if !t.IsNormal() {
		return nil
	}
	h := t.Hash()
	for i, in := range t.Inputs {
		pubKey := in.PubKey()
		sig := in.SchnorrSig()
		if pubKey == nil || sig == nil {
			return fmt.Errorf("input %d: malformed signature", i)
		}
		prevOut, ok := lookup(in.PreviousTx, in.OutputIndex)
		if !ok {
			return fmt.Errorf("input %d: previous output not found", i)
		}
		if crypto.AddressFromPubKey(pubKey) != prevOut.Address {
			return fmt.Errorf("input %d: public key does not match output address", i)
		}
		if !crypto.VerifySignature(h[:], sig, pubKey) {
			return fmt.Errorf("input %d: signature verification failed", i)
		}
	}
	return nil
}
