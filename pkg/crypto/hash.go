// Package crypto provides the cryptographic primitives the ledger depends
// on: content hashing, address derivation, and secp256k1 signatures.
package crypto

import (
	"crypto/sha256"

	"github.com/klingon-tech/hybridnode/pkg/types"
	"golang.org/x/crypto/ripemd160"
)

// Hash computes a SHA-256 hash of data. This is the canonical content hash
// used for both transaction and block hashing — spec requires it explicitly
// so that PoW leading-zero-nibble checks are interoperable across nodes.
func Hash(data []byte) types.Hash {
	return sha256.Sum256(data)
}

// DoubleHash computes Hash(Hash(data)), used by the Base58Check checksum.
func DoubleHash(data []byte) types.Hash {
	first := Hash(data)
	return Hash(first[:])
}

// RipeHash160 computes RIPEMD160(SHA256(data)), the address body used by
// AddressFromPubKey.
func RipeHash160(data []byte) []byte {
	sh := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sh[:]) //nolint:errcheck // ripemd160.Write never errors.
	return r.Sum(nil)
}
