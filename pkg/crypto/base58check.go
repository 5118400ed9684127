package crypto

import (
	"fmt"

	"github.com/klingon-tech/hybridnode/pkg/types"
	"github.com/mr-tron/base58"
)

// AddressVersion is the single version byte prefixed to the RIPEMD160
// address body before Base58Check encoding.
const AddressVersion = 0x00

// checksumLen is the number of checksum bytes appended by Base58Check.
const checksumLen = 4

// AddressFromPubKey derives a printable address from a compressed public
// key: Base58Check(version 0x00 || RIPEMD160(SHA256(pubkey))).
func AddressFromPubKey(pubKey []byte) types.Address {
	body := RipeHash160(pubKey)
	return types.Address(EncodeBase58Check(AddressVersion, body))
}

// EncodeBase58Check encodes version||payload with a 4-byte double-SHA256
// checksum, Base58-encoded.
func EncodeBase58Check(version byte, payload []byte) string {
	buf := make([]byte, 0, 1+len(payload)+checksumLen)
	buf = append(buf, version)
	buf = append(buf, payload...)
	checksum := DoubleHash(buf)
	buf = append(buf, checksum[:checksumLen]...)
	return base58.Encode(buf)
}

// DecodeBase58Check decodes and verifies a Base58Check string, returning
// the version byte and payload.
func DecodeBase58Check(s string) (version byte, payload []byte, err error) {
	decoded, err := base58.Decode(s)
	if err != nil {
		return 0, nil, fmt.Errorf("base58 decode: %w", err)
	}
	if len(decoded) < 1+checksumLen {
		return 0, nil, fmt.Errorf("base58check string too short")
	}
	body := decoded[:len(decoded)-checksumLen]
	wantChecksum := decoded[len(decoded)-checksumLen:]
	gotChecksum := DoubleHash(body)
	for i := 0; i < checksumLen; i++ {
		if gotChecksum[i] != wantChecksum[i] {
			return 0, nil, fmt.Errorf("base58check checksum mismatch")
		}
	}
	return body[0], body[1:], nil
}
