package receipt

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/sha3"
)

// Keccak256 returns the legacy keccak digest of data, the hash the table
// contract verifies signatures against.
func Keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// SignPayload signs keccak256(payload) and returns a 65-byte r||s||v
// signature, v in {27, 28}.
func SignPayload(payload []byte, privHex string) ([]byte, error) {
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privHex, "0x"))
	if err != nil || len(keyBytes) != 32 {
		return nil, fmt.Errorf("invalid private key")
	}
	priv := secp256k1.PrivKeyFromBytes(keyBytes)

	// SignCompact puts the recovery byte first; the contract wants it last.
	compact := ecdsa.SignCompact(priv, Keccak256(payload), false)
	sig := make([]byte, sigLen)
	copy(sig, compact[1:])
	sig[64] = compact[0]
	return sig, nil
}

// RecoverSigner recovers the address that produced sig over
// keccak256(payload). sig is the 65-byte r||s||v form.
func RecoverSigner(payload, sig []byte) (string, error) {
	if len(sig) != sigLen {
		return "", fmt.Errorf("signature must be %d bytes, got %d", sigLen, len(sig))
	}
	compact := make([]byte, sigLen)
	compact[0] = sig[64]
	copy(compact[1:], sig[:64])

	pub, _, err := ecdsa.RecoverCompact(compact, Keccak256(payload))
	if err != nil {
		return "", fmt.Errorf("signature recovery failed: %v", err)
	}
	return PubKeyAddress(pub), nil
}

// RecoverSignerHex is RecoverSigner for a hex-encoded signature as delivered
// by clients (130-132 chars, 0x-optional).
func RecoverSignerHex(payload []byte, sigHex string) (string, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return "", fmt.Errorf("signature is not valid hex: %v", err)
	}
	return RecoverSigner(payload, sig)
}

// PubKeyAddress derives the ethereum-style address of a public key:
// keccak256(uncompressed pubkey without prefix byte), last 20 bytes.
func PubKeyAddress(pub *secp256k1.PublicKey) string {
	digest := Keccak256(pub.SerializeUncompressed()[1:])
	return "0x" + hex.EncodeToString(digest[12:])
}

// AddressOfPriv returns the address controlled by a private key. Used by the
// oracle at startup to learn its own signing identity.
func AddressOfPriv(privHex string) (string, error) {
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privHex, "0x"))
	if err != nil || len(keyBytes) != 32 {
		return "", fmt.Errorf("invalid private key")
	}
	return PubKeyAddress(secp256k1.PrivKeyFromBytes(keyBytes).PubKey()), nil
}
