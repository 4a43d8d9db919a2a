package crypto

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/base58"
)

const (
	// SeedLen is the size of an ed25519 secret seed.
	SeedLen = ed25519.SeedSize
	// PublicKeyLen is the size of an ed25519 public key.
	PublicKeyLen = ed25519.PublicKeySize
	// PrivateKeyLen is seed followed by public key, the layout wallets import.
	PrivateKeyLen = SeedLen + PublicKeyLen
)

// Errors
var (
	ErrInvalidPrivateKey = errors.New("private key must decode to 64 bytes")
	ErrKeyMismatch       = errors.New("public key does not match seed")
)

// Keypair is one candidate signing keypair.
type Keypair struct {
	Seed   [SeedLen]byte
	Public [PublicKeyLen]byte
}

// DeriveKeypair expands seed into its ed25519 keypair. Every 32-byte seed is valid.
func DeriveKeypair(seed *[SeedLen]byte) Keypair {
	priv := ed25519.NewKeyFromSeed(seed[:])
	var kp Keypair
	kp.Seed = *seed
	copy(kp.Public[:], priv[SeedLen:])
	return kp
}

// Address returns the base-58 text of the public key.
func (kp *Keypair) Address() string {
	return base58.Encode(kp.Public[:])
}

// PrivateKey returns the base-58 encoding of seed || public.
func (kp *Keypair) PrivateKey() string {
	return EncodePrivateKey(&kp.Seed, &kp.Public)
}

// EncodePrivateKey concatenates seed and public key and encodes them as base-58.
func EncodePrivateKey(seed *[SeedLen]byte, public *[PublicKeyLen]byte) string {
	var buf [PrivateKeyLen]byte
	copy(buf[:SeedLen], seed[:])
	copy(buf[SeedLen:], public[:])
	return base58.Encode(buf[:])
}

// DecodePrivateKey reverses EncodePrivateKey and checks that the public half
// belongs to the seed.
func DecodePrivateKey(s string) (Keypair, error) {
	var kp Keypair
	raw := base58.Decode(s)
	if len(raw) != PrivateKeyLen {
		return kp, fmt.Errorf("%w: got %d", ErrInvalidPrivateKey, len(raw))
	}
	copy(kp.Seed[:], raw[:SeedLen])
	copy(kp.Public[:], raw[SeedLen:])

	derived := DeriveKeypair(&kp.Seed)
	if !bytes.Equal(derived.Public[:], kp.Public[:]) {
		return kp, ErrKeyMismatch
	}
	return kp, nil
}

// DecodeAddress decodes a base-58 address into a public key.
func DecodeAddress(addr string) ([PublicKeyLen]byte, error) {
	var pub [PublicKeyLen]byte
	raw := base58.Decode(addr)
	if len(raw) != PublicKeyLen {
		return pub, fmt.Errorf("invalid address length: got %d bytes, want %d", len(raw), PublicKeyLen)
	}
	copy(pub[:], raw)
	return pub, nil
}
