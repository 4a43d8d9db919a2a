package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20"
)

const (
	// keystream bytes produced per refill
	streamBufLen = 4096
	// rekey well before the 32-bit ChaCha20 block counter can wrap
	rekeyAfter = 1 << 36
)

// ErrEntropy is returned when the operating system cannot provide randomness.
var ErrEntropy = errors.New("failed to read OS entropy")

// KeySource produces uniformly random seeds from a ChaCha20 keystream keyed
// from OS entropy. One KeySource per worker; it is not safe for concurrent use.
type KeySource struct {
	entropy io.Reader
	cipher  *chacha20.Cipher
	zeros   [streamBufLen]byte
	buf     [streamBufLen]byte
	off     int
	emitted uint64
}

// NewKeySource returns a KeySource keyed from crypto/rand.
func NewKeySource() (*KeySource, error) {
	return NewKeySourceFrom(rand.Reader)
}

// NewKeySourceFrom returns a KeySource keyed from r. Deterministic readers
// make the stream reproducible, which tests rely on.
func NewKeySourceFrom(r io.Reader) (*KeySource, error) {
	ks := &KeySource{entropy: r}
	if err := ks.rekey(); err != nil {
		return nil, err
	}
	return ks, nil
}

func (ks *KeySource) rekey() error {
	var material [chacha20.KeySize + chacha20.NonceSize]byte
	if _, err := io.ReadFull(ks.entropy, material[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrEntropy, err)
	}
	c, err := chacha20.NewUnauthenticatedCipher(material[:chacha20.KeySize], material[chacha20.KeySize:])
	if err != nil {
		return fmt.Errorf("chacha20 init: %w", err)
	}
	ks.cipher = c
	ks.emitted = 0
	ks.off = streamBufLen
	return nil
}

// Next fills seed with fresh random bytes.
func (ks *KeySource) Next(seed *[SeedLen]byte) error {
	if ks.off+SeedLen > streamBufLen {
		if ks.emitted >= rekeyAfter {
			if err := ks.rekey(); err != nil {
				return err
			}
		}
		ks.cipher.XORKeyStream(ks.buf[:], ks.zeros[:])
		ks.emitted += streamBufLen
		ks.off = 0
	}
	copy(seed[:], ks.buf[ks.off:ks.off+SeedLen])
	ks.off += SeedLen
	return nil
}
