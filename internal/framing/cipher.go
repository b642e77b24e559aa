// Package framing encrypts encoded packets and frames them for the wire.
//
// A framed message is the ciphertext length as a big-endian uint32 followed
// by the ciphertext, written to the transport in a single call. The receiver
// rejects messages whose header and body arrive in separate writes.
package framing

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"inputlink/internal/protocol"
)

// HeaderSize is the length prefix in front of each ciphertext.
const HeaderSize = 4

// MaxCiphertextSize is the largest ciphertext a packet can produce.
const MaxCiphertextSize = (protocol.MaxPacketSize + aes.BlockSize - 1) / aes.BlockSize * aes.BlockSize

var (
	ErrInvalidIV      = errors.New("framing: IV must be one cipher block long")
	ErrInvalidKey     = errors.New("framing: key must be 16, 24 or 32 bytes")
	ErrPacketTooLarge = errors.New("framing: packet exceeds maximum size")
	ErrBadCiphertext  = errors.New("framing: ciphertext is not a whole number of blocks")
	ErrFrameTooLarge  = errors.New("framing: frame length exceeds limit")
)

// keyState holds the key and session IV. The IV seeds the CBC chain of each
// stream; the chain itself lives in the Sealer or Opener.
type keyState struct {
	key   []byte
	iv    [aes.BlockSize]byte
	block cipher.Block
}

func newKeyState(key, iv []byte) (*keyState, error) {
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidIV, len(iv), aes.BlockSize)
	}
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(key))
	}

	ks := &keyState{key: append([]byte(nil), key...)}
	copy(ks.iv[:], iv)
	block, err := aes.NewCipher(ks.key)
	if err != nil {
		return nil, err
	}
	ks.block = block
	return ks, nil
}

// wipe zeroes the key copy and drops the cipher.
func (ks *keyState) wipe() {
	clear(ks.key)
	clear(ks.iv[:])
	ks.key = nil
	ks.block = nil
}

// CiphertextLen returns the ciphertext length for a plaintext of n bytes.
// Block-aligned plaintexts are not padded.
func CiphertextLen(n int) int {
	if rem := n % aes.BlockSize; rem != 0 {
		return n + aes.BlockSize - rem
	}
	return n
}

// pad fills dst[n:CiphertextLen(n)] with 1, 2, 3, ...
func pad(dst []byte, n int) {
	for i, j := n, byte(1); i < len(dst); i, j = i+1, j+1 {
		dst[i] = j
	}
}
