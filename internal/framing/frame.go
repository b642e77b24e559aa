package framing

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"inputlink/internal/protocol"
)

// ErrWiped is returned when a Sealer or Opener is used after Wipe.
var ErrWiped = errors.New("framing: key material has been wiped")

// Buffer is the scratch space one Seal call writes into. The first HeaderSize
// bytes are headroom for the length prefix, so the framed message is one
// contiguous slice without a second allocation or copy.
type Buffer [HeaderSize + MaxCiphertextSize]byte

// Sealer encrypts and frames packets. CBC state carries over from one packet
// to the next, so a Sealer serves one stream at a time. It is not safe for
// concurrent use; the sender owns it.
type Sealer struct {
	ks  *keyState
	enc cipher.BlockMode
}

// NewSealer returns a Sealer keyed with key and the session IV.
func NewSealer(key, iv []byte) (*Sealer, error) {
	ks, err := newKeyState(key, iv)
	if err != nil {
		return nil, err
	}
	s := &Sealer{ks: ks}
	s.Reset()
	return s, nil
}

// Reset restarts the CBC chain from the session IV. Call it before sealing
// the first packet of a new connection.
func (s *Sealer) Reset() {
	if s.ks.block == nil {
		return
	}
	s.enc = cipher.NewCBCEncrypter(s.ks.block, s.ks.iv[:])
}

// Seal encrypts plain into buf and returns the framed message
// [length:4][ciphertext] as a slice of buf.
func (s *Sealer) Seal(buf *Buffer, plain []byte) ([]byte, error) {
	if s.ks.block == nil {
		return nil, ErrWiped
	}
	if len(plain) > protocol.MaxPacketSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooLarge, len(plain))
	}

	n := CiphertextLen(len(plain))
	body := buf[HeaderSize : HeaderSize+n]
	copy(body, plain)
	pad(body, len(plain))
	s.enc.CryptBlocks(body, body)

	binary.BigEndian.PutUint32(buf[:HeaderSize], uint32(n))
	return buf[:HeaderSize+n], nil
}

// Wipe zeroes the key material. Seal fails afterwards.
func (s *Sealer) Wipe() {
	s.ks.wipe()
	s.enc = nil
}

// Opener reverses Seal on the receiving side. Like Sealer it chains across
// packets, so each incoming stream needs its own Opener.
type Opener struct {
	ks  *keyState
	dec cipher.BlockMode
}

// NewOpener returns an Opener for the given key and IV.
func NewOpener(key, iv []byte) (*Opener, error) {
	ks, err := newKeyState(key, iv)
	if err != nil {
		return nil, err
	}
	return newOpener(ks), nil
}

func newOpener(ks *keyState) *Opener {
	return &Opener{ks: ks, dec: cipher.NewCBCDecrypter(ks.block, ks.iv[:])}
}

// NewStream returns an Opener sharing o's key material whose chain starts
// again from the session IV. Wiping o also disables it.
func (o *Opener) NewStream() (*Opener, error) {
	if o.ks.block == nil {
		return nil, ErrWiped
	}
	return newOpener(o.ks), nil
}

// Open decrypts a ciphertext body (without its length prefix). The result
// still carries any padding; packet decoding ignores it.
func (o *Opener) Open(ct []byte) ([]byte, error) {
	if o.ks.block == nil {
		return nil, ErrWiped
	}
	if len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrBadCiphertext, len(ct))
	}
	out := make([]byte, len(ct))
	o.dec.CryptBlocks(out, ct)
	return out, nil
}

// Wipe zeroes the key material.
func (o *Opener) Wipe() {
	o.ks.wipe()
	o.dec = nil
}

// ReadFrame reads one length-prefixed message from r and returns its body.
// Frames longer than limit are rejected before reading the body.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if int64(n) > int64(limit) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limit)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}
