// Package protocol encodes input events into the fixed binary packets
// understood by the streaming host.
package protocol

import (
	"encoding/binary"
	"errors"
	"sync"

	"inputlink/internal/input"
)

// Packet type tags, written big-endian in the first 4 bytes of every packet.
// Keyboard and scroll share a tag and are told apart by the scroll magic.
const (
	TypeMouseButton     uint32 = 0x05
	TypeMouseMove       uint32 = 0x08
	TypeKeyboard        uint32 = 0x0A
	TypeScroll          uint32 = 0x0A
	TypeController      uint32 = 0x18
	TypeMultiController uint32 = 0x1E
)

// Layout constants.
const (
	mouseMoveMagic uint32 = 0x06000000
	scrollMagic    uint8  = 0x09

	controllerHeaderA uint32 = 0x0000000A
	controllerHeaderB uint16 = 0x1400
	controllerTailA   uint32 = 0x0000009C
	controllerTailB   uint16 = 0x0055

	multiHeaderA uint32 = 0x0000000D
	multiHeaderB uint16 = 0x001A
	multiMidA    uint16 = 0x000F
	multiMidB    uint16 = 0x0014
	multiTailA   uint32 = 0x0000009C
	multiTailB   uint16 = 0x0055

	// WheelDelta is the scroll amount of one wheel click.
	WheelDelta = 120
)

// Wire sizes of each layout:
//
//	MouseMove       tag(4) magic(4) dx(2) dy(2)                                       = 12 bytes
//	MouseButton     tag(4) action(1) button(4)                                        =  9 bytes
//	Keyboard        tag(4) action(1) zero(4) code(2) mods(1) zero(2)                  = 14 bytes
//	Controller      tag(4) hdrA(4) hdrB(2) btn(2) lt(1) rt(1) sticks(8) tailA(4) tailB(2) = 28 bytes
//	MultiController tag(4) hdrA(4) hdrB(2) num(2) midA(2) midB(2) btn(2) lt rt sticks(8) tail(6) = 34 bytes
//	Scroll          tag(4) magic(1) zero(1) zero(2) amt(2) amt(2) zero(2)             = 14 bytes
const (
	SizeMouseMove       = 12
	SizeMouseButton     = 9
	SizeKeyboard        = 14
	SizeController      = 28
	SizeMultiController = 34
	SizeScroll          = 14
)

// MaxPacketSize bounds every plaintext packet.
const MaxPacketSize = 128

// LegacyGeneration is the only server generation that predates multi-controller support.
const LegacyGeneration Generation = 3

// Generation is the negotiated major version of the remote host.
type Generation int

// MultiController reports whether gamepad events use the multi-controller layout.
func (g Generation) MultiController() bool {
	return g != LegacyGeneration
}

var (
	ErrUnknownKind = errors.New("protocol: unknown event kind")
	ErrShortPacket = errors.New("protocol: packet too short")
	ErrUnknownType = errors.New("protocol: unknown packet type")
)

// Packet holds one encoded, not yet encrypted input packet.
type Packet struct {
	buf [MaxPacketSize]byte
	n   int
}

// Bytes returns the encoded packet.
func (p *Packet) Bytes() []byte {
	return p.buf[:p.n]
}

// Len returns the encoded length.
func (p *Packet) Len() int {
	return p.n
}

var packetPool = sync.Pool{
	New: func() any { return new(Packet) },
}

// Release zeroes the packet and returns it to the pool. The caller must not
// use p afterwards.
func Release(p *Packet) {
	if p == nil {
		return
	}
	clear(p.buf[:p.n])
	p.n = 0
	packetPool.Put(p)
}

// Size returns the wire size of the layout used for kind at the given generation.
func Size(kind input.Kind, gen Generation) int {
	switch kind {
	case input.KindMouseMove:
		return SizeMouseMove
	case input.KindMouseButton:
		return SizeMouseButton
	case input.KindKey:
		return SizeKeyboard
	case input.KindGamepad:
		if gen.MultiController() {
			return SizeMultiController
		}
		return SizeController
	case input.KindScroll:
		return SizeScroll
	default:
		return 0
	}
}

// Encode serializes ev into a pooled packet. Ownership of the returned packet
// passes to the caller, who must eventually Release it.
func Encode(ev input.Event, gen Generation) (*Packet, error) {
	size := Size(ev.Kind, gen)
	if size == 0 {
		return nil, ErrUnknownKind
	}

	p := packetPool.Get().(*Packet)
	p.n = size
	buf := p.buf[:size]
	be := binary.BigEndian
	le := binary.LittleEndian

	switch ev.Kind {
	case input.KindMouseMove:
		be.PutUint32(buf[0:4], TypeMouseMove)
		be.PutUint32(buf[4:8], mouseMoveMagic)
		be.PutUint16(buf[8:10], uint16(ev.DeltaX))
		be.PutUint16(buf[10:12], uint16(ev.DeltaY))

	case input.KindMouseButton:
		be.PutUint32(buf[0:4], TypeMouseButton)
		buf[4] = ev.ButtonAction
		be.PutUint32(buf[5:9], uint32(ev.Button))

	case input.KindKey:
		be.PutUint32(buf[0:4], TypeKeyboard)
		buf[4] = ev.KeyAction
		le.PutUint32(buf[5:9], 0)
		le.PutUint16(buf[9:11], uint16(ev.KeyCode))
		buf[11] = ev.Modifiers
		le.PutUint16(buf[12:14], 0)

	case input.KindGamepad:
		if gen.MultiController() {
			be.PutUint32(buf[0:4], TypeMultiController)
			le.PutUint32(buf[4:8], multiHeaderA)
			le.PutUint16(buf[8:10], multiHeaderB)
			le.PutUint16(buf[10:12], uint16(ev.Controller))
			le.PutUint16(buf[12:14], multiMidA)
			le.PutUint16(buf[14:16], multiMidB)
			putGamepadState(buf[16:28], ev)
			le.PutUint32(buf[28:32], multiTailA)
			le.PutUint16(buf[32:34], multiTailB)
		} else {
			be.PutUint32(buf[0:4], TypeController)
			le.PutUint32(buf[4:8], controllerHeaderA)
			le.PutUint16(buf[8:10], controllerHeaderB)
			putGamepadState(buf[10:22], ev)
			le.PutUint32(buf[22:26], controllerTailA)
			le.PutUint16(buf[26:28], controllerTailB)
		}

	case input.KindScroll:
		amount := uint16(int16(ev.Clicks) * WheelDelta)
		be.PutUint32(buf[0:4], TypeScroll)
		buf[4] = scrollMagic
		buf[5] = 0
		be.PutUint16(buf[6:8], 0)
		be.PutUint16(buf[8:10], amount)
		be.PutUint16(buf[10:12], amount)
		be.PutUint16(buf[12:14], 0)
	}

	return p, nil
}

// putGamepadState writes buttons, triggers and sticks (12 bytes) in host order.
func putGamepadState(b []byte, ev input.Event) {
	le := binary.LittleEndian
	le.PutUint16(b[0:2], ev.Buttons)
	b[2] = ev.LeftTrigger
	b[3] = ev.RightTrigger
	le.PutUint16(b[4:6], uint16(ev.LeftStickX))
	le.PutUint16(b[6:8], uint16(ev.LeftStickY))
	le.PutUint16(b[8:10], uint16(ev.RightStickX))
	le.PutUint16(b[10:12], uint16(ev.RightStickY))
}
