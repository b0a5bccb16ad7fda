// Package wire implements the TeaVPN on-wire frame format: a fixed
// header followed by one of four kind-selected payload variants.
//
// Encoding is tied to host byte order by design — the protocol is not
// portable across endianness, which is an accepted limitation rather
// than an oversight (see DESIGN.md's internal/wire entry).
package wire

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies which payload variant follows the header.
type Kind uint8

const (
	KindAuth Kind = iota + 1
	KindData
	KindSig
	KindConf
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "AUTH"
	case KindData:
		return "DATA"
	case KindSig:
		return "SIG"
	case KindConf:
		return "CONF"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// SigKind is the payload of a SIG frame.
type SigKind uint8

const (
	SigAuthOK SigKind = iota + 1
	SigAuthReject
	SigAck
	SigDrop
	SigUnknown
)

func (s SigKind) String() string {
	switch s {
	case SigAuthOK:
		return "AUTH_OK"
	case SigAuthReject:
		return "AUTH_REJECT"
	case SigAck:
		return "ACK"
	case SigDrop:
		return "DROP"
	case SigUnknown:
		return "UNKNOWN"
	default:
		return fmt.Sprintf("SigKind(%d)", uint8(s))
	}
}

const (
	// HeaderSize is the fixed on-wire header: kind(1) + pad(1) + length(2) + seq(8).
	HeaderSize = 12

	// FrameCapacity is the largest frame a BufferSlot can hold, header included.
	FrameCapacity = 4096

	// MaxPayloadSize is the largest payload that fits after the header.
	MaxPayloadSize = FrameCapacity - HeaderSize

	// MaxDataSize is the DATA-variant payload cap named in §3.
	MaxDataSize = 4000

	// AuthUsernameCap and AuthPasswordCap bound the AUTH variant's credential regions.
	AuthUsernameCap = 256
	AuthPasswordCap = 256

	// authPayloadSize is username_len(1) + password_len(1) + username(256) + password(256).
	authPayloadSize = 2 + AuthUsernameCap + AuthPasswordCap

	// sigPayloadSize is the single signal-kind tag.
	sigPayloadSize = 1

	// Inet4Cap bounds "dotted-quad/prefix", Inet4AddrCap bounds a bare dotted quad.
	Inet4Cap     = 18
	Inet4AddrCap = 15

	// confPayloadSize is inet4(18) + inet4_broadcast(15) + inet4_route(15).
	confPayloadSize = Inet4Cap + Inet4AddrCap + Inet4AddrCap
)

var order = binary.NativeEndian

// ErrMalformed is returned by Decode whenever any of the §3 invariants is violated.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string {
	return "wire: malformed frame: " + e.Reason
}

func malformed(format string, args ...any) error {
	return &ErrMalformed{Reason: fmt.Sprintf(format, args...)}
}

// Header is the fixed-layout prefix of every frame.
type Header struct {
	Kind   Kind
	Length uint16
	Seq    uint64
}

// PutHeader writes h into buf[:HeaderSize]. buf must be at least HeaderSize long.
func PutHeader(buf []byte, h Header) {
	buf[0] = byte(h.Kind)
	buf[1] = 0
	order.PutUint16(buf[2:4], h.Length)
	order.PutUint64(buf[4:12], h.Seq)
}

// PeekHeader parses only the header, for use while a DATA frame is still
// being reassembled from successive reads. It does not validate the
// payload, only the header-level invariants from §3(a).
func PeekHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, malformed("short read: %d bytes, need %d for header", len(buf), HeaderSize)
	}
	h := Header{
		Kind:   Kind(buf[0]),
		Length: order.Uint16(buf[2:4]),
		Seq:    order.Uint64(buf[4:12]),
	}
	if int(h.Length) < HeaderSize {
		return Header{}, malformed("length %d is smaller than header size %d", h.Length, HeaderSize)
	}
	if h.Length > FrameCapacity {
		return Header{}, malformed("length %d exceeds frame capacity %d", h.Length, FrameCapacity)
	}
	return h, nil
}

// AuthPayload is the AUTH variant: credentials bounded by AuthUsernameCap/AuthPasswordCap.
type AuthPayload struct {
	Username string
	Password string
}

// ConfPayload is the CONF variant: the three ASCII address strings handed
// to the client after a successful handshake.
type ConfPayload struct {
	Inet4          string
	Inet4Broadcast string
	Inet4Route     string
}

// Frame is the parsed, typed view over a decoded on-wire region.
type Frame struct {
	Kind Kind
	Seq  uint64

	Auth AuthPayload
	Sig  SigKind
	Conf ConfPayload
	// Data is a view into the buffer passed to Decode, valid only until
	// that buffer is reused (BufferSlots are reused without clearing).
	Data []byte
}

// EncodeAuth writes an AUTH frame into buf and returns its total length.
func EncodeAuth(buf []byte, seq uint64, username, password string) (int, error) {
	if len(username) > AuthUsernameCap-1 || len(password) > AuthPasswordCap-1 {
		return 0, malformed("credential exceeds capacity: username=%d password=%d", len(username), len(password))
	}
	n := HeaderSize + authPayloadSize
	if len(buf) < n {
		return 0, malformed("buffer too small for AUTH frame: %d < %d", len(buf), n)
	}
	PutHeader(buf, Header{Kind: KindAuth, Length: uint16(n), Seq: seq})
	p := buf[HeaderSize:n]
	p[0] = byte(len(username))
	p[1] = byte(len(password))
	uField := p[2 : 2+AuthUsernameCap]
	pField := p[2+AuthUsernameCap : 2+AuthUsernameCap+AuthPasswordCap]
	clear(uField)
	clear(pField)
	copy(uField, username)
	copy(pField, password)
	return n, nil
}

// EncodeSig writes a SIG frame into buf and returns its total length.
func EncodeSig(buf []byte, seq uint64, sig SigKind) (int, error) {
	n := HeaderSize + sigPayloadSize
	if len(buf) < n {
		return 0, malformed("buffer too small for SIG frame: %d < %d", len(buf), n)
	}
	PutHeader(buf, Header{Kind: KindSig, Length: uint16(n), Seq: seq})
	buf[HeaderSize] = byte(sig)
	return n, nil
}

// EncodeConf writes a CONF frame into buf and returns its total length.
func EncodeConf(buf []byte, seq uint64, conf ConfPayload) (int, error) {
	if len(conf.Inet4) > Inet4Cap-1 || len(conf.Inet4Broadcast) > Inet4AddrCap-1 || len(conf.Inet4Route) > Inet4AddrCap-1 {
		return 0, malformed("conf string exceeds capacity")
	}
	n := HeaderSize + confPayloadSize
	if len(buf) < n {
		return 0, malformed("buffer too small for CONF frame: %d < %d", len(buf), n)
	}
	PutHeader(buf, Header{Kind: KindConf, Length: uint16(n), Seq: seq})
	p := buf[HeaderSize:n]
	inet4 := p[0:Inet4Cap]
	bcast := p[Inet4Cap : Inet4Cap+Inet4AddrCap]
	route := p[Inet4Cap+Inet4AddrCap : Inet4Cap+2*Inet4AddrCap]
	clear(inet4)
	clear(bcast)
	clear(route)
	copy(inet4, conf.Inet4)
	copy(bcast, conf.Inet4Broadcast)
	copy(route, conf.Inet4Route)
	return n, nil
}

// EncodeData writes a DATA frame carrying payload into buf and returns its total length.
func EncodeData(buf []byte, seq uint64, payload []byte) (int, error) {
	if len(payload) > MaxDataSize {
		return 0, malformed("data payload %d exceeds cap %d", len(payload), MaxDataSize)
	}
	n := HeaderSize + len(payload)
	if len(buf) < n {
		return 0, malformed("buffer too small for DATA frame: %d < %d", len(buf), n)
	}
	PutHeader(buf, Header{Kind: KindData, Length: uint16(n), Seq: seq})
	copy(buf[HeaderSize:n], payload)
	return n, nil
}

// PutSeq overwrites just the sequence field of an already-encoded
// frame in place, without touching kind/length/payload. Writer workers
// use this to stamp the authoritative outbound sequence number at
// send time, after the frame was built and fanned out against a
// placeholder sequence (§4.5: "stamped at write-time... against a
// shared outbound_seq field").
func PutSeq(buf []byte, seq uint64) {
	order.PutUint64(buf[4:12], seq)
}

// Decode parses a complete frame occupying buf[:n], where n is the
// on-wire length declared by the frame's own header (callers reassemble
// DATA frames via PeekHeader before calling Decode). The codec never
// clears unused payload bytes between frames, so Decode only ever reads
// buf[:n]; everything past n in the underlying BufferSlot is stale.
func Decode(buf []byte, n int) (Frame, error) {
	if n < HeaderSize || n > len(buf) {
		return Frame{}, malformed("decode length %d out of range for %d-byte buffer", n, len(buf))
	}
	h, err := PeekHeader(buf[:n])
	if err != nil {
		return Frame{}, err
	}
	if int(h.Length) != n {
		return Frame{}, malformed("declared length %d does not match assembled length %d", h.Length, n)
	}

	f := Frame{Kind: h.Kind, Seq: h.Seq}
	payload := buf[HeaderSize:n]

	switch h.Kind {
	case KindAuth:
		if len(payload) < authPayloadSize {
			return Frame{}, malformed("AUTH payload too short: %d", len(payload))
		}
		userLen, passLen := int(payload[0]), int(payload[1])
		if userLen > AuthUsernameCap || passLen > AuthPasswordCap {
			return Frame{}, malformed("AUTH length bytes exceed capacity: user=%d pass=%d", userLen, passLen)
		}
		uField := payload[2 : 2+AuthUsernameCap]
		pField := payload[2+AuthUsernameCap : 2+AuthUsernameCap+AuthPasswordCap]
		username, err := nulBounded(uField, userLen)
		if err != nil {
			return Frame{}, err
		}
		password, err := nulBounded(pField, passLen)
		if err != nil {
			return Frame{}, err
		}
		f.Auth = AuthPayload{Username: username, Password: password}
	case KindSig:
		if len(payload) < sigPayloadSize {
			return Frame{}, malformed("SIG payload too short: %d", len(payload))
		}
		f.Sig = SigKind(payload[0])
	case KindConf:
		if len(payload) < confPayloadSize {
			return Frame{}, malformed("CONF payload too short: %d", len(payload))
		}
		inet4 := mustNulString(payload[0:Inet4Cap])
		bcast := mustNulString(payload[Inet4Cap : Inet4Cap+Inet4AddrCap])
		route := mustNulString(payload[Inet4Cap+Inet4AddrCap : Inet4Cap+2*Inet4AddrCap])
		f.Conf = ConfPayload{Inet4: inet4, Inet4Broadcast: bcast, Inet4Route: route}
	case KindData:
		if len(payload) > MaxDataSize {
			return Frame{}, malformed("DATA payload %d exceeds cap %d", len(payload), MaxDataSize)
		}
		f.Data = payload
	default:
		return Frame{}, malformed("unknown frame kind %d", h.Kind)
	}
	return f, nil
}

// nulBounded returns the string held in field, requiring it be NUL
// terminated no later than declaredLen bytes in, per §3(b).
func nulBounded(field []byte, declaredLen int) (string, error) {
	if declaredLen > len(field) {
		return "", malformed("declared length %d exceeds field capacity %d", declaredLen, len(field))
	}
	idx := -1
	for i := 0; i <= declaredLen && i < len(field); i++ {
		if field[i] == 0 {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", malformed("field not NUL terminated within declared length %d", declaredLen)
	}
	return string(field[:idx]), nil
}

// mustNulString returns the string up to the first NUL in field, or the
// whole field if there is none within capacity (used for CONF strings,
// which have no separate declared-length byte).
func mustNulString(field []byte) string {
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field)
}
