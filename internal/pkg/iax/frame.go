package iax

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

var (
	// ErrShortFrame indicates a datagram too small to carry any IAX2 frame.
	ErrShortFrame = errors.New("datagram too short for IAX2 frame")

	// ErrUnknownMeta indicates a meta frame whose command is not understood.
	ErrUnknownMeta = errors.New("unrecognized meta frame")
)

// FrameKind distinguishes the three on-wire frame layouts.
type FrameKind uint8

const (
	// KindFull is a 12-byte-header frame with a 32-bit timestamp.
	KindFull FrameKind = iota
	// KindMini is a 4-byte-header media frame with a 16-bit timestamp.
	KindMini
	// KindVideoMini is a meta video frame with a 15-bit timestamp whose
	// top bit is a marker flag.
	KindVideoMini
)

func (k FrameKind) String() string {
	switch k {
	case KindFull:
		return "full"
	case KindMini:
		return "mini"
	case KindVideoMini:
		return "video-mini"
	default:
		return "unknown"
	}
}

// IE is one information element from a full frame.
type IE struct {
	Type IEType
	Data []byte
}

// Frame is one decoded IAX2 datagram. Mini and video-mini frames fill
// only SrcCallNumber, Timestamp and Payload; the remaining header fields
// are meaningful for full frames only.
type Frame struct {
	Kind          FrameKind
	Retransmit    bool
	SrcCallNumber uint16
	DstCallNumber uint16
	HasDstCall    bool
	Timestamp     uint32
	Marker        bool
	OSeqNo        uint8
	ISeqNo        uint8
	Type          FrameType
	Subclass      Subclass
	IEs           []IE
	Payload       []byte
}

// IsInitiation reports whether the frame starts a new call.
func (f *Frame) IsInitiation() bool {
	return f.Kind == KindFull && f.Type == FrameIAXControl && f.Subclass == IAXNew
}

// CarriesMedia reports whether the frame's payload belongs to the call's
// media/data channel.
func (f *Frame) CarriesMedia() bool {
	switch f.Kind {
	case KindMini, KindVideoMini:
		return true
	case KindFull:
		return f.Type == FrameVoice || f.Type == FrameVideo
	default:
		return false
	}
}

// FindIE returns the first information element of the given type.
func (f *Frame) FindIE(t IEType) (IE, bool) {
	for _, ie := range f.IEs {
		if ie.Type == t {
			return ie, true
		}
	}
	return IE{}, false
}

// DecodeFrame decodes one UDP datagram into a Frame. Malformed trailing
// information elements are reported in notes and skipped; they do not
// fail the whole frame.
func DecodeFrame(data []byte) (*Frame, []string, error) {
	if len(data) < miniHeaderLen {
		return nil, nil, ErrShortFrame
	}

	first := binary.BigEndian.Uint16(data[0:2])
	switch {
	case first&0x8000 != 0:
		return decodeFullFrame(data)
	case first == 0:
		return decodeMetaFrame(data)
	default:
		return decodeMiniFrame(data)
	}
}

func decodeFullFrame(data []byte) (*Frame, []string, error) {
	if len(data) < fullHeaderLen {
		return nil, nil, ErrShortFrame
	}

	dst := binary.BigEndian.Uint16(data[2:4])
	f := &Frame{
		Kind:          KindFull,
		SrcCallNumber: binary.BigEndian.Uint16(data[0:2]) & 0x7fff,
		DstCallNumber: dst & 0x7fff,
		Retransmit:    dst&0x8000 != 0,
		Timestamp:     binary.BigEndian.Uint32(data[4:8]),
		OSeqNo:        data[8],
		ISeqNo:        data[9],
		Type:          FrameType(data[10]),
		Subclass:      Subclass(data[11]),
	}
	f.HasDstCall = f.DstCallNumber != 0

	var notes []string
	body := data[fullHeaderLen:]
	// Information elements appear on IAX frames only; control frame
	// bodies stay opaque.
	if f.Type == FrameIAXControl {
		f.IEs, notes = decodeIEs(body)
	} else if len(body) > 0 {
		f.Payload = body
	}
	return f, notes, nil
}

func decodeMiniFrame(data []byte) (*Frame, []string, error) {
	f := &Frame{
		Kind:          KindMini,
		SrcCallNumber: binary.BigEndian.Uint16(data[0:2]),
		Timestamp:     uint32(binary.BigEndian.Uint16(data[2:4])),
		Type:          FrameVoice,
	}
	if len(data) > miniHeaderLen {
		f.Payload = data[miniHeaderLen:]
	}
	return f, nil, nil
}

// decodeMetaFrame handles meta frames (first 16 bits zero). The only
// recognized meta command is the video mini frame: a 15-bit source call
// number with the video bit set, then a 16-bit timestamp slot whose top
// bit is the keyframe marker.
func decodeMetaFrame(data []byte) (*Frame, []string, error) {
	if len(data) < metaHeaderLen {
		return nil, nil, ErrShortFrame
	}

	vcall := binary.BigEndian.Uint16(data[2:4])
	if vcall&0x8000 == 0 {
		return nil, nil, ErrUnknownMeta
	}

	ts := binary.BigEndian.Uint16(data[4:6])
	f := &Frame{
		Kind:          KindVideoMini,
		SrcCallNumber: vcall & 0x7fff,
		Timestamp:     uint32(ts & 0x7fff),
		Marker:        ts&0x8000 != 0,
		Type:          FrameVideo,
	}
	if len(data) > metaHeaderLen {
		f.Payload = data[metaHeaderLen:]
	}
	return f, nil, nil
}

// decodeIEs walks the (type, length, data) list after a full frame
// header. An element whose declared length overruns the buffer is
// reported and skipped along with the rest of the buffer, since the
// list can no longer be framed reliably.
func decodeIEs(data []byte) ([]IE, []string) {
	var ies []IE
	var notes []string
	for off := 0; off+2 <= len(data); {
		ieType := IEType(data[off])
		ieLen := int(data[off+1])
		if off+2+ieLen > len(data) {
			notes = append(notes, fmt.Sprintf(
				"information element 0x%02x: declared length %d overruns buffer (%d bytes left)",
				uint8(ieType), ieLen, len(data)-off-2))
			break
		}
		ies = append(ies, IE{Type: ieType, Data: data[off+2 : off+2+ieLen]})
		off += 2 + ieLen
	}
	return ies, notes
}

// Uint32 interprets the element as a 32-bit big-endian value.
func (ie IE) Uint32() (uint32, error) {
	if len(ie.Data) != 4 {
		return 0, fmt.Errorf("information element 0x%02x: expected 4 bytes, got %d", uint8(ie.Type), len(ie.Data))
	}
	return binary.BigEndian.Uint32(ie.Data), nil
}

// Uint16 interprets the element as a 16-bit big-endian value.
func (ie IE) Uint16() (uint16, error) {
	if len(ie.Data) != 2 {
		return 0, fmt.Errorf("information element 0x%02x: expected 2 bytes, got %d", uint8(ie.Type), len(ie.Data))
	}
	return binary.BigEndian.Uint16(ie.Data), nil
}

// String interprets the element as text.
func (ie IE) String() string {
	return string(ie.Data)
}

// ApparentAddr interprets the element as a sockaddr_in layout: 2 bytes
// of address family, a 16-bit port and a 4-byte IPv4 address.
func (ie IE) ApparentAddr() (netip.Addr, uint16, error) {
	if len(ie.Data) < 8 {
		return netip.Addr{}, 0, fmt.Errorf("apparent address: expected at least 8 bytes, got %d", len(ie.Data))
	}
	port := binary.BigEndian.Uint16(ie.Data[2:4])
	addr, ok := netip.AddrFromSlice(ie.Data[4:8])
	if !ok {
		return netip.Addr{}, 0, errors.New("apparent address: invalid address bytes")
	}
	return addr, port, nil
}

// MediaCodec expands the subclass of a media full frame to a codec
// bitmask. A subclass with the high bit set encodes the codec as a
// power of two.
func (f *Frame) MediaCodec() Codec {
	if f.Kind != KindFull {
		return CodecNone
	}
	if f.Type != FrameVoice && f.Type != FrameVideo {
		return CodecNone
	}
	sub := uint8(f.Subclass)
	if sub&0x80 != 0 {
		return Codec(1) << (sub & 0x7f)
	}
	return Codec(sub)
}
