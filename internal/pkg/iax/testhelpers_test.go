package iax

import (
	"encoding/binary"
	"net/netip"
	"time"
)

var (
	hostA = netip.MustParseAddr("192.0.2.1")
	hostB = netip.MustParseAddr("192.0.2.2")
	hostC = netip.MustParseAddr("192.0.2.3")

	baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
)

type fullFrameSpec struct {
	src, dst   uint16
	retransmit bool
	ts         uint32
	oseq, iseq uint8
	ftype      FrameType
	sub        Subclass
	ies        []IE
	payload    []byte
}

func encodeFull(spec fullFrameSpec) []byte {
	size := fullHeaderLen
	for _, ie := range spec.ies {
		size += 2 + len(ie.Data)
	}
	size += len(spec.payload)

	buf := make([]byte, size)
	binary.BigEndian.PutUint16(buf[0:], spec.src|0x8000)
	dst := spec.dst
	if spec.retransmit {
		dst |= 0x8000
	}
	binary.BigEndian.PutUint16(buf[2:], dst)
	binary.BigEndian.PutUint32(buf[4:], spec.ts)
	buf[8] = spec.oseq
	buf[9] = spec.iseq
	buf[10] = byte(spec.ftype)
	buf[11] = byte(spec.sub)

	off := fullHeaderLen
	for _, ie := range spec.ies {
		buf[off] = byte(ie.Type)
		buf[off+1] = byte(len(ie.Data))
		copy(buf[off+2:], ie.Data)
		off += 2 + len(ie.Data)
	}
	copy(buf[off:], spec.payload)
	return buf
}

func encodeMini(src uint16, ts16 uint16, payload []byte) []byte {
	buf := make([]byte, miniHeaderLen+len(payload))
	binary.BigEndian.PutUint16(buf[0:], src&0x7fff)
	binary.BigEndian.PutUint16(buf[2:], ts16)
	copy(buf[miniHeaderLen:], payload)
	return buf
}

func encodeVideoMini(src uint16, ts15 uint16, marker bool, payload []byte) []byte {
	buf := make([]byte, metaHeaderLen+len(payload))
	binary.BigEndian.PutUint16(buf[2:], src|0x8000)
	ts := ts15 & 0x7fff
	if marker {
		ts |= 0x8000
	}
	binary.BigEndian.PutUint16(buf[4:], ts)
	copy(buf[metaHeaderLen:], payload)
	return buf
}

func ieUint32(t IEType, v uint32) IE {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, v)
	return IE{Type: t, Data: data}
}

func ieUint16(t IEType, v uint16) IE {
	data := make([]byte, 2)
	binary.BigEndian.PutUint16(data, v)
	return IE{Type: t, Data: data}
}

func ieApparentAddr(addr netip.Addr, port uint16) IE {
	data := make([]byte, 16)
	binary.BigEndian.PutUint16(data[0:], 2) // AF_INET
	binary.BigEndian.PutUint16(data[2:], port)
	a4 := addr.As4()
	copy(data[4:8], a4[:])
	return IE{Type: IEApparentAddr, Data: data}
}

func testPacket(num uint32, src netip.Addr, sport uint16, dst netip.Addr, dport uint16, payload []byte) *Packet {
	return &Packet{
		Num:       num,
		Timestamp: baseTime.Add(time.Duration(num) * 20 * time.Millisecond),
		SrcAddr:   src,
		SrcPort:   sport,
		DstAddr:   dst,
		DstPort:   dport,
		PortKind:  PortKindUDP,
		Payload:   payload,
	}
}

// newCallPacket builds an initiation packet carrying the given IEs.
func newCallPacket(num uint32, src netip.Addr, sport uint16, dst netip.Addr, dport uint16, srcCall uint16, ies ...IE) *Packet {
	payload := encodeFull(fullFrameSpec{
		src:   srcCall,
		ftype: FrameIAXControl,
		sub:   IAXNew,
		ies:   ies,
	})
	return testPacket(num, src, sport, dst, dport, payload)
}

// scriptedHandler replays a fixed sequence of results, recording every
// buffer it is shown.
type scriptedHandler struct {
	script []HandlerResult
	calls  [][]byte
}

func (h *scriptedHandler) Name() string { return "scripted" }

func (h *scriptedHandler) Handle(data []byte) HandlerResult {
	h.calls = append(h.calls, append([]byte(nil), data...))
	if len(h.script) == 0 {
		return HandlerResult{Consumed: len(data)}
	}
	res := h.script[0]
	h.script = h.script[1:]
	return res
}
