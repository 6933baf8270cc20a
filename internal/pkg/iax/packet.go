package iax

import (
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// PacketFromCapture builds an analyzer Packet from a captured gopacket
// packet. It returns false when the packet carries no UDP/IAX2 payload.
func PacketFromCapture(num uint32, packet gopacket.Packet) (*Packet, bool) {
	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return nil, false
	}
	udp, ok := udpLayer.(*layers.UDP)
	if !ok || len(udp.Payload) == 0 {
		return nil, false
	}

	netLayer := packet.NetworkLayer()
	if netLayer == nil {
		return nil, false
	}
	src, ok := netip.AddrFromSlice(netLayer.NetworkFlow().Src().Raw())
	if !ok {
		return nil, false
	}
	dst, ok := netip.AddrFromSlice(netLayer.NetworkFlow().Dst().Raw())
	if !ok {
		return nil, false
	}

	return &Packet{
		Num:       num,
		Timestamp: packet.Metadata().Timestamp,
		SrcAddr:   src,
		SrcPort:   uint16(udp.SrcPort),
		DstAddr:   dst,
		DstPort:   uint16(udp.DstPort),
		PortKind:  PortKindUDP,
		Payload:   udp.Payload,
	}, true
}
