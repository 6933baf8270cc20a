package capture

import (
	"context"
	"fmt"

	"github.com/endorses/iaxcat/internal/pkg/capture/pcaptypes"
	"github.com/endorses/iaxcat/internal/pkg/constants"
	"github.com/endorses/iaxcat/internal/pkg/logger"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// PacketInfo is one captured packet plus the link type it arrived on.
type PacketInfo struct {
	LinkType layers.LinkType
	Packet   gopacket.Packet
}

// Run opens the interface, applies the BPF filter and feeds packets to
// the processor over a buffered channel until the source is exhausted
// or the context is cancelled. The processor runs on the calling
// goroutine.
func Run(ctx context.Context, iface pcaptypes.PcapInterface, filter string, processor func(<-chan PacketInfo)) error {
	if err := iface.SetHandle(); err != nil {
		return fmt.Errorf("failed to open capture source: %w", err)
	}
	defer iface.Close()

	handle, err := iface.Handle()
	if err != nil {
		return err
	}
	if filter != "" {
		if err := handle.SetBPFFilter(filter); err != nil {
			return fmt.Errorf("failed to set BPF filter %q: %w", filter, err)
		}
	}

	packetChan := make(chan PacketInfo, constants.PacketChannelBuffer)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		defer close(packetChan)
		source := gopacket.NewPacketSource(handle, handle.LinkType())
		for packet := range source.Packets() {
			select {
			case packetChan <- PacketInfo{LinkType: handle.LinkType(), Packet: packet}:
			case <-ctx.Done():
				logger.Debug("capture pump cancelled")
				return
			}
		}
	}()

	processor(packetChan)
	// The pump may still be reading from the handle after the processor
	// returns; the deferred Close must not run until it has exited.
	<-pumpDone
	return nil
}
