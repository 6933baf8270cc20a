package pcaptypes

import "github.com/google/gopacket/pcap"

// MaxPcapSnapshotLen is the maximum packet capture size.
const MaxPcapSnapshotLen = 65535

// PcapInterface abstracts a source of captured packets.
type PcapInterface interface {
	SetHandle() error
	Handle() (*pcap.Handle, error)
	Close()
}

// CreateOfflineInterface returns an interface backed by a capture file.
func CreateOfflineInterface(path string) PcapInterface {
	return &offlineInterface{path: path}
}
