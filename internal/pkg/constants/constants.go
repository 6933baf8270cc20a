// Package constants provides shared constants used across iaxcat components.
package constants

// Channel buffer sizes
const (
	// SignalChannelBuffer is the buffer size for OS signal channels;
	// signals are infrequent and must never block the sender
	SignalChannelBuffer = 1

	// PacketChannelBuffer is the default buffer for the packet pump
	// between the pcap reader and the analyzer
	PacketChannelBuffer = 1000
)
