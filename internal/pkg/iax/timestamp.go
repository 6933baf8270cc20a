package iax

import "time"

// Truncated timestamp widths. Mini frames carry the low 16 bits of the
// call's 32-bit millisecond clock; video mini frames carry 15 bits, the
// top bit of the field being the keyframe marker.
const (
	miniTimestampBits      = 16
	videoMiniTimestampBits = 15
)

// reconstructTimestamp expands a truncated timestamp against the call's
// last full timestamp: the low bits are replaced bodily, with no
// wraparound correction.
func reconstructTimestamp(lastFull uint32, truncated uint32, bits uint) uint32 {
	mask := uint32(1)<<bits - 1
	return (lastFull &^ mask) | (truncated & mask)
}

// resolveTimestamp computes the frame's call-relative timestamp and
// updates the call's last full timestamp when the frame carries an
// untruncated one. Out-of-order or wrapped full timestamps are stored
// verbatim, not corrected.
func resolveTimestamp(call *CallRecord, f *Frame) uint32 {
	switch f.Kind {
	case KindFull:
		call.lastFullTimestamp = f.Timestamp
		return f.Timestamp
	case KindVideoMini:
		return reconstructTimestamp(call.lastFullTimestamp, f.Timestamp, videoMiniTimestampBits)
	default:
		return reconstructTimestamp(call.lastFullTimestamp, f.Timestamp, miniTimestampBits)
	}
}

// absoluteTime converts a call-relative millisecond timestamp to
// absolute capture time.
func absoluteTime(call *CallRecord, relative uint32) time.Time {
	return call.startTime.Add(time.Duration(relative) * time.Millisecond)
}
