package iax

import (
	"errors"
	"time"
)

// Direction classifies a packet relative to a call's canonical
// orientation: forward is the side that sent the call initiation.
type Direction uint8

const (
	DirForward Direction = iota
	DirReverse
)

func (d Direction) String() string {
	if d == DirReverse {
		return "reverse"
	}
	return "forward"
}

// Opposite returns the other direction.
func (d Direction) Opposite() Direction {
	if d == DirForward {
		return DirReverse
	}
	return DirForward
}

// CallID references a call record in the session's call store. Zero
// means "no call".
type CallID uint32

// ErrTransferCapacity reports a transfer that would exceed the fixed
// per-direction circuit limit. Non-fatal; the extra transfer is ignored.
var ErrTransferCapacity = errors.New("transfer circuit limit reached for direction")

// desegState is the per-direction fragment accumulation slot.
type desegState struct {
	fragID    uint32 // open fragment, 0 when idle
	have      int    // bytes accumulated so far
	need      int    // minimum total length before the next delivery attempt
	delivered int    // prefix already consumed by the handler as complete messages
}

func (d *desegState) idle() bool {
	return d.fragID == 0
}

func (d *desegState) reset() {
	*d = desegState{}
}

// CallRecord accumulates the state of one logical call for the life of
// the analysis session. Records are referenced by CallID only and are
// never destroyed mid-session.
type CallRecord struct {
	id CallID

	// Up to maxCircuitsPerDirection circuits per direction; mid-call
	// transfers re-home a direction onto an additional circuit.
	forward []CircuitID
	reverse []CircuitID

	// startTime backs absolute-time reconstruction. It is the capture
	// time of the initiation packet minus a small epsilon so packets at
	// relative time zero still sort after the call start.
	startTime time.Time

	// lastFullTimestamp is the most recent untruncated timestamp seen,
	// used to expand 16/15-bit truncated ones.
	lastFullTimestamp uint32

	// Negotiated data-channel format and its handler; both set at most
	// once, on the initiation packet.
	dataFormat DataFormat
	handler    PayloadHandler

	// Per-direction media codecs, updated only on first-pass analysis.
	audioCodec [2]Codec
	videoCodec [2]Codec

	// Per-direction fragment accumulation slots.
	deseg [2]desegState
}

// ID returns the call's session-scoped identifier.
func (c *CallRecord) ID() CallID { return c.id }

// StartTime returns the call's absolute start time.
func (c *CallRecord) StartTime() time.Time { return c.startTime }

// DataFormat returns the negotiated data-channel format, or
// DataFormatNone.
func (c *CallRecord) DataFormat() DataFormat { return c.dataFormat }

// AudioCodec returns the negotiated audio codec for a direction.
func (c *CallRecord) AudioCodec(dir Direction) Codec { return c.audioCodec[dir] }

// VideoCodec returns the negotiated video codec for a direction.
func (c *CallRecord) VideoCodec(dir Direction) Codec { return c.videoCodec[dir] }

// ForwardCircuits returns the call's forward circuit ids.
func (c *CallRecord) ForwardCircuits() []CircuitID { return c.forward }

// ReverseCircuits returns the call's reverse circuit ids.
func (c *CallRecord) ReverseCircuits() []CircuitID { return c.reverse }

func (c *CallRecord) circuits(dir Direction) []CircuitID {
	if dir == DirReverse {
		return c.reverse
	}
	return c.forward
}

// addCircuit records an additional circuit for a direction, up to the
// fixed per-direction maximum.
func (c *CallRecord) addCircuit(dir Direction, id CircuitID) error {
	list := c.circuits(dir)
	if len(list) >= maxCircuitsPerDirection {
		return ErrTransferCapacity
	}
	if dir == DirReverse {
		c.reverse = append(c.reverse, id)
	} else {
		c.forward = append(c.forward, id)
	}
	return nil
}

// hasCircuit reports whether the circuit is recorded for the direction.
func (c *CallRecord) hasCircuit(dir Direction, id CircuitID) bool {
	for _, have := range c.circuits(dir) {
		if have == id {
			return true
		}
	}
	return false
}

// directionOf returns which direction a circuit belongs to. Exactly one
// direction can match by invariant; ok is false when neither does.
func (c *CallRecord) directionOf(id CircuitID) (Direction, bool) {
	if c.hasCircuit(DirForward, id) {
		return DirForward, true
	}
	if c.hasCircuit(DirReverse, id) {
		return DirReverse, true
	}
	return DirForward, false
}

// callStartEpsilon is subtracted from the initiation packet's capture
// time to form the call start, so the initiation packet itself lands
// strictly after time zero.
const callStartEpsilon = time.Millisecond

// callStore owns all call records of a session, keyed by CallID.
type callStore struct {
	calls map[CallID]*CallRecord
	next  CallID
}

func newCallStore() *callStore {
	return &callStore{
		calls: make(map[CallID]*CallRecord),
		next:  1,
	}
}

// newCall creates a record for a call whose initiation packet was
// captured at the given time.
func (st *callStore) newCall(captureTime time.Time) *CallRecord {
	call := &CallRecord{
		id:        st.next,
		startTime: captureTime.Add(-callStartEpsilon),
	}
	st.next++
	st.calls[call.id] = call
	return call
}

func (st *callStore) get(id CallID) *CallRecord {
	return st.calls[id]
}

func (st *callStore) len() int {
	return len(st.calls)
}
