package iax

import "net/netip"

// PortKind is the transport a circuit's port belongs to. IAX2 runs over
// UDP; the kind is carried in the key so that the index never conflates
// ports from different transports.
type PortKind uint8

const (
	PortKindUDP PortKind = iota + 1
	PortKindTCP
)

func (k PortKind) String() string {
	switch k {
	case PortKindUDP:
		return "udp"
	case PortKindTCP:
		return "tcp"
	default:
		return "unknown"
	}
}

// CircuitKey identifies one endpoint's view of one call leg. Equality is
// structural; a key is immutable once built.
type CircuitKey struct {
	Addr       netip.Addr
	Kind       PortKind
	Port       uint16
	CallNumber uint16
}

// CircuitID is the small session-unique integer the circuit index
// assigns per distinct key. Zero is never assigned.
type CircuitID uint32

// circuitIndex maps circuit keys to ids. Ids are handed out by a
// strictly increasing counter and never reused; the index lives for the
// whole analysis session.
type circuitIndex struct {
	ids  map[CircuitKey]CircuitID
	next CircuitID
}

func newCircuitIndex() *circuitIndex {
	return &circuitIndex{
		ids:  make(map[CircuitKey]CircuitID),
		next: 1,
	}
}

func (ix *circuitIndex) lookupOrCreate(key CircuitKey) CircuitID {
	if id, ok := ix.ids[key]; ok {
		return id
	}
	id := ix.next
	ix.next++
	ix.ids[key] = id
	return id
}

func (ix *circuitIndex) len() int {
	return len(ix.ids)
}

// circuitEntry is one validity span of a circuit id. Endpoints reuse
// call numbers, so the same circuit id can host several calls over the
// life of a capture; each reuse opens a new entry valid from the packet
// that created it.
type circuitEntry struct {
	validFrom uint32 // capture-sequence position
	call      CallID // 0 until a call record is attached
}

// circuitStore keys circuit entries by circuit id plus the
// capture-sequence position at which each entry becomes valid. It is
// the session-scoped conversation store beneath call resolution.
type circuitStore struct {
	entries map[CircuitID][]*circuitEntry
}

func newCircuitStore() *circuitStore {
	return &circuitStore{entries: make(map[CircuitID][]*circuitEntry)}
}

// create opens a new entry for the circuit, valid from the given packet
// onward. A later entry shadows earlier ones for subsequent packets.
func (cs *circuitStore) create(id CircuitID, frame uint32) *circuitEntry {
	entry := &circuitEntry{validFrom: frame}
	spans := cs.entries[id]
	// First-pass analysis walks the capture in order, so entries arrive
	// with ascending validFrom; keep the slice sorted if they do not.
	i := len(spans)
	for i > 0 && spans[i-1].validFrom > frame {
		i--
	}
	spans = append(spans, nil)
	copy(spans[i+1:], spans[i:])
	spans[i] = entry
	cs.entries[id] = spans
	return entry
}

// find returns the newest entry valid at or before the given packet, or
// nil if the circuit has no entry that early.
func (cs *circuitStore) find(id CircuitID, frame uint32) *circuitEntry {
	spans := cs.entries[id]
	for i := len(spans) - 1; i >= 0; i-- {
		if spans[i].validFrom <= frame {
			return spans[i]
		}
	}
	return nil
}

func (e *circuitEntry) attachCall(id CallID) {
	e.call = id
}

func (e *circuitEntry) callID() (CallID, bool) {
	return e.call, e.call != 0
}
