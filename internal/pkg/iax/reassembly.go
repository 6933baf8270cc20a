package iax

import "fmt"

// fragment is one in-progress or completed reassembly buffer.
type fragment struct {
	id       uint32
	buf      []byte
	complete bool
}

// fragmentTable is the session-scoped fragment accumulator. Fragment
// ids come from a strictly increasing counter and are never reused, so
// a packet annotated with a fragment id on its first analysis pass can
// re-render the same reassembly result on every later pass.
type fragmentTable struct {
	frags   map[uint32]*fragment
	next    uint32
	maxSize int
}

func newFragmentTable(maxSize int) *fragmentTable {
	if maxSize <= 0 {
		maxSize = DefaultMaxFragmentSize
	}
	return &fragmentTable{
		frags:   make(map[uint32]*fragment),
		next:    1,
		maxSize: maxSize,
	}
}

func (t *fragmentTable) newFragment() *fragment {
	f := &fragment{id: t.next}
	t.next++
	t.frags[f.id] = f
	return f
}

func (t *fragmentTable) get(id uint32) *fragment {
	return t.frags[id]
}

// add appends data to the fragment at the given offset, growing the
// buffer as needed. It reports whether the accumulated buffer would
// exceed the configured size cap.
func (t *fragmentTable) add(id uint32, offset int, data []byte) error {
	f := t.frags[id]
	if f == nil {
		return fmt.Errorf("fragment %d not found", id)
	}
	if offset+len(data) > t.maxSize {
		return fmt.Errorf("fragment %d exceeds size cap of %d bytes", id, t.maxSize)
	}
	if need := offset + len(data); need > len(f.buf) {
		grown := make([]byte, need)
		copy(grown, f.buf)
		f.buf = grown
	}
	copy(f.buf[offset:], data)
	return nil
}

func (t *fragmentTable) markComplete(id uint32) {
	if f := t.frags[id]; f != nil {
		f.complete = true
	}
}

func (t *fragmentTable) len() int {
	return len(t.frags)
}

// processPayload drives the per-(call, direction) desegmentation state
// machine for one first-pass packet. Deliveries to the handler happen
// at most once per message, in order, and never span directions or
// calls.
//
// With no fragment open, the payload is handed to the handler directly;
// a need-more answer opens a fragment seeded with the unconsumed tail.
// With a fragment open, the payload is appended and a delivery retry
// happens once the accumulated length reaches the recorded minimum.
func (s *Session) processPayload(ann *Annotation, call *CallRecord, dir Direction, handler PayloadHandler, data []byte) {
	if len(data) == 0 {
		return
	}

	slot := &call.deseg[dir]
	if slot.idle() {
		tail, res := deliverMessages(handler, data)
		if res.NeedMore == 0 {
			return
		}
		frag := s.frags.newFragment()
		if err := s.frags.add(frag.id, 0, tail); err != nil {
			ann.Notes = append(ann.Notes, err.Error())
			return
		}
		slot.fragID = frag.id
		slot.have = len(tail)
		slot.need = required(len(tail), res)
		slot.delivered = 0
		ann.FragmentID = frag.id
		return
	}

	if err := s.frags.add(slot.fragID, slot.have, data); err != nil {
		ann.Notes = append(ann.Notes, err.Error())
		slot.reset()
		return
	}
	slot.have += len(data)
	ann.FragmentID = slot.fragID

	if slot.have < slot.need {
		return
	}

	frag := s.frags.get(slot.fragID)
	consumed, res := retryDelivery(handler, frag.buf[slot.delivered:])
	if res.NeedMore != 0 {
		// Partial-reassembly retry: remember how much of the buffer the
		// handler has consumed as complete messages so those bytes are
		// never shown to it again, and raise the minimum.
		slot.delivered += consumed
		slot.need = slot.delivered + required(slot.have-slot.delivered, res)
		return
	}

	s.frags.markComplete(frag.id)
	ann.Reassembled = frag.buf
	slot.reset()
}

// deliverMessages feeds the buffer to the handler one message at a
// time. It returns the unconsumed tail and the handler's final answer;
// NeedMore zero in the result means the whole buffer was consumed.
func deliverMessages(handler PayloadHandler, data []byte) ([]byte, HandlerResult) {
	off := 0
	for off < len(data) {
		res := handler.Handle(data[off:])
		if res.NeedMore != 0 {
			return data[off:], res
		}
		if res.Consumed <= 0 {
			// A handler that completes a message without consuming
			// bytes would loop forever; treat the rest as consumed.
			break
		}
		off += res.Consumed
	}
	return nil, HandlerResult{}
}

// retryDelivery is deliverMessages for an accumulating fragment: it
// additionally reports how many leading bytes were consumed as complete
// messages, so the caller can avoid re-delivering them.
func retryDelivery(handler PayloadHandler, data []byte) (int, HandlerResult) {
	tail, res := deliverMessages(handler, data)
	return len(data) - len(tail), res
}

// required converts a handler's need-more answer into a minimum total
// length relative to n bytes already accumulated.
func required(n int, res HandlerResult) int {
	if res.NeedMore == NeedMoreBytes {
		return n + 1
	}
	return n + res.NeedMore
}
