package iax

import "errors"

var (
	// ErrMissedInitiation indicates no call record exists where one was
	// expected; the call's initiation packet was not captured.
	ErrMissedInitiation = errors.New("no call record for circuit (initiation not seen)")

	// ErrCircuitConflict indicates the destination circuit resolved to a
	// call whose recorded circuits do not match the packet's source
	// circuit: two call histories collided on a correlation key.
	ErrCircuitConflict = errors.New("source circuit conflicts with call's recorded circuits")

	// ErrCircuitNotInCall indicates a circuit bound to a call that is in
	// neither of the call's direction lists. This is an internal
	// consistency failure and should be unreachable.
	ErrCircuitNotInCall = errors.New("circuit bound to call but in neither direction")
)

// srcKey builds the circuit key for the packet's sending endpoint.
func srcKey(pkt *Packet, callNumber uint16) CircuitKey {
	return CircuitKey{Addr: pkt.SrcAddr, Kind: pkt.PortKind, Port: pkt.SrcPort, CallNumber: callNumber}
}

// dstKey builds the circuit key for the packet's receiving endpoint.
func dstKey(pkt *Packet, callNumber uint16) CircuitKey {
	return CircuitKey{Addr: pkt.DstAddr, Kind: pkt.PortKind, Port: pkt.DstPort, CallNumber: callNumber}
}

// resolveCall attaches the packet to a call record and determines its
// direction. Only first-pass analysis reaches this; replay passes are
// answered from the per-packet annotation.
func (s *Session) resolveCall(pkt *Packet, f *Frame) (*CallRecord, Direction, error) {
	if f.IsInitiation() {
		return s.startCall(pkt, f), DirForward, nil
	}
	if f.HasDstCall {
		return s.resolveByDstCircuit(pkt, f)
	}
	return s.resolveBySrcCircuit(pkt, f)
}

// startCall begins a brand-new call for an initiation packet. Call
// numbers are reused by real endpoints, so this never reuses an
// existing record even when the source circuit key was seen before: a
// fresh circuit entry shadows the old one from this packet on.
func (s *Session) startCall(pkt *Packet, f *Frame) *CallRecord {
	circuit := s.circuits.lookupOrCreate(srcKey(pkt, f.SrcCallNumber))
	entry := s.store.create(circuit, pkt.Num)
	call := s.calls.newCall(pkt.Timestamp)
	entry.attachCall(call.id)
	call.addCircuit(DirForward, circuit)
	return call
}

// resolveByDstCircuit handles packets carrying a destination call
// number, the most reliable correlation signal. The destination circuit
// names the peer's leg of the call; which direction list it appears in
// tells us which way this packet travels.
func (s *Session) resolveByDstCircuit(pkt *Packet, f *Frame) (*CallRecord, Direction, error) {
	src := s.circuits.lookupOrCreate(srcKey(pkt, f.SrcCallNumber))
	dst := s.circuits.lookupOrCreate(dstKey(pkt, f.DstCallNumber))

	entry := s.store.find(dst, pkt.Num)
	if entry == nil {
		return nil, DirForward, ErrMissedInitiation
	}
	id, ok := entry.callID()
	if !ok {
		return nil, DirForward, ErrMissedInitiation
	}
	call := s.calls.get(id)

	switch {
	case call.hasCircuit(DirForward, dst):
		// Packet addressed to a forward circuit travels reverse. The
		// reply path has no initiation message of its own; the first
		// such packet is what establishes the reverse circuit.
		if len(call.reverse) == 0 {
			s.store.create(src, pkt.Num).attachCall(call.id)
			call.addCircuit(DirReverse, src)
			return call, DirReverse, nil
		}
		if !call.hasCircuit(DirReverse, src) {
			return nil, DirForward, ErrCircuitConflict
		}
		return call, DirReverse, nil

	case call.hasCircuit(DirReverse, dst):
		if !call.hasCircuit(DirForward, src) {
			return nil, DirForward, ErrCircuitConflict
		}
		return call, DirForward, nil

	default:
		return nil, DirForward, ErrCircuitNotInCall
	}
}

// resolveBySrcCircuit handles abbreviated frames, which carry only the
// sender's call number.
func (s *Session) resolveBySrcCircuit(pkt *Packet, f *Frame) (*CallRecord, Direction, error) {
	src := s.circuits.lookupOrCreate(srcKey(pkt, f.SrcCallNumber))
	entry := s.store.find(src, pkt.Num)
	if entry == nil {
		return nil, DirForward, ErrMissedInitiation
	}
	id, ok := entry.callID()
	if !ok {
		return nil, DirForward, ErrMissedInitiation
	}
	call := s.calls.get(id)
	dir, ok := call.directionOf(src)
	if !ok {
		return nil, DirForward, ErrCircuitNotInCall
	}
	return call, dir, nil
}

// registerTransfer handles a transfer request naming a new peer
// quadruple: the new circuit joins the call in the direction the
// current packet resolved to. Exceeding the per-direction maximum is
// reported but not fatal.
func (s *Session) registerTransfer(pkt *Packet, f *Frame, call *CallRecord, dir Direction) error {
	addrIE, ok := f.FindIE(IEApparentAddr)
	if !ok {
		return nil
	}
	addr, port, err := addrIE.ApparentAddr()
	if err != nil {
		return err
	}

	callNumber := f.SrcCallNumber
	if numIE, ok := f.FindIE(IECallNumber); ok {
		if n, err := numIE.Uint16(); err == nil {
			callNumber = n
		} else {
			return err
		}
	}

	key := CircuitKey{Addr: addr, Kind: pkt.PortKind, Port: port, CallNumber: callNumber}
	circuit := s.circuits.lookupOrCreate(key)
	if call.hasCircuit(dir, circuit) {
		return nil
	}
	if err := call.addCircuit(dir, circuit); err != nil {
		return err
	}
	s.store.create(circuit, pkt.Num).attachCall(call.id)
	return nil
}
