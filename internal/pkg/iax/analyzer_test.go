package iax

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ackPacket(num uint32, srcCall, dstCall uint16) *Packet {
	return testPacket(num, hostB, 4569, hostA, 4569, encodeFull(fullFrameSpec{
		src: srcCall, dst: dstCall, ftype: FrameIAXControl, sub: IAXAck,
	}))
}

func TestInitiationCreatesCall(t *testing.T) {
	s := NewSession()

	ann := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	require.NoError(t, ann.Err)
	assert.Equal(t, DirForward, ann.Direction)
	require.NotZero(t, ann.Call)

	call := s.Call(ann.Call)
	require.NotNil(t, call)
	assert.Len(t, call.ForwardCircuits(), 1)
	assert.Empty(t, call.ReverseCircuits())
	assert.True(t, ann.HasTime)
}

func TestReplyEstablishesReverseCircuit(t *testing.T) {
	s := NewSession()

	first := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	reply := s.Analyze(ackPacket(2, 200, 100))

	require.NoError(t, reply.Err)
	assert.Equal(t, first.Call, reply.Call)
	assert.Equal(t, DirReverse, reply.Direction)

	call := s.Call(first.Call)
	require.Len(t, call.ReverseCircuits(), 1)
}

func TestCallNumberReuseCreatesNewCall(t *testing.T) {
	s := NewSession()

	first := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	second := s.Analyze(newCallPacket(2, hostA, 4569, hostB, 4569, 100))

	require.NoError(t, first.Err)
	require.NoError(t, second.Err)
	assert.NotEqual(t, first.Call, second.Call)

	// Both records exist, each reachable through its own forward
	// circuit entry; the newer entry shadows the older one.
	c1 := s.Call(first.Call)
	c2 := s.Call(second.Call)
	assert.Equal(t, c1.ForwardCircuits(), c2.ForwardCircuits())

	// A later abbreviated packet on the shared circuit resolves to the
	// newer call.
	mini := s.Analyze(testPacket(3, hostA, 4569, hostB, 4569, encodeMini(100, 10, []byte{0x00})))
	require.NoError(t, mini.Err)
	assert.Equal(t, second.Call, mini.Call)
}

func TestDirectionConsistency(t *testing.T) {
	s := NewSession()

	s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	s.Analyze(ackPacket(2, 200, 100))

	// Every subsequent packet from B's circuit is reverse, and from A's
	// circuit forward, with or without a destination call number.
	revFull := s.Analyze(ackPacket(3, 200, 100))
	assert.Equal(t, DirReverse, revFull.Direction)

	revMini := s.Analyze(testPacket(4, hostB, 4569, hostA, 4569, encodeMini(200, 10, []byte{0x00})))
	assert.Equal(t, DirReverse, revMini.Direction)

	fwdFull := s.Analyze(testPacket(5, hostA, 4569, hostB, 4569, encodeFull(fullFrameSpec{
		src: 100, dst: 200, ftype: FrameIAXControl, sub: IAXPing,
	})))
	assert.Equal(t, DirForward, fwdFull.Direction)

	fwdMini := s.Analyze(testPacket(6, hostA, 4569, hostB, 4569, encodeMini(100, 20, []byte{0x00})))
	assert.Equal(t, DirForward, fwdMini.Direction)
}

func TestMissedInitiationWithDstCall(t *testing.T) {
	s := NewSession()

	ann := s.Analyze(ackPacket(1, 200, 100))
	assert.ErrorIs(t, ann.Err, ErrMissedInitiation)
	assert.Zero(t, ann.Call)
	assert.False(t, ann.HasTime)
	assert.Zero(t, s.Stats().Calls)
}

func TestCircuitConflictOnReverseLeg(t *testing.T) {
	s := NewSession()

	first := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	s.Analyze(ackPacket(2, 200, 100))

	// A different endpoint claiming the same destination circuit: its
	// source circuit matches no recorded reverse circuit.
	intruder := s.Analyze(testPacket(3, hostC, 4569, hostA, 4569, encodeFull(fullFrameSpec{
		src: 300, dst: 100, ftype: FrameIAXControl, sub: IAXAck,
	})))
	assert.ErrorIs(t, intruder.Err, ErrCircuitConflict)
	assert.Zero(t, intruder.Call)

	// The call's state is untouched by the conflicting packet.
	call := s.Call(first.Call)
	assert.Len(t, call.ForwardCircuits(), 1)
	assert.Len(t, call.ReverseCircuits(), 1)
}

func TestCircuitConflictOnForwardLeg(t *testing.T) {
	s := NewSession()

	s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	reply := s.Analyze(ackPacket(2, 200, 100))
	require.NoError(t, reply.Err)

	// A packet addressed to the reverse circuit must come from a
	// recorded forward circuit.
	conflict := s.Analyze(testPacket(3, hostC, 4569, hostB, 4569, encodeFull(fullFrameSpec{
		src: 400, dst: 200, ftype: FrameIAXControl, sub: IAXPing,
	})))
	assert.ErrorIs(t, conflict.Err, ErrCircuitConflict)
}

func TestCircuitConflictAbandonsPayload(t *testing.T) {
	s := NewSession()
	fallback := &scriptedHandler{}
	s.handlers.fallback = fallback

	s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	s.Analyze(ackPacket(2, 200, 100))

	conflict := s.Analyze(testPacket(3, hostC, 4569, hostA, 4569, encodeFull(fullFrameSpec{
		src: 300, dst: 100, ftype: FrameVoice, sub: 0x82, payload: []byte("oops"),
	})))
	assert.ErrorIs(t, conflict.Err, ErrCircuitConflict)

	// Unlike a missed initiation, a conflict abandons the packet's
	// payload outright; no handler sees it.
	assert.Empty(t, fallback.calls)
}

func TestVoicePayloadDeliveredWithoutDataFormat(t *testing.T) {
	s := NewSession()
	codec := &scriptedHandler{}
	s.Handlers().RegisterCodec(CodecULAW, codec)

	first := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100,
		ieUint32(IEFormat, uint32(CodecULAW))))
	require.NoError(t, first.Err)

	voice := s.Analyze(testPacket(2, hostA, 4569, hostB, 4569, encodeFull(fullFrameSpec{
		src: 100, ts: 20, ftype: FrameVoice, sub: 0x82, payload: []byte("pcm"),
	})))
	require.NoError(t, voice.Err)
	assert.Equal(t, CodecULAW, voice.Codec)

	// Voice streams go to the codec handler whole; mini frames inherit
	// the direction's codec and follow the same path. Nothing opens a
	// fragment.
	mini := s.Analyze(testPacket(3, hostA, 4569, hostB, 4569, encodeMini(100, 40, []byte("more"))))
	require.NoError(t, mini.Err)
	require.Len(t, codec.calls, 2)
	assert.Equal(t, []byte("pcm"), codec.calls[0])
	assert.Equal(t, []byte("more"), codec.calls[1])
	assert.Zero(t, voice.FragmentID)
	assert.Zero(t, mini.FragmentID)
	assert.Zero(t, s.Stats().Fragments)
}

func TestVoicePayloadFallsBackWhenCodecUnbound(t *testing.T) {
	s := NewSession()
	fallback := &scriptedHandler{}
	s.handlers.fallback = fallback

	s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	voice := s.Analyze(testPacket(2, hostA, 4569, hostB, 4569, encodeFull(fullFrameSpec{
		src: 100, ts: 20, ftype: FrameVoice, sub: 0x82, payload: []byte("pcm"),
	})))
	require.NoError(t, voice.Err)

	require.Len(t, fallback.calls, 1)
	assert.Equal(t, []byte("pcm"), fallback.calls[0])
}

func TestCircuitBoundButNotInCall(t *testing.T) {
	s := NewSession()

	ann := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	require.NoError(t, ann.Err)

	// Force the internal-consistency failure the resolver defends
	// against: a circuit entry bound to the call without membership in
	// either direction list.
	orphan := s.circuits.lookupOrCreate(CircuitKey{Addr: hostC, Kind: PortKindUDP, Port: 4569, CallNumber: 77})
	s.store.create(orphan, 1).attachCall(ann.Call)

	broken := s.Analyze(testPacket(2, hostC, 4569, hostB, 4569, encodeMini(77, 10, []byte{0x00})))
	assert.ErrorIs(t, broken.Err, ErrCircuitNotInCall)
}

func TestTransferAddsCircuit(t *testing.T) {
	s := NewSession()

	first := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	txreq := s.Analyze(testPacket(2, hostA, 4569, hostB, 4569, encodeFull(fullFrameSpec{
		src:   100,
		dst:   0,
		ftype: FrameIAXControl,
		sub:   IAXTxReq,
		ies: []IE{
			ieApparentAddr(hostC, 4569),
			ieUint16(IECallNumber, 55),
		},
	})))
	require.NoError(t, txreq.Err)
	assert.Equal(t, first.Call, txreq.Call)

	call := s.Call(first.Call)
	require.Len(t, call.ForwardCircuits(), 2)

	// Packets from the transfer target's circuit now resolve to the
	// same call, forward direction.
	moved := s.Analyze(testPacket(3, hostC, 4569, hostB, 4569, encodeMini(55, 10, []byte{0x00})))
	require.NoError(t, moved.Err)
	assert.Equal(t, first.Call, moved.Call)
	assert.Equal(t, DirForward, moved.Direction)
}

func TestTransferCapacityExceeded(t *testing.T) {
	s := NewSession()

	first := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))

	txreq := func(num uint32, target uint16) *Annotation {
		return s.Analyze(testPacket(num, hostA, 4569, hostB, 4569, encodeFull(fullFrameSpec{
			src:   100,
			ftype: FrameIAXControl,
			sub:   IAXTxReq,
			ies: []IE{
				ieApparentAddr(hostC, 5000+target),
				ieUint16(IECallNumber, target),
			},
		})))
	}

	require.NoError(t, txreq(2, 55).Err)

	// The forward list is full now; a further transfer is reported but
	// not fatal.
	over := txreq(3, 56)
	require.NoError(t, over.Err)
	require.Len(t, over.Notes, 1)
	assert.Contains(t, over.Notes[0], "transfer circuit limit")
	assert.Len(t, s.Call(first.Call).ForwardCircuits(), maxCircuitsPerDirection)
}

func TestCodecTracking(t *testing.T) {
	s := NewSession()

	first := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100,
		ieUint32(IEFormat, uint32(CodecULAW))))
	call := s.Call(first.Call)
	assert.Equal(t, CodecULAW, call.AudioCodec(DirForward))

	s.Analyze(ackPacket(2, 200, 100))

	// A voice full frame from the reverse side sets that direction's
	// codec independently.
	voice := s.Analyze(testPacket(3, hostB, 4569, hostA, 4569, encodeFull(fullFrameSpec{
		src: 200, dst: 100, ftype: FrameVoice, sub: 0x81, payload: []byte{0x00},
	})))
	require.NoError(t, voice.Err)
	assert.Equal(t, CodecGSM, voice.Codec)
	assert.Equal(t, CodecGSM, call.AudioCodec(DirReverse))
	assert.Equal(t, CodecULAW, call.AudioCodec(DirForward))

	// Abbreviated frames inherit the direction's codec.
	mini := s.Analyze(testPacket(4, hostB, 4569, hostA, 4569, encodeMini(200, 10, []byte{0x00})))
	assert.Equal(t, CodecGSM, mini.Codec)
}

func TestTimestampReconstructionAcrossPackets(t *testing.T) {
	s := NewSession()

	first := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	require.NoError(t, first.Err)

	full := s.Analyze(testPacket(2, hostA, 4569, hostB, 4569, encodeFull(fullFrameSpec{
		src: 100, ts: 0x00018000, ftype: FrameControl, sub: CtlAnswer,
	})))
	require.NoError(t, full.Err)
	assert.Equal(t, uint32(0x00018000), full.RelTimestamp)

	// Mini frames replace the low 16 bits of the last full timestamp
	// bodily, including bit 15.
	mini := s.Analyze(testPacket(3, hostA, 4569, hostB, 4569, encodeMini(100, 0x0010, []byte{0x00})))
	require.NoError(t, mini.Err)
	assert.Equal(t, uint32(0x00010010), mini.RelTimestamp)

	// Video mini timestamps are 15 bits wide, so bit 15 of the full
	// timestamp survives reconstruction.
	video := s.Analyze(testPacket(4, hostA, 4569, hostB, 4569, encodeVideoMini(100, 0x0010, false, []byte{0x00})))
	require.NoError(t, video.Err)
	assert.Equal(t, uint32(0x00018010), video.RelTimestamp)

	call := s.Call(first.Call)
	assert.Equal(t, call.StartTime().Add(0x00010010*1000000), mini.AbsTime)
}

func TestAnalysisIdempotence(t *testing.T) {
	build := func() []*Packet {
		return []*Packet{
			newCallPacket(1, hostA, 4569, hostB, 4569, 100,
				ieUint32(IEFormat, uint32(CodecULAW)),
				ieUint32(IEDataFormat, uint32(DataFormatV110))),
			ackPacket(2, 200, 100),
			testPacket(3, hostA, 4569, hostB, 4569, encodeFull(fullFrameSpec{
				src: 100, dst: 200, ts: 4000, ftype: FrameVoice, sub: 0x82, payload: []byte("hello\nwor"),
			})),
			testPacket(4, hostA, 4569, hostB, 4569, encodeMini(100, 4020, []byte("ld\n"))),
			newCallPacket(5, hostA, 4569, hostB, 4569, 100),
		}
	}

	s := NewSession()
	var firstPass []*Annotation
	for _, pkt := range build() {
		firstPass = append(firstPass, s.Analyze(pkt))
	}
	statsAfterFirst := s.Stats()

	// Replay the same sequence: every annotation is answered from the
	// side table and no state mutates.
	for i, pkt := range build() {
		ann := s.Analyze(pkt)
		assert.Same(t, firstPass[i], ann, "packet %d", pkt.Num)
	}
	assert.Equal(t, statsAfterFirst, s.Stats())

	// Derived values from the first pass hold.
	assert.Equal(t, firstPass[0].Call, firstPass[2].Call)
	assert.Equal(t, []byte("world\n"), firstPass[3].Reassembled)
	assert.NotEqual(t, firstPass[0].Call, firstPass[4].Call)
}

func TestSessionReset(t *testing.T) {
	s := NewSession()
	s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	require.NotZero(t, s.Stats().Calls)

	s.Reset()
	assert.Equal(t, SessionStats{}, s.Stats())

	// Post-reset, the same packet is a fresh first pass.
	ann := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	require.NoError(t, ann.Err)
	assert.Equal(t, CallID(1), ann.Call)
}

func TestAnnotationLookupIsReplayPath(t *testing.T) {
	s := NewSession()

	_, ok := s.Annotation(1)
	assert.False(t, ok)

	want := s.Analyze(newCallPacket(1, hostA, 4569, hostB, 4569, 100))
	got, ok := s.Annotation(1)
	require.True(t, ok)
	assert.Same(t, want, got)
}

func TestUndecodableDatagram(t *testing.T) {
	s := NewSession()
	ann := s.Analyze(testPacket(1, hostA, 4569, hostB, 4569, []byte{0x80}))
	assert.ErrorIs(t, ann.Err, ErrShortFrame)
	assert.Nil(t, ann.Frame)
}
