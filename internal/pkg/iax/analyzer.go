package iax

import (
	"errors"
	"net/netip"
	"time"

	"github.com/endorses/iaxcat/internal/pkg/logger"
	"github.com/google/uuid"
)

// Packet is one captured IAX2 datagram plus its environment metadata.
// Num is the packet's capture-sequence position, 1-based and unique
// within the session.
type Packet struct {
	Num       uint32
	Timestamp time.Time
	SrcAddr   netip.Addr
	SrcPort   uint16
	DstAddr   netip.Addr
	DstPort   uint16
	PortKind  PortKind
	Payload   []byte
}

// Annotation is the per-packet analysis result, written exactly once on
// the packet's first analysis pass and reused verbatim on every later
// pass.
type Annotation struct {
	// Frame is the decoded wire frame.
	Frame *Frame

	// Call is the resolved call record, 0 when correlation failed.
	Call      CallID
	Direction Direction

	// Codec resolved for this packet (frame's own for full media
	// frames, the call's per-direction codec for abbreviated ones).
	Codec Codec

	// Reconstructed times; HasTime is false when no call record was
	// available to reconstruct against.
	RelTimestamp uint32
	AbsTime      time.Time
	HasTime      bool

	// FragmentID is the reassembly fragment this packet contributed to,
	// 0 when it did not touch the fragment table. Reassembled holds the
	// completed message on the packet that completed it.
	FragmentID  uint32
	Reassembled []byte

	// Err classifies a correlation failure (sentinel errors from
	// resolve.go); Notes carry non-fatal dissection reports.
	Err   error
	Notes []string
}

// SessionStats is a point-in-time snapshot of session state, used to
// verify that replay passes mutate nothing.
type SessionStats struct {
	Packets   int
	Circuits  int
	Calls     int
	Fragments int
}

// Session is the process-wide, capture-scoped analysis state arena:
// circuit index, circuit store, call records, fragment table and
// per-packet annotations. It is single-threaded; packets are analyzed
// one at a time, and only the first pass over a packet mutates state.
type Session struct {
	ID uuid.UUID

	circuits *circuitIndex
	store    *circuitStore
	calls    *callStore
	frags    *fragmentTable
	handlers *HandlerRegistry

	annotations map[uint32]*Annotation
}

// NewSession creates an empty analysis session.
func NewSession() *Session {
	cfg := GetConfig()
	return &Session{
		ID:          uuid.New(),
		circuits:    newCircuitIndex(),
		store:       newCircuitStore(),
		calls:       newCallStore(),
		frags:       newFragmentTable(cfg.MaxFragmentSize),
		handlers:    NewHandlerRegistry(),
		annotations: make(map[uint32]*Annotation),
	}
}

// Reset discards all session state wholesale, as at session start.
func (s *Session) Reset() {
	cfg := GetConfig()
	s.circuits = newCircuitIndex()
	s.store = newCircuitStore()
	s.calls = newCallStore()
	s.frags = newFragmentTable(cfg.MaxFragmentSize)
	s.annotations = make(map[uint32]*Annotation)
}

// Handlers exposes the session's payload handler registry so callers
// can bind handlers for additional data formats.
func (s *Session) Handlers() *HandlerRegistry {
	return s.handlers
}

// Call returns the call record for an annotation's CallID.
func (s *Session) Call(id CallID) *CallRecord {
	return s.calls.get(id)
}

// Stats snapshots the session's state sizes.
func (s *Session) Stats() SessionStats {
	return SessionStats{
		Packets:   len(s.annotations),
		Circuits:  s.circuits.len(),
		Calls:     s.calls.len(),
		Fragments: s.frags.len(),
	}
}

// Annotation returns the stored annotation for a packet, if it has been
// analyzed. This is the replay path: a pure read.
func (s *Session) Annotation(num uint32) (*Annotation, bool) {
	ann, ok := s.annotations[num]
	return ann, ok
}

// Analyze processes one packet. The first call for a given packet
// number is the authoritative, mutating pass; every later call returns
// the stored annotation without touching session state.
func (s *Session) Analyze(pkt *Packet) *Annotation {
	if ann, ok := s.annotations[pkt.Num]; ok {
		return ann
	}

	ann := &Annotation{}
	s.annotations[pkt.Num] = ann
	s.analyzeFirst(pkt, ann)
	return ann
}

// analyzeFirst is the single mutating pass over a packet.
func (s *Session) analyzeFirst(pkt *Packet, ann *Annotation) {
	f, notes, err := DecodeFrame(pkt.Payload)
	ann.Notes = notes
	if err != nil {
		ann.Err = err
		logger.Debug("undecodable datagram",
			"packet", pkt.Num,
			"error", err)
		return
	}
	ann.Frame = f

	call, dir, err := s.resolveCall(pkt, f)
	if err != nil {
		ann.Err = err
		logger.Debug("call correlation failed",
			"packet", pkt.Num,
			"src_call", f.SrcCallNumber,
			"error", err)
		// A missed initiation still gets a best-effort payload handoff,
		// with no reliable place to store reassembly state. Conflicts
		// and consistency failures abandon the packet outright.
		if errors.Is(err, ErrMissedInitiation) && len(f.Payload) > 0 {
			s.handlers.Fallback().Handle(f.Payload)
		}
		return
	}

	ann.Call = call.id
	ann.Direction = dir

	rel := resolveTimestamp(call, f)
	ann.RelTimestamp = rel
	ann.AbsTime = absoluteTime(call, rel)
	ann.HasTime = true

	if f.IsInitiation() {
		s.applyInitiationIEs(f, call, ann)
	}
	s.updateCodec(f, call, dir, ann)

	if f.Kind == KindFull && f.Type == FrameIAXControl && f.Subclass == IAXTxReq {
		if err := s.registerTransfer(pkt, f, call, dir); err != nil {
			ann.Notes = append(ann.Notes, err.Error())
			logger.Debug("transfer registration failed",
				"packet", pkt.Num,
				"call", call.id,
				"error", err)
		}
	}

	if f.CarriesMedia() && len(f.Payload) > 0 {
		if call.handler != nil {
			s.processPayload(ann, call, dir, call.handler, f.Payload)
		} else {
			// Voice and video streams are not message-framed; each
			// payload goes to the codec handler whole and never
			// touches the fragment table.
			s.handlers.LookupCodec(ann.Codec).Handle(f.Payload)
		}
	}
}

// applyInitiationIEs captures the negotiated formats from a NEW frame.
// The data-channel handler is selected here, once, and never replaced.
func (s *Session) applyInitiationIEs(f *Frame, call *CallRecord, ann *Annotation) {
	if ie, ok := f.FindIE(IEFormat); ok {
		if v, err := ie.Uint32(); err == nil {
			call.audioCodec[DirForward] = Codec(v)
		} else {
			ann.Notes = append(ann.Notes, err.Error())
		}
	}
	if ie, ok := f.FindIE(IEDataFormat); ok {
		if v, err := ie.Uint32(); err == nil {
			call.dataFormat = DataFormat(v)
			call.handler = s.handlers.Lookup(call.dataFormat)
			logger.Debug("data call negotiated",
				"call", call.id,
				"format", call.dataFormat.String(),
				"handler", call.handler.Name())
		} else {
			ann.Notes = append(ann.Notes, err.Error())
		}
	}
}

// updateCodec tracks per-direction codecs from full media frames and
// resolves the packet's own codec. Only first-pass analysis reaches
// this, which is what keeps codec state stable across replay passes.
func (s *Session) updateCodec(f *Frame, call *CallRecord, dir Direction, ann *Annotation) {
	if codec := f.MediaCodec(); codec != CodecNone {
		if f.Type == FrameVideo {
			call.videoCodec[dir] = codec
		} else {
			call.audioCodec[dir] = codec
		}
		ann.Codec = codec
		return
	}
	switch f.Kind {
	case KindVideoMini:
		ann.Codec = call.videoCodec[dir]
	case KindMini:
		ann.Codec = call.audioCodec[dir]
	}
}
