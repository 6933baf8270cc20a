package iax

import "bytes"

// NeedMoreBytes is the HandlerResult.NeedMore value for "at least one
// more byte, count unknown".
const NeedMoreBytes = -1

// HandlerResult reports what a payload handler did with a delivered
// buffer. When NeedMore is zero the handler completed a message and
// Consumed says how many bytes it spans; otherwise Consumed is ignored
// and NeedMore is either an exact additional byte count or
// NeedMoreBytes.
type HandlerResult struct {
	Consumed int
	NeedMore int
}

// PayloadHandler consumes reassembled data-channel messages. Handlers
// are selected once per call from the negotiated data format and see
// each direction's byte stream in order.
type PayloadHandler interface {
	Name() string
	Handle(data []byte) HandlerResult
}

// HandlerRegistry maps data-format and codec identifiers to payload
// handlers.
type HandlerRegistry struct {
	byFormat map[DataFormat]PayloadHandler
	byCodec  map[Codec]PayloadHandler
	fallback PayloadHandler
}

// NewHandlerRegistry returns a registry preloaded with the built-in
// handlers. The raw handler doubles as the fallback for unknown formats
// and codecs and for best-effort delivery when correlation failed.
func NewHandlerRegistry() *HandlerRegistry {
	r := &HandlerRegistry{
		byFormat: make(map[DataFormat]PayloadHandler),
		byCodec:  make(map[Codec]PayloadHandler),
		fallback: RawHandler{},
	}
	r.Register(DataFormatV110, LineHandler{})
	return r
}

// Register binds a handler to a data format, replacing any previous
// binding.
func (r *HandlerRegistry) Register(format DataFormat, h PayloadHandler) {
	r.byFormat[format] = h
}

// RegisterCodec binds a handler to a media codec, replacing any
// previous binding.
func (r *HandlerRegistry) RegisterCodec(codec Codec, h PayloadHandler) {
	r.byCodec[codec] = h
}

// Lookup returns the handler for a format, falling back to the raw
// handler when none is registered.
func (r *HandlerRegistry) Lookup(format DataFormat) PayloadHandler {
	if h, ok := r.byFormat[format]; ok {
		return h
	}
	return r.fallback
}

// LookupCodec returns the handler for a media codec, falling back to
// the raw handler when none is registered.
func (r *HandlerRegistry) LookupCodec(codec Codec) PayloadHandler {
	if h, ok := r.byCodec[codec]; ok {
		return h
	}
	return r.fallback
}

// Fallback returns the best-effort handler used when no call record is
// available.
func (r *HandlerRegistry) Fallback() PayloadHandler {
	return r.fallback
}

// RawHandler treats every buffer as one complete opaque message.
type RawHandler struct{}

func (RawHandler) Name() string { return "raw" }

func (RawHandler) Handle(data []byte) HandlerResult {
	return HandlerResult{Consumed: len(data)}
}

// LineHandler consumes newline-terminated messages, asking for more
// bytes until a terminator arrives.
type LineHandler struct{}

func (LineHandler) Name() string { return "line" }

func (LineHandler) Handle(data []byte) HandlerResult {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return HandlerResult{Consumed: i + 1}
	}
	return HandlerResult{NeedMore: NeedMoreBytes}
}
