package iax

// IAX2 protocol constants (RFC 5456)

const (
	// IAXPort is the standard IAX2 port
	IAXPort = 4569

	// Full frame header is 12 bytes, mini frame header is 4 bytes
	fullHeaderLen = 12
	miniHeaderLen = 4
	metaHeaderLen = 6

	// Default limits (configurable via config file)
	DefaultMaxFragmentSize = 1 << 20 // Cap on accumulated reassembly buffers
	DefaultPacketBuffer    = 1000    // Packet channel buffer for the analyze pump

	// maxCircuitsPerDirection bounds the circuits a call may accumulate
	// per direction through mid-call transfers.
	maxCircuitsPerDirection = 2
)

// FrameType identifies the class of a full frame.
type FrameType uint8

const (
	FrameDTMF         FrameType = 0x01
	FrameVoice        FrameType = 0x02
	FrameVideo        FrameType = 0x03
	FrameControl      FrameType = 0x04
	FrameNull         FrameType = 0x05
	FrameIAXControl   FrameType = 0x06
	FrameText         FrameType = 0x07
	FrameImage        FrameType = 0x08
	FrameHTML         FrameType = 0x09
	FrameComfortNoise FrameType = 0x0a
)

var frameTypeNames = map[FrameType]string{
	FrameDTMF:         "DTMF",
	FrameVoice:        "Voice",
	FrameVideo:        "Video",
	FrameControl:      "Control",
	FrameNull:         "Null",
	FrameIAXControl:   "IAX",
	FrameText:         "Text",
	FrameImage:        "Image",
	FrameHTML:         "HTML",
	FrameComfortNoise: "Comfort Noise",
}

func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// Subclass is the subclass byte of a full frame. Its meaning depends on
// the frame type: a command for IAX/control frames, a codec for media
// frames (with the high bit marking power-of-two compression).
type Subclass uint8

// Subclasses for IAX control frames
const (
	IAXNew       Subclass = 0x01
	IAXPing      Subclass = 0x02
	IAXPong      Subclass = 0x03
	IAXAck       Subclass = 0x04
	IAXHangup    Subclass = 0x05
	IAXReject    Subclass = 0x06
	IAXAccept    Subclass = 0x07
	IAXAuthReq   Subclass = 0x08
	IAXAuthRep   Subclass = 0x09
	IAXInval     Subclass = 0x0a
	IAXLagRqst   Subclass = 0x0b
	IAXLagRply   Subclass = 0x0c
	IAXRegReq    Subclass = 0x0d
	IAXRegAuth   Subclass = 0x0e
	IAXRegAck    Subclass = 0x0f
	IAXRegRej    Subclass = 0x10
	IAXRegRel    Subclass = 0x11
	IAXVnak      Subclass = 0x12
	IAXDpReq     Subclass = 0x13
	IAXDpRep     Subclass = 0x14
	IAXDial      Subclass = 0x15
	IAXTxReq     Subclass = 0x16
	IAXTxCnt     Subclass = 0x17
	IAXTxAcc     Subclass = 0x18
	IAXTxReady   Subclass = 0x19
	IAXTxRel     Subclass = 0x1a
	IAXTxRej     Subclass = 0x1b
	IAXQuelch    Subclass = 0x1c
	IAXUnquelch  Subclass = 0x1d
	IAXPoke      Subclass = 0x1e
	IAXMWI       Subclass = 0x20
	IAXUnsupport Subclass = 0x21
	IAXTransfer  Subclass = 0x22
)

var iaxSubclassNames = map[Subclass]string{
	IAXNew:       "NEW",
	IAXPing:      "PING",
	IAXPong:      "PONG",
	IAXAck:       "ACK",
	IAXHangup:    "HANGUP",
	IAXReject:    "REJECT",
	IAXAccept:    "ACCEPT",
	IAXAuthReq:   "AUTHREQ",
	IAXAuthRep:   "AUTHREP",
	IAXInval:     "INVAL",
	IAXLagRqst:   "LAGRQ",
	IAXLagRply:   "LAGRP",
	IAXRegReq:    "REGREQ",
	IAXRegAuth:   "REGAUTH",
	IAXRegAck:    "REGACK",
	IAXRegRej:    "REGREJ",
	IAXRegRel:    "REGREL",
	IAXVnak:      "VNAK",
	IAXDpReq:     "DPREQ",
	IAXDpRep:     "DPREP",
	IAXDial:      "DIAL",
	IAXTxReq:     "TXREQ",
	IAXTxCnt:     "TXCNT",
	IAXTxAcc:     "TXACC",
	IAXTxReady:   "TXREADY",
	IAXTxRel:     "TXREL",
	IAXTxRej:     "TXREJ",
	IAXQuelch:    "QUELCH",
	IAXUnquelch:  "UNQUELCH",
	IAXPoke:      "POKE",
	IAXMWI:       "MWI",
	IAXUnsupport: "UNSUPPORT",
	IAXTransfer:  "TRANSFER",
}

// IAXSubclassName returns the command name for an IAX control subclass.
func IAXSubclassName(s Subclass) string {
	if name, ok := iaxSubclassNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Subclasses for call control frames
const (
	CtlHangup     Subclass = 0x01
	CtlRinging    Subclass = 0x03
	CtlAnswer     Subclass = 0x04
	CtlBusy       Subclass = 0x05
	CtlCongestion Subclass = 0x08
	CtlFlash      Subclass = 0x09
	CtlOption     Subclass = 0x0b
	CtlKey        Subclass = 0x0c
	CtlUnkey      Subclass = 0x0d
	CtlProgress   Subclass = 0x0e
	CtlProceeding Subclass = 0x0f
	CtlHold       Subclass = 0x10
	CtlUnhold     Subclass = 0x11
)

// IEType identifies an information element on IAX/control full frames.
type IEType uint8

const (
	IECalledNumber  IEType = 0x01
	IECallingNumber IEType = 0x02
	IECallingANI    IEType = 0x03
	IECallingName   IEType = 0x04
	IECalledContext IEType = 0x05
	IEUsername      IEType = 0x06
	IEPassword      IEType = 0x07
	IECapability    IEType = 0x08
	IEFormat        IEType = 0x09
	IELanguage      IEType = 0x0a
	IEVersion       IEType = 0x0b
	IEADSICPE       IEType = 0x0c
	IEDNID          IEType = 0x0d
	IEAuthMethods   IEType = 0x0e
	IEChallenge     IEType = 0x0f
	IEMD5Result     IEType = 0x10
	IERSAResult     IEType = 0x11
	IEApparentAddr  IEType = 0x12
	IERefresh       IEType = 0x13
	IEDPStatus      IEType = 0x14
	IECallNumber    IEType = 0x15
	IECause         IEType = 0x16
	IEIAXUnknown    IEType = 0x17
	IEMsgCount      IEType = 0x18
	IEAutoAnswer    IEType = 0x19
	IEMusicOnHold   IEType = 0x1a
	IETransferID    IEType = 0x1b
	IERDNIS         IEType = 0x1c
	IEDateTime      IEType = 0x1f
	IECallingPres   IEType = 0x26
	IECallingTON    IEType = 0x27
	IECallingTNS    IEType = 0x28
	IESamplingRate  IEType = 0x29
	IECauseCode     IEType = 0x2a
	IEEncryption    IEType = 0x2b
	IEEncKey        IEType = 0x2c
	IECodecPrefs    IEType = 0x2d
	IERRJitter      IEType = 0x2e
	IERRLoss        IEType = 0x2f
	IERRPackets     IEType = 0x30
	IERRDelay       IEType = 0x31

	// IEDataFormat is a nonstandard extension carrying the data-channel
	// format of a data call.
	IEDataFormat IEType = 0xff
)

// Codec is an audio/video format bitmask as carried by the FORMAT and
// CAPABILITY information elements.
type Codec uint32

const (
	CodecNone      Codec = 0
	CodecG723      Codec = 1 << 0
	CodecGSM       Codec = 1 << 1
	CodecULAW      Codec = 1 << 2
	CodecALAW      Codec = 1 << 3
	CodecG726      Codec = 1 << 4
	CodecADPCM     Codec = 1 << 5
	CodecSlinear16 Codec = 1 << 6
	CodecLPC10     Codec = 1 << 7
	CodecG729      Codec = 1 << 8
	CodecSpeex     Codec = 1 << 9
	CodecILBC      Codec = 1 << 10
	CodecG726AAL2  Codec = 1 << 11
	CodecG722      Codec = 1 << 12
	CodecAMR       Codec = 1 << 13
	CodecJPEG      Codec = 1 << 16
	CodecPNG       Codec = 1 << 17
	CodecH261      Codec = 1 << 18
	CodecH263      Codec = 1 << 19
	CodecH263P     Codec = 1 << 20
	CodecH264      Codec = 1 << 21
)

var codecNames = map[Codec]string{
	CodecNone:      "none",
	CodecG723:      "G.723.1",
	CodecGSM:       "GSM",
	CodecULAW:      "G.711 u-law",
	CodecALAW:      "G.711 a-law",
	CodecG726:      "G.726",
	CodecADPCM:     "IMA ADPCM",
	CodecSlinear16: "16-bit linear",
	CodecLPC10:     "LPC-10",
	CodecG729:      "G.729",
	CodecSpeex:     "Speex",
	CodecILBC:      "iLBC",
	CodecG726AAL2:  "G.726 AAL2",
	CodecG722:      "G.722",
	CodecAMR:       "AMR",
	CodecJPEG:      "JPEG",
	CodecPNG:       "PNG",
	CodecH261:      "H.261",
	CodecH263:      "H.263",
	CodecH263P:     "H.263+",
	CodecH264:      "H.264",
}

func (c Codec) String() string {
	if name, ok := codecNames[c]; ok {
		return name
	}
	return "unknown"
}

// DataFormat identifies the data-channel format of a data call, as
// carried by the nonstandard DATAFORMAT information element.
type DataFormat uint32

const (
	DataFormatNone     DataFormat = 0
	DataFormatV110     DataFormat = 1
	DataFormatH223H245 DataFormat = 2
)

var dataFormatNames = map[DataFormat]string{
	DataFormatNone:     "none",
	DataFormatV110:     "V.110",
	DataFormatH223H245: "H.223/H.245",
}

func (f DataFormat) String() string {
	if name, ok := dataFormatNames[f]; ok {
		return name
	}
	return "unknown"
}
