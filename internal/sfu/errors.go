package sfu

import "errors"

var (
	errInvalidBufferSize   = errors.New("bufferSize out of range")
	errInvalidMTU          = errors.New("mtu out of range")
	errInvalidResendWindow = errors.New("minResendIntervalMs must not be negative")
	errInvalidMaxAge       = errors.New("maxRetransmissionAgeMs must not be negative")
	errInvalidSmoothing    = errors.New("rttSmoothing must be in (0, 1]")
	errNoListener          = errors.New("send stream listener is required")
	errNoSSRC              = errors.New("stream ssrc is required")
	errNoClockRate         = errors.New("stream clock rate is required")
	errNoMediaSection      = errors.New("sdp media section not found")
	errNoPayloadType       = errors.New("sdp media section has no payload type")
	errNoWriter            = errors.New("rtp writer is required")

	ErrRtxPacketTooLarge = errors.New("rtx packet would exceed mtu")
	ErrConsumerClosed    = errors.New("consumer closed")
)
