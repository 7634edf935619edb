package buffer

import "errors"

var (
	errInvalidPoolSize = errors.New("storage pool size must be positive")
	errInvalidSlotSize = errors.New("storage slot size must be positive")

	ErrPacketTooLarge = errors.New("packet larger than storage slot")
	ErrPacketTooOld   = errors.New("packet older than retransmission window")
	ErrPoolExhausted  = errors.New("no free storage slot")
	ErrSlotNotInUse   = errors.New("storage slot not in use")
)
