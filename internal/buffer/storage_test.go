package buffer

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func newTestPacket(sn uint16, payloadLen int) *rtp.Packet {
	payload := make([]byte, payloadLen)
	for i := range payload {
		payload[i] = byte(sn) + byte(i)
	}
	return &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: sn,
			Timestamp:      uint32(sn) * 3000,
			SSRC:           0x11223344,
		},
		Payload: payload,
	}
}

func TestStoragePoolInvalid(t *testing.T) {
	_, err := NewStoragePool(0, 1500)
	require.ErrorIs(t, err, errInvalidPoolSize)

	_, err = NewStoragePool(4, 0)
	require.ErrorIs(t, err, errInvalidSlotSize)
}

func TestStoragePoolRingOrder(t *testing.T) {
	p, err := NewStoragePool(3, 100)
	require.NoError(t, err)

	a, _ := p.Acquire()
	b, _ := p.Acquire()
	c, _ := p.Acquire()
	require.Equal(t, []int{0, 1, 2}, []int{a, b, c})
	require.Equal(t, 0, p.Free())

	_, err = p.Acquire()
	require.ErrorIs(t, err, ErrPoolExhausted)

	// 释放后按照环形顺序继续分配
	p.Release(b)
	p.Release(a)
	x, _ := p.Acquire()
	require.Equal(t, 0, x)
	y, _ := p.Acquire()
	require.Equal(t, 1, y)
}

func TestStoragePoolWrite(t *testing.T) {
	p, err := NewStoragePool(2, 100)
	require.NoError(t, err)

	idx, err := p.Acquire()
	require.NoError(t, err)

	pkt := newTestPacket(10, 20)
	n, err := p.Write(idx, pkt)
	require.NoError(t, err)
	require.Equal(t, pkt.MarshalSize(), n)

	var out rtp.Packet
	require.NoError(t, out.Unmarshal(p.Bytes(idx)))
	require.Equal(t, pkt.SequenceNumber, out.SequenceNumber)
	require.Equal(t, pkt.Payload, out.Payload)

	// 过大的包不会破坏原有内容
	_, err = p.Write(idx, newTestPacket(11, 200))
	require.ErrorIs(t, err, ErrPacketTooLarge)
	require.NoError(t, out.Unmarshal(p.Bytes(idx)))
	require.Equal(t, uint16(10), out.SequenceNumber)

	_, err = p.Write(1, pkt)
	require.ErrorIs(t, err, ErrSlotNotInUse)

	p.Release(idx)
	require.Nil(t, p.Bytes(idx))
}
