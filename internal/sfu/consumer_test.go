package sfu

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jnoring/mediasoup/internal/pacer"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

type writtenPackets struct {
	pkts []*rtp.Packet
	err  error
}

func (w *writtenPackets) WriteRTP(pkt *rtp.Packet) error {
	if w.err != nil {
		return w.err
	}
	w.pkts = append(w.pkts, pkt)
	return nil
}

func (w *writtenPackets) seqs() []uint16 {
	out := make([]uint16, 0, len(w.pkts))
	for _, p := range w.pkts {
		out = append(out, p.SequenceNumber)
	}
	return out
}

func newTestConsumer(t *testing.T, rtx bool) (*SendConsumer, *writtenPackets) {
	t.Helper()
	s, _ := newTestStream(t, rtx, 32)
	w := &writtenPackets{}
	c, err := NewSendConsumer(s, w)
	require.NoError(t, err)
	return c, w
}

func nackFor(ssrc uint32, id, blp uint16) *rtcp.TransportLayerNack {
	return &rtcp.TransportLayerNack{
		MediaSSRC: ssrc,
		Nacks:     []rtcp.NackPair{{PacketID: id, LostPackets: rtcp.PacketBitmap(blp)}},
	}
}

func TestNewSendConsumerNoWriter(t *testing.T) {
	s, _ := newTestStream(t, false, 8)
	_, err := NewSendConsumer(s, nil)
	require.ErrorIs(t, err, errNoWriter)
}

func TestConsumerRetransmits(t *testing.T) {
	c, w := newTestConsumer(t, true)
	for sn := uint16(1); sn <= 5; sn++ {
		require.NoError(t, c.SendRtpPacket(newPacket(sn, 10), testNow))
	}
	w.pkts = nil

	c.ReceiveRtcp([]rtcp.Packet{nackFor(testSSRC, 2, 0x3)}, testNow+10)
	// rtx序号从1000开始
	require.Equal(t, []uint16{1000, 1001, 1002}, w.seqs())
	for _, p := range w.pkts {
		require.Equal(t, uint32(testRtxSSRC), p.SSRC)
	}

	st := c.Stream().Stats()
	require.Equal(t, uint64(3), st.PacketsRetransmitted)
	require.Equal(t, uint64(3), st.PacketsRepaired)

	// 第二次重传不算修复
	n := c.ReceiveNack(nackFor(testSSRC, 2, 0), testNow+500)
	require.Equal(t, 1, n)
	st = c.Stream().Stats()
	require.Equal(t, uint64(4), st.PacketsRetransmitted)
	require.Equal(t, uint64(3), st.PacketsRepaired)

	for _, cand := range c.candidates {
		require.Nil(t, cand.Packet)
	}
}

func TestConsumerIgnoresOtherSSRC(t *testing.T) {
	c, w := newTestConsumer(t, false)
	require.NoError(t, c.SendRtpPacket(newPacket(1, 10), testNow))
	w.pkts = nil

	c.ReceiveRtcp([]rtcp.Packet{
		nackFor(testSSRC+1, 1, 0),
		&rtcp.ReceiverReport{Reports: []rtcp.ReceptionReport{{SSRC: testSSRC + 1, FractionLost: 200}}},
	}, testNow)
	require.Empty(t, w.pkts)
	require.Equal(t, uint8(0), c.NeedWorstRemoteFractionLost(0))

	c.ReceiveRtcp([]rtcp.Packet{
		&rtcp.ReceiverReport{Reports: []rtcp.ReceptionReport{{SSRC: testSSRC, FractionLost: 30}}},
	}, testNow)
	require.Equal(t, uint8(30), c.NeedWorstRemoteFractionLost(10))
	require.Equal(t, uint8(50), c.NeedWorstRemoteFractionLost(50))
}

func TestConsumerWriteError(t *testing.T) {
	c, w := newTestConsumer(t, false)
	require.NoError(t, c.SendRtpPacket(newPacket(1, 10), testNow))

	w.err = errors.New("socket closed")
	require.Equal(t, 0, c.ReceiveNack(nackFor(testSSRC, 1, 0), testNow))
	require.Equal(t, uint64(0), c.Stream().Stats().PacketsRetransmitted)
	require.ErrorIs(t, c.SendRtpPacket(newPacket(2, 10), testNow), w.err)
}

func TestConsumerPauseClearsBuffer(t *testing.T) {
	c, w := newTestConsumer(t, false)
	require.NoError(t, c.SendRtpPacket(newPacket(1, 10), testNow))

	c.Pause()
	require.False(t, c.IsActive())
	require.NoError(t, c.SendRtpPacket(newPacket(2, 10), testNow))
	require.Len(t, w.pkts, 1)
	require.Equal(t, 0, c.ReceiveNack(nackFor(testSSRC, 1, 0), testNow))
	require.Nil(t, c.GetRtcp(testNow))

	c.Resume()
	require.True(t, c.IsActive())
	require.Equal(t, 0, c.ReceiveNack(nackFor(testSSRC, 1, 0), testNow))
	require.Equal(t, 0, c.Stream().RetransmissionBuffer().Len())
}

func TestConsumerClose(t *testing.T) {
	c, _ := newTestConsumer(t, false)
	require.NoError(t, c.SendRtpPacket(newPacket(1, 10), testNow))

	c.Close()
	require.False(t, c.IsActive())
	require.ErrorIs(t, c.SendRtpPacket(newPacket(2, 10), testNow), ErrConsumerClosed)
	require.Equal(t, 0, c.Stream().RetransmissionBuffer().Len())
	c.Close()
}

func TestConsumerGetRtcp(t *testing.T) {
	c, _ := newTestConsumer(t, false)
	require.Nil(t, c.GetRtcp(testNow))

	require.NoError(t, c.SendRtpPacket(newPacket(1, 10), testNow))
	pkts := c.GetRtcp(testNow + 100)
	require.Len(t, pkts, 2)

	sr, ok := pkts[0].(*rtcp.SenderReport)
	require.True(t, ok)
	require.Equal(t, uint32(testSSRC), sr.SSRC)

	sdes, ok := pkts[1].(*rtcp.SourceDescription)
	require.True(t, ok)
	require.Equal(t, "test-cname", sdes.Chunks[0].Items[0].Text)
	require.Equal(t, rtcp.SDESCNAME, sdes.Chunks[0].Items[0].Type)

	_, err := rtcp.Marshal(pkts)
	require.NoError(t, err)
}

type wire struct {
	mu   sync.Mutex
	seqs []uint16
}

func (w *wire) Write(b []byte) (int, error) {
	var p rtp.Packet
	if err := p.Unmarshal(b); err != nil {
		return 0, err
	}
	w.mu.Lock()
	w.seqs = append(w.seqs, p.SequenceNumber)
	w.mu.Unlock()
	return len(b), nil
}

func (w *wire) sent() []uint16 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint16(nil), w.seqs...)
}

func TestConsumerThroughPacer(t *testing.T) {
	s, _ := newTestStream(t, true, 32)
	out := &wire{}
	p := pacer.NewBucketPacer(10_000_000, out)
	defer p.Stop()

	c, err := NewSendConsumer(s, p)
	require.NoError(t, err)
	for sn := uint16(10); sn < 13; sn++ {
		require.NoError(t, c.SendRtpPacket(newPacket(sn, 100), testNow))
	}
	require.Equal(t, 1, c.ReceiveNack(nackFor(testSSRC, 11, 0), testNow))

	require.Eventually(t, func() bool {
		return len(out.sent()) == 4
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, []uint16{10, 11, 12, 1000}, out.sent())
}
