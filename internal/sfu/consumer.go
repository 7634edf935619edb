package sfu

import (
	"github.com/jnoring/mediasoup/internal/log"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
)

// RTPWriter 真正把包发到网络上的对象，比如pacer
type RTPWriter interface {
	WriteRTP(pkt *rtp.Packet) error
}

// RTPWriterFunc 把函数适配成RTPWriter
type RTPWriterFunc func(pkt *rtp.Packet) error

func (f RTPWriterFunc) WriteRTP(pkt *rtp.Packet) error {
	return f(pkt)
}

// SendConsumer 把一个RtpStreamSend和发送端绑定在一起：
// 转发的包先记录到stream再发送，收到的nack/RR交给stream处理，重传的包交给writer发送
type SendConsumer struct {
	stream *RtpStreamSend
	writer RTPWriter

	paused bool
	closed bool

	fractionLost uint8
	// candidates 在多次nack之间复用
	candidates []RetransmissionCandidate
}

func NewSendConsumer(stream *RtpStreamSend, writer RTPWriter) (*SendConsumer, error) {
	if writer == nil {
		return nil, errNoWriter
	}
	return &SendConsumer{
		stream:     stream,
		writer:     writer,
		candidates: make([]RetransmissionCandidate, 0, maxRequestedPackets),
	}, nil
}

func (c *SendConsumer) Stream() *RtpStreamSend {
	return c.stream
}

func (c *SendConsumer) IsActive() bool {
	return !c.paused && !c.closed
}

// SendRtpPacket 发送一个包，now为Unix时间(ms)
func (c *SendConsumer) SendRtpPacket(pkt *rtp.Packet, now uint64) error {
	if c.closed {
		return ErrConsumerClosed
	}
	if c.paused {
		return nil
	}
	c.stream.ReceivePacket(pkt, now)
	return c.writer.WriteRTP(pkt)
}

// ReceiveRtcp 处理对端发来的rtcp报文，只关心发给本stream的nack和RR
func (c *SendConsumer) ReceiveRtcp(pkts []rtcp.Packet, now uint64) {
	if c.closed {
		return
	}
	ssrc := c.stream.SSRC()
	for _, pkt := range pkts {
		switch pkt := pkt.(type) {
		case *rtcp.TransportLayerNack:
			if pkt.MediaSSRC == ssrc {
				c.ReceiveNack(pkt, now)
			}
		case *rtcp.ReceiverReport:
			for _, rr := range pkt.Reports {
				if rr.SSRC == ssrc {
					c.ReceiveRtcpReceiverReport(rr, now)
				}
			}
		}
	}
}

// ReceiveNack 重传nack请求的包，返回实际发送的包数
func (c *SendConsumer) ReceiveNack(nack *rtcp.TransportLayerNack, now uint64) int {
	if !c.IsActive() {
		return 0
	}

	sent := 0
	for _, pair := range nack.Nacks {
		c.candidates = c.stream.RequestRtpRetransmission(pair.PacketID, uint16(pair.LostPackets), now, c.candidates[:0])
		for i := range c.candidates {
			cand := c.candidates[i]
			pkt, ok := c.stream.PrepareRetransmission(cand)
			if !ok {
				continue
			}
			if err := c.writer.WriteRTP(pkt); err != nil {
				log.Warnf("failed to retransmit packet [ssrc:%d, seq:%d]: %v", pkt.SSRC, pkt.SequenceNumber, err)
				continue
			}
			sent++
			c.stream.RtpPacketRetransmitted(pkt)
			// 只有第一次重传才算修复了一个丢失的包
			if cand.Resends == 1 {
				c.stream.RtpPacketRepaired(pkt)
			}
		}
	}
	// 不持有包的引用
	for i := range c.candidates {
		c.candidates[i] = RetransmissionCandidate{}
	}
	return sent
}

func (c *SendConsumer) ReceiveRtcpReceiverReport(rr rtcp.ReceptionReport, now uint64) {
	c.fractionLost = rr.FractionLost
	c.stream.ReceiveRtcpReceiverReport(rr, now)
}

// NeedWorstRemoteFractionLost 如果本consumer的丢包率比传入的更差，返回本consumer的
func (c *SendConsumer) NeedWorstRemoteFractionLost(worst uint8) uint8 {
	if !c.IsActive() {
		return worst
	}
	if c.fractionLost > worst {
		return c.fractionLost
	}
	return worst
}

// GetRtcp 生成需要定期发送给对端的SR和SDES
func (c *SendConsumer) GetRtcp(now uint64) []rtcp.Packet {
	if !c.IsActive() {
		return nil
	}
	sr := c.stream.GetRtcpSenderReport(now)
	if sr == nil {
		return nil
	}
	pkts := []rtcp.Packet{sr}
	if chunks := c.stream.SourceDescriptionChunks(); len(chunks) > 0 {
		pkts = append(pkts, &rtcp.SourceDescription{Chunks: chunks})
	}
	return pkts
}

// Pause 暂停后缓存的包都不会再被重传，直接清空
func (c *SendConsumer) Pause() {
	if c.paused {
		return
	}
	c.paused = true
	c.stream.ClearRetransmissionBuffer()
}

func (c *SendConsumer) Resume() {
	c.paused = false
}

func (c *SendConsumer) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.stream.ClearRetransmissionBuffer()
}
