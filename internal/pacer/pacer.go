package pacer

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/jnoring/mediasoup/internal/log"

	"github.com/gammazero/deque"
	"github.com/pion/rtp"
)

const (
	defaultPacingInterval = 5 * time.Millisecond
	// maxQueuedPackets 队列满时丢弃最旧的包
	maxQueuedPackets = 1024
)

var ErrPacerStopped = errors.New("pacer stopped")

// Pacer 按照码率把包平滑地写给下游
type Pacer interface {
	WriteRTP(pkt *rtp.Packet) error
	SetTargetBitrate(uint64)
	Dropped() uint64
	Stop()
}

// BucketPacer 每个pacingInterval根据目标码率计算可以发送的字节数，从队列头开始发送
type BucketPacer struct {
	targetBitrate     uint64
	targetBitrateLock sync.Mutex
	f                 float64

	lock           sync.Mutex
	pacingInterval time.Duration
	lastSend       time.Time
	packets        deque.Deque[[]byte]
	dropped        uint64
	out            io.Writer

	stopOnce sync.Once
	done     chan struct{}
}

// NewBucketPacer out 一般是udp连接，每次Write写入一个完整的rtp包
func NewBucketPacer(initialBitrate uint64, out io.Writer) *BucketPacer {
	p := &BucketPacer{
		targetBitrate:  initialBitrate,
		pacingInterval: defaultPacingInterval,
		f:              1.5,
		done:           make(chan struct{}),
		lastSend:       time.Now(),
		out:            out,
	}
	p.packets.SetMinCapacity(9)

	go p.run()
	return p
}

// SetTargetBitrate 设置pacer发包的码率，实际码率留有1.5倍的余量
func (p *BucketPacer) SetTargetBitrate(rate uint64) {
	p.targetBitrateLock.Lock()
	defer p.targetBitrateLock.Unlock()
	p.targetBitrate = uint64(p.f * float64(rate))
}

func (p *BucketPacer) getTargetBitrate() uint64 {
	p.targetBitrateLock.Lock()
	defer p.targetBitrateLock.Unlock()

	return p.targetBitrate
}

// WriteRTP 序列化后放入队列，调用方可以马上复用pkt
func (p *BucketPacer) WriteRTP(pkt *rtp.Packet) error {
	select {
	case <-p.done:
		return ErrPacerStopped
	default:
	}

	raw, err := pkt.Marshal()
	if err != nil {
		return err
	}

	p.lock.Lock()
	if p.packets.Len() >= maxQueuedPackets {
		p.packets.PopFront()
		p.dropped++
	}
	p.packets.PushBack(raw)
	p.lock.Unlock()
	return nil
}

// Dropped 因为队列满被丢弃的包数
func (p *BucketPacer) Dropped() uint64 {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.dropped
}

// Len 队列中等待发送的包数
func (p *BucketPacer) Len() int {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.packets.Len()
}

func (p *BucketPacer) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
}

func (p *BucketPacer) run() {
	ticker := time.NewTicker(p.pacingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case now := <-ticker.C:
			delta := float64(now.Sub(p.lastSend).Milliseconds())
			budget := int(delta * float64(p.getTargetBitrate()) / 8000.0)
			p.lock.Lock()
			for p.packets.Len() != 0 && budget > 0 {
				raw := p.packets.PopFront()
				p.lock.Unlock()
				n, err := p.out.Write(raw)
				if err != nil {
					log.Errorf("failed to write packet: %v", err)
				}
				p.lastSend = now
				budget -= n
				p.lock.Lock()
			}
			p.lock.Unlock()
		}
	}
}
