package buffer

import (
	"github.com/gammazero/deque"
	"github.com/pion/rtp"
)

// Entry 重传缓冲区中的一项，只记录发送过的包的元数据，包内容存放在StoragePool的slot中
type Entry struct {
	Seq  uint16
	Slot int
	// StoredAt 存入缓冲区的时间(ms)
	StoredAt uint64
	// LastResend 上次重传的时间(ms)，Resends为0时无意义
	LastResend uint64
	// Resends 重传次数，0表示还没有重传过
	Resends uint8
}

// RetransmissionBuffer 按照循环序号升序保存最近发送的bufferSize个包，用于响应NACK
// 非并发安全，所有调用必须在同一个goroutine中
type RetransmissionBuffer struct {
	pool    *StoragePool
	entries deque.Deque[Entry]
	size    int
}

// NewRetransmissionBuffer 创建可以容纳size个包的缓冲区，每个包最大mtu字节
func NewRetransmissionBuffer(size, mtu int) (*RetransmissionBuffer, error) {
	pool, err := NewStoragePool(size, mtu)
	if err != nil {
		return nil, err
	}
	b := &RetransmissionBuffer{
		pool: pool,
		size: size,
	}
	b.entries.SetMinCapacity(minCapacityExp(size))
	return b, nil
}

func (b *RetransmissionBuffer) Len() int {
	return b.entries.Len()
}

func (b *RetransmissionBuffer) Cap() int {
	return b.size
}

func (b *RetransmissionBuffer) MTU() int {
	return b.pool.SlotSize()
}

// Store 保存一个已发送的包
// 1. 比队尾新的包直接追加，缓冲区满时回收最旧的包的slot
// 2. 乱序的包插入到正确的位置
// 3. 序号重复的包覆盖原来的Entry和slot内容
func (b *RetransmissionBuffer) Store(pkt *rtp.Packet, now uint64) error {
	if pkt.MarshalSize() > b.pool.SlotSize() {
		return ErrPacketTooLarge
	}
	sn := pkt.SequenceNumber

	if b.entries.Len() == 0 || IsSeqHigherThan(sn, b.entries.Back().Seq) {
		return b.append(pkt, now)
	}

	i := b.search(sn)
	if i < b.entries.Len() && b.entries.At(i).Seq == sn {
		e := b.entries.At(i)
		if _, err := b.pool.Write(e.Slot, pkt); err != nil {
			return err
		}
		b.entries.Set(i, Entry{Seq: sn, Slot: e.Slot, StoredAt: now})
		return nil
	}

	if b.entries.Len() >= b.size {
		// 比最旧的包还旧，存进来也会被马上淘汰
		if i == 0 {
			return ErrPacketTooOld
		}
		b.evictFront()
		i--
	}

	slot, err := b.write(pkt)
	if err != nil {
		return err
	}
	b.insert(i, Entry{Seq: sn, Slot: slot, StoredAt: now})
	return nil
}

func (b *RetransmissionBuffer) append(pkt *rtp.Packet, now uint64) error {
	sn := pkt.SequenceNumber
	// 序号跳跃超过半个序号空间的旧包无法再和新包比较先后，直接淘汰
	for b.entries.Len() > 0 && uint16(sn-b.entries.Front().Seq) >= halfSN {
		b.evictFront()
	}
	if b.entries.Len() >= b.size {
		b.evictFront()
	}
	slot, err := b.write(pkt)
	if err != nil {
		return err
	}
	b.entries.PushBack(Entry{Seq: sn, Slot: slot, StoredAt: now})
	return nil
}

func (b *RetransmissionBuffer) write(pkt *rtp.Packet) (int, error) {
	slot, err := b.pool.Acquire()
	if err != nil {
		return -1, err
	}
	if _, err = b.pool.Write(slot, pkt); err != nil {
		b.pool.Release(slot)
		return -1, err
	}
	return slot, nil
}

// insert 把e插入到下标i处，后面的元素依次后移
func (b *RetransmissionBuffer) insert(i int, e Entry) {
	n := b.entries.Len()
	if i >= n {
		b.entries.PushBack(e)
		return
	}
	if i == 0 {
		b.entries.PushFront(e)
		return
	}
	b.entries.PushBack(b.entries.Back())
	for j := n - 1; j > i; j-- {
		b.entries.Set(j, b.entries.At(j-1))
	}
	b.entries.Set(i, e)
}

func (b *RetransmissionBuffer) evictFront() {
	e := b.entries.PopFront()
	b.pool.Release(e.Slot)
}

// search 找出第一个不比sn旧的Entry的下标
func (b *RetransmissionBuffer) search(sn uint16) int {
	lo, hi := 0, b.entries.Len()
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if IsSeqLowerThan(b.entries.At(mid).Seq, sn) {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// Find 按照序号查找Entry
func (b *RetransmissionBuffer) Find(sn uint16) (Entry, bool) {
	i := b.search(sn)
	if i < b.entries.Len() {
		if e := b.entries.At(i); e.Seq == sn {
			return e, true
		}
	}
	return Entry{}, false
}

// MarkResent 记录sn在now时刻被重传了一次，返回更新后的Entry
func (b *RetransmissionBuffer) MarkResent(sn uint16, now uint64) (Entry, bool) {
	i := b.search(sn)
	if i >= b.entries.Len() || b.entries.At(i).Seq != sn {
		return Entry{}, false
	}
	e := b.entries.At(i)
	e.LastResend = now
	if e.Resends < 0xFF {
		e.Resends++
	}
	b.entries.Set(i, e)
	return e, true
}

// Packet 把Entry对应slot里的包解析出来，返回的包拥有独立的内存，可以直接修改
func (b *RetransmissionBuffer) Packet(e Entry) (*rtp.Packet, error) {
	raw := b.pool.Bytes(e.Slot)
	if raw == nil {
		return nil, ErrSlotNotInUse
	}
	buf := make([]byte, len(raw))
	copy(buf, raw)
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(buf); err != nil {
		return nil, err
	}
	return pkt, nil
}

// Oldest 返回最旧的Entry
func (b *RetransmissionBuffer) Oldest() (Entry, bool) {
	if b.entries.Len() == 0 {
		return Entry{}, false
	}
	return b.entries.Front(), true
}

// Newest 返回最新的Entry
func (b *RetransmissionBuffer) Newest() (Entry, bool) {
	if b.entries.Len() == 0 {
		return Entry{}, false
	}
	return b.entries.Back(), true
}

// Clear 清空所有Entry并归还所有slot，用于stream关闭或者重协商
func (b *RetransmissionBuffer) Clear() {
	b.entries.Clear()
	b.pool.Reset()
}

// minCapacityExp deque的最小容量以2的幂表示
func minCapacityExp(size int) uint {
	var exp uint
	for (1 << exp) < size {
		exp++
	}
	return exp
}
