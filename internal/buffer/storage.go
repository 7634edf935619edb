package buffer

import (
	"encoding/binary"

	"github.com/pion/rtp"
)

// slotHeader 每个slot前两个字节存储包的实际长度，按照大端存储
const slotHeader = 2

// StoragePool 固定数量、固定大小的slot池，所有slot共用一块预分配的连续内存
// slot通过下标寻址，Entry只保存下标，不保存指向内存的引用，
// slot被回收后下一次写入直接覆盖，不存在悬空引用
type StoragePool struct {
	buf      []byte
	used     []bool
	slotSize int
	stride   int
	free     int
	// next 按环形顺序分配slot的游标
	next int
}

// NewStoragePool 创建size个容量为slotSize（一般为MTU）的slot
func NewStoragePool(size, slotSize int) (*StoragePool, error) {
	if size <= 0 {
		return nil, errInvalidPoolSize
	}
	if slotSize <= 0 {
		return nil, errInvalidSlotSize
	}
	stride := slotSize + slotHeader
	return &StoragePool{
		buf:      make([]byte, size*stride),
		used:     make([]bool, size),
		slotSize: slotSize,
		stride:   stride,
		free:     size,
	}, nil
}

// Size slot总数
func (p *StoragePool) Size() int {
	return len(p.used)
}

// SlotSize 单个slot能存放的最大字节数
func (p *StoragePool) SlotSize() int {
	return p.slotSize
}

// Free 空闲slot数量
func (p *StoragePool) Free() int {
	return p.free
}

// Acquire 从游标开始按环形顺序找到下一个空闲slot
func (p *StoragePool) Acquire() (int, error) {
	if p.free == 0 {
		return -1, ErrPoolExhausted
	}
	n := len(p.used)
	for i := 0; i < n; i++ {
		idx := (p.next + i) % n
		if p.used[idx] {
			continue
		}
		p.used[idx] = true
		p.free--
		p.next = (idx + 1) % n
		return idx, nil
	}
	return -1, ErrPoolExhausted
}

// Release 归还slot，内容不需要清零，下次写入会覆盖
func (p *StoragePool) Release(idx int) {
	if idx < 0 || idx >= len(p.used) || !p.used[idx] {
		return
	}
	p.used[idx] = false
	p.setLen(idx, 0)
	p.free++
}

// Reset 归还全部slot
func (p *StoragePool) Reset() {
	for i := range p.used {
		if p.used[i] {
			p.used[i] = false
			p.setLen(i, 0)
		}
	}
	p.free = len(p.used)
	p.next = 0
}

// Write 把序列化后的packet写入slot，失败时slot原有内容不变
func (p *StoragePool) Write(idx int, pkt *rtp.Packet) (int, error) {
	if idx < 0 || idx >= len(p.used) || !p.used[idx] {
		return 0, ErrSlotNotInUse
	}
	size := pkt.MarshalSize()
	if size > p.slotSize {
		return 0, ErrPacketTooLarge
	}
	off := idx*p.stride + slotHeader
	n, err := pkt.MarshalTo(p.buf[off : off+p.slotSize])
	if err != nil {
		return 0, err
	}
	p.setLen(idx, n)
	return n, nil
}

// Bytes 返回slot中存储的包，返回值引用池内内存，slot被复用后失效
func (p *StoragePool) Bytes(idx int) []byte {
	if idx < 0 || idx >= len(p.used) || !p.used[idx] {
		return nil
	}
	off := idx * p.stride
	sz := int(binary.BigEndian.Uint16(p.buf[off : off+slotHeader]))
	return p.buf[off+slotHeader : off+slotHeader+sz]
}

func (p *StoragePool) setLen(idx, n int) {
	binary.BigEndian.PutUint16(p.buf[idx*p.stride:], uint16(n))
}
