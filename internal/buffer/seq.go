package buffer

const (
	maxSN = 1 << 16
	// halfSN 序号空间的一半，两个序号的差值小于它时才认为有先后关系
	halfSN = maxSN / 2
)

// IsSeqHigherThan 考虑到16位序号回绕，如果a比b新，则返回true
// 差值恰好为半个序号空间时，数值更小的那个被认为更新，保证两者中恰有一个为true
func IsSeqHigherThan(a, b uint16) bool {
	d := a - b
	return d != 0 && (d < halfSN || (d == halfSN && a < b))
}

// IsSeqLowerThan 考虑到16位序号回绕，如果a比b旧，则返回true
func IsSeqLowerThan(a, b uint16) bool {
	return a != b && !IsSeqHigherThan(a, b)
}

// SeqDiff 返回a-b的有符号差值
// 例如 SeqDiff(2, 65534) == 4
func SeqDiff(a, b uint16) int {
	return int(int16(a - b))
}

// IsTimestampWrapAround 如果从 timestamp1 到 timestamp2 发生回绕，则返回 true
func IsTimestampWrapAround(timestamp1 uint32, timestamp2 uint32) bool {
	return (timestamp1&0xC0000000 == 0) && (timestamp2&0xC0000000 == 0xC0000000)
}

// IsLaterTimestamp 考虑到时间戳回绕，如果timestamp1晚于timestamp2，则返回true
func IsLaterTimestamp(timestamp1 uint32, timestamp2 uint32) bool {
	if timestamp1 > timestamp2 {
		if IsTimestampWrapAround(timestamp2, timestamp1) {
			return false
		}
		return true
	}
	if IsTimestampWrapAround(timestamp1, timestamp2) {
		return true
	}
	return false
}
