package redislot

// HashSlots is the number of hash slots in a redis cluster.
const HashSlots = 16384

const crc16Poly = 0x1021

// Slot returns the hash slot for the key. The bytes of the string are
// hashed as-is, no encoding is applied.
func Slot(key string) int {
	return int(crc16Table(hashTag(key)) % HashSlots)
}

// hashTag returns the part of k that is used to compute its slot: the
// content of the first {...} section if it is not empty, k otherwise.
func hashTag[T ~string | ~[]byte](k T) T {
	for start := 0; start < len(k); start++ {
		if k[start] != '{' {
			continue
		}
		for end := start + 1; end < len(k); end++ {
			if k[end] == '}' {
				if end == start+1 { // if end == start+1, then it's {}, so we ignore it
					return k
				}
				return k[start+1 : end]
			}
		}
		return k
	}
	return k
}

// crc16 computes the CRC-16/XMODEM checksum of b one bit at a time.
func crc16(b []byte) uint16 {
	var crc uint16
	for _, c := range b {
		crc ^= uint16(c) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

var crc16tab = func() (tab [256]uint16) {
	for i := range tab {
		crc := uint16(i) << 8
		for j := 0; j < 8; j++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crc16Poly
			} else {
				crc <<= 1
			}
		}
		tab[i] = crc
	}
	return tab
}()

// crc16Table computes the same checksum as crc16 using a lookup table.
func crc16Table[T ~string | ~[]byte](b T) uint16 {
	var crc uint16
	for i := 0; i < len(b); i++ {
		crc = crc<<8 ^ crc16tab[byte(crc>>8)^b[i]]
	}
	return crc
}
