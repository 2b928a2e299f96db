package hwio

// 32-bit operations
func GetBit32(v uint32, n uint) bool {
	return GetBiti32(v, n) != 0
}

func GetBiti32(v uint32, n uint) uint32 {
	return v >> n & 0x01
}

func SetBit32(v *uint32, n uint) {
	*v |= 1 << n
}

func ClearBit32(v *uint32, n uint) {
	*v &^= 1 << n
}

// Field32 extracts the bit field [lo, lo+width) from v.
func Field32(v uint32, lo, width uint) uint32 {
	return v >> lo & (1<<width - 1)
}

// SetField32 replaces the bit field [lo, lo+width) of v with f.
func SetField32(v *uint32, lo, width uint, f uint32) {
	mask := uint32(1<<width-1) << lo
	*v = *v&^mask | f<<lo&mask
}
