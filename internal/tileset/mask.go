package tileset

import "math/bits"

// Mask is a bitset over tile identifiers.
type Mask []uint64

// NewMask creates a mask able to hold n tile ids, all clear.
func NewMask(n int) Mask {
	return make(Mask, (n+63)/64)
}

// FullMask creates a mask with the first n bits set.
func FullMask(n int) Mask {
	m := NewMask(n)
	for i := 0; i < n; i++ {
		m.Set(i)
	}
	return m
}

func (m Mask) Set(i int)      { m[i/64] |= 1 << (uint(i) % 64) }
func (m Mask) Clear(i int)    { m[i/64] &^= 1 << (uint(i) % 64) }
func (m Mask) Has(i int) bool { return m[i/64]&(1<<(uint(i)%64)) != 0 }

// Count returns the number of set bits.
func (m Mask) Count() int {
	total := 0
	for _, w := range m {
		total += bits.OnesCount64(w)
	}
	return total
}

// Empty reports whether no bit is set.
func (m Mask) Empty() bool {
	for _, w := range m {
		if w != 0 {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (m Mask) Clone() Mask {
	dup := make(Mask, len(m))
	copy(dup, m)
	return dup
}

// Equal reports whether both masks hold the same bits.
func (m Mask) Equal(other Mask) bool {
	if len(m) != len(other) {
		return false
	}
	for i, w := range m {
		if w != other[i] {
			return false
		}
	}
	return true
}

// IntersectWith clears bits of m not present in other, reporting
// whether m changed.
func (m Mask) IntersectWith(other Mask) bool {
	changed := false
	for i := range m {
		next := m[i] & other[i]
		if next != m[i] {
			m[i] = next
			changed = true
		}
	}
	return changed
}

// UnionWith sets every bit present in other.
func (m Mask) UnionWith(other Mask) {
	for i := range m {
		m[i] |= other[i]
	}
}

// ForEach invokes fn for each set bit in ascending order, stopping
// early when fn returns false.
func (m Mask) ForEach(fn func(i int) bool) {
	for wi, w := range m {
		for w != 0 {
			bit := bits.TrailingZeros64(w)
			if !fn(wi*64 + bit) {
				return
			}
			w &= w - 1
		}
	}
}

// Lowest returns the smallest set bit, or -1 when empty.
func (m Mask) Lowest() int {
	for wi, w := range m {
		if w != 0 {
			return wi*64 + bits.TrailingZeros64(w)
		}
	}
	return -1
}
