// Package bitmap implements dense bit sets indexed by small integers.
// Dataflow passes keep one set per instruction boundary.
package bitmap

import (
	"math/bits"
	"strconv"
	"strings"
)

type Big struct {
	b []uint64
}

func New() *Big {
	return &Big{}
}

func Make() Big {
	return Big{}
}

// Full returns a set containing 0..n-1.
func Full(n int) Big {
	var x Big
	x.SetRange(0, n)
	return x
}

func (b *Big) grow(w int) {
	if w < len(b.b) {
		return
	}
	b.b = append(b.b, make([]uint64, w+1-len(b.b))...)
}

func (b *Big) Set(i int) {
	w := i / 64
	b.grow(w)
	b.b[w] |= 1 << uint(i%64)
}

// SetRange sets bits lo..hi-1.
func (b *Big) SetRange(lo, hi int) {
	for i := lo; i < hi; i++ {
		b.Set(i)
	}
}

func (b *Big) Clear(i int) {
	w := i / 64
	if w >= len(b.b) {
		return
	}
	b.b[w] &^= 1 << uint(i%64)
}

func (b *Big) Reset() {
	for i := range b.b {
		b.b[i] = 0
	}
}

func (b Big) IsSet(i int) bool {
	w := i / 64
	if w >= len(b.b) {
		return false
	}
	return b.b[w]&(1<<uint(i%64)) != 0
}

// Or adds every element of x and reports whether b changed.
func (b *Big) Or(x Big) bool {
	b.grow(len(x.b) - 1)

	changed := false
	for i, w := range x.b {
		n := b.b[i] | w
		if n != b.b[i] {
			changed = true
			b.b[i] = n
		}
	}
	return changed
}

// And keeps only elements also in x and reports whether b changed.
func (b *Big) And(x Big) bool {
	changed := false
	for i := range b.b {
		var w uint64
		if i < len(x.b) {
			w = x.b[i]
		}
		n := b.b[i] & w
		if n != b.b[i] {
			changed = true
			b.b[i] = n
		}
	}
	return changed
}

func (b *Big) AndNot(x Big) {
	for i := range b.b {
		if i >= len(x.b) {
			break
		}
		b.b[i] &^= x.b[i]
	}
}

func (b Big) Copy() Big {
	return Big{b: append([]uint64(nil), b.b...)}
}

func (b Big) Equal(x Big) bool {
	n := len(b.b)
	if len(x.b) > n {
		n = len(x.b)
	}
	for i := 0; i < n; i++ {
		var l, r uint64
		if i < len(b.b) {
			l = b.b[i]
		}
		if i < len(x.b) {
			r = x.b[i]
		}
		if l != r {
			return false
		}
	}
	return true
}

// Len returns the number of elements.
func (b Big) Len() int {
	n := 0
	for _, w := range b.b {
		n += bits.OnesCount64(w)
	}
	return n
}

func (b Big) IsEmpty() bool {
	for _, w := range b.b {
		if w != 0 {
			return false
		}
	}
	return true
}

// Range calls f for each element in increasing order until f returns false.
func (b Big) Range(f func(i int) bool) {
	for wi, w := range b.b {
		for w != 0 {
			t := bits.TrailingZeros64(w)
			if !f(wi*64 + t) {
				return
			}
			w &= w - 1
		}
	}
}

func (b Big) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	first := true
	b.Range(func(i int) bool {
		if !first {
			sb.WriteByte(' ')
		}
		first = false
		sb.WriteString(strconv.Itoa(i))
		return true
	})
	sb.WriteByte('}')
	return sb.String()
}
