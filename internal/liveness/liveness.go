// Package liveness computes, for every instruction of a CodeBlock, the
// set of variables whose current value may still be read.
package liveness

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/rmcc/internal/bitmap"
	"github.com/orizon-lang/rmcc/internal/ir"
)

// Map holds live-in sets indexed by instruction position and by symbol
// table index. Only variables (locals, registers and temps) are tracked.
type Map struct {
	cb *ir.CodeBlock

	// Live[i] is the set live on entry to instruction i. Live[len(Prog)]
	// is the empty set after the last instruction.
	Live []bitmap.Big

	gen  []bitmap.Big
	kill []bitmap.Big
}

// Compute runs the backward dataflow to a fixpoint. cb must have been
// rebuilt so that label positions are current.
func Compute(cb *ir.CodeBlock) *Map {
	n := len(cb.Prog)
	m := &Map{
		cb:   cb,
		Live: make([]bitmap.Big, n+1),
		gen:  make([]bitmap.Big, n),
		kill: make([]bitmap.Big, n),
	}
	m.genKill()
	m.propagate()
	return m
}

func (m *Map) genKill() {
	for i, in := range m.cb.Prog {
		if d := ir.Dest(in); d != nil && d.IsVar() {
			m.kill[i].Set(m.cb.Index(d))
		}
		if ir.IsCall(in) {
			for r := ir.FirstGeneral; r <= ir.LastCallerSaved; r++ {
				m.kill[i].Set(r)
			}
		}
		for _, s := range ir.Reads(in) {
			m.gen[i].Set(m.cb.Index(s))
		}
	}
}

// Successors returns the positions control may reach after instruction i.
func (m *Map) Successors(i int) []int {
	switch in := m.cb.Prog[i].(type) {
	case ir.End:
		return nil
	case ir.Jump:
		if t := m.cb.LabelPos(in.Target); t >= 0 {
			return []int{t}
		}
		return nil
	case ir.Branch:
		if t := m.cb.LabelPos(in.Target); t >= 0 {
			return []int{i + 1, t}
		}
	}
	return []int{i + 1}
}

func (m *Map) propagate() {
	for changed := true; changed; {
		changed = false
		for i := len(m.cb.Prog) - 1; i >= 0; i-- {
			x := m.LiveOut(i)
			x.AndNot(m.kill[i])
			x.Or(m.gen[i])
			if m.Live[i].Or(x) {
				changed = true
			}
		}
	}
}

// LiveOut returns the set live immediately after instruction i.
func (m *Map) LiveOut(i int) bitmap.Big {
	var out bitmap.Big
	for _, s := range m.Successors(i) {
		out.Or(m.Live[s])
	}
	return out
}

// IsLiveIn reports whether s is live on entry to instruction i.
func (m *Map) IsLiveIn(i int, s *ir.Symbol) bool {
	k := m.cb.Index(s)
	return k >= 0 && m.Live[i].IsSet(k)
}

// Dump renders one row per instruction with a column per symbol: X for
// live, K for killed, B for both.
func (m *Map) Dump() string {
	var b strings.Builder
	syms := m.cb.Symbols()
	for i, in := range m.cb.Prog {
		fmt.Fprintf(&b, "%3d %-30s", i, in)
		for k := range syms {
			l, kl := m.Live[i].IsSet(k), m.kill[i].IsSet(k)
			switch {
			case l && kl:
				b.WriteByte('B')
			case l:
				b.WriteByte('X')
			case kl:
				b.WriteByte('K')
			default:
				b.WriteByte('.')
			}
			if k%8 == 7 {
				b.WriteByte(' ')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
