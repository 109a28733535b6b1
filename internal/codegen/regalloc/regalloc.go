// Package regalloc assigns every variable of a CodeBlock to a machine
// register by coloring the interference graph built from liveness, merging
// move operands into one register wherever that adds no interference.
//
// There is no spilling: a block that needs more than the general pool
// fails with a REGALLOC_FAILED error.
package regalloc

import (
	"sort"

	"github.com/orizon-lang/rmcc/internal/bitmap"
	"github.com/orizon-lang/rmcc/internal/errors"
	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/liveness"
	"github.com/orizon-lang/rmcc/internal/opt"
)

// Logger receives allocation traces.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// Options configures a RegisterAllocator.
type Options struct {
	Logger Logger

	// Cleanup is passed to the optimizer that runs after operands have
	// been rewritten to registers.
	Cleanup opt.Options
}

// RegisterAllocator colors one CodeBlock.
type RegisterAllocator struct {
	cb   *ir.CodeBlock
	log  Logger
	opts Options

	live      *liveness.Map
	syms      []*ir.Symbol
	index     map[*ir.Symbol]int
	interfere []bitmap.Big
	alloc     []int
	moves     [][2]int

	coalesced int
	cleanup   opt.Stats
}

// NewRegisterAllocator creates an allocator for cb.
func NewRegisterAllocator(cb *ir.CodeBlock, opts Options) *RegisterAllocator {
	ra := &RegisterAllocator{cb: cb, log: opts.Logger, opts: opts}
	if ra.log == nil {
		ra.log = nopLogger{}
		ra.opts.Logger = nopLogger{}
	}
	if ra.opts.Cleanup.Logger == nil {
		ra.opts.Cleanup.Logger = ra.log
	}
	return ra
}

// Allocate runs the allocator over cb with the given options.
func Allocate(cb *ir.CodeBlock, opts Options) error {
	return NewRegisterAllocator(cb, opts).AllocateRegisters()
}

// AllocateRegisters colors the block, rewrites every operand to its
// register and re-runs the optimizer over the result.
func (ra *RegisterAllocator) AllocateRegisters() (err error) {
	defer errors.Recover(&err)

	ra.cb.Rebuild()
	ra.live = liveness.Compute(ra.cb)
	ra.syms = append([]*ir.Symbol(nil), ra.cb.Symbols()...)
	ra.index = make(map[*ir.Symbol]int, len(ra.syms))
	for i, s := range ra.syms {
		ra.index[s] = i
	}
	ra.cb.MaxRegister = 0

	ra.buildInterference()
	ra.colorGraph()
	ra.rewrite()

	ra.log.Debugf("%s: %d moves coalesced, max register %%%d", ra.cb.Name, ra.coalesced, ra.cb.MaxRegister)
	ra.cleanup = opt.New(ra.cb, ra.opts.Cleanup).Run()
	return nil
}

// Coalesced returns how many moves were merged.
func (ra *RegisterAllocator) Coalesced() int { return ra.coalesced }

// CleanupStats reports the optimizer run that followed the rewrite.
func (ra *RegisterAllocator) CleanupStats() opt.Stats { return ra.cleanup }

// ====== Interference graph ======

func (ra *RegisterAllocator) buildInterference() {
	n := len(ra.syms)
	ra.interfere = make([]bitmap.Big, n)
	ra.alloc = make([]int, n)
	for i := range ra.alloc {
		if i < ir.NumRegs {
			ra.alloc[i] = i
		} else {
			ra.alloc[i] = -1
		}
	}

	for pos, in := range ra.cb.Prog {
		out := ra.live.LiveOut(pos)

		if d := ir.Dest(in); d != nil && d.IsVar() {
			di := ra.cb.Index(d)
			skip := -1
			if mv, ok := in.(ir.Mov); ok && mv.Src.IsVar() {
				skip = ra.cb.Index(mv.Src)
				ra.moves = append(ra.moves, [2]int{di, skip})
			}
			out.Range(func(k int) bool {
				if k != di && k != skip {
					ra.addEdge(di, k)
				}
				return true
			})
		}

		if ir.IsCall(in) {
			out.Range(func(k int) bool {
				for r := ir.FirstGeneral; r <= ir.LastCallerSaved; r++ {
					if k != r {
						ra.addEdge(r, k)
					}
				}
				return true
			})
		}
	}
}

func (ra *RegisterAllocator) addEdge(a, b int) {
	ra.interfere[a].Set(b)
	ra.interfere[b].Set(a)
}

// Interferes reports whether a and b may not share a register.
func (ra *RegisterAllocator) Interferes(a, b *ir.Symbol) bool {
	i, j := ra.indexOf(a), ra.indexOf(b)
	if i < 0 || j < 0 {
		return false
	}
	return ra.interfere[i].IsSet(j)
}

// ====== Coloring ======

// colorGraph assigns the most constrained values first, coalescing moves
// before and after every assignment.
func (ra *RegisterAllocator) colorGraph() {
	var order []int
	for i := ir.NumRegs; i < len(ra.syms); i++ {
		if ra.syms[i].IsVar() {
			order = append(order, i)
		}
	}
	// Most constrained first, by interference degree measured before any
	// value is colored or coalesced. The order is fixed up front.
	sort.SliceStable(order, func(a, b int) bool {
		return ra.interfere[order[a]].Len() > ra.interfere[order[b]].Len()
	})

	ra.coalesce()
	for _, v := range order {
		if ra.alloc[v] >= 0 {
			continue
		}
		r := ra.findAssign(v)
		if r < 0 {
			errors.Fatal(errors.RegisterAllocationFailed(ra.cb.Name, ra.syms[v].String()))
		}
		ra.assign(v, r)
		ra.coalesce()
	}
}

// coalesce gives an unallocated move operand its partner's register
// until no further move can be merged.
func (ra *RegisterAllocator) coalesce() {
	for changed := true; changed; {
		changed = false
		for _, mv := range ra.moves {
			a, b := mv[0], mv[1]
			if ra.alloc[a] < 0 && ra.alloc[b] >= 0 {
				a, b = b, a
			}
			if ra.alloc[a] < 0 || ra.alloc[b] >= 0 {
				continue
			}
			r := ra.alloc[a]
			if r < ir.FirstGeneral || r > ir.LastGeneral {
				continue
			}
			if ra.conflicts(b, r) {
				continue
			}
			ra.log.Debugf("%s: coalesce %s into %%%d", ra.cb.Name, ra.syms[b], r)
			ra.assign(b, r)
			ra.coalesced++
			changed = true
		}
	}
}

// findAssign returns the lowest general register v can take, or -1.
func (ra *RegisterAllocator) findAssign(v int) int {
	for r := ir.FirstGeneral; r <= ir.LastGeneral; r++ {
		if !ra.conflicts(v, r) {
			return r
		}
	}
	return -1
}

// conflicts reports whether v interferes with register r or with any
// value already assigned to it. interfere[r] accumulates the neighbours
// of everything assigned to r.
func (ra *RegisterAllocator) conflicts(v, r int) bool {
	return ra.interfere[r].IsSet(v) || ra.interfere[v].IsSet(r)
}

func (ra *RegisterAllocator) assign(v, r int) {
	ra.alloc[v] = r
	ra.interfere[r].Or(ra.interfere[v])
	if r <= ir.LastGeneral && r > ra.cb.MaxRegister {
		ra.cb.MaxRegister = r
	}
}

// Register returns the register assigned to s. Machine registers map to
// themselves.
func (ra *RegisterAllocator) Register(s *ir.Symbol) (int, bool) {
	if s.IsReg() {
		return s.Value, true
	}
	i := ra.indexOf(s)
	if i < 0 || ra.alloc[i] < 0 {
		return 0, false
	}
	return ra.alloc[i], true
}

func (ra *RegisterAllocator) indexOf(s *ir.Symbol) int {
	if i, ok := ra.index[s]; ok {
		return i
	}
	return -1
}

// ====== Rewrite ======

func (ra *RegisterAllocator) rewrite() {
	subst := func(s *ir.Symbol) *ir.Symbol {
		if s == nil || !s.IsVar() || s.IsReg() {
			return s
		}
		i, ok := ra.index[s]
		if !ok || ra.alloc[i] < 0 {
			errors.Fatal(errors.MissingSymbol(s.String()))
		}
		return ra.cb.Reg(ra.alloc[i])
	}
	for pos, in := range ra.cb.Prog {
		ra.cb.Replace(pos, ir.MapSymbols(in, subst))
	}
	ra.cb.Rebuild()
}
