package regalloc

import (
	"fmt"
	"strings"
	"testing"

	"github.com/orizon-lang/rmcc/internal/errors"
	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/liveness"
	"github.com/orizon-lang/rmcc/internal/types"
)

// checkColoring verifies that no definition in cb shares a register with
// a value live after it, other than the source of a move. cb is left
// untouched; regs holds the registers an identical block was given,
// keyed by symbol name.
func checkColoring(t *testing.T, cb *ir.CodeBlock, live *liveness.Map, regs map[string]int) {
	t.Helper()
	syms := cb.Symbols()
	reg := func(s *ir.Symbol) int {
		if s.IsReg() {
			return s.Value
		}
		r, ok := regs[s.Name]
		if !ok {
			t.Fatalf("%s has no register", s)
		}
		return r
	}
	for pos, in := range cb.Prog {
		d := ir.Dest(in)
		if d == nil || !d.IsVar() {
			continue
		}
		rd := reg(d)
		var src *ir.Symbol
		if mv, ok := in.(ir.Mov); ok {
			src = mv.Src
		}
		live.LiveOut(pos).Range(func(k int) bool {
			s := syms[k]
			if s == d || s == src || !s.IsVar() {
				return true
			}
			if reg(s) == rd {
				t.Errorf("%d %s: %s and %s share %%%d", pos, in, d, s, rd)
			}
			return true
		})
	}
}

func newBlock() (*ir.Session, *ir.CodeBlock) {
	sess := ir.NewSession()
	return sess, sess.NewCodeBlock("f")
}

func TestCoalescing(t *testing.T) {
	sess, cb := newBlock()
	a := ir.NewLocal("a", types.Int, true)
	cb.AddMov(a, sess.Reg(1))
	cb.AddMov(sess.Reg(8), cb.AddAluOp(ir.ADD_I, a, sess.IntLit(1)))
	cb.AddEnd(sess.Reg(8))

	ra := NewRegisterAllocator(cb, Options{})
	if err := ra.AllocateRegisters(); err != nil {
		t.Fatalf("AllocateRegisters: %v", err)
	}
	if got, want := cb.Listing(), "ADD_I %8, %1, 1\nEND %8\n"; got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
	if r, _ := ra.Register(a); r != 1 {
		t.Errorf("a got %%%d, want %%1", r)
	}
	if cb.MaxRegister != 8 {
		t.Errorf("MaxRegister = %d, want 8", cb.MaxRegister)
	}
}

func TestCallClobber(t *testing.T) {
	sess, cb := newBlock()
	a := ir.NewLocal("a", types.Int, true)
	cb.AddMov(a, sess.Reg(1))
	cb.AddCall(sess.Function("g", nil), 0)
	cb.AddMov(sess.Reg(8), a)
	cb.AddEnd(sess.Reg(8))

	ra := NewRegisterAllocator(cb, Options{})
	if err := ra.AllocateRegisters(); err != nil {
		t.Fatalf("AllocateRegisters: %v", err)
	}
	want := "MOV %9, %1\nCALL g\nMOV %8, %9\nEND %8\n"
	if got := cb.Listing(); got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
	for r := ir.FirstGeneral; r <= ir.LastCallerSaved; r++ {
		if !ra.Interferes(a, sess.Reg(r)) {
			t.Errorf("a should interfere with %%%d across the call", r)
		}
	}
	if cb.MaxRegister != 9 {
		t.Errorf("MaxRegister = %d, want 9", cb.MaxRegister)
	}
}

func TestCallArgumentsSurvive(t *testing.T) {
	sess, cb := newBlock()
	a := ir.NewLocal("a", types.Int, true)
	b := ir.NewLocal("b", types.Int, true)
	cb.AddMov(a, sess.Reg(1))
	cb.AddMov(b, sess.Reg(2))
	cb.AddMov(sess.Reg(1), b)
	cb.AddMov(sess.Reg(2), a)
	cb.AddCall(sess.Function("g", nil), 2)
	cb.AddEnd()

	ra := NewRegisterAllocator(cb, Options{})
	if err := ra.AllocateRegisters(); err != nil {
		t.Fatalf("AllocateRegisters: %v", err)
	}
	ra1, _ := ra.Register(a)
	rb, _ := ra.Register(b)
	if ra1 == rb {
		t.Fatalf("a and b share %%%d", ra1)
	}
	// The swap must survive: %1 ends up holding the old %2 and vice versa.
	out := cb.Listing()
	if !strings.Contains(out, "CALL g 2") {
		t.Errorf("call lost its arguments:\n%s", out)
	}
}

// squareSum builds a loop summing i*i for i below %1.
func squareSum() *ir.CodeBlock {
	sess, cb := newBlock()
	i := ir.NewLocal("i", types.Int, true)
	sum := ir.NewLocal("sum", types.Int, true)
	n := ir.NewLocal("n", types.Int, false)

	cb.AddStart()
	cb.AddMov(n, sess.Reg(1))
	cb.AddMov(i, sess.Zero())
	cb.AddMov(sum, sess.Zero())
	top, cond := cb.NewLabel(), cb.NewLabel()
	cb.AddJump(cond)
	cb.AddLabel(top)
	sq := cb.AddAluOp(ir.MUL_I, i, i)
	cb.AddMov(sum, cb.AddAluOp(ir.ADD_I, sum, sq))
	cb.AddMov(i, cb.AddAluOp(ir.ADD_I, i, sess.IntLit(1)))
	cb.AddLabel(cond)
	cb.AddBranch(ir.LT_I, top, i, n)
	cb.AddMov(sess.Reg(8), sum)
	cb.AddEnd(sess.Reg(8))
	cb.Rebuild()
	return cb
}

func TestColoringIsSound(t *testing.T) {
	// Allocation rewrites its block in place, so liveness is taken from
	// an identical copy that is never allocated.
	ref := squareSum()
	live := liveness.Compute(ref)

	cb := squareSum()
	vars := make([]*ir.Symbol, 0, len(cb.Symbols()))
	for _, s := range cb.Symbols() {
		if s.IsVar() && !s.IsReg() {
			vars = append(vars, s)
		}
	}
	if len(vars) == 0 {
		t.Fatal("loop has no variables to allocate")
	}

	ra := NewRegisterAllocator(cb, Options{})
	if err := ra.AllocateRegisters(); err != nil {
		t.Fatalf("AllocateRegisters: %v", err)
	}

	regs := make(map[string]int, len(vars))
	for _, s := range vars {
		r, ok := ra.Register(s)
		if !ok {
			t.Fatalf("%s has no register", s)
		}
		regs[s.Name] = r
	}
	checkColoring(t, ref, live, regs)

	for _, s := range cb.Symbols() {
		if s.IsVar() && !s.IsReg() {
			t.Errorf("%s survived allocation", s)
		}
	}
}

func TestRegisterPressure(t *testing.T) {
	tests := []struct {
		name    string
		values  int
		wantErr bool
	}{
		{"fits the general pool", ir.LastGeneral, false},
		{"one value too many", ir.LastGeneral + 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, cb := newBlock()
			var vs []*ir.Symbol
			for k := 0; k < tt.values; k++ {
				v := ir.NewLocal(fmt.Sprintf("v%d", k), types.Int, true)
				cb.AddMov(v, sess.IntLit(k+100))
				vs = append(vs, v)
			}
			cb.AddEnd(vs...)

			err := Allocate(cb, Options{})
			if tt.wantErr {
				if !errors.Is(err, "REGALLOC_FAILED") {
					t.Fatalf("expected REGALLOC_FAILED, got %v", err)
				}
				if !strings.Contains(err.Error(), cb.Name) {
					t.Errorf("error should name the block: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Allocate: %v", err)
			}
			if cb.MaxRegister != ir.LastGeneral {
				t.Errorf("MaxRegister = %d, want %d", cb.MaxRegister, ir.LastGeneral)
			}
		})
	}
}
