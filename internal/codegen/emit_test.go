package codegen

import (
	"testing"

	"github.com/orizon-lang/rmcc/internal/errors"
	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/types"
)

func TestEmitFrame(t *testing.T) {
	sess := ir.NewSession()
	cb := sess.NewCodeBlock("f")
	cb.AddStart()
	cb.AddMov(sess.Reg(9), sess.Reg(1))
	cb.AddCall(sess.Function("g", nil), 0)
	cb.Append(ir.Alu{Op: ir.ADD_I, Dest: sess.Reg(8), A: sess.Reg(9), B: sess.IntLit(1)})
	cb.AddEnd(sess.Reg(8))
	cb.MaxRegister = 9

	got, err := Emit(cb)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	want := `f:
sub %sp, %sp, 8
stw %9, %sp[0]
stw %30, %sp[4]
ld %9, %1
jsr g
add %8, %9, 1
ldw %9, %sp[0]
ldw %30, %sp[4]
add %sp, %sp, 8
ret
`
	if got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}
}

func TestEmitLeaf(t *testing.T) {
	sess := ir.NewSession()
	cb := sess.NewCodeBlock("leaf")
	cb.Append(ir.Alu{Op: ir.LTE_I, Dest: sess.Reg(8), A: sess.Reg(1), B: sess.Reg(2)})
	cb.AddEnd(sess.Reg(8))
	cb.MaxRegister = 8

	got, err := Emit(cb)
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	want := "leaf:\nclt %8, %2, %1\nxor %8, %8, 1\nret\n"
	if got != want {
		t.Errorf("got\n%q\nwant\n%q", got, want)
	}
}

func TestEmitInstr(t *testing.T) {
	sess := ir.NewSession()
	r := sess.Reg
	g := ir.NewGlobal("g", types.Int, 12, true)
	l := ir.Label(3)

	tests := []struct {
		name string
		in   ir.Instr
		want string
	}{
		{"greater-than branch swaps operands", ir.Branch{Op: ir.GT_I, Target: l, A: r(1), B: r(2)}, "blt %2, %1, .@3"},
		{"less-or-equal branch", ir.Branch{Op: ir.LTE_I, Target: l, A: r(1), B: r(2)}, "bge %2, %1, .@3"},
		{"less-than literal", ir.Branch{Op: ir.LT_I, Target: l, A: r(1), B: sess.IntLit(6)}, "blt %1, 6, .@3"},
		{"equality", ir.Alu{Op: ir.EQ_I, Dest: r(3), A: r(1), B: r(2)}, "xor %3, %1, %2\ncltu %3, %3, 1"},
		{"global load uses the byte offset", ir.Load{Size: ir.W, Dest: r(1), Base: r(ir.RegGlobals), Offset: g}, "ldw %1, %29[12]"},
		{"byte store", ir.Store{Size: ir.B, Data: r(2), Base: r(1), Offset: sess.IntLit(3)}, "stb %2, %1[3]"},
		{"string address", ir.Lea{Dest: r(1), Sym: sess.StringLit("hi\n")}, `ld %1, "hi\n"`},
		{"function address", ir.Lea{Dest: r(1), Sym: sess.Function("main", nil)}, "ld %1, main"},
		{"indirect call", ir.CallR{Target: r(4)}, "jsr %4[0]"},
		{"jump", ir.Jump{Target: l}, "jmp .@3"},
		{"label", ir.Mark{Label: l}, ".@3:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := emitInstr(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEmitRejects(t *testing.T) {
	tests := []struct {
		name  string
		build func(sess *ir.Session, cb *ir.CodeBlock)
	}{
		{"real arithmetic", func(sess *ir.Session, cb *ir.CodeBlock) {
			cb.Append(ir.Alu{Op: ir.ADD_R, Dest: sess.Reg(1), A: sess.Reg(2), B: sess.Reg(3)})
		}},
		{"unallocated local", func(sess *ir.Session, cb *ir.CodeBlock) {
			cb.AddMov(sess.Reg(1), ir.NewLocal("x", types.Int, true))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := ir.NewSession()
			cb := sess.NewCodeBlock("bad")
			tt.build(sess, cb)
			cb.AddEnd()
			_, err := Emit(cb)
			if !errors.Is(err, "UNREACHABLE_INSTRUCTION") {
				t.Fatalf("expected UNREACHABLE_INSTRUCTION, got %v", err)
			}
		})
	}
}

func TestFrameSize(t *testing.T) {
	tests := []struct {
		max   int
		calls bool
		want  int
	}{
		{0, false, 0},
		{8, false, 0},
		{8, true, 4},
		{12, false, 16},
		{12, true, 20},
	}
	for _, tt := range tests {
		if got := FrameSize(tt.max, tt.calls); got != tt.want {
			t.Errorf("FrameSize(%d, %v) = %d, want %d", tt.max, tt.calls, got, tt.want)
		}
	}
}
