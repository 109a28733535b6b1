// Package legalize rewrites instructions whose literal operands cannot be
// encoded by the target into equivalents that go through a register.
//
// Only register 0 doubles as the literal zero, so any other literal used
// as a left-hand operand, a base address or store data must first be
// moved into a temp. Right-hand operands of ALU and branch instructions
// accept literals in [-0x1000, 0xFFF]. GT and LTE swap their operands when
// emitted, so a literal compared against with them is adjusted by one and
// the comparison turned into GTE or LT.
package legalize

import (
	"github.com/orizon-lang/rmcc/internal/ir"
)

// Block legalizes cb in place. Instruction order is preserved; the only
// additions are MOVs immediately before the instruction that needs them.
// It reports how many copies were inserted.
func Block(cb *ir.CodeBlock) int {
	in := cb.Prog
	cb.Prog = make([]ir.Instr, 0, len(in))

	inserted := 0
	reg := func(s *ir.Symbol) *ir.Symbol {
		if !s.IsIntLit() || s.Value == 0 {
			return s
		}
		inserted++
		return cb.AddCopy(s)
	}
	imm := func(op ir.AluOp, s *ir.Symbol) (ir.AluOp, *ir.Symbol) {
		if !s.IsIntLit() {
			return op, s
		}
		if op, k, ok := ir.ImmediateForm(op, s.Value); ok {
			if k != s.Value {
				s = cb.Session().TypedIntLit(k, s.Type)
			}
			return op, s
		}
		inserted++
		return op, cb.AddCopy(s)
	}

	for _, instr := range in {
		cb.Append(legalize(instr, reg, imm))
	}
	cb.Rebuild()
	return inserted
}

func legalize(instr ir.Instr, reg func(*ir.Symbol) *ir.Symbol, imm func(ir.AluOp, *ir.Symbol) (ir.AluOp, *ir.Symbol)) ir.Instr {
	switch i := instr.(type) {
	case ir.Alu:
		a := reg(i.A)
		op, b := imm(i.Op, i.B)
		return ir.Alu{Op: op, Dest: i.Dest, A: a, B: b}
	case ir.Branch:
		a := reg(i.A)
		op, b := imm(i.Op, i.B)
		return ir.Branch{Op: op, Target: i.Target, A: a, B: b}
	case ir.Store:
		data := reg(i.Data)
		return ir.Store{Size: i.Size, Data: data, Base: reg(i.Base), Offset: i.Offset}
	case ir.Load:
		return ir.Load{Size: i.Size, Dest: i.Dest, Base: reg(i.Base), Offset: i.Offset}
	default:
		return instr
	}
}

// IsLegal reports whether instr already satisfies the encoding rules.
func IsLegal(instr ir.Instr) bool {
	legal := true
	reg := func(s *ir.Symbol) *ir.Symbol {
		if s.IsIntLit() && s.Value != 0 {
			legal = false
		}
		return s
	}
	imm := func(op ir.AluOp, s *ir.Symbol) (ir.AluOp, *ir.Symbol) {
		if !s.IsIntLit() {
			return op, s
		}
		if got, k, ok := ir.ImmediateForm(op, s.Value); !ok || got != op || k != s.Value {
			legal = false
		}
		return op, s
	}
	legalize(instr, reg, imm)
	return legal
}
