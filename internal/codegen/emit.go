package codegen

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/rmcc/internal/errors"
	"github.com/orizon-lang/rmcc/internal/ir"
)

// Emit renders an allocated CodeBlock as assembly text. Every operand
// must already be a machine register or a literal.
//
// A block that calls out or uses registers above %8 gets a frame that
// saves %9..MaxRegister and, when it calls, the link register %30.
func Emit(cb *ir.CodeBlock) (out string, err error) {
	defer errors.Recover(&err)

	var b strings.Builder
	fmt.Fprintf(&b, "%s:\n", cb.Name)

	calls := cb.HasCalls()
	frame := FrameSize(cb.MaxRegister, calls)
	if frame != 0 {
		fmt.Fprintf(&b, "sub %%sp, %%sp, %d\n", frame)
		for r := ir.LastCallerSaved + 1; r <= cb.MaxRegister; r++ {
			fmt.Fprintf(&b, "stw %%%d, %%sp[%d]\n", r, 4*(r-ir.LastCallerSaved-1))
		}
		if calls {
			fmt.Fprintf(&b, "stw %%%d, %%sp[%d]\n", ir.RegLink, frame-4)
		}
	}

	for _, in := range cb.Prog {
		switch in.(type) {
		case ir.Start, ir.End:
			continue
		}
		b.WriteString(emitInstr(in))
		b.WriteByte('\n')
	}

	if frame != 0 {
		for r := ir.LastCallerSaved + 1; r <= cb.MaxRegister; r++ {
			fmt.Fprintf(&b, "ldw %%%d, %%sp[%d]\n", r, 4*(r-ir.LastCallerSaved-1))
		}
		if calls {
			fmt.Fprintf(&b, "ldw %%%d, %%sp[%d]\n", ir.RegLink, frame-4)
		}
		fmt.Fprintf(&b, "add %%sp, %%sp, %d\n", frame)
	}
	b.WriteString("ret\n")
	return b.String(), nil
}

// FrameSize returns the stack bytes a block reserves for saved registers.
func FrameSize(maxRegister int, hasCalls bool) int {
	n := 0
	if maxRegister > ir.LastCallerSaved {
		n = 4 * (maxRegister - ir.LastCallerSaved)
	}
	if hasCalls {
		n += 4
	}
	return n
}

func emitInstr(in ir.Instr) string {
	switch in := in.(type) {
	case ir.Alu:
		return emitAlu(in)
	case ir.Branch:
		return emitBranch(in)
	case ir.Jump:
		return fmt.Sprintf("jmp .%s", in.Target)
	case ir.Mark:
		return fmt.Sprintf(".%s:", in.Label)
	case ir.Load:
		return fmt.Sprintf("ld%s %s, %s[%s]", sizeSuffix(in.Size), operand(in.Dest), operand(in.Base), offset(in.Offset))
	case ir.Store:
		return fmt.Sprintf("st%s %s, %s[%s]", sizeSuffix(in.Size), operand(in.Data), operand(in.Base), offset(in.Offset))
	case ir.Mov:
		return fmt.Sprintf("ld %s, %s", operand(in.Dest), operand(in.Src))
	case ir.Lea:
		switch in.Sym.Kind {
		case ir.SymFunction:
			return fmt.Sprintf("ld %s, %s", operand(in.Dest), in.Sym.Name)
		case ir.SymStringLit:
			return fmt.Sprintf("ld %s, \"%s\"", operand(in.Dest), strings.ReplaceAll(in.Sym.Name, "\n", `\n`))
		}
		errors.Fatal(errors.UnreachableInstruction(fmt.Sprintf("LEA of %s", in.Sym.Kind)))
	case ir.Call:
		return "jsr " + in.Func.Name
	case ir.CallR:
		return fmt.Sprintf("jsr %s[0]", operand(in.Target))
	case ir.Nop:
		return "nop"
	}
	errors.Fatal(errors.UnreachableInstruction(in.String()))
	return ""
}

func emitAlu(in ir.Alu) string {
	d, a, b := operand(in.Dest), operand(in.A), operand(in.B)
	switch in.Op {
	case ir.NOP:
		return "nop"
	case ir.ADD_I:
		return fmt.Sprintf("add %s, %s, %s", d, a, b)
	case ir.SUB_I:
		return fmt.Sprintf("sub %s, %s, %s", d, a, b)
	case ir.MUL_I:
		return fmt.Sprintf("mul %s, %s, %s", d, a, b)
	case ir.DIV_I:
		return fmt.Sprintf("divs %s, %s, %s", d, a, b)
	case ir.MOD_I:
		return fmt.Sprintf("mods %s, %s, %s", d, a, b)
	case ir.AND_I:
		return fmt.Sprintf("and %s, %s, %s", d, a, b)
	case ir.OR_I:
		return fmt.Sprintf("or %s, %s, %s", d, a, b)
	case ir.XOR_I:
		return fmt.Sprintf("xor %s, %s, %s", d, a, b)
	case ir.EQ_I:
		return fmt.Sprintf("xor %s, %s, %s\ncltu %s, %s, 1", d, a, b, d, d)
	case ir.NE_I:
		return fmt.Sprintf("xor %s, %s, %s\ncltu %s, 0, %s", d, a, b, d, d)
	case ir.LT_I:
		return fmt.Sprintf("clt %s, %s, %s", d, a, b)
	case ir.GT_I:
		return fmt.Sprintf("clt %s, %s, %s", d, b, a)
	case ir.LTE_I:
		return fmt.Sprintf("clt %s, %s, %s\nxor %s, %s, 1", d, b, a, d, d)
	case ir.GTE_I:
		return fmt.Sprintf("clt %s, %s, %s\nxor %s, %s, 1", d, a, b, d, d)
	case ir.LSL_I:
		return fmt.Sprintf("lsl %s, %s, %s", d, a, b)
	case ir.LSR_I:
		return fmt.Sprintf("lsr %s, %s, %s", d, a, b)
	case ir.ASR_I:
		return fmt.Sprintf("asr %s, %s, %s", d, a, b)
	}
	// Real, string and boolean operators are lowered before emission.
	errors.Fatal(errors.UnreachableInstruction(fmt.Sprintf("operator %s reached emission", in.Op)))
	return ""
}

func emitBranch(in ir.Branch) string {
	a, b := operand(in.A), operand(in.B)
	switch in.Op {
	case ir.EQ_I:
		return fmt.Sprintf("beq %s, %s, .%s", a, b, in.Target)
	case ir.NE_I:
		return fmt.Sprintf("bne %s, %s, .%s", a, b, in.Target)
	case ir.LT_I:
		return fmt.Sprintf("blt %s, %s, .%s", a, b, in.Target)
	case ir.GT_I:
		return fmt.Sprintf("blt %s, %s, .%s", b, a, in.Target)
	case ir.LTE_I:
		return fmt.Sprintf("bge %s, %s, .%s", b, a, in.Target)
	case ir.GTE_I:
		return fmt.Sprintf("bge %s, %s, .%s", a, b, in.Target)
	}
	errors.Fatal(errors.UnreachableInstruction(fmt.Sprintf("branch on %s", in.Op)))
	return ""
}

func sizeSuffix(op ir.AluOp) string {
	switch op {
	case ir.B:
		return "b"
	case ir.H:
		return "h"
	case ir.W:
		return "w"
	}
	errors.Fatal(errors.UnsupportedSize(op.Bytes(), "emission"))
	return ""
}

// offset renders a memory offset; globals and members become their
// byte offsets.
func offset(s *ir.Symbol) string {
	switch s.Kind {
	case ir.SymGlobal, ir.SymMember:
		return fmt.Sprint(s.Offset)
	}
	return operand(s)
}

func operand(s *ir.Symbol) string {
	switch s.Kind {
	case ir.SymReg, ir.SymIntLit:
		return s.String()
	}
	errors.Fatal(errors.UnreachableInstruction(fmt.Sprintf("unallocated operand %s", s)))
	return ""
}
