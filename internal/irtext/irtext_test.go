package irtext

import (
	"errors"
	"strings"
	"testing"

	"github.com/orizon-lang/rmcc/internal/ir"
)

const countIR = `irtext 1.0.0

block count
local n Int
local i Int var
global total Int 0 var
func helper
START
MOV n, %1
MOV i, 0
JMP @1
@0:
ADD_I &0, i, 1
MOV i, &0
@1:
BLT_I i, n, @0
STW i, %29[total]
CALL helper 1
LDB &1, %sp[4]
LEA &2, "a,b"
END %8
endblock
`

func TestParse(t *testing.T) {
	sess, err := Parse(strings.NewReader(countIR))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cb, ok := sess.Block("count")
	if !ok {
		t.Fatal("block count not registered")
	}
	if len(cb.Prog) != 14 {
		t.Fatalf("got %d instructions:\n%s", len(cb.Prog), cb.Listing())
	}

	br, ok := cb.Prog[8].(ir.Branch)
	if !ok || br.Op != ir.LT_I || br.Target != 0 {
		t.Fatalf("unexpected branch %v", cb.Prog[8])
	}
	if cb.LabelPos(br.Target) != 4 {
		t.Errorf("label @0 at %d, want 4", cb.LabelPos(br.Target))
	}

	st := cb.Prog[9].(ir.Store)
	if st.Offset.Kind != ir.SymGlobal || st.Offset.Offset != 0 || !st.Offset.Mutable {
		t.Errorf("unexpected global %+v", st.Offset)
	}
	call := cb.Prog[10].(ir.Call)
	if call.Func.Name != "helper" || len(call.Args) != 1 || call.Args[0] != sess.Reg(1) {
		t.Errorf("unexpected call %v", call)
	}
	ld := cb.Prog[11].(ir.Load)
	if ld.Size != ir.B || ld.Base != sess.Reg(ir.RegSP) {
		t.Errorf("unexpected load %v", ld)
	}
	if lea := cb.Prog[12].(ir.Lea); lea.Sym.Name != "a,b" {
		t.Errorf("unexpected string %q", lea.Sym.Name)
	}
}

func TestRoundTrip(t *testing.T) {
	sess, err := Parse(strings.NewReader(countIR))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	var b strings.Builder
	if err := Format(&b, sess); err != nil {
		t.Fatalf("Format: %v", err)
	}
	if b.String() != countIR {
		t.Errorf("round trip changed the text:\n%s", b.String())
	}
}

func TestParseClasses(t *testing.T) {
	src := `irtext 1.0.1
block f
class Node
local n Node? var
member next Node? 4
LDW &0, n[next]
MOV %8, &0
END %8
endblock
`
	sess, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cb, _ := sess.Block("f")
	if got := FormatBlock(cb); !strings.Contains(got, "class Node\nlocal n Node? var\nmember next Node? 4\n") {
		t.Errorf("declarations not reproduced:\n%s", got)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		want string
	}{
		{"missing header", "block f\nendblock\n", 1, "expected header"},
		{"future major version", "irtext 2.0.0\n", 1, "not supported"},
		{"bad version", "irtext one\n", 1, "bad format version"},
		{"instruction outside a block", "irtext 1.0.0\nMOV %1, %2\n", 2, "expected \"block"},
		{"unknown instruction", "irtext 1.0.0\nblock f\nFROB %1\nendblock\n", 3, "unknown instruction"},
		{"undeclared name", "irtext 1.0.0\nblock f\nMOV %1, x\nendblock\n", 3, "undeclared name"},
		{"wrong operand count", "irtext 1.0.0\nblock f\nADD_I %1, %2\nendblock\n", 3, "takes 3 operands"},
		{"unknown type", "irtext 1.0.0\nblock f\nlocal x Widget\nendblock\n", 3, "unknown type"},
		{"bad address", "irtext 1.0.0\nblock f\nLDW %1, %2\nendblock\n", 3, "bad address"},
		{"missing endblock", "irtext 1.0.0\nblock f\nEND\n", 3, "missing endblock"},
		{"duplicate block", "irtext 1.0.0\nblock f\nendblock\nblock f\n", 4, "duplicate block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src))
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected a ParseError, got %v", err)
			}
			if pe.Line != tt.line {
				t.Errorf("line = %d, want %d (%v)", pe.Line, tt.line, err)
			}
			if !strings.Contains(pe.Msg, tt.want) {
				t.Errorf("error %q does not mention %q", pe.Msg, tt.want)
			}
		})
	}
}

func TestSplitOperands(t *testing.T) {
	got := splitOperands(`&1, "x, \"y\"", 3`)
	want := []string{"&1", `"x, \"y\""`, "3"}
	if len(got) != len(want) {
		t.Fatalf("got %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("operand %d = %q, want %q", i, got[i], want[i])
		}
	}
}
