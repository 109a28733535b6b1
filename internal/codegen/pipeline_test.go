package codegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/orizon-lang/rmcc/internal/diagnostic"
	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/position"
	"github.com/orizon-lang/rmcc/internal/types"
)

// countLoop builds: var i = 0; while i < n { i = i + 1 }; return i
func countLoop(sess *ir.Session, name string) *ir.CodeBlock {
	cb := sess.NewCodeBlock(name)
	n := ir.NewLocal("n", types.Int, false)
	i := ir.NewLocal("i", types.Int, true)

	cb.AddStart()
	cb.AddMov(n, sess.Reg(1))
	cb.AddMov(i, sess.Zero())
	body, cond := cb.NewLabel(), cb.NewLabel()
	cb.AddJump(cond)
	cb.AddLabel(body)
	cb.AddMov(i, cb.AddAluOp(ir.ADD_I, i, sess.IntLit(1)))
	cb.AddLabel(cond)
	cb.AddBranch(ir.LT_I, body, i, n)
	cb.AddMov(sess.Reg(ir.ResultReg), i)
	cb.AddEnd(sess.Reg(ir.ResultReg))
	return cb
}

func TestRunToAssembly(t *testing.T) {
	sess := ir.NewSession()
	countLoop(sess, "count")

	res, err := Run(context.Background(), sess, diagnostic.NewBag(), Config{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, want := range []string{"count:\n", "jmp .@", "blt ", "ret\n"} {
		if !strings.Contains(res.Output, want) {
			t.Errorf("missing %q in\n%s", want, res.Output)
		}
	}
	if strings.Contains(res.Output, "&") {
		t.Errorf("temps survived allocation:\n%s", res.Output)
	}
	if len(res.Blocks) != 1 || res.Blocks[0].Name != "count" {
		t.Fatalf("unexpected stats %+v", res.Blocks)
	}
	if st := res.Blocks[0]; !st.Optimize.Converged || st.Frame != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestZeroConfigRunsEveryStage(t *testing.T) {
	if got := (Config{}).StopAt; got != StageAsm {
		t.Errorf("zero Config stops at %s, want asm", got)
	}
}

func TestRunComparesAgainstLiteral(t *testing.T) {
	sess := ir.NewSession()
	cb := sess.NewCodeBlock("clamp")
	x := ir.NewLocal("x", types.Int, false)
	r := ir.NewLocal("r", types.Int, true)

	// r = 0; if !(x > 5) { r = x <= 7 }; return r
	cb.AddStart()
	cb.AddMov(x, sess.Reg(1))
	cb.AddMov(r, sess.Zero())
	skip := cb.NewLabel()
	cb.AddBranch(ir.GT_I, skip, x, sess.IntLit(5))
	cb.AddMov(r, cb.AddAluOp(ir.LTE_I, x, sess.IntLit(7)))
	cb.AddLabel(skip)
	cb.AddMov(sess.Reg(ir.ResultReg), r)
	cb.AddEnd(sess.Reg(ir.ResultReg))

	res, err := Run(context.Background(), sess, diagnostic.NewBag(), Config{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var branch, compare bool
	for _, line := range strings.Split(res.Output, "\n") {
		f := strings.Fields(line)
		if len(f) < 3 {
			continue
		}
		switch f[0] {
		case "blt", "bge":
			branch = branch || f[2] == "6,"
		case "clt":
			compare = compare || (len(f) == 4 && f[3] == "8")
		default:
			continue
		}
		if first := strings.TrimSuffix(f[1], ","); f[0] != "clt" && first != "0" && !strings.HasPrefix(first, "%") {
			t.Errorf("literal left operand in %q", line)
		}
		if second := strings.TrimSuffix(f[2], ","); f[0] == "clt" && second != "0" && !strings.HasPrefix(second, "%") {
			t.Errorf("literal left operand in %q", line)
		}
	}
	if !branch || !compare {
		t.Errorf("expected x > 5 against 6 and x <= 7 against 8:\n%s", res.Output)
	}
}

func TestRunStopAt(t *testing.T) {
	tests := []struct {
		stop Stage
		want string
	}{
		{StageIR, "MOV n, %1"},
		{StagePeephole, "BLT_I i, n, @"},
		{StageRegalloc, "END %8"},
	}
	for _, tt := range tests {
		t.Run(tt.stop.String(), func(t *testing.T) {
			sess := ir.NewSession()
			countLoop(sess, "count")
			res, err := Run(context.Background(), sess, nil, Config{StopAt: tt.stop})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if !strings.Contains(res.Output, "              count\n") {
				t.Errorf("expected a dump header:\n%s", res.Output)
			}
			if !strings.Contains(res.Output, tt.want) {
				t.Errorf("missing %q in\n%s", tt.want, res.Output)
			}
		})
	}
}

func TestRunParallelMatchesSequential(t *testing.T) {
	compile := func(jobs int) string {
		sess := ir.NewSession()
		for k := 0; k < 6; k++ {
			countLoop(sess, fmt.Sprintf("f%d", k))
		}
		res, err := Run(context.Background(), sess, nil, Config{Jobs: jobs})
		if err != nil {
			t.Fatalf("Run(jobs=%d): %v", jobs, err)
		}
		return res.Output
	}
	if seq, par := compile(1), compile(4); seq != par {
		t.Errorf("parallel output differs:\n%s\nvs\n%s", seq, par)
	}
}

func TestRunWarnsWhenOptimizerStopsEarly(t *testing.T) {
	sess := ir.NewSession()
	countLoop(sess, "count")
	bag := diagnostic.NewBag()

	if _, err := Run(context.Background(), sess, bag, Config{MaxPasses: 1}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if bag.HasErrors() {
		t.Fatalf("unexpected errors %v", bag.Errors())
	}
	all := bag.All()
	if len(all) != 1 || all[0].Level != diagnostic.DiagnosticWarning || !strings.Contains(all[0].Message, "count: optimizer stopped after 1 passes") {
		t.Errorf("got %v", all)
	}
}

func TestRunRefusesUserErrors(t *testing.T) {
	sess := ir.NewSession()
	countLoop(sess, "count")
	bag := diagnostic.NewBag()
	bag.Errorf(position.At("input", 1, 1, 3), diagnostic.DiagnosticSemantic, "Variable '%s' is uninitialized", "a")

	_, err := Run(context.Background(), sess, bag, Config{})
	if !errors.Is(err, ErrUserErrors) {
		t.Fatalf("expected ErrUserErrors, got %v", err)
	}
}

func TestRunCancelled(t *testing.T) {
	sess := ir.NewSession()
	countLoop(sess, "count")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, sess, nil, Config{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestParseStage(t *testing.T) {
	for _, name := range []string{"ir", "legal", "peephole", "regalloc", "asm", "ASM"} {
		if _, err := ParseStage(name); err != nil {
			t.Errorf("ParseStage(%q): %v", name, err)
		}
	}
	if _, err := ParseStage("ast"); err == nil {
		t.Error("expected an error for an unknown stage")
	}
}
