// Package codegen drives every CodeBlock of a session through the back end:
// legalize, optimize, allocate registers, optimize again and emit assembly.
package codegen

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/orizon-lang/rmcc/internal/codegen/regalloc"
	"github.com/orizon-lang/rmcc/internal/diagnostic"
	"github.com/orizon-lang/rmcc/internal/errors"
	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/legalize"
	"github.com/orizon-lang/rmcc/internal/opt"
	"github.com/orizon-lang/rmcc/internal/position"
)

// Stage names the point after which the pipeline stops and dumps IR.
// The zero value runs the whole back end.
type Stage int

const (
	StageAsm Stage = iota
	StageIR
	StageLegal
	StagePeephole
	StageRegalloc
)

var stageNames = [...]string{
	StageAsm:      "asm",
	StageIR:       "ir",
	StageLegal:    "legal",
	StagePeephole: "peephole",
	StageRegalloc: "regalloc",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ParseStage accepts the names printed by Stage.String.
func ParseStage(name string) (Stage, error) {
	for i, n := range stageNames {
		if strings.EqualFold(n, name) {
			return Stage(i), nil
		}
	}
	return StageAsm, fmt.Errorf("unknown stage %q (want one of %s)", name, strings.Join(stageNames[:], ", "))
}

// ErrUserErrors is returned when lowering recorded diagnostics; no
// output is produced for a program with errors.
var ErrUserErrors = stderrors.New("compilation has errors")

// Logger receives pass traces.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// Config controls a pipeline run.
type Config struct {
	MaxPasses int
	// Jobs bounds how many blocks are compiled at once; values below 2
	// run blocks one after another.
	Jobs   int
	StopAt Stage
	Logger Logger
}

// BlockStats describes what the pipeline did to one block.
type BlockStats struct {
	Name        string
	Legalized   int
	Optimize    opt.Stats
	Cleanup     opt.Stats
	MaxRegister int
	Frame       int
}

// Result is the output of Run, in block creation order.
type Result struct {
	Output string
	Blocks []BlockStats
}

// Run compiles every block in sess. Blocks are independent, so with
// Jobs > 1 they are processed concurrently; the output order does not
// depend on scheduling. A block whose optimizer hit MaxPasses before
// converging is reported to diags as a warning.
func Run(ctx context.Context, sess *ir.Session, diags *diagnostic.Bag, cfg Config) (*Result, error) {
	if diags != nil && diags.HasErrors() {
		return nil, fmt.Errorf("%w: %d reported", ErrUserErrors, len(diags.Errors()))
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	jobs := cfg.Jobs
	if jobs < 1 {
		jobs = 1
	}

	blocks := sess.Blocks()
	outputs := make([]string, len(blocks))
	stats := make([]BlockStats, len(blocks))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, cb := range blocks {
		i, cb := i, cb
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, st, err := compileBlock(cb, cfg)
			if err != nil {
				return fmt.Errorf("block %s: %w", cb.Name, err)
			}
			outputs[i] = out
			stats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, st := range stats {
		if diags != nil && cfg.StopAt != StageIR && cfg.StopAt != StageLegal && !st.Optimize.Converged {
			diags.Warnf(position.Span{}, "%s: optimizer stopped after %d passes without converging", st.Name, st.Optimize.Passes)
		}
	}

	return &Result{Output: strings.Join(outputs, ""), Blocks: stats}, nil
}

func compileBlock(cb *ir.CodeBlock, cfg Config) (out string, st BlockStats, err error) {
	defer errors.Recover(&err)

	st.Name = cb.Name
	optOpts := opt.Options{MaxPasses: cfg.MaxPasses, Logger: cfg.Logger}

	if cfg.StopAt == StageIR {
		return cb.Dump(), st, nil
	}

	st.Legalized = legalize.Block(cb)
	cfg.Logger.Debugf("%s: legalize inserted %d copies", cb.Name, st.Legalized)
	if cfg.StopAt == StageLegal {
		return cb.Dump(), st, nil
	}

	st.Optimize = opt.New(cb, optOpts).Run()
	cfg.Logger.Debugf("%s: optimize %d passes, %d rewrites", cb.Name, st.Optimize.Passes, st.Optimize.Rewrites)
	if cfg.StopAt == StagePeephole {
		return cb.Dump(), st, nil
	}

	ra := regalloc.NewRegisterAllocator(cb, regalloc.Options{Logger: cfg.Logger, Cleanup: optOpts})
	if err := ra.AllocateRegisters(); err != nil {
		return "", st, err
	}
	st.Cleanup = ra.CleanupStats()
	st.MaxRegister = cb.MaxRegister
	st.Frame = FrameSize(cb.MaxRegister, cb.HasCalls())
	if cfg.StopAt == StageRegalloc {
		return cb.Dump(), st, nil
	}

	asm, err := Emit(cb)
	if err != nil {
		return "", st, err
	}
	return asm, st, nil
}
