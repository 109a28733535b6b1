// Package opt implements the block-local optimizer: a peephole rewriter
// interleaved with available-expression common subexpression
// elimination, repeated until nothing changes.
package opt

import (
	"github.com/orizon-lang/rmcc/internal/ir"
)

// DefaultMaxPasses bounds the optimize loop. The loop normally reaches a
// fixpoint well before this; the cap only guarantees termination.
const DefaultMaxPasses = 10

// Logger receives debug traces of individual rewrites.
type Logger interface {
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}

// Options configures an Optimizer.
type Options struct {
	MaxPasses int
	Logger    Logger
}

// Stats summarises one Run.
type Stats struct {
	Passes    int
	Rewrites  int
	Converged bool
}

// Optimizer rewrites one CodeBlock in place.
type Optimizer struct {
	cb        *ir.CodeBlock
	sess      *ir.Session
	log       Logger
	maxPasses int

	madeChange bool
	rewrites   int
}

// New creates an optimizer for cb.
func New(cb *ir.CodeBlock, opts Options) *Optimizer {
	o := &Optimizer{
		cb:        cb,
		sess:      cb.Session(),
		log:       opts.Logger,
		maxPasses: opts.MaxPasses,
	}
	if o.log == nil {
		o.log = nopLogger{}
	}
	if o.maxPasses <= 0 {
		o.maxPasses = DefaultMaxPasses
	}
	return o
}

// Block optimizes cb with default options.
func Block(cb *ir.CodeBlock) Stats {
	return New(cb, Options{}).Run()
}

// Run repeats peephole and CSE passes until a pass changes nothing or
// the pass limit is reached. CSE starts from the second pass, once the
// peephole rules have cleaned up the freshly legalized code.
func (o *Optimizer) Run() Stats {
	var st Stats
	for pass := 0; ; pass++ {
		o.madeChange = false

		o.cb.Rebuild()
		o.peepholePass()

		if pass >= 1 {
			o.cb.Rebuild()
			o.csePass(computeAvailable(o.cb))
		}

		st.Passes = pass + 1
		if pass > 0 && !o.madeChange {
			st.Converged = true
			break
		}
		if pass+1 >= o.maxPasses {
			o.log.Debugf("%s: optimizer stopped after %d passes", o.cb.Name, st.Passes)
			break
		}
	}
	o.cb.Rebuild()

	st.Rewrites = o.rewrites
	return st
}

func (o *Optimizer) replace(pos int, in ir.Instr) {
	o.log.Debugf("%s: %3d %s => %s", o.cb.Name, pos, o.cb.Prog[pos], in)
	o.cb.Replace(pos, in)
	o.madeChange = true
	o.rewrites++
}

func (o *Optimizer) remove(pos int) {
	if _, ok := o.cb.Prog[pos].(ir.Nop); ok {
		return
	}
	o.log.Debugf("%s: %3d %s removed", o.cb.Name, pos, o.cb.Prog[pos])
	o.cb.Remove(pos)
	o.madeChange = true
	o.rewrites++
}
