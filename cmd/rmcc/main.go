// Package main provides the rmcc driver: it reads textual IR, runs the
// back end over every block and prints the assembly.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/orizon-lang/rmcc/internal/cli"
	"github.com/orizon-lang/rmcc/internal/codegen"
	"github.com/orizon-lang/rmcc/internal/diagnostic"
	"github.com/orizon-lang/rmcc/internal/ir"
	"github.com/orizon-lang/rmcc/internal/irtext"
)

const toolName = "rmcc"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// options are the command-line settings that are not part of cli.Config.
type options struct {
	showVersion bool
	jsonVersion bool
	showHelp    bool
	configPath  string
	outPath     string
	watch       bool
	inputs      []string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, cfg, err := parseArgs(args, stderr)
	if err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	if opts.showVersion {
		if err := cli.PrintVersion(stdout, toolName, opts.jsonVersion); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}
	if opts.showHelp {
		showUsage(stdout)
		return 0
	}
	if len(opts.inputs) == 0 {
		fmt.Fprintln(stderr, "Error: No input file specified")
		showUsage(stderr)
		return 2
	}

	logger := cli.NewLogger(stderr, cfg.Verbose, cfg.Debug)
	d := &driver{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		stdout: stdout,
		stderr: stderr,
		color:  useColor(cfg, stderr),
		diags:  diagnostic.NewBag(),
	}

	if opts.watch {
		if err := d.watch(ctx); err != nil {
			logger.Error("%v", err)
			return 1
		}
		return 0
	}

	if err := d.compile(ctx); err != nil {
		logger.Error("Compilation failed: %v", err)
		return 1
	}
	return 0
}

// parseArgs layers the sources of configuration: defaults, the JSON
// file, the environment and finally explicitly given flags.
func parseArgs(args []string, stderr io.Writer) (*options, *cli.Config, error) {
	fs := flag.NewFlagSet(toolName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { showUsage(stderr) }

	opts := &options{}
	defaults := cli.DefaultConfig()
	var flagCfg cli.Config

	fs.BoolVar(&opts.showVersion, "version", false, "show version information")
	fs.BoolVar(&opts.jsonVersion, "json", false, "print version information as JSON")
	fs.BoolVar(&opts.showHelp, "help", false, "show help information")
	fs.StringVar(&opts.configPath, "config", "", "JSON configuration file")
	fs.StringVar(&opts.outPath, "o", "", "write output to file instead of stdout")
	fs.BoolVar(&opts.watch, "watch", false, "recompile when an input file changes")
	fs.StringVar(&flagCfg.StopAt, "stop-at", defaults.StopAt, "last stage to run: ir|legal|peephole|regalloc|asm")
	fs.IntVar(&flagCfg.MaxPasses, "max-passes", defaults.MaxPasses, "peephole pass limit")
	fs.IntVar(&flagCfg.Jobs, "jobs", defaults.Jobs, "blocks compiled in parallel")
	fs.StringVar(&flagCfg.Color, "color", defaults.Color, "diagnostic colors: auto|always|never")
	fs.BoolVar(&flagCfg.Verbose, "v", false, "verbose output")
	fs.BoolVar(&flagCfg.Debug, "debug", false, "trace optimizer and allocator passes")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	opts.inputs = fs.Args()

	cfg, err := cli.LoadConfig(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.ApplyEnv()

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "stop-at":
			cfg.StopAt = flagCfg.StopAt
		case "max-passes":
			cfg.MaxPasses = flagCfg.MaxPasses
		case "jobs":
			cfg.Jobs = flagCfg.Jobs
		case "color":
			cfg.Color = flagCfg.Color
		case "v":
			cfg.Verbose = flagCfg.Verbose
		case "debug":
			cfg.Debug = flagCfg.Debug
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return opts, cfg, nil
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, "rmcc - optimizing back end for register-machine IR")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "    rmcc [OPTIONS] <INPUT_FILE>...")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "OPTIONS:")
	fmt.Fprintln(w, "    -version         Show version information (-json for JSON)")
	fmt.Fprintln(w, "    -help            Show this help message")
	fmt.Fprintln(w, "    -config FILE     Load settings from a JSON file")
	fmt.Fprintln(w, "    -o FILE          Write output to FILE")
	fmt.Fprintln(w, "    -stop-at STAGE   Stop after ir|legal|peephole|regalloc|asm")
	fmt.Fprintln(w, "    -max-passes N    Peephole pass limit (default 10)")
	fmt.Fprintln(w, "    -jobs N          Compile N blocks in parallel")
	fmt.Fprintln(w, "    -color MODE      auto|always|never")
	fmt.Fprintln(w, "    -v               Verbose output")
	fmt.Fprintln(w, "    -debug           Trace optimizer and allocator passes")
	fmt.Fprintln(w, "    -watch           Recompile when an input changes")
	fmt.Fprintln(w, "    env RMCC_MAX_PASSES, RMCC_JOBS, RMCC_STOP_AT, RMCC_DEBUG, RMCC_VERBOSE, NO_COLOR")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "EXAMPLES:")
	fmt.Fprintln(w, "    rmcc sum.ir")
	fmt.Fprintln(w, "    rmcc -stop-at peephole -o sum.opt.ir sum.ir")
	fmt.Fprintln(w, "    rmcc -jobs 4 -watch lib.ir main.ir")
}

func useColor(cfg *cli.Config, w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return cfg.UseColor(f)
	}
	return cfg.Color == cli.ColorAlways
}

// driver holds what one compilation needs; watch mode reuses it for
// every rebuild.
type driver struct {
	cfg    *cli.Config
	opts   *options
	logger *cli.Logger
	stdout io.Writer
	stderr io.Writer
	color  bool
	diags  *diagnostic.Bag
}

// compile reads every input into one session and runs the pipeline.
// Diagnostics of an earlier run are discarded first.
func (d *driver) compile(ctx context.Context) error {
	d.diags.Clear()
	sess := ir.NewSession()
	for _, path := range d.opts.inputs {
		if err := readInput(sess, path); err != nil {
			return err
		}
		d.logger.Info("read %s", filepath.Base(path))
	}

	pipe, err := d.cfg.Pipeline(d.logger)
	if err != nil {
		return err
	}

	res, err := codegen.Run(ctx, sess, d.diags, pipe)
	if report := d.diags.Format(d.color); report != "" {
		fmt.Fprintln(d.stderr, report)
	}
	if err != nil {
		return err
	}

	for _, st := range res.Blocks {
		d.logger.Info("%s: %d legalized, %d+%d peephole rewrites in %d+%d passes, max register %%%d, frame %d",
			st.Name, st.Legalized,
			st.Optimize.Rewrites, st.Cleanup.Rewrites,
			st.Optimize.Passes, st.Cleanup.Passes,
			st.MaxRegister, st.Frame)
	}

	return d.write(res.Output)
}

func readInput(sess *ir.Session, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	if err := irtext.ParseInto(sess, f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (d *driver) write(out string) error {
	if d.opts.outPath == "" {
		_, err := io.WriteString(d.stdout, out)
		return err
	}
	if err := os.WriteFile(d.opts.outPath, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	d.logger.Info("wrote %s", d.opts.outPath)
	return nil
}
