// Package driver runs the compilation pipeline one stage at a time:
// load, type check, specialize, representation transform, optimize, and
// then lowering to RTL and LLVM. The CLI and integration tests use it to
// stop after any stage and inspect the program.
package driver

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/bgins/mil-tools/pkg/config"
	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/interp"
	"github.com/bgins/mil-tools/pkg/llvmgen"
	"github.com/bgins/mil-tools/pkg/loader"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/optimize"
	"github.com/bgins/mil-tools/pkg/reptrans"
	"github.com/bgins/mil-tools/pkg/rtl"
	"github.com/bgins/mil-tools/pkg/rtlgen"
	"github.com/bgins/mil-tools/pkg/specialize"
	"github.com/bgins/mil-tools/pkg/typecheck"
	"github.com/llir/llvm/ir"
)

// Stage names a point in the pipeline. Stages run in declaration order.
type Stage int

const (
	StageNone Stage = iota
	StageLoad
	StageCheck
	StageSpecialize
	StageRepTrans
	StageOptimize
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "none"
	case StageLoad:
		return "load"
	case StageCheck:
		return "check"
	case StageSpecialize:
		return "specialize"
	case StageRepTrans:
		return "reptrans"
	case StageOptimize:
		return "optimize"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ErrNoProgram is returned when a stage runs before a program was loaded.
var ErrNoProgram = errors.New("no program loaded")

// ErrNoEntrypoint is returned by Exec for a program without entrypoints.
var ErrNoEntrypoint = errors.New("program has no entrypoint")

// Compiler holds the state of one compilation.
type Compiler struct {
	Ctx  *mil.Context
	Opts config.Options
	Prog *mil.Program

	stage Stage
	steps int
}

// New creates a compiler for opts. A nil logger discards output.
func New(opts config.Options, log *slog.Logger) *Compiler {
	return &Compiler{Ctx: mil.NewContext(log, opts.WordSize), Opts: opts}
}

// Stage is the last stage that completed.
func (c *Compiler) Stage() Stage { return c.stage }

// Steps is the number of tails the last Exec evaluated.
func (c *Compiler) Steps() int { return c.steps }

// Load reads the program at path.
func (c *Compiler) Load(path string) error {
	prog, err := loader.Load(c.Ctx, path)
	if err != nil {
		return err
	}
	return c.loaded(prog)
}

// Parse reads a program from src; name is used in positions.
func (c *Compiler) Parse(name string, src []byte) error {
	prog, err := loader.Parse(c.Ctx, name, src)
	if err != nil {
		return err
	}
	return c.loaded(prog)
}

// loaded installs prog and marks the configured entrypoints.
func (c *Compiler) loaded(prog *mil.Program) error {
	for _, name := range c.Opts.Entrypoints {
		id, ok := prog.Lookup(name)
		if !ok {
			return diag.Errorf(diag.Position{}, diag.LoadError, "entrypoint %s is not defined", name)
		}
		prog.AddEntry(id)
	}
	c.Prog = prog
	c.stage = StageLoad
	return nil
}

// RunTo runs every stage after the current one up to and including s.
func (c *Compiler) RunTo(s Stage) error {
	if c.Prog == nil {
		return ErrNoProgram
	}
	for c.stage < s {
		next := c.stage + 1
		var err error
		switch next {
		case StageCheck:
			err = c.check()
		case StageSpecialize:
			err = specialize.Program(c.Ctx, c.Prog)
		case StageRepTrans:
			err = reptrans.Program(c.Ctx, c.Prog)
		case StageOptimize:
			c.optimize()
		default:
			return fmt.Errorf("unknown stage %s", next)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", next, err)
		}
		c.Ctx.Log.Debug("stage done", "stage", next.String())
		c.stage = next
	}
	return nil
}

// check type checks the program. A failure that stops checking is added
// after the ones already reported so every diagnostic reaches the caller.
func (c *Compiler) check() error {
	if err := typecheck.Program(c.Ctx, c.Prog); err != nil {
		var f *diag.Failure
		if !errors.As(err, &f) {
			return err
		}
		c.Ctx.Handler.Report(f)
	}
	return c.Ctx.Handler.Err()
}

func (c *Compiler) optimize() {
	if !c.Opts.Optimize.Enabled {
		return
	}
	optimize.Program(c.Ctx, c.Prog, optimize.Options{
		MaxIterations: c.Opts.Optimize.MaxIterations,
		InlineSize:    c.Opts.Optimize.InlineSize,
		DupTableSize:  c.Opts.Optimize.DupTableSize,
	})
}

// Dump prints the reachable definitions of the program.
func (c *Compiler) Dump(w io.Writer) error {
	if c.Prog == nil {
		return ErrNoProgram
	}
	mil.NewPrinter(w, c.Prog).PrintProgram()
	return nil
}

// Sources runs the invariant analysis on the optimized program.
func (c *Compiler) Sources() (*optimize.Sources, error) {
	if err := c.RunTo(StageOptimize); err != nil {
		return nil, err
	}
	return optimize.AnalyzeInvariants(c.Ctx, c.Prog), nil
}

// RTL lowers the optimized program.
func (c *Compiler) RTL() (*rtl.Program, error) {
	if err := c.RunTo(StageOptimize); err != nil {
		return nil, err
	}
	return rtlgen.Program(c.Ctx, c.Prog)
}

// LLVM lowers the optimized program to an LLVM module.
func (c *Compiler) LLVM() (*ir.Module, error) {
	prog, err := c.RTL()
	if err != nil {
		return nil, err
	}
	return llvmgen.Generate(prog)
}

// Exec interprets the first entrypoint of the program in its current
// stage. Output from printWord goes to out.
func (c *Compiler) Exec(out io.Writer, args []interp.Value) ([]interp.Value, error) {
	if c.Prog == nil {
		return nil, ErrNoProgram
	}
	if len(c.Prog.Entries) == 0 {
		return nil, ErrNoEntrypoint
	}
	m := interp.New(c.Ctx, c.Prog, out)
	m.Fuel = c.Opts.Interp.Fuel
	vs, err := m.Run(c.Prog.Entries[0], args)
	c.steps = m.Steps()
	c.Ctx.Log.Debug("interpreted", "stage", c.stage.String(), "steps", c.steps)
	return vs, err
}
