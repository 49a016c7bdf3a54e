package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/bgins/mil-tools/pkg/config"
	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/driver"
	"github.com/bgins/mil-tools/pkg/interp"
	"github.com/bgins/mil-tools/pkg/llvmgen"
	"github.com/bgins/mil-tools/pkg/rtl"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Debug flags for dumping intermediate forms
var (
	dMIL     bool
	dSpec    bool
	dRep     bool
	dOpt     bool
	dSources bool
	dRTL     bool
	dLLVM    bool
)

// Pipeline options
var (
	runEntry   bool
	runArgs    []int64
	configPath string
	wordSize   int
	logLevel   string
	noOpt      bool
	noColor    bool
)

var (
	errorStyle = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	errorColor = pterm.FgRed
	infoStyle  = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	infoColor  = pterm.FgLightGreen
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	// Accept single-dash dump flags such as -dmil
	rootCmd.SetArgs(normalizeFlags(os.Args[1:]))
	if err := rootCmd.Execute(); err != nil {
		return 1
	}
	return 0
}

// debugFlagNames lists the dump flags that may be written with a single dash
var debugFlagNames = []string{"dmil", "dspec", "drep", "dopt", "dsources", "drtl", "dllvm"}

// normalizeFlags converts single-dash dump flags like -dmil to --dmil
func normalizeFlags(args []string) []string {
	result := make([]string, len(args))
	for i, arg := range args {
		for _, flagName := range debugFlagNames {
			if arg == "-"+flagName {
				result[i] = "--" + flagName
				break
			}
		}
		if result[i] == "" {
			result[i] = arg
		}
	}
	return result
}

func newRootCmd(out, errOut io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "milc [file]",
		Short: "milc compiles MIL programs",
		Long: `milc type checks, specializes, represents and optimizes a MIL
program given as YAML, and lowers it to RTL or LLVM IR. Each
intermediate form can be dumped with a -dXXX flag.`,
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				pterm.DisableColor()
			}
			if len(args) == 0 {
				return cmd.Help()
			}
			opts, err := loadOptions(cmd)
			if err != nil {
				printError(errOut, "config", err)
				return err
			}
			return compile(args[0], opts, out, errOut)
		},
	}
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	rootCmd.Flags().BoolVarP(&dMIL, "dmil", "", false, "Dump MIL after type checking")
	rootCmd.Flags().BoolVarP(&dSpec, "dspec", "", false, "Dump MIL after specialization")
	rootCmd.Flags().BoolVarP(&dRep, "drep", "", false, "Dump MIL after representation transformation")
	rootCmd.Flags().BoolVarP(&dOpt, "dopt", "", false, "Dump MIL after optimization")
	rootCmd.Flags().BoolVarP(&dSources, "dsources", "", false, "Dump the invariant parameter analysis")
	rootCmd.Flags().BoolVarP(&dRTL, "drtl", "", false, "Dump RTL")
	rootCmd.Flags().BoolVarP(&dLLVM, "dllvm", "", false, "Dump LLVM IR")

	rootCmd.Flags().BoolVar(&runEntry, "run", false, "Interpret the first entrypoint after the last dumped MIL stage, or after optimization")
	rootCmd.Flags().Int64SliceVar(&runArgs, "arg", nil, "Word argument passed to the entrypoint by --run")
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Options file (.yaml, .yml or .toml)")
	rootCmd.Flags().IntVar(&wordSize, "word-size", 64, "Target word size in bits (32 or 64)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.Flags().BoolVar(&noOpt, "no-opt", false, "Skip the optimizer")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored diagnostics")

	return rootCmd
}

// loadOptions reads the config file, then applies flags that were set.
func loadOptions(cmd *cobra.Command) (config.Options, error) {
	opts := config.Default()
	if configPath != "" {
		var err error
		if opts, err = config.Load(configPath); err != nil {
			return opts, err
		}
	}
	flags := cmd.Flags()
	if flags.Changed("word-size") {
		if wordSize != 32 && wordSize != 64 {
			return opts, fmt.Errorf("unsupported word size %d", wordSize)
		}
		opts.WordSize = wordSize
	}
	if flags.Changed("log-level") {
		opts.LogLevel = logLevel
	}
	if noOpt {
		opts.Optimize.Enabled = false
	}
	return opts, nil
}

// compile runs the pipeline as far as the requested dumps need.
func compile(filename string, opts config.Options, out, errOut io.Writer) (err error) {
	log := slog.New(slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: opts.Level()}))
	c := driver.New(opts, log)
	defer func() {
		if err != nil {
			report(errOut, c, err)
		}
	}()
	defer diag.Recover(&err)

	if err := c.Load(filename); err != nil {
		return err
	}

	milDumps := []struct {
		enabled bool
		stage   driver.Stage
		ext     string
	}{
		{dMIL, driver.StageCheck, ".mil"},
		{dSpec, driver.StageSpecialize, ".spec.mil"},
		{dRep, driver.StageRepTrans, ".rep.mil"},
		{dOpt, driver.StageOptimize, ".opt.mil"},
	}
	last := driver.StageNone
	for _, d := range milDumps {
		if !d.enabled {
			continue
		}
		if err := c.RunTo(d.stage); err != nil {
			return err
		}
		if err := dump(filename, d.ext, out, c.Dump); err != nil {
			return err
		}
		last = d.stage
	}
	if last == driver.StageNone {
		last = driver.StageOptimize
	}
	if err := c.RunTo(last); err != nil {
		return err
	}

	if dSources {
		srcs, err := c.Sources()
		if err != nil {
			return err
		}
		if err := dump(filename, ".sources", out, srcs.Dump); err != nil {
			return err
		}
	}
	if dRTL {
		prog, err := c.RTL()
		if err != nil {
			return err
		}
		if err := dump(filename, ".rtl", out, func(w io.Writer) error {
			rtl.NewPrinter(w).PrintProgram(prog)
			return nil
		}); err != nil {
			return err
		}
	}
	if dLLVM {
		m, err := c.LLVM()
		if err != nil {
			return err
		}
		if err := dump(filename, ".ll", out, func(w io.Writer) error {
			return llvmgen.Write(w, m)
		}); err != nil {
			return err
		}
	}

	if runEntry {
		return execute(c, out, errOut)
	}
	if !anyDump() {
		printInfo(errOut, "ok", fmt.Sprintf("%s: compiled %d definitions", filename, len(c.Prog.Reachable())))
	}
	return nil
}

func anyDump() bool {
	return dMIL || dSpec || dRep || dOpt || dSources || dRTL || dLLVM
}

// execute interprets the entrypoint and prints its results.
func execute(c *driver.Compiler, out, errOut io.Writer) error {
	args := make([]interp.Value, len(runArgs))
	for i, a := range runArgs {
		args[i] = interp.WordValue(c.Ctx.Normalize(a))
	}
	vs, err := c.Exec(out, args)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, interp.FormatValues(vs))
	printInfo(errOut, "ok", fmt.Sprintf("%d steps", c.Steps()))
	return nil
}

// dump writes one intermediate form to stdout and to a file next to the
// input, named by replacing the input's extension with ext.
func dump(filename, ext string, out io.Writer, write func(io.Writer) error) error {
	outputFilename := dumpOutputFilename(filename, ext)
	outFile, err := os.Create(outputFilename)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outputFilename, err)
	}
	defer outFile.Close()

	if err := write(outFile); err != nil {
		return err
	}
	return write(out)
}

// dumpOutputFilename returns the dump file for an input:
// prog.yaml -> prog.spec.mil
func dumpOutputFilename(filename, ext string) string {
	base := filename
	for _, in := range []string{".yaml", ".yml"} {
		if strings.HasSuffix(filename, in) {
			base = filename[:len(filename)-len(in)]
			break
		}
	}
	return base + ext
}

// report prints every collected failure, or err itself when there are
// none to show.
func report(w io.Writer, c *driver.Compiler, err error) {
	var ie *diag.InternalError
	switch {
	case errors.As(err, &ie):
		printError(w, "internal error", ie.Err)
		fmt.Fprintf(w, "%+v\n", ie.Err)
	case errors.Is(err, diag.ErrFailures):
		for _, f := range c.Ctx.Handler.Failures() {
			printError(w, f.Kind.String(), fmt.Errorf("%s: %s", f.Pos, f.Msg))
		}
	default:
		printError(w, "error", err)
	}
}

func printError(w io.Writer, tag string, err error) {
	fmt.Fprintln(w, errorStyle.Sprint("milc: "+tag), errorColor.Sprint(err.Error()))
}

func printInfo(w io.Writer, tag, msg string) {
	fmt.Fprintln(w, infoStyle.Sprint(tag), infoColor.Sprint(msg))
}
