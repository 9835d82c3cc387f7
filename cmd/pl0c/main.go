package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/logrusorgru/aurora"
	"golang.org/x/term"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/francesco-plt/pl0com/compiler"
	"github.com/francesco-plt/pl0com/compiler/config"
	"github.com/francesco-plt/pl0com/compiler/format"
	"github.com/francesco-plt/pl0com/compiler/parse"
)

func main() {
	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile ir files to arm assembly",
		Action:      compileAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("output,o", "", "write assembly to file instead of stdout"),
		},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "compile and execute in the simulator",
		Action:      runAct,
		Args:        cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("input", "", "comma separated values for read"),
		},
	}

	fmtCmd := &cli.Command{
		Name:        "fmt",
		Description: "print ir files in canonical form",
		Action:      fmtAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "pl0c",
		Description: "pl0c is the pl0 compiler back end",
		Before:      before,
		Flags: []*cli.Flag{
			cli.NewFlag("config", "", "yaml config file"),
			cli.NewFlag("mode", "", "strict or diagnostic"),
			cli.NewFlag("regalloc", "", "linear-scan or spill-all"),
			cli.NewFlag("registers", -1, "allocatable registers, 0 to 4"),
			cli.NewFlag("comments", false, "annotate statements in assembly"),
			cli.NewFlag("log", "", "log file, stderr by default"),
			cli.NewFlag("v", "", "verbosity topics"),
			cli.HelpFlag,
		},
		Commands: []*cli.Command{
			compileCmd,
			runCmd,
			fmtCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func before(c *cli.Command) error {
	var w io.Writer = os.Stderr

	if q := c.String("log"); q != "" {
		f, err := os.Create(q)
		if err != nil {
			return errors.Wrap(err, "open log")
		}

		w = f
	}

	tlog.DefaultLogger = tlog.New(tlog.NewConsoleWriter(w, tlog.LstdFlags))

	tlog.SetVerbosity(c.String("v"))

	return nil
}

func loadConfig(c *cli.Command) (cfg config.Config, err error) {
	cfg, err = config.Load(c.String("config"))
	if err != nil {
		return cfg, err
	}

	if q := c.String("mode"); q != "" {
		cfg.Mode = q
	}

	if q := c.String("regalloc"); q != "" {
		cfg.RegAlloc = q
	}

	if q := c.Int("registers"); q >= 0 {
		cfg.Registers = q
	}

	if c.Bool("comments") {
		cfg.Comments = true
	}

	return cfg, cfg.Validate()
}

func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	cfg, err := loadConfig(c)
	if err != nil {
		return errors.Wrap(err, "config")
	}

	var asm []byte
	failed := 0

	for _, a := range c.Args {
		out, err := compiler.CompileFile(ctx, a, cfg)
		if err != nil {
			return errors.Wrap(err, "compile %v", a)
		}

		report(a, out.Diagnostics)

		if len(out.Diagnostics) != 0 {
			failed++
		}

		asm = append(asm, out.Asm...)
	}

	if q := c.String("output"); q != "" {
		err = os.WriteFile(q, asm, 0o644)
	} else {
		_, err = os.Stdout.Write(asm)
	}
	if err != nil {
		return errors.Wrap(err, "write assembly")
	}

	if failed != 0 {
		return errors.New("%d files with ungenerated nodes", failed)
	}

	return nil
}

func runAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	cfg, err := loadConfig(c)
	if err != nil {
		return errors.Wrap(err, "config")
	}

	input, err := parseInput(c.String("input"))
	if err != nil {
		return errors.Wrap(err, "input")
	}

	for _, a := range c.Args {
		text, err := os.ReadFile(a)
		if err != nil {
			return errors.Wrap(err, "read file")
		}

		out, err := compiler.Run(ctx, a, text, cfg, input, os.Stdout)
		report(a, out.Diagnostics)
		if err != nil {
			return errors.Wrap(err, "run %v", a)
		}
	}

	return nil
}

func fmtAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	for _, a := range c.Args {
		p, err := parse.ParseFile(ctx, a)
		if err != nil {
			return errors.Wrap(err, "parse %v", a)
		}

		text, err := format.Format(ctx, nil, p)
		if err != nil {
			return errors.Wrap(err, "format %v", a)
		}

		_, err = os.Stdout.Write(text)
		if err != nil {
			return errors.Wrap(err, "write")
		}
	}

	return nil
}

func report(name string, diags []error) {
	au := aurora.NewAurora(term.IsTerminal(int(os.Stderr.Fd())))

	for _, d := range diags {
		fmt.Fprintf(os.Stderr, "%v: %v %v\n", au.Bold(name), au.Red("ungenerated:"), d)
	}
}

func parseInput(s string) (r []int32, err error) {
	if s == "" {
		return nil, nil
	}

	for _, f := range strings.Split(s, ",") {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 0, 32)
		if err != nil {
			return nil, errors.Wrap(err, "value %q", f)
		}

		r = append(r, int32(v))
	}

	return r, nil
}
