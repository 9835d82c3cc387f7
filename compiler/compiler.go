package compiler

import (
	"bytes"
	"context"
	"io"
	"os"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/francesco-plt/pl0com/compiler/back"
	"github.com/francesco-plt/pl0com/compiler/config"
	"github.com/francesco-plt/pl0com/compiler/parse"
	"github.com/francesco-plt/pl0com/compiler/sim"
)

type (
	Output struct {
		Asm []byte

		// Diagnostics are the nodes replaced by .error directives in diagnostic mode.
		Diagnostics []error
	}
)

func CompileFile(ctx context.Context, name string, cfg config.Config) (out Output, err error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return Output{}, errors.Wrap(err, "read file")
	}

	tlog.SpanFromContext(ctx).Printw("read file", "size", len(text), "name", name)

	return Compile(ctx, name, text, cfg)
}

func Compile(ctx context.Context, name string, text []byte, cfg config.Config) (out Output, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "name", name)
	defer tr.Finish("err", &err)

	opts, err := cfg.Options()
	if err != nil {
		return Output{}, errors.Wrap(err, "config")
	}

	a, err := cfg.Allocator()
	if err != nil {
		return Output{}, errors.Wrap(err, "config")
	}

	p, err := parse.Parse(ctx, name, text)
	if err != nil {
		return Output{}, errors.Wrap(err, "parse text")
	}

	out.Asm, out.Diagnostics, err = back.New(opts).CompileProgram(ctx, a, nil, p)
	if err != nil {
		return Output{}, errors.Wrap(err, "generate")
	}

	tr.Printw("generated", "size", len(out.Asm), "diags", len(out.Diagnostics))

	return out, nil
}

// Run compiles the program and executes it in the simulator.
// A program compiled with diagnostics is not run.
func Run(ctx context.Context, name string, text []byte, cfg config.Config, input []int32, w io.Writer) (out Output, err error) {
	out, err = Compile(ctx, name, text, cfg)
	if err != nil {
		return out, err
	}

	if len(out.Diagnostics) != 0 {
		return out, errors.New("%d nodes not generated", len(out.Diagnostics))
	}

	err = sim.Run(ctx, out.Asm, input, w)
	if err != nil {
		return out, errors.Wrap(err, "execute")
	}

	return out, nil
}

// Exec is Run collecting the program output.
func Exec(ctx context.Context, name string, text []byte, cfg config.Config, input ...int32) (string, error) {
	var buf bytes.Buffer

	_, err := Run(ctx, name, text, cfg, input, &buf)

	return buf.String(), err
}
