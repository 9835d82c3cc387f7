package compiler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/francesco-plt/pl0com/compiler/config"
	"github.com/francesco-plt/pl0com/compiler/sim"
)

const sumAndArray = `program block 16 {
	sym x int32 global x 4
	sym a array[4] int32 local -16
	sym t1 int32 reg
	sym t2 int32 reg
	sym t3 int32 reg
	sym t4 int32 reg
	sym p ptr int32 reg
	sym d int32 reg
	sym q ptr int32 reg
	sym s int32 reg
	sym w int32 reg
	body {
		imm t1 1
		imm t2 2
		bin plus t3 t1 t2
		store x t3
		load t4 x
		print t4
		addr p a
		imm d 8
		bin plus q p d
		imm s 7
		store q s
		load w q
		print w
	}
}
`

const countdown = `program block 0 {
	sym n int32 reg
	sym one int32 reg
	body {
		read n
		imm one 1
	loop:
		print n
		bin minus n n one
		jump loop if n
		call done if one
	}
	def done block 0 {
		sym z int32 reg
		body {
			imm z 0
			print z
		}
	}
}
`

func configs() map[string]config.Config {
	r := map[string]config.Config{}

	for _, n := range []int{4, 1, 0} {
		c := config.Default()
		c.Registers = n

		r["linear"+string(rune('0'+n))] = c
	}

	c := config.Default()
	c.RegAlloc = "spill-all"
	c.Comments = true

	r["spill-all"] = c

	return r
}

func TestExec(t *testing.T) {
	for name, cfg := range configs() {
		t.Run(name, func(t *testing.T) {
			out, err := Exec(context.Background(), "sum.ir", []byte(sumAndArray), cfg)
			require.NoError(t, err)
			assert.Equal(t, "3\n7\n", out)

			out, err = Exec(context.Background(), "countdown.ir", []byte(countdown), cfg, 3)
			require.NoError(t, err)
			assert.Equal(t, "3\n2\n1\n0\n", out)
		})
	}
}

func TestCompileFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "countdown.ir")

	err := os.WriteFile(name, []byte(countdown), 0o644)
	require.NoError(t, err)

	out, err := CompileFile(context.Background(), name, config.Default())
	require.NoError(t, err)
	assert.Empty(t, out.Diagnostics)

	text := string(out.Asm)

	assert.Equal(t, 1, strings.Count(text, "_start:"), text)
	assert.Contains(t, text, "\nloop:\n")
	assert.Contains(t, text, "\ndone:\n")
	assert.Less(t, strings.Index(text, "_start:"), strings.Index(text, "\ndone:\n"))

	_, err = sim.Load(out.Asm)
	assert.NoError(t, err)

	_, err = CompileFile(context.Background(), filepath.Join(t.TempDir(), "missing.ir"), config.Default())
	assert.Error(t, err)
}

func TestDiagnostics(t *testing.T) {
	const bad = `program block 0 {
	sym a int32 reg
	body {
		imm a 5
		bin mod a a a
		print a
	}
}
`

	_, err := Compile(context.Background(), "bad.ir", []byte(bad), config.Default())
	assert.Error(t, err)

	cfg := config.Default()
	cfg.Mode = "diagnostic"

	out, err := Compile(context.Background(), "bad.ir", []byte(bad), cfg)
	require.NoError(t, err)
	require.Len(t, out.Diagnostics, 1)
	assert.Contains(t, string(out.Asm), "\t.error\t")
	assert.Contains(t, string(out.Asm), "\tbl\t__print\n")

	_, err = Exec(context.Background(), "bad.ir", []byte(bad), cfg)
	assert.Error(t, err, "not run with diagnostics")

	cfg.Mode = "lenient"

	_, err = Compile(context.Background(), "bad.ir", []byte(bad), cfg)
	assert.Error(t, err)
}

func TestParseError(t *testing.T) {
	_, err := Compile(context.Background(), "x.ir", []byte("program block 0 { body { print y } }"), config.Default())
	assert.Error(t, err)
}
