package sim

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, text string, input ...int32) (string, *Machine) {
	t.Helper()

	img, err := Load([]byte(text))
	require.NoError(t, err)

	var out bytes.Buffer

	m := New(img)
	m.Input = input
	m.Out = &out

	err = m.Run(context.Background())
	require.NoError(t, err, "output so far: %s", out.Bytes())

	return out.String(), m
}

func TestPrintAndHalt(t *testing.T) {
	out, m := run(t, `
	.text
	.arch armv7ve
	.syntax unified
	.global _start
_start:
	push	{r4-r10, fp, lr}
	mov	fp, sp
	mov	r4, #1
	mov	r5, #2
	add	r6, r4, r5
	push	{r0-r3, ip}
	mov	r0, r6
	bl	__print
	pop	{r0-r3, ip}
	mov	sp, fp
	pop	{r4-r10, fp, lr}
	bx	lr
	.ltorg
`)

	assert.Equal(t, "3\n", out)
	assert.Equal(t, uint32(MemSize), m.Regs[13])
}

func TestWideImmediate(t *testing.T) {
	_, m := run(t, `
_start:
	movw	r4, #0x5678
	movt	r4, #0x1234
	mvn	r5, #99
	movw	r6, #0
	movt	r6, #0x8000
	bx	lr
`)

	assert.Equal(t, uint32(0x12345678), m.Regs[4])
	assert.Equal(t, int32(-100), m.Reg(5))
	assert.Equal(t, int32(-1<<31), m.Reg(6))
}

func TestConditions(t *testing.T) {
	_, m := run(t, `
_start:
	mvn	r1, #4
	mov	r2, #3
	cmp	r1, r2
	movlt	r4, #1
	movge	r4, #0
	movgt	r5, #1
	movle	r5, #0
	moveq	r6, #1
	movne	r6, #0
	bx	lr
`)

	assert.Equal(t, int32(1), m.Reg(4), "-5 < 3")
	assert.Equal(t, int32(0), m.Reg(5))
	assert.Equal(t, int32(0), m.Reg(6))
}

func TestLocalLabelsAndCalls(t *testing.T) {
	out, _ := run(t, `
_start:
	push	{fp, lr}
	mov	r4, #0
	cmp	r4, #0
	beq	1f
	bl	f
1:
	mov	r4, #1
	cmp	r4, #0
	beq	1f
	bl	f
1:
	pop	{fp, lr}
	bx	lr

f:
	push	{fp, lr}
	mov	r0, #42
	bl	__print
	pop	{fp, lr}
	bx	lr
`)

	assert.Equal(t, "42\n", out)
}

func TestLoop(t *testing.T) {
	out, _ := run(t, `
_start:
	push	{lr}
	mov	r4, #3
1:
	mov	r0, r4
	bl	__print
	sub	r4, r4, #1
	tst	r4, r4
	bne	1b
	pop	{lr}
	bx	lr
`)

	assert.Equal(t, "3\n2\n1\n", out)
}

func TestMemory(t *testing.T) {
	out, m := run(t, `
	.comm	x, 4
	.comm	b, 1
	.equ	y, -8
_start:
	mov	fp, sp
	sub	sp, sp, #8
	ldr	ip, =x
	mvn	r4, #0
	str	r4, [ip]
	ldr	ip, =b
	strb	r4, [ip]
	ldrb	r5, [ip]
	ldrsb	r6, [ip]
	mov	r7, #7
	str	r7, [fp, #y]
	ldr	r8, [fp, #-8]
	push	{lr}
	bl	__read
	pop	{lr}
	strh	r0, [fp, #-4]
	ldrsh	r9, [fp, #-4]
	ldrh	r10, [fp, #-4]
	mov	sp, fp
	bx	lr
`, -2)

	assert.Empty(t, out)
	assert.Equal(t, int32(255), m.Reg(5))
	assert.Equal(t, int32(-1), m.Reg(6))
	assert.Equal(t, int32(7), m.Reg(8))
	assert.Equal(t, int32(-2), m.Reg(9))
	assert.Equal(t, int32(0xfffe), m.Reg(10))
}

func TestRuntimeClobbers(t *testing.T) {
	_, m := run(t, `
_start:
	push	{lr}
	mov	r1, #5
	mov	r4, #5
	bl	__print
	pop	{lr}
	bx	lr
`)

	assert.Equal(t, uint32(clobbered), m.Regs[1])
	assert.Equal(t, int32(5), m.Reg(4))
}

func TestErrors(t *testing.T) {
	_, err := Load([]byte("_start:\n\t.error \"ungenerated node 3: bad\"\n"))
	assert.Error(t, err)

	_, err = Load([]byte("a:\na:\n"))
	assert.Error(t, err)

	err = Run(context.Background(), []byte("main:\n\tbx lr\n"), nil, nil)
	assert.Error(t, err, "no entry")

	img, err := Load([]byte("_start:\n1:\n\tb 1b\n"))
	require.NoError(t, err)

	m := New(img)
	m.MaxSteps = 100

	assert.ErrorIs(t, m.Run(context.Background()), ErrStepLimit)

	err = Run(context.Background(), []byte("_start:\n\tbl __read\n\tbx lr\n"), nil, nil)
	assert.ErrorIs(t, err, ErrNoInput)

	err = Run(context.Background(), []byte("_start:\n\tfoo r1, r2\n"), nil, nil)
	var rerr *RuntimeError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 2, rerr.Line)
}
