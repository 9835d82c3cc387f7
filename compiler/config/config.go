// Package config holds the compiler settings read from a YAML file.
package config

import (
	"bytes"
	"io"
	"os"

	"gopkg.in/yaml.v3"
	"tlog.app/go/errors"

	"github.com/francesco-plt/pl0com/compiler/asm/arm"
	"github.com/francesco-plt/pl0com/compiler/back"
	"github.com/francesco-plt/pl0com/compiler/regalloc"
)

type (
	Config struct {
		Mode      string `yaml:"mode"`
		RegAlloc  string `yaml:"regalloc"`
		Registers int    `yaml:"registers"`
		Comments  bool   `yaml:"comments"`
	}
)

func Default() Config {
	return Config{
		Mode:      back.Strict.String(),
		RegAlloc:  regalloc.LinearScanName,
		Registers: len(arm.Pool),
	}
}

// Load reads the file over the defaults. An empty name is the defaults.
func Load(name string) (Config, error) {
	if name == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(name)
	if err != nil {
		return Config{}, errors.Wrap(err, "read config")
	}

	c, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrap(err, "%v", name)
	}

	return c, nil
}

// Parse decodes data over the defaults. Unknown keys are errors.
func Parse(data []byte) (c Config, err error) {
	c = Default()

	d := yaml.NewDecoder(bytes.NewReader(data))
	d.KnownFields(true)

	err = d.Decode(&c)
	if err == io.EOF { // empty document
		err = nil
	}
	if err != nil {
		return Config{}, errors.Wrap(err, "decode")
	}

	err = c.Validate()
	if err != nil {
		return Config{}, err
	}

	return c, nil
}

func (c Config) Validate() error {
	if _, err := ParseMode(c.Mode); err != nil {
		return err
	}

	switch c.RegAlloc {
	case regalloc.LinearScanName, regalloc.SpillAllName:
	default:
		return errors.New("regalloc: unknown value %q", c.RegAlloc)
	}

	if c.Registers < 0 || c.Registers > len(arm.Pool) {
		return errors.New("registers: %d out of range [0, %d]", c.Registers, len(arm.Pool))
	}

	return nil
}

func ParseMode(s string) (back.Mode, error) {
	switch s {
	case back.Strict.String():
		return back.Strict, nil
	case back.Diagnostic.String():
		return back.Diagnostic, nil
	}

	return 0, errors.New("mode: unknown value %q", s)
}

func (c Config) Options() (back.Options, error) {
	m, err := ParseMode(c.Mode)
	if err != nil {
		return back.Options{}, err
	}

	return back.Options{Mode: m, Comments: c.Comments}, nil
}

// Allocator returns a fresh allocator. One is needed per compilation.
func (c Config) Allocator() (regalloc.Allocator, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if c.RegAlloc == regalloc.SpillAllName {
		return regalloc.NewSpillAll(), nil
	}

	return regalloc.NewLinearScan(c.Registers), nil
}
