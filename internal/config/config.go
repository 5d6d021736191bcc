// Package config holds the settings of one elf2cpatch run.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/invopop/jsonschema"

	"elf2cpatch/internal/hypercall"
)

// Environment variables read by FromEnv.
const (
	EnvCrossCompile = "CROSS_COMPILE"
	EnvProfile      = "ELF2CPATCH_PROFILE"
	EnvNoColor      = "ELF2CPATCH_NO_COLOR"
)

// Config represents configuration for the elf2cpatch tool
type Config struct {
	File         string   `json:"file,omitempty" jsonschema:"title=File,description=Guest ELF32 binary to disassemble"`
	Disasm       string   `json:"disasm,omitempty" jsonschema:"title=Disassembly,description=Pre-produced objdump output used instead of running objdump"`
	Output       string   `json:"output,omitempty" jsonschema:"title=Output,description=Patch script path; standard output when empty"`
	Profile      string   `json:"profile" jsonschema:"title=Profile,description=Instruction catalog to apply,enum=arm32,enum=arm7a,enum=armv7a,default=arm32"`
	Sections     []string `json:"sections,omitempty" jsonschema:"title=Sections,description=Sections to scan; auto-detected for arm32 when empty"`
	CrossCompile string   `json:"crossCompile,omitempty" jsonschema:"title=Cross Compile,description=Toolchain prefix prepended to objdump"`
	Quiet        bool     `json:"quiet,omitempty" jsonschema:"title=Quiet,description=Suppress status messages"`
	Stats        bool     `json:"stats,omitempty" jsonschema:"title=Statistics,description=Print per-family and per-symbol counts"`
	Debug        bool     `json:"debug,omitempty" jsonschema:"title=Debug,description=Enable debug logging"`
	NoColor      bool     `json:"noColor,omitempty" jsonschema:"title=No Color,description=Disable colored output"`
}

// FromEnv returns a Config with defaults and environment overrides applied.
func FromEnv() Config {
	c := Config{
		Profile:      hypercall.DefaultProfile,
		CrossCompile: os.Getenv(EnvCrossCompile),
		NoColor:      os.Getenv(EnvNoColor) != "",
	}
	if p := os.Getenv(EnvProfile); p != "" {
		c.Profile = p
	}
	return c
}

// Validate checks the settings that do not depend on the input.
func (c *Config) Validate() error {
	if _, err := hypercall.Lookup(c.Profile); err != nil {
		return err
	}
	if c.File != "" && c.Disasm != "" {
		return fmt.Errorf("--file and --disasm are mutually exclusive")
	}
	return nil
}

// Schema returns the JSON schema of Config.
func Schema() ([]byte, error) {
	reflector := new(jsonschema.Reflector)
	bts, err := json.MarshalIndent(reflector.Reflect(&Config{}), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return bts, nil
}
