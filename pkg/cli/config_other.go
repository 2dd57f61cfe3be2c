//go:build !linux

package cli

import "github.com/spf13/pflag"

func (c *Config) registerCommandLineFlagsOsSpecific(_ *pflag.FlagSet) {}
