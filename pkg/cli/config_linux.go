package cli

import "github.com/spf13/pflag"

func (c *Config) registerCommandLineFlagsOsSpecific(fs *pflag.FlagSet) {
	fs.StringVar(&c.Backend.KeyCtlScope, "keyctl-scope", c.Backend.KeyCtlScope, "Kernel keyring `scope` (user|session|process|thread) for the keyctl backend.")
}
