// Utility for fetching and storing OAuth tokens

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cscashby/TeslaJS/pkg/account"
	"github.com/cscashby/TeslaJS/pkg/cli"
)

const long = `Logs in with EMAIL and saves the OAuth token in the system keyring (--token-name) or in
a file (--token-file). The password is read from $%s or prompted for.

With --import, the token is read from FILE or stdin instead of logging in.`

type options struct {
	importToken bool
	deleteToken bool
	timeout     time.Duration
}

func main() {
	config, err := cli.NewConfig(cli.FlagOAuth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		os.Exit(1)
	}

	var opts options
	root := &cobra.Command{
		Use:           "teslajs-auth-token [OPTION...] [EMAIL | FILE]",
		Short:         "Obtain an OAuth token and save it for other teslajs tools",
		Long:          fmt.Sprintf(long, account.EnvPass),
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), config, &opts, args)
		},
	}
	root.Flags().BoolVar(&opts.importToken, "import", false, "Read an existing token from FILE or stdin")
	root.Flags().BoolVar(&opts.deleteToken, "delete", false, "Remove the token from the system keyring")
	root.Flags().DurationVar(&opts.timeout, "timeout", 20*time.Second, "Set timeout for the login request")
	config.RegisterCommandLineFlags(root.Flags())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, config *cli.Config, opts *options, args []string) error {
	if err := config.ReadFromEnvironment(); err != nil {
		return err
	}
	if config.KeyringTokenName == "" && config.TokenFilename == "" {
		return fmt.Errorf("must provide --token-name, --token-file, $%s or $%s", cli.EnvTokenName, cli.EnvTokenFile)
	}

	if opts.deleteToken {
		if config.KeyringTokenName == "" {
			return errors.New("--delete requires --token-name")
		}
		return config.DeleteTokenFromKeyring()
	}

	var token string
	var err error
	if opts.importToken {
		token, err = readToken(args)
	} else {
		token, err = login(ctx, config, opts.timeout, args)
	}
	if err != nil {
		return err
	}

	if expiry, err := account.TokenExpiry(token); err == nil {
		fmt.Fprintf(os.Stderr, "Token expires %s\n", expiry.Local().Format(time.RFC1123))
	}
	if err := config.SaveToken(token); err != nil {
		return fmt.Errorf("error saving token: %w", err)
	}
	return nil
}

func readToken(args []string) (string, error) {
	var token []byte
	var err error
	if len(args) == 0 {
		token, err = io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("error reading token from stdin: %w", err)
		}
	} else {
		token, err = os.ReadFile(args[0])
		if err != nil {
			return "", fmt.Errorf("error reading token from file: %w", err)
		}
	}
	return strings.TrimSpace(string(token)), nil
}

func login(ctx context.Context, config *cli.Config, timeout time.Duration, args []string) (string, error) {
	username := config.AccountConfig.UsernameOverride
	if len(args) == 1 {
		username = args[0]
	}
	if username == "" {
		return "", fmt.Errorf("must provide EMAIL or $%s", account.EnvUser)
	}
	password := config.AccountConfig.PasswordOverride
	if password == "" {
		var err error
		if password, err = cli.PromptSecret(fmt.Sprintf("Password for %s: ", username)); err != nil {
			return "", err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := config.Account().Login(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}
	return result.AccessToken, nil
}
