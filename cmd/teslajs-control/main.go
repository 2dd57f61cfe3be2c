package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/spf13/cobra"

	"github.com/cscashby/TeslaJS/pkg/cli"
	"github.com/cscashby/TeslaJS/pkg/protocol"
	"github.com/cscashby/TeslaJS/pkg/vehicle"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usage = `
 * Every command requires an OAuth token (see teslajs-auth-token).
 * Vehicle commands act on --vehicle-id, or on the vehicle at --car-index in the account's list.
 * Without a COMMAND, commands are read from stdin until "exit".`

func Usage(root *cobra.Command) {
	fmt.Printf("Usage: %s [OPTION...] COMMAND [ARG...]\n", root.Name())
	fmt.Printf("\nRun %s help COMMAND for more information. Valid COMMANDs are listed below.", root.Name())
	fmt.Println("")
	fmt.Println(usage)
	fmt.Println("")

	fmt.Printf("Available OPTIONs:\n")
	fmt.Print(root.Flags().FlagUsages())
	fmt.Println("")
	fmt.Printf("Available COMMANDs:\n")
	maxLength := 0
	var labels []string
	for command := range commands {
		labels = append(labels, command)
		if len(command) > maxLength {
			maxLength = len(command)
		}
	}
	sort.Strings(labels)
	for _, command := range labels {
		info := commands[command]
		fmt.Printf("  %s%s %s\n", command, strings.Repeat(" ", maxLength-len(command)), info.help)
	}
}

func runCommand(env *environment, args []string, timeout time.Duration) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := execute(ctx, env, args); err != nil {
		switch {
		case protocol.MayHaveSucceeded(err):
			writeErr("Couldn't verify success: %s", err)
		case errors.Is(err, vehicle.ErrCommandFailed):
			writeErr("Vehicle refused command: %s", err)
		case errors.Is(err, ErrRequiresVehicle):
			writeErr("Select a vehicle with --vehicle-id or --car-index to execute this command")
		default:
			writeErr("Failed to execute command: %s", err)
		}
		return 1
	}
	return 0
}

func runInteractiveShell(env *environment, timeout time.Duration) int {
	scanner := bufio.NewScanner(os.Stdin)
	for fmt.Printf("> "); scanner.Scan(); fmt.Printf("> ") {
		args, err := shlex.Split(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" {
			return 0
		}
		if err != nil {
			writeErr("Invalid command: %s", err)
			continue
		}
		runCommand(env, args, timeout)
	}
	if err := scanner.Err(); err != nil {
		writeErr("Error reading command: %s", err)
		return 1
	}
	return 0
}

// needsVehicle reports whether args contain a command that acts on a vehicle. The interactive
// shell always resolves the vehicle.
func needsVehicle(args []string) bool {
	if len(args) == 0 {
		return true
	}
	info, ok := commands[args[0]]
	return !ok || info.requiresVehicle
}

func main() {
	status := 1
	defer func() {
		os.Exit(status)
	}()

	var (
		commandTimeout time.Duration
		connTimeout    time.Duration
	)
	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load credential configuration: %s\n", err)
		return
	}

	root := &cobra.Command{
		Use:           "teslajs-control [OPTION...] COMMAND [ARG...]",
		Short:         "Send commands to a vehicle through the owner API",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			status = run(cmd, config, args, connTimeout, commandTimeout)
			return nil
		},
	}
	root.SetHelpFunc(func(cmd *cobra.Command, _ []string) { Usage(cmd) })
	root.Flags().SetInterspersed(false)
	root.Flags().DurationVar(&commandTimeout, "command-timeout", 5*time.Second, "Set timeout for commands sent to the vehicle.")
	root.Flags().DurationVar(&connTimeout, "connect-timeout", 20*time.Second, "Set timeout for resolving the vehicle.")
	config.RegisterCommandLineFlags(root.Flags())

	if err := root.Execute(); err != nil {
		writeErr("%s", err)
		status = 1
	}
}

func run(root *cobra.Command, config *cli.Config, args []string, connTimeout, commandTimeout time.Duration) int {
	if len(args) > 0 && args[0] == "help" {
		if len(args) == 1 {
			Usage(root)
			return 0
		}
		info, ok := commands[args[1]]
		if !ok {
			writeErr("Unrecognized command: %s", args[1])
			return 1
		}
		info.Usage(args[1])
		return 0
	}

	if err := config.ReadFromEnvironment(); err != nil {
		writeErr("Error reading configuration: %s", err)
		return 1
	}
	if err := config.LoadCredentials(); err != nil {
		writeErr("Error loading credentials: %s", err)
		return 1
	}

	env := &environment{out: os.Stdout, forget: config.ForgetCachedVehicle}
	if needsVehicle(args) {
		ctx, cancel := context.WithTimeout(context.Background(), connTimeout)
		defer cancel()
		acct, car, err := config.Connect(ctx)
		if err != nil {
			writeErr("Error: %s", err)
			return 1
		}
		env.acct, env.car = acct, car
	} else {
		session, err := config.Session()
		if err != nil {
			writeErr("Error: %s", err)
			return 1
		}
		env.acct = config.Account()
		env.car = env.acct.GetVehicle(session)
	}

	if len(args) > 0 {
		return runCommand(env, args, commandTimeout)
	}
	return runInteractiveShell(env, commandTimeout)
}
