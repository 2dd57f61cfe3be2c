package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cscashby/TeslaJS/pkg/account"
	"github.com/cscashby/TeslaJS/pkg/vehicle"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrInvalidTime     = errors.New("invalid time")
	ErrUnknownCommand  = errors.New("unrecognized command")
	ErrRequiresVehicle = errors.New("command requires a vehicle")
)

type Argument struct {
	name string
	help string
}

// Handler executes a command. The car is bound to the configured session; its vehicle ID is only
// guaranteed to be set for commands with requiresVehicle.
type Handler func(ctx context.Context, env *environment, args map[string]string) error

type Command struct {
	help            string
	requiresVehicle bool // True if the vehicle ID must be resolved before the handler runs
	args            []Argument
	optional        []Argument
	handler         Handler
}

type environment struct {
	acct   *account.Account
	car    *vehicle.Vehicle
	out    io.Writer
	forget func() error
}

func (e *environment) printJSON(v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(e.out, string(encoded))
	return nil
}

// printResult converts a result=false reply into an error.
func (e *environment) printResult(r *vehicle.CommandResult, err error) error {
	if err != nil {
		return err
	}
	return r.Err()
}

// ParseTemperature accepts a bare number or a number suffixed with F or C and returns degrees
// Fahrenheit.
func ParseTemperature(s string) (float64, error) {
	s = strings.TrimSpace(s)
	unit := "F"
	if n := len(s); n > 0 {
		switch s[n-1] {
		case 'f', 'F':
			s = s[:n-1]
		case 'c', 'C':
			unit = "C"
			s = s[:n-1]
		}
	}
	degrees, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: format temperature as 70, 70F or 21C", ErrCommandLineArgs)
	}
	if unit == "C" {
		degrees = degrees*9.0/5.0 + 32.0
	}
	return degrees, nil
}

func GetDegree(degStr string) (float64, error) {
	deg, err := strconv.ParseFloat(degStr, 64)
	if err != nil {
		return 0.0, err
	}
	if deg < -180 || deg > 180 {
		return 0.0, errors.New("latitude and longitude must both be in the range [-180, 180]")
	}
	return deg, nil
}

// ParseEventTime accepts RFC 3339 timestamps or HH:MM, interpreted as today in local time.
func ParseEventTime(s string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	components := strings.Split(s, ":")
	if len(components) != 2 {
		return time.Time{}, fmt.Errorf("%w: expected HH:MM or RFC 3339", ErrInvalidTime)
	}
	hours, err := strconv.Atoi(components[0])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTime, err)
	}
	minutes, err := strconv.Atoi(components[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidTime, err)
	}
	if hours > 23 || hours < 0 || minutes > 59 || minutes < 0 {
		return time.Time{}, fmt.Errorf("%w: hours or minutes outside valid range", ErrInvalidTime)
	}
	year, month, day := now.Date()
	return time.Date(year, month, day, hours, minutes, 0, 0, now.Location()), nil
}

func execute(ctx context.Context, env *environment, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, ok := commands[args[0]]
	if !ok {
		return ErrUnknownCommand
	}
	if info.requiresVehicle && env.car.ID() == "" {
		return ErrRequiresVehicle
	}

	var err error
	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args)-1, len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, env, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

// simple wraps a catalog call without arguments.
func simple(help string, f func(*vehicle.Vehicle, context.Context) (*vehicle.CommandResult, error)) *Command {
	return &Command{
		help:            help,
		requiresVehicle: true,
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			return env.printResult(f(env.car, ctx))
		},
	}
}

// state wraps a state query and prints its reply as JSON.
func state[T any](help string, f func(*vehicle.Vehicle, context.Context) (T, error)) *Command {
	return &Command{
		help:            help,
		requiresVehicle: true,
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			reply, err := f(env.car, ctx)
			if err != nil {
				return err
			}
			return env.printJSON(reply)
		},
	}
}

var commands = map[string]*Command{
	"vehicles": &Command{
		help: "List every vehicle on the account",
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			records, err := env.acct.AllVehicles(ctx, env.car.Session())
			if err != nil {
				return err
			}
			for i, record := range records {
				fmt.Fprintf(env.out, "%d\t%s\t%s\t%s\t%s\t%s\n", i, record.IDS, record.VIN, record.DisplayName, record.Model(), record.State)
			}
			return nil
		},
	},
	"vehicle": &Command{
		help: "Print the raw record of the selected vehicle",
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			record, err := env.acct.Vehicles(ctx, env.car.Session())
			if err != nil {
				return err
			}
			return env.printJSON(record)
		},
	},
	"refresh-vehicle": &Command{
		help: "Drop the selected vehicle from the vehicle cache",
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			return env.forget()
		},
	},
	"token-info": &Command{
		help: "Print the expiry time of the OAuth token",
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			expiry, err := account.TokenExpiry(env.car.Session().AuthToken)
			if err != nil {
				return err
			}
			status := "valid"
			if time.Now().After(expiry) {
				status = "expired"
			}
			fmt.Fprintf(env.out, "%s (%s)\n", expiry.Format(time.RFC3339), status)
			return nil
		},
	},
	"get": &Command{
		help:            "GET ENDPOINT relative to the vehicle, e.g. data_request/charge_state",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "ENDPOINT", help: "Vehicle endpoint"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			reply, err := env.car.Get(ctx, args["ENDPOINT"])
			if err != nil {
				return err
			}
			fmt.Fprintln(env.out, string(reply))
			return nil
		},
	},
	"post": &Command{
		help:            "POST to ENDPOINT (relative to the vehicle) the contents of FILE, or stdin",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "ENDPOINT", help: "Vehicle endpoint, e.g. command/honk_horn"},
		},
		optional: []Argument{
			Argument{name: "FILE", help: "JSON file to POST"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			var jsonBytes []byte
			var err error
			if filename, ok := args["FILE"]; ok {
				jsonBytes, err = os.ReadFile(filename)
			} else {
				jsonBytes, err = io.ReadAll(os.Stdin)
			}
			if err != nil {
				return err
			}
			var body interface{}
			if len(jsonBytes) > 0 {
				body = json.RawMessage(jsonBytes)
			}
			reply, err := env.car.Post(ctx, args["ENDPOINT"], body)
			// reply can be set where there's an error; typically a JSON blob providing details
			if reply != nil {
				fmt.Fprintln(env.out, string(reply))
			}
			return err
		},
	},
	"stream": &Command{
		help:            "Print telemetry until --command-timeout expires",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "EMAIL", help: "Account e-mail address"},
		},
		optional: []Argument{
			Argument{name: "COLUMNS", help: "Comma-separated list of columns (defaults to all)"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			record, err := env.acct.Vehicles(ctx, env.car.Session())
			if err != nil {
				return err
			}
			if len(record.Tokens) == 0 {
				return errors.New("vehicle record has no streaming token")
			}
			columns := account.DefaultStreamColumns
			if c, ok := args["COLUMNS"]; ok {
				columns = strings.Split(c, ",")
			}
			body, err := env.acct.Stream(ctx, account.StreamOptions{
				VehicleID: strconv.FormatInt(record.VehicleID, 10),
				Username:  args["EMAIL"],
				Password:  record.Tokens[0],
				Columns:   columns,
			})
			if err != nil {
				return err
			}
			defer body.Close()
			err = account.ReadStream(body, columns, func(r *account.StreamRecord) error {
				return env.printJSON(r)
			})
			if errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		},
	},
	"vehicle-state":  state("Print vehicle state", (*vehicle.Vehicle).VehicleState),
	"climate-state":  state("Print climate state", (*vehicle.Vehicle).ClimateState),
	"drive-state":    state("Print drive state", (*vehicle.Vehicle).DriveState),
	"charge-state":   state("Print charge state", (*vehicle.Vehicle).ChargeState),
	"gui-settings":   state("Print GUI settings", (*vehicle.Vehicle).GuiSettings),
	"mobile-enabled": state("Print whether mobile access is enabled", (*vehicle.Vehicle).MobileEnabled),
	"wake": &Command{
		help:            "Wake up vehicle",
		requiresVehicle: true,
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			result, err := env.car.WakeUp(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(env.out, result.State)
			return nil
		},
	},
	"honk":               simple("Honk horn", (*vehicle.Vehicle).HonkHorn),
	"flash-lights":       simple("Flash lights", (*vehicle.Vehicle).FlashLights),
	"lock":               simple("Lock vehicle", (*vehicle.Vehicle).Lock),
	"unlock":             simple("Unlock vehicle", (*vehicle.Vehicle).Unlock),
	"valet-reset-pin":    simple("Clear the valet PIN", (*vehicle.Vehicle).ResetValetPin),
	"charging-start":     simple("Start charging", (*vehicle.Vehicle).ChargeStart),
	"charging-stop":      simple("Stop charging", (*vehicle.Vehicle).ChargeStop),
	"charging-standard":  simple("Set charge limit to the standard level", (*vehicle.Vehicle).ChargeStandard),
	"charging-max-range": simple("Set charge limit to maximum range", (*vehicle.Vehicle).ChargeMaxRange),
	"charging-storage":   simple("Set charge limit for storage (50%)", (*vehicle.Vehicle).SetStorageChargeLimit),
	"charging-daily":     simple("Set charge limit for daily use (70%)", (*vehicle.Vehicle).SetDailyChargeLimit),
	"charge-port-open":   simple("Open charge port", (*vehicle.Vehicle).OpenChargePort),
	"charge-port-close":  simple("Close charge port", (*vehicle.Vehicle).CloseChargePort),
	"climate-on":         simple("Turn on climate control", (*vehicle.Vehicle).ClimateStart),
	"climate-off":        simple("Turn off climate control", (*vehicle.Vehicle).ClimateStop),
	"charging-set-limit": &Command{
		help:            "Set charge limit to PERCENT (clamped to 90-100)",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "PERCENT", help: "Charging limit"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			limit, err := strconv.Atoi(args["PERCENT"])
			if err != nil {
				return fmt.Errorf("%w: error parsing PERCENT", ErrCommandLineArgs)
			}
			return env.printResult(env.car.SetChargeLimit(ctx, limit))
		},
	},
	"climate-set-temp": &Command{
		help:            "Set cabin temperature (clamped to 60-80F)",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "TEMP", help: "Driver temperature (e.g., 70, 70F or 21C)"},
		},
		optional: []Argument{
			Argument{name: "PASSENGER", help: "Passenger temperature (defaults to TEMP)"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			driver, err := ParseTemperature(args["TEMP"])
			if err != nil {
				return err
			}
			passenger := driver
			if p, ok := args["PASSENGER"]; ok {
				if passenger, err = ParseTemperature(p); err != nil {
					return err
				}
			}
			return env.printResult(env.car.SetTemps(ctx, driver, passenger))
		},
	},
	"valet-on": &Command{
		help:            "Enable valet mode",
		requiresVehicle: true,
		optional: []Argument{
			Argument{name: "PIN", help: "Four-digit valet PIN"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			pin := args["PIN"]
			if pin != "" && !vehicle.IsValidPIN(pin) {
				return fmt.Errorf("%w: PIN must be four digits", ErrCommandLineArgs)
			}
			return env.printResult(env.car.SetValetMode(ctx, true, pin))
		},
	},
	"valet-off": &Command{
		help:            "Disable valet mode",
		requiresVehicle: true,
		optional: []Argument{
			Argument{name: "PIN", help: "Four-digit valet PIN"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			pin := args["PIN"]
			if pin != "" && !vehicle.IsValidPIN(pin) {
				return fmt.Errorf("%w: PIN must be four digits", ErrCommandLineArgs)
			}
			return env.printResult(env.car.SetValetMode(ctx, false, pin))
		},
	},
	"remote-start": &Command{
		help:            "Enable keyless driving",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "PASSWORD", help: "Account password"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			return env.printResult(env.car.RemoteStart(ctx, args["PASSWORD"]))
		},
	},
	"trunk-open": &Command{
		help:            "Open the rear trunk",
		requiresVehicle: true,
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			return env.printResult(env.car.OpenTrunk(ctx, vehicle.Trunk))
		},
	},
	"frunk-open": &Command{
		help:            "Open the front trunk",
		requiresVehicle: true,
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			return env.printResult(env.car.OpenTrunk(ctx, vehicle.Frunk))
		},
	},
	"sunroof": &Command{
		help:            "Move the sunroof to STATE",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "STATE", help: "One of: open, vent, close, comfort"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			return env.printResult(env.car.SunroofControl(ctx, args["STATE"]))
		},
	},
	"sunroof-move": &Command{
		help:            "Open the sunroof to PERCENT",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "PERCENT", help: "Sunroof position"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			percent, err := strconv.Atoi(args["PERCENT"])
			if err != nil {
				return fmt.Errorf("%w: error parsing PERCENT", ErrCommandLineArgs)
			}
			return env.printResult(env.car.SunroofMove(ctx, percent))
		},
	},
	"homelink": &Command{
		help:            "Trigger homelink",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "LATITUDE", help: "Current latitude"},
			Argument{name: "LONGITUDE", help: "Current longitude"},
			Argument{name: "TOKEN", help: "Vehicle token from the vehicle record"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			lat, err := GetDegree(args["LATITUDE"])
			if err != nil {
				return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
			}
			long, err := GetDegree(args["LONGITUDE"])
			if err != nil {
				return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
			}
			return env.printResult(env.car.TriggerHomelink(ctx, lat, long, args["TOKEN"]))
		},
	},
	"calendar": &Command{
		help:            "Send a single calendar event to the vehicle",
		requiresVehicle: true,
		args: []Argument{
			Argument{name: "NAME", help: "Event name"},
			Argument{name: "START", help: "Start time (HH:MM today or RFC 3339)"},
			Argument{name: "END", help: "End time (HH:MM today or RFC 3339)"},
		},
		optional: []Argument{
			Argument{name: "LOCATION", help: "Event location"},
			Argument{name: "PHONE", help: "Bluetooth name of the phone paired with the vehicle"},
		},
		handler: func(ctx context.Context, env *environment, args map[string]string) error {
			now := time.Now()
			start, err := ParseEventTime(args["START"], now)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
			}
			end, err := ParseEventTime(args["END"], now)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrCommandLineArgs, err)
			}
			entry := vehicle.NewCalendarEntry(vehicle.CalendarEvent{
				Name:      args["NAME"],
				Location:  args["LOCATION"],
				Start:     start,
				End:       end,
				PhoneName: args["PHONE"],
			})
			return env.printResult(env.car.Calendar(ctx, entry))
		},
	},
}
