package proxy

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cscashby/TeslaJS/pkg/connector/inet"
	"github.com/cscashby/TeslaJS/pkg/protocol"
	"github.com/cscashby/TeslaJS/pkg/vehicle"
)

// RequestParameters allows simple type check
type RequestParameters map[string]interface{}

// Action runs a catalog call against a vehicle and returns the decoded reply.
type Action func(ctx context.Context, v *vehicle.Vehicle) (interface{}, error)

// commandAction adapts a catalog method expression, such as (*vehicle.Vehicle).HonkHorn, to an
// Action.
func commandAction(f func(v *vehicle.Vehicle, ctx context.Context) (*vehicle.CommandResult, error)) Action {
	return func(ctx context.Context, v *vehicle.Vehicle) (interface{}, error) {
		result, err := f(v, ctx)
		if result == nil {
			return nil, err
		}
		return result, err
	}
}

// ExtractCommandAction maps an owner API command name and its JSON parameters to a catalog call.
// Parameter errors are returned before any request is made.
func ExtractCommandAction(command string, params RequestParameters) (Action, error) {
	switch command {
	// Alerts
	case "honk_horn":
		return commandAction((*vehicle.Vehicle).HonkHorn), nil
	case "flash_lights":
		return commandAction((*vehicle.Vehicle).FlashLights), nil
	// Security
	case "door_lock":
		return commandAction((*vehicle.Vehicle).Lock), nil
	case "door_unlock":
		return commandAction((*vehicle.Vehicle).Unlock), nil
	case "set_valet_mode":
		on, err := params.getBool("on", true)
		if err != nil {
			return nil, err
		}
		pin, err := params.getString("password", false)
		if err != nil {
			return nil, err
		}
		if pin != "" && !vehicle.IsValidPIN(pin) {
			return nil, &protocol.NominalError{Details: fmt.Errorf("invalid password param: expected four digits")}
		}
		return commandAction(func(v *vehicle.Vehicle, ctx context.Context) (*vehicle.CommandResult, error) {
			return v.SetValetMode(ctx, on, pin)
		}), nil
	case "reset_valet_pin":
		return commandAction((*vehicle.Vehicle).ResetValetPin), nil
	case "remote_start_drive":
		password, err := params.getString("password", true)
		if err != nil {
			return nil, err
		}
		return commandAction(func(v *vehicle.Vehicle, ctx context.Context) (*vehicle.CommandResult, error) {
			return v.RemoteStart(ctx, password)
		}), nil
	// Charging
	case "charge_start":
		return commandAction((*vehicle.Vehicle).ChargeStart), nil
	case "charge_stop":
		return commandAction((*vehicle.Vehicle).ChargeStop), nil
	case "charge_port_door_open":
		return commandAction((*vehicle.Vehicle).OpenChargePort), nil
	case "charge_port_door_close":
		return commandAction((*vehicle.Vehicle).CloseChargePort), nil
	case "charge_standard":
		return commandAction((*vehicle.Vehicle).ChargeStandard), nil
	case "charge_max_range":
		return commandAction((*vehicle.Vehicle).ChargeMaxRange), nil
	case "set_charge_limit":
		percent, err := params.getNumber("percent", true)
		if err != nil {
			return nil, err
		}
		return commandAction(func(v *vehicle.Vehicle, ctx context.Context) (*vehicle.CommandResult, error) {
			return v.SetChargeLimit(ctx, int(percent))
		}), nil
	// Climate
	case "auto_conditioning_start":
		return commandAction((*vehicle.Vehicle).ClimateStart), nil
	case "auto_conditioning_stop":
		return commandAction((*vehicle.Vehicle).ClimateStop), nil
	case "set_temps":
		driver, err := params.getNumber("driver_temp", true)
		if err != nil {
			return nil, err
		}
		passenger, err := params.getNumber("passenger_temp", false)
		if err != nil {
			return nil, err
		}
		if _, ok := params["passenger_temp"]; !ok {
			passenger = driver
		}
		return commandAction(func(v *vehicle.Vehicle, ctx context.Context) (*vehicle.CommandResult, error) {
			return v.SetTemps(ctx, driver, passenger)
		}), nil
	// Body
	case "trunk_open", "actuate_trunk":
		which, err := params.getString("which_trunk", true)
		if err != nil {
			return nil, err
		}
		return commandAction(func(v *vehicle.Vehicle, ctx context.Context) (*vehicle.CommandResult, error) {
			return v.OpenTrunk(ctx, which)
		}), nil
	case "sun_roof_control":
		state, err := params.getString("state", true)
		if err != nil {
			return nil, err
		}
		if state == "move" {
			percent, err := params.getNumber("percent", true)
			if err != nil {
				return nil, err
			}
			return commandAction(func(v *vehicle.Vehicle, ctx context.Context) (*vehicle.CommandResult, error) {
				return v.SunroofMove(ctx, int(percent))
			}), nil
		}
		return commandAction(func(v *vehicle.Vehicle, ctx context.Context) (*vehicle.CommandResult, error) {
			return v.SunroofControl(ctx, state)
		}), nil
	case "trigger_homelink":
		lat, err := params.getNumber("lat", true)
		if err != nil {
			return nil, err
		}
		lon, err := params.getNumber("long", true)
		if err != nil {
			return nil, err
		}
		token, err := params.getString("token", true)
		if err != nil {
			return nil, err
		}
		return commandAction(func(v *vehicle.Vehicle, ctx context.Context) (*vehicle.CommandResult, error) {
			return v.TriggerHomelink(ctx, lat, lon, token)
		}), nil
	case "upcoming_calendar_entries":
		event, err := params.calendarEvent()
		if err != nil {
			return nil, err
		}
		return commandAction(func(v *vehicle.Vehicle, ctx context.Context) (*vehicle.CommandResult, error) {
			return v.Calendar(ctx, vehicle.NewCalendarEntry(event))
		}), nil
	default:
		return nil, &inet.HttpError{Code: http.StatusNotFound, Message: fmt.Sprintf("unknown command %s", command)}
	}
}

func (p RequestParameters) getString(key string, required bool) (string, error) {
	value, ok := p[key]
	if !ok && required {
		return "", missingParamError(key)
	}
	if !ok {
		return "", nil
	}
	s, ok := value.(string)
	if !ok {
		return "", invalidParamError(key)
	}
	return s, nil
}

func (p RequestParameters) getBool(key string, required bool) (bool, error) {
	value, ok := p[key]
	if !ok && required {
		return false, missingParamError(key)
	}
	if !ok {
		return false, nil
	}
	b, ok := value.(bool)
	if !ok {
		return false, invalidParamError(key)
	}
	return b, nil
}

func (p RequestParameters) getNumber(key string, required bool) (float64, error) {
	value, ok := p[key]
	if !ok && required {
		return 0, missingParamError(key)
	}
	if !ok {
		return 0, nil
	}
	switch n := value.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, invalidParamError(key)
	}
}

// getTime accepts milliseconds since the Unix epoch or an RFC 3339 string.
func (p RequestParameters) getTime(key string) (time.Time, error) {
	value, ok := p[key]
	if !ok {
		return time.Time{}, nil
	}
	switch t := value.(type) {
	case float64:
		return time.UnixMilli(int64(t)), nil
	case string:
		parsed, err := time.Parse(time.RFC3339, t)
		if err != nil {
			return time.Time{}, invalidParamError(key)
		}
		return parsed, nil
	default:
		return time.Time{}, invalidParamError(key)
	}
}

func (p RequestParameters) calendarEvent() (vehicle.CalendarEvent, error) {
	var event vehicle.CalendarEvent
	var err error
	if event.Name, err = p.getString("name", false); err != nil {
		return event, err
	}
	if event.Location, err = p.getString("location", false); err != nil {
		return event, err
	}
	if event.AccountName, err = p.getString("account_name", false); err != nil {
		return event, err
	}
	if event.PhoneName, err = p.getString("phone_name", false); err != nil {
		return event, err
	}
	if event.Start, err = p.getTime("start"); err != nil {
		return event, err
	}
	if event.End, err = p.getTime("end"); err != nil {
		return event, err
	}
	return event, nil
}

func missingParamError(key string) error {
	return &protocol.NominalError{Details: fmt.Errorf("missing %s param", key)}
}

func invalidParamError(key string) error {
	return &protocol.NominalError{Details: fmt.Errorf("invalid %s param", key)}
}
